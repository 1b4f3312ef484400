package features

import (
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// trailing returns the window of up to size values ending at index i (inclusive)
func trailing(values []float64, i, size int) []float64 {
	start := i - size + 1
	if start < 0 {
		start = 0
	}
	return values[start : i+1]
}

// RollingMean averages up to window trailing values, so the first window-1
// positions average over however many values exist so far. Full windows are
// computed with the indicator SMA.
func RollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 || window < 1 {
		return out
	}

	warmup := window - 1
	if warmup > len(values) {
		warmup = len(values)
	}
	var sum float64
	for i := 0; i < warmup; i++ {
		sum += values[i]
		out[i] = sum / float64(i+1)
	}

	if len(values) >= window {
		sma := trend.NewSmaWithPeriod[float64](window)
		full := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))
		copy(out[window-1:], full)
	}
	return out
}

// RollingStd is the sample standard deviation over up to window trailing
// values. A single value has no spread and yields 0.
func RollingStd(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		w := trailing(values, i, window)
		if len(w) < 2 {
			continue
		}
		sd := stat.StdDev(w, nil)
		if math.IsNaN(sd) {
			sd = 0
		}
		out[i] = sd
	}
	return out
}

// RollingMin is the minimum over up to window trailing values
func RollingMin(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		out[i] = floats.Min(trailing(values, i, window))
	}
	return out
}

// RollingMax is the maximum over up to window trailing values
func RollingMax(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	for i := range values {
		out[i] = floats.Max(trailing(values, i, window))
	}
	return out
}

// Lag shifts values right by k positions; positions before the start fill with 0
func Lag(values []float64, k int) []float64 {
	out := make([]float64, len(values))
	if k <= 0 {
		copy(out, values)
		return out
	}
	shifted := helper.ChanToSlice(helper.Shift(helper.SliceToChan(values), k, 0.0))
	copy(out, shifted)
	return out
}
