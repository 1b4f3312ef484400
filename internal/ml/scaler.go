// Package ml holds the numeric models used by the trainer: a standard scaler,
// gradient-boosted trees, logistic regression and a single-layer LSTM, plus
// the time-ordered split and scoring helpers around them.
package ml

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ErrEmptyInput is returned when a model is fitted on no rows
var ErrEmptyInput = errors.New("empty training input")

// StandardScaler centers each column on its mean and divides by its
// population standard deviation. Constant columns keep a scale of 1.
type StandardScaler struct {
	Mean  []float64
	Scale []float64
}

// Fit computes per-column statistics from X
func (s *StandardScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return ErrEmptyInput
	}
	cols := len(X[0])
	s.Mean = make([]float64, cols)
	s.Scale = make([]float64, cols)

	n := float64(len(X))
	column := make([]float64, len(X))
	for j := 0; j < cols; j++ {
		for i, row := range X {
			column[i] = row[j]
		}
		mean, variance := stat.MeanVariance(column, nil)
		if len(X) > 1 {
			// MeanVariance is unbiased; the scaler uses the population variance
			variance *= (n - 1) / n
		} else {
			variance = 0
		}
		s.Mean[j] = mean
		s.Scale[j] = 1
		if sd := math.Sqrt(variance); sd > 1e-12 && !math.IsNaN(sd) {
			s.Scale[j] = sd
		}
	}
	return nil
}

// Transform scales a single row
func (s *StandardScaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for j, v := range x {
		if j >= len(s.Mean) {
			out[j] = v
			continue
		}
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}

// TransformAll scales every row of X
func (s *StandardScaler) TransformAll(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		out[i] = s.Transform(row)
	}
	return out
}
