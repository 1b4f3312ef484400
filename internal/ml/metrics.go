package ml

import (
	"math"

	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// HasBothClasses reports whether y contains at least one 0 and one 1
func HasBothClasses(y []int) bool {
	var pos, neg bool
	for _, v := range y {
		if v == 1 {
			pos = true
		} else {
			neg = true
		}
		if pos && neg {
			return true
		}
	}
	return false
}

// AUC is the area under the ROC curve of scores against binary labels
func AUC(y []int, scores []float64) (float64, error) {
	if len(y) == 0 || len(y) != len(scores) {
		return 0, ErrEmptyInput
	}
	if !HasBothClasses(y) {
		return 0, ErrSingleClass
	}

	values := make([]float64, len(scores))
	copy(values, scores)
	classes := make([]bool, len(y))
	for i, v := range y {
		classes[i] = v == 1
	}
	stat.SortWeightedLabeled(values, classes, nil)

	tpr, fpr, _ := stat.ROC(nil, values, classes, nil)
	return integrate.Trapezoidal(fpr, tpr), nil
}

// LogLoss is the mean binary cross-entropy of probabilities against labels
func LogLoss(y []int, probs []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	const eps = 1e-7
	var total float64
	for i, v := range y {
		p := math.Min(math.Max(probs[i], eps), 1-eps)
		if v == 1 {
			total -= math.Log(p)
		} else {
			total -= math.Log(1 - p)
		}
	}
	return total / float64(len(y))
}

// Accuracy is the share of rows where p >= 0.5 matches the label
func Accuracy(y []int, probs []float64) float64 {
	if len(y) == 0 {
		return 0
	}
	correct := 0
	for i, v := range y {
		pred := 0
		if probs[i] >= 0.5 {
			pred = 1
		}
		if pred == v {
			correct++
		}
	}
	return float64(correct) / float64(len(y))
}
