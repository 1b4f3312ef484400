package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LogisticParams configures L2-regularized logistic regression
type LogisticParams struct {
	C         float64 `json:"c"`
	MaxIter   int     `json:"max_iter"`
	Tolerance float64 `json:"tolerance"`
}

// DefaultLogisticParams mirrors the common C=1 setup
func DefaultLogisticParams() LogisticParams {
	return LogisticParams{C: 1, MaxIter: 100, Tolerance: 1e-6}
}

// Logistic is a binary logistic regression fitted by Newton's method
type Logistic struct {
	Params    LogisticParams
	Weights   []float64
	Intercept float64
}

// NewLogistic creates an unfitted classifier
func NewLogistic(params LogisticParams) *Logistic {
	if params.C <= 0 {
		params.C = 1
	}
	if params.MaxIter < 1 {
		params.MaxIter = 100
	}
	if params.Tolerance <= 0 {
		params.Tolerance = 1e-6
	}
	return &Logistic{Params: params}
}

// Fit runs Newton iterations on the penalized log-likelihood. The intercept
// is not penalized.
func (l *Logistic) Fit(X [][]float64, y []int) error {
	if len(X) == 0 || len(X) != len(y) {
		return ErrEmptyInput
	}
	positives := 0
	for _, v := range y {
		positives += v
	}
	if positives == 0 || positives == len(y) {
		return ErrSingleClass
	}

	n, d := len(X), len(X[0])
	p := d + 1
	lambda := 1 / l.Params.C
	beta := mat.NewVecDense(p, nil)

	design := mat.NewDense(n, p, nil)
	for i, row := range X {
		design.Set(i, 0, 1)
		for j, v := range row {
			design.Set(i, j+1, v)
		}
	}

	grad := mat.NewVecDense(p, nil)
	hess := mat.NewSymDense(p, nil)
	step := mat.NewVecDense(p, nil)
	for iter := 0; iter < l.Params.MaxIter; iter++ {
		grad.Zero()
		hess.Zero()

		for i := 0; i < n; i++ {
			row := design.RawRowView(i)
			var z float64
			for j, v := range row {
				z += v * beta.AtVec(j)
			}
			prob := sigmoid(z)
			r := prob - float64(y[i])
			w := prob * (1 - prob)
			for a := 0; a < p; a++ {
				grad.SetVec(a, grad.AtVec(a)+r*row[a])
				for b := a; b < p; b++ {
					hess.SetSym(a, b, hess.At(a, b)+w*row[a]*row[b])
				}
			}
		}
		for j := 1; j < p; j++ {
			grad.SetVec(j, grad.AtVec(j)+lambda*beta.AtVec(j))
			hess.SetSym(j, j, hess.At(j, j)+lambda)
		}
		// keeps the system solvable when every row shares the same prediction
		hess.SetSym(0, 0, hess.At(0, 0)+1e-8)

		if err := step.SolveVec(hess, grad); err != nil {
			var cond mat.Condition
			if !errors.As(err, &cond) {
				return fmt.Errorf("failed to solve newton step: %w", err)
			}
		}
		beta.SubVec(beta, step)

		if mat.Norm(step, math.Inf(1)) < l.Params.Tolerance {
			break
		}
	}

	l.Intercept = beta.AtVec(0)
	l.Weights = make([]float64, d)
	for j := 0; j < d; j++ {
		l.Weights[j] = beta.AtVec(j + 1)
	}
	return nil
}

// PredictProba returns the positive-class probability for one row
func (l *Logistic) PredictProba(x []float64) float64 {
	z := l.Intercept
	for j, w := range l.Weights {
		if j < len(x) {
			z += w * x[j]
		}
	}
	return sigmoid(z)
}
