package ml

import (
	"errors"
	"math"
	"math/rand"
)

// ErrSingleClass is returned when the labels contain only one class
var ErrSingleClass = errors.New("training labels contain a single class")

// GBMParams configures gradient boosting
type GBMParams struct {
	Trees          int     `json:"trees"`
	MaxDepth       int     `json:"max_depth"`
	LearningRate   float64 `json:"learning_rate"`
	MinSamplesLeaf int     `json:"min_samples_leaf"`
	Seed           int64   `json:"seed"`
}

// DefaultGBMParams is 100 trees of depth 4 at learning rate 0.1
func DefaultGBMParams() GBMParams {
	return GBMParams{Trees: 100, MaxDepth: 4, LearningRate: 0.1, MinSamplesLeaf: 1, Seed: 42}
}

// GBM is a binary gradient-boosted tree classifier on log-loss
type GBM struct {
	Params      GBMParams
	Init        float64
	Trees       []RegressionTree
	Importances []float64
}

// NewGBM creates an unfitted classifier
func NewGBM(params GBMParams) *GBM {
	if params.Trees < 1 {
		params.Trees = 100
	}
	if params.MaxDepth < 1 {
		params.MaxDepth = 4
	}
	if params.LearningRate <= 0 {
		params.LearningRate = 0.1
	}
	if params.MinSamplesLeaf < 1 {
		params.MinSamplesLeaf = 1
	}
	return &GBM{Params: params}
}

// Fit trains the ensemble on X with binary labels y
func (g *GBM) Fit(X [][]float64, y []int) error {
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

	n := len(X)
	prior := float64(positives) / float64(n)
	g.Init = math.Log(prior / (1 - prior))
	g.Trees = make([]RegressionTree, 0, g.Params.Trees)
	g.Importances = make([]float64, len(X[0]))

	raw := make([]float64, n)
	for i := range raw {
		raw[i] = g.Init
	}
	prob := make([]float64, n)
	residual := make([]float64, n)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	rng := rand.New(rand.NewSource(g.Params.Seed))

	// Newton step on the log-loss for each leaf
	leafValue := func(members []int) float64 {
		var num, den float64
		for _, i := range members {
			num += residual[i]
			den += prob[i] * (1 - prob[i])
		}
		if den < 1e-150 {
			return 0
		}
		return num / den
	}

	for m := 0; m < g.Params.Trees; m++ {
		for i := range raw {
			prob[i] = sigmoid(raw[i])
			residual[i] = float64(y[i]) - prob[i]
		}
		tree := fitTree(X, residual, idx, g.Params.MaxDepth, g.Params.MinSamplesLeaf, rng, g.Importances, leafValue)
		g.Trees = append(g.Trees, *tree)
		for i, row := range X {
			raw[i] += g.Params.LearningRate * tree.Predict(row)
		}
	}

	var total float64
	for _, v := range g.Importances {
		total += v
	}
	if total > 0 {
		for i := range g.Importances {
			g.Importances[i] /= total
		}
	}
	return nil
}

// PredictProba returns the positive-class probability for one row
func (g *GBM) PredictProba(x []float64) float64 {
	raw := g.Init
	for i := range g.Trees {
		raw += g.Params.LearningRate * g.Trees[i].Predict(x)
	}
	return sigmoid(raw)
}

// FeatureImportances returns normalized impurity-decrease importances
func (g *GBM) FeatureImportances() []float64 {
	return g.Importances
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
