package ml

import (
	"fmt"
	"sort"
)

// Classifier kinds a Pipeline can carry
const (
	ModelGBM      = "gradient_boosting"
	ModelLogistic = "logistic_regression"
)

// Pipeline is a standard scaler followed by one classifier. Exactly one of
// GBM and Logistic is set; both are concrete so the pipeline gob-encodes
// without type registration.
type Pipeline struct {
	Kind     string
	Scaler   *StandardScaler
	GBM      *GBM
	Logistic *Logistic
}

// NewGBMPipeline creates a scaler + gradient boosting pipeline
func NewGBMPipeline(params GBMParams) *Pipeline {
	return &Pipeline{Kind: ModelGBM, Scaler: &StandardScaler{}, GBM: NewGBM(params)}
}

// NewLogisticPipeline creates a scaler + logistic regression pipeline
func NewLogisticPipeline(params LogisticParams) *Pipeline {
	return &Pipeline{Kind: ModelLogistic, Scaler: &StandardScaler{}, Logistic: NewLogistic(params)}
}

// Fit fits the scaler then the classifier on the scaled rows
func (p *Pipeline) Fit(X [][]float64, y []int) error {
	if err := p.Scaler.Fit(X); err != nil {
		return err
	}
	scaled := p.Scaler.TransformAll(X)
	switch {
	case p.GBM != nil:
		return p.GBM.Fit(scaled, y)
	case p.Logistic != nil:
		return p.Logistic.Fit(scaled, y)
	default:
		return fmt.Errorf("pipeline %q has no classifier", p.Kind)
	}
}

// PredictProba returns the positive-class probability for one raw row
func (p *Pipeline) PredictProba(x []float64) float64 {
	scaled := p.Scaler.Transform(x)
	switch {
	case p.GBM != nil:
		return p.GBM.PredictProba(scaled)
	case p.Logistic != nil:
		return p.Logistic.PredictProba(scaled)
	default:
		return 0
	}
}

// PredictAll scores every row
func (p *Pipeline) PredictAll(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = p.PredictProba(row)
	}
	return out
}

// HasImportances reports whether the classifier exposes feature importances
func (p *Pipeline) HasImportances() bool {
	return p.GBM != nil && len(p.GBM.Importances) > 0
}

// Importance is a named feature importance
type Importance struct {
	Feature string  `json:"feature"`
	Value   float64 `json:"value"`
}

// TopImportances returns up to k importances by descending value, named by
// the given feature schema. Ties break by feature name.
func (p *Pipeline) TopImportances(names []string, k int) []Importance {
	if !p.HasImportances() {
		return nil
	}
	values := p.GBM.FeatureImportances()
	out := make([]Importance, 0, len(values))
	for i, v := range values {
		if i >= len(names) {
			break
		}
		out = append(out, Importance{Feature: names[i], Value: v})
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Value != out[b].Value {
			return out[a].Value > out[b].Value
		}
		return out[a].Feature < out[b].Feature
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}
