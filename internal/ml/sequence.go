package ml

import (
	"context"
	"math"
	"math/rand"
)

// LSTMParams configures sequence model training
type LSTMParams struct {
	HiddenSize    int     `json:"hidden_size"`
	LearningRate  float64 `json:"learning_rate"`
	BatchSize     int     `json:"batch_size"`
	Epochs        int     `json:"epochs"`
	Patience      int     `json:"patience"`
	TrainFraction float64 `json:"train_fraction"`
	Seed          int64   `json:"seed"`
}

// DefaultLSTMParams is hidden 64, Adam 1e-3, batch 32, 10 epochs, patience 3, 80/20 split
func DefaultLSTMParams() LSTMParams {
	return LSTMParams{
		HiddenSize:    64,
		LearningRate:  1e-3,
		BatchSize:     32,
		Epochs:        10,
		Patience:      3,
		TrainFraction: 0.8,
		Seed:          42,
	}
}

func (p LSTMParams) normalized() LSTMParams {
	d := DefaultLSTMParams()
	if p.HiddenSize < 1 {
		p.HiddenSize = d.HiddenSize
	}
	if p.LearningRate <= 0 {
		p.LearningRate = d.LearningRate
	}
	if p.BatchSize < 1 {
		p.BatchSize = d.BatchSize
	}
	if p.Epochs < 1 {
		p.Epochs = d.Epochs
	}
	if p.Patience < 1 {
		p.Patience = d.Patience
	}
	if p.TrainFraction <= 0 || p.TrainFraction >= 1 {
		p.TrainFraction = d.TrainFraction
	}
	return p
}

// SequenceModel is an input scaler plus the LSTM it feeds
type SequenceModel struct {
	Scaler *StandardScaler
	Net    *LSTM
}

// PredictProba scales each timestep and returns the positive-class probability
func (m *SequenceModel) PredictProba(seq [][]float64) float64 {
	return m.Net.PredictProba(m.Scaler.TransformAll(seq))
}

// EpochStats is the loss record of one epoch
type EpochStats struct {
	Epoch     int     `json:"epoch"`
	TrainLoss float64 `json:"train_loss"`
	ValLoss   float64 `json:"val_loss"`
}

// SequenceResult is a trained sequence model plus its validation record
type SequenceResult struct {
	Model     *SequenceModel
	History   []EpochStats
	BestEpoch int
	Metrics   map[string]float64
}

// TrainSequenceModel fits an LSTM on windows X with labels y. The first
// TrainFraction of windows train, the tail validates; training stops after
// Patience epochs without validation improvement and the best epoch's weights
// are returned.
func TrainSequenceModel(ctx context.Context, X [][][]float64, y []int, params LSTMParams) (*SequenceResult, error) {
	if len(X) == 0 || len(X) != len(y) || len(X[0]) == 0 {
		return nil, ErrEmptyInput
	}
	params = params.normalized()

	split := TailSplit(len(X), params.TrainFraction)
	if len(split.Train) == 0 || len(split.Test) == 0 {
		return nil, ErrEmptyInput
	}

	var steps [][]float64
	for _, i := range split.Train {
		steps = append(steps, X[i]...)
	}
	scaler := &StandardScaler{}
	if err := scaler.Fit(steps); err != nil {
		return nil, err
	}
	scaled := make([][][]float64, len(X))
	for i, seq := range X {
		scaled[i] = scaler.TransformAll(seq)
	}

	rng := rand.New(rand.NewSource(params.Seed))
	net := NewLSTM(len(X[0][0]), params.HiddenSize, rng)
	opt := newAdam(net.params(), params.LearningRate)

	order := append([]int(nil), split.Train...)
	best := net.Clone()
	bestLoss := math.Inf(1)
	bestEpoch := 0
	stale := 0
	history := make([]EpochStats, 0, params.Epochs)

	for epoch := 1; epoch <= params.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rng.Shuffle(len(order), func(a, b int) { order[a], order[b] = order[b], order[a] })

		var trainLoss float64
		for start := 0; start < len(order); start += params.BatchSize {
			end := start + params.BatchSize
			if end > len(order) {
				end = len(order)
			}
			grads := zeroGrads(net.params())
			for _, i := range order[start:end] {
				trainLoss += net.backward(scaled[i], y[i], grads)
			}
			inv := 1 / float64(end-start)
			for _, g := range grads {
				for j := range g {
					g[j] *= inv
				}
			}
			opt.update(net.params(), grads)
		}
		trainLoss /= float64(len(order))

		valLoss := validationLoss(net, scaled, y, split.Test)
		history = append(history, EpochStats{Epoch: epoch, TrainLoss: trainLoss, ValLoss: valLoss})

		if valLoss < bestLoss {
			bestLoss = valLoss
			bestEpoch = epoch
			best = net.Clone()
			stale = 0
		} else {
			stale++
			if stale >= params.Patience {
				break
			}
		}
	}

	model := &SequenceModel{Scaler: scaler, Net: best}
	metrics := map[string]float64{
		"val_loss":   bestLoss,
		"best_epoch": float64(bestEpoch),
		"epochs":     float64(len(history)),
	}

	valY := make([]int, len(split.Test))
	valP := make([]float64, len(split.Test))
	for k, i := range split.Test {
		valY[k] = y[i]
		valP[k] = best.PredictProba(scaled[i])
	}
	metrics["val_accuracy"] = Accuracy(valY, valP)
	if auc, err := AUC(valY, valP); err == nil {
		metrics["val_auc"] = auc
	}

	return &SequenceResult{Model: model, History: history, BestEpoch: bestEpoch, Metrics: metrics}, nil
}

func validationLoss(net *LSTM, X [][][]float64, y []int, idx []int) float64 {
	labels := make([]int, len(idx))
	probs := make([]float64, len(idx))
	for k, i := range idx {
		labels[k] = y[i]
		probs[k] = net.PredictProba(X[i])
	}
	return LogLoss(labels, probs)
}
