package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gonum.org/v1/gonum/stat"

	"github.com/irfndi/healthcast-go/internal/artifacts"
	"github.com/irfndi/healthcast-go/internal/config"
	"github.com/irfndi/healthcast-go/internal/ml"
	"github.com/irfndi/healthcast-go/internal/models"
	"github.com/irfndi/healthcast-go/internal/telemetry"
)

// FeatureHistory reads a user's persisted feature rows and windows
type FeatureHistory interface {
	DailyHistory(ctx context.Context, userID string) ([]models.DailyFeatureRow, error)
	SequenceHistory(ctx context.Context, userID string) ([]models.SequenceWindow, error)
}

// ArtifactWriter persists trained artifacts
type ArtifactWriter interface {
	Save(ctx context.Context, art *artifacts.Artifact) (*models.ArtifactMetadata, error)
	Path(key models.ArtifactKey) string
}

// ModelVersionRecorder registers saved artifacts as the active model version
type ModelVersionRecorder interface {
	RecordModelVersion(ctx context.Context, meta *models.ArtifactMetadata, path string) (*models.ModelVersion, error)
}

// TrainerConfig holds data gates and hyperparameters
type TrainerConfig struct {
	MinRows      int
	MinPositives int
	MinSequences int
	CVSplits     int
	GBM          ml.GBMParams
	Logistic     ml.LogisticParams
	LSTM         ml.LSTMParams
}

// DefaultTrainerConfig gates at 30 labelled rows, 5 positives and 20 windows
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		MinRows:      30,
		MinPositives: 5,
		MinSequences: 20,
		CVSplits:     3,
		GBM:          ml.DefaultGBMParams(),
		Logistic:     ml.DefaultLogisticParams(),
		LSTM:         ml.DefaultLSTMParams(),
	}
}

// TrainerConfigFrom maps the training section of the service configuration
func TrainerConfigFrom(cfg config.TrainingConfig) TrainerConfig {
	out := DefaultTrainerConfig()
	if cfg.MinRows > 0 {
		out.MinRows = cfg.MinRows
	}
	if cfg.MinPositives > 0 {
		out.MinPositives = cfg.MinPositives
	}
	if cfg.MinSequences > 0 {
		out.MinSequences = cfg.MinSequences
	}
	if cfg.CVSplits > 1 {
		out.CVSplits = cfg.CVSplits
	}
	if cfg.GBM.Trees > 0 {
		out.GBM.Trees = cfg.GBM.Trees
	}
	if cfg.GBM.MaxDepth > 0 {
		out.GBM.MaxDepth = cfg.GBM.MaxDepth
	}
	if cfg.GBM.LearningRate > 0 {
		out.GBM.LearningRate = cfg.GBM.LearningRate
	}
	out.GBM.Seed = cfg.GBM.Seed
	out.LSTM = ml.LSTMParams{
		HiddenSize:    cfg.LSTM.HiddenSize,
		LearningRate:  cfg.LSTM.LearningRate,
		BatchSize:     cfg.LSTM.BatchSize,
		Epochs:        cfg.LSTM.Epochs,
		Patience:      cfg.LSTM.Patience,
		TrainFraction: cfg.LSTM.TrainFraction,
		Seed:          cfg.LSTM.Seed,
	}
	return out
}

// Skip reasons reported in TrainingReport.Skipped
const (
	SkipInsufficientRows      = "insufficient labelled rows"
	SkipInsufficientPositives = "insufficient positive labels"
	SkipSingleClass           = "labels contain a single class"
	SkipNoScorableFolds       = "no cross-validation fold had both classes"
	SkipNoUsefulModel         = "no candidate scored above zero AUC"
	SkipInsufficientSequences = "insufficient sequence windows"
)

// Trainer fits tabular classifiers and sequence models per user and target
type Trainer struct {
	history  FeatureHistory
	store    ArtifactWriter
	versions ModelVersionRecorder
	cfg      TrainerConfig
	logger   *logrus.Logger
	now      func() time.Time
}

// NewTrainer creates a trainer. versions may be nil when model versions are not tracked.
func NewTrainer(history FeatureHistory, store ArtifactWriter, versions ModelVersionRecorder, cfg TrainerConfig, logger *logrus.Logger) *Trainer {
	if logger == nil {
		logger = logrus.New()
	}
	return &Trainer{
		history:  history,
		store:    store,
		versions: versions,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// TrainUser trains every requested target on both paths. Insufficient data is
// reported in the report's Skipped list, never as an error.
func (t *Trainer) TrainUser(ctx context.Context, userID string, targets []models.Target) (*models.TrainingReport, error) {
	ctx, span := telemetry.StartPipelineSpan(ctx, "trainer.train_user", userID)
	defer span.End()

	if len(targets) == 0 {
		targets = models.AllTargets
	}
	started := t.now()
	report := &models.TrainingReport{
		UserID:  userID,
		Trained: make([]models.TrainedModel, 0),
		Skipped: make([]models.SkippedTarget, 0),
	}

	rows, err := t.history.DailyHistory(ctx, userID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read daily features: %w", err)
	}
	report.Rows = len(rows)
	if err := t.trainTabular(ctx, userID, rows, targets, report); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	windows, err := t.history.SequenceHistory(ctx, userID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read sequences: %w", err)
	}
	report.Sequences = len(windows)
	if err := t.trainSequences(ctx, userID, windows, targets, report); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	report.Duration = t.now().Sub(started)
	span.SetAttributes(
		attribute.Int("trained", len(report.Trained)),
		attribute.Int("skipped", len(report.Skipped)),
	)
	t.logger.WithFields(logrus.Fields{
		"user_id":   userID,
		"rows":      report.Rows,
		"sequences": report.Sequences,
		"trained":   len(report.Trained),
		"skipped":   len(report.Skipped),
		"duration":  report.Duration.String(),
	}).Info("Training run finished")
	return report, nil
}

func (t *Trainer) skip(report *models.TrainingReport, target models.Target, kind models.ArtifactKind, reason string, fields logrus.Fields) {
	report.Skipped = append(report.Skipped, models.SkippedTarget{Target: target, Kind: kind, Reason: reason})
	entry := t.logger.WithFields(logrus.Fields{
		"user_id": report.UserID,
		"target":  target,
		"kind":    kind,
		"reason":  reason,
	})
	if fields != nil {
		entry = entry.WithFields(fields)
	}
	entry.Info("Skipping target")
}

// labelledRows returns the vectors and labels of rows with a defined label for target
func labelledRows(rows []models.DailyFeatureRow, names []string, target models.Target) ([][]float64, []int) {
	var (
		X [][]float64
		y []int
	)
	for _, row := range rows {
		label, ok := row.Label(target)
		if !ok {
			continue
		}
		X = append(X, row.Vector(names))
		y = append(y, label)
	}
	return X, y
}

func countPositives(y []int) int {
	n := 0
	for _, v := range y {
		if v == 1 {
			n++
		}
	}
	return n
}

type candidateScore struct {
	kind   string
	scores []float64
}

func (t *Trainer) candidates() []func() *ml.Pipeline {
	return []func() *ml.Pipeline{
		func() *ml.Pipeline { return ml.NewGBMPipeline(t.cfg.GBM) },
		func() *ml.Pipeline { return ml.NewLogisticPipeline(t.cfg.Logistic) },
	}
}

func (t *Trainer) trainTabular(ctx context.Context, userID string, rows []models.DailyFeatureRow, targets []models.Target, report *models.TrainingReport) error {
	names := models.FeatureNames(rows)

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}

		X, y := labelledRows(rows, names, target)
		positives := countPositives(y)
		switch {
		case len(y) < t.cfg.MinRows:
			t.skip(report, target, models.KindTabular, SkipInsufficientRows, logrus.Fields{"rows": len(y), "min_rows": t.cfg.MinRows})
			continue
		case positives < t.cfg.MinPositives:
			t.skip(report, target, models.KindTabular, SkipInsufficientPositives, logrus.Fields{"positives": positives, "min_positives": t.cfg.MinPositives})
			continue
		case positives == len(y):
			t.skip(report, target, models.KindTabular, SkipSingleClass, nil)
			continue
		}

		folds, err := ml.TimeSeriesSplit(len(y), t.cfg.CVSplits)
		if err != nil {
			t.skip(report, target, models.KindTabular, SkipInsufficientRows, logrus.Fields{"error": err.Error()})
			continue
		}

		best, bestScore, metrics := t.selectPipeline(X, y, folds)
		if best == nil {
			reason := SkipNoUsefulModel
			if metrics == nil {
				reason = SkipNoScorableFolds
			}
			t.skip(report, target, models.KindTabular, reason, nil)
			continue
		}

		pipeline := best()
		if err := pipeline.Fit(X, y); err != nil {
			t.skip(report, target, models.KindTabular, err.Error(), nil)
			continue
		}
		metrics["auc_mean"] = bestScore

		key := models.ArtifactKey{UserID: userID, Target: target, Kind: models.KindTabular}
		meta := models.ArtifactMetadata{
			Key:          key,
			ModelType:    pipeline.Kind,
			FeatureNames: names,
			Metrics:      metrics,
			TrainRows:    len(y),
			Positives:    positives,
			TrainedAt:    t.now().UTC(),
		}
		if err := t.persist(ctx, &artifacts.Artifact{Metadata: meta, Pipeline: pipeline}, report); err != nil {
			return err
		}
	}
	return nil
}

// selectPipeline scores each candidate with forward-chaining CV and returns
// the factory of the best one by mean fold AUC. metrics is nil when no fold
// could be scored.
func (t *Trainer) selectPipeline(X [][]float64, y []int, folds []ml.Fold) (func() *ml.Pipeline, float64, map[string]float64) {
	var (
		best      func() *ml.Pipeline
		bestScore float64
		metrics   map[string]float64
	)

	for _, factory := range t.candidates() {
		score := candidateScore{}
		for _, fold := range folds {
			trainX, trainY := ml.Take(X, y, fold.Train)
			testX, testY := ml.Take(X, y, fold.Test)
			if !ml.HasBothClasses(trainY) || !ml.HasBothClasses(testY) {
				continue
			}
			pipeline := factory()
			score.kind = pipeline.Kind
			if err := pipeline.Fit(trainX, trainY); err != nil {
				continue
			}
			auc, err := ml.AUC(testY, pipeline.PredictAll(testX))
			if err != nil {
				continue
			}
			score.scores = append(score.scores, auc)
		}
		if len(score.scores) == 0 {
			continue
		}

		if metrics == nil {
			metrics = make(map[string]float64)
		}
		mean, std := stat.MeanStdDev(score.scores, nil)
		if len(score.scores) < 2 {
			std = 0
		}
		metrics["auc_"+score.kind] = mean
		if mean > bestScore {
			best, bestScore = factory, mean
			metrics["auc_std"] = std
			metrics["folds_scored"] = float64(len(score.scores))
		}
	}
	return best, bestScore, metrics
}

func (t *Trainer) trainSequences(ctx context.Context, userID string, windows []models.SequenceWindow, targets []models.Target, report *models.TrainingReport) error {
	windows = latestSchema(windows)
	var names []string
	if len(windows) > 0 {
		names = windows[len(windows)-1].FeatureNames
	}

	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return err
		}

		var (
			X [][][]float64
			y []int
		)
		for _, w := range windows {
			label, ok := w.Label(target)
			if !ok {
				continue
			}
			X = append(X, w.X)
			y = append(y, label)
		}

		positives := countPositives(y)
		switch {
		case len(y) < t.cfg.MinSequences:
			t.skip(report, target, models.KindSequence, SkipInsufficientSequences, logrus.Fields{"windows": len(y), "min_sequences": t.cfg.MinSequences})
			continue
		case positives == 0:
			t.skip(report, target, models.KindSequence, SkipInsufficientPositives, logrus.Fields{"positives": 0})
			continue
		}

		result, err := ml.TrainSequenceModel(ctx, X, y, t.cfg.LSTM)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			t.skip(report, target, models.KindSequence, err.Error(), nil)
			continue
		}

		key := models.ArtifactKey{UserID: userID, Target: target, Kind: models.KindSequence}
		meta := models.ArtifactMetadata{
			Key:          key,
			ModelType:    "lstm",
			FeatureNames: names,
			Metrics:      result.Metrics,
			TrainRows:    len(y),
			Positives:    positives,
			TrainedAt:    t.now().UTC(),
		}
		if err := t.persist(ctx, &artifacts.Artifact{Metadata: meta, Sequence: result.Model}, report); err != nil {
			return err
		}
	}
	return nil
}

// latestSchema keeps the windows whose feature schema matches the most recent
// window. Older windows built before a new symptom column appeared are dropped.
func latestSchema(windows []models.SequenceWindow) []models.SequenceWindow {
	if len(windows) == 0 {
		return windows
	}
	ref := windows[len(windows)-1].FeatureNames
	out := make([]models.SequenceWindow, 0, len(windows))
	for _, w := range windows {
		if sameNames(w.FeatureNames, ref) {
			out = append(out, w)
		}
	}
	return out
}

func sameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (t *Trainer) persist(ctx context.Context, art *artifacts.Artifact, report *models.TrainingReport) error {
	meta, err := t.store.Save(ctx, art)
	if err != nil {
		return fmt.Errorf("failed to save %s: %w", art.Metadata.Key, err)
	}

	if t.versions != nil {
		if _, err := t.versions.RecordModelVersion(ctx, meta, t.store.Path(meta.Key)); err != nil {
			t.logger.WithError(err).WithField("artifact", meta.Key.String()).Warn("Failed to record model version")
		}
	}

	report.Trained = append(report.Trained, models.TrainedModel{
		Key:       meta.Key,
		ModelType: meta.ModelType,
		Metrics:   meta.Metrics,
	})
	t.logger.WithFields(logrus.Fields{
		"artifact":   meta.Key.String(),
		"model_type": meta.ModelType,
		"rows":       meta.TrainRows,
		"positives":  meta.Positives,
	}).Info("Saved trained model")
	return nil
}
