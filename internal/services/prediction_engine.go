package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/irfndi/healthcast-go/internal/artifacts"
	"github.com/irfndi/healthcast-go/internal/logging"
	"github.com/irfndi/healthcast-go/internal/ml"
	"github.com/irfndi/healthcast-go/internal/models"
	"github.com/irfndi/healthcast-go/internal/telemetry"
)

// ExplainTopK is how many feature importances an explanation carries
const ExplainTopK = 5

// FeatureSource reads materialized rows and windows. A zero date means the
// most recent one; a missing row is (nil, nil).
type FeatureSource interface {
	GetDaily(ctx context.Context, userID string, date time.Time) (*models.DailyFeatureRow, error)
	GetSequence(ctx context.Context, userID string, date time.Time) (*models.SequenceWindow, error)
}

// ArtifactLoader reads trained artifacts
type ArtifactLoader interface {
	Load(ctx context.Context, key models.ArtifactKey) (*artifacts.Artifact, error)
}

// PredictionCache stores scored prediction sets by user, kind and date
type PredictionCache interface {
	Get(ctx context.Context, userID string, kind models.ArtifactKind, date string) (*models.PredictionSet, bool)
	Set(ctx context.Context, set *models.PredictionSet) error
	InvalidateUser(ctx context.Context, userID string) (int, error)
}

// PredictionRecorder persists scored predictions
type PredictionRecorder interface {
	SavePredictions(ctx context.Context, set *models.PredictionSet) error
}

// RiskNotifier is told about every fresh prediction set
type RiskNotifier interface {
	NotifyHighRisk(ctx context.Context, set *models.PredictionSet) error
}

// loadedArtifact is a cache slot; a nil artifact records a known miss
type loadedArtifact struct {
	artifact *artifacts.Artifact
}

// PredictionEngine scores users with their trained artifacts. Artifacts are
// loaded lazily and kept per process until Invalidate is called for the user.
type PredictionEngine struct {
	features    FeatureSource
	loader      ArtifactLoader
	recommender *Recommender
	cache       PredictionCache
	recorder    PredictionRecorder
	notifier    RiskNotifier
	logger      *logrus.Logger
	events      *logging.StandardLogger
	now         func() time.Time

	mu        sync.RWMutex
	artifacts map[string]map[models.ArtifactKey]loadedArtifact
}

// PredictionEngineOption configures optional collaborators
type PredictionEngineOption func(*PredictionEngine)

// WithPredictionCache enables the shared prediction cache
func WithPredictionCache(cache PredictionCache) PredictionEngineOption {
	return func(e *PredictionEngine) { e.cache = cache }
}

// WithPredictionRecorder persists every fresh prediction set
func WithPredictionRecorder(recorder PredictionRecorder) PredictionEngineOption {
	return func(e *PredictionEngine) { e.recorder = recorder }
}

// WithRiskNotifier sends alerts for fresh prediction sets
func WithRiskNotifier(notifier RiskNotifier) PredictionEngineOption {
	return func(e *PredictionEngine) { e.notifier = notifier }
}

// WithRecommender replaces the default advice table
func WithRecommender(r *Recommender) PredictionEngineOption {
	return func(e *PredictionEngine) { e.recommender = r }
}

// WithEventLogger emits a pipeline event per scored set
func WithEventLogger(events *logging.StandardLogger) PredictionEngineOption {
	return func(e *PredictionEngine) { e.events = events }
}

// NewPredictionEngine creates an engine over a feature source and artifact loader
func NewPredictionEngine(features FeatureSource, loader ArtifactLoader, logger *logrus.Logger, opts ...PredictionEngineOption) *PredictionEngine {
	if logger == nil {
		logger = logrus.New()
	}
	e := &PredictionEngine{
		features:    features,
		loader:      loader,
		recommender: NewRecommender(),
		logger:      logger,
		events:      logging.Discard(),
		now:         time.Now,
		artifacts:   make(map[string]map[models.ArtifactKey]loadedArtifact),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PredictDaily scores the daily row for date (latest when zero) with every
// tabular artifact the user has. A missing row yields an empty set.
func (e *PredictionEngine) PredictDaily(ctx context.Context, userID string, date time.Time) (*models.PredictionSet, error) {
	ctx, span := telemetry.StartPipelineSpan(ctx, "predict.daily", userID)
	defer span.End()

	if set, ok := e.cached(ctx, userID, models.KindTabular, date); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return set, nil
	}

	row, err := e.features.GetDaily(ctx, userID, date)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to read daily features: %w", err)
	}
	if row == nil {
		return e.emptySet(userID, models.KindTabular, date), nil
	}

	set := e.newSet(userID, models.KindTabular, row.Date)
	for _, target := range models.AllTargets {
		art, err := e.artifact(ctx, models.ArtifactKey{UserID: userID, Target: target, Kind: models.KindTabular})
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if art == nil || art.Pipeline == nil {
			continue
		}
		set.Predictions[target] = art.Pipeline.PredictProba(row.Vector(art.Metadata.FeatureNames))
		if c, ok := confidence(art.Metadata); ok {
			set.Confidence[target] = c
		}
		if top := explain(art); top != nil {
			set.Explanations[target] = top
		}
	}

	return e.finish(ctx, set), nil
}

// PredictSequence scores the window ending at date (latest when zero) with
// every sequence artifact the user has. A missing window yields an empty set.
func (e *PredictionEngine) PredictSequence(ctx context.Context, userID string, date time.Time) (*models.PredictionSet, error) {
	ctx, span := telemetry.StartPipelineSpan(ctx, "predict.sequence", userID)
	defer span.End()

	if set, ok := e.cached(ctx, userID, models.KindSequence, date); ok {
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return set, nil
	}

	window, err := e.features.GetSequence(ctx, userID, date)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("failed to read sequence: %w", err)
	}
	if window == nil {
		return e.emptySet(userID, models.KindSequence, date), nil
	}

	set := e.newSet(userID, models.KindSequence, window.EndDate)
	for _, target := range models.AllTargets {
		art, err := e.artifact(ctx, models.ArtifactKey{UserID: userID, Target: target, Kind: models.KindSequence})
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		if art == nil || art.Sequence == nil {
			continue
		}
		if !sameNames(art.Metadata.FeatureNames, window.FeatureNames) {
			e.events.WithTarget(string(target)).Warn("Sequence schema differs from trained model, skipping target",
				"user_id", userID)
			continue
		}
		set.Predictions[target] = art.Sequence.PredictProba(window.X)
		if c, ok := confidence(art.Metadata); ok {
			set.Confidence[target] = c
		}
	}

	return e.finish(ctx, set), nil
}

// Explain returns the top feature importances per target for the daily row
// at date. Targets whose model exposes no importances are omitted.
func (e *PredictionEngine) Explain(ctx context.Context, userID string, date time.Time) (map[models.Target][]ml.Importance, error) {
	row, err := e.features.GetDaily(ctx, userID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to read daily features: %w", err)
	}
	out := make(map[models.Target][]ml.Importance)
	if row == nil {
		return out, nil
	}
	for _, target := range models.AllTargets {
		art, err := e.artifact(ctx, models.ArtifactKey{UserID: userID, Target: target, Kind: models.KindTabular})
		if err != nil {
			return nil, err
		}
		if art == nil || art.Pipeline == nil || !art.Pipeline.HasImportances() {
			continue
		}
		out[target] = art.Pipeline.TopImportances(art.Metadata.FeatureNames, ExplainTopK)
	}
	return out, nil
}

// Invalidate drops the user's loaded artifacts and cached prediction sets
func (e *PredictionEngine) Invalidate(ctx context.Context, userID string) (int, error) {
	e.mu.Lock()
	dropped := len(e.artifacts[userID])
	delete(e.artifacts, userID)
	e.mu.Unlock()

	if e.cache == nil {
		return dropped, nil
	}
	removed, err := e.cache.InvalidateUser(ctx, userID)
	if err != nil {
		return dropped, fmt.Errorf("failed to invalidate prediction cache: %w", err)
	}
	return dropped + removed, nil
}

// InvalidatePredictions drops the user's cached prediction sets and keeps the
// loaded artifacts. Called after the user's features are rebuilt.
func (e *PredictionEngine) InvalidatePredictions(ctx context.Context, userID string) (int, error) {
	if e.cache == nil {
		return 0, nil
	}
	removed, err := e.cache.InvalidateUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to invalidate prediction cache: %w", err)
	}
	return removed, nil
}

// LoadedArtifacts reports how many artifact slots are cached for the user
func (e *PredictionEngine) LoadedArtifacts(userID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.artifacts[userID])
}

// artifact returns the cached artifact for key, loading it on first use.
// A missing artifact is (nil, nil) and is remembered until invalidation.
func (e *PredictionEngine) artifact(ctx context.Context, key models.ArtifactKey) (*artifacts.Artifact, error) {
	e.mu.RLock()
	slot, ok := e.artifacts[key.UserID][key]
	e.mu.RUnlock()
	if ok {
		return slot.artifact, nil
	}

	art, err := e.loader.Load(ctx, key)
	if err != nil && !errors.Is(err, artifacts.ErrArtifactNotFound) {
		return nil, fmt.Errorf("failed to load artifact %s: %w", key, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.artifacts[key.UserID] == nil {
		e.artifacts[key.UserID] = make(map[models.ArtifactKey]loadedArtifact)
	}
	e.artifacts[key.UserID][key] = loadedArtifact{artifact: art}
	return art, nil
}

func (e *PredictionEngine) cached(ctx context.Context, userID string, kind models.ArtifactKind, date time.Time) (*models.PredictionSet, bool) {
	if e.cache == nil || date.IsZero() {
		return nil, false
	}
	return e.cache.Get(ctx, userID, kind, models.FormatDay(date))
}

func (e *PredictionEngine) newSet(userID string, kind models.ArtifactKind, date time.Time) *models.PredictionSet {
	return &models.PredictionSet{
		UserID:       userID,
		Date:         models.FormatDay(date),
		Kind:         kind,
		Predictions:  make(map[models.Target]float64),
		Explanations: make(map[models.Target]map[string]float64),
		Confidence:   make(map[models.Target]float64),
		GeneratedAt:  e.now().UTC(),
	}
}

func (e *PredictionEngine) emptySet(userID string, kind models.ArtifactKind, date time.Time) *models.PredictionSet {
	set := &models.PredictionSet{
		UserID:      userID,
		Kind:        kind,
		Predictions: make(map[models.Target]float64),
		GeneratedAt: e.now().UTC(),
	}
	if !date.IsZero() {
		set.Date = models.FormatDay(date)
	}
	return set
}

// finish attaches recommendations and hands a non-empty set to the cache,
// the recorder and the notifier. Their failures are logged only.
func (e *PredictionEngine) finish(ctx context.Context, set *models.PredictionSet) *models.PredictionSet {
	if set.Empty() {
		return set
	}
	set.Recommendations = e.recommender.Recommend(set.Predictions)

	entry := e.logger.WithFields(logrus.Fields{
		"user_id": set.UserID,
		"date":    set.Date,
		"kind":    set.Kind,
	})
	if e.cache != nil {
		if err := e.cache.Set(ctx, set); err != nil {
			entry.WithError(err).Warn("Failed to cache prediction set")
		}
	}
	if e.recorder != nil {
		if err := e.recorder.SavePredictions(ctx, set); err != nil {
			entry.WithError(err).Warn("Failed to record predictions")
		}
	}
	if e.notifier != nil {
		if err := e.notifier.NotifyHighRisk(ctx, set); err != nil {
			entry.WithError(err).Warn("Failed to send high-risk alert")
		}
	}
	e.events.LogPipelineEvent("predict", set.UserID, map[string]interface{}{
		"kind":    set.Kind,
		"date":    set.Date,
		"targets": len(set.Predictions),
	})
	return set
}

// confidence is the artifact's validation AUC, when one was recorded
func confidence(meta models.ArtifactMetadata) (float64, bool) {
	for _, key := range []string{"auc_mean", "val_auc"} {
		if v, ok := meta.Metrics[key]; ok {
			return v, true
		}
	}
	return 0, false
}

func explain(art *artifacts.Artifact) map[string]float64 {
	top := art.Pipeline.TopImportances(art.Metadata.FeatureNames, ExplainTopK)
	if len(top) == 0 {
		return nil
	}
	out := make(map[string]float64, len(top))
	for _, imp := range top {
		out[imp.Feature] = imp.Value
	}
	return out
}
