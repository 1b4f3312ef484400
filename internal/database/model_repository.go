package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/irfndi/healthcast-go/internal/models"
)

// ModelRepository tracks trained model versions and served predictions.
type ModelRepository struct {
	pool DatabasePool
}

// NewModelRepository creates a new model repository.
func NewModelRepository(pool DatabasePool) *ModelRepository {
	return &ModelRepository{pool: pool}
}

// RecordModelVersion registers a saved artifact as the active version for its
// user, kind and target. Older versions stay in the table but are deactivated.
func (r *ModelRepository) RecordModelVersion(ctx context.Context, meta *models.ArtifactMetadata, path string) (*models.ModelVersion, error) {
	metrics := meta.Metrics
	if metrics == nil {
		metrics = map[string]float64{}
	}
	metricsJSON, err := json.Marshal(metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to encode model metrics: %w", err)
	}

	query := `
		WITH deactivated AS (
			UPDATE model_versions SET is_active = FALSE
			WHERE user_id = $1 AND model_type = $2 AND target = $3 AND is_active
		)
		INSERT INTO model_versions (user_id, model_type, target, version, model_path, metrics_json, is_active)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, TRUE)
		RETURNING model_id, created_at
	`

	out := &models.ModelVersion{
		UserID:    meta.Key.UserID,
		ModelType: meta.Key.Kind,
		Target:    meta.Key.Target,
		Version:   meta.Version,
		ModelPath: path,
		Metrics:   metrics,
		IsActive:  true,
	}
	err = r.pool.QueryRow(ctx, query,
		meta.Key.UserID, string(meta.Key.Kind), string(meta.Key.Target), meta.Version, path, string(metricsJSON),
	).Scan(&out.ID, &out.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record model version: %w", err)
	}
	return out, nil
}

// ListModelVersions returns the user's model versions, newest first. With
// activeOnly set only the serving versions are returned.
func (r *ModelRepository) ListModelVersions(ctx context.Context, userID string, activeOnly bool) ([]models.ModelVersion, error) {
	query := `
		SELECT model_id, user_id, model_type, target, version, model_path, metrics_json, is_active, created_at
		FROM model_versions
		WHERE user_id = $1 AND (is_active OR NOT $2)
		ORDER BY created_at DESC, model_id DESC
	`
	rows, err := r.pool.Query(ctx, query, userID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to query model versions: %w", err)
	}
	defer rows.Close()

	out := make([]models.ModelVersion, 0)
	for rows.Next() {
		var (
			mv         models.ModelVersion
			modelType  string
			target     string
			rawMetrics []byte
		)
		if err := rows.Scan(&mv.ID, &mv.UserID, &modelType, &target, &mv.Version, &mv.ModelPath,
			&rawMetrics, &mv.IsActive, &mv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan model version: %w", err)
		}
		mv.ModelType = models.ArtifactKind(modelType)
		mv.Target = models.Target(target)
		if len(rawMetrics) > 0 {
			if err := json.Unmarshal(rawMetrics, &mv.Metrics); err != nil {
				return nil, fmt.Errorf("failed to decode metrics for model %d: %w", mv.ID, err)
			}
		}
		out = append(out, mv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate model versions: %w", err)
	}
	return out, nil
}

// SavePredictions stores one row per scored target of the set.
func (r *ModelRepository) SavePredictions(ctx context.Context, set *models.PredictionSet) error {
	if set.Empty() {
		return nil
	}
	date, err := models.ParseDay(set.Date)
	if err != nil {
		return fmt.Errorf("invalid prediction date: %w", err)
	}

	n := len(set.Predictions)
	targets := make([]string, 0, n)
	values := make([]float64, 0, n)
	confidences := make([]float64, 0, n)
	explanations := make([]string, 0, n)
	for _, target := range models.AllTargets {
		p, ok := set.Predictions[target]
		if !ok {
			continue
		}
		explanation := "null"
		if exp, ok := set.Explanations[target]; ok {
			raw, err := json.Marshal(exp)
			if err != nil {
				return fmt.Errorf("failed to encode explanation for %s: %w", target, err)
			}
			explanation = string(raw)
		}
		targets = append(targets, string(target))
		values = append(values, p)
		confidences = append(confidences, set.Confidence[target])
		explanations = append(explanations, explanation)
	}

	query := `
		INSERT INTO predictions (user_id, date, model_type, target, prediction, confidence, explanation_json)
		SELECT $1, $2, $3, t, p, c, NULLIF(e, 'null')::jsonb
		FROM unnest($4::text[], $5::float8[], $6::float8[], $7::text[]) AS x(t, p, c, e)
	`
	_, err = r.pool.Exec(ctx, query, set.UserID, date, string(set.Kind), targets, values, confidences, explanations)
	if err != nil {
		return fmt.Errorf("failed to save predictions: %w", err)
	}
	return nil
}

// RecentPredictions returns predictions made for days on or after since, newest first.
func (r *ModelRepository) RecentPredictions(ctx context.Context, userID string, since time.Time) ([]models.PredictionRecord, error) {
	query := `
		SELECT prediction_id, user_id, date, model_type, target, prediction, COALESCE(confidence, 0), explanation_json, created_at
		FROM predictions
		WHERE user_id = $1 AND date >= $2
		ORDER BY date DESC, created_at DESC
	`
	rows, err := r.pool.Query(ctx, query, userID, models.Day(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query predictions: %w", err)
	}
	defer rows.Close()

	out := make([]models.PredictionRecord, 0)
	for rows.Next() {
		var (
			rec            models.PredictionRecord
			date           time.Time
			modelType      string
			target         string
			rawExplanation []byte
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &date, &modelType, &target, &rec.Prediction,
			&rec.Confidence, &rawExplanation, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		rec.Date = models.FormatDay(date)
		rec.ModelType = models.ArtifactKind(modelType)
		rec.Target = models.Target(target)
		if len(rawExplanation) > 0 {
			if err := json.Unmarshal(rawExplanation, &rec.Explanation); err != nil {
				return nil, fmt.Errorf("failed to decode explanation for prediction %d: %w", rec.ID, err)
			}
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate predictions: %w", err)
	}
	return out, nil
}

// DeletePredictionsBefore removes predictions made for days before cutoff.
func (r *ModelRepository) DeletePredictionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM predictions WHERE date < $1", models.Day(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old predictions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteInactiveModelVersions removes superseded version rows created before
// cutoff. Artifact files are keyed by target, not version, so none are touched.
func (r *ModelRepository) DeleteInactiveModelVersions(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, "DELETE FROM model_versions WHERE NOT is_active AND created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete inactive model versions: %w", err)
	}
	return tag.RowsAffected(), nil
}
