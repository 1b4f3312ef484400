package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/irfndi/healthcast-go/internal/models"
	"github.com/jackc/pgx/v5"
)

// FeatureRepository persists materialized feature rows in fs_daily_user and
// sequence windows in fs_seq_user.
type FeatureRepository struct {
	pool DatabasePool
}

// NewFeatureRepository creates a new feature repository.
func NewFeatureRepository(pool DatabasePool) *FeatureRepository {
	return &FeatureRepository{pool: pool}
}

// seqPayload is the seq_json document
type seqPayload struct {
	FeatureNames []string        `json:"feature_names"`
	X            [][]float64     `json:"X"`
	Y            map[string]*int `json:"Y"`
}

// UpsertDailyRows writes rows in a single statement, replacing rows for the same user and day.
func (r *FeatureRepository) UpsertDailyRows(ctx context.Context, rows []models.DailyFeatureRow) error {
	if len(rows) == 0 {
		return nil
	}

	users := make([]string, len(rows))
	dates := make([]time.Time, len(rows))
	featureDocs := make([]string, len(rows))
	labelDocs := make([]string, len(rows))
	for i, row := range rows {
		features, err := json.Marshal(row.Features)
		if err != nil {
			return fmt.Errorf("failed to encode features for %s: %w", models.FormatDay(row.Date), err)
		}
		labels := row.Labels
		if labels == nil {
			labels = map[string]*int{}
		}
		labelJSON, err := json.Marshal(labels)
		if err != nil {
			return fmt.Errorf("failed to encode labels for %s: %w", models.FormatDay(row.Date), err)
		}
		users[i] = row.UserID
		dates[i] = models.Day(row.Date)
		featureDocs[i] = string(features)
		labelDocs[i] = string(labelJSON)
	}

	query := `
		INSERT INTO fs_daily_user (user_id, date, features_json, labels_json)
		SELECT u, d, f::jsonb, l::jsonb
		FROM unnest($1::text[], $2::date[], $3::text[], $4::text[]) AS t(u, d, f, l)
		ON CONFLICT (user_id, date) DO UPDATE SET
			features_json = EXCLUDED.features_json,
			labels_json = EXCLUDED.labels_json,
			created_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, users, dates, featureDocs, labelDocs); err != nil {
		return fmt.Errorf("failed to upsert daily features: %w", err)
	}
	return nil
}

const dailyColumns = `user_id, date, features_json, labels_json, created_at`

// ListDailyRows returns every stored row for the user ordered by date.
func (r *FeatureRepository) ListDailyRows(ctx context.Context, userID string) ([]models.DailyFeatureRow, error) {
	query := `SELECT ` + dailyColumns + ` FROM fs_daily_user WHERE user_id = $1 ORDER BY date`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily features: %w", err)
	}
	defer rows.Close()

	out := make([]models.DailyFeatureRow, 0)
	for rows.Next() {
		row, err := scanDailyRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily features: %w", err)
	}
	return out, nil
}

// GetDailyRow returns the row for the day, or nil when none is stored.
func (r *FeatureRepository) GetDailyRow(ctx context.Context, userID string, date time.Time) (*models.DailyFeatureRow, error) {
	query := `SELECT ` + dailyColumns + ` FROM fs_daily_user WHERE user_id = $1 AND date = $2`
	return r.queryDailyRow(ctx, query, userID, models.Day(date))
}

// LatestDailyRow returns the most recent row, or nil when none is stored.
func (r *FeatureRepository) LatestDailyRow(ctx context.Context, userID string) (*models.DailyFeatureRow, error) {
	query := `SELECT ` + dailyColumns + ` FROM fs_daily_user WHERE user_id = $1 ORDER BY date DESC LIMIT 1`
	return r.queryDailyRow(ctx, query, userID)
}

func (r *FeatureRepository) queryDailyRow(ctx context.Context, query string, args ...interface{}) (*models.DailyFeatureRow, error) {
	row, err := scanDailyRow(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row, nil
}

func scanDailyRow(row pgx.Row) (*models.DailyFeatureRow, error) {
	var (
		out       models.DailyFeatureRow
		rawFeats  []byte
		rawLabels []byte
	)
	if err := row.Scan(&out.UserID, &out.Date, &rawFeats, &rawLabels, &out.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan daily features: %w", err)
	}
	out.Date = models.Day(out.Date)
	if err := json.Unmarshal(rawFeats, &out.Features); err != nil {
		return nil, fmt.Errorf("failed to decode features for %s: %w", models.FormatDay(out.Date), err)
	}
	if err := json.Unmarshal(rawLabels, &out.Labels); err != nil {
		return nil, fmt.Errorf("failed to decode labels for %s: %w", models.FormatDay(out.Date), err)
	}
	return &out, nil
}

// UpsertSequences writes windows in a single statement keyed by user and end date.
func (r *FeatureRepository) UpsertSequences(ctx context.Context, windows []models.SequenceWindow) error {
	if len(windows) == 0 {
		return nil
	}

	users := make([]string, len(windows))
	dates := make([]time.Time, len(windows))
	docs := make([]string, len(windows))
	for i, w := range windows {
		payload := seqPayload{FeatureNames: w.FeatureNames, X: w.X, Y: w.Labels}
		if payload.Y == nil {
			payload.Y = map[string]*int{}
		}
		doc, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode sequence for %s: %w", models.FormatDay(w.EndDate), err)
		}
		users[i] = w.UserID
		dates[i] = models.Day(w.EndDate)
		docs[i] = string(doc)
	}

	query := `
		INSERT INTO fs_seq_user (user_id, date, seq_json)
		SELECT u, d, s::jsonb
		FROM unnest($1::text[], $2::date[], $3::text[]) AS t(u, d, s)
		ON CONFLICT (user_id, date) DO UPDATE SET
			seq_json = EXCLUDED.seq_json,
			created_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, users, dates, docs); err != nil {
		return fmt.Errorf("failed to upsert sequences: %w", err)
	}
	return nil
}

// ListSequences returns every stored window for the user ordered by end date.
func (r *FeatureRepository) ListSequences(ctx context.Context, userID string) ([]models.SequenceWindow, error) {
	query := `SELECT user_id, date, seq_json FROM fs_seq_user WHERE user_id = $1 ORDER BY date`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sequences: %w", err)
	}
	defer rows.Close()

	out := make([]models.SequenceWindow, 0)
	for rows.Next() {
		w, err := scanSequence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sequences: %w", err)
	}
	return out, nil
}

// GetSequence returns the window ending at date, or nil when none is stored.
func (r *FeatureRepository) GetSequence(ctx context.Context, userID string, date time.Time) (*models.SequenceWindow, error) {
	query := `SELECT user_id, date, seq_json FROM fs_seq_user WHERE user_id = $1 AND date = $2`
	return r.querySequence(ctx, query, userID, models.Day(date))
}

// LatestSequence returns the most recent window, or nil when none is stored.
func (r *FeatureRepository) LatestSequence(ctx context.Context, userID string) (*models.SequenceWindow, error) {
	query := `SELECT user_id, date, seq_json FROM fs_seq_user WHERE user_id = $1 ORDER BY date DESC LIMIT 1`
	return r.querySequence(ctx, query, userID)
}

func (r *FeatureRepository) querySequence(ctx context.Context, query string, args ...interface{}) (*models.SequenceWindow, error) {
	w, err := scanSequence(r.pool.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return w, nil
}

func scanSequence(row pgx.Row) (*models.SequenceWindow, error) {
	var (
		out models.SequenceWindow
		raw []byte
	)
	if err := row.Scan(&out.UserID, &out.EndDate, &raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan sequence: %w", err)
	}
	out.EndDate = models.Day(out.EndDate)

	var payload seqPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode sequence for %s: %w", models.FormatDay(out.EndDate), err)
	}
	out.FeatureNames = payload.FeatureNames
	out.X = payload.X
	out.Labels = payload.Y
	return &out, nil
}
