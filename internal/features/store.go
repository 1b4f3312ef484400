package features

import (
	"context"
	"fmt"
	"time"

	"github.com/irfndi/healthcast-go/internal/logging"
	"github.com/irfndi/healthcast-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Repository persists materialized daily rows and sequence windows.
// Getters return (nil, nil) when nothing is stored for the key.
type Repository interface {
	UpsertDailyRows(ctx context.Context, rows []models.DailyFeatureRow) error
	ListDailyRows(ctx context.Context, userID string) ([]models.DailyFeatureRow, error)
	GetDailyRow(ctx context.Context, userID string, date time.Time) (*models.DailyFeatureRow, error)
	LatestDailyRow(ctx context.Context, userID string) (*models.DailyFeatureRow, error)

	UpsertSequences(ctx context.Context, windows []models.SequenceWindow) error
	ListSequences(ctx context.Context, userID string) ([]models.SequenceWindow, error)
	GetSequence(ctx context.Context, userID string, date time.Time) (*models.SequenceWindow, error)
	LatestSequence(ctx context.Context, userID string) (*models.SequenceWindow, error)
}

// RebuildResult summarises a feature rebuild
type RebuildResult struct {
	UserID      string      `json:"user_id"`
	StartDate   string      `json:"start_date"`
	EndDate     string      `json:"end_date"`
	DailyRows   int         `json:"daily_rows"`
	Windows     WindowStats `json:"sequences"`
	FeatureSize int         `json:"feature_count"`
}

// Store glues the builder, the windower and the repository together
type Store struct {
	builder *Builder
	repo    Repository
	logger  *logrus.Logger
	events  *logging.StandardLogger
}

// NewStore creates a feature store
func NewStore(builder *Builder, repo Repository, logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{builder: builder, repo: repo, logger: logger, events: logging.Discard()}
}

// SetEventLogger emits a pipeline event per rebuild
func (s *Store) SetEventLogger(events *logging.StandardLogger) {
	s.events = events
}

// Rebuild materializes daily rows for [start, end], persists them, then
// re-windows the user's full persisted history.
func (s *Store) Rebuild(ctx context.Context, userID string, start, end time.Time) (*RebuildResult, error) {
	rows, err := s.builder.Build(ctx, userID, start, end)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpsertDailyRows(ctx, rows); err != nil {
		return nil, fmt.Errorf("failed to persist daily features: %w", err)
	}

	history, err := s.repo.ListDailyRows(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read daily features: %w", err)
	}

	windows, stats := Windows(history, s.builder.Options().SeqLen)
	if len(windows) > 0 {
		if err := s.repo.UpsertSequences(ctx, windows); err != nil {
			return nil, fmt.Errorf("failed to persist sequences: %w", err)
		}
	}

	result := &RebuildResult{
		UserID:    userID,
		StartDate: models.FormatDay(start),
		EndDate:   models.FormatDay(end),
		DailyRows: len(rows),
		Windows:   stats,
	}
	if len(rows) > 0 {
		result.FeatureSize = len(rows[0].Features)
	}

	s.logger.WithFields(logrus.Fields{
		"user_id":   userID,
		"rows":      result.DailyRows,
		"sequences": stats.Windows,
		"dropped":   stats.Dropped,
	}).Info("Rebuilt feature store")
	s.events.LogPipelineEvent("rebuild", userID, map[string]interface{}{
		"start_date": result.StartDate,
		"end_date":   result.EndDate,
		"rows":       result.DailyRows,
		"sequences":  stats.Windows,
		"features":   result.FeatureSize,
	})

	return result, nil
}

// GetDaily returns the daily row for date, or the latest row when date is zero
func (s *Store) GetDaily(ctx context.Context, userID string, date time.Time) (*models.DailyFeatureRow, error) {
	if date.IsZero() {
		return s.repo.LatestDailyRow(ctx, userID)
	}
	return s.repo.GetDailyRow(ctx, userID, models.Day(date))
}

// GetSequence returns the window ending at date, or the latest one when date is zero
func (s *Store) GetSequence(ctx context.Context, userID string, date time.Time) (*models.SequenceWindow, error) {
	if date.IsZero() {
		return s.repo.LatestSequence(ctx, userID)
	}
	return s.repo.GetSequence(ctx, userID, models.Day(date))
}

// DailyHistory returns every persisted daily row for the user ordered by date
func (s *Store) DailyHistory(ctx context.Context, userID string) ([]models.DailyFeatureRow, error) {
	return s.repo.ListDailyRows(ctx, userID)
}

// SequenceHistory returns every persisted window for the user ordered by date
func (s *Store) SequenceHistory(ctx context.Context, userID string) ([]models.SequenceWindow, error) {
	return s.repo.ListSequences(ctx, userID)
}
