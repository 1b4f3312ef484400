package services

import (
	"context"
	"fmt"
	"time"

	"github.com/irfndi/healthcast-go/internal/models"
	"github.com/irfndi/healthcast-go/internal/utils"
)

// MaxTrendDays bounds the trends lookback window
const MaxTrendDays = 365

// AnalyticsReader is the read side used for summaries and trends
type AnalyticsReader interface {
	CountData(ctx context.Context, userID string) (*models.DataCounts, error)
	EarliestActivity(ctx context.Context, userID string) (time.Time, error)
	RecentDailyLogs(ctx context.Context, userID string, since time.Time) ([]models.DailyLogPoint, error)
	RecentSymptoms(ctx context.Context, userID string, since time.Time) ([]models.SymptomPoint, error)
}

// ModelVersionReader lists a user's registered models
type ModelVersionReader interface {
	ListModelVersions(ctx context.Context, userID string, activeOnly bool) ([]models.ModelVersion, error)
}

// PredictionHistory lists stored predictions
type PredictionHistory interface {
	RecentPredictions(ctx context.Context, userID string, since time.Time) ([]models.PredictionRecord, error)
}

// UserSummary is the per-user data overview
type UserSummary struct {
	UserID        string                `json:"user_id"`
	Counts        models.DataCounts     `json:"counts"`
	FirstActivity string                `json:"first_activity,omitempty"`
	DaysTracked   int                   `json:"days_tracked"`
	ActiveModels  []models.ModelVersion `json:"active_models"`
}

// UserTrends holds recent raw scores and predictions
type UserTrends struct {
	UserID      string                    `json:"user_id"`
	Days        int                       `json:"days"`
	Since       string                    `json:"since"`
	DailyLogs   []models.DailyLogPoint    `json:"daily_logs"`
	Symptoms    []models.SymptomPoint     `json:"symptoms"`
	Predictions []models.PredictionRecord `json:"predictions"`
}

// AnalyticsService builds user summaries and trends
type AnalyticsService struct {
	events      AnalyticsReader
	versions    ModelVersionReader
	predictions PredictionHistory
	now         func() time.Time
}

// NewAnalyticsService creates an analytics service
func NewAnalyticsService(events AnalyticsReader, versions ModelVersionReader, predictions PredictionHistory) *AnalyticsService {
	return &AnalyticsService{events: events, versions: versions, predictions: predictions, now: time.Now}
}

// Summary returns row counts per table, the first activity day and active models
func (s *AnalyticsService) Summary(ctx context.Context, userID string) (*UserSummary, error) {
	counts, err := s.events.CountData(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count data: %w", err)
	}
	first, err := s.events.EarliestActivity(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read first activity: %w", err)
	}
	active, err := s.versions.ListModelVersions(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	summary := &UserSummary{
		UserID:       userID,
		Counts:       *counts,
		ActiveModels: active,
	}
	if !first.IsZero() {
		firstDay := models.Day(first)
		summary.FirstActivity = models.FormatDay(firstDay)
		summary.DaysTracked = int(models.Day(s.now()).Sub(firstDay).Hours()/24) + 1
	}
	return summary, nil
}

// Trends returns the last days of daily logs, symptoms and predictions
func (s *AnalyticsService) Trends(ctx context.Context, userID string, days int) (*UserTrends, error) {
	if days < 1 || days > MaxTrendDays {
		return nil, utils.NewFieldError("days", fmt.Sprintf("must be between 1 and %d", MaxTrendDays))
	}
	since := models.Day(s.now()).AddDate(0, 0, -(days - 1))

	logs, err := s.events.RecentDailyLogs(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to read daily logs: %w", err)
	}
	symptoms, err := s.events.RecentSymptoms(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to read symptoms: %w", err)
	}
	predictions, err := s.predictions.RecentPredictions(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to read predictions: %w", err)
	}

	return &UserTrends{
		UserID:      userID,
		Days:        days,
		Since:       models.FormatDay(since),
		DailyLogs:   logs,
		Symptoms:    symptoms,
		Predictions: predictions,
	}, nil
}
