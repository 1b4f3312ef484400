package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/healthcast-go/internal/models"
	"github.com/irfndi/healthcast-go/internal/utils"
)

type fakeAnalyticsStore struct {
	counts   models.DataCounts
	earliest time.Time
	since    time.Time
	err      error
}

func (f *fakeAnalyticsStore) CountData(ctx context.Context, userID string) (*models.DataCounts, error) {
	if f.err != nil {
		return nil, f.err
	}
	c := f.counts
	return &c, nil
}

func (f *fakeAnalyticsStore) EarliestActivity(ctx context.Context, userID string) (time.Time, error) {
	return f.earliest, f.err
}

func (f *fakeAnalyticsStore) RecentDailyLogs(ctx context.Context, userID string, since time.Time) ([]models.DailyLogPoint, error) {
	f.since = since
	return []models.DailyLogPoint{{Date: "2024-03-01", Mood: models.IntPtr(6)}}, f.err
}

func (f *fakeAnalyticsStore) RecentSymptoms(ctx context.Context, userID string, since time.Time) ([]models.SymptomPoint, error) {
	return []models.SymptomPoint{{Date: "2024-02-28", Type: "gut", Severity: 6}}, f.err
}

func (f *fakeAnalyticsStore) ListModelVersions(ctx context.Context, userID string, activeOnly bool) ([]models.ModelVersion, error) {
	return []models.ModelVersion{{ID: 1, UserID: userID, Target: models.TargetGut, IsActive: activeOnly}}, f.err
}

func (f *fakeAnalyticsStore) RecentPredictions(ctx context.Context, userID string, since time.Time) ([]models.PredictionRecord, error) {
	return []models.PredictionRecord{{ID: 1, Target: models.TargetGut, Prediction: 0.4}}, f.err
}

func newTestAnalytics(store *fakeAnalyticsStore) *AnalyticsService {
	svc := NewAnalyticsService(store, store, store)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC) }
	return svc
}

func TestAnalyticsService_Summary(t *testing.T) {
	store := &fakeAnalyticsStore{
		counts:   models.DataCounts{DailyLogs: 10, Meals: 25},
		earliest: time.Date(2024, 2, 20, 8, 30, 0, 0, time.UTC),
	}
	summary, err := newTestAnalytics(store).Summary(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, int64(25), summary.Counts.Meals)
	assert.Equal(t, "2024-02-20", summary.FirstActivity)
	assert.Equal(t, 11, summary.DaysTracked)
	require.Len(t, summary.ActiveModels, 1)
	assert.True(t, summary.ActiveModels[0].IsActive)
}

func TestAnalyticsService_SummaryNoData(t *testing.T) {
	summary, err := newTestAnalytics(&fakeAnalyticsStore{}).Summary(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, summary.FirstActivity)
	assert.Zero(t, summary.DaysTracked)
}

func TestAnalyticsService_Trends(t *testing.T) {
	store := &fakeAnalyticsStore{}
	trends, err := newTestAnalytics(store).Trends(context.Background(), "u1", 7)
	require.NoError(t, err)

	assert.Equal(t, "2024-02-24", trends.Since)
	assert.Equal(t, time.Date(2024, 2, 24, 0, 0, 0, 0, time.UTC), store.since)
	assert.Len(t, trends.DailyLogs, 1)
	assert.Len(t, trends.Symptoms, 1)
	assert.Len(t, trends.Predictions, 1)
}

func TestAnalyticsService_TrendsValidation(t *testing.T) {
	svc := newTestAnalytics(&fakeAnalyticsStore{})
	for _, days := range []int{0, -3, MaxTrendDays + 1} {
		_, err := svc.Trends(context.Background(), "u1", days)
		assert.True(t, utils.IsValidationError(err), "days=%d", days)
	}
}

func TestAnalyticsService_Errors(t *testing.T) {
	svc := newTestAnalytics(&fakeAnalyticsStore{err: assert.AnError})
	_, err := svc.Summary(context.Background(), "u1")
	assert.ErrorIs(t, err, assert.AnError)
	_, err = svc.Trends(context.Background(), "u1", 30)
	assert.ErrorIs(t, err, assert.AnError)
}
