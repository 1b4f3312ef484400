package database

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/healthcast-go/internal/features"
	"github.com/irfndi/healthcast-go/internal/models"
)

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)
	return mockPool
}

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := models.ParseDay(s)
	require.NoError(t, err)
	return d
}

func floatPtr(v float64) *float64 { return &v }

func int32Ptr(v int32) *int32 { return &v }

func TestEventRepository_UpsertDailyLog(t *testing.T) {
	mockPool := newMockPool(t)
	repo := NewEventRepository(mockPool)

	mockPool.ExpectExec("INSERT INTO daily_logs").
		WithArgs("u1", mustDay(t, "2024-01-02"), models.IntPtr(6), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), "tired", "", []string{"walk"}).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.UpsertDailyLog(context.Background(), &models.DailyLog{
		UserID:           "u1",
		Date:             "2024-01-02",
		Mood:             models.IntPtr(6),
		Notes:            "tired",
		CopingStrategies: []string{"walk"},
	})
	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestEventRepository_UpsertDailyLog_InvalidDate(t *testing.T) {
	mockPool := newMockPool(t)
	repo := NewEventRepository(mockPool)

	err := repo.UpsertDailyLog(context.Background(), &models.DailyLog{UserID: "u1", Date: "02/01/2024"})
	assert.ErrorContains(t, err, "invalid daily log date")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestEventRepository_Inserts(t *testing.T) {
	mockPool := newMockPool(t)
	repo := NewEventRepository(mockPool)
	ctx := context.Background()
	ts := time.Date(2024, 1, 2, 8, 30, 0, 0, time.UTC)

	mockPool.ExpectExec("INSERT INTO symptoms").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectExec("INSERT INTO meals").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectExec("INSERT INTO sleep_sessions").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectExec("INSERT INTO workouts").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectExec("INSERT INTO vitals").WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mockPool.ExpectExec("INSERT INTO journals").WillReturnError(assert.AnError)

	require.NoError(t, repo.InsertSymptom(ctx, &models.Symptom{UserID: "u1", Date: "2024-01-02", Type: "gut", Severity: models.IntPtr(4)}))
	require.NoError(t, repo.InsertMeal(ctx, &models.Meal{UserID: "u1", Timestamp: ts, Items: "coffee"}))
	require.NoError(t, repo.InsertSleepSession(ctx, &models.SleepSession{UserID: "u1", StartTime: ts.Add(-8 * time.Hour), EndTime: ts}))
	require.NoError(t, repo.InsertWorkout(ctx, &models.Workout{UserID: "u1", Timestamp: ts, Type: "run"}))
	require.NoError(t, repo.UpsertVital(ctx, &models.Vital{UserID: "u1", Date: "2024-01-02", HRVMs: floatPtr(55)}))

	err := repo.InsertJournal(ctx, &models.Journal{UserID: "u1", Timestamp: ts, Text: "ok"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestEventRepository_LoadDailyAggregates(t *testing.T) {
	mockPool := newMockPool(t)
	repo := NewEventRepository(mockPool)

	start := mustDay(t, "2024-01-01")
	end := mustDay(t, "2024-01-03")
	until := mustDay(t, "2024-01-04")

	mockPool.ExpectQuery("FROM meals").
		WithArgs("u1", start, until).
		WillReturnRows(pgxmock.NewRows([]string{"day", "caffeine", "meals_cnt", "avg_calories", "total_protein", "total_carbs", "total_fat", "total_fiber", "total_sugar"}).
			AddRow(mustDay(t, "2024-01-02"), floatPtr(180), floatPtr(3), floatPtr(550), nil, nil, nil, nil, nil))
	mockPool.ExpectQuery("FROM sleep_sessions").
		WithArgs("u1", start, until).
		WillReturnRows(pgxmock.NewRows([]string{"day", "sleep_min", "sleep_score", "deep_min", "rem_min", "avg_awakenings"}))
	mockPool.ExpectQuery("FROM vitals").
		WithArgs("u1", start, until).
		WillReturnRows(pgxmock.NewRows([]string{"date", "hrv_ms", "steps", "hr_mean", "hr_max", "spo2", "active_min", "calories_burned"}))
	mockPool.ExpectQuery("FROM daily_logs").
		WithArgs("u1", start, until).
		WillReturnRows(pgxmock.NewRows([]string{"date", "mood", "stress", "energy", "focus"}).
			AddRow(mustDay(t, "2024-01-01"), floatPtr(7), floatPtr(3), nil, nil))
	mockPool.ExpectQuery("FROM workouts").
		WithArgs("u1", start, until).
		WillReturnRows(pgxmock.NewRows([]string{"day", "workout_count", "total_workout_min", "avg_intensity", "workout_calories"}))
	mockPool.ExpectQuery("FROM symptoms").
		WithArgs("u1", start, until).
		WillReturnRows(pgxmock.NewRows([]string{"date", "type", "max"}).
			AddRow(mustDay(t, "2024-01-03"), "Gut", 6.0).
			AddRow(mustDay(t, "2024-01-03"), "gut", 4.0).
			AddRow(mustDay(t, "2024-01-03"), "stress", 2.0))

	aggs, err := repo.LoadDailyAggregates(context.Background(), "u1", start, end)
	require.NoError(t, err)
	require.Len(t, aggs, 3)

	assert.Equal(t, features.SourceMeals, aggs[0].Source)
	assert.Equal(t, map[string]float64{"caffeine": 180, "meals_cnt": 3, "avg_calories": 550}, aggs[0].Values)

	assert.Equal(t, features.SourceDailyLogs, aggs[1].Source)
	assert.Equal(t, map[string]float64{"mood": 7, "stress": 3}, aggs[1].Values)

	assert.Equal(t, features.SourceSymptoms, aggs[2].Source)
	assert.Equal(t, mustDay(t, "2024-01-03"), aggs[2].Date)
	assert.Equal(t, map[string]float64{"gut": 6, "symptom_stress": 2}, aggs[2].Values)

	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestEventRepository_LoadDailyAggregates_ZeroSeveritySymptom(t *testing.T) {
	mockPool := newMockPool(t)
	repo := NewEventRepository(mockPool)

	start := mustDay(t, "2024-01-01")
	until := mustDay(t, "2024-01-02")
	for _, table := range []string{"FROM meals", "FROM sleep_sessions", "FROM vitals", "FROM daily_logs", "FROM workouts"} {
		mockPool.ExpectQuery(table).
			WithArgs("u1", start, until).
			WillReturnRows(pgxmock.NewRows([]string{"day"}))
	}
	mockPool.ExpectQuery("FROM symptoms").
		WithArgs("u1", start, until).
		WillReturnRows(pgxmock.NewRows([]string{"date", "type", "max"}).
			AddRow(start, "skin", 0.0).
			AddRow(start, "Headache", 0.0))

	aggs, err := repo.LoadDailyAggregates(context.Background(), "u1", start, start)
	require.NoError(t, err)
	require.Len(t, aggs, 1)

	// a logged zero still marks the column observed
	assert.Equal(t, map[string]float64{"skin": 0, "headache": 0}, aggs[0].Values)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestEventRepository_LoadDailyAggregates_QueryError(t *testing.T) {
	mockPool := newMockPool(t)
	repo := NewEventRepository(mockPool)

	mockPool.ExpectQuery("FROM meals").WillReturnError(assert.AnError)

	_, err := repo.LoadDailyAggregates(context.Background(), "u1", mustDay(t, "2024-01-01"), mustDay(t, "2024-01-02"))
	assert.ErrorIs(t, err, assert.AnError)
	assert.ErrorContains(t, err, "meals")
}

func TestEventRepository_CountData(t *testing.T) {
	mockPool := newMockPool(t)
	repo := NewEventRepository(mockPool)

	mockPool.ExpectQuery("SELECT COUNT").
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"a", "b", "c", "d", "e", "f", "g"}).
			AddRow(int64(30), int64(4), int64(61), int64(29), int64(8), int64(30), int64(2)))

	counts, err := repo.CountData(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, &models.DataCounts{
		DailyLogs: 30, Symptoms: 4, Meals: 61, SleepSessions: 29, Workouts: 8, Vitals: 30, Journals: 2,
	}, counts)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestEventRepository_Trends(t *testing.T) {
	mockPool := newMockPool(t)
	repo := NewEventRepository(mockPool)
	since := mustDay(t, "2024-01-01")

	mockPool.ExpectQuery("FROM daily_logs").
		WithArgs("u1", since).
		WillReturnRows(pgxmock.NewRows([]string{"date", "mood", "stress", "energy", "focus"}).
			AddRow(mustDay(t, "2024-01-05"), int32Ptr(4), nil, int32Ptr(6), nil))
	mockPool.ExpectQuery("FROM symptoms").
		WithArgs("u1", since).
		WillReturnRows(pgxmock.NewRows([]string{"date", "type", "severity"}).
			AddRow(mustDay(t, "2024-01-04"), "skin", int32(3)))

	logs, err := repo.RecentDailyLogs(context.Background(), "u1", since)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "2024-01-05", logs[0].Date)
	assert.Equal(t, 4, *logs[0].Mood)
	assert.Nil(t, logs[0].Stress)
	assert.Equal(t, 6, *logs[0].Energy)

	symptoms, err := repo.RecentSymptoms(context.Background(), "u1", since)
	require.NoError(t, err)
	assert.Equal(t, []models.SymptomPoint{{Date: "2024-01-04", Type: "skin", Severity: 3}}, symptoms)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestEventRepository_EarliestActivity(t *testing.T) {
	mockPool := newMockPool(t)
	repo := NewEventRepository(mockPool)

	first := mustDay(t, "2023-11-20")
	mockPool.ExpectQuery("SELECT MIN").
		WithArgs("u1").
		WillReturnRows(pgxmock.NewRows([]string{"min"}).AddRow(&first))
	mockPool.ExpectQuery("SELECT MIN").
		WithArgs("u2").
		WillReturnRows(pgxmock.NewRows([]string{"min"}).AddRow(nil))

	got, err := repo.EarliestActivity(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, first, got)

	got, err = repo.EarliestActivity(context.Background(), "u2")
	require.NoError(t, err)
	assert.True(t, got.IsZero())
	assert.NoError(t, mockPool.ExpectationsWereMet())
}
