package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/healthcast-go/internal/models"
	"github.com/irfndi/healthcast-go/internal/utils"
)

// recordingEvents keeps every write in memory
type recordingEvents struct {
	dailyLogs []models.DailyLog
	symptoms  []models.Symptom
	meals     []models.Meal
	sleeps    []models.SleepSession
	workouts  []models.Workout
	vitals    []models.Vital
	journals  []models.Journal
	err       error
}

func (r *recordingEvents) UpsertDailyLog(ctx context.Context, log *models.DailyLog) error {
	r.dailyLogs = append(r.dailyLogs, *log)
	return r.err
}

func (r *recordingEvents) InsertSymptom(ctx context.Context, s *models.Symptom) error {
	r.symptoms = append(r.symptoms, *s)
	return r.err
}

func (r *recordingEvents) InsertMeal(ctx context.Context, m *models.Meal) error {
	r.meals = append(r.meals, *m)
	return r.err
}

func (r *recordingEvents) InsertSleepSession(ctx context.Context, s *models.SleepSession) error {
	r.sleeps = append(r.sleeps, *s)
	return r.err
}

func (r *recordingEvents) InsertWorkout(ctx context.Context, w *models.Workout) error {
	r.workouts = append(r.workouts, *w)
	return r.err
}

func (r *recordingEvents) UpsertVital(ctx context.Context, v *models.Vital) error {
	r.vitals = append(r.vitals, *v)
	return r.err
}

func (r *recordingEvents) InsertJournal(ctx context.Context, j *models.Journal) error {
	r.journals = append(r.journals, *j)
	return r.err
}

func newTestIngestion() (*IngestionService, *recordingEvents, *fakeUsers) {
	events := &recordingEvents{}
	users := &fakeUsers{}
	svc := NewIngestionService(events, users, quietLogger())
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, events, users
}

func ingest(dataType, data string) IngestRequest {
	return IngestRequest{UserID: "u1", DataType: dataType, Data: json.RawMessage(data)}
}

func TestIngestionService_AcceptsEveryType(t *testing.T) {
	svc, events, users := newTestIngestion()
	ctx := context.Background()

	requests := []IngestRequest{
		ingest(DataTypeDailyLog, `{"date":"2024-02-29","mood":6,"stress":4,"coping_strategies":["walk"]}`),
		ingest(DataTypeSymptom, `{"date":"2024-02-29","type":"Gut","severity":7}`),
		ingest(DataTypeMeal, `{"ts":"2024-03-01T08:00:00Z","items":"coffee","caffeine_mg":95}`),
		ingest(DataTypeSleep, `{"start_time":"2024-02-29T23:00:00Z","end_time":"2024-03-01T07:00:00Z","sleep_score":8}`),
		ingest(DataTypeWorkout, `{"ts":"2024-03-01T06:00:00Z","type":"run","intensity":4}`),
		ingest(DataTypeVital, `{"date":"2024-02-29","steps":9000,"spo2":97.5}`),
		ingest(DataTypeJournal, `{"ts":"2024-03-01T09:00:00Z","text":"ok day","mood_context":6}`),
	}
	for _, req := range requests {
		require.NoError(t, svc.Ingest(ctx, req), req.DataType)
	}

	require.Len(t, events.dailyLogs, 1)
	assert.Equal(t, "u1", events.dailyLogs[0].UserID)
	assert.Equal(t, []string{"walk"}, events.dailyLogs[0].CopingStrategies)
	assert.Equal(t, 7, *events.symptoms[0].Severity)
	assert.Equal(t, 95, *events.meals[0].CaffeineMg)
	assert.Len(t, events.sleeps, 1)
	assert.Len(t, events.workouts, 1)
	assert.Equal(t, 9000, *events.vitals[0].Steps)
	assert.Equal(t, "u1", events.journals[0].UserID)
	assert.Len(t, users.ensured, len(requests))
}

func TestIngestionService_Rejects(t *testing.T) {
	tests := []struct {
		name string
		req  IngestRequest
	}{
		{"unknown type", ingest("steps", `{}`)},
		{"missing user", IngestRequest{DataType: DataTypeVital, Data: json.RawMessage(`{"date":"2024-02-29"}`)}},
		{"empty data", ingest(DataTypeVital, ``)},
		{"malformed json", ingest(DataTypeVital, `{"date":`)},
		{"unknown field", ingest(DataTypeVital, `{"date":"2024-02-29","pulse":60}`)},
		{"mood out of range", ingest(DataTypeDailyLog, `{"date":"2024-02-29","mood":11}`)},
		{"bad date", ingest(DataTypeDailyLog, `{"date":"29/02/2024"}`)},
		{"severity out of range", ingest(DataTypeSymptom, `{"date":"2024-02-29","type":"gut","severity":12}`)},
		{"severity missing", ingest(DataTypeSymptom, `{"date":"2024-02-29","type":"gut"}`)},
		{"intensity out of range", ingest(DataTypeWorkout, `{"ts":"2024-03-01T06:00:00Z","type":"run","intensity":6}`)},
		{"sleep ends before start", ingest(DataTypeSleep, `{"start_time":"2024-03-01T07:00:00Z","end_time":"2024-02-29T23:00:00Z"}`)},
		{"sleep score out of range", ingest(DataTypeSleep, `{"start_time":"2024-02-29T23:00:00Z","end_time":"2024-03-01T07:00:00Z","sleep_score":0.5}`)},
		{"future meal", ingest(DataTypeMeal, `{"ts":"2024-03-02T08:00:00Z","items":"cake"}`)},
		{"journal stress out of range", ingest(DataTypeJournal, `{"ts":"2024-03-01T09:00:00Z","text":"x","stress_context":0}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, events, users := newTestIngestion()
			err := svc.Ingest(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, utils.IsValidationError(err), "got %v", err)
			assert.Empty(t, users.ensured)
			assert.Empty(t, events.dailyLogs)
		})
	}
}

func TestIngestionService_StoreError(t *testing.T) {
	svc, events, _ := newTestIngestion()
	events.err = assert.AnError

	err := svc.Ingest(context.Background(), ingest(DataTypeVital, `{"date":"2024-02-29"}`))
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, utils.IsValidationError(err))
}

func TestIngestionService_EnsureUserError(t *testing.T) {
	events := &recordingEvents{}
	svc := NewIngestionService(events, &fakeUsers{err: assert.AnError}, quietLogger())

	err := svc.Ingest(context.Background(), ingest(DataTypeVital, `{"date":"2024-02-29"}`))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, events.vitals)
}
