package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irfndi/healthcast-go/internal/features"
	"github.com/irfndi/healthcast-go/internal/models"
	"github.com/jackc/pgx/v5"
)

// EventRepository stores raw telemetry and rolls it up per calendar day.
type EventRepository struct {
	pool DatabasePool
}

// NewEventRepository creates a new event repository.
func NewEventRepository(pool DatabasePool) *EventRepository {
	return &EventRepository{pool: pool}
}

// UpsertDailyLog writes the daily self report, replacing an existing one for the same day.
func (r *EventRepository) UpsertDailyLog(ctx context.Context, log *models.DailyLog) error {
	date, err := models.ParseDay(log.Date)
	if err != nil {
		return fmt.Errorf("invalid daily log date: %w", err)
	}

	query := `
		INSERT INTO daily_logs (user_id, date, mood, stress, energy, focus, notes, journal_entry, coping_strategies)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, date) DO UPDATE SET
			mood = EXCLUDED.mood,
			stress = EXCLUDED.stress,
			energy = EXCLUDED.energy,
			focus = EXCLUDED.focus,
			notes = EXCLUDED.notes,
			journal_entry = EXCLUDED.journal_entry,
			coping_strategies = EXCLUDED.coping_strategies
	`
	_, err = r.pool.Exec(ctx, query,
		log.UserID, date, log.Mood, log.Stress, log.Energy, log.Focus,
		log.Notes, log.JournalEntry, log.CopingStrategies,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert daily log: %w", err)
	}
	return nil
}

// InsertSymptom records one symptom observation.
func (r *EventRepository) InsertSymptom(ctx context.Context, s *models.Symptom) error {
	date, err := models.ParseDay(s.Date)
	if err != nil {
		return fmt.Errorf("invalid symptom date: %w", err)
	}

	query := `
		INSERT INTO symptoms (user_id, date, type, severity, onset_time, duration_min, location, triggers, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.pool.Exec(ctx, query,
		s.UserID, date, s.Type, s.Severity, s.OnsetTime, s.DurationMin, s.Location, s.Triggers, s.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert symptom: %w", err)
	}
	return nil
}

// InsertMeal records one meal.
func (r *EventRepository) InsertMeal(ctx context.Context, m *models.Meal) error {
	query := `
		INSERT INTO meals (user_id, ts, items, tags, calories, caffeine_mg, protein_g, carbs_g, fat_g, fiber_g, sugar_g)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
		m.UserID, m.Timestamp, m.Items, m.Tags, m.Calories, m.CaffeineMg,
		m.ProteinG, m.CarbsG, m.FatG, m.FiberG, m.SugarG,
	)
	if err != nil {
		return fmt.Errorf("failed to insert meal: %w", err)
	}
	return nil
}

// InsertSleepSession records one sleep period.
func (r *EventRepository) InsertSleepSession(ctx context.Context, s *models.SleepSession) error {
	query := `
		INSERT INTO sleep_sessions (user_id, start_time, end_time, total_min, deep_min, light_min, rem_min,
			awake_min, awakenings, sleep_score, sleep_factors, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	var factors interface{}
	if len(s.SleepFactors) > 0 {
		factors = s.SleepFactors
	}
	_, err := r.pool.Exec(ctx, query,
		s.UserID, s.StartTime, s.EndTime, s.TotalMin, s.DeepMin, s.LightMin, s.RemMin,
		s.AwakeMin, s.Awakenings, s.SleepScore, factors, s.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sleep session: %w", err)
	}
	return nil
}

// InsertWorkout records one workout.
func (r *EventRepository) InsertWorkout(ctx context.Context, w *models.Workout) error {
	query := `
		INSERT INTO workouts (user_id, ts, type, duration_min, intensity, calories_burned, heart_rate_avg, heart_rate_max, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.pool.Exec(ctx, query,
		w.UserID, w.Timestamp, w.Type, w.DurationMin, w.Intensity,
		w.CaloriesBurned, w.HeartRateAvg, w.HeartRateMax, w.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workout: %w", err)
	}
	return nil
}

// UpsertVital writes the wearable summary for a day, replacing an existing one.
func (r *EventRepository) UpsertVital(ctx context.Context, v *models.Vital) error {
	date, err := models.ParseDay(v.Date)
	if err != nil {
		return fmt.Errorf("invalid vital date: %w", err)
	}

	query := `
		INSERT INTO vitals (user_id, date, hr_mean, hr_max, hrv_ms, spo2, steps, active_min, calories_burned)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, date) DO UPDATE SET
			hr_mean = EXCLUDED.hr_mean,
			hr_max = EXCLUDED.hr_max,
			hrv_ms = EXCLUDED.hrv_ms,
			spo2 = EXCLUDED.spo2,
			steps = EXCLUDED.steps,
			active_min = EXCLUDED.active_min,
			calories_burned = EXCLUDED.calories_burned
	`
	_, err = r.pool.Exec(ctx, query,
		v.UserID, date, v.HRMean, v.HRMax, v.HRVMs, v.SpO2, v.Steps, v.ActiveMin, v.CaloriesBurned,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert vital: %w", err)
	}
	return nil
}

// InsertJournal records one journal entry.
func (r *EventRepository) InsertJournal(ctx context.Context, j *models.Journal) error {
	query := `
		INSERT INTO journals (user_id, ts, text, mood_context, stress_context)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query, j.UserID, j.Timestamp, j.Text, j.MoodContext, j.StressContext)
	if err != nil {
		return fmt.Errorf("failed to insert journal: %w", err)
	}
	return nil
}

// aggregateQuery is one per-source roll-up. Every query takes user_id, the
// first day and the day after the last day, and selects the date followed by
// the value columns in order.
type aggregateQuery struct {
	source  string
	columns []string
	sql     string
}

var aggregateQueries = []aggregateQuery{
	{
		source:  features.SourceMeals,
		columns: []string{"caffeine", "meals_cnt", "avg_calories", "total_protein", "total_carbs", "total_fat", "total_fiber", "total_sugar"},
		sql: `
			SELECT (ts AT TIME ZONE 'UTC')::date AS day,
				SUM(caffeine_mg)::float8, COUNT(*)::float8, AVG(calories)::float8,
				SUM(protein_g)::float8, SUM(carbs_g)::float8, SUM(fat_g)::float8,
				SUM(fiber_g)::float8, SUM(sugar_g)::float8
			FROM meals
			WHERE user_id = $1 AND ts >= $2 AND ts < $3
			GROUP BY day
			ORDER BY day
		`,
	},
	{
		source:  features.SourceSleep,
		columns: []string{"sleep_min", "sleep_score", "deep_min", "rem_min", "avg_awakenings"},
		sql: `
			SELECT (end_time AT TIME ZONE 'UTC')::date AS day,
				SUM(total_min)::float8, AVG(sleep_score)::float8, SUM(deep_min)::float8,
				SUM(rem_min)::float8, AVG(awakenings)::float8
			FROM sleep_sessions
			WHERE user_id = $1 AND end_time >= $2 AND end_time < $3
			GROUP BY day
			ORDER BY day
		`,
	},
	{
		source:  features.SourceVitals,
		columns: []string{"hrv_ms", "steps", "hr_mean", "hr_max", "spo2", "active_min", "calories_burned"},
		sql: `
			SELECT date,
				hrv_ms::float8, steps::float8, hr_mean::float8, hr_max::float8,
				spo2::float8, active_min::float8, calories_burned::float8
			FROM vitals
			WHERE user_id = $1 AND date >= $2 AND date < $3
			ORDER BY date
		`,
	},
	{
		source:  features.SourceDailyLogs,
		columns: []string{"mood", "stress", "energy", "focus"},
		sql: `
			SELECT date, mood::float8, stress::float8, energy::float8, focus::float8
			FROM daily_logs
			WHERE user_id = $1 AND date >= $2 AND date < $3
			ORDER BY date
		`,
	},
	{
		source:  features.SourceWorkouts,
		columns: []string{"workout_count", "total_workout_min", "avg_intensity", "workout_calories"},
		sql: `
			SELECT (ts AT TIME ZONE 'UTC')::date AS day,
				COUNT(*)::float8, SUM(duration_min)::float8, AVG(intensity)::float8,
				SUM(calories_burned)::float8
			FROM workouts
			WHERE user_id = $1 AND ts >= $2 AND ts < $3
			GROUP BY day
			ORDER BY day
		`,
	},
}

// LoadDailyAggregates rolls every raw table up to per-day columns for
// [start, end]. NULL aggregates are left out so the caller zero-fills them.
func (r *EventRepository) LoadDailyAggregates(ctx context.Context, userID string, start, end time.Time) ([]models.DailyAggregate, error) {
	from := models.Day(start)
	until := models.Day(end).AddDate(0, 0, 1)

	var out []models.DailyAggregate
	for _, q := range aggregateQueries {
		aggs, err := r.queryAggregates(ctx, q, userID, from, until)
		if err != nil {
			return nil, err
		}
		out = append(out, aggs...)
	}

	symptoms, err := r.querySymptomAggregates(ctx, userID, from, until)
	if err != nil {
		return nil, err
	}
	return append(out, symptoms...), nil
}

func (r *EventRepository) queryAggregates(ctx context.Context, q aggregateQuery, userID string, from, until time.Time) ([]models.DailyAggregate, error) {
	rows, err := r.pool.Query(ctx, q.sql, userID, from, until)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s: %w", q.source, err)
	}
	defer rows.Close()

	var out []models.DailyAggregate
	for rows.Next() {
		var date time.Time
		values := make([]*float64, len(q.columns))
		dest := make([]interface{}, 0, len(q.columns)+1)
		dest = append(dest, &date)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan %s aggregate: %w", q.source, err)
		}

		agg := models.DailyAggregate{
			Source: q.source,
			Date:   models.Day(date),
			Values: make(map[string]float64, len(q.columns)),
		}
		for i, v := range values {
			if v != nil {
				agg.Values[q.columns[i]] = *v
			}
		}
		out = append(out, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s aggregates: %w", q.source, err)
	}
	return out, nil
}

// querySymptomAggregates pivots symptoms to one column per type holding the
// day's maximum severity.
func (r *EventRepository) querySymptomAggregates(ctx context.Context, userID string, from, until time.Time) ([]models.DailyAggregate, error) {
	query := `
		SELECT date, type, MAX(severity)::float8
		FROM symptoms
		WHERE user_id = $1 AND date >= $2 AND date < $3
		GROUP BY date, type
		ORDER BY date, type
	`
	rows, err := r.pool.Query(ctx, query, userID, from, until)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate symptoms: %w", err)
	}
	defer rows.Close()

	byDay := make(map[string]*models.DailyAggregate)
	var order []string
	for rows.Next() {
		var (
			date     time.Time
			kind     string
			severity float64
		)
		if err := rows.Scan(&date, &kind, &severity); err != nil {
			return nil, fmt.Errorf("failed to scan symptom aggregate: %w", err)
		}

		key := models.FormatDay(date)
		agg, ok := byDay[key]
		if !ok {
			agg = &models.DailyAggregate{
				Source: features.SourceSymptoms,
				Date:   models.Day(date),
				Values: make(map[string]float64),
			}
			byDay[key] = agg
			order = append(order, key)
		}
		// distinct types can normalize to the same column
		col := features.SymptomColumn(kind)
		if prev, seen := agg.Values[col]; !seen || severity > prev {
			agg.Values[col] = severity
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate symptom aggregates: %w", err)
	}

	out := make([]models.DailyAggregate, 0, len(order))
	for _, key := range order {
		out = append(out, *byDay[key])
	}
	return out, nil
}

// CountData returns the number of raw rows per table for a user.
func (r *EventRepository) CountData(ctx context.Context, userID string) (*models.DataCounts, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM daily_logs WHERE user_id = $1),
			(SELECT COUNT(*) FROM symptoms WHERE user_id = $1),
			(SELECT COUNT(*) FROM meals WHERE user_id = $1),
			(SELECT COUNT(*) FROM sleep_sessions WHERE user_id = $1),
			(SELECT COUNT(*) FROM workouts WHERE user_id = $1),
			(SELECT COUNT(*) FROM vitals WHERE user_id = $1),
			(SELECT COUNT(*) FROM journals WHERE user_id = $1)
	`
	var counts models.DataCounts
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&counts.DailyLogs,
		&counts.Symptoms,
		&counts.Meals,
		&counts.SleepSessions,
		&counts.Workouts,
		&counts.Vitals,
		&counts.Journals,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count user data: %w", err)
	}
	return &counts, nil
}

// RecentDailyLogs returns daily logs on or after since, newest first.
func (r *EventRepository) RecentDailyLogs(ctx context.Context, userID string, since time.Time) ([]models.DailyLogPoint, error) {
	query := `
		SELECT date, mood, stress, energy, focus
		FROM daily_logs
		WHERE user_id = $1 AND date >= $2
		ORDER BY date DESC
	`
	rows, err := r.pool.Query(ctx, query, userID, models.Day(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query daily logs: %w", err)
	}
	defer rows.Close()

	points := make([]models.DailyLogPoint, 0)
	for rows.Next() {
		var (
			date                        time.Time
			mood, stress, energy, focus *int32
		)
		if err := rows.Scan(&date, &mood, &stress, &energy, &focus); err != nil {
			return nil, fmt.Errorf("failed to scan daily log: %w", err)
		}
		points = append(points, models.DailyLogPoint{
			Date:   models.FormatDay(date),
			Mood:   intFrom(mood),
			Stress: intFrom(stress),
			Energy: intFrom(energy),
			Focus:  intFrom(focus),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate daily logs: %w", err)
	}
	return points, nil
}

// RecentSymptoms returns symptoms on or after since, newest first.
func (r *EventRepository) RecentSymptoms(ctx context.Context, userID string, since time.Time) ([]models.SymptomPoint, error) {
	query := `
		SELECT date, type, severity
		FROM symptoms
		WHERE user_id = $1 AND date >= $2
		ORDER BY date DESC, type
	`
	rows, err := r.pool.Query(ctx, query, userID, models.Day(since))
	if err != nil {
		return nil, fmt.Errorf("failed to query symptoms: %w", err)
	}
	defer rows.Close()

	points := make([]models.SymptomPoint, 0)
	for rows.Next() {
		var (
			date     time.Time
			kind     string
			severity int32
		)
		if err := rows.Scan(&date, &kind, &severity); err != nil {
			return nil, fmt.Errorf("failed to scan symptom: %w", err)
		}
		points = append(points, models.SymptomPoint{
			Date:     models.FormatDay(date),
			Type:     kind,
			Severity: int(severity),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate symptoms: %w", err)
	}
	return points, nil
}

// EarliestActivity returns the first day the user has any dated telemetry,
// or the zero time when there is none.
func (r *EventRepository) EarliestActivity(ctx context.Context, userID string) (time.Time, error) {
	query := `
		SELECT MIN(d) FROM (
			SELECT MIN(date) AS d FROM daily_logs WHERE user_id = $1
			UNION ALL SELECT MIN(date) FROM symptoms WHERE user_id = $1
			UNION ALL SELECT MIN(date) FROM vitals WHERE user_id = $1
			UNION ALL SELECT MIN((ts AT TIME ZONE 'UTC')::date) FROM meals WHERE user_id = $1
			UNION ALL SELECT MIN((ts AT TIME ZONE 'UTC')::date) FROM workouts WHERE user_id = $1
			UNION ALL SELECT MIN((end_time AT TIME ZONE 'UTC')::date) FROM sleep_sessions WHERE user_id = $1
		) firsts
	`
	var first *time.Time
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&first); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("failed to find earliest activity: %w", err)
	}
	if first == nil {
		return time.Time{}, nil
	}
	return models.Day(*first), nil
}

func intFrom(v *int32) *int {
	if v == nil {
		return nil
	}
	out := int(*v)
	return &out
}
