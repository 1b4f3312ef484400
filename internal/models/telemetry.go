package models

import (
	"encoding/json"
	"time"
)

// DateLayout is the calendar-day format used on the wire and in the store
const DateLayout = "2006-01-02"

// User represents a tracked person
type User struct {
	UserID         string          `json:"user_id" db:"user_id" binding:"required,max=128"`
	Timezone       string          `json:"timezone" db:"timezone"`
	TelegramChatID *int64          `json:"telegram_chat_id,omitempty" db:"telegram_chat_id"`
	Preferences    json.RawMessage `json:"preferences,omitempty" db:"preferences"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// DailyLog is the once-per-day self report. Upserted on (user_id, date).
type DailyLog struct {
	UserID           string   `json:"user_id" db:"user_id"`
	Date             string   `json:"date" db:"date" binding:"required,datetime=2006-01-02"`
	Mood             *int     `json:"mood,omitempty" db:"mood" binding:"omitempty,min=1,max=10"`
	Stress           *int     `json:"stress,omitempty" db:"stress" binding:"omitempty,min=1,max=10"`
	Energy           *int     `json:"energy,omitempty" db:"energy" binding:"omitempty,min=1,max=10"`
	Focus            *int     `json:"focus,omitempty" db:"focus" binding:"omitempty,min=1,max=10"`
	Notes            string   `json:"notes,omitempty" db:"notes"`
	JournalEntry     string   `json:"journal_entry,omitempty" db:"journal_entry"`
	CopingStrategies []string `json:"coping_strategies,omitempty" db:"coping_strategies"`
}

// Symptom is a single symptom observation
type Symptom struct {
	UserID      string   `json:"user_id" db:"user_id"`
	Date        string   `json:"date" db:"date" binding:"required,datetime=2006-01-02"`
	Type        string   `json:"type" db:"type" binding:"required,max=64"`
	Severity    *int     `json:"severity" db:"severity" binding:"required,min=0,max=10"`
	OnsetTime   string   `json:"onset_time,omitempty" db:"onset_time" binding:"omitempty,datetime=15:04"`
	DurationMin *int     `json:"duration_min,omitempty" db:"duration_min" binding:"omitempty,min=0"`
	Location    string   `json:"location,omitempty" db:"location"`
	Triggers    []string `json:"triggers,omitempty" db:"triggers"`
	Notes       string   `json:"notes,omitempty" db:"notes"`
}

// Meal is one logged meal with optional macro breakdown
type Meal struct {
	UserID     string    `json:"user_id" db:"user_id"`
	Timestamp  time.Time `json:"ts" db:"ts" binding:"required"`
	Items      string    `json:"items" db:"items" binding:"required"`
	Tags       []string  `json:"tags,omitempty" db:"tags"`
	Calories   *int      `json:"calories,omitempty" db:"calories" binding:"omitempty,min=0"`
	CaffeineMg *int      `json:"caffeine_mg,omitempty" db:"caffeine_mg" binding:"omitempty,min=0"`
	ProteinG   *float64  `json:"protein_g,omitempty" db:"protein_g" binding:"omitempty,min=0"`
	CarbsG     *float64  `json:"carbs_g,omitempty" db:"carbs_g" binding:"omitempty,min=0"`
	FatG       *float64  `json:"fat_g,omitempty" db:"fat_g" binding:"omitempty,min=0"`
	FiberG     *float64  `json:"fiber_g,omitempty" db:"fiber_g" binding:"omitempty,min=0"`
	SugarG     *float64  `json:"sugar_g,omitempty" db:"sugar_g" binding:"omitempty,min=0"`
}

// SleepSession is one sleep period; it is attributed to the day it ends on
type SleepSession struct {
	UserID       string          `json:"user_id" db:"user_id"`
	StartTime    time.Time       `json:"start_time" db:"start_time" binding:"required"`
	EndTime      time.Time       `json:"end_time" db:"end_time" binding:"required,gtfield=StartTime"`
	TotalMin     *int            `json:"total_min,omitempty" db:"total_min" binding:"omitempty,min=0"`
	DeepMin      *int            `json:"deep_min,omitempty" db:"deep_min" binding:"omitempty,min=0"`
	LightMin     *int            `json:"light_min,omitempty" db:"light_min" binding:"omitempty,min=0"`
	RemMin       *int            `json:"rem_min,omitempty" db:"rem_min" binding:"omitempty,min=0"`
	AwakeMin     *int            `json:"awake_min,omitempty" db:"awake_min" binding:"omitempty,min=0"`
	Awakenings   *int            `json:"awakenings,omitempty" db:"awakenings" binding:"omitempty,min=0"`
	SleepScore   *float64        `json:"sleep_score,omitempty" db:"sleep_score" binding:"omitempty,min=1,max=10"`
	SleepFactors map[string]bool `json:"sleep_factors,omitempty" db:"sleep_factors"`
	Notes        string          `json:"notes,omitempty" db:"notes"`
}

// Workout is one exercise session
type Workout struct {
	UserID         string    `json:"user_id" db:"user_id"`
	Timestamp      time.Time `json:"ts" db:"ts" binding:"required"`
	Type           string    `json:"type" db:"type" binding:"required,max=64"`
	DurationMin    *int      `json:"duration_min,omitempty" db:"duration_min" binding:"omitempty,min=0"`
	Intensity      *int      `json:"intensity,omitempty" db:"intensity" binding:"omitempty,min=1,max=5"`
	CaloriesBurned *int      `json:"calories_burned,omitempty" db:"calories_burned" binding:"omitempty,min=0"`
	HeartRateAvg   *int      `json:"heart_rate_avg,omitempty" db:"heart_rate_avg" binding:"omitempty,min=0"`
	HeartRateMax   *int      `json:"heart_rate_max,omitempty" db:"heart_rate_max" binding:"omitempty,min=0"`
	Notes          string    `json:"notes,omitempty" db:"notes"`
}

// Vital holds wearable summaries for one day
type Vital struct {
	UserID         string   `json:"user_id" db:"user_id"`
	Date           string   `json:"date" db:"date" binding:"required,datetime=2006-01-02"`
	HRMean         *float64 `json:"hr_mean,omitempty" db:"hr_mean" binding:"omitempty,min=0"`
	HRMax          *float64 `json:"hr_max,omitempty" db:"hr_max" binding:"omitempty,min=0"`
	HRVMs          *float64 `json:"hrv_ms,omitempty" db:"hrv_ms" binding:"omitempty,min=0"`
	SpO2           *float64 `json:"spo2,omitempty" db:"spo2" binding:"omitempty,min=0,max=100"`
	Steps          *int     `json:"steps,omitempty" db:"steps" binding:"omitempty,min=0"`
	ActiveMin      *int     `json:"active_min,omitempty" db:"active_min" binding:"omitempty,min=0"`
	CaloriesBurned *int     `json:"calories_burned,omitempty" db:"calories_burned" binding:"omitempty,min=0"`
}

// Journal is a free-text entry
type Journal struct {
	UserID        string    `json:"user_id" db:"user_id"`
	Timestamp     time.Time `json:"ts" db:"ts" binding:"required"`
	Text          string    `json:"text" db:"text" binding:"required"`
	MoodContext   *int      `json:"mood_context,omitempty" db:"mood_context" binding:"omitempty,min=1,max=10"`
	StressContext *int      `json:"stress_context,omitempty" db:"stress_context" binding:"omitempty,min=1,max=10"`
}

// DailyAggregate is one source's per-day aggregate columns, e.g. the meals
// table rolled up to caffeine, meals_cnt, avg_calories for a calendar day.
type DailyAggregate struct {
	Source string             `json:"source"`
	Date   time.Time          `json:"date"`
	Values map[string]float64 `json:"values"`
}

// DataCounts summarises how much raw telemetry a user has
type DataCounts struct {
	DailyLogs     int64 `json:"daily_logs"`
	Symptoms      int64 `json:"symptoms"`
	Meals         int64 `json:"meals"`
	SleepSessions int64 `json:"sleep_sessions"`
	Workouts      int64 `json:"workouts"`
	Vitals        int64 `json:"vitals"`
	Journals      int64 `json:"journals"`
}

// SymptomPoint is a symptom row returned by trend queries
type SymptomPoint struct {
	Date     string `json:"date"`
	Type     string `json:"type"`
	Severity int    `json:"severity"`
}

// DailyLogPoint is a daily log row returned by trend queries
type DailyLogPoint struct {
	Date   string `json:"date"`
	Mood   *int   `json:"mood"`
	Stress *int   `json:"stress"`
	Energy *int   `json:"energy"`
	Focus  *int   `json:"focus"`
}
