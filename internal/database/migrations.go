package database

import (
	"context"
	"fmt"
)

// schema is applied in order; every statement is idempotent
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		user_id          TEXT PRIMARY KEY,
		timezone         TEXT NOT NULL DEFAULT 'UTC',
		telegram_chat_id BIGINT,
		preferences      JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS daily_logs (
		id                BIGSERIAL PRIMARY KEY,
		user_id           TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		date              DATE NOT NULL,
		mood              SMALLINT CHECK (mood BETWEEN 1 AND 10),
		stress            SMALLINT CHECK (stress BETWEEN 1 AND 10),
		energy            SMALLINT CHECK (energy BETWEEN 1 AND 10),
		focus             SMALLINT CHECK (focus BETWEEN 1 AND 10),
		notes             TEXT,
		journal_entry     TEXT,
		coping_strategies TEXT[],
		created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, date)
	)`,
	`CREATE TABLE IF NOT EXISTS symptoms (
		id           BIGSERIAL PRIMARY KEY,
		user_id      TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		date         DATE NOT NULL,
		type         TEXT NOT NULL,
		severity     SMALLINT NOT NULL CHECK (severity BETWEEN 0 AND 10),
		onset_time   TEXT,
		duration_min INTEGER,
		location     TEXT,
		triggers     TEXT[],
		notes        TEXT,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_symptoms_user_date ON symptoms (user_id, date)`,
	`CREATE TABLE IF NOT EXISTS meals (
		id          BIGSERIAL PRIMARY KEY,
		user_id     TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		ts          TIMESTAMPTZ NOT NULL,
		items       TEXT NOT NULL,
		tags        TEXT[],
		calories    INTEGER,
		caffeine_mg INTEGER,
		protein_g   DOUBLE PRECISION,
		carbs_g     DOUBLE PRECISION,
		fat_g       DOUBLE PRECISION,
		fiber_g     DOUBLE PRECISION,
		sugar_g     DOUBLE PRECISION,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_meals_user_ts ON meals (user_id, ts)`,
	`CREATE TABLE IF NOT EXISTS sleep_sessions (
		id            BIGSERIAL PRIMARY KEY,
		user_id       TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		start_time    TIMESTAMPTZ NOT NULL,
		end_time      TIMESTAMPTZ NOT NULL,
		total_min     INTEGER,
		deep_min      INTEGER,
		light_min     INTEGER,
		rem_min       INTEGER,
		awake_min     INTEGER,
		awakenings    INTEGER,
		sleep_score   DOUBLE PRECISION CHECK (sleep_score BETWEEN 1 AND 10),
		sleep_factors JSONB,
		notes         TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK (end_time > start_time)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sleep_user_end ON sleep_sessions (user_id, end_time)`,
	`CREATE TABLE IF NOT EXISTS workouts (
		id              BIGSERIAL PRIMARY KEY,
		user_id         TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		ts              TIMESTAMPTZ NOT NULL,
		type            TEXT NOT NULL,
		duration_min    INTEGER,
		intensity       SMALLINT CHECK (intensity BETWEEN 1 AND 5),
		calories_burned INTEGER,
		heart_rate_avg  INTEGER,
		heart_rate_max  INTEGER,
		notes           TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_workouts_user_ts ON workouts (user_id, ts)`,
	`CREATE TABLE IF NOT EXISTS vitals (
		id              BIGSERIAL PRIMARY KEY,
		user_id         TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		date            DATE NOT NULL,
		hr_mean         DOUBLE PRECISION,
		hr_max          DOUBLE PRECISION,
		hrv_ms          DOUBLE PRECISION,
		spo2            DOUBLE PRECISION CHECK (spo2 BETWEEN 0 AND 100),
		steps           INTEGER,
		active_min      INTEGER,
		calories_burned INTEGER,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, date)
	)`,
	`CREATE TABLE IF NOT EXISTS journals (
		id             BIGSERIAL PRIMARY KEY,
		user_id        TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		ts             TIMESTAMPTZ NOT NULL,
		text           TEXT NOT NULL,
		mood_context   SMALLINT CHECK (mood_context BETWEEN 1 AND 10),
		stress_context SMALLINT CHECK (stress_context BETWEEN 1 AND 10),
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS fs_daily_user (
		user_id       TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		date          DATE NOT NULL,
		features_json JSONB NOT NULL,
		labels_json   JSONB NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, date)
	)`,
	`CREATE TABLE IF NOT EXISTS fs_seq_user (
		user_id    TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		date       DATE NOT NULL,
		seq_json   JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (user_id, date)
	)`,
	`CREATE TABLE IF NOT EXISTS model_versions (
		model_id     BIGSERIAL PRIMARY KEY,
		user_id      TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		model_type   TEXT NOT NULL,
		target       TEXT NOT NULL,
		version      TEXT NOT NULL,
		model_path   TEXT NOT NULL,
		metrics_json JSONB NOT NULL DEFAULT '{}'::jsonb,
		is_active    BOOLEAN NOT NULL DEFAULT TRUE,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_model_versions_active ON model_versions (user_id, model_type, target) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS predictions (
		prediction_id    BIGSERIAL PRIMARY KEY,
		user_id          TEXT NOT NULL REFERENCES users(user_id) ON DELETE CASCADE,
		date             DATE NOT NULL,
		model_type       TEXT NOT NULL,
		target           TEXT NOT NULL,
		prediction       DOUBLE PRECISION NOT NULL,
		confidence       DOUBLE PRECISION,
		explanation_json JSONB,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_user_date ON predictions (user_id, date)`,
}

// Migrate creates every table and index the service needs
func Migrate(ctx context.Context, pool DatabasePool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
