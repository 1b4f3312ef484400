package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/irfndi/healthcast-go/internal/models"
	"github.com/jackc/pgx/v5"
)

// ErrUserNotFound is returned when a user row does not exist
var ErrUserNotFound = errors.New("user not found")

// UserRepository handles database operations for users.
type UserRepository struct {
	pool DatabasePool
}

// NewUserRepository creates a new user repository.
func NewUserRepository(pool DatabasePool) *UserRepository {
	return &UserRepository{pool: pool}
}

// UpsertUser creates the user or updates timezone, chat id and preferences.
func (r *UserRepository) UpsertUser(ctx context.Context, user *models.User) (*models.User, error) {
	timezone := user.Timezone
	if timezone == "" {
		timezone = "UTC"
	}
	prefs := user.Preferences
	if len(prefs) == 0 {
		prefs = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO users (user_id, timezone, telegram_chat_id, preferences)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			timezone = EXCLUDED.timezone,
			telegram_chat_id = EXCLUDED.telegram_chat_id,
			preferences = EXCLUDED.preferences,
			updated_at = NOW()
		RETURNING user_id, timezone, telegram_chat_id, preferences, created_at
	`

	var out models.User
	var rawPrefs []byte
	err := r.pool.QueryRow(ctx, query, user.UserID, timezone, user.TelegramChatID, string(prefs)).Scan(
		&out.UserID,
		&out.Timezone,
		&out.TelegramChatID,
		&rawPrefs,
		&out.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	out.Preferences = rawPrefs
	return &out, nil
}

// EnsureUser inserts a bare user row if it does not exist yet.
func (r *UserRepository) EnsureUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO users (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

// GetUser returns the user or ErrUserNotFound.
func (r *UserRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	query := `
		SELECT user_id, timezone, telegram_chat_id, preferences, created_at
		FROM users
		WHERE user_id = $1
	`

	var out models.User
	var rawPrefs []byte
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&out.UserID,
		&out.Timezone,
		&out.TelegramChatID,
		&rawPrefs,
		&out.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	out.Preferences = rawPrefs
	return &out, nil
}
