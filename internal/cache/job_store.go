package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/irfndi/healthcast-go/internal/models"
	"github.com/redis/go-redis/v9"
)

// ErrJobNotFound is returned when no status is stored for a job id
var ErrJobNotFound = errors.New("training job not found")

// RedisJobStore keeps training job status in Redis with a TTL. Each user also
// has a pointer to their most recent job.
type RedisJobStore struct {
	client redis.Cmdable
	ttl    time.Duration
	prefix string
}

// NewRedisJobStore creates a job status store
func NewRedisJobStore(client redis.Cmdable, ttl time.Duration) *RedisJobStore {
	return &RedisJobStore{client: client, ttl: ttl, prefix: "training_job:"}
}

func (s *RedisJobStore) jobKey(id string) string {
	return s.prefix + id
}

func (s *RedisJobStore) userKey(userID string) string {
	return s.prefix + "user:" + userID
}

// Save writes the job and points the user's latest-job key at it
func (s *RedisJobStore) Save(ctx context.Context, job *models.TrainingJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("error serializing job %s: %w", job.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.jobKey(job.ID), data, s.ttl)
	pipe.Set(ctx, s.userKey(job.UserID), job.ID, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("error storing job %s: %w", job.ID, err)
	}
	return nil
}

// Get returns the job or ErrJobNotFound
func (s *RedisJobStore) Get(ctx context.Context, id string) (*models.TrainingJob, error) {
	data, err := s.client.Get(ctx, s.jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("error reading job %s: %w", id, err)
	}

	var job models.TrainingJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("error decoding job %s: %w", id, err)
	}
	return &job, nil
}

// Latest returns the user's most recent job or ErrJobNotFound
func (s *RedisJobStore) Latest(ctx context.Context, userID string) (*models.TrainingJob, error) {
	id, err := s.client.Get(ctx, s.userKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("error reading latest job for %s: %w", userID, err)
	}
	return s.Get(ctx, id)
}
