package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/irfndi/healthcast-go/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// PredictionCacheEntry is the cached form of a prediction set
type PredictionCacheEntry struct {
	Set       *models.PredictionSet `json:"set"`
	CachedAt  time.Time             `json:"cached_at"`
	ExpiresAt time.Time             `json:"expires_at"`
}

// PredictionCacheStats tracks cache performance metrics
type PredictionCacheStats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Sets          int64 `json:"sets"`
	Invalidations int64 `json:"invalidations"`
}

// RedisPredictionCache caches served prediction sets per user, kind and day
type RedisPredictionCache struct {
	redis  redis.Cmdable
	ttl    time.Duration
	prefix string
	logger *logrus.Logger

	mu    sync.RWMutex
	stats PredictionCacheStats
}

// NewRedisPredictionCache creates a new Redis-based prediction cache
func NewRedisPredictionCache(client redis.Cmdable, ttl time.Duration, logger *logrus.Logger) *RedisPredictionCache {
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisPredictionCache{
		redis:  client,
		ttl:    ttl,
		prefix: "prediction:",
		logger: logger,
	}
}

func (c *RedisPredictionCache) key(userID string, kind models.ArtifactKind, date string) string {
	return fmt.Sprintf("%s%s:%s:%s", c.prefix, userID, kind, date)
}

func (c *RedisPredictionCache) userPattern(userID string) string {
	return fmt.Sprintf("%s%s:*", c.prefix, userID)
}

// Get returns the cached set for the day, if any
func (c *RedisPredictionCache) Get(ctx context.Context, userID string, kind models.ArtifactKind, date string) (*models.PredictionSet, bool) {
	data, err := c.redis.Get(ctx, c.key(userID, kind, date)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("user_id", userID).Warn("Redis error reading prediction cache")
		}
		c.record(func(s *PredictionCacheStats) { s.Misses++ })
		return nil, false
	}

	var entry PredictionCacheEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil || entry.Set == nil {
		c.logger.WithField("user_id", userID).Warn("Discarding undecodable prediction cache entry")
		c.record(func(s *PredictionCacheStats) { s.Misses++ })
		return nil, false
	}

	c.record(func(s *PredictionCacheStats) { s.Hits++ })
	return entry.Set, true
}

// Set stores a prediction set with the configured TTL
func (c *RedisPredictionCache) Set(ctx context.Context, set *models.PredictionSet) error {
	if set == nil {
		return nil
	}
	now := time.Now()
	data, err := json.Marshal(PredictionCacheEntry{
		Set:       set,
		CachedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	})
	if err != nil {
		return fmt.Errorf("error serializing predictions: %w", err)
	}

	if err := c.redis.Set(ctx, c.key(set.UserID, set.Kind, set.Date), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("error caching predictions: %w", err)
	}
	c.record(func(s *PredictionCacheStats) { s.Sets++ })
	return nil
}

// InvalidateUser removes every cached prediction for the user and returns how
// many keys were dropped
func (c *RedisPredictionCache) InvalidateUser(ctx context.Context, userID string) (int, error) {
	var keys []string
	iter := c.redis.Scan(ctx, 0, c.userPattern(userID), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("error scanning cache keys: %w", err)
	}
	if len(keys) == 0 {
		return 0, nil
	}

	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		return 0, fmt.Errorf("error clearing cache: %w", err)
	}
	c.record(func(s *PredictionCacheStats) { s.Invalidations++ })

	c.logger.WithFields(logrus.Fields{"user_id": userID, "keys": len(keys)}).Info("Invalidated prediction cache")
	return len(keys), nil
}

// GetStats returns current cache statistics
func (c *RedisPredictionCache) GetStats() PredictionCacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *RedisPredictionCache) record(update func(*PredictionCacheStats)) {
	c.mu.Lock()
	update(&c.stats)
	c.mu.Unlock()
}
