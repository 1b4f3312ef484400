package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/irfndi/healthcast-go/internal/config"
)

// RetentionStore deletes rows that have aged out
type RetentionStore interface {
	DeletePredictionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteInactiveModelVersions(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupConfig defines cleanup configuration. A zero retention disables that step.
type CleanupConfig struct {
	PredictionRetentionDays    int
	InactiveModelRetentionDays int
	Interval                   time.Duration
}

// CleanupConfigFrom converts the retention settings
func CleanupConfigFrom(cfg config.RetentionConfig) CleanupConfig {
	return CleanupConfig{
		PredictionRetentionDays:    cfg.PredictionDays,
		InactiveModelRetentionDays: cfg.InactiveModelDays,
		Interval:                   config.Duration(cfg.CleanupInterval, time.Hour),
	}
}

// CleanupResult reports what one pass removed
type CleanupResult struct {
	Predictions   int64 `json:"predictions"`
	ModelVersions int64 `json:"model_versions"`
}

// CleanupService prunes old predictions and superseded model versions
type CleanupService struct {
	store  RetentionStore
	config CleanupConfig
	logger *logrus.Logger
	now    func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(store RetentionStore, cfg CleanupConfig, logger *logrus.Logger) *CleanupService {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &CleanupService{store: store, config: cfg, logger: logger, now: time.Now}
}

// Start runs a cleanup immediately and then on every interval until Stop
func (c *CleanupService) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	c.logger.WithFields(logrus.Fields{
		"prediction_retention_days": c.config.PredictionRetentionDays,
		"model_retention_days":      c.config.InactiveModelRetentionDays,
		"interval":                  c.config.Interval.String(),
	}).Info("Starting cleanup service")

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.config.Interval)
		defer ticker.Stop()
		for {
			if _, err := c.RunCleanup(ctx); err != nil && ctx.Err() == nil {
				c.logger.WithError(err).Error("Cleanup failed")
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop stops the cleanup loop and waits for an in-flight pass
func (c *CleanupService) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel = nil
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	c.logger.Info("Stopping cleanup service")
	cancel()
	<-done
}

// RunCleanup performs one cleanup pass
func (c *CleanupService) RunCleanup(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult
	now := c.now()

	if days := c.config.PredictionRetentionDays; days > 0 {
		n, err := c.store.DeletePredictionsBefore(ctx, now.AddDate(0, 0, -days))
		if err != nil {
			return result, fmt.Errorf("failed to cleanup predictions: %w", err)
		}
		result.Predictions = n
	}

	if days := c.config.InactiveModelRetentionDays; days > 0 {
		n, err := c.store.DeleteInactiveModelVersions(ctx, now.AddDate(0, 0, -days))
		if err != nil {
			return result, fmt.Errorf("failed to cleanup model versions: %w", err)
		}
		result.ModelVersions = n
	}

	if result.Predictions > 0 || result.ModelVersions > 0 {
		c.logger.WithFields(logrus.Fields{
			"predictions":    result.Predictions,
			"model_versions": result.ModelVersions,
		}).Info("Data cleanup completed")
	}
	return result, nil
}
