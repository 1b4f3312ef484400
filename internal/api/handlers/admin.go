package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/healthcast-go/internal/cache"
)

// CacheInvalidator drops cached artifacts and predictions for a user
type CacheInvalidator interface {
	Invalidate(ctx context.Context, userID string) (int, error)
}

// CacheStatsProvider reports prediction cache counters
type CacheStatsProvider interface {
	GetStats() cache.PredictionCacheStats
}

// AdminHandler serves operator-only endpoints
type AdminHandler struct {
	invalidator CacheInvalidator
	stats       CacheStatsProvider
	logger      *logrus.Logger
}

// NewAdminHandler creates a new admin handler. stats may be nil when the
// prediction cache is disabled.
func NewAdminHandler(invalidator CacheInvalidator, stats CacheStatsProvider, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{invalidator: invalidator, stats: stats, logger: logger}
}

// CacheStats returns the prediction cache hit and miss counters
// @Summary Prediction cache statistics
// @Tags admin
// @Produce json
// @Success 200 {object} cache.PredictionCacheStats
// @Failure 503 {object} map[string]string
// @Router /api/v1/admin/cache/stats [get]
func (h *AdminHandler) CacheStats(c *gin.Context) {
	if h.stats == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Prediction cache is disabled"})
		return
	}
	stats := h.stats.GetStats()
	lookups := stats.Hits + stats.Misses
	hitRate := 0.0
	if lookups > 0 {
		hitRate = float64(stats.Hits) / float64(lookups)
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "hit_rate": hitRate})
}

// InvalidateCache drops every cached model and prediction of a user
// @Summary Invalidate user cache
// @Tags admin
// @Param user_id path string true "User ID"
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/admin/cache/{user_id} [delete]
func (h *AdminHandler) InvalidateCache(c *gin.Context) {
	userID := c.Param("user_id")
	removed, err := h.invalidator.Invalidate(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if h.logger != nil {
		h.logger.WithFields(logrus.Fields{"user_id": userID, "removed": removed}).Info("Cache invalidated by admin")
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user_id": userID, "removed": removed})
}
