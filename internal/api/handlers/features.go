package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/healthcast-go/internal/features"
	"github.com/irfndi/healthcast-go/internal/models"
	"github.com/irfndi/healthcast-go/internal/utils"
)

// FeatureStoreInterface defines the feature store operations the handler needs
type FeatureStoreInterface interface {
	Rebuild(ctx context.Context, userID string, start, end time.Time) (*features.RebuildResult, error)
	GetDaily(ctx context.Context, userID string, date time.Time) (*models.DailyFeatureRow, error)
}

// PredictionInvalidator drops cached predictions scored from stale features
type PredictionInvalidator interface {
	InvalidatePredictions(ctx context.Context, userID string) (int, error)
}

// RebuildRequest selects the date range to materialize. Missing dates default
// to the configured history ending today.
type RebuildRequest struct {
	UserID    string `json:"user_id" binding:"required,max=128"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

// FeatureHandler serves feature rebuilds and lookups
type FeatureHandler struct {
	store       FeatureStoreInterface
	predictions PredictionInvalidator
	historyDays int
	logger      *logrus.Logger
	now         func() time.Time
}

// NewFeatureHandler creates a new feature handler. predictions may be nil.
func NewFeatureHandler(store FeatureStoreInterface, predictions PredictionInvalidator, historyDays int, logger *logrus.Logger) *FeatureHandler {
	if historyDays < 1 {
		historyDays = 90
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &FeatureHandler{store: store, predictions: predictions, historyDays: historyDays, logger: logger, now: time.Now}
}

// Rebuild materializes daily features and sequence windows for a user
// @Summary Rebuild features
// @Tags features
// @Accept json
// @Produce json
// @Param request body RebuildRequest true "Range"
// @Success 200 {object} features.RebuildResult
// @Router /api/v1/features/rebuild [post]
func (h *FeatureHandler) Rebuild(c *gin.Context) {
	var req RebuildRequest
	if !bindJSON(c, &req) {
		return
	}
	if !authorize(c, req.UserID) {
		return
	}

	start, err := parseOptionalDay("start_date", req.StartDate)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	end, err := parseOptionalDay("end_date", req.EndDate)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if end.IsZero() {
		end = models.Day(h.now())
	}
	if start.IsZero() {
		start = end.AddDate(0, 0, -(h.historyDays - 1))
	}

	ctx := c.Request.Context()
	result, err := h.store.Rebuild(ctx, req.UserID, start, end)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	// Rebuilt rows replace the inputs of any cached prediction for this user
	if h.predictions != nil {
		if _, err := h.predictions.InvalidatePredictions(ctx, req.UserID); err != nil {
			h.logger.WithError(err).WithField("user_id", req.UserID).Warn("Failed to invalidate cached predictions after rebuild")
		}
	}
	c.JSON(http.StatusOK, result)
}

// GetDaily returns the materialized features and labels for one day
// @Summary Get daily features
// @Tags features
// @Param user_id path string true "User ID"
// @Param date path string true "Date (YYYY-MM-DD)"
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]string
// @Router /api/v1/features/{user_id}/{date} [get]
func (h *FeatureHandler) GetDaily(c *gin.Context) {
	userID := c.Param("user_id")
	date, err := models.ParseDay(c.Param("date"))
	if err != nil {
		respondError(c, h.logger, utils.NewFieldError("date", "must be a date in YYYY-MM-DD format"))
		return
	}

	row, err := h.store.GetDaily(c.Request.Context(), userID, date)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if row == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Features not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":  userID,
		"date":     models.FormatDay(row.Date),
		"features": row.Features,
		"labels":   row.Labels,
	})
}
