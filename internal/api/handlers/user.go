package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/healthcast-go/internal/models"
	"github.com/irfndi/healthcast-go/internal/services"
	"github.com/irfndi/healthcast-go/internal/utils"
)

// DefaultTrendDays is used when the trends request has no days parameter
const DefaultTrendDays = 30

// UserStore upserts user settings
type UserStore interface {
	UpsertUser(ctx context.Context, user *models.User) (*models.User, error)
}

// AnalyticsInterface defines the analytics operations the handler needs
type AnalyticsInterface interface {
	Summary(ctx context.Context, userID string) (*services.UserSummary, error)
	Trends(ctx context.Context, userID string, days int) (*services.UserTrends, error)
}

// UserHandler serves user settings and analytics
type UserHandler struct {
	users     UserStore
	analytics AnalyticsInterface
	logger    *logrus.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(users UserStore, analytics AnalyticsInterface, logger *logrus.Logger) *UserHandler {
	return &UserHandler{users: users, analytics: analytics, logger: logger}
}

// UpsertUser creates or updates a user's timezone, chat id and preferences
// @Summary Upsert user
// @Tags users
// @Accept json
// @Produce json
// @Param user body models.User true "User settings"
// @Success 200 {object} models.User
// @Router /api/v1/users [post]
func (h *UserHandler) UpsertUser(c *gin.Context) {
	var req models.User
	if !bindJSON(c, &req) {
		return
	}
	if !authorize(c, req.UserID) {
		return
	}

	user, err := h.users.UpsertUser(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// GetSummary returns data counts and active models for a user
// @Summary User summary
// @Tags analytics
// @Param user_id path string true "User ID"
// @Produce json
// @Success 200 {object} services.UserSummary
// @Router /api/v1/users/{user_id}/summary [get]
func (h *UserHandler) GetSummary(c *gin.Context) {
	userID := c.Param("user_id")

	summary, err := h.analytics.Summary(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetTrends returns recent daily logs, symptoms and predictions
// @Summary User trends
// @Tags analytics
// @Param user_id path string true "User ID"
// @Param days query int false "Number of days (default: 30)"
// @Produce json
// @Success 200 {object} services.UserTrends
// @Router /api/v1/users/{user_id}/trends [get]
func (h *UserHandler) GetTrends(c *gin.Context) {
	userID := c.Param("user_id")

	days := DefaultTrendDays
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			respondError(c, h.logger, utils.NewFieldError("days", "must be an integer"))
			return
		}
		days = parsed
	}

	trends, err := h.analytics.Trends(c.Request.Context(), userID, days)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, trends)
}
