package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/healthcast-go/internal/artifacts"
	"github.com/irfndi/healthcast-go/internal/cache"
	"github.com/irfndi/healthcast-go/internal/database"
	"github.com/irfndi/healthcast-go/internal/features"
	"github.com/irfndi/healthcast-go/internal/middleware"
	"github.com/irfndi/healthcast-go/internal/models"
	"github.com/irfndi/healthcast-go/internal/services"
	"github.com/irfndi/healthcast-go/internal/utils"
)

// respondError maps domain errors onto HTTP status codes. Unexpected errors
// are logged and reported as 500 without their details.
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	status := http.StatusInternalServerError
	message := "Internal server error"

	switch {
	case utils.IsValidationError(err), errors.Is(err, features.ErrInvalidDateRange):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, database.ErrUserNotFound), errors.Is(err, cache.ErrJobNotFound),
		errors.Is(err, artifacts.ErrArtifactNotFound):
		status, message = http.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrQueueFull), errors.Is(err, services.ErrQueueStopped):
		status, message = http.StatusServiceUnavailable, err.Error()
	}

	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		middleware.RecordError(c, err, "request failed")
		if logger != nil {
			logger.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		}
	}
	c.JSON(status, gin.H{"error": message})
}

// bindJSON decodes the body and reports binding failures as 400
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return false
	}
	return true
}

// authorize aborts with 403 when the caller may not act on userID
func authorize(c *gin.Context, userID string) bool {
	if middleware.CanAccessUser(c, userID) {
		return true
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "Access to this user is not allowed"})
	return false
}

// parseOptionalDay parses YYYY-MM-DD; empty input yields the zero time, meaning latest
func parseOptionalDay(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	day, err := models.ParseDay(value)
	if err != nil {
		return time.Time{}, utils.NewFieldError(field, "must be a date in YYYY-MM-DD format")
	}
	return day, nil
}
