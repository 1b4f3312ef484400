package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/healthcast-go/internal/ml"
	"github.com/irfndi/healthcast-go/internal/models"
)

// PredictorInterface defines the prediction engine operations the handler needs
type PredictorInterface interface {
	PredictDaily(ctx context.Context, userID string, date time.Time) (*models.PredictionSet, error)
	PredictSequence(ctx context.Context, userID string, date time.Time) (*models.PredictionSet, error)
	Explain(ctx context.Context, userID string, date time.Time) (map[models.Target][]ml.Importance, error)
}

// PredictRequest selects the user and day to score. An empty date means the
// latest materialized day.
type PredictRequest struct {
	UserID string `json:"user_id" binding:"required,max=128"`
	Date   string `json:"date"`
}

// PredictionHandler serves daily and sequence predictions
type PredictionHandler struct {
	engine PredictorInterface
	logger *logrus.Logger
}

// NewPredictionHandler creates a new prediction handler
func NewPredictionHandler(engine PredictorInterface, logger *logrus.Logger) *PredictionHandler {
	return &PredictionHandler{engine: engine, logger: logger}
}

type predictFunc func(ctx context.Context, userID string, date time.Time) (*models.PredictionSet, error)

func (h *PredictionHandler) predict(c *gin.Context, fn predictFunc) {
	var req PredictRequest
	if !bindJSON(c, &req) {
		return
	}
	if !authorize(c, req.UserID) {
		return
	}
	date, err := parseOptionalDay("date", req.Date)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	set, err := fn(c.Request.Context(), req.UserID, date)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, set)
}

// PredictDaily scores the tabular classifiers
// @Summary Daily risk prediction
// @Tags predict
// @Accept json
// @Produce json
// @Param request body PredictRequest true "Prediction request"
// @Success 200 {object} models.PredictionSet
// @Router /api/v1/predict/daily [post]
func (h *PredictionHandler) PredictDaily(c *gin.Context) {
	h.predict(c, h.engine.PredictDaily)
}

// PredictSequence scores the sequence models
// @Summary Sequence risk prediction
// @Tags predict
// @Accept json
// @Produce json
// @Param request body PredictRequest true "Prediction request"
// @Success 200 {object} models.PredictionSet
// @Router /api/v1/predict/sequence [post]
func (h *PredictionHandler) PredictSequence(c *gin.Context) {
	h.predict(c, h.engine.PredictSequence)
}

// Explain returns the top feature importances per target
// @Summary Explain predictions
// @Tags predict
// @Param user_id path string true "User ID"
// @Param date query string false "Date (YYYY-MM-DD)"
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/predict/{user_id}/explain [get]
func (h *PredictionHandler) Explain(c *gin.Context) {
	userID := c.Param("user_id")
	date, err := parseOptionalDay("date", c.Query("date"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	explanations, err := h.engine.Explain(c.Request.Context(), userID, date)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "explanations": explanations})
}
