package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/healthcast-go/internal/cache"
	"github.com/irfndi/healthcast-go/internal/models"
	"github.com/irfndi/healthcast-go/internal/utils"
)

// TrainingQueueInterface defines the training queue operations the handler needs
type TrainingQueueInterface interface {
	Submit(ctx context.Context, userID string, targets []models.Target) (*models.TrainingJob, bool, error)
	Job(ctx context.Context, id string) (*models.TrainingJob, error)
	LatestJob(ctx context.Context, userID string) (*models.TrainingJob, error)
}

// ModelVersionLister lists persisted model versions
type ModelVersionLister interface {
	ListModelVersions(ctx context.Context, userID string, activeOnly bool) ([]models.ModelVersion, error)
}

// TrainRequest asks for a training run. Empty targets means all targets.
type TrainRequest struct {
	UserID  string   `json:"user_id" binding:"required,max=128"`
	Targets []string `json:"targets"`
}

// ModelStatusResponse is the body of GET /models/:user_id/status
type ModelStatusResponse struct {
	UserID    string                `json:"user_id"`
	Status    string                `json:"status"`
	Models    []models.ModelVersion `json:"models"`
	LatestJob *models.TrainingJob   `json:"latest_job,omitempty"`
}

// TrainingHandler serves model training requests and status
type TrainingHandler struct {
	queue    TrainingQueueInterface
	versions ModelVersionLister
	logger   *logrus.Logger
}

// NewTrainingHandler creates a new training handler
func NewTrainingHandler(queue TrainingQueueInterface, versions ModelVersionLister, logger *logrus.Logger) *TrainingHandler {
	return &TrainingHandler{queue: queue, versions: versions, logger: logger}
}

// Train enqueues a background training job
// @Summary Train models
// @Tags models
// @Accept json
// @Produce json
// @Param request body TrainRequest true "Training request"
// @Success 202 {object} map[string]interface{}
// @Failure 503 {object} map[string]string
// @Router /api/v1/models/train [post]
func (h *TrainingHandler) Train(c *gin.Context) {
	var req TrainRequest
	if !bindJSON(c, &req) {
		return
	}
	if !authorize(c, req.UserID) {
		return
	}
	targets, err := models.ParseTargets(req.Targets)
	if err != nil {
		respondError(c, h.logger, utils.NewFieldError("targets", err.Error()))
		return
	}

	job, created, err := h.queue.Submit(c.Request.Context(), req.UserID, targets)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	message := "Model training queued"
	if !created {
		message = "Model training already in progress"
	}
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": message,
		"job_id":  job.ID,
		"job":     job,
	})
}

// Status lists active models and the latest training job for a user
// @Summary Model status
// @Tags models
// @Param user_id path string true "User ID"
// @Produce json
// @Success 200 {object} ModelStatusResponse
// @Router /api/v1/models/{user_id}/status [get]
func (h *TrainingHandler) Status(c *gin.Context) {
	userID := c.Param("user_id")
	ctx := c.Request.Context()

	versions, err := h.versions.ListModelVersions(ctx, userID, true)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	response := ModelStatusResponse{UserID: userID, Status: "no_models", Models: versions}
	if len(versions) > 0 {
		response.Status = "trained"
	}

	job, err := h.queue.LatestJob(ctx, userID)
	switch {
	case err == nil:
		response.LatestJob = job
		if job.Status == models.JobQueued || job.Status == models.JobRunning {
			response.Status = "training"
		}
	case !errors.Is(err, cache.ErrJobNotFound):
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, response)
}

// GetJob returns one training job by id
// @Summary Training job
// @Tags models
// @Param job_id path string true "Job ID"
// @Produce json
// @Success 200 {object} models.TrainingJob
// @Failure 404 {object} map[string]string
// @Router /api/v1/models/jobs/{job_id} [get]
func (h *TrainingHandler) GetJob(c *gin.Context) {
	job, err := h.queue.Job(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if !authorize(c, job.UserID) {
		return
	}
	c.JSON(http.StatusOK, job)
}
