package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/healthcast-go/internal/services"
)

// Ingester stores one raw telemetry event
type Ingester interface {
	Ingest(ctx context.Context, req services.IngestRequest) error
}

// DataHandler serves raw event ingestion
type DataHandler struct {
	ingester Ingester
	logger   *logrus.Logger
}

// NewDataHandler creates a new data handler
func NewDataHandler(ingester Ingester, logger *logrus.Logger) *DataHandler {
	return &DataHandler{ingester: ingester, logger: logger}
}

// Ingest accepts one event of any supported data type
// @Summary Ingest health data
// @Tags data
// @Accept json
// @Produce json
// @Param request body services.IngestRequest true "Event"
// @Success 201 {object} map[string]interface{}
// @Router /api/v1/data/ingest [post]
func (h *DataHandler) Ingest(c *gin.Context) {
	var req services.IngestRequest
	if !bindJSON(c, &req) {
		return
	}
	if !authorize(c, req.UserID) {
		return
	}

	if err := h.ingester.Ingest(c.Request.Context(), req); err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success":   true,
		"user_id":   req.UserID,
		"data_type": req.DataType,
	})
}
