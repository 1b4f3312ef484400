package handlers

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/irfndi/healthcast-go/internal/services"
	"github.com/irfndi/healthcast-go/internal/utils"
)

func dataRoutes(h *DataHandler, mw ...gin.HandlerFunc) func(r *gin.Engine) {
	return func(r *gin.Engine) {
		r.POST("/api/v1/data/ingest", append(mw, h.Ingest)...)
	}
}

func TestDataHandler_Ingest(t *testing.T) {
	ingester := &mockIngester{}
	ingester.On("Ingest", mock.Anything, mock.MatchedBy(func(req services.IngestRequest) bool {
		return req.UserID == "u1" && req.DataType == services.DataTypeMeal && string(req.Data) == `{"items":"toast"}`
	})).Return(nil)
	h := NewDataHandler(ingester, quietLogger())

	w := serve(dataRoutes(h), http.MethodPost, "/api/v1/data/ingest",
		`{"user_id":"u1","data_type":"meal","data":{"items":"toast"}}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "meal", decode(w)["data_type"])
	ingester.AssertExpectations(t)
}

func TestDataHandler_IngestErrors(t *testing.T) {
	ingester := &mockIngester{}
	ingester.On("Ingest", mock.Anything, mock.Anything).Return(utils.NewFieldError("severity", "must be at most 10")).Once()
	ingester.On("Ingest", mock.Anything, mock.Anything).Return(assert.AnError).Once()
	h := NewDataHandler(ingester, quietLogger())
	body := `{"user_id":"u1","data_type":"symptom","data":{"severity":11}}`

	w := serve(dataRoutes(h), http.MethodPost, "/api/v1/data/ingest", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "severity: must be at most 10", decode(w)["error"])

	w = serve(dataRoutes(h), http.MethodPost, "/api/v1/data/ingest", body)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = serve(dataRoutes(h), http.MethodPost, "/api/v1/data/ingest", `{"user_id":"u1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(dataRoutes(h, asUser("u9")), http.MethodPost, "/api/v1/data/ingest", body)
	assert.Equal(t, http.StatusForbidden, w.Code)
	ingester.AssertNumberOfCalls(t, "Ingest", 2)
}
