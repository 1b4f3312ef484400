package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/irfndi/healthcast-go/internal/ml"
	"github.com/irfndi/healthcast-go/internal/models"
)

func predictRoutes(h *PredictionHandler) func(r *gin.Engine) {
	return func(r *gin.Engine) {
		r.POST("/api/v1/predict/daily", h.PredictDaily)
		r.POST("/api/v1/predict/sequence", h.PredictSequence)
		r.GET("/api/v1/predict/:user_id/explain", h.Explain)
	}
}

func TestPredictionHandler_Daily(t *testing.T) {
	engine := &mockPredictor{}
	engine.On("PredictDaily", mock.Anything, "u1", day("2024-03-05")).Return(&models.PredictionSet{
		UserID:      "u1",
		Date:        "2024-03-05",
		Kind:        models.KindTabular,
		Predictions: map[models.Target]float64{models.TargetGut: 0.81},
	}, nil)
	engine.On("PredictDaily", mock.Anything, "u1", time.Time{}).Return(&models.PredictionSet{UserID: "u1"}, nil)
	h := NewPredictionHandler(engine, quietLogger())

	w := serve(predictRoutes(h), http.MethodPost, "/api/v1/predict/daily", `{"user_id":"u1","date":"2024-03-05"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(w)
	assert.Equal(t, 0.81, body["predictions"].(map[string]interface{})["gut"])
	assert.Equal(t, "classifier", body["model_type"])

	// no date scores the latest materialized day
	w = serve(predictRoutes(h), http.MethodPost, "/api/v1/predict/daily", `{"user_id":"u1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	engine.AssertExpectations(t)
}

func TestPredictionHandler_Sequence(t *testing.T) {
	engine := &mockPredictor{}
	engine.On("PredictSequence", mock.Anything, "u1", day("2024-03-05")).Return(&models.PredictionSet{
		UserID:      "u1",
		Kind:        models.KindSequence,
		Predictions: map[models.Target]float64{models.TargetStress: 0.4},
	}, nil)
	h := NewPredictionHandler(engine, quietLogger())

	w := serve(predictRoutes(h), http.MethodPost, "/api/v1/predict/sequence", `{"user_id":"u1","date":"2024-03-05"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "sequence", decode(w)["model_type"])
}

func TestPredictionHandler_Errors(t *testing.T) {
	engine := &mockPredictor{}
	engine.On("PredictDaily", mock.Anything, "u1", mock.Anything).Return(nil, assert.AnError)
	h := NewPredictionHandler(engine, quietLogger())

	w := serve(predictRoutes(h), http.MethodPost, "/api/v1/predict/daily", `{"user_id":"u1","date":"tomorrow"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(predictRoutes(h), http.MethodPost, "/api/v1/predict/daily", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(predictRoutes(h), http.MethodPost, "/api/v1/predict/daily", `{"user_id":"u1"}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPredictionHandler_Explain(t *testing.T) {
	engine := &mockPredictor{}
	engine.On("Explain", mock.Anything, "u1", time.Time{}).Return(map[models.Target][]ml.Importance{
		models.TargetGut: {{Feature: "caffeine_mg", Value: 0.3}},
	}, nil)
	h := NewPredictionHandler(engine, quietLogger())

	w := serve(predictRoutes(h), http.MethodGet, "/api/v1/predict/u1/explain", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	gut := decode(w)["explanations"].(map[string]interface{})["gut"].([]interface{})
	assert.Equal(t, "caffeine_mg", gut[0].(map[string]interface{})["feature"])
}
