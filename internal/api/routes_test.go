package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irfndi/healthcast-go/internal/api/handlers"
	"github.com/irfndi/healthcast-go/internal/middleware"
)

func testRouter(sec Security) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := NewRouter("healthcast-test", nil)
	SetupRoutes(router, Handlers{
		Health:      handlers.NewHealthHandler(nil, nil, "test", nil, nil),
		Users:       handlers.NewUserHandler(nil, nil, nil),
		Data:        handlers.NewDataHandler(nil, nil),
		Features:    handlers.NewFeatureHandler(nil, nil, 30, nil),
		Training:    handlers.NewTrainingHandler(nil, nil, nil),
		Predictions: handlers.NewPredictionHandler(nil, nil),
		Admin:       handlers.NewAdminHandler(nil, nil, nil),
	}, sec)
	return router
}

func request(router http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSetupRoutes_RegistersEndpoints(t *testing.T) {
	router := testRouter(Security{})

	registered := map[string]bool{}
	for _, route := range router.Routes() {
		registered[route.Method+" "+route.Path] = true
	}
	for _, want := range []string{
		"GET /health",
		"GET /ready",
		"GET /live",
		"POST /api/v1/users",
		"GET /api/v1/users/:user_id/summary",
		"GET /api/v1/users/:user_id/trends",
		"POST /api/v1/data/ingest",
		"POST /api/v1/features/rebuild",
		"GET /api/v1/features/:user_id/:date",
		"POST /api/v1/models/train",
		"GET /api/v1/models/:user_id/status",
		"GET /api/v1/models/jobs/:job_id",
		"POST /api/v1/predict/daily",
		"POST /api/v1/predict/sequence",
		"GET /api/v1/predict/:user_id/explain",
		"GET /api/v1/admin/cache/stats",
		"DELETE /api/v1/admin/cache/:user_id",
	} {
		assert.True(t, registered[want], want)
	}
}

func TestSetupRoutes_Probes(t *testing.T) {
	router := testRouter(Security{})
	assert.Equal(t, http.StatusOK, request(router, http.MethodGet, "/live", nil).Code)
	// no database or redis configured
	assert.Equal(t, http.StatusServiceUnavailable, request(router, http.MethodGet, "/ready", nil).Code)
}

func TestSetupRoutes_AuthEnabled(t *testing.T) {
	auth := middleware.NewAuthMiddleware("route-secret")
	router := testRouter(Security{Auth: auth})

	w := request(router, http.MethodGet, "/api/v1/users/u1/summary", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := auth.GenerateToken("u1", time.Minute)
	require.NoError(t, err)
	w = request(router, http.MethodGet, "/api/v1/users/u2/trends", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusForbidden, w.Code)

	for _, path := range []string{
		"/api/v1/users/u2/summary",
		"/api/v1/features/u2/2024-03-01",
		"/api/v1/models/u2/status",
		"/api/v1/predict/u2/explain",
	} {
		w = request(router, http.MethodGet, path, map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusForbidden, w.Code, path)
	}

	// probes stay open
	assert.Equal(t, http.StatusOK, request(router, http.MethodGet, "/live", nil).Code)
}

func TestSetupRoutes_AdminRequiresKey(t *testing.T) {
	router := testRouter(Security{Admin: middleware.NewAdminMiddleware("ops-key", "")})
	assert.Equal(t, http.StatusUnauthorized, request(router, http.MethodDelete, "/api/v1/admin/cache/u1", nil).Code)

	// an unset admin layer rejects everything
	router = testRouter(Security{})
	w := request(router, http.MethodDelete, "/api/v1/admin/cache/u1", map[string]string{"X-API-Key": "anything"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSetupRoutes_AdminCacheStats(t *testing.T) {
	router := testRouter(Security{Admin: middleware.NewAdminMiddleware("ops-key", "")})
	assert.Equal(t, http.StatusUnauthorized, request(router, http.MethodGet, "/api/v1/admin/cache/stats", nil).Code)

	// no prediction cache wired
	w := request(router, http.MethodGet, "/api/v1/admin/cache/stats", map[string]string{"X-API-Key": "ops-key"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
