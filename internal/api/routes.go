package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/irfndi/healthcast-go/internal/api/handlers"
	"github.com/irfndi/healthcast-go/internal/logging"
	"github.com/irfndi/healthcast-go/internal/middleware"
)

// Handlers groups every HTTP handler the router exposes
type Handlers struct {
	Health      *handlers.HealthHandler
	Users       *handlers.UserHandler
	Data        *handlers.DataHandler
	Features    *handlers.FeatureHandler
	Training    *handlers.TrainingHandler
	Predictions *handlers.PredictionHandler
	Admin       *handlers.AdminHandler
}

// Security holds the optional authentication layers. A nil Auth leaves the
// user routes open.
type Security struct {
	Auth  *middleware.AuthMiddleware
	Admin *middleware.AdminMiddleware
}

// NewRouter creates a gin engine with recovery, tracing and request logging
func NewRouter(serviceName string, logger *logging.StandardLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName, otelgin.WithFilter(func(r *http.Request) bool {
		return !isProbe(r.URL.Path)
	})))
	router.Use(middleware.TelemetryMiddleware())
	if logger != nil {
		router.Use(middleware.RequestLogger(logger))
	}
	return router
}

func isProbe(path string) bool {
	return path == "/health" || path == "/ready" || path == "/live"
}

// SetupRoutes registers the probes and the v1 API
func SetupRoutes(router *gin.Engine, h Handlers, sec Security) {
	router.GET("/health", h.Health.HealthCheck)
	router.GET("/ready", h.Health.ReadinessCheck)
	router.GET("/live", h.Health.LivenessCheck)

	v1 := router.Group("/api/v1")
	if sec.Auth != nil {
		v1.Use(sec.Auth.RequireAuth())
	}

	v1.POST("/users", h.Users.UpsertUser)
	users := v1.Group("/users/:user_id", middleware.RequireOwner("user_id"))
	{
		users.GET("/summary", h.Users.GetSummary)
		users.GET("/trends", h.Users.GetTrends)
	}

	v1.POST("/data/ingest", h.Data.Ingest)

	features := v1.Group("/features")
	{
		features.POST("/rebuild", h.Features.Rebuild)
		features.GET("/:user_id/:date", middleware.RequireOwner("user_id"), h.Features.GetDaily)
	}

	models := v1.Group("/models")
	{
		models.POST("/train", h.Training.Train)
		models.GET("/jobs/:job_id", h.Training.GetJob)
		models.GET("/:user_id/status", middleware.RequireOwner("user_id"), h.Training.Status)
	}

	predict := v1.Group("/predict")
	{
		predict.POST("/daily", h.Predictions.PredictDaily)
		predict.POST("/sequence", h.Predictions.PredictSequence)

		owned := predict.Group("/:user_id", middleware.RequireOwner("user_id"))
		owned.GET("/explain", h.Predictions.Explain)
	}

	adminMW := sec.Admin
	if adminMW == nil {
		adminMW = middleware.NewAdminMiddleware("", "")
	}
	admin := router.Group("/api/v1/admin", adminMW.RequireAdminAuth())
	{
		admin.GET("/cache/stats", h.Admin.CacheStats)
		admin.DELETE("/cache/:user_id", h.Admin.InvalidateCache)
	}
}
