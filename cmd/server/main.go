package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/irfndi/healthcast-go/internal/api"
	"github.com/irfndi/healthcast-go/internal/api/handlers"
	"github.com/irfndi/healthcast-go/internal/artifacts"
	"github.com/irfndi/healthcast-go/internal/cache"
	"github.com/irfndi/healthcast-go/internal/config"
	"github.com/irfndi/healthcast-go/internal/database"
	"github.com/irfndi/healthcast-go/internal/features"
	"github.com/irfndi/healthcast-go/internal/logging"
	"github.com/irfndi/healthcast-go/internal/middleware"
	"github.com/irfndi/healthcast-go/internal/services"
	"github.com/irfndi/healthcast-go/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine; the environment may already be populated
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := telemetry.InitTelemetry(ctx, cfg.Telemetry); err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	logger := logging.NewLogrusLogger(cfg.LogLevel)
	requestLogger := newRequestLogger(cfg)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = requestLogger.Shutdown(shutdownCtx)
	}()

	db, err := database.NewPostgresConnection(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	pool := database.NewTracedDB(db.Pool)
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	redisClient, err := database.NewRedisConnection(ctx, cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()

	eventRepo := database.NewEventRepository(pool)
	featureRepo := database.NewFeatureRepository(pool)
	modelRepo := database.NewModelRepository(pool)
	userRepo := database.NewUserRepository(pool)

	builder := features.NewBuilder(eventRepo, features.Options{
		RollDays: cfg.Pipeline.RollDays,
		LagDepth: cfg.Pipeline.LagDepth,
		SeqLen:   cfg.Pipeline.SeqLen,
	}, logger)
	featureStore := features.NewStore(builder, featureRepo, logger)
	featureStore.SetEventLogger(requestLogger)

	artifactStore, err := artifacts.NewStore(cfg.Artifacts.Dir)
	if err != nil {
		return fmt.Errorf("failed to open artifact store: %w", err)
	}

	trainer := services.NewTrainer(featureStore, artifactStore, modelRepo, services.TrainerConfigFrom(cfg.Training), logger)

	notifier, err := services.NewNotificationService(userRepo, cfg.Telegram.BotToken, cfg.Telegram.HighRiskThreshold, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize notifications: %w", err)
	}

	predictionCache := cache.NewRedisPredictionCache(redisClient.Client, config.Duration(cfg.Cache.PredictionTTL, time.Hour), logger)
	jobStore := cache.NewRedisJobStore(redisClient.Client, config.Duration(cfg.Training.JobTTL, 24*time.Hour))

	engine := services.NewPredictionEngine(featureStore, artifactStore, logger,
		services.WithPredictionCache(predictionCache),
		services.WithPredictionRecorder(modelRepo),
		services.WithRiskNotifier(notifier),
		services.WithRecommender(services.NewRecommender()),
		services.WithEventLogger(requestLogger),
	)

	queue := services.NewTrainingQueue(trainer, jobStore, engine, services.TrainingQueueConfigFrom(cfg.Training), logger)
	queue.SetEventLogger(requestLogger)
	queue.Start(ctx)
	defer queue.Stop()

	if cfg.Retention.Enabled {
		cleanup := services.NewCleanupService(modelRepo, services.CleanupConfigFrom(cfg.Retention), logger)
		cleanup.Start(ctx)
		defer cleanup.Stop()
	}

	ingestion := services.NewIngestionService(eventRepo, userRepo, logger)
	analytics := services.NewAnalyticsService(eventRepo, modelRepo, modelRepo)

	router := api.NewRouter(cfg.Telemetry.ServiceName, requestLogger)
	api.SetupRoutes(router, api.Handlers{
		Health:      handlers.NewHealthHandler(db, redisClient, cfg.Telemetry.ServiceVersion, nil, queue.Pending),
		Users:       handlers.NewUserHandler(userRepo, analytics, logger),
		Data:        handlers.NewDataHandler(ingestion, logger),
		Features:    handlers.NewFeatureHandler(featureStore, engine, cfg.Pipeline.HistoryDays, logger),
		Training:    handlers.NewTrainingHandler(queue, modelRepo, logger),
		Predictions: handlers.NewPredictionHandler(engine, logger),
		Admin:       handlers.NewAdminHandler(engine, predictionCache, logger),
	}, newSecurity(cfg))

	srv := newHTTPServer(cfg.Server, router)
	return serve(ctx, srv, config.Duration(cfg.Server.ShutdownTimeout, 30*time.Second), requestLogger, logger)
}

// newRequestLogger exports request logs over OTLP when telemetry is enabled
func newRequestLogger(cfg *config.Config) *logging.StandardLogger {
	if !cfg.Telemetry.Enabled {
		return logging.NewStandardLogger(cfg.LogLevel, cfg.Environment)
	}
	return logging.NewStandardOTLPLogger(logging.OTLPConfig{
		Enabled:        true,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
	})
}

// newSecurity builds the route guards. Bearer auth is only installed when enabled.
func newSecurity(cfg *config.Config) api.Security {
	sec := api.Security{
		Admin: middleware.NewAdminMiddleware(cfg.Security.AdminAPIKey, cfg.Security.AdminAPIKeyHash),
	}
	if cfg.Security.AuthEnabled {
		sec.Auth = middleware.NewAuthMiddleware(cfg.Security.JWTSecret)
	}
	return sec
}

func newHTTPServer(cfg config.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       config.Duration(cfg.ReadTimeout, 30*time.Second),
		WriteTimeout:      config.Duration(cfg.WriteTimeout, 60*time.Second),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// serve runs srv until ctx is cancelled, then drains in-flight requests
func serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration, requestLogger *logging.StandardLogger, logger *logrus.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		requestLogger.LogStartup(telemetry.ServiceName, telemetry.ServiceVersion, portOf(srv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	requestLogger.LogShutdown(telemetry.ServiceName, "signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("Server exited gracefully")
	return nil
}

func portOf(srv *http.Server) int {
	var port int
	_, _ = fmt.Sscanf(srv.Addr, ":%d", &port)
	return port
}
