package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/irfndi/healthcast-go/internal/config"
	"github.com/irfndi/healthcast-go/internal/telemetry"
)

// RedisClient is the connection shared by the prediction cache and the job store
type RedisClient struct {
	Client *redis.Client
	tracer trace.Tracer
}

// RedisOptions maps the redis section onto client options. Pool sizing
// covers the API handlers plus the training workers writing job status.
func RedisOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  config.Duration(cfg.DialTimeout, 5*time.Second),
		ReadTimeout:  config.Duration(cfg.ReadTimeout, 3*time.Second),
		WriteTimeout: config.Duration(cfg.ReadTimeout, 3*time.Second),
	}
}

// NewRedisConnection opens the pool and pings it once before returning
func NewRedisConnection(ctx context.Context, cfg config.RedisConfig) (*RedisClient, error) {
	opts := RedisOptions(cfg)
	client := NewRedisClientWithTracer(redis.NewClient(opts), telemetry.GetTracer(tracerName))

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.HealthCheck(pingCtx); err != nil {
		_ = client.Client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"addr":      opts.Addr,
		"db":        opts.DB,
		"pool_size": opts.PoolSize,
	}).Info("Successfully connected to Redis")
	return client, nil
}

// NewRedisClientWithTracer wraps an open client with an explicit tracer
func NewRedisClientWithTracer(client *redis.Client, tracer trace.Tracer) *RedisClient {
	return &RedisClient{Client: client, tracer: tracer}
}

func (r *RedisClient) Close() {
	if r.Client != nil {
		_ = r.Client.Close()
		logrus.Info("Redis connection closed")
	}
}

// HealthCheck pings Redis inside a client span
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "redis.ping",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "redis"),
			attribute.Int("db.redis.database_index", r.Client.Options().DB),
		),
	)
	defer span.End()

	if err := r.Client.Ping(ctx).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
