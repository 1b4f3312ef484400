package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	LogLevel    string          `mapstructure:"log_level"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Redis       RedisConfig     `mapstructure:"redis"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry"`
	Pipeline    PipelineConfig  `mapstructure:"pipeline"`
	Training    TrainingConfig  `mapstructure:"training"`
	Artifacts   ArtifactsConfig `mapstructure:"artifacts"`
	Cache       CacheConfig     `mapstructure:"cache"`
	Telegram    TelegramConfig  `mapstructure:"telegram"`
	Security    SecurityConfig  `mapstructure:"security"`
	Retention   RetentionConfig `mapstructure:"retention"`
}

type ServerConfig struct {
	Port            int      `mapstructure:"port"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	ReadTimeout     string   `mapstructure:"read_timeout"`
	WriteTimeout    string   `mapstructure:"write_timeout"`
	ShutdownTimeout string   `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"dbname"`
	SSLMode         string `mapstructure:"sslmode"`
	DatabaseURL     string `mapstructure:"database_url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
	DialTimeout  string `mapstructure:"dial_timeout"`
	ReadTimeout  string `mapstructure:"read_timeout"`
}

// TelemetryConfig controls trace and log export
type TelemetryConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	ServiceVersion string  `mapstructure:"service_version"`
	Insecure       bool    `mapstructure:"insecure"`
	SampleRatio    float64 `mapstructure:"sample_ratio"`
	Stdout         bool    `mapstructure:"stdout"`
}

// PipelineConfig holds the feature engineering constants
type PipelineConfig struct {
	RollDays    int `mapstructure:"roll_days"`
	LagDepth    int `mapstructure:"lag_depth"`
	SeqLen      int `mapstructure:"seq_len"`
	HistoryDays int `mapstructure:"history_days"`
}

type GBMConfig struct {
	Trees        int     `mapstructure:"trees"`
	MaxDepth     int     `mapstructure:"max_depth"`
	LearningRate float64 `mapstructure:"learning_rate"`
	Seed         int64   `mapstructure:"seed"`
}

type LSTMConfig struct {
	HiddenSize    int     `mapstructure:"hidden_size"`
	LearningRate  float64 `mapstructure:"learning_rate"`
	BatchSize     int     `mapstructure:"batch_size"`
	Epochs        int     `mapstructure:"epochs"`
	Patience      int     `mapstructure:"patience"`
	TrainFraction float64 `mapstructure:"train_fraction"`
	Seed          int64   `mapstructure:"seed"`
}

// TrainingConfig holds data gates, model hyperparameters and the worker pool
type TrainingConfig struct {
	MinRows          int        `mapstructure:"min_rows"`
	MinPositives     int        `mapstructure:"min_positives"`
	MinSequences     int        `mapstructure:"min_sequences"`
	CVSplits         int        `mapstructure:"cv_splits"`
	GBM              GBMConfig  `mapstructure:"gbm"`
	LSTM             LSTMConfig `mapstructure:"lstm"`
	Workers          int        `mapstructure:"workers"`
	QueueSize        int        `mapstructure:"queue_size"`
	MaxMemoryPercent float64    `mapstructure:"max_memory_percent"`
	MemoryRetryDelay string     `mapstructure:"memory_retry_delay"`
	JobTimeout       string     `mapstructure:"job_timeout"`
	JobTTL           string     `mapstructure:"job_ttl"`
}

type ArtifactsConfig struct {
	Dir string `mapstructure:"dir"`
}

type CacheConfig struct {
	PredictionTTL string `mapstructure:"prediction_ttl"`
}

type TelegramConfig struct {
	BotToken          string  `mapstructure:"bot_token"`
	HighRiskThreshold float64 `mapstructure:"high_risk_threshold"`
}

type SecurityConfig struct {
	JWTSecret       string `mapstructure:"jwt_secret" json:"-" yaml:"-"`
	JWTExpiry       string `mapstructure:"jwt_expiry"`
	AuthEnabled     bool   `mapstructure:"auth_enabled"`
	AdminAPIKey     string `mapstructure:"admin_api_key" json:"-" yaml:"-"`
	AdminAPIKeyHash string `mapstructure:"admin_api_key_hash" json:"-" yaml:"-"`
}

// RetentionConfig controls the periodic pruning of derived rows
type RetentionConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	PredictionDays    int    `mapstructure:"prediction_days"`
	InactiveModelDays int    `mapstructure:"inactive_model_days"`
	CleanupInterval   string `mapstructure:"cleanup_interval"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set default values
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific environment variables
	if err := v.BindEnv("security.jwt_secret", "JWT_SECRET"); err != nil {
		return nil, fmt.Errorf("failed to bind JWT_SECRET environment variable: %w", err)
	}
	if err := v.BindEnv("security.admin_api_key", "ADMIN_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind ADMIN_API_KEY environment variable: %w", err)
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate checks cross-field rules and value ranges
func (c *Config) Validate() error {
	if c.Environment != "development" && c.Security.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required in non-development environments")
	}

	durations := map[string]string{
		"security.jwt_expiry":         c.Security.JWTExpiry,
		"server.read_timeout":         c.Server.ReadTimeout,
		"server.write_timeout":        c.Server.WriteTimeout,
		"server.shutdown_timeout":     c.Server.ShutdownTimeout,
		"training.job_timeout":        c.Training.JobTimeout,
		"training.job_ttl":            c.Training.JobTTL,
		"training.memory_retry_delay": c.Training.MemoryRetryDelay,
		"cache.prediction_ttl":        c.Cache.PredictionTTL,
		"redis.dial_timeout":          c.Redis.DialTimeout,
		"redis.read_timeout":          c.Redis.ReadTimeout,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s duration: %w", key, err)
		}
	}

	if c.Redis.PoolSize < 1 || c.Redis.MinIdleConns < 0 || c.Redis.MinIdleConns > c.Redis.PoolSize {
		return fmt.Errorf("redis.pool_size must be at least 1 and cover redis.min_idle_conns, got %d and %d",
			c.Redis.PoolSize, c.Redis.MinIdleConns)
	}

	if c.Pipeline.RollDays < 1 {
		return fmt.Errorf("pipeline.roll_days must be at least 1, got %d", c.Pipeline.RollDays)
	}
	if c.Pipeline.LagDepth < 0 {
		return fmt.Errorf("pipeline.lag_depth must not be negative, got %d", c.Pipeline.LagDepth)
	}
	if c.Pipeline.SeqLen < 1 {
		return fmt.Errorf("pipeline.seq_len must be at least 1, got %d", c.Pipeline.SeqLen)
	}
	if c.Training.CVSplits < 2 {
		return fmt.Errorf("training.cv_splits must be at least 2, got %d", c.Training.CVSplits)
	}
	if c.Training.Workers < 1 {
		return fmt.Errorf("training.workers must be at least 1, got %d", c.Training.Workers)
	}
	if c.Training.LSTM.TrainFraction <= 0 || c.Training.LSTM.TrainFraction >= 1 {
		return fmt.Errorf("training.lstm.train_fraction must be between 0 and 1, got %v", c.Training.LSTM.TrainFraction)
	}
	if c.Telegram.HighRiskThreshold < 0 || c.Telegram.HighRiskThreshold > 1 {
		return fmt.Errorf("telegram.high_risk_threshold must be between 0 and 1, got %v", c.Telegram.HighRiskThreshold)
	}

	if c.Retention.PredictionDays < 0 || c.Retention.InactiveModelDays < 0 {
		return fmt.Errorf("retention days must not be negative")
	}

	// Validate the admin key hash is a usable bcrypt hash
	if c.Security.AdminAPIKeyHash != "" {
		if _, err := bcrypt.Cost([]byte(c.Security.AdminAPIKeyHash)); err != nil {
			return fmt.Errorf("invalid security.admin_api_key_hash: %w", err)
		}
	}
	return nil
}

// Duration parses a duration setting, falling back when it is empty or invalid
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func setDefaults(v *viper.Viper) {
	// Environment
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "healthcast")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.database_url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "300s")
	v.SetDefault("database.conn_max_idle_time", "60s")
	v.SetDefault("database.auto_migrate", true)

	// Redis
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")

	// Telemetry
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "healthcast")
	v.SetDefault("telemetry.service_version", "1.0.0")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.sample_ratio", 1.0)
	v.SetDefault("telemetry.stdout", false)

	// Pipeline
	v.SetDefault("pipeline.roll_days", 7)
	v.SetDefault("pipeline.lag_depth", 3)
	v.SetDefault("pipeline.seq_len", 14)
	v.SetDefault("pipeline.history_days", 90)

	// Training
	v.SetDefault("training.min_rows", 30)
	v.SetDefault("training.min_positives", 5)
	v.SetDefault("training.min_sequences", 20)
	v.SetDefault("training.cv_splits", 3)
	v.SetDefault("training.gbm.trees", 100)
	v.SetDefault("training.gbm.max_depth", 4)
	v.SetDefault("training.gbm.learning_rate", 0.1)
	v.SetDefault("training.gbm.seed", 42)
	v.SetDefault("training.lstm.hidden_size", 64)
	v.SetDefault("training.lstm.learning_rate", 0.001)
	v.SetDefault("training.lstm.batch_size", 32)
	v.SetDefault("training.lstm.epochs", 10)
	v.SetDefault("training.lstm.patience", 3)
	v.SetDefault("training.lstm.train_fraction", 0.8)
	v.SetDefault("training.lstm.seed", 42)
	v.SetDefault("training.workers", 2)
	v.SetDefault("training.queue_size", 64)
	v.SetDefault("training.max_memory_percent", 90.0)
	v.SetDefault("training.memory_retry_delay", "5s")
	v.SetDefault("training.job_timeout", "15m")
	v.SetDefault("training.job_ttl", "24h")

	// Artifacts
	v.SetDefault("artifacts.dir", "./models")

	// Cache
	v.SetDefault("cache.prediction_ttl", "1h")

	// Telegram
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.high_risk_threshold", 0.7)

	// Security
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.jwt_expiry", "24h")
	v.SetDefault("security.auth_enabled", false)
	v.SetDefault("security.admin_api_key", "")
	v.SetDefault("security.admin_api_key_hash", "")

	// Retention defaults
	v.SetDefault("retention.enabled", true)
	v.SetDefault("retention.prediction_days", 180)
	v.SetDefault("retention.inactive_model_days", 30)
	v.SetDefault("retention.cleanup_interval", "1h")
}
