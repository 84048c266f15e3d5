package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Backend selects which session repository implementation the server uses.
const (
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	SessionBackend string `env:"SESSION_BACKEND" default:"postgres"`
	DatabaseURL    string `env:"DATABASE_URL"`
	RedisURL       string `env:"REDIS_URL"`

	// ActiveWindow is the default lookback for the active-sessions query.
	ActiveWindow time.Duration `env:"ACTIVE_WINDOW" default:"15m"`

	// CleanupSchedule fires the daily eviction; 04:00 avoids peak traffic.
	CleanupSchedule      string `env:"CLEANUP_SCHEDULE" default:"0 4 * * *"`
	CleanupRetentionDays int    `env:"CLEANUP_RETENTION_DAYS" default:"14"`

	// Client-side options, recognized here so one .env serves both binaries.
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" default:"5m"`
	StorageKey        string        `env:"STORAGE_KEY" default:"anonymousUserId"`
	IdentityDir       string        `env:"IDENTITY_DIR"`

	TrackRatePerSecond float64 `env:"TRACK_RATE_PER_SECOND" default:"20"`
	TrackRateBurst     int     `env:"TRACK_RATE_BURST" default:"40"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.SessionBackend {
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when SESSION_BACKEND=%s", BackendPostgres)
		}
	case BackendRedis:
		if cfg.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SESSION_BACKEND=%s", BackendRedis)
		}
	default:
		return fmt.Errorf("SESSION_BACKEND must be %q or %q, got %q", BackendPostgres, BackendRedis, cfg.SessionBackend)
	}

	if cfg.CleanupRetentionDays < 1 {
		return fmt.Errorf("CLEANUP_RETENTION_DAYS must be at least 1, got %d", cfg.CleanupRetentionDays)
	}
	if cfg.HeartbeatInterval <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL must be positive, got %s", cfg.HeartbeatInterval)
	}
	if cfg.ActiveWindow <= 0 {
		return fmt.Errorf("ACTIVE_WINDOW must be positive, got %s", cfg.ActiveWindow)
	}

	return nil
}
