package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/sessionpulse/internal/adapter/httpserver"
	"github.com/pscheid92/sessionpulse/internal/adapter/postgres"
	"github.com/pscheid92/sessionpulse/internal/adapter/redis"
	"github.com/pscheid92/sessionpulse/internal/app"
	"github.com/pscheid92/sessionpulse/internal/domain"
	"github.com/pscheid92/sessionpulse/internal/platform/config"
	"github.com/pscheid92/sessionpulse/internal/platform/logging"
)

const connectTimeout = 30 * time.Second

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupPostgres(cfg *config.Config, clock clockwork.Clock) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, clock)
	if err != nil {
		return nil, err
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func setupRedis(cfg *config.Config, clock clockwork.Clock) (*goredis.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	return redis.Connect(ctx, cfg.RedisURL, clock)
}

// setupRepository picks the session backend and returns the repository, the
// matching health check, and a close function for the underlying connection.
func setupRepository(cfg *config.Config, clock clockwork.Clock) (domain.SessionRepository, httpserver.HealthCheck, func(), error) {
	switch cfg.SessionBackend {
	case config.BackendRedis:
		client, err := setupRedis(cfg, clock)
		if err != nil {
			return nil, httpserver.HealthCheck{}, nil, err
		}
		check := httpserver.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		}
		return redis.NewSessionRepo(client), check, func() { _ = client.Close() }, nil

	default:
		pool, err := setupPostgres(cfg, clock)
		if err != nil {
			return nil, httpserver.HealthCheck{}, nil, err
		}
		check := httpserver.HealthCheck{
			Name:  "postgres",
			Check: pool.Ping,
		}
		return postgres.NewSessionRepo(pool), check, pool.Close, nil
	}
}

func runGracefulShutdown(srv *httpserver.Server, janitor *app.Janitor) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		janitor.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "backend", cfg.SessionBackend)

	repo, healthCheck, closeRepo, err := setupRepository(cfg, clock)
	if err != nil {
		slog.Error("Failed to set up session backend", "backend", cfg.SessionBackend, "error", err)
		os.Exit(1)
	}
	defer closeRepo()

	service := app.NewService(repo, clock)

	janitor, err := app.NewJanitor(service, cfg.CleanupSchedule, cfg.CleanupRetentionDays)
	if err != nil {
		slog.Error("Failed to create cleanup schedule", "error", err)
		os.Exit(1)
	}
	janitor.Start()

	srv := httpserver.NewServer(cfg, service, []httpserver.HealthCheck{healthCheck})

	done := runGracefulShutdown(srv, janitor)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
