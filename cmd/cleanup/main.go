// Command cleanup runs one eviction pass and exits. It covers deployments
// that prefer an external scheduler (cron, Kubernetes CronJob) over the
// in-process one.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/sessionpulse/internal/adapter/postgres"
	"github.com/pscheid92/sessionpulse/internal/adapter/redis"
	"github.com/pscheid92/sessionpulse/internal/app"
	"github.com/pscheid92/sessionpulse/internal/domain"
	"github.com/pscheid92/sessionpulse/internal/platform/config"
)

const runTimeout = 10 * time.Minute

func main() {
	var (
		backend     = flag.String("backend", envOr("SESSION_BACKEND", config.BackendPostgres), "session backend: postgres or redis")
		databaseURL = flag.String("database", os.Getenv("DATABASE_URL"), "PostgreSQL URL (or set DATABASE_URL env)")
		redisURL    = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		days        = flag.Int("days", 14, "delete sessions inactive for more than this many days")
		dryRun      = flag.Bool("dry-run", false, "count stale sessions without deleting them")
		verbose     = flag.Bool("verbose", false, "verbose logging")
	)
	flag.Parse()

	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	if *days < 0 {
		log.Fatalf("--days must not be negative, got %d", *days)
	}

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	clock := clockwork.NewRealClock()
	repo, closeRepo := connectRepository(ctx, *backend, *databaseURL, *redisURL, clock)
	defer closeRepo()

	cutoff := app.CutoffFor(clock.Now(), *days)

	if *dryRun {
		stale, err := repo.CountStale(ctx, cutoff)
		if err != nil {
			log.Fatalf("Failed to count stale sessions: %v", err)
		}
		slog.Info("Dry run complete", "would_delete", stale, "cutoff", cutoff, "retention_days", *days)
		return
	}

	start := clock.Now()
	deleted, err := repo.Evict(ctx, cutoff)
	if err != nil {
		log.Fatalf("Eviction failed: %v", err)
	}

	slog.Info("Cleanup complete",
		"deleted", deleted,
		"cutoff", cutoff,
		"retention_days", *days,
		"duration_ms", clock.Since(start).Milliseconds())
}

func connectRepository(ctx context.Context, backend, databaseURL, redisURL string, clock clockwork.Clock) (domain.SessionRepository, func()) {
	switch backend {
	case config.BackendRedis:
		if redisURL == "" {
			log.Fatal("Redis URL required (--redis or REDIS_URL env)")
		}
		client, err := redis.Connect(ctx, redisURL, clock)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		return redis.NewSessionRepo(client), func() { _ = client.Close() }

	case config.BackendPostgres:
		if databaseURL == "" {
			log.Fatal("Database URL required (--database or DATABASE_URL env)")
		}
		pool, err := postgres.Connect(ctx, databaseURL, clock)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		return postgres.NewSessionRepo(pool), pool.Close

	default:
		log.Fatalf("Unknown backend %q, want postgres or redis", backend)
		return nil, nil
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
