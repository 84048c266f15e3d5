package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/pscheid92/sessionpulse/internal/adapter/metrics"
	"github.com/pscheid92/sessionpulse/internal/domain"
)

const (
	// DefaultActiveWindow is the lookback used when an active-sessions query
	// does not specify one.
	DefaultActiveWindow = 15 * time.Minute

	// DefaultRetentionDays is the retention used when a manual cleanup does
	// not specify one.
	DefaultRetentionDays = 30
)

// Service is the application layer. It orchestrates the session repository
// behind the use cases the transport exposes.
type Service struct {
	store domain.SessionRepository
	clock clockwork.Clock

	// trackGroup collapses concurrent first-contact upserts for the same
	// anonymous ID into one repository call. The repository upsert is atomic
	// on its own; this just avoids hammering it from simultaneous mounts.
	trackGroup singleflight.Group
}

// NewService creates the application layer service.
func NewService(store domain.SessionRepository, clock clockwork.Clock) *Service {
	return &Service{store: store, clock: clock}
}

// TrackSession creates the session for anonymousID on first contact, or
// refreshes its last-active timestamp. Heartbeats land here too.
func (s *Service) TrackSession(ctx context.Context, anonymousID string) (*domain.Session, error) {
	result, err, _ := s.trackGroup.Do(anonymousID, func() (any, error) {
		return s.store.Upsert(ctx, anonymousID, s.clock.Now())
	})
	if err != nil {
		return nil, err
	}

	session := result.(*domain.Session)
	metrics.SessionUpsertsTotal.Inc()
	if session.CreatedAt.Equal(session.LastActive) {
		metrics.SessionsCreatedTotal.Inc()
	}
	return session, nil
}

// TrackAction appends a named action to an existing session. Callers must
// have established the session via TrackSession first; there is no
// auto-create on first action.
func (s *Service) TrackAction(ctx context.Context, anonymousID, name, resourceID string, metadata domain.Metadata) error {
	if err := s.store.AppendAction(ctx, anonymousID, name, resourceID, metadata, s.clock.Now()); err != nil {
		return err
	}
	metrics.ActionsRecordedTotal.Inc()
	return nil
}

// ActiveSessions returns sessions active within the window. A non-positive
// window falls back to DefaultActiveWindow. Callers must not depend on order.
func (s *Service) ActiveSessions(ctx context.Context, window time.Duration) ([]domain.Session, error) {
	if window <= 0 {
		window = DefaultActiveWindow
	}
	return s.store.QueryActive(ctx, window, s.clock.Now())
}

// CleanupResult reports one eviction run.
type CleanupResult struct {
	DeletedCount int64
	Cutoff       time.Time
}

// Cleanup deletes sessions idle for more than days days. Idempotent: rerun
// with no new stale sessions deletes nothing.
func (s *Service) Cleanup(ctx context.Context, days int) (CleanupResult, error) {
	start := s.clock.Now()
	cutoff := CutoffFor(start, days)

	deleted, err := s.store.Evict(ctx, cutoff)
	metrics.CleanupDurationSeconds.Observe(s.clock.Since(start).Seconds())
	if err != nil {
		metrics.CleanupRunsTotal.WithLabelValues("error").Inc()
		return CleanupResult{}, err
	}

	metrics.CleanupRunsTotal.WithLabelValues("ok").Inc()
	metrics.SessionsEvictedTotal.Add(float64(deleted))

	slog.InfoContext(ctx, "Cleanup finished", "deleted", deleted, "cutoff", cutoff, "retention_days", days)
	return CleanupResult{DeletedCount: deleted, Cutoff: cutoff}, nil
}

// CutoffFor computes the eviction cutoff for a retention of days days.
// Sessions with LastActive strictly before the cutoff are stale.
func CutoffFor(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}
