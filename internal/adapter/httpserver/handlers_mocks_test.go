package httpserver

import (
	"context"
	"fmt"
	"time"

	"github.com/pscheid92/sessionpulse/internal/app"
	"github.com/pscheid92/sessionpulse/internal/domain"
	"github.com/pscheid92/sessionpulse/internal/platform/config"
)

type mockAppService struct {
	trackSessionFn   func(ctx context.Context, anonymousID string) (*domain.Session, error)
	trackActionFn    func(ctx context.Context, anonymousID, name, resourceID string, metadata domain.Metadata) error
	activeSessionsFn func(ctx context.Context, window time.Duration) ([]domain.Session, error)
	cleanupFn        func(ctx context.Context, days int) (app.CleanupResult, error)
}

func (m *mockAppService) TrackSession(ctx context.Context, anonymousID string) (*domain.Session, error) {
	if m.trackSessionFn != nil {
		return m.trackSessionFn(ctx, anonymousID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockAppService) TrackAction(ctx context.Context, anonymousID, name, resourceID string, metadata domain.Metadata) error {
	if m.trackActionFn != nil {
		return m.trackActionFn(ctx, anonymousID, name, resourceID, metadata)
	}
	return fmt.Errorf("not implemented")
}

func (m *mockAppService) ActiveSessions(ctx context.Context, window time.Duration) ([]domain.Session, error) {
	if m.activeSessionsFn != nil {
		return m.activeSessionsFn(ctx, window)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockAppService) Cleanup(ctx context.Context, days int) (app.CleanupResult, error) {
	if m.cleanupFn != nil {
		return m.cleanupFn(ctx, days)
	}
	return app.CleanupResult{}, fmt.Errorf("not implemented")
}

func newTestServer(svc appService) *Server {
	cfg := &config.Config{
		AppEnv:             "test",
		Port:               "0",
		TrackRatePerSecond: 1000,
		TrackRateBurst:     1000,
	}
	return NewServer(cfg, svc, nil)
}
