package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultHeartbeatInterval is the tick period used when Start receives a
// non-positive interval.
const DefaultHeartbeatInterval = 5 * time.Minute

// TickFunc reports liveness for an anonymous identifier, typically by
// calling APIClient.TrackSession.
type TickFunc func(ctx context.Context, anonymousID string) error

// Heartbeat periodically signals liveness for one identity. A Heartbeat
// runs at most one schedule at a time; starting a new one stops the old
// schedule first. Ticks run sequentially in a single goroutine, so a slow
// remote call delays the next tick instead of overlapping it.
type Heartbeat struct {
	clock clockwork.Clock

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHeartbeat creates a stopped heartbeat using clock for scheduling.
func NewHeartbeat(clock clockwork.Clock) *Heartbeat {
	return &Heartbeat{clock: clock}
}

// Start begins heartbeating for anonymousID: onTick fires once immediately,
// then every interval until Stop is called or ctx is cancelled. Errors from
// onTick are logged and swallowed, the next tick is the retry.
func (h *Heartbeat) Start(ctx context.Context, anonymousID string, interval time.Duration, onTick TickFunc) {
	h.Stop()

	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	h.mu.Lock()
	h.cancel = cancel
	h.done = done
	h.mu.Unlock()

	go h.run(ctx, done, anonymousID, interval, onTick)
}

// Stop cancels the running schedule and waits for its goroutine to exit.
// Calling Stop on a stopped heartbeat is a no-op.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (h *Heartbeat) run(ctx context.Context, done chan struct{}, anonymousID string, interval time.Duration, onTick TickFunc) {
	defer close(done)

	ticker := h.clock.NewTicker(interval)
	defer ticker.Stop()

	h.tick(ctx, anonymousID, onTick)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			h.tick(ctx, anonymousID, onTick)
		}
	}
}

func (h *Heartbeat) tick(ctx context.Context, anonymousID string, onTick TickFunc) {
	if ctx.Err() != nil {
		return
	}
	if err := onTick(ctx, anonymousID); err != nil {
		slog.DebugContext(ctx, "Heartbeat tick failed", "anonymous_id", anonymousID, "error", err)
	}
}
