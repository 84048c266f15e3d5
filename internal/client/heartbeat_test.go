package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitTick(t *testing.T, ticks <-chan string) string {
	t.Helper()
	select {
	case id := <-ticks:
		return id
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for heartbeat tick")
		return ""
	}
}

func assertNoTick(t *testing.T, ticks <-chan string) {
	t.Helper()
	select {
	case id := <-ticks:
		t.Fatalf("unexpected heartbeat tick for %q", id)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHeartbeatFiresImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	hb := NewHeartbeat(clock)
	defer hb.Stop()

	ticks := make(chan string, 1)
	hb.Start(context.Background(), "abc", time.Minute, func(_ context.Context, id string) error {
		ticks <- id
		return nil
	})

	assert.Equal(t, "abc", waitTick(t, ticks))
}

func TestHeartbeatRepeatsEveryInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	hb := NewHeartbeat(clock)
	defer hb.Stop()

	ticks := make(chan string, 1)
	hb.Start(context.Background(), "abc", time.Minute, func(_ context.Context, id string) error {
		ticks <- id
		return nil
	})

	waitTick(t, ticks)

	for range 3 {
		clock.BlockUntil(1)
		clock.Advance(time.Minute)
		assert.Equal(t, "abc", waitTick(t, ticks))
	}
}

func TestHeartbeatStopPreventsFurtherTicks(t *testing.T) {
	clock := clockwork.NewFakeClock()
	hb := NewHeartbeat(clock)

	ticks := make(chan string, 8)
	hb.Start(context.Background(), "abc", time.Minute, func(_ context.Context, id string) error {
		ticks <- id
		return nil
	})

	waitTick(t, ticks)
	hb.Stop()

	clock.Advance(5 * time.Minute)
	assertNoTick(t, ticks)
}

func TestHeartbeatStopIsIdempotent(t *testing.T) {
	hb := NewHeartbeat(clockwork.NewFakeClock())

	hb.Stop()
	hb.Start(context.Background(), "abc", time.Minute, func(context.Context, string) error { return nil })
	hb.Stop()
	hb.Stop()
}

func TestHeartbeatRestartReplacesSchedule(t *testing.T) {
	clock := clockwork.NewFakeClock()
	hb := NewHeartbeat(clock)
	defer hb.Stop()

	ticks := make(chan string, 8)
	onTick := func(_ context.Context, id string) error {
		ticks <- id
		return nil
	}

	hb.Start(context.Background(), "first", time.Minute, onTick)
	require.Equal(t, "first", waitTick(t, ticks))

	hb.Start(context.Background(), "second", time.Minute, onTick)
	require.Equal(t, "second", waitTick(t, ticks))

	clock.BlockUntil(1)
	clock.Advance(time.Minute)
	assert.Equal(t, "second", waitTick(t, ticks))
	assertNoTick(t, ticks)
}

func TestHeartbeatSwallowsTickErrors(t *testing.T) {
	clock := clockwork.NewFakeClock()
	hb := NewHeartbeat(clock)
	defer hb.Stop()

	ticks := make(chan string, 1)
	hb.Start(context.Background(), "abc", time.Minute, func(_ context.Context, id string) error {
		ticks <- id
		return errors.New("server unreachable")
	})

	waitTick(t, ticks)

	clock.BlockUntil(1)
	clock.Advance(time.Minute)
	assert.Equal(t, "abc", waitTick(t, ticks), "a failed tick must not stop the schedule")
}

func TestHeartbeatDefaultsInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	hb := NewHeartbeat(clock)
	defer hb.Stop()

	ticks := make(chan string, 1)
	hb.Start(context.Background(), "abc", 0, func(_ context.Context, id string) error {
		ticks <- id
		return nil
	})

	waitTick(t, ticks)

	clock.BlockUntil(1)
	clock.Advance(DefaultHeartbeatInterval)
	assert.Equal(t, "abc", waitTick(t, ticks))
}

func TestHeartbeatStopsOnContextCancel(t *testing.T) {
	clock := clockwork.NewFakeClock()
	hb := NewHeartbeat(clock)
	defer hb.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan string, 8)
	hb.Start(ctx, "abc", time.Minute, func(_ context.Context, id string) error {
		ticks <- id
		return nil
	})

	waitTick(t, ticks)
	cancel()

	clock.Advance(5 * time.Minute)
	assertNoTick(t, ticks)
}
