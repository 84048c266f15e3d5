package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pscheid92/sessionpulse/internal/platform/correlation"
)

const janitorRunTimeout = 5 * time.Minute

// Janitor runs the scheduled daily eviction. The schedule is standard cron
// syntax; the default fires at 04:00 to stay clear of peak traffic.
type Janitor struct {
	cron          *cron.Cron
	service       *Service
	retentionDays int
}

// NewJanitor wires the cleanup schedule. It validates the cron expression but
// does not start the timer; call Start.
func NewJanitor(service *Service, schedule string, retentionDays int) (*Janitor, error) {
	j := &Janitor{
		cron:          cron.New(),
		service:       service,
		retentionDays: retentionDays,
	}

	if _, err := j.cron.AddFunc(schedule, func() { j.RunNow(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid cleanup schedule %q: %w", schedule, err)
	}
	return j, nil
}

// Start begins the schedule in its own goroutine.
func (j *Janitor) Start() {
	j.cron.Start()
	slog.Info("Cleanup schedule started", "retention_days", j.retentionDays)
}

// Stop cancels the schedule and waits for a running cleanup to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// RunNow performs one cleanup immediately, outside the schedule.
func (j *Janitor) RunNow(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, janitorRunTimeout)
	defer cancel()
	ctx = correlation.WithID(ctx, correlation.NewID())

	if _, err := j.service.Cleanup(ctx, j.retentionDays); err != nil {
		slog.ErrorContext(ctx, "Scheduled cleanup failed", "error", err)
	}
}
