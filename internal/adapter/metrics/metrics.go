// Package metrics defines the Prometheus instrumentation for the session
// tracking core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sessionpulse"

var (
	// SessionsCreatedTotal counts first-contact upserts that created a new session.
	SessionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_created_total",
		Help:      "Total sessions created by first-contact upserts",
	})

	// SessionUpsertsTotal counts every upsert, including heartbeat refreshes.
	SessionUpsertsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_upserts_total",
		Help:      "Total session upserts (creations and heartbeat refreshes)",
	})

	// ActionsRecordedTotal counts appended user actions.
	ActionsRecordedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "actions_recorded_total",
		Help:      "Total user actions appended to sessions",
	})

	// SessionsEvictedTotal counts sessions removed by cleanup.
	SessionsEvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_evicted_total",
		Help:      "Total idle sessions deleted by cleanup",
	})

	// CleanupRunsTotal counts cleanup invocations, scheduled or manual.
	CleanupRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cleanup_runs_total",
		Help:      "Total cleanup runs by outcome",
	}, []string{"outcome"})

	// CleanupDurationSeconds observes how long a cleanup run takes.
	CleanupDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "cleanup_duration_seconds",
		Help:      "Duration of cleanup runs",
		Buckets:   prometheus.DefBuckets,
	})
)

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
