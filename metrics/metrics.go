// Package metrics holds the Prometheus collectors of the time-bank services.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// INGESTION
// =============================================================================

// PunchesRecorded counts persisted punches by origin.
var PunchesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ponto",
	Subsystem: "punches",
	Name:      "recorded_total",
	Help:      "Total punches persisted, by origin.",
}, []string{"origin"})

// DuplicatesRejected counts photo punches blocked by the duplicate detector.
var DuplicatesRejected = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ponto",
	Subsystem: "punches",
	Name:      "duplicates_rejected_total",
	Help:      "Total photo punches rejected as duplicates.",
})

// PunchesCorrected counts one-time punch corrections.
var PunchesCorrected = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ponto",
	Subsystem: "punches",
	Name:      "corrected_total",
	Help:      "Total punches corrected after ingestion.",
})

// WithdrawalsRecorded counts accepted and rejected withdrawals.
var WithdrawalsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ponto",
	Subsystem: "withdrawals",
	Name:      "recorded_total",
	Help:      "Total withdrawals, by result.",
}, []string{"result"})

// =============================================================================
// RECOMPUTE
// =============================================================================

// RecomputeDuration tracks full balance recomputations.
var RecomputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "ponto",
	Subsystem: "monitor",
	Name:      "recompute_duration_ms",
	Help:      "Duration of a full balance recompute in milliseconds.",
	Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 1000},
})

// RecomputeFailures counts recomputes that left a stale snapshot.
var RecomputeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ponto",
	Subsystem: "monitor",
	Name:      "recompute_failures_total",
	Help:      "Total failed recomputes, by cause.",
}, []string{"cause"})

// WatchedUsers tracks users with an active subscription.
var WatchedUsers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ponto",
	Subsystem: "monitor",
	Name:      "watched_users",
	Help:      "Current number of users with a live balance subscription.",
})

// =============================================================================
// SETTLEMENT
// =============================================================================

// SettlementsAdvanced counts settlement dates moved forward by the scheduler.
var SettlementsAdvanced = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ponto",
	Subsystem: "scheduler",
	Name:      "settlements_advanced_total",
	Help:      "Total settlement dates advanced to an elapsed boundary.",
})

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
