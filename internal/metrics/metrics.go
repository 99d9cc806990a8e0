// Package metrics defines the Prometheus collectors shothammer exports.
//
// Collectors are registered with the default registry on import. The watch
// command serves them on /metrics through the feed server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal counts handled events by classifier verdict and reason.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shothammer_events_total",
			Help: "Total number of change events handled",
		},
		[]string{"verdict", "reason"},
	)

	// KeywordOpsTotal counts keyword operations by op (add, delete) and
	// result (issued, skipped, failed).
	KeywordOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shothammer_keyword_ops_total",
			Help: "Total number of keyword operations by result",
		},
		[]string{"op", "result"},
	)

	// CapturesTotal counts events persisted after path composition failed.
	CapturesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shothammer_captures_total",
			Help: "Total number of events captured for manual replay",
		},
	)

	// TrackingSessionsTotal counts tracking backend sessions by result
	// (opened, closed, error).
	TrackingSessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shothammer_tracking_sessions_total",
			Help: "Total number of tracking backend sessions",
		},
		[]string{"result"},
	)

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shothammer_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// HandleDuration tracks end-to-end handling time per event.
	HandleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shothammer_handle_duration_seconds",
			Help:    "Time spent handling one change event",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"state"},
	)
)
