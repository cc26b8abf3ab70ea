package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/ledger/pkg/config"
)

// ScopeMetrics tracks audit scope lifecycles.
//
// Metrics:
//   - mercator_ledger_scopes_created_total: Scopes created by event type and policy
//   - mercator_ledger_events_saved_total: Events persisted by event type
//   - mercator_ledger_scope_duration_seconds: Event duration at save time
type ScopeMetrics struct {
	created  *prometheus.CounterVec
	saved    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewScopeMetrics creates and registers scope metrics with the provided registry.
func NewScopeMetrics(cfg *config.MetricsConfig, registry prometheus.Registerer) *ScopeMetrics {
	sm := &ScopeMetrics{
		created: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "scopes_created_total",
				Help:      "Total number of audit scopes created",
			},
			[]string{"event_type", "policy"},
		),

		saved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "events_saved_total",
				Help:      "Total number of audit events persisted",
			},
			[]string{"event_type"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "scope_duration_seconds",
				Help:      "Duration of audited operations in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
			},
			[]string{"event_type"},
		),
	}

	registry.MustRegister(sm.created, sm.saved, sm.duration)
	return sm
}
