package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/ledger/pkg/config"
)

// StorageMetrics tracks data provider calls.
//
// Metrics:
//   - mercator_ledger_storage_calls_total: Calls by provider, operation and status
//   - mercator_ledger_storage_call_duration_seconds: Call latency
//   - mercator_ledger_storage_errors_total: Failures by provider, operation and kind
//   - mercator_ledger_provider_up: Result of the last ping (1=reachable, 0=unreachable)
type StorageMetrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
	up       *prometheus.GaugeVec
}

// NewStorageMetrics creates and registers storage metrics with the provided registry.
func NewStorageMetrics(cfg *config.MetricsConfig, registry prometheus.Registerer) *StorageMetrics {
	sm := &StorageMetrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "storage_calls_total",
				Help:      "Total number of data provider calls",
			},
			[]string{"provider", "operation", "status"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "storage_call_duration_seconds",
				Help:      "Duration of data provider calls in seconds",
				Buckets:   cfg.StorageDurationBuckets,
			},
			[]string{"provider", "operation"},
		),

		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "storage_errors_total",
				Help:      "Total number of failed data provider calls by error kind",
			},
			[]string{"provider", "operation", "kind"},
		),

		up: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_up",
				Help:      "Whether the last ping of the data provider succeeded (1=up, 0=down)",
			},
			[]string{"provider"},
		),
	}

	registry.MustRegister(sm.calls, sm.duration, sm.errors, sm.up)
	return sm
}

// RecordCall records one provider call. kind is empty on success.
func (sm *StorageMetrics) RecordCall(provider, operation, kind string, duration time.Duration) {
	status := "success"
	if kind != "" {
		status = "error"
		sm.errors.WithLabelValues(provider, operation, kind).Inc()
	}
	sm.calls.WithLabelValues(provider, operation, status).Inc()
	sm.duration.WithLabelValues(provider, operation).Observe(duration.Seconds())
}

// SetUp records a ping result.
func (sm *StorageMetrics) SetUp(provider string, up bool) {
	value := 0.0
	if up {
		value = 1.0
	}
	sm.up.WithLabelValues(provider).Set(value)
}
