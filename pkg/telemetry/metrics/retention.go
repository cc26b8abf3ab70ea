package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/ledger/pkg/config"
)

// RetentionMetrics tracks pruning runs.
//
// Metrics:
//   - mercator_ledger_prune_runs_total: Runs by status
//   - mercator_ledger_pruned_events_total: Events deleted
//   - mercator_ledger_last_prune_timestamp_seconds: Unix time of the last successful run
type RetentionMetrics struct {
	runs    *prometheus.CounterVec
	deleted prometheus.Counter
	last    prometheus.Gauge
}

// NewRetentionMetrics creates and registers retention metrics with the provided registry.
func NewRetentionMetrics(cfg *config.MetricsConfig, registry prometheus.Registerer) *RetentionMetrics {
	rm := &RetentionMetrics{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "prune_runs_total",
				Help:      "Total number of retention pruning runs",
			},
			[]string{"status"},
		),

		deleted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "pruned_events_total",
				Help:      "Total number of audit events deleted by retention",
			},
		),

		last: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "last_prune_timestamp_seconds",
				Help:      "Unix time of the last successful pruning run",
			},
		),
	}

	registry.MustRegister(rm.runs, rm.deleted, rm.last)
	return rm
}

// RecordRun records a pruning run.
func (rm *RetentionMetrics) RecordRun(deleted int64, at time.Time, err error) {
	if err != nil {
		rm.runs.WithLabelValues("error").Inc()
		return
	}
	rm.runs.WithLabelValues("success").Inc()
	rm.deleted.Add(float64(deleted))
	rm.last.Set(float64(at.Unix()))
}
