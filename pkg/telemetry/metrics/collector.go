package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/config"
)

// OtherLabel replaces event types once the cardinality limit is reached.
const OtherLabel = "other"

// Collector owns the ledger's Prometheus metrics. All methods are no-ops
// when metrics are disabled in the configuration.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	storage   *StorageMetrics
	scopes    *ScopeMetrics
	retention *RetentionMetrics

	// eventTypes bounds the number of distinct event_type label values.
	eventTypes *CardinalityLimiter
}

// NewCollector creates a collector. If registry is nil a new registry is
// created.
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	conf.AddAction(audit.OnScopeCreated, collector.ScopeCreatedAction())
//	provider = collector.Instrument(provider)
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = config.DefaultMetricsSubsystem
	}
	if len(cfg.StorageDurationBuckets) == 0 {
		cfg.StorageDurationBuckets = config.DefaultStorageDurationBuckets
	}

	return &Collector{
		config:     cfg,
		registry:   registry,
		storage:    NewStorageMetrics(cfg, registry),
		scopes:     NewScopeMetrics(cfg, registry),
		retention:  NewRetentionMetrics(cfg, registry),
		eventTypes: NewCardinalityLimiter(1000),
	}
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Enabled reports whether metrics are collected.
func (c *Collector) Enabled() bool {
	return c.config.Enabled
}

// RecordStorageCall records the outcome of a provider call.
func (c *Collector) RecordStorageCall(provider, operation string, duration time.Duration, err error) {
	if !c.config.Enabled {
		return
	}
	c.storage.RecordCall(provider, operation, ErrorKind(err), duration)
}

// UpdateProviderUp records the result of a provider ping.
func (c *Collector) UpdateProviderUp(provider string, up bool) {
	if !c.config.Enabled {
		return
	}
	c.storage.SetUp(provider, up)
}

// RecordScopeCreated records a new scope.
func (c *Collector) RecordScopeCreated(eventType string, policy audit.CreationPolicy) {
	if !c.config.Enabled {
		return
	}
	c.scopes.created.WithLabelValues(c.eventTypeLabel(eventType), policy.String()).Inc()
}

// RecordEventSaved records a persisted event and its duration.
func (c *Collector) RecordEventSaved(eventType string, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	label := c.eventTypeLabel(eventType)
	c.scopes.saved.WithLabelValues(label).Inc()
	if duration > 0 {
		c.scopes.duration.WithLabelValues(label).Observe(duration.Seconds())
	}
}

// RecordPrune records a retention run.
func (c *Collector) RecordPrune(deleted int64, at time.Time, err error) {
	if !c.config.Enabled {
		return
	}
	c.retention.RecordRun(deleted, at, err)
}

// ScopeCreatedAction returns an OnScopeCreated action that counts scopes.
func (c *Collector) ScopeCreatedAction() audit.Action {
	return func(ctx context.Context, s *audit.Scope) error {
		c.RecordScopeCreated(s.Event().EventType, s.CreationPolicy())
		return nil
	}
}

// EventSavedAction returns an OnEventSaved action that counts persisted
// events and observes their duration.
func (c *Collector) EventSavedAction() audit.Action {
	return func(ctx context.Context, s *audit.Scope) error {
		ev := s.Event()
		c.RecordEventSaved(ev.EventType, ev.Duration)
		return nil
	}
}

func (c *Collector) eventTypeLabel(eventType string) string {
	if !c.eventTypes.Allow(eventType) {
		return OtherLabel
	}
	return eventType
}

// ErrorKind classifies an error for the "kind" label. It returns "" for nil.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, audit.ErrNotFound):
		return "not_found"
	case errors.Is(err, audit.ErrNotSupported):
		return "not_supported"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}

	var cfgErr *audit.ConfigurationError
	if errors.As(err, &cfgErr) {
		return "configuration"
	}
	return "storage"
}

// CardinalityLimiter bounds the number of unique label values.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value may be used as a label. Known values are
// always allowed; new values are allowed until the limit is reached.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[value]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
