// Package providerfactory builds the audit data provider stack and the
// audit.Configuration described by a config.Config.
//
// Every backend is decorated, innermost first, with metrics, tracing and
// retry. The decorated backends are then combined according to
// storage.mode:
//
//	stack, err := providerfactory.NewStack(cfg, providerfactory.Options{Metrics: collector, Tracer: tracer})
//	if err != nil {
//	    return err
//	}
//	defer stack.Close()
//
//	conf := providerfactory.NewConfiguration(cfg, stack.Provider, opts)
package providerfactory

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/audit/providers/clickhouse"
	"mercator-hq/ledger/pkg/audit/providers/file"
	"mercator-hq/ledger/pkg/audit/providers/memory"
	"mercator-hq/ledger/pkg/audit/providers/postgres"
	"mercator-hq/ledger/pkg/audit/providers/sqlite"
	"mercator-hq/ledger/pkg/audit/providers/wrappers"
	"mercator-hq/ledger/pkg/audit/serialization"
	"mercator-hq/ledger/pkg/config"
	"mercator-hq/ledger/pkg/telemetry/metrics"
	"mercator-hq/ledger/pkg/telemetry/tracing"
)

// Options carries the optional telemetry the stack is decorated with.
type Options struct {
	// Metrics instruments every backend when set and enabled.
	Metrics *metrics.Collector

	// Tracer traces every backend when set and enabled.
	Tracer *tracing.Tracer
}

// Stack is a built provider stack.
type Stack struct {
	// Provider is the composed provider scopes write to.
	Provider audit.DataProvider

	// Backends are the decorated backends in configuration order. The
	// first is the primary and serves queries, pruning and health checks.
	Backends []audit.DataProvider

	// Names are the backend names matching Backends.
	Names []string
}

// Primary returns the decorated primary backend.
func (s *Stack) Primary() audit.DataProvider {
	return s.Backends[0]
}

// Close closes every backend.
func (s *Stack) Close() error {
	var errs []error
	for i, b := range s.Backends {
		if c, ok := b.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", s.Names[i], err))
			}
		}
	}
	return errors.Join(errs...)
}

// NewBackend creates the raw backend called name.
func NewBackend(name string, cfg *config.StorageConfig, format serialization.Serializer) (audit.DataProvider, error) {
	switch name {
	case "memory":
		return memory.New(format), nil

	case "sqlite":
		return sqlite.New(&sqlite.Config{
			Driver:       cfg.SQLite.Driver,
			Path:         cfg.SQLite.Path,
			Table:        audit.Value(cfg.SQLite.Table),
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      cfg.SQLite.WALMode,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
			Format:       format,
		})

	case "postgres":
		return postgres.New(&postgres.Config{
			DSN:            cfg.Postgres.DSN,
			Table:          audit.Value(cfg.Postgres.Table),
			MaxConns:       cfg.Postgres.MaxConns,
			MinConns:       cfg.Postgres.MinConns,
			ConnectTimeout: cfg.Postgres.ConnectTimeout,
			Format:         format,
		})

	case "clickhouse":
		return clickhouse.New(&clickhouse.Config{
			DSN:          cfg.ClickHouse.DSN,
			Table:        audit.Value(cfg.ClickHouse.Table),
			MaxOpenConns: cfg.ClickHouse.MaxOpenConns,
			MaxIdleConns: cfg.ClickHouse.MaxIdleConns,
			Format:       format,
		})

	case "file":
		// Each log line embeds the event as raw JSON, so format is not used.
		return file.New(&file.Config{Path: audit.Value(cfg.File.Path)}), nil

	default:
		return nil, &audit.ConfigurationError{Message: fmt.Sprintf("unsupported storage backend %q", name)}
	}
}

// NewStack builds the provider stack for cfg. On error, backends created so
// far are closed.
func NewStack(cfg *config.Config, opts Options) (*Stack, error) {
	format, err := serialization.ForName(cfg.Audit.Serializer)
	if err != nil {
		return nil, &audit.ConfigurationError{Message: "audit.serializer", Cause: err}
	}

	logger := slog.Default().With("component", "providerfactory")
	storage := &cfg.Storage

	stack := &Stack{}
	for _, name := range append([]string{storage.Backend}, storage.Fallback...) {
		raw, err := NewBackend(name, storage, format)
		if err != nil {
			_ = stack.Close()
			return nil, fmt.Errorf("create %s backend: %w", name, err)
		}
		stack.Backends = append(stack.Backends, decorate(raw, storage, opts))
		stack.Names = append(stack.Names, name)

		logger.Debug("storage backend created", "backend", name)
	}

	stack.Provider, err = combine(storage, stack.Names, stack.Backends)
	if err != nil {
		_ = stack.Close()
		return nil, err
	}

	logger.Info("storage stack built",
		"backends", stack.Names,
		"mode", storage.Mode,
		"retry", storage.Retry.Enabled,
		"provider", audit.ProviderName(stack.Provider),
	)
	return stack, nil
}

// decorate wraps p with metrics, then tracing, then retry, so each attempt
// is measured and traced on its own.
func decorate(p audit.DataProvider, storage *config.StorageConfig, opts Options) audit.DataProvider {
	if opts.Metrics != nil && opts.Metrics.Enabled() {
		p = opts.Metrics.Instrument(p)
	}
	if opts.Tracer != nil && opts.Tracer.Enabled() {
		p = opts.Tracer.Trace(p)
	}
	if storage.Retry.Enabled && storage.Retry.MaxTries > 1 {
		p = wrappers.NewRetry(p,
			wrappers.WithMaxTries(uint(storage.Retry.MaxTries)),
			wrappers.WithIntervals(storage.Retry.InitialInterval, storage.Retry.MaxInterval),
			wrappers.WithMaxElapsedTime(storage.Retry.MaxElapsedTime),
		)
	}
	return p
}

func combine(storage *config.StorageConfig, names []string, backends []audit.DataProvider) (audit.DataProvider, error) {
	if len(backends) == 1 {
		return backends[0], nil
	}

	switch storage.Mode {
	case "", "fallback":
		return wrappers.NewFallback(backends[0], backends[1:]...), nil
	case "multiplex":
		return wrappers.NewMultiplex(backends...), nil
	case "best_effort":
		return wrappers.NewMultiplex(backends...).BestEffort(true), nil
	case "round_robin":
		// RoundRobin keys weights by provider name, which includes the
		// decorators.
		weights := make(map[string]int, len(storage.Weights))
		for i, b := range backends {
			if w, ok := storage.Weights[names[i]]; ok {
				weights[audit.ProviderName(b)] = w
			}
		}
		return wrappers.NewRoundRobin(weights, backends...), nil
	case "hedge":
		return wrappers.NewHedge(storage.HedgeDelay, backends...), nil
	default:
		return nil, &audit.ConfigurationError{Message: fmt.Sprintf("unsupported storage mode %q", storage.Mode)}
	}
}
