package wrappers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"mercator-hq/ledger/pkg/audit"
)

// Multiplex writes every event to all providers concurrently and returns a
// MultiID. By default every provider must succeed and the first failure
// cancels the rest. In best-effort mode the call succeeds when at least one
// provider does; failures are logged.
type Multiplex struct {
	providers  []audit.DataProvider
	bestEffort bool
	logger     *slog.Logger
}

// NewMultiplex fans out to providers.
func NewMultiplex(providers ...audit.DataProvider) *Multiplex {
	return &Multiplex{
		providers: providers,
		logger:    slog.Default().With("component", "audit.provider.multiplex"),
	}
}

// BestEffort switches to at-least-one semantics.
func (m *Multiplex) BestEffort(enabled bool) *Multiplex {
	m.bestEffort = enabled
	return m
}

// Name implements audit.Named.
func (m *Multiplex) Name() string {
	return "multiplex"
}

// InsertEvent implements audit.DataProvider.
func (m *Multiplex) InsertEvent(ctx context.Context, event audit.Auditable) (any, error) {
	if len(m.providers) == 0 {
		return nil, audit.NewStorageError(m.Name(), "insert", errNoProviders)
	}

	ids := make([]any, len(m.providers))
	err := m.fanOut(ctx, "insert", func(ctx context.Context, i int, p audit.DataProvider) error {
		id, err := p.InsertEvent(ctx, event)
		if err != nil {
			return err
		}
		ids[i] = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return MultiID{IDs: ids}, nil
}

// ReplaceEvent implements audit.DataProvider. A MultiID replaces each
// provider's own id, skipping providers whose insert failed; any other id is
// passed to every provider unchanged.
func (m *Multiplex) ReplaceEvent(ctx context.Context, eventID any, event audit.Auditable) error {
	multi, isMulti := eventID.(MultiID)
	return m.fanOut(ctx, "replace", func(ctx context.Context, i int, p audit.DataProvider) error {
		id := eventID
		if isMulti {
			if i >= len(multi.IDs) || multi.IDs[i] == nil {
				return nil
			}
			id = multi.IDs[i]
		}
		return p.ReplaceEvent(ctx, id, event)
	})
}

// GetEvent implements audit.DataProvider by reading from the first provider
// that has the event.
func (m *Multiplex) GetEvent(ctx context.Context, eventID any, dest audit.Auditable) error {
	multi, isMulti := eventID.(MultiID)

	var errs []error
	for i, p := range m.providers {
		id := eventID
		if isMulti {
			if i >= len(multi.IDs) || multi.IDs[i] == nil {
				continue
			}
			id = multi.IDs[i]
		}
		err := p.GetEvent(ctx, id, dest)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 || allNotFound(errs) {
		return audit.NewNotFoundError(m.Name(), eventID)
	}
	return &audit.StorageError{Provider: m.Name(), Operation: "get", EventID: eventID, Cause: errors.Join(errs...)}
}

// CloneValue implements audit.DataProvider.
func (m *Multiplex) CloneValue(value any) (any, error) {
	return cloneWith(m.providers, value)
}

// Close closes every provider.
func (m *Multiplex) Close() error {
	return closeAll(m.providers)
}

func (m *Multiplex) fanOut(ctx context.Context, operation string, call func(ctx context.Context, i int, p audit.DataProvider) error) error {
	if !m.bestEffort {
		g, gctx := errgroup.WithContext(ctx)
		for i, p := range m.providers {
			g.Go(func() error {
				if err := call(gctx, i, p); err != nil {
					return fmt.Errorf("%s: %w", audit.ProviderName(p), err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return audit.NewStorageError(m.Name(), operation, err)
		}
		return nil
	}

	var g errgroup.Group
	errs := make([]error, len(m.providers))
	for i, p := range m.providers {
		g.Go(func() error {
			if err := call(ctx, i, p); err != nil {
				errs[i] = fmt.Errorf("%s: %w", audit.ProviderName(p), err)
				m.logger.Warn("multiplexed call failed", "provider", audit.ProviderName(p), "operation", operation, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == len(m.providers) {
		return audit.NewStorageError(m.Name(), operation, errors.Join(errs...))
	}
	return nil
}
