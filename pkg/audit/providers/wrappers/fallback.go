package wrappers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"mercator-hq/ledger/pkg/audit"
)

// Fallback tries providers in order until one accepts the call. Inserted
// events get a RoutedID naming the provider that stored them; replaces and
// gets for a RoutedID go to that provider only.
type Fallback struct {
	providers []audit.DataProvider
	logger    *slog.Logger
}

// NewFallback returns a fallback over primary followed by secondaries.
func NewFallback(primary audit.DataProvider, secondaries ...audit.DataProvider) *Fallback {
	return &Fallback{
		providers: append([]audit.DataProvider{primary}, secondaries...),
		logger:    slog.Default().With("component", "audit.provider.fallback"),
	}
}

// Name implements audit.Named.
func (f *Fallback) Name() string {
	return "fallback"
}

// InsertEvent implements audit.DataProvider.
func (f *Fallback) InsertEvent(ctx context.Context, event audit.Auditable) (any, error) {
	var errs []error
	for i, p := range f.providers {
		id, err := p.InsertEvent(ctx, event)
		if err == nil {
			if i > 0 {
				f.logger.Warn("insert served by fallback provider", "provider", audit.ProviderName(p), "index", i)
			}
			return RoutedID{Index: i, Provider: audit.ProviderName(p), ID: id}, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", audit.ProviderName(p), err))
		if ctx.Err() != nil {
			break
		}
	}
	return nil, f.failure("insert", nil, errs)
}

// ReplaceEvent implements audit.DataProvider.
func (f *Fallback) ReplaceEvent(ctx context.Context, eventID any, event audit.Auditable) error {
	if p, id, ok := routedTarget(f.providers, eventID); ok {
		return p.ReplaceEvent(ctx, id, event)
	}

	var errs []error
	for _, p := range f.providers {
		err := p.ReplaceEvent(ctx, eventID, event)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", audit.ProviderName(p), err))
		if ctx.Err() != nil {
			break
		}
	}
	return f.failure("replace", eventID, errs)
}

// GetEvent implements audit.DataProvider.
func (f *Fallback) GetEvent(ctx context.Context, eventID any, dest audit.Auditable) error {
	if p, id, ok := routedTarget(f.providers, eventID); ok {
		return p.GetEvent(ctx, id, dest)
	}

	var errs []error
	for _, p := range f.providers {
		err := p.GetEvent(ctx, eventID, dest)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	if allNotFound(errs) {
		return audit.NewNotFoundError(f.Name(), eventID)
	}
	return f.failure("get", eventID, errs)
}

// CloneValue implements audit.DataProvider using the primary provider.
func (f *Fallback) CloneValue(value any) (any, error) {
	return cloneWith(f.providers, value)
}

// Close closes every provider.
func (f *Fallback) Close() error {
	return closeAll(f.providers)
}

func (f *Fallback) failure(operation string, eventID any, errs []error) error {
	if len(errs) == 0 {
		errs = append(errs, errNoProviders)
	}
	return &audit.StorageError{
		Provider:  f.Name(),
		Operation: operation,
		EventID:   eventID,
		Cause:     errors.Join(errs...),
	}
}

// allNotFound reports whether every error is a not-found or not-supported
// error, with at least one not-found.
func allNotFound(errs []error) bool {
	found := false
	for _, err := range errs {
		switch {
		case errors.Is(err, audit.ErrNotFound):
			found = true
		case errors.Is(err, audit.ErrNotSupported):
		default:
			return false
		}
	}
	return found
}
