package wrappers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/ledger/pkg/audit"
)

// Hedge starts an insert on the first provider and, if it has not succeeded
// after Delay (or fails sooner), starts the same insert on the next one. The
// first success wins and the others are cancelled.
//
// Cancellation is best-effort: a losing provider that already committed keeps
// its copy of the event. Use Hedge with idempotent or disposable sinks.
type Hedge struct {
	providers []audit.DataProvider
	delay     time.Duration
	logger    *slog.Logger
}

// NewHedge returns a hedge over providers, launching the next attempt after
// delay.
func NewHedge(delay time.Duration, providers ...audit.DataProvider) *Hedge {
	return &Hedge{
		providers: providers,
		delay:     delay,
		logger:    slog.Default().With("component", "audit.provider.hedge"),
	}
}

// Name implements audit.Named.
func (h *Hedge) Name() string {
	return "hedge"
}

type hedgeResult struct {
	index int
	id    any
	err   error
}

// InsertEvent implements audit.DataProvider.
func (h *Hedge) InsertEvent(ctx context.Context, event audit.Auditable) (any, error) {
	if len(h.providers) == 0 {
		return nil, audit.NewStorageError(h.Name(), "insert", errNoProviders)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan hedgeResult, len(h.providers))
	launch := func(i int) {
		go func() {
			id, err := h.providers[i].InsertEvent(ctx, event)
			results <- hedgeResult{index: i, id: id, err: err}
		}()
	}

	timer := time.NewTimer(h.delay)
	defer timer.Stop()

	launched, pending := 1, 1
	launch(0)

	var errs []error
	for pending > 0 {
		select {
		case res := <-results:
			pending--
			if res.err == nil {
				if res.index > 0 {
					h.logger.Debug("hedged insert won", "provider", audit.ProviderName(h.providers[res.index]), "index", res.index)
				}
				return RoutedID{Index: res.index, Provider: audit.ProviderName(h.providers[res.index]), ID: res.id}, nil
			}
			errs = append(errs, fmt.Errorf("%s: %w", audit.ProviderName(h.providers[res.index]), res.err))

			// Fail fast to the next provider.
			if launched < len(h.providers) && ctx.Err() == nil {
				launch(launched)
				launched++
				pending++
				resetTimer(timer, h.delay)
			}

		case <-timer.C:
			if launched < len(h.providers) {
				launch(launched)
				launched++
				pending++
				timer.Reset(h.delay)
			}

		case <-ctx.Done():
			errs = append(errs, ctx.Err())
			return nil, &audit.StorageError{Provider: h.Name(), Operation: "insert", Cause: errors.Join(errs...)}
		}
	}

	return nil, &audit.StorageError{Provider: h.Name(), Operation: "insert", Cause: errors.Join(errs...)}
}

// ReplaceEvent implements audit.DataProvider. Only RoutedIDs issued by this
// hedge are accepted.
func (h *Hedge) ReplaceEvent(ctx context.Context, eventID any, event audit.Auditable) error {
	p, id, ok := routedTarget(h.providers, eventID)
	if !ok {
		return audit.NewStorageError(h.Name(), "replace", audit.NewNotFoundError(h.Name(), eventID))
	}
	return p.ReplaceEvent(ctx, id, event)
}

// GetEvent implements audit.DataProvider. Only RoutedIDs issued by this
// hedge are accepted.
func (h *Hedge) GetEvent(ctx context.Context, eventID any, dest audit.Auditable) error {
	p, id, ok := routedTarget(h.providers, eventID)
	if !ok {
		return audit.NewNotFoundError(h.Name(), eventID)
	}
	return p.GetEvent(ctx, id, dest)
}

// CloneValue implements audit.DataProvider.
func (h *Hedge) CloneValue(value any) (any, error) {
	return cloneWith(h.providers, value)
}

// Close closes every provider.
func (h *Hedge) Close() error {
	return closeAll(h.providers)
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
