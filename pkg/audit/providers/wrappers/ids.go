// Package wrappers provides data providers that compose other data
// providers: retry, fallback, hedging, weighted round-robin, fan-out,
// per-event selection and lazy construction.
//
// Every wrapper implements audit.DataProvider, so wrappers nest freely:
//
//	p := wrappers.NewRetry(
//	    wrappers.NewFallback(postgresProvider, fileProvider),
//	    wrappers.WithMaxTries(3),
//	)
//
// Wrappers that spread events across several providers return a tagged
// event id (RoutedID or MultiID) so a later ReplaceEvent or GetEvent reaches
// the provider that stored the event.
package wrappers

import (
	"errors"
	"fmt"
	"io"

	"mercator-hq/ledger/pkg/audit"
)

var errNoProviders = errors.New("no providers configured")

// RoutedID tags an event id with the provider that accepted it.
type RoutedID struct {
	Index    int    `json:"index"`
	Provider string `json:"provider"`
	ID       any    `json:"id"`
}

// String implements fmt.Stringer.
func (r RoutedID) String() string {
	return fmt.Sprintf("%s#%d:%v", r.Provider, r.Index, r.ID)
}

// MultiID holds the id returned by each provider of a Multiplex, aligned by
// index. Providers that failed (best-effort mode) have a nil id.
type MultiID struct {
	IDs []any `json:"ids"`
}

// routedTarget resolves a RoutedID against providers.
func routedTarget(providers []audit.DataProvider, eventID any) (audit.DataProvider, any, bool) {
	r, ok := eventID.(RoutedID)
	if !ok {
		if rp, isPtr := eventID.(*RoutedID); isPtr && rp != nil {
			r, ok = *rp, true
		}
	}
	if !ok || r.Index < 0 || r.Index >= len(providers) {
		return nil, nil, false
	}
	return providers[r.Index], r.ID, true
}

// closeAll closes every provider that implements io.Closer.
func closeAll(providers []audit.DataProvider) error {
	var errs []error
	for _, p := range providers {
		if c, ok := p.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", audit.ProviderName(p), err))
			}
		}
	}
	return errors.Join(errs...)
}

// cloneWith clones through the first provider, or JSON when there is none.
func cloneWith(providers []audit.DataProvider, value any) (any, error) {
	if len(providers) == 0 {
		return audit.BaseProvider{}.CloneValue(value)
	}
	return providers[0].CloneValue(value)
}
