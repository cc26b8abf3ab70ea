// Package dynamic provides a data provider built from plain functions, for
// ad-hoc sinks (a log line, a channel, a webhook) and for tests.
package dynamic

import (
	"context"

	"mercator-hq/ledger/pkg/audit"
)

// Provider implements audit.DataProvider by delegating to its function
// fields. A nil OnInsert accepts the event and returns a nil id; a nil
// OnReplace accepts the replace; a nil OnGet reports audit.ErrNotSupported.
type Provider struct {
	audit.BaseProvider

	// ProviderName is reported by Name. Default: "dynamic".
	ProviderName string

	OnInsert  func(ctx context.Context, event audit.Auditable) (any, error)
	OnReplace func(ctx context.Context, eventID any, event audit.Auditable) error
	OnGet     func(ctx context.Context, eventID any, dest audit.Auditable) error
}

// New returns a provider that calls onInsert for every insert and replace.
// Useful for write-only sinks that do not distinguish the two.
func New(onInsert func(ctx context.Context, event audit.Auditable) error) *Provider {
	return &Provider{
		OnInsert: func(ctx context.Context, event audit.Auditable) (any, error) {
			return nil, onInsert(ctx, event)
		},
		OnReplace: func(ctx context.Context, eventID any, event audit.Auditable) error {
			return onInsert(ctx, event)
		},
	}
}

// Name implements audit.Named.
func (p *Provider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "dynamic"
}

// InsertEvent implements audit.DataProvider.
func (p *Provider) InsertEvent(ctx context.Context, event audit.Auditable) (any, error) {
	if p.OnInsert == nil {
		return nil, nil
	}
	return p.OnInsert(ctx, event)
}

// ReplaceEvent implements audit.DataProvider.
func (p *Provider) ReplaceEvent(ctx context.Context, eventID any, event audit.Auditable) error {
	if p.OnReplace == nil {
		return nil
	}
	return p.OnReplace(ctx, eventID, event)
}

// GetEvent implements audit.DataProvider.
func (p *Provider) GetEvent(ctx context.Context, eventID any, dest audit.Auditable) error {
	if p.OnGet == nil {
		return audit.ErrNotSupported
	}
	return p.OnGet(ctx, eventID, dest)
}
