package wrappers

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"mercator-hq/ledger/pkg/audit"
)

// Lazy defers building a provider until its first call. Concurrent first
// calls run the factory exactly once. A failed factory is not cached; the
// next call tries again.
type Lazy struct {
	factory func(ctx context.Context) (audit.DataProvider, error)

	mu       sync.Mutex
	provider atomic.Pointer[providerBox]
}

// providerBox lets an interface value live behind an atomic pointer.
type providerBox struct {
	p audit.DataProvider
}

// NewLazy wraps factory.
func NewLazy(factory func(ctx context.Context) (audit.DataProvider, error)) *Lazy {
	return &Lazy{factory: factory}
}

// Name implements audit.Named.
func (l *Lazy) Name() string {
	if box := l.provider.Load(); box != nil {
		return "lazy(" + audit.ProviderName(box.p) + ")"
	}
	return "lazy"
}

// Unwrap implements audit.Unwrapper. It returns nil before the first call.
func (l *Lazy) Unwrap() audit.DataProvider {
	if box := l.provider.Load(); box != nil {
		return box.p
	}
	return nil
}

// Get returns the provider, building it on first use.
func (l *Lazy) Get(ctx context.Context) (audit.DataProvider, error) {
	if box := l.provider.Load(); box != nil {
		return box.p, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if box := l.provider.Load(); box != nil {
		return box.p, nil
	}

	p, err := l.factory(ctx)
	if err != nil {
		return nil, audit.NewStorageError(l.Name(), "init", err)
	}
	l.provider.Store(&providerBox{p: p})
	return p, nil
}

// InsertEvent implements audit.DataProvider.
func (l *Lazy) InsertEvent(ctx context.Context, event audit.Auditable) (any, error) {
	p, err := l.Get(ctx)
	if err != nil {
		return nil, err
	}
	return p.InsertEvent(ctx, event)
}

// ReplaceEvent implements audit.DataProvider.
func (l *Lazy) ReplaceEvent(ctx context.Context, eventID any, event audit.Auditable) error {
	p, err := l.Get(ctx)
	if err != nil {
		return err
	}
	return p.ReplaceEvent(ctx, eventID, event)
}

// GetEvent implements audit.DataProvider.
func (l *Lazy) GetEvent(ctx context.Context, eventID any, dest audit.Auditable) error {
	p, err := l.Get(ctx)
	if err != nil {
		return err
	}
	return p.GetEvent(ctx, eventID, dest)
}

// CloneValue implements audit.DataProvider. Before the provider is built it
// clones with JSON rather than forcing construction.
func (l *Lazy) CloneValue(value any) (any, error) {
	if box := l.provider.Load(); box != nil {
		return box.p.CloneValue(value)
	}
	return audit.BaseProvider{}.CloneValue(value)
}

// Close closes the provider if it was built.
func (l *Lazy) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	box := l.provider.Swap(nil)
	if box == nil {
		return nil
	}
	if c, ok := box.p.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
