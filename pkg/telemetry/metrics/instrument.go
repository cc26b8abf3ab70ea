package metrics

import (
	"context"
	"io"
	"time"

	"mercator-hq/ledger/pkg/audit"
)

// Instrumented decorates a provider with call metrics. Optional
// capabilities of the wrapped provider stay reachable through audit.As.
type Instrumented struct {
	inner     audit.DataProvider
	collector *Collector
	name      string
}

// Instrument wraps p so every call is recorded under p's name.
func (c *Collector) Instrument(p audit.DataProvider) *Instrumented {
	return &Instrumented{inner: p, collector: c, name: audit.ProviderName(p)}
}

// Name implements audit.Named.
func (i *Instrumented) Name() string {
	return i.name
}

// Unwrap implements audit.Unwrapper.
func (i *Instrumented) Unwrap() audit.DataProvider {
	return i.inner
}

func (i *Instrumented) observe(operation string, start time.Time, err error) {
	i.collector.RecordStorageCall(i.name, operation, time.Since(start), err)
}

// InsertEvent implements audit.DataProvider.
func (i *Instrumented) InsertEvent(ctx context.Context, event audit.Auditable) (id any, err error) {
	start := time.Now()
	defer func() { i.observe("insert", start, err) }()
	return i.inner.InsertEvent(ctx, event)
}

// ReplaceEvent implements audit.DataProvider.
func (i *Instrumented) ReplaceEvent(ctx context.Context, eventID any, event audit.Auditable) (err error) {
	start := time.Now()
	defer func() { i.observe("replace", start, err) }()
	return i.inner.ReplaceEvent(ctx, eventID, event)
}

// GetEvent implements audit.DataProvider.
func (i *Instrumented) GetEvent(ctx context.Context, eventID any, dest audit.Auditable) (err error) {
	start := time.Now()
	defer func() { i.observe("get", start, err) }()
	return i.inner.GetEvent(ctx, eventID, dest)
}

// CloneValue implements audit.DataProvider.
func (i *Instrumented) CloneValue(value any) (any, error) {
	return i.inner.CloneValue(value)
}

// Close closes the wrapped provider.
func (i *Instrumented) Close() error {
	if c, ok := i.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
