package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/ledger/pkg/audit"
)

// Attribute keys set on storage spans.
const (
	AttrProvider  = attribute.Key("audit.provider")
	AttrEventType = attribute.Key("audit.event_type")
	AttrEventID   = attribute.Key("audit.event_id")
)

// Traced decorates a provider with a client span per storage call.
// Optional capabilities of the wrapped provider stay reachable through
// audit.As.
type Traced struct {
	inner  audit.DataProvider
	tracer *Tracer
	name   string
}

// Trace wraps p.
func (t *Tracer) Trace(p audit.DataProvider) *Traced {
	return &Traced{inner: p, tracer: t, name: audit.ProviderName(p)}
}

// Name implements audit.Named.
func (p *Traced) Name() string {
	return p.name
}

// Unwrap implements audit.Unwrapper.
func (p *Traced) Unwrap() audit.DataProvider {
	return p.inner
}

func (p *Traced) start(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, AttrProvider.String(p.name))
	return p.tracer.Start(ctx, "audit."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attrs...),
	)
}

func eventType(event audit.Auditable) attribute.KeyValue {
	if event == nil || event.AuditEvent() == nil {
		return AttrEventType.String("")
	}
	return AttrEventType.String(event.AuditEvent().EventType)
}

// InsertEvent implements audit.DataProvider.
func (p *Traced) InsertEvent(ctx context.Context, event audit.Auditable) (any, error) {
	ctx, span := p.start(ctx, "insert", eventType(event))
	defer span.End()

	id, err := p.inner.InsertEvent(ctx, event)
	if err == nil {
		span.SetAttributes(AttrEventID.String(fmt.Sprint(id)))
	}
	SetStatus(span, err)
	return id, err
}

// ReplaceEvent implements audit.DataProvider.
func (p *Traced) ReplaceEvent(ctx context.Context, eventID any, event audit.Auditable) error {
	ctx, span := p.start(ctx, "replace", eventType(event), AttrEventID.String(fmt.Sprint(eventID)))
	defer span.End()

	err := p.inner.ReplaceEvent(ctx, eventID, event)
	SetStatus(span, err)
	return err
}

// GetEvent implements audit.DataProvider.
func (p *Traced) GetEvent(ctx context.Context, eventID any, dest audit.Auditable) error {
	ctx, span := p.start(ctx, "get", AttrEventID.String(fmt.Sprint(eventID)))
	defer span.End()

	err := p.inner.GetEvent(ctx, eventID, dest)
	SetStatus(span, err)
	return err
}

// CloneValue implements audit.DataProvider.
func (p *Traced) CloneValue(value any) (any, error) {
	return p.inner.CloneValue(value)
}

// Close closes the wrapped provider.
func (p *Traced) Close() error {
	if c, ok := p.inner.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
