package tracing

import (
	"context"

	"mercator-hq/ledger/pkg/audit"
)

// Custom fields set by TraceContextAction.
const (
	FieldTraceID = "traceId"
	FieldSpanID  = "spanId"
)

// TraceContextAction returns an OnScopeCreated action that stamps the
// active trace and span ids onto the event, linking stored audit events to
// traces. Nothing is set when ctx carries no valid span.
func TraceContextAction() audit.Action {
	return func(ctx context.Context, s *audit.Scope) error {
		if traceID := TraceID(ctx); traceID != "" {
			s.SetCustomField(FieldTraceID, traceID)
			s.SetCustomField(FieldSpanID, SpanID(ctx))
		}
		return nil
	}
}
