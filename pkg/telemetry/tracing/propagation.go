package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"mercator-hq/ledger/pkg/telemetry/logging"
)

// Extract returns ctx with the trace context found in headers.
func Extract(ctx context.Context, headers http.Header) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(headers))
}

// Inject writes the trace context in ctx into headers.
func Inject(ctx context.Context, headers http.Header) {
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// HTTPMiddleware extracts incoming trace context, starts a server span and
// adds the trace and span ids to the logging context, so audit scopes and
// log lines created by next carry them.
func (t *Tracer) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := Extract(r.Context(), r.Header)
		ctx, span := t.Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()

		if traceID := TraceID(ctx); traceID != "" {
			ctx = logging.WithTraceID(ctx, traceID)
			ctx = logging.WithSpanID(ctx, SpanID(ctx))
			w.Header().Set("X-Trace-ID", traceID)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
