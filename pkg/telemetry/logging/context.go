package logging

import (
	"context"
)

type contextKey string

// Context keys for fields the handler adds to every record logged with a
// context.
const (
	RequestIDKey contextKey = "request_id"
	UserKey      contextKey = "user"
	EventTypeKey contextKey = "event_type"
	ScopeIDKey   contextKey = "scope_id"
	TraceIDKey   contextKey = "trace_id"
	SpanIDKey    contextKey = "span_id"
)

// contextKeys lists the keys in the order they are emitted.
var contextKeys = []contextKey{RequestIDKey, UserKey, EventTypeKey, ScopeIDKey, TraceIDKey, SpanIDKey}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUser adds a user identifier to the context.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// WithEventType adds the audit event type to the context.
func WithEventType(ctx context.Context, eventType string) context.Context {
	return context.WithValue(ctx, EventTypeKey, eventType)
}

// WithScopeID adds the stored event id of a scope to the context.
func WithScopeID(ctx context.Context, scopeID string) context.Context {
	return context.WithValue(ctx, ScopeIDKey, scopeID)
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithSpanID adds a span ID to the context.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, SpanIDKey, spanID)
}

// Get returns the string stored under key, or "".
func Get(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// ContextFields returns the non-empty context fields as key/value pairs.
func ContextFields(ctx context.Context) []any {
	var fields []any
	for _, key := range contextKeys {
		if v := Get(ctx, key); v != "" {
			fields = append(fields, string(key), v)
		}
	}
	return fields
}
