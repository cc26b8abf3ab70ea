package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/audit/providers/memory"
	"mercator-hq/ledger/pkg/config"
	"mercator-hq/ledger/pkg/telemetry/logging"
)

func newTestTracer(t *testing.T) (*Tracer, *tracetest.InMemoryExporter) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewWithProvider(tp), exporter
}

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		config      *config.TracingConfig
		wantErr     bool
		wantEnabled bool
	}{
		{name: "nil config", config: nil, wantErr: true},
		{name: "disabled", config: &config.TracingConfig{}, wantEnabled: false},
		{name: "bad sampler", config: &config.TracingConfig{Enabled: true, Sampler: "sometimes", Endpoint: "localhost:4317"}, wantErr: true},
		{
			name: "otlp",
			config: &config.TracingConfig{
				Enabled:     true,
				Sampler:     SamplerAlways,
				Endpoint:    "localhost:4317",
				ServiceName: "ledger-test",
				Insecure:    true,
			},
			wantEnabled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracer, err := New(tt.config, "test")
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer tracer.Shutdown(context.Background())

			if tracer.Enabled() != tt.wantEnabled {
				t.Errorf("Enabled() = %v, want %v", tracer.Enabled(), tt.wantEnabled)
			}
		})
	}
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		strategy string
		ratio    float64
		wantErr  bool
	}{
		{SamplerAlways, 0, false},
		{SamplerNever, 0, false},
		{SamplerRatio, 0.25, false},
		{SamplerRatio, 1.5, true},
		{"adaptive", 0, true},
	}

	for _, tt := range tests {
		_, err := createSampler(tt.strategy, tt.ratio)
		if (err != nil) != tt.wantErr {
			t.Errorf("createSampler(%q, %v) error = %v, wantErr %v", tt.strategy, tt.ratio, err, tt.wantErr)
		}
	}
}

func TestTraced_Spans(t *testing.T) {
	ctx := context.Background()
	tracer, exporter := newTestTracer(t)
	p := tracer.Trace(memory.New(nil))

	id, err := p.InsertEvent(ctx, &audit.Event{EventType: "order:create"})
	if err != nil {
		t.Fatalf("InsertEvent() error = %v", err)
	}
	if err := p.ReplaceEvent(ctx, "missing", &audit.Event{EventType: "order:create"}); err == nil {
		t.Fatal("expected error for unknown id")
	}

	spans := exporter.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("got %d spans, want 2", len(spans))
	}

	insert := spans[0]
	if insert.Name != "audit.insert" {
		t.Errorf("span name = %q", insert.Name)
	}
	attrs := map[string]string{}
	for _, kv := range insert.Attributes {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["audit.provider"] != "memory" || attrs["audit.event_type"] != "order:create" || attrs["audit.event_id"] != id {
		t.Errorf("insert attributes = %v", attrs)
	}
	if insert.Status.Code != codes.Ok {
		t.Errorf("insert status = %v", insert.Status.Code)
	}

	if spans[1].Status.Code != codes.Error {
		t.Errorf("replace status = %v, want error", spans[1].Status.Code)
	}
}

func TestTraced_KeepsCapabilities(t *testing.T) {
	tracer, _ := newTestTracer(t)
	p := tracer.Trace(memory.New(nil))

	if _, ok := audit.As[audit.Queryer](p); !ok {
		t.Error("Queryer not reachable through the decorator")
	}
}

func TestTraceContextAction(t *testing.T) {
	tracer, _ := newTestTracer(t)
	conf := audit.NewConfiguration(
		audit.WithDataProvider(memory.New(nil)),
		audit.WithAction(audit.OnScopeCreated, TraceContextAction()),
	)

	ctx, span := tracer.Start(context.Background(), "request")
	defer span.End()

	s, err := audit.NewScope(ctx, conf, &audit.ScopeOptions{EventType: "login"})
	if err != nil {
		t.Fatalf("NewScope() error = %v", err)
	}
	if got, _ := s.Event().CustomField(FieldTraceID); got != span.SpanContext().TraceID().String() {
		t.Errorf("traceId = %v", got)
	}
	if got, _ := s.Event().CustomField(FieldSpanID); got != span.SpanContext().SpanID().String() {
		t.Errorf("spanId = %v", got)
	}

	// No span, no fields.
	s2, err := audit.NewScope(context.Background(), conf, &audit.ScopeOptions{EventType: "login"})
	if err != nil {
		t.Fatalf("NewScope() error = %v", err)
	}
	if _, ok := s2.Event().CustomField(FieldTraceID); ok {
		t.Error("traceId set without a span")
	}
}

func TestHTTPMiddleware(t *testing.T) {
	tracer, exporter := newTestTracer(t)

	var gotTraceID string
	handler := tracer.HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTraceID = logging.Get(r.Context(), logging.TraceIDKey)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	if gotTraceID == "" {
		t.Fatal("trace id not added to the logging context")
	}
	if rec.Header().Get("X-Trace-ID") != gotTraceID {
		t.Errorf("X-Trace-ID = %q, want %q", rec.Header().Get("X-Trace-ID"), gotTraceID)
	}
	if spans := exporter.GetSpans(); len(spans) != 1 || spans[0].Name != "GET /events" {
		t.Errorf("spans = %v", spans)
	}
}

func TestTraceID_Empty(t *testing.T) {
	if TraceID(context.Background()) != "" || SpanID(context.Background()) != "" {
		t.Error("expected empty ids without a span")
	}
}
