package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/audit/providers/memory"
	"mercator-hq/ledger/pkg/config"
)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:                true,
		Namespace:              "test",
		Subsystem:              "ledger",
		StorageDurationBuckets: []float64{0.001, 0.01, 0.1, 1},
	}
}

func TestNewCollector_Defaults(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}
	c := NewCollector(cfg, nil)

	if c.Registry() == nil {
		t.Fatal("Registry() = nil")
	}
	if cfg.Namespace != config.DefaultMetricsNamespace || cfg.Subsystem != config.DefaultMetricsSubsystem {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestInstrument_RecordsCalls(t *testing.T) {
	ctx := context.Background()
	c := NewCollector(testConfig(), nil)
	p := c.Instrument(memory.New(nil))

	id, err := p.InsertEvent(ctx, &audit.Event{EventType: "order:create"})
	if err != nil {
		t.Fatalf("InsertEvent() error = %v", err)
	}
	if err := p.ReplaceEvent(ctx, id, &audit.Event{EventType: "order:create"}); err != nil {
		t.Fatalf("ReplaceEvent() error = %v", err)
	}
	if err := p.ReplaceEvent(ctx, "missing", &audit.Event{}); err == nil {
		t.Fatal("expected not found error")
	}

	calls := c.storage.calls
	if got := testutil.ToFloat64(calls.WithLabelValues("memory", "insert", "success")); got != 1 {
		t.Errorf("insert success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(calls.WithLabelValues("memory", "replace", "success")); got != 1 {
		t.Errorf("replace success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(calls.WithLabelValues("memory", "replace", "error")); got != 1 {
		t.Errorf("replace error = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.storage.errors.WithLabelValues("memory", "replace", "not_found")); got != 1 {
		t.Errorf("not_found errors = %v, want 1", got)
	}
}

func TestInstrument_KeepsCapabilities(t *testing.T) {
	c := NewCollector(testConfig(), nil)
	p := c.Instrument(memory.New(nil))

	if p.Name() != "memory" {
		t.Errorf("Name() = %q", p.Name())
	}
	if _, ok := audit.As[audit.Queryer](p); !ok {
		t.Error("Queryer not reachable through the decorator")
	}
	if _, ok := audit.As[audit.Pruner](p); !ok {
		t.Error("Pruner not reachable through the decorator")
	}
}

func TestCollector_ScopeActions(t *testing.T) {
	ctx := context.Background()
	c := NewCollector(testConfig(), nil)
	conf := audit.NewConfiguration(
		audit.WithDataProvider(memory.New(nil)),
		audit.WithAction(audit.OnScopeCreated, c.ScopeCreatedAction()),
		audit.WithAction(audit.OnEventSaved, c.EventSavedAction()),
	)

	for i := 0; i < 3; i++ {
		s, err := audit.NewScope(ctx, conf, &audit.ScopeOptions{EventType: "order:update"})
		if err != nil {
			t.Fatalf("NewScope() error = %v", err)
		}
		if err := s.Close(ctx); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}

	if got := testutil.ToFloat64(c.scopes.created.WithLabelValues("order:update", "insert_on_end")); got != 3 {
		t.Errorf("scopes created = %v, want 3", got)
	}
	if got := testutil.ToFloat64(c.scopes.saved.WithLabelValues("order:update")); got != 3 {
		t.Errorf("events saved = %v, want 3", got)
	}
}

func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	c := NewCollector(cfg, nil)

	c.RecordStorageCall("memory", "insert", time.Millisecond, nil)
	c.RecordScopeCreated("x", audit.InsertOnEnd)
	c.RecordPrune(5, time.Now(), nil)

	if n := testutil.CollectAndCount(c.storage.calls); n != 0 {
		t.Errorf("disabled collector recorded %d series", n)
	}
	if got := testutil.ToFloat64(c.retention.deleted); got != 0 {
		t.Errorf("pruned = %v, want 0", got)
	}
}

func TestCollector_RecordPrune(t *testing.T) {
	c := NewCollector(testConfig(), nil)
	at := time.Unix(1700000000, 0)

	c.RecordPrune(7, at, nil)
	c.RecordPrune(0, at, errors.New("locked"))

	if got := testutil.ToFloat64(c.retention.deleted); got != 7 {
		t.Errorf("deleted = %v, want 7", got)
	}
	if got := testutil.ToFloat64(c.retention.last); got != 1700000000 {
		t.Errorf("last = %v", got)
	}
	if got := testutil.ToFloat64(c.retention.runs.WithLabelValues("error")); got != 1 {
		t.Errorf("error runs = %v, want 1", got)
	}
}

func TestCollector_EventTypeCardinality(t *testing.T) {
	c := NewCollector(testConfig(), nil)
	c.eventTypes = NewCardinalityLimiter(2)

	for i := 0; i < 5; i++ {
		c.RecordScopeCreated(fmt.Sprintf("type-%d", i), audit.Manual)
	}

	if got := testutil.ToFloat64(c.scopes.created.WithLabelValues(OtherLabel, "manual")); got != 3 {
		t.Errorf("other = %v, want 3", got)
	}
	if c.eventTypes.Count() != 2 {
		t.Errorf("Count() = %d, want 2", c.eventTypes.Count())
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{audit.NewStorageError("m", "get", audit.NewNotFoundError("m", 1)), "not_found"},
		{fmt.Errorf("get: %w", audit.ErrNotSupported), "not_supported"},
		{context.Canceled, "canceled"},
		{context.DeadlineExceeded, "timeout"},
		{&audit.ConfigurationError{Message: "no provider"}, "configuration"},
		{errors.New("disk full"), "storage"},
	}

	for _, tt := range tests {
		if got := ErrorKind(tt.err); got != tt.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector(testConfig(), nil)
	c.UpdateProviderUp("sqlite", true)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `test_ledger_provider_up{provider="sqlite"} 1`) {
		t.Errorf("metrics output missing provider_up:\n%s", rec.Body.String())
	}
}
