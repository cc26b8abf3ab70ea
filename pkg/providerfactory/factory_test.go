package providerfactory

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/audit/providers/file"
	"mercator-hq/ledger/pkg/audit/providers/wrappers"
	"mercator-hq/ledger/pkg/audit/serialization"
	"mercator-hq/ledger/pkg/config"
	"mercator-hq/ledger/pkg/telemetry/metrics"
)

func testConfig(t *testing.T, backend string, fallback ...string) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Storage.Backend = backend
	cfg.Storage.Fallback = fallback
	cfg.Storage.Retry.Enabled = false
	cfg.Storage.SQLite.Driver = "sqlite"
	cfg.Storage.SQLite.Path = filepath.Join(t.TempDir(), "audit.db")
	cfg.Storage.File.Path = filepath.Join(t.TempDir(), "audit.jsonl")
	return cfg
}

func newTestStack(t *testing.T, cfg *config.Config, opts Options) *Stack {
	t.Helper()
	stack, err := NewStack(cfg, opts)
	if err != nil {
		t.Fatalf("NewStack() error = %v", err)
	}
	t.Cleanup(func() { _ = stack.Close() })
	return stack
}

func TestNewBackend(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr bool
	}{
		{name: "memory"},
		{name: "file"},
		{name: "sqlite"},
		{name: "postgres", modify: func(c *config.Config) { c.Storage.Postgres.DSN = "postgres://u:p@localhost:5432/audit" }},
		{name: "postgres", modify: func(c *config.Config) { c.Storage.Postgres.DSN = "" }, wantErr: true},
		{name: "clickhouse", modify: func(c *config.Config) { c.Storage.ClickHouse.DSN = "clickhouse://localhost:9000/audit" }},
		{name: "redis", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, tt.name)
			if tt.modify != nil {
				tt.modify(cfg)
			}

			p, err := NewBackend(tt.name, &cfg.Storage, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewBackend() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got := audit.ProviderName(p); got != tt.name {
				t.Errorf("ProviderName() = %q, want %q", got, tt.name)
			}
		})
	}
}

func TestNewBackend_FileWritesJSON(t *testing.T) {
	cfg := testConfig(t, "file")
	cfg.Audit.Serializer = "yaml"

	p, err := NewBackend("file", &cfg.Storage, serialization.YAML{})
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	fp, ok := p.(*file.Provider)
	if !ok {
		t.Fatalf("NewBackend() = %T, want *file.Provider", p)
	}
	t.Cleanup(func() { _ = fp.Close() })

	if got := fp.Serializer().Name(); got != "json" {
		t.Errorf("Serializer() = %q, want json", got)
	}
}

func TestNewStack_Modes(t *testing.T) {
	tests := []struct {
		mode     string
		fallback []string
		wantName string
	}{
		{mode: "fallback", wantName: "memory"},
		{mode: "fallback", fallback: []string{"file"}, wantName: "fallback"},
		{mode: "multiplex", fallback: []string{"file"}, wantName: "multiplex"},
		{mode: "best_effort", fallback: []string{"file"}, wantName: "multiplex"},
		{mode: "round_robin", fallback: []string{"file"}, wantName: "round-robin"},
		{mode: "hedge", fallback: []string{"file"}, wantName: "hedge"},
	}

	for _, tt := range tests {
		t.Run(tt.wantName+"/"+tt.mode, func(t *testing.T) {
			cfg := testConfig(t, "memory", tt.fallback...)
			cfg.Storage.Mode = tt.mode

			stack := newTestStack(t, cfg, Options{})
			if got := audit.ProviderName(stack.Provider); got != tt.wantName {
				t.Errorf("provider = %q, want %q", got, tt.wantName)
			}
			if len(stack.Backends) != 1+len(tt.fallback) {
				t.Errorf("got %d backends", len(stack.Backends))
			}

			id, err := stack.Provider.InsertEvent(context.Background(), &audit.Event{EventType: "Order:Create"})
			if err != nil || id == nil {
				t.Fatalf("InsertEvent() = %v, %v", id, err)
			}
		})
	}
}

func TestNewStack_RoundRobinWeights(t *testing.T) {
	cfg := testConfig(t, "memory", "file")
	cfg.Storage.Mode = "round_robin"
	cfg.Storage.Retry.Enabled = true
	cfg.Storage.Retry.MaxTries = 2
	cfg.Storage.Weights = map[string]int{"file": 0}

	stack := newTestStack(t, cfg, Options{})
	for i := 0; i < 4; i++ {
		id, err := stack.Provider.InsertEvent(context.Background(), &audit.Event{EventType: "Order:Create"})
		if err != nil {
			t.Fatalf("InsertEvent() error = %v", err)
		}
		routed, ok := id.(wrappers.RoutedID)
		if !ok {
			t.Fatalf("id = %T, want wrappers.RoutedID", id)
		}
		if routed.Index != 0 {
			t.Errorf("insert %d went to backend %d (%s)", i, routed.Index, routed.Provider)
		}
	}
}

func TestNewStack_UnknownMode(t *testing.T) {
	cfg := testConfig(t, "memory", "file")
	cfg.Storage.Mode = "broadcast"
	if _, err := NewStack(cfg, Options{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewStack_Decorators(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.Storage.Retry.Enabled = true
	cfg.Storage.Retry.MaxTries = 3

	collector := metrics.NewCollector(&config.MetricsConfig{Enabled: true}, prometheus.NewRegistry())
	stack := newTestStack(t, cfg, Options{Metrics: collector})

	if got := audit.ProviderName(stack.Provider); got != "retry(memory)" {
		t.Errorf("provider = %q", got)
	}
	if _, ok := audit.As[*metrics.Instrumented](stack.Provider); !ok {
		t.Error("metrics decorator missing")
	}
	if _, ok := audit.As[audit.Queryer](stack.Primary()); !ok {
		t.Error("Queryer not reachable from the primary")
	}
	if _, ok := audit.As[audit.Pruner](stack.Primary()); !ok {
		t.Error("Pruner not reachable from the primary")
	}
}

func TestNewConfiguration(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.Audit.CreationPolicy = "insert_on_start_replace_on_end"
	cfg.Audit.Actions.StaticFields = map[string]string{"service": "billing"}
	cfg.Audit.Actions.MaxFieldLength = 20
	cfg.Audit.Actions.HashTarget = true

	stack := newTestStack(t, cfg, Options{})
	conf := NewConfiguration(cfg, stack.Provider, Options{})

	settings := conf.Snapshot()
	if settings.CreationPolicy != audit.InsertOnStartReplaceOnEnd {
		t.Errorf("policy = %v", settings.CreationPolicy)
	}
	if settings.Disabled {
		t.Error("auditing disabled")
	}

	target := map[string]string{"status": "open"}
	s, err := audit.NewScope(context.Background(), conf, &audit.ScopeOptions{
		EventType:    "Order:Update",
		TargetGetter: func() any { return target },
	})
	if err != nil {
		t.Fatalf("NewScope() error = %v", err)
	}
	s.SetCustomField("email", "alice@example.com")
	s.SetCustomField("note", "this note is far too long to keep")
	if err := s.Close(context.Background()); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	stored, err := audit.GetEventAs[audit.Event](context.Background(), stack.Provider, s.EventID())
	if err != nil {
		t.Fatalf("GetEventAs() error = %v", err)
	}

	want := map[string]any{
		"service": "billing",
		"email":   "***@example.com",
		"note":    "this note is far ...",
	}
	for k, v := range want {
		if stored.CustomFields[k] != v {
			t.Errorf("%s = %v, want %v", k, stored.CustomFields[k], v)
		}
	}
	if _, ok := stored.CustomFields["targetNewHash"]; !ok {
		t.Error("target hash missing")
	}
}

func TestNewConfiguration_Disabled(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.Audit.Enabled = false
	stack := newTestStack(t, cfg, Options{})

	conf := NewConfiguration(cfg, stack.Provider, Options{})
	if !conf.Snapshot().Disabled {
		t.Error("expected disabled configuration")
	}
}

func TestManager_Reload(t *testing.T) {
	cfg := testConfig(t, "memory")
	cfg.Server.ShutdownTimeout = 10 * time.Millisecond
	cfg.Audit.Actions.StaticFields = map[string]string{"service": "billing"}

	m, err := NewManager(cfg, Options{})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	conf := m.Configuration()
	before := len(conf.Snapshot().Actions(audit.OnScopeCreated))

	next := testConfig(t, "file")
	next.Server.ShutdownTimeout = 10 * time.Millisecond
	next.Audit.Actions.StaticFields = map[string]string{"service": "billing"}
	if err := m.Reload(next); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	if m.Configuration() != conf {
		t.Error("configuration pointer changed")
	}
	if got := audit.ProviderName(conf.Snapshot().DataProvider); got != "file" {
		t.Errorf("provider after reload = %q", got)
	}
	if after := len(conf.Snapshot().Actions(audit.OnScopeCreated)); after != before {
		t.Errorf("actions after reload = %d, want %d", after, before)
	}

	bad := testConfig(t, "redis")
	if err := m.Reload(bad); err == nil {
		t.Fatal("expected reload error")
	}
	if got := audit.ProviderName(m.Stack().Provider); got != "file" {
		t.Errorf("stack replaced on failed reload: %q", got)
	}
}
