package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/audit/providers/memory"
	"mercator-hq/ledger/pkg/config"
)

// pingProvider is a memory provider whose Ping result is fixed.
type pingProvider struct {
	*memory.Provider
	err error
}

func (p *pingProvider) Name() string                   { return "pinged" }
func (p *pingProvider) Ping(ctx context.Context) error { return p.err }

// wrapper hides the wrapped provider's methods except through Unwrap.
type wrapper struct {
	audit.DataProvider
}

func (w wrapper) Unwrap() audit.DataProvider { return w.DataProvider }

func TestReadiness(t *testing.T) {
	failing := func(ctx context.Context) error { return errors.New("down") }
	passing := func(ctx context.Context) error { return nil }

	tests := []struct {
		name   string
		checks map[string]CheckFunc
		want   string
	}{
		{name: "no checks", checks: nil, want: StatusReady},
		{name: "all pass", checks: map[string]CheckFunc{"a": passing, "b": passing}, want: StatusReady},
		{name: "some fail", checks: map[string]CheckFunc{"a": passing, "b": failing}, want: StatusDegraded},
		{name: "all fail", checks: map[string]CheckFunc{"a": failing}, want: StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(time.Second)
			for name, check := range tt.checks {
				c.Register(name, check)
			}

			status := c.Readiness(context.Background())
			if status.Status != tt.want {
				t.Errorf("Status = %q, want %q", status.Status, tt.want)
			}
			if len(status.Checks) != len(tt.checks) {
				t.Errorf("got %d results, want %d", len(status.Checks), len(tt.checks))
			}
		})
	}
}

func TestReadiness_Timeout(t *testing.T) {
	c := New(20 * time.Millisecond)
	c.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	status := c.Readiness(context.Background())
	result := status.Checks["slow"]
	if result.Status != StatusUnhealthy || result.Message != ErrCheckTimeout.Error() {
		t.Errorf("result = %+v", result)
	}
}

func TestRegisterUnregister(t *testing.T) {
	c := New(0)
	c.Register("b", func(ctx context.Context) error { return nil })
	c.Register("a", func(ctx context.Context) error { return nil })

	if got := c.Names(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Names() = %v", got)
	}

	c.Unregister("a")
	if got := c.Names(); len(got) != 1 || got[0] != "b" {
		t.Errorf("Names() = %v", got)
	}
}

func TestProviderCheck(t *testing.T) {
	tests := []struct {
		name     string
		provider audit.DataProvider
		wantErr  bool
		wantUp   bool
	}{
		{name: "pinger up", provider: &pingProvider{Provider: memory.New(nil)}, wantUp: true},
		{name: "pinger down", provider: &pingProvider{Provider: memory.New(nil), err: errors.New("refused")}, wantErr: true},
		{name: "pinger behind decorator", provider: wrapper{&pingProvider{Provider: memory.New(nil), err: errors.New("refused")}}, wantErr: true},
		{name: "memory", provider: memory.New(nil), wantUp: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotUp bool
			called := false
			check := ProviderCheck(tt.provider, func(provider string, up bool) {
				called = true
				gotUp = up
			})

			err := check(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("check() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !called {
				t.Fatal("onResult not called")
			}
			if gotUp != tt.wantUp {
				t.Errorf("up = %v, want %v", gotUp, tt.wantUp)
			}
		})
	}
}

func TestConfigCheck(t *testing.T) {
	t.Cleanup(func() { config.SetConfig(nil) })

	config.SetConfig(nil)
	if err := ConfigCheck()(context.Background()); err == nil {
		t.Error("expected error without configuration")
	}

	config.SetConfig(config.Defaults())
	if err := ConfigCheck()(context.Background()); err != nil {
		t.Errorf("ConfigCheck() error = %v", err)
	}

	bad := config.Defaults()
	bad.Storage.Backend = "oracle"
	config.SetConfig(bad)
	if err := ConfigCheck()(context.Background()); err == nil {
		t.Error("expected validation error")
	}
}

func TestHandlers(t *testing.T) {
	c := New(time.Second)
	c.Register("storage", func(ctx context.Context) error { return errors.New("down") })

	mux := http.NewServeMux()
	cfg := config.Defaults().Telemetry.Health
	Register(mux, c, &cfg, "1.0.0", "abc123", "2026-01-01")

	tests := []struct {
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{http.MethodGet, "/health", http.StatusOK, StatusOK},
		{http.MethodGet, "/ready", http.StatusServiceUnavailable, StatusUnhealthy},
		{http.MethodPost, "/health", http.StatusMethodNotAllowed, ""},
		{http.MethodHead, "/health", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantBody == "" {
				return
			}
			var status Status
			if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if status.Status != tt.wantBody {
				t.Errorf("body status = %q, want %q", status.Status, tt.wantBody)
			}
		})
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	var info VersionInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info.Version != "1.0.0" || info.Commit != "abc123" || info.GoVersion == "" {
		t.Errorf("version = %+v", info)
	}
}
