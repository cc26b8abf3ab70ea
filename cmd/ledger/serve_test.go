package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/config"
)

func newTestService(t *testing.T) *service {
	t.Helper()

	cfg := config.Defaults()
	cfg.Storage.Backend = "memory"
	cfg.Storage.Retry.Enabled = false
	cfg.Telemetry.Health.CheckTimeout = time.Second
	config.SetConfig(cfg)

	svc, err := newService(cfg)
	if err != nil {
		t.Fatalf("newService() error = %v", err)
	}
	t.Cleanup(func() {
		_ = svc.close(context.Background())
		audit.ResetDefault()
		config.SetConfig(nil)
	})
	return svc
}

func seed(t *testing.T, svc *service, eventType string, n int) []any {
	t.Helper()
	var ids []any
	for i := 0; i < n; i++ {
		var scope *audit.Scope
		err := audit.Run(context.Background(), svc.manager.Configuration(), &audit.ScopeOptions{EventType: eventType},
			func(ctx context.Context, s *audit.Scope) error {
				scope = s
				return nil
			})
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		ids = append(ids, scope.EventID())
	}
	return ids
}

func TestServiceEventsAPI(t *testing.T) {
	svc := newTestService(t)
	ids := seed(t, svc, "Login", 3)
	seed(t, svc, "Logout", 1)

	h := svc.handler()

	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantCount int
	}{
		{"all", "/events", http.StatusOK, 4},
		{"by type", "/events?type=Login", http.StatusOK, 3},
		{"limit", "/events?limit=2", http.StatusOK, 2},
		{"offset past end", "/events?offset=10", http.StatusOK, 0},
		{"since", "/events?since=1h", http.StatusOK, 4},
		{"future start", "/events?start=" + url.QueryEscape(time.Now().Add(time.Hour).Format(time.RFC3339)), http.StatusOK, 0},
		{"bad limit", "/events?limit=many", http.StatusBadRequest, -1},
		{"bad since", "/events?since=-1h", http.StatusBadRequest, -1},
		{"bad start", "/events?start=today", http.StatusBadRequest, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))

			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body)
			}
			if tt.wantCount < 0 {
				return
			}
			var records []*audit.Record
			if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if len(records) != tt.wantCount {
				t.Errorf("got %d records, want %d", len(records), tt.wantCount)
			}
		})
	}

	t.Run("get", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/"+ids[0].(string), nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %s", rec.Code, rec.Body)
		}
		var ev audit.Event
		if err := json.Unmarshal(rec.Body.Bytes(), &ev); err != nil {
			t.Fatal(err)
		}
		if ev.EventType != "Login" || ev.EndDate == nil {
			t.Errorf("event = %+v", ev)
		}
	})

	t.Run("get unknown", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events/missing", nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})
}

func TestServiceOperationalEndpoints(t *testing.T) {
	svc := newTestService(t)
	seed(t, svc, "Login", 1)
	h := svc.handler()

	tests := []struct {
		path     string
		wantCode int
		contains string
	}{
		{"/health", http.StatusOK, "ok"},
		{"/ready", http.StatusOK, "storage.memory"},
		{"/version", http.StatusOK, Version},
		{"/metrics", http.StatusOK, "scopes_created_total"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantCode, rec.Body)
			}
			if !strings.Contains(rec.Body.String(), tt.contains) {
				t.Errorf("body missing %q: %s", tt.contains, rec.Body)
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	svc := newTestService(t)
	h := svc.handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected a generated X-Request-ID")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Errorf("X-Request-ID = %q, want req-42", got)
	}
}

func TestServiceReload(t *testing.T) {
	svc := newTestService(t)
	svc.startRetention(context.Background())

	next := config.Defaults()
	next.Storage.Backend = "memory"
	next.Storage.Fallback = []string{"file"}
	next.Storage.File.Path = t.TempDir() + "/audit.jsonl"
	next.Storage.Retry.Enabled = false
	next.Server.ShutdownTimeout = time.Millisecond

	svc.reload(context.Background(), next)

	names := svc.checker.Names()
	want := map[string]bool{"config": true, "storage.memory": true, "storage.file": true}
	if len(names) != len(want) {
		t.Fatalf("checks = %v", names)
	}
	for _, n := range names {
		if !want[n] {
			t.Errorf("unexpected check %q", n)
		}
	}
	if got := svc.manager.Stack().Names; len(got) != 2 {
		t.Errorf("stack names = %v", got)
	}
}

func TestServiceAPIKeys(t *testing.T) {
	svc := newTestService(t)
	next := config.Defaults()
	next.Storage.Backend = "memory"
	next.Storage.Retry.Enabled = false
	next.Server.ShutdownTimeout = time.Millisecond
	next.Server.APIKeys = []config.APIKeyConfig{{Name: "ops", Key: "ops-0123456789abcdef"}}
	svc.reload(context.Background(), next)

	h := svc.handler()

	tests := []struct {
		name     string
		path     string
		key      string
		wantCode int
	}{
		{"events without key", "/events", "", http.StatusUnauthorized},
		{"events with key", "/events", "ops-0123456789abcdef", http.StatusOK},
		{"event with wrong key", "/events/x", "wrong-0123456789abcd", http.StatusUnauthorized},
		{"health stays open", "/health", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.key != "" {
				req.Header.Set("Authorization", "Bearer "+tt.key)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
		})
	}
}
