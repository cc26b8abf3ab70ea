package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/ledger/pkg/audit"
)

func newTestProvider(t *testing.T, driver string) *Provider {
	t.Helper()

	p, err := New(&Config{
		Driver:  driver,
		Path:    filepath.Join(t.TempDir(), "audit.db"),
		WALMode: true,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

var drivers = []string{DriverCgo, DriverPure}

// TestProvider_InsertReplaceGet tests the keyed storage contract on both
// drivers.
func TestProvider_InsertReplaceGet(t *testing.T) {
	for _, driver := range drivers {
		t.Run(driver, func(t *testing.T) {
			p := newTestProvider(t, driver)
			ctx := context.Background()

			ev := &audit.Event{EventType: "order:update", StartDate: time.Now().UTC()}
			ev.SetCustomField("v", "init")

			id, err := p.InsertEvent(ctx, ev)
			if err != nil {
				t.Fatalf("InsertEvent() failed: %v", err)
			}

			ev.SetCustomField("v", "init-end")
			end := time.Now().UTC()
			ev.EndDate = &end
			if err := p.ReplaceEvent(ctx, id, ev); err != nil {
				t.Fatalf("ReplaceEvent() failed: %v", err)
			}

			got := &audit.Event{}
			if err := p.GetEvent(ctx, id, got); err != nil {
				t.Fatalf("GetEvent() failed: %v", err)
			}
			if v, _ := got.CustomField("v"); v != "init-end" {
				t.Errorf("v = %v, want init-end", v)
			}
			if got.EndDate == nil {
				t.Error("EndDate not persisted")
			}

			err = p.GetEvent(ctx, "missing", &audit.Event{})
			if !errors.Is(err, audit.ErrNotFound) {
				t.Errorf("GetEvent(missing) error = %v, want ErrNotFound", err)
			}

			err = p.ReplaceEvent(ctx, "missing", ev)
			var storageErr *audit.StorageError
			if !errors.As(err, &storageErr) || !errors.Is(err, audit.ErrNotFound) {
				t.Errorf("ReplaceEvent(missing) error = %v, want StorageError wrapping NotFound", err)
			}
		})
	}
}

// TestProvider_QueryAndDelete tests filtering, paging and pruning.
func TestProvider_QueryAndDelete(t *testing.T) {
	p := newTestProvider(t, DriverPure)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, eventType := range []string{"login", "login", "order", "login"} {
		ev := &audit.Event{EventType: eventType, StartDate: now.Add(time.Duration(i-3) * 24 * time.Hour)}
		if _, err := p.InsertEvent(ctx, ev); err != nil {
			t.Fatalf("InsertEvent() failed: %v", err)
		}
	}

	tests := []struct {
		name  string
		query *audit.Query
		want  int
	}{
		{name: "all", query: nil, want: 4},
		{name: "by type", query: &audit.Query{EventType: "login"}, want: 3},
		{name: "limit", query: &audit.Query{Limit: 1}, want: 1},
		{name: "offset only", query: &audit.Query{Offset: 3}, want: 1},
		{name: "since", query: &audit.Query{StartTime: ptr(now.Add(-36 * time.Hour))}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := p.QueryEvents(ctx, tt.query)
			if err != nil {
				t.Fatalf("QueryEvents() failed: %v", err)
			}
			if len(records) != tt.want {
				t.Errorf("got %d records, want %d", len(records), tt.want)
			}
			for _, r := range records {
				if r.Event == nil || r.Event.EventType != r.EventType {
					t.Errorf("record event mismatch: %+v", r)
				}
			}
		})
	}

	deleted, err := p.DeleteBefore(ctx, now.Add(-36*time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore() failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
}

// TestProvider_ComputedTable tests per-event table routing.
func TestProvider_ComputedTable(t *testing.T) {
	p, err := New(&Config{
		Driver: DriverCgo,
		Path:   filepath.Join(t.TempDir(), "audit.db"),
		Table: audit.Computed(func(ev *audit.Event) string {
			if ev == nil {
				return "events_default"
			}
			return "events_" + ev.EventType
		}),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer p.Close()

	ctx := context.Background()
	if _, err := p.InsertEvent(ctx, &audit.Event{EventType: "login", StartDate: time.Now()}); err != nil {
		t.Fatalf("InsertEvent() failed: %v", err)
	}

	var count int
	if err := p.db.QueryRow("SELECT COUNT(*) FROM events_login").Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("events_login rows = %d, want 1", count)
	}

	_, err = p.InsertEvent(ctx, &audit.Event{EventType: "bad name; DROP", StartDate: time.Now()})
	var storageErr *audit.StorageError
	if !errors.As(err, &storageErr) || storageErr.Operation != "resolve_table" {
		t.Errorf("InsertEvent() with invalid table error = %v", err)
	}
}

// TestProvider_SchemaVersion tests that reopening an existing database
// succeeds.
func TestProvider_SchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	for i := 0; i < 2; i++ {
		p, err := New(&Config{Path: path})
		if err != nil {
			t.Fatalf("New() #%d failed: %v", i, err)
		}
		if err := p.Ping(context.Background()); err != nil {
			t.Errorf("Ping() failed: %v", err)
		}
		p.Close()
	}
}

func ptr(t time.Time) *time.Time {
	return &t
}
