package retention

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/audit/providers/dynamic"
	"mercator-hq/ledger/pkg/audit/providers/memory"
	"mercator-hq/ledger/pkg/config"
)

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func seed(t *testing.T, p *memory.Provider, ages ...time.Duration) {
	t.Helper()
	for _, age := range ages {
		ev := &audit.Event{EventType: "Order:Update", StartDate: testNow.Add(-age)}
		if _, err := p.InsertEvent(context.Background(), ev); err != nil {
			t.Fatalf("InsertEvent() error = %v", err)
		}
	}
}

func newTestPruner(t *testing.T, p audit.DataProvider, cfg *Config) *Pruner {
	t.Helper()
	pruner, err := NewPruner(p, cfg)
	if err != nil {
		t.Fatalf("NewPruner() error = %v", err)
	}
	pruner.now = func() time.Time { return testNow }
	return pruner
}

const day = 24 * time.Hour

func TestPrune(t *testing.T) {
	tests := []struct {
		name        string
		days        int
		wantDeleted int64
		wantLeft    int
	}{
		{name: "keep forever", days: 0, wantDeleted: 0, wantLeft: 4},
		{name: "30 days", days: 30, wantDeleted: 2, wantLeft: 2},
		{name: "1 day", days: 1, wantDeleted: 3, wantLeft: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memory.New(nil)
			seed(t, store, time.Hour, 10*day, 31*day, 100*day)

			var observed int64 = -1
			p := newTestPruner(t, store, &Config{Days: tt.days})
			p.OnRun(func(deleted int64, at time.Time, err error) {
				observed = deleted
			})

			deleted, err := p.Prune(context.Background())
			if err != nil {
				t.Fatalf("Prune() error = %v", err)
			}
			if deleted != tt.wantDeleted {
				t.Errorf("deleted = %d, want %d", deleted, tt.wantDeleted)
			}
			if store.Size() != tt.wantLeft {
				t.Errorf("left = %d, want %d", store.Size(), tt.wantLeft)
			}
			if observed != tt.wantDeleted {
				t.Errorf("OnRun saw %d", observed)
			}
		})
	}
}

func TestNewPruner_NotSupported(t *testing.T) {
	p := dynamic.New(func(ctx context.Context, event audit.Auditable) error { return nil })
	_, err := NewPruner(p, &Config{Days: 1})
	if !errors.Is(err, ErrPruneNotSupported) {
		t.Errorf("err = %v, want ErrPruneNotSupported", err)
	}
}

func TestPrune_Archive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "archive")
	store := memory.New(nil)
	seed(t, store, time.Hour, 40*day, 50*day)

	p := newTestPruner(t, store, &Config{Days: 30, ArchivePath: dir})
	deleted, err := p.Prune(context.Background())
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}

	files, err := filepath.Glob(filepath.Join(dir, "audit-*.json"))
	if err != nil || len(files) != 1 {
		t.Fatalf("archive files = %v, err = %v", files, err)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	var records []*audit.Record
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("archive is not JSON: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("archived %d records, want 2", len(records))
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.RetentionConfig{Days: 7, PruneSchedule: "0 * * * *", ArchivePath: "a"})
	if cfg.Days != 7 || cfg.Schedule != "0 * * * *" || cfg.ArchivePath != "a" {
		t.Errorf("FromConfig() = %+v", cfg)
	}
}

func TestScheduler(t *testing.T) {
	tests := []struct {
		name        string
		config      *Config
		wantErr     bool
		wantRunning bool
	}{
		{name: "scheduled", config: &Config{Days: 30, Schedule: "0 3 * * *"}, wantRunning: true},
		{name: "no schedule", config: &Config{Days: 30}, wantRunning: false},
		{name: "keep forever", config: &Config{Schedule: "0 3 * * *"}, wantRunning: false},
		{name: "invalid", config: &Config{Days: 30, Schedule: "every day"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPruner(t, memory.New(nil), tt.config)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := p.Start(ctx)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Start() error = %v, wantErr %v", err, tt.wantErr)
			}
			defer p.Stop()

			if p.scheduler.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", p.scheduler.IsRunning(), tt.wantRunning)
			}
			if next := p.NextPruning(); (next != nil) != tt.wantRunning {
				t.Errorf("NextPruning() = %v", next)
			}
		})
	}
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	p := newTestPruner(t, memory.New(nil), &Config{Days: 30, Schedule: "0 3 * * *"})
	ctx, cancel := context.WithCancel(context.Background())

	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for p.scheduler.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler still running after cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
