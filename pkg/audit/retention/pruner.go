package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/audit/export"
	"mercator-hq/ledger/pkg/config"
)

// ErrPruneNotSupported is returned by NewPruner when the provider cannot
// delete events.
var ErrPruneNotSupported = errors.New("provider does not support pruning")

// Config configures a Pruner.
type Config struct {
	// Days is the retention period. 0 keeps events forever.
	Days int

	// Schedule is a standard five-field cron expression.
	Schedule string

	// ArchivePath is a directory that receives the events before deletion.
	// Empty disables archiving.
	ArchivePath string
}

// FromConfig converts the storage retention section.
func FromConfig(cfg config.RetentionConfig) *Config {
	return &Config{
		Days:        cfg.Days,
		Schedule:    cfg.PruneSchedule,
		ArchivePath: cfg.ArchivePath,
	}
}

// RunFunc observes every prune run, typically metrics.Collector.RecordPrune.
type RunFunc func(deleted int64, at time.Time, err error)

// Pruner enforces the retention period on one provider.
type Pruner struct {
	provider  audit.DataProvider
	pruner    audit.Pruner
	config    *Config
	logger    *slog.Logger
	onRun     RunFunc
	now       func() time.Time
	scheduler *Scheduler
}

// NewPruner creates a pruner for provider. It fails when no provider in
// the decorator chain implements audit.Pruner.
func NewPruner(provider audit.DataProvider, cfg *Config) (*Pruner, error) {
	pruner, ok := audit.As[audit.Pruner](provider)
	if !ok {
		return nil, fmt.Errorf("%s: %w", audit.ProviderName(provider), ErrPruneNotSupported)
	}
	if cfg == nil {
		cfg = FromConfig(config.Defaults().Storage.Retention)
	}

	p := &Pruner{
		provider: provider,
		pruner:   pruner,
		config:   cfg,
		logger:   slog.Default().With("component", "audit.retention"),
		now:      time.Now,
	}
	p.scheduler = NewScheduler(p)
	return p, nil
}

// OnRun registers fn to observe every Prune call.
func (p *Pruner) OnRun(fn RunFunc) {
	p.onRun = fn
}

// Cutoff returns the instant before which events are deleted, or the zero
// time when events are kept forever.
func (p *Pruner) Cutoff() time.Time {
	if p.config.Days <= 0 {
		return time.Time{}
	}
	return p.now().UTC().AddDate(0, 0, -p.config.Days)
}

// Prune deletes events older than the retention period and returns the
// number deleted.
func (p *Pruner) Prune(ctx context.Context) (deleted int64, err error) {
	at := p.now()
	defer func() {
		if p.onRun != nil {
			p.onRun(deleted, at, err)
		}
	}()

	cutoff := p.Cutoff()
	if cutoff.IsZero() {
		p.logger.Debug("retention disabled, nothing pruned")
		return 0, nil
	}

	if p.config.ArchivePath != "" {
		if err := p.archive(ctx, cutoff); err != nil {
			return 0, fmt.Errorf("archive before prune: %w", err)
		}
	}

	deleted, err = p.pruner.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	if deleted > 0 {
		p.logger.Info("pruned audit events",
			"deleted_count", deleted,
			"cutoff", cutoff,
			"retention_days", p.config.Days,
		)
	} else {
		p.logger.Debug("no audit events pruned", "cutoff", cutoff)
	}
	return deleted, nil
}

// archive exports every event older than cutoff. DeleteBefore is strict,
// so the query's inclusive end is moved back by one nanosecond.
func (p *Pruner) archive(ctx context.Context, cutoff time.Time) error {
	queryer, ok := audit.As[audit.Queryer](p.provider)
	if !ok {
		return fmt.Errorf("%s: archiving requires a queryable provider", audit.ProviderName(p.provider))
	}

	end := cutoff.Add(-time.Nanosecond)
	records, err := queryer.QueryEvents(ctx, &audit.Query{EndTime: &end})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	if err := os.MkdirAll(p.config.ArchivePath, 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	path := filepath.Join(p.config.ArchivePath, fmt.Sprintf("audit-%s.json", cutoff.Format("2006-01-02-150405")))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer f.Close()

	if err := export.NewJSONExporter(true).Export(ctx, records, f); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync archive file: %w", err)
	}

	p.logger.Info("archived audit events", "archive_file", path, "record_count", len(records))
	return nil
}

// Start starts the cron scheduler.
func (p *Pruner) Start(ctx context.Context) error {
	return p.scheduler.Start(ctx)
}

// Stop stops the scheduler and waits for a running prune.
func (p *Pruner) Stop() {
	p.scheduler.Stop()
}

// NextPruning returns the next scheduled run, or nil when not scheduled.
func (p *Pruner) NextPruning() *time.Time {
	return p.scheduler.NextRun()
}
