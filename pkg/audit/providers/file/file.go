// Package file provides an append-only data provider that writes events to
// hash-chained JSONL files.
//
// Every insert and replace appends one line. A replace supersedes earlier
// lines with the same id, so replacing an unknown id is an upsert. Each line
// carries the SHA-256 of the previous line; Verify detects any edit, removal
// or reordering of lines.
//
// The file path is an audit.Setting, so a computed setting can split events
// across files (per day, per event type). Reads resolve the path with a nil
// event.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/audit/serialization"
)

var errStop = errors.New("stop")

// Line is one JSONL line. All fields are fixed so json.Marshal output is
// deterministic for a given event payload.
type Line struct {
	Timestamp string          `json:"ts"`
	Operation string          `json:"op"`
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	StartDate time.Time       `json:"start_date"`
	EndDate   *time.Time      `json:"end_date,omitempty"`
	Event     json.RawMessage `json:"event"`
	PrevHash  string          `json:"prev_hash"`
}

// Config contains configuration for the file data provider. Events are
// always written as JSON whatever serializer the rest of the stack uses.
type Config struct {
	// Path is the JSONL file path.
	// Default: "data/audit.jsonl"
	Path audit.Setting[string]
}

// Provider implements audit.DataProvider over hash-chained JSONL files.
type Provider struct {
	audit.BaseProvider

	path   audit.Setting[string]
	logger *slog.Logger

	mu   sync.Mutex
	logs map[string]*chainLog
}

// New creates a file provider. Files are opened on first write.
func New(config *Config) *Provider {
	path := audit.Value("data/audit.jsonl")
	if config != nil && (config.Path.IsComputed() || config.Path.Resolve(nil) != "") {
		path = config.Path
	}

	return &Provider{
		BaseProvider: audit.BaseProvider{Format: serialization.JSON{}},
		path:         path,
		logger:       slog.Default().With("component", "audit.provider.file"),
		logs:         make(map[string]*chainLog),
	}
}

// Name implements audit.Named.
func (p *Provider) Name() string {
	return "file"
}

// log returns the open chain for path, opening it on first use.
func (p *Provider) log(path string) (*chainLog, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if l, ok := p.logs[path]; ok {
		return l, nil
	}
	l, err := openChain(path)
	if err != nil {
		return nil, err
	}
	p.logs[path] = l
	p.logger.Debug("audit log opened", "path", path, "prev_hash", l.prevHash)
	return l, nil
}

// InsertEvent appends the event under a new UUID.
func (p *Provider) InsertEvent(ctx context.Context, event audit.Auditable) (any, error) {
	id := uuid.NewString()
	if err := p.write(ctx, "insert", id, event); err != nil {
		return nil, err
	}
	return id, nil
}

// ReplaceEvent appends a line superseding earlier lines for eventID.
func (p *Provider) ReplaceEvent(ctx context.Context, eventID any, event audit.Auditable) error {
	return p.write(ctx, "replace", fmt.Sprint(eventID), event)
}

func (p *Provider) write(ctx context.Context, operation, id string, event audit.Auditable) error {
	if err := ctx.Err(); err != nil {
		return audit.NewStorageError(p.Name(), operation, err)
	}

	ev := event.AuditEvent()
	path := p.path.Resolve(ev)
	if path == "" {
		return audit.NewStorageError(p.Name(), "resolve_path", errors.New("empty path"))
	}

	data, err := p.Serializer().Serialize(event)
	if err != nil {
		return audit.NewStorageError(p.Name(), operation, err)
	}

	l, err := p.log(path)
	if err != nil {
		return audit.NewStorageError(p.Name(), "open", err)
	}

	line := &Line{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Operation: operation,
		ID:        id,
		EventType: ev.EventType,
		StartDate: ev.StartDate,
		EndDate:   ev.EndDate,
		Event:     data,
	}
	if err := l.append(line); err != nil {
		return audit.NewStorageError(p.Name(), operation, err)
	}
	return nil
}

// latest reads the default file and returns the last line per id, in first
// insertion order.
func (p *Provider) latest() ([]*Line, error) {
	path := p.path.Resolve(nil)

	byID := make(map[string]int)
	var lines []*Line

	err := scanLines(path, func(lineNum int, raw []byte) error {
		var line Line
		if err := json.Unmarshal(raw, &line); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
		if i, ok := byID[line.ID]; ok {
			lines[i] = &line
			return nil
		}
		byID[line.ID] = len(lines)
		lines = append(lines, &line)
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return lines, err
}

// GetEvent loads the latest version of the event into dest.
func (p *Provider) GetEvent(ctx context.Context, eventID any, dest audit.Auditable) error {
	lines, err := p.latest()
	if err != nil {
		return audit.NewStorageError(p.Name(), "get", err)
	}

	id := fmt.Sprint(eventID)
	for _, line := range lines {
		if line.ID != id {
			continue
		}
		if err := p.Serializer().Deserialize(line.Event, dest); err != nil {
			return audit.NewStorageError(p.Name(), "get", err)
		}
		return nil
	}
	return audit.NewNotFoundError(p.Name(), eventID)
}

// QueryEvents returns the latest version of matching events ordered by
// StartDate.
func (p *Provider) QueryEvents(ctx context.Context, query *audit.Query) ([]*audit.Record, error) {
	lines, err := p.latest()
	if err != nil {
		return nil, audit.NewStorageError(p.Name(), "query", err)
	}

	records := []*audit.Record{}
	for _, line := range lines {
		lastUpdated, _ := time.Parse("2006-01-02T15:04:05.000Z", line.Timestamp)
		record := &audit.Record{
			ID:          line.ID,
			EventType:   line.EventType,
			StartDate:   line.StartDate,
			EndDate:     line.EndDate,
			LastUpdated: lastUpdated,
		}
		if !query.Matches(record) {
			continue
		}

		ev := &audit.Event{}
		if err := p.Serializer().Deserialize(line.Event, ev); err != nil {
			return nil, audit.NewStorageError(p.Name(), "query", err)
		}
		record.Event = ev
		records = append(records, record)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartDate.Before(records[j].StartDate)
	})

	return query.Page(records), nil
}

// Verify checks the hash chain of the default file.
func (p *Provider) Verify() VerifyResult {
	return Verify(p.path.Resolve(nil))
}

// Close closes every open file.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for path, l := range p.logs {
		if err := l.close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
		}
		delete(p.logs, path)
	}
	return errors.Join(errs...)
}
