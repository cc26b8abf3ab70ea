// Package memory provides an in-process data provider that keeps serialized
// events in a map. It supports the full contract plus querying and pruning,
// and is intended for tests, demos and short-lived processes.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/audit/serialization"
)

// entry is one stored event. Events are kept serialized so later mutation of
// the caller's event cannot leak into the store.
type entry struct {
	data        []byte
	eventType   string
	startDate   time.Time
	endDate     *time.Time
	lastUpdated time.Time
}

// Provider implements audit.DataProvider using an in-memory map keyed by
// UUID strings.
type Provider struct {
	audit.BaseProvider

	records map[string]*entry
	mu      sync.RWMutex
}

// New creates an empty memory provider. A nil serializer selects JSON.
func New(format serialization.Serializer) *Provider {
	return &Provider{
		BaseProvider: audit.BaseProvider{Format: format},
		records:      make(map[string]*entry),
	}
}

// Name implements audit.Named.
func (p *Provider) Name() string {
	return "memory"
}

// InsertEvent stores a copy of the event under a new UUID.
func (p *Provider) InsertEvent(ctx context.Context, event audit.Auditable) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, audit.NewStorageError(p.Name(), "insert", err)
	}

	e, err := p.encode(event)
	if err != nil {
		return nil, audit.NewStorageError(p.Name(), "insert", err)
	}

	id := uuid.NewString()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.records[id] = e
	return id, nil
}

// ReplaceEvent overwrites the event stored under eventID.
func (p *Provider) ReplaceEvent(ctx context.Context, eventID any, event audit.Auditable) error {
	if err := ctx.Err(); err != nil {
		return audit.NewStorageError(p.Name(), "replace", err)
	}

	id, _ := eventID.(string)

	e, err := p.encode(event)
	if err != nil {
		return audit.NewStorageError(p.Name(), "replace", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.records[id]; !ok {
		return audit.NewStorageError(p.Name(), "replace", audit.NewNotFoundError(p.Name(), eventID))
	}
	p.records[id] = e
	return nil
}

// GetEvent decodes the event stored under eventID into dest.
func (p *Provider) GetEvent(ctx context.Context, eventID any, dest audit.Auditable) error {
	id, _ := eventID.(string)

	p.mu.RLock()
	e, ok := p.records[id]
	p.mu.RUnlock()

	if !ok {
		return audit.NewNotFoundError(p.Name(), eventID)
	}
	if err := p.Serializer().Deserialize(e.data, dest); err != nil {
		return audit.NewStorageError(p.Name(), "get", err)
	}
	return nil
}

// QueryEvents returns matching events ordered by StartDate.
func (p *Provider) QueryEvents(ctx context.Context, query *audit.Query) ([]*audit.Record, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var results []*audit.Record
	for id, e := range p.records {
		record := &audit.Record{
			ID:          id,
			EventType:   e.eventType,
			StartDate:   e.startDate,
			EndDate:     e.endDate,
			LastUpdated: e.lastUpdated,
		}
		if !query.Matches(record) {
			continue
		}

		ev := &audit.Event{}
		if err := p.Serializer().Deserialize(e.data, ev); err != nil {
			return nil, audit.NewStorageError(p.Name(), "query", err)
		}
		record.Event = ev
		results = append(results, record)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].StartDate.Equal(results[j].StartDate) {
			return results[i].ID.(string) < results[j].ID.(string)
		}
		return results[i].StartDate.Before(results[j].StartDate)
	})

	return query.Page(results), nil
}

// DeleteBefore removes events that started before cutoff.
func (p *Provider) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var deleted int64
	for id, e := range p.records {
		if e.startDate.Before(cutoff) {
			delete(p.records, id)
			deleted++
		}
	}
	return deleted, nil
}

// Ping always succeeds.
func (p *Provider) Ping(ctx context.Context) error {
	return nil
}

// Size returns the number of stored events.
func (p *Provider) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.records)
}

// Clear removes every stored event.
func (p *Provider) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = make(map[string]*entry)
}

// Close releases the stored events.
func (p *Provider) Close() error {
	p.Clear()
	return nil
}

func (p *Provider) encode(event audit.Auditable) (*entry, error) {
	data, err := p.Serializer().Serialize(event)
	if err != nil {
		return nil, err
	}
	ev := event.AuditEvent()
	e := &entry{
		data:        data,
		eventType:   ev.EventType,
		startDate:   ev.StartDate,
		lastUpdated: time.Now().UTC(),
	}
	if ev.EndDate != nil {
		end := *ev.EndDate
		e.endDate = &end
	}
	return e, nil
}
