package audit

import (
	"context"
	"fmt"
	"time"

	"mercator-hq/ledger/pkg/audit/serialization"
)

// DataProvider is the storage contract every backend implements. The engine
// only ever talks to this interface; concrete backends, resilience wrappers
// and instrumentation decorators are interchangeable.
//
// Every method takes a context. The synchronous path passes a context that
// is never cancelled and blocks; the asynchronous path (InsertEventAsync,
// Scope.SaveAsync) runs the same call on a separate goroutine and lets the
// caller cancel it. Implementations must abort remote calls promptly on
// cancellation where the protocol allows it.
//
// Implementations must be safe for concurrent use by multiple scopes.
type DataProvider interface {
	// InsertEvent persists a new event and returns its identifier. The
	// identifier is opaque to the engine.
	InsertEvent(ctx context.Context, event Auditable) (any, error)

	// ReplaceEvent overwrites the event stored under eventID. Keyed stores
	// fail with a StorageError wrapping NotFoundError for unknown ids;
	// append-only stores upsert.
	ReplaceEvent(ctx context.Context, eventID any, event Auditable) error

	// GetEvent loads the event stored under eventID into dest. Returns a
	// NotFoundError for unknown ids and ErrNotSupported for write-only
	// providers.
	GetEvent(ctx context.Context, eventID any, dest Auditable) error

	// CloneValue returns a deep, independent copy of value produced with the
	// same serializer the provider persists with.
	CloneValue(value any) (any, error)
}

// Named is implemented by providers that report a name in errors, logs and
// metrics.
type Named interface {
	Name() string
}

// Record is a stored event as returned by Queryer implementations.
type Record struct {
	ID          any        `json:"id"`
	EventType   string     `json:"event_type"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     *time.Time `json:"end_date,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
	Event       *Event     `json:"event"`
}

// Query filters stored records.
type Query struct {
	EventType string     `json:"event_type,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"` // Inclusive, on StartDate
	EndTime   *time.Time `json:"end_time,omitempty"`   // Inclusive, on StartDate
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
}

// Matches reports whether a record passes the query filters. Paging is not
// applied.
func (q *Query) Matches(r *Record) bool {
	if q == nil {
		return true
	}
	if q.EventType != "" && r.EventType != q.EventType {
		return false
	}
	if q.StartTime != nil && r.StartDate.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && r.StartDate.After(*q.EndTime) {
		return false
	}
	return true
}

// Page applies Offset and Limit to records already in result order.
func (q *Query) Page(records []*Record) []*Record {
	if q == nil {
		return records
	}
	if q.Offset >= len(records) {
		return []*Record{}
	}
	if q.Offset > 0 {
		records = records[q.Offset:]
	}
	if q.Limit > 0 && q.Limit < len(records) {
		records = records[:q.Limit]
	}
	return records
}

// Queryer is implemented by providers that can list stored events.
type Queryer interface {
	QueryEvents(ctx context.Context, query *Query) ([]*Record, error)
}

// Pruner is implemented by providers that can delete old events.
type Pruner interface {
	// DeleteBefore removes events whose StartDate is before cutoff and
	// returns the number removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pinger is implemented by providers backed by a remote or on-disk store
// that can report reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Unwrapper is implemented by decorators that wrap exactly one provider.
type Unwrapper interface {
	Unwrap() DataProvider
}

// As walks p's decorator chain and returns the first provider implementing
// T. Decorators that do not forward an optional capability still let callers
// reach it on the wrapped backend.
//
//	if q, ok := audit.As[audit.Queryer](provider); ok { ... }
func As[T any](p DataProvider) (T, bool) {
	for p != nil {
		if t, ok := p.(T); ok {
			return t, true
		}
		u, ok := p.(Unwrapper)
		if !ok {
			break
		}
		p = u.Unwrap()
	}
	var zero T
	return zero, false
}

// FormatOwner is implemented by providers that may carry their own
// serializer. Scopes clone target snapshots through a provider that owns its
// format and through the configured serializer otherwise.
type FormatOwner interface {
	OwnsFormat() bool
}

func ownsFormat(p DataProvider) bool {
	f, ok := As[FormatOwner](p)
	return ok && f.OwnsFormat()
}

// BaseProvider supplies CloneValue and a not-supported GetEvent for
// providers that embed it.
type BaseProvider struct {
	// Format is the serializer used to persist and clone values.
	// Nil selects JSON.
	Format serialization.Serializer
}

// Serializer returns the configured serializer or JSON.
func (b BaseProvider) Serializer() serialization.Serializer {
	if b.Format == nil {
		return serialization.JSON{}
	}
	return b.Format
}

// OwnsFormat implements FormatOwner. It reports whether Format was set.
func (b BaseProvider) OwnsFormat() bool {
	return b.Format != nil
}

// CloneValue implements DataProvider.
func (b BaseProvider) CloneValue(value any) (any, error) {
	return serialization.Clone(b.Serializer(), value)
}

// GetEvent implements DataProvider for write-only providers.
func (b BaseProvider) GetEvent(ctx context.Context, eventID any, dest Auditable) error {
	return ErrNotSupported
}

// ProviderName returns p's name if it implements Named, or its type.
func ProviderName(p DataProvider) string {
	if p == nil {
		return "none"
	}
	if n, ok := p.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", p)
}

// GetEventAs loads the event stored under eventID into a new T.
//
//	ev, err := audit.GetEventAs[OrderEvent](ctx, provider, id)
func GetEventAs[T any, PT interface {
	*T
	Auditable
}](ctx context.Context, p DataProvider, eventID any) (PT, error) {
	dest := PT(new(T))
	if err := p.GetEvent(ctx, eventID, dest); err != nil {
		return nil, err
	}
	return dest, nil
}

// Clone deep-copies v through p's serializer.
func Clone[T any](p DataProvider, v T) (T, error) {
	var zero T
	cloned, err := p.CloneValue(v)
	if err != nil {
		return zero, err
	}
	if cloned == nil {
		return zero, nil
	}
	out, ok := cloned.(T)
	if !ok {
		return zero, fmt.Errorf("clone returned %T, want %T", cloned, zero)
	}
	return out, nil
}

// InsertResult is delivered by InsertEventAsync.
type InsertResult struct {
	EventID any
	Err     error
}

// InsertEventAsync runs InsertEvent on a new goroutine. The returned channel
// receives exactly one result and is then closed.
func InsertEventAsync(ctx context.Context, p DataProvider, event Auditable) <-chan InsertResult {
	ch := make(chan InsertResult, 1)
	go func() {
		defer close(ch)
		id, err := p.InsertEvent(ctx, event)
		ch <- InsertResult{EventID: id, Err: err}
	}()
	return ch
}

// ReplaceEventAsync runs ReplaceEvent on a new goroutine. The returned
// channel receives exactly one error (nil on success) and is then closed.
func ReplaceEventAsync(ctx context.Context, p DataProvider, eventID any, event Auditable) <-chan error {
	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		ch <- p.ReplaceEvent(ctx, eventID, event)
	}()
	return ch
}
