package wrappers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/ledger/pkg/audit"
	"mercator-hq/ledger/pkg/audit/providers/memory"
)

var errUnavailable = errors.New("unavailable")

// stubProvider wraps a memory provider and can fail or stall on demand.
type stubProvider struct {
	*memory.Provider

	name       string
	failures   atomic.Int32 // remaining insert/replace calls to fail
	alwaysFail bool
	delay      time.Duration
	inserts    atomic.Int32
	replaces   atomic.Int32
}

func newStub(name string) *stubProvider {
	return &stubProvider{Provider: memory.New(nil), name: name}
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) fail() error {
	if s.alwaysFail {
		return errUnavailable
	}
	if s.failures.Add(-1) >= 0 {
		return errUnavailable
	}
	return nil
}

func (s *stubProvider) wait(ctx context.Context) error {
	if s.delay == 0 {
		return nil
	}
	select {
	case <-time.After(s.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *stubProvider) InsertEvent(ctx context.Context, event audit.Auditable) (any, error) {
	s.inserts.Add(1)
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	if err := s.fail(); err != nil {
		return nil, err
	}
	return s.Provider.InsertEvent(ctx, event)
}

func (s *stubProvider) ReplaceEvent(ctx context.Context, eventID any, event audit.Auditable) error {
	s.replaces.Add(1)
	if err := s.fail(); err != nil {
		return err
	}
	return s.Provider.ReplaceEvent(ctx, eventID, event)
}

func newEvent(eventType string) *audit.Event {
	return &audit.Event{EventType: eventType, StartDate: time.Now().UTC()}
}

func fastRetry(p audit.DataProvider, tries uint) *Retry {
	return NewRetry(p, WithMaxTries(tries), WithIntervals(time.Millisecond, 5*time.Millisecond))
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("recovers from transient failures", func(t *testing.T) {
		stub := newStub("flaky")
		stub.failures.Store(2)

		id, err := fastRetry(stub, 3).InsertEvent(ctx, newEvent("x"))
		require.NoError(t, err)
		assert.NotNil(t, id)
		assert.EqualValues(t, 3, stub.inserts.Load())
	})

	t.Run("gives up after max tries", func(t *testing.T) {
		stub := newStub("down")
		stub.alwaysFail = true

		_, err := fastRetry(stub, 3).InsertEvent(ctx, newEvent("x"))
		require.ErrorIs(t, err, errUnavailable)
		assert.EqualValues(t, 3, stub.inserts.Load())
	})

	t.Run("not found is permanent", func(t *testing.T) {
		stub := newStub("mem")

		err := fastRetry(stub, 5).ReplaceEvent(ctx, "missing", newEvent("x"))
		require.ErrorIs(t, err, audit.ErrNotFound)
		assert.EqualValues(t, 1, stub.replaces.Load())
	})

	t.Run("passes through get and clone", func(t *testing.T) {
		stub := newStub("mem")
		r := fastRetry(stub, 2)

		id, err := r.InsertEvent(ctx, newEvent("login"))
		require.NoError(t, err)

		got := &audit.Event{}
		require.NoError(t, r.GetEvent(ctx, id, got))
		assert.Equal(t, "login", got.EventType)
		assert.Equal(t, "retry(mem)", r.Name())

		q, ok := audit.As[audit.Queryer](r)
		require.True(t, ok)
		records, err := q.QueryEvents(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errUnavailable, true},
		{audit.NewNotFoundError("x", 1), false},
		{audit.NewStorageError("x", "replace", audit.NewNotFoundError("x", 1)), false},
		{audit.ErrNotSupported, false},
		{context.Canceled, false},
		{&audit.ConfigurationError{Message: "bad"}, false},
		{audit.NewStorageError("x", "insert", errUnavailable), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryable(tt.err), "IsRetryable(%v)", tt.err)
	}
}

func TestFallback(t *testing.T) {
	ctx := context.Background()
	primary := newStub("primary")
	secondary := newStub("secondary")
	f := NewFallback(primary, secondary)

	id, err := f.InsertEvent(ctx, newEvent("a"))
	require.NoError(t, err)
	routed := id.(RoutedID)
	assert.Equal(t, 0, routed.Index)
	assert.Equal(t, "primary", routed.Provider)

	primary.alwaysFail = true
	id, err = f.InsertEvent(ctx, newEvent("b"))
	require.NoError(t, err)
	routed = id.(RoutedID)
	assert.Equal(t, 1, routed.Index)

	// Replace goes to the provider that stored the event.
	ev := newEvent("b")
	ev.SetCustomField("v", "end")
	require.NoError(t, f.ReplaceEvent(ctx, id, ev))
	assert.EqualValues(t, 0, primary.replaces.Load())

	got := &audit.Event{}
	require.NoError(t, f.GetEvent(ctx, id, got))
	v, _ := got.CustomField("v")
	assert.Equal(t, "end", v)

	secondary.alwaysFail = true
	_, err = f.InsertEvent(ctx, newEvent("c"))
	var storageErr *audit.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, "fallback", storageErr.Provider)
	assert.ErrorIs(t, err, errUnavailable)

	err = f.GetEvent(ctx, "unknown", &audit.Event{})
	assert.ErrorIs(t, err, audit.ErrNotFound)
}

func TestHedge(t *testing.T) {
	ctx := context.Background()

	t.Run("slow primary loses", func(t *testing.T) {
		slow := newStub("slow")
		slow.delay = time.Second
		fast := newStub("fast")

		h := NewHedge(10*time.Millisecond, slow, fast)
		start := time.Now()
		id, err := h.InsertEvent(ctx, newEvent("x"))
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 500*time.Millisecond)
		assert.Equal(t, "fast", id.(RoutedID).Provider)
		assert.Equal(t, 0, slow.Size(), "cancelled loser must not store")

		require.NoError(t, h.ReplaceEvent(ctx, id, newEvent("x")))
		assert.EqualValues(t, 1, fast.replaces.Load())
	})

	t.Run("fast primary wins without hedging", func(t *testing.T) {
		primary := newStub("primary")
		backup := newStub("backup")

		h := NewHedge(time.Second, primary, backup)
		id, err := h.InsertEvent(ctx, newEvent("x"))
		require.NoError(t, err)
		assert.Equal(t, 0, id.(RoutedID).Index)
		assert.EqualValues(t, 0, backup.inserts.Load())
	})

	t.Run("failure launches next immediately", func(t *testing.T) {
		broken := newStub("broken")
		broken.alwaysFail = true
		backup := newStub("backup")

		h := NewHedge(time.Hour, broken, backup)
		id, err := h.InsertEvent(ctx, newEvent("x"))
		require.NoError(t, err)
		assert.Equal(t, "backup", id.(RoutedID).Provider)
	})

	t.Run("all fail", func(t *testing.T) {
		a := newStub("a")
		a.alwaysFail = true
		b := newStub("b")
		b.alwaysFail = true

		_, err := NewHedge(time.Millisecond, a, b).InsertEvent(ctx, newEvent("x"))
		assert.ErrorIs(t, err, errUnavailable)
	})

	t.Run("replace rejects foreign ids", func(t *testing.T) {
		h := NewHedge(time.Millisecond, newStub("a"))
		assert.ErrorIs(t, h.ReplaceEvent(ctx, "plain", newEvent("x")), audit.ErrNotFound)
	})
}

func TestRoundRobin(t *testing.T) {
	ctx := context.Background()
	a := newStub("a")
	b := newStub("b")
	r := NewRoundRobin(map[string]int{"a": 2}, a, b)

	var ids []any
	for i := 0; i < 6; i++ {
		id, err := r.InsertEvent(ctx, newEvent("x"))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, 4, a.Size())
	assert.Equal(t, 2, b.Size())

	for _, id := range ids {
		require.NoError(t, r.ReplaceEvent(ctx, id, newEvent("x")))
	}
	assert.EqualValues(t, 4, a.replaces.Load())
	assert.EqualValues(t, 2, b.replaces.Load())

	r.Reset()
	id, err := r.InsertEvent(ctx, newEvent("x"))
	require.NoError(t, err)
	assert.Equal(t, "a", id.(RoutedID).Provider)
}

func TestRoundRobin_AllZeroWeights(t *testing.T) {
	a := newStub("a")
	b := newStub("b")
	r := NewRoundRobin(map[string]int{"a": 0, "b": 0}, a, b)

	for i := 0; i < 4; i++ {
		_, err := r.InsertEvent(context.Background(), newEvent("x"))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, a.Size())
	assert.Equal(t, 2, b.Size())
}

func TestRoundRobin_Concurrent(t *testing.T) {
	providers := []audit.DataProvider{newStub("a"), newStub("b"), newStub("c")}
	r := NewRoundRobin(nil, providers...)

	var wg sync.WaitGroup
	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.InsertEvent(context.Background(), newEvent("x"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	for _, p := range providers {
		assert.Equal(t, 100, p.(*stubProvider).Size())
	}
}

func TestMultiplex(t *testing.T) {
	ctx := context.Background()

	t.Run("all providers receive the event", func(t *testing.T) {
		a, b := newStub("a"), newStub("b")
		m := NewMultiplex(a, b)

		id, err := m.InsertEvent(ctx, newEvent("x"))
		require.NoError(t, err)
		multi := id.(MultiID)
		require.Len(t, multi.IDs, 2)

		ev := newEvent("x")
		ev.SetCustomField("v", 2)
		require.NoError(t, m.ReplaceEvent(ctx, id, ev))

		got := &audit.Event{}
		require.NoError(t, m.GetEvent(ctx, id, got))
		v, _ := got.CustomField("v")
		assert.EqualValues(t, 2, v)
	})

	t.Run("strict mode fails on any error", func(t *testing.T) {
		a, b := newStub("a"), newStub("b")
		b.alwaysFail = true

		_, err := NewMultiplex(a, b).InsertEvent(ctx, newEvent("x"))
		assert.ErrorIs(t, err, errUnavailable)
	})

	t.Run("best effort tolerates partial failure", func(t *testing.T) {
		a, b := newStub("a"), newStub("b")
		b.alwaysFail = true
		m := NewMultiplex(a, b).BestEffort(true)

		id, err := m.InsertEvent(ctx, newEvent("x"))
		require.NoError(t, err)
		multi := id.(MultiID)
		assert.NotNil(t, multi.IDs[0])
		assert.Nil(t, multi.IDs[1])

		// The failed provider is skipped on replace.
		require.NoError(t, m.ReplaceEvent(ctx, id, newEvent("x")))
		assert.EqualValues(t, 0, b.replaces.Load())

		a.alwaysFail = true
		_, err = m.InsertEvent(ctx, newEvent("x"))
		assert.ErrorIs(t, err, errUnavailable)
	})
}

func TestConditional(t *testing.T) {
	ctx := context.Background()
	security := newStub("security")
	general := newStub("general")

	c := NewConditional(audit.Computed(func(ev *audit.Event) audit.DataProvider {
		if ev != nil && ev.EventType == "login" {
			return security
		}
		return general
	}), security, general)

	_, err := c.InsertEvent(ctx, newEvent("login"))
	require.NoError(t, err)
	_, err = c.InsertEvent(ctx, newEvent("order"))
	require.NoError(t, err)

	assert.Equal(t, 1, security.Size())
	assert.Equal(t, 1, general.Size())

	none := NewConditional(audit.Value[audit.DataProvider](nil))
	_, err = none.InsertEvent(ctx, newEvent("x"))
	var confErr *audit.ConfigurationError
	assert.ErrorAs(t, err, &confErr)
}

func TestLazy(t *testing.T) {
	ctx := context.Background()

	var calls atomic.Int32
	stub := newStub("built")
	l := NewLazy(func(ctx context.Context) (audit.DataProvider, error) {
		calls.Add(1)
		time.Sleep(5 * time.Millisecond)
		return stub, nil
	})
	assert.Equal(t, "lazy", l.Name())
	assert.Nil(t, l.Unwrap())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.InsertEvent(ctx, newEvent("x"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	assert.Equal(t, 20, stub.Size())
	assert.Equal(t, "lazy(built)", l.Name())
}

func TestLazy_FactoryErrorNotCached(t *testing.T) {
	ctx := context.Background()
	attempts := 0
	l := NewLazy(func(ctx context.Context) (audit.DataProvider, error) {
		attempts++
		if attempts == 1 {
			return nil, fmt.Errorf("dial: %w", errUnavailable)
		}
		return newStub("ok"), nil
	})

	_, err := l.InsertEvent(ctx, newEvent("x"))
	require.ErrorIs(t, err, errUnavailable)

	_, err = l.InsertEvent(ctx, newEvent("x"))
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	require.NoError(t, l.Close())
}

func TestWrappersWithScope(t *testing.T) {
	ctx := context.Background()
	a, b := newStub("a"), newStub("b")
	a.alwaysFail = true

	p := fastRetry(NewFallback(a, b), 2)
	conf := audit.NewConfiguration(
		audit.WithDataProvider(p),
		audit.WithCreationPolicy(audit.InsertOnStartReplaceOnEnd),
	)

	err := audit.Run(ctx, conf, &audit.ScopeOptions{EventType: "wrapped"}, func(ctx context.Context, s *audit.Scope) error {
		_, ok := s.EventID().(RoutedID)
		assert.True(t, ok, "event id should be routed")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, b.Size())
	assert.EqualValues(t, 1, b.replaces.Load())
}
