package wrappers

import (
	"context"
	"sync/atomic"

	"mercator-hq/ledger/pkg/audit"
)

// RoundRobin distributes inserts across providers using weighted
// round-robin. Each insert returns a RoutedID so the matching replace goes
// to the same provider.
//
// The selection uses an atomic counter and is safe for concurrent use. The
// counter is reset on overflow.
type RoundRobin struct {
	providers []audit.DataProvider

	// weighted holds provider indexes, each repeated weight times
	weighted []int

	counter atomic.Int64
}

// NewRoundRobin creates a round-robin over providers. Weights are looked up
// by provider name (audit.ProviderName); providers without a weight get 1
// and a weight <= 0 excludes the provider from inserts.
func NewRoundRobin(weights map[string]int, providers ...audit.DataProvider) *RoundRobin {
	r := &RoundRobin{providers: providers}
	r.weighted = buildWeightedList(weights, providers)
	if len(r.weighted) == 0 {
		// All providers have zero weight, fall back to unweighted
		for i := range providers {
			r.weighted = append(r.weighted, i)
		}
	}
	return r
}

// buildWeightedList creates a list where each provider index appears
// according to its weight.
//
// Example: Provider A (weight 2), Provider B (weight 1)
// Result: [0, 0, 1]
func buildWeightedList(weights map[string]int, providers []audit.DataProvider) []int {
	var result []int
	for i, p := range providers {
		weight := 1
		if w, ok := weights[audit.ProviderName(p)]; ok {
			weight = w
		}
		for j := 0; j < weight; j++ {
			result = append(result, i)
		}
	}
	return result
}

// Name implements audit.Named.
func (r *RoundRobin) Name() string {
	return "round-robin"
}

// next returns the index of the next provider.
func (r *RoundRobin) next() int {
	count := r.counter.Add(1) - 1

	if count >= 1_000_000_000 {
		r.counter.CompareAndSwap(count+1, 0)
		count = 0
	}

	return r.weighted[int(count%int64(len(r.weighted)))]
}

// InsertEvent implements audit.DataProvider.
func (r *RoundRobin) InsertEvent(ctx context.Context, event audit.Auditable) (any, error) {
	if len(r.providers) == 0 {
		return nil, audit.NewStorageError(r.Name(), "insert", errNoProviders)
	}

	i := r.next()
	p := r.providers[i]
	id, err := p.InsertEvent(ctx, event)
	if err != nil {
		return nil, err
	}
	return RoutedID{Index: i, Provider: audit.ProviderName(p), ID: id}, nil
}

// ReplaceEvent implements audit.DataProvider.
func (r *RoundRobin) ReplaceEvent(ctx context.Context, eventID any, event audit.Auditable) error {
	p, id, ok := routedTarget(r.providers, eventID)
	if !ok {
		return audit.NewStorageError(r.Name(), "replace", audit.NewNotFoundError(r.Name(), eventID))
	}
	return p.ReplaceEvent(ctx, id, event)
}

// GetEvent implements audit.DataProvider.
func (r *RoundRobin) GetEvent(ctx context.Context, eventID any, dest audit.Auditable) error {
	p, id, ok := routedTarget(r.providers, eventID)
	if !ok {
		return audit.NewNotFoundError(r.Name(), eventID)
	}
	return p.GetEvent(ctx, id, dest)
}

// CloneValue implements audit.DataProvider.
func (r *RoundRobin) CloneValue(value any) (any, error) {
	return cloneWith(r.providers, value)
}

// Reset resets the round-robin counter.
func (r *RoundRobin) Reset() {
	r.counter.Store(0)
}

// Close closes every provider.
func (r *RoundRobin) Close() error {
	return closeAll(r.providers)
}
