package audit

// Setting is a tunable that is either a constant or computed from the event
// being persisted. Computed settings are evaluated on every Resolve and never
// cached, so a provider can route each event to a different table, file or
// backend.
type Setting[T any] struct {
	value   T
	compute func(*Event) T
}

// Value returns a constant setting.
func Value[T any](v T) Setting[T] {
	return Setting[T]{value: v}
}

// Computed returns a setting evaluated lazily against the current event.
func Computed[T any](fn func(*Event) T) Setting[T] {
	return Setting[T]{compute: fn}
}

// Resolve returns the setting value for ev. ev may be nil for constant
// settings; computed settings receive nil as-is.
func (s Setting[T]) Resolve(ev *Event) T {
	if s.compute != nil {
		return s.compute(ev)
	}
	return s.value
}

// IsComputed reports whether the setting depends on the event.
func (s Setting[T]) IsComputed() bool {
	return s.compute != nil
}
