// Package serialization defines the boundary between audit events and their
// persisted byte representation.
//
// The audit engine never assumes a format. Providers call the configured
// Serializer to turn events into bytes, to read them back, and to deep-copy
// target values through a serialize/deserialize round trip.
package serialization

import (
	"fmt"
	"reflect"
)

// Serializer converts values to and from a persisted representation.
// Implementations must be safe for concurrent use.
type Serializer interface {
	// Name returns the format name ("json", "yaml").
	Name() string

	// Serialize encodes v.
	Serialize(v any) ([]byte, error)

	// Deserialize decodes data into the value pointed to by v.
	Deserialize(data []byte, v any) error

	// ToObject converts src into dst (a pointer) by round-tripping through
	// the serializer. Used to map loosely typed values (map[string]any) onto
	// concrete types.
	ToObject(src any, dst any) error
}

// Clone returns a deep, independent copy of v produced by serializing v and
// deserializing into a fresh value of the same dynamic type.
//
// A nil value, including a typed nil pointer, map, slice or interface, is
// returned unchanged. Unexported fields are not copied, since they are not
// visible to the serializer either.
func Clone(s Serializer, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		if rv.IsNil() {
			return v, nil
		}
	}

	data, err := s.Serialize(v)
	if err != nil {
		return nil, fmt.Errorf("clone: serialize %T: %w", v, err)
	}

	t := reflect.TypeOf(v)
	if t.Kind() == reflect.Pointer {
		dst := reflect.New(t.Elem())
		if err := s.Deserialize(data, dst.Interface()); err != nil {
			return nil, fmt.Errorf("clone: deserialize %T: %w", v, err)
		}
		return dst.Interface(), nil
	}

	dst := reflect.New(t)
	if err := s.Deserialize(data, dst.Interface()); err != nil {
		return nil, fmt.Errorf("clone: deserialize %T: %w", v, err)
	}
	return dst.Elem().Interface(), nil
}

// ForName returns the serializer registered under name.
// An empty name selects JSON.
func ForName(name string) (Serializer, error) {
	switch name {
	case "", "json", "JSON":
		return JSON{}, nil
	case "yaml", "YAML", "yml":
		return YAML{}, nil
	default:
		return nil, fmt.Errorf("unknown serializer: %s", name)
	}
}
