package serialization

import (
	"gopkg.in/yaml.v3"
)

// YAML serializes events with gopkg.in/yaml.v3. Struct fields without a yaml
// tag are keyed by their lowercased Go name, so events serialized as YAML are
// best read back with this serializer rather than with JSON tooling.
type YAML struct{}

// Name implements Serializer.
func (YAML) Name() string { return "yaml" }

// Serialize implements Serializer.
func (YAML) Serialize(v any) ([]byte, error) {
	return yaml.Marshal(v)
}

// Deserialize implements Serializer.
func (YAML) Deserialize(data []byte, v any) error {
	return yaml.Unmarshal(data, v)
}

// ToObject implements Serializer.
func (y YAML) ToObject(src any, dst any) error {
	data, err := y.Serialize(src)
	if err != nil {
		return err
	}
	return y.Deserialize(data, dst)
}
