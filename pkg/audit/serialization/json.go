package serialization

import (
	"bytes"
	"encoding/json"
)

// JSON is the default serializer, backed by encoding/json. Numbers decoded
// into untyped destinations become float64.
type JSON struct {
	// Indent pretty-prints serialized output.
	Indent bool
}

// Name implements Serializer.
func (JSON) Name() string { return "json" }

// Serialize implements Serializer.
func (j JSON) Serialize(v any) ([]byte, error) {
	if j.Indent {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// Deserialize implements Serializer.
func (JSON) Deserialize(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	return dec.Decode(v)
}

// ToObject implements Serializer.
func (j JSON) ToObject(src any, dst any) error {
	data, err := j.Serialize(src)
	if err != nil {
		return err
	}
	return j.Deserialize(data, dst)
}
