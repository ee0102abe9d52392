package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Byte output matches GoJSON for ordinary payloads; it exists for callers that
// want the lowest-dependency option or rely on encoding/json edge behaviour.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns "json".
func (JSON) Name() string { return "json" }
