// Package codec encodes record payloads.
//
// The codec name is stored in every checkpoint manifest. Reopening a store
// selects the codec by that name, so payloads written with one codec are never
// decoded with another.
package codec

// Codec encodes/decodes payload values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Default is the codec used by new stores.
var Default Codec = GoJSON{}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}
