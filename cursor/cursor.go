package cursor

import (
	"fmt"
	"iter"
	"slices"
	"sort"

	json "github.com/goccy/go-json"
)

// Shape is the structural kind of a cursor's value.
type Shape int

const (
	Scalar Shape = iota
	List
	Mapping
)

func (s Shape) String() string {
	switch s {
	case Scalar:
		return "scalar"
	case List:
		return "list"
	case Mapping:
		return "mapping"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// Match is one ranked search hit.
type Match struct {
	Key      string    `json:"key"`
	Ordinal  uint64    `json:"ordinal"`
	Distance float32   `json:"distance"`
	Vector   []float32 `json:"vector"`
	Payload  any       `json:"payload"`
}

var matchFields = []string{"key", "ordinal", "distance", "vector", "payload"}

func (m Match) field(name string) (any, bool) {
	switch name {
	case "key":
		return m.Key, true
	case "ordinal":
		return m.Ordinal, true
	case "distance":
		return m.Distance, true
	case "vector":
		return m.Vector, true
	case "payload":
		return m.Payload, true
	default:
		return nil, false
	}
}

// Cursor is an immutable view over a result value.
type Cursor struct {
	value any
}

// New wraps v.
func New(v any) *Cursor {
	return &Cursor{value: v}
}

// Value returns the wrapped value.
func (c *Cursor) Value() any { return c.value }

// Shape returns the structural kind of the wrapped value.
func (c *Cursor) Shape() Shape {
	switch c.value.(type) {
	case []Match, []any:
		return List
	case Match, map[uint64]Match, map[string]any:
		return Mapping
	default:
		return Scalar
	}
}

// Len returns the number of elements of a list or entries of a mapping.
// Scalars have length zero.
func (c *Cursor) Len() int {
	switch v := c.value.(type) {
	case []Match:
		return len(v)
	case []any:
		return len(v)
	case Match:
		return len(matchFields)
	case map[uint64]Match:
		return len(v)
	case map[string]any:
		return len(v)
	default:
		return 0
	}
}

// Index returns the element at position i of a list. Negative positions
// count from the end.
func (c *Cursor) Index(i int) (*Cursor, error) {
	n := c.Len()
	if c.Shape() != List {
		return nil, fmt.Errorf("%w: %s has no positions", ErrNotIndexable, c.Shape())
	}
	pos := i
	if pos < 0 {
		pos += n
	}
	if pos < 0 || pos >= n {
		return nil, fmt.Errorf("%w: %d (length %d)", ErrOutOfRange, i, n)
	}

	switch v := c.value.(type) {
	case []Match:
		return New(v[pos]), nil
	default:
		return New(v.([]any)[pos]), nil
	}
}

// Key returns the value stored under name in a string-keyed mapping or a Match.
func (c *Cursor) Key(name string) (*Cursor, error) {
	switch v := c.value.(type) {
	case Match:
		if f, ok := v.field(name); ok {
			return New(f), nil
		}
	case map[string]any:
		if f, ok := v[name]; ok {
			return New(f), nil
		}
	default:
		return nil, fmt.Errorf("%w: %s has no string keys", ErrNotIndexable, c.Shape())
	}
	return nil, fmt.Errorf("%w: %q", ErrNoSuchKey, name)
}

// Ordinal returns the match stored under ordinal in an ordinal mapping.
func (c *Cursor) Ordinal(ordinal uint64) (*Cursor, error) {
	m, ok := c.value.(map[uint64]Match)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no ordinal keys", ErrNotIndexable, c.Shape())
	}
	match, ok := m[ordinal]
	if !ok {
		return nil, fmt.Errorf("%w: ordinal %d", ErrNoSuchKey, ordinal)
	}
	return New(match), nil
}

// Slice returns the elements [start, stop) of a list. Negative bounds count
// from the end; bounds past either end are clamped.
func (c *Cursor) Slice(start, stop int) (*Cursor, error) {
	if c.Shape() != List {
		return nil, fmt.Errorf("%w: %s cannot be sliced", ErrNotIndexable, c.Shape())
	}
	n := c.Len()
	start, stop = clamp(start, n), clamp(stop, n)
	if stop < start {
		stop = start
	}

	switch v := c.value.(type) {
	case []Match:
		return New(slices.Clone(v[start:stop])), nil
	default:
		return New(slices.Clone(v.([]any)[start:stop])), nil
	}
}

func clamp(i, n int) int {
	if i < 0 {
		i += n
	}
	return max(0, min(i, n))
}

// Keys returns the string keys of a mapping in sorted order, or the field
// names of a Match in declaration order.
func (c *Cursor) Keys() []string {
	switch v := c.value.(type) {
	case Match:
		return slices.Clone(matchFields)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return keys
	default:
		return nil
	}
}

// Ordinals returns the keys of an ordinal mapping in ascending order.
func (c *Cursor) Ordinals() []uint64 {
	m, ok := c.value.(map[uint64]Match)
	if !ok {
		return nil
	}
	ords := make([]uint64, 0, len(m))
	for o := range m {
		ords = append(ords, o)
	}
	slices.Sort(ords)
	return ords
}

// All yields a cursor per element of a list, or per value of a mapping in key
// order. Scalars yield nothing. Each call starts a fresh traversal.
func (c *Cursor) All() iter.Seq[*Cursor] {
	return func(yield func(*Cursor) bool) {
		switch v := c.value.(type) {
		case []Match:
			for _, m := range v {
				if !yield(New(m)) {
					return
				}
			}
		case []any:
			for _, e := range v {
				if !yield(New(e)) {
					return
				}
			}
		case map[uint64]Match:
			for _, o := range c.Ordinals() {
				if !yield(New(v[o])) {
					return
				}
			}
		case Match:
			for _, name := range matchFields {
				f, _ := v.field(name)
				if !yield(New(f)) {
					return
				}
			}
		case map[string]any:
			for _, k := range c.Keys() {
				if !yield(New(v[k])) {
					return
				}
			}
		}
	}
}

// Matches returns the search hits held by the cursor: the elements of a match
// list, the values of an ordinal mapping in ordinal order, or a single match.
// Other values yield nil.
func (c *Cursor) Matches() []Match {
	switch v := c.value.(type) {
	case []Match:
		return slices.Clone(v)
	case Match:
		return []Match{v}
	case map[uint64]Match:
		out := make([]Match, 0, len(v))
		for _, o := range c.Ordinals() {
			out = append(out, v[o])
		}
		return out
	default:
		return nil
	}
}

// Decode stores the JSON form of the value in the value pointed to by v.
func (c *Cursor) Decode(v any) error {
	data, err := json.Marshal(c.value)
	if err != nil {
		return fmt.Errorf("cursor: encode: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cursor: decode: %w", err)
	}
	return nil
}

// String returns the JSON form of the value.
func (c *Cursor) String() string {
	data, err := json.Marshal(c.value)
	if err != nil {
		return fmt.Sprint(c.value)
	}
	return string(data)
}

// document returns the JSON-generic form of the value as consumed by gojq.
func (c *Cursor) document() (any, error) {
	data, err := json.Marshal(c.value)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
