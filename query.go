package semkv

import (
	"context"
	"fmt"

	"github.com/hupe1980/semkv/cursor"
	"github.com/hupe1980/semkv/distance"
)

// Query is what a Selection runs. It is one of ByKey, ByVector or ByRange.
type Query interface {
	isQuery()
}

// ByKey selects the live value of one key.
type ByKey struct {
	Key string
}

// ByVector selects the values nearest to Vector. The search runs only once
// the Selection is bound by a count or a radius.
type ByVector struct {
	Vector []float32
}

// ByRange selects every value within Euclidean distance Radius of Center.
type ByRange struct {
	Center []float32
	Radius float32
}

func (ByKey) isQuery()    {}
func (ByVector) isQuery() {}
func (ByRange) isQuery()  {}

// Selection is a query bound to a store but not yet executed.
type Selection struct {
	kv    *KV
	query Query
}

// Select binds q to the store. Nothing runs until a Selection method is called.
func (kv *KV) Select(q Query) *Selection {
	return &Selection{kv: kv, query: q}
}

// Query returns the selected query.
func (s *Selection) Query() Query { return s.query }

func (s *Selection) vector(op string) ([]float32, error) {
	q, ok := s.query.(ByVector)
	if !ok {
		return nil, fmt.Errorf("%w: %s needs ByVector, got %T", ErrInvalidQuery, op, s.query)
	}
	return q.Vector, nil
}

// Top runs the search and returns the k nearest live matches.
func (s *Selection) Top(ctx context.Context, k int) (*cursor.Cursor, error) {
	v, err := s.vector("Top")
	if err != nil {
		return nil, err
	}
	return s.kv.Search(ctx, v, k)
}

// Slice runs a search for the stop nearest matches and returns ranks
// [start, stop). Slice(ctx, 0, 5) is the top five; Slice(ctx, 2, 5) ranks three
// to five.
func (s *Selection) Slice(ctx context.Context, start, stop int) (*cursor.Cursor, error) {
	v, err := s.vector("Slice")
	if err != nil {
		return nil, err
	}
	if start < 0 || stop < start {
		return nil, fmt.Errorf("%w: slice [%d:%d]", ErrInvalidQuery, start, stop)
	}
	if stop == start {
		return cursor.New([]cursor.Match{}), nil
	}

	matches, err := s.kv.search(ctx, v, stop)
	if err != nil {
		return nil, err
	}
	start = min(start, len(matches))
	return cursor.New(matches[start:]), nil
}

// Within runs a range search of the given Euclidean radius around the
// selected vector.
func (s *Selection) Within(ctx context.Context, radius float32) (*cursor.Cursor, error) {
	v, err := s.vector("Within")
	if err != nil {
		return nil, err
	}
	return s.kv.SearchRange(ctx, v, radius)
}

// Toward runs a range search around the selected vector whose radius is the
// Euclidean distance to other, so other's own position is included. The
// bound is compared on squared distances.
func (s *Selection) Toward(ctx context.Context, other []float32) (*cursor.Cursor, error) {
	v, err := s.vector("Toward")
	if err != nil {
		return nil, err
	}
	if len(other) != len(v) {
		return nil, &ErrDimensionMismatch{Expected: len(v), Actual: len(other)}
	}
	if i, ok := distance.IsFinite(other); !ok {
		return nil, fmt.Errorf("%w: element %d", ErrInvalidVector, i)
	}
	matches, err := s.kv.searchRangeSquared(ctx, v, distance.SquaredL2(v, other))
	if err != nil {
		return nil, err
	}
	return cursor.New(matches), nil
}

// Fetch runs a query that needs no further bound. ByKey yields a single
// match with zero distance; ByRange yields the range search result.
func (s *Selection) Fetch(ctx context.Context) (*cursor.Cursor, error) {
	switch q := s.query.(type) {
	case ByKey:
		e, err := s.kv.Get(ctx, q.Key)
		if err != nil {
			return nil, err
		}
		return cursor.New(cursor.Match{
			Key:     e.Key,
			Ordinal: e.Ordinal,
			Vector:  e.Vector,
			Payload: e.Payload,
		}), nil
	case ByRange:
		return s.kv.SearchRange(ctx, q.Center, q.Radius)
	case ByVector:
		return nil, fmt.Errorf("%w: ByVector needs a count or radius", ErrInvalidQuery)
	default:
		return nil, fmt.Errorf("%w: unsupported query %T", ErrInvalidQuery, s.query)
	}
}
