package index

import (
	"encoding"
	"errors"
	"fmt"
	"io"
	"math"
)

// InvalidOrdinal marks KNN slots for which no vector exists.
const InvalidOrdinal uint64 = math.MaxUint64

var (
	// ErrInvalidK is returned when k is negative.
	ErrInvalidK = errors.New("index: k must not be negative")

	// ErrInvalidRadius is returned for negative or NaN radii.
	ErrInvalidRadius = errors.New("index: radius must be a non-negative number")

	// ErrCorrupt is returned when a checkpoint cannot be decoded.
	ErrCorrupt = errors.New("index: corrupt checkpoint")
)

// ErrDimensionMismatch is returned when a vector does not have the index dimension.
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ErrInvalidDimension is returned for non-positive dimensions.
type ErrInvalidDimension struct {
	Dimension int
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("invalid dimension: %d", e.Dimension)
}

// Neighbor is a single search hit. Distance is squared Euclidean.
type Neighbor struct {
	Ordinal  uint64
	Distance float32
}

// Valid reports whether n refers to an existing vector.
func (n Neighbor) Valid() bool { return n.Ordinal != InvalidOrdinal }

// Index is an append-only vector index.
type Index interface {
	encoding.BinaryMarshaler
	io.WriterTo

	// Dimension returns the fixed vector dimension.
	Dimension() int

	// Size returns the number of vectors ever appended.
	Size() uint64

	// Append stores v and returns its ordinal, which equals Size before the call.
	Append(v []float32) (uint64, error)

	// Vector returns a copy of the vector at ordinal.
	Vector(ordinal uint64) ([]float32, bool)

	// KNN returns exactly k slots in ascending distance order, padded with
	// InvalidOrdinal at +Inf distance when fewer than k vectors exist.
	KNN(q []float32, k int) ([]Neighbor, error)

	// Range returns every vector whose squared distance to q is at most
	// radiusSquared, in unspecified order.
	Range(q []float32, radiusSquared float32) ([]Neighbor, error)
}
