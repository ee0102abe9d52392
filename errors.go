package semkv

import (
	"errors"
	"fmt"

	"github.com/hupe1980/semkv/cursor"
	"github.com/hupe1980/semkv/index"
	"github.com/hupe1980/semkv/internal/bloom"
	"github.com/hupe1980/semkv/internal/compress"
	"github.com/hupe1980/semkv/metadata"
)

var (
	// ErrNotFound is returned when a key is absent or tombstoned.
	ErrNotFound = errors.New("semkv: not found")

	// ErrInvalidPayload is returned when a payload cannot be encoded by the codec.
	ErrInvalidPayload = errors.New("semkv: invalid payload")

	// ErrInvalidProjection is returned for malformed or inapplicable cursor projections.
	ErrInvalidProjection = cursor.ErrInvalidProjection

	// ErrNotIndexable is returned when a cursor access does not fit the value's shape.
	ErrNotIndexable = cursor.ErrNotIndexable

	// ErrOutOfRange is returned for cursor list positions outside the list.
	ErrOutOfRange = cursor.ErrOutOfRange

	// ErrNoSuchKey is returned for cursor mapping keys that do not exist.
	ErrNoSuchKey = cursor.ErrNoSuchKey

	// ErrCorruptCheckpoint marks a checkpoint artifact that could not be read.
	// Open recovers from it and only reports it through the logger.
	ErrCorruptCheckpoint = errors.New("semkv: corrupt checkpoint")

	// ErrInvalidQuery is returned when a Selection is bound in a way its Query does not support.
	ErrInvalidQuery = errors.New("semkv: invalid query")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("semkv: k must be positive")

	// ErrInvalidVector is returned for vectors containing NaN or Inf.
	ErrInvalidVector = errors.New("semkv: vector contains NaN or Inf")

	// ErrInvalidRadius is returned for negative or NaN search radii.
	ErrInvalidRadius = errors.New("semkv: radius must be a non-negative number")

	// ErrInvalidKey is returned for empty keys.
	ErrInvalidKey = errors.New("semkv: key must not be empty")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("semkv: store is closed")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Expected int
	Actual   int
	cause    error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("semkv: dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrInvalidDimension indicates an invalid configured dimension.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidDimension struct {
	Dimension int
	cause     error
}

func (e *ErrInvalidDimension) Error() string {
	return fmt.Sprintf("semkv: invalid dimension: %d", e.Dimension)
}

func (e *ErrInvalidDimension) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, metadata.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{Expected: dm.Expected, Actual: dm.Actual, cause: err}
	}
	var id *index.ErrInvalidDimension
	if errors.As(err, &id) {
		return &ErrInvalidDimension{Dimension: id.Dimension, cause: err}
	}
	if errors.Is(err, index.ErrInvalidK) {
		return fmt.Errorf("%w: %w", ErrInvalidK, err)
	}
	if errors.Is(err, index.ErrInvalidRadius) {
		return fmt.Errorf("%w: %w", ErrInvalidRadius, err)
	}
	if errors.Is(err, index.ErrCorrupt) || errors.Is(err, metadata.ErrCorrupt) ||
		errors.Is(err, bloom.ErrCorrupt) || errors.Is(err, compress.ErrCorrupt) {
		return fmt.Errorf("%w: %w", ErrCorruptCheckpoint, err)
	}

	return err
}
