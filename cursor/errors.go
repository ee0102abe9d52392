package cursor

import "errors"

var (
	// ErrNotIndexable is returned when the cursor's shape does not support the access.
	ErrNotIndexable = errors.New("cursor: value is not indexable")

	// ErrOutOfRange is returned for list positions outside the list.
	ErrOutOfRange = errors.New("cursor: index out of range")

	// ErrNoSuchKey is returned for mapping keys that do not exist.
	ErrNoSuchKey = errors.New("cursor: no such key")

	// ErrInvalidProjection is returned for malformed or inapplicable expressions.
	ErrInvalidProjection = errors.New("cursor: invalid projection")
)
