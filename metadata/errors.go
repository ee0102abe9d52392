package metadata

import "errors"

var (
	// ErrNotFound is returned when no live row exists for a key.
	ErrNotFound = errors.New("metadata: not found")

	// ErrKeyConflict is returned when an insert would violate key or ordinal uniqueness.
	ErrKeyConflict = errors.New("metadata: key or ordinal already exists")

	// ErrCorrupt is returned by Restore for unreadable checkpoint data.
	ErrCorrupt = errors.New("metadata: corrupt checkpoint")
)
