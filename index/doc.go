// Package index defines the vector index contract used by the store.
//
// An index assigns each appended vector a dense ordinal equal to its insertion
// position. Indexes are append-only: the store expresses updates and deletes
// through tombstones and over-fetches at query time instead of mutating the
// index.
//
// # Subpackages
//
//   - flat: exact search over a contiguous vector array
//
// Index implementations register a checkpoint loader from an init function so
// that Load can restore them by the magic bytes at the start of the checkpoint.
package index
