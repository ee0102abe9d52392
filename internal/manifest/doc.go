// Package manifest implements atomic checkpoint manifest persistence.
//
// # Overview
//
// A checkpoint is a numbered directory of immutable artifacts:
//
//	v00000003/index.skv     vector index
//	v00000003/metadata.db   SQLite snapshot
//	v00000003/bloom.skv     tombstone bloom filter
//	MANIFEST                JSON document naming the live checkpoint
//
// # Atomic Protocol
//
// Save is called only after every artifact of a version has been written.
// Replacing MANIFEST is the commit point: a crash before it leaves the previous
// checkpoint intact, a crash after it leaves unreferenced artifacts that the
// next successful commit garbage-collects.
//
// On local filesystems the blob store writes MANIFEST with an atomic rename.
// On S3, the strong read-after-write consistency guarantee ensures the update
// is immediately visible; the DynamoDB commit store adds compare-and-swap.
//
// # Thread Safety
//
// All Store methods are protected by a mutex and safe for concurrent use.
package manifest
