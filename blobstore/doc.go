// Package blobstore provides the storage abstraction for checkpoint artifacts.
//
// A checkpoint is a small set of immutable blobs (index, metadata, bloom filter)
// plus a MANIFEST naming them. BlobStore only needs whole-object puts and reads,
// which maps cleanly onto both local directories and object stores.
//
// # Built-in Implementations
//
//   - LocalStore: local filesystem with mmap reads and atomic rename writes
//   - MemoryStore: in-process store for tests
//   - s3.Store: Amazon S3 with range reads and multipart uploads
//   - minio.Store: MinIO and other S3-compatible services
package blobstore
