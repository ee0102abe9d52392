// Package s3 provides an S3 implementation of the blobstore.BlobStore interface.
//
// # Usage
//
//	store, err := s3.New(ctx, "my-bucket",
//	    s3.WithPrefix("semkv/"),
//	    s3.WithRegion("us-east-1"),
//	)
//
//	db, err := semkv.Open(ctx, semkv.Remote(store), semkv.WithDimension(128))
//
// Wrap the store in a DDBCommitStore when several processes may commit to
// the same prefix; manifest writes then go through a DynamoDB conditional put.
//
// # Features
//
//   - Range reads for efficient partial fetches
//   - Multipart uploads for large artifacts, CRC32C checksums
//   - Automatic pagination for listing
//   - Configurable prefix for multi-tenant isolation
package s3
