// Package minio provides a BlobStore implementation using the MinIO client.
//
// MinIO is a high-performance, S3-compatible object storage system. This package
// uses the official MinIO Go client library, so it also works with other
// S3-compatible systems like Ceph, SeaweedFS, and Garage.
//
// # Basic Usage
//
//	store, err := minioblob.New(ctx, minioblob.Config{
//	    Endpoint:     "localhost:9000",
//	    Bucket:       "my-bucket",
//	    Prefix:       "semkv/",
//	    CreateBucket: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	db, err := semkv.Open(ctx, semkv.Remote(store), semkv.WithDimension(128))
//
// Empty credentials fall back to $MINIO_ACCESS_KEY and $MINIO_SECRET_KEY.
// NewStore wraps an already configured *minio.Client.
package minio
