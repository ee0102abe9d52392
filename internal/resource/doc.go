// Package resource governs checkpoint IO.
//
// The Controller provides two limits:
//
//   - Concurrency: the number of artifacts uploaded in parallel by Commit
//   - IO: a token-bucket byte rate shared by all checkpoint reads and writes
//
// # IO Rate Limiting
//
//	rc := resource.NewController(resource.Config{
//	    IOLimitBytesPerSec: 100 * 1024 * 1024, // 100MB/s
//	})
//
//	store := resource.Throttle(blobs, rc)
//
// # Parallel Work
//
//	err := rc.Run(ctx,
//	    func(ctx context.Context) error { return store.Put(ctx, "a", a) },
//	    func(ctx context.Context) error { return store.Put(ctx, "b", b) },
//	)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully: they become no-ops and Run
// executes tasks sequentially.
package resource
