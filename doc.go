// Package semkv provides an embedded key/vector store for Go.
//
// Every key maps to one embedding vector and one payload. Values are found by
// exact key or by nearest-neighbour search over the vectors, ranked by squared
// Euclidean distance.
//
// # Quick Start
//
//	ctx := context.Background()
//	kv, _ := semkv.Open(ctx, semkv.Local("./data"), semkv.WithDimension(3))
//	defer kv.Close()
//
//	_ = kv.Put(ctx, "a", []float32{0, 0, 0}, map[string]any{"title": "origin"})
//	entry, _ := kv.Get(ctx, "a")
//
//	results, _ := kv.Search(ctx, []float32{0.1, 0, 0}, 5)
//	for c := range results.All() {
//	    fmt.Println(c)
//	}
//
// Cloud mode:
//
//	store, _ := s3.New(ctx, "my-bucket", s3.WithPrefix("kv/"))
//	kv, _ := semkv.Open(ctx, semkv.Remote(store))
//
// # Deferred Queries
//
// Select binds a query without running it. A vector query runs once it is
// bound by a count or a radius:
//
//	sel := kv.Select(semkv.ByVector{Vector: q})
//	top5, _ := sel.Top(ctx, 5)         // five nearest
//	ranks, _ := sel.Slice(ctx, 2, 5)   // ranks three to five
//	near, _ := sel.Within(ctx, 0.5)    // Euclidean radius 0.5
//
// Results are cursor.Cursor values that can be indexed, sliced, iterated and
// projected:
//
//	keys, _ := top5.ProjectText("[*].key")
//
// # Deletion
//
// The vector index is append-only. Overwriting or removing a key tombstones
// its ordinal; searches over-fetch by the number of tombstones and drop dead
// ordinals. A bloom filter answers most liveness checks; every positive is
// confirmed against the exact tombstone set, so a false positive never hides
// a live value.
//
// # Durability Model
//
// semkv uses commit-oriented durability:
//
//	kv.Put(ctx, key, vec, payload) // in memory
//	kv.Commit(ctx)                 // durable after this
//
// A checkpoint is three artifacts (index, metadata database, bloom filter)
// plus a MANIFEST written last. Close commits by default.
package semkv
