// Package distance provides the vector distance helpers used by the index and the engine.
//
// The vector index ranks by squared Euclidean distance and never normalizes on its own.
// Callers that want cosine ranking normalize vectors before Put and Search:
//
//	v, ok := distance.NormalizeL2Copy(embedding)
//	if !ok {
//	    // zero vector, cannot be normalized
//	}
//	_ = kv.Put(ctx, "doc-1", v, payload)
package distance
