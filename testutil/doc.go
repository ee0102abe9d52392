// Package testutil provides testing utilities for semkv.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random vectors, computing exact
// nearest neighbors, and verifying search recall.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UniformVectors(1000, 128) // uniform [0, 1)
//	unit := rng.UnitVectors(1000, 128)    // on the unit sphere
//
// # Exact Search (Ground Truth)
//
//	results := testutil.BruteForceSearch(vecs, query, k, isDeleted)
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(exactResults, approxResults)
package testutil
