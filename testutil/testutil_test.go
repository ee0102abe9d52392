package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniformVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UniformVectors(8, 32)

	assert.Equal(t, 8, len(v))
	assert.Equal(t, 32, len(v[0]))
	assert.LessOrEqual(t, v[0][0], float32(1.0))
	assert.GreaterOrEqual(t, v[1][0], float32(0.0))

	// Rows must not alias each other when appended to.
	_ = append(v[0], 42)
	assert.NotEqual(t, float32(42), v[1][0])
}

func TestUnitVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.UnitVectors(8, 32)

	assert.Equal(t, 8, len(v))
	assert.Equal(t, 32, len(v[0]))

	for _, vec := range v {
		var sum float32
		for _, val := range vec {
			sum += val * val
		}
		assert.InDelta(t, float32(1.0), sum, 1e-5)
	}
}

func TestClusteredVectors(t *testing.T) {
	rng := NewRNG(4711)

	v := rng.ClusteredVectors(100, 32, 5, 0.1)

	assert.Equal(t, 100, len(v))
	assert.Equal(t, 32, len(v[0]))
}

func TestReset(t *testing.T) {
	rng := NewRNG(4711)
	v1 := rng.UniformVectors(1, 10)

	rng.Reset()
	v2 := rng.UniformVectors(1, 10)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int64(4711), rng.Seed())
}

func TestKeys(t *testing.T) {
	assert.Equal(t, []string{"k-000000", "k-000001"}, Keys("k", 2))
}

func TestBruteForce(t *testing.T) {
	vectors := [][]float32{{0, 0}, {3, 4}, {1, 0}, {0, 1}}
	center := []float32{0, 0}

	got := BruteForceSearch(vectors, center, 3, nil)
	require.Len(t, got, 3)
	assert.Equal(t, []uint64{0, 2, 3}, []uint64{got[0].Ordinal, got[1].Ordinal, got[2].Ordinal})

	got = BruteForceSearch(vectors, center, 10, func(i int) bool { return i == 0 })
	require.Len(t, got, 3)
	assert.Equal(t, uint64(2), got[0].Ordinal)

	within := BruteForceRange(vectors, center, 1, nil)
	require.Len(t, within, 3)
	assert.Equal(t, float32(0), within[0].Distance)

	assert.Equal(t, 1.0, ComputeRecall(got, got))
	assert.Equal(t, 1.0, ComputeRecall(nil, nil))
	assert.Equal(t, 0.0, ComputeRecall(got, nil))
}
