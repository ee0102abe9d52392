package distance

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDot(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Simple", []float32{1, 2, 3}, []float32{4, 5, 6}, 32},
		{"Zero", []float32{0, 0, 0}, []float32{0, 0, 0}, 0},
		{"Mixed", []float32{1, -1, 2}, []float32{1, 1, -2}, -4},
		{"Empty", []float32{}, []float32{}, 0},
		{"Single", []float32{2}, []float32{3}, 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, Dot(tt.a, tt.b), 1e-5)
		})
	}
}

func TestSquaredL2(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float32
	}{
		{"Simple", []float32{1, 2, 3}, []float32{4, 5, 6}, 27},
		{"Zero", []float32{0, 0, 0}, []float32{0, 0, 0}, 0},
		{"Identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"Mixed", []float32{1, -1}, []float32{-1, 1}, 8},
		{"Empty", []float32{}, []float32{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, SquaredL2(tt.a, tt.b), 1e-5)
		})
	}
}

func TestL2(t *testing.T) {
	assert.InDelta(t, 5, L2([]float32{0, 0}, []float32{3, 4}), 1e-6)
	assert.InDelta(t, 0, L2([]float32{1, 1}, []float32{1, 1}), 1e-6)
}

func TestNormalizeL2(t *testing.T) {
	t.Run("InPlace", func(t *testing.T) {
		v := []float32{3, 4}
		require.True(t, NormalizeL2InPlace(v))
		assert.InDelta(t, 0.6, v[0], 1e-6)
		assert.InDelta(t, 0.8, v[1], 1e-6)
	})

	t.Run("Copy", func(t *testing.T) {
		src := []float32{0, 2}
		dst, ok := NormalizeL2Copy(src)
		require.True(t, ok)
		assert.Equal(t, []float32{0, 2}, src)
		assert.InDelta(t, 1, dst[1], 1e-6)
	})

	t.Run("Zero", func(t *testing.T) {
		_, ok := NormalizeL2Copy([]float32{0, 0})
		assert.False(t, ok)
		assert.False(t, NormalizeL2InPlace(nil))
	})
}

func TestIsFinite(t *testing.T) {
	i, ok := IsFinite([]float32{1, 2})
	assert.True(t, ok)
	assert.Equal(t, -1, i)

	i, ok = IsFinite([]float32{1, float32(math.NaN())})
	assert.False(t, ok)
	assert.Equal(t, 1, i)

	_, ok = IsFinite([]float32{float32(math.Inf(-1))})
	assert.False(t, ok)
}
