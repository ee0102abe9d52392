package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	magic := [4]byte{'T', 'E', 'S', 'T'}
	var gotDim int
	RegisterLoader(magic, func(data []byte, dim int) (Index, error) {
		gotDim = dim
		return nil, nil
	})

	_, err := Load([]byte("TEST-payload"), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, gotDim)

	_, err = Load([]byte("ZZZZ"), 0)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Load([]byte("TE"), 0)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestNeighborValid(t *testing.T) {
	assert.True(t, Neighbor{Ordinal: 0}.Valid())
	assert.False(t, Neighbor{Ordinal: InvalidOrdinal}.Valid())
}
