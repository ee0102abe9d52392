package compress

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	compressible := bytes.Repeat([]byte("semkv checkpoint "), 1000)

	random := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(random)

	for _, typ := range []Type{None, LZ4, ZSTD} {
		t.Run(typ.String(), func(t *testing.T) {
			for name, data := range map[string][]byte{
				"compressible": compressible,
				"random":       random,
				"empty":        {},
			} {
				env, err := Encode(data, typ)
				require.NoError(t, err, name)

				got, err := Decode(env)
				require.NoError(t, err, name)
				assert.Equal(t, data, got, name)
			}
		})
	}
}

func TestFallsBackToNone(t *testing.T) {
	random := make([]byte, 1024)
	rand.New(rand.NewSource(2)).Read(random)

	env, err := Encode(random, ZSTD)
	require.NoError(t, err)
	assert.Equal(t, byte(None), env[0])

	env, err = Encode(bytes.Repeat([]byte{7}, 1024), LZ4)
	require.NoError(t, err)
	assert.Equal(t, byte(LZ4), env[0])
	assert.Less(t, len(env), 1024)
}

func TestCorrupt(t *testing.T) {
	env, err := Encode(bytes.Repeat([]byte("abc"), 500), ZSTD)
	require.NoError(t, err)

	_, err = Decode(env[:5])
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = Decode(env[:len(env)-1])
	assert.ErrorIs(t, err, ErrCorrupt)

	bad := append([]byte(nil), env...)
	bad[0] = 9
	_, err = Decode(bad)
	assert.ErrorIs(t, err, ErrCorrupt)

	garbled := append([]byte(nil), env...)
	for i := headerSize; i < len(garbled); i++ {
		garbled[i] = 0xff
	}
	_, err = Decode(garbled)
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestParseType(t *testing.T) {
	for _, typ := range []Type{None, LZ4, ZSTD} {
		got, err := ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := ParseType("brotli")
	assert.Error(t, err)
}
