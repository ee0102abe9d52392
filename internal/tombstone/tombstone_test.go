package tombstone

import (
	"context"
	"fmt"
	"testing"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/semkv/internal/bloom"
	"github.com/hupe1980/semkv/metadata"
)

// saturated is a bloom filter that says "maybe" for everything.
func saturated(t *testing.T) *bloom.Filter {
	t.Helper()
	bf, err := bloom.New(1, 0.5)
	require.NoError(t, err)
	for i := uint64(0); i < 10_000; i++ {
		bf.Add(i)
	}
	return bf
}

func setup(t *testing.T, bf *bloom.Filter) (*metadata.Store, *Filter) {
	t.Helper()
	store, err := metadata.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, New(store, bf)
}

func TestMark(t *testing.T) {
	ctx := context.Background()
	bf, err := bloom.New(100, 0.01)
	require.NoError(t, err)
	store, f := setup(t, bf)

	require.NoError(t, store.Update(ctx, func(tx *metadata.Tx) error {
		if err := tx.Insert("a", 0, nil); err != nil {
			return err
		}
		return tx.Insert("b", 1, nil)
	}))

	require.NoError(t, store.Update(ctx, func(tx *metadata.Tx) error {
		if err := f.Mark(tx, 0); err != nil {
			return err
		}
		// Not visible in the bloom until commit.
		assert.False(t, f.Provisional(0))
		return nil
	}))

	assert.True(t, f.Provisional(0))
	assert.True(t, f.Authoritative(0))
	assert.True(t, f.IsDead(0))
	assert.False(t, f.IsDead(1))
	assert.Equal(t, uint64(1), f.Count())
}

func TestMarkRolledBack(t *testing.T) {
	ctx := context.Background()
	bf, err := bloom.New(100, 0.01)
	require.NoError(t, err)
	store, f := setup(t, bf)

	err = store.Update(ctx, func(tx *metadata.Tx) error {
		if err := f.Mark(tx, 5); err != nil {
			return err
		}
		return fmt.Errorf("abort")
	})
	require.Error(t, err)
	assert.False(t, f.Provisional(5))
	assert.False(t, f.IsDead(5))
	assert.Zero(t, f.Count())
}

func TestFalsePositivesNeverHideLiveRecords(t *testing.T) {
	ctx := context.Background()
	store, f := setup(t, saturated(t))

	require.NoError(t, store.Update(ctx, func(tx *metadata.Tx) error {
		return f.Mark(tx, 3)
	}))

	for ord := uint64(0); ord < 10; ord++ {
		assert.True(t, f.Provisional(ord))
		assert.Equal(t, ord == 3, f.IsDead(ord), "ordinal %d", ord)
	}

	stats := f.Stats()
	assert.Equal(t, uint64(10), stats.Checks)
	assert.Equal(t, uint64(10), stats.ProvisionalPositives)
	assert.Equal(t, uint64(9), stats.FalsePositives)
	assert.InDelta(t, 1.0, stats.ObservedFalsePositiveRate, 1e-9)
}

func TestRebuild(t *testing.T) {
	empty, err := bloom.New(100, 0.01)
	require.NoError(t, err)

	auth := &fakeAuthority{dead: roaring64.BitmapOf(2, 4, 8)}
	f := New(auth, empty)
	assert.False(t, f.IsDead(4), "empty bloom yields a false negative before rebuild")

	require.NoError(t, f.Rebuild(auth.dead, 100, 0.01))
	for _, ord := range []uint64{2, 4, 8} {
		assert.True(t, f.IsDead(ord))
	}
	assert.Equal(t, uint64(3), f.Bloom().Count())

	assert.Error(t, f.Rebuild(auth.dead, 100, 2))
}

type fakeAuthority struct {
	dead *roaring64.Bitmap
}

func (a *fakeAuthority) IsTombstoned(ordinal uint64) bool { return a.dead.Contains(ordinal) }
func (a *fakeAuthority) TombstoneCount() uint64           { return a.dead.GetCardinality() }
