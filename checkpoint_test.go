package semkv_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/semkv"
	"github.com/hupe1980/semkv/blobstore"
	"github.com/hupe1980/semkv/codec"
	"github.com/hupe1980/semkv/internal/manifest"
	"github.com/hupe1980/semkv/testutil"
)

func populate(t *testing.T, kv *semkv.KV) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, kv.Put(ctx, "a", []float32{0, 0}, map[string]any{"n": 1}))
	require.NoError(t, kv.Put(ctx, "b", []float32{1, 1}, map[string]any{"n": 2}))
	require.NoError(t, kv.Put(ctx, "c", []float32{2, 2}, map[string]any{"n": 3}))
	require.NoError(t, kv.Put(ctx, "b", []float32{5, 5}, map[string]any{"n": 4}))
	require.NoError(t, kv.Remove(ctx, "a"))
}

func TestCommitAndReopen(t *testing.T) {
	for _, compression := range []semkv.Compression{semkv.CompressionNone, semkv.CompressionLZ4, semkv.CompressionZSTD} {
		t.Run(compression.String(), func(t *testing.T) {
			ctx := context.Background()
			dir := t.TempDir()

			kv, err := semkv.Open(ctx, semkv.Local(dir), semkv.WithDimension(2), semkv.WithCompression(compression))
			require.NoError(t, err)
			populate(t, kv)
			require.NoError(t, kv.Commit(ctx))
			require.NoError(t, kv.Close())

			kv, err = semkv.Open(ctx, semkv.Local(dir))
			require.NoError(t, err)
			defer kv.Close()

			assert.Equal(t, 2, kv.Dimension())
			stats, err := kv.Stats(ctx)
			require.NoError(t, err)
			assert.Equal(t, uint64(4), stats.IndexSize)
			assert.Equal(t, 2, stats.Live)
			assert.Equal(t, uint64(2), stats.Tombstones)
			assert.Equal(t, uint64(1), stats.Version)

			_, err = kv.Get(ctx, "a")
			assert.ErrorIs(t, err, semkv.ErrNotFound)

			b, err := kv.Get(ctx, "b")
			require.NoError(t, err)
			assert.Equal(t, []float32{5, 5}, b.Vector)
			assert.Equal(t, map[string]any{"n": float64(4)}, b.Payload)
			assert.Equal(t, uint64(3), b.Ordinal)

			res, err := kv.Search(ctx, []float32{0, 0}, 3)
			require.NoError(t, err)
			assert.Equal(t, []string{"c", "b"}, keysOf(t, res))

			// The ordinal counter continues where it left off.
			require.NoError(t, kv.Put(ctx, "d", []float32{3, 3}, nil))
			d, err := kv.Get(ctx, "d")
			require.NoError(t, err)
			assert.Equal(t, uint64(4), d.Ordinal)
		})
	}
}

func TestCloseCommitsByDefault(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	kv, err := semkv.Open(ctx, semkv.Remote(store), semkv.WithDimension(2))
	require.NoError(t, err)
	populate(t, kv)
	require.NoError(t, kv.Close())

	kv, err = semkv.Open(ctx, semkv.Remote(store), semkv.WithCommitOnClose(false))
	require.NoError(t, err)
	assert.True(t, kv.Find(ctx, "b"))
	require.NoError(t, kv.Put(ctx, "lost", []float32{9, 9}, nil))
	require.NoError(t, kv.Close())

	kv, err = semkv.Open(ctx, semkv.Remote(store), semkv.WithCommitOnClose(false))
	require.NoError(t, err)
	defer kv.Close()
	assert.False(t, kv.Find(ctx, "lost"))
	assert.True(t, kv.Find(ctx, "c"))
}

func TestReopenDimension(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	kv, err := semkv.Open(ctx, semkv.Remote(store), semkv.WithDimension(3))
	require.NoError(t, err)
	require.NoError(t, kv.Close())

	_, err = semkv.Open(ctx, semkv.Remote(store), semkv.WithDimension(4))
	var dm *semkv.ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 4, dm.Actual)

	kv, err = semkv.Open(ctx, semkv.Remote(store), semkv.WithDimension(3))
	require.NoError(t, err)
	require.NoError(t, kv.Close())
}

func TestReopenKeepsCodec(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	kv, err := semkv.Open(ctx, semkv.Remote(store), semkv.WithDimension(1), semkv.WithCodec(codec.JSON{}))
	require.NoError(t, err)
	require.NoError(t, kv.Put(ctx, "x", []float32{1}, []int{1, 2}))
	require.NoError(t, kv.Close())

	kv, err = semkv.Open(ctx, semkv.Remote(store), semkv.WithCodec(codec.GoJSON{}))
	require.NoError(t, err)
	defer kv.Close()
	assert.Equal(t, "json", kv.Codec().Name())

	e, err := kv.Get(ctx, "x")
	require.NoError(t, err)
	var got []int
	require.NoError(t, e.Decode(&got))
	assert.Equal(t, []int{1, 2}, got)
}

func TestRetainedCheckpoints(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	kv, err := semkv.Open(ctx, semkv.Remote(store), semkv.WithDimension(2),
		semkv.WithRetainedCheckpoints(2), semkv.WithCommitOnClose(false))
	require.NoError(t, err)
	defer kv.Close()

	for i := range 4 {
		require.NoError(t, kv.Put(ctx, "k", []float32{float32(i), 0}, i))
		require.NoError(t, kv.Commit(ctx))
	}

	names, err := store.List(ctx, "v")
	require.NoError(t, err)
	dirs := map[string]bool{}
	for _, n := range names {
		dir, _, _ := strings.Cut(n, "/")
		dirs[dir] = true
	}
	assert.Equal(t, map[string]bool{manifest.VersionDir(3): true, manifest.VersionDir(4): true}, dirs)

	stats, err := kv.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), stats.Version)
}

func TestCorruptArtifactsRecover(t *testing.T) {
	tests := []struct {
		name     string
		artifact string
		check    func(t *testing.T, kv *semkv.KV)
	}{
		{
			name:     "index",
			artifact: manifest.IndexArtifact,
			check: func(t *testing.T, kv *semkv.KV) {
				ctx := context.Background()
				stats, err := kv.Stats(ctx)
				require.NoError(t, err)
				// Without vectors no row can survive reconciliation.
				assert.Zero(t, stats.IndexSize)
				assert.Zero(t, stats.Live)
				assert.False(t, kv.Find(ctx, "b"))

				require.NoError(t, kv.Put(ctx, "z", []float32{1, 1}, nil))
				res, err := kv.Search(ctx, []float32{1, 1}, 5)
				require.NoError(t, err)
				assert.Equal(t, []string{"z"}, keysOf(t, res))
			},
		},
		{
			name:     "metadata",
			artifact: manifest.MetadataArtifact,
			check: func(t *testing.T, kv *semkv.KV) {
				ctx := context.Background()
				stats, err := kv.Stats(ctx)
				require.NoError(t, err)
				// Every vector lost its row and is tombstoned.
				assert.Equal(t, uint64(4), stats.IndexSize)
				assert.Zero(t, stats.Live)
				assert.Equal(t, uint64(4), stats.Tombstones)

				res, err := kv.Search(ctx, []float32{0, 0}, 5)
				require.NoError(t, err)
				assert.Zero(t, res.Len())

				require.NoError(t, kv.Put(ctx, "z", []float32{0, 0}, nil))
				z, err := kv.Get(ctx, "z")
				require.NoError(t, err)
				assert.Equal(t, uint64(4), z.Ordinal)
			},
		},
		{
			name:     "bloom",
			artifact: manifest.BloomArtifact,
			check: func(t *testing.T, kv *semkv.KV) {
				ctx := context.Background()
				stats, err := kv.Stats(ctx)
				require.NoError(t, err)
				assert.Equal(t, 2, stats.Live)
				assert.Equal(t, uint64(2), stats.Bloom.Items)

				// The rebuilt filter still knows every tombstone.
				res, err := kv.Search(ctx, []float32{0, 0}, 5)
				require.NoError(t, err)
				assert.Equal(t, []string{"c", "b"}, keysOf(t, res))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := blobstore.NewMemoryStore()

			kv, err := semkv.Open(ctx, semkv.Remote(store), semkv.WithDimension(2))
			require.NoError(t, err)
			populate(t, kv)
			require.NoError(t, kv.Close())

			require.True(t, store.Corrupt(manifest.ArtifactPath(1, tt.artifact), 20))

			var logs bytes.Buffer
			logger := semkv.NewLogger(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelWarn}))
			kv, err = semkv.Open(ctx, semkv.Remote(store), semkv.WithLogger(logger), semkv.WithCommitOnClose(false))
			require.NoError(t, err)
			defer kv.Close()

			assert.Contains(t, logs.String(), "checkpoint artifact recovered")
			assert.Contains(t, logs.String(), tt.artifact)
			tt.check(t, kv)
		})
	}
}

func TestMissingArtifactRecovers(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	kv, err := semkv.Open(ctx, semkv.Remote(store), semkv.WithDimension(2))
	require.NoError(t, err)
	populate(t, kv)
	require.NoError(t, kv.Close())

	require.NoError(t, store.Delete(ctx, manifest.ArtifactPath(1, manifest.BloomArtifact)))

	kv, err = semkv.Open(ctx, semkv.Remote(store), semkv.WithCommitOnClose(false))
	require.NoError(t, err)
	defer kv.Close()

	_, err = kv.Get(ctx, "a")
	assert.ErrorIs(t, err, semkv.ErrNotFound)
	assert.True(t, kv.Find(ctx, "b"))
}

func TestCorruptManifest(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, manifest.FileName, []byte("{not json")))

	_, err := semkv.Open(ctx, semkv.Remote(store))
	require.Error(t, err)

	// With an explicit dimension the store starts over.
	kv, err := semkv.Open(ctx, semkv.Remote(store), semkv.WithDimension(2))
	require.NoError(t, err)
	defer kv.Close()

	n, err := kv.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReopenLargeStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	rng := testutil.NewRNG(7)
	const dim = 16

	vectors := rng.UnitVectors(300, dim)
	keys := testutil.Keys("doc", len(vectors))

	kv, err := semkv.Open(ctx, semkv.Local(dir), semkv.WithDimension(dim), semkv.WithCheckpointConcurrency(2))
	require.NoError(t, err)
	for i, k := range keys {
		require.NoError(t, kv.Put(ctx, k, vectors[i], map[string]any{"i": i}))
	}
	dead := map[int]bool{}
	for _, i := range rng.Perm(len(keys))[:100] {
		require.NoError(t, kv.Remove(ctx, keys[i]))
		dead[i] = true
	}
	require.NoError(t, kv.Close())

	kv, err = semkv.Open(ctx, semkv.Local(dir), semkv.WithCheckpointRateLimit(1<<20))
	require.NoError(t, err)
	defer kv.Close()

	q := rng.UnitVectors(1, dim)[0]
	res, err := kv.Search(ctx, q, 10)
	require.NoError(t, err)
	want := testutil.BruteForceSearch(vectors, q, 10, func(i int) bool { return dead[i] })

	got := make([]testutil.SearchResult, 0, res.Len())
	for _, m := range res.Matches() {
		got = append(got, testutil.SearchResult{Ordinal: m.Ordinal, Distance: m.Distance})
	}
	assert.InDelta(t, 1.0, testutil.ComputeRecall(want, got), 1e-9)
}
