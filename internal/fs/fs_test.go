package fs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "v00000001", "index.skv")

	require.NoError(t, WriteFileAtomic(Default, path, []byte("first"), 0o644))
	require.NoError(t, WriteFileAtomic(Default, path, []byte("second"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are renamed away")
}

func TestFaultyFS(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "MANIFEST")
	require.NoError(t, WriteFileAtomic(Default, path, []byte("old"), 0o644))

	tests := []struct {
		name  string
		fault Fault
	}{
		{"Write", Fault{FailAfterBytes: 2}},
		{"Sync", Fault{FailAfterBytes: -1, FailOnSync: true}},
		{"Rename", Fault{FailAfterBytes: -1, FailOnRename: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			faulty := NewFaultyFS(nil)
			faulty.AddRule("MANIFEST", tt.fault)

			err := WriteFileAtomic(faulty, path, []byte("new content"), 0o644)
			assert.ErrorIs(t, err, ErrInjected)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "old", string(data), "a failed write leaves the previous file intact")

			entries, err := os.ReadDir(dir)
			require.NoError(t, err)
			assert.Len(t, entries, 1, "temp file is cleaned up")
		})
	}

	t.Run("UnmatchedPathsPassThrough", func(t *testing.T) {
		faulty := NewFaultyFS(nil)
		faulty.AddRule("MANIFEST", Fault{FailOnSync: true, FailAfterBytes: -1})
		require.NoError(t, WriteFileAtomic(faulty, filepath.Join(dir, "other"), []byte("x"), 0o644))

		faulty.ClearRules()
		require.NoError(t, WriteFileAtomic(faulty, path, []byte("new"), 0o644))
	})
}
