package main

import (
	"bytes"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/semkv"
	"github.com/hupe1980/semkv/blobstore/minio"
)

func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--dir", dir}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestPutGetSearch(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "--dim", "2", "put", "a", "--vector", "0,0", "--payload", `{"n":1}`)
	require.NoError(t, err)
	_, err = run(t, dir, "put", "b", "--vector", "1,0")
	require.NoError(t, err)
	_, err = run(t, dir, "put", "c", "--vector", "5,0")
	require.NoError(t, err)

	out, err := run(t, dir, "get", "a")
	require.NoError(t, err)
	var got struct {
		Key     string         `json:"key"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "a", got.Key)
	assert.EqualValues(t, 1, got.Payload["n"])

	out, err = run(t, dir, "search", "--vector", "0.9,0", "-k", "2", "--project", "[*].key")
	require.NoError(t, err)
	var keys []string
	require.NoError(t, json.Unmarshal([]byte(out), &keys))
	assert.Equal(t, []string{"b", "a"}, keys)

	out, err = run(t, dir, "range", "--vector", "0,0", "--radius", "1", "--project", "[*].key")
	require.NoError(t, err)
	keys = nil
	require.NoError(t, json.Unmarshal([]byte(out), &keys))
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "--dim", "2", "put", "a", "--vector", "0,0")
	require.NoError(t, err)
	_, err = run(t, dir, "rm", "a")
	require.NoError(t, err)

	_, err = run(t, dir, "get", "a")
	assert.ErrorIs(t, err, semkv.ErrNotFound)
	_, err = run(t, dir, "remove", "a")
	assert.ErrorIs(t, err, semkv.ErrNotFound)
}

func TestStats(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "--dim", "3", "--compression", "zstd", "put", "a", "--vector", "1,2,3")
	require.NoError(t, err)
	_, err = run(t, dir, "put", "a", "--vector", "3,2,1")
	require.NoError(t, err)

	out, err := run(t, dir, "stats")
	require.NoError(t, err)
	var st semkv.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 3, st.Dimension)
	assert.EqualValues(t, 2, st.IndexSize)
	assert.EqualValues(t, 1, st.Live)
	assert.EqualValues(t, 1, st.Tombstones)
}

func TestFlagErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "put", "a", "--vector", "1,2")
	var dimErr *semkv.ErrInvalidDimension
	assert.ErrorAs(t, err, &dimErr)

	_, err = run(t, dir, "--dim", "2", "--compression", "brotli", "put", "a", "--vector", "1,2")
	assert.Error(t, err)

	_, err = run(t, dir, "--dim", "2", "put", "a", "--vector", "1,2", "--payload", "{")
	assert.Error(t, err)
}

func TestMinioBackendFlags(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "--minio-endpoint", "localhost:9000", "--s3-bucket", "b", "stats")
	assert.ErrorContains(t, err, "mutually exclusive")

	_, err = run(t, dir, "--minio-endpoint", "localhost:9000", "stats")
	assert.ErrorIs(t, err, minio.ErrInvalidConfig)

	_, err = run(t, dir, "--minio-endpoint", "http://localhost:9000", "--minio-bucket", "b", "stats")
	assert.ErrorIs(t, err, minio.ErrInvalidConfig)
}
