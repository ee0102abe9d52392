package s3

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/semkv/blobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDDBClient is an in-memory DynamoDB mock for testing.
type mockDDBClient struct {
	mu    sync.RWMutex
	items map[string]map[string]types.AttributeValue // key -> item
}

func newMockDDBClient() *mockDDBClient {
	return &mockDDBClient{
		items: make(map[string]map[string]types.AttributeValue),
	}
}

func itemVersion(item map[string]types.AttributeValue) uint64 {
	v, _ := strconv.ParseUint(item["version"].(*types.AttributeValueMemberN).Value, 10, 64)
	return v
}

func (m *mockDDBClient) PutItem(_ context.Context, params *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	baseURI := params.Item["base_uri"].(*types.AttributeValueMemberS).Value
	version := params.Item["version"].(*types.AttributeValueMemberN).Value
	key := baseURI + ":" + version

	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(version)" {
		if _, exists := m.items[key]; exists {
			return nil, &types.ConditionalCheckFailedException{Message: aws.String("condition failed")}
		}
	}

	m.items[key] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDDBClient) Query(_ context.Context, params *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	baseURI := params.ExpressionAttributeValues[":uri"].(*types.AttributeValueMemberS).Value

	var items []map[string]types.AttributeValue
	for _, item := range m.items {
		if item["base_uri"].(*types.AttributeValueMemberS).Value == baseURI {
			items = append(items, item)
		}
	}

	sort.Slice(items, func(i, j int) bool {
		return itemVersion(items[i]) > itemVersion(items[j])
	})

	if params.Limit != nil && int(*params.Limit) < len(items) {
		items = items[:*params.Limit]
	}

	return &dynamodb.QueryOutput{Items: items}, nil
}

func (m *mockDDBClient) DeleteItem(_ context.Context, params *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	baseURI := params.Key["base_uri"].(*types.AttributeValueMemberS).Value
	version := params.Key["version"].(*types.AttributeValueMemberN).Value
	delete(m.items, baseURI+":"+version)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *mockDDBClient) len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func newTestDDBCommitStore(ddb *mockDDBClient, baseURI string) (*DDBCommitStore, *blobstore.MemoryStore) {
	artifacts := blobstore.NewMemoryStore()
	return NewDDBCommitStore(artifacts, ddb, "semkv-commits", baseURI), artifacts
}

func readManifest(t *testing.T, store blobstore.BlobStore) string {
	t.Helper()
	data, err := blobstore.ReadAll(context.Background(), store, DefaultManifestName)
	require.NoError(t, err)
	return string(data)
}

func TestDDBCommitStore_FirstCommit(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()
	store, _ := newTestDDBCommitStore(ddb, "s3://test-bucket/test/")

	require.NoError(t, store.Put(ctx, DefaultManifestName, []byte(`{"version":1}`)))
	assert.Equal(t, `{"version":1}`, readManifest(t, store))
}

func TestDDBCommitStore_MultipleCommits(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()
	store, _ := newTestDDBCommitStore(ddb, "s3://test-bucket/test/")

	for i := 1; i <= 12; i++ {
		require.NoError(t, store.Put(ctx, DefaultManifestName, []byte(fmt.Sprintf("m-%d", i))))
	}

	assert.Equal(t, "m-12", readManifest(t, store))
	assert.Equal(t, DefaultManifestHistory, ddb.len(), "old versions are trimmed")
}

func TestDDBCommitStore_ConcurrentCommits(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()
	store, _ := newTestDDBCommitStore(ddb, "s3://test-bucket/test/")

	require.NoError(t, store.Put(ctx, DefaultManifestName, []byte("m-1")))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			err := store.Put(ctx, DefaultManifestName, []byte(fmt.Sprintf("m-%d", id+2)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrConcurrentModification):
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}

	wg.Wait()
	assert.Greater(t, successes, 0, "at least one writer should succeed")
}

func TestDDBCommitStore_NotFoundBeforeCommit(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestDDBCommitStore(newMockDDBClient(), "s3://test-bucket/test/")

	_, err := store.Open(ctx, DefaultManifestName)
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDDBCommitStore_ArtifactsPassThrough(t *testing.T) {
	ctx := context.Background()
	store, artifacts := newTestDDBCommitStore(newMockDDBClient(), "s3://test-bucket/test/")

	require.NoError(t, store.Put(ctx, "v00000001/index.skv", []byte("idx")))
	require.NoError(t, store.Put(ctx, DefaultManifestName, []byte("m")))

	names, err := artifacts.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"v00000001/index.skv"}, names, "manifest must not reach the object store")

	names, err = store.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultManifestName, "v00000001/index.skv"}, names)

	names, err = store.List(ctx, "v")
	require.NoError(t, err)
	assert.Equal(t, []string{"v00000001/index.skv"}, names)

	require.NoError(t, store.Delete(ctx, DefaultManifestName))
	_, err = store.Open(ctx, DefaultManifestName)
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestDDBCommitStore_IsolatedNamespaces(t *testing.T) {
	ctx := context.Background()
	ddb := newMockDDBClient()

	store1, _ := newTestDDBCommitStore(ddb, "s3://bucket-a/path/")
	store2, _ := newTestDDBCommitStore(ddb, "s3://bucket-b/path/")

	require.NoError(t, store1.Put(ctx, DefaultManifestName, []byte("A")))
	require.NoError(t, store2.Put(ctx, DefaultManifestName, []byte("B")))

	assert.Equal(t, "A", readManifest(t, store1))
	assert.Equal(t, "B", readManifest(t, store2))
}
