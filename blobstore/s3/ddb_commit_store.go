package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/semkv/blobstore"
)

// DefaultManifestName is the blob name routed through DynamoDB.
const DefaultManifestName = "MANIFEST"

// DefaultManifestHistory is the number of manifest versions kept in DynamoDB.
const DefaultManifestHistory = 10

// DDBCommitStore implements blobstore.BlobStore backed by S3 with DynamoDB
// for atomic manifest commits.
//
// Checkpoint artifacts go to S3 unchanged. The manifest is stored as a
// versioned DynamoDB item and written with a conditional put, which gives
// the compare-and-swap S3 lacks: two processes committing against the same
// base URI cannot silently overwrite each other.
//
// Table schema:
//   - Partition key: base_uri (string) - the S3 prefix/path
//   - Sort key: version (number) - monotonically increasing version
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name semkv-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type DDBCommitStore struct {
	s3Store      blobstore.BlobStore
	ddbClient    DDBClient
	tableName    string
	baseURI      string
	manifestName string
	history      uint64
}

// DDBClient is the interface for DynamoDB operations.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

var _ DDBClient = (*dynamodb.Client)(nil)

// ErrConcurrentModification is returned when a concurrent write is detected.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// NewDDBCommitStore creates a new S3+DynamoDB commit store.
// The baseURI should be "s3://bucket/prefix" format used as partition key.
func NewDDBCommitStore(s3Store blobstore.BlobStore, ddbClient DDBClient, tableName, baseURI string) *DDBCommitStore {
	return &DDBCommitStore{
		s3Store:      s3Store,
		ddbClient:    ddbClient,
		tableName:    tableName,
		baseURI:      baseURI,
		manifestName: DefaultManifestName,
		history:      DefaultManifestHistory,
	}
}

// Open opens a blob for reading. The manifest is read from DynamoDB.
func (s *DDBCommitStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if name != s.manifestName {
		return s.s3Store.Open(ctx, name)
	}

	version, content, err := s.latest(ctx)
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, blobstore.ErrNotFound
	}
	return &manifestBlob{content: content}, nil
}

// Put writes a blob. The manifest uses a DynamoDB conditional write.
func (s *DDBCommitStore) Put(ctx context.Context, name string, data []byte) error {
	if name == s.manifestName {
		return s.commit(ctx, data)
	}
	return s.s3Store.Put(ctx, name, data)
}

// Delete deletes a blob. Deleting the manifest removes its whole history.
func (s *DDBCommitStore) Delete(ctx context.Context, name string) error {
	if name != s.manifestName {
		return s.s3Store.Delete(ctx, name)
	}

	versions, err := s.versions(ctx)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if err := s.deleteVersion(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// List lists blobs with prefix. The manifest is listed while committed.
func (s *DDBCommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	names, err := s.s3Store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	out := names[:0]
	for _, n := range names {
		if n != s.manifestName {
			out = append(out, n)
		}
	}

	if strings.HasPrefix(s.manifestName, prefix) {
		version, _, err := s.latest(ctx)
		if err != nil {
			return nil, err
		}
		if version > 0 {
			out = append(out, s.manifestName)
			sort.Strings(out)
		}
	}
	return out, nil
}

func (s *DDBCommitStore) query(ctx context.Context, limit int32) ([]map[string]types.AttributeValue, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.baseURI},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		input.Limit = aws.Int32(limit)
	}

	resp, err := s.ddbClient.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query DynamoDB: %w", err)
	}
	return resp.Items, nil
}

func parseVersion(item map[string]types.AttributeValue) (uint64, error) {
	attr, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.New("invalid version attribute in DynamoDB")
	}
	v, err := strconv.ParseUint(attr.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse version: %w", err)
	}
	return v, nil
}

// latest returns the newest committed version and its manifest bytes.
func (s *DDBCommitStore) latest(ctx context.Context) (uint64, []byte, error) {
	items, err := s.query(ctx, 1)
	if err != nil {
		return 0, nil, err
	}
	if len(items) == 0 {
		return 0, nil, nil
	}

	version, err := parseVersion(items[0])
	if err != nil {
		return 0, nil, err
	}
	body, ok := items[0]["manifest"].(*types.AttributeValueMemberB)
	if !ok {
		return 0, nil, errors.New("invalid manifest attribute in DynamoDB")
	}
	return version, body.Value, nil
}

func (s *DDBCommitStore) versions(ctx context.Context) ([]uint64, error) {
	items, err := s.query(ctx, 0)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, 0, len(items))
	for _, item := range items {
		v, err := parseVersion(item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// commit atomically writes a new manifest version using a conditional put.
func (s *DDBCommitStore) commit(ctx context.Context, manifest []byte) error {
	current, _, err := s.latest(ctx)
	if err != nil {
		return err
	}

	next := current + 1

	_, err = s.ddbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri": &types.AttributeValueMemberS{Value: s.baseURI},
			"version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(next, 10)},
			"manifest": &types.AttributeValueMemberB{Value: manifest},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("failed to commit version to DynamoDB: %w", err)
	}

	// History trimming is best effort; the new version is already durable.
	if s.history > 0 && next > s.history {
		_ = s.deleteVersion(ctx, next-s.history)
	}
	return nil
}

func (s *DDBCommitStore) deleteVersion(ctx context.Context, version uint64) error {
	_, err := s.ddbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"base_uri": &types.AttributeValueMemberS{Value: s.baseURI},
			"version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(version, 10)},
		},
	})
	return err
}

// manifestBlob serves a manifest read from DynamoDB.
type manifestBlob struct {
	content []byte
}

func (b *manifestBlob) Close() error {
	return nil
}

func (b *manifestBlob) Size() int64 {
	return int64(len(b.content))
}

func (b *manifestBlob) Bytes() ([]byte, error) {
	return b.content, nil
}

func (b *manifestBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off < 0 || off >= int64(len(b.content)) {
		return 0, io.EOF
	}
	n := copy(p, b.content[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}
