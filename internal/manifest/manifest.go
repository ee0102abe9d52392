package manifest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/hupe1980/semkv/blobstore"
	"github.com/hupe1980/semkv/internal/hash"
)

const (
	// FileName is the blob name of the manifest.
	FileName = "MANIFEST"
	// CurrentVersion is the version of the manifest format.
	CurrentVersion = 1
)

// Artifact kinds stored per checkpoint.
const (
	IndexArtifact    = "index.skv"
	MetadataArtifact = "metadata.db"
	BloomArtifact    = "bloom.skv"
)

// Manifest describes a committed checkpoint.
type Manifest struct {
	Version     int       `json:"version"`
	ID          uint64    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	Dimension   int       `json:"dimension"`
	IndexSize   uint64    `json:"index_size"`
	Codec       string    `json:"codec"`
	Compression string    `json:"compression"`
	Bloom       BloomInfo `json:"bloom"`
	Artifacts   Artifacts `json:"artifacts"`
}

// BloomInfo records the parameters the bloom filter was built with.
type BloomInfo struct {
	FalsePositiveProbability float64 `json:"false_positive_probability"`
	ExpectedItemCount        uint64  `json:"expected_item_count"`
}

// Artifacts names the blobs of one checkpoint.
type Artifacts struct {
	Index    ArtifactInfo `json:"index"`
	Metadata ArtifactInfo `json:"metadata"`
	Bloom    ArtifactInfo `json:"bloom"`
}

// ArtifactInfo describes one stored blob.
type ArtifactInfo struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	CRC32C uint32 `json:"crc32c"`
}

// Describe builds the ArtifactInfo for data stored at path.
func Describe(path string, data []byte) ArtifactInfo {
	return ArtifactInfo{Path: path, Size: int64(len(data)), CRC32C: hash.CRC32C(data)}
}

// Verify reports whether data matches the recorded size and checksum.
func (a ArtifactInfo) Verify(data []byte) bool {
	return int64(len(data)) == a.Size && hash.CRC32C(data) == a.CRC32C
}

// VersionDir returns the directory prefix of checkpoint id.
func VersionDir(id uint64) string {
	return fmt.Sprintf("v%08d", id)
}

// ArtifactPath returns the blob name of an artifact kind in checkpoint id.
func ArtifactPath(id uint64, kind string) string {
	return VersionDir(id) + "/" + kind
}

// parseVersionDir extracts the checkpoint id from a blob name.
func parseVersionDir(name string) (uint64, bool) {
	dir, _, ok := strings.Cut(name, "/")
	if !ok || len(dir) < 2 || dir[0] != 'v' {
		return 0, false
	}
	id, err := strconv.ParseUint(dir[1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Marshal encodes the manifest as indented JSON.
func (m *Manifest) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Unmarshal decodes and validates a manifest.
func Unmarshal(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if m.Version < 1 || m.Version > CurrentVersion {
		return nil, fmt.Errorf("%w: %d", ErrIncompatibleVersion, m.Version)
	}
	if m.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension %d", ErrCorrupt, m.Dimension)
	}
	return m, nil
}

// Store manages the manifest blob and checkpoint directories.
type Store struct {
	store blobstore.BlobStore
	mu    sync.Mutex
}

// NewStore creates a new manifest store.
func NewStore(store blobstore.BlobStore) *Store {
	return &Store{store: store}
}

// Load loads the current manifest.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := blobstore.ReadAll(ctx, s.store, FileName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return Unmarshal(data)
}

// Save atomically publishes m as the current checkpoint.
func (s *Store) Save(ctx context.Context, m *Manifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.Version = CurrentVersion
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	data, err := m.Marshal()
	if err != nil {
		return err
	}
	return s.store.Put(ctx, FileName, data)
}

// Versions returns the ids of all checkpoint directories present, ascending.
func (s *Store) Versions(ctx context.Context) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.store.List(ctx, "v")
	if err != nil {
		return nil, err
	}

	seen := make(map[uint64]struct{})
	var ids []uint64
	for _, name := range names {
		id, ok := parseVersionDir(name)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// DeleteVersion removes every artifact of checkpoint id.
func (s *Store) DeleteVersion(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.store.List(ctx, VersionDir(id)+"/")
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := s.store.Delete(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Prune deletes checkpoint directories so that at most retain versions up to
// and including current remain. Directories newer than current are left alone.
// It returns the ids it removed.
func (s *Store) Prune(ctx context.Context, current uint64, retain int) ([]uint64, error) {
	if retain < 1 {
		retain = 1
	}
	ids, err := s.Versions(ctx)
	if err != nil {
		return nil, err
	}

	var older []uint64
	for _, id := range ids {
		if id <= current {
			older = append(older, id)
		}
	}
	if len(older) <= retain {
		return nil, nil
	}

	var removed []uint64
	for _, id := range older[:len(older)-retain] {
		if err := s.DeleteVersion(ctx, id); err != nil {
			return removed, err
		}
		removed = append(removed, id)
	}
	return removed, nil
}
