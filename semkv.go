package semkv

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/semkv/blobstore"
	"github.com/hupe1980/semkv/codec"
	"github.com/hupe1980/semkv/cursor"
	"github.com/hupe1980/semkv/distance"
	"github.com/hupe1980/semkv/index"
	"github.com/hupe1980/semkv/index/flat"
	"github.com/hupe1980/semkv/internal/manifest"
	"github.com/hupe1980/semkv/internal/resource"
	"github.com/hupe1980/semkv/internal/tombstone"
	"github.com/hupe1980/semkv/metadata"
)

// Backend is where checkpoints are stored.
type Backend struct {
	store blobstore.BlobStore
}

// Local stores checkpoints in a directory on the local file system.
func Local(dir string) Backend {
	return Backend{store: blobstore.NewLocalStore(dir)}
}

// Remote stores checkpoints in any BlobStore, for example s3.Store or
// minio.Store.
func Remote(store blobstore.BlobStore) Backend {
	return Backend{store: store}
}

// Record is one key/vector/payload triple for Insert.
type Record struct {
	Key     string
	Vector  []float32
	Payload any
}

// Entry is the live state of a key as returned by Get.
type Entry struct {
	Key     string
	Ordinal uint64
	Vector  []float32
	Payload any

	raw   []byte
	codec codec.Codec
}

// Raw returns the encoded payload.
func (e *Entry) Raw() []byte { return slices.Clone(e.raw) }

// Decode decodes the payload into v with the store's codec.
func (e *Entry) Decode(v any) error {
	return e.codec.Unmarshal(e.raw, v)
}

// KV is an embedded key/vector store.
//
// Every key maps to one vector and one payload. Keys are looked up exactly;
// vectors are searched by squared Euclidean distance. Overwrites and removals
// retire the old vector with a tombstone, since the index is append-only.
//
// KV is safe for concurrent use.
type KV struct {
	writeMu sync.Mutex   // serializes Put, Insert, Remove and Commit
	stateMu sync.RWMutex // held exclusively while a mutation is applied
	closed  atomic.Bool

	dim        int
	index      *flat.Index
	meta       *metadata.Store
	tombstones *tombstone.Filter
	codec      codec.Codec

	store     blobstore.BlobStore
	manifests *manifest.Store
	rc        *resource.Controller
	version   atomic.Uint64 // last committed checkpoint id
	dirty     bool          // uncommitted changes, guarded by writeMu

	bloomFPP      float64
	bloomExpected uint64

	opts    options
	metrics MetricsCollector
	logger  *Logger
}

// Open opens the store kept in backend, or creates an empty one.
//
// A new store needs WithDimension. An existing store is restored from its
// latest committed checkpoint; artifacts that cannot be read are replaced by
// empty structures and reported through the logger only.
func Open(ctx context.Context, backend Backend, optFns ...Option) (*KV, error) {
	if backend.store == nil {
		return nil, errors.New("semkv: backend has no store")
	}
	o := applyOptions(optFns)

	rc := resource.NewController(resource.Config{
		MaxConcurrentIO:    o.maxConcurrentIO,
		IOLimitBytesPerSec: o.ioLimitBytesPerSec,
	})
	store := resource.Throttle(backend.store, rc)
	manifests := manifest.NewStore(store)

	m, err := manifests.Load(ctx)
	switch {
	case err == nil:
	case errors.Is(err, manifest.ErrNotFound):
		m = nil
	case errors.Is(err, manifest.ErrCorrupt) && o.dimension > 0:
		o.logger.LogRecovery(ctx, manifest.FileName, err)
		m = nil
	default:
		return nil, fmt.Errorf("semkv: load manifest: %w", err)
	}

	kv := &KV{
		store:         store,
		manifests:     manifests,
		rc:            rc,
		bloomFPP:      o.falsePositiveProbability,
		bloomExpected: o.expectedItemCount,
		codec:         o.codec,
		opts:          o,
		metrics:       o.metricsCollector,
		logger:        o.logger,
	}

	if err := kv.configure(m); err != nil {
		return nil, err
	}

	if kv.index, err = flat.New(kv.dim); err != nil {
		return nil, translateError(err)
	}
	if kv.meta, err = metadata.Open(ctx); err != nil {
		return nil, fmt.Errorf("semkv: open metadata: %w", err)
	}

	if err := kv.load(ctx, m); err != nil {
		_ = kv.meta.Close()
		return nil, err
	}
	if err := kv.reconcile(ctx); err != nil {
		_ = kv.meta.Close()
		return nil, err
	}
	return kv, nil
}

// configure resolves dimension, codec and bloom parameters from the options
// and the manifest of an existing store.
func (kv *KV) configure(m *manifest.Manifest) error {
	o := kv.opts
	if m == nil {
		if o.dimension <= 0 {
			return &ErrInvalidDimension{Dimension: o.dimension}
		}
		kv.dim = o.dimension
		if kv.codec == nil {
			kv.codec = codec.Default
		}
		return nil
	}

	if o.dimension != 0 && o.dimension != m.Dimension {
		return &ErrDimensionMismatch{Expected: m.Dimension, Actual: o.dimension}
	}
	kv.dim = m.Dimension

	c, ok := codec.ByName(m.Codec)
	switch {
	case ok:
		kv.codec = c
	case kv.codec != nil && kv.codec.Name() == m.Codec:
	default:
		return fmt.Errorf("semkv: unknown codec %q", m.Codec)
	}

	if m.Bloom.ExpectedItemCount > 0 {
		kv.bloomFPP = m.Bloom.FalsePositiveProbability
		kv.bloomExpected = m.Bloom.ExpectedItemCount
	}
	kv.version.Store(m.ID)
	return nil
}

// reconcile repairs drift between index and metadata: rows and tombstones
// past the end of the index are dropped, and index ordinals that have neither
// a row nor a tombstone are tombstoned.
func (kv *KV) reconcile(ctx context.Context) error {
	size := kv.index.Size()
	dropped, err := kv.meta.Truncate(ctx, size)
	if err != nil {
		return fmt.Errorf("semkv: reconcile: %w", err)
	}

	live, err := kv.meta.LiveOrdinals(ctx)
	if err != nil {
		return fmt.Errorf("semkv: reconcile: %w", err)
	}
	orphans := roaring64.New()
	if size > 0 {
		orphans.AddRange(0, size)
	}
	orphans.AndNot(live)
	orphans.AndNot(kv.meta.Tombstones())

	if !orphans.IsEmpty() {
		err := kv.meta.Update(ctx, func(tx *metadata.Tx) error {
			it := orphans.Iterator()
			for it.HasNext() {
				if err := kv.tombstones.Mark(tx, it.Next()); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("semkv: reconcile: %w", err)
		}
	}

	kv.dirty = dropped > 0 || !orphans.IsEmpty()
	kv.logger.LogReconcile(ctx, dropped, orphans.GetCardinality())
	return nil
}

// Dimension returns the vector dimension of the store.
func (kv *KV) Dimension() int { return kv.dim }

// Codec returns the payload codec of the store.
func (kv *KV) Codec() codec.Codec { return kv.codec }

func (kv *KV) checkOpen() error {
	if kv.closed.Load() {
		return ErrClosed
	}
	return nil
}

// readLock acquires stateMu for reading. It fails once the store is closed.
func (kv *KV) readLock() error {
	kv.stateMu.RLock()
	if kv.closed.Load() {
		kv.stateMu.RUnlock()
		return ErrClosed
	}
	return nil
}

func (kv *KV) validateVector(v []float32) error {
	if len(v) != kv.dim {
		return &ErrDimensionMismatch{Expected: kv.dim, Actual: len(v)}
	}
	if i, ok := distance.IsFinite(v); !ok {
		return fmt.Errorf("%w: element %d", ErrInvalidVector, i)
	}
	return nil
}

func (kv *KV) encode(payload any) ([]byte, error) {
	data, err := kv.codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return data, nil
}

// Put stores vector and payload under key. A live value for key is
// tombstoned and replaced; the new vector always gets a fresh ordinal.
func (kv *KV) Put(ctx context.Context, key string, vector []float32, payload any) (err error) {
	start := time.Now()
	var (
		ordinal  uint64
		replaced bool
	)
	defer func() {
		kv.metrics.RecordPut(time.Since(start), err)
		kv.logger.LogPut(ctx, key, ordinal, replaced, err)
	}()

	if err := kv.checkOpen(); err != nil {
		return err
	}
	if key == "" {
		return ErrInvalidKey
	}
	if err := kv.validateVector(vector); err != nil {
		return err
	}
	data, err := kv.encode(payload)
	if err != nil {
		return err
	}

	kv.writeMu.Lock()
	defer kv.writeMu.Unlock()
	if err := kv.checkOpen(); err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	kv.stateMu.Lock()
	defer kv.stateMu.Unlock()

	var appended []uint64
	err = kv.meta.Update(ctx, func(tx *metadata.Tx) error {
		ord, rep, err := kv.apply(tx, key, vector, data, &appended)
		ordinal, replaced = ord, rep
		return err
	})
	if err != nil {
		kv.retire(ctx, appended)
	}
	kv.dirty = kv.dirty || len(appended) > 0
	return translateError(err)
}

// Insert stores every record as if by Put, in order, under a single hold of
// the mutation lock. Later records win over earlier ones with the same key.
// Either all records are applied or none are.
func (kv *KV) Insert(ctx context.Context, records []Record) (err error) {
	start := time.Now()
	defer func() {
		kv.metrics.RecordPut(time.Since(start), err)
	}()

	if err := kv.checkOpen(); err != nil {
		return err
	}
	encoded := make([][]byte, len(records))
	for i, r := range records {
		if r.Key == "" {
			return fmt.Errorf("record %d: %w", i, ErrInvalidKey)
		}
		if err := kv.validateVector(r.Vector); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		if encoded[i], err = kv.encode(r.Payload); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}
	if len(records) == 0 {
		return nil
	}

	kv.writeMu.Lock()
	defer kv.writeMu.Unlock()
	if err := kv.checkOpen(); err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	kv.stateMu.Lock()
	defer kv.stateMu.Unlock()

	var appended []uint64
	err = kv.meta.Update(ctx, func(tx *metadata.Tx) error {
		for i, r := range records {
			if _, _, err := kv.apply(tx, r.Key, r.Vector, encoded[i], &appended); err != nil {
				return fmt.Errorf("record %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		kv.retire(ctx, appended)
	}
	kv.dirty = kv.dirty || len(appended) > 0
	kv.logger.DebugContext(ctx, "insert completed", "records", len(records), "error", err)
	return translateError(err)
}

// apply tombstones the live ordinal of key, writes the new row and appends
// the vector. The append comes last so that a failing statement never leaves
// a vector behind; appended collects ordinals that reached the index.
func (kv *KV) apply(tx *metadata.Tx, key string, vector []float32, data []byte, appended *[]uint64) (uint64, bool, error) {
	replaced := false
	old, err := tx.LookupByKey(key)
	switch {
	case err == nil:
		if err := kv.tombstones.Mark(tx, old.Ordinal); err != nil {
			return 0, false, err
		}
		replaced = true
	case !errors.Is(err, metadata.ErrNotFound):
		return 0, false, err
	}

	ordinal := kv.index.Size()
	if err := tx.Insert(key, ordinal, data); err != nil {
		return 0, replaced, err
	}
	got, err := kv.index.Append(vector)
	if err != nil {
		return 0, replaced, err
	}
	*appended = append(*appended, got)
	if got != ordinal {
		return got, replaced, fmt.Errorf("semkv: ordinal drift: expected %d, got %d", ordinal, got)
	}
	return ordinal, replaced, nil
}

// retire tombstones vectors whose metadata transaction did not commit.
// Failures are logged; reconciliation on the next Open repairs them.
func (kv *KV) retire(ctx context.Context, ordinals []uint64) {
	if len(ordinals) == 0 {
		return
	}
	err := kv.meta.Update(ctx, func(tx *metadata.Tx) error {
		for _, ord := range ordinals {
			if err := kv.tombstones.Mark(tx, ord); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		kv.logger.ErrorContext(ctx, "failed to retire orphaned vectors", "ordinals", ordinals, "error", err)
	}
}

// Get returns the live vector and payload of key, or ErrNotFound.
func (kv *KV) Get(ctx context.Context, key string) (entry *Entry, err error) {
	start := time.Now()
	defer func() {
		kv.metrics.RecordGet(time.Since(start), err)
	}()

	if err := kv.readLock(); err != nil {
		return nil, err
	}
	defer kv.stateMu.RUnlock()

	row, err := kv.meta.LookupByKey(ctx, key)
	if err != nil {
		return nil, translateError(err)
	}
	if kv.tombstones.IsDead(row.Ordinal) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	vec, ok := kv.index.Vector(row.Ordinal)
	if !ok {
		return nil, fmt.Errorf("%w: %q has no vector", ErrNotFound, key)
	}

	var payload any
	if err := kv.codec.Unmarshal(row.Payload, &payload); err != nil {
		return nil, fmt.Errorf("semkv: decode payload of %q: %w", key, err)
	}
	return &Entry{
		Key:     row.Key,
		Ordinal: row.Ordinal,
		Vector:  vec,
		Payload: payload,
		raw:     row.Payload,
		codec:   kv.codec,
	}, nil
}

// Remove tombstones the live value of key. It returns ErrNotFound if key has
// no live value.
func (kv *KV) Remove(ctx context.Context, key string) (err error) {
	start := time.Now()
	var ordinal uint64
	defer func() {
		kv.metrics.RecordRemove(time.Since(start), err)
		kv.logger.LogRemove(ctx, key, ordinal, err)
	}()

	if err := kv.checkOpen(); err != nil {
		return err
	}

	kv.writeMu.Lock()
	defer kv.writeMu.Unlock()
	if err := kv.checkOpen(); err != nil {
		return err
	}

	ctx = context.WithoutCancel(ctx)
	kv.stateMu.Lock()
	defer kv.stateMu.Unlock()

	err = kv.meta.Update(ctx, func(tx *metadata.Tx) error {
		row, err := tx.LookupByKey(key)
		if err != nil {
			return err
		}
		ordinal = row.Ordinal
		return kv.tombstones.Mark(tx, row.Ordinal)
	})
	if err == nil {
		kv.dirty = true
	}
	return translateError(err)
}

// Find reports whether key has a live value. It never fails; lookup errors
// are logged and reported as false.
func (kv *KV) Find(ctx context.Context, key string) bool {
	if kv.readLock() != nil {
		return false
	}
	defer kv.stateMu.RUnlock()

	ok, err := kv.meta.Exists(ctx, key)
	if err != nil {
		kv.logger.WarnContext(ctx, "find failed", "key", key, "error", err)
		return false
	}
	return ok
}

// Len returns the number of live keys.
func (kv *KV) Len(ctx context.Context) (int, error) {
	if err := kv.readLock(); err != nil {
		return 0, err
	}
	defer kv.stateMu.RUnlock()

	n, err := kv.meta.Len(ctx)
	return n, translateError(err)
}

// Keys returns the live keys in ascending order.
func (kv *KV) Keys(ctx context.Context) ([]string, error) {
	if err := kv.readLock(); err != nil {
		return nil, err
	}
	defer kv.stateMu.RUnlock()

	keys, err := kv.meta.Keys(ctx)
	return keys, translateError(err)
}

// Search returns a list cursor over the k live values nearest to vector,
// ordered by ascending squared distance. Fewer than k matches are returned
// when fewer live values exist.
func (kv *KV) Search(ctx context.Context, vector []float32, k int) (*cursor.Cursor, error) {
	matches, err := kv.search(ctx, vector, k)
	if err != nil {
		return nil, err
	}
	return cursor.New(matches), nil
}

func (kv *KV) search(ctx context.Context, q []float32, k int) (matches []cursor.Match, err error) {
	start := time.Now()
	fetch := 0
	defer func() {
		kv.metrics.RecordSearch(k, time.Since(start), err)
		kv.logger.LogSearch(ctx, k, fetch, len(matches), err)
	}()

	if err := kv.checkOpen(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	if err := kv.validateVector(q); err != nil {
		return nil, err
	}

	if err := kv.readLock(); err != nil {
		return nil, err
	}
	defer kv.stateMu.RUnlock()

	// At most t dead vectors can rank ahead of the k nearest live ones.
	t := kv.tombstones.Count()
	fetch = k + int(t)
	if size := kv.index.Size(); uint64(fetch) > size {
		fetch = int(size)
	}

	neighbors, err := kv.index.KNN(q, fetch)
	if err != nil {
		return nil, translateError(err)
	}

	survivors := make([]index.Neighbor, 0, min(k, len(neighbors)))
	for _, n := range neighbors {
		if !n.Valid() || kv.tombstones.IsDead(n.Ordinal) {
			continue
		}
		survivors = append(survivors, n)
		if len(survivors) == k {
			break
		}
	}
	return kv.resolve(ctx, survivors)
}

// SearchRange returns a list cursor over every live value within Euclidean
// distance radius of center, ordered by ascending squared distance. The
// boundary is inclusive.
func (kv *KV) SearchRange(ctx context.Context, center []float32, radius float32) (*cursor.Cursor, error) {
	matches, err := kv.searchRange(ctx, center, radius)
	if err != nil {
		return nil, err
	}
	return cursor.New(matches), nil
}

func (kv *KV) searchRange(ctx context.Context, center []float32, radius float32) ([]cursor.Match, error) {
	if !(radius >= 0) {
		err := fmt.Errorf("%w: %v", ErrInvalidRadius, radius)
		kv.metrics.RecordSearch(0, 0, err)
		kv.logger.LogRangeSearch(ctx, radius, 0, err)
		return nil, err
	}
	return kv.searchRangeSquared(ctx, center, radius*radius)
}

// searchRangeSquared returns live matches whose squared Euclidean distance to
// center is at most radiusSquared.
func (kv *KV) searchRangeSquared(ctx context.Context, center []float32, radiusSquared float32) (matches []cursor.Match, err error) {
	start := time.Now()
	defer func() {
		kv.metrics.RecordSearch(0, time.Since(start), err)
		kv.logger.LogRangeSearch(ctx, radiusSquared, len(matches), err)
	}()

	if err := kv.checkOpen(); err != nil {
		return nil, err
	}
	if !(radiusSquared >= 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRadius, radiusSquared)
	}
	if err := kv.validateVector(center); err != nil {
		return nil, err
	}

	if err := kv.readLock(); err != nil {
		return nil, err
	}
	defer kv.stateMu.RUnlock()

	neighbors, err := kv.index.Range(center, radiusSquared)
	if err != nil {
		return nil, translateError(err)
	}

	live := neighbors[:0]
	for _, n := range neighbors {
		if !kv.tombstones.IsDead(n.Ordinal) {
			live = append(live, n)
		}
	}
	slices.SortFunc(live, compareNeighbors)
	return kv.resolve(ctx, live)
}

func compareNeighbors(a, b index.Neighbor) int {
	switch {
	case a.Distance < b.Distance:
		return -1
	case a.Distance > b.Distance:
		return 1
	case a.Ordinal < b.Ordinal:
		return -1
	case a.Ordinal > b.Ordinal:
		return 1
	default:
		return 0
	}
}

// Resolve returns a mapping cursor from ordinal to match for every given
// ordinal that is live. Dead and unknown ordinals are omitted. Distances are
// zero.
func (kv *KV) Resolve(ctx context.Context, ordinals ...uint64) (*cursor.Cursor, error) {
	if err := kv.readLock(); err != nil {
		return nil, err
	}
	defer kv.stateMu.RUnlock()

	size := kv.index.Size()
	candidates := make([]index.Neighbor, 0, len(ordinals))
	for _, ord := range ordinals {
		if ord < size && !kv.tombstones.IsDead(ord) {
			candidates = append(candidates, index.Neighbor{Ordinal: ord})
		}
	}
	matches, err := kv.resolve(ctx, candidates)
	if err != nil {
		return nil, err
	}

	out := make(map[uint64]cursor.Match, len(matches))
	for _, m := range matches {
		out[m.Ordinal] = m
	}
	return cursor.New(out), nil
}

// resolve turns neighbors into matches, preserving their order. Neighbors
// without a live row are skipped. Callers hold stateMu.
func (kv *KV) resolve(ctx context.Context, neighbors []index.Neighbor) ([]cursor.Match, error) {
	matches := make([]cursor.Match, 0, len(neighbors))
	if len(neighbors) == 0 {
		return matches, nil
	}

	ordinals := make([]uint64, len(neighbors))
	for i, n := range neighbors {
		ordinals[i] = n.Ordinal
	}
	rows, err := kv.meta.LookupByOrdinals(ctx, ordinals)
	if err != nil {
		return nil, translateError(err)
	}

	for _, n := range neighbors {
		row, ok := rows[n.Ordinal]
		if !ok {
			continue
		}
		vec, ok := kv.index.Vector(n.Ordinal)
		if !ok {
			continue
		}
		var payload any
		if err := kv.codec.Unmarshal(row.Payload, &payload); err != nil {
			return nil, fmt.Errorf("semkv: decode payload of %q: %w", row.Key, err)
		}
		matches = append(matches, cursor.Match{
			Key:      row.Key,
			Ordinal:  n.Ordinal,
			Distance: n.Distance,
			Vector:   vec,
			Payload:  payload,
		})
	}
	return matches, nil
}

// BloomStats describes the tombstone bloom filter.
type BloomStats struct {
	FalsePositiveProbability   float64
	ExpectedItemCount          uint64
	HashCount                  uint32
	Bits                       uint64
	Items                      uint64
	Checks                     uint64
	ProvisionalPositives       uint64
	FalsePositives             uint64
	ObservedFalsePositiveRate  float64
	EstimatedFalsePositiveRate float64
}

// Stats is a snapshot of store state.
type Stats struct {
	Dimension   int
	IndexSize   uint64 // vectors ever appended, live or dead
	Live        int
	Tombstones  uint64
	Version     uint64 // last committed checkpoint, 0 if none
	Codec       string
	Compression string
	Bloom       BloomStats
}

// Stats returns a snapshot of the store state.
func (kv *KV) Stats(ctx context.Context) (Stats, error) {
	if err := kv.readLock(); err != nil {
		return Stats{}, err
	}
	defer kv.stateMu.RUnlock()

	live, err := kv.meta.Len(ctx)
	if err != nil {
		return Stats{}, translateError(err)
	}
	ts := kv.tombstones.Stats()
	bf := kv.tombstones.Bloom()

	return Stats{
		Dimension:   kv.dim,
		IndexSize:   kv.index.Size(),
		Live:        live,
		Tombstones:  kv.tombstones.Count(),
		Version:     kv.version.Load(),
		Codec:       kv.codec.Name(),
		Compression: kv.opts.compression.String(),
		Bloom: BloomStats{
			FalsePositiveProbability:   bf.FalsePositiveProbability(),
			ExpectedItemCount:          bf.ExpectedItemCount(),
			HashCount:                  ts.HashCount,
			Bits:                       ts.BloomBits,
			Items:                      ts.BloomItems,
			Checks:                     ts.Checks,
			ProvisionalPositives:       ts.ProvisionalPositives,
			FalsePositives:             ts.FalsePositives,
			ObservedFalsePositiveRate:  ts.ObservedFalsePositiveRate,
			EstimatedFalsePositiveRate: ts.EstimatedFalsePositiveRate,
		},
	}, nil
}
