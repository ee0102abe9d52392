package semkv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/semkv/blobstore"
	"github.com/hupe1980/semkv/index"
	"github.com/hupe1980/semkv/index/flat"
	"github.com/hupe1980/semkv/internal/bloom"
	"github.com/hupe1980/semkv/internal/compress"
	"github.com/hupe1980/semkv/internal/manifest"
	"github.com/hupe1980/semkv/internal/tombstone"
)

// Commit persists the index, the metadata and the tombstone bloom filter as
// one checkpoint. The manifest is written last, so a failed Commit leaves the
// previous checkpoint in place.
//
// Commit excludes Put and Remove but not readers. Once started it runs to
// completion regardless of ctx.
func (kv *KV) Commit(ctx context.Context) error {
	if err := kv.checkOpen(); err != nil {
		return err
	}

	kv.writeMu.Lock()
	defer kv.writeMu.Unlock()
	if err := kv.checkOpen(); err != nil {
		return err
	}
	return kv.commit(context.WithoutCancel(ctx))
}

// commit writes checkpoint version+1. Callers hold writeMu.
func (kv *KV) commit(ctx context.Context) (err error) {
	start := time.Now()
	id := kv.version.Load() + 1
	var written int64
	defer func() {
		kv.metrics.RecordCommit(written, time.Since(start), err)
		kv.logger.LogCommit(ctx, id, written, err)
	}()

	// Holding writeMu freezes all three structures; readers only add to the
	// bloom filter's counters.
	bf := kv.tombstones.Bloom()
	artifacts := []struct {
		kind    string
		marshal func() ([]byte, error)
		info    *manifest.ArtifactInfo
	}{
		{kind: manifest.IndexArtifact, marshal: kv.index.MarshalBinary},
		{kind: manifest.MetadataArtifact, marshal: func() ([]byte, error) { return kv.meta.Snapshot(ctx) }},
		{kind: manifest.BloomArtifact, marshal: bf.MarshalBinary},
	}

	m := &manifest.Manifest{
		ID:          id,
		Dimension:   kv.dim,
		IndexSize:   kv.index.Size(),
		Codec:       kv.codec.Name(),
		Compression: kv.opts.compression.String(),
		Bloom: manifest.BloomInfo{
			FalsePositiveProbability: bf.FalsePositiveProbability(),
			ExpectedItemCount:        bf.ExpectedItemCount(),
		},
	}
	artifacts[0].info = &m.Artifacts.Index
	artifacts[1].info = &m.Artifacts.Metadata
	artifacts[2].info = &m.Artifacts.Bloom

	uploads := make([]func(context.Context) error, 0, len(artifacts))
	for _, a := range artifacts {
		data, err := a.marshal()
		if err != nil {
			return fmt.Errorf("semkv: encode %s: %w", a.kind, err)
		}
		env, err := compress.Encode(data, kv.opts.compression.internal())
		if err != nil {
			return fmt.Errorf("semkv: compress %s: %w", a.kind, err)
		}

		path := manifest.ArtifactPath(id, a.kind)
		*a.info = manifest.Describe(path, env)
		written += int64(len(env))
		uploads = append(uploads, func(ctx context.Context) error {
			if err := kv.store.Put(ctx, path, env); err != nil {
				return fmt.Errorf("semkv: write %s: %w", path, err)
			}
			return nil
		})
	}

	if err := kv.rc.Run(ctx, uploads...); err != nil {
		return err
	}
	if err := kv.manifests.Save(ctx, m); err != nil {
		return fmt.Errorf("semkv: write manifest: %w", err)
	}
	kv.version.Store(id)
	kv.dirty = false

	removed, err := kv.manifests.Prune(ctx, id, kv.opts.retainedCheckpoints)
	if err != nil {
		kv.logger.WarnContext(ctx, "failed to prune checkpoints", "version", id, "error", err)
	} else if len(removed) > 0 {
		kv.logger.DebugContext(ctx, "pruned checkpoints", "versions", removed)
	}
	return nil
}

type loadedArtifact struct {
	kind string
	info manifest.ArtifactInfo
	data []byte
	err  error
}

// load restores the structures of checkpoint m. Unreadable artifacts are
// logged and leave the corresponding structure empty; only a canceled ctx
// fails the load. The tombstone filter is always initialized.
func (kv *KV) load(ctx context.Context, m *manifest.Manifest) error {
	bf, err := bloom.New(kv.bloomExpected, kv.bloomFPP)
	if err != nil {
		return fmt.Errorf("semkv: %w", err)
	}
	kv.tombstones = tombstone.New(kv.meta, bf)
	if m == nil {
		return nil
	}

	arts := []*loadedArtifact{
		{kind: manifest.IndexArtifact, info: m.Artifacts.Index},
		{kind: manifest.MetadataArtifact, info: m.Artifacts.Metadata},
		{kind: manifest.BloomArtifact, info: m.Artifacts.Bloom},
	}
	reads := make([]func(context.Context) error, len(arts))
	for i, a := range arts {
		reads[i] = func(ctx context.Context) error {
			a.data, a.err = kv.readArtifact(ctx, a.info)
			return ctx.Err()
		}
	}
	if err := kv.rc.Run(ctx, reads...); err != nil {
		return fmt.Errorf("semkv: load checkpoint: %w", err)
	}
	idx, meta, blm := arts[0], arts[1], arts[2]

	if idx.err == nil {
		loaded, err := index.Load(idx.data, kv.dim)
		if err != nil {
			idx.err = translateError(err)
		} else if ix, ok := loaded.(*flat.Index); ok {
			kv.index = ix
		} else {
			idx.err = fmt.Errorf("%w: unsupported index type %T", ErrCorruptCheckpoint, loaded)
		}
	}
	if idx.err != nil {
		kv.logger.LogRecovery(ctx, idx.kind, idx.err)
	}

	if meta.err == nil {
		if err := kv.meta.Restore(ctx, meta.data); err != nil {
			meta.err = translateError(err)
		}
	}
	if meta.err != nil {
		kv.logger.LogRecovery(ctx, meta.kind, meta.err)
	}

	if blm.err == nil {
		loaded, err := bloom.Decode(blm.data)
		switch {
		case err != nil:
			blm.err = translateError(err)
		case !loaded.Matches(kv.bloomExpected, kv.bloomFPP):
			blm.err = fmt.Errorf("%w: bloom parameters differ from manifest", ErrCorruptCheckpoint)
		case !kv.covers(loaded):
			blm.err = fmt.Errorf("%w: bloom filter misses tombstones", ErrCorruptCheckpoint)
		default:
			kv.tombstones = tombstone.New(kv.meta, loaded)
		}
	}
	if blm.err != nil {
		kv.logger.LogRecovery(ctx, blm.kind, blm.err)
		// An empty filter would hide tombstones, so rebuild it.
		if err := kv.tombstones.Rebuild(kv.meta.Tombstones(), kv.bloomExpected, kv.bloomFPP); err != nil {
			return fmt.Errorf("semkv: %w", err)
		}
	}
	return nil
}

// covers reports whether bf may contain every authoritative tombstone.
func (kv *KV) covers(bf *bloom.Filter) bool {
	it := kv.meta.Tombstones().Iterator()
	for it.HasNext() {
		if !bf.MayContain(it.Next()) {
			return false
		}
	}
	return true
}

// readArtifact fetches, verifies and decompresses one artifact.
func (kv *KV) readArtifact(ctx context.Context, info manifest.ArtifactInfo) ([]byte, error) {
	if info.Path == "" {
		return nil, fmt.Errorf("%w: artifact missing from manifest", ErrCorruptCheckpoint)
	}
	raw, err := blobstore.ReadAll(ctx, kv.store, info.Path)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptCheckpoint, info.Path, err)
	}
	if !info.Verify(raw) {
		return nil, fmt.Errorf("%w: %s: checksum mismatch", ErrCorruptCheckpoint, info.Path)
	}
	data, err := compress.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrCorruptCheckpoint, info.Path, err)
	}
	return data, nil
}
