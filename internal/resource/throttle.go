package resource

import (
	"context"

	"github.com/hupe1980/semkv/blobstore"
)

// Throttle wraps store so that every transferred byte is charged against the
// controller's IO budget. A nil controller returns store unchanged.
func Throttle(store blobstore.BlobStore, c *Controller) blobstore.BlobStore {
	if c == nil || c.ioLimiter == nil {
		return store
	}
	return &throttledStore{BlobStore: store, rc: c}
}

type throttledStore struct {
	blobstore.BlobStore
	rc *Controller
}

func (s *throttledStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	b, err := s.BlobStore.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &throttledBlob{Blob: b, rc: s.rc}, nil
}

func (s *throttledStore) Put(ctx context.Context, name string, data []byte) error {
	if err := s.rc.AcquireIO(ctx, len(data)); err != nil {
		return err
	}
	return s.BlobStore.Put(ctx, name, data)
}

// throttledBlob hides Mappable so that reads go through ReadAt.
type throttledBlob struct {
	blobstore.Blob
	rc *Controller
}

func (b *throttledBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := b.rc.AcquireIO(ctx, len(p)); err != nil {
		return 0, err
	}
	return b.Blob.ReadAt(ctx, p, off)
}
