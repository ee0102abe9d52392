package index

import (
	"fmt"
	"sync"
)

// Loader restores an index from its checkpoint bytes. A dim of zero accepts the
// dimension stored in the checkpoint.
type Loader func(data []byte, dim int) (Index, error)

var (
	loaderMu sync.RWMutex
	loaders  = map[[4]byte]Loader{}
)

// RegisterLoader registers a loader for checkpoints starting with magic.
//
// Index implementations should typically call this from an init() function.
func RegisterLoader(magic [4]byte, loader Loader) {
	loaderMu.Lock()
	defer loaderMu.Unlock()
	loaders[magic] = loader
}

// Load restores an index by dispatching on the first four bytes of data.
func Load(data []byte, dim int) (Index, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}

	var magic [4]byte
	copy(magic[:], data)

	loaderMu.RLock()
	loader, ok := loaders[magic]
	loaderMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: unknown index type %q", ErrCorrupt, magic[:])
	}
	return loader(data, dim)
}
