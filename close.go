package semkv

import "context"

// Close releases resources held by the store.
//
// Unless disabled with WithCommitOnClose(false), uncommitted changes are
// committed first. Close is idempotent; every other method returns ErrClosed
// afterwards.
func (kv *KV) Close() error {
	if kv == nil {
		return nil
	}

	kv.writeMu.Lock()
	defer kv.writeMu.Unlock()
	if kv.closed.Load() {
		return nil
	}

	var firstErr error
	if kv.opts.commitOnClose && (kv.dirty || kv.version.Load() == 0) {
		if err := kv.commit(context.Background()); err != nil {
			firstErr = err
		}
	}

	// Wait for in-flight readers before the database goes away.
	kv.stateMu.Lock()
	kv.closed.Store(true)
	kv.stateMu.Unlock()

	if err := kv.meta.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// IsClosed reports whether Close has been called.
func (kv *KV) IsClosed() bool { return kv.closed.Load() }

