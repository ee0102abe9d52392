// Package fs abstracts the local file system used by the checkpoint store.
//
//   - [LocalFS]: production implementation over package os
//   - [FaultyFS]: wrapper that injects write, sync and rename failures in tests
//
// [WriteFileAtomic] writes a file so that readers observe either the old or
// the new content, never a partial write.
package fs
