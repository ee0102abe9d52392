// Package hash provides the checksums and key hashes used by the store.
//
// Checkpoint artifacts carry a CRC32-Castagnoli trailer. Go's crc32 package uses
// hardware instructions for this polynomial where available.
//
//	checksum := hash.CRC32C(data)
//
// The bloom filter derives its probe positions from a pair of independent
// 64-bit xxhash values per ordinal, see Ordinal.
package hash
