package hash

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// Ordinal returns two independent 64-bit hashes of an ordinal for double hashing.
// The second hash is always odd so that probe sequences cover the whole table.
func Ordinal(ordinal uint64) (uint64, uint64) {
	var buf [9]byte
	binary.LittleEndian.PutUint64(buf[:8], ordinal)
	h1 := xxhash.Sum64(buf[:8])
	buf[8] = 0x9e
	h2 := xxhash.Sum64(buf[:]) | 1
	return h1, h2
}
