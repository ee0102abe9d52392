package bloom

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/semkv/internal/hash"
)

// Binary layout (little endian header, bitset words as written by bitset.WriteTo):
//
//	magic    [4]byte "SKVB"
//	version  uint32
//	fpp      float64
//	expected uint64
//	k        uint32
//	numBits  uint64
//	count    uint64
//	bits     bitset
//	crc      uint32 CRC32-C over everything above
const (
	formatVersion uint32 = 1
	headerSize           = 4 + 4 + 8 + 8 + 4 + 8 + 8
)

var magic = [4]byte{'S', 'K', 'V', 'B'}

// MarshalBinary encodes the filter including its construction parameters.
// It must not race with Add.
func (f *Filter) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(headerSize + int(f.numBits/8) + 16)

	var header [headerSize]byte
	copy(header[:4], magic[:])
	binary.LittleEndian.PutUint32(header[4:], formatVersion)
	binary.LittleEndian.PutUint64(header[8:], math.Float64bits(f.fpp))
	binary.LittleEndian.PutUint64(header[16:], f.expected)
	binary.LittleEndian.PutUint32(header[24:], f.k)
	binary.LittleEndian.PutUint64(header[28:], f.numBits)
	binary.LittleEndian.PutUint64(header[36:], f.Count())
	buf.Write(header[:])

	if _, err := f.bits.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("bloom: write bits: %w", err)
	}

	var trailer [4]byte
	binary.LittleEndian.PutUint32(trailer[:], hash.CRC32C(buf.Bytes()))
	buf.Write(trailer[:])
	return buf.Bytes(), nil
}

// WriteTo writes the encoded filter to w.
func (f *Filter) WriteTo(w io.Writer) (int64, error) {
	data, err := f.MarshalBinary()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// Decode restores a filter produced by MarshalBinary.
func Decode(data []byte) (*Filter, error) {
	if len(data) < headerSize+4 {
		return nil, fmt.Errorf("%w: truncated (%d bytes)", ErrCorrupt, len(data))
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return nil, fmt.Errorf("%w: bad magic %q", ErrCorrupt, data[:4])
	}
	if v := binary.LittleEndian.Uint32(data[4:]); v != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}

	body := data[:len(data)-4]
	if got, want := hash.CRC32C(body), binary.LittleEndian.Uint32(data[len(data)-4:]); got != want {
		return nil, fmt.Errorf("%w: checksum mismatch (got %08x, want %08x)", ErrCorrupt, got, want)
	}

	fpp := math.Float64frombits(binary.LittleEndian.Uint64(data[8:]))
	expected := binary.LittleEndian.Uint64(data[16:])
	k := binary.LittleEndian.Uint32(data[24:])
	numBits := binary.LittleEndian.Uint64(data[28:])
	count := binary.LittleEndian.Uint64(data[36:])

	if !(fpp > 0 && fpp < 1) || expected == 0 || k == 0 || numBits == 0 || numBits%64 != 0 {
		return nil, fmt.Errorf("%w: invalid parameters", ErrCorrupt)
	}

	bits := new(bitset.BitSet)
	if _, err := bits.ReadFrom(bytes.NewReader(body[headerSize:])); err != nil {
		return nil, fmt.Errorf("%w: read bits: %v", ErrCorrupt, err)
	}
	if uint64(bits.Len()) != numBits || uint64(len(bits.Words())) != numBits/64 {
		return nil, fmt.Errorf("%w: bit count %d, want %d", ErrCorrupt, bits.Len(), numBits)
	}

	f := newFilter(bits, numBits, k, fpp, expected)
	f.count.Store(count)
	return f, nil
}
