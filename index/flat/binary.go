package flat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/hupe1980/semkv/index"
	"github.com/hupe1980/semkv/internal/conv"
	"github.com/hupe1980/semkv/internal/hash"
)

// Binary layout (little endian):
//
//	magic   [4]byte "SKVI"
//	version uint32
//	dim     uint32
//	count   uint64
//	data    count*dim float32
//	crc     uint32 CRC32-C over everything above
const (
	formatVersion uint32 = 1
	headerSize           = 4 + 4 + 4 + 8
	trailerSize          = 4
)

var magic = [4]byte{'S', 'K', 'V', 'I'}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// WriteTo writes a checkpoint of the index to w.
//
// The checkpoint reflects the index at the moment the call starts; concurrent
// appends are not included.
func (ix *Index) WriteTo(w io.Writer) (int64, error) {
	st := ix.state.Load()

	crc := hash.NewCRC32C()
	cw := &countingWriter{w: io.MultiWriter(w, crc)}

	dim, err := conv.IntToUint32(ix.dim)
	if err != nil {
		return 0, err
	}

	var header [headerSize]byte
	copy(header[:4], magic[:])
	binary.LittleEndian.PutUint32(header[4:], formatVersion)
	binary.LittleEndian.PutUint32(header[8:], dim)
	binary.LittleEndian.PutUint64(header[12:], st.size)
	if _, err := cw.Write(header[:]); err != nil {
		return cw.n, err
	}

	buf := make([]byte, 4*ix.dim)
	for ord := uint64(0); ord < st.size; ord++ {
		for i, f := range st.row(ord, ix.dim) {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
		}
		if _, err := cw.Write(buf); err != nil {
			return cw.n, err
		}
	}

	var trailer [trailerSize]byte
	binary.LittleEndian.PutUint32(trailer[:], crc.Sum32())
	n, err := w.Write(trailer[:])
	return cw.n + int64(n), err
}

// MarshalBinary encodes the index into its checkpoint format.
func (ix *Index) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(headerSize + int(ix.Size())*4*ix.dim + trailerSize)
	if _, err := ix.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode restores an index from a checkpoint produced by MarshalBinary.
//
// A dim of zero accepts whatever dimension the checkpoint declares. Any
// structural damage, including a checksum mismatch, is reported as index.ErrCorrupt.
func Decode(data []byte, dim int) (*Index, error) {
	if len(data) < headerSize+trailerSize {
		return nil, fmt.Errorf("%w: truncated (%d bytes)", index.ErrCorrupt, len(data))
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return nil, fmt.Errorf("%w: bad magic %q", index.ErrCorrupt, data[:4])
	}
	if v := binary.LittleEndian.Uint32(data[4:]); v != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", index.ErrCorrupt, v)
	}

	body := data[:len(data)-trailerSize]
	want := binary.LittleEndian.Uint32(data[len(data)-trailerSize:])
	if got := hash.CRC32C(body); got != want {
		return nil, fmt.Errorf("%w: checksum mismatch (got %08x, want %08x)", index.ErrCorrupt, got, want)
	}

	stored, err := conv.Uint32ToInt(binary.LittleEndian.Uint32(data[8:]))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", index.ErrCorrupt, err)
	}
	count := binary.LittleEndian.Uint64(data[12:])
	if stored <= 0 {
		return nil, fmt.Errorf("%w: invalid dimension %d", index.ErrCorrupt, stored)
	}
	if dim != 0 && dim != stored {
		return nil, &index.ErrDimensionMismatch{Expected: dim, Actual: stored}
	}

	payload := body[headerSize:]
	if count > uint64(len(payload))/uint64(4*stored) || uint64(len(payload)) != count*uint64(4*stored) {
		return nil, fmt.Errorf("%w: %d vectors of dimension %d do not fit %d bytes", index.ErrCorrupt, count, stored, len(payload))
	}

	n, err := conv.Uint64ToInt(count * uint64(stored))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", index.ErrCorrupt, err)
	}
	vectors := make([]float32, n)
	for i := range vectors {
		vectors[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[4*i:]))
	}

	ix := &Index{dim: stored}
	ix.state.Store(&indexState{data: vectors, size: count})
	return ix, nil
}
