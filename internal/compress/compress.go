// Package compress wraps checkpoint artifacts in a self-describing
// compression envelope.
//
// Envelope layout (little endian):
//
//	type             uint8
//	uncompressedSize uint64
//	storedSize       uint64
//	data             storedSize bytes
//
// Data that does not shrink by at least 10% is stored uncompressed, with
// type None, regardless of the requested algorithm.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type defines the compression algorithm used.
type Type uint8

const (
	// None stores data as is.
	None Type = 0
	// LZ4 indicates LZ4 block compression (fast).
	LZ4 Type = 1
	// ZSTD indicates ZSTD compression (better ratio).
	ZSTD Type = 2
)

const headerSize = 1 + 8 + 8

// ErrCorrupt is returned for envelopes that cannot be decoded.
var ErrCorrupt = errors.New("compress: corrupt envelope")

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
}

// ParseType maps "none", "lz4" and "zstd" to a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("compress: unknown type %q", s)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Encode wraps data in an envelope compressed with t.
func Encode(data []byte, t Type) ([]byte, error) {
	var compressed []byte
	switch t {
	case None:
	case LZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("compress: lz4: %w", err)
		}
		compressed = buf[:n]
	case ZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("compress: unknown type %d", uint8(t))
	}

	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		t, compressed = None, data
	}

	out := make([]byte, headerSize+len(compressed))
	out[0] = byte(t)
	binary.LittleEndian.PutUint64(out[1:], uint64(len(data)))
	binary.LittleEndian.PutUint64(out[9:], uint64(len(compressed)))
	copy(out[headerSize:], compressed)
	return out, nil
}

// Decode unwraps an envelope produced by Encode.
func Decode(envelope []byte) ([]byte, error) {
	if len(envelope) < headerSize {
		return nil, fmt.Errorf("%w: truncated header", ErrCorrupt)
	}
	t := Type(envelope[0])
	size := binary.LittleEndian.Uint64(envelope[1:])
	stored := binary.LittleEndian.Uint64(envelope[9:])
	if stored != uint64(len(envelope)-headerSize) {
		return nil, fmt.Errorf("%w: stored size %d, have %d bytes", ErrCorrupt, stored, len(envelope)-headerSize)
	}
	body := envelope[headerSize:]

	switch t {
	case None:
		if size != stored {
			return nil, fmt.Errorf("%w: size mismatch", ErrCorrupt)
		}
		return body, nil

	case LZ4:
		// LZ4 cannot expand more than 255x.
		if size > stored*255+16 {
			return nil, fmt.Errorf("%w: implausible size %d", ErrCorrupt, size)
		}
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrCorrupt, err)
		}
		if uint64(n) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil

	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)
		out, err := dec.DecodeAll(body, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
		}
		if uint64(len(out)) != size {
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %d", ErrCorrupt, uint8(t))
	}
}
