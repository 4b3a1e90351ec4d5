// Package compress provides self-describing block compression for payloads
// headed into the heap, typically those that spill to the file tier.
//
// Block format: [type uint8][uncompressed size uint32 LE][payload].
// Incompressible blocks are stored raw under TypeNone regardless of the
// requested type, so Decode never needs to know what the encoder chose.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type identifies the compression algorithm of a block.
type Type uint8

const (
	// TypeNone stores the payload raw.
	TypeNone Type = 0
	// TypeLZ4 uses LZ4 block compression (fast, light ratio).
	TypeLZ4 Type = 1
	// TypeZSTD uses ZSTD block compression (slower, better ratio).
	TypeZSTD Type = 2
)

const headerSize = 5

var (
	// ErrCorruptBlock is returned when a block header or payload is malformed.
	ErrCorruptBlock = errors.New("compress: corrupt block")
	// ErrUnknownType is returned for an unrecognized block type.
	ErrUnknownType = errors.New("compress: unknown block type")
)

// zstd encoder/decoder pools; both are stateful and expensive to build.
var (
	zstdEncoderPool = sync.Pool{New: func() any {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		return enc
	}}
	zstdDecoderPool = sync.Pool{New: func() any {
		dec, _ := zstd.NewReader(nil)
		return dec
	}}
)

// Encode wraps data into a self-describing block of the requested type.
// If compression does not shrink the payload, the block is stored raw.
func Encode(t Type, data []byte) ([]byte, error) {
	switch t {
	case TypeNone:
		return stored(data), nil

	case TypeLZ4:
		bound := lz4.CompressBlockBound(len(data))
		buf := make([]byte, headerSize+bound)
		n, err := lz4.CompressBlock(data, buf[headerSize:], nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		if n == 0 || n >= len(data) {
			// Incompressible.
			return stored(data), nil
		}
		writeHeader(buf, TypeLZ4, len(data))
		return buf[:headerSize+n], nil

	case TypeZSTD:
		enc := zstdEncoderPool.Get().(*zstd.Encoder)
		defer zstdEncoderPool.Put(enc)

		buf := make([]byte, headerSize, headerSize+len(data))
		buf = enc.EncodeAll(data, buf)
		if len(buf)-headerSize >= len(data) {
			return stored(data), nil
		}
		writeHeader(buf, TypeZSTD, len(data))
		return buf, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
}

// Decode unwraps a block produced by Encode.
func Decode(block []byte) ([]byte, error) {
	if len(block) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorruptBlock, len(block))
	}

	t := Type(block[0])
	size := binary.LittleEndian.Uint32(block[1:headerSize])
	payload := block[headerSize:]

	switch t {
	case TypeNone:
		if uint32(len(payload)) != size {
			return nil, fmt.Errorf("%w: stored size mismatch", ErrCorruptBlock)
		}
		out := make([]byte, len(payload))
		copy(out, payload)
		return out, nil

	case TypeLZ4:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(payload, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if uint32(n) != size {
			return nil, fmt.Errorf("%w: lz4 size mismatch", ErrCorruptBlock)
		}
		return out, nil

	case TypeZSTD:
		dec := zstdDecoderPool.Get().(*zstd.Decoder)
		defer zstdDecoderPool.Put(dec)

		out, err := dec.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if uint32(len(out)) != size {
			return nil, fmt.Errorf("%w: zstd size mismatch", ErrCorruptBlock)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
}

func stored(data []byte) []byte {
	buf := make([]byte, headerSize+len(data))
	writeHeader(buf, TypeNone, len(data))
	copy(buf[headerSize:], data)
	return buf
}

func writeHeader(buf []byte, t Type, uncompressed int) {
	buf[0] = byte(t)
	binary.LittleEndian.PutUint32(buf[1:headerSize], uint32(uncompressed))
}
