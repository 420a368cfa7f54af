package pagestore

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the codec applied to large payloads.
type Compression uint8

const (
	// CompressionNone stores payloads verbatim.
	CompressionNone Compression = iota
	// CompressionLZ4 uses LZ4 block compression.
	CompressionLZ4
	// CompressionS2 uses S2 (Snappy-compatible) block compression.
	CompressionS2
)

// DefaultCompressionThreshold is the minimum payload size considered for
// compression. Small graph property values rarely compress well enough
// to pay for the extra header.
const DefaultCompressionThreshold = 512

// lz4.Compressor keeps an internal hash table, so instances are pooled
// rather than allocated per append.
var lz4Pool = sync.Pool{
	New: func() any {
		return &lz4.Compressor{}
	},
}

// compressBlock compresses src with the given codec. A nil result means
// the payload is incompressible and should be stored raw.
func compressBlock(codec Compression, src []byte) ([]byte, error) {
	switch codec {
	case CompressionLZ4:
		c := lz4Pool.Get().(*lz4.Compressor)
		defer lz4Pool.Put(c)

		dst := make([]byte, lz4.CompressBlockBound(len(src)))
		n, err := c.CompressBlock(src, dst)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return nil, nil // incompressible
		}
		return dst[:n], nil

	case CompressionS2:
		return s2.Encode(nil, src), nil

	default:
		return nil, fmt.Errorf("pagestore: unknown compression codec %d", codec)
	}
}

func decompressBlock(codec Compression, src []byte, rawLen int) ([]byte, error) {
	switch codec {
	case CompressionLZ4:
		dst := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
		}
		if n != rawLen {
			return nil, ErrCorruptRecord
		}
		return dst, nil

	case CompressionS2:
		out, err := s2.Decode(make([]byte, rawLen), src)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
		}
		if len(out) != rawLen {
			return nil, ErrCorruptRecord
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: unknown codec %d", ErrCorruptRecord, codec)
	}
}
