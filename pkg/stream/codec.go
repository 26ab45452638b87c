package stream

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies the block compression applied to the chunks of a stream.
// All streams of a stripe share one codec.
type Codec int

const (
	CodecNone Codec = iota
	CodecSnappy
	CodecZstd
	CodecLz4
)

// String returns the name of the codec.
func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecSnappy:
		return "snappy"
	case CodecZstd:
		return "zstd"
	case CodecLz4:
		return "lz4"
	default:
		return fmt.Sprintf("Codec(%d)", int(c))
	}
}

// getZstdDecoder lazily initializes a shared zstd decoder. Only DecodeAll is
// safe for concurrent use, which is the only method we call.
var getZstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
	// A concurrency of 0 uses GOMAXPROCS workers.
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
})

// getZstdEncoder lazily initializes a shared zstd encoder for EncodeAll.
var getZstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) {
	// Unlike WithDecoderConcurrency, the encoder option rejects 0, so pass
	// GOMAXPROCS explicitly to get the same "one worker per CPU" behavior.
	return zstd.NewWriter(nil, zstd.WithEncoderConcurrency(runtime.GOMAXPROCS(0)))
})

// decompress decompresses src into dst (growing it as needed) and returns the
// decompressed bytes.
func (c Codec) decompress(dst, src []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return src, nil

	case CodecSnappy:
		return snappy.Decode(dst, src)

	case CodecZstd:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, err
		}
		return dec.DecodeAll(src, dst[:0])

	case CodecLz4:
		n, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return nil, err
		}
		return dst[:n], nil

	default:
		return nil, fmt.Errorf("unknown codec %s", c)
	}
}

// compress compresses src, appending to dst. The returned slice may alias
// src when the codec is CodecNone.
func (c Codec) compress(dst, src []byte) ([]byte, error) {
	switch c {
	case CodecNone:
		return src, nil

	case CodecSnappy:
		return snappy.Encode(dst, src), nil

	case CodecZstd:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, err
		}
		return enc.EncodeAll(src, dst[:0]), nil

	case CodecLz4:
		dst = append(dst[:0], make([]byte, lz4.CompressBlockBound(len(src)))...)
		var compressor lz4.Compressor
		n, err := compressor.CompressBlock(src, dst)
		if err != nil {
			return nil, err
		}
		return dst[:n], nil

	default:
		return nil, fmt.Errorf("unknown codec %s", c)
	}
}
