package stream

import (
	"io"

	"github.com/opencolumn/stripescan/internal/streamio"
)

// Chunk framing: a stream is stored as a sequence of chunks, each preceded by
// a 3-byte little-endian header holding (chunkLength << 1) | isOriginal. When
// isOriginal is set the chunk body is stored uncompressed because compression
// did not shrink it. Chunk boundaries do not align with value boundaries; a
// single encoded value may span two chunks.
const (
	chunkHeaderSize = 3
	maxChunkLen     = 1<<23 - 1
)

// A Checkpoint is an opaque cursor into a chunked stream, captured with
// [ChunkReader.Checkpoint] and restored with [ChunkReader.SeekTo]. It
// addresses a chunk by its compressed offset plus a byte offset into the
// decompressed chunk body.
type Checkpoint struct {
	ChunkOffset int // Offset of the chunk header within the compressed stream.
	ChunkPos    int // Byte offset into the decompressed chunk.
}

// A ChunkReader supplies decompressed bytes for one stream of one column,
// loading and decompressing chunks on demand. ChunkReader implements
// [streamio.Reader].
//
// A ChunkReader is owned by exactly one column reader and is not safe for
// concurrent use.
type ChunkReader struct {
	source string
	id     ID
	codec  Codec

	data []byte // Entire compressed stream.
	next int    // Offset of the next chunk header within data.

	chunk      []byte // Decompressed bytes of the current chunk.
	pos        int    // Read position within chunk.
	chunkStart int    // Offset of the current chunk's header within data.

	dec     []byte // Grow-only scratch backing chunk for compressed chunks.
	maxSize int    // Upper bound for a decompressed chunk.
}

var _ streamio.Reader = (*ChunkReader)(nil)

// NewChunkReader returns a ChunkReader over the compressed stream data.
// source names the backing source for error reporting. maxChunkSize is the
// largest decompressed chunk the stream may contain, as recorded by the
// writer; it bounds decompression buffers.
func NewChunkReader(source string, id ID, codec Codec, data []byte, maxChunkSize int) *ChunkReader {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultChunkSize
	}
	return &ChunkReader{
		source:  source,
		id:      id,
		codec:   codec,
		data:    data,
		maxSize: maxChunkSize,
	}
}

// HasNext reports whether any bytes remain, in the current chunk or in chunks
// not yet loaded.
func (r *ChunkReader) HasNext() bool {
	return r.pos < len(r.chunk) || r.next < len(r.data)
}

// ReadByte reads a single byte, loading the next chunk when the current one
// is exhausted.
func (r *ChunkReader) ReadByte() (byte, error) {
	for r.pos >= len(r.chunk) {
		if err := r.nextChunk(); err != nil {
			return 0, err
		}
	}
	b := r.chunk[r.pos]
	r.pos++
	return b, nil
}

// Read reads up to len(p) bytes. Read only returns 0 bytes at the end of the
// stream, where it returns io.EOF.
func (r *ChunkReader) Read(p []byte) (int, error) {
	for r.pos >= len(r.chunk) {
		if err := r.nextChunk(); err != nil {
			return 0, err
		}
	}
	n := copy(p, r.chunk[r.pos:])
	r.pos += n
	return n, nil
}

// ReadFull reads exactly len(p) bytes, crossing chunk boundaries as needed.
// A short stream yields a CorruptionError.
func (r *ChunkReader) ReadFull(p []byte) error {
	read := 0
	for read < len(p) {
		n, err := r.Read(p[read:])
		if err == io.EOF {
			return corruptionf(r.source, r.id, "stream ends %d bytes short of a value", len(p)-read)
		} else if err != nil {
			return err
		}
		read += n
	}
	return nil
}

// Skip discards n decompressed bytes. Chunks that are skipped in their
// entirety are still decompressed; callers avoid that cost by seeking to a
// checkpoint instead when one is available.
func (r *ChunkReader) Skip(n int) error {
	for n > 0 {
		if avail := len(r.chunk) - r.pos; avail > 0 {
			step := min(avail, n)
			r.pos += step
			n -= step
			continue
		}
		if err := r.nextChunk(); err != nil {
			return err
		}
	}
	return nil
}

// Checkpoint captures the reader's current position.
func (r *ChunkReader) Checkpoint() Checkpoint {
	if r.pos >= len(r.chunk) && r.next < len(r.data) {
		// Between chunks: the next read starts at the next chunk header.
		return Checkpoint{ChunkOffset: r.next}
	}
	return Checkpoint{ChunkOffset: r.chunkStart, ChunkPos: r.pos}
}

// SeekTo restores a position previously captured with Checkpoint, or any
// checkpoint recorded by the writer (such as row-group boundaries).
func (r *ChunkReader) SeekTo(cp Checkpoint) error {
	if cp.ChunkOffset > len(r.data) {
		return corruptionf(r.source, r.id, "checkpoint chunk offset %d beyond stream end %d", cp.ChunkOffset, len(r.data))
	}

	if cp.ChunkOffset == r.chunkStart && len(r.chunk) > 0 {
		// Same chunk; just move the position.
		if cp.ChunkPos > len(r.chunk) {
			return corruptionf(r.source, r.id, "checkpoint position %d beyond chunk size %d", cp.ChunkPos, len(r.chunk))
		}
		r.pos = cp.ChunkPos
		return nil
	}

	r.releaseChunk()
	r.next = cp.ChunkOffset
	if cp.ChunkPos == 0 {
		return nil
	}
	if err := r.nextChunk(); err != nil {
		return err
	}
	if cp.ChunkPos > len(r.chunk) {
		return corruptionf(r.source, r.id, "checkpoint position %d beyond chunk size %d", cp.ChunkPos, len(r.chunk))
	}
	r.pos = cp.ChunkPos
	return nil
}

// nextChunk loads and decompresses the next chunk. At the end of the stream
// it returns io.EOF.
func (r *ChunkReader) nextChunk() error {
	if r.next >= len(r.data) {
		return io.EOF
	}
	if len(r.data)-r.next < chunkHeaderSize {
		return corruptionf(r.source, r.id, "truncated chunk header at offset %d", r.next)
	}

	header := int(r.data[r.next]) | int(r.data[r.next+1])<<8 | int(r.data[r.next+2])<<16
	var (
		original = header&1 == 1
		length   = header >> 1
	)
	if length == 0 || length > maxChunkLen {
		return corruptionf(r.source, r.id, "invalid chunk length %d at offset %d", length, r.next)
	}

	body := r.next + chunkHeaderSize
	if body+length > len(r.data) {
		return corruptionf(r.source, r.id, "chunk at offset %d extends %d bytes past stream end", r.next, body+length-len(r.data))
	}

	r.chunkStart = r.next
	r.next = body + length
	r.pos = 0

	if original || r.codec == CodecNone {
		r.releaseChunk()
		r.chunk = r.data[body : body+length]
		return nil
	}

	if len(r.dec) < r.maxSize {
		r.dec = make([]byte, r.maxSize)
	}

	chunk, err := r.codec.decompress(r.dec, r.data[body:body+length])
	if err != nil {
		return corruptionf(r.source, r.id, "decompressing chunk at offset %d: %v", r.chunkStart, err)
	}
	if len(chunk) > r.maxSize {
		return corruptionf(r.source, r.id, "chunk at offset %d decompresses to %d bytes, above the declared maximum %d", r.chunkStart, len(chunk), r.maxSize)
	}
	r.chunk = chunk
	return nil
}

func (r *ChunkReader) releaseChunk() {
	r.chunk = nil
	r.pos = 0
}

// Close releases buffers. The reader must not be used after Close.
func (r *ChunkReader) Close() {
	r.dec = nil
	r.chunk = nil
	r.data = nil
}
