package stream

import (
	"bytes"
	"fmt"
)

// DefaultChunkSize is the decompressed chunk size used by writers unless
// configured otherwise.
const DefaultChunkSize = 64 * 1024

// A ChunkWriter frames and compresses bytes into the chunked stream layout
// read by [ChunkReader]. ChunkWriter implements [streamio.Writer].
type ChunkWriter struct {
	codec     Codec
	chunkSize int

	out     bytes.Buffer // Finished, framed chunks.
	pending []byte       // Uncompressed bytes of the chunk being built.
	scratch []byte       // Reusable compression output buffer.
}

// NewChunkWriter returns a ChunkWriter using the given codec and decompressed
// chunk size. A chunkSize of zero uses DefaultChunkSize.
func NewChunkWriter(codec Codec, chunkSize int) *ChunkWriter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize > maxChunkLen {
		chunkSize = maxChunkLen
	}
	return &ChunkWriter{codec: codec, chunkSize: chunkSize}
}

// Write appends p to the stream, flushing completed chunks as they fill.
func (w *ChunkWriter) Write(p []byte) (int, error) {
	for _, b := range p {
		if err := w.WriteByte(b); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// WriteByte appends a single byte to the stream.
func (w *ChunkWriter) WriteByte(b byte) error {
	w.pending = append(w.pending, b)
	if len(w.pending) >= w.chunkSize {
		return w.flushChunk()
	}
	return nil
}

// Checkpoint returns the position a reader must seek to in order to resume
// reading at the next byte written. Callers record checkpoints at row-group
// boundaries.
func (w *ChunkWriter) Checkpoint() Checkpoint {
	return Checkpoint{ChunkOffset: w.out.Len(), ChunkPos: len(w.pending)}
}

// Flush completes the current chunk, if any.
func (w *ChunkWriter) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	return w.flushChunk()
}

// Bytes returns the framed stream written so far. Call Flush first to include
// any partial chunk.
func (w *ChunkWriter) Bytes() []byte { return w.out.Bytes() }

// ChunkSize returns the decompressed chunk size the writer frames with.
// Readers need it to bound their decompression buffers.
func (w *ChunkWriter) ChunkSize() int { return w.chunkSize }

// Reset clears the writer for reuse.
func (w *ChunkWriter) Reset() {
	w.out.Reset()
	w.pending = w.pending[:0]
}

func (w *ChunkWriter) flushChunk() error {
	compressed, err := w.codec.compress(w.scratch, w.pending)
	if err != nil {
		return fmt.Errorf("compressing chunk: %w", err)
	}
	if cap(compressed) > cap(w.scratch) {
		w.scratch = compressed[:0]
	}

	// Store the original bytes when compression does not help; the header's
	// low bit tells the reader which form the body takes.
	body, original := compressed, false
	if w.codec == CodecNone || len(compressed) >= len(w.pending) {
		body, original = w.pending, true
	}

	header := len(body) << 1
	if original {
		header |= 1
	}
	w.out.Write([]byte{byte(header), byte(header >> 8), byte(header >> 16)})
	w.out.Write(body)

	w.pending = w.pending[:0]
	return nil
}
