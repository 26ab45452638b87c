package stream

import (
	"encoding/binary"
	"io"

	"github.com/ronanh/intcomp"

	"github.com/opencolumn/stripescan/internal/streamio"
)

// intBlockSize is the number of values compressed together per block. The
// block is the skip granularity: skipping decodes at most one partial block.
const intBlockSize = 256

// An IntBlockDecoder decodes integers stored as intcomp-compressed blocks, an
// alternate DATA encoding for dense numeric columns where bitpacking beats
// varint run-length. Each block is framed as a uvarint byte length followed
// by little-endian uint64 words.
type IntBlockDecoder struct {
	r      streamio.Reader
	source string
	id     ID

	values  []int64 // Decoded values of the current block.
	read    int     // Values of the current block already returned.
	readBuf []byte
	compBuf []uint64
}

// NewIntBlockDecoder returns a decoder reading compressed blocks from r.
// source and id name the stream in corruption errors.
func NewIntBlockDecoder(r streamio.Reader, source string, id ID) *IntBlockDecoder {
	return &IntBlockDecoder{
		r:       r,
		source:  source,
		id:      id,
		values:  make([]int64, 0, intBlockSize),
		readBuf: make([]byte, (intBlockSize+8)*8),
		compBuf: make([]uint64, 0, intBlockSize+8),
	}
}

// Reset discards buffered state and reads from r.
func (d *IntBlockDecoder) Reset(r streamio.Reader, source string, id ID) {
	d.r = r
	d.source = source
	d.id = id
	d.values = d.values[:0]
	d.read = 0
}

// Next returns the next integer.
func (d *IntBlockDecoder) Next() (int64, error) {
	if d.read == len(d.values) {
		if err := d.readBlock(); err != nil {
			return 0, err
		}
	}
	v := d.values[d.read]
	d.read++
	return v, nil
}

// NextN decodes count values into p. p must have room for count values.
func (d *IntBlockDecoder) NextN(p []int64, count int) error {
	filled := 0
	for filled < count {
		if d.read == len(d.values) {
			if err := d.readBlock(); err != nil {
				return err
			}
		}
		n := copy(p[filled:count], d.values[d.read:])
		d.read += n
		filled += n
	}
	return nil
}

// Skip discards n values. Whole blocks ahead of the target are still
// decompressed, but per-value decoding work is skipped.
func (d *IntBlockDecoder) Skip(n int) error {
	for n > 0 {
		if avail := len(d.values) - d.read; avail > 0 {
			step := min(avail, n)
			d.read += step
			n -= step
			continue
		}
		if err := d.readBlock(); err != nil {
			return err
		}
	}
	return nil
}

func (d *IntBlockDecoder) readBlock() error {
	byteLen, err := streamio.ReadUvarint(d.r)
	if err == io.ErrUnexpectedEOF {
		return corruptionf(d.source, d.id, "integer block header truncated")
	} else if err != nil {
		return err
	}
	if byteLen == 0 || byteLen%8 != 0 || byteLen > 1<<20 {
		return corruptionf(d.source, d.id, "invalid integer block length %d", byteLen)
	}
	if int(byteLen) > len(d.readBuf) {
		d.readBuf = make([]byte, byteLen)
	}
	if err := readFull(d.r, d.readBuf[:byteLen]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return corruptionf(d.source, d.id, "integer block truncated: want %d bytes", byteLen)
		}
		return err
	}

	words := int(byteLen) / 8
	if words > cap(d.compBuf) {
		d.compBuf = make([]uint64, words)
	}
	d.compBuf = d.compBuf[:words]
	for i := 0; i < words; i++ {
		d.compBuf[i] = binary.LittleEndian.Uint64(d.readBuf[i*8:])
	}

	d.values = intcomp.UncompressInt64(d.compBuf, d.values[:0])
	d.read = 0
	if len(d.values) == 0 {
		return corruptionf(d.source, d.id, "integer block decompressed to no values")
	}
	return nil
}

func readFull(r streamio.Reader, p []byte) error {
	read := 0
	for read < len(p) {
		n, err := r.Read(p[read:])
		if err == io.EOF && read+n < len(p) {
			return io.ErrUnexpectedEOF
		} else if err != nil && err != io.EOF {
			return err
		}
		read += n
	}
	return nil
}

// An IntBlockEncoder writes integers as intcomp-compressed blocks.
type IntBlockEncoder struct {
	w streamio.Writer

	input   []int64
	compBuf []uint64
	outBuf  []byte
}

// NewIntBlockEncoder returns an encoder writing compressed blocks to w.
func NewIntBlockEncoder(w streamio.Writer) *IntBlockEncoder {
	return &IntBlockEncoder{
		w:       w,
		input:   make([]int64, 0, intBlockSize),
		compBuf: make([]uint64, 0, intBlockSize+8),
		outBuf:  make([]byte, (intBlockSize+8)*8),
	}
}

// Encode appends one integer, flushing a block when full.
func (e *IntBlockEncoder) Encode(v int64) error {
	e.input = append(e.input, v)
	if len(e.input) == intBlockSize {
		return e.Flush()
	}
	return nil
}

// Flush compresses and writes any buffered values as a block.
func (e *IntBlockEncoder) Flush() error {
	if len(e.input) == 0 {
		return nil
	}

	e.compBuf = intcomp.CompressInt64(e.input, e.compBuf[:0])
	byteLen := len(e.compBuf) * 8
	if byteLen > len(e.outBuf) {
		e.outBuf = make([]byte, byteLen)
	}
	for i, word := range e.compBuf {
		binary.LittleEndian.PutUint64(e.outBuf[i*8:], word)
	}

	if err := streamio.WriteUvarint(e.w, uint64(byteLen)); err != nil {
		return err
	}
	if _, err := e.w.Write(e.outBuf[:byteLen]); err != nil {
		return err
	}
	e.input = e.input[:0]
	return nil
}

// Reset discards pending state and writes to w.
func (e *IntBlockEncoder) Reset(w streamio.Writer) {
	e.w = w
	e.input = e.input[:0]
}
