package stream

import (
	"encoding/binary"
	"math"

	"github.com/opencolumn/stripescan/internal/streamio"
)

// A Float64Decoder reads 8-byte little-endian IEEE 754 values. Every bit
// pattern round-trips, including NaN payloads, infinities and denormals.
type Float64Decoder struct {
	r   *ChunkReader
	buf [8]byte
}

// NewFloat64Decoder returns a decoder reading doubles from r.
func NewFloat64Decoder(r *ChunkReader) *Float64Decoder {
	return &Float64Decoder{r: r}
}

// Reset discards buffered state and reads from r.
func (d *Float64Decoder) Reset(r *ChunkReader) { d.r = r }

// Next returns the next double.
func (d *Float64Decoder) Next() (float64, error) {
	if err := d.r.ReadFull(d.buf[:]); err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(d.buf[:])), nil
}

// NextN decodes count values into p. p must have room for count values.
func (d *Float64Decoder) NextN(p []float64, count int) error {
	for i := 0; i < count; i++ {
		v, err := d.Next()
		if err != nil {
			return err
		}
		p[i] = v
	}
	return nil
}

// Skip discards n values without decoding them.
func (d *Float64Decoder) Skip(n int) error {
	return d.r.Skip(n * 8)
}

// A Float64Encoder writes 8-byte little-endian IEEE 754 values.
type Float64Encoder struct {
	w   streamio.Writer
	buf [8]byte
}

// NewFloat64Encoder returns an encoder writing doubles to w.
func NewFloat64Encoder(w streamio.Writer) *Float64Encoder {
	return &Float64Encoder{w: w}
}

// Encode appends one double.
func (e *Float64Encoder) Encode(v float64) error {
	binary.LittleEndian.PutUint64(e.buf[:], math.Float64bits(v))
	_, err := e.w.Write(e.buf[:])
	return err
}

// Reset directs future writes to w.
func (e *Float64Encoder) Reset(w streamio.Writer) { e.w = w }
