package stream

import "fmt"

// A BytesDecoder reads variable-width byte-array values: contents come from
// the DATA stream back to back, sliced by a LENGTH stream of unsigned
// run-length integers.
type BytesDecoder struct {
	lengths *IntDecoder
	data    *ChunkReader
}

// NewBytesDecoder returns a decoder combining a LENGTH stream and a raw
// contents stream.
func NewBytesDecoder(lengths *IntDecoder, data *ChunkReader) *BytesDecoder {
	return &BytesDecoder{lengths: lengths, data: data}
}

// Reset discards buffered state and reads from the given streams.
func (d *BytesDecoder) Reset(lengths *IntDecoder, data *ChunkReader) {
	d.lengths = lengths
	d.data = data
}

// NextLength returns the byte length of the next value.
func (d *BytesDecoder) NextLength() (int, error) {
	n, err := d.lengths.Next()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value length %d", n)
	}
	return int(n), nil
}

// ReadInto fills p with the next len(p) content bytes. Callers pair it with
// NextLength, slicing p from their own flat buffer.
func (d *BytesDecoder) ReadInto(p []byte) error {
	return d.data.ReadFull(p)
}

// Skip discards n values: n lengths, and the content bytes they cover.
func (d *BytesDecoder) Skip(n int) error {
	var contentBytes int
	for i := 0; i < n; i++ {
		length, err := d.NextLength()
		if err != nil {
			return err
		}
		contentBytes += length
	}
	return d.data.Skip(contentBytes)
}
