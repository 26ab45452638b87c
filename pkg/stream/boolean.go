package stream

import (
	"math/bits"

	"github.com/opencolumn/stripescan/internal/streamio"
)

// A BitDecoder reads single bits, most significant first, from a byte
// run-length encoded stream. It backs both boolean DATA streams and PRESENT
// streams.
type BitDecoder struct {
	bytes *ByteRLEDecoder

	current  byte
	bitsLeft int
}

// NewBitDecoder returns a decoder reading bits from the byte stream r. source
// and id name the stream in corruption errors.
func NewBitDecoder(r streamio.Reader, source string, id ID) *BitDecoder {
	return &BitDecoder{bytes: NewByteRLEDecoder(r, source, id)}
}

// Reset discards buffered state and reads from r.
func (d *BitDecoder) Reset(r streamio.Reader, source string, id ID) {
	d.bytes.Reset(r, source, id)
	d.current = 0
	d.bitsLeft = 0
}

// NextBit returns the next bit. For PRESENT streams a true bit means the row
// is non-NULL.
func (d *BitDecoder) NextBit() (bool, error) {
	if d.bitsLeft == 0 {
		b, err := d.bytes.Next()
		if err != nil {
			return false, err
		}
		d.current = b
		d.bitsLeft = 8
	}
	d.bitsLeft--
	return d.current&(1<<d.bitsLeft) != 0, nil
}

// Skip discards n bits.
func (d *BitDecoder) Skip(n int) error {
	if n <= d.bitsLeft {
		d.bitsLeft -= n
		return nil
	}
	n -= d.bitsLeft
	d.bitsLeft = 0

	if whole := n / 8; whole > 0 {
		if err := d.bytes.Skip(whole); err != nil {
			return err
		}
		n -= whole * 8
	}
	if n > 0 {
		b, err := d.bytes.Next()
		if err != nil {
			return err
		}
		d.current = b
		d.bitsLeft = 8 - n
	}
	return nil
}

// CountBitsSet consumes the next n bits and returns how many were set. It is
// used to turn a logical row skip into a data-value skip: skipping n rows of
// a nullable column must skip only CountBitsSet(n) data values.
func (d *BitDecoder) CountBitsSet(n int) (int, error) {
	var set int
	for n > 0 && d.bitsLeft > 0 {
		d.bitsLeft--
		if d.current&(1<<d.bitsLeft) != 0 {
			set++
		}
		n--
	}
	for n >= 8 {
		b, err := d.bytes.Next()
		if err != nil {
			return set, err
		}
		set += bits.OnesCount8(b)
		n -= 8
	}
	for n > 0 {
		bit, err := d.NextBit()
		if err != nil {
			return set, err
		}
		if bit {
			set++
		}
		n--
	}
	return set, nil
}

// UnsetBits decodes the next n bits into nulls, where nulls[i] reports that
// row i is NULL (its presence bit was unset). It returns the number of NULL
// rows found, letting callers detect the all-null fast path before touching
// the data stream. nulls must have room for n entries.
func (d *BitDecoder) UnsetBits(n int, nulls []bool) (int, error) {
	var nullCount int
	for i := 0; i < n; i++ {
		bit, err := d.NextBit()
		if err != nil {
			return nullCount, err
		}
		nulls[i] = !bit
		if !bit {
			nullCount++
		}
	}
	return nullCount, nil
}

// A BitEncoder writes single bits, most significant first, into a byte
// run-length encoded stream.
type BitEncoder struct {
	bytes *ByteRLEEncoder

	current  byte
	bitsUsed int
}

// NewBitEncoder returns an encoder writing bits to w.
func NewBitEncoder(w streamio.Writer) *BitEncoder {
	return &BitEncoder{bytes: NewByteRLEEncoder(w)}
}

// Encode appends one bit.
func (e *BitEncoder) Encode(bit bool) error {
	e.current <<= 1
	if bit {
		e.current |= 1
	}
	e.bitsUsed++
	if e.bitsUsed == 8 {
		return e.flushByte()
	}
	return nil
}

// Flush pads the trailing partial byte with zero bits and flushes the
// underlying byte encoder.
func (e *BitEncoder) Flush() error {
	if e.bitsUsed > 0 {
		e.current <<= 8 - e.bitsUsed
		e.bitsUsed = 8
		if err := e.flushByte(); err != nil {
			return err
		}
	}
	return e.bytes.Flush()
}

// Reset discards pending state and writes to w.
func (e *BitEncoder) Reset(w streamio.Writer) {
	e.bytes.Reset(w)
	e.current = 0
	e.bitsUsed = 0
}

func (e *BitEncoder) flushByte() error {
	if err := e.bytes.Encode(e.current); err != nil {
		return err
	}
	e.current = 0
	e.bitsUsed = 0
	return nil
}
