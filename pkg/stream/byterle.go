package stream

import (
	"io"

	"github.com/opencolumn/stripescan/internal/streamio"
)

// Byte run-length encoding: a control byte of value 0..127 begins a run of
// (control + 3) copies of the byte that follows; a control byte of value
// 128..255 begins a literal group of (256 - control) bytes.
const (
	byteRLEMinRepeat  = 3
	byteRLEMaxRepeat  = 130
	byteRLEMaxLiteral = 128
)

// A ByteRLEDecoder decodes a run-length encoded byte stream. Skipping a run
// does not materialize the skipped bytes.
type ByteRLEDecoder struct {
	r      streamio.Reader
	source string
	id     ID

	literals []byte // Pending literal group.
	consumed int    // Bytes of literals consumed.

	runLength int  // Remaining bytes of the current run.
	runValue  byte // Value the current run repeats.
}

// NewByteRLEDecoder returns a decoder reading encoded bytes from r. source and
// id name the stream in corruption errors.
func NewByteRLEDecoder(r streamio.Reader, source string, id ID) *ByteRLEDecoder {
	return &ByteRLEDecoder{r: r, source: source, id: id, literals: make([]byte, 0, byteRLEMaxLiteral)}
}

// Reset discards buffered state and reads from r.
func (d *ByteRLEDecoder) Reset(r streamio.Reader, source string, id ID) {
	d.r = r
	d.source = source
	d.id = id
	d.literals = d.literals[:0]
	d.consumed = 0
	d.runLength = 0
}

// Next returns the next byte.
func (d *ByteRLEDecoder) Next() (byte, error) {
	if d.runLength > 0 {
		d.runLength--
		return d.runValue, nil
	}
	if d.consumed < len(d.literals) {
		b := d.literals[d.consumed]
		d.consumed++
		return b, nil
	}
	if err := d.readGroup(); err != nil {
		return 0, err
	}
	return d.Next()
}

// NextN decodes count bytes into p. p must have room for count bytes.
func (d *ByteRLEDecoder) NextN(p []byte, count int) error {
	for i := 0; i < count; i++ {
		b, err := d.Next()
		if err != nil {
			return err
		}
		p[i] = b
	}
	return nil
}

// Skip discards n bytes. Runs are skipped arithmetically.
func (d *ByteRLEDecoder) Skip(n int) error {
	for n > 0 {
		if d.runLength > 0 {
			step := min(d.runLength, n)
			d.runLength -= step
			n -= step
			continue
		}
		if avail := len(d.literals) - d.consumed; avail > 0 {
			step := min(avail, n)
			d.consumed += step
			n -= step
			continue
		}
		if err := d.readGroup(); err != nil {
			return err
		}
	}
	return nil
}

func (d *ByteRLEDecoder) readGroup() error {
	control, err := d.r.ReadByte()
	if err != nil {
		return err
	}

	if control < 0x80 {
		value, err := d.r.ReadByte()
		if err == io.EOF {
			return corruptionf(d.source, d.id, "byte run truncated after control byte")
		} else if err != nil {
			return err
		}
		d.runLength = int(control) + byteRLEMinRepeat
		d.runValue = value
		return nil
	}

	count := 256 - int(control)
	d.literals = d.literals[:count]
	d.consumed = 0
	for i := 0; i < count; i++ {
		b, err := d.r.ReadByte()
		if err == io.EOF {
			return corruptionf(d.source, d.id, "byte literal group truncated: got %d of %d bytes", i, count)
		} else if err != nil {
			return err
		}
		d.literals[i] = b
	}
	return nil
}

// A ByteRLEEncoder writes a run-length encoded byte stream.
type ByteRLEEncoder struct {
	w streamio.Writer

	literals []byte
	runValue byte
	runCount int
}

// NewByteRLEEncoder returns an encoder writing encoded bytes to w.
func NewByteRLEEncoder(w streamio.Writer) *ByteRLEEncoder {
	return &ByteRLEEncoder{w: w, literals: make([]byte, 0, byteRLEMaxLiteral)}
}

// Encode appends one byte to the stream.
func (e *ByteRLEEncoder) Encode(b byte) error {
	if e.runCount == 0 {
		e.runValue = b
		e.runCount = 1
		return nil
	}

	if b == e.runValue {
		e.runCount++
		if e.runCount == byteRLEMinRepeat && len(e.literals) > 0 {
			if err := e.flushLiterals(); err != nil {
				return err
			}
		}
		if e.runCount == byteRLEMaxRepeat {
			return e.flushRun()
		}
		return nil
	}

	// Run broken before reaching the repeat threshold: move it to literals.
	if e.runCount < byteRLEMinRepeat {
		for i := 0; i < e.runCount; i++ {
			e.literals = append(e.literals, e.runValue)
			if len(e.literals) == byteRLEMaxLiteral {
				if err := e.flushLiterals(); err != nil {
					return err
				}
			}
		}
	} else if err := e.flushRun(); err != nil {
		return err
	}

	e.runValue = b
	e.runCount = 1
	return nil
}

// Flush writes any pending run or literal group.
func (e *ByteRLEEncoder) Flush() error {
	if e.runCount >= byteRLEMinRepeat {
		return e.flushRun()
	}
	for i := 0; i < e.runCount; i++ {
		e.literals = append(e.literals, e.runValue)
		if len(e.literals) == byteRLEMaxLiteral {
			if err := e.flushLiterals(); err != nil {
				return err
			}
		}
	}
	e.runCount = 0
	return e.flushLiterals()
}

// Reset discards pending state and writes to w.
func (e *ByteRLEEncoder) Reset(w streamio.Writer) {
	e.w = w
	e.literals = e.literals[:0]
	e.runCount = 0
}

func (e *ByteRLEEncoder) flushRun() error {
	if err := e.w.WriteByte(byte(e.runCount - byteRLEMinRepeat)); err != nil {
		return err
	}
	if err := e.w.WriteByte(e.runValue); err != nil {
		return err
	}
	e.runCount = 0
	return nil
}

func (e *ByteRLEEncoder) flushLiterals() error {
	if len(e.literals) == 0 {
		return nil
	}
	if err := e.w.WriteByte(byte(256 - len(e.literals))); err != nil {
		return err
	}
	if _, err := e.w.Write(e.literals); err != nil {
		return err
	}
	e.literals = e.literals[:0]
	return nil
}
