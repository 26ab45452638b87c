package stream

import (
	"io"

	"github.com/opencolumn/stripescan/internal/streamio"
)

// Integer run-length encoding: a control byte of value 0..127 begins a run of
// (control + 3) values starting at a varint base and stepping by a signed
// single-byte delta; a control byte of 128..255 begins a literal group of
// (256 - control) varint values. Signed streams store values zigzag-encoded.
const (
	intRLEMinRepeat  = 3
	intRLEMaxRepeat  = 130
	intRLEMaxLiteral = 128
	intRLEMaxDelta   = 127
	intRLEMinDelta   = -128
)

// An IntDecoder decodes a run-length encoded integer stream. Skipping inside
// a run is arithmetic and does not materialize skipped values.
type IntDecoder struct {
	r      streamio.Reader
	signed bool
	source string
	id     ID

	// Current run state. A literal group is represented as runLength values
	// that must each be read from the stream.
	runLength int   // Values remaining in the current group.
	runDelta  int64 // Step between consecutive run values; 0 for literals.
	runValue  int64 // Next value of the current run.
	literal   bool  // Whether the current group is a literal group.
}

// NewIntDecoder returns a decoder reading encoded integers from r. Signed
// streams (values that may be negative) must set signed; index and length
// streams are unsigned. source and id name the stream in corruption errors.
func NewIntDecoder(r streamio.Reader, signed bool, source string, id ID) *IntDecoder {
	return &IntDecoder{r: r, signed: signed, source: source, id: id}
}

// Reset discards buffered state and reads from r.
func (d *IntDecoder) Reset(r streamio.Reader, source string, id ID) {
	d.r = r
	d.source = source
	d.id = id
	d.runLength = 0
}

// Next returns the next integer.
func (d *IntDecoder) Next() (int64, error) {
	for d.runLength == 0 {
		if err := d.readGroup(); err != nil {
			return 0, err
		}
	}
	d.runLength--

	if d.literal {
		v, err := d.readValue()
		if err != nil {
			return 0, d.truncated(err)
		}
		return v, nil
	}
	v := d.runValue
	d.runValue += d.runDelta
	return v, nil
}

// NextN decodes count values into p. p must have room for count values.
func (d *IntDecoder) NextN(p []int64, count int) error {
	for i := 0; i < count; i++ {
		v, err := d.Next()
		if err != nil {
			return err
		}
		p[i] = v
	}
	return nil
}

// Skip discards n values.
func (d *IntDecoder) Skip(n int) error {
	for n > 0 {
		if d.runLength == 0 {
			if err := d.readGroup(); err != nil {
				return err
			}
		}

		step := min(d.runLength, n)
		if d.literal {
			// Literal values must be consumed from the stream, but they are
			// not materialized.
			for i := 0; i < step; i++ {
				if _, err := d.readValue(); err != nil {
					return d.truncated(err)
				}
			}
		} else {
			d.runValue += d.runDelta * int64(step)
		}
		d.runLength -= step
		n -= step
	}
	return nil
}

func (d *IntDecoder) readGroup() error {
	control, err := d.r.ReadByte()
	if err != nil {
		return err
	}

	if control < 0x80 {
		delta, err := d.r.ReadByte()
		if err != nil {
			return d.truncated(err)
		}
		base, err := d.readValue()
		if err != nil {
			return d.truncated(err)
		}
		d.runLength = int(control) + intRLEMinRepeat
		d.runDelta = int64(int8(delta))
		d.runValue = base
		d.literal = false
		return nil
	}

	d.runLength = 256 - int(control)
	d.literal = true
	return nil
}

// truncated converts stream exhaustion inside a group, where the control byte
// promised more values, into a corruption error.
func (d *IntDecoder) truncated(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return corruptionf(d.source, d.id, "integer group truncated before its promised values")
	}
	return err
}

func (d *IntDecoder) readValue() (int64, error) {
	if d.signed {
		return streamio.ReadVarint(d.r)
	}
	uv, err := streamio.ReadUvarint(d.r)
	return int64(uv), err
}

// An IntEncoder writes a run-length encoded integer stream.
type IntEncoder struct {
	w      streamio.Writer
	signed bool

	literals []int64
	runValue int64 // First value of the trailing run.
	runDelta int64
	runCount int
}

// NewIntEncoder returns an encoder writing encoded integers to w.
func NewIntEncoder(w streamio.Writer, signed bool) *IntEncoder {
	return &IntEncoder{w: w, signed: signed, literals: make([]int64, 0, intRLEMaxLiteral)}
}

// Encode appends one integer to the stream.
func (e *IntEncoder) Encode(v int64) error {
	switch e.runCount {
	case 0:
		e.runValue = v
		e.runCount = 1
		return nil

	case 1:
		delta := v - e.runValue
		if delta >= intRLEMinDelta && delta <= intRLEMaxDelta {
			e.runDelta = delta
			e.runCount = 2
			return nil
		}
		return e.breakRun(v)

	default:
		if v == e.runValue+e.runDelta*int64(e.runCount) {
			e.runCount++
			if e.runCount == intRLEMinRepeat && len(e.literals) > 0 {
				if err := e.flushLiterals(); err != nil {
					return err
				}
			}
			if e.runCount == intRLEMaxRepeat {
				return e.flushRun()
			}
			return nil
		}
		return e.breakRun(v)
	}
}

// Flush writes any pending run or literal group.
func (e *IntEncoder) Flush() error {
	if e.runCount >= intRLEMinRepeat {
		return e.flushRun()
	}
	if err := e.spillRunToLiterals(); err != nil {
		return err
	}
	return e.flushLiterals()
}

// Reset discards pending state and writes to w.
func (e *IntEncoder) Reset(w streamio.Writer) {
	e.w = w
	e.literals = e.literals[:0]
	e.runCount = 0
}

func (e *IntEncoder) breakRun(next int64) error {
	if e.runCount >= intRLEMinRepeat {
		if err := e.flushRun(); err != nil {
			return err
		}
	} else if err := e.spillRunToLiterals(); err != nil {
		return err
	}
	e.runValue = next
	e.runCount = 1
	return nil
}

func (e *IntEncoder) spillRunToLiterals() error {
	for i := 0; i < e.runCount; i++ {
		e.literals = append(e.literals, e.runValue+e.runDelta*int64(i))
		if len(e.literals) == intRLEMaxLiteral {
			if err := e.flushLiterals(); err != nil {
				return err
			}
		}
	}
	e.runCount = 0
	return nil
}

func (e *IntEncoder) flushRun() error {
	if err := e.w.WriteByte(byte(e.runCount - intRLEMinRepeat)); err != nil {
		return err
	}
	if err := e.w.WriteByte(byte(int8(e.runDelta))); err != nil {
		return err
	}
	if err := e.writeValue(e.runValue); err != nil {
		return err
	}
	e.runCount = 0
	e.runDelta = 0
	return nil
}

func (e *IntEncoder) flushLiterals() error {
	if len(e.literals) == 0 {
		return nil
	}
	if err := e.w.WriteByte(byte(256 - len(e.literals))); err != nil {
		return err
	}
	for _, v := range e.literals {
		if err := e.writeValue(v); err != nil {
			return err
		}
	}
	e.literals = e.literals[:0]
	return nil
}

func (e *IntEncoder) writeValue(v int64) error {
	if e.signed {
		return streamio.WriteVarint(e.w, v)
	}
	return streamio.WriteUvarint(e.w, uint64(v))
}
