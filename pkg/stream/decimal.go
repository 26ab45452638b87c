package stream

import (
	"io"

	"github.com/opencolumn/stripescan/internal/streamio"
	"github.com/opencolumn/stripescan/pkg/decimal"
)

// Decimal mantissas are stored as unbounded base-128 varints holding a
// zigzag-encoded two's complement value of up to 128 bits. 19 groups carry up
// to 133 payload bits; a 20th group, or set bits above 128, mean the stream
// is corrupt rather than a wider value.
const decimalMaxVarintBytes = 19

// A DecimalDecoder reads 128-bit decimal mantissas. Scales travel in the
// column's SECONDARY stream and are decoded separately with an [IntDecoder].
type DecimalDecoder struct {
	r      streamio.Reader
	source string
	id     ID
}

// NewDecimalDecoder returns a decoder reading mantissas from r. source and id
// name the stream in corruption errors.
func NewDecimalDecoder(r streamio.Reader, source string, id ID) *DecimalDecoder {
	return &DecimalDecoder{r: r, source: source, id: id}
}

// Reset discards buffered state and reads from r.
func (d *DecimalDecoder) Reset(r streamio.Reader, source string, id ID) {
	d.r = r
	d.source = source
	d.id = id
}

// Next returns the next mantissa.
func (d *DecimalDecoder) Next() (decimal.Int128, error) {
	var (
		lo, hi uint64
		shift  uint
	)
	for group := 0; ; group++ {
		b, err := d.r.ReadByte()
		if err == io.EOF && group > 0 {
			return decimal.Int128{}, corruptionf(d.source, d.id, "decimal mantissa truncated mid-varint")
		} else if err != nil {
			return decimal.Int128{}, err
		}
		if group == decimalMaxVarintBytes {
			return decimal.Int128{}, corruptionf(d.source, d.id, "decimal mantissa exceeds %d varint bytes", decimalMaxVarintBytes)
		}

		payload := uint64(b & 0x7f)
		switch {
		case shift < 64:
			lo |= payload << shift
			if shift > 57 && payload>>(64-shift) != 0 {
				hi |= payload >> (64 - shift)
			}
		case shift < 128:
			hi |= payload << (shift - 64)
			if shift > 121 && payload>>(128-shift) != 0 {
				return decimal.Int128{}, corruptionf(d.source, d.id, "decimal mantissa exceeds 128 bits")
			}
		}
		shift += 7

		if b&0x80 == 0 {
			break
		}
	}

	return unzigzag128(hi, lo), nil
}

// NextN fills p[:count] with the next count mantissas.
func (d *DecimalDecoder) NextN(p []decimal.Int128, count int) error {
	for i := 0; i < count; i++ {
		v, err := d.Next()
		if err != nil {
			return err
		}
		p[i] = v
	}
	return nil
}

// Skip discards n mantissas without assembling them.
func (d *DecimalDecoder) Skip(n int) error {
	for skipped := 0; skipped < n; {
		b, err := d.r.ReadByte()
		if err == io.EOF {
			return corruptionf(d.source, d.id, "decimal stream truncated while skipping")
		} else if err != nil {
			return err
		}
		if b&0x80 == 0 {
			skipped++
		}
	}
	return nil
}

func unzigzag128(hi, lo uint64) decimal.Int128 {
	var mask uint64
	if lo&1 == 1 {
		mask = ^uint64(0)
	}
	shiftedLo := lo>>1 | hi<<63
	shiftedHi := hi >> 1
	return decimal.Int128{
		Hi: int64(shiftedHi ^ mask),
		Lo: shiftedLo ^ mask,
	}
}

// A DecimalEncoder writes 128-bit decimal mantissas.
type DecimalEncoder struct {
	w streamio.Writer
}

// NewDecimalEncoder returns an encoder writing mantissas to w.
func NewDecimalEncoder(w streamio.Writer) *DecimalEncoder {
	return &DecimalEncoder{w: w}
}

// Encode appends one mantissa.
func (e *DecimalEncoder) Encode(v decimal.Int128) error {
	hi, lo := zigzag128(v)
	for {
		b := byte(lo & 0x7f)
		lo = lo>>7 | hi<<57
		hi >>= 7
		if lo == 0 && hi == 0 {
			return e.w.WriteByte(b)
		}
		if err := e.w.WriteByte(b | 0x80); err != nil {
			return err
		}
	}
}

// Reset directs future writes to w.
func (e *DecimalEncoder) Reset(w streamio.Writer) { e.w = w }

func zigzag128(v decimal.Int128) (hi, lo uint64) {
	var mask uint64
	if v.Hi < 0 {
		mask = ^uint64(0)
	}
	shiftedLo := v.Lo << 1
	shiftedHi := uint64(v.Hi)<<1 | v.Lo>>63
	return shiftedHi ^ mask, shiftedLo ^ mask
}
