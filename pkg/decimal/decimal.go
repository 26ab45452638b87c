// Package decimal provides the 128-bit fixed-point representation used by
// decimal columns. A decimal value is an unscaled 128-bit integer mantissa
// paired with a scale; mantissas that fit 64 bits take the short form and
// stay in plain int64 arithmetic.
package decimal

import (
	"math/big"
	"strings"
)

// An Int128 is a signed 128-bit integer in two's complement, split into a
// high signed word and a low unsigned word.
type Int128 struct {
	Hi int64
	Lo uint64
}

// FromInt64 returns v widened to 128 bits.
func FromInt64(v int64) Int128 {
	var hi int64
	if v < 0 {
		hi = -1
	}
	return Int128{Hi: hi, Lo: uint64(v)}
}

// IsInt64 reports whether x fits in an int64. Values that fit take the short
// decimal path.
func (x Int128) IsInt64() bool {
	return x.Hi == int64(x.Lo)>>63
}

// Int64 returns x as an int64, truncating the high word. Callers check
// IsInt64 first.
func (x Int128) Int64() int64 {
	return int64(x.Lo)
}

// Sign returns -1, 0 or 1 depending on the sign of x.
func (x Int128) Sign() int {
	if x.Hi < 0 {
		return -1
	}
	if x.Hi == 0 && x.Lo == 0 {
		return 0
	}
	return 1
}

// Cmp returns -1 if x<y, 0 if x==y, or 1 if x>y.
func (x Int128) Cmp(y Int128) int {
	switch {
	case x.Hi < y.Hi:
		return -1
	case x.Hi > y.Hi:
		return 1
	case x.Lo < y.Lo:
		return -1
	case x.Lo > y.Lo:
		return 1
	default:
		return 0
	}
}

// Neg returns -x.
func (x Int128) Neg() Int128 {
	lo := ^x.Lo + 1
	hi := ^x.Hi
	if lo == 0 {
		hi++
	}
	return Int128{Hi: hi, Lo: lo}
}

// big returns x as a big.Int. Used only for formatting.
func (x Int128) big() *big.Int {
	neg := x.Hi < 0
	abs := x
	if neg {
		abs = x.Neg()
	}
	v := new(big.Int).SetUint64(uint64(abs.Hi))
	v.Lsh(v, 64)
	v.Or(v, new(big.Int).SetUint64(abs.Lo))
	if neg {
		v.Neg(v)
	}
	return v
}

// String returns the decimal representation of the mantissa.
func (x Int128) String() string {
	if x.IsInt64() {
		return big.NewInt(x.Int64()).String()
	}
	return x.big().String()
}

// Format renders a mantissa at the given scale, such as Format(12345, 2) ==
// "123.45".
func Format(mantissa Int128, scale int) string {
	s := mantissa.String()
	if scale <= 0 {
		return s
	}

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	for len(s) <= scale {
		s = "0" + s
	}
	s = s[:len(s)-scale] + "." + s[len(s)-scale:]
	if neg {
		s = "-" + s
	}
	return s
}
