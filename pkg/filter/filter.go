// Package filter defines the predicate objects evaluated during decode.
// A filter is attached to a single column read; the reader calls TestNull for
// NULL rows and the type-specific Test method for everything else, never
// both. Multiple filters on one column carry OR semantics and are combined
// by the reader with a shared position accumulator.
package filter

import (
	"bytes"

	"github.com/opencolumn/stripescan/pkg/decimal"
)

// A Filter decides whether a row is retained. Concrete filters additionally
// implement the typed interface matching their column's physical type;
// readers assert the typed interface once per batch, not per row.
type Filter interface {
	// TestNull reports whether a NULL row is retained.
	TestNull() bool
}

// Typed filter interfaces. A filter attached to a column of the wrong
// physical type is a caller error surfaced when the reader's type assertion
// fails.
type (
	Int64Filter interface {
		Filter
		TestInt64(v int64) bool
	}

	Float64Filter interface {
		Filter
		TestFloat64(v float64) bool
	}

	BoolFilter interface {
		Filter
		TestBool(v bool) bool
	}

	BytesFilter interface {
		Filter
		TestBytes(v []byte) bool
	}

	DecimalFilter interface {
		Filter
		TestDecimal(mantissa decimal.Int128, scale int) bool
	}
)

// Int64Range retains rows whose value lies in [Min, Max].
type Int64Range struct {
	Min, Max  int64
	NullsPass bool
}

func (f Int64Range) TestNull() bool         { return f.NullsPass }
func (f Int64Range) TestInt64(v int64) bool { return v >= f.Min && v <= f.Max }

// Int64In retains rows whose value is one of Values.
type Int64In struct {
	Values    map[int64]struct{}
	NullsPass bool
}

// NewInt64In builds an Int64In from a list of accepted values.
func NewInt64In(values []int64, nullsPass bool) Int64In {
	set := make(map[int64]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return Int64In{Values: set, NullsPass: nullsPass}
}

func (f Int64In) TestNull() bool { return f.NullsPass }
func (f Int64In) TestInt64(v int64) bool {
	_, ok := f.Values[v]
	return ok
}

// Float64Range retains rows whose value lies in [Min, Max]. NaN never passes
// a range.
type Float64Range struct {
	Min, Max  float64
	NullsPass bool
}

func (f Float64Range) TestNull() bool             { return f.NullsPass }
func (f Float64Range) TestFloat64(v float64) bool { return v >= f.Min && v <= f.Max }

// BoolValue retains rows matching Value.
type BoolValue struct {
	Value     bool
	NullsPass bool
}

func (f BoolValue) TestNull() bool       { return f.NullsPass }
func (f BoolValue) TestBool(v bool) bool { return v == f.Value }

// BytesRange retains rows whose value lies in [Lower, Upper]. A nil bound is
// unbounded on that side.
type BytesRange struct {
	Lower, Upper []byte
	NullsPass    bool
}

func (f BytesRange) TestNull() bool { return f.NullsPass }
func (f BytesRange) TestBytes(v []byte) bool {
	if f.Lower != nil && bytes.Compare(v, f.Lower) < 0 {
		return false
	}
	if f.Upper != nil && bytes.Compare(v, f.Upper) > 0 {
		return false
	}
	return true
}

// BytesPrefix retains rows whose value starts with Prefix.
type BytesPrefix struct {
	Prefix    []byte
	NullsPass bool
}

func (f BytesPrefix) TestNull() bool          { return f.NullsPass }
func (f BytesPrefix) TestBytes(v []byte) bool { return bytes.HasPrefix(v, f.Prefix) }

// BytesIn retains rows whose value is one of the accepted byte strings.
type BytesIn struct {
	Values    map[string]struct{}
	NullsPass bool
}

// NewBytesIn builds a BytesIn from a list of accepted values.
func NewBytesIn(values [][]byte, nullsPass bool) BytesIn {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[string(v)] = struct{}{}
	}
	return BytesIn{Values: set, NullsPass: nullsPass}
}

func (f BytesIn) TestNull() bool { return f.NullsPass }
func (f BytesIn) TestBytes(v []byte) bool {
	_, ok := f.Values[string(v)]
	return ok
}

// DecimalRange retains rows whose mantissa lies in [Min, Max]. Both bounds
// and the tested value must share the column's scale.
type DecimalRange struct {
	Min, Max  decimal.Int128
	NullsPass bool
}

func (f DecimalRange) TestNull() bool { return f.NullsPass }
func (f DecimalRange) TestDecimal(mantissa decimal.Int128, _ int) bool {
	return mantissa.Cmp(f.Min) >= 0 && mantissa.Cmp(f.Max) <= 0
}

// IsNull retains only NULL rows.
type IsNull struct{}

func (IsNull) TestNull() bool { return true }

func (IsNull) TestInt64(int64) bool                 { return false }
func (IsNull) TestFloat64(float64) bool             { return false }
func (IsNull) TestBool(bool) bool                   { return false }
func (IsNull) TestBytes([]byte) bool                { return false }
func (IsNull) TestDecimal(decimal.Int128, int) bool { return false }

// IsNotNull retains only non-NULL rows.
type IsNotNull struct{}

func (IsNotNull) TestNull() bool { return false }

func (IsNotNull) TestInt64(int64) bool                 { return true }
func (IsNotNull) TestFloat64(float64) bool             { return true }
func (IsNotNull) TestBool(bool) bool                   { return true }
func (IsNotNull) TestBytes([]byte) bool                { return true }
func (IsNotNull) TestDecimal(decimal.Int128, int) bool { return true }
