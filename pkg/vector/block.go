// Package vector holds the in-memory columnar blocks handed to downstream
// batch operators. Blocks are immutable once returned from a reader; the
// reader gives up its buffers on handoff rather than sharing them.
package vector

import (
	"fmt"

	"github.com/opencolumn/stripescan/pkg/decimal"
)

// Type enumerates the physical representations a block can carry.
type Type int

const (
	TypeInt64 Type = iota
	TypeFloat64
	TypeBool
	TypeBytes
	TypeDecimal
)

// String returns the name of the block type.
func (t Type) String() string {
	switch t {
	case TypeInt64:
		return "int64"
	case TypeFloat64:
		return "float64"
	case TypeBool:
		return "bool"
	case TypeBytes:
		return "bytes"
	case TypeDecimal:
		return "decimal"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// A Block is a dense columnar vector. Positions [0, Len) are valid; a nil
// nulls mask means the block has no NULL rows.
type Block interface {
	Len() int
	IsNull(i int) bool
	Type() Type
}

// Int64Block holds int64 values.
type Int64Block struct {
	Values []int64
	Nulls  []bool // nil when no rows are NULL.
}

func (b *Int64Block) Len() int { return len(b.Values) }
func (b *Int64Block) Type() Type { return TypeInt64 }
func (b *Int64Block) IsNull(i int) bool {
	return b.Nulls != nil && b.Nulls[i]
}

// Float64Block holds float64 values.
type Float64Block struct {
	Values []float64
	Nulls  []bool
}

func (b *Float64Block) Len() int { return len(b.Values) }
func (b *Float64Block) Type() Type { return TypeFloat64 }
func (b *Float64Block) IsNull(i int) bool {
	return b.Nulls != nil && b.Nulls[i]
}

// BoolBlock holds boolean values.
type BoolBlock struct {
	Values []bool
	Nulls  []bool
}

func (b *BoolBlock) Len() int { return len(b.Values) }
func (b *BoolBlock) Type() Type { return TypeBool }
func (b *BoolBlock) IsNull(i int) bool {
	return b.Nulls != nil && b.Nulls[i]
}

// BytesBlock holds variable-width values in one flat buffer. Value i spans
// Data[Offsets[i]:Offsets[i+1]]; Offsets has Len+1 entries.
type BytesBlock struct {
	Data    []byte
	Offsets []int32
	Nulls   []bool
}

func (b *BytesBlock) Len() int { return len(b.Offsets) - 1 }
func (b *BytesBlock) Type() Type { return TypeBytes }
func (b *BytesBlock) IsNull(i int) bool {
	return b.Nulls != nil && b.Nulls[i]
}

// Value returns value i. The returned slice aliases the block.
func (b *BytesBlock) Value(i int) []byte {
	return b.Data[b.Offsets[i]:b.Offsets[i+1]]
}

// DecimalBlock holds decimal mantissas at a single column-wide scale.
type DecimalBlock struct {
	Mantissas []decimal.Int128
	Scale     int
	Nulls     []bool
}

func (b *DecimalBlock) Len() int { return len(b.Mantissas) }
func (b *DecimalBlock) Type() Type { return TypeDecimal }
func (b *DecimalBlock) IsNull(i int) bool {
	return b.Nulls != nil && b.Nulls[i]
}
