package vector

import "github.com/opencolumn/stripescan/pkg/decimal"

// A Dict is an immutable table of byte-string entries shared by dictionary
// blocks. Entry i spans Data[Offsets[i]:Offsets[i+1]]; Offsets has one more
// entry than the dictionary has strings.
//
// Dicts are built once per stripe and shared read-only by every reader and
// block that references the stripe's dictionary stream.
type Dict struct {
	Data    []byte
	Offsets []int32
}

// Len returns the number of entries.
func (d *Dict) Len() int { return len(d.Offsets) - 1 }

// Value returns entry i. The returned slice aliases the dictionary.
func (d *Dict) Value(i int) []byte {
	return d.Data[d.Offsets[i]:d.Offsets[i+1]]
}

// A DictionaryBlock represents byte-string values as indexes into a shared
// [Dict]. The dictionary-vs-direct choice made while writing is preserved
// through the scan; expanding a dictionary block into a direct [BytesBlock]
// is a downstream decision.
type DictionaryBlock struct {
	Dict    *Dict
	Indexes []int32
	Nulls   []bool
}

func (b *DictionaryBlock) Len() int   { return len(b.Indexes) }
func (b *DictionaryBlock) Type() Type { return TypeBytes }
func (b *DictionaryBlock) IsNull(i int) bool {
	return b.Nulls != nil && b.Nulls[i]
}

// Value returns value i by dictionary lookup.
func (b *DictionaryBlock) Value(i int) []byte {
	return b.Dict.Value(int(b.Indexes[i]))
}

// A RunLengthBlock repeats a single-row block N times. Readers return it for
// all-NULL batches instead of materializing N null slots.
type RunLengthBlock struct {
	Value Block // Single-row block.
	N     int
}

func (b *RunLengthBlock) Len() int          { return b.N }
func (b *RunLengthBlock) Type() Type        { return b.Value.Type() }
func (b *RunLengthBlock) IsNull(i int) bool { return b.Value.IsNull(0) }

// AllNull returns a run-length block of n NULL rows of the given type.
func AllNull(t Type, n int) *RunLengthBlock {
	var single Block
	switch t {
	case TypeInt64:
		single = &Int64Block{Values: make([]int64, 1), Nulls: []bool{true}}
	case TypeFloat64:
		single = &Float64Block{Values: make([]float64, 1), Nulls: []bool{true}}
	case TypeBool:
		single = &BoolBlock{Values: make([]bool, 1), Nulls: []bool{true}}
	case TypeBytes:
		single = &BytesBlock{Offsets: []int32{0, 0}, Nulls: []bool{true}}
	case TypeDecimal:
		return AllNullDecimal(0, n)
	}
	return &RunLengthBlock{Value: single, N: n}
}

// AllNullDecimal returns a run-length block of n NULL decimal rows carrying
// the column's scale, which stays meaningful even when every row is NULL.
func AllNullDecimal(scale, n int) *RunLengthBlock {
	single := &DecimalBlock{
		Mantissas: make([]decimal.Int128, 1),
		Scale:     scale,
		Nulls:     []bool{true},
	}
	return &RunLengthBlock{Value: single, N: n}
}
