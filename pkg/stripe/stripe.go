// Package stripe models the on-disk layout the scan engine reads: stripes of
// named streams keyed by (column, kind), divided into row groups with
// per-stream checkpoints. It also provides the write side used to produce
// stripes, and the stripe-scoped dictionary table shared by
// dictionary-encoded columns.
package stripe

import (
	"fmt"

	"github.com/opencolumn/stripescan/pkg/stream"
)

// Encoding describes how a column's DATA stream is encoded.
type Encoding int

const (
	// EncodingDirect stores values inline: run-length integers, IEEE
	// doubles, packed bits, varint decimal mantissas, or raw bytes sliced by
	// a LENGTH stream.
	EncodingDirect Encoding = iota

	// EncodingIntBlock stores int64 values as intcomp-compressed blocks.
	EncodingIntBlock

	// EncodingDictionary stores byte-string values as integer indexes into a
	// stripe-scoped dictionary.
	EncodingDictionary
)

// String returns the name of the encoding.
func (e Encoding) String() string {
	switch e {
	case EncodingDirect:
		return "DIRECT"
	case EncodingIntBlock:
		return "INT_BLOCK"
	case EncodingDictionary:
		return "DICTIONARY"
	default:
		return fmt.Sprintf("Encoding(%d)", int(e))
	}
}

// A StreamData holds one encoded stream plus the checkpoints readers use to
// seek to a row-group boundary. Checkpoints[i] is the position of the first
// byte of row group i.
type StreamData struct {
	Data        []byte
	Checkpoints []stream.Checkpoint
}

// A Column describes one column within a stripe.
type Column struct {
	ID       int
	Encoding Encoding
	Scale    int // Decimal columns only.
	DictLen  int // Dictionary entries; dictionary encoding only.
	Stats    *Stats

	Streams map[stream.Kind]*StreamData
}

// A Stripe is a self-contained horizontal slice of a dataset: a set of
// columns over the same rows, with shared compression settings. All streams
// of a stripe use one codec and chunk size.
type Stripe struct {
	Source       string // Identifier of the backing source, used in errors.
	Codec        stream.Codec
	ChunkSize    int
	Rows         int
	RowGroupRows int // Rows per row group; the last group may be short.

	Columns map[int]*Column
}

// RowGroups returns the number of row groups in the stripe.
func (s *Stripe) RowGroups() int {
	if s.Rows == 0 {
		return 0
	}
	return (s.Rows + s.RowGroupRows - 1) / s.RowGroupRows
}

// RowGroup returns a view of row group index. A row group with zero rows is
// legal; reads against it return immediately.
func (s *Stripe) RowGroup(index int) (*RowGroup, error) {
	if index < 0 || index >= s.RowGroups() {
		return nil, fmt.Errorf("row group %d out of range [0, %d)", index, s.RowGroups())
	}
	rows := s.RowGroupRows
	if last := s.Rows - index*s.RowGroupRows; last < rows {
		rows = last
	}
	return &RowGroup{Stripe: s, Index: index, Rows: rows}, nil
}

// Column returns the column with the given id. A missing column is a
// corruption-level inconsistency between the directory and the caller's
// schema.
func (s *Stripe) Column(id int) (*Column, error) {
	col, ok := s.Columns[id]
	if !ok {
		return nil, fmt.Errorf("stripe %q has no column %d", s.Source, id)
	}
	return col, nil
}

// OpenStream returns a chunk reader over the given stream, or ok=false when
// the column has no stream of that kind (a legal state: an absent PRESENT
// stream means no NULLs, an absent DATA stream means no non-NULL values).
func (s *Stripe) OpenStream(columnID int, kind stream.Kind) (*stream.ChunkReader, bool) {
	col, ok := s.Columns[columnID]
	if !ok {
		return nil, false
	}
	sd, ok := col.Streams[kind]
	if !ok {
		return nil, false
	}
	id := stream.ID{Column: columnID, Kind: kind}
	return stream.NewChunkReader(s.Source, id, s.Codec, sd.Data, s.ChunkSize), true
}

// A RowGroup is a view of one row group within a stripe.
type RowGroup struct {
	Stripe *Stripe
	Index  int
	Rows   int
}

// Checkpoint returns the seek position of this row group within the given
// stream. ok is false when the column has no stream of that kind.
func (g *RowGroup) Checkpoint(columnID int, kind stream.Kind) (stream.Checkpoint, bool) {
	col, ok := g.Stripe.Columns[columnID]
	if !ok {
		return stream.Checkpoint{}, false
	}
	sd, ok := col.Streams[kind]
	if !ok {
		return stream.Checkpoint{}, false
	}
	if g.Index >= len(sd.Checkpoints) {
		return stream.Checkpoint{}, false
	}
	return sd.Checkpoints[g.Index], true
}
