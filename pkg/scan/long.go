package scan

import (
	"github.com/opencolumn/stripescan/internal/util/bitmask"
	"github.com/opencolumn/stripescan/internal/util/slicegrow"
	"github.com/opencolumn/stripescan/pkg/filter"
	"github.com/opencolumn/stripescan/pkg/stream"
	"github.com/opencolumn/stripescan/pkg/stripe"
	"github.com/opencolumn/stripescan/pkg/vector"
)

// int64Decoder is satisfied by both encodings an int64 column may carry.
type int64Decoder interface {
	Next() (int64, error)
	Skip(n int) error
}

// Int64Reader selectively decodes an int64 column.
type Int64Reader struct {
	readerBase

	data        int64Decoder
	dataMissing bool
	values      []int64
	typedFs     []filter.Int64Filter
}

// NewInt64Reader returns a reader for column id.
func NewInt64Reader(id int, opts ReaderOptions) *Int64Reader {
	return &Int64Reader{readerBase: newReaderBase(id, opts)}
}

// StartStripe rebinds the reader to a stripe.
func (r *Int64Reader) StartStripe(s *stripe.Stripe) error { return r.startStripe(s) }

// StartRowGroup rebinds the reader to a row group of the current stripe.
func (r *Int64Reader) StartRowGroup(rg *stripe.RowGroup) error { return r.startRowGroup(rg) }

func (r *Int64Reader) openStreams() error {
	pr, _, err := r.openColumnStream(stream.KindPresent)
	if err != nil {
		return err
	}
	r.presence.reset(pr, r.stripe.Source, r.streamID(stream.KindPresent))

	dr, ok, err := r.openColumnStream(stream.KindData)
	if err != nil {
		return err
	}
	r.dataMissing = !ok
	if !ok {
		r.data = nil
		return nil
	}

	col, err := r.stripe.Column(r.columnID)
	if err != nil {
		return err
	}
	switch col.Encoding {
	case stripe.EncodingDirect:
		r.data = stream.NewIntDecoder(dr, true, r.stripe.Source, r.streamID(stream.KindData))
	case stripe.EncodingIntBlock:
		r.data = stream.NewIntBlockDecoder(dr, r.stripe.Source, r.streamID(stream.KindData))
	default:
		return &stream.CorruptionError{
			Source: r.stripe.Source,
			Stream: r.streamID(stream.KindData),
			Msg:    "unsupported encoding " + col.Encoding.String() + " for int64 column",
		}
	}
	return nil
}

// Read decodes the candidate positions and returns how many passed f.
func (r *Int64Reader) Read(offset int, positions []int, f filter.Filter) (int, error) {
	skip, empty, err := r.beginRead("Read", offset, positions, r.openStreams)
	if err != nil {
		return 0, err
	}
	if empty {
		r.sc.begin(0)
		r.sc.finish(nil)
		return 0, nil
	}

	var tf filter.Int64Filter
	if f != nil {
		var ok bool
		if tf, ok = f.(filter.Int64Filter); !ok {
			return 0, usagef("Read", "filter %T does not apply to an int64 column", f)
		}
	}

	if r.dataMissing {
		n, err := r.missingDataRead(offset, positions, func() int { return r.allNullRead(positions, f) })
		r.opts.Metrics.observeRead(len(positions), n)
		return n, err
	}
	if skip > 0 {
		if err := r.data.Skip(skip); err != nil {
			return 0, err
		}
	}

	span, nullCount, err := r.decodeSpan(offset, positions)
	if err != nil {
		return 0, err
	}
	if nullCount == span {
		n := r.allNullRead(positions, f)
		r.opts.Metrics.observeRead(len(positions), n)
		return n, nil
	}

	r.growOutput(len(positions))

	var (
		row      int // Next row of the span not yet accounted for.
		pending  int // Data values to skip before the next decode.
		consumed int // Data values decoded or skipped within the span.
	)
	for _, pos := range positions {
		for row < pos {
			if !r.sc.rowNulls[row] {
				pending++
			}
			row++
		}
		row = pos + 1

		if r.sc.rowNulls[pos] {
			if f == nil || tf.TestNull() {
				out := r.sc.append(pos, true)
				r.values[out] = 0
			}
			continue
		}

		if pending > 0 {
			if err := r.data.Skip(pending); err != nil {
				return 0, err
			}
			consumed += pending
			pending = 0
		}
		v, err := r.data.Next()
		if err != nil {
			return 0, err
		}
		consumed++

		if f == nil || tf.TestInt64(v) {
			out := r.sc.append(pos, false)
			r.values[out] = v
		}
	}
	if err := r.skipTail(span, nullCount, consumed, r.data.Skip); err != nil {
		return 0, err
	}

	if f == nil {
		r.sc.finish(positions)
	} else {
		r.sc.finish(nil)
	}
	r.opts.Metrics.observeRead(len(positions), r.sc.count)
	return r.sc.count, nil
}

// ReadOr evaluates a disjunction of filters sharing this column.
func (r *Int64Reader) ReadOr(offset int, positions []int, fs []filter.Filter, acc *bitmask.Set) (int, error) {
	skip, empty, err := r.beginRead("ReadOr", offset, positions, r.openStreams)
	if err != nil {
		return 0, err
	}
	if empty {
		r.sc.begin(0)
		r.sc.finish(nil)
		return 0, nil
	}

	r.typedFs = r.typedFs[:0]
	for _, f := range fs {
		tf, ok := f.(filter.Int64Filter)
		if !ok {
			return 0, usagef("ReadOr", "filter %T does not apply to an int64 column", f)
		}
		r.typedFs = append(r.typedFs, tf)
	}

	if r.dataMissing {
		n, err := r.missingDataRead(offset, positions, func() int { return r.allNullReadOr(positions, fs, acc) })
		r.opts.Metrics.observeRead(len(positions), n)
		return n, err
	}
	if skip > 0 {
		if err := r.data.Skip(skip); err != nil {
			return 0, err
		}
	}

	span, nullCount, err := r.decodeSpan(offset, positions)
	if err != nil {
		return 0, err
	}
	if nullCount == span {
		n := r.allNullReadOr(positions, fs, acc)
		r.opts.Metrics.observeRead(len(positions), n)
		return n, nil
	}

	r.growOutput(len(positions))
	nullsPass := orNullsPass(fs)

	var row, pending, consumed int
	for _, pos := range positions {
		for row < pos {
			if !r.sc.rowNulls[row] {
				pending++
			}
			row++
		}
		row = pos + 1

		if r.sc.rowNulls[pos] {
			if nullsPass || acc.Get(pos) {
				acc.Set(pos)
				out := r.sc.append(pos, true)
				r.values[out] = 0
			}
			continue
		}

		if pending > 0 {
			if err := r.data.Skip(pending); err != nil {
				return 0, err
			}
			consumed += pending
			pending = 0
		}
		v, err := r.data.Next()
		if err != nil {
			return 0, err
		}
		consumed++

		retain := acc.Get(pos)
		for i := 0; !retain && i < len(r.typedFs); i++ {
			retain = r.typedFs[i].TestInt64(v)
		}
		if retain {
			acc.Set(pos)
			out := r.sc.append(pos, false)
			r.values[out] = v
		}
	}
	if err := r.skipTail(span, nullCount, consumed, r.data.Skip); err != nil {
		return 0, err
	}

	r.sc.finish(nil)
	r.opts.Metrics.observeRead(len(positions), r.sc.count)
	return r.sc.count, nil
}

// Positions returns the retained positions of the last read.
func (r *Int64Reader) Positions() []int { return r.positions() }

// Block materializes the last read's output.
func (r *Int64Reader) Block(positions []int) (vector.Block, error) {
	if !r.sc.valid {
		return nil, usagef("Block", "no read output pending")
	}
	n := len(positions)
	if n > r.sc.count {
		return nil, usagef("Block", "%d positions requested, %d retained", n, r.sc.count)
	}

	if r.sc.allNull {
		r.sc.valid = false
		return vector.AllNull(vector.TypeInt64, n), nil
	}

	if n == r.sc.count {
		blk := &vector.Int64Block{Values: r.values[:n], Nulls: r.sc.takeNulls()}
		r.values = nil
		r.sc.valid = false
		r.report(0)
		r.opts.Metrics.observeBlock(int64(n) * 8)
		return blk, nil
	}

	idx, err := r.sc.subsetIndexes(positions)
	if err != nil {
		return nil, err
	}
	values := make([]int64, n)
	var nulls []bool
	for i, j := range idx {
		values[i] = r.values[j]
		if r.sc.nulls[j] {
			if nulls == nil {
				nulls = make([]bool, n)
			}
			nulls[i] = true
		}
	}
	r.sc.valid = false
	r.opts.Metrics.observeBlock(int64(n) * 8)
	return &vector.Int64Block{Values: values, Nulls: nulls}, nil
}

// RetainedBytes reports the reader's buffer footprint.
func (r *Int64Reader) RetainedBytes() int64 {
	return r.sc.bytes() + int64(cap(r.values))*8
}

// Close releases the reader's buffers.
func (r *Int64Reader) Close() error {
	r.values = nil
	r.data = nil
	r.close()
	return nil
}

func (r *Int64Reader) growOutput(n int) {
	grew := r.sc.begin(n)
	if cap(r.values) < n {
		r.values = slicegrow.GrowToCap(r.values, n)
		grew = true
	}
	r.values = r.values[:n]
	if grew {
		r.report(int64(cap(r.values)) * 8)
	}
}
