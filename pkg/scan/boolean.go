package scan

import (
	"github.com/opencolumn/stripescan/internal/util/bitmask"
	"github.com/opencolumn/stripescan/internal/util/slicegrow"
	"github.com/opencolumn/stripescan/pkg/filter"
	"github.com/opencolumn/stripescan/pkg/stream"
	"github.com/opencolumn/stripescan/pkg/stripe"
	"github.com/opencolumn/stripescan/pkg/vector"
)

// BoolReader selectively decodes a boolean column.
type BoolReader struct {
	readerBase

	data        *stream.BitDecoder
	dataMissing bool
	values      []bool
	typedFs     []filter.BoolFilter
}

// NewBoolReader returns a reader for column id.
func NewBoolReader(id int, opts ReaderOptions) *BoolReader {
	return &BoolReader{readerBase: newReaderBase(id, opts)}
}

// StartStripe rebinds the reader to a stripe.
func (r *BoolReader) StartStripe(s *stripe.Stripe) error { return r.startStripe(s) }

// StartRowGroup rebinds the reader to a row group of the current stripe.
func (r *BoolReader) StartRowGroup(rg *stripe.RowGroup) error { return r.startRowGroup(rg) }

func (r *BoolReader) openStreams() error {
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
	if r.data == nil {
		r.data = stream.NewBitDecoder(dr, r.stripe.Source, r.streamID(stream.KindData))
	} else {
		r.data.Reset(dr, r.stripe.Source, r.streamID(stream.KindData))
	}
	return nil
}

// Read decodes the candidate positions and returns how many passed f.
func (r *BoolReader) Read(offset int, positions []int, f filter.Filter) (int, error) {
	skip, empty, err := r.beginRead("Read", offset, positions, r.openStreams)
	if err != nil {
		return 0, err
	}
	if empty {
		r.sc.begin(0)
		r.sc.finish(nil)
		return 0, nil
	}

	var tf filter.BoolFilter
	if f != nil {
		var ok bool
		if tf, ok = f.(filter.BoolFilter); !ok {
			return 0, usagef("Read", "filter %T does not apply to a boolean column", f)
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
			if f == nil || tf.TestNull() {
				out := r.sc.append(pos, true)
				r.values[out] = false
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
		v, err := r.data.NextBit()
		if err != nil {
			return 0, err
		}
		consumed++

		if f == nil || tf.TestBool(v) {
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
func (r *BoolReader) ReadOr(offset int, positions []int, fs []filter.Filter, acc *bitmask.Set) (int, error) {
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
		tf, ok := f.(filter.BoolFilter)
		if !ok {
			return 0, usagef("ReadOr", "filter %T does not apply to a boolean column", f)
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
				r.values[out] = false
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
		v, err := r.data.NextBit()
		if err != nil {
			return 0, err
		}
		consumed++

		retain := acc.Get(pos)
		for i := 0; !retain && i < len(r.typedFs); i++ {
			retain = r.typedFs[i].TestBool(v)
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
func (r *BoolReader) Positions() []int { return r.positions() }

// Block materializes the last read's output.
func (r *BoolReader) Block(positions []int) (vector.Block, error) {
	if !r.sc.valid {
		return nil, usagef("Block", "no read output pending")
	}
	n := len(positions)
	if n > r.sc.count {
		return nil, usagef("Block", "%d positions requested, %d retained", n, r.sc.count)
	}

	if r.sc.allNull {
		r.sc.valid = false
		return vector.AllNull(vector.TypeBool, n), nil
	}

	if n == r.sc.count {
		blk := &vector.BoolBlock{Values: r.values[:n], Nulls: r.sc.takeNulls()}
		r.values = nil
		r.sc.valid = false
		r.report(0)
		r.opts.Metrics.observeBlock(int64(n))
		return blk, nil
	}

	idx, err := r.sc.subsetIndexes(positions)
	if err != nil {
		return nil, err
	}
	values := make([]bool, n)
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
	r.opts.Metrics.observeBlock(int64(n))
	return &vector.BoolBlock{Values: values, Nulls: nulls}, nil
}

// RetainedBytes reports the reader's buffer footprint.
func (r *BoolReader) RetainedBytes() int64 {
	return r.sc.bytes() + int64(cap(r.values))
}

// Close releases the reader's buffers.
func (r *BoolReader) Close() error {
	r.values = nil
	r.data = nil
	r.close()
	return nil
}

func (r *BoolReader) growOutput(n int) {
	grew := r.sc.begin(n)
	if cap(r.values) < n {
		r.values = slicegrow.GrowToCap(r.values, n)
		grew = true
	}
	r.values = r.values[:n]
	if grew {
		r.report(int64(cap(r.values)))
	}
}
