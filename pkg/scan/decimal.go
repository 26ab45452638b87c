package scan

import (
	"github.com/opencolumn/stripescan/internal/util/bitmask"
	"github.com/opencolumn/stripescan/internal/util/slicegrow"
	"github.com/opencolumn/stripescan/pkg/decimal"
	"github.com/opencolumn/stripescan/pkg/filter"
	"github.com/opencolumn/stripescan/pkg/stream"
	"github.com/opencolumn/stripescan/pkg/stripe"
	"github.com/opencolumn/stripescan/pkg/vector"
)

// DecimalReader selectively decodes a decimal column. Mantissas come from
// the DATA stream, per-value scales from SECONDARY; both advance in lockstep
// over the non-null rows.
type DecimalReader struct {
	readerBase

	data        *stream.DecimalDecoder
	scales      *stream.IntDecoder
	dataMissing bool
	scale       int // Column-level scale carried into produced blocks.
	values      []decimal.Int128
	typedFs     []filter.DecimalFilter
}

// NewDecimalReader returns a reader for column id.
func NewDecimalReader(id int, opts ReaderOptions) *DecimalReader {
	return &DecimalReader{readerBase: newReaderBase(id, opts)}
}

// StartStripe rebinds the reader to a stripe.
func (r *DecimalReader) StartStripe(s *stripe.Stripe) error { return r.startStripe(s) }

// StartRowGroup rebinds the reader to a row group of the current stripe.
func (r *DecimalReader) StartRowGroup(rg *stripe.RowGroup) error { return r.startRowGroup(rg) }

func (r *DecimalReader) openStreams() error {
	col, err := r.stripe.Column(r.columnID)
	if err != nil {
		return err
	}
	r.scale = col.Scale

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
		r.scales = nil
		return nil
	}
	if r.data == nil {
		r.data = stream.NewDecimalDecoder(dr, r.stripe.Source, r.streamID(stream.KindData))
	} else {
		r.data.Reset(dr, r.stripe.Source, r.streamID(stream.KindData))
	}

	sr, ok, err := r.openColumnStream(stream.KindSecondary)
	if err != nil {
		return err
	}
	if !ok {
		return &stream.CorruptionError{
			Source: r.stripe.Source,
			Stream: r.streamID(stream.KindSecondary),
			Msg:    "decimal column has a DATA stream but no SECONDARY stream",
		}
	}
	if r.scales == nil {
		r.scales = stream.NewIntDecoder(sr, true, r.stripe.Source, r.streamID(stream.KindSecondary))
	} else {
		r.scales.Reset(sr, r.stripe.Source, r.streamID(stream.KindSecondary))
	}
	return nil
}

func (r *DecimalReader) skipData(n int) error {
	if err := r.data.Skip(n); err != nil {
		return err
	}
	return r.scales.Skip(n)
}

// Read decodes the candidate positions and returns how many passed f.
func (r *DecimalReader) Read(offset int, positions []int, f filter.Filter) (int, error) {
	skip, empty, err := r.beginRead("Read", offset, positions, r.openStreams)
	if err != nil {
		return 0, err
	}
	if empty {
		r.sc.begin(0)
		r.sc.finish(nil)
		return 0, nil
	}

	var tf filter.DecimalFilter
	if f != nil {
		var ok bool
		if tf, ok = f.(filter.DecimalFilter); !ok {
			return 0, usagef("Read", "filter %T does not apply to a decimal column", f)
		}
	}

	if r.dataMissing {
		n, err := r.missingDataRead(offset, positions, func() int { return r.allNullRead(positions, f) })
		r.opts.Metrics.observeRead(len(positions), n)
		return n, err
	}
	if skip > 0 {
		if err := r.skipData(skip); err != nil {
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
				r.values[out] = decimal.Int128{}
			}
			continue
		}

		if pending > 0 {
			if err := r.skipData(pending); err != nil {
				return 0, err
			}
			consumed += pending
			pending = 0
		}
		mantissa, err := r.data.Next()
		if err != nil {
			return 0, err
		}
		scale, err := r.scales.Next()
		if err != nil {
			return 0, err
		}
		consumed++

		if f == nil || tf.TestDecimal(mantissa, int(scale)) {
			out := r.sc.append(pos, false)
			r.values[out] = mantissa
		}
	}
	if err := r.skipTail(span, nullCount, consumed, r.skipData); err != nil {
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
func (r *DecimalReader) ReadOr(offset int, positions []int, fs []filter.Filter, acc *bitmask.Set) (int, error) {
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
		tf, ok := f.(filter.DecimalFilter)
		if !ok {
			return 0, usagef("ReadOr", "filter %T does not apply to a decimal column", f)
		}
		r.typedFs = append(r.typedFs, tf)
	}

	if r.dataMissing {
		n, err := r.missingDataRead(offset, positions, func() int { return r.allNullReadOr(positions, fs, acc) })
		r.opts.Metrics.observeRead(len(positions), n)
		return n, err
	}
	if skip > 0 {
		if err := r.skipData(skip); err != nil {
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
				r.values[out] = decimal.Int128{}
			}
			continue
		}

		if pending > 0 {
			if err := r.skipData(pending); err != nil {
				return 0, err
			}
			consumed += pending
			pending = 0
		}
		mantissa, err := r.data.Next()
		if err != nil {
			return 0, err
		}
		scale, err := r.scales.Next()
		if err != nil {
			return 0, err
		}
		consumed++

		retain := acc.Get(pos)
		for i := 0; !retain && i < len(r.typedFs); i++ {
			retain = r.typedFs[i].TestDecimal(mantissa, int(scale))
		}
		if retain {
			acc.Set(pos)
			out := r.sc.append(pos, false)
			r.values[out] = mantissa
		}
	}
	if err := r.skipTail(span, nullCount, consumed, r.skipData); err != nil {
		return 0, err
	}

	r.sc.finish(nil)
	r.opts.Metrics.observeRead(len(positions), r.sc.count)
	return r.sc.count, nil
}

// Positions returns the retained positions of the last read.
func (r *DecimalReader) Positions() []int { return r.positions() }

// Block materializes the last read's output.
func (r *DecimalReader) Block(positions []int) (vector.Block, error) {
	if !r.sc.valid {
		return nil, usagef("Block", "no read output pending")
	}
	n := len(positions)
	if n > r.sc.count {
		return nil, usagef("Block", "%d positions requested, %d retained", n, r.sc.count)
	}

	if r.sc.allNull {
		r.sc.valid = false
		return vector.AllNullDecimal(r.scale, n), nil
	}

	if n == r.sc.count {
		blk := &vector.DecimalBlock{Mantissas: r.values[:n], Scale: r.scale, Nulls: r.sc.takeNulls()}
		r.values = nil
		r.sc.valid = false
		r.report(0)
		r.opts.Metrics.observeBlock(int64(n) * 16)
		return blk, nil
	}

	idx, err := r.sc.subsetIndexes(positions)
	if err != nil {
		return nil, err
	}
	values := make([]decimal.Int128, n)
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
	r.opts.Metrics.observeBlock(int64(n) * 16)
	return &vector.DecimalBlock{Mantissas: values, Scale: r.scale, Nulls: nulls}, nil
}

// RetainedBytes reports the reader's buffer footprint.
func (r *DecimalReader) RetainedBytes() int64 {
	return r.sc.bytes() + int64(cap(r.values))*16
}

// Close releases the reader's buffers.
func (r *DecimalReader) Close() error {
	r.values = nil
	r.data = nil
	r.scales = nil
	r.close()
	return nil
}

func (r *DecimalReader) growOutput(n int) {
	grew := r.sc.begin(n)
	if cap(r.values) < n {
		r.values = slicegrow.GrowToCap(r.values, n)
		grew = true
	}
	r.values = r.values[:n]
	if grew {
		r.report(int64(cap(r.values)) * 16)
	}
}
