package scan

import (
	"github.com/opencolumn/stripescan/internal/util/bitmask"
	"github.com/opencolumn/stripescan/internal/util/slicegrow"
	"github.com/opencolumn/stripescan/pkg/filter"
	"github.com/opencolumn/stripescan/pkg/stream"
	"github.com/opencolumn/stripescan/pkg/stripe"
	"github.com/opencolumn/stripescan/pkg/vector"
)

// BytesReader selectively decodes a byte-string column. Direct-encoded
// stripes slice the DATA stream by LENGTH; dictionary-encoded stripes decode
// indexes into the stripe dictionary, and produced blocks stay
// dictionary-encoded rather than being expanded.
//
// The payload of a single batch is bounded by ReaderOptions.MaxBatchBytes;
// exceeding it fails the read before the oversized allocation happens.
type BytesReader struct {
	readerBase

	// Direct encoding.
	data    *stream.BytesDecoder
	buf     []byte  // Flat value payload of the current batch.
	bufLen  int
	offsets []int32 // Value boundaries in buf; count+1 entries.

	// Dictionary encoding.
	dict    *vector.Dict // Borrowed from the stripe cache, read-only.
	indexes []int32
	idxDec  *stream.IntDecoder

	dataMissing bool
	typedFs     []filter.BytesFilter
}

// NewBytesReader returns a reader for column id.
func NewBytesReader(id int, opts ReaderOptions) *BytesReader {
	return &BytesReader{readerBase: newReaderBase(id, opts)}
}

// StartStripe rebinds the reader to a stripe and loads the stripe dictionary
// for dictionary-encoded columns.
func (r *BytesReader) StartStripe(s *stripe.Stripe) error {
	if err := r.startStripe(s); err != nil {
		return err
	}
	col, err := s.Column(r.columnID)
	if err != nil {
		return err
	}

	r.dict = nil
	if col.Encoding == stripe.EncodingDictionary && col.DictLen > 0 {
		if r.opts.Dicts != nil {
			r.dict, err = r.opts.Dicts.Get(s, r.columnID)
		} else {
			r.dict, err = stripe.LoadDictionary(s, r.columnID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// StartRowGroup rebinds the reader to a row group of the current stripe.
func (r *BytesReader) StartRowGroup(rg *stripe.RowGroup) error { return r.startRowGroup(rg) }

func (r *BytesReader) openStreams() error {
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
		r.idxDec = nil
		return nil
	}

	if r.dict != nil {
		if r.idxDec == nil {
			r.idxDec = stream.NewIntDecoder(dr, false, r.stripe.Source, r.streamID(stream.KindData))
		} else {
			r.idxDec.Reset(dr, r.stripe.Source, r.streamID(stream.KindData))
		}
		return nil
	}

	lr, ok, err := r.openColumnStream(stream.KindLength)
	if err != nil {
		return err
	}
	if !ok {
		return &stream.CorruptionError{
			Source: r.stripe.Source,
			Stream: r.streamID(stream.KindLength),
			Msg:    "byte column has a DATA stream but no LENGTH stream",
		}
	}
	lengths := stream.NewIntDecoder(lr, false, r.stripe.Source, r.streamID(stream.KindLength))
	if r.data == nil {
		r.data = stream.NewBytesDecoder(lengths, dr)
	} else {
		r.data.Reset(lengths, dr)
	}
	return nil
}

func (r *BytesReader) skipData(n int) error {
	if r.dict != nil {
		return r.idxDec.Skip(n)
	}
	return r.data.Skip(n)
}

// nextValue decodes the next non-null value. Direct values land at the end
// of the flat batch buffer without advancing it; dictionary values are
// resolved to their entry. keep commits a direct value to the buffer.
func (r *BytesReader) nextValue() (v []byte, dictIdx int32, err error) {
	if r.dict != nil {
		raw, err := r.idxDec.Next()
		if err != nil {
			return nil, 0, err
		}
		if raw < 0 || raw >= int64(r.dict.Len()) {
			return nil, 0, &stream.CorruptionError{
				Source: r.stripe.Source,
				Stream: stream.ID{Column: r.columnID, Kind: stream.KindData},
				Msg:    "dictionary index out of range",
			}
		}
		return r.dict.Value(int(raw)), int32(raw), nil
	}

	length, err := r.data.NextLength()
	if err != nil {
		return nil, 0, err
	}
	need := r.bufLen + length
	if int64(need) > r.opts.MaxBatchBytes {
		return nil, 0, &BatchTooLargeError{
			Column: r.columnID,
			Bytes:  int64(need),
			Limit:  r.opts.MaxBatchBytes,
		}
	}
	if grew := r.growBuf(need); grew {
		r.report(r.valueBytes())
	}
	v = r.buf[r.bufLen:need]
	if err := r.data.ReadInto(v); err != nil {
		return nil, 0, err
	}
	return v, 0, nil
}

// keep commits the value returned by the last nextValue to output slot out.
func (r *BytesReader) keep(out int, v []byte, dictIdx int32) {
	if r.dict != nil {
		r.indexes[out] = dictIdx
		return
	}
	r.bufLen += len(v)
	r.offsets[out+1] = int32(r.bufLen)
}

// keepNull commits a NULL row to output slot out.
func (r *BytesReader) keepNull(out int) {
	if r.dict != nil {
		r.indexes[out] = 0
		return
	}
	r.offsets[out+1] = int32(r.bufLen)
}

// Read decodes the candidate positions and returns how many passed f.
func (r *BytesReader) Read(offset int, positions []int, f filter.Filter) (int, error) {
	skip, empty, err := r.beginRead("Read", offset, positions, r.openStreams)
	if err != nil {
		return 0, err
	}
	if empty {
		r.sc.begin(0)
		r.sc.finish(nil)
		return 0, nil
	}

	var tf filter.BytesFilter
	if f != nil {
		var ok bool
		if tf, ok = f.(filter.BytesFilter); !ok {
			return 0, usagef("Read", "filter %T does not apply to a byte column", f)
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
				r.keepNull(out)
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
		v, dictIdx, err := r.nextValue()
		if err != nil {
			return 0, err
		}
		consumed++

		if f == nil || tf.TestBytes(v) {
			out := r.sc.append(pos, false)
			r.keep(out, v, dictIdx)
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
func (r *BytesReader) ReadOr(offset int, positions []int, fs []filter.Filter, acc *bitmask.Set) (int, error) {
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
		tf, ok := f.(filter.BytesFilter)
		if !ok {
			return 0, usagef("ReadOr", "filter %T does not apply to a byte column", f)
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
				r.keepNull(out)
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
		v, dictIdx, err := r.nextValue()
		if err != nil {
			return 0, err
		}
		consumed++

		retain := acc.Get(pos)
		for i := 0; !retain && i < len(r.typedFs); i++ {
			retain = r.typedFs[i].TestBytes(v)
		}
		if retain {
			acc.Set(pos)
			out := r.sc.append(pos, false)
			r.keep(out, v, dictIdx)
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
func (r *BytesReader) Positions() []int { return r.positions() }

// Block materializes the last read's output, preserving the source column's
// dictionary-vs-direct representation.
func (r *BytesReader) Block(positions []int) (vector.Block, error) {
	if !r.sc.valid {
		return nil, usagef("Block", "no read output pending")
	}
	n := len(positions)
	if n > r.sc.count {
		return nil, usagef("Block", "%d positions requested, %d retained", n, r.sc.count)
	}

	if r.sc.allNull {
		r.sc.valid = false
		return vector.AllNull(vector.TypeBytes, n), nil
	}

	if r.dict != nil {
		return r.dictBlock(positions, n)
	}
	return r.directBlock(positions, n)
}

func (r *BytesReader) dictBlock(positions []int, n int) (vector.Block, error) {
	if n == r.sc.count {
		blk := &vector.DictionaryBlock{Dict: r.dict, Indexes: r.indexes[:n], Nulls: r.sc.takeNulls()}
		r.indexes = nil
		r.sc.valid = false
		r.report(0)
		r.opts.Metrics.observeBlock(int64(n) * 4)
		return blk, nil
	}

	idx, err := r.sc.subsetIndexes(positions)
	if err != nil {
		return nil, err
	}
	indexes := make([]int32, n)
	var nulls []bool
	for i, j := range idx {
		indexes[i] = r.indexes[j]
		if r.sc.nulls[j] {
			if nulls == nil {
				nulls = make([]bool, n)
			}
			nulls[i] = true
		}
	}
	r.sc.valid = false
	r.opts.Metrics.observeBlock(int64(n) * 4)
	return &vector.DictionaryBlock{Dict: r.dict, Indexes: indexes, Nulls: nulls}, nil
}

func (r *BytesReader) directBlock(positions []int, n int) (vector.Block, error) {
	if n == r.sc.count {
		blk := &vector.BytesBlock{
			Data:    r.buf[:r.bufLen],
			Offsets: r.offsets[:n+1],
			Nulls:   r.sc.takeNulls(),
		}
		r.buf = nil
		r.bufLen = 0
		r.offsets = nil
		r.sc.valid = false
		r.report(0)
		r.opts.Metrics.observeBlock(int64(len(blk.Data)))
		return blk, nil
	}

	idx, err := r.sc.subsetIndexes(positions)
	if err != nil {
		return nil, err
	}
	var total int
	for _, j := range idx {
		total += int(r.offsets[j+1] - r.offsets[j])
	}
	data := make([]byte, 0, total)
	offsets := make([]int32, n+1)
	var nulls []bool
	for i, j := range idx {
		data = append(data, r.buf[r.offsets[j]:r.offsets[j+1]]...)
		offsets[i+1] = int32(len(data))
		if r.sc.nulls[j] {
			if nulls == nil {
				nulls = make([]bool, n)
			}
			nulls[i] = true
		}
	}
	r.sc.valid = false
	r.opts.Metrics.observeBlock(int64(len(data)))
	return &vector.BytesBlock{Data: data, Offsets: offsets, Nulls: nulls}, nil
}

// RetainedBytes reports the reader's buffer footprint. The shared stripe
// dictionary is owned by its cache and not counted here.
func (r *BytesReader) RetainedBytes() int64 {
	return r.sc.bytes() + r.valueBytes()
}

// Close releases the reader's buffers.
func (r *BytesReader) Close() error {
	r.buf = nil
	r.offsets = nil
	r.indexes = nil
	r.dict = nil
	r.data = nil
	r.idxDec = nil
	r.close()
	return nil
}

func (r *BytesReader) valueBytes() int64 {
	return int64(cap(r.buf)) + int64(cap(r.offsets))*4 + int64(cap(r.indexes))*4
}

func (r *BytesReader) growOutput(n int) {
	grew := r.sc.begin(n)
	if r.dict != nil {
		if cap(r.indexes) < n {
			r.indexes = slicegrow.GrowToCap(r.indexes, n)
			grew = true
		}
		r.indexes = r.indexes[:n]
	} else {
		if cap(r.offsets) < n+1 {
			r.offsets = slicegrow.GrowToCap(r.offsets, n+1)
			grew = true
		}
		r.offsets = r.offsets[:n+1]
		r.offsets[0] = 0
		r.bufLen = 0
	}
	if grew {
		r.report(r.valueBytes())
	}
}

// growBuf ensures the flat batch buffer can hold need bytes, doubling to
// amortize growth.
func (r *BytesReader) growBuf(need int) bool {
	if cap(r.buf) >= need {
		r.buf = r.buf[:cap(r.buf)]
		return false
	}
	newCap := 2 * cap(r.buf)
	if newCap < need {
		newCap = need
	}
	if int64(newCap) > r.opts.MaxBatchBytes {
		newCap = int(r.opts.MaxBatchBytes)
	}
	r.buf = slicegrow.GrowLen(r.buf, newCap)
	return true
}
