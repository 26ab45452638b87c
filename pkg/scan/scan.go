// Package scan implements selective column readers: decoders that apply
// predicates while decoding a column's streams, producing only the rows that
// pass instead of materializing every row and filtering afterwards.
//
// A reader is bound to one column and driven through a stripe and row-group
// lifecycle by the caller. Within a row group, repeated Read calls advance a
// monotonic cursor; candidate position lists let later columns of a
// conjunction evaluate only the rows earlier columns retained. Readers are
// not safe for concurrent use; parallelism comes from independent readers.
package scan

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/opencolumn/stripescan/internal/util/bitmask"
	"github.com/opencolumn/stripescan/pkg/filter"
	"github.com/opencolumn/stripescan/pkg/memctx"
	"github.com/opencolumn/stripescan/pkg/stream"
	"github.com/opencolumn/stripescan/pkg/stripe"
	"github.com/opencolumn/stripescan/pkg/vector"
)

// DefaultMaxBatchBytes caps the byte payload a single byte-string column
// batch may materialize.
const DefaultMaxBatchBytes = 256 << 20

// ReaderOptions configures column readers. The zero value is usable.
type ReaderOptions struct {
	// Memory receives retained-byte reports. Readers report into a child
	// context after every buffer growth. Defaults to a detached context.
	Memory *memctx.Context

	// Logger records lifecycle transitions at debug level.
	Logger log.Logger

	// Metrics, when set, collects read counters shared across readers.
	Metrics *Metrics

	// Dicts caches stripe dictionaries across readers. When nil,
	// dictionary-encoded columns load their dictionary per reader.
	Dicts *stripe.DictCache

	// MaxBatchBytes bounds the payload of one byte-string batch. Defaults
	// to DefaultMaxBatchBytes.
	MaxBatchBytes int64
}

func (o ReaderOptions) withDefaults() ReaderOptions {
	if o.Memory == nil {
		o.Memory = memctx.New()
	}
	if o.Logger == nil {
		o.Logger = log.NewNopLogger()
	}
	if o.MaxBatchBytes <= 0 {
		o.MaxBatchBytes = DefaultMaxBatchBytes
	}
	return o
}

// A ColumnReader decodes one column selectively.
//
// Calls follow the lifecycle StartStripe, then StartRowGroup per group, then
// Read or ReadOr with monotonically non-decreasing offsets, with Block
// retrieving each batch's output. Close releases buffers; any call after
// Close is a caller error.
type ColumnReader interface {
	// StartStripe rebinds the reader to a stripe. Stripe dictionaries are
	// (re)loaded here, stream opening is deferred to the first read.
	StartStripe(s *stripe.Stripe) error

	// StartRowGroup rebinds the reader to one of the stripe's row groups
	// and resets the read cursor. Streams open lazily on the first read so
	// a pruned row group costs nothing.
	StartRowGroup(rg *stripe.RowGroup) error

	// Read decodes the candidate positions (ascending, relative to offset)
	// and returns how many passed f. A nil f retains everything. If offset
	// is ahead of the cursor the gap is skipped without materializing
	// values.
	Read(offset int, positions []int, f filter.Filter) (int, error)

	// ReadOr evaluates a disjunction: a position already marked in acc is
	// retained unconditionally, otherwise it is retained if any filter in
	// fs accepts it, and acc is updated for the positions retained.
	ReadOr(offset int, positions []int, fs []filter.Filter, acc *bitmask.Set) (int, error)

	// Positions returns the retained positions of the last read. The slice
	// is only valid until the next read.
	Positions() []int

	// Block materializes the last read's output for the given subset of its
	// retained positions. Requesting all of them transfers the internal
	// buffers to the block without copying; a strict subset is compacted
	// into exactly sized copies.
	Block(positions []int) (vector.Block, error)

	// RetainedBytes reports the reader's current buffer footprint.
	RetainedBytes() int64

	// Close releases resources. The reader is unusable afterwards.
	Close() error
}

// New returns a reader for column id of the given physical type.
func New(id int, t vector.Type, opts ReaderOptions) (ColumnReader, error) {
	switch t {
	case vector.TypeInt64:
		return NewInt64Reader(id, opts), nil
	case vector.TypeFloat64:
		return NewFloat64Reader(id, opts), nil
	case vector.TypeBool:
		return NewBoolReader(id, opts), nil
	case vector.TypeDecimal:
		return NewDecimalReader(id, opts), nil
	case vector.TypeBytes:
		return NewBytesReader(id, opts), nil
	}
	return nil, usagef("New", "no reader for type %s", t)
}

type readerState int

const (
	stateUninitialized readerState = iota
	stateStripeBound
	stateRowGroupBound
	stateOpen
	stateClosed
)

// readerBase carries the lifecycle and skip bookkeeping shared by every
// reader type. Typed readers embed it and provide openStreams, skipValues
// and their per-row decode loops.
type readerBase struct {
	columnID int
	opts     ReaderOptions
	logger   log.Logger
	mem      *memctx.Context

	state        readerState
	stripe       *stripe.Stripe
	rowGroup     *stripe.RowGroup
	rowGroupOpen bool
	cursor       int // Rows of the current row group already consumed.

	presence presenceReader
	sc       scratch
}

func newReaderBase(columnID int, opts ReaderOptions) readerBase {
	opts = opts.withDefaults()
	return readerBase{
		columnID: columnID,
		opts:     opts,
		logger:   log.With(opts.Logger, "component", "scan", "column", columnID),
		mem:      opts.Memory.Child(),
	}
}

func (r *readerBase) startStripe(s *stripe.Stripe) error {
	if r.state == stateClosed {
		return usagef("StartStripe", "reader is closed")
	}
	if _, err := s.Column(r.columnID); err != nil {
		return err
	}
	r.stripe = s
	r.rowGroup = nil
	r.cursor = 0
	r.rowGroupOpen = false
	r.state = stateStripeBound
	level.Debug(r.logger).Log("msg", "stripe bound", "source", s.Source, "rows", s.Rows)
	return nil
}

func (r *readerBase) startRowGroup(rg *stripe.RowGroup) error {
	switch r.state {
	case stateClosed:
		return usagef("StartRowGroup", "reader is closed")
	case stateUninitialized:
		return usagef("StartRowGroup", "StartStripe has not been called")
	}
	if rg.Stripe != r.stripe {
		return usagef("StartRowGroup", "row group belongs to a different stripe")
	}
	r.rowGroup = rg
	r.cursor = 0
	r.rowGroupOpen = false
	r.state = stateRowGroupBound
	return nil
}

// openColumnStream opens one of the column's streams positioned at the bound
// row group's checkpoint. ok is false when the column has no such stream,
// which is legal for PRESENT (no NULLs) and DATA (no values).
func (r *readerBase) openColumnStream(kind stream.Kind) (*stream.ChunkReader, bool, error) {
	cr, ok := r.stripe.OpenStream(r.columnID, kind)
	if !ok {
		return nil, false, nil
	}
	if cp, ok := r.rowGroup.Checkpoint(r.columnID, kind); ok {
		if err := cr.SeekTo(cp); err != nil {
			return nil, false, err
		}
	}
	return cr, true, nil
}

// streamID names one of the column's streams, for corruption errors.
func (r *readerBase) streamID(kind stream.Kind) stream.ID {
	return stream.ID{Column: r.columnID, Kind: kind}
}

// beginRead validates a read call and performs the catch-up presence skip
// when offset is ahead of the cursor. It returns the number of data values
// the typed reader must skip, and empty when the batch trivially produces no
// output.
func (r *readerBase) beginRead(op string, offset int, positions []int, open func() error) (skipValues int, empty bool, err error) {
	switch r.state {
	case stateClosed:
		return 0, false, usagef(op, "reader is closed")
	case stateUninitialized, stateStripeBound:
		return 0, false, usagef(op, "StartRowGroup has not been called")
	}
	if err := checkAscending(op, positions); err != nil {
		return 0, false, err
	}

	r.sc.count = 0
	r.sc.valid = false
	if r.rowGroup.Rows == 0 || len(positions) == 0 {
		return 0, true, nil
	}

	if !r.rowGroupOpen {
		if err := open(); err != nil {
			return 0, false, err
		}
		r.rowGroupOpen = true
		r.state = stateOpen
		r.opts.Metrics.observeOpen()
	}

	if gap := offset - r.cursor; gap > 0 {
		nonNull, err := r.presence.skip(gap)
		if err != nil {
			return 0, false, err
		}
		r.cursor = offset
		skipValues = nonNull
	}
	return skipValues, false, nil
}

// decodeSpan bulk-decodes the presence bits covering positions and advances
// the cursor past them. It returns the span length and how many of its rows
// are NULL.
func (r *readerBase) decodeSpan(offset int, positions []int) (span, nullCount int, err error) {
	span = positions[len(positions)-1] + 1
	if grew := r.sc.growSpan(span); grew {
		r.report()
	}
	nullCount, err = r.presence.unsetBits(span, r.sc.rowNulls)
	if err != nil {
		return 0, 0, err
	}
	r.cursor = offset + span
	return span, nullCount, nil
}

// report pushes the retained footprint to the memory context. Typed readers
// call it through their RetainedBytes after every buffer growth.
func (r *readerBase) report(extra ...int64) {
	total := r.sc.bytes()
	for _, n := range extra {
		total += n
	}
	r.mem.SetBytes(total)
}

func (r *readerBase) positions() []int {
	if !r.sc.valid {
		return nil
	}
	return r.sc.outPos[:r.sc.count]
}

func (r *readerBase) close() {
	r.state = stateClosed
	r.stripe = nil
	r.rowGroup = nil
	r.sc = scratch{}
	r.presence = presenceReader{}
	r.mem.SetBytes(0)
	level.Debug(r.logger).Log("msg", "reader closed")
}

// allNullRead handles a batch where every requested row is NULL, either
// because the row group has no DATA stream or because the presence bits say
// so. Only TestNull decides retention and no value buffer is touched.
func (r *readerBase) allNullRead(positions []int, f filter.Filter) int {
	retain := f == nil || f.TestNull()
	if grew := r.sc.begin(len(positions)); grew {
		r.report()
	}
	if retain {
		for _, pos := range positions {
			r.sc.positions[r.sc.count] = pos
			r.sc.count++
		}
	}
	r.sc.finishAllNull()
	return r.sc.count
}

// allNullReadOr is the disjunctive form of allNullRead.
func (r *readerBase) allNullReadOr(positions []int, fs []filter.Filter, acc *bitmask.Set) int {
	nullsPass := orNullsPass(fs)
	if grew := r.sc.begin(len(positions)); grew {
		r.report()
	}
	for _, pos := range positions {
		if !nullsPass && !acc.Get(pos) {
			continue
		}
		acc.Set(pos)
		r.sc.positions[r.sc.count] = pos
		r.sc.count++
	}
	r.sc.finishAllNull()
	return r.sc.count
}

// missingDataRead handles a read against a row group without a DATA stream.
// A column with no streams at all reads as entirely NULL. When a PRESENT
// stream exists, any bit claiming a value is corruption, because the value
// has nowhere to live.
func (r *readerBase) missingDataRead(offset int, positions []int, allNull func() int) (int, error) {
	span := positions[len(positions)-1] + 1
	if r.presence.absent() {
		r.cursor = offset + span
		return allNull(), nil
	}
	span, nullCount, err := r.decodeSpan(offset, positions)
	if err != nil {
		return 0, err
	}
	if nullCount != span {
		return 0, &stream.CorruptionError{
			Source: r.stripe.Source,
			Stream: r.streamID(stream.KindData),
			Msg:    "presence marks values in a row group with no DATA stream",
		}
	}
	return allNull(), nil
}

// skipTail discards the data values of the span that the position loop never
// reached, keeping the data stream aligned with the cursor.
func (r *readerBase) skipTail(span, nullCount, consumed int, skip func(int) error) error {
	if rem := (span - nullCount) - consumed; rem > 0 {
		return skip(rem)
	}
	return nil
}

func checkAscending(op string, positions []int) error {
	for i := 1; i < len(positions); i++ {
		if positions[i] <= positions[i-1] {
			return usagef(op, "positions are not strictly ascending at index %d", i)
		}
	}
	if len(positions) > 0 && positions[0] < 0 {
		return usagef(op, "negative position %d", positions[0])
	}
	return nil
}

// orNullsPass reports whether any filter of a disjunction retains NULL rows.
func orNullsPass(fs []filter.Filter) bool {
	for _, f := range fs {
		if f.TestNull() {
			return true
		}
	}
	return false
}
