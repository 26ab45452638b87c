package stripe

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/opencolumn/stripescan/pkg/decimal"
	"github.com/opencolumn/stripescan/pkg/stream"
)

// WriterOptions configures stripe writers.
type WriterOptions struct {
	// Codec compresses every stream of the stripe. Defaults to CodecNone.
	Codec stream.Codec

	// ChunkSize is the decompressed chunk size for every stream. Defaults to
	// stream.DefaultChunkSize.
	ChunkSize int

	// RowGroupRows is the number of rows per row group. Defaults to 10000.
	RowGroupRows int

	// Stats selects which column statistics to compute.
	Stats StatsOptions
}

func (o WriterOptions) withDefaults() WriterOptions {
	if o.ChunkSize <= 0 {
		o.ChunkSize = stream.DefaultChunkSize
	}
	if o.RowGroupRows <= 0 {
		o.RowGroupRows = 10000
	}
	return o
}

// A ColumnWriter appends one column's values row by row. All writers of a
// stripe must see the same number of rows.
type ColumnWriter interface {
	// AppendNull appends a NULL row.
	AppendNull() error

	// Rows returns the number of rows appended so far.
	Rows() int

	// Finish flushes pending data and returns the completed column. The
	// writer must not be used afterwards.
	Finish() (*Column, error)
}

// encStream couples a value encoder with the chunked stream it writes to and
// the row-group checkpoints recorded for it. Encoders are flushed to a byte
// boundary at every row-group boundary so each checkpoint is exact; readers
// always enter a row group through its checkpoint, so boundary padding is
// never decoded.
type encStream struct {
	kind  stream.Kind
	cw    *stream.ChunkWriter
	cps   []stream.Checkpoint
	flush func() error
}

func (s *encStream) checkpoint() error {
	if err := s.flush(); err != nil {
		return err
	}
	s.cps = append(s.cps, s.cw.Checkpoint())
	return nil
}

func (s *encStream) finish() (*StreamData, error) {
	if err := s.flush(); err != nil {
		return nil, err
	}
	if err := s.cw.Flush(); err != nil {
		return nil, err
	}
	return &StreamData{Data: s.cw.Bytes(), Checkpoints: s.cps}, nil
}

// columnBase carries the state shared by every column writer: the presence
// stream, row counting, row-group boundary handling and statistics.
type columnBase struct {
	id   int
	opts WriterOptions

	presence    *stream.BitEncoder
	presenceOut *encStream
	hasNulls    bool
	values      int // Non-NULL rows appended.
	rows        int

	data []*encStream // Value streams, checkpointed at row-group boundaries.

	stats *statsBuilder
}

func newColumnBase(id int, opts WriterOptions) columnBase {
	cw := stream.NewChunkWriter(opts.Codec, opts.ChunkSize)
	enc := stream.NewBitEncoder(cw)
	return columnBase{
		id:   id,
		opts: opts,
		presence: enc,
		presenceOut: &encStream{
			kind:  stream.KindPresent,
			cw:    cw,
			flush: enc.Flush,
		},
		stats: newStatsBuilder(opts.Stats),
	}
}

func (b *columnBase) addStream(kind stream.Kind, flush func() error) (*encStream, *stream.ChunkWriter) {
	cw := stream.NewChunkWriter(b.opts.Codec, b.opts.ChunkSize)
	s := &encStream{kind: kind, cw: cw, flush: flush}
	b.data = append(b.data, s)
	return s, cw
}

// beginRow records row-group checkpoints when the next row starts a new
// group, then counts the row.
func (b *columnBase) beginRow() error {
	if b.rows%b.opts.RowGroupRows == 0 {
		if err := b.presenceOut.checkpoint(); err != nil {
			return err
		}
		for _, s := range b.data {
			if err := s.checkpoint(); err != nil {
				return err
			}
		}
	}
	b.rows++
	return nil
}

func (b *columnBase) appendPresent() error {
	if err := b.beginRow(); err != nil {
		return err
	}
	b.values++
	return b.presence.Encode(true)
}

func (b *columnBase) appendNull() error {
	if err := b.beginRow(); err != nil {
		return err
	}
	b.hasNulls = true
	b.stats.appendNull()
	return b.presence.Encode(false)
}

// finishColumn assembles the column's stream map. The PRESENT stream is
// omitted for columns with no NULLs, and value streams are omitted when
// every row was NULL.
func (b *columnBase) finishColumn(encoding Encoding) (*Column, error) {
	col := &Column{
		ID:       b.id,
		Encoding: encoding,
		Stats:    b.stats.flush(),
		Streams:  make(map[stream.Kind]*StreamData),
	}

	if b.hasNulls {
		sd, err := b.presenceOut.finish()
		if err != nil {
			return nil, err
		}
		col.Streams[stream.KindPresent] = sd
	}
	if b.values > 0 {
		for _, s := range b.data {
			sd, err := s.finish()
			if err != nil {
				return nil, err
			}
			col.Streams[s.kind] = sd
		}
	}
	return col, nil
}

// An Int64Writer writes an int64 column with either direct run-length or
// intcomp block encoding.
type Int64Writer struct {
	columnBase
	encoding Encoding

	rle   *stream.IntEncoder
	block *stream.IntBlockEncoder
}

// NewInt64Writer returns a writer for column id. encoding must be
// EncodingDirect or EncodingIntBlock.
func NewInt64Writer(id int, encoding Encoding, opts WriterOptions) (*Int64Writer, error) {
	if encoding != EncodingDirect && encoding != EncodingIntBlock {
		return nil, fmt.Errorf("int64 column cannot use %s encoding", encoding)
	}
	w := &Int64Writer{columnBase: newColumnBase(id, opts.withDefaults()), encoding: encoding}

	switch encoding {
	case EncodingDirect:
		_, cw := w.addStream(stream.KindData, func() error { return w.rle.Flush() })
		w.rle = stream.NewIntEncoder(cw, true)
	case EncodingIntBlock:
		_, cw := w.addStream(stream.KindData, func() error { return w.block.Flush() })
		w.block = stream.NewIntBlockEncoder(cw)
	}
	return w, nil
}

// Append appends one value.
func (w *Int64Writer) Append(v int64) error {
	if err := w.appendPresent(); err != nil {
		return err
	}
	w.stats.appendInt64(v)
	if w.encoding == EncodingDirect {
		return w.rle.Encode(v)
	}
	return w.block.Encode(v)
}

// AppendNull appends a NULL row.
func (w *Int64Writer) AppendNull() error { return w.appendNull() }

// Rows returns the number of rows appended.
func (w *Int64Writer) Rows() int { return w.rows }

// Finish completes the column.
func (w *Int64Writer) Finish() (*Column, error) { return w.finishColumn(w.encoding) }

// A Float64Writer writes a float64 column.
type Float64Writer struct {
	columnBase
	enc *stream.Float64Encoder
}

// NewFloat64Writer returns a writer for column id.
func NewFloat64Writer(id int, opts WriterOptions) *Float64Writer {
	w := &Float64Writer{columnBase: newColumnBase(id, opts.withDefaults())}
	_, cw := w.addStream(stream.KindData, func() error { return nil })
	w.enc = stream.NewFloat64Encoder(cw)
	return w
}

// Append appends one value.
func (w *Float64Writer) Append(v float64) error {
	if err := w.appendPresent(); err != nil {
		return err
	}
	w.stats.appendFloat64(v)
	return w.enc.Encode(v)
}

// AppendNull appends a NULL row.
func (w *Float64Writer) AppendNull() error { return w.appendNull() }

// Rows returns the number of rows appended.
func (w *Float64Writer) Rows() int { return w.rows }

// Finish completes the column.
func (w *Float64Writer) Finish() (*Column, error) { return w.finishColumn(EncodingDirect) }

// A BoolWriter writes a boolean column as packed bits.
type BoolWriter struct {
	columnBase
	enc *stream.BitEncoder
}

// NewBoolWriter returns a writer for column id.
func NewBoolWriter(id int, opts WriterOptions) *BoolWriter {
	w := &BoolWriter{columnBase: newColumnBase(id, opts.withDefaults())}
	var enc *stream.BitEncoder
	_, cw := w.addStream(stream.KindData, func() error { return enc.Flush() })
	enc = stream.NewBitEncoder(cw)
	w.enc = enc
	return w
}

// Append appends one value.
func (w *BoolWriter) Append(v bool) error {
	if err := w.appendPresent(); err != nil {
		return err
	}
	var asInt int64
	if v {
		asInt = 1
	}
	w.stats.appendInt64(asInt)
	return w.enc.Encode(v)
}

// AppendNull appends a NULL row.
func (w *BoolWriter) AppendNull() error { return w.appendNull() }

// Rows returns the number of rows appended.
func (w *BoolWriter) Rows() int { return w.rows }

// Finish completes the column.
func (w *BoolWriter) Finish() (*Column, error) { return w.finishColumn(EncodingDirect) }

// A DecimalWriter writes a decimal column: varint mantissas in DATA and the
// per-value scale in SECONDARY.
type DecimalWriter struct {
	columnBase
	scale int

	mantissa *stream.DecimalEncoder
	scales   *stream.IntEncoder
}

// NewDecimalWriter returns a writer for column id with the given scale.
func NewDecimalWriter(id, scale int, opts WriterOptions) *DecimalWriter {
	w := &DecimalWriter{columnBase: newColumnBase(id, opts.withDefaults()), scale: scale}

	_, dataCW := w.addStream(stream.KindData, func() error { return nil })
	w.mantissa = stream.NewDecimalEncoder(dataCW)

	var scales *stream.IntEncoder
	_, secCW := w.addStream(stream.KindSecondary, func() error { return scales.Flush() })
	scales = stream.NewIntEncoder(secCW, true)
	w.scales = scales
	return w
}

// Append appends one mantissa at the column scale.
func (w *DecimalWriter) Append(mantissa decimal.Int128) error {
	if err := w.appendPresent(); err != nil {
		return err
	}
	if mantissa.IsInt64() {
		w.stats.appendInt64(mantissa.Int64())
	} else {
		w.stats.stats.Rows++
	}
	if err := w.mantissa.Encode(mantissa); err != nil {
		return err
	}
	return w.scales.Encode(int64(w.scale))
}

// AppendNull appends a NULL row.
func (w *DecimalWriter) AppendNull() error { return w.appendNull() }

// Rows returns the number of rows appended.
func (w *DecimalWriter) Rows() int { return w.rows }

// Finish completes the column.
func (w *DecimalWriter) Finish() (*Column, error) {
	col, err := w.finishColumn(EncodingDirect)
	if err != nil {
		return nil, err
	}
	col.Scale = w.scale
	return col, nil
}

// A BytesWriter writes a byte-string column directly: contents in DATA,
// sliced by LENGTH.
type BytesWriter struct {
	columnBase

	dataCW  *stream.ChunkWriter
	lengths *stream.IntEncoder
}

// NewBytesWriter returns a direct-encoded writer for column id.
func NewBytesWriter(id int, opts WriterOptions) *BytesWriter {
	w := &BytesWriter{columnBase: newColumnBase(id, opts.withDefaults())}

	_, dataCW := w.addStream(stream.KindData, func() error { return nil })
	w.dataCW = dataCW

	var lengths *stream.IntEncoder
	_, lenCW := w.addStream(stream.KindLength, func() error { return lengths.Flush() })
	lengths = stream.NewIntEncoder(lenCW, false)
	w.lengths = lengths
	return w
}

// Append appends one value.
func (w *BytesWriter) Append(v []byte) error {
	if err := w.appendPresent(); err != nil {
		return err
	}
	w.stats.appendBytes(v)
	if err := w.lengths.Encode(int64(len(v))); err != nil {
		return err
	}
	_, err := w.dataCW.Write(v)
	return err
}

// AppendNull appends a NULL row.
func (w *BytesWriter) AppendNull() error { return w.appendNull() }

// Rows returns the number of rows appended.
func (w *BytesWriter) Rows() int { return w.rows }

// Finish completes the column.
func (w *BytesWriter) Finish() (*Column, error) { return w.finishColumn(EncodingDirect) }

// A DictBytesWriter writes a dictionary-encoded byte-string column: row
// indexes in DATA, dictionary contents in DICTIONARY_DATA sliced by LENGTH.
// Entries are interned by xxhash with collision verification.
type DictBytesWriter struct {
	columnBase

	indexes *stream.IntEncoder

	entries []byte  // Flat dictionary contents in first-seen order.
	offsets []int32 // entries boundaries; len(offsets) == dictLen + 1.
	byHash  map[uint64][]int32
}

// NewDictBytesWriter returns a dictionary-encoded writer for column id.
func NewDictBytesWriter(id int, opts WriterOptions) *DictBytesWriter {
	w := &DictBytesWriter{
		columnBase: newColumnBase(id, opts.withDefaults()),
		offsets:    []int32{0},
		byHash:     make(map[uint64][]int32),
	}
	var indexes *stream.IntEncoder
	_, cw := w.addStream(stream.KindData, func() error { return indexes.Flush() })
	indexes = stream.NewIntEncoder(cw, false)
	w.indexes = indexes
	return w
}

// Append appends one value, interning it in the stripe dictionary.
func (w *DictBytesWriter) Append(v []byte) error {
	if err := w.appendPresent(); err != nil {
		return err
	}
	w.stats.appendBytes(v)
	return w.indexes.Encode(int64(w.intern(v)))
}

func (w *DictBytesWriter) intern(v []byte) int32 {
	h := xxhash.Sum64(v)
	for _, idx := range w.byHash[h] {
		if string(w.entries[w.offsets[idx]:w.offsets[idx+1]]) == string(v) {
			return idx
		}
	}
	idx := int32(len(w.offsets) - 1)
	w.entries = append(w.entries, v...)
	w.offsets = append(w.offsets, int32(len(w.entries)))
	w.byHash[h] = append(w.byHash[h], idx)
	return idx
}

// AppendNull appends a NULL row.
func (w *DictBytesWriter) AppendNull() error { return w.appendNull() }

// Rows returns the number of rows appended.
func (w *DictBytesWriter) Rows() int { return w.rows }

// Finish completes the column, emitting the dictionary streams.
func (w *DictBytesWriter) Finish() (*Column, error) {
	col, err := w.finishColumn(EncodingDictionary)
	if err != nil {
		return nil, err
	}
	col.DictLen = len(w.offsets) - 1

	if col.DictLen > 0 {
		dictCW := stream.NewChunkWriter(w.opts.Codec, w.opts.ChunkSize)
		if _, err := dictCW.Write(w.entries); err != nil {
			return nil, err
		}
		if err := dictCW.Flush(); err != nil {
			return nil, err
		}
		col.Streams[stream.KindDictionaryData] = &StreamData{Data: dictCW.Bytes()}

		lenCW := stream.NewChunkWriter(w.opts.Codec, w.opts.ChunkSize)
		lengths := stream.NewIntEncoder(lenCW, false)
		for i := 0; i < col.DictLen; i++ {
			if err := lengths.Encode(int64(w.offsets[i+1] - w.offsets[i])); err != nil {
				return nil, err
			}
		}
		if err := lengths.Flush(); err != nil {
			return nil, err
		}
		if err := lenCW.Flush(); err != nil {
			return nil, err
		}
		col.Streams[stream.KindLength] = &StreamData{Data: lenCW.Bytes()}
	}
	return col, nil
}

// A Writer assembles column writers into a stripe.
type Writer struct {
	source string
	opts   WriterOptions
	cols   []ColumnWriter
}

// NewWriter returns a stripe writer. source names the stripe in reader
// errors.
func NewWriter(source string, opts WriterOptions, cols ...ColumnWriter) *Writer {
	return &Writer{source: source, opts: opts.withDefaults(), cols: cols}
}

// Finish validates that every column saw the same number of rows and builds
// the stripe.
func (w *Writer) Finish() (*Stripe, error) {
	s := &Stripe{
		Source:       w.source,
		Codec:        w.opts.Codec,
		ChunkSize:    w.opts.ChunkSize,
		RowGroupRows: w.opts.RowGroupRows,
		Columns:      make(map[int]*Column),
	}

	for i, cw := range w.cols {
		if i == 0 {
			s.Rows = cw.Rows()
		} else if cw.Rows() != s.Rows {
			return nil, fmt.Errorf("column writer %d has %d rows, want %d", i, cw.Rows(), s.Rows)
		}
		col, err := cw.Finish()
		if err != nil {
			return nil, fmt.Errorf("finishing column writer %d: %w", i, err)
		}
		if _, exists := s.Columns[col.ID]; exists {
			return nil, fmt.Errorf("duplicate column id %d", col.ID)
		}
		s.Columns[col.ID] = col
	}
	return s, nil
}
