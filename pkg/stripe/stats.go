package stripe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/axiomhq/hyperloglog"
)

// StatsOptions customizes which column statistics writers compute.
type StatsOptions struct {
	// StoreRangeStats stores min/max values, enabling statistics-based
	// row-group pruning by callers.
	StoreRangeStats bool

	// StoreCardinalityStats estimates the number of distinct values with a
	// hyperloglog sketch.
	StoreCardinalityStats bool
}

// Stats holds the statistics of one column over one stripe.
type Stats struct {
	Rows  int
	Nulls int

	// Distinct is the estimated distinct non-NULL value count; 0 when
	// cardinality stats were not stored.
	Distinct uint64

	// Range stats. HasRange is false when range stats were not stored or the
	// column had no non-NULL values. Integer-backed columns (int64, boolean,
	// decimal mantissa) use MinInt64/MaxInt64; byte-string columns use
	// MinBytes/MaxBytes; doubles use MinFloat64/MaxFloat64.
	HasRange   bool
	MinInt64   int64
	MaxInt64   int64
	MinFloat64 float64
	MaxFloat64 float64
	MinBytes   []byte
	MaxBytes   []byte
}

// 2^14 registers keeps the standard error near 0.8% for a 16KiB sketch.
func newSketch() *hyperloglog.Sketch {
	sketch, err := hyperloglog.NewSketch(14, true)
	if err != nil {
		panic(fmt.Sprintf("stripe: creating hyperloglog sketch: %v", err))
	}
	return sketch
}

// statsBuilder accumulates column statistics while a writer appends values.
type statsBuilder struct {
	opts  StatsOptions
	stats Stats
	hll   *hyperloglog.Sketch
	buf   [8]byte
}

func newStatsBuilder(opts StatsOptions) *statsBuilder {
	b := &statsBuilder{opts: opts}
	if opts.StoreCardinalityStats {
		b.hll = newSketch()
	}
	return b
}

func (b *statsBuilder) appendNull() {
	b.stats.Rows++
	b.stats.Nulls++
}

func (b *statsBuilder) appendInt64(v int64) {
	b.stats.Rows++
	if b.opts.StoreRangeStats {
		if !b.stats.HasRange || v < b.stats.MinInt64 {
			b.stats.MinInt64 = v
		}
		if !b.stats.HasRange || v > b.stats.MaxInt64 {
			b.stats.MaxInt64 = v
		}
		b.stats.HasRange = true
	}
	if b.hll != nil {
		binary.LittleEndian.PutUint64(b.buf[:], uint64(v))
		b.hll.Insert(b.buf[:])
	}
}

func (b *statsBuilder) appendFloat64(v float64) {
	b.stats.Rows++
	if b.opts.StoreRangeStats {
		if !b.stats.HasRange || v < b.stats.MinFloat64 {
			b.stats.MinFloat64 = v
		}
		if !b.stats.HasRange || v > b.stats.MaxFloat64 {
			b.stats.MaxFloat64 = v
		}
		b.stats.HasRange = true
	}
	if b.hll != nil {
		binary.LittleEndian.PutUint64(b.buf[:], math.Float64bits(v))
		b.hll.Insert(b.buf[:])
	}
}

func (b *statsBuilder) appendBytes(v []byte) {
	b.stats.Rows++
	if b.opts.StoreRangeStats {
		if !b.stats.HasRange || lessBytes(v, b.stats.MinBytes) {
			b.stats.MinBytes = append(b.stats.MinBytes[:0], v...)
		}
		if !b.stats.HasRange || lessBytes(b.stats.MaxBytes, v) {
			b.stats.MaxBytes = append(b.stats.MaxBytes[:0], v...)
		}
		b.stats.HasRange = true
	}
	if b.hll != nil {
		b.hll.Insert(v)
	}
}

func (b *statsBuilder) flush() *Stats {
	out := b.stats
	if b.hll != nil {
		out.Distinct = b.hll.Estimate()
	}
	return &out
}

func lessBytes(a, b []byte) bool { return bytes.Compare(a, b) < 0 }
