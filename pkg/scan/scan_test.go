package scan

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencolumn/stripescan/internal/util/bitmask"
	"github.com/opencolumn/stripescan/pkg/filter"
	"github.com/opencolumn/stripescan/pkg/memctx"
	"github.com/opencolumn/stripescan/pkg/stripe"
	"github.com/opencolumn/stripescan/pkg/vector"
)

// buildInt64 writes a single-column stripe of int64 values. nullRows lists
// the NULL row indexes; their entries in values are ignored.
func buildInt64(t testing.TB, opts stripe.WriterOptions, values []int64, nullRows ...int) *stripe.Stripe {
	t.Helper()

	null := make(map[int]bool, len(nullRows))
	for _, i := range nullRows {
		null[i] = true
	}

	w, err := stripe.NewInt64Writer(0, stripe.EncodingDirect, opts)
	require.NoError(t, err)
	for i, v := range values {
		if null[i] {
			require.NoError(t, w.AppendNull())
		} else {
			require.NoError(t, w.Append(v))
		}
	}

	s, err := stripe.NewWriter("test", opts, w).Finish()
	require.NoError(t, err)
	return s
}

// openInt64 binds a fresh reader to the first row group of s.
func openInt64(t testing.TB, s *stripe.Stripe, opts ReaderOptions) *Int64Reader {
	t.Helper()

	r := NewInt64Reader(0, opts)
	require.NoError(t, r.StartStripe(s))
	rg, err := s.RowGroup(0)
	require.NoError(t, err)
	require.NoError(t, r.StartRowGroup(rg))
	return r
}

func Test_Int64Reader_noFilter(t *testing.T) {
	s := buildInt64(t, stripe.WriterOptions{}, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	r := openInt64(t, s, ReaderOptions{})
	defer r.Close()

	positions := []int{0, 2, 4, 6, 8}
	n, err := r.Read(0, positions, nil)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, positions, r.Positions())

	blk, err := r.Block(r.Positions())
	require.NoError(t, err)

	ints, ok := blk.(*vector.Int64Block)
	require.True(t, ok)
	require.Equal(t, []int64{0, 2, 4, 6, 8}, ints.Values)
	require.Nil(t, ints.Nulls)
}

func Test_Int64Reader_filter(t *testing.T) {
	s := buildInt64(t, stripe.WriterOptions{}, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	r := openInt64(t, s, ReaderOptions{})
	defer r.Close()

	n, err := r.Read(0, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, filter.Int64Range{Min: 6, Max: math.MaxInt64})
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []int{6, 7, 8, 9}, r.Positions())

	blk, err := r.Block(r.Positions())
	require.NoError(t, err)
	require.Equal(t, []int64{6, 7, 8, 9}, blk.(*vector.Int64Block).Values)
}

func Test_Int64Reader_nullsAndFilter(t *testing.T) {
	// Rows 2 and 5 are NULL; the data stream holds values for rows 0,1,3,4
	// only. Row 4 was already eliminated by an earlier column, so it is not a
	// candidate and its value must be skipped, not evaluated.
	s := buildInt64(t, stripe.WriterOptions{}, []int64{10, 20, 0, 30, 40, 0}, 2, 5)
	r := openInt64(t, s, ReaderOptions{})
	defer r.Close()

	f := filter.Int64Range{Min: 26, Max: math.MaxInt64, NullsPass: true}
	n, err := r.Read(0, []int{0, 1, 2, 3, 5}, f)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []int{2, 3, 5}, r.Positions())

	blk, err := r.Block(r.Positions())
	require.NoError(t, err)

	ints := blk.(*vector.Int64Block)
	require.Equal(t, []bool{true, false, true}, ints.Nulls)
	require.Equal(t, int64(30), ints.Values[1])
}

func Test_Int64Reader_skipEquivalence(t *testing.T) {
	values := []int64{100, 200, 300, 400, 500, 600, 700, 800, 900, 1000}
	s := buildInt64(t, stripe.WriterOptions{}, values, 3, 7)

	// Sparse decode of rows 5 and 9 only.
	sparse := openInt64(t, s, ReaderOptions{})
	defer sparse.Close()
	n, err := sparse.Read(0, []int{5, 9}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	sparseBlk, err := sparse.Block(sparse.Positions())
	require.NoError(t, err)

	// Dense decode of everything, discarding all but rows 5 and 9.
	dense := openInt64(t, s, ReaderOptions{})
	defer dense.Close()
	_, err = dense.Read(0, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, nil)
	require.NoError(t, err)
	denseBlk, err := dense.Block(dense.Positions())
	require.NoError(t, err)

	sv := sparseBlk.(*vector.Int64Block)
	dv := denseBlk.(*vector.Int64Block)
	require.Equal(t, dv.Values[5], sv.Values[0])
	require.Equal(t, dv.Values[9], sv.Values[1])
}

func Test_Int64Reader_offsetCatchup(t *testing.T) {
	values := make([]int64, 100)
	for i := range values {
		values[i] = int64(i) * 10
	}
	// NULLs sprinkled in the skipped range force the catch-up to subtract
	// them from the data-stream skip.
	s := buildInt64(t, stripe.WriterOptions{}, values, 3, 10, 17, 44)
	r := openInt64(t, s, ReaderOptions{})
	defer r.Close()

	n, err := r.Read(50, []int{0, 5}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	blk, err := r.Block(r.Positions())
	require.NoError(t, err)
	require.Equal(t, []int64{500, 550}, blk.(*vector.Int64Block).Values)
}

func Test_Int64Reader_repeatedReads(t *testing.T) {
	values := make([]int64, 60)
	for i := range values {
		values[i] = int64(i)
	}
	s := buildInt64(t, stripe.WriterOptions{}, values)
	r := openInt64(t, s, ReaderOptions{})
	defer r.Close()

	for batch := 0; batch < 3; batch++ {
		offset := batch * 20
		n, err := r.Read(offset, []int{0, 19}, nil)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		blk, err := r.Block(r.Positions())
		require.NoError(t, err)
		require.Equal(t, []int64{int64(offset), int64(offset + 19)}, blk.(*vector.Int64Block).Values)
	}
}

func Test_Int64Reader_rowGroups(t *testing.T) {
	values := make([]int64, 250)
	var nullRows []int
	for i := range values {
		values[i] = int64(i) * 3
		if i%11 == 0 {
			nullRows = append(nullRows, i)
		}
	}
	s := buildInt64(t, stripe.WriterOptions{RowGroupRows: 64}, values, nullRows...)

	r := NewInt64Reader(0, ReaderOptions{})
	defer r.Close()
	require.NoError(t, r.StartStripe(s))

	for g := 0; g < s.RowGroups(); g++ {
		rg, err := s.RowGroup(g)
		require.NoError(t, err)
		require.NoError(t, r.StartRowGroup(rg))

		positions := make([]int, rg.Rows)
		for i := range positions {
			positions[i] = i
		}
		n, err := r.Read(0, positions, nil)
		require.NoError(t, err)
		require.Equal(t, rg.Rows, n)

		blk, err := r.Block(r.Positions())
		require.NoError(t, err)
		ints := blk.(*vector.Int64Block)
		for i := 0; i < rg.Rows; i++ {
			row := g*64 + i
			if row%11 == 0 {
				require.True(t, ints.IsNull(i), "row %d", row)
			} else {
				require.Equal(t, int64(row)*3, ints.Values[i], "row %d", row)
			}
		}
	}
}

func Test_Int64Reader_readOr(t *testing.T) {
	s := buildInt64(t, stripe.WriterOptions{}, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	r := openInt64(t, s, ReaderOptions{})
	defer r.Close()

	var acc bitmask.Set
	acc.Resize(10)
	// Position 5 was retained by a filter on another column of the same
	// disjunction; it must survive even though both filters reject 5.
	acc.Set(5)

	fs := []filter.Filter{
		filter.Int64Range{Min: 0, Max: 2},
		filter.Int64Range{Min: 7, Max: 9},
	}
	n, err := r.ReadOr(0, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, fs, &acc)
	require.NoError(t, err)
	require.Equal(t, 7, n)
	require.Equal(t, []int{0, 1, 2, 5, 7, 8, 9}, r.Positions())

	// The accumulator now carries every retained position.
	for _, pos := range r.Positions() {
		require.True(t, acc.Get(pos))
	}
	require.False(t, acc.Get(3))

	blk, err := r.Block(r.Positions())
	require.NoError(t, err)
	require.Equal(t, []int64{0, 1, 2, 5, 7, 8, 9}, blk.(*vector.Int64Block).Values)
}

func Test_Int64Reader_allNull(t *testing.T) {
	s := buildInt64(t, stripe.WriterOptions{}, make([]int64, 8), 0, 1, 2, 3, 4, 5, 6, 7)

	t.Run("nulls pass", func(t *testing.T) {
		r := openInt64(t, s, ReaderOptions{})
		defer r.Close()

		positions := []int{1, 3, 5}
		n, err := r.Read(0, positions, filter.Int64Range{Min: 0, Max: 10, NullsPass: true})
		require.NoError(t, err)
		require.Equal(t, 3, n)

		blk, err := r.Block(r.Positions())
		require.NoError(t, err)

		// A repeated-null block, not a materialized null array.
		rle, ok := blk.(*vector.RunLengthBlock)
		require.True(t, ok)
		require.Equal(t, 3, rle.Len())
		require.True(t, rle.IsNull(0))
	})

	t.Run("nulls rejected", func(t *testing.T) {
		r := openInt64(t, s, ReaderOptions{})
		defer r.Close()

		n, err := r.Read(0, []int{0, 1, 2}, filter.IsNotNull{})
		require.NoError(t, err)
		require.Equal(t, 0, n)
	})
}

func Test_Int64Reader_zeroRowGroup(t *testing.T) {
	s := buildInt64(t, stripe.WriterOptions{}, []int64{1, 2, 3})
	r := NewInt64Reader(0, ReaderOptions{})
	defer r.Close()

	require.NoError(t, r.StartStripe(s))
	require.NoError(t, r.StartRowGroup(&stripe.RowGroup{Stripe: s, Index: 0, Rows: 0}))

	n, err := r.Read(0, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func Test_Int64Reader_blockSubset(t *testing.T) {
	s := buildInt64(t, stripe.WriterOptions{}, []int64{10, 11, 12, 13, 14, 15})
	r := openInt64(t, s, ReaderOptions{})
	defer r.Close()

	n, err := r.Read(0, []int{0, 1, 2, 3, 4, 5}, nil)
	require.NoError(t, err)
	require.Equal(t, 6, n)

	// A later column narrowed the rows further; compact to the survivors.
	blk, err := r.Block([]int{1, 4})
	require.NoError(t, err)
	require.Equal(t, []int64{11, 14}, blk.(*vector.Int64Block).Values)
}

func Test_Int64Reader_blockOwnership(t *testing.T) {
	s := buildInt64(t, stripe.WriterOptions{}, []int64{1, 2, 3, 4})
	r := openInt64(t, s, ReaderOptions{})
	defer r.Close()

	_, err := r.Read(0, []int{0, 1, 2, 3}, nil)
	require.NoError(t, err)
	first, err := r.Block(r.Positions())
	require.NoError(t, err)

	// Corrupt the handed-over buffer; the next batch must not see it.
	for i := range first.(*vector.Int64Block).Values {
		first.(*vector.Int64Block).Values[i] = -999
	}

	require.NoError(t, r.StartRowGroup(mustRowGroup(t, s, 0)))
	_, err = r.Read(0, []int{0, 1, 2, 3}, nil)
	require.NoError(t, err)
	second, err := r.Block(r.Positions())
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3, 4}, second.(*vector.Int64Block).Values)
}

func Test_Int64Reader_usageErrors(t *testing.T) {
	s := buildInt64(t, stripe.WriterOptions{}, []int64{1, 2, 3})

	t.Run("read before row group", func(t *testing.T) {
		r := NewInt64Reader(0, ReaderOptions{})
		defer r.Close()
		require.NoError(t, r.StartStripe(s))

		_, err := r.Read(0, []int{0}, nil)
		var usage *UsageError
		require.ErrorAs(t, err, &usage)
	})

	t.Run("row group before stripe", func(t *testing.T) {
		r := NewInt64Reader(0, ReaderOptions{})
		defer r.Close()

		err := r.StartRowGroup(&stripe.RowGroup{Stripe: s, Rows: 3})
		var usage *UsageError
		require.ErrorAs(t, err, &usage)
	})

	t.Run("unsorted positions", func(t *testing.T) {
		r := openInt64(t, s, ReaderOptions{})
		defer r.Close()

		_, err := r.Read(0, []int{2, 1}, nil)
		var usage *UsageError
		require.ErrorAs(t, err, &usage)
	})

	t.Run("block before read", func(t *testing.T) {
		r := openInt64(t, s, ReaderOptions{})
		defer r.Close()

		_, err := r.Block([]int{0})
		var usage *UsageError
		require.ErrorAs(t, err, &usage)
	})

	t.Run("wrong filter type", func(t *testing.T) {
		r := openInt64(t, s, ReaderOptions{})
		defer r.Close()

		_, err := r.Read(0, []int{0}, filter.BytesPrefix{Prefix: []byte("x")})
		var usage *UsageError
		require.ErrorAs(t, err, &usage)
	})

	t.Run("read after close", func(t *testing.T) {
		r := openInt64(t, s, ReaderOptions{})
		require.NoError(t, r.Close())

		_, err := r.Read(0, []int{0}, nil)
		var usage *UsageError
		require.ErrorAs(t, err, &usage)
	})
}

func Test_Int64Reader_memoryReporting(t *testing.T) {
	mem := memctx.New()
	s := buildInt64(t, stripe.WriterOptions{}, []int64{1, 2, 3, 4, 5})

	r := openInt64(t, s, ReaderOptions{Memory: mem})
	_, err := r.Read(0, []int{0, 1, 2, 3, 4}, nil)
	require.NoError(t, err)

	require.Positive(t, mem.Bytes())
	require.Equal(t, r.RetainedBytes(), mem.Bytes())

	require.NoError(t, r.Close())
	require.Zero(t, mem.Bytes())
}

// Test_Int64Reader_subset exercises the subset invariant over randomized
// data: output positions are always drawn from the input, in order.
func Test_Int64Reader_subset(t *testing.T) {
	rnd := rand.New(rand.NewSource(20260830))

	for trial := 0; trial < 50; trial++ {
		rows := 1 + rnd.Intn(200)
		values := make([]int64, rows)
		var nullRows []int
		for i := range values {
			values[i] = int64(rnd.Intn(100))
			if rnd.Intn(5) == 0 {
				nullRows = append(nullRows, i)
			}
		}
		s := buildInt64(t, stripe.WriterOptions{}, values, nullRows...)

		var positions []int
		for i := 0; i < rows; i++ {
			if rnd.Intn(2) == 0 {
				positions = append(positions, i)
			}
		}
		if len(positions) == 0 {
			continue
		}

		r := openInt64(t, s, ReaderOptions{})
		f := filter.Int64Range{Min: 25, Max: 75, NullsPass: rnd.Intn(2) == 0}
		n, err := r.Read(0, positions, f)
		require.NoError(t, err)
		require.LessOrEqual(t, n, len(positions))

		got := r.Positions()
		j := 0
		for _, pos := range got {
			for j < len(positions) && positions[j] != pos {
				j++
			}
			require.Less(t, j, len(positions), "output position %d not drawn from input", pos)
			j++
		}
		require.NoError(t, r.Close())
	}
}

// A batch whose last candidate row is NULL leaves undecoded values between
// the earlier candidates and the batch end; they must still be skipped so the
// data stream stays aligned with the cursor for the next batch.
func Test_Int64Reader_batchEndingOnNull(t *testing.T) {
	values := make([]int64, 12)
	for i := range values {
		values[i] = int64(100 + i)
	}
	s := buildInt64(t, stripe.WriterOptions{}, values, 5)

	t.Run("read", func(t *testing.T) {
		r := openInt64(t, s, ReaderOptions{})
		defer r.Close()

		n, err := r.Read(0, []int{0, 5}, nil)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		n, err = r.Read(6, []int{0, 3}, nil)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		blk, err := r.Block(r.Positions())
		require.NoError(t, err)
		require.Equal(t, []int64{106, 109}, blk.(*vector.Int64Block).Values)
	})

	t.Run("read or", func(t *testing.T) {
		r := openInt64(t, s, ReaderOptions{})
		defer r.Close()

		var acc bitmask.Set
		acc.Resize(6)
		fs := []filter.Filter{filter.Int64Range{Min: 0, Max: 1000, NullsPass: true}}
		n, err := r.ReadOr(0, []int{0, 5}, fs, &acc)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		acc.Resize(4)
		n, err = r.ReadOr(6, []int{0, 3}, fs, &acc)
		require.NoError(t, err)
		require.Equal(t, 2, n)

		blk, err := r.Block(r.Positions())
		require.NoError(t, err)
		require.Equal(t, []int64{106, 109}, blk.(*vector.Int64Block).Values)
	})
}

// tracingFilter records every value it is asked to test.
type tracingFilter struct {
	tested    []int64
	nullsPass bool
}

func (f *tracingFilter) TestNull() bool { return f.nullsPass }
func (f *tracingFilter) TestInt64(v int64) bool {
	f.tested = append(f.tested, v)
	return true
}

func Test_Int64Reader_nullRowsSkipValueTest(t *testing.T) {
	s := buildInt64(t, stripe.WriterOptions{}, []int64{10, 0, 20, 0, 30}, 1, 3)
	r := openInt64(t, s, ReaderOptions{})
	defer r.Close()

	f := &tracingFilter{nullsPass: true}
	n, err := r.Read(0, []int{0, 1, 2, 3, 4}, f)
	require.NoError(t, err)
	require.Equal(t, 5, n)

	// NULL rows are decided by TestNull alone; the value test only ever saw
	// the non-null rows.
	require.Equal(t, []int64{10, 20, 30}, f.tested)
}

func mustRowGroup(t testing.TB, s *stripe.Stripe, index int) *stripe.RowGroup {
	t.Helper()
	rg, err := s.RowGroup(index)
	require.NoError(t, err)
	return rg
}

func Test_New(t *testing.T) {
	for _, typ := range []vector.Type{
		vector.TypeInt64, vector.TypeFloat64, vector.TypeBool,
		vector.TypeBytes, vector.TypeDecimal,
	} {
		r, err := New(0, typ, ReaderOptions{})
		require.NoError(t, err)
		require.NoError(t, r.Close())
	}

	_, err := New(0, vector.Type(99), ReaderOptions{})
	var usage *UsageError
	require.True(t, errors.As(err, &usage))
}
