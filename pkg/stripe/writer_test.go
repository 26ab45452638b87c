package stripe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencolumn/stripescan/pkg/stream"
)

func Test_Writer_Finish(t *testing.T) {
	opts := WriterOptions{RowGroupRows: 10}

	ints, err := NewInt64Writer(0, EncodingDirect, opts)
	require.NoError(t, err)
	floats := NewFloat64Writer(1, opts)

	for i := 0; i < 25; i++ {
		require.NoError(t, ints.Append(int64(i)))
		if i%5 == 0 {
			require.NoError(t, floats.AppendNull())
		} else {
			require.NoError(t, floats.Append(float64(i)/2))
		}
	}

	s, err := NewWriter("test", opts, ints, floats).Finish()
	require.NoError(t, err)

	require.Equal(t, 25, s.Rows)
	require.Equal(t, 3, s.RowGroups())

	last, err := s.RowGroup(2)
	require.NoError(t, err)
	require.Equal(t, 5, last.Rows)

	// Column 0 had no NULLs, so it carries no PRESENT stream; column 1 did.
	col0, err := s.Column(0)
	require.NoError(t, err)
	require.NotContains(t, col0.Streams, stream.KindPresent)
	require.Contains(t, col0.Streams, stream.KindData)

	col1, err := s.Column(1)
	require.NoError(t, err)
	require.Contains(t, col1.Streams, stream.KindPresent)

	// One checkpoint per row group on every row-grouped stream.
	require.Len(t, col0.Streams[stream.KindData].Checkpoints, 3)
	require.Len(t, col1.Streams[stream.KindPresent].Checkpoints, 3)
	require.Len(t, col1.Streams[stream.KindData].Checkpoints, 3)
}

func Test_Writer_Finish_rowMismatch(t *testing.T) {
	opts := WriterOptions{}

	a, err := NewInt64Writer(0, EncodingDirect, opts)
	require.NoError(t, err)
	b := NewFloat64Writer(1, opts)

	require.NoError(t, a.Append(1))
	require.NoError(t, a.Append(2))
	require.NoError(t, b.Append(1))

	_, err = NewWriter("test", opts, a, b).Finish()
	require.ErrorContains(t, err, "rows")
}

func Test_Int64Writer_allNull(t *testing.T) {
	w, err := NewInt64Writer(3, EncodingDirect, WriterOptions{})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, w.AppendNull())
	}

	col, err := w.Finish()
	require.NoError(t, err)

	// All rows NULL: presence survives, the value stream is dropped.
	require.Contains(t, col.Streams, stream.KindPresent)
	require.NotContains(t, col.Streams, stream.KindData)
}

func Test_Int64Writer_roundTrip(t *testing.T) {
	for _, enc := range []Encoding{EncodingDirect, EncodingIntBlock} {
		t.Run(enc.String(), func(t *testing.T) {
			opts := WriterOptions{Codec: stream.CodecSnappy, RowGroupRows: 100}
			w, err := NewInt64Writer(0, enc, opts)
			require.NoError(t, err)

			for i := 0; i < 350; i++ {
				require.NoError(t, w.Append(int64(i*7)))
			}

			s, err := NewWriter("test", opts, w).Finish()
			require.NoError(t, err)

			cr, ok := s.OpenStream(0, stream.KindData)
			require.True(t, ok)

			var dec interface {
				Next() (int64, error)
			}
			if enc == EncodingDirect {
				dec = stream.NewIntDecoder(cr, true, s.Source, stream.ID{Column: 0, Kind: stream.KindData})
			} else {
				dec = stream.NewIntBlockDecoder(cr, s.Source, stream.ID{Column: 0, Kind: stream.KindData})
			}
			for i := 0; i < 350; i++ {
				v, err := dec.Next()
				require.NoError(t, err)
				require.Equal(t, int64(i*7), v)
			}
		})
	}
}

func Test_Int64Writer_checkpointSeek(t *testing.T) {
	opts := WriterOptions{RowGroupRows: 64}
	w, err := NewInt64Writer(0, EncodingDirect, opts)
	require.NoError(t, err)

	// Values picked to defeat run formation so groups do not align by luck.
	vals := make([]int64, 300)
	state := int64(1)
	for i := range vals {
		state = state*6364136223846793005 + 1442695040888963407
		vals[i] = state
		require.NoError(t, w.Append(state))
	}

	s, err := NewWriter("test", opts, w).Finish()
	require.NoError(t, err)

	for g := 0; g < s.RowGroups(); g++ {
		rg, err := s.RowGroup(g)
		require.NoError(t, err)

		cr, ok := s.OpenStream(0, stream.KindData)
		require.True(t, ok)
		cp, ok := rg.Checkpoint(0, stream.KindData)
		require.True(t, ok)
		require.NoError(t, cr.SeekTo(cp))

		dec := stream.NewIntDecoder(cr, true, s.Source, stream.ID{Column: 0, Kind: stream.KindData})
		for i := 0; i < rg.Rows; i++ {
			v, err := dec.Next()
			require.NoError(t, err)
			require.Equal(t, vals[g*64+i], v, "group %d row %d", g, i)
		}
	}
}

func Test_Stats(t *testing.T) {
	opts := WriterOptions{
		Stats: StatsOptions{StoreRangeStats: true, StoreCardinalityStats: true},
	}
	w, err := NewInt64Writer(0, EncodingDirect, opts)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		if i%10 == 0 {
			require.NoError(t, w.AppendNull())
			continue
		}
		require.NoError(t, w.Append(int64(i%30)))
	}

	col, err := w.Finish()
	require.NoError(t, err)
	require.NotNil(t, col.Stats)

	require.Equal(t, 100, col.Stats.Rows)
	require.Equal(t, 10, col.Stats.Nulls)
	require.True(t, col.Stats.HasRange)
	require.Equal(t, int64(1), col.Stats.MinInt64)
	require.Equal(t, int64(29), col.Stats.MaxInt64)
	// The sketch is approximate; the true count is 27.
	require.InDelta(t, 27, float64(col.Stats.Distinct), 3)
}

func Test_DictBytesWriter(t *testing.T) {
	opts := WriterOptions{RowGroupRows: 4}
	w := NewDictBytesWriter(0, opts)

	rows := []string{"red", "green", "red", "blue", "green", "red"}
	for _, v := range rows {
		require.NoError(t, w.Append([]byte(v)))
	}
	require.NoError(t, w.AppendNull())

	s, err := NewWriter("test", opts, w).Finish()
	require.NoError(t, err)

	col, err := s.Column(0)
	require.NoError(t, err)
	require.Equal(t, EncodingDictionary, col.Encoding)
	require.Equal(t, 3, col.DictLen)

	dict, err := LoadDictionary(s, 0)
	require.NoError(t, err)
	require.Equal(t, 3, dict.Len())
	require.Equal(t, []byte("red"), dict.Value(0))
	require.Equal(t, []byte("green"), dict.Value(1))
	require.Equal(t, []byte("blue"), dict.Value(2))

	// Indexes decode back to the written rows.
	cr, ok := s.OpenStream(0, stream.KindData)
	require.True(t, ok)
	dec := stream.NewIntDecoder(cr, false, s.Source, stream.ID{Column: 0, Kind: stream.KindData})
	for i, want := range rows {
		idx, err := dec.Next()
		require.NoError(t, err)
		require.Equal(t, want, string(dict.Value(int(idx))), "row %d", i)
	}
}

func Test_DictCache(t *testing.T) {
	opts := WriterOptions{}
	w := NewDictBytesWriter(0, opts)
	require.NoError(t, w.Append([]byte("only")))

	s, err := NewWriter("test", opts, w).Finish()
	require.NoError(t, err)

	cache, err := NewDictCache(8)
	require.NoError(t, err)

	first, err := cache.Get(s, 0)
	require.NoError(t, err)
	second, err := cache.Get(s, 0)
	require.NoError(t, err)
	require.Same(t, first, second)
}

func Test_BytesWriter_roundTrip(t *testing.T) {
	opts := WriterOptions{Codec: stream.CodecZstd}
	w := NewBytesWriter(0, opts)

	rows := [][]byte{[]byte("a"), []byte(""), []byte("longer value"), []byte("x")}
	for _, v := range rows {
		require.NoError(t, w.Append(v))
	}

	s, err := NewWriter("test", opts, w).Finish()
	require.NoError(t, err)

	dataCR, ok := s.OpenStream(0, stream.KindData)
	require.True(t, ok)
	lenCR, ok := s.OpenStream(0, stream.KindLength)
	require.True(t, ok)

	dec := stream.NewBytesDecoder(stream.NewIntDecoder(lenCR, false, s.Source, stream.ID{Column: 0, Kind: stream.KindLength}), dataCR)
	for i, want := range rows {
		n, err := dec.NextLength()
		require.NoError(t, err)
		got := make([]byte, n)
		require.NoError(t, dec.ReadInto(got))
		require.Equal(t, want, got, "row %d", i)
	}
}
