package stream

import (
	"bytes"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_intRLE(t *testing.T) {
	tt := []struct {
		name   string
		values []int64
	}{
		{"ascending run", seq(0, 200, 1)},
		{"descending run", seq(500, 340, -1)},
		{"constant run", seq(42, 42, 0)},
		{"literals", []int64{9, 2, 71, 3, 88, 1}},
		{"negatives", []int64{-1, -52, -3, math.MinInt64, math.MaxInt64}},
		{"single", []int64{12345}},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer

			enc := NewIntEncoder(&buf, true)
			for _, v := range tc.values {
				require.NoError(t, enc.Encode(v))
			}
			require.NoError(t, enc.Flush())

			dec := NewIntDecoder(&buf, true, "test", testID)
			actual := make([]int64, len(tc.values))
			require.NoError(t, dec.NextN(actual, len(actual)))
			require.Equal(t, tc.values, actual)
		})
	}
}

func Test_intRLE_unsigned(t *testing.T) {
	values := []int64{0, 1, 127, 128, 1 << 40, math.MaxInt64}

	var buf bytes.Buffer
	enc := NewIntEncoder(&buf, false)
	for _, v := range values {
		require.NoError(t, enc.Encode(v))
	}
	require.NoError(t, enc.Flush())

	dec := NewIntDecoder(&buf, false, "test", testID)
	actual := make([]int64, len(values))
	require.NoError(t, dec.NextN(actual, len(actual)))
	require.Equal(t, values, actual)
}

func Test_intRLE_Skip(t *testing.T) {
	var buf bytes.Buffer

	enc := NewIntEncoder(&buf, true)
	for i := int64(0); i < 1000; i++ {
		require.NoError(t, enc.Encode(i*3))
	}
	require.NoError(t, enc.Flush())

	dec := NewIntDecoder(&buf, true, "test", testID)
	require.NoError(t, dec.Skip(995))
	for i := int64(995); i < 1000; i++ {
		v, err := dec.Next()
		require.NoError(t, err)
		require.Equal(t, i*3, v)
	}
}

func Test_intRLE_truncated(t *testing.T) {
	tt := []struct {
		name string
		data []byte
	}{
		{"run missing delta", []byte{0x00}},
		{"run base cut mid-varint", []byte{0x00, 0x01, 0x80}},
		{"literal group missing values", []byte{0xff}},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			dec := NewIntDecoder(bytes.NewReader(tc.data), true, "test", testID)
			_, err := dec.Next()
			require.Error(t, err)

			var corrupt *CorruptionError
			require.ErrorAs(t, err, &corrupt)
			require.Equal(t, "test", corrupt.Source)
			require.Equal(t, testID, corrupt.Stream)
		})
	}
}

func Fuzz_intRLE(f *testing.F) {
	f.Add(int64(775972800), 10)
	f.Add(int64(758350800), 4000)

	f.Fuzz(func(t *testing.T, seed int64, count int) {
		if count <= 0 || count > 1<<16 {
			t.Skip()
		}

		rnd := rand.New(rand.NewSource(seed))

		var buf bytes.Buffer
		enc := NewIntEncoder(&buf, true)

		values := make([]int64, count)
		for i := range values {
			// Mix runs with noise.
			if rnd.Intn(2) == 0 {
				values[i] = int64(rnd.Intn(5))
			} else {
				values[i] = rnd.Int63() - rnd.Int63()
			}
			require.NoError(t, enc.Encode(values[i]))
		}
		require.NoError(t, enc.Flush())

		dec := NewIntDecoder(&buf, true, "test", testID)
		actual := make([]int64, count)
		require.NoError(t, dec.NextN(actual, count))
		require.Equal(t, values, actual)
	})
}

func seq(from, to, step int64) []int64 {
	var out []int64
	if step == 0 {
		for i := 0; i < 100; i++ {
			out = append(out, from)
		}
		return out
	}
	for v := from; v != to; v += step {
		out = append(out, v)
	}
	return out
}
