package stream

import (
	"bytes"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_intBlock(t *testing.T) {
	tt := []struct {
		name   string
		values []int64
	}{
		{"partial block", seq(0, 100, 1)},
		{"exact block", seq(0, 256, 1)},
		{"multiple blocks", seq(0, 1000, 1)},
		{"extremes", []int64{math.MinInt64, -1, 0, 1, math.MaxInt64}},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer

			enc := NewIntBlockEncoder(&buf)
			for _, v := range tc.values {
				require.NoError(t, enc.Encode(v))
			}
			require.NoError(t, enc.Flush())

			dec := NewIntBlockDecoder(&buf, "test", testID)
			actual := make([]int64, len(tc.values))
			require.NoError(t, dec.NextN(actual, len(actual)))
			require.Equal(t, tc.values, actual)
		})
	}
}

func Test_intBlock_Skip(t *testing.T) {
	var buf bytes.Buffer

	enc := NewIntBlockEncoder(&buf)
	for i := int64(0); i < 900; i++ {
		require.NoError(t, enc.Encode(i * 11))
	}
	require.NoError(t, enc.Flush())

	// Skip across a block boundary.
	dec := NewIntBlockDecoder(&buf, "test", testID)
	require.NoError(t, dec.Skip(700))
	for i := int64(700); i < 900; i++ {
		v, err := dec.Next()
		require.NoError(t, err)
		require.Equal(t, i*11, v)
	}
}

func Test_intBlock_truncated(t *testing.T) {
	var buf bytes.Buffer
	enc := NewIntBlockEncoder(&buf)
	for i := int64(0); i < 100; i++ {
		require.NoError(t, enc.Encode(i))
	}
	require.NoError(t, enc.Flush())
	encoded := buf.Bytes()

	tt := []struct {
		name string
		data []byte
	}{
		{"invalid block length", []byte{0x09}},
		{"block body cut short", encoded[:len(encoded)-3]},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			dec := NewIntBlockDecoder(bytes.NewReader(tc.data), "test", testID)
			_, err := dec.Next()
			require.Error(t, err)

			var corrupt *CorruptionError
			require.ErrorAs(t, err, &corrupt)
			require.Equal(t, "test", corrupt.Source)
			require.Equal(t, testID, corrupt.Stream)
		})
	}
}

func Fuzz_intBlock(f *testing.F) {
	f.Add(int64(775972800), 10)
	f.Add(int64(758350800), 600)

	f.Fuzz(func(t *testing.T, seed int64, count int) {
		if count <= 0 || count > 1<<15 {
			t.Skip()
		}

		rnd := rand.New(rand.NewSource(seed))

		var buf bytes.Buffer
		enc := NewIntBlockEncoder(&buf)

		values := make([]int64, count)
		for i := range values {
			values[i] = rnd.Int63() - rnd.Int63()
			require.NoError(t, enc.Encode(values[i]))
		}
		require.NoError(t, enc.Flush())

		dec := NewIntBlockDecoder(&buf, "test", testID)
		actual := make([]int64, count)
		require.NoError(t, dec.NextN(actual, count))
		require.Equal(t, values, actual)
	})
}
