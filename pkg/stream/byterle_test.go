package stream

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_byteRLE(t *testing.T) {
	tt := []struct {
		name   string
		values []byte
	}{
		{"single run", bytes.Repeat([]byte{7}, 130)},
		{"literals", []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{"run then literals", append(bytes.Repeat([]byte{0}, 10), 9, 8, 7)},
		{"short run", []byte{5, 5, 5}},
		{"two values", []byte{5, 5}},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer

			enc := NewByteRLEEncoder(&buf)
			for _, v := range tc.values {
				require.NoError(t, enc.Encode(v))
			}
			require.NoError(t, enc.Flush())

			dec := NewByteRLEDecoder(&buf, "test", testID)
			actual := make([]byte, len(tc.values))
			require.NoError(t, dec.NextN(actual, len(actual)))
			require.Equal(t, tc.values, actual)
		})
	}
}

func Test_byteRLE_Skip(t *testing.T) {
	var buf bytes.Buffer

	enc := NewByteRLEEncoder(&buf)
	for i := 0; i < 300; i++ {
		require.NoError(t, enc.Encode(byte(i%7)))
	}
	require.NoError(t, enc.Flush())

	dec := NewByteRLEDecoder(&buf, "test", testID)
	require.NoError(t, dec.Skip(250))
	for i := 250; i < 300; i++ {
		b, err := dec.Next()
		require.NoError(t, err)
		require.Equal(t, byte(i%7), b)
	}
}

func Test_byteRLE_truncated(t *testing.T) {
	tt := []struct {
		name string
		data []byte
	}{
		{"run missing value byte", []byte{0x05}},
		{"literal group cut short", []byte{0xfe, 0xaa}},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			dec := NewByteRLEDecoder(bytes.NewReader(tc.data), "test", testID)
			_, err := dec.Next()
			require.Error(t, err)

			var corrupt *CorruptionError
			require.ErrorAs(t, err, &corrupt)
			require.Equal(t, "test", corrupt.Source)
			require.Equal(t, testID, corrupt.Stream)
		})
	}
}

func Fuzz_byteRLE(f *testing.F) {
	f.Add(int64(775972800), 10)
	f.Add(int64(758350800), 2500)

	f.Fuzz(func(t *testing.T, seed int64, count int) {
		if count <= 0 || count > 1<<16 {
			t.Skip()
		}

		rnd := rand.New(rand.NewSource(seed))

		var buf bytes.Buffer
		enc := NewByteRLEEncoder(&buf)

		values := make([]byte, count)
		for i := range values {
			// Small alphabet to exercise both runs and literals.
			values[i] = byte(rnd.Intn(3))
			require.NoError(t, enc.Encode(values[i]))
		}
		require.NoError(t, enc.Flush())

		dec := NewByteRLEDecoder(&buf, "test", testID)
		actual := make([]byte, count)
		require.NoError(t, dec.NextN(actual, count))
		require.Equal(t, values, actual)
	})
}
