package stream

import (
	"bytes"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencolumn/stripescan/pkg/decimal"
)

func Test_decimal(t *testing.T) {
	values := []decimal.Int128{
		decimal.FromInt64(0),
		decimal.FromInt64(1),
		decimal.FromInt64(-1),
		decimal.FromInt64(math.MaxInt64),
		decimal.FromInt64(math.MinInt64),
		{Hi: 1, Lo: 0},
		{Hi: -2, Lo: ^uint64(0)},
		{Hi: math.MaxInt64, Lo: ^uint64(0)},
		{Hi: math.MinInt64, Lo: 0},
	}

	var buf bytes.Buffer
	enc := NewDecimalEncoder(&buf)
	for _, v := range values {
		require.NoError(t, enc.Encode(v))
	}

	dec := NewDecimalDecoder(&buf, "test", testID)
	for i, want := range values {
		got, err := dec.Next()
		require.NoError(t, err)
		require.Equal(t, want, got, "value %d", i)
	}
}

func Test_decimal_Skip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewDecimalEncoder(&buf)
	for i := int64(0); i < 100; i++ {
		require.NoError(t, enc.Encode(decimal.FromInt64(i*1_000_000_007)))
	}

	dec := NewDecimalDecoder(&buf, "test", testID)
	require.NoError(t, dec.Skip(90))
	for i := int64(90); i < 100; i++ {
		got, err := dec.Next()
		require.NoError(t, err)
		require.Equal(t, decimal.FromInt64(i*1_000_000_007), got)
	}
}

func Test_decimal_overwideMantissa(t *testing.T) {
	// 20 continuation groups exceed the 128-bit budget.
	data := bytes.Repeat([]byte{0x80}, 20)

	dec := NewDecimalDecoder(bytes.NewReader(data), "test", testID)
	_, err := dec.Next()

	var corrupt *CorruptionError
	require.ErrorAs(t, err, &corrupt)
	require.Equal(t, "test", corrupt.Source)
}

func Fuzz_decimal(f *testing.F) {
	f.Add(int64(775972800), 10)
	f.Add(int64(758350800), 300)

	f.Fuzz(func(t *testing.T, seed int64, count int) {
		if count <= 0 || count > 1<<14 {
			t.Skip()
		}

		rnd := rand.New(rand.NewSource(seed))

		var buf bytes.Buffer
		enc := NewDecimalEncoder(&buf)

		values := make([]decimal.Int128, count)
		for i := range values {
			if rnd.Intn(2) == 0 {
				values[i] = decimal.FromInt64(rnd.Int63() - rnd.Int63())
			} else {
				values[i] = decimal.Int128{Hi: int64(rnd.Uint64()), Lo: rnd.Uint64()}
			}
			require.NoError(t, enc.Encode(values[i]))
		}

		dec := NewDecimalDecoder(&buf, "test", testID)
		for i, want := range values {
			got, err := dec.Next()
			require.NoError(t, err)
			require.Equal(t, want, got, "value %d", i)
		}
	})
}
