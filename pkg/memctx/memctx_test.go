package memctx

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Context(t *testing.T) {
	root := New()
	a := root.Child()
	b := root.Child()

	a.SetBytes(100)
	b.SetBytes(50)
	require.Equal(t, int64(150), root.Bytes())
	require.Equal(t, int64(100), a.Bytes())

	// SetBytes replaces the contribution rather than accumulating.
	a.SetBytes(25)
	require.Equal(t, int64(75), root.Bytes())

	grandchild := a.Child()
	grandchild.SetBytes(10)
	require.Equal(t, int64(35), a.Bytes())
	require.Equal(t, int64(85), root.Bytes())

	grandchild.SetBytes(0)
	b.SetBytes(0)
	require.Equal(t, int64(25), root.Bytes())
}

func Test_Context_concurrent(t *testing.T) {
	root := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		child := root.Child()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := int64(1); n <= 1000; n++ {
				child.SetBytes(n)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(8*1000), root.Bytes())
}
