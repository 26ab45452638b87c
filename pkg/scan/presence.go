package scan

import "github.com/opencolumn/stripescan/pkg/stream"

// presenceReader wraps a column's PRESENT stream. An absent stream means
// every row has a value, and the wrapper answers without branching per row.
type presenceReader struct {
	bits *stream.BitDecoder
}

func (p *presenceReader) reset(r *stream.ChunkReader, source string, id stream.ID) {
	if r == nil {
		p.bits = nil
		return
	}
	if p.bits == nil {
		p.bits = stream.NewBitDecoder(r, source, id)
		return
	}
	p.bits.Reset(r, source, id)
}

// absent reports whether the column has no PRESENT stream.
func (p *presenceReader) absent() bool { return p.bits == nil }

// skip consumes n presence bits and returns how many of them were set, which
// is the number of data values the caller must skip in the DATA stream.
func (p *presenceReader) skip(n int) (int, error) {
	if p.bits == nil {
		return n, nil
	}
	return p.bits.CountBitsSet(n)
}

// unsetBits decodes the next n presence bits into nulls (true = NULL) and
// returns the number of NULL rows.
func (p *presenceReader) unsetBits(n int, nulls []bool) (int, error) {
	if p.bits == nil {
		for i := 0; i < n; i++ {
			nulls[i] = false
		}
		return 0, nil
	}
	return p.bits.UnsetBits(n, nulls)
}
