package scan

import "github.com/opencolumn/stripescan/internal/util/slicegrow"

// scratch holds the output state shared by every reader type: the filtered
// position list, the output null mask, and the presence bits decoded for the
// current batch span. Buffers grow but never shrink; value buffers live in
// the typed readers because their element types differ.
type scratch struct {
	rowNulls []bool // Presence decode of the batch span, true = NULL.

	positions []int // Owned output positions, used on filtered paths.
	outPos    []int // Active output view; aliases the caller's input when no filter ran.
	nulls     []bool
	subset    []int // Index scratch for Block's compaction path.
	count     int
	anyNull   bool
	allNull   bool
	valid     bool // A read produced output that Block has not consumed.
}

// begin resets per-batch state and sizes the owned buffers for up to n output
// rows. grew reports whether any buffer grew, so the caller can push a fresh
// memory report.
func (sc *scratch) begin(n int) (grew bool) {
	sc.count = 0
	sc.anyNull = false
	sc.allNull = false
	sc.valid = false
	sc.outPos = nil

	if cap(sc.positions) < n {
		sc.positions = slicegrow.GrowToCap(sc.positions, n)
		grew = true
	}
	if cap(sc.nulls) < n {
		sc.nulls = slicegrow.GrowToCap(sc.nulls, n)
		grew = true
	}
	sc.positions = sc.positions[:n]
	sc.nulls = sc.nulls[:n]
	return grew
}

// growSpan sizes rowNulls for a batch spanning n rows.
func (sc *scratch) growSpan(n int) (grew bool) {
	if cap(sc.rowNulls) < n {
		sc.rowNulls = slicegrow.GrowToCap(sc.rowNulls, n)
		grew = true
	}
	sc.rowNulls = sc.rowNulls[:n]
	return grew
}

// append records one retained row and returns its dense output slot.
func (sc *scratch) append(pos int, isNull bool) int {
	i := sc.count
	sc.positions[i] = pos
	sc.nulls[i] = isNull
	if isNull {
		sc.anyNull = true
	}
	sc.count++
	return i
}

// finish seals the batch. aliased, when non-nil, becomes the output position
// view without copying; otherwise the owned positions buffer is used.
func (sc *scratch) finish(aliased []int) {
	if aliased != nil {
		sc.outPos = aliased
	} else {
		sc.outPos = sc.positions[:sc.count]
	}
	sc.valid = true
}

// finishAllNull seals an all-null batch: retained positions are recorded but
// no null mask or value buffer is populated.
func (sc *scratch) finishAllNull() {
	sc.allNull = true
	sc.anyNull = true
	sc.outPos = sc.positions[:sc.count]
	sc.valid = true
}

// takeNulls transfers the null mask out of the scratch. The reader allocates
// a fresh mask on the next read. Returns nil when no retained row was NULL.
func (sc *scratch) takeNulls() []bool {
	if !sc.anyNull {
		return nil
	}
	out := sc.nulls[:sc.count]
	sc.nulls = nil
	return out
}

func (sc *scratch) bytes() int64 {
	return int64(cap(sc.rowNulls)) + int64(cap(sc.positions))*8 +
		int64(cap(sc.nulls)) + int64(cap(sc.subset))*8
}

// subsetIndexes maps each requested position to its dense index in the
// current output. Both lists are ascending; requesting a position that was
// not retained is a caller error.
func (sc *scratch) subsetIndexes(positions []int) ([]int, error) {
	sc.subset = slicegrow.GrowLen(sc.subset, len(positions))
	j := 0
	for i, pos := range positions {
		for j < sc.count && sc.outPos[j] < pos {
			j++
		}
		if j == sc.count || sc.outPos[j] != pos {
			return nil, usagef("Block", "position %d was not retained by the previous read", pos)
		}
		sc.subset[i] = j
		j++
	}
	return sc.subset, nil
}
