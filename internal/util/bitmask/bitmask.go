// Package bitmask provides a grow-only bitset used to accumulate retained row
// positions across multiple filter passes over one disjunction.
package bitmask

import "math/bits"

// A Set is a bitset indexed by row position. The zero value is an empty set
// ready for use.
//
// Set is grow-only: capacity is retained across Reset calls so a Set can be
// reused batch after batch without reallocating.
type Set struct {
	words []uint64
	n     int
}

const wordBits = 64

// Resize readies the set to hold n positions, clearing all bits. Previously
// allocated capacity is reused when large enough.
func (s *Set) Resize(n int) {
	words := (n + wordBits - 1) / wordBits
	if cap(s.words) < words {
		s.words = make([]uint64, words)
	} else {
		s.words = s.words[:words]
		clear(s.words)
	}
	s.n = n
}

// Len returns the number of positions the set can hold.
func (s *Set) Len() int { return s.n }

// Set marks position i as retained. It panics if i is out of range.
func (s *Set) Set(i int) {
	s.words[i/wordBits] |= 1 << (i % wordBits)
}

// Get reports whether position i is retained.
func (s *Set) Get(i int) bool {
	return s.words[i/wordBits]&(1<<(i%wordBits)) != 0
}

// Count returns the number of retained positions.
func (s *Set) Count() int {
	var total int
	for _, w := range s.words {
		total += bits.OnesCount64(w)
	}
	return total
}
