// Package slicegrow provides utilities for growing slices to a minimum
// capacity without shrinking them.
package slicegrow

// GrowToCap returns a slice with capacity of at least n. The length of the
// returned slice matches the length of the input slice; existing elements are
// preserved.
func GrowToCap[T any](s []T, n int) []T {
	if cap(s) >= n {
		return s
	}
	grown := make([]T, len(s), n)
	copy(grown, s)
	return grown
}

// GrowLen returns a slice with a length of exactly n, growing the capacity if
// needed. Elements beyond the original length are not cleared.
func GrowLen[T any](s []T, n int) []T {
	s = GrowToCap(s, n)
	return s[:n]
}
