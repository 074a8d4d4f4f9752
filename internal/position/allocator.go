// Package position computes gap-based ordering keys for cards and
// columns. Siblings are spaced DefaultGap apart so an insertion between
// two neighbors can pick a midpoint without renumbering the container.
// When repeated fine-grained insertions collapse a gap, the caller
// renormalizes the container back to even spacing.
package position

import "math/rand"

// DefaultGap is the spacing between freshly normalized siblings and the
// step used when inserting at either end of a container.
const DefaultGap = 1000

// MaxJitter bounds the randomized offset added when retrying after a
// position collision.
const MaxJitter = DefaultGap / 10

// Allocate returns an ordering key for an entity inserted between two
// siblings. Either neighbor may be nil: nil prev means "insert first",
// nil next means "insert last", both nil means "empty container".
// Allocate itself never fails; collisions between concurrent writers are
// detected by the store's unique constraint and retried there.
func Allocate(prev, next *int64) int64 {
	switch {
	case prev == nil && next == nil:
		return DefaultGap
	case next == nil:
		return *prev + DefaultGap
	case prev == nil:
		return *next - DefaultGap
	default:
		return midpoint(*prev, *next)
	}
}

// Exhausted reports whether the gap between two neighbors has collapsed:
// integer division leaves no key strictly between them. The caller must
// renormalize the container before the insert can succeed.
func Exhausted(prev, next *int64) bool {
	if prev == nil || next == nil {
		return false
	}
	mid := midpoint(*prev, *next)
	return mid == *prev || mid == *next
}

// Jitter returns a small random positive offset, added to a computed key
// when retrying after a collision so two racing writers diverge.
func Jitter() int64 {
	return rand.Int63n(MaxJitter) + 1
}

// JitterWithin returns pos plus a random positive offset that keeps the
// key strictly below next when next is bounded. When the window leaves
// no room to jitter, pos is returned unchanged.
func JitterWithin(pos int64, next *int64) int64 {
	j := Jitter()
	if next == nil {
		return pos + j
	}
	room := *next - pos - 1
	if room <= 0 {
		return pos
	}
	if j > room {
		j = rand.Int63n(room) + 1
	}
	return pos + j
}

// Renormalized returns evenly re-spaced keys for n siblings in ascending
// order: DefaultGap, 2*DefaultGap, ... Used by the store to restore
// usable gaps inside the same transaction as the reads it is based on.
func Renormalized(n int) []int64 {
	keys := make([]int64, n)
	for i := range keys {
		keys[i] = int64(i+1) * DefaultGap
	}
	return keys
}

// midpoint floors (a+b)/2; the arithmetic shift keeps flooring correct
// for negative sums.
func midpoint(a, b int64) int64 {
	return (a + b) >> 1
}
