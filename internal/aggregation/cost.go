package aggregation

import (
	"SanFermin/internal/bitmap"
)

// groupBits is the width of the groups the estimator reads a bitmap in.
const groupBits = 4

// Encoding is the representation chosen for a contribution set on the wire.
type Encoding uint8

const (
	// EncodingLiteral lists every contribution individually.
	EncodingLiteral Encoding = iota

	// EncodingRange sends pre-aggregated ranges of contributions.
	EncodingRange
)

// String returns the name of the encoding.
func (e Encoding) String() string {
	if e == EncodingRange {
		return "range"
	}

	return "literal"
}

// Cost estimates how many aggregated units are needed to send b.
//
// The bitmap is read in groups of four bits starting at bit 0. Consecutive full groups
// are covered by aligned blocks of 1, 2, 4, ... groups, a block of 2^k groups starting
// at a group index divisible by 2^k, and each block costs one unit. In a partial group,
// a run of ones starting at its first bit costs one unit and every other set bit costs one.
// A bitmap with every bit set costs one unit.
func Cost(b bitmap.Bitmap) int {
	if b.Width() > 0 && b.Full() {
		return 1
	}

	groups := (b.Len() + groupBits - 1) / groupBits
	cost := 0

	for g := 0; g < groups; {
		if !fullGroups(b, g, 1) {
			cost += partialGroupCost(b, g)
			g++
			continue
		}

		size := 1
		for g%(size*2) == 0 && fullGroups(b, g, size*2) {
			size *= 2
		}

		cost++
		g += size
	}

	return cost
}

// Choose picks the cheaper representation of b and returns it with its cost in units.
func Choose(b bitmap.Bitmap) (Encoding, int) {
	count := b.Count()
	cost := Cost(b)

	if cost < count {
		return EncodingRange, cost
	}

	return EncodingLiteral, count
}

// fullGroups reports whether the count groups starting at group first have every bit set.
func fullGroups(b bitmap.Bitmap, first, count int) bool {
	lo := first * groupBits
	hi := (first + count) * groupBits

	if hi > b.Width() {
		return false
	}

	for i := lo; i < hi; i++ {
		if !b.Has(i) {
			return false
		}
	}

	return true
}

// partialGroupCost prices a group that is not full.
func partialGroupCost(b bitmap.Bitmap, g int) int {
	base := g * groupBits
	cost := 0
	i := 0

	if b.Has(base) {
		cost = 1
		for i < groupBits && b.Has(base+i) {
			i++
		}
	}

	for ; i < groupBits; i++ {
		if b.Has(base + i) {
			cost++
		}
	}

	return cost
}
