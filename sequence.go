package sortnet

import (
	"slices"

	"github.com/samber/lo"
)

// Seq is an ordered list of integers. Comparator networks travel through the
// pipeline both as []Pair and in this flattened form (x0, y0, x1, y1, ...).
type Seq []int

// Slice returns a copy of s[lo:hi].
func (s Seq) Slice(lo, hi int) Seq {
	return slices.Clone(s[lo:hi])
}

// Concat joins sequences in order.
func Concat(seqs ...Seq) Seq {
	return lo.Flatten(lo.Map(seqs, func(s Seq, _ int) []int { return s }))
}

// Insert returns a copy of s with vals inserted before position i.
func (s Seq) Insert(i int, vals ...int) Seq {
	return slices.Insert(slices.Clone(s), i, vals...)
}

// Remove returns a copy of s without the element at position i.
func (s Seq) Remove(i int) Seq {
	return slices.Delete(slices.Clone(s), i, i+1)
}

// Replace returns a copy of s with every old value replaced by new.
func (s Seq) Replace(old, new int) Seq {
	return lo.Map(s, func(v int, _ int) int {
		if v == old {
			return new
		}
		return v
	})
}

// Exchange returns a copy of s with every a replaced by b and every b by a.
func (s Seq) Exchange(a, b int) Seq {
	return lo.Map(s, func(v int, _ int) int {
		switch v {
		case a:
			return b
		case b:
			return a
		}
		return v
	})
}

// Offset adds d to every element.
func (s Seq) Offset(d int) Seq {
	return lo.Map(s, func(v int, _ int) int { return v + d })
}

// Contains reports whether v occurs in s.
func (s Seq) Contains(v int) bool {
	return lo.Contains(s, v)
}

// flatten turns pairs into (x0, y0, x1, y1, ...).
func flatten(pairs []Pair) Seq {
	return lo.FlatMap(pairs, func(p Pair, _ int) []int { return []int{p.X, p.Y} })
}

// unflatten is the inverse of flatten. len(s) must be even.
func unflatten(s Seq) []Pair {
	if len(s)%2 != 0 {
		panic("sortnet: odd-length pair sequence")
	}
	return lo.Map(lo.Chunk([]int(s), 2), func(c []int, _ int) Pair { return Pair{c[0], c[1]} })
}
