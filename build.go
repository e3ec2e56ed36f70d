package sortnet

import (
	"fmt"
	"slices"
)

// Round is a set of comparators with pairwise disjoint indices that execute
// together.
type Round []Pair

func (r Round) touches(i int) bool {
	for _, p := range r {
		if p.X == i || p.Y == i {
			return true
		}
	}
	return false
}

// validate panics if an index occurs twice or a pair is not ascending.
func (r Round) validate() {
	seen := make(map[int]bool, 2*len(r))
	for _, p := range r {
		if p.X >= p.Y || p.X < 0 {
			panic(fmt.Sprintf("sortnet: malformed comparator %v in round %v", p, r))
		}
		if seen[p.X] || seen[p.Y] {
			panic(fmt.Sprintf("sortnet: index repeated in round %v", r))
		}
		seen[p.X], seen[p.Y] = true, true
	}
}

// Tile replicates the rounds of an n-element network over blocks adjacent
// blocks; block b uses indices [b*n, (b+1)*n).
func Tile(rounds []Round, n, blocks int) []Round {
	if blocks <= 1 {
		return rounds
	}
	tiled := make([]Round, len(rounds))
	for i, r := range rounds {
		seq := flatten(r)
		parts := make([]Seq, blocks)
		for b := range parts {
			parts[b] = seq.Offset(b * n)
		}
		tiled[i] = Round(unflatten(Concat(parts...)))
		tiled[i].validate()
	}
	return tiled
}

// Perm is the per-lane form of one round.
type Perm struct {
	Pairs []Pair
	// Partner[i] is the lane compared against lane i, or i if lane i is
	// untouched.
	Partner []int
	// KeepMin[i] is set when lane i receives the minimum of its pair.
	KeepMin []bool
}

// Touched reports whether lane i takes part in a comparison.
func (p Perm) Touched(i int) bool { return p.Partner[i] != i }

// validate panics unless partners are symmetric and exactly one side of every
// pair keeps the minimum.
func (p Perm) validate() {
	if len(p.Partner) != len(p.KeepMin) {
		panic("sortnet: partner and mask lengths differ")
	}
	for i, j := range p.Partner {
		if j < 0 || j >= len(p.Partner) || p.Partner[j] != i {
			panic(fmt.Sprintf("sortnet: lane %d has no matching partner", i))
		}
		if j == i {
			if p.KeepMin[i] {
				panic(fmt.Sprintf("sortnet: untouched lane %d keeps the minimum", i))
			}
			continue
		}
		if p.KeepMin[i] == p.KeepMin[j] {
			panic(fmt.Sprintf("sortnet: lanes %d and %d keep the same side", i, j))
		}
	}
}

// Build converts rounds into per-lane permutations over lanes slots.
func Build(rounds []Round, lanes int) []Perm {
	perms := make([]Perm, len(rounds))
	for i, r := range rounds {
		r.validate()
		p := Perm{
			Pairs:   slices.Clone(r),
			Partner: make([]int, lanes),
			KeepMin: make([]bool, lanes),
		}
		for l := range p.Partner {
			p.Partner[l] = l
		}
		for _, c := range r {
			if c.Y >= lanes {
				panic(fmt.Sprintf("sortnet: comparator %v exceeds %d lanes", c, lanes))
			}
			p.Partner[c.X], p.Partner[c.Y] = c.Y, c.X
			p.KeepMin[c.X] = true
		}
		p.validate()
		perms[i] = p
	}
	return perms
}
