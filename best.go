package sortnet

import (
	"errors"
	"fmt"
	"slices"
)

// Ranked is one candidate kernel of a Best search.
type Ranked struct {
	Algorithm Algorithm
	NetworkN  int
	Score     int
	Kernel    *Kernel
}

// bestAlgorithms are the families a Best search compares.
var bestAlgorithms = []Algorithm{Bitonic, Batcher, OddEven, MinimumDepth}

// Score rates a kernel for Best: permutes count double, blends and memory
// moves once, and every round adds ten. Instruction costs use the metric the
// target's policy favors.
func Score(k *Kernel) int {
	metric := func(s Step) int {
		if k.Target.Policy == FavorUops {
			return s.cost().uops
		}
		return s.cost().size
	}
	var perm, blend, mem int
	for _, s := range k.Steps() {
		switch {
		case s.Form.isPermute():
			perm += metric(s)
		case s.Form.isBlend():
			blend += metric(s)
		case s.Form.isMemory():
			mem += metric(s)
		}
	}
	return 2*perm + blend + mem + 10*len(k.Code)
}

// Rank compiles every candidate network for t and orders them by score.
// Padded sizes run from N to the next power of two in even steps; tiled
// targets only use N. Candidates without a legal encoding are left out.
func Rank(t Target) ([]Ranked, error) {
	rt, err := t.Resolve()
	if err != nil {
		return nil, err
	}
	sizes := []int{rt.N}
	if rt.Blocks == 1 {
		for n := rt.N + 1; n <= nextPow2(rt.N); n++ {
			if n%2 == 0 {
				sizes = append(sizes, n)
			}
		}
	}
	var out []Ranked
	for _, alg := range bestAlgorithms {
		for _, n := range sizes {
			if alg == MinimumDepth && n > MaxMinimumN {
				continue
			}
			k, err := Generate(Request{Algorithm: alg, Target: t, NetworkN: n})
			if errors.Is(err, ErrNoEncoding) {
				continue
			}
			if err != nil {
				return nil, err
			}
			out = append(out, Ranked{Algorithm: alg, NetworkN: n, Score: Score(k), Kernel: k})
		}
	}
	slices.SortStableFunc(out, func(a, b Ranked) int { return a.Score - b.Score })
	return out, nil
}

// Best returns the lowest scoring kernel for t. Ties go to the earlier
// algorithm, then the smaller network.
func Best(t Target) (Ranked, error) {
	ranked, err := Rank(t)
	if err != nil {
		return Ranked{}, err
	}
	if len(ranked) == 0 {
		return Ranked{}, fmt.Errorf("%w: no candidate network encodes on %s", ErrNoEncoding, t.Features)
	}
	return ranked[0], nil
}
