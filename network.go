package sortnet

import (
	"fmt"
)

// Pair is a comparator over two positions. Once normalized X < Y, and after
// the exchange the smaller value sits at X.
type Pair struct {
	X, Y int
}

func (p Pair) String() string { return fmt.Sprintf("(%d,%d)", p.X, p.Y) }

// Network is a comparator network for one algorithm and size, in raw,
// normalized and grouped form. It must not be modified once built.
type Network struct {
	Algorithm Algorithm
	N         int
	// Raw is the generator output, directions not yet consistent.
	Raw []Pair
	// Pairs is Raw after normalization: every pair ascending.
	Pairs []Pair
	// Rounds is Pairs packed into parallel rounds.
	Rounds []Round
}

// Depth is the number of rounds.
func (n *Network) Depth() int { return len(n.Rounds) }

// Size is the number of comparators.
func (n *Network) Size() int { return len(n.Pairs) }

// NewNetwork generates, normalizes and groups the network of algorithm alg
// for n elements.
func NewNetwork(alg Algorithm, n int) (*Network, error) {
	raw, err := Pairs(alg, n)
	if err != nil {
		return nil, err
	}
	pairs := Normalize(raw)
	return &Network{
		Algorithm: alg,
		N:         n,
		Raw:       raw,
		Pairs:     pairs,
		Rounds:    Group(pairs),
	}, nil
}

// Pairs returns the raw comparator list of algorithm alg for n elements.
// Sizes 0 and 1 yield an empty list.
func Pairs(alg Algorithm, n int) ([]Pair, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative network size %d", ErrInvalidConfig, n)
	}
	if !alg.valid() {
		return nil, fmt.Errorf("%w: unknown algorithm %d", ErrInvalidConfig, int(alg))
	}
	if n < 2 {
		return nil, nil
	}
	switch alg {
	case Bitonic:
		return bitonicPairs(n), nil
	case Batcher:
		return batcherPairs(n), nil
	case BoseNelson:
		return boseNelsonPairs(n), nil
	case OddEven:
		return oddEvenPairs(n), nil
	case Transposition:
		return transpositionPairs(n), nil
	case Balanced:
		return balancedPairs(n), nil
	default:
		return minimumPairs(n)
	}
}

// bitonicPairs builds the bitonic network. Non power-of-two spans merge
// around the largest power of two below their length, so only the final
// merge needs descending pairs, which Normalize turns around.
func bitonicPairs(n int) []Pair {
	var out []Pair
	var merge func(lo, n int, up bool)
	merge = func(lo, n int, up bool) {
		if n <= 1 {
			return
		}
		m := nextPow2(n) >> 1
		for i := lo; i < lo+n-m; i++ {
			if up {
				out = append(out, Pair{i, i + m})
			} else {
				out = append(out, Pair{i + m, i})
			}
		}
		merge(lo, m, up)
		merge(lo+m, n-m, up)
	}
	var sort func(lo, n int, up bool)
	sort = func(lo, n int, up bool) {
		if n <= 1 {
			return
		}
		m := n >> 1
		sort(lo, m, !up)
		sort(lo+m, n-m, up)
		merge(lo, n, up)
	}
	sort(0, n, true)
	return out
}

// batcherPairs is Knuth's merge exchange (TAOCP 5.2.2, algorithm M).
func batcherPairs(n int) []Pair {
	var out []Pair
	t := nextPow2(n)
	for p := t / 2; p > 0; p /= 2 {
		q, r, d := t/2, 0, p
		for d > 0 {
			for i := 0; i < n-d; i++ {
				if i&p == r {
					out = append(out, Pair{i, i + d})
				}
			}
			d = q - p
			q /= 2
			r = p
		}
	}
	return out
}

func boseNelsonPairs(n int) []Pair {
	var out []Pair
	var merge func(i, li, j, lj int)
	merge = func(i, li, j, lj int) {
		switch {
		case li == 1 && lj == 1:
			out = append(out, Pair{i, j})
		case li == 1 && lj == 2:
			out = append(out, Pair{i, j + 1}, Pair{i, j})
		case li == 2 && lj == 1:
			out = append(out, Pair{i, j}, Pair{i + 1, j})
		default:
			im := li / 2
			jm := (lj + 1) / 2
			if li%2 == 1 {
				jm = lj / 2
			}
			merge(i, im, j, jm)
			merge(i+im, li-im, j+jm, lj-jm)
			merge(i+im, li-im, j, jm)
		}
	}
	var split func(i, n int)
	split = func(i, n int) {
		if n < 2 {
			return
		}
		m := n / 2
		split(i, m)
		split(i+m, n-m)
		merge(i, m, i+m, n-m)
	}
	split(0, n)
	return out
}

// oddEvenPairs is Batcher's recursive odd-even merge sort over the next
// power of two, with comparators on phantom inputs dropped.
func oddEvenPairs(n int) []Pair {
	var out []Pair
	var merge func(lo, n, r int)
	merge = func(lo, n, r int) {
		m := r * 2
		if m >= n {
			out = append(out, Pair{lo, lo + r})
			return
		}
		merge(lo, n, m)
		merge(lo+r, n, m)
		for i := lo + r; i+r < lo+n; i += m {
			out = append(out, Pair{i, i + r})
		}
	}
	var sort func(lo, n int)
	sort = func(lo, n int) {
		if n <= 1 {
			return
		}
		m := n / 2
		sort(lo, m)
		sort(lo+m, m)
		merge(lo, n, 1)
	}
	sort(0, nextPow2(n))
	kept := out[:0]
	for _, p := range out {
		if p.X < n && p.Y < n {
			kept = append(kept, p)
		}
	}
	return kept
}

func transpositionPairs(n int) []Pair {
	var out []Pair
	for r := range n {
		for i := r % 2; i+1 < n; i += 2 {
			out = append(out, Pair{i, i + 1})
		}
	}
	return out
}

// balancedPairs repeats the balanced merging network log2(t) times, where t
// is the next power of two.
func balancedPairs(n int) []Pair {
	var out []Pair
	t := nextPow2(n)
	for pass := 1; pass < t; pass <<= 1 {
		for c := t; c > 1; c /= 2 {
			for i := 0; i < t; i += c {
				for j := 0; j < c/2; j++ {
					a, b := i+j, i+c-j-1
					if a < n && b < n {
						out = append(out, Pair{a, b})
					}
				}
			}
		}
	}
	return out
}

// Normalize rewrites pairs so that every comparator is ascending while the
// list still sorts. A descending pair (x, y) is turned around and x and y
// are exchanged in all later pairs, which keeps them pointing at the values
// they used to compare. The input is left untouched.
func Normalize(pairs []Pair) []Pair {
	seq := flatten(pairs)
	for i := 0; i < len(seq); i += 2 {
		x, y := seq[i], seq[i+1]
		if x <= y {
			continue
		}
		tail := seq.Slice(i+2, len(seq)).Exchange(x, y)
		seq = Concat(seq.Slice(0, i), Seq{y, x}, tail)
	}
	return unflatten(seq)
}

// Group packs pairs into rounds. Each pair is placed in the round right after
// the latest round that already touches one of its indices, so dependent
// comparators keep their order and independent ones share a round.
func Group(pairs []Pair) []Round {
	var rounds []Round
	for _, p := range pairs {
		idx := len(rounds) - 1
		for ; idx >= 0; idx-- {
			if rounds[idx].touches(p.X) || rounds[idx].touches(p.Y) {
				break
			}
		}
		idx++
		if idx == len(rounds) {
			rounds = append(rounds, nil)
		}
		rounds[idx] = append(rounds[idx], p)
	}
	for _, r := range rounds {
		r.validate()
	}
	return rounds
}
