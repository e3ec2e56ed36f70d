// Package sortnet generates SIMD sorting-network kernels for small arrays.
//
// For a fixed element count N, an element type and a vector width the
// generator derives a comparator network (bitonic, Batcher, Bose-Nelson,
// odd-even, transposition, balanced or a known minimum-depth network),
// rewrites it into ascending form, packs it into parallel rounds and selects
// the cheapest legal x86 vector instructions for every round under a cost
// policy. The result is a Kernel: an ordered list of instruction steps over
// virtual registers that a downstream emitter (see internal/avo) turns into
// assembly.
//
// Generation is a pure function of its Request. The package keeps no global
// mutable state, so independent configurations may be generated concurrently.
package sortnet

import (
	"errors"
	"fmt"
	"strings"
)

// MaxN is the largest element count (N times Blocks) accepted by Generate.
const MaxN = 256

var (
	// ErrInvalidConfig reports a malformed or unsupported configuration.
	ErrInvalidConfig = errors.New("sortnet: invalid configuration")
	// ErrNoEncoding reports that no legal instruction sequence exists for a
	// round on the requested target.
	ErrNoEncoding = errors.New("sortnet: no legal encoding")
	// ErrOutOfBounds is returned by the emulator when a step would touch
	// memory outside the supplied buffer.
	ErrOutOfBounds = errors.New("sortnet: memory access out of bounds")
)

// Algorithm selects the comparator network family.
type Algorithm int

const (
	Bitonic Algorithm = iota
	Batcher
	BoseNelson
	OddEven
	MinimumDepth
	Transposition
	Balanced
)

var algorithmNames = [...]string{
	Bitonic:       "bitonic",
	Batcher:       "batcher",
	BoseNelson:    "bose-nelson",
	OddEven:       "odd-even",
	MinimumDepth:  "minimum-depth",
	Transposition: "transposition",
	Balanced:      "balanced",
}

// Algorithms lists every supported network family in declaration order.
func Algorithms() []Algorithm {
	algs := make([]Algorithm, len(algorithmNames))
	for i := range algs {
		algs[i] = Algorithm(i)
	}
	return algs
}

func (a Algorithm) String() string {
	if a < 0 || int(a) >= len(algorithmNames) {
		return fmt.Sprintf("Algorithm(%d)", int(a))
	}
	return algorithmNames[a]
}

func (a Algorithm) valid() bool {
	return a >= 0 && int(a) < len(algorithmNames)
}

// ParseAlgorithm maps a tag such as "bitonic" or "bose-nelson" to an Algorithm.
// A few historical spellings ("bosenelson", "oddeven", "minimum") are accepted.
func ParseAlgorithm(s string) (Algorithm, error) {
	tag := strings.ToLower(strings.TrimSpace(s))
	switch tag {
	case "bosenelson":
		return BoseNelson, nil
	case "oddeven":
		return OddEven, nil
	case "minimum", "min":
		return MinimumDepth, nil
	}
	for i, name := range algorithmNames {
		if name == tag {
			return Algorithm(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, s)
}

// Policy is the tie-break rule between equally legal encodings.
type Policy int

const (
	// FavorSize prefers fewer instruction and pattern-data bytes.
	FavorSize Policy = iota
	// FavorUops prefers fewer executed micro-operations.
	FavorUops
)

func (p Policy) String() string {
	switch p {
	case FavorSize:
		return "size"
	case FavorUops:
		return "uop"
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy accepts "size"/"space" and "uop"/"uops".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "size", "space", "favor-size":
		return FavorSize, nil
	case "uop", "uops", "favor-uop", "favor-uops":
		return FavorUops, nil
	}
	return 0, fmt.Errorf("%w: unknown cost policy %q", ErrInvalidConfig, s)
}

// nextPow2 returns the smallest power of two >= n (1 for n <= 1).
func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
