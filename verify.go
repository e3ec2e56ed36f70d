package sortnet

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
)

// ErrMismatch reports a kernel that did not sort its input or wrote outside
// the element range.
var ErrMismatch = errors.New("sortnet: kernel output mismatch")

// VerifyOptions configures Verify.
type VerifyOptions struct {
	// Trials is the number of random inputs. Zero means 100.
	Trials int
	// Seed seeds the random inputs.
	Seed uint64
	// ZeroOne also runs every 0-1 input when the kernel sorts at most
	// MaxZeroOne elements.
	ZeroOne bool
}

// MaxZeroOne bounds exhaustive 0-1 verification.
const MaxZeroOne = 16

const guardBytes = 16

// compareElems orders element bit patterns of type t.
func compareElems(t Type) func(a, b uint64) int {
	if !t.Signed {
		return cmp.Compare[uint64]
	}
	shift := 64 - t.Bits
	return func(a, b uint64) int {
		return cmp.Compare(int64(a<<shift)>>shift, int64(b<<shift)>>shift)
	}
}

// checker runs a kernel on one input and compares against a reference sort.
type checker struct {
	k   *Kernel
	eb  int
	cmp func(a, b uint64) int
	buf []byte
}

func newChecker(k *Kernel) *checker {
	return &checker{
		k:   k,
		eb:  k.Target.Type.Bytes(),
		cmp: compareElems(k.Target.Type),
		buf: make([]byte, k.BufferLen()+guardBytes),
	}
}

func (c *checker) check(input []uint64) error {
	t := c.k.Target
	for i := range c.buf {
		c.buf[i] = 0xa5 ^ byte(i)
	}
	for i, v := range input {
		putElem(c.buf[i*c.eb:], c.eb, v)
	}
	tail := slices.Clone(c.buf[len(input)*c.eb:])
	if err := c.k.Run(c.buf); err != nil {
		return err
	}
	want := slices.Clone(input)
	for b := 0; b < len(want); b += t.N {
		slices.SortFunc(want[b:b+t.N], c.cmp)
	}
	got := make([]uint64, len(input))
	for i := range got {
		got[i] = getElem(c.buf[i*c.eb:], c.eb)
	}
	if !slices.Equal(got, want) {
		return fmt.Errorf("%w: input %v sorted to %v", ErrMismatch, input, got)
	}
	if !bytes.Equal(c.buf[len(input)*c.eb:], tail) {
		return fmt.Errorf("%w: bytes past the %d elements were modified", ErrMismatch, len(input))
	}
	return nil
}

// Verify runs k on sorted, reverse-sorted, constant, extreme and random
// inputs (and optionally every 0-1 input) and compares every block with a
// reference sort. Guard bytes after the elements must survive untouched.
func Verify(k *Kernel, opts VerifyOptions) error {
	t := k.Target
	total := t.Total()
	c := newChecker(k)
	mask := t.Type.mask()
	minVal := uint64(0)
	if t.Type.Signed {
		minVal = (t.Type.Max() + 1) & mask
	}

	var inputs [][]uint64
	fixed := func(f func(i int) uint64) {
		in := make([]uint64, total)
		for i := range in {
			in[i] = f(i) & mask
		}
		inputs = append(inputs, in)
	}
	fixed(func(i int) uint64 { return uint64(i) })
	fixed(func(i int) uint64 { return uint64(total - i) })
	fixed(func(int) uint64 { return 7 })
	fixed(func(i int) uint64 {
		if i%2 == 0 {
			return t.Type.Max()
		}
		return minVal
	})

	trials := opts.Trials
	if trials == 0 {
		trials = 100
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	for range trials {
		in := make([]uint64, total)
		for i := range in {
			in[i] = rng.Uint64() & mask
			if i%3 == 0 {
				// Small values repeat and exercise equal keys.
				in[i] &= 7
			}
		}
		inputs = append(inputs, in)
	}
	for _, in := range inputs {
		if err := c.check(in); err != nil {
			return err
		}
	}

	if opts.ZeroOne && total <= MaxZeroOne {
		in := make([]uint64, total)
		for bits := range 1 << total {
			for i := range in {
				in[i] = uint64(bits >> i & 1)
			}
			if err := c.check(in); err != nil {
				return err
			}
		}
	}
	return nil
}
