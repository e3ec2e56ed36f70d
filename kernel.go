package sortnet

import (
	"fmt"
	"slices"
)

// Reg is a virtual vector register. Every step that produces a value writes
// a fresh register, so a register is assigned exactly once.
type Reg int

// NoReg marks an unused operand.
const NoReg Reg = -1

func (r Reg) String() string {
	if r == NoReg {
		return "_"
	}
	return fmt.Sprintf("v%d", int(r))
}

// Step is one instruction of a kernel.
type Step struct {
	Form Form
	// Dst is the register written, NoReg for stores.
	Dst Reg
	// A, B and C are the operands as documented per Form.
	A, B, C Reg
	// Imm is the immediate, lane mask or broadcast value.
	Imm uint64
	// Vec is constant pattern data: shuffle tables, index vectors and
	// selector bytes.
	Vec []byte
	// Off and Len address the buffer of memory steps in bytes. Pos is the
	// register byte a partial move starts at.
	Off, Len, Pos int
}

// RoundCode is the code of one round of the network.
type RoundCode struct {
	Pairs []Pair
	Steps []Step
}

// RegBoundary records how a register is moved between memory and the
// register file.
type RegBoundary struct {
	// Count is the number of lanes backed by the buffer.
	Count int
	// Mode is BoundaryFull for whole-register moves, the partial strategy
	// otherwise. Registers with Count zero are filled only.
	Mode BoundaryMode
}

// Kernel is the generated instruction sequence for a Request.
type Kernel struct {
	Target    Target
	Algorithm Algorithm
	// Network is the comparator network sorting one block.
	Network *Network
	// Rounds are the network rounds tiled over all blocks.
	Rounds []Round
	Perms  []Perm
	// Regs is the number of virtual registers used.
	Regs     int
	Boundary []RegBoundary
	Load     []Step
	Code     []RoundCode
	Store    []Step
}

// Steps returns all steps in execution order.
func (k *Kernel) Steps() []Step {
	steps := slices.Clone(k.Load)
	for _, rc := range k.Code {
		steps = append(steps, rc.Steps...)
	}
	return append(steps, k.Store...)
}

// Registers is the number of vector registers holding the network lanes.
func (k *Kernel) Registers() int { return len(k.Boundary) }

// BufferLen is the smallest buffer in bytes the kernel may be run on. It
// exceeds the element data only for BoundaryFull.
func (k *Kernel) BufferLen() int {
	eb := k.Target.Type.Bytes()
	n := k.Target.Total() * eb
	if k.Target.Boundary == BoundaryFull {
		l := k.Target.Lanes()
		n = (k.Target.Total() + l - 1) / l * l * eb
	}
	return n
}

// Request names everything Generate needs.
type Request struct {
	Algorithm Algorithm
	Target    Target
	// NetworkN pads the network to more inputs than Target.N. The padding
	// lanes receive the type's maximum and end up past the data. Zero uses
	// Target.N. Padding is only supported with a single block.
	NetworkN int
}

// Generate builds the kernel for req.
//
// Configuration problems wrap ErrInvalidConfig. When some round has no
// legal instruction sequence on the target the error wraps ErrNoEncoding.
// Broken internal invariants panic.
func Generate(req Request) (*Kernel, error) {
	t, err := req.Target.Resolve()
	if err != nil {
		return nil, err
	}
	netN := req.NetworkN
	if netN == 0 {
		netN = t.N
	}
	if netN < t.N {
		return nil, fmt.Errorf("%w: network size %d below element count %d", ErrInvalidConfig, netN, t.N)
	}
	if netN != t.N && t.Blocks > 1 {
		return nil, fmt.Errorf("%w: padded networks need a single block", ErrInvalidConfig)
	}
	if netN*t.Blocks > MaxN {
		return nil, fmt.Errorf("%w: %d network lanes exceed the limit of %d", ErrInvalidConfig, netN*t.Blocks, MaxN)
	}
	nw, err := NewNetwork(req.Algorithm, netN)
	if err != nil {
		return nil, err
	}

	k := &Kernel{
		Target:    t,
		Algorithm: req.Algorithm,
		Network:   nw,
		Rounds:    Tile(nw.Rounds, netN, t.Blocks),
	}
	active := netN * t.Blocks
	lanes := t.Lanes()
	nregs := (active + lanes - 1) / lanes
	k.Perms = Build(k.Rounds, nregs*lanes)
	if len(k.Rounds) == 0 {
		return k, nil
	}

	s, err := newSelector(t, nregs, active)
	if err != nil {
		return nil, err
	}
	b := &builder{t: t}
	if err := s.load(b); err != nil {
		return nil, err
	}
	k.Load, b.steps = b.steps, nil
	for i, p := range k.Perms {
		if err := s.round(b, p); err != nil {
			return nil, fmt.Errorf("round %d of %s n=%d on %s: %w", i, req.Algorithm, netN, t, err)
		}
		k.Code = append(k.Code, RoundCode{Pairs: p.Pairs, Steps: b.steps})
		b.steps = nil
	}
	if err := s.store(b); err != nil {
		return nil, err
	}
	k.Store = b.steps
	k.Regs = int(b.next)
	k.Boundary = s.boundary
	return k, nil
}
