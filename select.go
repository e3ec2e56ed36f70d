package sortnet

import (
	"fmt"
	"slices"
)

// builder appends steps and hands out registers.
type builder struct {
	t     Target
	next  Reg
	steps []Step
}

func (b *builder) add(s Step) Reg {
	s.Dst = NoReg
	if !s.Form.isStore() {
		s.Dst = b.next
		b.next++
	}
	b.steps = append(b.steps, s)
	return s.Dst
}

func (b *builder) unary(f Form, a Reg, imm uint64, vec []byte) Reg {
	return b.add(Step{Form: f, A: a, B: NoReg, C: NoReg, Imm: imm, Vec: vec})
}

func (b *builder) binary(f Form, a, c Reg) Reg {
	return b.add(Step{Form: f, A: a, B: c, C: NoReg})
}

func (b *builder) constant(vec []byte) Reg {
	return b.add(Step{Form: FormConst, A: NoReg, B: NoReg, C: NoReg, Vec: vec})
}

func (b *builder) broadcast(v uint64) Reg {
	return b.add(Step{Form: FormBroadcast, A: NoReg, B: NoReg, C: NoReg, Imm: v})
}

func (b *builder) cost() cost {
	var c cost
	for _, s := range b.steps {
		c = c.add(s.cost())
	}
	return c
}

func (s Step) cost() cost {
	c := baseCost[s.Form]
	c.size += len(s.Vec)
	if s.Form == FormBroadcast {
		c.size += 8
	}
	return c
}

// candidate is one way of encoding a selector stage.
type candidate struct {
	form Form
	emit func(b *builder) Reg
}

// selector lowers rounds to steps. cur maps every data register to the
// virtual register holding its current value.
type selector struct {
	t      Target
	nregs  int
	active int
	cur    []Reg

	boundary []RegBoundary
	fill     Reg
	orig     []Reg
	vmask    map[int]Reg
}

func newSelector(t Target, nregs, active int) (*selector, error) {
	s := &selector{
		t:      t,
		nregs:  nregs,
		active: active,
		cur:    make([]Reg, nregs),
		fill:   NoReg,
		orig:   make([]Reg, nregs),
		vmask:  make(map[int]Reg),
	}
	if err := s.planBoundary(); err != nil {
		return nil, err
	}
	return s, nil
}

// pick dry-runs every candidate, then replays the cheapest under the
// target's policy on b. Earlier candidates win ties.
func (s *selector) pick(b *builder, cands []candidate) (Reg, bool) {
	best := -1
	var bestCost cost
	for i, c := range cands {
		scratch := &builder{t: b.t, next: b.next}
		c.emit(scratch)
		if cc := scratch.cost(); best < 0 || s.t.Policy.less(cc, bestCost) {
			best, bestCost = i, cc
		}
	}
	if best < 0 {
		return NoReg, false
	}
	return cands[best].emit(b), true
}

func (s *selector) noEncoding(what string, detail any) error {
	return fmt.Errorf("%w: %s %v for %s on %s", ErrNoEncoding, what, detail, s.t.Type, s.t.Features)
}

// round emits one round: gather partner values, then min, max and blend.
func (s *selector) round(b *builder, p Perm) error {
	partners := make([]Reg, s.nregs)
	for r := range s.nregs {
		partners[r] = NoReg
		if !s.touched(r, p) {
			continue
		}
		t, err := s.gather(b, r, p)
		if err != nil {
			return err
		}
		partners[r] = t
	}
	next := slices.Clone(s.cur)
	lanes, pl := s.t.Lanes(), s.t.physLanes()
	for r, t := range partners {
		if t == NoReg {
			continue
		}
		sel := make([]int8, pl)
		for l := range sel {
			g := r*lanes + l
			switch {
			case l >= lanes || g >= s.active || !p.Touched(g):
				sel[l] = -1
			case p.KeepMin[g]:
				sel[l] = 1
			}
		}
		needMax, needMin := needs(sel)
		mn, mx, err := s.minmax(b, s.cur[r], t, needMin, needMax)
		if err != nil {
			return err
		}
		switch {
		case !needMax:
			next[r] = mn
		case !needMin:
			next[r] = mx
		default:
			if next[r], err = s.blend(b, mx, mn, sel); err != nil {
				return err
			}
		}
	}
	s.cur = next
	return nil
}

func (s *selector) touched(r int, p Perm) bool {
	lanes := s.t.Lanes()
	for l := range lanes {
		if g := r*lanes + l; g < s.active && p.Touched(g) {
			return true
		}
	}
	return false
}

// gather builds the register whose lane l holds the partner of lane l of
// data register r. Untouched lanes map to themselves so min and max leave
// them alone.
func (s *selector) gather(b *builder, r int, p Perm) (Reg, error) {
	lanes, pl := s.t.Lanes(), s.t.physLanes()
	src := make([]int, pl)
	var sources []int
	for l := range src {
		src[l] = -1
		g := r*lanes + l
		if l >= lanes || g >= s.active {
			continue
		}
		src[l] = p.Partner[g]
		if q := src[l] / lanes; !slices.Contains(sources, q) {
			sources = append(sources, q)
		}
	}
	slices.Sort(sources)
	local := func(q int) []int {
		idx := make([]int, pl)
		for l, g := range src {
			idx[l] = -1
			if g >= 0 && g/lanes == q {
				idx[l] = g % lanes
			}
		}
		return idx
	}
	if len(sources) == 1 {
		return s.permute(b, s.cur[sources[0]], local(sources[0]))
	}
	if len(sources) == 2 {
		idx := make([]int, pl)
		for l, g := range src {
			idx[l] = -1
			if g >= 0 {
				idx[l] = g % lanes
				if g/lanes == sources[1] {
					idx[l] += pl
				}
			}
		}
		if t, ok := s.pick(b, s.permute2(s.cur[sources[0]], s.cur[sources[1]], idx)); ok {
			return t, nil
		}
	}
	acc := NoReg
	for i, q := range sources {
		part, err := s.permute(b, s.cur[q], local(q))
		if err != nil {
			return NoReg, err
		}
		if acc == NoReg {
			acc = part
			continue
		}
		sel := make([]int8, pl)
		for l, g := range src {
			sel[l] = -1
			if g < 0 {
				continue
			}
			switch k := slices.Index(sources, g/lanes); {
			case k == i:
				sel[l] = 1
			case k < i:
				sel[l] = 0
			}
		}
		if acc, err = s.blend(b, acc, part, sel); err != nil {
			return NoReg, err
		}
	}
	return acc, nil
}

// permute moves lanes of src according to idx, trying the cheap in-lane
// immediate forms first, then the qword swap, then everything else.
func (s *selector) permute(b *builder, src Reg, idx []int) (Reg, error) {
	if isIdentity(idx) {
		return src, nil
	}
	stages := [][]candidate{
		s.immPermutes(src, idx),
		s.swapPermutes(src, idx),
		s.generalPermutes(src, idx),
	}
	for _, stage := range stages {
		if r, ok := s.pick(b, stage); ok {
			return r, nil
		}
	}
	return NoReg, s.noEncoding("permutation", idx)
}

func (s *selector) pshufd(src Reg, pat []int) candidate {
	return candidate{FormPshufd, func(b *builder) Reg {
		return b.unary(FormPshufd, src, imm2(pat), nil)
	}}
}

// wordShuffle handles a word pattern of one 128-bit lane whose low and high
// halves stay put.
func (s *selector) wordShuffle(src Reg, pat []int) (candidate, bool) {
	lo, hi := pat[:4], make([]int, 4)
	for i, v := range pat[4:] {
		if v < 4 || lo[i] >= 4 {
			return candidate{}, false
		}
		hi[i] = v - 4
	}
	if !s.t.legal(FormPshuflw, 16) {
		return candidate{}, false
	}
	return candidate{FormPshuflw, func(b *builder) Reg {
		r := src
		if !isIdentity(lo) {
			r = b.unary(FormPshuflw, r, imm2(lo), nil)
		}
		if !isIdentity(hi) {
			r = b.unary(FormPshufhw, r, imm2(hi), nil)
		}
		return r
	}}, true
}

func (s *selector) pshufb(src Reg, idx []int) (candidate, bool) {
	if !s.t.legal(FormPshufb, 8) {
		return candidate{}, false
	}
	tab, ok := pshufbTable(refine(idx, s.t.Type.Bytes()))
	if !ok {
		return candidate{}, false
	}
	return candidate{FormPshufb, func(b *builder) Reg {
		return b.unary(FormPshufb, src, 0, tab)
	}}, true
}

func (s *selector) immPermutes(src Reg, idx []int) []candidate {
	var cands []candidate
	switch s.t.Type.Bits {
	case 32:
		if pat, ok := lanePattern(idx, 4); ok && s.t.legal(FormPshufd, 32) {
			cands = append(cands, s.pshufd(src, pat))
		}
	case 64:
		if pat, ok := lanePattern(idx, 2); ok && s.t.legal(FormPshufd, 32) {
			cands = append(cands, s.pshufd(src, refine(pat, 2)))
		}
	case 16:
		if pat, ok := lanePattern(idx, 8); ok {
			if c, ok := s.wordShuffle(src, pat); ok {
				cands = append(cands, c)
			}
			if c, ok := s.pshufb(src, idx); ok {
				cands = append(cands, c)
			}
		}
	}
	return cands
}

func (s *selector) swapPermutes(src Reg, idx []int) []candidate {
	q, ok := coarsen(idx, 64/s.t.Type.Bits)
	if !ok || !s.t.legal(FormPshufd, 32) {
		return nil
	}
	if pat, ok := lanePattern(q, 2); ok && pat[0] == 1 && pat[1] == 0 {
		return []candidate{s.pshufd(src, []int{2, 3, 0, 1})}
	}
	return nil
}

func (s *selector) generalPermutes(src Reg, idx []int) []candidate {
	t := s.t
	e := t.Type.Bits
	var cands []candidate
	vecForm := func(f Form, unit int) {
		if !t.legal(f, unit) {
			return
		}
		u, ok := idx, true
		if unit < e {
			u = refine(idx, e/unit)
		} else {
			u, ok = coarsen(idx, unit/e)
		}
		if !ok {
			return
		}
		vec := indexVec(u, unit/8)
		cands = append(cands, candidate{f, func(b *builder) Reg {
			return b.unary(f, src, 0, vec)
		}})
	}

	if c, ok := s.pshufb(src, idx); ok {
		cands = append(cands, c)
	}
	if e < 32 {
		if d, ok := coarsen(idx, 32/e); ok && t.legal(FormPshufd, 32) {
			if pat, ok := lanePattern(d, 4); ok {
				cands = append(cands, s.pshufd(src, pat))
			}
		}
	}
	if e == 8 {
		if w, ok := coarsen(idx, 2); ok {
			if pat, ok := lanePattern(w, 8); ok {
				if c, ok := s.wordShuffle(src, pat); ok {
					cands = append(cands, c)
				}
			}
		}
	}
	if q, ok := coarsen(idx, 64/e); ok && t.legal(FormPermq, 64) {
		if pat, ok := lanePattern(q, 4); ok {
			cands = append(cands, candidate{FormPermq, func(b *builder) Reg {
				return b.unary(FormPermq, src, imm2(pat), nil)
			}})
		}
	}
	if e <= 32 {
		vecForm(FormPermd, 32)
	}
	vecForm(FormPermqVar, 64)
	if e <= 16 {
		vecForm(FormPermw, 16)
	}
	vecForm(FormPermb, 8)

	// Two in-lane byte shuffles joined after swapping the 128-bit halves.
	if t.physBits() == 256 && t.legal(FormPermq, 64) && t.legal(FormPshufb, 8) {
		bytes := refine(idx, t.Type.Bytes())
		own, other := make([]byte, len(bytes)), make([]byte, len(bytes))
		for j, v := range bytes {
			own[j], other[j] = 0x80, 0x80
			switch {
			case v < 0:
			case v/16 == j/16:
				own[j] = byte(v % 16)
			default:
				other[j] = byte(v % 16)
			}
		}
		cands = append(cands, candidate{FormPermq, func(b *builder) Reg {
			swapped := b.unary(FormPermq, src, 0x4e, nil)
			x := b.unary(FormPshufb, src, 0, own)
			y := b.unary(FormPshufb, swapped, 0, other)
			return b.binary(FormOr, x, y)
		}})
	}
	return cands
}

// permute2 offers a single two-source permute. Entries of idx below the
// lane count read a, the rest read b.
func (s *selector) permute2(a, c Reg, idx []int) []candidate {
	e := s.t.Type.Bits
	for unit := e; unit <= 64; unit *= 2 {
		u, ok := coarsen(idx, unit/e)
		if !ok || !s.t.legal(FormPermt2, unit) {
			continue
		}
		vec := indexVec(u, unit/8)
		return []candidate{{FormPermt2, func(b *builder) Reg {
			return b.add(Step{Form: FormPermt2, A: a, B: c, C: NoReg, Imm: uint64(unit), Vec: vec})
		}}}
	}
	return nil
}

// minmax computes the lanewise minimum and maximum of v and t as needed.
// Without native instructions it compares, flipping the sign bit first for
// unsigned types, and selects with the mask.
func (s *selector) minmax(b *builder, v, t Reg, needMin, needMax bool) (mn, mx Reg, err error) {
	e := s.t.Type.Bits
	mn, mx = NoReg, NoReg
	if s.t.legal(FormMin, e) {
		if needMin {
			mn = b.binary(FormMin, v, t)
		}
		if needMax {
			mx = b.binary(FormMax, v, t)
		}
		return mn, mx, nil
	}
	if !s.t.legal(FormCmpGt, e) {
		return NoReg, NoReg, s.noEncoding("compare", "min/max")
	}
	x, y := v, t
	if !s.t.Type.Signed {
		flip := b.broadcast(1 << (e - 1))
		x = b.binary(FormXor, v, flip)
		y = b.binary(FormXor, t, flip)
	}
	gt := b.binary(FormCmpGt, x, y)
	if needMin {
		if mn, err = s.choose(b, gt, t, v); err != nil {
			return NoReg, NoReg, err
		}
	}
	if needMax {
		if mx, err = s.choose(b, gt, v, t); err != nil {
			return NoReg, NoReg, err
		}
	}
	return mn, mx, nil
}

// choose returns mask ? yes : no for a full-lane mask register.
func (s *selector) choose(b *builder, mask, yes, no Reg) (Reg, error) {
	var cands []candidate
	if s.t.legal(FormBlendvb, 8) {
		cands = append(cands, candidate{FormBlendvb, func(b *builder) Reg {
			return b.add(Step{Form: FormBlendvb, A: no, B: yes, C: mask})
		}})
	}
	cands = append(cands, candidate{FormAnd, func(b *builder) Reg {
		return b.binary(FormOr, b.binary(FormAnd, mask, yes), b.binary(FormAndn, mask, no))
	}})
	r, _ := s.pick(b, cands)
	return r, nil
}

// blend returns a register taking lane l from c where sel[l] is 1 and from a
// where it is 0. Immediate forms are tried before variable ones.
func (s *selector) blend(b *builder, a, c Reg, sel []int8) (Reg, error) {
	needA, needC := needs(sel)
	if !needC {
		return a, nil
	}
	if !needA {
		return c, nil
	}
	t := s.t
	e := t.Type.Bits
	var imm []candidate
	if d, ok := resize(sel, e, 32); ok && t.legal(FormBlendd, 32) {
		bits := selBits(d)
		imm = append(imm, candidate{FormBlendd, func(b *builder) Reg {
			return b.add(Step{Form: FormBlendd, A: a, B: c, C: NoReg, Imm: bits})
		}})
	}
	if w, ok := resize(sel, e, 16); ok && t.legal(FormBlendw, 16) {
		if bits, ok := blendwImm(w); ok {
			imm = append(imm, candidate{FormBlendw, func(b *builder) Reg {
				return b.add(Step{Form: FormBlendw, A: a, B: c, C: NoReg, Imm: bits})
			}})
		}
	}
	if t.legal(FormBlendK, e) {
		bits := selBits(sel)
		imm = append(imm, candidate{FormBlendK, func(b *builder) Reg {
			return b.add(Step{Form: FormBlendK, A: a, B: c, C: NoReg, Imm: bits})
		}})
	}
	if r, ok := s.pick(b, imm); ok {
		return r, nil
	}

	bytes, _ := resize(sel, e, 8)
	var variable []candidate
	if t.legal(FormBlendvb, 8) {
		vec := selBytes(bytes, 0x80)
		variable = append(variable, candidate{FormBlendvb, func(b *builder) Reg {
			return b.add(Step{Form: FormBlendvb, A: a, B: c, C: b.constant(vec)})
		}})
	}
	mask := selBytes(bytes, 0xff)
	variable = append(variable, candidate{FormAnd, func(b *builder) Reg {
		m := b.constant(mask)
		return b.binary(FormOr, b.binary(FormAnd, m, c), b.binary(FormAndn, m, a))
	}})
	if r, ok := s.pick(b, variable); ok {
		return r, nil
	}
	return NoReg, s.noEncoding("blend", sel)
}

// blendwImm folds a word selector into the 8-bit immediate shared by all
// 128-bit lanes.
func blendwImm(w []int8) (uint64, bool) {
	pat := [8]int8{-1, -1, -1, -1, -1, -1, -1, -1}
	for j, v := range w {
		if v < 0 {
			continue
		}
		if p := pat[j%8]; p >= 0 && p != v {
			return 0, false
		}
		pat[j%8] = v
	}
	var bits uint64
	for i, v := range pat {
		if v == 1 {
			bits |= 1 << i
		}
	}
	return bits, true
}
