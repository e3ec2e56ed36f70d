package sortnet

import "fmt"

// planBoundary decides per register how it is loaded and stored. Lanes past
// the buffer are filled with the type's maximum so they sort to the end.
func (s *selector) planBoundary() error {
	lanes := s.t.Lanes()
	total := s.t.Total()
	s.boundary = make([]RegBoundary, s.nregs)
	for r := range s.boundary {
		c := min(max(total-r*lanes, 0), lanes)
		rb := RegBoundary{Count: c, Mode: BoundaryFull}
		if c > 0 && c < lanes {
			mode, err := s.partialMode(c)
			if err != nil {
				return err
			}
			rb.Mode = mode
		}
		s.boundary[r] = rb
	}
	return nil
}

// maskedLegal reports whether c lanes can be moved with a masked move.
// Vector masks work on dwords, so byte and word types need whole dwords.
func (s *selector) maskedLegal(c int) bool {
	e := s.t.Type.Bits
	if s.t.legal(FormLoadMaskK, e) {
		return true
	}
	return s.t.legal(FormLoadMaskV, 32) && c*s.t.Type.Bytes()%4 == 0
}

func (s *selector) partialMode(c int) (BoundaryMode, error) {
	splitLegal := s.t.legal(FormLoadPart, 8) && (s.t.Features.Has(SSE41) || s.t.Type.Bytes() >= 2)
	switch s.t.Boundary {
	case BoundaryFull:
		return BoundaryFull, nil
	case BoundaryMasked:
		if !s.maskedLegal(c) {
			return 0, fmt.Errorf("%w: masked moves of %d %s lanes need avx512 or dword-sized prefixes on %s",
				ErrInvalidConfig, c, s.t.Type, s.t.Features)
		}
		return BoundaryMasked, nil
	case BoundarySplit:
		if !splitLegal {
			return 0, fmt.Errorf("%w: split moves of %s need sse4.1, target has %s", ErrInvalidConfig, s.t.Type, s.t.Features)
		}
		return BoundarySplit, nil
	}
	switch {
	case s.maskedLegal(c):
		return BoundaryMasked, nil
	case splitLegal:
		return BoundarySplit, nil
	}
	return 0, fmt.Errorf("%w: no in-bounds move for %d of %d lanes on %s, use the full boundary mode",
		ErrNoEncoding, c, s.t.Lanes(), s.t.Features)
}

func (s *selector) fillReg(b *builder) Reg {
	if s.fill == NoReg {
		s.fill = b.broadcast(s.t.Type.Max())
	}
	return s.fill
}

// tailSel selects the second operand for lanes at or past c.
func (s *selector) tailSel(c int) []int8 {
	sel := make([]int8, s.t.physLanes())
	for l := range sel {
		switch {
		case l >= s.t.Lanes():
			sel[l] = -1
		case l >= c:
			sel[l] = 1
		}
	}
	return sel
}

// unitMask builds the vpmaskmov mask selecting the first c lanes.
func (s *selector) unitMask(b *builder, c int) Reg {
	if m, ok := s.vmask[c]; ok {
		return m
	}
	eb := s.t.Type.Bytes()
	vec := make([]byte, s.t.regBytes())
	for i := range c * eb {
		vec[i] = 0xff
	}
	m := b.constant(vec)
	s.vmask[c] = m
	return m
}

// partLegal reports whether n bytes at register byte pos move in one step.
// Without SSE4.1 only pinsrw/pextrw words and movlps/movhps halves exist.
func (s *selector) partLegal(n, pos int) bool {
	if s.t.Features.Has(SSE41) {
		return true
	}
	switch n {
	case 2:
		return true
	case 8:
		return pos == 0 || pos == 8
	}
	return false
}

// chunks splits an n byte prefix into the largest legal moves, in order.
func (s *selector) chunks(n int) []int {
	var out []int
	pos := 0
	for size := s.t.VectorBits / 8; size > 0; size /= 2 {
		for n >= size && s.partLegal(size, pos) {
			out = append(out, size)
			n -= size
			pos += size
		}
	}
	return out
}

func (s *selector) full(load bool) Form {
	switch {
	case s.t.Aligned && s.t.VectorBits >= 128 && load:
		return FormLoadAligned
	case s.t.Aligned && s.t.VectorBits >= 128:
		return FormStoreAligned
	case load:
		return FormLoad
	}
	return FormStore
}

// load brings every data register into the register file.
func (s *selector) load(b *builder) error {
	eb := s.t.Type.Bytes()
	width := s.t.VectorBits / 8
	for r, rb := range s.boundary {
		off := r * width
		c := rb.Count
		s.orig[r] = NoReg
		var err error
		switch {
		case c == s.t.Lanes():
			s.cur[r] = b.add(Step{Form: s.full(true), A: NoReg, B: NoReg, C: NoReg, Off: off, Len: width})
		case c == 0:
			s.cur[r] = s.fillReg(b)
		case rb.Mode == BoundaryFull:
			fill := s.fillReg(b)
			ld := b.add(Step{Form: s.full(true), A: NoReg, B: NoReg, C: NoReg, Off: off, Len: width})
			s.orig[r] = ld
			s.cur[r], err = s.blend(b, ld, fill, s.tailSel(c))
		case rb.Mode == BoundaryMasked && s.t.legal(FormLoadMaskK, s.t.Type.Bits):
			s.cur[r] = b.add(Step{Form: FormLoadMaskK, A: s.fillReg(b), B: NoReg, C: NoReg,
				Imm: 1<<c - 1, Off: off, Len: c * eb})
		case rb.Mode == BoundaryMasked:
			fill := s.fillReg(b)
			ld := b.add(Step{Form: FormLoadMaskV, A: NoReg, B: NoReg, C: s.unitMask(b, c), Off: off, Len: c * eb})
			s.cur[r], err = s.blend(b, ld, fill, s.tailSel(c))
		default:
			v, pos := s.fillReg(b), 0
			for _, n := range s.chunks(c * eb) {
				v = b.add(Step{Form: FormLoadPart, A: v, B: NoReg, C: NoReg, Off: off + pos, Len: n, Pos: pos})
				pos += n
			}
			s.cur[r] = v
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// store writes the data registers back. Lanes past the buffer are never
// written, except that BoundaryFull rewrites the bytes it loaded.
func (s *selector) store(b *builder) error {
	eb := s.t.Type.Bytes()
	width := s.t.VectorBits / 8
	for r, rb := range s.boundary {
		off := r * width
		c := rb.Count
		v := s.cur[r]
		switch {
		case c == 0:
		case c == s.t.Lanes():
			b.add(Step{Form: s.full(false), Dst: NoReg, A: v, B: NoReg, C: NoReg, Off: off, Len: width})
		case rb.Mode == BoundaryFull:
			merged, err := s.blend(b, v, s.orig[r], s.tailSel(c))
			if err != nil {
				return err
			}
			b.add(Step{Form: s.full(false), A: merged, B: NoReg, C: NoReg, Off: off, Len: width})
		case rb.Mode == BoundaryMasked && s.t.legal(FormStoreMaskK, s.t.Type.Bits):
			b.add(Step{Form: FormStoreMaskK, A: v, B: NoReg, C: NoReg, Imm: 1<<c - 1, Off: off, Len: c * eb})
		case rb.Mode == BoundaryMasked:
			b.add(Step{Form: FormStoreMaskV, A: v, B: NoReg, C: s.unitMask(b, c), Off: off, Len: c * eb})
		default:
			pos := 0
			for _, n := range s.chunks(c * eb) {
				b.add(Step{Form: FormStorePart, A: v, B: NoReg, C: NoReg, Off: off + pos, Len: n, Pos: pos})
				pos += n
			}
		}
	}
	return nil
}
