//go:build avogen
// +build avogen

package main

import (
	"fmt"
	"strings"

	"github.com/mmcloughlin/avo/attr"
	. "github.com/mmcloughlin/avo/build"
	op "github.com/mmcloughlin/avo/operand"
	"github.com/mmcloughlin/avo/reg"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	sortnet "github.com/Akron/sortnet-go"
)

// This file lowers sortnet kernels to Go assembly. Kernels use VEX encoded
// 128 and 256-bit forms; the AVX-512 forms (mask registers, vpermw/b,
// vpermt2) are left to a future emitter and rejected by checkEmittable.

var title = cases.Title(language.Und)

// kernelName builds the Go symbol of a kernel, e.g. SortBitonicInt32x16V256.
func kernelName(k *sortnet.Kernel) string {
	t := k.Target
	alg := strings.ReplaceAll(title.String(strings.ReplaceAll(k.Algorithm.String(), "-", " ")), " ", "")
	name := fmt.Sprintf("Sort%s%sx%d", alg, title.String(t.Type.String()), t.N)
	if t.Blocks > 1 {
		name += fmt.Sprintf("b%d", t.Blocks)
	}
	name += fmt.Sprintf("V%d", t.VectorBits)
	if k.Network.N != t.N {
		name += fmt.Sprintf("p%d", k.Network.N)
	}
	if t.Policy == sortnet.FavorUops {
		name += "Uop"
	}
	if t.Boundary != sortnet.BoundaryAuto {
		name += title.String(t.Boundary.String())
	}
	return name
}

func checkEmittable(k *sortnet.Kernel) error {
	t := k.Target
	if t.VectorBits > 256 {
		return fmt.Errorf("%d-bit registers are not supported", t.VectorBits)
	}
	if !t.Features.Has(sortnet.AVX) {
		return fmt.Errorf("only VEX encodings are emitted, target has %s", t.Features)
	}
	for _, s := range k.Steps() {
		switch s.Form {
		case sortnet.FormLoadMaskK, sortnet.FormStoreMaskK, sortnet.FormBlendK,
			sortnet.FormPermqVar, sortnet.FormPermw, sortnet.FormPermb, sortnet.FormPermt2:
			return fmt.Errorf("form %v needs the AVX-512 emitter", s.Form)
		case sortnet.FormMin, sortnet.FormMax:
			if t.Type.Bits == 64 {
				return fmt.Errorf("64-bit %v needs AVX-512", s.Form)
			}
		}
	}
	return nil
}

type emitter struct {
	k      *sortnet.Kernel
	name   string
	base   reg.Register
	regs   map[sortnet.Reg]reg.VecVirtual
	consts int
}

func emitKernel(name string, k *sortnet.Kernel) {
	TEXT(name, NOSPLIT, fmt.Sprintf("func(p *%s)", k.Target.Type))
	Doc(fmt.Sprintf("%s sorts %s using a %s network with %d rounds.",
		name, describe(k.Target), k.Algorithm, len(k.Code)))
	e := &emitter{
		k:    k,
		name: name,
		base: Load(Param("p"), GP64()),
		regs: make(map[sortnet.Reg]reg.VecVirtual),
	}
	for _, s := range k.Load {
		e.step(s)
	}
	for i, rc := range k.Code {
		Comment(fmt.Sprintf("round %d: %v", i, rc.Pairs))
		for _, s := range rc.Steps {
			e.step(s)
		}
	}
	for _, s := range k.Store {
		e.step(s)
	}
	RET()
}

func describe(t sortnet.Target) string {
	s := fmt.Sprintf("%d %s values", t.N, t.Type)
	if t.Blocks > 1 {
		s = fmt.Sprintf("%d blocks of %s", t.Blocks, s)
	}
	return s
}

func (e *emitter) vec() reg.VecVirtual {
	if e.k.Target.VectorBits == 256 {
		return YMM()
	}
	return XMM()
}

func (e *emitter) def(s sortnet.Step) reg.VecVirtual {
	v := e.vec()
	e.regs[s.Dst] = v
	return v
}

func (e *emitter) mem(off int) op.Mem {
	return op.Mem{Base: e.base, Disp: off}
}

// constant places data, padded to a full register, in read-only memory.
func (e *emitter) constant(data []byte) op.Mem {
	name := fmt.Sprintf("%s_c%d", e.name, e.consts)
	e.consts++
	m := GLOBL(name, attr.RODATA|attr.NOPTR)
	size := max(e.k.Target.VectorBits, 128) / 8
	for i := range size {
		var b byte
		if i < len(data) {
			b = data[i]
		}
		DATA(i, op.U8(b))
	}
	return m
}

func (e *emitter) broadcastData(v uint64) []byte {
	eb := e.k.Target.Type.Bytes()
	size := max(e.k.Target.VectorBits, 128) / 8
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(v >> (8 * (i % eb)))
	}
	return data
}

func (e *emitter) step(s sortnet.Step) {
	t := e.k.Target
	a, b, c := e.regs[s.A], e.regs[s.B], e.regs[s.C]
	switch s.Form {
	case sortnet.FormLoad, sortnet.FormLoadAligned:
		dst := e.def(s)
		switch {
		case s.Len <= 8:
			VMOVQ(e.mem(s.Off), dst.AsX())
		case s.Form == sortnet.FormLoadAligned:
			VMOVDQA(e.mem(s.Off), dst)
		default:
			VMOVDQU(e.mem(s.Off), dst)
		}
	case sortnet.FormStore, sortnet.FormStoreAligned:
		switch {
		case s.Len <= 8:
			VMOVQ(a.AsX(), e.mem(s.Off))
		case s.Form == sortnet.FormStoreAligned:
			VMOVDQA(a, e.mem(s.Off))
		default:
			VMOVDQU(a, e.mem(s.Off))
		}
	case sortnet.FormLoadMaskV:
		dst := e.def(s)
		if t.Type.Bits == 64 {
			VPMASKMOVQ(e.mem(s.Off), c, dst)
		} else {
			VPMASKMOVD(e.mem(s.Off), c, dst)
		}
	case sortnet.FormStoreMaskV:
		if t.Type.Bits == 64 {
			VPMASKMOVQ(a, c, e.mem(s.Off))
		} else {
			VPMASKMOVD(a, c, e.mem(s.Off))
		}
	case sortnet.FormLoadPart:
		e.loadPart(s, a)
	case sortnet.FormStorePart:
		e.storePart(s, a)
	case sortnet.FormBroadcast:
		VMOVDQU(e.constant(e.broadcastData(s.Imm)), e.def(s))
	case sortnet.FormConst:
		VMOVDQU(e.constant(s.Vec), e.def(s))
	case sortnet.FormPshufd:
		VPSHUFD(op.U8(s.Imm), a, e.def(s))
	case sortnet.FormPshuflw:
		VPSHUFLW(op.U8(s.Imm), a, e.def(s))
	case sortnet.FormPshufhw:
		VPSHUFHW(op.U8(s.Imm), a, e.def(s))
	case sortnet.FormPshufb:
		VPSHUFB(e.constant(s.Vec), a, e.def(s))
	case sortnet.FormPermq:
		VPERMQ(op.U8(s.Imm), a, e.def(s))
	case sortnet.FormPermd:
		idx := e.vec()
		VMOVDQU(e.constant(s.Vec), idx)
		VPERMD(a, idx, e.def(s))
	case sortnet.FormMin:
		e.minmax(true, a, b, e.def(s))
	case sortnet.FormMax:
		e.minmax(false, a, b, e.def(s))
	case sortnet.FormCmpGt:
		dst := e.def(s)
		switch t.Type.Bits {
		case 8:
			VPCMPGTB(b, a, dst)
		case 16:
			VPCMPGTW(b, a, dst)
		case 32:
			VPCMPGTD(b, a, dst)
		default:
			VPCMPGTQ(b, a, dst)
		}
	case sortnet.FormAnd:
		VPAND(b, a, e.def(s))
	case sortnet.FormAndn:
		VPANDN(b, a, e.def(s))
	case sortnet.FormOr:
		VPOR(b, a, e.def(s))
	case sortnet.FormXor:
		VPXOR(b, a, e.def(s))
	case sortnet.FormBlendd:
		VPBLENDD(op.U8(s.Imm), b, a, e.def(s))
	case sortnet.FormBlendw:
		VPBLENDW(op.U8(s.Imm), b, a, e.def(s))
	case sortnet.FormBlendvb:
		VPBLENDVB(c, b, a, e.def(s))
	default:
		panic(fmt.Sprintf("no lowering for %v", s.Form))
	}
}

func (e *emitter) minmax(isMin bool, a, b, dst reg.VecVirtual) {
	typ := e.k.Target.Type
	switch {
	case isMin && typ == sortnet.Int8:
		VPMINSB(b, a, dst)
	case isMin && typ == sortnet.Uint8:
		VPMINUB(b, a, dst)
	case isMin && typ == sortnet.Int16:
		VPMINSW(b, a, dst)
	case isMin && typ == sortnet.Uint16:
		VPMINUW(b, a, dst)
	case isMin && typ == sortnet.Int32:
		VPMINSD(b, a, dst)
	case isMin:
		VPMINUD(b, a, dst)
	case typ == sortnet.Int8:
		VPMAXSB(b, a, dst)
	case typ == sortnet.Uint8:
		VPMAXUB(b, a, dst)
	case typ == sortnet.Int16:
		VPMAXSW(b, a, dst)
	case typ == sortnet.Uint16:
		VPMAXUW(b, a, dst)
	case typ == sortnet.Int32:
		VPMAXSD(b, a, dst)
	default:
		VPMAXUD(b, a, dst)
	}
}

// lane128 returns the 128-bit lane of v holding byte pos, extracted into an
// XMM register when it is the upper one.
func (e *emitter) lane128(v reg.VecVirtual, pos int) reg.Register {
	if pos < 16 {
		return v.AsX()
	}
	x := XMM()
	VEXTRACTI128(op.U8(1), v, x)
	return x
}

func (e *emitter) insert(n, idx int, src, x, dst op.Op) {
	switch n {
	case 1:
		VPINSRB(op.U8(idx), src, x, dst)
	case 2:
		VPINSRW(op.U8(idx), src, x, dst)
	case 4:
		VPINSRD(op.U8(idx), src, x, dst)
	default:
		VPINSRQ(op.U8(idx), src, x, dst)
	}
}

func (e *emitter) loadPart(s sortnet.Step, a reg.VecVirtual) {
	dst := e.def(s)
	ymm := e.k.Target.VectorBits == 256
	lane := s.Pos / 16
	if s.Len >= 16 {
		VINSERTI128(op.U8(lane), e.mem(s.Off), a, dst)
		return
	}
	idx := (s.Pos % 16) / s.Len
	if !ymm {
		e.insert(s.Len, idx, e.mem(s.Off), a, dst)
		return
	}
	x := e.lane128(a, s.Pos)
	patched := XMM()
	e.insert(s.Len, idx, e.mem(s.Off), x, patched)
	VINSERTI128(op.U8(lane), patched, a, dst)
}

func (e *emitter) storePart(s sortnet.Step, a reg.VecVirtual) {
	if s.Len >= 16 {
		VEXTRACTI128(op.U8(s.Pos/16), a, e.mem(s.Off))
		return
	}
	x := e.lane128(a, s.Pos)
	idx := (s.Pos % 16) / s.Len
	switch s.Len {
	case 1:
		VPEXTRB(op.U8(idx), x, e.mem(s.Off))
	case 2:
		VPEXTRW(op.U8(idx), x, e.mem(s.Off))
	case 4:
		VPEXTRD(op.U8(idx), x, e.mem(s.Off))
	default:
		VPEXTRQ(op.U8(idx), x, e.mem(s.Off))
	}
}
