package sortnet

import "fmt"

// Form is a concrete instruction shape. The selector picks forms, the
// emulator executes them and emitters translate them one to one.
type Form uint8

const (
	FormInvalid Form = iota

	// Memory. Off is the byte offset into the buffer, Len the byte count.
	FormLoad        // Dst = mem[Off:Off+Len], upper bytes zeroed
	FormLoadAligned // as FormLoad, aligned address
	FormLoadMaskK   // Dst = A with lanes selected by Imm loaded (mask register)
	FormLoadMaskV   // Dst = units selected by the sign bits of C loaded, others zero
	FormLoadPart    // Dst = A with Len bytes at register byte Pos loaded
	FormStore       // mem[Off:Off+Len] = A
	FormStoreAligned
	FormStoreMaskK // lanes of A selected by Imm stored
	FormStoreMaskV // units of A selected by the sign bits of C stored
	FormStorePart  // mem[Off:Off+Len] = A[Pos:Pos+Len]

	// Constants.
	FormBroadcast // every lane = Imm
	FormConst     // Dst = Vec

	// Shuffles and permutes of A. Vec holds index vectors, Imm immediates.
	FormPshufd   // dwords within 128-bit lanes, 2-bit slots in Imm
	FormPshuflw  // low four words of each 128-bit lane
	FormPshufhw  // high four words of each 128-bit lane
	FormPshufb   // bytes within 128-bit lanes, 0x80 zeroes
	FormPermq    // qwords within 256-bit lanes, 2-bit slots in Imm
	FormPermd    // dwords across the register
	FormPermqVar // qwords across the register
	FormPermw    // words across the register
	FormPermb    // bytes across the register
	FormPermt2   // units of Imm bits from A (index < units) or B

	// Elementwise arithmetic on A and B.
	FormMin
	FormMax
	FormCmpGt // signed A > B, all ones or zero per lane

	// Bitwise logic.
	FormAnd
	FormAndn // ^A & B
	FormOr
	FormXor

	// Blends: lane = selected ? B : A.
	FormBlendd  // dword bits in Imm
	FormBlendw  // word bits in Imm, repeated per 128-bit lane
	FormBlendK  // element bits in Imm (mask register)
	FormBlendvb // byte sign bits of C

	numForms
)

var formNames = [numForms]string{
	FormInvalid:      "invalid",
	FormLoad:         "load",
	FormLoadAligned:  "load.aligned",
	FormLoadMaskK:    "load.maskk",
	FormLoadMaskV:    "load.maskv",
	FormLoadPart:     "load.part",
	FormStore:        "store",
	FormStoreAligned: "store.aligned",
	FormStoreMaskK:   "store.maskk",
	FormStoreMaskV:   "store.maskv",
	FormStorePart:    "store.part",
	FormBroadcast:    "broadcast",
	FormConst:        "const",
	FormPshufd:       "pshufd",
	FormPshuflw:      "pshuflw",
	FormPshufhw:      "pshufhw",
	FormPshufb:       "pshufb",
	FormPermq:        "permq",
	FormPermd:        "permd",
	FormPermqVar:     "permq.var",
	FormPermw:        "permw",
	FormPermb:        "permb",
	FormPermt2:       "permt2",
	FormMin:          "min",
	FormMax:          "max",
	FormCmpGt:        "cmpgt",
	FormAnd:          "and",
	FormAndn:         "andn",
	FormOr:           "or",
	FormXor:          "xor",
	FormBlendd:       "blendd",
	FormBlendw:       "blendw",
	FormBlendK:       "blendk",
	FormBlendvb:      "blendvb",
}

func (f Form) String() string {
	if f >= numForms {
		return fmt.Sprintf("Form(%d)", int(f))
	}
	return formNames[f]
}

// isPermute reports whether f moves lanes around.
func (f Form) isPermute() bool {
	return f >= FormPshufd && f <= FormPermt2
}

func (f Form) isBlend() bool {
	return f >= FormBlendd && f <= FormBlendvb
}

func (f Form) isMemory() bool {
	return f >= FormLoad && f <= FormStorePart
}

func (f Form) isStore() bool {
	return f >= FormStore && f <= FormStorePart
}

// cost is the price of a step or a sequence of steps: encoded bytes
// (instructions plus constant pattern data) and executed micro-operations.
type cost struct {
	size, uops int
}

func (c cost) add(o cost) cost { return cost{c.size + o.size, c.uops + o.uops} }

// less orders costs under a policy. The other metric breaks ties.
func (p Policy) less(a, b cost) bool {
	if p == FavorUops {
		if a.uops != b.uops {
			return a.uops < b.uops
		}
		return a.size < b.size
	}
	if a.size != b.size {
		return a.size < b.size
	}
	return a.uops < b.uops
}

// baseCost is the cost of a form without its constant data.
var baseCost = [numForms]cost{
	FormLoad:         {4, 1},
	FormLoadAligned:  {4, 1},
	FormLoadMaskK:    {10, 2},
	FormLoadMaskV:    {5, 2},
	FormLoadPart:     {6, 1},
	FormStore:        {4, 1},
	FormStoreAligned: {4, 1},
	FormStoreMaskK:   {10, 2},
	FormStoreMaskV:   {5, 2},
	FormStorePart:    {6, 1},
	FormBroadcast:    {5, 1},
	FormConst:        {4, 1},
	FormPshufd:       {5, 1},
	FormPshuflw:      {5, 1},
	FormPshufhw:      {5, 1},
	FormPshufb:       {5, 1},
	FormPermq:        {6, 1},
	FormPermd:        {5, 1},
	FormPermqVar:     {6, 1},
	FormPermw:        {6, 2},
	FormPermb:        {6, 1},
	FormPermt2:       {6, 1},
	FormMin:          {4, 1},
	FormMax:          {4, 1},
	FormCmpGt:        {4, 1},
	FormAnd:          {4, 1},
	FormAndn:         {4, 1},
	FormOr:           {4, 1},
	FormXor:          {4, 1},
	FormBlendd:       {6, 1},
	FormBlendw:       {6, 1},
	FormBlendK:       {10, 2},
	FormBlendvb:      {6, 2},
}

// requires returns the features a form needs on target t, and false when
// the form does not exist for the target's register width or element size.
// unitBits is the lane granularity the form operates on; only the
// element-typed forms look at it.
func (f Form) requires(t Target, unitBits int) (Features, bool) {
	vb := t.physBits()
	var vl Features
	if vb < 512 {
		vl = AVX512VL
	}
	// byWidth picks the requirement for 128, 256 and 512-bit registers.
	byWidth := func(x128, x256, x512 Features) (Features, bool) {
		switch vb {
		case 128:
			return x128, x128 != 0
		case 256:
			return x256, x256 != 0
		}
		return x512, x512 != 0
	}
	avx512Unit := func() Features {
		if unitBits <= 16 {
			return AVX512BW | vl
		}
		return AVX512F | vl
	}
	switch f {
	case FormLoad, FormLoadAligned, FormLoadPart, FormStore, FormStoreAligned, FormStorePart,
		FormBroadcast, FormConst, FormAnd, FormAndn, FormOr, FormXor:
		return widthRequirement(vb), true
	case FormLoadMaskK, FormStoreMaskK, FormBlendK:
		return avx512Unit(), true
	case FormLoadMaskV, FormStoreMaskV:
		return byWidth(AVX2, AVX2, 0)
	case FormPshufd:
		return byWidth(SSE2, AVX2, AVX512F)
	case FormPshuflw, FormPshufhw:
		return byWidth(SSE2, AVX2, AVX512BW)
	case FormPshufb:
		return byWidth(SSSE3, AVX2, AVX512BW)
	case FormPermq, FormPermd:
		return byWidth(0, AVX2, AVX512F)
	case FormPermqVar:
		return byWidth(0, AVX512F|AVX512VL, AVX512F)
	case FormPermw:
		return AVX512BW | vl, true
	case FormPermb:
		return AVX512VBMI | vl, true
	case FormPermt2:
		switch unitBits {
		case 8:
			return AVX512VBMI | vl, true
		case 16:
			return AVX512BW | vl, true
		}
		return AVX512F | vl, true
	case FormMin, FormMax:
		if vb == 512 || unitBits == 64 {
			return avx512Unit(), true
		}
		base := widthRequirement(vb)
		if vb == 128 {
			switch {
			case unitBits == 8 && !t.Type.Signed, unitBits == 16 && t.Type.Signed:
				base = SSE2
			default:
				base = SSE41
			}
		}
		return base, true
	case FormCmpGt:
		if vb == 512 {
			return 0, false
		}
		if vb == 128 && unitBits == 64 {
			return SSE42, true
		}
		return widthRequirement(vb), true
	case FormBlendd:
		return byWidth(AVX2, AVX2, 0)
	case FormBlendw, FormBlendvb:
		return byWidth(SSE41, AVX2, 0)
	}
	return 0, false
}

// legal reports whether target t can execute f at the given granularity.
func (t Target) legal(f Form, unitBits int) bool {
	req, ok := f.requires(t, unitBits)
	return ok && t.Features.Has(req)
}

var sizeSuffix = map[int]string{8: "b", 16: "w", 32: "d", 64: "q"}

// Mnemonic renders the instruction name of a step for target t.
func (s Step) Mnemonic(t Target) string {
	e := t.Type.Bits
	sfx := sizeSuffix[e]
	sign := "u"
	if t.Type.Signed {
		sign = "s"
	}
	var m string
	switch s.Form {
	case FormLoad, FormStore:
		switch {
		case s.Len <= 8:
			m = "movq"
		case t.physBits() == 512:
			m = "vmovdqu64"
		default:
			m = "movdqu"
		}
	case FormLoadAligned, FormStoreAligned:
		m = "movdqa"
		if t.physBits() == 512 {
			m = "vmovdqa64"
		}
	case FormLoadMaskK, FormStoreMaskK:
		m = fmt.Sprintf("vmovdqu%d{k}", e)
	case FormLoadMaskV, FormStoreMaskV:
		m = "vpmaskmovd"
		if e == 64 {
			m = "vpmaskmovq"
		}
	case FormLoadPart, FormStorePart:
		switch {
		case s.Len == 8 && !t.Features.Has(SSE41) && s.Pos == 0:
			m = "movlps"
		case s.Len == 8 && !t.Features.Has(SSE41):
			m = "movhps"
		case s.Form == FormLoadPart:
			m = partMnemonic(s.Len, s.Pos, "pinsr", "vinserti")
		default:
			m = partMnemonic(s.Len, s.Pos, "pextr", "vextracti")
		}
	case FormBroadcast:
		m = "vpbroadcast" + sfx
		if !t.Features.Has(AVX2) {
			m = "movdqa"
		}
	case FormConst:
		m = "movdqu"
	case FormPshufd, FormPshuflw, FormPshufhw, FormPshufb, FormPermq, FormPermd, FormPermw, FormPermb:
		m = formNames[s.Form]
	case FormPermqVar:
		m = "permq"
	case FormPermt2:
		m = "permt2" + sizeSuffix[int(s.Imm)]
	case FormMin:
		m = "pmin" + sign + sfx
	case FormMax:
		m = "pmax" + sign + sfx
	case FormCmpGt:
		m = "pcmpgt" + sfx
	case FormAnd, FormAndn, FormOr, FormXor:
		m = "p" + formNames[s.Form]
		if t.physBits() == 512 {
			m += "q"
		}
	case FormBlendd:
		m = "pblendd"
	case FormBlendw:
		m = "pblendw"
	case FormBlendK:
		m = "pblendm" + sfx
	case FormBlendvb:
		m = "pblendvb"
	default:
		return s.Form.String()
	}
	if t.Features.Has(AVX) && m[0] != 'v' {
		m = "v" + m
	}
	return m
}

func partMnemonic(n, pos int, scalar, lane string) string {
	switch n {
	case 1:
		return scalar + "b"
	case 2:
		return scalar + "w"
	case 4:
		if pos == 0 {
			return "movd"
		}
		return scalar + "d"
	case 8:
		if pos == 0 {
			return "movq"
		}
		return scalar + "q"
	case 16:
		if pos == 0 {
			return "movdqu"
		}
		return lane + "128"
	}
	return lane + "64x4"
}
