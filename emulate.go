package sortnet

import (
	"encoding/binary"
	"fmt"
)

// vreg is the contents of one emulated vector register. Only the first
// regBytes bytes of the target are significant.
type vreg [64]byte

// machine executes kernel steps on a byte buffer.
type machine struct {
	t    Target
	eb   int
	n    int
	regs []vreg
	buf  []byte
}

func (m *machine) lane(v *vreg, i, width int) uint64 {
	switch width {
	case 1:
		return uint64(v[i])
	case 2:
		return uint64(binary.LittleEndian.Uint16(v[2*i:]))
	case 4:
		return uint64(binary.LittleEndian.Uint32(v[4*i:]))
	}
	return binary.LittleEndian.Uint64(v[8*i:])
}

func (m *machine) setLane(v *vreg, i, width int, x uint64) {
	switch width {
	case 1:
		v[i] = byte(x)
	case 2:
		binary.LittleEndian.PutUint16(v[2*i:], uint16(x))
	case 4:
		binary.LittleEndian.PutUint32(v[4*i:], uint32(x))
	default:
		binary.LittleEndian.PutUint64(v[8*i:], x)
	}
}

// signed sign-extends an element to int64.
func (m *machine) signed(x uint64) int64 {
	shift := 64 - m.t.Type.Bits
	return int64(x<<shift) >> shift
}

func (m *machine) less(x, y uint64) bool {
	if m.t.Type.Signed {
		return m.signed(x) < m.signed(y)
	}
	return x < y
}

func (m *machine) span(off, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+n > len(m.buf) {
		return nil, fmt.Errorf("%w: bytes [%d,%d) of a %d-byte buffer", ErrOutOfBounds, off, off+n, len(m.buf))
	}
	return m.buf[off : off+n], nil
}

// unitSelected reports whether unit i of the vpmaskmov mask c is set.
func (m *machine) unitSelected(c *vreg, i, unit int) bool {
	return c[i*unit+unit-1]&0x80 != 0
}

func (m *machine) maskUnit() int { return max(m.eb, 4) }

func (m *machine) exec(s Step) error {
	var d vreg
	a, b, c := m.reg(s.A), m.reg(s.B), m.reg(s.C)
	eb, n := m.eb, m.n
	lanes := n / eb
	switch s.Form {
	case FormLoad, FormLoadAligned:
		src, err := m.span(s.Off, s.Len)
		if err != nil {
			return err
		}
		copy(d[:], src)
	case FormLoadMaskK:
		d = *a
		for i := range lanes {
			if s.Imm>>i&1 == 0 {
				continue
			}
			src, err := m.span(s.Off+i*eb, eb)
			if err != nil {
				return err
			}
			copy(d[i*eb:], src)
		}
	case FormLoadMaskV:
		u := m.maskUnit()
		for i := range n / u {
			if !m.unitSelected(c, i, u) {
				continue
			}
			src, err := m.span(s.Off+i*u, u)
			if err != nil {
				return err
			}
			copy(d[i*u:], src)
		}
	case FormLoadPart:
		d = *a
		src, err := m.span(s.Off, s.Len)
		if err != nil {
			return err
		}
		copy(d[s.Pos:s.Pos+s.Len], src)
	case FormStore, FormStoreAligned, FormStorePart:
		dst, err := m.span(s.Off, s.Len)
		if err != nil {
			return err
		}
		copy(dst, a[s.Pos:s.Pos+s.Len])
		return nil
	case FormStoreMaskK:
		for i := range lanes {
			if s.Imm>>i&1 == 0 {
				continue
			}
			dst, err := m.span(s.Off+i*eb, eb)
			if err != nil {
				return err
			}
			copy(dst, a[i*eb:(i+1)*eb])
		}
		return nil
	case FormStoreMaskV:
		u := m.maskUnit()
		for i := range n / u {
			if !m.unitSelected(c, i, u) {
				continue
			}
			dst, err := m.span(s.Off+i*u, u)
			if err != nil {
				return err
			}
			copy(dst, a[i*u:(i+1)*u])
		}
		return nil
	case FormBroadcast:
		for i := range lanes {
			m.setLane(&d, i, eb, s.Imm)
		}
	case FormConst:
		copy(d[:], s.Vec)
	case FormPshufd:
		for i := range n / 4 {
			lane := i / 4 * 4
			m.setLane(&d, i, 4, m.lane(a, lane+int(s.Imm>>(2*(i%4))&3), 4))
		}
	case FormPshuflw, FormPshufhw:
		d = *a
		base := 0
		if s.Form == FormPshufhw {
			base = 4
		}
		for i := range n / 2 {
			if p := i % 8; p >= base && p < base+4 {
				src := i - p + base + int(s.Imm>>(2*(p-base))&3)
				m.setLane(&d, i, 2, m.lane(a, src, 2))
			}
		}
	case FormPshufb:
		for j := range n {
			if sel := s.Vec[j]; sel&0x80 == 0 {
				d[j] = a[j/16*16+int(sel&15)]
			}
		}
	case FormPermq:
		for i := range n / 8 {
			m.setLane(&d, i, 8, m.lane(a, i/4*4+int(s.Imm>>(2*(i%4))&3), 8))
		}
	case FormPermd, FormPermqVar, FormPermw, FormPermb:
		u := map[Form]int{FormPermd: 4, FormPermqVar: 8, FormPermw: 2, FormPermb: 1}[s.Form]
		idx := vreg{}
		copy(idx[:], s.Vec)
		for i := range n / u {
			src := int(m.lane(&idx, i, u)) % (n / u)
			m.setLane(&d, i, u, m.lane(a, src, u))
		}
	case FormPermt2:
		u := int(s.Imm) / 8
		units := n / u
		idx := vreg{}
		copy(idx[:], s.Vec)
		for i := range units {
			src := int(m.lane(&idx, i, u)) % (2 * units)
			if src < units {
				m.setLane(&d, i, u, m.lane(a, src, u))
			} else {
				m.setLane(&d, i, u, m.lane(b, src-units, u))
			}
		}
	case FormMin, FormMax, FormCmpGt:
		for i := range lanes {
			x, y := m.lane(a, i, eb), m.lane(b, i, eb)
			var r uint64
			switch s.Form {
			case FormMin:
				r = x
				if m.less(y, x) {
					r = y
				}
			case FormMax:
				r = x
				if m.less(x, y) {
					r = y
				}
			default:
				if m.signed(x) > m.signed(y) {
					r = ^uint64(0)
				}
			}
			m.setLane(&d, i, eb, r)
		}
	case FormAnd, FormAndn, FormOr, FormXor:
		for j := range n {
			switch s.Form {
			case FormAnd:
				d[j] = a[j] & b[j]
			case FormAndn:
				d[j] = ^a[j] & b[j]
			case FormOr:
				d[j] = a[j] | b[j]
			default:
				d[j] = a[j] ^ b[j]
			}
		}
	case FormBlendd, FormBlendw, FormBlendK, FormBlendvb:
		u, period := 4, 64
		switch s.Form {
		case FormBlendw:
			u, period = 2, 8
		case FormBlendK:
			u = eb
		case FormBlendvb:
			u = 1
		}
		for i := range n / u {
			pick := s.Imm>>(i%period)&1 == 1
			if s.Form == FormBlendvb {
				pick = c[i]&0x80 != 0
			}
			src := a
			if pick {
				src = b
			}
			copy(d[i*u:(i+1)*u], src[i*u:(i+1)*u])
		}
	default:
		panic(fmt.Sprintf("sortnet: cannot execute form %v", s.Form))
	}
	if s.Dst < 0 || int(s.Dst) >= len(m.regs) {
		panic(fmt.Sprintf("sortnet: step %v writes register %v outside the file", s.Form, s.Dst))
	}
	m.regs[s.Dst] = d
	return nil
}

var zeroReg vreg

func (m *machine) reg(r Reg) *vreg {
	if r == NoReg {
		return &zeroReg
	}
	return &m.regs[r]
}

// Run executes the kernel on buf, which holds Target.Total() little-endian
// elements followed by whatever else the caller owns. Any access outside
// buf returns ErrOutOfBounds; steps before the failing one may already have
// written buf.
func (k *Kernel) Run(buf []byte) error {
	m := &machine{
		t:    k.Target,
		eb:   k.Target.Type.Bytes(),
		n:    k.Target.regBytes(),
		regs: make([]vreg, k.Regs),
		buf:  buf,
	}
	for _, s := range k.Steps() {
		if err := m.exec(s); err != nil {
			return fmt.Errorf("%s: %w", s.Mnemonic(k.Target), err)
		}
	}
	return nil
}

// Integer is the set of element types a kernel can sort.
type Integer interface {
	~int8 | ~uint8 | ~int16 | ~uint16 | ~int32 | ~uint32 | ~int64 | ~uint64
}

// SortSlice sorts data[:Target.Total()] block by block with the kernel. data
// may be longer; for BoundaryFull it must span Kernel.BufferLen() bytes.
func SortSlice[T Integer](k *Kernel, data []T) error {
	var zero T
	eb := k.Target.Type.Bytes()
	if sz := binary.Size(zero); sz != eb || (T(0)-1 < 0) != k.Target.Type.Signed {
		return fmt.Errorf("%w: %T slice for a %s kernel", ErrInvalidConfig, zero, k.Target.Type)
	}
	buf := make([]byte, len(data)*eb)
	for i, v := range data {
		putElem(buf[i*eb:], eb, uint64(v))
	}
	if err := k.Run(buf); err != nil {
		return err
	}
	for i := range data {
		data[i] = T(getElem(buf[i*eb:], eb))
	}
	return nil
}

func putElem(b []byte, eb int, x uint64) {
	switch eb {
	case 1:
		b[0] = byte(x)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(x))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(x))
	default:
		binary.LittleEndian.PutUint64(b, x)
	}
}

func getElem(b []byte, eb int) uint64 {
	switch eb {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	}
	return binary.LittleEndian.Uint64(b)
}
