package sortnet

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mhr3/streamvbyte"
)

var bo = binary.LittleEndian

// Encoded kernel layout:
//
//	[0:4]  magic "SNK" + format version
//	[4:8]  word count (little-endian uint32)
//	[8:]   StreamVByte-encoded words
//
// Words: a fixed header (see the hdr constants), the register boundary
// table (count, mode per register), one directory word per round holding
// the index of its record, then the load steps, the round records and the
// store steps. A round record is its pair count, the pairs, its step count
// and the steps. Steps are encoded as form, dst, a, b, c (register+1, so
// NoReg is zero), imm low, imm high, off, len, pos, vector length and the
// vector bytes packed four per word.
//
// The encoding depends only on the kernel, so equal requests encode to
// equal bytes.

const (
	encodingMagic   = "SNK"
	encodingVersion = 1
	encodedPrefix   = 8
)

const (
	hdrTypeBits = iota
	hdrSigned
	hdrN
	hdrVectorBits
	hdrBlocks
	hdrPolicy
	hdrFeatures
	hdrBoundary
	hdrAligned
	hdrAlgorithm
	hdrNetworkN
	hdrRegs
	hdrRegisters
	hdrRounds
	hdrLoads
	hdrStores
	hdrWords
)

// ErrCorrupt reports an encoded kernel that cannot be decoded.
var ErrCorrupt = errors.New("sortnet: corrupt kernel encoding")

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func appendStep(w []uint32, s Step) []uint32 {
	w = append(w,
		uint32(s.Form),
		uint32(s.Dst+1), uint32(s.A+1), uint32(s.B+1), uint32(s.C+1),
		uint32(s.Imm), uint32(s.Imm>>32),
		uint32(s.Off), uint32(s.Len), uint32(s.Pos),
		uint32(len(s.Vec)),
	)
	for i := 0; i < len(s.Vec); i += 4 {
		var chunk [4]byte
		copy(chunk[:], s.Vec[i:])
		w = append(w, bo.Uint32(chunk[:]))
	}
	return w
}

// MarshalBinary encodes the kernel.
func (k *Kernel) MarshalBinary() ([]byte, error) {
	t := k.Target
	w := make([]uint32, hdrWords)
	w[hdrTypeBits] = uint32(t.Type.Bits)
	w[hdrSigned] = b2u(t.Type.Signed)
	w[hdrN] = uint32(t.N)
	w[hdrVectorBits] = uint32(t.VectorBits)
	w[hdrBlocks] = uint32(t.Blocks)
	w[hdrPolicy] = uint32(t.Policy)
	w[hdrFeatures] = uint32(t.Features)
	w[hdrBoundary] = uint32(t.Boundary)
	w[hdrAligned] = b2u(t.Aligned)
	w[hdrAlgorithm] = uint32(k.Algorithm)
	if k.Network != nil {
		w[hdrNetworkN] = uint32(k.Network.N)
	}
	w[hdrRegs] = uint32(k.Regs)
	w[hdrRegisters] = uint32(len(k.Boundary))
	w[hdrRounds] = uint32(len(k.Code))
	w[hdrLoads] = uint32(len(k.Load))
	w[hdrStores] = uint32(len(k.Store))
	for _, rb := range k.Boundary {
		w = append(w, uint32(rb.Count), uint32(rb.Mode))
	}
	dir := len(w)
	w = append(w, make([]uint32, len(k.Code))...)
	for _, s := range k.Load {
		w = appendStep(w, s)
	}
	for i, rc := range k.Code {
		w[dir+i] = uint32(len(w))
		w = append(w, uint32(len(rc.Pairs)))
		for _, p := range rc.Pairs {
			w = append(w, uint32(p.X), uint32(p.Y))
		}
		w = append(w, uint32(len(rc.Steps)))
		for _, s := range rc.Steps {
			w = appendStep(w, s)
		}
	}
	for _, s := range k.Store {
		w = appendStep(w, s)
	}

	svb := streamvbyte.EncodeUint32(w, &streamvbyte.EncodeOptions[uint32]{
		Buffer: make([]byte, streamvbyte.MaxEncodedLen(len(w))),
	})
	out := make([]byte, encodedPrefix, encodedPrefix+len(svb))
	copy(out, encodingMagic)
	out[3] = encodingVersion
	bo.PutUint32(out[4:], uint32(len(w)))
	return append(out, svb...), nil
}

// wordStream reads words from a decoded slice or straight from the stream.
type wordStream struct {
	next func() (uint32, bool)
	err  error
}

func sliceWords(words []uint32) *wordStream {
	return &wordStream{next: func() (uint32, bool) {
		if len(words) == 0 {
			return 0, false
		}
		v := words[0]
		words = words[1:]
		return v, true
	}}
}

func openWords(data []byte) (svb []byte, count int, err error) {
	if len(data) < encodedPrefix || string(data[:3]) != encodingMagic {
		return nil, 0, fmt.Errorf("%w: missing header", ErrCorrupt)
	}
	if data[3] != encodingVersion {
		return nil, 0, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, data[3])
	}
	count = int(bo.Uint32(data[4:]))
	svb = data[encodedPrefix:]
	numControlBytes := (count + 3) >> 2
	if count < hdrWords || len(svb) < numControlBytes {
		return nil, 0, fmt.Errorf("%w: truncated stream", ErrCorrupt)
	}
	cur := svbNewCursor(svb, count)
	cur.seek(count)
	need := numControlBytes + cur.off
	if len(svb) < need {
		return nil, 0, fmt.Errorf("%w: stream needs %d bytes, has %d", ErrCorrupt, need, len(svb))
	}
	return svb, count, nil
}

func (ws *wordStream) word() int {
	if ws.err != nil {
		return 0
	}
	v, ok := ws.next()
	if !ok {
		ws.err = fmt.Errorf("%w: unexpected end of stream", ErrCorrupt)
	}
	return int(v)
}

func (ws *wordStream) step() Step {
	s := Step{
		Form: Form(ws.word()),
		Dst:  Reg(ws.word() - 1),
		A:    Reg(ws.word() - 1),
		B:    Reg(ws.word() - 1),
		C:    Reg(ws.word() - 1),
	}
	lo, hi := uint64(ws.word()), uint64(ws.word())
	s.Imm = lo | hi<<32
	s.Off, s.Len, s.Pos = ws.word(), ws.word(), ws.word()
	if n := ws.word(); n > 0 && ws.err == nil {
		if n > 64 {
			ws.err = fmt.Errorf("%w: %d-byte pattern", ErrCorrupt, n)
			return s
		}
		s.Vec = make([]byte, n)
		var chunk [4]byte
		for i := 0; i < n; i += 4 {
			bo.PutUint32(chunk[:], uint32(ws.word()))
			copy(s.Vec[i:], chunk[:])
		}
	}
	if s.Form == FormInvalid || s.Form >= numForms {
		ws.err = fmt.Errorf("%w: unknown form %d", ErrCorrupt, int(s.Form))
	}
	return s
}

func (ws *wordStream) steps(n int) []Step {
	var out []Step
	for range n {
		if ws.err != nil {
			break
		}
		out = append(out, ws.step())
	}
	return out
}

func (ws *wordStream) round() RoundCode {
	var rc RoundCode
	np := ws.word()
	for range np {
		if ws.err != nil {
			break
		}
		rc.Pairs = append(rc.Pairs, Pair{ws.word(), ws.word()})
	}
	rc.Steps = ws.steps(ws.word())
	return rc
}

func headerTarget(h []int) (Target, Algorithm) {
	return Target{
		Type:       Type{Bits: h[hdrTypeBits], Signed: h[hdrSigned] == 1},
		N:          h[hdrN],
		VectorBits: h[hdrVectorBits],
		Blocks:     h[hdrBlocks],
		Policy:     Policy(h[hdrPolicy]),
		Features:   Features(h[hdrFeatures]),
		Boundary:   BoundaryMode(h[hdrBoundary]),
		Aligned:    h[hdrAligned] == 1,
	}, Algorithm(h[hdrAlgorithm])
}

// PeekTarget reads the target and algorithm of an encoded kernel without
// decoding its steps.
func PeekTarget(data []byte) (Target, Algorithm, error) {
	svb, count, err := openWords(data)
	if err != nil {
		return Target{}, 0, err
	}
	h := make([]int, hdrWords)
	for i := range h {
		h[i] = int(svbWord(svb, count, i))
	}
	t, alg := headerTarget(h)
	return t, alg, nil
}

// DecodeRound decodes round i of an encoded kernel through the round
// directory, skipping everything before it.
func DecodeRound(data []byte, i int) (RoundCode, error) {
	svb, count, err := openWords(data)
	if err != nil {
		return RoundCode{}, err
	}
	regs := int(svbWord(svb, count, hdrRegisters))
	rounds := int(svbWord(svb, count, hdrRounds))
	if i < 0 || i >= rounds {
		return RoundCode{}, fmt.Errorf("%w: round %d of %d", ErrInvalidConfig, i, rounds)
	}
	dirIdx := hdrWords + 2*regs + i
	if dirIdx >= count {
		return RoundCode{}, fmt.Errorf("%w: round directory past the stream", ErrCorrupt)
	}
	start := int(svbWord(svb, count, dirIdx))
	if start >= count {
		return RoundCode{}, fmt.Errorf("%w: round %d starts past the stream", ErrCorrupt, i)
	}
	cur := svbNewCursor(svb, count)
	cur.seek(start)
	ws := &wordStream{next: cur.next}
	rc := ws.round()
	return rc, ws.err
}

// UnmarshalBinary decodes a kernel written by MarshalBinary. The network is
// regenerated from the recorded algorithm and size.
func (k *Kernel) UnmarshalBinary(data []byte) error {
	svb, count, err := openWords(data)
	if err != nil {
		return err
	}
	words := streamvbyte.DecodeUint32(svb, count, &streamvbyte.DecodeOptions[uint32]{
		Buffer: make([]uint32, count),
	})
	ws := sliceWords(words)
	h := make([]int, hdrWords)
	for i := range h {
		h[i] = ws.word()
	}

	var out Kernel
	out.Target, out.Algorithm = headerTarget(h)
	if _, err := out.Target.Resolve(); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	for _, i := range []int{hdrRegs, hdrRegisters, hdrRounds, hdrLoads, hdrStores} {
		if h[i] > count {
			return fmt.Errorf("%w: header count %d exceeds the stream", ErrCorrupt, h[i])
		}
	}
	if h[hdrNetworkN] > MaxN {
		return fmt.Errorf("%w: network size %d", ErrCorrupt, h[hdrNetworkN])
	}
	out.Regs = h[hdrRegs]
	for range h[hdrRegisters] {
		out.Boundary = append(out.Boundary, RegBoundary{Count: ws.word(), Mode: BoundaryMode(ws.word())})
	}
	for range h[hdrRounds] {
		ws.word()
	}
	out.Load = ws.steps(h[hdrLoads])
	for range h[hdrRounds] {
		if ws.err != nil {
			break
		}
		out.Code = append(out.Code, ws.round())
	}
	out.Store = ws.steps(h[hdrStores])
	if ws.err != nil {
		return ws.err
	}
	if len(out.Boundary) > 0 && h[hdrNetworkN]*max(out.Target.Blocks, 1) > len(out.Boundary)*out.Target.Lanes() {
		return fmt.Errorf("%w: %d registers cannot hold the network", ErrCorrupt, len(out.Boundary))
	}
	for _, s := range out.Steps() {
		if int(s.Dst) >= out.Regs || int(s.A) >= out.Regs || int(s.B) >= out.Regs || int(s.C) >= out.Regs {
			return fmt.Errorf("%w: register out of range in %v", ErrCorrupt, s.Form)
		}
		n := out.Target.regBytes()
		if s.Form.isMemory() && (s.Pos < 0 || s.Len < 0 || s.Pos+s.Len > n) {
			return fmt.Errorf("%w: %v moves bytes [%d,%d) of a %d-byte register", ErrCorrupt, s.Form, s.Pos, s.Pos+s.Len, n)
		}
		if s.Form == FormPshufb && len(s.Vec) < n {
			return fmt.Errorf("%w: short pshufb table", ErrCorrupt)
		}
	}

	nw, err := NewNetwork(out.Algorithm, h[hdrNetworkN])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	out.Network = nw
	out.Rounds = Tile(nw.Rounds, nw.N, out.Target.Blocks)
	if len(out.Rounds) != len(out.Code) && len(out.Code) > 0 {
		return fmt.Errorf("%w: %d round records for a %d-round network", ErrCorrupt, len(out.Code), len(out.Rounds))
	}
	lanes := len(out.Boundary) * out.Target.Lanes()
	if lanes == 0 {
		lanes = nw.N * out.Target.Blocks
	}
	out.Perms = Build(out.Rounds, lanes)
	*k = out
	return nil
}
