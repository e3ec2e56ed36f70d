package sortnet

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// WriteNetwork prints the raw, normalized and grouped forms of a network.
func WriteNetwork(w io.Writer, nw *Network) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# %s n=%d: %d comparators, depth %d\n", nw.Algorithm, nw.N, nw.Size(), nw.Depth())
	fmt.Fprintf(bw, "raw:        %s\n", pairList(nw.Raw))
	fmt.Fprintf(bw, "normalized: %s\n", pairList(nw.Pairs))
	for i, r := range nw.Rounds {
		fmt.Fprintf(bw, "round %2d:   %s\n", i, pairList(r))
	}
	return bw.Flush()
}

func pairList(pairs []Pair) string {
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = p.String()
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Stats counts the instructions of a kernel by kind.
type Stats struct {
	Loads, Stores, Permutes, MinMax, Blends, Logic, Consts int
	Size, Uops                                              int
	Depth                                                   int
}

// Instructions is the total instruction count.
func (s Stats) Instructions() int {
	return s.Loads + s.Stores + s.Permutes + s.MinMax + s.Blends + s.Logic + s.Consts
}

// Stats summarizes the kernel.
func (k *Kernel) Stats() Stats {
	st := Stats{Depth: len(k.Code)}
	for _, s := range k.Steps() {
		c := s.cost()
		st.Size += c.size
		st.Uops += c.uops
		switch f := s.Form; {
		case f.isStore():
			st.Stores++
		case f.isMemory():
			st.Loads++
		case f.isPermute():
			st.Permutes++
		case f.isBlend():
			st.Blends++
		case f == FormMin, f == FormMax, f == FormCmpGt:
			st.MinMax++
		case f == FormConst, f == FormBroadcast:
			st.Consts++
		default:
			st.Logic++
		}
	}
	return st
}

func (s Step) operands() string {
	var ops []string
	if s.Dst != NoReg {
		ops = append(ops, s.Dst.String())
	}
	for _, r := range []Reg{s.A, s.B, s.C} {
		if r != NoReg {
			ops = append(ops, r.String())
		}
	}
	switch {
	case s.Form.isMemory():
		mem := fmt.Sprintf("[%d:%d]", s.Off, s.Off+s.Len)
		if s.Form.isStore() {
			ops = append([]string{mem}, ops...)
		} else {
			ops = append(ops, mem)
		}
		if s.Form == FormLoadPart || s.Form == FormStorePart {
			ops = append(ops, fmt.Sprintf("@%d", s.Pos))
		}
		if s.Form == FormLoadMaskK || s.Form == FormStoreMaskK {
			ops = append(ops, fmt.Sprintf("k=%#x", s.Imm))
		}
	case s.Form == FormBroadcast, s.Form == FormPermt2:
		ops = append(ops, fmt.Sprintf("%#x", s.Imm))
	case s.Form == FormConst:
	case s.Imm != 0 || s.Form == FormPshufd || s.Form == FormPermq || s.Form.isBlend() && s.Form != FormBlendvb:
		ops = append(ops, fmt.Sprintf("$%#x", s.Imm))
	}
	if len(s.Vec) > 0 {
		ops = append(ops, fmt.Sprintf("%x", s.Vec))
	}
	return strings.Join(ops, ", ")
}

// WriteListing prints the kernel as annotated pseudo assembly.
func (k *Kernel) WriteListing(w io.Writer) error {
	bw := bufio.NewWriter(w)
	st := k.Stats()
	fmt.Fprintf(bw, "; %s on %s\n", k.Algorithm, k.Target)
	fmt.Fprintf(bw, "; %d rounds, %d instructions, %d bytes, %d uops, %d registers\n",
		st.Depth, st.Instructions(), st.Size, st.Uops, k.Regs)
	for r, rb := range k.Boundary {
		fmt.Fprintf(bw, "; register %d: %d lanes from memory, %s\n", r, rb.Count, rb.Mode)
	}
	write := func(steps []Step) {
		for _, s := range steps {
			fmt.Fprintf(bw, "\t%-14s %s\n", s.Mnemonic(k.Target), s.operands())
		}
	}
	fmt.Fprintln(bw, "load:")
	write(k.Load)
	for i, rc := range k.Code {
		fmt.Fprintf(bw, "round %d: %s\n", i, pairList(rc.Pairs))
		write(rc.Steps)
	}
	fmt.Fprintln(bw, "store:")
	write(k.Store)
	return bw.Flush()
}
