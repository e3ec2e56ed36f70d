package sortnet

import "encoding/binary"

// Lane maps used by the selector are []int indexed by destination lane;
// each entry is the source lane or -1 when the destination does not matter.
// Selector masks are []int8: 1 takes the second operand, 0 the first, -1 is
// free.

func isIdentity(idx []int) bool {
	for j, v := range idx {
		if v >= 0 && v != j {
			return false
		}
	}
	return true
}

// coarsen groups k consecutive entries into one unit. It fails unless every
// unit reads k consecutive source entries starting at a multiple of k.
func coarsen(idx []int, k int) ([]int, bool) {
	if k == 1 {
		return idx, true
	}
	if len(idx)%k != 0 {
		return nil, false
	}
	out := make([]int, len(idx)/k)
	for u := range out {
		src := -1
		for j := range k {
			v := idx[u*k+j]
			if v < 0 {
				continue
			}
			if v%k != j || (src >= 0 && src != v/k) {
				return nil, false
			}
			src = v / k
		}
		out[u] = src
	}
	return out, true
}

// refine splits every unit into k consecutive sub-units.
func refine(idx []int, k int) []int {
	out := make([]int, len(idx)*k)
	for u, v := range idx {
		for j := range k {
			if v < 0 {
				out[u*k+j] = -1
			} else {
				out[u*k+j] = v*k + j
			}
		}
	}
	return out
}

// lanePattern returns the local pattern shared by all groups of size group,
// provided no entry reads outside its own group. Free slots become identity.
func lanePattern(idx []int, group int) ([]int, bool) {
	pat := make([]int, group)
	for i := range pat {
		pat[i] = -1
	}
	for j, v := range idx {
		if v < 0 {
			continue
		}
		if v/group != j/group {
			return nil, false
		}
		p := j % group
		if pat[p] >= 0 && pat[p] != v%group {
			return nil, false
		}
		pat[p] = v % group
	}
	for i := range pat {
		if pat[i] < 0 {
			pat[i] = i
		}
	}
	return pat, true
}

// inGroups reports whether every entry reads from its own group.
func inGroups(idx []int, group int) bool {
	for j, v := range idx {
		if v >= 0 && v/group != j/group {
			return false
		}
	}
	return true
}

// imm2 packs 2-bit slots, slot i at bits 2i.
func imm2(pat []int) uint64 {
	var imm uint64
	for i, v := range pat {
		imm |= uint64(v&3) << (2 * i)
	}
	return imm
}

// indexVec encodes idx as little-endian integers of width bytes. Free
// entries become zero.
func indexVec(idx []int, width int) []byte {
	out := make([]byte, len(idx)*width)
	for i, v := range idx {
		v = max(v, 0)
		switch width {
		case 1:
			out[i] = byte(v)
		case 2:
			binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
		case 4:
			binary.LittleEndian.PutUint32(out[4*i:], uint32(v))
		default:
			binary.LittleEndian.PutUint64(out[8*i:], uint64(v))
		}
	}
	return out
}

// pshufbTable builds the in-lane byte table for a byte-granular map, or
// fails when a byte crosses its 128-bit lane.
func pshufbTable(bytes []int) ([]byte, bool) {
	if !inGroups(bytes, 16) {
		return nil, false
	}
	tab := make([]byte, len(bytes))
	for j, v := range bytes {
		if v < 0 {
			tab[j] = 0x80
		} else {
			tab[j] = byte(v % 16)
		}
	}
	return tab, true
}

func needs(sel []int8) (a, b bool) {
	for _, v := range sel {
		switch v {
		case 0:
			a = true
		case 1:
			b = true
		}
	}
	return a, b
}

// resize converts a selector from units of from bits to units of to bits.
// Widening fails when the merged units disagree.
func resize(sel []int8, from, to int) ([]int8, bool) {
	if from == to {
		return sel, true
	}
	if to < from {
		k := from / to
		out := make([]int8, len(sel)*k)
		for i, v := range sel {
			for j := range k {
				out[i*k+j] = v
			}
		}
		return out, true
	}
	k := to / from
	out := make([]int8, len(sel)/k)
	for u := range out {
		out[u] = -1
		for j := range k {
			v := sel[u*k+j]
			if v < 0 {
				continue
			}
			if out[u] >= 0 && out[u] != v {
				return nil, false
			}
			out[u] = v
		}
	}
	return out, true
}

// selBits sets bit i for every unit taking the second operand.
func selBits(sel []int8) uint64 {
	var bits uint64
	for i, v := range sel {
		if v == 1 {
			bits |= 1 << i
		}
	}
	return bits
}

// selBytes expands a byte-granular selector into a byte mask of fill for
// selected bytes and zero elsewhere.
func selBytes(sel []int8, fill byte) []byte {
	out := make([]byte, len(sel))
	for i, v := range sel {
		if v == 1 {
			out[i] = fill
		}
	}
	return out
}
