//go:build amd64 && !purego

package sortnet

import "golang.org/x/sys/cpu"

// HostFeatures reports the instruction-set extensions of the running CPU.
// Generation never consults it on its own; callers opt in by copying the
// result into Target.Features.
func HostFeatures() Features {
	var f Features
	if cpu.X86.HasSSE2 {
		f |= SSE2
	}
	if cpu.X86.HasSSSE3 {
		f |= SSSE3
	}
	if cpu.X86.HasSSE41 {
		f |= SSE41
	}
	if cpu.X86.HasSSE42 {
		f |= SSE42
	}
	if cpu.X86.HasAVX {
		f |= AVX
	}
	if cpu.X86.HasAVX2 {
		f |= AVX2
	}
	if cpu.X86.HasAVX512F {
		f |= AVX512F
	}
	if cpu.X86.HasAVX512VL {
		f |= AVX512VL
	}
	if cpu.X86.HasAVX512BW {
		f |= AVX512BW
	}
	if cpu.X86.HasAVX512VBMI {
		f |= AVX512VBMI
	}
	return f
}
