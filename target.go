package sortnet

import (
	"fmt"
	"strconv"
	"strings"
)

// Type describes the scalar element type being sorted.
type Type struct {
	Bits   int
	Signed bool
}

var (
	Int8   = Type{Bits: 8, Signed: true}
	Uint8  = Type{Bits: 8}
	Int16  = Type{Bits: 16, Signed: true}
	Uint16 = Type{Bits: 16}
	Int32  = Type{Bits: 32, Signed: true}
	Uint32 = Type{Bits: 32}
	Int64  = Type{Bits: 64, Signed: true}
	Uint64 = Type{Bits: 64}
)

// Types lists every supported element type.
func Types() []Type {
	return []Type{Int8, Uint8, Int16, Uint16, Int32, Uint32, Int64, Uint64}
}

func (t Type) String() string {
	if t.Signed {
		return "int" + strconv.Itoa(t.Bits)
	}
	return "uint" + strconv.Itoa(t.Bits)
}

// Bytes is the element size in bytes.
func (t Type) Bytes() int { return t.Bits / 8 }

// Max returns the bit pattern of the largest representable value, zero
// extended to 64 bits. It is the fill value of lanes without input.
func (t Type) Max() uint64 {
	if t.Signed {
		return 1<<(t.Bits-1) - 1
	}
	return t.mask()
}

func (t Type) mask() uint64 {
	if t.Bits == 64 {
		return ^uint64(0)
	}
	return 1<<t.Bits - 1
}

func (t Type) valid() bool {
	switch t.Bits {
	case 8, 16, 32, 64:
		return true
	}
	return false
}

// ParseType accepts Go names ("int32", "uint8") and the C spellings
// ("int32_t", "uint8_t").
func ParseType(s string) (Type, error) {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "_t")
	for _, t := range Types() {
		if t.String() == name {
			return t, nil
		}
	}
	return Type{}, fmt.Errorf("%w: unknown element type %q", ErrInvalidConfig, s)
}

// Features is a set of x86 instruction-set extensions.
type Features uint16

const (
	SSE2 Features = 1 << iota
	SSSE3
	SSE41
	SSE42
	AVX
	AVX2
	AVX512F
	AVX512VL
	AVX512BW
	AVX512VBMI
)

// Common feature levels. Each includes everything below it.
const (
	FeaturesSSE2   = SSE2
	FeaturesSSE4   = SSE2 | SSSE3 | SSE41 | SSE42
	FeaturesAVX2   = FeaturesSSE4 | AVX | AVX2
	FeaturesAVX512 = FeaturesAVX2 | AVX512F | AVX512VL | AVX512BW
	FeaturesAll    = FeaturesAVX512 | AVX512VBMI
)

var featureNames = []struct {
	f    Features
	name string
}{
	{SSE2, "sse2"},
	{SSSE3, "ssse3"},
	{SSE41, "sse4.1"},
	{SSE42, "sse4.2"},
	{AVX, "avx"},
	{AVX2, "avx2"},
	{AVX512F, "avx512f"},
	{AVX512VL, "avx512vl"},
	{AVX512BW, "avx512bw"},
	{AVX512VBMI, "avx512vbmi"},
}

// Has reports whether every feature in req is present.
func (f Features) Has(req Features) bool { return f&req == req }

func (f Features) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	for _, fn := range featureNames {
		if f&fn.f != 0 {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, ",")
}

// implied closes the set over prerequisites: every extension implies the
// older ones a CPU must have to provide it.
func (f Features) implied() Features {
	if f&AVX512VBMI != 0 {
		f |= AVX512BW
	}
	if f&(AVX512VL|AVX512BW) != 0 {
		f |= AVX512F
	}
	if f&AVX512F != 0 {
		f |= AVX2
	}
	if f&AVX2 != 0 {
		f |= AVX
	}
	if f&AVX != 0 {
		f |= SSE42
	}
	if f&SSE42 != 0 {
		f |= SSE41
	}
	if f&SSE41 != 0 {
		f |= SSSE3
	}
	if f&SSSE3 != 0 {
		f |= SSE2
	}
	return f
}

// ParseFeatures parses a comma separated list such as "avx2" or
// "sse4.1,avx512bw". Prerequisites are added implicitly. "all" enables
// everything the selector knows.
func ParseFeatures(s string) (Features, error) {
	var f Features
	for _, part := range strings.Split(s, ",") {
		name := strings.ToLower(strings.TrimSpace(part))
		name = strings.ReplaceAll(name, "_", "")
		if name == "" {
			continue
		}
		if name == "all" {
			f |= FeaturesAll
			continue
		}
		found := false
		for _, fn := range featureNames {
			if fn.name == name || strings.ReplaceAll(fn.name, ".", "") == name {
				f |= fn.f
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: unknown instruction set %q", ErrInvalidConfig, part)
		}
	}
	return f.implied(), nil
}

// DefaultFeatures is the feature level assumed for a vector width when a
// Target does not name one.
func DefaultFeatures(vectorBits int) Features {
	switch vectorBits {
	case 256:
		return FeaturesAVX2
	case 512:
		return FeaturesAVX512
	}
	return FeaturesSSE4
}

// widthRequirement is the minimum feature set for registers of the given width.
func widthRequirement(vectorBits int) Features {
	switch vectorBits {
	case 256:
		return AVX2
	case 512:
		return AVX512F
	}
	return SSE2
}

// BoundaryMode selects how registers that are only partly backed by the
// input buffer are loaded and stored.
type BoundaryMode int

const (
	// BoundaryAuto uses masked moves when the target has them, split moves otherwise.
	BoundaryAuto BoundaryMode = iota
	// BoundaryFull loads and stores whole registers. The caller guarantees
	// the buffer extends to a whole number of vectors.
	BoundaryFull
	// BoundaryMasked uses per-lane masked loads and stores.
	BoundaryMasked
	// BoundarySplit moves the in-range prefix in power-of-two chunks.
	BoundarySplit
)

var boundaryNames = [...]string{
	BoundaryAuto:   "auto",
	BoundaryFull:   "full",
	BoundaryMasked: "masked",
	BoundarySplit:  "split",
}

func (m BoundaryMode) String() string {
	if m < 0 || int(m) >= len(boundaryNames) {
		return fmt.Sprintf("BoundaryMode(%d)", int(m))
	}
	return boundaryNames[m]
}

// ParseBoundaryMode parses "auto", "full", "masked" or "split".
func ParseBoundaryMode(s string) (BoundaryMode, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range boundaryNames {
		if n == name {
			return BoundaryMode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown boundary mode %q", ErrInvalidConfig, s)
}

var vectorWidths = []int{64, 128, 256, 512}

// Target describes what a kernel is generated for.
type Target struct {
	Type Type
	// N is the number of elements sorted by one network.
	N int
	// VectorBits is the register width (64, 128, 256 or 512). Zero picks the
	// smallest width that holds N*Blocks elements.
	VectorBits int
	// Blocks is the number of independent N-element arrays sorted side by
	// side. Zero means one.
	Blocks   int
	Policy   Policy
	Features Features
	Boundary BoundaryMode
	// Aligned promises vector-aligned buffers so aligned moves may be used.
	Aligned bool
}

func (t Target) String() string {
	s := fmt.Sprintf("%s x %d, %d-bit, %s, policy=%s, boundary=%s",
		t.Type, t.N, t.VectorBits, t.Features, t.Policy, t.Boundary)
	if t.Blocks > 1 {
		s += fmt.Sprintf(", blocks=%d", t.Blocks)
	}
	return s
}

// Lanes is the number of elements stored per register.
func (t Target) Lanes() int { return t.VectorBits / t.Type.Bits }

// physBits is the width of the machine register backing a vector. 64-bit
// vectors live in the low half of an XMM register.
func (t Target) physBits() int { return max(t.VectorBits, 128) }

func (t Target) physLanes() int { return t.physBits() / t.Type.Bits }

func (t Target) regBytes() int { return t.physBits() / 8 }

// Total is the number of elements in the caller's buffer.
func (t Target) Total() int { return t.N * max(t.Blocks, 1) }

// Resolve fills in defaults and validates the target.
func (t Target) Resolve() (Target, error) {
	if !t.Type.valid() {
		return t, fmt.Errorf("%w: unsupported element width %d", ErrInvalidConfig, t.Type.Bits)
	}
	if t.N < 1 {
		return t, fmt.Errorf("%w: element count %d must be positive", ErrInvalidConfig, t.N)
	}
	if t.Blocks == 0 {
		t.Blocks = 1
	}
	if t.Blocks < 0 {
		return t, fmt.Errorf("%w: negative block count %d", ErrInvalidConfig, t.Blocks)
	}
	if t.Total() > MaxN {
		return t, fmt.Errorf("%w: %d elements exceed the limit of %d", ErrInvalidConfig, t.Total(), MaxN)
	}
	if t.Policy != FavorSize && t.Policy != FavorUops {
		return t, fmt.Errorf("%w: unknown cost policy %d", ErrInvalidConfig, int(t.Policy))
	}
	if t.Boundary < 0 || int(t.Boundary) >= len(boundaryNames) {
		return t, fmt.Errorf("%w: unknown boundary mode %d", ErrInvalidConfig, int(t.Boundary))
	}
	features := t.Features.implied()
	if t.VectorBits == 0 {
		t.VectorBits = t.autoWidth(features)
		if t.VectorBits == 0 {
			return t, fmt.Errorf("%w: no vector width holds two %s lanes on %s",
				ErrInvalidConfig, t.Type, features)
		}
	}
	validWidth := false
	for _, w := range vectorWidths {
		validWidth = validWidth || w == t.VectorBits
	}
	if !validWidth {
		return t, fmt.Errorf("%w: unsupported vector width %d", ErrInvalidConfig, t.VectorBits)
	}
	if t.Lanes() < 2 {
		return t, fmt.Errorf("%w: %d-bit vectors hold fewer than two %s lanes",
			ErrInvalidConfig, t.VectorBits, t.Type)
	}
	if features == 0 {
		features = DefaultFeatures(t.VectorBits)
	}
	if !features.Has(widthRequirement(t.VectorBits)) {
		return t, fmt.Errorf("%w: %d-bit vectors need %s, target has %s",
			ErrInvalidConfig, t.VectorBits, widthRequirement(t.VectorBits), features)
	}
	t.Features = features
	return t, nil
}

// autoWidth picks the smallest legal width that holds every element, or the
// widest legal width when none does.
func (t Target) autoWidth(features Features) int {
	need := t.Total() * t.Type.Bits
	width := 0
	for _, w := range vectorWidths {
		if w < 2*t.Type.Bits {
			continue
		}
		if features != 0 && !features.Has(widthRequirement(w)) {
			continue
		}
		width = w
		if w >= need {
			break
		}
	}
	return width
}
