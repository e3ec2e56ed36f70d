package sortnet

import (
	"fmt"
	"math/rand"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generate(t *testing.T, alg Algorithm, tg Target) *Kernel {
	t.Helper()
	k, err := Generate(Request{Algorithm: alg, Target: tg})
	require.NoError(t, err, "%s on %+v", alg, tg)
	return k
}

func assertVerifies(t *testing.T, k *Kernel) {
	t.Helper()
	assert.NoError(t, Verify(k, VerifyOptions{Trials: 20, Seed: 42}),
		"%s on %s", k.Algorithm, k.Target)
}

func TestGenerateSortsAcrossTargets(t *testing.T) {
	sizes := []int{2, 3, 5, 7, 8, 9, 12, 16, 17}
	if testing.Short() {
		sizes = []int{3, 8, 9}
	}
	targets := []struct {
		width    int
		features Features
	}{
		{64, FeaturesSSE4},
		{128, FeaturesSSE4},
		{128, FeaturesAVX2},
		{256, FeaturesAVX2},
		{256, FeaturesAVX512},
		{512, FeaturesAVX512},
		{512, FeaturesAll},
	}
	for _, typ := range Types() {
		for _, tc := range targets {
			if tc.width/typ.Bits < 2 {
				continue
			}
			for _, n := range sizes {
				name := fmt.Sprintf("%s/%d-bit/%s/n=%d", typ, tc.width, tc.features, n)
				t.Run(name, func(t *testing.T) {
					tg := Target{Type: typ, N: n, VectorBits: tc.width, Features: tc.features}
					k, err := Generate(Request{Algorithm: Bitonic, Target: tg})
					if typ.Bits == 8 && tc.width == 512 && !tc.features.Has(AVX512VBMI) {
						// Cross-lane byte moves need vpermb at this width.
						if err != nil {
							assert.ErrorIs(t, err, ErrNoEncoding)
							return
						}
					}
					require.NoError(t, err)
					assertVerifies(t, k)
				})
			}
		}
	}
}

func TestGenerateAllAlgorithms(t *testing.T) {
	for _, alg := range Algorithms() {
		for _, tg := range []Target{
			{Type: Int32, N: 11, VectorBits: 256, Features: FeaturesAVX2},
			{Type: Uint16, N: 13, VectorBits: 128, Features: FeaturesSSE4},
			{Type: Int8, N: 20, VectorBits: 256, Features: FeaturesAVX2},
			{Type: Uint64, N: 6, VectorBits: 512, Features: FeaturesAVX512},
		} {
			t.Run(fmt.Sprintf("%s/%s", alg, tg.Type), func(t *testing.T) {
				assertVerifies(t, generate(t, alg, tg))
			})
		}
	}
}

func TestGeneratePoliciesAndBoundaries(t *testing.T) {
	modes := []BoundaryMode{BoundaryAuto, BoundaryFull, BoundaryMasked, BoundarySplit}
	for _, policy := range []Policy{FavorSize, FavorUops} {
		for _, mode := range modes {
			for _, tg := range []Target{
				{Type: Int32, N: 5, VectorBits: 128, Features: FeaturesAVX2},
				{Type: Uint32, N: 13, VectorBits: 256, Features: FeaturesAVX2},
				{Type: Int16, N: 10, VectorBits: 256, Features: FeaturesAVX2},
				{Type: Int64, N: 7, VectorBits: 256, Features: FeaturesAVX512},
				{Type: Uint8, N: 30, VectorBits: 512, Features: FeaturesAll},
			} {
				tg.Policy, tg.Boundary = policy, mode
				t.Run(fmt.Sprintf("%s/%s/%s/%d", policy, mode, tg.Type, tg.N), func(t *testing.T) {
					assertVerifies(t, generate(t, OddEven, tg))
				})
			}
		}
	}
}

func TestGenerateBlocks(t *testing.T) {
	for _, tg := range []Target{
		{Type: Int32, N: 4, Blocks: 2, VectorBits: 256, Features: FeaturesAVX2},
		{Type: Int32, N: 5, Blocks: 3, VectorBits: 256, Features: FeaturesAVX2},
		{Type: Uint16, N: 6, Blocks: 4, VectorBits: 128, Features: FeaturesSSE4},
		{Type: Int8, N: 9, Blocks: 2, VectorBits: 128, Features: FeaturesSSE4, Boundary: BoundaryFull},
	} {
		t.Run(fmt.Sprintf("%s/%dx%d", tg.Type, tg.Blocks, tg.N), func(t *testing.T) {
			k := generate(t, Bitonic, tg)
			assert.Len(t, k.Rounds, k.Network.Depth())
			assertVerifies(t, k)
		})
	}
}

func TestGeneratePaddedNetwork(t *testing.T) {
	for n := 9; n <= 16; n++ {
		k, err := Generate(Request{
			Algorithm: OddEven,
			Target:    Target{Type: Int32, N: 7, VectorBits: 256, Features: FeaturesAVX2},
			NetworkN:  n,
		})
		require.NoError(t, err)
		assert.Equal(t, n, k.Network.N)
		assertVerifies(t, k)
	}
}

func TestGenerateAligned(t *testing.T) {
	k := generate(t, Bitonic, Target{Type: Int32, N: 16, VectorBits: 256, Features: FeaturesAVX2, Aligned: true})
	for _, s := range k.Load {
		assert.Equal(t, FormLoadAligned, s.Form)
	}
	assertVerifies(t, k)
}

func TestGenerateSingleElement(t *testing.T) {
	k := generate(t, Bitonic, Target{Type: Int32, N: 1, VectorBits: 128})
	assert.Empty(t, k.Steps())
	buf := []int32{42}
	require.NoError(t, SortSlice(k, buf))
	assert.Equal(t, []int32{42}, buf)
}

func TestGenerateDeterministic(t *testing.T) {
	req := Request{Algorithm: Batcher, Target: Target{Type: Uint16, N: 19, VectorBits: 256, Features: FeaturesAVX2}}
	a, err := Generate(req)
	require.NoError(t, err)
	b, err := Generate(req)
	require.NoError(t, err)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("kernels differ between runs:\n%s", diff)
	}
}

func TestGenerateNoEncoding(t *testing.T) {
	tests := []struct {
		name string
		tg   Target
	}{
		{"byte swaps without pshufb", Target{Type: Int8, N: 16, VectorBits: 128, Features: FeaturesSSE2}},
		{"bytes without avx512bw", Target{Type: Int8, N: 64, VectorBits: 512, Features: AVX512F}},
		{"word permutes without pshufb", Target{Type: Int16, N: 5, VectorBits: 128, Features: FeaturesSSE2}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Generate(Request{Algorithm: Bitonic, Target: tc.tg})
			assert.ErrorIs(t, err, ErrNoEncoding)
			assert.NotErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestGenerateInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{"masked without masks", Request{Target: Target{Type: Int32, N: 5, VectorBits: 128, Features: FeaturesSSE4, Boundary: BoundaryMasked}}},
		{"byte split without sse4.1", Request{Target: Target{Type: Int8, N: 5, VectorBits: 128, Features: FeaturesSSE2, Boundary: BoundarySplit}}},
		{"network below n", Request{Target: Target{Type: Int32, N: 8}, NetworkN: 4}},
		{"padding with blocks", Request{Target: Target{Type: Int32, N: 4, Blocks: 2}, NetworkN: 8}},
		{"padding past the limit", Request{Target: Target{Type: Int8, N: 200}, NetworkN: 300}},
		{"unknown algorithm", Request{Algorithm: 99, Target: Target{Type: Int32, N: 8}}},
		{"minimum depth too large", Request{Algorithm: MinimumDepth, Target: Target{Type: Int8, N: 40}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Generate(tc.req)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestBoundaryPlan(t *testing.T) {
	tests := []struct {
		tg   Target
		want []RegBoundary
	}{
		{Target{Type: Int32, N: 5, VectorBits: 128, Features: FeaturesAVX2},
			[]RegBoundary{{4, BoundaryFull}, {1, BoundaryMasked}}},
		{Target{Type: Int32, N: 5, VectorBits: 128, Features: FeaturesSSE4},
			[]RegBoundary{{4, BoundaryFull}, {1, BoundarySplit}}},
		{Target{Type: Int32, N: 5, VectorBits: 128, Features: FeaturesSSE2},
			[]RegBoundary{{4, BoundaryFull}, {1, BoundarySplit}}},
		{Target{Type: Int32, N: 5, VectorBits: 128, Features: FeaturesAVX2, Boundary: BoundaryFull},
			[]RegBoundary{{4, BoundaryFull}, {1, BoundaryFull}}},
		{Target{Type: Int16, N: 3, VectorBits: 128, Features: FeaturesAVX2},
			[]RegBoundary{{3, BoundarySplit}}},
		{Target{Type: Int16, N: 3, VectorBits: 128, Features: FeaturesAVX512},
			[]RegBoundary{{3, BoundaryMasked}}},
	}
	for _, tc := range tests {
		k := generate(t, Bitonic, tc.tg)
		assert.Equal(t, tc.want, k.Boundary, "%s", tc.tg)
		assertVerifies(t, k)
	}
}

func partMoves(steps []Step) [][2]int {
	var out [][2]int
	for _, s := range steps {
		if s.Form == FormLoadPart || s.Form == FormStorePart {
			out = append(out, [2]int{s.Len, s.Pos})
		}
	}
	return out
}

func TestSplitWithoutSSE41(t *testing.T) {
	tests := []struct {
		tg   Target
		want [][2]int
	}{
		{Target{Type: Int32, N: 5, VectorBits: 128, Features: FeaturesSSE2}, [][2]int{{2, 0}, {2, 2}}},
		{Target{Type: Int32, N: 3, VectorBits: 128, Features: FeaturesSSE2}, [][2]int{{8, 0}, {2, 8}, {2, 10}}},
		{Target{Type: Int32, N: 3, VectorBits: 128, Features: FeaturesSSE4}, [][2]int{{8, 0}, {4, 8}}},
		{Target{Type: Int16, N: 3, VectorBits: 64, Features: FeaturesSSE2}, [][2]int{{2, 0}, {2, 2}, {2, 4}}},
	}
	for _, tc := range tests {
		for _, alg := range []Algorithm{Bitonic, OddEven} {
			k := generate(t, alg, tc.tg)
			assert.Equal(t, tc.want, partMoves(k.Load), "load %s", tc.tg)
			assert.Equal(t, tc.want, partMoves(k.Store), "store %s", tc.tg)
			assertVerifies(t, k)
			assert.NoError(t, k.Run(make([]byte, k.BufferLen())))
		}
	}
}

func TestBufferLen(t *testing.T) {
	assert := assert.New(t)
	k := generate(t, Bitonic, Target{Type: Int32, N: 5, VectorBits: 128, Features: FeaturesAVX2})
	assert.Equal(20, k.BufferLen())
	k = generate(t, Bitonic, Target{Type: Int32, N: 5, VectorBits: 128, Features: FeaturesAVX2, Boundary: BoundaryFull})
	assert.Equal(32, k.BufferLen())
}

func TestBoundaryStaysInBuffer(t *testing.T) {
	// Exact-length buffers: any access past the elements fails the run.
	for _, mode := range []BoundaryMode{BoundaryAuto, BoundaryMasked, BoundarySplit} {
		for _, tg := range []Target{
			{Type: Int32, N: 13, VectorBits: 256, Features: FeaturesAVX2},
			{Type: Int8, N: 23, VectorBits: 128, Features: FeaturesSSE4},
			{Type: Uint16, N: 11, VectorBits: 512, Features: FeaturesAVX512},
		} {
			tg.Boundary = mode
			k, err := Generate(Request{Algorithm: Bitonic, Target: tg})
			if mode == BoundaryMasked && err != nil {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				continue
			}
			require.NoError(t, err)
			buf := make([]byte, k.BufferLen())
			for i := range buf {
				buf[i] = byte(i * 37)
			}
			assert.NoError(t, k.Run(buf), "%s", tg)
		}
	}
}

func TestFullModeNeedsWholeVectors(t *testing.T) {
	k := generate(t, Bitonic, Target{Type: Int32, N: 5, VectorBits: 128, Features: FeaturesAVX2, Boundary: BoundaryFull})
	err := k.Run(make([]byte, 20))
	assert.ErrorIs(t, err, ErrOutOfBounds)
	assert.NoError(t, k.Run(make([]byte, 32)))
}

func TestSortSlice(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	k := generate(t, MinimumDepth, Target{Type: Int16, N: 24, VectorBits: 256, Features: FeaturesAVX2})
	for range 50 {
		data := make([]int16, 24)
		for i := range data {
			data[i] = int16(rng.Intn(1 << 16))
		}
		want := slices.Clone(data)
		slices.Sort(want)
		require.NoError(t, SortSlice(k, data))
		assert.Equal(t, want, data)
	}

	assert.ErrorIs(t, SortSlice(k, make([]uint16, 24)), ErrInvalidConfig, "signedness mismatch")
	assert.ErrorIs(t, SortSlice(k, make([]int32, 24)), ErrInvalidConfig, "size mismatch")
	assert.ErrorIs(t, SortSlice(k, make([]int16, 10)), ErrOutOfBounds)
}

func TestSortSliceLeavesTail(t *testing.T) {
	k := generate(t, Bitonic, Target{Type: Uint32, N: 6, VectorBits: 256, Features: FeaturesAVX2})
	data := []uint32{9, 3, 7, 1, 8, 2, 100, 50}
	require.NoError(t, SortSlice(k, data))
	assert.Equal(t, []uint32{1, 2, 3, 7, 8, 9, 100, 50}, data)
}

func TestKernelStepsOrder(t *testing.T) {
	k := generate(t, Bitonic, Target{Type: Int32, N: 8, VectorBits: 256, Features: FeaturesAVX2})
	steps := k.Steps()
	assert.Equal(t, k.Load[0], steps[0])
	assert.Equal(t, k.Store[len(k.Store)-1], steps[len(steps)-1])
	assert.Len(t, k.Code, 6)
	for i, rc := range k.Code {
		assert.Equal(t, []Pair(k.Rounds[i]), rc.Pairs)
	}
	// Every register is written once before it is read.
	written := map[Reg]bool{}
	for _, s := range steps {
		for _, r := range []Reg{s.A, s.B, s.C} {
			if r != NoReg {
				assert.True(t, written[r], "%v reads %v before it is written", s.Form, r)
			}
		}
		if s.Dst != NoReg {
			assert.False(t, written[s.Dst], "%v written twice", s.Dst)
			written[s.Dst] = true
		}
	}
	assert.Len(t, written, k.Regs)
}
