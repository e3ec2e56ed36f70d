//go:build avogen
// +build avogen

package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sortnet "github.com/Akron/sortnet-go"
)

func mustGenerate(t *testing.T, req sortnet.Request) *sortnet.Kernel {
	t.Helper()
	k, err := sortnet.Generate(req)
	require.NoError(t, err, "%s on %s", req.Algorithm, req.Target)
	return k
}

func TestKernelName(t *testing.T) {
	avx2 := sortnet.Target{Type: sortnet.Int32, N: 8, VectorBits: 256, Features: sortnet.FeaturesAVX2}
	uops := avx2
	uops.Policy = sortnet.FavorUops
	masked := avx2
	masked.N = 5
	masked.Boundary = sortnet.BoundaryMasked
	blocks := avx2
	blocks.Type = sortnet.Uint8
	blocks.Blocks = 2

	tests := []struct {
		req  sortnet.Request
		want string
	}{
		{sortnet.Request{Algorithm: sortnet.Bitonic, Target: avx2}, "SortBitonicInt32x8V256"},
		{sortnet.Request{Algorithm: sortnet.MinimumDepth, Target: avx2}, "SortMinimumDepthInt32x8V256"},
		{sortnet.Request{Algorithm: sortnet.Bitonic, Target: sortnet.Target{Type: sortnet.Int32, N: 5, VectorBits: 256,
			Features: sortnet.FeaturesAVX2}, NetworkN: 8}, "SortBitonicInt32x5V256p8"},
		{sortnet.Request{Algorithm: sortnet.OddEven, Target: uops}, "SortOddEvenInt32x8V256Uop"},
		{sortnet.Request{Algorithm: sortnet.Bitonic, Target: masked}, "SortBitonicInt32x5V256Masked"},
		{sortnet.Request{Algorithm: sortnet.Bitonic, Target: blocks}, "SortBitonicUint8x8b2V256"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, kernelName(mustGenerate(t, tc.req)))
	}
}

func TestCheckEmittable(t *testing.T) {
	tests := []struct {
		name string
		tg   sortnet.Target
		ok   bool
	}{
		{"avx2", sortnet.Target{Type: sortnet.Int32, N: 8, VectorBits: 256, Features: sortnet.FeaturesAVX2}, true},
		{"xmm", sortnet.Target{Type: sortnet.Uint32, N: 4, VectorBits: 128, Features: sortnet.FeaturesAVX2}, true},
		{"zmm", sortnet.Target{Type: sortnet.Int32, N: 16, VectorBits: 512, Features: sortnet.FeaturesAVX512}, false},
		{"legacy sse", sortnet.Target{Type: sortnet.Int32, N: 4, VectorBits: 128, Features: sortnet.FeaturesSSE4}, false},
		{"mask registers", sortnet.Target{Type: sortnet.Int32, N: 5, VectorBits: 256, Features: sortnet.FeaturesAVX512}, false},
		{"quad min", sortnet.Target{Type: sortnet.Int64, N: 4, VectorBits: 256, Features: sortnet.FeaturesAVX512}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := checkEmittable(mustGenerate(t, sortnet.Request{Algorithm: sortnet.Bitonic, Target: tc.tg}))
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestCollectSkipsAndDeduplicates(t *testing.T) {
	tg := sortnet.Target{Type: sortnet.Int32, N: 8, VectorBits: 256, Features: sortnet.FeaturesAVX2}
	zmm := tg
	zmm.VectorBits, zmm.Features = 512, sortnet.FeaturesAVX512
	bytesSSE2 := sortnet.Target{Type: sortnet.Int8, N: 16, VectorBits: 128, Features: sortnet.FeaturesSSE2}

	got, err := collect([]sortnet.Request{
		{Algorithm: sortnet.Bitonic, Target: tg},
		{Algorithm: sortnet.Bitonic, Target: tg},
		{Algorithm: sortnet.Bitonic, Target: zmm},
		{Algorithm: sortnet.Bitonic, Target: bytesSSE2},
		{Algorithm: sortnet.OddEven, Target: tg},
	})
	require.NoError(t, err)
	var names []string
	for _, nk := range got {
		names = append(names, nk.name)
	}
	assert.Equal(t, []string{"SortBitonicInt32x8V256", "SortOddEvenInt32x8V256"}, names)

	_, err = collect([]sortnet.Request{{Algorithm: sortnet.Bitonic, Target: tg, NetworkN: 4}})
	assert.ErrorIs(t, err, sortnet.ErrInvalidConfig)
}

func goTool(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("runs the go tool")
	}
	gobin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go tool not in PATH")
	}
	return gobin
}

// runGenerator runs this program as go generate does, writing into dir.
func runGenerator(t *testing.T, gobin, matrix, dir, base, pkg string) {
	t.Helper()
	cmd := exec.Command(gobin, "run", "-tags", "avogen", ".",
		"-matrix", matrix,
		"-out", filepath.Join(dir, base+"_amd64.s"),
		"-stubs", filepath.Join(dir, base+"_amd64.go"),
		"-pkg", pkg)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "generator output:\n%s", out)
}

func TestGenerateKernelsPackage(t *testing.T) {
	gobin := goTool(t)
	dir := t.TempDir()
	// An empty stub file is what the -stubs flag leaves behind before
	// generation; it must not break the run.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sort_amd64.go"), nil, 0o644))
	runGenerator(t, gobin, filepath.Join("..", "..", "kernels", "kernels.toml"), dir, "sort", "kernels")

	stubs, err := os.ReadFile(filepath.Join(dir, "sort_amd64.go"))
	require.NoError(t, err)
	asm, err := os.ReadFile(filepath.Join(dir, "sort_amd64.s"))
	require.NoError(t, err)

	assert.Contains(t, string(stubs), "package kernels")
	assert.Contains(t, string(stubs), "//go:build amd64 && !purego")
	assert.Contains(t, string(stubs), "func SortBitonicInt32x8V256(p *int32)")
	assert.Contains(t, string(stubs), "func SortOddEvenUint8x32V256(p *uint8)")
	assert.Contains(t, string(asm), "TEXT ·SortBitonicInt32x8V256(SB)")
}

// nativeCases cover the lowering of each form family: full moves, lane
// permutes, byte shuffles, word shuffles, masked and split boundaries,
// xmm registers and the quadword compare fallback.
var nativeCases = []struct {
	name   string
	matrix sortnet.Matrix
}{
	{"dwords", sortnet.Matrix{Algorithms: []string{"bitonic", "odd-even"}, Types: []string{"int32", "uint32"}, Sizes: []int{8, 16}}},
	{"bytes", sortnet.Matrix{Algorithms: []string{"bitonic", "odd-even"}, Types: []string{"uint8", "int8"}, Sizes: []int{32}}},
	{"words", sortnet.Matrix{Algorithms: []string{"bitonic", "odd-even"}, Types: []string{"int16", "uint16"}, Sizes: []int{16}}},
	{"masked", sortnet.Matrix{Algorithms: []string{"bitonic", "odd-even"}, Types: []string{"int32"}, Sizes: []int{5, 13}, Boundaries: []string{"masked"}}},
	{"split", sortnet.Matrix{Algorithms: []string{"bitonic", "odd-even"}, Types: []string{"int16", "uint8"}, Sizes: []int{5, 21}, Boundaries: []string{"split"}}},
	{"full", sortnet.Matrix{Algorithms: []string{"bitonic"}, Types: []string{"int32"}, Sizes: []int{5}, Boundaries: []string{"full"}}},
	{"xmm", sortnet.Matrix{Algorithms: []string{"bitonic", "odd-even"}, Types: []string{"uint32", "int16"}, Sizes: []int{4, 8}, Widths: []int{128}}},
	{"quads", sortnet.Matrix{Algorithms: []string{"bitonic"}, Types: []string{"int64", "uint64"}, Sizes: []int{4, 8}}},
}

func elem(buf []byte, typ sortnet.Type) string {
	var u uint64
	switch typ.Bytes() {
	case 1:
		u = uint64(buf[0])
	case 2:
		u = uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		u = uint64(binary.LittleEndian.Uint32(buf))
	default:
		u = binary.LittleEndian.Uint64(buf)
	}
	if !typ.Signed {
		return fmt.Sprint(u)
	}
	shift := 64 - typ.Bits
	return fmt.Sprint(int64(u<<shift) >> shift)
}

func elems(buf []byte, typ sortnet.Type) []string {
	eb := typ.Bytes()
	out := make([]string, len(buf)/eb)
	for i := range out {
		out[i] = elem(buf[i*eb:], typ)
	}
	return out
}

// TestKernelsMatchEmulator assembles kernels, runs them on this machine and
// compares the result with Kernel.Run on the same input.
func TestKernelsMatchEmulator(t *testing.T) {
	if runtime.GOARCH != "amd64" || !sortnet.HostFeatures().Has(sortnet.FeaturesAVX2) {
		t.Skip("needs an amd64 host with AVX2")
	}
	gobin := goTool(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module kerneltest\n\ngo 1.24\n"), 0o644))

	rng := rand.New(rand.NewSource(7))
	var driver, want bytes.Buffer
	driver.WriteString("package main\n\nimport \"fmt\"\n\nfunc main() {\n")
	total := 0
	for i, tc := range nativeCases {
		m := tc.matrix
		m.Features = []string{"avx2"}
		if len(m.Widths) == 0 {
			m.Widths = []int{256}
		}
		matrix := filepath.Join(dir, tc.name+".toml")
		f, err := os.Create(matrix)
		require.NoError(t, err)
		require.NoError(t, toml.NewEncoder(f).Encode(m))
		require.NoError(t, f.Close())

		reqs, err := loadRequests(matrix)
		require.NoError(t, err)
		kernels, err := collect(reqs)
		require.NoError(t, err)
		require.NotEmpty(t, kernels, tc.name)
		runGenerator(t, gobin, matrix, dir, fmt.Sprintf("case%d", i), "main")

		for _, nk := range kernels {
			k := nk.k
			buf := make([]byte, k.BufferLen())
			rng.Read(buf)
			fmt.Fprintf(&driver, "\t{\n\t\ta := [...]%s{%s}\n\t\t%s(&a[0])\n\t\tfmt.Println(%q, a[:])\n\t}\n",
				k.Target.Type, strings.Join(elems(buf, k.Target.Type), ", "), nk.name, nk.name)
			require.NoError(t, k.Run(buf), nk.name)
			fmt.Fprintln(&want, nk.name, "["+strings.Join(elems(buf, k.Target.Type), " ")+"]")
			total++
		}
	}
	driver.WriteString("}\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), driver.Bytes(), 0o644))
	t.Logf("running %d kernels", total)

	cmd := exec.Command(gobin, "run", ".")
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GOWORK=off", "GOFLAGS=-mod=mod")
	got, err := cmd.CombinedOutput()
	require.NoError(t, err, "driver output:\n%s", got)

	wantLines := strings.Split(strings.TrimSpace(want.String()), "\n")
	gotLines := strings.Split(strings.TrimSpace(string(got)), "\n")
	require.Len(t, gotLines, len(wantLines))
	for i := range wantLines {
		assert.Equal(t, wantLines[i], gotLines[i])
	}
}
