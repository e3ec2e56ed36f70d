package chart

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sortnet "github.com/Akron/sortnet-go"
)

func TestLabel(t *testing.T) {
	assert.Equal(t, "Odd Even", label(sortnet.OddEven))
	assert.Equal(t, "Bitonic", label(sortnet.Bitonic))
}

func TestNetworks(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Networks(&buf, sortnet.Algorithms(), []int{2, 4, 8, 40}))
	out := buf.String()
	assert.Contains(t, out, "Network depth")
	assert.Contains(t, out, "Comparators")
	assert.Contains(t, out, "Minimum Depth")
}

func TestKernels(t *testing.T) {
	reqs := []sortnet.Request{
		{Algorithm: sortnet.Bitonic, Target: sortnet.Target{Type: sortnet.Int32, N: 8, Features: sortnet.FeaturesAVX2}},
		{Algorithm: sortnet.OddEven, Target: sortnet.Target{Type: sortnet.Int8, N: 8, Features: sortnet.FeaturesSSE2}},
	}
	results, err := sortnet.GenerateMatrix(context.Background(), reqs, 1)
	require.NoError(t, err)
	require.Error(t, results[1].Err)

	var buf bytes.Buffer
	require.NoError(t, Kernels(&buf, results))
	out := buf.String()
	assert.Contains(t, out, "Instructions per kernel")
	assert.Contains(t, out, "Bitonic int32 x8 256b")
	assert.NotContains(t, out, "Odd Even int8")
}
