package sortnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoarsenRefine(t *testing.T) {
	assert := assert.New(t)

	q, ok := coarsen([]int{2, 3, 0, 1, 6, 7, 4, 5}, 2)
	assert.True(ok)
	assert.Equal([]int{1, 0, 3, 2}, q)
	assert.Equal([]int{2, 3, 0, 1, 6, 7, 4, 5}, refine(q, 2))

	q, ok = coarsen([]int{-1, 3, 0, -1}, 2)
	assert.True(ok, "free entries join any unit")
	assert.Equal([]int{1, 0}, q)

	_, ok = coarsen([]int{1, 0, 2, 3}, 2)
	assert.False(ok, "swapped halves")
	_, ok = coarsen([]int{1, 2, 3, 4}, 2)
	assert.False(ok, "misaligned unit")
	_, ok = coarsen([]int{0, 1, 2}, 2)
	assert.False(ok)

	assert.Equal([]int{-1, -1, 2, 3}, refine([]int{-1, 1}, 2))
}

func TestLanePattern(t *testing.T) {
	assert := assert.New(t)

	pat, ok := lanePattern([]int{1, 0, 3, 2, 5, 4, 7, 6}, 4)
	assert.True(ok)
	assert.Equal([]int{1, 0, 3, 2}, pat)
	assert.Equal(uint64(0xb1), imm2(pat))

	pat, ok = lanePattern([]int{1, -1, -1, -1, -1, 4, -1, -1}, 4)
	assert.True(ok, "free slots take the other group's entry")
	assert.Equal([]int{1, 0, 2, 3}, pat)

	_, ok = lanePattern([]int{4, 1, 2, 3, 0, 5, 6, 7}, 4)
	assert.False(ok, "crosses a group")
	_, ok = lanePattern([]int{1, 0, 2, 3, 4, 5, 6, 7}, 4)
	assert.False(ok, "groups disagree")
}

func TestPshufbTable(t *testing.T) {
	assert := assert.New(t)
	idx := make([]int, 32)
	for j := range idx {
		idx[j] = j ^ 1
	}
	idx[5] = -1
	tab, ok := pshufbTable(idx)
	assert.True(ok)
	assert.Equal(byte(1), tab[0])
	assert.Equal(byte(0x80), tab[5])
	assert.Equal(byte(1), tab[16])

	idx[0] = 17
	_, ok = pshufbTable(idx)
	assert.False(ok)
}

func TestIndexVec(t *testing.T) {
	assert := assert.New(t)
	assert.Equal([]byte{3, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0}, indexVec([]int{3, -1, 1}, 4))
	assert.Equal([]byte{2, 0, 0, 1}, indexVec([]int{2, 0, 0, 1}, 1))
}

func TestSelectors(t *testing.T) {
	assert := assert.New(t)

	a, b := needs([]int8{0, -1, 0})
	assert.True(a)
	assert.False(b)

	w, ok := resize([]int8{1, 1, 0, -1, -1, -1, 0, 0}, 8, 16)
	assert.True(ok)
	assert.Equal([]int8{1, 0, -1, 0}, w)
	_, ok = resize([]int8{1, 0}, 8, 16)
	assert.False(ok)

	d, ok := resize([]int8{1, -1}, 64, 32)
	assert.True(ok)
	assert.Equal([]int8{1, 1, -1, -1}, d)

	assert.Equal(uint64(0b101), selBits([]int8{1, 0, 1, -1}))
	assert.Equal([]byte{0x80, 0, 0}, selBytes([]int8{1, 0, -1}, 0x80))

	imm, ok := blendwImm([]int8{1, 0, -1, 0, 0, 0, 0, 0, -1, -1, 1, 0, 0, 0, 0, 0})
	assert.True(ok)
	assert.Equal(uint64(0b101), imm)
	_, ok = blendwImm([]int8{1, 0, 0, 0, 0, 0, 0, 0, 0, -1, -1, -1, -1, -1, -1, -1})
	assert.False(ok, "lanes disagree")
}
