package sortnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeq(t *testing.T) {
	assert := assert.New(t)
	s := Seq{1, 2, 3, 2}

	assert.Equal(Seq{2, 3}, s.Slice(1, 3))
	assert.Equal(Seq{1, 9, 8, 2, 3, 2}, s.Insert(1, 9, 8))
	assert.Equal(Seq{1, 3, 2}, s.Remove(1))
	assert.Equal(Seq{1, 7, 3, 7}, s.Replace(2, 7))
	assert.Equal(Seq{1, 3, 2, 3}, s.Exchange(2, 3))
	assert.Equal(Seq{11, 12, 13, 12}, s.Offset(10))
	assert.True(s.Contains(3))
	assert.False(s.Contains(4))
	assert.Equal(Seq{1, 2, 3, 2}, s, "operations must not modify the receiver")

	assert.Equal(Seq{1, 2, 3, 4, 5}, Concat(Seq{1, 2}, nil, Seq{3}, Seq{4, 5}))
}

func TestFlatten(t *testing.T) {
	assert := assert.New(t)
	pairs := []Pair{{0, 1}, {2, 3}, {1, 2}}
	assert.Equal(Seq{0, 1, 2, 3, 1, 2}, flatten(pairs))
	assert.Equal(pairs, unflatten(flatten(pairs)))
	assert.Panics(func() { unflatten(Seq{1, 2, 3}) })
}
