package sortnet

import (
	"fmt"
	"testing"

	"github.com/mhr3/streamvbyte"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSvbCursorLengths(t *testing.T) {
	// One value per byte length, four times over in different orders.
	values := []uint32{
		0x12345678, 0x123456, 0x1234, 0x12,
		0x12, 0x1234, 0x123456, 0x12345678,
		0x12, 0x12, 0x12, 0x12,
		0x1234, 0x12345678, 0x1234, 0x12345678,
	}
	encoded := streamvbyte.EncodeUint32(values, nil)
	c := svbNewCursor(encoded, len(values))
	require.Len(t, c.ctrl, 4)

	want := []int{4, 3, 2, 1, 1, 2, 3, 4, 1, 1, 1, 1, 2, 4, 2, 4}
	for i, n := range want {
		assert.Equal(t, n, c.wordLen(i), "word %d", i)
	}
	for b := range c.ctrl {
		assert.Equal(t, want[4*b]+want[4*b+1]+want[4*b+2]+want[4*b+3], c.blockLen(b), "block %d", b)
	}
}

// TestSvbWordVsReference reads single words against the library decoder
// for counts around block boundaries.
func TestSvbWordVsReference(t *testing.T) {
	for _, count := range []int{1, 3, 4, 5, 8, 9, 17, 33, 100} {
		t.Run(fmt.Sprintf("count_%d", count), func(t *testing.T) {
			values := make([]uint32, count)
			for i := range values {
				values[i] = uint32(i*i*i*977 + i)
			}
			encoded := streamvbyte.EncodeUint32(values, nil)
			reference := streamvbyte.DecodeUint32(encoded, count, nil)
			for i := range count {
				assert.Equal(t, reference[i], svbWord(encoded, count, i), "at index %d", i)
			}

			c := svbNewCursor(encoded, count)
			c.seek(count)
			assert.Equal(t, len(encoded)-len(c.ctrl), c.off, "seeking to the end covers every data byte")
		})
	}
}

func TestSvbCursorNext(t *testing.T) {
	values := []uint32{1, 256, 65536, 16777216, 2, 512, 100000, 50000000, 9}
	encoded := streamvbyte.EncodeUint32(values, nil)

	c := svbNewCursor(encoded, len(values))
	for i, want := range values {
		got, ok := c.next()
		assert.True(t, ok)
		assert.Equal(t, want, got, "at index %d", i)
	}
	_, ok := c.next()
	assert.False(t, ok, "past the end")
}

func TestSvbCursorSeek(t *testing.T) {
	assert := assert.New(t)
	values := make([]uint32, 23)
	for i := range values {
		values[i] = uint32(i) << (i % 4 * 8)
	}
	encoded := streamvbyte.EncodeUint32(values, nil)
	c := svbNewCursor(encoded, len(values))

	for _, idx := range []int{7, 0, 4, 22, 13, 13, 2, 9, 21} {
		c.seek(idx)
		got, ok := c.next()
		assert.True(ok)
		assert.Equal(values[idx], got, "seek to %d", idx)
	}

	c.seek(5)
	c.skip()
	got, _ := c.next()
	assert.Equal(values[6], got)
}

func BenchmarkSvbWord(b *testing.B) {
	values := make([]uint32, 64)
	for i := range values {
		values[i] = uint32(i * 1000)
	}
	encoded := streamvbyte.EncodeUint32(values, nil)
	count := len(values)

	b.ReportAllocs()
	for i := 0; b.Loop(); i++ {
		_ = svbWord(encoded, count, i%count)
	}
}
