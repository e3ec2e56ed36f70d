package sortnet

// svbCursor reads single words of a StreamVByte stream without decoding it
// whole. All control bytes come first; each holds four 2-bit codes, and a
// word takes code+1 little-endian data bytes.
type svbCursor struct {
	ctrl  []byte
	data  []byte
	count int
	index int
	off   int
}

func svbNewCursor(svb []byte, count int) svbCursor {
	n := (count + 3) >> 2
	return svbCursor{ctrl: svb[:n], data: svb[n:], count: count}
}

// svbWord returns word i of a stream of count words.
func svbWord(svb []byte, count, i int) uint32 {
	c := svbNewCursor(svb, count)
	c.seek(i)
	v, _ := c.next()
	return v
}

func (c *svbCursor) wordLen(i int) int {
	return int(c.ctrl[i>>2]>>(uint(i&3)*2)&3) + 1
}

// blockLen is the data length of the four words of control byte b. Unused
// codes in the last control byte are zero, so it only holds for full blocks.
func (c *svbCursor) blockLen(b int) int {
	ctrl := int(c.ctrl[b])
	return ctrl&3 + ctrl>>2&3 + ctrl>>4&3 + ctrl>>6 + 4
}

// seek positions the cursor on index. Seeking backwards restarts from the
// first word; whole blocks are skipped by control byte.
func (c *svbCursor) seek(index int) {
	if index < c.index {
		c.index, c.off = 0, 0
	}
	for c.index < index && c.index&3 != 0 {
		c.skip()
	}
	for c.index+4 <= index {
		c.off += c.blockLen(c.index >> 2)
		c.index += 4
	}
	for c.index < index {
		c.skip()
	}
}

func (c *svbCursor) skip() {
	c.off += c.wordLen(c.index)
	c.index++
}

// next returns the word under the cursor and advances. ok is false past the
// end of the stream.
func (c *svbCursor) next() (v uint32, ok bool) {
	if c.index >= c.count {
		return 0, false
	}
	n := c.wordLen(c.index)
	var word [4]byte
	copy(word[:], c.data[c.off:c.off+n])
	c.off += n
	c.index++
	return bo.Uint32(word[:]), true
}
