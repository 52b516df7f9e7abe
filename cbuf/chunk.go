// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package cbuf

import "encoding/binary"

// wrapGap is the slack SiLK's original reserves between the end of a
// wrapped writer block and the reader's current position before it
// will wrap a chunk's writer back to offset 0; see
// CIRCBUF_WRAP_GAP in SiLK's skcircbuf.c.
const wrapGap = 8

// blockHeaderLen is the size of the length-prefix word written before
// every payload in variable-item mode. Fixed-item mode omits it.
const blockHeaderLen = 8

// align8 rounds n up to the next multiple of 8, keeping every block
// start 64-bit aligned the way skcircbuf's circbuf_block_t does.
func align8(n int) int {
	return (n + 7) &^ 7
}

// maxBlockSizeForChunk returns the largest payload a chunk of the
// given size can ever hold, leaving room for the wrap gap on both
// sides and at least three blocks per chunk — the same
// CIRCBUF_BLOCK_MAX_SIZE_FOR_CHUNK(bms) = (bms - 4*gap) / 3 rule the
// original enforces.
func maxBlockSizeForChunk(chunkSize int) int {
	return (chunkSize - 4*wrapGap) / 3
}

// chunk is one fixed-capacity ring of blocks. The buffer keeps a
// linked list of chunks between the reader end and the writer end;
// within a chunk the layout is circular, between chunks it is linear.
type chunk struct {
	buf  []byte
	cap  int
	next *chunk

	writerPos    int // next byte the writer will use
	readerPos    int // next byte the reader will consume
	maxReaderPos int // wrap mark; equals cap when the writer has not wrapped
}

func newChunk(capacity int) *chunk {
	return &chunk{
		buf:          make([]byte, capacity),
		cap:          capacity,
		maxReaderPos: capacity,
	}
}

func (c *chunk) reset() {
	c.writerPos = 0
	c.readerPos = 0
	c.maxReaderPos = c.cap
	c.next = nil
}

// writeHeader stores size as the 8-byte payload-length word at offset.
func (c *chunk) writeHeader(offset, size int) {
	binary.LittleEndian.PutUint64(c.buf[offset:offset+blockHeaderLen], uint64(size))
}

func (c *chunk) readHeader(offset int) int {
	return int(binary.LittleEndian.Uint64(c.buf[offset : offset+blockHeaderLen]))
}

// wrapped reports whether the writer has wrapped this chunk back to
// offset 0 while the reader still has unread data ahead of it (the
// "|D|D|W|_|_|R|D|D|" picture in skcircbuf.c).
func (c *chunk) wrapped() bool { return c.maxReaderPos < c.cap }

// writerHeadroom returns how many contiguous bytes the writer may
// still place ahead of writerPos in this chunk without overrunning
// either the chunk's end or, while wrapped, the reader.
func (c *chunk) writerHeadroom() int {
	if c.wrapped() {
		return c.readerPos - c.writerPos
	}
	return c.cap - c.writerPos
}
