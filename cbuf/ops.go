// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package cbuf

// WriteBlock is a slice of buffer memory acquired for a writer to fill
// and, once done, commit.
type WriteBlock struct {
	b       *Buffer
	Payload []byte
}

// ReadBlock is a slice of buffer memory the reader has acquired; it
// must be released with Release once its contents have been consumed.
type ReadBlock struct {
	b       *Buffer
	Payload []byte
}

// GetWriteBlock acquires size bytes for the writer. It blocks until
// space is available unless noWait is set, in which case it returns
// ErrWouldBlock immediately. It returns ErrBlockTooLarge if size
// exceeds the per-chunk maximum, and ErrUncommittedBlock if the caller
// already holds a write block that has not been committed.
func (b *Buffer) GetWriteBlock(size int, noWait bool) (*WriteBlock, error) {
	if size <= 0 {
		return nil, ErrInput
	}
	if b.fixedItemSize != 0 && size != b.fixedItemSize {
		return nil, ErrInput
	}
	total := b.blockTotal(size)
	if total > b.maxBlockSize {
		return nil, ErrBlockTooLarge
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.writeHeld {
		return nil, ErrUncommittedBlock
	}

	b.waitCount++
	for {
		if b.st != stateRunning {
			b.endWait()
			return nil, ErrStopped
		}
		if b.totalUsed+total <= b.maxAllocation {
			break
		}
		if noWait {
			b.endWait()
			return nil, ErrWouldBlock
		}
		b.notFull.Wait()
	}
	b.endWait()

	c, off := b.reserveSpace(total)
	b.totalUsed += total
	b.recordHighWater()

	payloadOff := off
	if b.fixedItemSize == 0 {
		c.writeHeader(off, size)
		payloadOff = off + blockHeaderLen
	}

	b.writeHeld = true
	b.writeChunk = c
	b.writeOff = off
	b.writeTotal = total

	return &WriteBlock{b: b, Payload: c.buf[payloadOff : payloadOff+size]}, nil
}

func (b *Buffer) recordHighWater() {
	b.stats.mu.Lock()
	if b.totalUsed > b.stats.HighWaterMark {
		b.stats.HighWaterMark = b.totalUsed
	}
	b.stats.mu.Unlock()
}

// reserveSpace carves total bytes out of the tail chunk, wrapping in
// place or allocating a new chunk (or reviving the spare) as needed.
// Must be called with b.mu held.
func (b *Buffer) reserveSpace(total int) (*chunk, int) {
	c := b.tail
	if total <= c.writerHeadroom() {
		off := c.writerPos
		c.writerPos += total
		return c, off
	}

	// Wrap within the same chunk only when it is also the reader's
	// chunk, it has not already wrapped, and there is room before
	// readerPos for the new block plus the wrap gap. If the reader has
	// consumed everything, both ends restart at 0; a writer that filled
	// the chunk to its very end cannot leave a wrap mark distinct from
	// cap, so it moves on to a new chunk instead.
	if c == b.head && !c.wrapped() && c.readerPos >= total+wrapGap {
		if c.readerPos == c.writerPos {
			c.readerPos = 0
			c.writerPos = total
			return c, 0
		}
		if c.writerPos < c.cap {
			c.maxReaderPos = c.writerPos
			c.writerPos = total
			return c, 0
		}
	}

	var nc *chunk
	if b.spare != nil {
		nc = b.spare
		b.spare = nil
		nc.reset()
	} else {
		nc = newChunk(b.chunkSize)
	}
	nc.writerPos = total
	c.next = nc
	b.tail = nc
	return nc, 0
}

// readableEnd returns the writerPos boundary a reader positioned in
// c's current (non-wrapped) segment may read up to, excluding any
// space reserved for an outstanding, not-yet-committed write block.
func (b *Buffer) readableEnd(c *chunk) int {
	if c == b.tail && b.writeHeld {
		return c.writerPos - b.writeTotal
	}
	return c.writerPos
}

// Commit releases the write block, recording actualSize as the number
// of bytes actually written (which may be less than, but never more
// than, the size originally acquired). It signals a waiting reader if
// the buffer had been empty.
func (wb *WriteBlock) Commit(actualSize int) error {
	b := wb.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.writeHeld {
		return ErrHasNoBlock
	}
	if actualSize < 0 || actualSize > len(wb.Payload) {
		return ErrInput
	}

	wasEmpty := !b.hasReadable()

	if b.fixedItemSize == 0 && actualSize != len(wb.Payload) {
		b.writeChunk.writeHeader(b.writeOff, actualSize)
		shrink := b.writeTotal - align8(blockHeaderLen+actualSize)
		b.writeChunk.writerPos -= shrink
		b.totalUsed -= shrink
		b.writeTotal -= shrink
	}

	b.stats.mu.Lock()
	b.stats.Commits++
	b.stats.BytesWritten += uint64(actualSize)
	b.stats.mu.Unlock()

	b.writeHeld = false
	b.writeChunk = nil
	b.writeOff = 0
	b.writeTotal = 0

	if wasEmpty {
		b.notEmpty.Broadcast()
	}
	return nil
}

// GetReadBlock acquires the next committed block for the reader. It
// blocks until a block exists unless noWait is set, in which case it
// returns ErrWouldBlock. Once the buffer has been stopped and drained
// it returns ErrStopped.
func (b *Buffer) GetReadBlock(noWait bool) (*ReadBlock, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.readHeld {
		return nil, ErrUncommittedBlock
	}

	b.waitCount++
	for {
		b.advanceHead()
		if b.hasReadable() {
			break
		}
		if b.st != stateRunning {
			if b.st == stateWriterStopped {
				b.st = stateStopped // drained: draining -> stopped
			}
			b.endWait()
			return nil, ErrStopped
		}
		if noWait {
			b.endWait()
			return nil, ErrWouldBlock
		}
		b.notEmpty.Wait()
	}
	b.endWait()

	c := b.head
	off := c.readerPos
	var size int
	payloadOff := off
	if b.fixedItemSize != 0 {
		size = b.fixedItemSize
	} else {
		size = c.readHeader(off)
		payloadOff = off + blockHeaderLen
	}

	total := b.blockTotal(size)
	b.readHeld = true
	b.readChunk = c
	b.readOff = off
	b.readTotal = total

	return &ReadBlock{b: b, Payload: c.buf[payloadOff : payloadOff+size]}, nil
}

// hasReadable reports whether the head chunk currently has a
// committed, unread block at its current reader position. Must be
// called with b.mu held, after advanceHead.
func (b *Buffer) hasReadable() bool {
	c := b.head
	if c.wrapped() {
		return c.readerPos < c.maxReaderPos
	}
	return c.readerPos < b.readableEnd(c)
}

// Release frees the current read block, advancing the reader position
// (wrapping the chunk back to 0 if it has just crossed the writer's
// earlier wrap point) and signals a waiting writer if the buffer had
// been too full to take a block of the per-chunk maximum size.
func (rb *ReadBlock) Release() error {
	b := rb.b
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.readHeld {
		return ErrHasNoBlock
	}

	wasFull := b.totalUsed+b.maxBlockSize > b.maxAllocation

	c := b.readChunk
	c.readerPos = b.readOff + b.readTotal
	if c.wrapped() && c.readerPos >= c.maxReaderPos {
		c.readerPos = 0
		c.maxReaderPos = c.cap
	}
	b.totalUsed -= b.readTotal

	b.advanceHead()

	b.stats.mu.Lock()
	b.stats.Releases++
	b.stats.mu.Unlock()

	b.readHeld = false
	b.readChunk = nil
	b.readOff = 0
	b.readTotal = 0

	if wasFull {
		b.notFull.Broadcast()
	}
	return nil
}

// advanceHead retires the head chunk once fully drained and a later
// chunk exists, keeping at most one retired chunk as the spare.
// Must be called with b.mu held.
func (b *Buffer) advanceHead() {
	for {
		c := b.head
		if c == b.tail {
			return
		}
		if c.wrapped() {
			return // still has unread data before its wrap point
		}
		if c.readerPos != c.writerPos {
			return
		}
		b.head = c.next
		if b.spare == nil {
			c.reset()
			b.spare = c
		}
	}
}

// endWait decrements the in-flight-acquire counter and wakes Stop if
// it has dropped to zero.
func (b *Buffer) endWait() {
	b.waitCount--
	if b.waitCount == 0 {
		b.allDone.Broadcast()
	}
}

// Stop transitions the buffer into the stopped state: every blocked
// acquire wakes and returns ErrStopped, and every subsequent
// GetWriteBlock fails the same way. GetReadBlock keeps returning blocks
// that were committed before Stop and reports ErrStopped once none
// remain. Stop waits for all currently-suspended acquire
// calls to observe the transition before returning, guaranteeing no
// goroutine holds a stale block pointer once the caller proceeds to
// tear the buffer down.
func (b *Buffer) Stop() {
	b.mu.Lock()
	b.st = stateStopped
	b.notEmpty.Broadcast()
	b.notFull.Broadcast()
	for b.waitCount > 0 {
		b.allDone.Wait()
	}
	b.mu.Unlock()
}

// StopWriting stops accepting new writes while letting the reader
// drain whatever has already been committed; GetReadBlock continues to
// succeed until the buffer is empty, at which point it reports
// ErrStopped.
func (b *Buffer) StopWriting() {
	b.mu.Lock()
	if b.st == stateRunning {
		b.st = stateWriterStopped
	}
	b.notFull.Broadcast()
	b.notEmpty.Broadcast()
	b.mu.Unlock()
}
