// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package cbuf implements a bounded, thread-safe circular buffer of
// variable- or fixed-size byte blocks, used as the backpressure-aware
// handoff between a record producer and a Bag/IPset-building consumer.
//
// SiLK's skcircbuf.c is a linked list of fixed-size chunks guarded by
// one mutex and condition variable; a writer acquires space at the
// tail, a reader releases it from the head, and chunks are recycled
// (at most one spare is kept) once fully drained. This package keeps
// that exact topology and locking discipline rather than replacing it
// with a channel, because the wrap-within-a-chunk policy and the
// explicit wait_count/stop() handshake are part of the observable
// contract, not an implementation detail a channel could transparently
// stand in for.
package cbuf

import "sync"

type state int

const (
	stateRunning state = iota
	stateWriterStopped
	stateStopped
)

const (
	// DefaultChunkSize is used when Create is given a zero chunk size.
	DefaultChunkSize = 1 << 16 // 64 KiB

	// DefaultNumChunks is the number of chunks that make up
	// DefaultMaxAllocation when the caller supplies neither parameter.
	DefaultNumChunks = 3

	// MinChunkSize is the smallest chunk size Create accepts.
	MinChunkSize = 256
)

// Stats holds counters describing a Buffer's lifetime activity.
type Stats struct {
	Commits       uint64
	Releases      uint64
	BytesWritten  uint64
	HighWaterMark int
}

// statCounters guards Stats with its own mutex, separate from the
// buffer's main lock, so a monitoring goroutine can read them without
// perturbing the read/write fast path.
type statCounters struct {
	mu sync.Mutex
	Stats
}

func (s *statCounters) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Stats
}

// Buffer is a bounded multi-producer/single-consumer (or, with
// external serialization on the reader side, multi-consumer) queue of
// byte blocks.
//
// A caller holds at most one outstanding write block and one
// outstanding read block at a time, mirroring skcircbuf's one
// writer-handle/one reader-handle API; concurrent callers serialize
// through the same Buffer, with every commit serialized under the
// mutex.
type Buffer struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	allDone  *sync.Cond // broadcast when waitCount returns to zero, for Stop

	chunkSize     int
	maxAllocation int
	maxBlockSize  int
	fixedItemSize int // 0 selects variable-item mode

	head  *chunk // reader's current chunk
	tail  *chunk // writer's current chunk
	spare *chunk // at most one retained drained chunk

	totalUsed int
	st        state
	waitCount int

	writeHeld  bool
	writeChunk *chunk
	writeOff   int // offset of the payload (after any header)
	writeTotal int // bytes reserved in the chunk for this block

	readHeld  bool
	readChunk *chunk
	readOff   int
	readTotal int

	stats statCounters
}

// New creates a variable-item-mode buffer. A zero chunkSize or
// maxAllocation is replaced by a default; if only one is zero it is
// derived from the other, matching sk_circbuf_create's parameter
// reconciliation.
func New(chunkSize, maxAllocation int) (*Buffer, error) {
	switch {
	case chunkSize == 0 && maxAllocation == 0:
		chunkSize = DefaultChunkSize
		maxAllocation = DefaultNumChunks * chunkSize
	case chunkSize == 0:
		if maxAllocation < MinChunkSize {
			chunkSize = MinChunkSize
		} else if maxAllocation >= DefaultNumChunks*DefaultChunkSize {
			chunkSize = DefaultChunkSize
		} else {
			chunkSize = maxAllocation / DefaultNumChunks
			if chunkSize < MinChunkSize {
				chunkSize = MinChunkSize
			}
		}
	case maxAllocation == 0:
		maxAllocation = DefaultNumChunks * chunkSize
	}
	if chunkSize < MinChunkSize {
		return nil, ErrInput
	}
	if chunkSize > maxAllocation {
		return nil, ErrInput
	}
	return newBuffer(chunkSize, maxAllocation, 0), nil
}

// NewFixed creates a fixed-item-mode buffer holding itemCount items of
// itemSize bytes each; chunk size and max allocation are derived from
// that, per sk_circbuf_create_const_itemsize. The max allocation stays
// (itemSize+1)*itemCount even when the chunk size is rounded up, so
// the itemCount backpressure bound holds regardless of chunk geometry.
func NewFixed(itemSize, itemCount int) (*Buffer, error) {
	if itemSize <= 0 || itemCount <= 0 {
		return nil, ErrInput
	}
	maxAlloc := (itemSize + 1) * itemCount
	chunkSize := maxAlloc
	if chunkSize < MinChunkSize {
		chunkSize = MinChunkSize
	}
	if maxBlockSizeForChunk(chunkSize) < itemSize {
		// Round the chunk size up until at least one item fits
		// alongside the required 3-block-per-chunk headroom.
		chunkSize = itemSize*3 + 4*wrapGap
	}
	return newBuffer(chunkSize, maxAlloc, itemSize), nil
}

func newBuffer(chunkSize, maxAllocation, fixedItemSize int) *Buffer {
	b := &Buffer{
		chunkSize:     chunkSize,
		maxAllocation: maxAllocation,
		maxBlockSize:  maxBlockSizeForChunk(chunkSize),
		fixedItemSize: fixedItemSize,
	}
	b.notEmpty = sync.NewCond(&b.mu)
	b.notFull = sync.NewCond(&b.mu)
	b.allDone = sync.NewCond(&b.mu)
	c := newChunk(chunkSize)
	b.head = c
	b.tail = c
	return b
}

// blockTotal returns the number of chunk bytes a payload of size
// occupies, including any header and alignment padding.
func (b *Buffer) blockTotal(size int) int {
	if b.fixedItemSize != 0 {
		return b.fixedItemSize
	}
	return align8(blockHeaderLen + size)
}

// Stats returns a snapshot of the buffer's activity counters.
func (b *Buffer) Stats() Stats { return b.stats.snapshot() }

// Destroy releases the buffer's chunks. It returns ErrInput unless the
// buffer is in the stopped state (after Stop, or after StopWriting once
// the reader has drained it); it does not check whether unread blocks
// remain.
func (b *Buffer) Destroy() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.st != stateStopped {
		return ErrInput
	}
	b.head, b.tail, b.spare = nil, nil, nil
	return nil
}
