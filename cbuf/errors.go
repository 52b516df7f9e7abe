// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package cbuf

import "errors"

// Errors returned by Buffer operations, matching the taxonomy shared
// across the core components.
var (
	// ErrInput marks an argument that violates a precondition: a zero
	// or negative size, an item size that does not fit a chunk.
	ErrInput = errors.New("cbuf: invalid input")

	// ErrWouldBlock is returned by a no-wait acquire that would
	// otherwise have slept.
	ErrWouldBlock = errors.New("cbuf: would block")

	// ErrStopped is returned once the buffer (or, for writers, just
	// the write half) has been stopped.
	ErrStopped = errors.New("cbuf: stopped")

	// ErrBlockTooLarge is returned when a requested write size exceeds
	// the per-chunk maximum block size.
	ErrBlockTooLarge = errors.New("cbuf: block too large for chunk")

	// ErrUncommittedBlock is returned by GetWriteBlock when the caller
	// already holds an acquired write block it has not committed.
	ErrUncommittedBlock = errors.New("cbuf: previous write block not committed")

	// ErrHasNoBlock is returned by CommitWriteBlock/ReleaseReadBlock
	// when the caller does not currently hold the corresponding block.
	ErrHasNoBlock = errors.New("cbuf: no outstanding block held")
)
