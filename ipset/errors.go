// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package ipset

import "errors"

// Errors returned by Set operations, matching the taxonomy shared
// across the core components.
var (
	// ErrInput marks an argument that violates a precondition: an
	// invalid address, an out-of-range prefix length, a nil stream.
	ErrInput = errors.New("ipset: invalid input")

	// ErrKeyRange is returned by Insert and Remove when an address
	// cannot be represented at the set's key width (an IPv6 block
	// outside ::ffff:0:0/96 given to an IPv4 set), and by Union,
	// Intersect and Difference when the two sets' widths differ.
	ErrKeyRange = errors.New("ipset: address width mismatch")

	// ErrContentV6 is returned by Convert(4) when the set holds an
	// IPv6 address outside ::ffff:0:0/96.
	ErrContentV6 = errors.New("ipset: set holds non-v4-mapped IPv6 content")

	// ErrBadFormat is returned when a stream's header names a format
	// other than FormatIPset, lacks the ipset-options entry, or
	// declares an address width other than 4 or 16. A bad magic number
	// is reported by the header layer as silkheader.ErrBadMagic.
	ErrBadFormat = errors.New("ipset: unrecognized file format")

	// ErrBadVersion is not returned by this package's readers: a header
	// version newer than silkheader.CurrentVersion is reported as
	// silkheader.ErrBadVersion.
	ErrBadVersion = errors.New("ipset: unsupported file version")

	// ErrShortRead is returned when a stream ends before the 4-byte
	// block count that follows the header has been fully read. A short
	// header preamble is reported as silkheader.ErrShortRead.
	ErrShortRead = errors.New("ipset: short read in file header")

	// ErrRead is returned when a stream ends in the middle of the
	// payload, after a valid header was read.
	ErrRead = errors.New("ipset: truncated payload")
)
