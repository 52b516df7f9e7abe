// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package ipset

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/karlgrep/netflowcore/ipaddr"
	"github.com/karlgrep/netflowcore/silkheader"
)

// WriteTo encodes the set as a framed file: a silkheader.Header
// describing the address width and block counts, then the block count
// as a 4-byte big-endian integer, followed by each canonical CIDR block
// as (1-byte prefix length, width-byte address), in the same ascending
// order Walk yields. The header's writer_version
// field is left at zero; callers that want to stamp a build tag use
// WriteToVersioned.
func (s *Set) WriteTo(w io.Writer) (int64, error) {
	return s.WriteToVersioned(w, 0)
}

// WriteToVersioned behaves like WriteTo but stamps the header's
// writer_version field with writerVersion, the hook the
// writer-version-suppression env var acts through.
func (s *Set) WriteToVersioned(w io.Writer, writerVersion uint32) (int64, error) {
	var blocks []ipaddr.CIDR
	for c := range s.Walk() {
		blocks = append(blocks, c)
	}

	h := silkheader.New(silkheader.FormatIPset, s.width+1)
	h.WriterVersion = writerVersion
	h.Append(&silkheader.IPsetOptionsEntry{
		AddressWidth: uint8(s.width),
		LeafCount:    uint32(len(blocks)),
	})

	n, err := h.WriteTo(w)
	if err != nil {
		return n, err
	}

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(blocks)))
	cn, err := w.Write(countBuf[:])
	n += int64(cn)
	if err != nil {
		return n, err
	}

	record := make([]byte, 1+s.width)
	for _, c := range blocks {
		record[0] = byte(c.Prefix)
		copy(record[1:], mustOctets(c.Base, s.width))
		rn, err := w.Write(record)
		n += int64(rn)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// StreamInfo describes an ipset stream's framing, handed to the init
// callback of ProcessStreamInit once the header has been decoded and
// before any block is visited.
type StreamInfo struct {
	Width     int    // address width in octets, 4 or 16
	LeafCount uint32 // number of CIDR blocks the payload declares
	Header    *silkheader.Header
}

// ProcessStream reads a file written by WriteTo and invokes fn with
// each CIDR block in turn, without ever materializing a Set. fn
// returning false stops the scan early. This lets a caller fold a very
// large ipset file (membership tests, counting, export) in bounded
// memory.
func ProcessStream(r io.Reader, fn func(ipaddr.CIDR) bool) error {
	return ProcessStreamInit(r, nil, fn, V6AsIs)
}

// ProcessStreamInit is ProcessStream with an optional init callback,
// invoked with the stream's framing before the first block, and a
// family policy applied to each block before fn sees it. An error from
// init aborts the scan before any block is read; blocks the policy
// cannot represent (see V6Demote) are skipped, not surfaced.
func ProcessStreamInit(r io.Reader, init func(StreamInfo) error, fn func(ipaddr.CIDR) bool, policy V6Policy) error {
	var h silkheader.Header
	if _, err := h.ReadFrom(r); err != nil {
		return err
	}
	if h.FileFormat != silkheader.FormatIPset {
		return ErrBadFormat
	}
	opts, ok := h.Find(silkheader.EntryIPsetOptions)
	if !ok {
		return fmt.Errorf("%w: missing ipset-options entry", ErrBadFormat)
	}
	width := int(opts.(*silkheader.IPsetOptionsEntry).AddressWidth)
	if width != 4 && width != 16 {
		return ErrBadFormat
	}

	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	count := binary.BigEndian.Uint32(countBuf[:])

	if init != nil {
		if err := init(StreamInfo{Width: width, LeafCount: count, Header: &h}); err != nil {
			return err
		}
	}

	record := make([]byte, 1+width)
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(r, record); err != nil {
			return fmt.Errorf("%w: %v", ErrRead, err)
		}
		c := ipaddr.CIDR{Base: mustAddr(record[1:]), Prefix: int(record[0])}
		c, ok := applyPolicy(c, policy)
		if !ok {
			continue
		}
		if !fn(c) {
			return nil
		}
	}
	return nil
}

// ReadFrom decodes a set previously written by WriteTo.
func (s *Set) ReadFrom(r io.Reader) (int64, error) {
	var h silkheader.Header
	n, err := h.ReadFrom(r)
	if err != nil {
		return n, err
	}
	if h.FileFormat != silkheader.FormatIPset {
		return n, ErrBadFormat
	}

	opts, ok := h.Find(silkheader.EntryIPsetOptions)
	if !ok {
		return n, fmt.Errorf("%w: missing ipset-options entry", ErrBadFormat)
	}
	width := int(opts.(*silkheader.IPsetOptionsEntry).AddressWidth)
	if width != 4 && width != 16 {
		return n, ErrBadFormat
	}

	var countBuf [4]byte
	cn, err := io.ReadFull(r, countBuf[:])
	n += int64(cn)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrShortRead, err)
	}
	count := binary.BigEndian.Uint32(countBuf[:])

	*s = *New(width)
	record := make([]byte, 1+width)
	for i := uint32(0); i < count; i++ {
		rn, err := io.ReadFull(r, record)
		n += int64(rn)
		if err != nil {
			return n, fmt.Errorf("%w: %v", ErrRead, err)
		}
		base := mustAddr(record[1:])
		s.insert(ipaddr.CIDR{Base: base, Prefix: int(record[0])})
	}
	return n, nil
}
