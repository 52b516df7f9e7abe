// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package ipset implements a set of IP addresses and CIDR blocks backed
// by a compressed radix trie, one octet per stride, built from the
// same base-index and popcount-compressed array machinery as
// gaissmai/bart's routing table. Unlike a routing table, entries carry
// no payload and never overlap: every mutation restores the trie to
// canonical form (maximal, non-adjacent, disjoint blocks) before
// returning, so Count, Walk and the file encoding all see a minimal
// representation.
package ipset

import (
	"github.com/karlgrep/netflowcore/internal/stride"
	"github.com/karlgrep/netflowcore/ipaddr"
)

// Set is a collection of IPv4 or IPv6 addresses, represented internally
// as disjoint, maximal CIDR blocks. The zero Set is not usable; build
// one with New.
type Set struct {
	width int // 4 (32 bits) or 16 (128 bits)
	root  *node
}

// New returns an empty set for the given address family: 4 for IPv4, 16
// for IPv6.
func New(width int) *Set {
	if width != 4 && width != 16 {
		panic("ipset: width must be 4 or 16")
	}
	return &Set{width: width, root: newNode()}
}

// Width reports the set's address family width in bytes, 4 or 16.
func (s *Set) Width() int { return s.width }

// IsV6 reports whether the set holds IPv6 addresses.
func (s *Set) IsV6() bool { return s.width == 16 }

// octets returns addr's big-endian bytes at the set's width, converting
// between IPv4 and v4-mapped IPv6 as needed. ok is false if addr's
// family cannot be represented at this width (a genuine IPv6 address
// outside ::ffff:0:0/96 presented to a width-4 set).
func (s *Set) octets(addr ipaddr.Addr) (octets []byte, ok bool) {
	if s.width == 4 {
		if addr.Is4() {
			b := addr.As4()
			return b[:], true
		}
		v4, err := addr.ToV4()
		if err != nil {
			return nil, false
		}
		b := v4.As4()
		return b[:], true
	}
	b := addr.ToV6().As16()
	return b[:], true
}

// normalize converts c to the set's width, per the same rule as octets.
func (s *Set) normalize(c ipaddr.CIDR) (ipaddr.CIDR, bool) {
	if s.width == 4 {
		if c.Base.Is4() {
			return c, true
		}
		v4, err := c.Base.ToV4()
		if err != nil {
			return ipaddr.CIDR{}, false
		}
		return ipaddr.CIDR{Base: v4, Prefix: c.Prefix - 96}, c.Prefix >= 96
	}
	return ipaddr.CIDR{Base: c.Base.ToV6(), Prefix: c.Prefix + boolToInt(c.Base.Is4())*96}, true
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Contains reports whether addr is a member of the set.
func (s *Set) Contains(addr ipaddr.Addr) bool {
	octets, ok := s.octets(addr)
	if !ok {
		return false
	}
	n := s.root
	for depth := 0; depth < len(octets); depth++ {
		octet := octets[depth]
		if _, found := n.coveringIdx(stride.HostIdx(octet)); found {
			return true
		}
		if !n.children.Test(uint(octet)) {
			return false
		}
		switch kid := n.children.MustGet(uint(octet)).(type) {
		case *node:
			n = kid
			continue
		case *leaf:
			return kid.cidr.Contains(mustAddr(octets))
		}
	}
	return false
}

func mustAddr(octets []byte) ipaddr.Addr {
	if len(octets) == 4 {
		return ipaddr.FromV4Octets(octets[0], octets[1], octets[2], octets[3])
	}
	var b [16]byte
	copy(b[:], octets)
	return ipaddr.FromV6Bytes(b)
}

// Insert adds cidr to the set. Inserting a block already covered by an
// existing entry, or inserting an entry identical to one already
// present, is a no-op.
func (s *Set) Insert(c ipaddr.CIDR) error {
	c, ok := s.normalize(c)
	if !ok {
		return ErrKeyRange
	}
	if c.Prefix < 0 || c.Prefix > s.width*8 {
		return ErrInput
	}
	s.insert(c)
	return nil
}

// InsertAddr adds a single host address to the set.
func (s *Set) InsertAddr(addr ipaddr.Addr) error {
	return s.Insert(ipaddr.CIDR{Base: addr, Prefix: addr.BitLen()})
}

func (s *Set) insert(c ipaddr.CIDR) {
	octets := mustOctets(c.Base, s.width)
	lastIdx, lastBits := c.Prefix>>3, c.Prefix&7
	s.insertAt(s.root, octets, 0, lastIdx, lastBits, c)
}

// insertAt places c (whose masked octets are given, already resolved to
// this set's width) starting at depth within n. It returns true if n
// has, as a result, become 100% covered by a single stride-wide prefix
// bit (base index 1): the caller then folds n away and records that
// coverage as a prefix bit of its own, one level up, cascading the same
// check as far as the collapse goes. This mirrors gaissmai/bart's
// purgeAndCompress unwind, generalized to merge equal-length siblings
// rather than just drop single-child nodes.
func (s *Set) insertAt(n *node, octets []byte, depth, lastIdx, lastBits int, c ipaddr.CIDR) bool {
	octet := octets[depth]
	addr := uint(octet)

	checkIdx := stride.HostIdx(octet)
	if depth == lastIdx {
		checkIdx = stride.PfxToIdx(octet, lastBits)
	}
	if n.prefixes.Test(checkIdx) {
		return false // exact duplicate
	}
	if _, found := n.coveringIdx(checkIdx); found {
		return false // subsumed by an existing, broader entry
	}

	if depth == lastIdx {
		n.absorbDescendants(checkIdx)
		n.prefixes.Set(checkIdx)
		return n.mergeBuddies(checkIdx) == 1
	}

	if !n.children.Test(addr) {
		n.children.InsertAt(addr, &leaf{cidr: c})
		return s.mergeLeafBuddies(n, addr, depth)
	}

	switch kid := n.children.MustGet(addr).(type) {
	case *node:
		if !s.insertAt(kid, octets, depth+1, lastIdx, lastBits, c) {
			return false
		}
		return s.foldChild(n, addr, octets, depth)

	case *leaf:
		if kid.cidr == c {
			return false
		}
		if kid.cidr.Contains(c.Base) && kid.cidr.Prefix <= c.Prefix {
			return false // existing leaf already covers the new block
		}
		if c.Contains(kid.cidr.Base) && c.Prefix <= kid.cidr.Prefix {
			n.children.InsertAt(addr, &leaf{cidr: c})
			return s.mergeLeafBuddies(n, addr, depth)
		}

		pushed := newNode()
		kidOctets := mustOctets(kid.cidr.Base, len(octets))
		s.insertAt(pushed, kidOctets, depth+1, kid.cidr.Prefix>>3, kid.cidr.Prefix&7, kid.cidr)
		n.children.InsertAt(addr, pushed)
		if !s.insertAt(pushed, octets, depth+1, lastIdx, lastBits, c) {
			return false
		}
		return s.foldChild(n, addr, octets, depth)
	}
	return false
}

// foldChild replaces the child node at slot addr, which has just
// collapsed to a single stride-wide prefix, with the equivalent
// path-compressed leaf covering the slot's full (depth+1)*8-bit block,
// then retries the buddy merge one level up.
func (s *Set) foldChild(n *node, addr uint, octets []byte, depth int) bool {
	base := make([]byte, len(octets))
	copy(base, octets[:depth+1])
	block := ipaddr.CIDR{Base: mustAddr(base), Prefix: (depth + 1) * 8}
	n.children.InsertAt(addr, &leaf{cidr: block})
	return s.mergeLeafBuddies(n, addr, depth)
}

// mergeLeafBuddies merges the leaf at slot addr with the leaf at its
// buddy slot addr^1, provided both cover their slot's entire
// (depth+1)*8-bit block, into a single prefix bit one level coarser.
// Further intra-stride merging cascades through mergeBuddies; the
// return value reports whether n has, as a result, become covered by a
// single stride-wide prefix (the caller then folds n itself away).
func (s *Set) mergeLeafBuddies(n *node, addr uint, depth int) bool {
	full := (depth + 1) * 8
	cur, ok := n.children.Get(addr)
	if !ok {
		return false
	}
	curLeaf, isLeaf := cur.(*leaf)
	if !isLeaf || curLeaf.cidr.Prefix != full {
		return false
	}
	buddy, ok := n.children.Get(addr ^ 1)
	if !ok {
		return false
	}
	buddyLeaf, isLeaf := buddy.(*leaf)
	if !isLeaf || buddyLeaf.cidr.Prefix != full {
		return false
	}

	n.children.DeleteAt(addr)
	n.children.DeleteAt(addr ^ 1)
	idx := stride.PfxToIdx(uint8(addr)&0xfe, 7)
	n.prefixes.Set(idx)
	return n.mergeBuddies(idx) == 1
}

func mustOctets(addr ipaddr.Addr, width int) []byte {
	if width == 4 {
		b := addr.As4()
		return b[:]
	}
	b := addr.As16()
	return b[:]
}

// Remove deletes cidr from the set. If cidr lies entirely within a
// single broader entry, that entry is split into the minimal set of
// blocks covering what remains. Removing a block not present (in whole
// or in part) is a no-op.
func (s *Set) Remove(c ipaddr.CIDR) error {
	c, ok := s.normalize(c)
	if !ok {
		return ErrKeyRange
	}
	s.remove(c)
	return nil
}

func (s *Set) remove(c ipaddr.CIDR) {
	found, foundLen := s.coveringBlock(c.Base)
	if found && foundLen <= c.Prefix {
		// A single broader (or equal) entry covers all of c: delete it
		// and, when it was broader, re-insert the buddy blocks at each
		// level between its length and c's, repainting everything in
		// the covering block except c itself.
		covering := ipaddr.CIDR{Base: c.Base.Mask(foundLen), Prefix: foundLen}
		s.deleteExact(covering)
		for p := foundLen + 1; p <= c.Prefix; p++ {
			sibling := flipBit(c.Base.Mask(p), p, s.width*8)
			s.insert(ipaddr.CIDR{Base: sibling, Prefix: p})
		}
		return
	}
	// No single entry covers c as a whole; the set may still hold any
	// number of narrower entries inside c. Delete each of them.
	var doomed []ipaddr.CIDR
	for b := range s.Walk() {
		if b.Prefix >= c.Prefix && c.Contains(b.Base) {
			doomed = append(doomed, b)
		}
	}
	for _, b := range doomed {
		s.deleteExact(b)
	}
}

// flipBit toggles the bit at position (prefix-1, 0-indexed from the
// most significant bit) of addr, producing the buddy block at that
// level.
func flipBit(addr ipaddr.Addr, prefix, width int) ipaddr.Addr {
	octets := mustOctets(addr, width/8)
	bitPos := prefix - 1
	octets[bitPos/8] ^= 1 << uint(7-bitPos%8)
	return mustAddr(octets)
}

// coveringBlock returns the prefix length of the most specific existing
// entry that contains addr, if any.
func (s *Set) coveringBlock(addr ipaddr.Addr) (found bool, prefixLen int) {
	octets := mustOctets(addr, s.width)
	n := s.root
	for depth := 0; depth < len(octets); depth++ {
		octet := octets[depth]
		if idx, ok := n.coveringIdx(stride.HostIdx(octet)); ok {
			return true, stride.PfxLen(depth, idx)
		}
		if !n.children.Test(uint(octet)) {
			return false, 0
		}
		switch kid := n.children.MustGet(uint(octet)).(type) {
		case *node:
			n = kid
			continue
		case *leaf:
			if kid.cidr.Contains(addr) {
				return true, kid.cidr.Prefix
			}
			return false, 0
		}
	}
	return false, 0
}

// deleteExact removes a block known to be present exactly as stored
// (either a prefix bit or a leaf), then purges any interior node left
// empty by the removal.
func (s *Set) deleteExact(c ipaddr.CIDR) {
	octets := mustOctets(c.Base, s.width)
	lastIdx, lastBits := c.Prefix>>3, c.Prefix&7

	var path []*node
	n := s.root
	for depth := 0; ; depth++ {
		octet := octets[depth]
		if depth == lastIdx {
			idx := stride.PfxToIdx(octet, lastBits)
			n.prefixes.Clear(idx)
			break
		}
		addr := uint(octet)
		kid, _ := n.children.Get(addr)
		if lf, isLeaf := kid.(*leaf); isLeaf {
			if lf.cidr == c {
				n.children.DeleteAt(addr)
			}
			break
		}
		path = append(path, n)
		n = kid.(*node)
	}

	// purge now-empty interior nodes, innermost first
	for i := len(path) - 1; i >= 0; i-- {
		parent := path[i]
		octet := uint(octets[i])
		child, _ := parent.children.Get(octet)
		if cn, isNode := child.(*node); isNode && cn.prefixes.IsEmpty() && cn.children.Len() == 0 {
			parent.children.DeleteAt(octet)
		}
	}
}

// Count returns the number of individual addresses in the set. For
// very large IPv6 sets this can exceed 64 bits; see CountBig.
func (s *Set) Count() uint64 {
	hi, lo := s.CountBig()
	if hi != 0 {
		return ^uint64(0)
	}
	return lo
}

// CountBig returns the address count as a (hi, lo) 128-bit pair.
func (s *Set) CountBig() (hi, lo uint64) {
	for c := range s.Walk() {
		chi, clo := c.Size()
		var carry uint64
		lo, carry = addWithCarry(lo, clo)
		hi += chi + carry
	}
	return
}

func addWithCarry(a, b uint64) (sum, carry uint64) {
	sum = a + b
	if sum < a {
		carry = 1
	}
	return
}

// BlockCount returns the number of disjoint CIDR blocks stored.
func (s *Set) BlockCount() int {
	n := 0
	for range s.Walk() {
		n++
	}
	return n
}

// IsEmpty reports whether the set holds no addresses.
func (s *Set) IsEmpty() bool {
	return s.root.prefixes.IsEmpty() && s.root.children.Len() == 0
}

// Clone returns a deep copy of s.
func (s *Set) Clone() *Set {
	out := New(s.width)
	for c := range s.Walk() {
		out.insert(c)
	}
	return out
}
