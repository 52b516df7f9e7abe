// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package ipset

import (
	"iter"

	"github.com/karlgrep/netflowcore/internal/stride"
	"github.com/karlgrep/netflowcore/ipaddr"
)

// Walk returns a sequence over every CIDR block in the set, in
// ascending address order. Because the set is kept in canonical form,
// the blocks yielded are maximal and pairwise disjoint: no two can be
// merged into one, and none overlaps another.
func (s *Set) Walk() iter.Seq[ipaddr.CIDR] {
	return func(yield func(ipaddr.CIDR) bool) {
		path := make([]byte, 0, s.width)
		walkNode(s.root, path, s.width, yield)
	}
}

func walkNode(n *node, path []byte, width int, yield func(ipaddr.CIDR) bool) bool {
	depth := len(path)

	for o := 0; o <= 255; o++ {
		if idx, ok := n.coveringIdx(stride.HostIdx(uint8(o))); ok {
			first, last := stride.IdxToRange(idx)
			if uint8(o) == first {
				pfxLen := stride.PfxLen(depth, idx)
				base := buildAddr(path, first, width)
				if !yield(ipaddr.CIDR{Base: base, Prefix: pfxLen}) {
					return false
				}
			}
			o = int(last)
			continue
		}

		if !n.children.Test(uint(o)) {
			continue
		}

		switch kid := n.children.MustGet(uint(o)).(type) {
		case *leaf:
			if !yield(kid.cidr) {
				return false
			}
		case *node:
			childPath := append(append(make([]byte, 0, width), path...), byte(o))
			if !walkNode(kid, childPath, width, yield) {
				return false
			}
		}
	}
	return true
}

// V6Policy controls how WalkWith, WalkAddrs and ProcessStreamInit
// present blocks whose address family differs from what the caller
// wants.
type V6Policy int

const (
	// V6AsIs yields blocks at the set's native width.
	V6AsIs V6Policy = iota

	// V6Force promotes IPv4 blocks to their ::ffff: mapped form.
	V6Force

	// V6Demote converts v4-mapped blocks to IPv4 and skips any block
	// not contained in ::ffff:0:0/96.
	V6Demote
)

func applyPolicy(c ipaddr.CIDR, policy V6Policy) (ipaddr.CIDR, bool) {
	switch policy {
	case V6Force:
		if c.Base.Is4() {
			return ipaddr.CIDR{Base: c.Base.ToV6(), Prefix: c.Prefix + 96}, true
		}
	case V6Demote:
		if c.Base.Is6() {
			v4, err := c.Base.ToV4()
			if err != nil || c.Prefix < 96 {
				return ipaddr.CIDR{}, false
			}
			return ipaddr.CIDR{Base: v4, Prefix: c.Prefix - 96}, true
		}
	}
	return c, true
}

// WalkWith is Walk with a family policy applied to each block before
// it is yielded. Blocks the policy cannot represent are skipped.
func (s *Set) WalkWith(policy V6Policy) iter.Seq[ipaddr.CIDR] {
	return func(yield func(ipaddr.CIDR) bool) {
		for c := range s.Walk() {
			converted, ok := applyPolicy(c, policy)
			if !ok {
				continue
			}
			if !yield(converted) {
				return
			}
		}
	}
}

// WalkAddrs visits the set one address at a time instead of one CIDR
// block at a time, in the same ascending order. Callers iterating a
// set with very large IPv6 blocks should prefer WalkWith.
func (s *Set) WalkAddrs(policy V6Policy) iter.Seq[ipaddr.Addr] {
	return func(yield func(ipaddr.Addr) bool) {
		for c := range s.WalkWith(policy) {
			for addr := range c.Addresses() {
				if !yield(addr) {
					return
				}
			}
		}
	}
}

// buildAddr constructs a width-byte address from the path walked so
// far, plus the octet at the current depth, zero-filling whatever
// remains (a prefix narrower than the full width denotes "any value"
// for the trailing bytes).
func buildAddr(path []byte, octet byte, width int) ipaddr.Addr {
	b := make([]byte, width)
	copy(b, path)
	b[len(path)] = octet
	return mustAddr(b)
}
