// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package ipset

import (
	"math/big"

	"github.com/karlgrep/netflowcore/ipaddr"
)

func cidrAt(base ipaddr.Addr, prefix int) ipaddr.CIDR {
	return ipaddr.CIDR{Base: base, Prefix: prefix}
}

// Union returns a new set holding every address in s or other, combined.
func (s *Set) Union(other *Set) (*Set, error) {
	if s.width != other.width {
		return nil, ErrKeyRange
	}
	return fromRanges(s.width, unionRanges(s.ranges(), other.ranges())), nil
}

// Intersect returns a new set holding only addresses present in both s
// and other.
func (s *Set) Intersect(other *Set) (*Set, error) {
	if s.width != other.width {
		return nil, ErrKeyRange
	}
	return fromRanges(s.width, intersectRanges(s.ranges(), other.ranges())), nil
}

// Difference returns a new set holding addresses in s that are not in other.
func (s *Set) Difference(other *Set) (*Set, error) {
	if s.width != other.width {
		return nil, ErrKeyRange
	}
	return fromRanges(s.width, differenceRanges(s.ranges(), other.ranges())), nil
}

// Mask returns a new set keeping exactly one address (the network
// address) per occupied prefix-length block. Masking an already masked
// set at the same prefix is a no-op: each kept address is its own
// block's network address.
func (s *Set) Mask(prefix int) (*Set, error) {
	if prefix < 1 || prefix > s.width*8 {
		return nil, ErrInput
	}
	out := New(s.width)
	size := new(big.Int).Lsh(big.NewInt(1), uint(s.width*8-prefix))
	for c := range s.Walk() {
		if c.Prefix >= prefix {
			_ = out.InsertAddr(c.Base.Mask(prefix))
			continue
		}
		// The block is broader than the mask: every prefix-length
		// block inside it is occupied and contributes one address.
		last := c.Last().AsBigInt()
		for cur := c.Base.AsBigInt(); cur.Cmp(last) <= 0; cur = new(big.Int).Add(cur, size) {
			_ = out.InsertAddr(ipaddr.FromBigInt(cur, s.width == 4))
		}
	}
	return out, nil
}

// MaskAndFill returns a new set in which every occupied prefix-length
// block is completely filled: any block with at least one member
// address ends up wholly contained in the result.
func (s *Set) MaskAndFill(prefix int) (*Set, error) {
	if prefix < 1 || prefix > s.width*8 {
		return nil, ErrInput
	}
	out := New(s.width)
	for c := range s.Walk() {
		if c.Prefix <= prefix {
			// Already a union of fully-occupied blocks.
			out.insert(c)
			continue
		}
		_ = out.Insert(cidrAt(c.Base.Mask(prefix), prefix))
	}
	return out, nil
}

func fromRanges(width int, spans []addrRange) *Set {
	out := New(width)
	is4 := width == 4
	for _, span := range spans {
		for _, c := range rangeToCIDRs(span.lo, span.hi, width, is4) {
			out.insert(c)
		}
	}
	return out
}
