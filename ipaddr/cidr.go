// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package ipaddr

import "iter"

// CIDR is an IP address plus a prefix length, denoting a contiguous,
// power-of-two-sized, aligned range of addresses. (addr, prefix)
// always denotes an aligned block: callers construct a CIDR through
// New, which masks the base, or through NewStrict, which rejects
// unaligned input.
type CIDR struct {
	Base   Addr
	Prefix int
}

// New builds a CIDR, masking Base down to Prefix bits (the "corrected"
// contract variant).
func New(base Addr, prefix int) CIDR {
	return CIDR{Base: base.Mask(prefix), Prefix: prefix}
}

// NewStrict builds a CIDR, rejecting a base with bits set below
// prefix (the "rejected" contract variant).
func NewStrict(base Addr, prefix int) (CIDR, error) {
	if prefix < 0 || prefix > base.BitLen() {
		return CIDR{}, ErrBadPrefix
	}
	if !base.IsAligned(prefix) {
		return CIDR{}, ErrUnaligned
	}
	return CIDR{Base: base, Prefix: prefix}, nil
}

// Last returns the final address of the block, base + 2^(width-prefix) - 1.
func (c CIDR) Last() Addr {
	width := c.Base.BitLen()
	if c.Prefix >= width {
		return c.Base
	}
	hostBits := width - c.Prefix
	last := c.Base
	if c.Base.is4 {
		mask := uint32(1)<<uint(hostBits) - 1
		last.lo = uint64(uint32(last.lo) | mask)
		return last
	}
	switch {
	case hostBits >= 64:
		last.lo = ^uint64(0)
		if hostBits > 64 {
			last.hi |= ^uint64(0) >> uint(128-hostBits)
		}
	default:
		last.lo |= ^uint64(0) >> uint(64-hostBits)
	}
	return last
}

// Contains reports whether addr lies within the block, promoting a
// mismatched variant via Compare's rules.
func (c CIDR) Contains(addr Addr) bool {
	base6, addr6 := c.Base.ToV6(), addr.ToV6()
	prefix := c.Prefix
	if c.Base.is4 {
		prefix += 96
	}
	return addr6.Mask(prefix).Equal(base6.Mask(prefix))
}

// Size returns 2^(width-prefix) as a big-endian pair of uint64 halves
// (hi, lo), since the count can exceed 64 bits for large IPv6 blocks.
func (c CIDR) Size() (hi, lo uint64) {
	width := c.Base.BitLen()
	hostBits := width - c.Prefix
	switch {
	case hostBits <= 0:
		return 0, 1
	case hostBits < 64:
		return 0, uint64(1) << uint(hostBits)
	case hostBits == 64:
		return 1, 0
	default:
		return uint64(1) << uint(hostBits-64), 0
	}
}

// Addresses returns a sequence over every address in the block, from
// Base to Last, inclusive. Callers should bound iteration themselves
// for large IPv6 blocks; this is intended for the address-at-a-time
// walk mode ipset.WalkAddrs exposes.
func (c CIDR) Addresses() iter.Seq[Addr] {
	return func(yield func(Addr) bool) {
		last := c.Last()
		cur := c.Base
		for {
			if !yield(cur) {
				return
			}
			if cur.Equal(last) {
				return
			}
			cur = cur.Increment()
		}
	}
}
