// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package ipset

import (
	"math/rand"

	"github.com/karlgrep/netflowcore/ipaddr"
)

// SampleRatio returns a new set containing each address of s
// independently with probability ratio (0 < ratio <= 1), using rng for
// the coin flips. Large CIDR blocks are expanded address-by-address, so
// this is intended for sets whose total address count is modest; very
// large IPv6 blocks should be narrowed with Mask first.
func (s *Set) SampleRatio(ratio float64, rng *rand.Rand) (*Set, error) {
	if ratio <= 0 || ratio > 1 {
		return nil, ErrInput
	}
	out := New(s.width)
	for c := range s.Walk() {
		for addr := range c.Addresses() {
			if rng.Float64() < ratio {
				_ = out.InsertAddr(addr)
			}
		}
	}
	return out, nil
}

// SampleSize returns a new set containing exactly n addresses drawn
// uniformly without replacement from s, using reservoir sampling so the
// whole set need not fit in memory at once. It returns ErrInput if n
// exceeds the set's total address count.
func (s *Set) SampleSize(n int, rng *rand.Rand) (*Set, error) {
	if n < 0 {
		return nil, ErrInput
	}
	reservoir := make([]ipaddr.Addr, 0, n)
	seen := 0
	for c := range s.Walk() {
		for addr := range c.Addresses() {
			seen++
			switch {
			case len(reservoir) < n:
				reservoir = append(reservoir, addr)
			default:
				j := rng.Intn(seen)
				if j < n {
					reservoir[j] = addr
				}
			}
		}
	}
	if len(reservoir) < n {
		return nil, ErrInput
	}
	out := New(s.width)
	for _, addr := range reservoir {
		_ = out.InsertAddr(addr)
	}
	return out, nil
}
