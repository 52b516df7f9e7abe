// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package ipset

import (
	"math/big"

	"github.com/karlgrep/netflowcore/ipaddr"
)

// addrRange is an inclusive [lo, hi] span of addresses, represented as
// big.Int so the width-agnostic range algebra below stays simple. Set
// algebra (Union, Intersect, Difference) converts its trie-backed
// operands to sorted, disjoint range lists, combines them with a
// standard sorted merge, then re-decomposes the result back into the
// minimal set of aligned CIDR blocks. A trie already stores maximal
// blocks, so decomposition never has to re-run the buddy-merge pass
// insert uses: picking the largest aligned block that fits at each
// step (rangeToCIDRs) is, by construction, already canonical.
type addrRange struct {
	lo, hi *big.Int
}

func (s *Set) ranges() []addrRange {
	var out []addrRange
	for c := range s.Walk() {
		out = append(out, addrRange{lo: c.Base.AsBigInt(), hi: c.Last().AsBigInt()})
	}
	return out
}

// unionRanges merges two sorted, disjoint range lists into one sorted,
// disjoint list, coalescing adjacent or overlapping spans.
func unionRanges(a, b []addrRange) []addrRange {
	merged := mergeSorted(a, b)
	return coalesce(merged)
}

// intersectRanges returns the spans common to both lists.
func intersectRanges(a, b []addrRange) []addrRange {
	var out []addrRange
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		lo := maxBig(a[i].lo, b[j].lo)
		hi := minBig(a[i].hi, b[j].hi)
		if lo.Cmp(hi) <= 0 {
			out = append(out, addrRange{lo: new(big.Int).Set(lo), hi: new(big.Int).Set(hi)})
		}
		if a[i].hi.Cmp(b[j].hi) < 0 {
			i++
		} else {
			j++
		}
	}
	return out
}

// differenceRanges returns the spans in a that are not covered by any
// span in b.
func differenceRanges(a, b []addrRange) []addrRange {
	var out []addrRange
	j := 0
	for _, span := range a {
		lo := new(big.Int).Set(span.lo)
		hi := span.hi
		for j < len(b) && b[j].hi.Cmp(lo) < 0 {
			j++
		}
		k := j
		for k < len(b) && b[k].lo.Cmp(hi) <= 0 {
			if b[k].lo.Cmp(lo) > 0 {
				out = append(out, addrRange{lo: new(big.Int).Set(lo), hi: subOne(b[k].lo)})
			}
			if b[k].hi.Cmp(lo) >= 0 {
				lo = addOne(b[k].hi)
			}
			if lo.Cmp(hi) > 0 {
				break
			}
			k++
		}
		if lo.Cmp(hi) <= 0 {
			out = append(out, addrRange{lo: lo, hi: new(big.Int).Set(hi)})
		}
	}
	return out
}

func mergeSorted(a, b []addrRange) []addrRange {
	out := make([]addrRange, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].lo.Cmp(b[j].lo) <= 0 {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

func coalesce(spans []addrRange) []addrRange {
	if len(spans) == 0 {
		return nil
	}
	out := make([]addrRange, 0, len(spans))
	cur := spans[0]
	for _, s := range spans[1:] {
		if s.lo.Cmp(addOne(cur.hi)) <= 0 {
			if s.hi.Cmp(cur.hi) > 0 {
				cur.hi = s.hi
			}
			continue
		}
		out = append(out, cur)
		cur = s
	}
	out = append(out, cur)
	return out
}

func maxBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return a
	}
	return b
}

func addOne(n *big.Int) *big.Int { return new(big.Int).Add(n, big.NewInt(1)) }
func subOne(n *big.Int) *big.Int { return new(big.Int).Sub(n, big.NewInt(1)) }

// rangeToCIDRs decomposes [lo, hi] into the minimal ordered list of
// aligned CIDR blocks that together cover exactly that span: at each
// step, take the largest block starting at lo that both (a) is aligned
// and (b) fits within hi.
func rangeToCIDRs(lo, hi *big.Int, width int, is4 bool) []ipaddr.CIDR {
	var out []ipaddr.CIDR
	bits := width * 8
	cur := new(big.Int).Set(lo)
	for cur.Cmp(hi) <= 0 {
		maxShift := trailingZeroBits(cur, bits)
		remaining := new(big.Int).Sub(hi, cur)
		remaining.Add(remaining, big.NewInt(1))
		for maxShift > 0 {
			blockSize := new(big.Int).Lsh(big.NewInt(1), uint(maxShift))
			if blockSize.Cmp(remaining) <= 0 {
				break
			}
			maxShift--
		}
		prefix := bits - maxShift
		out = append(out, ipaddr.CIDR{Base: ipaddr.FromBigInt(cur, is4), Prefix: prefix})
		step := new(big.Int).Lsh(big.NewInt(1), uint(maxShift))
		cur.Add(cur, step)
	}
	return out
}

// trailingZeroBits returns the number of trailing zero bits in n,
// capped at bits (n's own width), used to find the largest block
// alignment available starting at n.
func trailingZeroBits(n *big.Int, bits int) int {
	if n.Sign() == 0 {
		return bits
	}
	count := 0
	t := new(big.Int).Set(n)
	for count < bits && t.Bit(0) == 0 {
		t.Rsh(t, 1)
		count++
	}
	return count
}
