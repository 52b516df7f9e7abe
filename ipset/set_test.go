// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package ipset_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/karlgrep/netflowcore/ipaddr"
	"github.com/karlgrep/netflowcore/ipset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func v4(a, b, c, d byte) ipaddr.Addr { return ipaddr.FromV4Octets(a, b, c, d) }

func cidr(a, b, c, d byte, prefix int) ipaddr.CIDR {
	return ipaddr.CIDR{Base: v4(a, b, c, d), Prefix: prefix}
}

func TestInsertContains(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 0, 24)))

	assert.True(t, s.Contains(v4(10, 0, 0, 1)))
	assert.True(t, s.Contains(v4(10, 0, 0, 255)))
	assert.False(t, s.Contains(v4(10, 0, 1, 0)))
}

func TestAdjacentSiblingsMergeIntoParent(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 0, 31)))
	require.NoError(t, s.Insert(cidr(10, 0, 0, 2, 31)))

	require.Equal(t, 1, s.BlockCount(), "two adjacent /31s must merge into one /30")

	var got []ipaddr.CIDR
	for c := range s.Walk() {
		got = append(got, c)
	}
	require.Len(t, got, 1)
	assert.Equal(t, 30, got[0].Prefix)
	assert.Equal(t, v4(10, 0, 0, 0), got[0].Base)
}

func TestFullOctetBlocksMergeAcrossStrides(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 0, 25)))
	require.NoError(t, s.Insert(cidr(10, 0, 0, 128, 25)))

	var got []ipaddr.CIDR
	for c := range s.Walk() {
		got = append(got, c)
	}
	require.Len(t, got, 1)
	assert.Equal(t, 24, got[0].Prefix, "two /25s collapse to the /24 they cover")

	// The buddy /24 completes a /23; the merge must cross the octet
	// boundary between the third and second stride.
	require.NoError(t, s.Insert(cidr(10, 0, 1, 0, 24)))
	got = got[:0]
	for c := range s.Walk() {
		got = append(got, c)
	}
	require.Len(t, got, 1)
	assert.Equal(t, 23, got[0].Prefix)
	assert.Equal(t, v4(10, 0, 0, 0), got[0].Base)
	assert.False(t, s.Contains(v4(10, 0, 2, 0)), "coverage must not widen past the merged /23")
}

func TestAdjacentFullWidthLeavesMergeUp(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 0, 8)))
	require.NoError(t, s.Insert(cidr(11, 0, 0, 0, 8)))

	require.Equal(t, 1, s.BlockCount())
	var got ipaddr.CIDR
	for c := range s.Walk() {
		got = c
	}
	assert.Equal(t, 7, got.Prefix)
	assert.Equal(t, v4(10, 0, 0, 0), got.Base)
	assert.False(t, s.Contains(v4(12, 0, 0, 0)))
}

func TestRemoveDeletesContainedBlocks(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 1, 32)))
	require.NoError(t, s.Insert(cidr(10, 0, 0, 2, 32)))
	require.NoError(t, s.Insert(cidr(10, 0, 1, 0, 24)))
	require.NoError(t, s.Insert(cidr(192, 168, 0, 0, 16)))

	require.NoError(t, s.Remove(cidr(10, 0, 0, 0, 16)))

	assert.False(t, s.Contains(v4(10, 0, 0, 1)))
	assert.False(t, s.Contains(v4(10, 0, 0, 2)))
	assert.False(t, s.Contains(v4(10, 0, 1, 10)))
	assert.True(t, s.Contains(v4(192, 168, 5, 5)), "blocks outside the removed range survive")
	assert.Equal(t, 1, s.BlockCount())
}

func TestInsertRedundantIsNoop(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 0, 8)))
	require.NoError(t, s.Insert(cidr(10, 1, 2, 3, 32)))

	assert.Equal(t, 1, s.BlockCount())
	assert.True(t, s.Contains(v4(10, 1, 2, 3)))
}

func TestInsertBroaderAbsorbsNarrower(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 0, 24)))
	require.NoError(t, s.Insert(cidr(10, 0, 0, 0, 16)))

	assert.Equal(t, 1, s.BlockCount())
	var got ipaddr.CIDR
	for c := range s.Walk() {
		got = c
	}
	assert.Equal(t, 16, got.Prefix)
}

func TestRemoveSplitsCoveringBlock(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 0, 30)))
	require.NoError(t, s.Remove(cidr(10, 0, 0, 1, 32)))

	assert.False(t, s.Contains(v4(10, 0, 0, 1)))
	assert.True(t, s.Contains(v4(10, 0, 0, 0)))
	assert.True(t, s.Contains(v4(10, 0, 0, 2)))
	assert.True(t, s.Contains(v4(10, 0, 0, 3)))
}

func TestRemoveExact(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 0, 24)))
	require.NoError(t, s.Remove(cidr(10, 0, 0, 0, 24)))

	assert.True(t, s.IsEmpty())
	assert.False(t, s.Contains(v4(10, 0, 0, 5)))
}

func TestUnionIntersectDifference(t *testing.T) {
	a := ipset.New(4)
	require.NoError(t, a.Insert(cidr(10, 0, 0, 0, 24)))
	b := ipset.New(4)
	require.NoError(t, b.Insert(cidr(10, 0, 0, 128, 25)))

	u, err := a.Union(b)
	require.NoError(t, err)
	assert.EqualValues(t, 256, u.Count())

	i, err := a.Intersect(b)
	require.NoError(t, err)
	assert.EqualValues(t, 128, i.Count())

	d, err := a.Difference(b)
	require.NoError(t, err)
	assert.EqualValues(t, 128, d.Count())
	assert.False(t, d.Contains(v4(10, 0, 0, 200)))
	assert.True(t, d.Contains(v4(10, 0, 0, 10)))
}

func TestCountAndBlockCount(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 0, 30)))
	require.NoError(t, s.Insert(cidr(192, 168, 0, 1, 32)))

	assert.EqualValues(t, 5, s.Count())
	assert.Equal(t, 2, s.BlockCount())
}

func TestConvert4To16And16To4(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 0, 24)))

	v6, err := s.Convert(16)
	require.NoError(t, err)
	assert.True(t, v6.Contains(v4(10, 0, 0, 1).ToV6()))

	back, err := v6.Convert(4)
	require.NoError(t, err)
	assert.True(t, back.Contains(v4(10, 0, 0, 1)))
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 0, 24)))
	require.NoError(t, s.Insert(cidr(192, 168, 1, 1, 32)))

	var buf bytes.Buffer
	_, err := s.WriteTo(&buf)
	require.NoError(t, err)

	got := ipset.New(4)
	_, err = got.ReadFrom(&buf)
	require.NoError(t, err)

	assert.Equal(t, s.Count(), got.Count())
	assert.True(t, got.Contains(v4(192, 168, 1, 1)))
}

func TestProcessStream(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 0, 24)))

	var buf bytes.Buffer
	_, err := s.WriteTo(&buf)
	require.NoError(t, err)

	var blocks []ipaddr.CIDR
	err = ipset.ProcessStream(&buf, func(c ipaddr.CIDR) bool {
		blocks = append(blocks, c)
		return true
	})
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, 24, blocks[0].Prefix)
}

func TestSampleSize(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 0, 24)))

	rng := rand.New(rand.NewSource(1))
	sample, err := s.SampleSize(10, rng)
	require.NoError(t, err)
	assert.EqualValues(t, 10, sample.Count())

	_, err = s.SampleSize(1000, rng)
	assert.ErrorIs(t, err, ipset.ErrInput)
}

func TestSampleSizeIsDeterministicGivenSeed(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 0, 24)))

	a, err := s.SampleSize(20, rand.New(rand.NewSource(42)))
	require.NoError(t, err)
	b, err := s.SampleSize(20, rand.New(rand.NewSource(42)))
	require.NoError(t, err)

	var aAddrs, bAddrs []ipaddr.Addr
	for c := range a.Walk() {
		for addr := range c.Addresses() {
			aAddrs = append(aAddrs, addr)
		}
	}
	for c := range b.Walk() {
		for addr := range c.Addresses() {
			bAddrs = append(bAddrs, addr)
		}
	}
	assert.Equal(t, aAddrs, bAddrs, "same seed must draw the same sample")
}

func TestSampleRatioRejectsOutOfRange(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 0, 24)))

	rng := rand.New(rand.NewSource(1))
	_, err := s.SampleRatio(0, rng)
	assert.ErrorIs(t, err, ipset.ErrInput)
	_, err = s.SampleRatio(1.5, rng)
	assert.ErrorIs(t, err, ipset.ErrInput)

	full, err := s.SampleRatio(1, rng)
	require.NoError(t, err)
	assert.EqualValues(t, s.Count(), full.Count())
}

func TestUnionMergesAdjacentBlocksFromBothOperands(t *testing.T) {
	a := ipset.New(4)
	require.NoError(t, a.Insert(cidr(10, 0, 0, 0, 31)))
	b := ipset.New(4)
	require.NoError(t, b.Insert(cidr(10, 0, 0, 2, 31)))

	u, err := a.Union(b)
	require.NoError(t, err)

	var got []ipaddr.CIDR
	for c := range u.Walk() {
		got = append(got, c)
	}
	require.Len(t, got, 1)
	assert.Equal(t, cidr(10, 0, 0, 0, 30), got[0])
}

func TestWalkAddrsVisitsEveryAddressInOrder(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 4, 30)))
	require.NoError(t, s.Insert(cidr(10, 0, 0, 1, 32)))

	var got []ipaddr.Addr
	for addr := range s.WalkAddrs(ipset.V6AsIs) {
		got = append(got, addr)
	}
	want := []ipaddr.Addr{
		v4(10, 0, 0, 1),
		v4(10, 0, 0, 4), v4(10, 0, 0, 5), v4(10, 0, 0, 6), v4(10, 0, 0, 7),
	}
	assert.Equal(t, want, got)
}

func TestWalkWithForceAndDemotePolicies(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(192, 0, 2, 0, 24)))

	for c := range s.WalkWith(ipset.V6Force) {
		assert.True(t, c.Base.Is6())
		assert.Equal(t, 120, c.Prefix)
	}

	v6 := ipset.New(16)
	mapped, err := ipaddr.ParseCIDR("::ffff:192.0.2.0/120")
	require.NoError(t, err)
	plain, err := ipaddr.ParseCIDR("2001:db8::/64")
	require.NoError(t, err)
	require.NoError(t, v6.Insert(mapped))
	require.NoError(t, v6.Insert(plain))

	var got []ipaddr.CIDR
	for c := range v6.WalkWith(ipset.V6Demote) {
		got = append(got, c)
	}
	require.Len(t, got, 1, "non-mapped v6 blocks are skipped under V6Demote")
	assert.Equal(t, cidr(192, 0, 2, 0, 24), got[0])
}

func TestProcessStreamInitSeesFramingFirst(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 0, 24)))
	require.NoError(t, s.Insert(cidr(192, 168, 1, 1, 32)))

	var buf bytes.Buffer
	_, err := s.WriteTo(&buf)
	require.NoError(t, err)

	var info ipset.StreamInfo
	var blocks int
	err = ipset.ProcessStreamInit(&buf,
		func(si ipset.StreamInfo) error { info = si; return nil },
		func(ipaddr.CIDR) bool { blocks++; return true },
		ipset.V6AsIs)
	require.NoError(t, err)
	assert.Equal(t, 4, info.Width)
	assert.EqualValues(t, 2, info.LeafCount)
	assert.Equal(t, 2, blocks)
}

func TestMask(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 5, 32)))
	require.NoError(t, s.Insert(cidr(10, 0, 0, 200, 32)))

	masked, err := s.Mask(24)
	require.NoError(t, err)
	assert.Equal(t, 1, masked.BlockCount())
	assert.True(t, masked.Contains(v4(10, 0, 0, 0)))
	assert.False(t, masked.Contains(v4(10, 0, 0, 5)), "mask keeps one address per occupied block")
	assert.EqualValues(t, 1, masked.Count())

	again, err := masked.Mask(24)
	require.NoError(t, err)
	assert.EqualValues(t, masked.Count(), again.Count(), "masking twice at the same prefix is a no-op")
}

func TestMaskBroadBlockKeepsOneAddressPerSubBlock(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 0, 22)))

	masked, err := s.Mask(24)
	require.NoError(t, err)
	assert.EqualValues(t, 4, masked.Count(), "a /22 holds four occupied /24s")
	assert.True(t, masked.Contains(v4(10, 0, 2, 0)))
	assert.False(t, masked.Contains(v4(10, 0, 2, 1)))
}

func TestMaskAndFillCompletesOccupiedBlocks(t *testing.T) {
	s := ipset.New(4)
	require.NoError(t, s.Insert(cidr(10, 0, 0, 5, 32)))
	require.NoError(t, s.Insert(cidr(10, 0, 1, 9, 32)))

	filled, err := s.MaskAndFill(24)
	require.NoError(t, err)
	assert.EqualValues(t, 512, filled.Count())
	assert.True(t, filled.Contains(v4(10, 0, 0, 255)))
	assert.True(t, filled.Contains(v4(10, 0, 1, 0)))
	assert.False(t, filled.Contains(v4(10, 0, 2, 0)))
}
