// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package ipaddr_test

import (
	"testing"

	"github.com/karlgrep/netflowcore/ipaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestV4RoundTripThroughV6(t *testing.T) {
	a := ipaddr.FromV4Octets(192, 0, 2, 1)
	v6 := a.ToV6()
	require.True(t, v6.Is6())
	require.True(t, v6.IsV4Mapped())

	back, err := v6.ToV4()
	require.NoError(t, err)
	assert.True(t, a.Equal(back))
	assert.Equal(t, "192.0.2.1", back.String())
}

func TestToV4RejectsNonMapped(t *testing.T) {
	a := ipaddr.FromV6Bytes([16]byte{0x20, 0x01, 0x0d, 0xb8})
	_, err := a.ToV4()
	require.ErrorIs(t, err, ipaddr.ErrNotV4Mapped)
}

func TestCompareMixedVariantsPromotes(t *testing.T) {
	v4 := ipaddr.FromV4Octets(10, 0, 0, 1)
	v6mapped := v4.ToV6()
	assert.Equal(t, 0, v4.Compare(v6mapped))
	assert.True(t, v4.Equal(v6mapped))
}

func TestMaskZeroesLowBits(t *testing.T) {
	a := ipaddr.FromV4Octets(10, 1, 2, 3)
	masked := a.Mask(24)
	assert.Equal(t, "10.1.2.0", masked.String())
	assert.True(t, masked.IsAligned(24))
	assert.False(t, a.IsAligned(24))
}

func TestAndAppliesNumericMask(t *testing.T) {
	a := ipaddr.FromV4Octets(10, 1, 2, 3)
	m := ipaddr.FromV4Octets(255, 255, 0, 255)
	assert.Equal(t, "10.1.0.3", a.And(m).String())

	mixed := a.ToV6().And(m)
	assert.True(t, mixed.Is6(), "mixed variants promote before masking")
	assert.Equal(t, "::ffff:10.1.0.3", mixed.String())
}

func TestIncrementDecrementWrap(t *testing.T) {
	max4 := ipaddr.FromV4Octets(255, 255, 255, 255)
	assert.Equal(t, "0.0.0.0", max4.Increment().String())

	zero4 := ipaddr.FromV4Octets(0, 0, 0, 0)
	assert.Equal(t, "255.255.255.255", zero4.Decrement().String())
}

func TestStringV6Compression(t *testing.T) {
	a := ipaddr.FromV6Bytes([16]byte{0x20, 0x01, 0x0d, 0xb8})
	assert.Equal(t, "2001:db8::", a.String())

	loopback := ipaddr.FromV6Bytes([16]byte{15: 1})
	assert.Equal(t, "::1", loopback.String())
}

func TestHexRendering(t *testing.T) {
	a := ipaddr.FromV4Octets(1, 2, 3, 4)
	assert.Equal(t, "01020304", a.Hex())
	assert.Equal(t, "00000000000000000000ffff01020304", a.HexV6())
}

func TestIntRendering(t *testing.T) {
	a := ipaddr.FromV4Octets(1, 2, 3, 4)
	assert.Equal(t, "16909060", a.Int())
}
