// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package ipaddr_test

import (
	"testing"

	"github.com/karlgrep/netflowcore/ipaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCIDRNewMasksBase(t *testing.T) {
	c := ipaddr.New(ipaddr.FromV4Octets(10, 0, 0, 5), 24)
	assert.Equal(t, "10.0.0.0", c.Base.String())
}

func TestCIDRNewStrictRejectsUnaligned(t *testing.T) {
	_, err := ipaddr.NewStrict(ipaddr.FromV4Octets(10, 0, 0, 5), 24)
	require.ErrorIs(t, err, ipaddr.ErrUnaligned)
}

func TestCIDRLastAndSize(t *testing.T) {
	c := ipaddr.New(ipaddr.FromV4Octets(10, 0, 0, 0), 30)
	assert.Equal(t, "10.0.0.3", c.Last().String())
	_, lo := c.Size()
	assert.EqualValues(t, 4, lo)
}

func TestCIDRContains(t *testing.T) {
	c := ipaddr.New(ipaddr.FromV4Octets(10, 0, 0, 0), 24)
	assert.True(t, c.Contains(ipaddr.FromV4Octets(10, 0, 0, 200)))
	assert.False(t, c.Contains(ipaddr.FromV4Octets(10, 0, 1, 0)))
}

func TestCIDRAddressesIteratesInclusive(t *testing.T) {
	c := ipaddr.New(ipaddr.FromV4Octets(10, 0, 0, 0), 30)
	var got []string
	for a := range c.Addresses() {
		got = append(got, a.String())
	}
	assert.Equal(t, []string{"10.0.0.0", "10.0.0.1", "10.0.0.2", "10.0.0.3"}, got)
}
