// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package ipaddr

import (
	"fmt"
	"net/netip"
)

// ParseAddr parses a textual IPv4 or IPv6 address, the one place this
// package touches net/netip: everywhere else an Addr is built from
// wire bytes or arithmetic, but a human or a config file hands us
// text, and net/netip is the standard library's address-text grammar.
func ParseAddr(s string) (Addr, error) {
	na, err := netip.ParseAddr(s)
	if err != nil {
		return Addr{}, fmt.Errorf("ipaddr: parse address %q: %w", s, err)
	}
	if na.Is4() {
		b := na.As4()
		return FromV4Octets(b[0], b[1], b[2], b[3]), nil
	}
	return FromV6Bytes(na.As16()), nil
}

// ParseCIDR parses a textual CIDR block such as "10.0.0.0/8" or
// "2001:db8::/32".
func ParseCIDR(s string) (CIDR, error) {
	np, err := netip.ParsePrefix(s)
	if err != nil {
		return CIDR{}, fmt.Errorf("ipaddr: parse CIDR %q: %w", s, err)
	}
	addr, err := ParseAddr(np.Addr().String())
	if err != nil {
		return CIDR{}, err
	}
	return NewStrict(addr, np.Bits())
}
