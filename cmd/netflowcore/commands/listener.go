// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package commands

import "net"

func newListener(addr string) (net.Listener, error) {
	return net.Listen("tcp", addr)
}
