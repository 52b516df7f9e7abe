// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Command netflowcore is the CLI wrapper around the ipset and bag
// packages: ipset union/intersect/difference/mask/sample, bag
// create/build/cat.
package main

import "github.com/karlgrep/netflowcore/cmd/netflowcore/commands"

func main() {
	commands.Execute()
}
