// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package config loads netflowcore's CLI-level defaults (output
// format, default compression method) and reads the one environment
// variable the core recognizes: whether a writer should suppress its
// own writer_version in file headers.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/karlgrep/netflowcore/silkheader"
)

// envPrefix is the environment variable prefix for netflowcore
// configuration. Variables are named NETFLOWCORE_<key>, e.g.
// NETFLOWCORE_SUPPRESS_WRITER_VERSION.
const envPrefix = "NETFLOWCORE_"

// SuppressWriterVersionVar is the environment variable this package
// recognizes: when set to any non-empty value, written file headers
// record a zero writer_version instead of the build's own tag.
const SuppressWriterVersionVar = "NETFLOWCORE_SUPPRESS_WRITER_VERSION"

// Config holds CLI-level defaults layered on top of hardcoded
// fallbacks by environment variables.
type Config struct {
	// SuppressWriterVersion mirrors the writer-version toggle above.
	SuppressWriterVersion bool `koanf:"suppress_writer_version"`

	// DefaultCompression is the compression method new files are
	// written with when a CLI subcommand does not override it.
	DefaultCompression silkheader.Compression `koanf:"-"`
}

// Load reads configuration from the environment only; netflowcore has
// no config file of its own, so this is a thin wrapper around koanf's
// env provider rather than a full file+env+defaults stack.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := &Config{
		DefaultCompression:    silkheader.CompressionNone,
		SuppressWriterVersion: k.String("suppress_writer_version") != "",
	}
	return cfg, nil
}

func envKeyMapper(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	return strings.ToLower(s)
}

// WriterVersion returns tag unless cfg requests suppression, in which
// case it returns 0 so the written header's writer_version field
// reads zero instead.
func (cfg *Config) WriterVersion(tag uint32) uint32 {
	if cfg.SuppressWriterVersion {
		return 0
	}
	return tag
}
