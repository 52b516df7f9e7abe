// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package commands implements the netflowcore CLI's cobra command tree:
// thin wrappers over the ipset and bag packages, reading and writing
// files through the same seekable-byte-stream contract those packages
// expose, with operational logging and optional Prometheus metrics
// living here at the CLI layer rather than in the core packages.
package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/karlgrep/netflowcore/internal/config"
	"github.com/karlgrep/netflowcore/internal/metrics"
)

// buildWriterVersion tags every file this binary writes, unless
// NETFLOWCORE_SUPPRESS_WRITER_VERSION asks cfg.WriterVersion to zero it.
const buildWriterVersion uint32 = 1

var (
	// logger is the zerolog logger every subcommand writes through.
	logger zerolog.Logger

	// cfg holds the environment-derived defaults loaded in
	// PersistentPreRunE.
	cfg *config.Config

	// metricsAddr, when non-empty, starts a Prometheus /metrics
	// endpoint before the subcommand's work begins.
	metricsAddr string

	// verbose raises the logger to debug level.
	verbose bool
)

// rootCmd is the top-level cobra command for netflowcore.
var rootCmd = &cobra.Command{
	Use:   "netflowcore",
	Short: "SiLK-compatible ipset and bag tooling",
	Long: "netflowcore manipulates IP address sets and keyed flow counters " +
		"in a SiLK-compatible wire format, independent of any particular " +
		"flow-record collector.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}).
			Level(level).
			With().Timestamp().Logger()

		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		cfg = loaded

		if metricsAddr != "" {
			if err := serveMetrics(metricsAddr); err != nil {
				return fmt.Errorf("start metrics endpoint: %w", err)
			}
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "",
		"if set, serve Prometheus metrics on this address (host:port)")

	rootCmd.AddCommand(ipsetCmd())
	rootCmd.AddCommand(bagCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

var metricsCollector *metrics.Collector
