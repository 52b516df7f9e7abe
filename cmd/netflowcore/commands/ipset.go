// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package commands

import (
	"errors"
	"fmt"
	"math/rand"
	"os"

	"github.com/spf13/cobra"

	"github.com/karlgrep/netflowcore/ipset"
)

// errSampleFlags marks mutually-exclusive/required --ratio and --size flags.
var errSampleFlags = errors.New("ipset sample: exactly one of --ratio or --size is required")

func ipsetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ipset",
		Short: "Operate on ipset files",
	}

	cmd.AddCommand(ipsetUnionCmd())
	cmd.AddCommand(ipsetIntersectCmd())
	cmd.AddCommand(ipsetDifferenceCmd())
	cmd.AddCommand(ipsetMaskCmd())
	cmd.AddCommand(ipsetSampleCmd())

	return cmd
}

func loadSet(path string) (*ipset.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	s := ipset.New(4)
	if _, err := s.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return s, nil
}

func writeSet(path string, s *ipset.Set) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	if _, err := s.WriteToVersioned(f, cfg.WriterVersion(buildWriterVersion)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ipsetBinaryOp builds a two-input, one-output ipset subcommand (union,
// intersect, difference) around op.
func ipsetBinaryOp(use, short string, op func(a, b *ipset.Set) (*ipset.Set, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <a.set> <b.set> <out.set>",
		Short: short,
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			a, err := loadSet(args[0])
			if err != nil {
				return err
			}
			b, err := loadSet(args[1])
			if err != nil {
				return err
			}
			if a.Width() != b.Width() {
				converted, err := b.Convert(a.Width())
				if err != nil {
					return fmt.Errorf("reconcile address families: %w", err)
				}
				b = converted
			}
			out, err := op(a, b)
			if err != nil {
				return err
			}
			logger.Info().Int("blocks", out.BlockCount()).Msg(use + " complete")
			return writeSet(args[2], out)
		},
	}
}

func ipsetUnionCmd() *cobra.Command {
	return ipsetBinaryOp("union", "Union two ipset files", (*ipset.Set).Union)
}

func ipsetIntersectCmd() *cobra.Command {
	return ipsetBinaryOp("intersect", "Intersect two ipset files", (*ipset.Set).Intersect)
}

func ipsetDifferenceCmd() *cobra.Command {
	return ipsetBinaryOp("difference", "Subtract one ipset file from another", (*ipset.Set).Difference)
}

func ipsetMaskCmd() *cobra.Command {
	var prefix int
	var fillBlocks bool

	cmd := &cobra.Command{
		Use:   "mask <in.set> <out.set>",
		Short: "Keep one address per occupied block at the given prefix length",
		Long: "By default, each occupied prefix-length block is reduced to its " +
			"network address. With --fill-blocks, each occupied block is instead " +
			"filled completely, so the output wholly contains every block that " +
			"had at least one member.",
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			s, err := loadSet(args[0])
			if err != nil {
				return err
			}
			var out *ipset.Set
			if fillBlocks {
				out, err = s.MaskAndFill(prefix)
			} else {
				out, err = s.Mask(prefix)
			}
			if err != nil {
				return err
			}
			logger.Info().Int("blocks", out.BlockCount()).Msg("mask complete")
			return writeSet(args[1], out)
		},
	}
	cmd.Flags().IntVar(&prefix, "prefix", 24, "prefix length to mask to")
	cmd.Flags().BoolVar(&fillBlocks, "fill-blocks", false, "fill each occupied block instead of keeping one address")
	return cmd
}

func ipsetSampleCmd() *cobra.Command {
	var ratio float64
	var size int
	var seed int64

	cmd := &cobra.Command{
		Use:   "sample <in.set> <out.set>",
		Short: "Draw a random subset of addresses, by ratio or by exact count",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			if (ratio <= 0) == (size <= 0) {
				return errSampleFlags
			}
			s, err := loadSet(args[0])
			if err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(seed))
			var out *ipset.Set
			if ratio > 0 {
				out, err = s.SampleRatio(ratio, rng)
			} else {
				out, err = s.SampleSize(size, rng)
			}
			if err != nil {
				return err
			}
			logger.Info().Int("blocks", out.BlockCount()).Msg("sample complete")
			return writeSet(args[1], out)
		},
	}
	cmd.Flags().Float64Var(&ratio, "ratio", 0, "independent per-address selection probability (0,1]")
	cmd.Flags().IntVar(&size, "size", 0, "exact number of addresses to draw")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	return cmd
}
