// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package commands

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/karlgrep/netflowcore/bag"
	"github.com/karlgrep/netflowcore/ipaddr"
)

func bagCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bag",
		Short: "Build and inspect bag files",
	}
	cmd.AddCommand(bagCreateCmd())
	cmd.AddCommand(bagBuildCmd())
	cmd.AddCommand(bagCatCmd())
	return cmd
}

// keyToBytes encodes key, a decimal integer or (for an IP-shaped field)
// a dotted or colon address, to the field's canonical big-endian key
// bytes.
func keyToBytes(field bag.FieldSpec, key string) ([]byte, error) {
	switch field.Type {
	case bag.KeySourceIPv4, bag.KeyDestIPv4, bag.KeyNextHopIPv4,
		bag.KeySourceIPv6, bag.KeyDestIPv6, bag.KeyNextHopIPv6:
		addr, err := ipaddr.ParseAddr(key)
		if err != nil {
			return nil, err
		}
		if addr.Is4() {
			b4 := addr.As4()
			return b4[:], nil
		}
		b16 := addr.As16()
		return b16[:], nil
	default:
		n, err := strconv.ParseUint(key, 10, field.KeyOctets*8)
		if err != nil {
			return nil, fmt.Errorf("parse key %q: %w", key, err)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, n)
		return buf[8-field.KeyOctets:], nil
	}
}

// measureToCounterType maps the "flows"/"packets"/"bytes" measure name
// from a "--<field>-<measure>" flag to its counter type tag.
func measureToCounterType(measure string) (bag.CounterType, error) {
	switch measure {
	case "flows":
		return bag.CounterFlowRecords, nil
	case "packets":
		return bag.CounterSumPackets, nil
	case "bytes":
		return bag.CounterSumBytes, nil
	default:
		return 0, fmt.Errorf("unknown measure %q, want flows, packets, or bytes", measure)
	}
}

// splitFieldMeasure splits a "--<field>-<measure>" flag value, e.g.
// "sip-flows", into its field and measure halves.
func splitFieldMeasure(flag string) (field, measure string, err error) {
	i := strings.LastIndex(flag, "-")
	if i < 0 {
		return "", "", fmt.Errorf("expected <field>-<measure>, got %q", flag)
	}
	return flag[:i], flag[i+1:], nil
}

func bagCreateCmd() *cobra.Command {
	var fieldMeasure string

	cmd := &cobra.Command{
		Use:   "create <records.txt> <out.bag>",
		Short: "Build a bag from whitespace-separated \"key counter\" lines",
		Long: "Each line of records.txt is \"<key> <counter>\"; key is parsed " +
			"according to --field's type (an address for sip/dip/nhip, a " +
			"decimal integer otherwise). Repeated keys accumulate with CounterAdd. " +
			"--field takes the collaborator CLI's \"<field>-<measure>\" shape, e.g. sip-flows, dport-bytes.",
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			fieldName, measure, err := splitFieldMeasure(fieldMeasure)
			if err != nil {
				return err
			}
			spec, ok := bag.LookupField(fieldName)
			if !ok {
				return fmt.Errorf("unknown field %q", fieldName)
			}
			counterType, err := measureToCounterType(measure)
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			b := bag.NewTyped(spec.Type, counterType, spec.KeyOctets)

			sc := bufio.NewScanner(f)
			line := 0
			for sc.Scan() {
				line++
				fields := strings.Fields(sc.Text())
				if len(fields) == 0 {
					continue
				}
				if len(fields) != 2 {
					return fmt.Errorf("%s:%d: expected \"key counter\", got %q", args[0], line, sc.Text())
				}
				key, err := keyToBytes(spec, fields[0])
				if err != nil {
					return fmt.Errorf("%s:%d: %w", args[0], line, err)
				}
				counter, err := strconv.ParseUint(fields[1], 10, 64)
				if err != nil {
					return fmt.Errorf("%s:%d: parse counter %q: %w", args[0], line, fields[1], err)
				}
				prevWidth := b.KeyWidth()
				if _, err := b.CounterAdd(key, counter); err != nil {
					if metricsCollector != nil {
						metricsCollector.RecordOverflow(fieldName)
					}
					return fmt.Errorf("%s:%d: %w", args[0], line, err)
				}
				if metricsCollector != nil && b.KeyWidth() != prevWidth {
					metricsCollector.RecordPromotion(fieldName)
				}
			}
			if err := sc.Err(); err != nil {
				return fmt.Errorf("scan %s: %w", args[0], err)
			}

			out, err := os.Create(args[1])
			if err != nil {
				return fmt.Errorf("create %s: %w", args[1], err)
			}
			defer out.Close()

			logger.Info().Str("field", fieldName).Str("measure", measure).Int("keys", b.Len()).Msg("bag create complete")
			_, err = b.WriteToVersioned(out, cfg.WriterVersion(buildWriterVersion))
			return err
		},
	}
	cmd.Flags().StringVar(&fieldMeasure, "field", "", "field-measure pair, e.g. sip-flows, dport-bytes (required)")
	cmd.MarkFlagRequired("field")
	return cmd
}

func bagCatCmd() *cobra.Command {
	var unsorted bool

	cmd := &cobra.Command{
		Use:   "cat <in.bag>",
		Short: "Print a bag's (key, counter) pairs, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open %s: %w", args[0], err)
			}
			defer f.Close()

			b := bag.New(1)
			if _, err := b.ReadFrom(f); err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}

			var it *bag.Iterator
			if unsorted {
				it = bag.NewUnsortedIterator(b)
			} else {
				it = bag.NewIterator(b)
			}
			for {
				key, counter, ok, err := it.Next()
				if err != nil {
					return err
				}
				if !ok {
					break
				}
				fmt.Printf("%s %d\n", new(big.Int).SetBytes(key), counter)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&unsorted, "unsorted", false, "iterate in map order instead of ascending key order")
	return cmd
}
