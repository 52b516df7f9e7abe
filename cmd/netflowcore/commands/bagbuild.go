// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package commands

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/karlgrep/netflowcore/bag"
	"github.com/karlgrep/netflowcore/cbuf"
)

// buildItemSize is the fixed cbuf item size bagBuildCmd's pipeline uses:
// a 4-byte big-endian key (zero-padded on the left for narrower field
// types) followed by an 8-byte big-endian counter delta.
const buildItemSize = 4 + 8

// bagBuildCmd runs the record pipeline end to end: a producer
// goroutine parses records.txt into fixed-size key/counter blocks and
// pushes them through a cbuf.Buffer; a consumer goroutine drains the
// buffer and folds each block into the Bag with CounterAdd. Unlike
// "bag create" (which updates the Bag directly from the scanner with
// no intermediate buffering), this path exercises the bounded
// producer/consumer handoff the core ships for exactly this purpose.
func bagBuildCmd() *cobra.Command {
	var fieldMeasure string
	var depth int

	cmd := &cobra.Command{
		Use:   "build <records.txt> <out.bag>",
		Short: "Build a bag from records.txt through a bounded cbuf pipeline",
		Long: "Like \"bag create\", but the reader and the bag-updating " +
			"consumer run as separate goroutines handed off through a " +
			"fixed-item cbuf.Buffer, demonstrating the bounded " +
			"producer/consumer path the core's circular buffer exists for.",
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
			if spec.KeyOctets > 4 {
				return fmt.Errorf("bag build: field %q is wider than the pipeline's fixed item size", fieldName)
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

			buf, err := cbuf.NewFixed(buildItemSize, depth)
			if err != nil {
				return fmt.Errorf("create pipeline buffer: %w", err)
			}

			b := bag.NewTyped(spec.Type, counterType, spec.KeyOctets)

			var eg errgroup.Group
			eg.Go(func() error {
				defer buf.StopWriting()
				return produceBagRecords(f, args[0], spec, buf)
			})
			eg.Go(func() error {
				return consumeBagRecords(buf, b, fieldName)
			})
			werr := eg.Wait()
			buf.Stop()
			if metricsCollector != nil {
				metricsCollector.RecordStop(werr == nil)
			}
			if werr != nil {
				return werr
			}

			out, err := os.Create(args[1])
			if err != nil {
				return fmt.Errorf("create %s: %w", args[1], err)
			}
			defer out.Close()

			stats := buf.Stats()
			logger.Info().Str("field", fieldName).Str("measure", measure).
				Int("keys", b.Len()).Uint64("blocks_committed", stats.Commits).
				Int("pipeline_high_water", stats.HighWaterMark).
				Msg("bag build complete")
			if metricsCollector != nil {
				metricsCollector.ObserveHighWater(stats.HighWaterMark)
			}
			_, err = b.WriteToVersioned(out, cfg.WriterVersion(buildWriterVersion))
			return err
		},
	}
	cmd.Flags().StringVar(&fieldMeasure, "field", "", "field-measure pair, e.g. sip-flows, dport-bytes (required)")
	cmd.Flags().IntVar(&depth, "pipeline-depth", 64, "number of in-flight blocks the cbuf pipeline holds")
	cmd.MarkFlagRequired("field")
	return cmd
}

// produceBagRecords scans path's "<key> <counter>" lines, encodes each
// into a fixed-size cbuf block, and commits it; it returns the first
// parse or write error encountered.
func produceBagRecords(f *os.File, path string, spec bag.FieldSpec, buf *cbuf.Buffer) error {
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return fmt.Errorf("%s:%d: expected \"key counter\", got %q", path, line, sc.Text())
		}
		key, err := keyToBytes(spec, fields[0])
		if err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
		counter, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return fmt.Errorf("%s:%d: parse counter %q: %w", path, line, fields[1], err)
		}

		wb, err := buf.GetWriteBlock(buildItemSize, false)
		if err != nil {
			return fmt.Errorf("%s:%d: acquire pipeline block: %w", path, line, err)
		}
		copy(wb.Payload[:4], padBuildKey(key))
		binary.BigEndian.PutUint64(wb.Payload[4:12], counter)
		if err := wb.Commit(buildItemSize); err != nil {
			return fmt.Errorf("%s:%d: commit pipeline block: %w", path, line, err)
		}
	}
	return sc.Err()
}

// consumeBagRecords drains buf until it reports ErrStopped (the
// producer side closed via StopWriting and every block has been
// read), folding each block into b with CounterAdd.
func consumeBagRecords(buf *cbuf.Buffer, b *bag.Bag, fieldName string) error {
	for {
		rb, err := buf.GetReadBlock(false)
		if err == cbuf.ErrStopped {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read pipeline block: %w", err)
		}
		key := append([]byte(nil), rb.Payload[:4]...)
		counter := binary.BigEndian.Uint64(rb.Payload[4:12])
		if err := rb.Release(); err != nil {
			return fmt.Errorf("release pipeline block: %w", err)
		}
		if _, err := b.CounterAdd(trimBuildKey(key, b.KeyWidth()), counter); err != nil {
			if metricsCollector != nil {
				metricsCollector.RecordOverflow(fieldName)
			}
			return fmt.Errorf("apply counter: %w", err)
		}
	}
}

// padBuildKey left-zero-pads key to the pipeline's fixed 4-byte slot.
func padBuildKey(key []byte) []byte {
	out := make([]byte, 4)
	copy(out[4-len(key):], key)
	return out
}

// trimBuildKey strips the pipeline's left-padding back to width bytes,
// the inverse of padBuildKey, so the bag sees the same key width its
// field spec declared.
func trimBuildKey(key []byte, width int) []byte {
	return key[4-width:]
}
