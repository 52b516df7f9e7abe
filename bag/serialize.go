// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package bag

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/karlgrep/netflowcore/silkheader"
)

// WriteTo encodes the bag as a framed file: a silkheader.Header
// describing the key and counter typing, followed by the ordered
// sequence of (key, counter) records — each keyWidth+8 bytes,
// big-endian, with no count prefix and no delimiters between records.
func (b *Bag) WriteTo(w io.Writer) (int64, error) {
	return b.WriteToVersioned(w, 0)
}

// WriteToVersioned behaves like WriteTo but stamps the header's
// writer_version field with writerVersion, the hook the
// writer-version-suppression env var acts through.
func (b *Bag) WriteToVersioned(w io.Writer, writerVersion uint32) (int64, error) {
	h := silkheader.New(silkheader.FormatBag, b.keyWidth+8)
	h.WriterVersion = writerVersion
	h.Append(&silkheader.BagOptionsEntry{
		KeyType:       uint16(b.keyType),
		KeyLength:     uint16(b.keyWidth),
		CounterType:   uint16(b.counterType),
		CounterLength: 8,
	})

	n, err := h.WriteTo(w)
	if err != nil {
		return n, err
	}

	record := make([]byte, b.keyWidth+8)
	for _, k := range b.sortedKeys() {
		copy(record, k)
		binary.BigEndian.PutUint64(record[b.keyWidth:], b.counters[k])
		rn, err := w.Write(record)
		n += int64(rn)
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// ProcessStream reads a file written by WriteTo and invokes fn with
// each (key, counter) pair in turn, without ever materializing a Bag.
// fn returning false stops the scan early.
func ProcessStream(r io.Reader, fn func(key []byte, counter uint64) bool) error {
	var h silkheader.Header
	if _, err := h.ReadFrom(r); err != nil {
		return err
	}
	if h.FileFormat != silkheader.FormatBag {
		return ErrBadFormat
	}
	opts, ok := h.Find(silkheader.EntryBag)
	if !ok {
		return fmt.Errorf("%w: missing bag-options entry", ErrBadFormat)
	}
	bo := opts.(*silkheader.BagOptionsEntry)
	keyWidth := int(bo.KeyLength)
	if !validWidth(keyWidth) {
		return ErrBadFormat
	}

	record := make([]byte, keyWidth+8)
	for {
		_, err := io.ReadFull(r, record)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrRead, err)
		}
		key := append([]byte(nil), record[:keyWidth]...)
		counter := binary.BigEndian.Uint64(record[keyWidth:])
		if !fn(key, counter) {
			return nil
		}
	}
}

// ReadFrom decodes a bag previously written by WriteTo, replacing b's
// contents.
func (b *Bag) ReadFrom(r io.Reader) (int64, error) {
	var h silkheader.Header
	n, err := h.ReadFrom(r)
	if err != nil {
		return n, err
	}
	if h.FileFormat != silkheader.FormatBag {
		return n, ErrBadFormat
	}

	opts, ok := h.Find(silkheader.EntryBag)
	if !ok {
		return n, fmt.Errorf("%w: missing bag-options entry", ErrBadFormat)
	}
	bo := opts.(*silkheader.BagOptionsEntry)
	keyWidth := int(bo.KeyLength)
	if !validWidth(keyWidth) {
		return n, ErrBadFormat
	}

	*b = *NewTyped(KeyType(bo.KeyType), CounterType(bo.CounterType), keyWidth)
	record := make([]byte, keyWidth+8)
	for {
		rn, err := io.ReadFull(r, record)
		n += int64(rn)
		if err == io.EOF {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("%w: %v", ErrRead, err)
		}
		counter := binary.BigEndian.Uint64(record[keyWidth:])
		if counter == 0 {
			continue
		}
		b.counters[string(record[:keyWidth])] = counter
	}
}
