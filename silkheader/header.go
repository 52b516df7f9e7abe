// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package silkheader implements the binary file header framing shared
// by every serialized ipset and bag: a fixed 16-byte preamble
// identifying the file format, byte order and compression, followed by
// a chain of typed, self-describing header entries terminated by an
// entry of ID 0. All integers are big-endian on the wire regardless of
// the host's native order.
package silkheader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Magic is the fixed four-byte value that opens every header.
const Magic uint32 = 0xDEADBEEF

// FileFormat identifies the payload that follows the header.
type FileFormat uint8

const (
	FormatIPset FileFormat = 0x1b
	FormatBag   FileFormat = 0x1a
)

// Compression identifies how the payload bytes following the header
// are compressed, if at all.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZlib
)

const preambleLen = 16

var (
	// ErrBadMagic is returned when the leading four bytes are not Magic.
	ErrBadMagic = errors.New("silkheader: bad magic number")

	// ErrBadVersion is returned when Version exceeds the newest version
	// this package understands.
	ErrBadVersion = errors.New("silkheader: unsupported header version")

	// ErrShortRead is returned when the stream ends before the fixed
	// preamble has been fully read.
	ErrShortRead = errors.New("silkheader: short read in preamble")

	// ErrTruncatedEntry is returned when an entry's declared length
	// extends past what the stream actually contains.
	ErrTruncatedEntry = errors.New("silkheader: truncated header entry")

	// ErrBadCompression is returned when the preamble's compression
	// method byte does not name a method this package understands.
	ErrBadCompression = errors.New("silkheader: unrecognized compression method")
)

// CurrentVersion is the newest header version this package writes and
// will accept on read.
const CurrentVersion uint8 = 2

// BigEndianFlag is the bit of Header.FileFlags that marks the payload
// following the header as big-endian; a zero bit means little-endian.
const BigEndianFlag uint8 = 0x1

// Header is the fixed preamble plus the variable entry chain that
// precedes every ipset or bag payload.
type Header struct {
	FileFlags     uint8 // bit 0: 1 = big-endian payload, 0 = little-endian
	FileFormat    FileFormat
	Version       uint8
	Compression   Compression
	WriterVersion uint32 // free-form tag identifying the writer build; 0 when suppressed
	RecordLength  uint16
	RecordVers    uint16
	Entries       []Entry
}

// New returns a Header with CurrentVersion, no compression, and the
// big-endian payload flag set (every payload this package writes is
// big-endian), ready to have entries appended before writing.
func New(format FileFormat, recordLength int) *Header {
	return &Header{
		FileFlags:    BigEndianFlag,
		FileFormat:   format,
		Version:      CurrentVersion,
		Compression:  CompressionNone,
		RecordLength: uint16(recordLength),
	}
}

// Append adds an entry to the header's chain.
func (h *Header) Append(e Entry) { h.Entries = append(h.Entries, e) }

// Find returns the first entry with the given ID, if any.
func (h *Header) Find(id EntryID) (Entry, bool) {
	for _, e := range h.Entries {
		if e.ID() == id {
			return e, true
		}
	}
	return nil, false
}

// WriteTo encodes the header, preamble followed by every entry and a
// terminating ID-0 entry, to w. The on-disk layout is a 16-byte
// preamble (magic, file_flags, file_format, file_version,
// compression_method, writer_version, record_size, record_version)
// followed by the entry chain, every multi-byte field
// big-endian regardless of the host's native order or of FileFlags'
// payload-endianness bit (which describes the payload that follows
// the header, not the header itself).
func (h *Header) WriteTo(w io.Writer) (int64, error) {
	var body []byte
	for _, e := range h.Entries {
		payload, err := e.MarshalBinary()
		if err != nil {
			return 0, fmt.Errorf("silkheader: encode entry %d: %w", e.ID(), err)
		}
		body = append(body, encodeEntryFrame(e.ID(), payload)...)
	}
	body = append(body, encodeEntryFrame(0, nil)...)

	preamble := make([]byte, preambleLen)
	binary.BigEndian.PutUint32(preamble[0:4], Magic)
	preamble[4] = h.FileFlags
	preamble[5] = byte(h.FileFormat)
	preamble[6] = h.Version
	preamble[7] = byte(h.Compression)
	binary.BigEndian.PutUint32(preamble[8:12], h.WriterVersion)
	binary.BigEndian.PutUint16(preamble[12:14], h.RecordLength)
	binary.BigEndian.PutUint16(preamble[14:16], h.RecordVers)

	n, err := w.Write(preamble)
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(body)
	return int64(n + m), err
}

func encodeEntryFrame(id EntryID, payload []byte) []byte {
	frame := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint32(frame[0:4], uint32(id))
	binary.BigEndian.PutUint32(frame[4:8], uint32(8+len(payload)))
	copy(frame[8:], payload)
	return frame
}

// ReadFrom decodes a header from r, leaving the reader positioned at
// the start of the payload that follows.
func (h *Header) ReadFrom(r io.Reader) (int64, error) {
	preamble := make([]byte, preambleLen)
	n, err := io.ReadFull(r, preamble)
	if err != nil {
		return int64(n), fmt.Errorf("%w: %v", ErrShortRead, err)
	}

	if magic := binary.BigEndian.Uint32(preamble[0:4]); magic != Magic {
		return int64(n), ErrBadMagic
	}
	h.FileFlags = preamble[4]
	h.FileFormat = FileFormat(preamble[5])
	h.Version = preamble[6]
	if h.Version > CurrentVersion {
		return int64(n), ErrBadVersion
	}
	h.Compression = Compression(preamble[7])
	if h.Compression != CompressionNone && h.Compression != CompressionZlib {
		return int64(n), ErrBadCompression
	}
	h.WriterVersion = binary.BigEndian.Uint32(preamble[8:12])
	h.RecordLength = binary.BigEndian.Uint16(preamble[12:14])
	h.RecordVers = binary.BigEndian.Uint16(preamble[14:16])

	total := int64(n)
	h.Entries = h.Entries[:0]
	frame := make([]byte, 8)
	for {
		m, err := io.ReadFull(r, frame)
		total += int64(m)
		if err != nil {
			return total, fmt.Errorf("%w: %v", ErrTruncatedEntry, err)
		}
		id := EntryID(binary.BigEndian.Uint32(frame[0:4]))
		length := binary.BigEndian.Uint32(frame[4:8])
		if id == 0 {
			break
		}
		if length < 8 {
			return total, ErrTruncatedEntry
		}
		payload := make([]byte, length-8)
		m, err = io.ReadFull(r, payload)
		total += int64(m)
		if err != nil {
			return total, fmt.Errorf("%w: %v", ErrTruncatedEntry, err)
		}
		entry, err := decodeEntry(id, payload)
		if err != nil {
			return total, err
		}
		h.Entries = append(h.Entries, entry)
	}

	return total, nil
}
