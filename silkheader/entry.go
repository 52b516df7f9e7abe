// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package silkheader

import (
	"encoding/binary"
	"fmt"
	"os"
)

// EntryID identifies the kind of a header entry. ID 0 is reserved as
// the chain terminator and never appears in Header.Entries.
type EntryID uint32

const (
	EntryPackedfile   EntryID = 1 // flow-record packing parameters
	EntryInvocation   EntryID = 2 // command line(s) that produced this file
	EntryAnnotation   EntryID = 3 // free-form operator note
	EntryProbename    EntryID = 4 // name of the collecting probe
	EntryPrefixMap    EntryID = 5 // reference to an external prefix map
	EntryBag          EntryID = 6 // bag key/counter typing
	EntryIPsetOptions EntryID = 7 // ipset tree-shape constants

	// EntryTimezone is a vendor extension beyond the known entry IDs;
	// readers that don't recognize it skip it via total_length, same as
	// any other unknown ID.
	EntryTimezone EntryID = 128
)

// Entry is one link in a header's entry chain.
type Entry interface {
	ID() EntryID
	MarshalBinary() ([]byte, error)
}

// RawEntry is the fallback representation for an entry ID this package
// does not otherwise model: its payload is kept verbatim.
type RawEntry struct {
	Kind    EntryID
	Payload []byte
}

func (e *RawEntry) ID() EntryID { return e.Kind }
func (e *RawEntry) MarshalBinary() ([]byte, error) { return e.Payload, nil }

// InvocationEntry records one invocation of the tool that produced the
// file, newest last. Mirroring SiLK's practice
// of reading SILK_HEADER_NOVERSION from the environment, a caller can
// suppress embedding the running binary's version string.
type InvocationEntry struct {
	CommandLine string
}

func (e *InvocationEntry) ID() EntryID { return EntryInvocation }

func (e *InvocationEntry) MarshalBinary() ([]byte, error) {
	return []byte(e.CommandLine), nil
}

// NewInvocationEntry builds an InvocationEntry from argv, honoring
// SILK_HEADER_NOVERSION by omitting a trailing version annotation when
// that environment variable is set to a non-empty value.
func NewInvocationEntry(argv []string, version string) *InvocationEntry {
	line := joinArgs(argv)
	if version != "" && os.Getenv("SILK_HEADER_NOVERSION") == "" {
		line += " # " + version
	}
	return &InvocationEntry{CommandLine: line}
}

func joinArgs(argv []string) string {
	out := ""
	for i, a := range argv {
		if i > 0 {
			out += " "
		}
		out += a
	}
	return out
}

// PackedfileEntry records the packing parameters of a flow-record file:
// the start time of the interval it covers, the flowtype, and the
// sensor that produced it.
type PackedfileEntry struct {
	StartTimeMs uint64
	FlowType    uint32
	Sensor      uint32
}

func (e *PackedfileEntry) ID() EntryID { return EntryPackedfile }

func (e *PackedfileEntry) MarshalBinary() ([]byte, error) {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[0:8], e.StartTimeMs)
	binary.BigEndian.PutUint32(b[8:12], e.FlowType)
	binary.BigEndian.PutUint32(b[12:16], e.Sensor)
	return b, nil
}

// PrefixMapEntry references an external prefix map used to annotate
// this file's records, by version and name.
type PrefixMapEntry struct {
	Version uint32
	Name    string
}

func (e *PrefixMapEntry) ID() EntryID { return EntryPrefixMap }

func (e *PrefixMapEntry) MarshalBinary() ([]byte, error) {
	b := make([]byte, 4+len(e.Name)+1)
	binary.BigEndian.PutUint32(b[0:4], e.Version)
	copy(b[4:], e.Name)
	return b, nil
}

// AnnotationEntry is a free-form operator note attached to the file.
type AnnotationEntry struct {
	Text string
}

func (e *AnnotationEntry) ID() EntryID { return EntryAnnotation }
func (e *AnnotationEntry) MarshalBinary() ([]byte, error) { return []byte(e.Text), nil }

// ProbenameEntry records the name of the probe that collected the flow
// data packed into this file.
type ProbenameEntry struct {
	Name string
}

func (e *ProbenameEntry) ID() EntryID { return EntryProbename }
func (e *ProbenameEntry) MarshalBinary() ([]byte, error) { return []byte(e.Name), nil }

// TimezoneEntry records the timezone flow-record timestamps should be
// interpreted in, as an IANA zone name (e.g. "UTC", "America/Denver").
type TimezoneEntry struct {
	Zone string
}

func (e *TimezoneEntry) ID() EntryID { return EntryTimezone }
func (e *TimezoneEntry) MarshalBinary() ([]byte, error) { return []byte(e.Zone), nil }

// IPsetOptionsEntry records the address family and leaf-node encoding
// used by an ipset payload, needed to decode it without guessing.
type IPsetOptionsEntry struct {
	AddressWidth uint8 // 4 or 16
	NodeCount    uint32
	LeafCount    uint32
}

func (e *IPsetOptionsEntry) ID() EntryID { return EntryIPsetOptions }

func (e *IPsetOptionsEntry) MarshalBinary() ([]byte, error) {
	b := make([]byte, 9)
	b[0] = e.AddressWidth
	binary.BigEndian.PutUint32(b[1:5], e.NodeCount)
	binary.BigEndian.PutUint32(b[5:9], e.LeafCount)
	return b, nil
}

// BagOptionsEntry records a bag payload's key and counter typing, the
// minimum needed to decode the fixed-width (key, counter) records that
// follow without guessing.
type BagOptionsEntry struct {
	KeyType       uint16
	KeyLength     uint16
	CounterType   uint16
	CounterLength uint16
}

func (e *BagOptionsEntry) ID() EntryID { return EntryBag }

func (e *BagOptionsEntry) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint16(b[0:2], e.KeyType)
	binary.BigEndian.PutUint16(b[2:4], e.KeyLength)
	binary.BigEndian.PutUint16(b[4:6], e.CounterType)
	binary.BigEndian.PutUint16(b[6:8], e.CounterLength)
	return b, nil
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

func decodeEntry(id EntryID, payload []byte) (Entry, error) {
	buf := append([]byte(nil), payload...)
	switch id {
	case EntryPackedfile:
		if len(buf) < 16 {
			return nil, fmt.Errorf("silkheader: short packedfile entry")
		}
		return &PackedfileEntry{
			StartTimeMs: binary.BigEndian.Uint64(buf[0:8]),
			FlowType:    binary.BigEndian.Uint32(buf[8:12]),
			Sensor:      binary.BigEndian.Uint32(buf[12:16]),
		}, nil
	case EntryPrefixMap:
		if len(buf) < 4 {
			return nil, fmt.Errorf("silkheader: short prefixmap entry")
		}
		name := buf[4:]
		if i := indexZero(name); i >= 0 {
			name = name[:i]
		}
		return &PrefixMapEntry{
			Version: binary.BigEndian.Uint32(buf[0:4]),
			Name:    string(name),
		}, nil
	case EntryInvocation:
		return &InvocationEntry{CommandLine: string(buf)}, nil
	case EntryAnnotation:
		return &AnnotationEntry{Text: string(buf)}, nil
	case EntryProbename:
		return &ProbenameEntry{Name: string(buf)}, nil
	case EntryTimezone:
		return &TimezoneEntry{Zone: string(buf)}, nil
	case EntryBag:
		if len(buf) < 8 {
			return nil, fmt.Errorf("silkheader: short bag-options entry")
		}
		return &BagOptionsEntry{
			KeyType:       binary.BigEndian.Uint16(buf[0:2]),
			KeyLength:     binary.BigEndian.Uint16(buf[2:4]),
			CounterType:   binary.BigEndian.Uint16(buf[4:6]),
			CounterLength: binary.BigEndian.Uint16(buf[6:8]),
		}, nil
	case EntryIPsetOptions:
		if len(buf) < 9 {
			return nil, fmt.Errorf("silkheader: short ipset-options entry")
		}
		return &IPsetOptionsEntry{
			AddressWidth: buf[0],
			NodeCount:    binary.BigEndian.Uint32(buf[1:5]),
			LeafCount:    binary.BigEndian.Uint32(buf[5:9]),
		}, nil
	default:
		return &RawEntry{Kind: id, Payload: buf}, nil
	}
}
