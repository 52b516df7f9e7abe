// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package bag

// KeyType names the kind of value a bag's key column holds, mirroring
// SiLK's skBagFieldType_t enumeration closely enough for the
// CLI to pick sensible defaults without hardcoding widths everywhere.
type KeyType int

const (
	KeyCustom KeyType = iota
	KeySourceIPv4
	KeyDestIPv4
	KeyNextHopIPv4
	KeySourceIPv6
	KeyDestIPv6
	KeyNextHopIPv6
	KeySourcePort
	KeyDestPort
	KeyProtocol
	KeyInputInterface
	KeyOutputInterface
	KeySensor
)

// CounterType names the kind of quantity a bag's counter column
// accumulates, mirroring SiLK's skBagCounterType_t enumeration.
type CounterType int

const (
	CounterCustom CounterType = iota
	CounterFlowRecords
	CounterSumPackets
	CounterSumBytes
)

// FieldSpec names the byte width a field uses by default.
type FieldSpec struct {
	Name       string
	Type       KeyType
	KeyOctets  int
}

// FieldCatalog maps a flow field's CLI name (as used in the
// "--<field>-<measure>" flag family, e.g. "sip", "dport") to its
// default key type and width, the Go-shaped replacement for the
// original's skBagFieldTypeIterator_t.
var FieldCatalog = map[string]FieldSpec{
	"sip":   {Name: "sip", Type: KeySourceIPv4, KeyOctets: 4},
	"dip":   {Name: "dip", Type: KeyDestIPv4, KeyOctets: 4},
	"nhip":  {Name: "nhip", Type: KeyNextHopIPv4, KeyOctets: 4},
	"sport": {Name: "sport", Type: KeySourcePort, KeyOctets: 2},
	"dport": {Name: "dport", Type: KeyDestPort, KeyOctets: 2},
	"proto": {Name: "proto", Type: KeyProtocol, KeyOctets: 1},
	"input": {Name: "input", Type: KeyInputInterface, KeyOctets: 4},
	"output": {Name: "output", Type: KeyOutputInterface, KeyOctets: 4},
	"sensor": {Name: "sensor", Type: KeySensor, KeyOctets: 2},
}

// LookupField returns the catalog entry for name, and whether it was found.
func LookupField(name string) (FieldSpec, bool) {
	f, ok := FieldCatalog[name]
	return f, ok
}
