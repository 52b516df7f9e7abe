// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package bag

import "github.com/karlgrep/netflowcore/ipaddr"

// Iterator walks a Bag's entries. Sorted iterators (NewIterator) visit
// keys in ascending unsigned order; unsorted iterators
// (NewUnsortedIterator) visit in the arbitrary order fixed at
// construction time — map range order snapshotted once, not a live
// guarantee of the underlying Go map's (randomized) iteration order.
// Both report ErrModified from Next once the bag's key width has
// changed underneath them.
type Iterator struct {
	bag   *Bag
	epoch int
	keys  []string
	pos   int
}

// NewIterator returns an ascending-key iterator over b's current contents.
func NewIterator(b *Bag) *Iterator {
	return &Iterator{bag: b, epoch: b.epoch, keys: b.sortedKeys()}
}

// NewUnsortedIterator returns an iterator over b's current contents in
// an arbitrary, but fixed-at-construction, order.
func NewUnsortedIterator(b *Bag) *Iterator {
	keys := make([]string, 0, len(b.counters))
	for k := range b.counters {
		keys = append(keys, k)
	}
	return &Iterator{bag: b, epoch: b.epoch, keys: keys}
}

// Next advances the iterator, reporting the next (key, counter) pair.
// ok is false once the iterator is exhausted. If the bag's key width
// has changed since construction, Next returns ErrModified.
func (it *Iterator) Next() (key []byte, counter uint64, ok bool, err error) {
	if it.bag.epoch != it.epoch {
		return nil, 0, false, ErrModified
	}
	for it.pos < len(it.keys) {
		k := it.keys[it.pos]
		it.pos++
		if c, present := it.bag.counters[k]; present {
			return []byte(k), c, true, nil
		}
		// key was removed since the iterator was built; skip it,
		// since visitation of affected keys is undefined in that case.
	}
	return nil, 0, false, nil
}

// KeyFormat selects how NextTyped renders keys.
type KeyFormat int

const (
	// KeyFormatAny picks the bag's natural format: KeyFormatIPAddr for
	// 16-octet keys, KeyFormatU32 otherwise.
	KeyFormatAny KeyFormat = iota

	// KeyFormatU32 renders keys as 32-bit unsigned integers. A
	// 16-octet key in ::ffff:0:0/96 is converted to its IPv4 integer;
	// any other 16-octet key cannot be rendered and is skipped.
	KeyFormatU32

	// KeyFormatIPAddr renders keys as IP addresses: IPv6 for 16-octet
	// keys, IPv4 (from the key's integer value) otherwise.
	KeyFormatIPAddr
)

// TypedKey is a key rendered per a requested KeyFormat. Format records
// the resolved rendering and is never KeyFormatAny.
type TypedKey struct {
	Format KeyFormat
	U32    uint32      // set when Format == KeyFormatU32
	Addr   ipaddr.Addr // set when Format == KeyFormatIPAddr
}

// NextTyped advances the iterator like Next, but renders the key per
// want. Keys the requested format cannot represent are skipped, not
// surfaced: asking for KeyFormatU32 over a 16-octet bag visits only
// the v4-mapped keys.
func (it *Iterator) NextTyped(want KeyFormat) (TypedKey, uint64, bool, error) {
	for {
		key, counter, ok, err := it.Next()
		if err != nil || !ok {
			return TypedKey{}, 0, ok, err
		}
		tk, renderable := renderKey(key, want)
		if !renderable {
			continue
		}
		return tk, counter, true, nil
	}
}

func renderKey(key []byte, want KeyFormat) (TypedKey, bool) {
	wide := len(key) == 16
	if want == KeyFormatAny {
		if wide {
			want = KeyFormatIPAddr
		} else {
			want = KeyFormatU32
		}
	}

	var narrow uint32
	if !wide {
		for _, c := range key {
			narrow = narrow<<8 | uint32(c)
		}
	}

	switch want {
	case KeyFormatU32:
		if !wide {
			return TypedKey{Format: KeyFormatU32, U32: narrow}, true
		}
		var b [16]byte
		copy(b[:], key)
		v4, err := ipaddr.FromV6Bytes(b).ToV4()
		if err != nil {
			return TypedKey{}, false
		}
		o := v4.As4()
		return TypedKey{
			Format: KeyFormatU32,
			U32:    uint32(o[0])<<24 | uint32(o[1])<<16 | uint32(o[2])<<8 | uint32(o[3]),
		}, true

	case KeyFormatIPAddr:
		if wide {
			var b [16]byte
			copy(b[:], key)
			return TypedKey{Format: KeyFormatIPAddr, Addr: ipaddr.FromV6Bytes(b)}, true
		}
		return TypedKey{Format: KeyFormatIPAddr, Addr: ipaddr.FromV4(narrow)}, true
	}
	return TypedKey{}, false
}
