// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package bag implements a mapping from a fixed-width integer or IP
// key to a saturating 64-bit counter, with automatic promotion between
// key widths 1, 2, 4 and 16 octets as wider keys are inserted.
//
// SiLK's skbag groups entries in a fixed-depth byte-fanout tree, one
// level per key octet, so that promoting the width only means
// re-rooting existing leaves one level deeper. A Go map keyed by the
// big-endian byte string gives the same externally observable
// behavior — same promotion rule, same overflow contract, same sorted
// iteration — without hand-rolling a byte trie for what is, at this
// layer, a pure key/counter association; ipset's radix tree exists
// because CIDR containment needs prefix matching, which a Bag key
// never does.
package bag

import (
	"errors"
	"sort"
)

func anyNonZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return true
		}
	}
	return false
}

// Bag maps fixed-width keys to saturating counters. It is typed: the
// key and counter columns each carry a type tag (KeyCustom/
// CounterCustom by default) recording what kind of field they hold, so
// a file written with WriteTo tells a reader what it's looking at
// without the reader having to guess from context.
type Bag struct {
	keyWidth    int // 1, 2, 4, or 16
	keyType     KeyType
	counterType CounterType
	counters    map[string]uint64
	epoch       int // bumped on every width change, invalidates iterators
}

// New returns an empty, untyped bag (KeyCustom/CounterCustom) with the
// given initial key width (1, 2, 4, or 16 octets).
func New(keyWidth int) *Bag {
	return NewTyped(KeyCustom, CounterCustom, keyWidth)
}

// NewTyped returns an empty bag tagged with the given key and counter
// types and initial key width (1, 2, 4, or 16 octets), mirroring
// SiLK's skBagCreateTyped.
func NewTyped(keyType KeyType, counterType CounterType, keyWidth int) *Bag {
	if !validWidth(keyWidth) {
		panic("bag: key width must be 1, 2, 4, or 16")
	}
	return &Bag{
		keyWidth:    keyWidth,
		keyType:     keyType,
		counterType: counterType,
		counters:    make(map[string]uint64),
	}
}

// KeyType reports the bag's key type tag.
func (b *Bag) KeyType() KeyType { return b.keyType }

// CounterType reports the bag's counter type tag.
func (b *Bag) CounterType() CounterType { return b.counterType }

func validWidth(w int) bool { return w == 1 || w == 2 || w == 4 || w == 16 }

// nextWidth returns the narrowest promotion-chain width (1->2->4->16)
// that is at least as wide as n, or 0 if n exceeds 16.
func nextWidth(n int) int {
	for _, w := range [...]int{1, 2, 4, 16} {
		if n <= w {
			return w
		}
	}
	return 0
}

// KeyWidth reports the bag's current key width in octets.
func (b *Bag) KeyWidth() int { return b.keyWidth }

// Len reports the number of distinct keys stored.
func (b *Bag) Len() int { return len(b.counters) }

// promote rebuilds the bag at a wider key width, zero-extending every
// existing key on the left (big-endian, so numeric order is
// preserved). Promotion walks the old contents once into a fresh
// map; there is no in-place mutation mid-walk.
func (b *Bag) promote(width int) {
	fresh := make(map[string]uint64, len(b.counters))
	for k, v := range b.counters {
		fresh[string(padKey([]byte(k), width))] = v
	}
	b.counters = fresh
	b.keyWidth = width
	b.epoch++
}

func padKey(key []byte, width int) []byte {
	if len(key) == width {
		return key
	}
	out := make([]byte, width)
	copy(out[width-len(key):], key)
	return out
}

// resolveKey normalizes key to the bag's width, promoting if key is
// wider and autoPromote is true. It returns ErrKeyRange if key is wider
// than the bag's width and promotion is disallowed.
func (b *Bag) resolveKey(key []byte, autoPromote bool) ([]byte, error) {
	need := nextWidth(len(key))
	if need == 0 {
		return nil, ErrInput
	}
	if need > b.keyWidth {
		if !autoPromote {
			return nil, ErrKeyRange
		}
		b.promote(need)
	}
	return padKey(key, b.keyWidth), nil
}

// CounterSet stores value under key, promoting the bag if key is
// wider than the current width. Storing 0 removes the key (matching
// SiLK's "setting a counter to zero removes the key" contract).
func (b *Bag) CounterSet(key []byte, value uint64) error {
	k, err := b.resolveKey(key, true)
	if err != nil {
		return err
	}
	if value == 0 {
		delete(b.counters, string(k))
		return nil
	}
	b.counters[string(k)] = value
	return nil
}

// CounterGet returns the counter stored at key, or 0 if absent. A key
// wider than the bag's width is treated as simply absent (callers that
// care about the distinction should check KeyWidth first).
func (b *Bag) CounterGet(key []byte) uint64 {
	k, err := b.resolveKey(key, false)
	if err != nil {
		return 0
	}
	return b.counters[string(k)]
}

// CounterAdd adds delta to the counter at key, inserting it at delta if
// absent, promoting the bag's width if key is wider. It returns
// ErrOpBounds (and leaves the counter unchanged) if the result would
// exceed CounterMax.
func (b *Bag) CounterAdd(key []byte, delta uint64) (uint64, error) {
	k, err := b.resolveKey(key, true)
	if err != nil {
		return 0, err
	}
	cur := b.counters[string(k)]
	next := cur + delta
	if next < cur || next > CounterMax {
		return cur, ErrOpBounds
	}
	b.counters[string(k)] = next
	return next, nil
}

// CounterSubtract subtracts delta from the counter at key. If delta is
// zero and the key is absent, it succeeds reporting 0. Otherwise the
// key must already exist and the subtraction must not underflow below
// zero; ErrKeyNotFound and ErrOpBounds are returned respectively.
func (b *Bag) CounterSubtract(key []byte, delta uint64) (uint64, error) {
	k, err := b.resolveKey(key, true)
	if err != nil {
		return 0, err
	}
	cur, ok := b.counters[string(k)]
	if !ok {
		if delta == 0 {
			return 0, nil
		}
		return 0, ErrKeyNotFound
	}
	if delta > cur {
		return cur, ErrOpBounds
	}
	next := cur - delta
	if next == 0 {
		delete(b.counters, string(k))
	} else {
		b.counters[string(k)] = next
	}
	return next, nil
}

// Increment is a convenience wrapper over CounterAdd with Δ=1,
// mirroring SiLK's skBagCounterIncrement macro.
func (b *Bag) Increment(key []byte) (uint64, error) { return b.CounterAdd(key, 1) }

// Decrement is a convenience wrapper over CounterSubtract with Δ=1,
// mirroring SiLK's skBagCounterDecrement macro.
func (b *Bag) Decrement(key []byte) (uint64, error) { return b.CounterSubtract(key, 1) }

// BoundsCallback reconciles a counter overflow encountered during
// AddBag: given the key, the destination's current counter and the
// source's counter about to be merged in, it returns the replacement
// value to store (which must be in [0, CounterMax]) or an error to
// abort the merge entirely.
type BoundsCallback func(key []byte, dst, src uint64) (uint64, error)

// SaturateCallback is a ready-made BoundsCallback that clamps to
// CounterMax instead of failing.
func SaturateCallback(_ []byte, _, _ uint64) (uint64, error) { return CounterMax, nil }

// AddBag merges every (key, counter) pair from src into b, adding
// counters together. On overflow, cb is invoked to reconcile; if cb is
// nil, the overflowing entry is left at CounterMax (SaturateCallback's
// behavior). Any error other than overflow, from the add itself or
// from cb, aborts the merge; a cb replacement above CounterMax is
// rejected with ErrInput.
func (b *Bag) AddBag(src *Bag, cb BoundsCallback) error {
	if cb == nil {
		cb = SaturateCallback
	}
	for k, sc := range src.counters {
		key := []byte(k)
		_, err := b.CounterAdd(key, sc)
		if err == nil {
			continue
		}
		if !errors.Is(err, ErrOpBounds) {
			return err
		}
		replacement, cerr := cb(key, b.CounterGet(key), sc)
		if cerr != nil {
			return cerr
		}
		if replacement > CounterMax {
			return ErrInput
		}
		if err := b.CounterSet(key, replacement); err != nil {
			return err
		}
	}
	return nil
}

// Copy returns a deep copy of b.
func (b *Bag) Copy() *Bag {
	out := &Bag{
		keyWidth:    b.keyWidth,
		keyType:     b.keyType,
		counterType: b.counterType,
		counters:    make(map[string]uint64, len(b.counters)),
	}
	for k, v := range b.counters {
		out.counters[k] = v
	}
	return out
}

// Modify changes the bag's typing and key width in place. Narrowing
// the key drops every key whose significant bytes do not fit the new
// width (i.e. whose leading bytes beyond the new width are non-zero);
// widening zero-extends as promote does. The type tags are retagged
// unconditionally; only a width change invalidates iterators.
func (b *Bag) Modify(keyType KeyType, counterType CounterType, keyWidth int) error {
	if !validWidth(keyWidth) {
		return ErrInput
	}
	b.keyType = keyType
	b.counterType = counterType
	if keyWidth == b.keyWidth {
		return nil
	}
	if keyWidth > b.keyWidth {
		b.promote(keyWidth)
		return nil
	}

	fresh := make(map[string]uint64, len(b.counters))
	drop := b.keyWidth - keyWidth
	for k, v := range b.counters {
		kb := []byte(k)
		if anyNonZero(kb[:drop]) {
			continue
		}
		fresh[string(kb[drop:])] = v
	}
	b.counters = fresh
	b.keyWidth = keyWidth
	b.epoch++
	return nil
}

// sortedKeys returns every key, ascending by unsigned big-endian value.
func (b *Bag) sortedKeys() []string {
	keys := make([]string, 0, len(b.counters))
	for k := range b.counters {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
