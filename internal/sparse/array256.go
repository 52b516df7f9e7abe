// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

// Package sparse implements a popcount-compressed array of up to 256
// slots, the building block for a radix tree node's child table (one
// slot per possible octet value at a stride).
package sparse

import "github.com/karlgrep/netflowcore/internal/bitset"

// Array256 holds up to 256 items of type T, indexed by slot [0,255],
// but only allocates storage for the slots actually occupied. A
// bitset.BitSet256 records which slots are occupied; Items holds the
// occupied values in slot order.
type Array256[T any] struct {
	bitset.BitSet256
	Items []T
}

// Get returns the value at slot i and whether it was present.
func (a *Array256[T]) Get(i uint) (value T, ok bool) {
	if a.Test(i) {
		return a.Items[a.Rank0(i)], true
	}
	return
}

// MustGet returns the value at slot i. Callers must have already
// confirmed presence with Test; otherwise the result is undefined.
func (a *Array256[T]) MustGet(i uint) T {
	return a.Items[a.Rank0(i)]
}

// Len reports how many slots are occupied.
func (a *Array256[T]) Len() int {
	return len(a.Items)
}

// Clone returns a shallow copy: the bitset and the Items slice are
// copied, but element values are not deep-cloned.
func (a *Array256[T]) Clone() *Array256[T] {
	if a == nil {
		return nil
	}
	return &Array256[T]{
		BitSet256: a.BitSet256,
		Items:     append(a.Items[:0:0], a.Items...),
	}
}

// InsertAt stores value at slot i, overwriting any existing value and
// reporting whether the slot was already occupied.
func (a *Array256[T]) InsertAt(i uint, value T) (existed bool) {
	if a.Test(i) {
		a.Items[a.Rank0(i)] = value
		return true
	}

	a.BitSet256.Set(i)
	a.insertItem(a.Rank0(i), value)
	return false
}

// DeleteAt removes the value at slot i, if present, shifting later
// items down and clearing the freed tail slot.
func (a *Array256[T]) DeleteAt(i uint) (value T, existed bool) {
	if a.Len() == 0 || !a.Test(i) {
		return
	}

	rank0 := a.Rank0(i)
	value = a.Items[rank0]

	a.deleteItem(rank0)
	a.BitSet256.Clear(i)

	return value, true
}

// insertItem inserts item at slice index i, shifting the tail right by one.
func (a *Array256[T]) insertItem(i int, item T) {
	if len(a.Items) < cap(a.Items) {
		a.Items = a.Items[:len(a.Items)+1]
	} else {
		var zero T
		a.Items = append(a.Items, zero)
	}

	copy(a.Items[i+1:], a.Items[i:])
	a.Items[i] = item
}

// deleteItem removes the item at slice index i, shifting the tail left by one.
func (a *Array256[T]) deleteItem(i int) {
	var zero T

	copy(a.Items[i:], a.Items[i+1:])

	last := len(a.Items) - 1
	a.Items[last] = zero
	a.Items = a.Items[:last]
}
