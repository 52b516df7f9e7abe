// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package sparse_test

import (
	"testing"

	"github.com/karlgrep/netflowcore/internal/sparse"
	"github.com/stretchr/testify/assert"
)

func TestInsertGetDelete(t *testing.T) {
	var a sparse.Array256[string]

	existed := a.InsertAt(5, "five")
	assert.False(t, existed)
	existed = a.InsertAt(5, "FIVE")
	assert.True(t, existed)

	v, ok := a.Get(5)
	assert.True(t, ok)
	assert.Equal(t, "FIVE", v)

	_, ok = a.Get(6)
	assert.False(t, ok)

	v, existed = a.DeleteAt(5)
	assert.True(t, existed)
	assert.Equal(t, "FIVE", v)
	assert.Equal(t, 0, a.Len())
}

func TestOrderingPreservedAcrossSlots(t *testing.T) {
	var a sparse.Array256[int]
	a.InsertAt(200, 200)
	a.InsertAt(5, 5)
	a.InsertAt(100, 100)

	assert.Equal(t, []int{5, 100, 200}, a.Items)
}

func TestClone(t *testing.T) {
	var a sparse.Array256[int]
	a.InsertAt(1, 10)

	b := a.Clone()
	b.InsertAt(2, 20)

	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 2, b.Len())
}
