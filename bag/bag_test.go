// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package bag_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/karlgrep/netflowcore/bag"
	"github.com/karlgrep/netflowcore/ipaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func be16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

func be32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func TestCounterSetGet(t *testing.T) {
	b := bag.New(2)
	require.NoError(t, b.CounterSet(be16(80), 100))
	assert.EqualValues(t, 100, b.CounterGet(be16(80)))
	assert.EqualValues(t, 0, b.CounterGet(be16(443)))
}

func TestCounterSetZeroRemoves(t *testing.T) {
	b := bag.New(2)
	require.NoError(t, b.CounterSet(be16(80), 100))
	require.NoError(t, b.CounterSet(be16(80), 0))
	assert.Equal(t, 0, b.Len())
}

func TestCounterAddSaturates(t *testing.T) {
	b := bag.New(2)
	require.NoError(t, b.CounterSet(be16(80), bag.CounterMax-1))

	got, err := b.CounterAdd(be16(80), 1)
	require.NoError(t, err)
	assert.EqualValues(t, bag.CounterMax, got)

	got, err = b.CounterAdd(be16(80), 1)
	assert.ErrorIs(t, err, bag.ErrOpBounds)
	assert.EqualValues(t, bag.CounterMax, got, "counter must be left unchanged on OP_BOUNDS")
}

func TestCounterSubtractUnderflowAndMissingKey(t *testing.T) {
	b := bag.New(2)
	require.NoError(t, b.CounterSet(be16(80), 5))

	_, err := b.CounterSubtract(be16(80), 10)
	assert.ErrorIs(t, err, bag.ErrOpBounds)

	_, err = b.CounterSubtract(be16(443), 1)
	assert.ErrorIs(t, err, bag.ErrKeyNotFound)

	got, err := b.CounterSubtract(be16(443), 0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, got)
}

func TestIncrementDecrement(t *testing.T) {
	b := bag.New(1)
	got, err := b.Increment([]byte{6})
	require.NoError(t, err)
	assert.EqualValues(t, 1, got)

	got, err = b.Decrement([]byte{6})
	require.NoError(t, err)
	assert.EqualValues(t, 0, got)
	assert.Equal(t, 0, b.Len(), "counter hitting zero removes the key")
}

func TestPromotionOnWiderInsert(t *testing.T) {
	b := bag.New(2)
	require.NoError(t, b.CounterSet(be16(80), 1))
	require.NoError(t, b.CounterSet(be16(443), 1))
	assert.Equal(t, 2, b.KeyWidth())

	ipKey := be32(16909060) // 1.2.3.4
	require.NoError(t, b.CounterSet(ipKey, 1))
	require.Equal(t, 4, b.KeyWidth(), "inserting a wider key promotes the bag")

	it := bag.NewIterator(b)
	var keys []uint64
	for {
		k, _, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		var v uint64
		for _, byt := range k {
			v = v<<8 | uint64(byt)
		}
		keys = append(keys, v)
	}
	assert.Equal(t, []uint64{80, 443, 16909060}, keys)
}

func TestCounterGetWithOversizedKeyIsAbsentNotPromoted(t *testing.T) {
	b := bag.New(2)
	require.NoError(t, b.CounterSet(be16(80), 1))

	assert.EqualValues(t, 0, b.CounterGet(be32(1)), "CounterGet never auto-promotes")
	assert.Equal(t, 2, b.KeyWidth())
}

func TestAddBagSaturatingCallback(t *testing.T) {
	dst := bag.New(4)
	require.NoError(t, dst.CounterSet(be32(16909060), bag.CounterMax-10))

	src := bag.New(4)
	require.NoError(t, src.CounterSet(be32(16909060), 20))

	err := dst.AddBag(src, bag.SaturateCallback)
	require.NoError(t, err)
	assert.EqualValues(t, bag.CounterMax, dst.CounterGet(be32(16909060)))
}

func TestAddBagDefaultCallbackSaturates(t *testing.T) {
	dst := bag.New(4)
	require.NoError(t, dst.CounterSet(be32(1), bag.CounterMax-1))
	src := bag.New(4)
	require.NoError(t, src.CounterSet(be32(1), 5))

	require.NoError(t, dst.AddBag(src, nil))
	assert.EqualValues(t, bag.CounterMax, dst.CounterGet(be32(1)))
}

func TestAddBagCallbackAbortStopsMerge(t *testing.T) {
	dst := bag.New(4)
	require.NoError(t, dst.CounterSet(be32(1), bag.CounterMax-1))
	src := bag.New(4)
	require.NoError(t, src.CounterSet(be32(1), 5))

	sentinel := errors.New("merge aborted")
	err := dst.AddBag(src, func(_ []byte, _, _ uint64) (uint64, error) {
		return 0, sentinel
	})
	assert.ErrorIs(t, err, sentinel)
	assert.EqualValues(t, bag.CounterMax-1, dst.CounterGet(be32(1)), "aborted merge leaves the counter untouched")
}

func TestNextTypedNaturalFormats(t *testing.T) {
	b := bag.New(2)
	require.NoError(t, b.CounterSet(be16(80), 1))

	it := bag.NewIterator(b)
	tk, counter, ok, err := it.NextTyped(bag.KeyFormatAny)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bag.KeyFormatU32, tk.Format, "narrow keys render as u32 by default")
	assert.EqualValues(t, 80, tk.U32)
	assert.EqualValues(t, 1, counter)

	wide := bag.New(16)
	key := make([]byte, 16)
	key[15] = 9
	require.NoError(t, wide.CounterSet(key, 2))

	it = bag.NewIterator(wide)
	tk, _, ok, err = it.NextTyped(bag.KeyFormatAny)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, bag.KeyFormatIPAddr, tk.Format, "16-octet keys render as addresses by default")
	assert.True(t, tk.Addr.Is6())
}

func TestNextTypedU32ConvertsMappedAndSkipsOtherV6(t *testing.T) {
	b := bag.New(16)

	mapped := ipaddr.FromV4Octets(1, 2, 3, 4).ToV6().As16()
	require.NoError(t, b.CounterSet(mapped[:], 10))

	var plain [16]byte
	plain[0] = 0x20
	plain[1] = 0x01 // 2001:... — not v4-mapped
	require.NoError(t, b.CounterSet(plain[:], 20))

	it := bag.NewIterator(b)
	tk, counter, ok, err := it.NextTyped(bag.KeyFormatU32)
	require.NoError(t, err)
	require.True(t, ok)
	assert.EqualValues(t, 16909060, tk.U32, "::ffff:1.2.3.4 converts to the integer form of 1.2.3.4")
	assert.EqualValues(t, 10, counter)

	_, _, ok, err = it.NextTyped(bag.KeyFormatU32)
	require.NoError(t, err)
	assert.False(t, ok, "the non-mapped v6 key is skipped, exhausting the iterator")
}

func TestModifyNarrowingDropsOutOfRangeKeys(t *testing.T) {
	b := bag.New(4)
	require.NoError(t, b.CounterSet(be32(80), 1))
	require.NoError(t, b.CounterSet(be32(16909060), 1))

	require.NoError(t, b.Modify(bag.KeyCustom, bag.CounterCustom, 2))
	assert.Equal(t, 1, b.Len())
	assert.EqualValues(t, 1, b.CounterGet(be16(80)))
}

func TestModifyRetagsTypes(t *testing.T) {
	b := bag.NewTyped(bag.KeySourcePort, bag.CounterFlowRecords, 2)
	require.NoError(t, b.CounterSet(be16(80), 7))

	require.NoError(t, b.Modify(bag.KeyDestPort, bag.CounterSumBytes, 2))
	assert.Equal(t, bag.KeyDestPort, b.KeyType())
	assert.Equal(t, bag.CounterSumBytes, b.CounterType())
	assert.EqualValues(t, 7, b.CounterGet(be16(80)), "a same-width retag keeps every entry")

	err := b.Modify(bag.KeyCustom, bag.CounterCustom, 3)
	assert.ErrorIs(t, err, bag.ErrInput)
}

func TestIteratorInvalidatedByWidthChange(t *testing.T) {
	b := bag.New(2)
	require.NoError(t, b.CounterSet(be16(80), 1))

	it := bag.NewIterator(b)
	require.NoError(t, b.CounterSet(be32(16909060), 1))

	_, _, _, err := it.Next()
	assert.ErrorIs(t, err, bag.ErrModified)
}

func TestCopyIsIndependent(t *testing.T) {
	b := bag.New(2)
	require.NoError(t, b.CounterSet(be16(80), 1))

	c := b.Copy()
	require.NoError(t, c.CounterSet(be16(80), 99))

	assert.EqualValues(t, 1, b.CounterGet(be16(80)))
	assert.EqualValues(t, 99, c.CounterGet(be16(80)))
}

func TestWriteReadRoundTrip(t *testing.T) {
	b := bag.New(2)
	require.NoError(t, b.CounterSet(be16(80), 10))
	require.NoError(t, b.CounterSet(be16(443), 20))

	var buf bytes.Buffer
	_, err := b.WriteTo(&buf)
	require.NoError(t, err)

	got := bag.New(2)
	_, err = got.ReadFrom(&buf)
	require.NoError(t, err)

	assert.EqualValues(t, 10, got.CounterGet(be16(80)))
	assert.EqualValues(t, 20, got.CounterGet(be16(443)))
}

func TestProcessStream(t *testing.T) {
	b := bag.New(2)
	require.NoError(t, b.CounterSet(be16(80), 10))

	var buf bytes.Buffer
	_, err := b.WriteTo(&buf)
	require.NoError(t, err)

	var got []uint64
	err = bag.ProcessStream(&buf, func(key []byte, counter uint64) bool {
		got = append(got, counter)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []uint64{10}, got)
}
