// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package cbuf_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/karlgrep/netflowcore/cbuf"
)

func mustWrite(t *testing.T, b *cbuf.Buffer, payload string) {
	t.Helper()
	wb, err := b.GetWriteBlock(len(payload), false)
	require.NoError(t, err)
	n := copy(wb.Payload, payload)
	require.NoError(t, wb.Commit(n))
}

func TestSingleWriterReaderOrderPreserved(t *testing.T) {
	b, err := cbuf.New(256, 3*256)
	require.NoError(t, err)

	payloads := []string{"alpha", "bravo", "charlie", "delta"}
	for _, p := range payloads {
		mustWrite(t, b, p)
	}

	for _, want := range payloads {
		rb, err := b.GetReadBlock(false)
		require.NoError(t, err)
		require.Equal(t, want, string(rb.Payload))
		require.NoError(t, rb.Release())
	}
}

func TestShutdownDrainsCommittedBlocksThenStops(t *testing.T) {
	b, err := cbuf.New(512, 512)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		mustWrite(t, b, "xxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx"[:10])
	}

	rb, err := b.GetReadBlock(false)
	require.NoError(t, err)
	require.NoError(t, rb.Release())

	b.Stop()

	rb2, err := b.GetReadBlock(false)
	require.NoError(t, err)
	require.NoError(t, rb2.Release())

	rb3, err := b.GetReadBlock(false)
	require.NoError(t, err)
	require.NoError(t, rb3.Release())

	_, err = b.GetReadBlock(false)
	require.ErrorIs(t, err, cbuf.ErrStopped)

	_, err = b.GetWriteBlock(10, false)
	require.ErrorIs(t, err, cbuf.ErrStopped)

	require.NoError(t, b.Destroy())
}

func TestWriteAfterStopFailsImmediatelyEvenWithRoom(t *testing.T) {
	b, err := cbuf.New(4096, 4096)
	require.NoError(t, err)
	b.Stop()
	_, err = b.GetWriteBlock(8, false)
	require.ErrorIs(t, err, cbuf.ErrStopped)
}

func TestNoWaitWouldBlock(t *testing.T) {
	itemSize := 16
	b, err := cbuf.NewFixed(itemSize, 3)
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		wb, err := b.GetWriteBlock(itemSize, true)
		if err != nil {
			require.ErrorIs(t, err, cbuf.ErrWouldBlock)
			require.Equal(t, 3, i)
			return
		}
		require.NoError(t, wb.Commit(itemSize))
	}
	t.Fatal("expected WouldBlock on the 4th commit before any release")
}

func TestFixedItemModeRejectsWrongSize(t *testing.T) {
	b, err := cbuf.NewFixed(16, 4)
	require.NoError(t, err)
	_, err = b.GetWriteBlock(8, false)
	require.ErrorIs(t, err, cbuf.ErrInput)
}

func TestUncommittedBlockGuard(t *testing.T) {
	b, err := cbuf.New(256, 256)
	require.NoError(t, err)
	_, err = b.GetWriteBlock(10, false)
	require.NoError(t, err)
	_, err = b.GetWriteBlock(10, false)
	require.ErrorIs(t, err, cbuf.ErrUncommittedBlock)
}

// TestConcurrentProducerConsumerPreservesFIFO runs a producer and
// consumer goroutine against a wrap-prone single chunk, coordinated
// with errgroup, and checks the reader observes exactly the sequence
// the writer committed.
func TestConcurrentProducerConsumerPreservesFIFO(t *testing.T) {
	b, err := cbuf.New(512, 512)
	require.NoError(t, err)

	const n = 500
	var g errgroup.Group

	g.Go(func() error {
		for i := 0; i < n; i++ {
			wb, err := b.GetWriteBlock(8, false)
			if err != nil {
				return err
			}
			for j := range wb.Payload {
				wb.Payload[j] = byte(i)
			}
			if err := wb.Commit(8); err != nil {
				return err
			}
		}
		return nil
	})

	g.Go(func() error {
		for i := 0; i < n; i++ {
			rb, err := b.GetReadBlock(false)
			if err != nil {
				return err
			}
			for _, v := range rb.Payload {
				if v != byte(i) {
					t.Errorf("block %d: got %v, want all bytes == %d", i, rb.Payload, byte(i))
				}
			}
			if err := rb.Release(); err != nil {
				return err
			}
		}
		return nil
	})

	require.NoError(t, g.Wait())
}

func TestStatsTracksCommitsAndReleases(t *testing.T) {
	b, err := cbuf.New(256, 256)
	require.NoError(t, err)
	mustWrite(t, b, "hello")
	rb, err := b.GetReadBlock(false)
	require.NoError(t, err)
	require.NoError(t, rb.Release())

	st := b.Stats()
	require.Equal(t, uint64(1), st.Commits)
	require.Equal(t, uint64(1), st.Releases)
	require.Equal(t, uint64(5), st.BytesWritten)
}
