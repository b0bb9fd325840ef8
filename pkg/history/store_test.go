// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package history

import (
	"sync"
	"testing"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frameOf builds a 1x1 frame tagged with v so ordering can be checked
func frameOf(t *testing.T, v float64) grid.Frame {
	t.Helper()
	f, err := grid.NewFrame([][]float64{{v}})
	require.NoError(t, err)
	return f
}

func TestStore_Empty(t *testing.T) {
	s := NewStore()
	snap := s.Snapshot()
	assert.Equal(t, Snapshot{}, snap)

	_, ok := s.LastGrid()
	assert.False(t, ok)
	assert.Empty(t, s.LastRaw())
	assert.Empty(t, s.History())
}

func TestStore_RecordRawOverwrites(t *testing.T) {
	s := NewStore()
	s.RecordRaw([]byte("first payload"))
	s.RecordRaw([]byte("abc"))

	assert.Equal(t, []byte("abc"), s.LastRaw())
	assert.Equal(t, 3, s.Snapshot().RawLen)

	s.RecordRaw(nil)
	assert.Equal(t, 0, s.Snapshot().RawLen)
}

func TestStore_RecordRawCopies(t *testing.T) {
	s := NewStore()
	buf := []byte("xyz")
	s.RecordRaw(buf)
	buf[0] = 'q'
	assert.Equal(t, []byte("xyz"), s.LastRaw())
}

func TestStore_EvictsOldestFirst(t *testing.T) {
	s := NewStore()
	for i := 1; i <= 9; i++ {
		n := s.RecordGrid(frameOf(t, float64(i)))
		if i <= Capacity {
			assert.Equal(t, i, n)
		} else {
			assert.Equal(t, Capacity, n)
		}
	}

	h := s.History()
	require.Len(t, h, Capacity)
	for i, f := range h {
		assert.Equal(t, float64(i+2), f.At(0, 0), "entry %d", i)
	}
}

func TestStore_NeverExceedsCapacity(t *testing.T) {
	s := NewStore()
	for i := 0; i < 100; i++ {
		s.RecordGrid(frameOf(t, float64(i)))
		require.LessOrEqual(t, s.Snapshot().HistoryLen, Capacity)
	}
	h := s.History()
	assert.Equal(t, float64(92), h[0].At(0, 0))
	assert.Equal(t, float64(99), h[Capacity-1].At(0, 0))
}

func TestStore_LastGridMatchesNewestHistory(t *testing.T) {
	s := NewStore()
	for i := 0; i < 12; i++ {
		s.RecordGrid(frameOf(t, float64(i)))
		last, ok := s.LastGrid()
		require.True(t, ok)
		h := s.History()
		assert.True(t, last.Equal(h[len(h)-1]))
	}
}

func TestStore_GridIsCopied(t *testing.T) {
	s := NewStore()
	f, err := grid.NewFrame([][]float64{{1, 2}, {3, 4}})
	require.NoError(t, err)
	s.RecordGrid(f)
	f.Data[0][0] = 42

	last, _ := s.LastGrid()
	assert.Equal(t, 1.0, last.At(0, 0))

	last.Data[1][1] = -7
	h := s.History()
	assert.Equal(t, 4.0, h[0].At(1, 1))
}

func TestStore_SnapshotDims(t *testing.T) {
	s := NewStore()
	f, err := grid.NewFrame([][]float64{{1, 2, 3}, {4, 5, 6}})
	require.NoError(t, err)

	s.Update(func(tx *Tx) {
		tx.RecordRaw([]byte("payload"))
		tx.RecordGrid(f)
	})

	assert.Equal(t, Snapshot{RawLen: 7, HasGrid: true, Rows: 2, Cols: 3, HistoryLen: 1}, s.Snapshot())
}

func TestStore_UpdateReleasesOnPanic(t *testing.T) {
	s := NewStore()
	func() {
		defer func() { _ = recover() }()
		s.Update(func(tx *Tx) {
			tx.RecordRaw([]byte("ab"))
			panic("boom")
		})
	}()

	// Lock must be free again
	assert.Equal(t, 2, s.Snapshot().RawLen)
}

func TestStore_ConcurrentSnapshotsAreConsistent(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup

	// Writer records raw length == rows so a torn read is detectable
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 500; i++ {
			rows := make([][]float64, 1+i%5)
			for r := range rows {
				rows[r] = []float64{0.5}
			}
			f, _ := grid.NewFrame(rows)
			s.Update(func(tx *Tx) {
				tx.RecordRaw(make([]byte, f.Rows))
				tx.RecordGrid(f)
			})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				snap := s.Snapshot()
				if snap.HasGrid && snap.RawLen != snap.Rows {
					t.Errorf("torn snapshot: %+v", snap)
					return
				}
			}
		}()
	}

	wg.Wait()
}
