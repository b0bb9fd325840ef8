// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package history holds the bridge's shared state: the latest raw payload,
// the latest decoded grid and a bounded FIFO of recent grids.
//
// All access goes through one mutex. Callers never receive pointers into the
// state; Update hands a transaction to a closure and Snapshot returns values.
package history

import (
	"sync"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/grid"
)

// Capacity is the number of grids kept in history
const Capacity = 8

// Snapshot is a consistent read of the store
type Snapshot struct {
	RawLen     int
	HasGrid    bool
	Rows       int
	Cols       int
	HistoryLen int
}

// Store guards the bridge state
type Store struct {
	mu       sync.Mutex
	lastRaw  []byte
	lastGrid *grid.Frame
	history  []grid.Frame
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		history: make([]grid.Frame, 0, Capacity+1),
	}
}

// Tx is the view of the state available inside Update.
// It must not be retained after the closure returns.
type Tx struct {
	s *Store
}

// RecordRaw overwrites the latest raw payload
func (tx *Tx) RecordRaw(data []byte) {
	tx.s.lastRaw = append(tx.s.lastRaw[:0], data...)
}

// RecordGrid overwrites the latest grid and appends a copy to history,
// evicting the oldest entries beyond Capacity. Returns the history length.
func (tx *Tx) RecordGrid(f grid.Frame) int {
	latest := f.Clone()
	tx.s.lastGrid = &latest

	tx.s.history = append(tx.s.history, f.Clone())
	if over := len(tx.s.history) - Capacity; over > 0 {
		// Shift down instead of reslicing so the backing array stays bounded
		n := copy(tx.s.history, tx.s.history[over:])
		for i := n; i < len(tx.s.history); i++ {
			tx.s.history[i] = grid.Frame{}
		}
		tx.s.history = tx.s.history[:n]
	}
	return len(tx.s.history)
}

// Snapshot reads the state inside the current transaction
func (tx *Tx) Snapshot() Snapshot {
	snap := Snapshot{
		RawLen:     len(tx.s.lastRaw),
		HistoryLen: len(tx.s.history),
	}
	if tx.s.lastGrid != nil {
		snap.HasGrid = true
		snap.Rows = tx.s.lastGrid.Rows
		snap.Cols = tx.s.lastGrid.Cols
	}
	return snap
}

// Update runs fn with exclusive access to the state.
// The lock is released even if fn panics.
func (s *Store) Update(fn func(tx *Tx)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&Tx{s: s})
}

// RecordRaw overwrites the latest raw payload
func (s *Store) RecordRaw(data []byte) {
	s.Update(func(tx *Tx) {
		tx.RecordRaw(data)
	})
}

// RecordGrid records a decoded grid and returns the history length
func (s *Store) RecordGrid(f grid.Frame) int {
	var n int
	s.Update(func(tx *Tx) {
		n = tx.RecordGrid(f)
	})
	return n
}

// Snapshot returns raw length, latest grid dimensions and history length
// read together under the lock.
func (s *Store) Snapshot() Snapshot {
	var snap Snapshot
	s.Update(func(tx *Tx) {
		snap = tx.Snapshot()
	})
	return snap
}

// LastRaw returns a copy of the latest raw payload
func (s *Store) LastRaw() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.lastRaw...)
}

// LastGrid returns a copy of the latest grid, if any
func (s *Store) LastGrid() (grid.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastGrid == nil {
		return grid.Frame{}, false
	}
	return s.lastGrid.Clone(), true
}

// History returns copies of the stored grids, oldest first
func (s *Store) History() []grid.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]grid.Frame, len(s.history))
	for i, f := range s.history {
		out[i] = f.Clone()
	}
	return out
}
