// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package statusfeed exposes a running bridge over WebSocket.
//
// Two endpoints are served: /write accepts payloads exactly as the BLE write
// characteristic would, and /status pushes a CBOR Frame after every handled
// write. Frames use small integer keys to stay compact on the wire.
package statusfeed

import (
	"fmt"
	"time"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/bridge"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/nodestate"
	"github.com/fxamacker/cbor/v2"
)

// Frame is one status update on the /status feed
type Frame struct {
	Time       int64   `cbor:"0,keyasint"`  // unix milliseconds
	Event      bool    `cbor:"1,keyasint"`  // false for the snapshot sent on connect
	Outcome    uint8   `cbor:"2,keyasint"`  // bridge.Outcome
	RawLen     uint32  `cbor:"3,keyasint"`  // last_raw length
	HasGrid    bool    `cbor:"4,keyasint"`  // last_grid present
	Rows       uint32  `cbor:"5,keyasint"`  // last_grid rows
	Cols       uint32  `cbor:"6,keyasint"`  // last_grid cols
	HistoryLen uint32  `cbor:"7,keyasint"`  // history length
	States     []byte  `cbor:"8,keyasint,omitempty"`
	Scalar     float32 `cbor:"9,keyasint,omitempty"`
	Error      string  `cbor:"10,keyasint,omitempty"`
	Status     string  `cbor:"11,keyasint"`
	Writes     uint64  `cbor:"12,keyasint"`
	Forwarded  uint64  `cbor:"13,keyasint"`
	Errors     uint64  `cbor:"14,keyasint"`
}

// FromReport builds an event frame from a handled write
func FromReport(rep bridge.Report, status string, stats bridge.Statistics) Frame {
	f := Frame{
		Time:       rep.Time.UnixMilli(),
		Event:      true,
		Outcome:    uint8(rep.Outcome),
		RawLen:     uint32(rep.Snapshot.RawLen),
		HasGrid:    rep.Snapshot.HasGrid,
		Rows:       uint32(rep.Snapshot.Rows),
		Cols:       uint32(rep.Snapshot.Cols),
		HistoryLen: uint32(rep.Snapshot.HistoryLen),
		Scalar:     rep.Scalar,
		Status:     status,
		Writes:     stats.TotalWrites,
		Forwarded:  stats.Forwarded,
		Errors:     stats.Errors(),
	}
	if rep.Vector != nil {
		f.States = rep.Vector.Bytes()
	}
	if rep.Err != nil {
		f.Error = rep.Err.Error()
	}
	return f
}

// SnapshotFrame describes the bridge without a triggering write
func SnapshotFrame(b *bridge.Bridge) Frame {
	snap := b.Store().Snapshot()
	stats := b.Statistics()
	return Frame{
		Time:       time.Now().UnixMilli(),
		RawLen:     uint32(snap.RawLen),
		HasGrid:    snap.HasGrid,
		Rows:       uint32(snap.Rows),
		Cols:       uint32(snap.Cols),
		HistoryLen: uint32(snap.HistoryLen),
		Status:     b.Status(),
		Writes:     stats.TotalWrites,
		Forwarded:  stats.Forwarded,
		Errors:     stats.Errors(),
	}
}

// Timestamp returns the frame time
func (f Frame) Timestamp() time.Time {
	return time.UnixMilli(f.Time)
}

// OutcomeValue returns the outcome as a bridge.Outcome
func (f Frame) OutcomeValue() bridge.Outcome {
	return bridge.Outcome(f.Outcome)
}

// Vector returns the node states carried by the frame, if any
func (f Frame) Vector() (nodestate.Vector, bool) {
	if len(f.States) == 0 {
		return nodestate.Vector{}, false
	}
	v, err := nodestate.FromBytes(f.States)
	if err != nil {
		return nodestate.Vector{}, false
	}
	return v, true
}

// EncodeFrame encodes a frame to CBOR
func EncodeFrame(f Frame) ([]byte, error) {
	data, err := cbor.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode status frame: %w", err)
	}
	return data, nil
}

// DecodeFrame decodes a CBOR status frame
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("empty CBOR payload")
	}
	var f Frame
	if err := cbor.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	return f, nil
}
