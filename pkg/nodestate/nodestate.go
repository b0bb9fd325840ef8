// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package nodestate quantizes sensor grids into the fixed actuator command
// understood by the haptic microcontroller.
//
// The command is six node states laid out as two rows of three nodes. Each
// node is driven by two binary valves, so a state is one of four levels.
// Higher pressure maps to a lower state number; the firmware depends on this.
package nodestate

import (
	"fmt"
	"math"
	"strings"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/grid"
)

// Layout of the actuator array
const (
	Rows  = 2
	Cols  = 3
	Nodes = Rows * Cols
)

// State is a node drive level in 1..4
type State uint8

const (
	StateFull  State = 1 // v >= 0.75
	StateHigh  State = 2 // 0.5 <= v < 0.75
	StateLow   State = 3 // 0.25 <= v < 0.5
	StateLeast State = 4 // v < 0.25
)

// DefaultState fills slots with no corresponding grid cell.
// Policy: the least-pressure state, so missing data reads the same as a
// zero reading instead of driving the node.
const DefaultState = StateLeast

// Threshold lower bounds, ascending
const (
	ThresholdLow  = 0.25
	ThresholdHigh = 0.5
	ThresholdFull = 0.75
)

// Valid reports whether s is one of the four drive levels
func (s State) Valid() bool {
	return s >= StateFull && s <= StateLeast
}

// Vector is the six-node actuator command, row-major with stride Cols
type Vector [Nodes]State

// DefaultVector returns a vector with every slot at DefaultState
func DefaultVector() Vector {
	var v Vector
	for i := range v {
		v[i] = DefaultState
	}
	return v
}

// Clamp maps NaN and negatives to 0 and caps at 1
func Clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// StateFor quantizes one reading
func StateFor(v float64) State {
	v = Clamp(v)
	switch {
	case v < ThresholdLow:
		return StateLeast
	case v < ThresholdHigh:
		return StateLow
	case v < ThresholdFull:
		return StateHigh
	default:
		return StateFull
	}
}

// Quantize maps the top-left 2x3 window of f onto a Vector.
// Cells outside the window are ignored; slots without a cell keep DefaultState.
func Quantize(f grid.Frame) Vector {
	out := DefaultVector()
	if f.Empty() {
		return out
	}

	rows := min(f.Rows, Rows)
	cols := min(f.Cols, Cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out[r*Cols+c] = StateFor(f.At(r, c))
		}
	}
	return out
}

// Bytes returns the serial wire frame: one byte per node
func (v Vector) Bytes() []byte {
	b := make([]byte, Nodes)
	for i, s := range v {
		b[i] = byte(s)
	}
	return b
}

// FromBytes parses a six-byte wire frame
func FromBytes(b []byte) (Vector, error) {
	var v Vector
	if len(b) != Nodes {
		return v, fmt.Errorf("expected %d node states, got %d", Nodes, len(b))
	}
	for i, x := range b {
		s := State(x)
		if !s.Valid() {
			return v, fmt.Errorf("node %d: invalid state %d (valid 1-4)", i, x)
		}
		v[i] = s
	}
	return v, nil
}

// String renders the vector as "[a b c | d e f]"
func (v Vector) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, s := range v {
		if i > 0 {
			if i%Cols == 0 {
				sb.WriteString(" | ")
			} else {
				sb.WriteByte(' ')
			}
		}
		fmt.Fprintf(&sb, "%d", s)
	}
	sb.WriteByte(']')
	return sb.String()
}
