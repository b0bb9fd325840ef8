// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package grid decodes pressure/heatmap grids received from the depth sensor
// application into validated rectangular frames.
//
// Two textual shapes are accepted: a bare JSON array of rows, or an object
// carrying the rows under a "grid" key.
package grid

import "fmt"

// Frame is a validated rectangular grid of sensor readings.
// Every row has exactly Cols values. A zero-size frame has Rows == Cols == 0.
type Frame struct {
	Rows int
	Cols int
	Data [][]float64
}

// Empty reports whether the frame carries no cells
func (f Frame) Empty() bool {
	return f.Rows == 0 || f.Cols == 0
}

// At returns the value at (r, c)
func (f Frame) At(r, c int) float64 {
	return f.Data[r][c]
}

// Dims formats the frame dimensions as RxC
func (f Frame) Dims() string {
	return fmt.Sprintf("%dx%d", f.Rows, f.Cols)
}

// Clone returns a deep copy so the frame can change owner without sharing rows.
func (f Frame) Clone() Frame {
	out := Frame{Rows: f.Rows, Cols: f.Cols}
	if len(f.Data) == 0 {
		return out
	}
	out.Data = make([][]float64, len(f.Data))
	for i, row := range f.Data {
		out.Data[i] = append([]float64(nil), row...)
	}
	return out
}

// Equal compares dimensions and every cell.
// NaN never appears in a decoded frame, so plain comparison is enough.
func (f Frame) Equal(o Frame) bool {
	if f.Rows != o.Rows || f.Cols != o.Cols {
		return false
	}
	for r := 0; r < f.Rows; r++ {
		for c := 0; c < f.Cols; c++ {
			if f.Data[r][c] != o.Data[r][c] {
				return false
			}
		}
	}
	return true
}

// NewFrame validates rows and builds a frame from them.
// An empty outer slice yields the zero-size frame.
func NewFrame(rows [][]float64) (Frame, error) {
	if len(rows) == 0 {
		return Frame{}, nil
	}

	cols := len(rows[0])
	if cols == 0 {
		return Frame{}, fmt.Errorf("%w: row 0 is empty", ErrMalformed)
	}
	for i, row := range rows[1:] {
		if len(row) != cols {
			return Frame{}, fmt.Errorf("%w: row %d has %d values, expected %d", ErrMalformed, i+1, len(row), cols)
		}
	}

	return Frame{Rows: len(rows), Cols: cols, Data: rows}.Clone(), nil
}
