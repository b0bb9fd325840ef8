// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package grid

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Decode failures
var (
	// ErrNotJSON is returned when the payload is not syntactically JSON
	ErrNotJSON = errors.New("payload is not JSON")

	// ErrMalformed is returned when the payload is JSON but not a valid grid
	ErrMalformed = errors.New("malformed grid")
)

// shapeMatcher tries one accepted payload shape.
// matched is false when the payload is not this shape at all, in which case the
// next matcher is tried. A matched shape with a non-nil error is malformed.
type shapeMatcher struct {
	name  string
	match func(data []byte) (rows [][]float64, matched bool, err error)
}

// matchers are tried in order: bare array first, then the wrapped object
var matchers = []shapeMatcher{
	{name: "array", match: matchBareArray},
	{name: "object", match: matchWrappedGrid},
}

// Decode parses a payload into a validated Frame.
// Returns ErrNotJSON or ErrMalformed (possibly wrapped) on failure.
func Decode(data []byte) (Frame, error) {
	if !json.Valid(data) {
		return Frame{}, ErrNotJSON
	}

	for _, m := range matchers {
		rows, matched, err := m.match(data)
		if !matched {
			continue
		}
		if err != nil {
			return Frame{}, fmt.Errorf("%w: %s: %v", ErrMalformed, m.name, err)
		}
		return NewFrame(rows)
	}

	return Frame{}, fmt.Errorf("%w: expected [[...]] or {\"grid\": [[...]]}", ErrMalformed)
}

// matchBareArray accepts [[1, 2], [3, 4]]
func matchBareArray(data []byte) ([][]float64, bool, error) {
	if firstByte(data) != '[' {
		return nil, false, nil
	}
	var rows [][]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, true, err
	}
	return rows, true, nil
}

// matchWrappedGrid accepts {"grid": [[1, 2], [3, 4]]}
func matchWrappedGrid(data []byte) ([][]float64, bool, error) {
	if firstByte(data) != '{' {
		return nil, false, nil
	}
	var wrapped struct {
		Grid *[][]float64 `json:"grid"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, true, err
	}
	if wrapped.Grid == nil {
		return nil, false, nil
	}
	return *wrapped.Grid, true, nil
}

func firstByte(data []byte) byte {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

// Encode renders a frame as a bare array of rows
func Encode(f Frame) ([]byte, error) {
	rows := f.Data
	if rows == nil {
		rows = [][]float64{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to encode grid: %w", err)
	}
	return data, nil
}

// EncodeWrapped renders a frame as {"grid": [[...]]}
func EncodeWrapped(f Frame) ([]byte, error) {
	rows := f.Data
	if rows == nil {
		rows = [][]float64{}
	}
	data, err := json.Marshal(struct {
		Grid [][]float64 `json:"grid"`
	}{Grid: rows})
	if err != nil {
		return nil, fmt.Errorf("failed to encode grid: %w", err)
	}
	return data, nil
}
