// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"fmt"
	"time"
)

// Statistics tracks write-path outcomes and rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalWrites   uint64
	DecodedGrids  uint64
	Forwarded     uint64
	ForwardErrors uint64
	NotJSON       uint64
	Malformed     uint64
	Scalars       uint64
	Ignored       uint64

	// Rates (calculated)
	WriteRate float64 // writes/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update counts one handled write
func (s *Statistics) Update(o Outcome) {
	s.TotalWrites++

	switch o {
	case OutcomeForwarded:
		s.DecodedGrids++
		s.Forwarded++
	case OutcomeForwardFailed:
		s.DecodedGrids++
		s.ForwardErrors++
	case OutcomeNotJSON:
		s.NotJSON++
	case OutcomeMalformed:
		s.Malformed++
	case OutcomeScalar:
		s.Scalars++
	case OutcomeIgnored:
		s.Ignored++
	}

	s.LastUpdateTime = time.Now()
}

// Errors returns the number of writes that failed to decode or forward
func (s *Statistics) Errors() uint64 {
	return s.NotJSON + s.Malformed + s.ForwardErrors
}

// CalculateRates calculates write and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.WriteRate = float64(s.TotalWrites) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var decodedPercent, forwardedPercent float64
	if s.TotalWrites > 0 {
		decodedPercent = float64(s.DecodedGrids) * 100.0 / float64(s.TotalWrites)
	}
	if s.DecodedGrids > 0 {
		forwardedPercent = float64(s.Forwarded) * 100.0 / float64(s.DecodedGrids)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Writes:    %8d\n", s.TotalWrites)
	result += fmt.Sprintf("Decoded Grids:   %8d (%.1f%%)\n", s.DecodedGrids, decodedPercent)
	result += fmt.Sprintf("Forwarded:       %8d (%.1f%%)\n", s.Forwarded, forwardedPercent)

	if s.ForwardErrors > 0 {
		result += fmt.Sprintf("Forward Errors:  %8d\n", s.ForwardErrors)
	}
	if s.NotJSON > 0 || s.Malformed > 0 {
		result += fmt.Sprintf("Decode Errors:   %8d\n", s.NotJSON+s.Malformed)
		if s.NotJSON > 0 {
			result += fmt.Sprintf("  Not JSON:         %5d\n", s.NotJSON)
		}
		if s.Malformed > 0 {
			result += fmt.Sprintf("  Malformed:        %5d\n", s.Malformed)
		}
	}
	if s.Scalars > 0 {
		result += fmt.Sprintf("Scalar Payloads: %8d\n", s.Scalars)
	}
	if s.Ignored > 0 {
		result += fmt.Sprintf("Ignored:         %8d\n", s.Ignored)
	}

	result += fmt.Sprintf("Write Rate:      %8.1f writes/sec\n", s.WriteRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
