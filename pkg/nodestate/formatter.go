// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package nodestate

import (
	"fmt"
	"strings"
)

// StateName returns a human-readable name for a node state
func StateName(s State) string {
	switch s {
	case StateFull:
		return "FULL"
	case StateHigh:
		return "HIGH"
	case StateLow:
		return "LOW"
	case StateLeast:
		return "LEAST"
	default:
		return "UNKNOWN"
	}
}

// FormatVector renders the vector as a 2x3 block, one actuator row per line
func FormatVector(v Vector) string {
	var sb strings.Builder
	for r := 0; r < Rows; r++ {
		sb.WriteString("  ")
		for c := 0; c < Cols; c++ {
			s := v[r*Cols+c]
			fmt.Fprintf(&sb, "%d:%-5s ", s, StateName(s))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
