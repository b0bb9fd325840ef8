// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/grid"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/nodestate"
	"github.com/spf13/cobra"
)

var quantizeFile string

var quantizeCmd = &cobra.Command{
	Use:   "quantize [payload]",
	Short: "Decode a payload and show the node states it produces",
	Long: `Run a payload through the grid decoder and the node-state quantizer
without touching BLE or serial.

The payload is read from the argument, from --file, or from stdin.

Examples:
  whv-bridge quantize '[[0.0,0.3,0.6],[0.74,0.75,1.0]]'
  echo '{"grid":[[0.5]]}' | whv-bridge quantize

Exit codes:
  0 - Payload decoded
  1 - Payload is not JSON or not a valid grid`,
	Args: cobra.MaximumNArgs(1),
	RunE: runQuantize,
}

func init() {
	rootCmd.AddCommand(quantizeCmd)
	quantizeCmd.Flags().StringVarP(&quantizeFile, "file", "f", "", "Read the payload from a file")
}

func runQuantize(cmd *cobra.Command, args []string) error {
	payload, err := readQuantizePayload(args)
	if err != nil {
		return err
	}

	f, err := grid.Decode(payload)
	if err != nil {
		switch {
		case errors.Is(err, grid.ErrNotJSON):
			fmt.Fprintf(os.Stderr, "NOT JSON: %v\n", err)
		default:
			fmt.Fprintf(os.Stderr, "MALFORMED: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Print(describeQuantize(f))
	return nil
}

// describeQuantize renders the decoded grid and its node states
func describeQuantize(f grid.Frame) string {
	v := nodestate.Quantize(f)
	out := fmt.Sprintf("Grid: %s\n", f.Dims())
	out += fmt.Sprintf("States: %s\n", v)
	out += nodestate.FormatVector(v)
	out += fmt.Sprintf("Serial frame: % X\n", v.Bytes())
	return out
}

func readQuantizePayload(args []string) ([]byte, error) {
	switch {
	case len(args) == 1 && quantizeFile != "":
		return nil, fmt.Errorf("pass the payload as an argument or with --file, not both")
	case len(args) == 1:
		return []byte(args[0]), nil
	case quantizeFile != "":
		data, err := os.ReadFile(quantizeFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload: %v", err)
		}
		return data, nil
	default:
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %v", err)
		}
		return data, nil
	}
}
