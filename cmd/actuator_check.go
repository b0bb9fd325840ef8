// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/forwarder"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/nodestate"
	"github.com/spf13/cobra"
)

var (
	actuatorAll      int
	actuatorSweep    bool
	actuatorInterval int
)

var actuatorCheckCmd = &cobra.Command{
	Use:   "actuator_test [s1 s2 s3 s4 s5 s6]",
	Short: "Write node states straight to the microcontroller",
	Long: `Write a six-byte node-state frame to the serial device, bypassing BLE.

States are 1 (full) to 4 (least), row-major over the 2x3 actuator layout.

Examples:
  # Top row full, bottom row least
  whv-bridge actuator_test 1 1 1 4 4 4

  # Every node at state 2
  whv-bridge actuator_test --all 2

  # Pulse each node in turn at full strength
  whv-bridge actuator_test --sweep --interval 500

Exit codes:
  0 - All frames written
  1 - Serial write failed
  2 - Invalid states`,
	Args: cobra.MaximumNArgs(nodestate.Nodes),
	RunE: runActuatorCheck,
}

func init() {
	rootCmd.AddCommand(actuatorCheckCmd)
	actuatorCheckCmd.Flags().IntVar(&actuatorAll, "all", 0, "Set every node to this state")
	actuatorCheckCmd.Flags().BoolVar(&actuatorSweep, "sweep", false, "Drive each node to full in turn")
	actuatorCheckCmd.Flags().IntVar(&actuatorInterval, "interval", 300, "Sweep step in milliseconds")
}

func runActuatorCheck(cmd *cobra.Command, args []string) error {
	frames, err := actuatorFrames(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid states: %v\n", err)
		os.Exit(2)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	fwd := forwarder.NewSerial(cfg.ForwarderOptions())

	fmt.Printf("whv-bridge - Actuator Test\n")
	fmt.Printf("Serial: %s @ %d baud\n\n", fwd.Path(), fwd.BaudRate())

	ctx := context.Background()
	for i, v := range frames {
		fmt.Printf("Frame %d/%d %s: ", i+1, len(frames), v)
		if err := fwd.Forward(ctx, v); err != nil {
			fmt.Printf("FAILED: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("OK\n")

		if i < len(frames)-1 {
			time.Sleep(time.Duration(actuatorInterval) * time.Millisecond)
		}
	}
	return nil
}

// actuatorFrames builds the frames selected by arguments and flags
func actuatorFrames(args []string) ([]nodestate.Vector, error) {
	modes := 0
	if len(args) > 0 {
		modes++
	}
	if actuatorAll != 0 {
		modes++
	}
	if actuatorSweep {
		modes++
	}
	if modes != 1 {
		return nil, fmt.Errorf("pass six states, --all or --sweep")
	}

	switch {
	case actuatorSweep:
		frames := make([]nodestate.Vector, 0, nodestate.Nodes+1)
		for n := 0; n < nodestate.Nodes; n++ {
			v := nodestate.DefaultVector()
			v[n] = nodestate.StateFull
			frames = append(frames, v)
		}
		return append(frames, nodestate.DefaultVector()), nil

	case actuatorAll != 0:
		if actuatorAll < 0 || actuatorAll > 255 {
			return nil, fmt.Errorf("invalid state %d (valid 1-4)", actuatorAll)
		}
		raw := make([]byte, nodestate.Nodes)
		for i := range raw {
			raw[i] = byte(actuatorAll)
		}
		v, err := nodestate.FromBytes(raw)
		if err != nil {
			return nil, err
		}
		return []nodestate.Vector{v}, nil

	default:
		raw := make([]byte, 0, len(args))
		for _, arg := range args {
			n, err := strconv.Atoi(arg)
			if err != nil || n < 0 || n > 255 {
				return nil, fmt.Errorf("invalid state %q", arg)
			}
			raw = append(raw, byte(n))
		}
		v, err := nodestate.FromBytes(raw)
		if err != nil {
			return nil, err
		}
		return []nodestate.Vector{v}, nil
	}
}
