// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/bridge"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/nodestate"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/statusfeed"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

var (
	monitorTUI     bool
	monitorShowAll bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch a running bridge over its websocket status feed",
	Long: `Connect to a bridge's /status endpoint and display every handled write.

The feed starts with a snapshot of the bridge state, then sends one frame per
write with the outcome, the node states and the bridge counters.

In the terminal UI, press 'i' to type a payload; it is written to the
bridge's /write endpoint.

In text mode (--tui=false) decode failures and forward errors are always
printed. Use --show-all to print forwarded grids as well.

Example:
  whv-bridge monitor --url ws://bridge.local:8765`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", true, "Use terminal UI (false for text mode)")
	monitorCmd.Flags().BoolVar(&monitorShowAll, "show-all", false, "Text mode: print every frame, not just errors")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := dialFeed(context.Background(), statusfeed.PathStatus)
	if err != nil {
		return err
	}
	defer conn.Close()

	if monitorTUI && isTerminal() {
		return runMonitorTUI(conn, connInfo)
	}
	return runMonitorText(conn, connInfo)
}

func runMonitorTUI(conn *statusfeed.Conn, connInfo string) error {
	var writer *statusfeed.Conn
	inject := func(payload []byte) error {
		if writer == nil {
			w, _, err := dialFeed(context.Background(), statusfeed.PathWrite)
			if err != nil {
				return err
			}
			writer = w
		}
		return writer.WritePayload(payload)
	}
	defer func() {
		if writer != nil {
			writer.Close()
		}
	}()

	p := tea.NewProgram(initialModel("WHV BRIDGE - MONITOR", connInfo, inject))

	go func() {
		for {
			f, err := conn.ReadFrame()
			if err != nil {
				p.Send(feedClosedMsg{err: err})
				return
			}
			p.Send(frameMsg(f))
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// runMonitorText prints frames as they arrive
func runMonitorText(conn *statusfeed.Conn, connInfo string) error {
	fmt.Printf("whv-bridge - Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	for {
		f, err := conn.ReadFrame()
		if err != nil {
			if err == statusfeed.ErrConnectionClosed {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Feed closed: %v\n", err)
			return nil
		}
		if text, ok := formatFrame(f, monitorShowAll); ok {
			fmt.Print(text)
		}
	}
}

// formatFrame renders a feed frame for text mode.
// Forwarded grids and diagnostics are only shown when showAll is set.
func formatFrame(f statusfeed.Frame, showAll bool) (string, bool) {
	timestamp := f.Timestamp().Format("15:04:05.000")

	if !f.Event {
		return fmt.Sprintf("[%s] \033[1;36mSTATUS:\033[0m %s\n\n", timestamp, f.Status), true
	}

	outcome := f.OutcomeValue()
	switch outcome {
	case bridge.OutcomeForwardFailed:
		return fmt.Sprintf("[%s] \033[1;31mFORWARD FAILED:\033[0m grid %dx%d: %s\n%s\n",
			timestamp, f.Rows, f.Cols, f.Error, formatFrameStates(f)), true

	case bridge.OutcomeNotJSON, bridge.OutcomeMalformed:
		return fmt.Sprintf("[%s] \033[1;33m%s:\033[0m %d bytes: %s\n\n",
			timestamp, outcome, f.RawLen, f.Error), true
	}

	if !showAll {
		return "", false
	}

	switch outcome {
	case bridge.OutcomeForwarded:
		return fmt.Sprintf("[%s] \033[1;32mFORWARDED:\033[0m grid %dx%d, history %d\n%s\n",
			timestamp, f.Rows, f.Cols, f.HistoryLen, formatFrameStates(f)), true
	case bridge.OutcomeScalar:
		return fmt.Sprintf("[%s] SCALAR: %.4f\n\n", timestamp, f.Scalar), true
	default:
		return fmt.Sprintf("[%s] %s: %d bytes\n\n", timestamp, outcome, f.RawLen), true
	}
}

func formatFrameStates(f statusfeed.Frame) string {
	v, ok := f.Vector()
	if !ok {
		return "  (no node states)\n"
	}
	return nodestate.FormatVector(v)
}
