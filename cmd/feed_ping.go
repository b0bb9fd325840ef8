// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/bridge"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/statusfeed"
	"github.com/spf13/cobra"
)

var (
	feedPingTimeout int
	feedPingCount   int
)

var feedPingCmd = &cobra.Command{
	Use:   "feed_ping",
	Short: "Test a bridge's websocket endpoints with scalar round trips",
	Long: `Write a 4-byte float diagnostic to the bridge's /write endpoint and wait
for the matching SCALAR event on /status.

Scalar payloads are recorded as the last raw payload but are never decoded
or forwarded to serial, so pinging does not drive the actuators.

This is useful for verifying:
  - Both websocket endpoints accept connections
  - HTTP Basic authentication works
  - The bridge write path is processing payloads

Exit codes:
  0 - All pings successful
  1 - One or more pings failed/timed out
  2 - Connection error`,
	RunE: runFeedPing,
}

func init() {
	rootCmd.AddCommand(feedPingCmd)
	feedPingCmd.Flags().IntVar(&feedPingTimeout, "timeout", 5, "Timeout in seconds for each ping")
	feedPingCmd.Flags().IntVar(&feedPingCount, "count", 3, "Number of pings to send")
}

func runFeedPing(cmd *cobra.Command, args []string) error {
	status, connInfo, err := dialFeed(context.Background(), statusfeed.PathStatus)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer status.Close()

	writer, _, err := dialFeed(context.Background(), statusfeed.PathWrite)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer writer.Close()

	fmt.Printf("whv-bridge - Feed Ping Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds per ping\n", feedPingTimeout)
	fmt.Printf("Count: %d pings\n\n", feedPingCount)

	frames := make(chan statusfeed.Frame, 16)
	errChan := make(chan error, 1)
	go func() {
		for {
			f, err := status.ReadFrame()
			if err != nil {
				errChan <- err
				return
			}
			frames <- f
		}
	}()

	successCount := 0
	failCount := 0

	for i := 1; i <= feedPingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, feedPingCount)

		token := float32(i) + 0.25
		startTime := time.Now()
		if err := writer.WritePayload(encodeFloat32(token)); err != nil {
			fmt.Printf("SEND FAILED: %v\n", err)
			failCount++
			continue
		}

		ok, err := waitForScalar(frames, errChan, token, time.Duration(feedPingTimeout)*time.Second)
		switch {
		case ok:
			rtt := time.Since(startTime)
			fmt.Printf("SCALAR %.2f echoed, rtt=%v\n", token, rtt.Round(time.Millisecond))
			successCount++
		case err != nil:
			fmt.Printf("READ FAILED: %v\n", err)
			failCount++
		default:
			fmt.Printf("TIMEOUT (no response in %ds)\n", feedPingTimeout)
			failCount++
		}

		// Small delay between pings
		if i < feedPingCount {
			time.Sleep(100 * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% packet loss\n",
		feedPingCount, successCount, float64(failCount)/float64(feedPingCount)*100)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}

// waitForScalar skips frames until the SCALAR event carrying token arrives.
// Events from other writers are ignored.
func waitForScalar(frames <-chan statusfeed.Frame, errs <-chan error, token float32, timeout time.Duration) (bool, error) {
	deadline := time.After(timeout)
	for {
		select {
		case f := <-frames:
			if f.Event && f.OutcomeValue() == bridge.OutcomeScalar && f.Scalar == token {
				return true, nil
			}
		case err := <-errs:
			return false, err
		case <-deadline:
			return false, nil
		}
	}
}
