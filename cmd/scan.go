// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/internal/ble"
	"github.com/spf13/cobra"
	"tinygo.org/x/bluetooth"
)

var (
	scanTimeout int
	scanFirst   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for bridges advertising the haptic service",
	Long: `Scan over BLE for devices advertising the haptic service UUID.

Devices weaker than [ble] min_rssi (default -60 dBm) are ignored, matching
the glove transmitter's connection policy. Each device is reported once.

Exit codes:
  0 - At least one bridge found
  1 - No bridge found before timeout
  2 - Adapter error`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 10, "Scan duration in seconds")
	scanCmd.Flags().BoolVar(&scanFirst, "first", false, "Stop after the first bridge found")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	central := ble.NewCentral(bluetooth.DefaultAdapter, cfg.BLE, newLogger(cfg))

	fmt.Printf("whv-bridge - BLE Scan\n")
	fmt.Printf("Service: %s\n", cfg.BLE.ServiceUUID)
	fmt.Printf("Minimum RSSI: %d dBm\n", cfg.BLE.MinRSSI)
	fmt.Printf("Timeout: %d seconds\n\n", scanTimeout)

	found := 0
	err = central.Scan(context.Background(), time.Duration(scanTimeout)*time.Second, func(f ble.Found) bool {
		found++
		name := f.Name
		if name == "" {
			name = "(no name)"
		}
		fmt.Printf("Bridge found:\n")
		fmt.Printf("  Address: %s\n", f.Address)
		fmt.Printf("  Name: %s\n", name)
		fmt.Printf("  RSSI: %d dBm\n", f.RSSI)
		return !scanFirst
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Scan error: %v\n", err)
		os.Exit(2)
	}

	// Summary
	fmt.Printf("\n--- Scan summary ---\n")
	fmt.Printf("Bridges found: %d\n", found)

	if found == 0 {
		fmt.Printf("No bridges discovered. Check that the bridge is running and in range.\n")
		os.Exit(1)
	}
	return nil
}
