// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.bug.st/serial/enumerator"
)

var portsUSBOnly bool

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports the bridge could forward to",
	Long: `List the serial ports visible to the operating system.

The microcontroller usually enumerates as a USB CDC device
(/dev/ttyACM0 on Linux). Pass the chosen name to serve with --port or
set [serial] port in the config file.`,
	RunE: runPorts,
}

func init() {
	rootCmd.AddCommand(portsCmd)
	portsCmd.Flags().BoolVar(&portsUSBOnly, "usb", false, "Only list USB serial devices")
}

func runPorts(cmd *cobra.Command, args []string) error {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return fmt.Errorf("failed to enumerate serial ports: %v", err)
	}

	listed := 0
	for _, port := range ports {
		if portsUSBOnly && !port.IsUSB {
			continue
		}
		listed++
		fmt.Printf("%s\n", port.Name)
		if port.IsUSB {
			fmt.Printf("  USB ID: %s:%s\n", port.VID, port.PID)
			if port.Product != "" {
				fmt.Printf("  Product: %s\n", port.Product)
			}
			if port.SerialNumber != "" {
				fmt.Printf("  Serial: %s\n", port.SerialNumber)
			}
		}
	}

	if listed == 0 {
		fmt.Printf("No serial ports found\n")
	}
	return nil
}
