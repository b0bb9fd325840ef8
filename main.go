// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// whv-bridge - Wearable Haptic Vision BLE to serial bridge
//
// Receives sensor grids from the glove transmitter over BLE, quantizes them
// into six actuator states and forwards them to the haptic microcontroller.

package main

import (
	"os"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
