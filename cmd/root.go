// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/internal/config"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/internal/logging"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/bridge"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string

	// Serial flags, override [serial]
	portName string
	baudRate int

	// WebSocket flags for remote commands
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool
)

var rootCmd = &cobra.Command{
	Use:   "whv-bridge",
	Short: "Wearable Haptic Vision BLE to serial bridge",
	Long: `whv-bridge - receives heatmap grids from the glove transmitter over BLE,
quantizes them into six actuator states and forwards each frame to the haptic
microcontroller over serial.

Bridge host:
  serve          Run the bridge (BLE peripheral, serial forwarder, optional websocket feed)

Development:
  scan, send     Act as the transmitter from another machine
  monitor        Watch a running bridge's websocket status feed
  feed_ping      Check that a bridge's websocket feed answers
  quantize       Decode and quantize a payload offline
  ports          List serial ports
  actuator_test  Write one frame straight to the microcontroller
  config         Print the effective configuration

For WebSocket authentication, the password is read from the WHV_BRIDGE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:      bridge.Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device (default from config)")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 0, "Baud rate (default from config)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "Bridge websocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads --config and applies command-line overrides
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if portName != "" {
		cfg.Serial.Port = portName
	}
	if baudRate > 0 {
		cfg.Serial.Baud = baudRate
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newLogger builds the runtime logger for cfg
func newLogger(cfg config.Config) zerolog.Logger {
	opts := logging.DefaultOptions(logging.ProfileRuntime)
	opts.Level = cfg.Log.Level
	opts.JSON = cfg.Log.JSON
	return logging.New(opts)
}
