// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the bridge TOML configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/forwarder"
	"tinygo.org/x/bluetooth"
)

// Identifiers shared with the glove transmitter
const (
	DefaultDeviceName  = "WHV Haptic Feedback Device"
	DefaultServiceUUID = "8b322909-2d3b-447b-a4d5-dfe0c009ec5a"
	DefaultWriteUUID   = "8b32290a-2d3b-447b-a4d5-dfe0c009ec5a"
	DefaultStatusUUID  = "8b32290b-2d3b-447b-a4d5-dfe0c009ec5a"
	DefaultMinRSSI     = -60
)

// EnvPassword holds the websocket Basic auth password
const EnvPassword = "WHV_BRIDGE_PASSWORD"

// ErrUnknownKeys is returned when the file contains keys this version does not understand
var ErrUnknownKeys = errors.New("unknown config keys")

type BLE struct {
	Name        string `toml:"name"`
	ServiceUUID string `toml:"service_uuid"`
	WriteUUID   string `toml:"write_uuid"`
	StatusUUID  string `toml:"status_uuid"`
	MinRSSI     int    `toml:"min_rssi"`
}

type Serial struct {
	Port         string        `toml:"port"`
	Baud         int           `toml:"baud"`
	WriteTimeout time.Duration `toml:"write_timeout"` // "50ms"
}

type WebSocket struct {
	Listen   string `toml:"listen"` // empty disables the feed
	Username string `toml:"username"`
}

type Log struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// Config is the full bridge configuration
type Config struct {
	BLE       BLE       `toml:"ble"`
	Serial    Serial    `toml:"serial"`
	WebSocket WebSocket `toml:"websocket"`
	Log       Log       `toml:"log"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		BLE: BLE{
			Name:        DefaultDeviceName,
			ServiceUUID: DefaultServiceUUID,
			WriteUUID:   DefaultWriteUUID,
			StatusUUID:  DefaultStatusUUID,
			MinRSSI:     DefaultMinRSSI,
		},
		Serial: Serial{
			Port:         forwarder.DefaultPath,
			Baud:         forwarder.DefaultBaudRate,
			WriteTimeout: forwarder.DefaultWriteTimeout,
		},
		Log: Log{Level: "info"},
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("config load failed (%s): %w: %s", path, ErrUnknownKeys, strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the bridge cannot run with
func (c Config) Validate() error {
	if strings.TrimSpace(c.BLE.Name) == "" {
		return fmt.Errorf("ble.name is required")
	}
	for _, u := range []struct{ key, raw string }{
		{"ble.service_uuid", c.BLE.ServiceUUID},
		{"ble.write_uuid", c.BLE.WriteUUID},
		{"ble.status_uuid", c.BLE.StatusUUID},
	} {
		if _, err := bluetooth.ParseUUID(u.raw); err != nil {
			return fmt.Errorf("%s %q: %w", u.key, u.raw, err)
		}
	}
	if c.BLE.MinRSSI > 0 || c.BLE.MinRSSI < -127 {
		return fmt.Errorf("ble.min_rssi %d out of range [-127, 0]", c.BLE.MinRSSI)
	}

	if strings.TrimSpace(c.Serial.Port) == "" {
		return fmt.Errorf("serial.port is required")
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.Serial.WriteTimeout <= 0 {
		return fmt.Errorf("serial.write_timeout must be positive, got %v", c.Serial.WriteTimeout)
	}

	if c.WebSocket.Username != "" && c.WebSocket.Listen == "" {
		return fmt.Errorf("websocket.username set without websocket.listen")
	}
	return nil
}

// ForwarderOptions returns the serial forwarder settings
func (c Config) ForwarderOptions() forwarder.Options {
	return forwarder.Options{
		Path:         c.Serial.Port,
		BaudRate:     c.Serial.Baud,
		WriteTimeout: c.Serial.WriteTimeout,
	}
}

// Encode writes the configuration as TOML
func Encode(w io.Writer, c Config) error {
	return toml.NewEncoder(w).Encode(c)
}
