// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.Baud)
	assert.Equal(t, 50*time.Millisecond, cfg.Serial.WriteTimeout)
	assert.Equal(t, -60, cfg.BLE.MinRSSI)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Load(\"\") mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
[serial]
port = "/dev/ttyUSB1"
write_timeout = "120ms"

[websocket]
listen = ":8765"
username = "glove"

[log]
level = "debug"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.Serial.Port = "/dev/ttyUSB1"
	want.Serial.WriteTimeout = 120 * time.Millisecond
	want.WebSocket = WebSocket{Listen: ":8765", Username: "glove"}
	want.Log.Level = "debug"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_UnknownKeysRejected(t *testing.T) {
	path := writeConfig(t, `
[serial]
port = "/dev/ttyACM0"
parity = "even"

[extra]
x = 1
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownKeys)
	assert.Contains(t, err.Error(), "serial.parity")
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", `[serial`},
		{"bad duration", "[serial]\nwrite_timeout = \"fast\"\n"},
		{"bad uuid", "[ble]\nservice_uuid = \"not-a-uuid\"\n"},
		{"zero baud", "[serial]\nbaud = 0\n"},
		{"positive rssi", "[ble]\nmin_rssi = 5\n"},
		{"zero timeout", "[serial]\nwrite_timeout = \"0s\"\n"},
		{"empty port", "[serial]\nport = \"\"\n"},
		{"username without listen", "[websocket]\nusername = \"glove\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestEncode_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Serial.WriteTimeout = 75 * time.Millisecond
	cfg.WebSocket.Listen = "127.0.0.1:9000"

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, cfg))
	assert.Contains(t, buf.String(), `write_timeout = "75ms"`)

	got, err := Load(writeConfig(t, buf.String()))
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestForwarderOptions(t *testing.T) {
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyACM3"
	opts := cfg.ForwarderOptions()
	assert.Equal(t, "/dev/ttyACM3", opts.Path)
	assert.Equal(t, 115200, opts.BaudRate)
	assert.Equal(t, 50*time.Millisecond, opts.WriteTimeout)
	assert.Nil(t, opts.Opener)
}
