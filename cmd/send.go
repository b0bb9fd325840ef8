// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/internal/ble"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/grid"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/statusfeed"
	"github.com/spf13/cobra"
	"tinygo.org/x/bluetooth"
)

var (
	sendJSON     string
	sendRandom   string
	sendFloat    string
	sendWrapped  bool
	sendCount    int
	sendInterval int
	sendTimeout  int
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Write payloads to a bridge like the glove transmitter",
	Long: `Act as the transmitter: connect to a bridge and write payloads to the
grid characteristic.

Payload (exactly one):
  --json '[[0.1,0.9,0.5],[0.3,0.0,1.0]]'   a literal payload
  --random 4x6                              a random grid of that size
  --float 0.625                             a 4-byte little-endian float32

Transport:
  BLE (default): scan for the service UUID and connect to the first bridge
  WebSocket:     --url ws://host:8765 writes to the bridge's /write endpoint

Examples:
  # One random 8x8 frame per 100ms, 50 times
  whv-bridge send --random 8x8 --count 50 --interval 100

  # Through the websocket ingress
  whv-bridge send --url ws://bridge.local:8765 --json '{"grid":[[1.0]]}'

Exit codes:
  0 - All payloads written
  1 - One or more writes failed
  2 - Connection error`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendJSON, "json", "", "Literal payload to write")
	sendCmd.Flags().StringVar(&sendRandom, "random", "", "Random grid dimensions, RxC")
	sendCmd.Flags().StringVar(&sendFloat, "float", "", "Write a 4-byte float32 diagnostic payload")
	sendCmd.Flags().BoolVar(&sendWrapped, "wrapped", false, "Encode random grids as {\"grid\": ...}")
	sendCmd.Flags().IntVar(&sendCount, "count", 1, "Number of payloads to write")
	sendCmd.Flags().IntVar(&sendInterval, "interval", 200, "Delay between payloads in milliseconds")
	sendCmd.Flags().IntVar(&sendTimeout, "timeout", 10, "BLE scan timeout in seconds")
}

// payloadWriter is a connected transport
type payloadWriter struct {
	write  func([]byte) error
	status func() (string, bool)
	close  func() error
}

func runSend(cmd *cobra.Command, args []string) error {
	next, err := payloadSource()
	if err != nil {
		return err
	}

	w, connInfo, err := openPayloadWriter()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer w.close()

	fmt.Printf("whv-bridge - Send\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Count: %d, interval %d ms\n\n", sendCount, sendInterval)

	failCount := 0
	for i := 1; i <= sendCount; i++ {
		payload, err := next()
		if err != nil {
			return err
		}

		fmt.Printf("Write %d/%d (%d bytes): ", i, sendCount, len(payload))
		if err := w.write(payload); err != nil {
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		} else if status, ok := w.status(); ok {
			fmt.Printf("OK, %s\n", status)
		} else {
			fmt.Printf("OK\n")
		}

		if i < sendCount {
			time.Sleep(time.Duration(sendInterval) * time.Millisecond)
		}
	}

	// Summary
	fmt.Printf("\n--- Send statistics ---\n")
	fmt.Printf("%d payloads, %d failed\n", sendCount, failCount)

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}

// payloadSource returns a generator for the payload selected by flags
func payloadSource() (func() ([]byte, error), error) {
	selected := 0
	for _, v := range []string{sendJSON, sendRandom, sendFloat} {
		if v != "" {
			selected++
		}
	}
	if selected != 1 {
		return nil, fmt.Errorf("exactly one of --json, --random or --float is required")
	}

	switch {
	case sendJSON != "":
		payload := []byte(sendJSON)
		return func() ([]byte, error) { return payload, nil }, nil

	case sendFloat != "":
		v, err := strconv.ParseFloat(sendFloat, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid --float value: %v", err)
		}
		payload := encodeFloat32(float32(v))
		return func() ([]byte, error) { return payload, nil }, nil

	default:
		rows, cols, err := parseDims(sendRandom)
		if err != nil {
			return nil, err
		}
		rng := rand.New(rand.NewSource(time.Now().UnixNano()))
		return func() ([]byte, error) {
			f := randomFrame(rng, rows, cols)
			if sendWrapped {
				return grid.EncodeWrapped(f)
			}
			return grid.Encode(f)
		}, nil
	}
}

// parseDims parses "RxC"
func parseDims(s string) (int, int, error) {
	r, c, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("invalid dimensions %q, expected RxC", s)
	}
	rows, err := strconv.Atoi(r)
	if err != nil || rows <= 0 {
		return 0, 0, fmt.Errorf("invalid row count %q", r)
	}
	cols, err := strconv.Atoi(c)
	if err != nil || cols <= 0 {
		return 0, 0, fmt.Errorf("invalid column count %q", c)
	}
	return rows, cols, nil
}

// randomFrame builds a frame of uniform values in [0, 1] rounded to two places
func randomFrame(rng *rand.Rand, rows, cols int) grid.Frame {
	data := make([][]float64, rows)
	for r := range data {
		data[r] = make([]float64, cols)
		for c := range data[r] {
			data[r][c] = math.Round(rng.Float64()*100) / 100
		}
	}
	return grid.Frame{Rows: rows, Cols: cols, Data: data}
}

func encodeFloat32(v float32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, math.Float32bits(v))
	return buf
}

// openPayloadWriter connects over websocket when --url is set, BLE otherwise
func openPayloadWriter() (*payloadWriter, string, error) {
	if wsURL != "" {
		conn, connInfo, err := dialFeed(context.Background(), statusfeed.PathWrite)
		if err != nil {
			return nil, "", err
		}
		return &payloadWriter{
			write:  conn.WritePayload,
			status: func() (string, bool) { return "", false },
			close:  conn.Close,
		}, connInfo, nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	central := ble.NewCentral(bluetooth.DefaultAdapter, cfg.BLE, newLogger(cfg))

	fmt.Printf("Scanning for %s...\n", cfg.BLE.ServiceUUID)
	found, err := central.FindFirst(context.Background(), time.Duration(sendTimeout)*time.Second)
	if err != nil {
		return nil, "", err
	}
	link, err := central.Connect(found)
	if err != nil {
		return nil, "", err
	}

	return &payloadWriter{
		write: func(p []byte) error {
			_, err := link.Write(p)
			return err
		},
		status: func() (string, bool) {
			if !link.HasStatus() {
				return "", false
			}
			s, err := link.ReadStatus()
			if err != nil {
				return fmt.Sprintf("status unavailable: %v", err), true
			}
			return s, true
		},
		close: link.Close,
	}, fmt.Sprintf("BLE: %s (%d dBm)", found.Address, found.RSSI), nil
}
