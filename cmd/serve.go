// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/internal/ble"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/internal/config"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/bridge"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/forwarder"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/nodestate"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/statusfeed"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"tinygo.org/x/bluetooth"
)

var (
	serveTUI           bool
	serveDryRun        bool
	serveNoBLE         bool
	serveStatsInterval int
	serveWSListen      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the BLE to serial bridge",
	Long: `Advertise the haptic service and forward every received grid to the
microcontroller.

Each write to the grid characteristic is decoded, recorded in the history,
quantized into six node states and written to the serial device as six bytes.
The status characteristic always holds:

  <product/version> | last_raw=<N> bytes | last_grid=<R>x<C> | history=<H>

With --ws-listen (or [websocket] listen) the bridge also accepts payloads on
ws://<addr>/write and pushes CBOR status frames on ws://<addr>/status.

In text mode a statistics summary is printed every --stats-interval seconds.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveTUI, "tui", false, "Use terminal UI instead of log output")
	serveCmd.Flags().BoolVar(&serveDryRun, "dry-run", false, "Log node states instead of writing to serial")
	serveCmd.Flags().BoolVar(&serveNoBLE, "no-ble", false, "Do not advertise over BLE (websocket ingress only)")
	serveCmd.Flags().IntVar(&serveStatsInterval, "stats-interval", 30, "Statistics summary interval in seconds (0 disables)")
	serveCmd.Flags().StringVar(&serveWSListen, "ws-listen", "", "Websocket listen address (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveWSListen != "" {
		cfg.WebSocket.Listen = serveWSListen
	}
	if serveNoBLE && cfg.WebSocket.Listen == "" {
		return fmt.Errorf("--no-ble needs a websocket listen address, the bridge would have no ingress")
	}

	// The TUI owns the terminal, so logs are discarded while it runs
	log := newLogger(cfg)
	if serveTUI {
		log = zerolog.New(io.Discard)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := bridge.New(bridge.Options{
		Forwarder: newForwarder(cfg, log),
		Logger:    log,
	})

	password := ""
	if cfg.WebSocket.Username != "" {
		password, err = GetPassword()
		if err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if !serveNoBLE {
		peripheral := ble.NewPeripheral(bluetooth.DefaultAdapter, cfg.BLE, b, log)
		g.Go(func() error {
			return peripheral.Run(ctx)
		})
	}

	if cfg.WebSocket.Listen != "" {
		server := statusfeed.NewServer(ctx, b, statusfeed.ServerOptions{
			Username: cfg.WebSocket.Username,
			Password: password,
			Logger:   log,
		})
		g.Go(func() error {
			return server.ListenAndServe(ctx, cfg.WebSocket.Listen)
		})
	}

	source := describeServe(cfg)
	if serveTUI {
		g.Go(func() error {
			// Quitting the TUI stops the bridge
			defer cancel()
			return runServeTUI(ctx, b, source)
		})
	} else {
		log.Info().
			Str("version", bridge.Version).
			Str("serial", source).
			Msg("bridge started")
		g.Go(func() error {
			return runServeStats(ctx, b)
		})
	}

	err = g.Wait()
	if !serveTUI {
		stats := b.Statistics()
		fmt.Print(stats.String())
	}
	return err
}

// newForwarder returns the serial forwarder, or a logging stand-in for --dry-run
func newForwarder(cfg config.Config, log zerolog.Logger) forwarder.Forwarder {
	if serveDryRun {
		return forwarder.Func(func(ctx context.Context, v nodestate.Vector) error {
			log.Info().Stringer("states", v).Hex("frame", v.Bytes()).Msg("dry run, frame not sent")
			return nil
		})
	}
	return forwarder.NewSerial(cfg.ForwarderOptions())
}

func describeServe(cfg config.Config) string {
	if serveDryRun {
		return "Serial: dry run"
	}
	return fmt.Sprintf("Serial: %s @ %d baud", cfg.Serial.Port, cfg.Serial.Baud)
}

// runServeStats prints a statistics summary every --stats-interval seconds
func runServeStats(ctx context.Context, b *bridge.Bridge) error {
	if serveStatsInterval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(time.Duration(serveStatsInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			stats := b.Statistics()
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}

// runServeTUI drives the monitor TUI from the local bridge
func runServeTUI(ctx context.Context, b *bridge.Bridge, source string) error {
	inject := func(payload []byte) error {
		b.HandleWrite(ctx, payload)
		return nil
	}
	p := tea.NewProgram(initialModel("WHV BRIDGE", source, inject), tea.WithContext(ctx))

	unsubscribe := b.Subscribe(func(rep bridge.Report) {
		p.Send(frameMsg(statusfeed.FromReport(rep, b.Status(), b.Statistics())))
	})
	defer unsubscribe()

	go p.Send(frameMsg(statusfeed.SnapshotFrame(b)))

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
