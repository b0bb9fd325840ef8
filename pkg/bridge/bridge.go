// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge composes the grid decoder, history store, quantizer and
// forwarder into the write and read handlers invoked by the wireless stack.
package bridge

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/forwarder"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/grid"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/history"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/nodestate"
	"github.com/rs/zerolog"
)

// Product identifies the bridge in the status string
const (
	ProductName = "whv-haptic-bridge"
	Version     = "0.3.0"
)

// DefaultProduct is the status string prefix
var DefaultProduct = ProductName + "/" + Version

// Outcome describes what the write path did with a payload
type Outcome uint8

const (
	OutcomeForwarded     Outcome = iota // decoded, quantized and written to serial
	OutcomeForwardFailed                // decoded and quantized, serial write failed
	OutcomeNotJSON                      // JSON-tagged but not JSON
	OutcomeMalformed                    // JSON but not a rectangular grid
	OutcomeScalar                       // four-byte float diagnostic
	OutcomeIgnored                      // anything else, raw bytes recorded only
)

// String returns the outcome name
func (o Outcome) String() string {
	switch o {
	case OutcomeForwarded:
		return "FORWARDED"
	case OutcomeForwardFailed:
		return "FORWARD_FAILED"
	case OutcomeNotJSON:
		return "NOT_JSON"
	case OutcomeMalformed:
		return "MALFORMED"
	case OutcomeScalar:
		return "SCALAR"
	case OutcomeIgnored:
		return "IGNORED"
	default:
		return "UNKNOWN"
	}
}

// Decoded reports whether the payload produced a grid
func (o Outcome) Decoded() bool {
	return o == OutcomeForwarded || o == OutcomeForwardFailed
}

// Report describes one handled write
type Report struct {
	Time     time.Time
	Outcome  Outcome
	Snapshot history.Snapshot // state right after this write
	Vector   *nodestate.Vector
	Scalar   float32
	Err      error
}

// Listener is notified after every handled write, outside the state lock
type Listener func(Report)

// Options configures a Bridge
type Options struct {
	Store     *history.Store
	Forwarder forwarder.Forwarder
	Logger    zerolog.Logger
	Product   string
}

// Bridge owns the shared state and implements the write and read paths
type Bridge struct {
	store   *history.Store
	fwd     forwarder.Forwarder
	log     zerolog.Logger
	product string

	statsMu sync.Mutex
	stats   *Statistics

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int
}

// New creates a bridge. A nil store or forwarder gets the default.
func New(opts Options) *Bridge {
	b := &Bridge{
		store:     opts.Store,
		fwd:       opts.Forwarder,
		log:       opts.Logger,
		product:   opts.Product,
		stats:     NewStatistics(),
		listeners: make(map[int]Listener),
	}
	if b.store == nil {
		b.store = history.NewStore()
	}
	if b.fwd == nil {
		b.fwd = forwarder.NewSerial(forwarder.Options{})
	}
	if b.product == "" {
		b.product = DefaultProduct
	}
	return b
}

// Store returns the bridge's history store
func (b *Bridge) Store() *history.Store {
	return b.store
}

// isJSONTagged reports whether the payload should go through the grid decoder
func isJSONTagged(data []byte) bool {
	return len(data) > 0 && (data[0] == '{' || data[0] == '[')
}

// HandleWrite processes one inbound wireless write.
//
// The raw bytes are always recorded. JSON payloads are decoded before the lock
// is taken so raw and grid land in one critical section. Quantizing and
// forwarding run after the lock is released. Nothing here is reported back to
// the wireless caller; the returned Report is for local observers.
func (b *Bridge) HandleWrite(ctx context.Context, data []byte) Report {
	rep := Report{Time: time.Now()}

	tagged := isJSONTagged(data)
	var (
		frame     grid.Frame
		decodeErr error
	)
	if tagged {
		frame, decodeErr = grid.Decode(data)
	}
	decoded := tagged && decodeErr == nil

	b.store.Update(func(tx *history.Tx) {
		tx.RecordRaw(data)
		if decoded {
			tx.RecordGrid(frame)
		}
		rep.Snapshot = tx.Snapshot()
	})

	switch {
	case decoded:
		vec := nodestate.Quantize(frame)
		rep.Vector = &vec
		if err := b.fwd.Forward(ctx, vec); err != nil {
			rep.Outcome = OutcomeForwardFailed
			rep.Err = err
			b.log.Error().Err(err).
				Str("grid", frame.Dims()).
				Stringer("states", vec).
				Msg("forward failed")
		} else {
			rep.Outcome = OutcomeForwarded
			b.log.Info().
				Str("grid", frame.Dims()).
				Stringer("states", vec).
				Int("history", rep.Snapshot.HistoryLen).
				Msg("grid forwarded")
		}

	case tagged:
		rep.Err = decodeErr
		rep.Outcome = OutcomeMalformed
		if errors.Is(decodeErr, grid.ErrNotJSON) {
			rep.Outcome = OutcomeNotJSON
		}
		b.log.Warn().Err(decodeErr).
			Int("bytes", len(data)).
			Msg("grid decode failed")

	case len(data) == 4:
		rep.Outcome = OutcomeScalar
		rep.Scalar = math.Float32frombits(binary.LittleEndian.Uint32(data))
		b.log.Debug().
			Float32("value", rep.Scalar).
			Msg("scalar payload")

	default:
		rep.Outcome = OutcomeIgnored
		b.log.Debug().
			Int("bytes", len(data)).
			Msg("payload ignored")
	}

	b.statsMu.Lock()
	b.stats.Update(rep.Outcome)
	b.statsMu.Unlock()

	b.notify(rep)
	return rep
}

// HandleStatusRead returns the status string as bytes for the read characteristic
func (b *Bridge) HandleStatusRead() []byte {
	return []byte(b.Status())
}

// Status formats the current state
func (b *Bridge) Status() string {
	return FormatStatus(b.product, b.store.Snapshot())
}

// FormatStatus renders "<product> | last_raw=N bytes | last_grid=RxC | history=H".
// An absent grid is shown as 0x0.
func FormatStatus(product string, snap history.Snapshot) string {
	rows, cols := 0, 0
	if snap.HasGrid {
		rows, cols = snap.Rows, snap.Cols
	}
	return fmt.Sprintf("%s | last_raw=%d bytes | last_grid=%dx%d | history=%d",
		product, snap.RawLen, rows, cols, snap.HistoryLen)
}

// Statistics returns a copy of the current counters with rates calculated
func (b *Bridge) Statistics() Statistics {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	b.stats.CalculateRates()
	return *b.stats
}

// ResetStatistics zeroes the counters
func (b *Bridge) ResetStatistics() {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()
	b.stats.Reset()
}

// Subscribe registers a listener and returns a function that removes it
func (b *Bridge) Subscribe(fn Listener) func() {
	b.listenersMu.Lock()
	defer b.listenersMu.Unlock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = fn
	return func() {
		b.listenersMu.Lock()
		defer b.listenersMu.Unlock()
		delete(b.listeners, id)
	}
}

func (b *Bridge) notify(rep Report) {
	b.listenersMu.Lock()
	fns := make([]Listener, 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.listenersMu.Unlock()

	for _, fn := range fns {
		fn(rep)
	}
}
