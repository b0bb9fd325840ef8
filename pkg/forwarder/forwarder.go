// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package forwarder delivers actuator commands to the haptic microcontroller.
//
// Delivery is best effort: each call opens the serial device, writes one
// six-byte frame and closes it again. There is no retry and no acknowledgement.
package forwarder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/nodestate"
	"go.bug.st/serial"
)

// Defaults match the microcontroller's USB CDC data channel
const (
	DefaultPath         = "/dev/ttyACM0"
	DefaultBaudRate     = 115200
	DefaultWriteTimeout = 50 * time.Millisecond
)

// ErrWriteTimeout is returned when the frame was not written within WriteTimeout
var ErrWriteTimeout = errors.New("serial write timed out")

// Forwarder sends a node-state vector to the actuators
type Forwarder interface {
	Forward(ctx context.Context, v nodestate.Vector) error
}

// Func adapts a function to the Forwarder interface
type Func func(ctx context.Context, v nodestate.Vector) error

// Forward calls f
func (f Func) Forward(ctx context.Context, v nodestate.Vector) error {
	return f(ctx, v)
}

// Port is the part of a serial port the forwarder needs
type Port interface {
	io.Writer
	io.Closer
}

// Opener opens the serial device. Tests substitute a recording stub.
type Opener func(path string, baudRate int) (Port, error)

// Options configures a Serial forwarder
type Options struct {
	Path         string
	BaudRate     int
	WriteTimeout time.Duration
	Opener       Opener
}

// Serial forwards frames over a serial link, opening the device per call
type Serial struct {
	path     string
	baudRate int
	timeout  time.Duration
	open     Opener
}

// NewSerial creates a serial forwarder, filling unset options with defaults
func NewSerial(opts Options) *Serial {
	s := &Serial{
		path:     opts.Path,
		baudRate: opts.BaudRate,
		timeout:  opts.WriteTimeout,
		open:     opts.Opener,
	}
	if s.path == "" {
		s.path = DefaultPath
	}
	if s.baudRate <= 0 {
		s.baudRate = DefaultBaudRate
	}
	if s.timeout <= 0 {
		s.timeout = DefaultWriteTimeout
	}
	if s.open == nil {
		s.open = OpenSerialPort
	}
	return s
}

// Path returns the serial device path
func (s *Serial) Path() string {
	return s.path
}

// BaudRate returns the configured baud rate
func (s *Serial) BaudRate() int {
	return s.baudRate
}

// Forward writes the six-byte frame for v.
// The write is bounded by the write timeout; on expiry the port is closed
// to unblock the writer and ErrWriteTimeout is returned.
func (s *Serial) Forward(ctx context.Context, v nodestate.Vector) error {
	port, err := s.open(s.path, s.baudRate)
	if err != nil {
		return fmt.Errorf("failed to open serial port %s: %w", s.path, err)
	}

	frame := v.Bytes()
	done := make(chan error, 1)
	go func() {
		n, err := port.Write(frame)
		if err == nil && n < len(frame) {
			err = io.ErrShortWrite
		}
		done <- err
	}()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		closeErr := port.Close()
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", s.path, err)
		}
		if closeErr != nil {
			return fmt.Errorf("failed to close %s: %w", s.path, closeErr)
		}
		return nil

	case <-timer.C:
		port.Close()
		return fmt.Errorf("%s after %v: %w", s.path, s.timeout, ErrWriteTimeout)

	case <-ctx.Done():
		port.Close()
		return ctx.Err()
	}
}

// drainingPort waits for the output buffer to be transmitted after each write
type drainingPort struct {
	port serial.Port
}

func (d *drainingPort) Write(p []byte) (int, error) {
	n, err := d.port.Write(p)
	if err != nil {
		return n, err
	}
	return n, d.port.Drain()
}

func (d *drainingPort) Close() error {
	return d.port.Close()
}

// OpenSerialPort opens a real serial device at 8N1
func OpenSerialPort(path string, baudRate int) (Port, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return &drainingPort{port: port}, nil
}

// Recorder keeps every forwarded vector in memory.
// Used by --dry-run and tests.
type Recorder struct {
	mu      sync.Mutex
	frames  []nodestate.Vector
	err     error
	latency time.Duration
}

// NewRecorder creates an empty recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// FailWith makes subsequent Forward calls return err (nil to clear)
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// SetLatency delays each Forward call
func (r *Recorder) SetLatency(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.latency = d
}

// Forward records v unless a failure is configured
func (r *Recorder) Forward(ctx context.Context, v nodestate.Vector) error {
	r.mu.Lock()
	latency, err := r.latency, r.err
	r.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, v)
	return nil
}

// Frames returns a copy of the recorded vectors
func (r *Recorder) Frames() []nodestate.Vector {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]nodestate.Vector(nil), r.frames...)
}
