// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package forwarder

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/nodestate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubPort records writes and can block or fail
type stubPort struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	writeErr error
	short    bool
	block    chan struct{}
	closed   bool
}

func (p *stubPort) Write(b []byte) (int, error) {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	if p.short {
		return p.buf.Write(b[:len(b)-1])
	}
	return p.buf.Write(b)
}

func (p *stubPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed && p.block != nil {
		close(p.block)
	}
	p.closed = true
	return nil
}

func (p *stubPort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// recordingOpener hands out one stubPort per call
type recordingOpener struct {
	mu      sync.Mutex
	opens   []string
	ports   []*stubPort
	openErr error
	next    func() *stubPort
}

func (o *recordingOpener) open(path string, baud int) (Port, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens = append(o.opens, path)
	if o.openErr != nil {
		return nil, o.openErr
	}
	p := &stubPort{}
	if o.next != nil {
		p = o.next()
	}
	o.ports = append(o.ports, p)
	return p, nil
}

func TestNewSerial_Defaults(t *testing.T) {
	s := NewSerial(Options{})
	assert.Equal(t, DefaultPath, s.Path())
	assert.Equal(t, DefaultBaudRate, s.BaudRate())
	assert.Equal(t, DefaultWriteTimeout, s.timeout)
}

func TestSerial_ForwardWritesSixBytes(t *testing.T) {
	o := &recordingOpener{}
	s := NewSerial(Options{Path: "/dev/ttyTEST", Opener: o.open})

	err := s.Forward(context.Background(), nodestate.Vector{4, 1, 2, 3, 4, 1})
	require.NoError(t, err)

	require.Len(t, o.ports, 1)
	assert.Equal(t, []string{"/dev/ttyTEST"}, o.opens)
	assert.Equal(t, []byte{4, 1, 2, 3, 4, 1}, o.ports[0].buf.Bytes())
	assert.True(t, o.ports[0].isClosed(), "port should be closed after each frame")
}

func TestSerial_OpensFreshEachCall(t *testing.T) {
	o := &recordingOpener{}
	s := NewSerial(Options{Opener: o.open})

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Forward(context.Background(), nodestate.DefaultVector()))
	}
	assert.Len(t, o.opens, 3)
	for _, p := range o.ports {
		assert.True(t, p.isClosed())
	}
}

func TestSerial_OpenError(t *testing.T) {
	o := &recordingOpener{openErr: errors.New("no such file or directory")}
	s := NewSerial(Options{Opener: o.open})

	err := s.Forward(context.Background(), nodestate.DefaultVector())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open serial port")
}

func TestSerial_WriteError(t *testing.T) {
	writeErr := errors.New("input/output error")
	o := &recordingOpener{next: func() *stubPort { return &stubPort{writeErr: writeErr} }}
	s := NewSerial(Options{Opener: o.open})

	err := s.Forward(context.Background(), nodestate.DefaultVector())
	assert.ErrorIs(t, err, writeErr)
	assert.True(t, o.ports[0].isClosed())
}

func TestSerial_ShortWrite(t *testing.T) {
	o := &recordingOpener{next: func() *stubPort { return &stubPort{short: true} }}
	s := NewSerial(Options{Opener: o.open})

	err := s.Forward(context.Background(), nodestate.DefaultVector())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "short write")
}

func TestSerial_WriteTimeout(t *testing.T) {
	o := &recordingOpener{next: func() *stubPort { return &stubPort{block: make(chan struct{})} }}
	s := NewSerial(Options{Opener: o.open, WriteTimeout: 20 * time.Millisecond})

	start := time.Now()
	err := s.Forward(context.Background(), nodestate.DefaultVector())
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrWriteTimeout)
	assert.Less(t, elapsed, time.Second, "timeout should bound the write")
	assert.True(t, o.ports[0].isClosed(), "port should be closed on timeout")
}

func TestSerial_ContextCancel(t *testing.T) {
	o := &recordingOpener{next: func() *stubPort { return &stubPort{block: make(chan struct{})} }}
	s := NewSerial(Options{Opener: o.open, WriteTimeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Forward(ctx, nodestate.DefaultVector())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	require.NoError(t, r.Forward(ctx, nodestate.Vector{1, 1, 1, 1, 1, 1}))
	r.FailWith(errors.New("unplugged"))
	assert.Error(t, r.Forward(ctx, nodestate.Vector{2, 2, 2, 2, 2, 2}))
	r.FailWith(nil)
	require.NoError(t, r.Forward(ctx, nodestate.Vector{3, 3, 3, 3, 3, 3}))

	frames := r.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, nodestate.State(1), frames[0][0])
	assert.Equal(t, nodestate.State(3), frames[1][0])
}

func TestFunc(t *testing.T) {
	var got nodestate.Vector
	f := Func(func(ctx context.Context, v nodestate.Vector) error {
		got = v
		return nil
	})
	require.NoError(t, f.Forward(context.Background(), nodestate.Vector{4, 3, 2, 1, 2, 3}))
	assert.Equal(t, nodestate.Vector{4, 3, 2, 1, 2, 3}, got)
}
