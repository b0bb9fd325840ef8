// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/forwarder"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/history"
	"github.com/CapNCrunchy/Wearable-Haptic-Vision/pkg/nodestate"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBridge(t *testing.T) (*Bridge, *forwarder.Recorder) {
	t.Helper()
	rec := forwarder.NewRecorder()
	b := New(Options{
		Forwarder: rec,
		Logger:    zerolog.Nop(),
		Product:   "test-bridge/1.0",
	})
	return b, rec
}

// ============================================================
// Write Path
// ============================================================

func TestHandleWrite_EndToEnd(t *testing.T) {
	b, rec := newTestBridge(t)

	rep := b.HandleWrite(context.Background(), []byte(`[[0.1,0.9,0.5],[0.3,0.0,1.0]]`))

	assert.Equal(t, OutcomeForwarded, rep.Outcome)
	require.NotNil(t, rep.Vector)
	assert.Equal(t, nodestate.Vector{4, 1, 2, 3, 4, 1}, *rep.Vector)

	frames := rec.Frames()
	require.Len(t, frames, 1)
	assert.Equal(t, []byte{4, 1, 2, 3, 4, 1}, frames[0].Bytes())

	snap := b.Store().Snapshot()
	assert.Equal(t, history.Snapshot{RawLen: 29, HasGrid: true, Rows: 2, Cols: 3, HistoryLen: 1}, snap)
	assert.Equal(t, snap, rep.Snapshot)
}

func TestHandleWrite_WrappedGrid(t *testing.T) {
	b, rec := newTestBridge(t)

	rep := b.HandleWrite(context.Background(), []byte(`{"grid": [[0.8]]}`))

	assert.Equal(t, OutcomeForwarded, rep.Outcome)
	require.Len(t, rec.Frames(), 1)
	assert.Equal(t, nodestate.Vector{1, 4, 4, 4, 4, 4}, rec.Frames()[0])
}

func TestHandleWrite_NotJSON(t *testing.T) {
	b, rec := newTestBridge(t)

	rep := b.HandleWrite(context.Background(), []byte("not json"))

	assert.Equal(t, OutcomeIgnored, rep.Outcome)
	assert.Empty(t, rec.Frames(), "no serial write for non-JSON payload")

	snap := b.Store().Snapshot()
	assert.Equal(t, 8, snap.RawLen)
	assert.False(t, snap.HasGrid)
	assert.Equal(t, 0, snap.HistoryLen)
}

func TestHandleWrite_TaggedButInvalidJSON(t *testing.T) {
	b, rec := newTestBridge(t)

	rep := b.HandleWrite(context.Background(), []byte("[[0.1, oops"))

	assert.Equal(t, OutcomeNotJSON, rep.Outcome)
	assert.Error(t, rep.Err)
	assert.Empty(t, rec.Frames())
	assert.Equal(t, 11, b.Store().Snapshot().RawLen)
}

func TestHandleWrite_EmptyObject(t *testing.T) {
	b, rec := newTestBridge(t)

	rep := b.HandleWrite(context.Background(), []byte("{}"))

	assert.Equal(t, OutcomeMalformed, rep.Outcome)
	assert.Empty(t, rec.Frames())
	snap := b.Store().Snapshot()
	assert.Equal(t, 2, snap.RawLen)
	assert.False(t, snap.HasGrid)
}

func TestHandleWrite_RaggedKeepsPreviousGrid(t *testing.T) {
	b, rec := newTestBridge(t)
	ctx := context.Background()

	b.HandleWrite(ctx, []byte(`[[1,2],[3,4]]`))
	rep := b.HandleWrite(ctx, []byte(`[[1,2,3],[4,5]]`))

	assert.Equal(t, OutcomeMalformed, rep.Outcome)
	assert.Len(t, rec.Frames(), 1)

	snap := b.Store().Snapshot()
	assert.Equal(t, 15, snap.RawLen, "raw reflects the rejected payload")
	assert.Equal(t, 2, snap.Rows)
	assert.Equal(t, 2, snap.Cols)
	assert.Equal(t, 1, snap.HistoryLen)
}

func TestHandleWrite_EmptyGridForwardsDefault(t *testing.T) {
	b, rec := newTestBridge(t)

	rep := b.HandleWrite(context.Background(), []byte("[]"))

	assert.Equal(t, OutcomeForwarded, rep.Outcome)
	require.Len(t, rec.Frames(), 1)
	assert.Equal(t, nodestate.DefaultVector(), rec.Frames()[0])
	assert.Equal(t, "test-bridge/1.0 | last_raw=2 bytes | last_grid=0x0 | history=1", b.Status())
}

func TestHandleWrite_ScalarPayload(t *testing.T) {
	b, rec := newTestBridge(t)

	payload := make([]byte, 4)
	binary.LittleEndian.PutUint32(payload, math.Float32bits(0.625))
	rep := b.HandleWrite(context.Background(), payload)

	assert.Equal(t, OutcomeScalar, rep.Outcome)
	assert.Equal(t, float32(0.625), rep.Scalar)
	assert.Empty(t, rec.Frames())

	snap := b.Store().Snapshot()
	assert.Equal(t, 4, snap.RawLen)
	assert.False(t, snap.HasGrid)
}

func TestHandleWrite_EmptyPayload(t *testing.T) {
	b, _ := newTestBridge(t)
	b.HandleWrite(context.Background(), []byte("abc"))

	rep := b.HandleWrite(context.Background(), nil)

	assert.Equal(t, OutcomeIgnored, rep.Outcome)
	assert.Equal(t, 0, b.Store().Snapshot().RawLen)
}

func TestHandleWrite_ForwardFailureIsSwallowed(t *testing.T) {
	b, rec := newTestBridge(t)
	rec.FailWith(errors.New("device not found"))
	ctx := context.Background()

	rep := b.HandleWrite(ctx, []byte(`[[0.9]]`))
	assert.Equal(t, OutcomeForwardFailed, rep.Outcome)
	assert.Error(t, rep.Err)

	// Grid still recorded and bridge keeps serving
	assert.Equal(t, 1, b.Store().Snapshot().HistoryLen)

	rec.FailWith(nil)
	rep = b.HandleWrite(ctx, []byte(`[[0.1]]`))
	assert.Equal(t, OutcomeForwarded, rep.Outcome)
	assert.Equal(t, 2, b.Store().Snapshot().HistoryLen)
}

func TestHandleWrite_HistoryBounded(t *testing.T) {
	b, _ := newTestBridge(t)
	for i := 0; i < 20; i++ {
		b.HandleWrite(context.Background(), []byte(fmt.Sprintf(`[[%d]]`, i)))
	}
	assert.Equal(t, history.Capacity, b.Store().Snapshot().HistoryLen)
	h := b.Store().History()
	assert.Equal(t, 12.0, h[0].At(0, 0))
	assert.Equal(t, 19.0, h[len(h)-1].At(0, 0))
}

// ============================================================
// Read Path
// ============================================================

func TestStatus_Initial(t *testing.T) {
	b, _ := newTestBridge(t)
	assert.Equal(t, "test-bridge/1.0 | last_raw=0 bytes | last_grid=0x0 | history=0", b.Status())
	assert.Equal(t, []byte(b.Status()), b.HandleStatusRead())
}

func TestStatus_DefaultProduct(t *testing.T) {
	b := New(Options{Forwarder: forwarder.NewRecorder(), Logger: zerolog.Nop()})
	assert.True(t, strings.HasPrefix(b.Status(), ProductName+"/"+Version+" | "))
}

func TestStatus_AfterWrite(t *testing.T) {
	b, _ := newTestBridge(t)
	b.HandleWrite(context.Background(), []byte(`{"grid":[[0.2,0.4],[0.6,0.8],[1,0]]}`))
	assert.Equal(t, "test-bridge/1.0 | last_raw=36 bytes | last_grid=3x2 | history=1", b.Status())
}

func TestStatus_IsASCII(t *testing.T) {
	b, _ := newTestBridge(t)
	b.HandleWrite(context.Background(), []byte(`[[0.5]]`))
	for i, c := range b.HandleStatusRead() {
		if c > 0x7F {
			t.Fatalf("non-ASCII byte 0x%02X at %d", c, i)
		}
	}
}

// ============================================================
// Concurrency
// ============================================================

func TestSlowForwarderDoesNotBlockReads(t *testing.T) {
	rec := forwarder.NewRecorder()
	rec.SetLatency(300 * time.Millisecond)
	b := New(Options{Forwarder: rec, Logger: zerolog.Nop()})

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.HandleWrite(context.Background(), []byte(`[[0.5]]`))
	}()

	// Give the writer time to reach the forwarder
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	status := b.Status()
	assert.Less(t, time.Since(start), 100*time.Millisecond, "status read blocked by forwarder")
	assert.Contains(t, status, "last_grid=1x1")

	<-done
}

func TestConcurrentWritesAndReads(t *testing.T) {
	b, rec := newTestBridge(t)
	ctx := context.Background()
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				b.HandleWrite(ctx, []byte(fmt.Sprintf(`[[%d.0, 0.5]]`, (w+i)%2)))
			}
		}(w)
	}
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				snap := b.Store().Snapshot()
				if snap.HistoryLen > history.Capacity {
					t.Errorf("history overflow: %d", snap.HistoryLen)
				}
				_ = b.HandleStatusRead()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, rec.Frames(), 200)
	stats := b.Statistics()
	assert.Equal(t, uint64(200), stats.TotalWrites)
	assert.Equal(t, uint64(200), stats.Forwarded)
}

func TestReadAfterWriteIsConsistent(t *testing.T) {
	b, _ := newTestBridge(t)
	ctx := context.Background()

	for i := 1; i <= 10; i++ {
		rows := strings.Repeat("[0.5],", i)
		payload := "[" + strings.TrimSuffix(rows, ",") + "]"
		b.HandleWrite(ctx, []byte(payload))

		snap := b.Store().Snapshot()
		assert.Equal(t, len(payload), snap.RawLen)
		assert.Equal(t, i, snap.Rows)
		assert.Equal(t, 1, snap.Cols)
		assert.Equal(t, min(i, history.Capacity), snap.HistoryLen)
	}
}

// ============================================================
// Listeners & Statistics
// ============================================================

func TestSubscribe(t *testing.T) {
	b, _ := newTestBridge(t)
	var got []Outcome
	unsubscribe := b.Subscribe(func(r Report) {
		got = append(got, r.Outcome)
	})

	ctx := context.Background()
	b.HandleWrite(ctx, []byte(`[[1]]`))
	b.HandleWrite(ctx, []byte(`[[1],[2,3]]`))
	unsubscribe()
	b.HandleWrite(ctx, []byte(`[[1]]`))

	assert.Equal(t, []Outcome{OutcomeForwarded, OutcomeMalformed}, got)
}

func TestListenerCanReadStatus(t *testing.T) {
	b, _ := newTestBridge(t)
	var status string
	b.Subscribe(func(Report) {
		// Listeners run outside the lock, so reading state must not deadlock
		status = b.Status()
	})
	b.HandleWrite(context.Background(), []byte(`[[1,2]]`))
	assert.Contains(t, status, "last_grid=1x2")
}

func TestStatistics(t *testing.T) {
	b, rec := newTestBridge(t)
	ctx := context.Background()

	b.HandleWrite(ctx, []byte(`[[1]]`))
	b.HandleWrite(ctx, []byte(`[[1],[]]`))
	b.HandleWrite(ctx, []byte(`[oops`))
	b.HandleWrite(ctx, []byte{0, 0, 0x80, 0x3F})
	b.HandleWrite(ctx, []byte("hello"))
	rec.FailWith(errors.New("unplugged"))
	b.HandleWrite(ctx, []byte(`[[0]]`))

	s := b.Statistics()
	assert.Equal(t, uint64(6), s.TotalWrites)
	assert.Equal(t, uint64(2), s.DecodedGrids)
	assert.Equal(t, uint64(1), s.Forwarded)
	assert.Equal(t, uint64(1), s.ForwardErrors)
	assert.Equal(t, uint64(1), s.Malformed)
	assert.Equal(t, uint64(1), s.NotJSON)
	assert.Equal(t, uint64(1), s.Scalars)
	assert.Equal(t, uint64(1), s.Ignored)
	assert.Equal(t, uint64(3), s.Errors())

	summary := s.String()
	assert.Contains(t, summary, "Total Writes:")
	assert.Contains(t, summary, "Forward Errors:")

	b.ResetStatistics()
	assert.Equal(t, uint64(0), b.Statistics().TotalWrites)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "FORWARDED", OutcomeForwarded.String())
	assert.Equal(t, "MALFORMED", OutcomeMalformed.String())
	assert.Equal(t, "UNKNOWN", Outcome(99).String())
	assert.True(t, OutcomeForwardFailed.Decoded())
	assert.False(t, OutcomeScalar.Decoded())
}
