package accel_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bigrv/pytorch/accel"
)

func TestEventUnrecorded(t *testing.T) {
	sys := newTestSystem(t, 1)
	e := sys.NewEvent()

	require.Equal(t, accel.NoDevice, e.Device())
	happened, err := e.Happened()
	require.NoError(t, err)
	require.False(t, happened, "an event must never report completion before any recording")

	s := pooledStream(t, sys, 0)
	require.ErrorIs(t, s.SynchronizeWith(e), accel.ErrUnrecordedEvent)
}

// Mirrors the classic event-sync scenario: record on one queue, make two
// other queues wait, drive the recording queue to completion, and verify both
// the event state and that the waiters' work did not start early.
func TestEventSync(t *testing.T) {
	sys := newTestSystem(t, 1)

	q0 := pooledStream(t, sys, 0)
	wait0 := pooledStream(t, sys, 0)
	wait1 := pooledStream(t, sys, 0)
	e := sys.NewEvent()

	gate := make(chan struct{})
	var recordedPointDone atomic.Bool
	require.NoError(t, q0.Submit(func() {
		<-gate
		recordedPointDone.Store(true)
	}))
	require.NoError(t, e.Record(q0))
	require.Equal(t, accel.Device(0), e.Device())

	happened, err := e.Happened()
	require.NoError(t, err)
	require.False(t, happened)

	require.NoError(t, wait0.SynchronizeWith(e))
	require.NoError(t, wait1.SynchronizeWith(e))

	var sawRecordedPoint atomic.Bool
	var waiterRan atomic.Bool
	require.NoError(t, wait0.Submit(func() {
		sawRecordedPoint.Store(recordedPointDone.Load())
		waiterRan.Store(true)
	}))

	// The waiter's work must be stalled behind the recorded point.
	time.Sleep(20 * time.Millisecond)
	require.False(t, waiterRan.Load(), "work behind the wait started before the recorded point")

	close(gate)
	require.NoError(t, q0.Synchronize())
	require.NoError(t, wait0.Synchronize())
	require.NoError(t, wait1.Synchronize())

	require.True(t, sawRecordedPoint.Load())

	// Once true, always true.
	for i := 0; i < 3; i++ {
		happened, err = e.Happened()
		require.NoError(t, err)
		require.True(t, happened)
	}
}

// A later recording supersedes the earlier one: completion tracks the most
// recent recorded point only.
func TestEventRecordSupersedes(t *testing.T) {
	sys := newTestSystem(t, 1)

	blocked := pooledStream(t, sys, 0)
	free := pooledStream(t, sys, 0)
	e := sys.NewEvent()

	gate := make(chan struct{})
	require.NoError(t, blocked.Submit(func() { <-gate }))
	require.NoError(t, e.Record(blocked))

	happened, err := e.Happened()
	require.NoError(t, err)
	require.False(t, happened)

	require.NoError(t, e.Record(free))
	require.NoError(t, free.Synchronize())

	happened, err = e.Happened()
	require.NoError(t, err)
	require.True(t, happened, "the superseding recording on an idle queue must complete")

	close(gate)
	require.NoError(t, blocked.Synchronize())
}

func TestEventRecordOnce(t *testing.T) {
	sys := newTestSystem(t, 2)

	s0 := pooledStream(t, sys, 0)
	s1 := pooledStream(t, sys, 1)
	e := sys.NewEvent()

	require.NoError(t, e.RecordOnce(s0))
	require.Equal(t, accel.Device(0), e.Device())

	// Already recorded: further RecordOnce calls do nothing, in particular
	// no rebinding to another device.
	require.NoError(t, e.RecordOnce(s1))
	require.Equal(t, accel.Device(0), e.Device())

	require.NoError(t, s0.Synchronize())
	happened, err := e.Happened()
	require.NoError(t, err)
	require.True(t, happened)
}

func TestEventRebindsAcrossDevices(t *testing.T) {
	sys := newTestSystem(t, 2)

	s0 := pooledStream(t, sys, 0)
	s1 := pooledStream(t, sys, 1)
	e := sys.NewEvent()

	require.NoError(t, e.Record(s0))
	require.Equal(t, accel.Device(0), e.Device())

	require.NoError(t, e.Record(s1))
	require.Equal(t, accel.Device(1), e.Device())

	require.NoError(t, s1.Synchronize())
	happened, err := e.Happened()
	require.NoError(t, err)
	require.True(t, happened)

	// Cross-device wait: a device-0 queue ordering itself behind a
	// device-1 recording is legal.
	require.NoError(t, s0.SynchronizeWith(e))
	require.NoError(t, s0.Synchronize())
}

func TestEventMoveTransfersOwnership(t *testing.T) {
	sys := newTestSystem(t, 1)

	s := pooledStream(t, sys, 0)
	src := sys.NewEvent()
	require.NoError(t, src.Record(s))
	require.NoError(t, s.Synchronize())

	dst := sys.NewEvent()
	require.NoError(t, dst.MoveFrom(src))

	require.Equal(t, accel.Device(0), dst.Device())
	happened, err := dst.Happened()
	require.NoError(t, err)
	require.True(t, happened)

	// The source is empty: unbound, unrecorded, and destroying it is a
	// no-op.
	require.Equal(t, accel.NoDevice, src.Device())
	happened, err = src.Happened()
	require.NoError(t, err)
	require.False(t, happened)
	require.ErrorIs(t, s.SynchronizeWith(src), accel.ErrUnrecordedEvent)
	require.NoError(t, src.Destroy())

	require.NoError(t, dst.Destroy())
}
