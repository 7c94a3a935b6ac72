package accel_test

// Common initialization and helpers for all test files.
//
// The tests live in an external package and drive the core through the
// hostrt binding, so every cross-queue ordering assertion runs against real
// concurrent queues.

import (
	"testing"

	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"

	"github.com/bigrv/pytorch/accel"
	"github.com/bigrv/pytorch/accel/hostrt"
)

func init() {
	klog.InitFlags(nil)
}

// newTestSystem creates a System over a host-simulated runtime with the given
// number of devices.
func newTestSystem(t *testing.T, devices int) *accel.System {
	t.Helper()
	sys, err := accel.NewSystem(hostrt.New(devices))
	require.NoError(t, err)
	require.Equal(t, devices, sys.DeviceCount())
	return sys
}

// pooledStream is a shortcut for a round-robin stream on a device.
func pooledStream(t *testing.T, sys *accel.System, d accel.Device) accel.Stream {
	t.Helper()
	s, err := sys.StreamFromPool(d)
	require.NoError(t, err)
	require.Equal(t, d, s.Device())
	return s
}

// defaultStream is a shortcut for a device's default stream.
func defaultStream(t *testing.T, sys *accel.System, d accel.Device) accel.Stream {
	t.Helper()
	s, err := sys.DefaultStream(d)
	require.NoError(t, err)
	return s
}

// currentStreamOn is a shortcut for a context's current stream on a device.
func currentStreamOn(t *testing.T, ctx *accel.ExecContext, d accel.Device) accel.Stream {
	t.Helper()
	s, err := ctx.CurrentStreamOn(d)
	require.NoError(t, err)
	return s
}
