package accel

import (
	"github.com/pkg/errors"
)

// ExecContext holds the mutable execution state of one worker: the current
// device and, per device, the current stream. Accelerator execution context
// is conventionally thread-affine, so each worker goroutine owns exactly one
// ExecContext and never shares it; the type is not safe for concurrent use.
//
// A fresh context starts on device 0 with every device's slot set to that
// device's default stream.
type ExecContext struct {
	sys    *System
	device Device

	// streams has one slot per device. The zero Stream in a slot stands
	// for the device's default stream, so defaults are not materialized
	// until first read.
	streams []Stream
}

// NewContext creates an execution context for one worker goroutine.
func (s *System) NewContext() *ExecContext {
	return &ExecContext{
		sys:     s,
		streams: make([]Stream, s.deviceCount),
	}
}

// System returns the owning system.
func (c *ExecContext) System() *System {
	return c.sys
}

// CurrentDevice returns this worker's current device.
func (c *ExecContext) CurrentDevice() Device {
	return c.device
}

// SetDevice switches this worker's current device. Subsequent stream
// operations that take no explicit device implicitly target it. Fails with
// ErrInvalidDevice for out-of-range ordinals.
func (c *ExecContext) SetDevice(d Device) error {
	if err := c.sys.checkDevice(d); err != nil {
		return err
	}
	if err := c.sys.rt.SetDevice(int(d)); err != nil {
		return errors.WithMessagef(err, "switching to device %d", d)
	}
	c.device = d
	return nil
}

// CurrentStream returns the current stream of the current device.
func (c *ExecContext) CurrentStream() (Stream, error) {
	return c.CurrentStreamOn(c.device)
}

// CurrentStreamOn returns the current stream of the given device,
// independent of which device is current.
func (c *ExecContext) CurrentStreamOn(d Device) (Stream, error) {
	if err := c.sys.checkDevice(d); err != nil {
		return Stream{}, err
	}
	if s := c.streams[d]; s.sys != nil {
		return s, nil
	}
	return c.sys.DefaultStream(d)
}

// SetCurrentStream installs the stream as the current stream of the stream's
// own device. It does not change the current device.
func (c *ExecContext) SetCurrentStream(s Stream) error {
	if s.sys == nil {
		return errors.New("cannot install the zero Stream as current")
	}
	if s.sys != c.sys {
		return errors.Errorf("stream %s belongs to a different system", s)
	}
	c.streams[s.device] = s
	return nil
}

// StreamFromPool returns the next pooled stream of the current device.
func (c *ExecContext) StreamFromPool() (Stream, error) {
	return c.sys.StreamFromPool(c.device)
}
