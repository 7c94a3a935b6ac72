package accel

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Event is a cross-queue-visible completion marker. It owns exactly one
// native marker handle, created lazily on first Record and bound to the
// recording stream's device. Recording on a stream of a different device
// destroys and recreates the handle (device rebinding).
//
// Record fully serializes handle replacement internally, but the ordering of
// concurrent Record calls on the same Event from different goroutines is
// undefined; callers must coordinate. Equality of Events is not defined.
type Event struct {
	sys *System

	mu       sync.Mutex
	device   Device
	handle   EventHandle
	created  bool
	recorded bool
}

// NewEvent creates an empty, unrecorded event. The native marker is created
// on first Record. A finalizer releases the native handle if the caller never
// does; failures there are only logged.
func (s *System) NewEvent() *Event {
	e := &Event{sys: s, device: NoDevice}
	runtime.SetFinalizer(e, func(e *Event) {
		if err := e.Destroy(); err != nil {
			klog.Errorf("accel: Event finalizer failed to destroy native handle: %+v", err)
		}
	})
	return e
}

// Device returns the device the event is currently bound to, or NoDevice if
// it has no native handle yet.
func (e *Event) Device() Device {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.device
}

func (e *Event) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.created {
		return "event(unbound)"
	}
	return fmt.Sprintf("event(device=%d, recorded=%v)", e.device, e.recorded)
}

// Record binds (or rebinds) the event to the stream's device and inserts a
// marker into the stream's command order. Each call supersedes the previous
// recorded point; later waiters observe the latest recording only.
func (e *Event) Record(s Stream) error {
	if s.sys == nil {
		return errors.New("cannot record an event on the zero Stream")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sys == nil {
		e.sys = s.sys
	} else if e.sys != s.sys {
		return errors.Errorf("stream %s belongs to a different system than the event", s)
	}
	rt := e.sys.rt
	if e.created && e.device != s.device {
		if err := rt.DestroyEvent(e.handle); err != nil {
			return errors.WithMessagef(err, "rebinding event from device %d to device %d", e.device, s.device)
		}
		e.created = false
		e.recorded = false
	}
	if !e.created {
		handle, err := rt.CreateEvent(int(s.device))
		if err != nil {
			return errors.WithMessagef(err, "creating event on device %d", s.device)
		}
		e.handle = handle
		e.device = s.device
		e.created = true
	}
	if err := rt.Record(e.handle, s.Handle()); err != nil {
		return errors.WithMessagef(err, "recording event on %s", s)
	}
	e.recorded = true
	return nil
}

// RecordOnce is Record, except it is a no-op if the event was already
// recorded at least once. Use it when exactly-once semantics are required
// regardless of how many call sites run.
func (e *Event) RecordOnce(s Stream) error {
	e.mu.Lock()
	already := e.recorded
	e.mu.Unlock()
	if already {
		return nil
	}
	return e.Record(s)
}

// Happened reports whether all device work ordered before the most recent
// recording has completed. It never blocks, and returns false for an event
// that was never recorded. With no intervening Record, a true result is
// permanent.
func (e *Event) Happened() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.recorded {
		return false, nil
	}
	done, err := e.sys.rt.QueryEvent(e.handle)
	return done, errors.WithMessage(err, "querying event completion")
}

// recordedHandle returns the native handle of a recorded event, or
// ErrUnrecordedEvent.
func (e *Event) recordedHandle() (EventHandle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.recorded {
		return 0, errors.WithStack(ErrUnrecordedEvent)
	}
	return e.handle, nil
}

// MoveFrom transfers the native handle and recording state from other into e,
// first destroying whatever handle e owned. The source is left empty: it is
// unrecorded, unbound, and destroying it is a no-op.
func (e *Event) MoveFrom(other *Event) error {
	if e == other {
		return nil
	}
	if err := e.Destroy(); err != nil {
		return err
	}
	other.mu.Lock()
	defer other.mu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	if other.sys != nil {
		e.sys = other.sys
	}
	e.device = other.device
	e.handle = other.handle
	e.created = other.created
	e.recorded = other.recorded
	other.device = NoDevice
	other.handle = 0
	other.created = false
	other.recorded = false
	return nil
}

// Destroy releases the native marker handle, if any. The event returns to
// the empty, unrecorded state and may be recorded again later. Destroy is
// also run by the finalizer, so calling it is optional but deterministic.
func (e *Event) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.created {
		return nil
	}
	err := e.sys.rt.DestroyEvent(e.handle)
	e.handle = 0
	e.device = NoDevice
	e.created = false
	e.recorded = false
	return errors.WithMessage(err, "destroying event")
}
