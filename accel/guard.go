package accel

import (
	"github.com/pkg/errors"
)

// Guard scopes a temporary redirection of a context's current device and/or
// current streams, and restores the original state when released. Callers use
// the execute-and-restore discipline:
//
//	guard := accel.NewGuard(ctx)
//	defer guard.Release()
//	if err := guard.SetStream(s); err != nil { ... }
//
// or the WithDevice / WithStream helpers, which release on every exit path
// including panics.
//
// A guard constructed with NewDeviceGuard snapshots only the current device.
// A stream-form guard (NewGuard / NewStreamGuard) additionally snapshots, on
// its first SetStream, the stream currently active on every device; Release
// puts every snapshotted stream back and then restores the original device,
// so devices the guard never touched keep their state bit for bit.
//
// Exactly one Guard owns a snapshot at a time. MoveFrom transfers ownership
// and leaves the source inert; guards are not safe for concurrent use.
type Guard struct {
	ctx        *ExecContext
	deviceOnly bool
	released   bool

	origDevice  Device
	lastDevice  Device
	origStreams []Stream
}

// NewGuard creates an idle stream-form guard: it snapshots nothing until
// SetDevice or SetStream is called, and releasing it untouched is a no-op.
func NewGuard(ctx *ExecContext) *Guard {
	return &Guard{ctx: ctx, origDevice: NoDevice, lastDevice: NoDevice}
}

// NewDeviceGuard snapshots the current device and switches to d. Releasing it
// restores the original device and nothing else.
func NewDeviceGuard(ctx *ExecContext, d Device) (*Guard, error) {
	g := &Guard{ctx: ctx, deviceOnly: true, origDevice: NoDevice, lastDevice: NoDevice}
	if err := g.SetDevice(d); err != nil {
		return nil, err
	}
	return g, nil
}

// NewStreamGuard snapshots the current device and every device's current
// stream, then makes s current on its device and switches to that device.
func NewStreamGuard(ctx *ExecContext, s Stream) (*Guard, error) {
	g := NewGuard(ctx)
	if err := g.SetStream(s); err != nil {
		return nil, err
	}
	return g, nil
}

// SetDevice switches the current device to d, snapshotting the original
// device on first use. Stream slots are left alone: a device change never
// implies a stream change.
func (g *Guard) SetDevice(d Device) error {
	if g.released {
		return errors.New("guard was already released")
	}
	if g.origDevice == NoDevice {
		g.origDevice = g.ctx.CurrentDevice()
	}
	if err := g.ctx.SetDevice(d); err != nil {
		return err
	}
	g.lastDevice = d
	return nil
}

// SetStream makes s the current stream of its device and switches the current
// device to that device: a stream change always implies a device change to
// the stream's owner, but not vice versa. On first use the guard snapshots
// the current device and the current stream of every device.
//
// Fails with ErrGuardMisuse on a guard constructed with NewDeviceGuard, which
// owns no stream snapshot to restore.
func (g *Guard) SetStream(s Stream) error {
	if g.released {
		return errors.New("guard was already released")
	}
	if g.deviceOnly {
		return errors.WithStack(ErrGuardMisuse)
	}
	if s.sys == nil {
		return errors.New("cannot guard the zero Stream")
	}
	if g.origStreams == nil {
		snapshot := make([]Stream, g.ctx.sys.deviceCount)
		for d := range snapshot {
			cur, err := g.ctx.CurrentStreamOn(Device(d))
			if err != nil {
				return errors.WithMessage(err, "snapshotting current streams")
			}
			snapshot[d] = cur
		}
		g.origStreams = snapshot
	}
	if err := g.SetDevice(s.Device()); err != nil {
		return err
	}
	return g.ctx.SetCurrentStream(s)
}

// Release restores everything the guard still owns: first every snapshotted
// device's original stream, then the original device, so the original device
// is current when control returns to the caller. Release is idempotent, and
// a no-op on a moved-from guard. It keeps restoring past individual failures
// and returns the first error.
func (g *Guard) Release() error {
	if g.released {
		return nil
	}
	g.released = true
	var firstErr error
	for _, s := range g.origStreams {
		if err := g.ctx.SetCurrentStream(s); err != nil && firstErr == nil {
			firstErr = errors.WithMessage(err, "restoring original stream")
		}
	}
	if g.origDevice != NoDevice {
		if err := g.ctx.SetDevice(g.origDevice); err != nil && firstErr == nil {
			firstErr = errors.WithMessage(err, "restoring original device")
		}
	}
	return firstErr
}

// MoveFrom first releases whatever state g already owned, then adopts other's
// snapshot and leaves other inert, so reassignment under nesting never leaks
// an owed restoration. Releasing other afterwards restores nothing.
func (g *Guard) MoveFrom(other *Guard) error {
	if g == other {
		return nil
	}
	err := g.Release()
	g.ctx = other.ctx
	g.deviceOnly = other.deviceOnly
	g.released = other.released
	g.origDevice = other.origDevice
	g.lastDevice = other.lastDevice
	g.origStreams = other.origStreams
	other.released = true
	other.origStreams = nil
	other.origDevice = NoDevice
	return err
}

// OriginalDevice returns the device that was current when the guard first
// switched away, or NoDevice if it never did.
func (g *Guard) OriginalDevice() Device {
	return g.origDevice
}

// LastDevice returns the most recently requested device, or NoDevice.
func (g *Guard) LastDevice() Device {
	return g.lastDevice
}

// OriginalStreams returns a copy of the guard's stream snapshot, one entry
// per device, or nil if no snapshot was taken yet.
func (g *Guard) OriginalStreams() []Stream {
	if g.origStreams == nil {
		return nil
	}
	out := make([]Stream, len(g.origStreams))
	copy(out, g.origStreams)
	return out
}

// WithDevice runs fn with d as the current device and restores the original
// device afterwards, on normal return, error and panic alike.
func WithDevice(ctx *ExecContext, d Device, fn func() error) (err error) {
	guard, err := NewDeviceGuard(ctx, d)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := guard.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	err = fn()
	return err
}

// WithStream runs fn with s current on its device (and that device current)
// and restores all snapshotted state afterwards, on normal return, error and
// panic alike.
func WithStream(ctx *ExecContext, s Stream, fn func() error) (err error) {
	guard, err := NewStreamGuard(ctx, s)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := guard.Release(); rerr != nil && err == nil {
			err = rerr
		}
	}()
	err = fn()
	return err
}
