package accel

import (
	"fmt"

	"github.com/pkg/errors"
)

// Device is the ordinal of an accelerator device, in [0, System.DeviceCount).
// Device values are immutable once enumerated.
type Device int32

// NoDevice marks the absence of a device binding, e.g. an Event that was
// never recorded or a Guard that never switched devices.
const NoDevice Device = -1

func (d Device) String() string {
	if d == NoDevice {
		return "device(none)"
	}
	return fmt.Sprintf("device(%d)", int32(d))
}

// DeviceCount returns the number of devices enumerated at system creation.
func (s *System) DeviceCount() int {
	return s.deviceCount
}

// checkDevice validates a device ordinal against the enumerated range.
func (s *System) checkDevice(d Device) error {
	if d < 0 || int(d) >= s.deviceCount {
		return errors.Wrapf(ErrInvalidDevice, "device %d out of range [0, %d)", d, s.deviceCount)
	}
	return nil
}
