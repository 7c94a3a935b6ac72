package accel

import (
	"github.com/pkg/errors"
)

// Sentinel errors for programmer-contract violations. They are raised
// synchronously, wrapped with call-site context, and are meant to be fixed
// rather than handled at runtime. Match them with errors.Is.
var (
	// ErrInvalidDevice reports a device ordinal outside [0, DeviceCount).
	// Out-of-range ordinals are never clamped.
	ErrInvalidDevice = errors.New("invalid device ordinal")

	// ErrUnrecordedEvent reports an attempt to synchronize against an
	// event that was never recorded.
	ErrUnrecordedEvent = errors.New("event was never recorded")

	// ErrGuardMisuse reports a stream operation on a guard constructed in
	// device-only form, which never snapshots streams and so could not
	// restore them.
	ErrGuardMisuse = errors.New("stream operation on a device-only guard")
)
