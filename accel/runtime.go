package accel

import (
	"fmt"
)

// QueueHandle is an opaque reference to a native command queue, minted by the
// Runtime binding. The zero value is never a valid handle.
type QueueHandle uint64

// EventHandle is an opaque reference to a native completion marker, minted by
// the Runtime binding. The zero value is never a valid handle.
type EventHandle uint64

// Code is the native error code reported by a Runtime binding. Its meaning is
// backend specific beyond CodeOK.
type Code int32

// CodeOK means the native call succeeded. Bindings use their own nonzero
// codes for failures.
const CodeOK Code = 0

// Runtime is the binding to an accelerator runtime: the set of synchronous
// primitives this package needs from the underlying driver. Implementations
// wrap a real driver API (CUDA, Metal, a PJRT plugin) or simulate one on the
// host (see the hostrt package).
//
// All calls return synchronously. Failures are reported as *RuntimeError
// values, possibly wrapped with more context.
type Runtime interface {
	// DeviceCount returns the number of available devices.
	DeviceCount() (int, error)

	// SetDevice switches the driver-level current device for the calling
	// thread. Host backends with no notion of a driver thread state may
	// treat it as a hint.
	SetDevice(device int) error

	// CreateQueue creates a native command queue on the given device.
	CreateQueue(device int) (QueueHandle, error)

	// DestroyQueue destroys a native queue. The core never destroys its
	// pooled queues; this exists for externally created ones.
	DestroyQueue(queue QueueHandle) error

	// Submit enqueues one unit of work on the queue. Work on a single
	// queue executes in submission order; work on different queues may
	// run concurrently.
	Submit(queue QueueHandle, task func()) error

	// SynchronizeQueue blocks the caller until all work previously
	// submitted to the queue has completed. This is the explicit blocking
	// call layered outside the non-blocking core operations.
	SynchronizeQueue(queue QueueHandle) error

	// CreateEvent creates a native completion marker bound to a device.
	CreateEvent(device int) (EventHandle, error)

	// DestroyEvent destroys a native completion marker.
	DestroyEvent(event EventHandle) error

	// Record inserts the event as a marker into the queue's command
	// order, superseding any previous recording.
	Record(event EventHandle, queue QueueHandle) error

	// QueryEvent reports whether all work ordered before the event's most
	// recent recording has completed. It never blocks.
	QueryEvent(event EventHandle) (bool, error)

	// WaitEvent inserts a cross-queue wait into the queue's command order:
	// no work submitted to the queue after this call starts before the
	// event's most recent recorded point completes. It never blocks the
	// caller.
	WaitEvent(queue QueueHandle, event EventHandle) error
}

// RuntimeError is a failure reported by the Runtime binding, carrying the
// native operation name and error code. Callers are expected to abort the
// enclosing operation: the core never retries, since accelerator runtime
// errors usually indicate unrecoverable device state.
type RuntimeError struct {
	Op   string
	Code Code
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("accelerator runtime error in %s (code=%d)", e.Op, e.Code)
}
