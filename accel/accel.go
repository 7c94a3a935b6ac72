// Package accel manages execution context for a multi-accelerator runtime:
// ordered command queues (streams), the active device and queue per worker,
// completion markers (events) for cross-queue ordering, and scoped guards
// that redirect the active device/queue and restore it on every exit path.
//
// The package does not talk to hardware itself: it drives a Runtime binding
// (an implementation of the Runtime interface) that wraps the actual driver.
// Kernel launch, memory allocation and op dispatch live outside this package
// and only consume ExecContext.CurrentStream / CurrentDevice.
//
// All mutable "what is current" state lives in an ExecContext, one per worker
// goroutine, created with System.NewContext. Two contexts never observe each
// other's device or stream slots. The stream pool's round-robin counters are
// the only cross-worker shared state and are updated atomically.
package accel

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// System owns the Runtime binding, the enumerated devices and the per-device
// stream pools. There is normally one System per process and binding.
// A System is safe for concurrent use.
type System struct {
	rt          Runtime
	deviceCount int
	pools       []*devicePool
}

// NewSystem enumerates the binding's devices and prepares (but does not yet
// create) one stream pool per device. Queues are created lazily, once, on
// first use of each device.
func NewSystem(rt Runtime) (*System, error) {
	count, err := rt.DeviceCount()
	if err != nil {
		return nil, errors.WithMessage(err, "enumerating devices")
	}
	if count < 0 {
		return nil, errors.Errorf("runtime binding reported a negative device count (%d)", count)
	}
	s := &System{
		rt:          rt,
		deviceCount: count,
		pools:       make([]*devicePool, count),
	}
	for d := range s.pools {
		s.pools[d] = &devicePool{}
	}
	klog.V(1).Infof("accel: system created with %d device(s)", count)
	return s, nil
}

// Runtime returns the binding this system drives. Exposed for layers that
// submit work or block on queue completion outside this package.
func (s *System) Runtime() Runtime {
	return s.rt
}
