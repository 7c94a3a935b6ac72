package accel

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// StreamsPerPool is the number of pooled queues pre-created per device.
// It bounds native queue creation while leaving enough independent in-order
// queues to exploit parallelism across unrelated work.
const StreamsPerPool = 32

// streamID identifies a queue within its device: the device default, one of
// the StreamsPerPool pooled queues, or an externally registered queue.
type streamID int32

const defaultStreamID streamID = -1

// Stream is a lightweight non-owning value handle to one native command
// queue on one device. Copying a Stream copies the reference, never the
// queue; pooled and default queues live for the lifetime of the process.
// Two Stream values from the same System compare equal with == exactly when
// they refer to the same native handle.
//
// The zero Stream is a placeholder valid only as an assignment target.
type Stream struct {
	sys    *System
	device Device
	id     streamID
}

// Device returns the device that owns the stream's queue.
func (s Stream) Device() Device {
	return s.device
}

// Handle resolves the stream to its native queue handle. It returns zero for
// the zero Stream.
func (s Stream) Handle() QueueHandle {
	if s.sys == nil {
		return 0
	}
	p := s.sys.pools[s.device]
	switch {
	case s.id == defaultStreamID:
		return p.defQueue
	case int(s.id) < StreamsPerPool:
		return p.queues[s.id]
	default:
		p.extMu.RLock()
		defer p.extMu.RUnlock()
		return p.externals[int(s.id)-StreamsPerPool]
	}
}

func (s Stream) String() string {
	switch {
	case s.sys == nil:
		return "stream(nil)"
	case s.id == defaultStreamID:
		return fmt.Sprintf("stream(device=%d, default)", s.device)
	case int(s.id) < StreamsPerPool:
		return fmt.Sprintf("stream(device=%d, pool=%d)", s.device, s.id)
	default:
		return fmt.Sprintf("stream(device=%d, external=%d)", s.device, int(s.id)-StreamsPerPool)
	}
}

// Submit enqueues one unit of work on the stream's queue. Work submitted to a
// single stream executes in submission order. The call never blocks on
// accelerator completion.
func (s Stream) Submit(task func()) error {
	if s.sys == nil {
		return errors.New("cannot submit to the zero Stream")
	}
	return errors.WithMessagef(s.sys.rt.Submit(s.Handle(), task), "submitting work to %s", s)
}

// Synchronize blocks the caller until all work previously submitted to the
// stream has completed. This is the one explicitly blocking call, layered on
// top of the non-blocking core operations.
func (s Stream) Synchronize() error {
	if s.sys == nil {
		return errors.New("cannot synchronize the zero Stream")
	}
	return errors.WithMessagef(s.sys.rt.SynchronizeQueue(s.Handle()), "synchronizing %s", s)
}

// SynchronizeWith inserts a cross-queue wait into the stream's command order:
// no work submitted to this stream afterwards starts before the event's most
// recent recorded point completes. The calling goroutine is not blocked.
//
// Waiting on an event recorded on a different device is legal and is the only
// cross-device ordering mechanism in this package. Fails with
// ErrUnrecordedEvent if the event was never recorded.
func (s Stream) SynchronizeWith(e *Event) error {
	if s.sys == nil {
		return errors.New("cannot synchronize the zero Stream")
	}
	handle, err := e.recordedHandle()
	if err != nil {
		return err
	}
	return errors.WithMessagef(s.sys.rt.WaitEvent(s.Handle(), handle), "making %s wait for %s", s, e)
}

// devicePool holds one device's default queue plus a fixed set of pooled
// queues, created lazily exactly once, and any externally registered queues.
type devicePool struct {
	once     sync.Once
	initErr  error
	defQueue QueueHandle
	queues   [StreamsPerPool]QueueHandle
	rr       atomic.Uint32

	extMu     sync.RWMutex
	externals []QueueHandle
}

func (p *devicePool) init(rt Runtime, d Device) error {
	var err error
	p.defQueue, err = rt.CreateQueue(int(d))
	if err != nil {
		return errors.WithMessagef(err, "creating default queue on device %d", d)
	}
	for i := range p.queues {
		p.queues[i], err = rt.CreateQueue(int(d))
		if err != nil {
			return errors.WithMessagef(err, "creating pooled queue %d on device %d", i, d)
		}
	}
	klog.V(1).Infof("accel: initialized stream pool for device %d (%d queues)", d, StreamsPerPool+1)
	return nil
}

// pool returns the device's pool, creating its queues on first use.
func (s *System) pool(d Device) (*devicePool, error) {
	if err := s.checkDevice(d); err != nil {
		return nil, err
	}
	p := s.pools[d]
	p.once.Do(func() {
		p.initErr = p.init(s.rt, d)
	})
	return p, p.initErr
}

// DefaultStream returns the device's distinguished default queue. The same
// handle is returned for the lifetime of the process.
func (s *System) DefaultStream(d Device) (Stream, error) {
	if _, err := s.pool(d); err != nil {
		return Stream{}, err
	}
	return Stream{sys: s, device: d, id: defaultStreamID}, nil
}

// StreamFromPool hands out the device's pooled queues in round-robin order.
// After StreamsPerPool consecutive calls every pooled queue has been returned
// exactly once; once the pool is warm no call ever creates a native queue.
// Concurrent callers each get a valid, well-defined queue.
func (s *System) StreamFromPool(d Device) (Stream, error) {
	p, err := s.pool(d)
	if err != nil {
		return Stream{}, err
	}
	idx := (p.rr.Add(1) - 1) % StreamsPerPool
	return Stream{sys: s, device: d, id: streamID(idx)}, nil
}

// ExternalStream wraps a native queue created outside the pool as a Stream
// value, so it can be installed as a device's current stream. Registering the
// same handle again returns the original Stream value, preserving handle
// equality.
func (s *System) ExternalStream(d Device, handle QueueHandle) (Stream, error) {
	if err := s.checkDevice(d); err != nil {
		return Stream{}, err
	}
	if handle == 0 {
		return Stream{}, errors.New("cannot register the zero queue handle as an external stream")
	}
	p := s.pools[d]
	p.extMu.Lock()
	defer p.extMu.Unlock()
	for i, h := range p.externals {
		if h == handle {
			return Stream{sys: s, device: d, id: streamID(StreamsPerPool + i)}, nil
		}
	}
	p.externals = append(p.externals, handle)
	return Stream{sys: s, device: d, id: streamID(StreamsPerPool + len(p.externals) - 1)}, nil
}
