// Package hostrt is a pure-Go accelerator runtime binding that simulates
// devices on the host. Each queue is a goroutine draining a task channel, so
// work on one queue runs in submission order while different queues run
// concurrently; events complete when a marker task closes a channel.
//
// It exists so the accel package, its tests and diagnostic tools can run with
// real cross-queue ordering and no hardware. It implements the binding
// contract only: it is not a kernel scheduler or a thread pool.
package hostrt

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/bigrv/pytorch/accel"
)

// Native error codes reported by this binding through accel.RuntimeError.
const (
	CodeInvalidDevice accel.Code = iota + 1
	CodeUnknownQueue
	CodeUnknownEvent
	CodeEventNotRecorded
)

const taskBacklog = 256

// Runtime simulates a fixed number of accelerator devices on the host.
// All methods are safe for concurrent use.
type Runtime struct {
	devices int

	mu     sync.Mutex
	nextID uint64
	queues map[accel.QueueHandle]*queue
	events map[accel.EventHandle]*event
}

var _ accel.Runtime = (*Runtime)(nil)

// New creates a host runtime exposing the given number of devices.
func New(devices int) *Runtime {
	if devices < 0 {
		devices = 0
	}
	return &Runtime{
		devices: devices,
		queues:  make(map[accel.QueueHandle]*queue),
		events:  make(map[accel.EventHandle]*event),
	}
}

// queue executes tasks in submission order on a dedicated goroutine.
type queue struct {
	device int
	tasks  chan func()
	wg     sync.WaitGroup
}

func (q *queue) run() {
	for task := range q.tasks {
		task()
		q.wg.Done()
	}
}

func (q *queue) submit(task func()) {
	q.wg.Add(1)
	q.tasks <- task
}

// event holds the completion channel of its most recent recording.
type event struct {
	device int

	mu   sync.Mutex
	done chan struct{}
}

func fail(op string, code accel.Code) error {
	return errors.WithStack(&accel.RuntimeError{Op: op, Code: code})
}

// DeviceCount implements accel.Runtime.
func (r *Runtime) DeviceCount() (int, error) {
	return r.devices, nil
}

// SetDevice implements accel.Runtime. The host has no per-thread driver
// context, so beyond validation this is a no-op.
func (r *Runtime) SetDevice(device int) error {
	if device < 0 || device >= r.devices {
		return fail("hostrt.SetDevice", CodeInvalidDevice)
	}
	return nil
}

// CreateQueue implements accel.Runtime.
func (r *Runtime) CreateQueue(device int) (accel.QueueHandle, error) {
	if device < 0 || device >= r.devices {
		return 0, fail("hostrt.CreateQueue", CodeInvalidDevice)
	}
	q := &queue{device: device, tasks: make(chan func(), taskBacklog)}
	go q.run()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	handle := accel.QueueHandle(r.nextID)
	r.queues[handle] = q
	return handle, nil
}

// DestroyQueue implements accel.Runtime. Pending tasks are drained before
// the worker exits.
func (r *Runtime) DestroyQueue(handle accel.QueueHandle) error {
	r.mu.Lock()
	q, ok := r.queues[handle]
	delete(r.queues, handle)
	r.mu.Unlock()
	if !ok {
		return fail("hostrt.DestroyQueue", CodeUnknownQueue)
	}
	close(q.tasks)
	return nil
}

func (r *Runtime) lookupQueue(op string, handle accel.QueueHandle) (*queue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.queues[handle]
	if !ok {
		return nil, fail(op, CodeUnknownQueue)
	}
	return q, nil
}

func (r *Runtime) lookupEvent(op string, handle accel.EventHandle) (*event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[handle]
	if !ok {
		return nil, fail(op, CodeUnknownEvent)
	}
	return e, nil
}

// Submit implements accel.Runtime.
func (r *Runtime) Submit(handle accel.QueueHandle, task func()) error {
	q, err := r.lookupQueue("hostrt.Submit", handle)
	if err != nil {
		return err
	}
	q.submit(task)
	return nil
}

// SynchronizeQueue implements accel.Runtime. It blocks the caller until every
// task submitted to the queue before the call has run.
func (r *Runtime) SynchronizeQueue(handle accel.QueueHandle) error {
	q, err := r.lookupQueue("hostrt.SynchronizeQueue", handle)
	if err != nil {
		return err
	}
	q.wg.Wait()
	return nil
}

// CreateEvent implements accel.Runtime.
func (r *Runtime) CreateEvent(device int) (accel.EventHandle, error) {
	if device < 0 || device >= r.devices {
		return 0, fail("hostrt.CreateEvent", CodeInvalidDevice)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	handle := accel.EventHandle(r.nextID)
	r.events[handle] = &event{device: device}
	return handle, nil
}

// DestroyEvent implements accel.Runtime. Queues already waiting on the event
// keep their captured completion channel, so destroying an event never
// strands them differently than the native "latest recording" contract.
func (r *Runtime) DestroyEvent(handle accel.EventHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[handle]; !ok {
		return fail("hostrt.DestroyEvent", CodeUnknownEvent)
	}
	delete(r.events, handle)
	return nil
}

// Record implements accel.Runtime. The event's completion flips when the
// queue reaches the marker task; a new Record supersedes the previous point.
func (r *Runtime) Record(eventHandle accel.EventHandle, queueHandle accel.QueueHandle) error {
	e, err := r.lookupEvent("hostrt.Record", eventHandle)
	if err != nil {
		return err
	}
	q, err := r.lookupQueue("hostrt.Record", queueHandle)
	if err != nil {
		return err
	}
	ch := make(chan struct{})
	e.mu.Lock()
	e.done = ch
	e.mu.Unlock()
	q.submit(func() { close(ch) })
	return nil
}

// QueryEvent implements accel.Runtime. It reports on the most recent
// recording and never blocks.
func (r *Runtime) QueryEvent(handle accel.EventHandle) (bool, error) {
	e, err := r.lookupEvent("hostrt.QueryEvent", handle)
	if err != nil {
		return false, err
	}
	e.mu.Lock()
	ch := e.done
	e.mu.Unlock()
	if ch == nil {
		return false, nil
	}
	select {
	case <-ch:
		return true, nil
	default:
		return false, nil
	}
}

// WaitEvent implements accel.Runtime. The waiting queue stalls at a task that
// blocks on the completion channel captured at call time, so work submitted
// to it afterwards cannot start before the event's recorded point.
func (r *Runtime) WaitEvent(queueHandle accel.QueueHandle, eventHandle accel.EventHandle) error {
	q, err := r.lookupQueue("hostrt.WaitEvent", queueHandle)
	if err != nil {
		return err
	}
	e, err := r.lookupEvent("hostrt.WaitEvent", eventHandle)
	if err != nil {
		return err
	}
	e.mu.Lock()
	ch := e.done
	e.mu.Unlock()
	if ch == nil {
		return fail("hostrt.WaitEvent", CodeEventNotRecorded)
	}
	q.submit(func() { <-ch })
	return nil
}
