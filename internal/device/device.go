// Package device implements the per-device scheduler: the two scheduling
// disciplines (blocking, deferred-lined-up), the worker loop, task
// selection, deferred-open handling, and the force-cleanup
// resource-starvation recovery protocol.
package device

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
	"golang.org/x/sys/unix"

	"github.com/iostreamd/iostream/internal/logging"
	"github.com/iostreamd/iostream/internal/pool"
	"github.com/iostreamd/iostream/internal/resolver"
	"github.com/iostreamd/iostream/internal/task"
)

// SchedulerType selects which scheduling discipline a device runs.
type SchedulerType int

const (
	Blocking SchedulerType = iota
	DeferredLinedUp
)

// ThreadProperties configures the worker goroutine's OS-level scheduling
// hints, mirroring the original device settings' threadProperties field.
type ThreadProperties struct {
	// CPUAffinity pins the worker to one CPU when non-negative.
	CPUAffinity int
}

// Params configures a device at construction time.
type Params struct {
	IOMemorySize      int
	IOMemoryAlignment int
	Granularity       int
	PoolAttributes    pool.Attributes

	SchedulerType SchedulerType

	ThreadProperties ThreadProperties

	TargetAutoStmBufferLength float64
	IdleWaitTime              time.Duration
	MaxConcurrentIO           int
}

// discipline is the capability-set interface each scheduling discipline
// implements, per the spec's Design Notes (a tagged capability set, not
// an inheritance hierarchy).
type discipline interface {
	// tick runs one scheduling decision and, for Blocking, one synchronous
	// transfer; for DeferredLinedUp, it tops up outstanding transfers and
	// drains any ready completions. It returns the duration the worker
	// should treat as the next idle-wait budget if nothing was runnable.
	tick(d *Device) time.Duration
	// shutdown waits for any in-flight transfers this discipline owns to
	// finish before Destroy proceeds.
	shutdown(d *Device)
}

// Device schedules I/O for every stream task attached to it, across
// exactly one dedicated worker goroutine.
type Device struct {
	ID     uint32
	params Params
	hook   resolver.LowLevelIOHook
	pool   *pool.Pool
	logger *logging.Logger

	mu      sync.Mutex
	tasks   map[task.ID]taskEntry
	nextID  task.ID
	started bool

	discipline discipline

	supervisor *suture.Supervisor
	cancel     context.CancelFunc
	stopped    chan struct{}

	wake chan struct{} // nudges the worker out of its idle wait
}

type taskEntry struct {
	std  *task.StdTask
	auto *task.AutoTask

	// dispatching marks that selectTask has handed this entry to an
	// in-progress dispatchOne call this tick; it excludes the entry from
	// further selection until clearDispatching runs, so a single task
	// cannot be claimed by two concurrent transfers.
	dispatching bool
}

func (e taskEntry) base() *task.Base {
	if e.std != nil {
		return &e.std.Base
	}
	return &e.auto.Base
}

// clearDispatching marks id's entry no longer in flight, making it eligible
// for selection again. Safe to call after the task has been reclaimed; a
// missing entry is a no-op.
func (d *Device) clearDispatching(id task.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.tasks[id]; ok {
		e.dispatching = false
		d.tasks[id] = e
	}
}

// New constructs a device with the given ID, settings, and hook, selecting
// its scheduling discipline from params.SchedulerType.
func New(id uint32, params Params, hook resolver.LowLevelIOHook, logger *logging.Logger) (*Device, error) {
	if params.IOMemorySize <= 0 || params.Granularity <= 0 {
		return nil, fmt.Errorf("device: invalid pool dimensions (size=%d granularity=%d)", params.IOMemorySize, params.Granularity)
	}
	p, err := pool.New(params.IOMemorySize, params.Granularity)
	if err != nil {
		return nil, fmt.Errorf("device: %w", err)
	}
	if logger == nil {
		logger = logging.Default()
	}

	d := &Device{
		ID:     id,
		params: params,
		hook:   hook,
		pool:   p,
		logger: logger.With("device_id", id),
		tasks:  make(map[task.ID]taskEntry),
		wake:   make(chan struct{}, 1),
	}

	switch params.SchedulerType {
	case Blocking:
		d.discipline = &blockingDiscipline{}
	case DeferredLinedUp:
		maxConcurrent := params.MaxConcurrentIO
		if maxConcurrent <= 0 {
			maxConcurrent = 1
		}
		d.discipline = newDeferredDiscipline(maxConcurrent)
	default:
		return nil, fmt.Errorf("device: unknown scheduler type %d", params.SchedulerType)
	}

	return d, nil
}

// Start launches the device's supervised worker goroutine.
func (d *Device) Start() {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.stopped = make(chan struct{})
	d.mu.Unlock()

	d.supervisor = suture.New(fmt.Sprintf("device-%d", d.ID), suture.Spec{})
	d.supervisor.Add(&workerService{d: d})

	go func() {
		errCh := d.supervisor.ServeBackground(ctx)
		<-errCh
	}()
}

// workerService adapts the device's worker loop to suture.Service so a
// panic in the loop is logged and the loop restarted, rather than wedging
// the device silently.
type workerService struct {
	d *Device
}

func (w *workerService) Serve(ctx context.Context) error {
	w.d.runWorker(ctx)
	return nil
}

func (d *Device) runWorker(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if d.params.ThreadProperties.CPUAffinity >= 0 {
		var mask unix.CPUSet
		mask.Set(d.params.ThreadProperties.CPUAffinity)
		if err := unix.SchedSetaffinity(0, &mask); err != nil {
			d.logger.Warn("failed to set worker CPU affinity", "error", err)
		}
	}

	d.logger.Debug("worker loop starting")
	defer close(d.stopped)

	idleWait := d.params.IdleWaitTime
	if idleWait <= 0 {
		idleWait = time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("worker loop stopping")
			return
		default:
		}

		wait := d.discipline.tick(d)
		if wait <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-d.wake:
		case <-time.After(wait):
		}
	}
}

// Destroy signals the worker to drain pending I/O, transitions all tasks
// to ToBeDestroyed, releases buffers, closes descriptors, and joins the
// worker.
func (d *Device) Destroy() {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return
	}
	entries := make([]taskEntry, 0, len(d.tasks))
	for _, e := range d.tasks {
		entries = append(entries, e)
	}
	d.mu.Unlock()

	for _, e := range entries {
		e.base().Kill()
	}

	d.discipline.shutdown(d)
	d.reclaimDestroyed()

	d.cancel()
	<-d.stopped
	d.supervisor.Stop()

	for _, e := range entries {
		if fd := e.base().FD; fd.Handle != nil {
			_ = d.hook.Close(fd)
		}
	}
}

// Nudge wakes the worker out of its idle wait, used after external state
// changes it should notice promptly (a released granule, a priority
// change).
func (d *Device) Nudge() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nudgeLocked()
}

// HasLiveTasks reports whether the device currently owns any task not yet
// fully destroyed, used by DestroyDevice's precondition check.
func (d *Device) HasLiveTasks() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks) > 0
}

// TaskCount returns the number of tasks currently tracked by the device,
// for the profiling surface.
func (d *Device) TaskCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}

// PoolCapacity returns the device's granule pool capacity.
func (d *Device) PoolCapacity() int { return d.pool.Capacity() }

// PoolFree returns the number of currently unassigned granules.
func (d *Device) PoolFree() int { return d.pool.Free() }

// SchedulerType returns the scheduling discipline this device was
// constructed with.
func (d *Device) SchedulerType() SchedulerType { return d.params.SchedulerType }

// CloseDescriptor closes a descriptor through the device's hook. Used by
// the manager to avoid leaking a synchronously opened descriptor when task
// creation fails after a successful resolver Open.
func (d *Device) CloseDescriptor(fd resolver.FileDescriptor) error {
	return d.hook.Close(fd)
}

// ReleaseGranule returns a granule a consumer is done with to the
// device's pool. Used by standard streams once a transferred granule has
// been copied out to the caller's buffer, and by automatic streams on
// ReleaseBuffer.
func (d *Device) ReleaseGranule(g pool.Granule) error {
	return d.pool.Release(g)
}
