// Package task implements the stream task state machine shared by
// standard and automatic streams, and the two leaf task variants.
package task

import (
	"context"
	"sync"
	"time"

	"github.com/iostreamd/iostream/internal/pool"
	"github.com/iostreamd/iostream/internal/resolver"
)

// State is a task's position in its lifecycle.
type State int

const (
	Initial State = iota
	Ready
	Running
	Idle
	Completed
	Error
	ToBeDestroyed
)

func (s State) String() string {
	switch s {
	case Initial:
		return "Initial"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Idle:
		return "Idle"
	case Completed:
		return "Completed"
	case Error:
		return "Error"
	case ToBeDestroyed:
		return "ToBeDestroyed"
	default:
		return "Unknown"
	}
}

// Mode mirrors the resolver.OpenMode a task was created with.
type Mode = resolver.OpenMode

// ID identifies a task within the device that creates it. Each device
// numbers its tasks from 0, so IDs are not unique across devices.
type ID uint64

// Base holds state common to standard and automatic tasks. It is
// embedded, never used standalone, by StdTask and AutoTask.
type Base struct {
	mu sync.Mutex

	ID       ID
	DeviceID uint32
	FD       resolver.FileDescriptor
	Mode     Mode

	position int64
	state    State
	errCode  error
	priority int

	deferred *resolver.DeferredOpenRecord

	// held is the set of granules currently owned by this task, in
	// acquisition order (oldest first). ReleaseOldest always pops from the
	// front; the pool's Attributes.IndependentRelease is not consulted.
	held []heldGranule

	createdAt time.Time

	// done is closed exactly once, when the task reaches Completed, Error,
	// or ToBeDestroyed, to wake any blocked consumer call.
	done     chan struct{}
	doneOnce sync.Once

	// changed is closed and replaced on every state transition, under mu,
	// giving blocking consumer calls (e.g. a std Read waiting out one
	// granule) a level-triggered wakeup without holding the device lock.
	changed chan struct{}
}

func newBase(id ID, deviceID uint32, mode Mode, priority int) Base {
	return Base{
		ID:        id,
		DeviceID:  deviceID,
		Mode:      mode,
		state:     Initial,
		priority:  priority,
		createdAt: time.Now(),
		done:      make(chan struct{}),
		changed:   make(chan struct{}),
	}
}

// notifyChanged wakes any WaitForChange callers. Must be called with mu
// held.
func (b *Base) notifyChanged() {
	close(b.changed)
	b.changed = make(chan struct{})
}

// WaitForChange blocks until the task's state differs from state or ctx is
// done, returning the state observed at return time.
func (b *Base) WaitForChange(ctx context.Context, state State) State {
	for {
		b.mu.Lock()
		if b.state != state {
			s := b.state
			b.mu.Unlock()
			return s
		}
		ch := b.changed
		b.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			b.mu.Lock()
			s := b.state
			b.mu.Unlock()
			return s
		}
	}
}

// State returns the task's current state.
func (b *Base) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Err returns the error that drove the task into the Error state, if any.
func (b *Base) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.errCode
}

// Priority returns the task's nominal (non-elevated) priority.
func (b *Base) Priority() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.priority
}

// SetPriority updates the task's nominal priority.
func (b *Base) SetPriority(p int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.priority = p
}

// CreatedAt returns the task's creation time, used for FIFO tie-break
// among tasks of equal effective priority.
func (b *Base) CreatedAt() time.Time {
	return b.createdAt
}

// Position returns the task's current file offset.
func (b *Base) Position() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.position
}

// SetPosition repositions the task's file offset, used by Seek and by an
// automatic stream resuming after a loop point.
func (b *Base) SetPosition(offset int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.position = offset
}

// advancePosition is called by the device worker after a successful
// transfer.
func (b *Base) advancePosition(n int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.position += n
}

// Done returns a channel closed when the task reaches a terminal state
// (Completed, Error, or ToBeDestroyed).
func (b *Base) Done() <-chan struct{} {
	return b.done
}

func (b *Base) signalDone() {
	b.doneOnce.Do(func() { close(b.done) })
}

// SetFileOpen confirms the descriptor is open and transitions Initial ->
// Ready.
func (b *Base) SetFileOpen(fd resolver.FileDescriptor) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.FD = fd
	b.deferred = nil
	if b.state == Initial {
		b.state = Ready
	}
	b.notifyChanged()
}

// SetDeferredFileOpen attaches a deferred-open record (copied, per the
// contract that the caller's arguments may not outlive the call) and
// leaves the task Ready awaiting dispatch.
func (b *Base) SetDeferredFileOpen(record resolver.DeferredOpenRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copied := record
	b.deferred = &copied
	b.state = Ready
	b.notifyChanged()
}

// DeferredOpen returns the stored deferred-open record, if any.
func (b *Base) DeferredOpen() *resolver.DeferredOpenRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.deferred
}

// MarkRunning transitions Ready -> Running; a no-op if already Running.
func (b *Base) MarkRunning() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Ready || b.state == Idle {
		b.state = Running
	}
	b.notifyChanged()
}

// MarkIdle transitions Running -> Idle.
func (b *Base) MarkIdle() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Running {
		b.state = Idle
	}
	b.notifyChanged()
}

// MarkCompleted transitions to Completed and wakes blocked waiters.
func (b *Base) MarkCompleted() {
	b.mu.Lock()
	b.state = Completed
	b.notifyChanged()
	b.mu.Unlock()
	b.signalDone()
}

// MarkError transitions to Error with the given cause and wakes blocked
// waiters. Error is reachable from any non-terminal state.
func (b *Base) MarkError(err error) {
	b.mu.Lock()
	b.state = Error
	b.errCode = err
	b.notifyChanged()
	b.mu.Unlock()
	b.signalDone()
}

// Kill transitions to ToBeDestroyed from any state and wakes blocked
// waiters; it does not itself release buffers, which is the scheduler's
// job on the next tick.
func (b *Base) Kill() {
	b.mu.Lock()
	if b.state == ToBeDestroyed {
		b.mu.Unlock()
		return
	}
	b.state = ToBeDestroyed
	b.notifyChanged()
	b.mu.Unlock()
	b.signalDone()
}

// Eligible reports whether the scheduler may select this task at a
// decision point: not paused (callers check that separately for auto
// tasks), not in Error, not ToBeDestroyed, and not Completed (a completed
// standard task has delivered its last transfer to the consumer and must
// not be dispatched again).
func (b *Base) Eligible() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state != Error && b.state != ToBeDestroyed && b.state != Completed
}

// HeldCount returns the number of granules currently owned by the task.
func (b *Base) HeldCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.held)
}

// heldGranule pairs a granule with the number of bytes actually
// transferred into (or out of) it, since a final short transfer fills
// less than a full granule.
type heldGranule struct {
	g pool.Granule
	n int
}

// AcquireGranule records a granule as owned by the task, along with the
// number of bytes the transfer that produced it actually moved.
func (b *Base) AcquireGranule(g pool.Granule, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.held = append(b.held, heldGranule{g: g, n: n})
}

// ReleaseOldest pops and returns the oldest held granule (FIFO) and its
// transferred byte count. Release is always in acquisition order,
// whatever the pool attributes say. ok is false if the task holds no
// granules.
func (b *Base) ReleaseOldest() (g pool.Granule, n int, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.held) == 0 {
		return pool.Granule{}, 0, false
	}
	h := b.held[0]
	b.held = b.held[1:]
	return h.g, h.n, true
}

// DrainHeld removes and returns all granules currently held, for
// force-cleanup / destroy paths that must reclaim everything at once.
func (b *Base) DrainHeld() []pool.Granule {
	b.mu.Lock()
	defer b.mu.Unlock()
	drained := make([]pool.Granule, len(b.held))
	for i, h := range b.held {
		drained[i] = h.g
	}
	b.held = nil
	return drained
}
