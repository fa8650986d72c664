package task

import (
	"fmt"
	"io"
)

// StdTask is a standard stream: one explicit operation at a time, no
// prefetch. The client supplies read/write targets directly.
type StdTask struct {
	Base

	// pendingSize is the size of the in-flight operation, in bytes; 0 if
	// no operation is pending.
	pendingSize int
	// pendingWrite distinguishes a posted write from a posted read; both
	// just set pendingSize, but the scheduler needs to know which hook
	// method to call and, for writes, where the payload lives.
	pendingWrite bool
	pendingData  []byte
	cancelled    bool
}

// NewStd creates a standard task in the Initial state.
func NewStd(id ID, deviceID uint32, mode Mode, priority int) *StdTask {
	t := &StdTask{Base: newBase(id, deviceID, mode, priority)}
	return t
}

// PostRead marks a read of the given size as pending and transitions the
// task to Running.
func (t *StdTask) PostRead(size int) {
	t.mu.Lock()
	t.pendingSize = size
	t.pendingWrite = false
	t.pendingData = nil
	t.cancelled = false
	t.mu.Unlock()
	t.MarkRunning()
}

// PostWrite marks a write of len(data) bytes as pending and transitions
// the task to Running. data is retained until the scheduler's next
// dispatch copies it into a granule.
func (t *StdTask) PostWrite(data []byte) {
	t.mu.Lock()
	t.pendingSize = len(data)
	t.pendingWrite = true
	t.pendingData = data
	t.cancelled = false
	t.mu.Unlock()
	t.MarkRunning()
}

// PendingSize returns the size of the current in-flight operation, or 0
// if none is pending.
func (t *StdTask) PendingSize() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingSize
}

// IsPendingWrite reports whether the in-flight operation is a write.
func (t *StdTask) IsPendingWrite() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingWrite
}

// TakePendingWrite returns and clears the payload of the in-flight write,
// for the scheduler to copy into a granule at dispatch time.
func (t *StdTask) TakePendingWrite() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	data := t.pendingData
	t.pendingData = nil
	return data
}

// CompleteTransfer clears the in-flight operation after the scheduler has
// delivered it, so a std task does not stay Eligible and get re-dispatched
// for a transfer the consumer already received.
func (t *StdTask) CompleteTransfer() {
	t.mu.Lock()
	t.pendingSize = 0
	t.pendingWrite = false
	t.pendingData = nil
	t.mu.Unlock()
}

// Cancel abandons any in-flight transfer; future requests return
// Cancelled until a new operation is posted.
func (t *StdTask) Cancel() {
	t.mu.Lock()
	t.cancelled = true
	t.pendingSize = 0
	t.pendingData = nil
	t.mu.Unlock()
	t.MarkIdle()
}

// Cancelled reports whether the task was cancelled since its last posted
// operation.
func (t *StdTask) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelled
}

// Seek repositions the task's file cursor. Only SeekStart and SeekCurrent
// are supported; the task has no notion of file length to resolve
// SeekEnd, which belongs to the low-level hook.
func (t *StdTask) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		t.SetPosition(offset)
	case io.SeekCurrent:
		t.SetPosition(t.Position() + offset)
	default:
		return 0, fmt.Errorf("task: unsupported seek whence %d", whence)
	}
	return t.Position(), nil
}

// Eligible overrides Base.Eligible: a standard task with no pending
// operation is not schedulable.
func (t *StdTask) Eligible() bool {
	if !t.Base.Eligible() {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pendingSize > 0 && !t.cancelled
}
