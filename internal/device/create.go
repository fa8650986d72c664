package device

import (
	"fmt"

	"github.com/iostreamd/iostream/internal/resolver"
	"github.com/iostreamd/iostream/internal/task"
)

// CreateStd creates a standard task on this device. If the resolver
// deferred the open (fd is the zero value and record is non-nil), the
// task starts in Ready state awaiting first dispatch; otherwise fd must
// already be open.
func (d *Device) CreateStd(fd resolver.FileDescriptor, record *resolver.DeferredOpenRecord, mode resolver.OpenMode, priority int) (*task.StdTask, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	st := task.NewStd(id, d.ID, mode, priority)

	if record != nil {
		st.SetDeferredFileOpen(*record)
	} else {
		st.SetFileOpen(fd)
	}

	d.tasks[id] = taskEntry{std: st}
	d.nudgeLocked()
	return st, nil
}

// CreateAuto creates an automatic task on this device with the given
// heuristics, validated per the spec's boundary behavior.
func (d *Device) CreateAuto(fd resolver.FileDescriptor, record *resolver.DeferredOpenRecord, mode resolver.OpenMode, h task.Heuristics) (*task.AutoTask, error) {
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("device: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.nextID
	d.nextID++
	at := task.NewAuto(id, d.ID, mode, h)

	if record != nil {
		at.SetDeferredFileOpen(*record)
	} else {
		at.SetFileOpen(fd)
	}

	d.tasks[id] = taskEntry{auto: at}
	d.nudgeLocked()
	return at, nil
}

func (d *Device) nudgeLocked() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// removeTask drops a task's bookkeeping entry once it has been fully
// reclaimed (buffers released, descriptor closed).
func (d *Device) removeTask(id task.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tasks, id)
}
