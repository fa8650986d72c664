package device

import (
	"time"

	"github.com/iostreamd/iostream/internal/pool"
	"github.com/iostreamd/iostream/internal/resolver"
	"github.com/iostreamd/iostream/internal/task"
)

// effectivePriority returns the entry's effective priority for task
// selection: the nominal priority for standard tasks, or the
// starvation-elevated priority for automatic tasks.
func (d *Device) effectivePriority(e taskEntry) int {
	if e.auto != nil {
		return e.auto.EffectivePriority(d.params.TargetAutoStmBufferLength, d.params.Granularity)
	}
	return e.std.Priority()
}

func (d *Device) entryEligible(e taskEntry) bool {
	if e.auto != nil {
		return e.auto.Eligible(d.params.TargetAutoStmBufferLength, d.params.Granularity)
	}
	return e.std.Eligible()
}

// selectTask picks the eligible task with the highest effective priority,
// breaking ties by oldest request first (stable FIFO). ok is false if no
// task is currently eligible.
func (d *Device) selectTask() (entry taskEntry, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var best taskEntry
	var bestID task.ID
	var bestPriority int
	var bestCreated time.Time
	found := false

	for id, e := range d.tasks {
		if e.dispatching || !d.entryEligible(e) {
			continue
		}
		p := d.effectivePriority(e)
		created := e.base().CreatedAt()
		if !found || p > bestPriority || (p == bestPriority && created.Before(bestCreated)) {
			best = e
			bestID = id
			bestPriority = p
			bestCreated = created
			found = true
		}
	}
	if found {
		best.dispatching = true
		d.tasks[bestID] = best
	}
	return best, found
}

// dispatchOne performs the deferred-open dance (if needed) and one
// granule-sized transfer for the given entry, via the hook. It returns
// whether a transfer was actually issued.
func (d *Device) dispatchOne(e taskEntry) bool {
	b := e.base()

	if rec := b.DeferredOpen(); rec != nil {
		fd, err := d.hook.Open(*rec)
		if err != nil {
			b.MarkError(err)
			return false
		}
		b.SetFileOpen(fd)
	}

	g, ok := d.pool.TryAcquire()
	if !ok {
		// Pool exhausted; caller may choose to ForceCleanup and retry.
		return false
	}

	b.MarkRunning()

	n, err := transferGranule(d, e, g)
	if err != nil {
		if relErr := d.pool.Release(g); relErr != nil {
			d.logger.Error("failed to release granule after transfer error", "error", relErr)
		}
		b.MarkError(err)
		return false
	}

	if e.auto != nil {
		e.auto.GrantGranule(g)
		b.MarkIdle()
	} else {
		b.AcquireGranule(g, n)
		wasWrite := e.std.IsPendingWrite()
		e.std.CompleteTransfer()
		if !wasWrite && n < len(g.Bytes()) {
			b.MarkCompleted()
		} else {
			b.MarkIdle()
		}
	}
	return true
}

// transferGranule performs exactly one granule-sized transfer for the
// task's current mode and position, advancing its position on success.
// Standard write tasks supply their own payload (copied into the granule
// here); automatic tasks and standard reads fill the granule from the
// hook.
func transferGranule(d *Device, e taskEntry, g pool.Granule) (int, error) {
	b := e.base()
	buf := g.Bytes()
	pos := b.Position()

	isWrite := b.Mode == resolver.ModeWriteOnly
	if e.std != nil && e.std.IsPendingWrite() {
		isWrite = true
	}

	var n int
	var err error
	if isWrite {
		payload := buf
		if e.std != nil {
			data := e.std.TakePendingWrite()
			copied := copy(buf, data)
			payload = buf[:copied]
		}
		n, err = d.hook.Write(b.FD, pos, payload)
	} else {
		n, err = d.hook.Read(b.FD, pos, buf)
	}
	if err != nil {
		return 0, err
	}
	b.advancePosition(int64(n))
	return n, nil
}

// reclaimDestroyed releases buffers held by every task in ToBeDestroyed,
// closes its descriptor, and drops its bookkeeping entry.
func (d *Device) reclaimDestroyed() {
	d.mu.Lock()
	var toReclaim []taskEntry
	for id, e := range d.tasks {
		if e.base().State() == task.ToBeDestroyed {
			toReclaim = append(toReclaim, e)
			delete(d.tasks, id)
		}
	}
	d.mu.Unlock()

	for _, e := range toReclaim {
		b := e.base()
		for _, g := range b.DrainHeld() {
			if err := d.pool.Release(g); err != nil {
				d.logger.Error("failed to release granule during reclaim", "error", err)
			}
		}
		if e.auto != nil {
			for {
				g, err := e.auto.ReleaseBuffer()
				if err != nil {
					break
				}
				if relErr := d.pool.Release(g); relErr != nil {
					d.logger.Error("failed to release ring granule during reclaim", "error", relErr)
				}
			}
		}
		if b.FD.Handle != nil {
			if err := d.hook.Close(b.FD); err != nil {
				d.logger.Error("failed to close descriptor during reclaim", "error", err)
			}
		}
	}
}

// ForceCleanup reclaims buffers from ToBeDestroyed tasks and, if isCaller
// is true and a task exists with priority strictly below priority, kills
// the single lowest-priority task (oldest on tie) to guarantee forward
// progress for a newly created higher-priority stream.
func (d *Device) ForceCleanup(isCaller bool, priority int) (killed bool) {
	d.reclaimDestroyed()

	if !isCaller {
		return false
	}

	d.mu.Lock()
	var victim taskEntry
	var victimPriority int
	var victimCreated time.Time
	found := false

	for _, e := range d.tasks {
		p := e.base().Priority()
		if p >= priority {
			continue
		}
		created := e.base().CreatedAt()
		if !found || p < victimPriority || (p == victimPriority && created.Before(victimCreated)) {
			victim = e
			victimPriority = p
			victimCreated = created
			found = true
		}
	}
	d.mu.Unlock()

	if !found {
		return false
	}
	victim.base().Kill()
	// Reclaim immediately rather than waiting for the worker's next tick,
	// so a caller checking pool availability right after ForceCleanup sees
	// the victim's granules already returned.
	d.reclaimDestroyed()
	return true
}
