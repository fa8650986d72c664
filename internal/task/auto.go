package task

import (
	"fmt"

	"github.com/iostreamd/iostream/internal/constants"
	"github.com/iostreamd/iostream/internal/pool"
)

// Heuristics steers an automatic task's prefetch.
type Heuristics struct {
	Throughput   float64 // bytes/s
	Priority     int     // in [constants.MinPriority, constants.MaxPriority]
	LoopStart    int64   // file offset, -1 if not looping
	LoopEnd      int64   // file offset, -1 if not looping
	BufferLength float64 // seconds of prefetch; 0 means use the device default
}

// Validate reports InvalidParameter-worthy heuristics per the spec's
// boundary behavior: negative throughput or out-of-range priority.
func (h Heuristics) Validate() error {
	if h.Throughput < 0 {
		return fmt.Errorf("throughput must be >= 0, got %f", h.Throughput)
	}
	if h.Priority < constants.MinPriority || h.Priority > constants.MaxPriority {
		return fmt.Errorf("priority %d out of range [%d,%d]", h.Priority, constants.MinPriority, constants.MaxPriority)
	}
	return nil
}

// AutoTask is an automatic stream: heuristics-driven continuous prefetch
// with no explicit read calls. Granted granules accumulate in a FIFO ring
// ahead of the consumer's read cursor.
type AutoTask struct {
	Base

	heuristics Heuristics
	paused     bool

	// minTargetBufferOverride, when > 0, overrides Heuristics.BufferLength
	// for the starvation-threshold and prefetch-cap calculations.
	minTargetBufferOverride float64

	// ring holds granted granules not yet consumed, oldest first.
	// GetBuffer/ReleaseBuffer operate on its front. An automatic task's
	// granules are tracked only here, not in Base.held; force-cleanup and
	// destroy reclaim them by draining the ring.
	ring []pool.Granule

	noDataReady bool
}

// NewAuto creates an automatic task in the Initial state with the given
// heuristics.
func NewAuto(id ID, deviceID uint32, mode Mode, h Heuristics) *AutoTask {
	return &AutoTask{
		Base:       newBase(id, deviceID, mode, h.Priority),
		heuristics: h,
	}
}

// Heuristics returns the task's current heuristics.
func (t *AutoTask) Heuristics() Heuristics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.heuristics
}

// SetHeuristics updates the task's heuristics after validating them.
func (t *AutoTask) SetHeuristics(h Heuristics) error {
	if err := h.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	t.heuristics = h
	t.mu.Unlock()
	t.SetPriority(h.Priority)
	return nil
}

// SetMinTargetBufferSize overrides the device's default prefetch target
// for this task, in seconds.
func (t *AutoTask) SetMinTargetBufferSize(seconds float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.minTargetBufferOverride = seconds
}

// targetBufferSeconds returns the effective prefetch horizon: the
// per-task override if set, else the heuristics' own BufferLength, else
// the device default passed in by the caller.
func (t *AutoTask) targetBufferSeconds(deviceDefault float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.minTargetBufferOverride > 0 {
		return t.minTargetBufferOverride
	}
	if t.heuristics.BufferLength > 0 {
		return t.heuristics.BufferLength
	}
	return deviceDefault
}

// PrefetchCapGranules returns the maximum number of granules this task may
// hold prefetched, derived from fTargetAutoStmBufferLength × fThroughput
// rounded up to whole granules, per the spec invariant.
func (t *AutoTask) PrefetchCapGranules(deviceDefaultBufferSeconds float64, granuleSize int) int {
	seconds := t.targetBufferSeconds(deviceDefaultBufferSeconds)
	t.mu.Lock()
	throughput := t.heuristics.Throughput
	t.mu.Unlock()
	if throughput <= 0 || granuleSize <= 0 {
		return 0
	}
	targetBytes := seconds * throughput
	granules := int(targetBytes) / granuleSize
	if int(targetBytes)%granuleSize != 0 {
		granules++
	}
	return granules
}

// Start resumes prefetch (paused -> running).
func (t *AutoTask) Start() {
	t.mu.Lock()
	t.paused = false
	t.mu.Unlock()
	t.MarkRunning()
}

// Stop pauses prefetch. A paused task is ineligible for scheduling.
func (t *AutoTask) Stop() {
	t.mu.Lock()
	t.paused = true
	t.mu.Unlock()
	t.MarkIdle()
}

// Paused reports whether the task is currently paused.
func (t *AutoTask) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// RingLen returns the number of granules currently staged ahead of the
// consumer's read cursor.
func (t *AutoTask) RingLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ring)
}

// GrantGranule appends a freshly transferred granule to the back of the
// ring, making it available to a subsequent GetBuffer call.
func (t *AutoTask) GrantGranule(g pool.Granule) {
	t.mu.Lock()
	t.ring = append(t.ring, g)
	t.noDataReady = false
	t.mu.Unlock()
}

// GetBuffer returns the front granule of the ring without removing it. ok
// is false (NoDataReady) if the ring is currently empty; GetBuffer never
// blocks.
func (t *AutoTask) GetBuffer() (g pool.Granule, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.ring) == 0 {
		t.noDataReady = true
		return pool.Granule{}, false
	}
	return t.ring[0], true
}

// ReleaseBuffer returns the front granule of the ring to the pool's
// ownership bookkeeping and advances the cursor. It returns an error only
// when the ring is empty; it does not check that GetBuffer was called
// first.
func (t *AutoTask) ReleaseBuffer() (pool.Granule, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.ring) == 0 {
		return pool.Granule{}, fmt.Errorf("task: ReleaseBuffer with no granted buffer outstanding")
	}
	g := t.ring[0]
	t.ring = t.ring[1:]
	return g, nil
}

// NoDataReady reports whether the most recent GetBuffer call found the
// ring empty.
func (t *AutoTask) NoDataReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.noDataReady
}

// Starved reports whether the task's staged prefetch has fallen below the
// starvation threshold derived from its heuristics, which elevates its
// effective scheduling priority.
func (t *AutoTask) Starved(deviceDefaultBufferSeconds float64, granuleSize int) bool {
	prefetchCap := t.PrefetchCapGranules(deviceDefaultBufferSeconds, granuleSize)
	if prefetchCap == 0 {
		return false
	}
	threshold := float64(prefetchCap) * constants.StarvationThreshold
	return float64(t.RingLen()) < threshold
}

// EffectivePriority returns the elevated priority (MaxPriority) when the
// task is starved, otherwise its nominal priority.
func (t *AutoTask) EffectivePriority(deviceDefaultBufferSeconds float64, granuleSize int) int {
	if t.Starved(deviceDefaultBufferSeconds, granuleSize) {
		return constants.MaxPriority
	}
	return t.Priority()
}

// Eligible overrides Base.Eligible: a paused task, or one whose ring is
// already at its prefetch cap, is not schedulable for further transfers.
func (t *AutoTask) Eligible(deviceDefaultBufferSeconds float64, granuleSize int) bool {
	if !t.Base.Eligible() {
		return false
	}
	if t.Paused() {
		return false
	}
	prefetchCap := t.PrefetchCapGranules(deviceDefaultBufferSeconds, granuleSize)
	return prefetchCap == 0 || t.RingLen() < prefetchCap
}
