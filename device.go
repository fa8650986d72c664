package iostream

import (
	"time"

	"github.com/iostreamd/iostream/internal/constants"
	"github.com/iostreamd/iostream/internal/device"
	"github.com/iostreamd/iostream/internal/pool"
)

func poolAttributesToInternal(a PoolAttributes) pool.Attributes {
	return pool.Attributes{IndependentRelease: a.IndependentRelease}
}

// DeviceID identifies a device within a manager's device table. It is
// stable for the device's lifetime and is not reused while its slot is
// non-empty.
type DeviceID = uint32

// SchedulerType selects a device's scheduling discipline. Exactly one
// applies per device, fixed at construction.
type SchedulerType int

const (
	// Blocking issues one synchronous granule-sized transfer per tick.
	Blocking SchedulerType = iota
	// DeferredLinedUp submits up to MaxConcurrentIO concurrent transfers.
	DeferredLinedUp
)

func (s SchedulerType) toInternal() device.SchedulerType {
	if s == DeferredLinedUp {
		return device.DeferredLinedUp
	}
	return device.Blocking
}

// ThreadProperties configures the device worker goroutine's OS-level
// scheduling hints.
type ThreadProperties struct {
	// CPUAffinity pins the worker to one CPU when non-negative; -1 (the
	// default) leaves affinity unset.
	CPUAffinity int
}

// PoolAttributes is passed through to the device's settings. Nothing in
// the engine acts on IndependentRelease: granules are released oldest
// first whatever its value.
type PoolAttributes struct {
	IndependentRelease bool
}

// DeviceParams configures a device at construction time.
type DeviceParams struct {
	// IOMemorySize is the total size, in bytes, of the device's buffer
	// pool. Must be a positive multiple of Granularity.
	IOMemorySize int
	// IOMemoryAlignment is carried through for backends that require an
	// aligned pool region; the pool itself does not act on it directly.
	IOMemoryAlignment int
	// Granularity is the transfer size unit, in bytes.
	Granularity int

	PoolAttributes PoolAttributes

	SchedulerType    SchedulerType
	ThreadProperties ThreadProperties

	// TargetAutoStmBufferLength is the default prefetch horizon, in
	// seconds, for automatic streams that don't override it.
	TargetAutoStmBufferLength float64
	// IdleWaitTime is how long the worker sleeps when idle.
	IdleWaitTime time.Duration
	// MaxConcurrentIO bounds outstanding transfers under DeferredLinedUp.
	MaxConcurrentIO int
}

// DefaultDeviceParams returns device settings with every field at its
// documented default.
func DefaultDeviceParams() DeviceParams {
	return DeviceParams{
		IOMemorySize:              constants.DefaultIOMemorySize,
		IOMemoryAlignment:         constants.DefaultIOMemoryAlignment,
		Granularity:               constants.DefaultGranularity,
		SchedulerType:             Blocking,
		ThreadProperties:          ThreadProperties{CPUAffinity: -1},
		TargetAutoStmBufferLength: constants.DefaultTargetAutoStmBufferLength,
		IdleWaitTime:              constants.DefaultIdleWaitTime,
		MaxConcurrentIO:           constants.DefaultMaxConcurrentIO,
	}
}

func (p DeviceParams) toInternal() device.Params {
	return device.Params{
		IOMemorySize:      p.IOMemorySize,
		IOMemoryAlignment: p.IOMemoryAlignment,
		Granularity:       p.Granularity,
		PoolAttributes:    poolAttributesToInternal(p.PoolAttributes),
		SchedulerType:     p.SchedulerType.toInternal(),
		ThreadProperties: device.ThreadProperties{
			CPUAffinity: p.ThreadProperties.CPUAffinity,
		},
		TargetAutoStmBufferLength: p.TargetAutoStmBufferLength,
		IdleWaitTime:              p.IdleWaitTime,
		MaxConcurrentIO:           p.MaxConcurrentIO,
	}
}

// DeviceState summarizes a device's lifecycle position for the profiling
// surface.
type DeviceState string

const (
	DeviceStateRunning   DeviceState = "running"
	DeviceStateDestroyed DeviceState = "destroyed"
)

// Device is a handle to a constructed device, returned by
// Manager.CreateDevice. Consumers do not create tasks on it directly;
// task creation is routed through Manager.CreateStd/CreateAuto via the
// file-location resolver.
type Device struct {
	id     DeviceID
	impl   *device.Device
	params DeviceParams
}

// ID returns the device's table slot.
func (d *Device) ID() DeviceID { return d.id }

// DeviceInfo reports a point-in-time summary of a device, used by the
// profiling surface.
type DeviceInfo struct {
	ID            DeviceID
	State         DeviceState
	SchedulerType SchedulerType
	TaskCount     int
	PoolCapacity  int
	PoolFree      int
}

// Info returns a snapshot of the device's current state.
func (d *Device) Info() DeviceInfo {
	state := DeviceStateRunning
	return DeviceInfo{
		ID:            d.id,
		State:         state,
		SchedulerType: d.params.SchedulerType,
		TaskCount:     d.impl.TaskCount(),
		PoolCapacity:  d.impl.PoolCapacity(),
		PoolFree:      d.impl.PoolFree(),
	}
}
