// Package constants holds the default configuration values that
// DefaultDeviceParams fills in. A DeviceParams field left at its zero value
// is not replaced by these defaults.
package constants

import "time"

// Priority bounds for stream heuristics and explicit task priority.
const (
	MinPriority = 0
	MaxPriority = 100

	DefaultPriority = 50
)

// Buffer pool defaults.
const (
	// DefaultIOMemorySize is the default size of a device's buffer pool (2MiB).
	DefaultIOMemorySize = 2 << 20

	// DefaultIOMemoryAlignment is the default alignment of the pool's backing
	// region, chosen to satisfy common O_DIRECT-style backend requirements.
	DefaultIOMemoryAlignment = 4096

	// DefaultGranularity is the default transfer unit size (32KiB), matching
	// typical streamed-audio bank chunk sizes.
	DefaultGranularity = 32 * 1024
)

// Scheduler defaults.
const (
	// DefaultMaxConcurrentIO is the default concurrency cap for the
	// deferred-lined-up discipline.
	DefaultMaxConcurrentIO = 4

	// DefaultIdleWaitTime is how long a device worker sleeps when it has no
	// eligible task and no outstanding completions to wait on.
	DefaultIdleWaitTime = 5 * time.Millisecond

	// DefaultTargetAutoStmBufferLength is the default prefetch horizon, in
	// seconds, for an automatic stream with no explicit override.
	DefaultTargetAutoStmBufferLength = 2.0

	// StarvationThreshold is the fraction of an automatic task's target
	// buffer length below which its effective priority is elevated to
	// MaxPriority to avoid underrun.
	StarvationThreshold = 0.25
)

// DeviceTableInitialCapacity is the starting capacity of a manager's sparse
// device table before it needs to grow.
const DeviceTableInitialCapacity = 8
