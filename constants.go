package iostream

import "github.com/iostreamd/iostream/internal/constants"

// Re-exported defaults for public API consumers.
const (
	MinPriority     = constants.MinPriority
	MaxPriority     = constants.MaxPriority
	DefaultPriority = constants.DefaultPriority

	DefaultIOMemorySize      = constants.DefaultIOMemorySize
	DefaultIOMemoryAlignment = constants.DefaultIOMemoryAlignment
	DefaultGranularity       = constants.DefaultGranularity

	DefaultMaxConcurrentIO           = constants.DefaultMaxConcurrentIO
	DefaultIdleWaitTime              = constants.DefaultIdleWaitTime
	DefaultTargetAutoStmBufferLength = constants.DefaultTargetAutoStmBufferLength
)
