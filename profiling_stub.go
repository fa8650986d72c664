//go:build noprofile

package iostream

import "time"

// This build exists for hosts that strip the profiling surface entirely
// (e.g. a release build that never calls GetStreamMgrProfile); it keeps
// the Manager type's method set identical either way so callers don't need
// a build tag of their own.

var defaultManager *Manager

// Default is unavailable under the noprofile build; it always constructs a
// fresh manager rather than tracking process-wide state.
func Default() *Manager { return New(nil) }

// SetDefault is a no-op under the noprofile build.
func SetDefault(m *Manager) {}

// StreamMgrProfile is the zero-value placeholder under the noprofile build.
type StreamMgrProfile struct {
	DeviceCount   int
	TotalTasks    int
	TotalPoolFree int
	Monitoring    bool
	SampledAt     time.Time
}

// GetStreamMgrProfile always reports the zero value under the noprofile
// build.
func (m *Manager) GetStreamMgrProfile() StreamMgrProfile { return StreamMgrProfile{} }

// GetDeviceProfile always reports not-found under the noprofile build.
func (m *Manager) GetDeviceProfile(n int) (DeviceInfo, bool) { return DeviceInfo{}, false }

// StartMonitoring is a no-op under the noprofile build.
func (m *Manager) StartMonitoring() {}

// StopMonitoring is a no-op under the noprofile build.
func (m *Manager) StopMonitoring() {}
