package iostream

import (
	"sync"

	"github.com/iostreamd/iostream/internal/constants"
	"github.com/iostreamd/iostream/internal/device"
	"github.com/iostreamd/iostream/internal/logging"
	"github.com/iostreamd/iostream/internal/resolver"
	"github.com/iostreamd/iostream/internal/task"
)

// Manager owns a sparse table of devices and routes every stream creation
// to the device the file-location resolver names. It has no background
// thread of its own; all asynchronous work happens on a device's worker.
type Manager struct {
	mu       sync.Mutex
	devices  []*Device
	resolver resolver.FileLocationResolver
	logger   *logging.Logger

	monitoring bool
}

// New constructs a manager with its own device table. The manager's
// device table is not internally synchronized against CreateDevice /
// DestroyDevice racing with stream creation — callers must serialize
// those themselves, per the concurrency model.
func New(logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Default()
	}
	return &Manager{
		devices: make([]*Device, 0, constants.DeviceTableInitialCapacity),
		logger:  logger,
	}
}

// SetFileLocationResolver installs the resolver consulted by every
// subsequent CreateStd/CreateAuto call. It is written once at startup and
// then only read; concurrent mutation afterward is undefined, per the
// concurrency model.
func (m *Manager) SetFileLocationResolver(r resolver.FileLocationResolver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolver = r
}

// CreateDevice constructs a device of the kind named by params.SchedulerType,
// starts its worker, and stores it in the first empty table slot (or
// appends one). The returned DeviceID is stable for the device's lifetime.
func (m *Manager) CreateDevice(params DeviceParams, hook resolver.LowLevelIOHook) (DeviceID, error) {
	if hook == nil {
		return 0, NewError("CreateDevice", InvalidParameter, "hook must not be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.firstEmptySlotLocked()
	impl, err := device.New(uint32(idx), params.toInternal(), hook, m.logger)
	if err != nil {
		return 0, WrapError("CreateDevice", err)
	}
	impl.Start()

	d := &Device{id: DeviceID(idx), impl: impl, params: params}
	if idx == len(m.devices) {
		m.devices = append(m.devices, d)
	} else {
		m.devices[idx] = d
	}
	return d.id, nil
}

func (m *Manager) firstEmptySlotLocked() int {
	for i, d := range m.devices {
		if d == nil {
			return i
		}
	}
	return len(m.devices)
}

// DestroyDevice shuts down the device's worker, reclaims its buffers, and
// clears its table slot. Per the documented precondition, destroying a
// device with live tasks is not a safety guarantee — it is logged as a
// debug assertion and the destroy proceeds regardless.
func (m *Manager) DestroyDevice(id DeviceID) error {
	m.mu.Lock()
	idx := int(id)
	if idx < 0 || idx >= len(m.devices) || m.devices[idx] == nil {
		m.mu.Unlock()
		return NewDeviceError("DestroyDevice", id, InvalidParameter, "unknown or empty device slot")
	}
	d := m.devices[idx]
	m.mu.Unlock()

	if d.impl.HasLiveTasks() {
		m.logger.Warn("DestroyDevice precondition violated: device still has live tasks", "device_id", id)
	}
	d.impl.Destroy()

	m.mu.Lock()
	m.devices[idx] = nil
	m.mu.Unlock()
	return nil
}

// deviceAt returns the device at the given slot, or an error if the slot
// is out of range or empty.
func (m *Manager) deviceAt(id DeviceID) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := int(id)
	if idx < 0 || idx >= len(m.devices) || m.devices[idx] == nil {
		return nil, NewDeviceError("deviceAt", id, InvalidParameter, "unknown or empty device slot")
	}
	return m.devices[idx], nil
}

// CreateStd opens a standard stream: it validates ref, consults the
// resolver for the owning device and descriptor, then asks that device to
// create the task. If the resolver opened the descriptor synchronously
// but device task creation then fails, the descriptor is closed through
// the hook to avoid a leak.
func (m *Manager) CreateStd(ref resolver.FileRef, mode resolver.OpenMode, flags resolver.OpenFlags, priority int) (*StdStream, error) {
	if ref.Name == "" && ref.ID == 0 {
		return nil, NewError("CreateStd", InvalidParameter, "file reference must name a file by name or id")
	}
	if priority < constants.MinPriority || priority > constants.MaxPriority {
		return nil, NewError("CreateStd", InvalidParameter, "priority out of range")
	}

	flags.IsAutomaticStream = false
	fd, record, err := m.resolve(ref, mode, flags)
	if err != nil {
		return nil, err
	}

	d, err := m.deviceAt(fd.DeviceID)
	if err != nil {
		return nil, err
	}

	if err := m.ensureCapacity(d, priority); err != nil {
		if record == nil && fd.Handle != nil {
			_ = d.impl.CloseDescriptor(fd)
		}
		return nil, err
	}

	st, err := d.impl.CreateStd(fd, record, mode, priority)
	if err != nil {
		if record == nil && fd.Handle != nil {
			_ = d.impl.CloseDescriptor(fd)
		}
		return nil, WrapError("CreateStd", err)
	}
	return &StdStream{task: st, device: d}, nil
}

// CreateAuto opens an automatic stream with the given heuristics,
// otherwise following the same resolver/device routing as CreateStd.
func (m *Manager) CreateAuto(ref resolver.FileRef, mode resolver.OpenMode, flags resolver.OpenFlags, h task.Heuristics) (*AutoStream, error) {
	if ref.Name == "" && ref.ID == 0 {
		return nil, NewError("CreateAuto", InvalidParameter, "file reference must name a file by name or id")
	}
	if err := h.Validate(); err != nil {
		return nil, WrapError("CreateAuto", NewError("CreateAuto", InvalidParameter, err.Error()))
	}

	flags.IsAutomaticStream = true
	fd, record, err := m.resolve(ref, mode, flags)
	if err != nil {
		return nil, err
	}

	d, err := m.deviceAt(fd.DeviceID)
	if err != nil {
		return nil, err
	}

	if err := m.ensureCapacity(d, h.Priority); err != nil {
		if record == nil && fd.Handle != nil {
			_ = d.impl.CloseDescriptor(fd)
		}
		return nil, err
	}

	at, err := d.impl.CreateAuto(fd, record, mode, h)
	if err != nil {
		if record == nil && fd.Handle != nil {
			_ = d.impl.CloseDescriptor(fd)
		}
		return nil, WrapError("CreateAuto", err)
	}
	return &AutoStream{task: at, device: d}, nil
}

// ensureCapacity guarantees the device has at least one free granule before
// a new task is registered against it. A device with no free granule left
// would stall its first dispatch forever, so creation itself triggers the
// same force-cleanup recovery a running worker would reach for: reclaim
// dead tasks and, if that's not enough, kill the lowest-priority task below
// priority. A second failure means no task that could be killed would have
// freed enough room, so creation reports InsufficientMemory rather than
// admitting a task that can never make progress.
func (m *Manager) ensureCapacity(d *Device, priority int) error {
	if d.impl.PoolFree() > 0 {
		return nil
	}
	m.ForceCleanup(d.id, priority)
	if d.impl.PoolFree() > 0 {
		return nil
	}
	return NewDeviceError("CreateStream", uint32(d.id), InsufficientMemory, "no free granule and force-cleanup freed none")
}

// resolve invokes the file-location resolver, suppressing the
// language-specific-bank-not-found quirk from the log, and translates a
// deferred open into a DeferredOpenRecord for the device to consume at
// first dispatch.
func (m *Manager) resolve(ref resolver.FileRef, mode resolver.OpenMode, flags resolver.OpenFlags) (resolver.FileDescriptor, *resolver.DeferredOpenRecord, error) {
	m.mu.Lock()
	res := m.resolver
	m.mu.Unlock()
	if res == nil {
		return resolver.FileDescriptor{}, nil, NewError("resolve", Fail, "no file location resolver installed")
	}

	syncOpen := true
	fd, err := res.Open(ref, mode, flags, &syncOpen)
	if err != nil {
		if !flags.IsLanguageSpecific {
			m.logger.Warn("resolver failed to open file", "ref", ref.String(), "error", err)
		}
		return resolver.FileDescriptor{}, nil, WrapError("resolve", err)
	}

	if syncOpen {
		return fd, nil, nil
	}
	return fd, &resolver.DeferredOpenRecord{Ref: ref, Mode: mode, Flags: flags}, nil
}

// ForceCleanup broadcasts cleanup to every device in the table. Only the
// device identified by callingDevice is permitted to kill a task whose
// priority is strictly below priority. It reports whether any device
// killed a task.
func (m *Manager) ForceCleanup(callingDevice DeviceID, priority int) bool {
	m.mu.Lock()
	devices := make([]*Device, len(m.devices))
	copy(devices, m.devices)
	m.mu.Unlock()

	killed := false
	for idx, d := range devices {
		if d == nil {
			continue
		}
		isCaller := uint32(idx) == callingDevice
		if d.impl.ForceCleanup(isCaller, priority) {
			killed = true
		}
	}
	return killed
}
