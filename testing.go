package iostream

import (
	"sync"

	"github.com/iostreamd/iostream/internal/resolver"
)

// MockResolver is a scriptable resolver.FileLocationResolver for tests that
// care about the deferred-open handshake itself rather than any particular
// backend's storage semantics. Register entries with Add; unregistered
// names fail with an *Error carrying FileNotFound.
type MockResolver struct {
	mu      sync.RWMutex
	entries map[string]mockEntry

	openCalls int
}

type mockEntry struct {
	fd      resolver.FileDescriptor
	defer_  bool
	openErr error
}

// NewMockResolver constructs an empty MockResolver.
func NewMockResolver() *MockResolver {
	return &MockResolver{entries: make(map[string]mockEntry)}
}

// Add registers a name that resolves synchronously to fd.
func (r *MockResolver) Add(name string, fd resolver.FileDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = mockEntry{fd: fd}
}

// AddDeferred registers a name that resolves with syncOpen cleared; the
// caller is expected to complete the open later via a LowLevelIOHook.Open
// call, as the real deferred-open path does.
func (r *MockResolver) AddDeferred(name string, deviceID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = mockEntry{defer_: true, fd: resolver.FileDescriptor{DeviceID: deviceID}}
}

// AddError registers a name whose Open always fails with err, for exercising
// the resolver-failure path: CreateStd/CreateAuto return err wrapped in an
// *Error and no task is created.
func (r *MockResolver) AddError(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = mockEntry{openErr: err}
}

// Open implements resolver.FileLocationResolver.
func (r *MockResolver) Open(ref resolver.FileRef, mode resolver.OpenMode, flags resolver.OpenFlags, syncOpen *bool) (resolver.FileDescriptor, error) {
	r.mu.Lock()
	r.openCalls++
	e, ok := r.entries[ref.Name]
	r.mu.Unlock()

	if !ok {
		return resolver.FileDescriptor{}, NewError("MockResolver.Open", FileNotFound, ref.Name)
	}
	if e.openErr != nil {
		return resolver.FileDescriptor{}, e.openErr
	}
	if e.defer_ {
		*syncOpen = false
		return resolver.FileDescriptor{DeviceID: e.fd.DeviceID}, nil
	}
	*syncOpen = true
	return e.fd, nil
}

// OpenCalls reports how many times Open has been invoked.
func (r *MockResolver) OpenCalls() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.openCalls
}

// MockHook is a scriptable resolver.LowLevelIOHook backed by a flat byte
// slice, for device-level tests that don't need backend.Memory's
// multi-file, sharded-lock machinery.
type MockHook struct {
	mu sync.Mutex

	data      []byte
	blockSize int

	openErr  error
	closeErr error
	readErr  error
	writeErr error

	openCalls, closeCalls, readCalls, writeCalls int
}

// NewMockHook constructs a hook over a zero-filled buffer of the given size.
func NewMockHook(size int) *MockHook {
	return &MockHook{data: make([]byte, size), blockSize: 1}
}

// SetBlockSize overrides the value GetBlockSize reports.
func (h *MockHook) SetBlockSize(size int) { h.blockSize = size }

// FailOpen makes the next and all subsequent Open calls fail with err.
func (h *MockHook) FailOpen(err error) { h.openErr = err }

// FailRead makes every Read call fail with err.
func (h *MockHook) FailRead(err error) { h.readErr = err }

// FailWrite makes every Write call fail with err.
func (h *MockHook) FailWrite(err error) { h.writeErr = err }

// Open implements resolver.LowLevelIOHook.
func (h *MockHook) Open(resolver.DeferredOpenRecord) (resolver.FileDescriptor, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.openCalls++
	if h.openErr != nil {
		return resolver.FileDescriptor{}, h.openErr
	}
	return resolver.FileDescriptor{Handle: h}, nil
}

// Close implements resolver.LowLevelIOHook.
func (h *MockHook) Close(resolver.FileDescriptor) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closeCalls++
	return h.closeErr
}

// Read implements resolver.LowLevelIOHook.
func (h *MockHook) Read(_ resolver.FileDescriptor, offset int64, dst []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readCalls++
	if h.readErr != nil {
		return 0, h.readErr
	}
	if offset >= int64(len(h.data)) {
		return 0, nil
	}
	n := copy(dst, h.data[offset:])
	return n, nil
}

// Write implements resolver.LowLevelIOHook.
func (h *MockHook) Write(_ resolver.FileDescriptor, offset int64, src []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.writeCalls++
	if h.writeErr != nil {
		return 0, h.writeErr
	}
	if need := offset + int64(len(src)); need > int64(len(h.data)) {
		grown := make([]byte, need)
		copy(grown, h.data)
		h.data = grown
	}
	return copy(h.data[offset:], src), nil
}

// GetBlockSize implements resolver.LowLevelIOHook.
func (h *MockHook) GetBlockSize(resolver.FileDescriptor) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.blockSize
}

// CallCounts reports how many times each hook operation has been invoked.
func (h *MockHook) CallCounts() (open, closeN, read, write int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.openCalls, h.closeCalls, h.readCalls, h.writeCalls
}

// Reset clears all call counters and injected failures.
func (h *MockHook) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.openCalls, h.closeCalls, h.readCalls, h.writeCalls = 0, 0, 0, 0
	h.openErr, h.closeErr, h.readErr, h.writeErr = nil, nil, nil, nil
}

var (
	_ resolver.FileLocationResolver = (*MockResolver)(nil)
	_ resolver.LowLevelIOHook       = (*MockHook)(nil)
)
