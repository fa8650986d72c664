// Package backend provides reference FileLocationResolver and
// LowLevelIOHook implementations for hosts that don't need a real
// filesystem or network transport — in tests, examples, and anywhere an
// in-memory store is sufficient.
package backend

import (
	"sync"

	"github.com/iostreamd/iostream/internal/resolver"
)

// shardSize bounds the lock granularity for concurrent reads/writes
// against the same file, mirroring a sharded-lock transport backend at
// much smaller scale (files here are streamed banks, not disk images).
const shardSize = 64 * 1024

type memFile struct {
	mu     sync.RWMutex
	data   []byte
	shards []sync.RWMutex
}

func newMemFile(size int) *memFile {
	numShards := (size + shardSize - 1) / shardSize
	if numShards == 0 {
		numShards = 1
	}
	return &memFile{
		data:   make([]byte, size),
		shards: make([]sync.RWMutex, numShards),
	}
}

func (f *memFile) shardRange(off, length int64) (start, end int) {
	start = int(off / shardSize)
	end = int((off + length - 1) / shardSize)
	if end >= len(f.shards) {
		end = len(f.shards) - 1
	}
	if end < start {
		end = start
	}
	return start, end
}

func (f *memFile) readAt(dst []byte, off int64) int {
	f.mu.RLock()
	size := int64(len(f.data))
	f.mu.RUnlock()
	if off >= size {
		return 0
	}
	if avail := size - off; int64(len(dst)) > avail {
		dst = dst[:avail]
	}
	start, end := f.shardRange(off, int64(len(dst)))
	for i := start; i <= end; i++ {
		f.shards[i].RLock()
	}
	n := copy(dst, f.data[off:off+int64(len(dst))])
	for i := start; i <= end; i++ {
		f.shards[i].RUnlock()
	}
	return n
}

func (f *memFile) writeAt(src []byte, off int64) int {
	f.mu.Lock()
	if need := off + int64(len(src)); need > int64(len(f.data)) {
		grown := make([]byte, need)
		copy(grown, f.data)
		f.data = grown
		numShards := (len(grown) + shardSize - 1) / shardSize
		if numShards > len(f.shards) {
			f.shards = append(f.shards, make([]sync.RWMutex, numShards-len(f.shards))...)
		}
	}
	f.mu.Unlock()

	f.mu.RLock()
	start, end := f.shardRange(off, int64(len(src)))
	for i := start; i <= end; i++ {
		f.shards[i].Lock()
	}
	n := copy(f.data[off:off+int64(len(src))], src)
	for i := start; i <= end; i++ {
		f.shards[i].Unlock()
	}
	f.mu.RUnlock()
	return n
}

func (f *memFile) size() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return int64(len(f.data))
}

// Memory is an in-memory FileLocationResolver and LowLevelIOHook backing
// exactly one device. Every name registered via Put or CreateFile is
// served from RAM; unknown names fail with a plain not-found error (not an
// iostream *Error carrying FileNotFound).
type Memory struct {
	deviceID uint32

	mu    sync.RWMutex
	files map[string]*memFile

	openCalls  int
	closeCalls int
	readCalls  int
	writeCalls int
}

// NewMemory constructs an in-memory backend that reports the given
// DeviceID to the resolver, matching whatever device a manager's
// CreateDevice call assigned.
func NewMemory(deviceID uint32) *Memory {
	return &Memory{
		deviceID: deviceID,
		files:    make(map[string]*memFile),
	}
}

// Put preloads a file's content, for tests that read fixed data.
func (m *Memory) Put(name string, content []byte) {
	f := newMemFile(len(content))
	copy(f.data, content)
	m.mu.Lock()
	m.files[name] = f
	m.mu.Unlock()
}

// CreateFile registers an empty, growable file, for tests that write
// before reading back.
func (m *Memory) CreateFile(name string) {
	m.mu.Lock()
	if _, ok := m.files[name]; !ok {
		m.files[name] = newMemFile(0)
	}
	m.mu.Unlock()
}

// Contents returns a copy of a file's current bytes, for test assertions.
func (m *Memory) Contents(name string) ([]byte, bool) {
	m.mu.RLock()
	f, ok := m.files[name]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out, true
}

// Open implements resolver.FileLocationResolver. It always opens
// synchronously (sets *syncOpen to true) since an in-memory lookup has no
// reason to defer; DeferredOpen exercise paths should use a resolver that
// deliberately clears syncOpen instead (see MockResolver.AddDeferred in the
// root package's testing.go).
func (m *Memory) Open(ref resolver.FileRef, mode resolver.OpenMode, flags resolver.OpenFlags, syncOpen *bool) (resolver.FileDescriptor, error) {
	m.mu.RLock()
	f, ok := m.files[ref.Name]
	m.mu.RUnlock()
	if !ok {
		return resolver.FileDescriptor{}, notFoundError{name: ref.Name}
	}
	*syncOpen = true
	return resolver.FileDescriptor{DeviceID: m.deviceID, Handle: f}, nil
}

// HookOpen implements resolver.LowLevelIOHook.Open for the deferred-open
// path: it resolves the record's file reference the same way Open does.
func (m *Memory) HookOpen(record resolver.DeferredOpenRecord) (resolver.FileDescriptor, error) {
	m.mu.Lock()
	m.openCalls++
	m.mu.Unlock()

	m.mu.RLock()
	f, ok := m.files[record.Ref.Name]
	m.mu.RUnlock()
	if !ok {
		return resolver.FileDescriptor{}, notFoundError{name: record.Ref.Name}
	}
	return resolver.FileDescriptor{DeviceID: m.deviceID, Handle: f}, nil
}

// Close implements resolver.LowLevelIOHook.
func (m *Memory) Close(resolver.FileDescriptor) error {
	m.mu.Lock()
	m.closeCalls++
	m.mu.Unlock()
	return nil
}

// Read implements resolver.LowLevelIOHook.
func (m *Memory) Read(fd resolver.FileDescriptor, offset int64, dst []byte) (int, error) {
	m.mu.Lock()
	m.readCalls++
	m.mu.Unlock()
	f := fd.Handle.(*memFile)
	return f.readAt(dst, offset), nil
}

// Write implements resolver.LowLevelIOHook.
func (m *Memory) Write(fd resolver.FileDescriptor, offset int64, src []byte) (int, error) {
	m.mu.Lock()
	m.writeCalls++
	m.mu.Unlock()
	f := fd.Handle.(*memFile)
	return f.writeAt(src, offset), nil
}

// GetBlockSize implements resolver.LowLevelIOHook. An in-memory store has
// no alignment requirement.
func (m *Memory) GetBlockSize(resolver.FileDescriptor) int { return 1 }

// CallCounts reports how many times each hook operation has been invoked,
// for test assertions about dispatch behavior.
func (m *Memory) CallCounts() (open, closeN, read, write int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.openCalls, m.closeCalls, m.readCalls, m.writeCalls
}

type notFoundError struct{ name string }

func (e notFoundError) Error() string { return "backend: file not found: " + e.name }

var (
	_ resolver.FileLocationResolver = (*Memory)(nil)
)

// hookAdapter exposes Memory's HookOpen as the resolver.LowLevelIOHook
// Open method; Memory itself can't implement both interfaces' Open
// directly since their signatures differ; callers pass this adapter as
// the hook to Manager.CreateDevice.
type hookAdapter struct{ *Memory }

func (h hookAdapter) Open(record resolver.DeferredOpenRecord) (resolver.FileDescriptor, error) {
	return h.HookOpen(record)
}

// Hook returns a resolver.LowLevelIOHook view of this backend, for
// passing to Manager.CreateDevice alongside the Memory itself as the
// FileLocationResolver.
func (m *Memory) Hook() resolver.LowLevelIOHook { return hookAdapter{m} }

var _ resolver.LowLevelIOHook = hookAdapter{}
