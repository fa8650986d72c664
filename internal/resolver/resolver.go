// Package resolver defines the two contracts a host must implement to plug
// a storage backend and a name/ID addressing scheme into the streaming
// engine: FileLocationResolver and LowLevelIOHook. Neither is implemented
// here — the engine only ever holds references to host-supplied values.
package resolver

import "fmt"

// OpenMode mirrors the explicit mode a caller requests for a standard or
// automatic stream.
type OpenMode int

const (
	ModeReadOnly OpenMode = iota
	ModeWriteOnly
	ModeReadWrite
)

// OpenFlags carries resolver hints set partly by the caller and partly by
// the engine itself before the resolver is invoked.
type OpenFlags struct {
	// IsAutomaticStream is set by the engine, never by the caller, before
	// Open is invoked — it tells the resolver which stream abstraction is
	// being created.
	IsAutomaticStream bool

	// IsLanguageSpecific marks the file as a per-language bank asset. A
	// resolver failure for such a file is suppressed from monitor/error
	// reporting (the documented "language bank not found" quirk).
	IsLanguageSpecific bool
}

// FileRef identifies a file either by name or by a pre-resolved numeric
// ID. Exactly one of Name or ID should be meaningful; which one is by
// caller convention, not enforced here.
type FileRef struct {
	Name string
	ID   uint64
}

func (r FileRef) String() string {
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("id:%d", r.ID)
}

// FileDescriptor is the backend-opaque handle a resolver and hook hand
// back and forth. DeviceID tells the engine which device owns the
// transport; Handle is passed through to the hook unexamined.
type FileDescriptor struct {
	DeviceID uint32
	Handle   any
}

// DeferredOpenRecord captures the arguments of an Open call the resolver
// chose not to perform synchronously. The engine copies this into its own
// task storage (per SetDeferredFileOpen) since the caller's arguments may
// not outlive the call.
type DeferredOpenRecord struct {
	Ref   FileRef
	Mode  OpenMode
	Flags OpenFlags
}

// FileLocationResolver maps a name or ID to a file descriptor and the
// device that will serve it. If the resolver can determine the device and
// defer the actual open, it should set syncOpen to false; the engine then
// stores the open arguments as a DeferredOpenRecord and invokes the hook's
// Open at first dispatch instead.
type FileLocationResolver interface {
	Open(ref FileRef, mode OpenMode, flags OpenFlags, syncOpen *bool) (FileDescriptor, error)
}

// LowLevelIOHook is the per-device transport. It is the only party that
// performs actual I/O; the engine only schedules calls into it.
type LowLevelIOHook interface {
	// Open resolves a deferred record into a live descriptor.
	Open(record DeferredOpenRecord) (FileDescriptor, error)
	Close(fd FileDescriptor) error
	Read(fd FileDescriptor, offset int64, dst []byte) (n int, err error)
	Write(fd FileDescriptor, offset int64, src []byte) (n int, err error)
	GetBlockSize(fd FileDescriptor) int
}
