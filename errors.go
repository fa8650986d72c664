package iostream

import (
	"errors"
	"fmt"
)

// Result is the high-level error category returned by core operations.
// All non-Success results propagate unchanged from the layer that
// produced them; the core never translates codes.
type Result string

const (
	Success            Result = "success"
	InvalidParameter   Result = "invalid parameter"
	FileNotFound       Result = "file not found"
	Fail               Result = "fail"
	InsufficientMemory Result = "insufficient memory"
	Cancelled          Result = "cancelled"
)

// Error is a structured error carrying the operation, device, and task
// context alongside its Result code.
type Error struct {
	Op       string // operation that failed, e.g. "CreateStd", "ForceCleanup"
	DeviceID uint32 // 0 if not applicable
	TaskID   uint64 // 0 if not applicable
	Code     Result
	Msg      string
	Inner    error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.DeviceID != 0 {
		parts = append(parts, fmt.Sprintf("device=%d", e.DeviceID))
	}
	if e.TaskID != 0 {
		parts = append(parts, fmt.Sprintf("task=%d", e.TaskID))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("iostream: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("iostream: %s", msg)
}

// Unwrap exposes the wrapped error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is supports errors.Is comparison by Result code.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// NewError creates a structured error with no device/task context.
func NewError(op string, code Result, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewDeviceError creates a device-scoped structured error.
func NewDeviceError(op string, deviceID uint32, code Result, msg string) *Error {
	return &Error{Op: op, DeviceID: deviceID, Code: code, Msg: msg}
}

// NewTaskError creates a task-scoped structured error.
func NewTaskError(op string, deviceID uint32, taskID uint64, code Result, msg string) *Error {
	return &Error{Op: op, DeviceID: deviceID, TaskID: taskID, Code: code, Msg: msg}
}

// WrapError wraps an existing error with operation context, preserving the
// Result code of an inner structured error where present.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	var ie *Error
	if errors.As(inner, &ie) {
		return &Error{
			Op:       op,
			DeviceID: ie.DeviceID,
			TaskID:   ie.TaskID,
			Code:     ie.Code,
			Msg:      ie.Msg,
			Inner:    ie.Inner,
		}
	}
	return &Error{Op: op, Code: Fail, Msg: inner.Error(), Inner: inner}
}

// IsResult reports whether err carries the given Result code.
func IsResult(err error, code Result) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
