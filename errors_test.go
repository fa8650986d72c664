package iostream

import (
	"errors"
	"testing"
)

func TestStructuredError(t *testing.T) {
	err := NewError("CreateStd", InvalidParameter, "null name")

	if err.Op != "CreateStd" {
		t.Errorf("Expected Op=CreateStd, got %s", err.Op)
	}
	if err.Code != InvalidParameter {
		t.Errorf("Expected Code=InvalidParameter, got %s", err.Code)
	}

	expected := "iostream: null name (op=CreateStd)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestDeviceError(t *testing.T) {
	err := NewDeviceError("DestroyDevice", 7, Fail, "device has live tasks")

	if err.DeviceID != 7 {
		t.Errorf("Expected DeviceID=7, got %d", err.DeviceID)
	}

	expected := "iostream: device has live tasks (op=DestroyDevice)"
	if err.Error() != expected {
		t.Errorf("Expected error message %q, got %q", expected, err.Error())
	}
}

func TestTaskError(t *testing.T) {
	err := NewTaskError("Read", 3, 99, FileNotFound, "descriptor gone")

	if err.DeviceID != 3 {
		t.Errorf("Expected DeviceID=3, got %d", err.DeviceID)
	}
	if err.TaskID != 99 {
		t.Errorf("Expected TaskID=99, got %d", err.TaskID)
	}
}

func TestWrapError(t *testing.T) {
	inner := NewError("Open", FileNotFound, "no such bank")
	wrapped := WrapError("CreateStd", inner)

	if wrapped.Code != FileNotFound {
		t.Errorf("Expected Code=FileNotFound, got %s", wrapped.Code)
	}
	if !errors.Is(wrapped, inner) {
		t.Error("Expected wrapped error to satisfy errors.Is against the inner structured error")
	}
}

func TestWrapError_PlainError(t *testing.T) {
	wrapped := WrapError("Write", errors.New("disk full"))
	if wrapped.Code != Fail {
		t.Errorf("Expected Code=Fail for an unstructured inner error, got %s", wrapped.Code)
	}
}

func TestWrapError_Nil(t *testing.T) {
	if WrapError("Anything", nil) != nil {
		t.Error("WrapError(nil) should return nil")
	}
}

func TestIsResult(t *testing.T) {
	err := NewError("GetBuffer", Cancelled, "stream cancelled")

	if !IsResult(err, Cancelled) {
		t.Error("IsResult should return true for matching code")
	}
	if IsResult(err, Fail) {
		t.Error("IsResult should return false for non-matching code")
	}
	if IsResult(nil, Cancelled) {
		t.Error("IsResult should return false for nil error")
	}
}

func TestErrorIs_MatchesByCode(t *testing.T) {
	a := &Error{Code: InsufficientMemory}
	b := NewError("CreateAuto", InsufficientMemory, "pool exhausted")

	if !errors.Is(b, a) {
		t.Error("errors.Is should match structured errors sharing a Result code")
	}
}
