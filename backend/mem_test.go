package backend

import (
	"testing"

	"github.com/iostreamd/iostream/internal/resolver"
)

func TestMemoryOpen_Found(t *testing.T) {
	mem := NewMemory(1)
	mem.Put("stream.bnk", []byte("hello, iostream!"))

	syncOpen := false
	fd, err := mem.Open(resolver.FileRef{Name: "stream.bnk"}, resolver.ModeReadOnly, resolver.OpenFlags{}, &syncOpen)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if !syncOpen {
		t.Error("Open() should set syncOpen true (in-memory lookups never defer)")
	}
	if fd.DeviceID != 1 {
		t.Errorf("fd.DeviceID = %d, want 1", fd.DeviceID)
	}
}

func TestMemoryOpen_NotFound(t *testing.T) {
	mem := NewMemory(1)
	syncOpen := true
	_, err := mem.Open(resolver.FileRef{Name: "missing.bnk"}, resolver.ModeReadOnly, resolver.OpenFlags{}, &syncOpen)
	if err == nil {
		t.Fatal("Open() should fail for an unregistered name")
	}
}

func TestMemoryReadWrite(t *testing.T) {
	mem := NewMemory(1)
	mem.CreateFile("out.bnk")
	hook := mem.Hook()

	syncOpen := true
	fd, err := mem.Open(resolver.FileRef{Name: "out.bnk"}, resolver.ModeReadWrite, resolver.OpenFlags{}, &syncOpen)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	payload := []byte("granule payload")
	n, err := hook.Write(fd, 0, payload)
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	if n != len(payload) {
		t.Errorf("Write() = %d, want %d", n, len(payload))
	}

	readBuf := make([]byte, len(payload))
	n, err = hook.Read(fd, 0, readBuf)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if string(readBuf[:n]) != string(payload) {
		t.Errorf("Read() = %q, want %q", readBuf[:n], payload)
	}
}

func TestMemoryRead_BoundaryShortRead(t *testing.T) {
	mem := NewMemory(1)
	mem.Put("short.bnk", []byte("12345"))
	hook := mem.Hook()

	syncOpen := true
	fd, _ := mem.Open(resolver.FileRef{Name: "short.bnk"}, resolver.ModeReadOnly, resolver.OpenFlags{}, &syncOpen)

	buf := make([]byte, 10)
	n, err := hook.Read(fd, 2, buf)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if n != 3 {
		t.Errorf("Read() = %d, want 3 (short read at file end)", n)
	}
}

func TestMemoryCallCounts(t *testing.T) {
	mem := NewMemory(1)
	mem.Put("x.bnk", []byte("data"))
	hook := mem.Hook()

	record := resolver.DeferredOpenRecord{Ref: resolver.FileRef{Name: "x.bnk"}}
	fd, err := hook.Open(record)
	if err != nil {
		t.Fatalf("hook.Open() error: %v", err)
	}
	_, _ = hook.Read(fd, 0, make([]byte, 4))
	_ = hook.Close(fd)

	open, closeN, read, _ := mem.CallCounts()
	if open != 1 || closeN != 1 || read != 1 {
		t.Errorf("CallCounts() = open:%d close:%d read:%d, want 1,1,1", open, closeN, read)
	}
}

func TestMemoryContents(t *testing.T) {
	mem := NewMemory(1)
	mem.CreateFile("grown.bnk")
	hook := mem.Hook()
	syncOpen := true
	fd, _ := mem.Open(resolver.FileRef{Name: "grown.bnk"}, resolver.ModeWriteOnly, resolver.OpenFlags{}, &syncOpen)

	if _, err := hook.Write(fd, 0, []byte("abc")); err != nil {
		t.Fatalf("Write() error: %v", err)
	}
	contents, ok := mem.Contents("grown.bnk")
	if !ok {
		t.Fatal("Contents() ok = false, want true")
	}
	if string(contents) != "abc" {
		t.Errorf("Contents() = %q, want %q", contents, "abc")
	}
}
