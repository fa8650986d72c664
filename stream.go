package iostream

import (
	"context"
	"io"

	"github.com/iostreamd/iostream/internal/resolver"
	"github.com/iostreamd/iostream/internal/task"
)

// StreamState mirrors the task state machine for consumer-facing status
// queries.
type StreamState = task.State

// Status reports a stream's current lifecycle state and, if it is in
// Error, the failure that drove it there.
type Status struct {
	State StreamState
	Err   error
}

// StdStream is a standard stream: one explicit read or write at a time,
// no prefetch. Every operation transfers at most one granule.
type StdStream struct {
	task   *task.StdTask
	device *Device
}

// GetStatus reports the stream's current state.
func (s *StdStream) GetStatus() Status {
	return Status{State: s.task.State(), Err: s.task.Err()}
}

// Read posts a read request sized to len(buf) and blocks until the
// device's worker has transferred one granule, copying the transferred
// bytes into buf and returning their count. io.EOF is returned once the
// underlying file is exhausted.
func (s *StdStream) Read(ctx context.Context, buf []byte) (int, error) {
	if s.task.Mode == resolver.ModeWriteOnly {
		return 0, NewTaskError("Read", s.device.id, uint64(s.task.ID), InvalidParameter, "stream is write-only")
	}
	if len(buf) == 0 {
		return 0, nil
	}

	s.task.PostRead(len(buf))
	n, err := s.waitAndDrain(ctx, buf)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write posts a write request for buf and blocks until the device's
// worker has transferred one granule, returning the number of bytes
// accepted by the backend.
func (s *StdStream) Write(ctx context.Context, buf []byte) (int, error) {
	if s.task.Mode == resolver.ModeReadOnly {
		return 0, NewTaskError("Write", s.device.id, uint64(s.task.ID), InvalidParameter, "stream is read-only")
	}
	if len(buf) == 0 {
		return 0, nil
	}

	s.task.PostWrite(buf)
	return s.waitAndDrain(ctx, nil)
}

// waitAndDrain blocks until the posted operation leaves Running, then
// releases the granule the worker acquired for it back to the device
// pool. If dst is non-nil, the transferred bytes are copied into it
// first (the read path); the write path has nothing to copy out.
func (s *StdStream) waitAndDrain(ctx context.Context, dst []byte) (int, error) {
	s.device.impl.Nudge()

	switch state := s.task.WaitForChange(ctx, task.Running); state {
	case task.Error:
		return 0, WrapError("waitAndDrain", s.task.Err())
	case task.ToBeDestroyed:
		return 0, NewTaskError("waitAndDrain", s.device.id, uint64(s.task.ID), Cancelled, "stream destroyed")
	}

	g, n, ok := s.task.ReleaseOldest()
	if !ok {
		if s.task.Cancelled() {
			return 0, NewTaskError("waitAndDrain", s.device.id, uint64(s.task.ID), Cancelled, "stream cancelled")
		}
		// Either the context expired before the worker dispatched a
		// transfer, or the task was already Completed and nothing was
		// transferred (nil error, which Read reports as io.EOF).
		return 0, ctx.Err()
	}
	if dst != nil {
		n = copy(dst, g.Bytes()[:n])
	}
	if err := s.device.impl.ReleaseGranule(g); err != nil {
		s.device.impl.Nudge()
	}
	return n, nil
}

// Seek repositions the stream's file cursor. It does not itself perform
// I/O; the next Read or Write transfers from the new position.
func (s *StdStream) Seek(offset int64, whence int) (int64, error) {
	return s.task.Seek(offset, whence)
}

// Cancel abandons any in-flight transfer; future operations return
// Cancelled until a new one is posted.
func (s *StdStream) Cancel() {
	s.task.Cancel()
}

// Destroy marks the stream ToBeDestroyed; the device's worker completes
// reclamation asynchronously. Calling Destroy more than once is a no-op.
func (s *StdStream) Destroy() {
	s.task.Kill()
}

// AutoStream is an automatic stream: continuous heuristics-driven
// prefetch with no explicit read calls.
type AutoStream struct {
	task   *task.AutoTask
	device *Device
}

// GetStatus reports the stream's current state.
func (s *AutoStream) GetStatus() Status {
	return Status{State: s.task.State(), Err: s.task.Err()}
}

// Start resumes prefetch.
func (s *AutoStream) Start() {
	s.task.Start()
	s.device.impl.Nudge()
}

// Stop pauses prefetch; a paused stream is ineligible for scheduling
// until Start is called again.
func (s *AutoStream) Stop() {
	s.task.Stop()
}

// GetBuffer returns the next ready granule without blocking. ok is false
// (NoDataReady) if prefetch hasn't staged anything yet.
func (s *AutoStream) GetBuffer() (data []byte, ok bool) {
	g, ok := s.task.GetBuffer()
	if !ok {
		return nil, false
	}
	return g.Bytes(), true
}

// NoDataReady reports whether the most recent GetBuffer call found
// nothing staged.
func (s *AutoStream) NoDataReady() bool {
	return s.task.NoDataReady()
}

// ReleaseBuffer returns the front granule to the pool and advances the
// consumer's read cursor. Calling it without a preceding successful
// GetBuffer is a caller error.
func (s *AutoStream) ReleaseBuffer() error {
	g, err := s.task.ReleaseBuffer()
	if err != nil {
		return NewError("ReleaseBuffer", InvalidParameter, err.Error())
	}
	if err := s.device.impl.ReleaseGranule(g); err != nil {
		return WrapError("ReleaseBuffer", err)
	}
	s.device.impl.Nudge()
	return nil
}

// SetHeuristics updates throughput, priority, and loop bounds, taking
// effect from the next scheduling decision.
func (s *AutoStream) SetHeuristics(h task.Heuristics) error {
	if err := s.task.SetHeuristics(h); err != nil {
		return NewError("SetHeuristics", InvalidParameter, err.Error())
	}
	return nil
}

// SetMinTargetBufferSize overrides the device's default prefetch horizon
// for this stream, in seconds.
func (s *AutoStream) SetMinTargetBufferSize(seconds float64) {
	s.task.SetMinTargetBufferSize(seconds)
}

// GetPosition returns the file offset the next prefetch transfer reads
// from. Granules already staged in the ring are not subtracted, so this is
// ahead of what the consumer has taken with GetBuffer.
func (s *AutoStream) GetPosition() int64 {
	return s.task.Position()
}

// SetPosition repositions the prefetch offset, used after a loop point or
// an explicit seek; prefetch resumes from the new offset. Granules already
// staged in the ring are kept.
func (s *AutoStream) SetPosition(offset int64) {
	s.task.SetPosition(offset)
}

// Destroy marks the stream ToBeDestroyed; the device's worker completes
// reclamation asynchronously.
func (s *AutoStream) Destroy() {
	s.task.Kill()
}
