package task

import (
	"errors"
	"testing"
	"time"
)

func TestStateTransitions(t *testing.T) {
	st := NewStd(1, 1, resolverModeReadOnly(), 50)

	if st.State() != Initial {
		t.Fatalf("new task state = %v, want Initial", st.State())
	}

	st.SetFileOpen(fakeFD())
	if st.State() != Ready {
		t.Fatalf("after SetFileOpen state = %v, want Ready", st.State())
	}

	st.PostRead(2048)
	if st.State() != Running {
		t.Fatalf("after PostRead state = %v, want Running", st.State())
	}

	st.MarkIdle()
	if st.State() != Idle {
		t.Fatalf("after MarkIdle state = %v, want Idle", st.State())
	}

	st.MarkCompleted()
	if st.State() != Completed {
		t.Fatalf("after MarkCompleted state = %v, want Completed", st.State())
	}

	select {
	case <-st.Done():
	default:
		t.Error("Done() channel should be closed after MarkCompleted")
	}
}

func TestErrorReachableFromAnyState(t *testing.T) {
	states := []func(*StdTask){
		func(s *StdTask) {},
		func(s *StdTask) { s.SetFileOpen(fakeFD()) },
		func(s *StdTask) { s.SetFileOpen(fakeFD()); s.PostRead(1024) },
	}

	for i, setup := range states {
		st := NewStd(ID(i), 1, resolverModeReadOnly(), 50)
		setup(st)
		st.MarkError(errors.New("boom"))
		if st.State() != Error {
			t.Errorf("case %d: state = %v, want Error", i, st.State())
		}
		if st.Err() == nil {
			t.Errorf("case %d: Err() = nil, want boom", i)
		}
	}
}

func TestKillReachableFromAnyState(t *testing.T) {
	st := NewStd(1, 1, resolverModeReadOnly(), 50)
	st.SetFileOpen(fakeFD())
	st.PostRead(512)
	st.Kill()
	if st.State() != ToBeDestroyed {
		t.Fatalf("state after Kill = %v, want ToBeDestroyed", st.State())
	}
	// Kill is idempotent.
	st.Kill()
	if st.State() != ToBeDestroyed {
		t.Fatalf("state after second Kill = %v, want ToBeDestroyed", st.State())
	}
}

func TestDeferredOpenRoundTrip(t *testing.T) {
	st := NewStd(1, 1, resolverModeReadOnly(), 50)
	rec := fakeDeferredRecord()
	st.SetDeferredFileOpen(rec)

	if st.State() != Ready {
		t.Fatalf("state after SetDeferredFileOpen = %v, want Ready", st.State())
	}
	got := st.DeferredOpen()
	if got == nil {
		t.Fatal("DeferredOpen() returned nil")
	}
	if got.Ref.Name != rec.Ref.Name {
		t.Errorf("DeferredOpen().Ref.Name = %q, want %q", got.Ref.Name, rec.Ref.Name)
	}
}

func TestStdTaskEligibility(t *testing.T) {
	st := NewStd(1, 1, resolverModeReadOnly(), 50)
	if st.Eligible() {
		t.Error("freshly created std task with no pending op should not be eligible")
	}

	st.PostRead(1024)
	if !st.Eligible() {
		t.Error("std task with a pending read should be eligible")
	}

	st.Cancel()
	if st.Eligible() {
		t.Error("cancelled std task should not be eligible")
	}
}

func TestAutoTaskHeuristicsValidation(t *testing.T) {
	tests := []struct {
		name    string
		h       Heuristics
		wantErr bool
	}{
		{"valid", Heuristics{Throughput: 1024, Priority: 50}, false},
		{"negative throughput", Heuristics{Throughput: -1, Priority: 50}, true},
		{"priority too low", Heuristics{Throughput: 1024, Priority: -1}, true},
		{"priority too high", Heuristics{Throughput: 1024, Priority: 1000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.h.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestAutoTaskPrefetchCap(t *testing.T) {
	at := NewAuto(1, 1, resolverModeReadOnly(), Heuristics{Throughput: 64 * 1024, Priority: 50, BufferLength: 2})
	cap := at.PrefetchCapGranules(1, 32*1024)
	// 2s * 64KiB/s = 128KiB of target bytes / 32KiB granules = 4 granules.
	if cap != 4 {
		t.Errorf("PrefetchCapGranules() = %d, want 4", cap)
	}
}

func TestAutoTaskGetBufferReleaseBuffer(t *testing.T) {
	at := NewAuto(1, 1, resolverModeReadOnly(), Heuristics{Throughput: 1024, Priority: 50})

	if _, ok := at.GetBuffer(); ok {
		t.Error("GetBuffer() on an empty ring should report NoDataReady")
	}
	if !at.NoDataReady() {
		t.Error("NoDataReady() should be true after an empty GetBuffer")
	}

	at.GrantGranule(fakeGranule())
	g, ok := at.GetBuffer()
	if !ok {
		t.Fatal("GetBuffer() should succeed once a granule is granted")
	}
	_ = g

	released, err := at.ReleaseBuffer()
	if err != nil {
		t.Fatalf("ReleaseBuffer() unexpected error: %v", err)
	}
	_ = released

	if _, err := at.ReleaseBuffer(); err == nil {
		t.Error("excess ReleaseBuffer should return an error")
	}
}

func TestAutoTaskStartStopEligibility(t *testing.T) {
	at := NewAuto(1, 1, resolverModeReadOnly(), Heuristics{Throughput: 1024, Priority: 50, BufferLength: 1})
	at.Start()
	if !at.Eligible(1, 1024) {
		t.Error("running auto task with room in its ring should be eligible")
	}

	at.Stop()
	if at.Eligible(1, 1024) {
		t.Error("paused auto task should not be eligible")
	}
}

func TestAutoTaskStarvationElevatesPriority(t *testing.T) {
	at := NewAuto(1, 1, resolverModeReadOnly(), Heuristics{Throughput: 64 * 1024, Priority: 10, BufferLength: 2})
	// No granules granted: ring is empty, well below the starvation
	// threshold, so priority should be elevated.
	if !at.Starved(2, 32*1024) {
		t.Fatal("auto task with an empty ring should be starved")
	}
	if at.EffectivePriority(2, 32*1024) <= at.Priority() {
		t.Error("starved task's effective priority should exceed its nominal priority")
	}
}

func TestCreatedAtMonotonic(t *testing.T) {
	a := NewStd(1, 1, resolverModeReadOnly(), 50)
	time.Sleep(time.Millisecond)
	b := NewStd(2, 1, resolverModeReadOnly(), 50)
	if !b.CreatedAt().After(a.CreatedAt()) {
		t.Error("later-created task should have a later CreatedAt")
	}
}
