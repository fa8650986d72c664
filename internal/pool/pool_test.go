package pool

import "testing"

func TestNew_RejectsBadSizes(t *testing.T) {
	tests := []struct {
		name        string
		size        int
		granularity int
		wantErr     bool
	}{
		{"exact multiple", 4096, 1024, false},
		{"single granule", 1024, 1024, false},
		{"not a multiple", 1000, 1024, true},
		{"zero granularity", 4096, 0, true},
		{"zero size", 0, 1024, true},
		{"negative size", -1024, 1024, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.size, tt.granularity)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("New(%d, %d) expected error, got none", tt.size, tt.granularity)
				}
				return
			}
			if err != nil {
				t.Fatalf("New(%d, %d) unexpected error: %v", tt.size, tt.granularity, err)
			}
			if p.Capacity() != tt.size/tt.granularity {
				t.Errorf("Capacity() = %d, want %d", p.Capacity(), tt.size/tt.granularity)
			}
		})
	}
}

func TestAcquireRelease_CapacityInvariant(t *testing.T) {
	p, err := New(16*1024, 2048)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	capacity := p.Capacity()

	var granules []Granule
	for {
		g, ok := p.TryAcquire()
		if !ok {
			break
		}
		granules = append(granules, g)
	}
	if len(granules) != capacity {
		t.Fatalf("acquired %d granules, want %d", len(granules), capacity)
	}
	if p.Free() != 0 {
		t.Errorf("Free() = %d, want 0 when exhausted", p.Free())
	}
	if _, ok := p.TryAcquire(); ok {
		t.Error("TryAcquire() succeeded on exhausted pool")
	}

	for _, g := range granules {
		if err := p.Release(g); err != nil {
			t.Errorf("Release() unexpected error: %v", err)
		}
	}
	if p.Free() != capacity {
		t.Errorf("Free() = %d after releasing all, want %d", p.Free(), capacity)
	}
}

func TestRelease_DoubleReleaseRejected(t *testing.T) {
	p, err := New(4096, 1024)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	g, ok := p.TryAcquire()
	if !ok {
		t.Fatal("TryAcquire() failed on fresh pool")
	}
	if err := p.Release(g); err != nil {
		t.Fatalf("first Release() unexpected error: %v", err)
	}
	if err := p.Release(g); err == nil {
		t.Error("second Release() of the same granule should have returned an error")
	}
}

func TestGranuleBytes_SizedToGranularity(t *testing.T) {
	p, err := New(8192, 2048)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	g, ok := p.TryAcquire()
	if !ok {
		t.Fatal("TryAcquire() failed")
	}
	if len(g.Bytes()) != 2048 {
		t.Errorf("Bytes() length = %d, want 2048", len(g.Bytes()))
	}
}

func BenchmarkAcquireRelease(b *testing.B) {
	p, err := New(1<<20, 32*1024)
	if err != nil {
		b.Fatalf("New() error: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		g, ok := p.TryAcquire()
		if !ok {
			b.Fatal("pool exhausted during benchmark")
		}
		if err := p.Release(g); err != nil {
			b.Fatal(err)
		}
	}
}
