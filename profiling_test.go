package iostream

import "testing"

func TestGetDeviceProfile_SkipsDestroyedSlotsWithoutOffByOne(t *testing.T) {
	m := New(nil)
	firstID, err := m.CreateDevice(DefaultDeviceParams(), NewMockHook(64))
	if err != nil {
		t.Fatalf("CreateDevice() error: %v", err)
	}
	secondID, err := m.CreateDevice(DefaultDeviceParams(), NewMockHook(64))
	if err != nil {
		t.Fatalf("CreateDevice() error: %v", err)
	}

	if err := m.DestroyDevice(firstID); err != nil {
		t.Fatalf("DestroyDevice() error: %v", err)
	}

	info, ok := m.GetDeviceProfile(0)
	if !ok {
		t.Fatal("GetDeviceProfile(0) ok = false, want true (one live device remains)")
	}
	if info.ID != secondID {
		t.Errorf("GetDeviceProfile(0).ID = %d, want %d (the surviving device, not a stale slot index)", info.ID, secondID)
	}

	if _, ok := m.GetDeviceProfile(1); ok {
		t.Error("GetDeviceProfile(1) ok = true, want false (only one device remains)")
	}
}

func TestStartStopMonitoring(t *testing.T) {
	m := New(nil)
	if m.GetStreamMgrProfile().Monitoring {
		t.Error("Monitoring should start false")
	}
	m.StartMonitoring()
	if !m.GetStreamMgrProfile().Monitoring {
		t.Error("Monitoring should be true after StartMonitoring")
	}
	m.StopMonitoring()
	if m.GetStreamMgrProfile().Monitoring {
		t.Error("Monitoring should be false after StopMonitoring")
	}
}
