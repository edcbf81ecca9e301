package config

import "testing"

func TestHolder_SeedsWithDefaults(t *testing.T) {
	h, err := NewHolder(DefaultSnapshot())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	snap := h.Get()
	if snap.Detector.WindowSize != 30 {
		t.Errorf("expected default window_size 30, got %d", snap.Detector.WindowSize)
	}
}

func TestHolder_SetRejectsInvalidSnapshot(t *testing.T) {
	h, err := NewHolder(DefaultSnapshot())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	bad := DefaultSnapshot()
	bad.Detector.MinDataPoints = 1
	if err := h.Set(bad); err == nil {
		t.Errorf("expected Set to reject an invalid detector config")
	}
	if h.Get().Detector.MinDataPoints == 1 {
		t.Errorf("a rejected Set must not mutate the live snapshot")
	}
}

func TestHolder_SetInstallsAtomically(t *testing.T) {
	h, err := NewHolder(DefaultSnapshot())
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	next := DefaultSnapshot()
	next.Detector.WindowSize = 50
	next.Detector.MinDataPoints = 7
	next.Detector.MinTrainingSize = 20
	if err := h.Set(next); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := h.Get().Detector.WindowSize; got != 50 {
		t.Errorf("expected the new window_size to take effect, got %d", got)
	}
}

func TestLoad_DefaultsWithoutConfigFile(t *testing.T) {
	_, snap, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := snap.Validate(); err != nil {
		t.Errorf("default snapshot should validate cleanly: %v", err)
	}
}

func TestSnapshot_RoundTripIsIdentity(t *testing.T) {
	snap := DefaultSnapshot()
	h, err := NewHolder(snap)
	if err != nil {
		t.Fatalf("NewHolder: %v", err)
	}
	before := h.Get()
	if err := h.Set(before); err != nil {
		t.Fatalf("Set: %v", err)
	}
	after := h.Get()
	if before.Detector.WindowSize != after.Detector.WindowSize || before.Detector.ZScoreThreshold != after.Detector.ZScoreThreshold {
		t.Errorf("PUT(get()) must be a no-op for the detector config")
	}
	if before.Reporter != after.Reporter {
		t.Errorf("PUT(get()) must be a no-op for the reporter config")
	}
}
