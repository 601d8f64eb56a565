package kernel

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hannesmitterer/sentinel/internal/audit"
)

func newTestState(t *testing.T) (*State, *audit.Log) {
	t.Helper()
	log, err := audit.Open(filepath.Join(t.TempDir(), "audit.jsonl"))
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	t.Cleanup(func() { log.Close() })
	return New(log), log
}

func ptr[T any](v T) *T { return &v }

func TestDefaults(t *testing.T) {
	s, _ := newTestState(t)
	snap := s.Read()

	if snap.Trust != 1.0 || snap.Harmony != 1.0 {
		t.Errorf("trust/harmony = %v/%v, want 1.0/1.0", snap.Trust, snap.Harmony)
	}
	if snap.Emotion != EmotionCalm || snap.Context != ContextCalm {
		t.Errorf("emotion/context = %v/%v, want Calm/Calm", snap.Emotion, snap.Context)
	}
	if snap.SafeMode {
		t.Error("safe mode active by default")
	}
	if snap.AlertLevel != AlertNormal {
		t.Errorf("alert level = %v, want normal", snap.AlertLevel)
	}
	if snap.Corrupted {
		t.Error("fresh state reads corrupted")
	}
}

func TestUpdateAppliesFields(t *testing.T) {
	s, _ := newTestState(t)
	before := s.Heartbeat()
	time.Sleep(time.Millisecond)

	ok := s.Update(Update{
		Trust:   ptr(0.8),
		Emotion: ptr(EmotionJoy),
	}, "test")
	if !ok {
		t.Fatal("valid update rejected")
	}

	snap := s.Read()
	if snap.Trust != 0.8 {
		t.Errorf("trust = %v, want 0.8", snap.Trust)
	}
	if snap.Emotion != EmotionJoy {
		t.Errorf("emotion = %v, want Joy", snap.Emotion)
	}
	if snap.Harmony != 1.0 {
		t.Errorf("untouched harmony changed: %v", snap.Harmony)
	}
	if !s.Heartbeat().After(before) {
		t.Error("heartbeat did not advance on update")
	}
}

func TestUpdateIsAllOrNothing(t *testing.T) {
	s, _ := newTestState(t)

	ok := s.Update(Update{
		Trust:   ptr(0.5),
		Harmony: ptr(5.0), // out of range
	}, "test")
	if ok {
		t.Fatal("invalid update accepted")
	}

	snap := s.Read()
	if snap.Trust != 1.0 || snap.Harmony != 1.0 {
		t.Fatalf("partial application: trust=%v harmony=%v", snap.Trust, snap.Harmony)
	}
	if len(s.History()) != 0 {
		t.Error("rejected update recorded in history")
	}
}

func TestUpdateValidatesEnums(t *testing.T) {
	s, _ := newTestState(t)

	cases := []struct {
		name string
		u    Update
	}{
		{"bad emotion", Update{Emotion: ptr(Emotion("Rage"))}},
		{"bad context", Update{Context: ptr(Context("War"))}},
		{"bad alert level", Update{AlertLevel: ptr(AlertLevel("panic"))}},
		{"negative trust", Update{Trust: ptr(-0.1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if s.Update(tc.u, "test") {
				t.Error("invalid value accepted")
			}
		})
	}
}

func TestHistoryRecordsMutations(t *testing.T) {
	s, _ := newTestState(t)

	s.Update(Update{Trust: ptr(0.9)}, "api")
	s.Update(Update{Emotion: ptr(EmotionFear)}, "guardian")

	hist := s.History()
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	if hist[0].Source != "api" || hist[1].Source != "guardian" {
		t.Errorf("sources = %q/%q", hist[0].Source, hist[1].Source)
	}
	if hist[1].Previous.Trust != 0.9 {
		t.Errorf("second entry previous trust = %v, want 0.9", hist[1].Previous.Trust)
	}
}

func TestIntegrityHashChangesOnUpdate(t *testing.T) {
	s, _ := newTestState(t)
	before := s.IntegrityHash()
	s.Update(Update{Trust: ptr(0.7)}, "test")
	if s.IntegrityHash() == before {
		t.Error("integrity hash unchanged after mutation")
	}
}

func TestCorruptedReadIsFlaggedAndLogged(t *testing.T) {
	s, log := newTestState(t)
	s.Corrupt()

	snap := s.Read()
	if !snap.Corrupted {
		t.Fatal("corrupted state not flagged on read")
	}

	found := false
	for entry := range log.Recent(time.Hour, audit.TypeStateEvent) {
		if entry.SecurityLevel == audit.LevelCritical {
			found = true
		}
	}
	if !found {
		t.Error("corruption not logged at critical level")
	}
}

func TestCorruptedStateRejectsUpdates(t *testing.T) {
	s, _ := newTestState(t)
	s.Corrupt()
	if s.Update(Update{Trust: ptr(0.5)}, "test") {
		t.Error("update accepted on corrupted state")
	}
}

func TestUpdateRejectionIsLogged(t *testing.T) {
	s, log := newTestState(t)
	s.Update(Update{Harmony: ptr(2.0)}, "suspect")

	var rej audit.StateRejected
	found := false
	for entry := range log.Recent(time.Hour, audit.TypeStateEvent) {
		if err := entry.DecodeData(&rej); err == nil && rej.Field == "harmony" {
			found = true
			break
		}
	}
	if !found {
		t.Fatal("rejection not logged")
	}
	if rej.Source != "suspect" || rej.NewValue != 2.0 {
		t.Errorf("rejection payload = %+v", rej)
	}
}
