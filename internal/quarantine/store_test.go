package quarantine

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "quarantine.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAndGet(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.Add(map[string]any{"emotion": "Anger", "context": "Calm"}, "contradictory pair")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.HasPrefix(rec.ID, "q-") {
		t.Errorf("id %q missing q- prefix", rec.ID)
	}
	if rec.Status != StatusQuarantined {
		t.Errorf("status = %s, want quarantined", rec.Status)
	}
	if len(rec.InputHash) != 64 {
		t.Errorf("input hash %q is not a sha256 hex digest", rec.InputHash)
	}

	got, err := s.Get(rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Reason != "contradictory pair" {
		t.Errorf("reason = %q", got.Reason)
	}
	if !strings.Contains(got.Input, "Anger") {
		t.Errorf("stored input %q lost payload", got.Input)
	}
}

func TestReleaseIsSoftDelete(t *testing.T) {
	s := newTestStore(t)

	rec, err := s.Add(map[string]any{"x": 1}, "reason")
	if err != nil {
		t.Fatal(err)
	}

	released, err := s.Release(rec.ID, "admin")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Status != StatusReleased {
		t.Errorf("status = %s, want released", released.Status)
	}
	if released.ReleasedBy != "admin" || released.ReleasedAt == "" {
		t.Errorf("release stamps missing: %+v", released)
	}

	// The record must remain retrievable, never physically removed.
	got, err := s.Get(rec.ID)
	if err != nil {
		t.Fatalf("get after release: %v", err)
	}
	if got.Status != StatusReleased {
		t.Errorf("record vanished or reverted: %+v", got)
	}
}

func TestReleaseUnknownIDReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Release("q-does-not-exist", "admin")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestReleaseTwiceIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	rec, _ := s.Add(map[string]any{"x": 1}, "r")

	if _, err := s.Release(rec.ID, "admin"); err != nil {
		t.Fatal(err)
	}
	again, err := s.Release(rec.ID, "operator")
	if err != nil {
		t.Fatalf("second release: %v", err)
	}
	// First releaser wins; the second call does not overwrite.
	if again.ReleasedBy != "admin" {
		t.Errorf("released_by = %q, want admin", again.ReleasedBy)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	s := newTestStore(t)

	a, _ := s.Add(map[string]any{"n": 1}, "first")
	s.Add(map[string]any{"n": 2}, "second")
	s.Release(a.ID, "admin")

	held, err := s.List(StatusQuarantined)
	if err != nil {
		t.Fatal(err)
	}
	if len(held) != 1 || held[0].Reason != "second" {
		t.Errorf("held = %+v", held)
	}

	all, err := s.List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("all = %d records, want 2", len(all))
	}

	n, err := s.Count(StatusQuarantined)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quarantine.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	rec, _ := s.Add(map[string]any{"x": 1}, "durable")
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.Get(rec.ID)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Reason != "durable" {
		t.Errorf("record lost across reopen: %+v", got)
	}
}
