// Package kernel holds the integrity-protected mutable kernel state.
// It is the single place allowed to mutate trust, harmony, emotion,
// context, safe mode and alert level; every mutation is validated,
// hashed and recorded in the audit chain.
package kernel

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/hannesmitterer/sentinel/internal/audit"
)

// Emotion is the kernel's emotional register.
type Emotion string

const (
	EmotionLove    Emotion = "Love"
	EmotionAnger   Emotion = "Anger"
	EmotionCalm    Emotion = "Calm"
	EmotionJoy     Emotion = "Joy"
	EmotionFear    Emotion = "Fear"
	EmotionNeutral Emotion = "Neutral"
)

// Context is the kernel's situational register.
type Context string

const (
	ContextCalm      Context = "Calm"
	ContextTense     Context = "Tense"
	ContextCrisis    Context = "Crisis"
	ContextPeaceful  Context = "Peaceful"
	ContextUncertain Context = "Uncertain"
)

// AlertLevel is the kernel-wide alert posture.
type AlertLevel string

const (
	AlertNormal    AlertLevel = "normal"
	AlertWarning   AlertLevel = "warning"
	AlertCritical  AlertLevel = "critical"
	AlertEmergency AlertLevel = "emergency"
)

// Snapshot is an immutable copy of the kernel state at read time.
// Corrupted reports that the stored integrity hash did not match a
// freshly computed one; safety-deciding callers must treat a corrupted
// snapshot as worst-case, never optimistically.
type Snapshot struct {
	Trust       float64    `json:"trust"`
	Harmony     float64    `json:"harmony"`
	Emotion     Emotion    `json:"emotion"`
	Context     Context    `json:"context"`
	SafeMode    bool       `json:"safe_mode"`
	AlertLevel  AlertLevel `json:"alert_level"`
	LastUpdated time.Time  `json:"last_updated"`
	Heartbeat   time.Time  `json:"heartbeat"`
	Corrupted   bool       `json:"-"`
}

// Update is a partial field map; nil fields are left untouched.
type Update struct {
	Trust      *float64    `json:"trust,omitempty"`
	Harmony    *float64    `json:"harmony,omitempty"`
	Emotion    *Emotion    `json:"emotion,omitempty"`
	Context    *Context    `json:"context,omitempty"`
	SafeMode   *bool       `json:"safe_mode,omitempty"`
	AlertLevel *AlertLevel `json:"alert_level,omitempty"`
}

// HistoryEntry records one successful mutation for forensic replay.
// History is append-only and never pruned by this package.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Previous  Snapshot  `json:"previous_state"`
	Updates   Update    `json:"updates"`
	Source    string    `json:"source"`
}

// State is the kernel state record. All access is serialized through
// one exclusive lock; validate→apply→rehash is a single critical
// section with no I/O inside it beyond the audit append.
type State struct {
	mu            sync.Mutex
	snap          Snapshot
	history       []HistoryEntry
	integrityHash string
	log           *audit.Log
}

// New creates the kernel state with its fixed defaults and computes
// the initial integrity hash.
func New(log *audit.Log) *State {
	now := time.Now().UTC()
	s := &State{
		snap: Snapshot{
			Trust:       1.0,
			Harmony:     1.0,
			Emotion:     EmotionCalm,
			Context:     ContextCalm,
			SafeMode:    false,
			AlertLevel:  AlertNormal,
			LastUpdated: now,
			Heartbeat:   now,
		},
		log: log,
	}
	s.integrityHash = computeHash(s.snap)
	return s
}

// computeHash hashes the canonical serialization of all state fields.
func computeHash(s Snapshot) string {
	canon, _ := json.Marshal(map[string]any{
		"trust":        s.Trust,
		"harmony":      s.Harmony,
		"emotion":      string(s.Emotion),
		"context":      string(s.Context),
		"safe_mode":    s.SafeMode,
		"alert_level":  string(s.AlertLevel),
		"last_updated": s.LastUpdated.Format(time.RFC3339Nano),
		"heartbeat":    s.Heartbeat.Format(time.RFC3339Nano),
	})
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:])
}

// Read returns an immutable snapshot. On an integrity hash mismatch the
// data is still returned, flagged Corrupted, and a critical event is
// logged; this package never auto-heals corruption.
func (s *State) Read() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snap
	computed := computeHash(s.snap)
	if computed != s.integrityHash {
		snap.Corrupted = true
		s.log.Append(audit.TypeStateEvent, audit.StateCorrupted{
			Error:        "state integrity compromised during read",
			StoredHash:   s.integrityHash,
			ComputedHash: computed,
		}, audit.LevelCritical)
	}
	return snap
}

// Heartbeat returns the last mutation timestamp for the watchdog.
func (s *State) Heartbeat() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.Heartbeat
}

// IntegrityHash returns the stored hash over the current fields.
func (s *State) IntegrityHash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.integrityHash
}

// History returns a copy of the mutation history.
func (s *State) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// Update applies a validated partial update. If any field fails
// validation the entire update is rejected and logged — no partial
// application ever occurs. On success the heartbeat advances, a
// history entry is appended, the integrity hash is recomputed and a
// state_updated event is written to the audit chain.
func (s *State) Update(u Update, source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	computed := computeHash(s.snap)
	if computed != s.integrityHash {
		s.log.Append(audit.TypeStateEvent, audit.StateCorrupted{
			Error:        "state integrity compromised before update",
			StoredHash:   s.integrityHash,
			ComputedHash: computed,
		}, audit.LevelCritical)
		return false
	}

	if field, oldVal, newVal, ok := validate(s.snap, u); !ok {
		s.log.Append(audit.TypeStateEvent, audit.StateRejected{
			Error:    "invalid state change rejected",
			Field:    field,
			OldValue: oldVal,
			NewValue: newVal,
			Source:   source,
		}, audit.LevelHigh)
		return false
	}

	previous := s.snap
	apply(&s.snap, u)

	now := time.Now().UTC()
	s.snap.LastUpdated = now
	s.snap.Heartbeat = now

	s.history = append(s.history, HistoryEntry{
		Timestamp: now,
		Previous:  previous,
		Updates:   u,
		Source:    source,
	})
	s.integrityHash = computeHash(s.snap)

	s.log.Append(audit.TypeStateEvent, audit.StateUpdated{
		Action:  "state_updated",
		Updates: u.fields(),
		Source:  source,
		NewHash: s.integrityHash,
	}, audit.LevelNormal)

	return true
}

// Corrupt deliberately desynchronizes the stored integrity hash.
// Test hook for exercising corruption handling; never called by the
// subsystem itself.
func (s *State) Corrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.integrityHash = "0000"
}

func apply(snap *Snapshot, u Update) {
	if u.Trust != nil {
		snap.Trust = *u.Trust
	}
	if u.Harmony != nil {
		snap.Harmony = *u.Harmony
	}
	if u.Emotion != nil {
		snap.Emotion = *u.Emotion
	}
	if u.Context != nil {
		snap.Context = *u.Context
	}
	if u.SafeMode != nil {
		snap.SafeMode = *u.SafeMode
	}
	if u.AlertLevel != nil {
		snap.AlertLevel = *u.AlertLevel
	}
}

// fields renders the update as a field map for audit payloads.
func (u Update) fields() map[string]any {
	m := map[string]any{}
	if u.Trust != nil {
		m["trust"] = *u.Trust
	}
	if u.Harmony != nil {
		m["harmony"] = *u.Harmony
	}
	if u.Emotion != nil {
		m["emotion"] = string(*u.Emotion)
	}
	if u.Context != nil {
		m["context"] = string(*u.Context)
	}
	if u.SafeMode != nil {
		m["safe_mode"] = *u.SafeMode
	}
	if u.AlertLevel != nil {
		m["alert_level"] = *u.AlertLevel
	}
	return m
}
