// Package response executes the protective actions the guardian (or a
// privileged operator) decides on: safe mode, alerts, input quarantine
// and emergency shutdown. Every action is recorded in the audit chain
// before its side effects are considered complete.
package response

import (
	"sync"
	"time"

	"github.com/hannesmitterer/sentinel/internal/audit"
	"github.com/hannesmitterer/sentinel/internal/kernel"
)

// Restrictions in effect whenever safe mode is active. The set is
// fixed; activation never narrows or widens it.
var safeModeRestrictions = []string{
	"disable_external_api",
	"limit_state_changes",
	"enhanced_logging",
	"require_authorization",
}

// Roles allowed to lift safe mode.
var authorizedRoles = map[string]bool{
	"admin":    true,
	"guardian": true,
	"operator": true,
}

// ActivationRecord is the append-only audit of one safe mode episode.
type ActivationRecord struct {
	Timestamp     string   `json:"timestamp"`
	Reason        string   `json:"reason"`
	TriggeredBy   string   `json:"triggered_by"`
	Restrictions  []string `json:"restrictions"`
	DeactivatedAt string   `json:"deactivated_at,omitempty"`
	DeactivatedBy string   `json:"deactivated_by,omitempty"`
}

// SafeModeManager owns the safe mode transitions. It serializes
// activate/deactivate so two concurrent triggers cannot double-record
// an episode.
type SafeModeManager struct {
	mu          sync.Mutex
	state       *kernel.State
	log         *audit.Log
	activations []ActivationRecord
}

// NewSafeModeManager builds a manager over the given kernel state.
func NewSafeModeManager(state *kernel.State, log *audit.Log) *SafeModeManager {
	return &SafeModeManager{state: state, log: log}
}

// Activate puts the kernel into safe mode. Idempotent: a second call
// while active logs already_active and reports success without opening
// a duplicate activation record. Returns false only when the
// underlying state update is rejected.
func (m *SafeModeManager) Activate(reason, triggeredBy string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Read().SafeMode {
		m.log.Append(audit.TypeSafeMode, audit.SafeModeEvent{
			Action:      "already_active",
			Reason:      reason,
			TriggeredBy: triggeredBy,
		}, audit.LevelNormal)
		return true
	}

	on := true
	critical := kernel.AlertCritical
	if !m.state.Update(kernel.Update{SafeMode: &on, AlertLevel: &critical}, triggeredBy) {
		return false
	}

	m.activations = append(m.activations, ActivationRecord{
		Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		Reason:       reason,
		TriggeredBy:  triggeredBy,
		Restrictions: safeModeRestrictions,
	})
	m.log.Append(audit.TypeSafeMode, audit.SafeModeEvent{
		Action:       "activated",
		Reason:       reason,
		TriggeredBy:  triggeredBy,
		Restrictions: safeModeRestrictions,
	}, audit.LevelCritical)
	return true
}

// Deactivate lifts safe mode. The caller must hold one of the
// authorized roles; a denied attempt is logged and leaves state
// untouched.
func (m *SafeModeManager) Deactivate(authorizedBy string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !authorizedRoles[authorizedBy] {
		m.log.Append(audit.TypeSafeMode, audit.SafeModeEvent{
			Action:       "deactivation_denied",
			AuthorizedBy: authorizedBy,
		}, audit.LevelHigh)
		return false
	}
	if !m.state.Read().SafeMode {
		return true
	}

	off := false
	normal := kernel.AlertNormal
	if !m.state.Update(kernel.Update{SafeMode: &off, AlertLevel: &normal}, authorizedBy) {
		return false
	}

	// Close the open episode.
	if n := len(m.activations); n > 0 && m.activations[n-1].DeactivatedAt == "" {
		m.activations[n-1].DeactivatedAt = time.Now().UTC().Format(time.RFC3339Nano)
		m.activations[n-1].DeactivatedBy = authorizedBy
	}
	m.log.Append(audit.TypeSafeMode, audit.SafeModeEvent{
		Action:       "deactivated",
		AuthorizedBy: authorizedBy,
	}, audit.LevelHigh)
	return true
}

// Active reports whether safe mode is currently on.
func (m *SafeModeManager) Active() bool {
	return m.state.Read().SafeMode
}

// Restrictions returns the restriction set in effect while safe mode
// is active, or nil when it is not.
func (m *SafeModeManager) Restrictions() []string {
	if !m.Active() {
		return nil
	}
	out := make([]string, len(safeModeRestrictions))
	copy(out, safeModeRestrictions)
	return out
}

// Activations returns a copy of all recorded episodes.
func (m *SafeModeManager) Activations() []ActivationRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ActivationRecord, len(m.activations))
	copy(out, m.activations)
	return out
}
