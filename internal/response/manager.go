package response

import (
	"github.com/hannesmitterer/sentinel/internal/alert"
	"github.com/hannesmitterer/sentinel/internal/audit"
	"github.com/hannesmitterer/sentinel/internal/kernel"
	"github.com/hannesmitterer/sentinel/internal/quarantine"
)

// Manager is the response surface the guardian and privileged
// operators call. It composes safe mode, alerting and quarantine so a
// single decision can fan out to all three with consistent logging.
type Manager struct {
	state    *kernel.State
	log      *audit.Log
	SafeMode *SafeModeManager
	Alerts   *AlertManager
	store    *quarantine.Store
}

// New wires a response manager. dispatcher may be nil; store may not.
func New(state *kernel.State, log *audit.Log, store *quarantine.Store, dispatcher *alert.Dispatcher, notifiers ...Notifier) *Manager {
	return &Manager{
		state:    state,
		log:      log,
		SafeMode: NewSafeModeManager(state, log),
		Alerts:   NewAlertManager(log, dispatcher, notifiers...),
		store:    store,
	}
}

// ActivateSafeMode turns safe mode on and raises a critical alert.
// Idempotent; the repeat call does not emit a second alert.
func (m *Manager) ActivateSafeMode(reason, triggeredBy string) bool {
	already := m.SafeMode.Active()
	if !m.SafeMode.Activate(reason, triggeredBy) {
		return false
	}
	if !already {
		m.Alerts.Send("SAFE MODE ACTIVATED: "+reason, SeverityCritical, "security")
	}
	return true
}

// DeactivateSafeMode lifts safe mode for an authorized role. A denied
// attempt raises a warning alert and changes nothing.
func (m *Manager) DeactivateSafeMode(authorizedBy string) bool {
	if !m.SafeMode.Deactivate(authorizedBy) {
		m.Alerts.Send("unauthorized safe mode deactivation attempt by "+authorizedBy,
			SeverityWarning, "security")
		return false
	}
	m.Alerts.Send("safe mode deactivated by "+authorizedBy, SeverityInfo, "security")
	return true
}

// Quarantine stores a suspect input and returns its quarantine id.
// The audit entry carries the input's hash, not the payload itself.
func (m *Manager) Quarantine(input map[string]any, reason string) (string, error) {
	rec, err := m.store.Add(input, reason)
	if err != nil {
		m.log.Append(audit.TypeQuarantine, audit.QuarantineEvent{
			Action: "quarantine_failed",
			Reason: reason,
		}, audit.LevelHigh)
		return "", err
	}
	m.log.Append(audit.TypeQuarantine, audit.QuarantineEvent{
		Action:       "quarantined",
		QuarantineID: rec.ID,
		Reason:       reason,
		InputHash:    rec.InputHash,
	}, audit.LevelHigh)
	return rec.ID, nil
}

// ReleaseQuarantine soft-releases a quarantined input. The record
// stays in the store for audit.
func (m *Manager) ReleaseQuarantine(id, authorizedBy string) error {
	rec, err := m.store.Release(id, authorizedBy)
	if err != nil {
		return err
	}
	m.log.Append(audit.TypeQuarantine, audit.QuarantineEvent{
		Action:       "released",
		QuarantineID: rec.ID,
		InputHash:    rec.InputHash,
		AuthorizedBy: authorizedBy,
	}, audit.LevelNormal)
	return nil
}

// SendAlert dispatches an alert through the alert manager.
func (m *Manager) SendAlert(message, severity, alertType string, recipients ...string) string {
	return m.Alerts.Send(message, severity, alertType, recipients...)
}

// EmergencyShutdown is the last-resort composite: safe mode on,
// emergency alert out, the whole sequence logged. Logging is never
// bypassed, however urgent the trigger.
func (m *Manager) EmergencyShutdown(reason, triggeredBy string) {
	m.log.Append(audit.TypeShutdown, map[string]any{
		"action":       "emergency_shutdown",
		"reason":       reason,
		"triggered_by": triggeredBy,
	}, audit.LevelCritical)

	m.SafeMode.Activate("emergency shutdown: "+reason, triggeredBy)
	m.Alerts.Send("EMERGENCY SHUTDOWN: "+reason, SeverityEmergency, "security")
}

// Status is a point-in-time view of the protected system.
type Status struct {
	Kernel        kernel.Snapshot `json:"kernel_state"`
	IntegrityHash string          `json:"integrity_hash"`
	SafeMode      bool            `json:"safe_mode"`
	Restrictions  []string        `json:"restrictions,omitempty"`
	AlertCount    int             `json:"alert_count"`
	Quarantined   int             `json:"quarantined_count"`
}

// SystemStatus reports the current kernel snapshot, safe mode posture,
// retained alert count and held quarantine count.
func (m *Manager) SystemStatus() Status {
	snap := m.state.Read()
	held, _ := m.store.Count(quarantine.StatusQuarantined)
	return Status{
		Kernel:        snap,
		IntegrityHash: m.state.IntegrityHash(),
		SafeMode:      snap.SafeMode,
		Restrictions:  m.SafeMode.Restrictions(),
		AlertCount:    m.Alerts.Count(),
		Quarantined:   held,
	}
}
