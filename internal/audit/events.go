package audit

// Known event payload shapes. Append accepts any marshalable value,
// so callers with event types not listed here pass a map[string]any;
// these structs keep the common payloads checkable.

// Event type tags used across the subsystem.
const (
	TypeSystemInit      = "system_initialization"
	TypeLogRotated      = "log_rotated"
	TypeStateEvent      = "kernel_state"
	TypeInputValidation = "input_validation"
	TypeAnomaly         = "anomaly_detection"
	TypeThreatResponse  = "threat_response"
	TypeDualValidation  = "dual_validation"
	TypeWatchdog        = "watchdog"
	TypeGuardian        = "guardian"
	TypeSafeMode        = "safe_mode"
	TypeQuarantine      = "input_quarantine"
	TypeAlert           = "alert"
	TypeShutdown        = "emergency_shutdown"
)

// SystemInit is the payload of the sequence-0 genesis entry.
type SystemInit struct {
	Action  string `json:"action"`
	Version string `json:"version"`
}

// Rotated records a rotation boundary in the new active file.
type Rotated struct {
	ArchivedFile string `json:"archived_file"`
	ArchivedHead string `json:"archived_head"`
	Entries      int64  `json:"entries"`
}

// StateUpdated records a successful kernel state mutation.
type StateUpdated struct {
	Action  string         `json:"action"`
	Updates map[string]any `json:"updates"`
	Source  string         `json:"source"`
	NewHash string         `json:"new_hash"`
}

// StateRejected records an all-or-nothing update rejection.
type StateRejected struct {
	Error    string `json:"error"`
	Field    string `json:"field"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
	Source   string `json:"source"`
}

// StateCorrupted records an integrity hash mismatch seen during a read.
type StateCorrupted struct {
	Error        string `json:"error"`
	StoredHash   string `json:"stored_hash"`
	ComputedHash string `json:"computed_hash"`
}

// Anomaly records one detector finding.
type Anomaly struct {
	ThreatType string         `json:"threat_type"`
	Severity   string         `json:"severity"`
	Details    map[string]any `json:"details"`
}

// ThreatResponse records a response dispatch with its trigger set.
type ThreatResponse struct {
	ThreatLevel  string   `json:"threat_level"`
	ThreatCount  int      `json:"threat_count"`
	ActionsTaken []string `json:"actions_taken"`
	Threats      []string `json:"threats"`
}

// DualValidation records both validator outcomes for one decision.
type DualValidation struct {
	DecisionType    string `json:"decision_type"`
	PrimaryResult   bool   `json:"primary_result"`
	SecondaryResult bool   `json:"secondary_result"`
	Passed          bool   `json:"validation_passed"`
}

// WatchdogEvent records watchdog lifecycle and timeout alerts.
type WatchdogEvent struct {
	Action        string  `json:"action,omitempty"`
	Alert         string  `json:"alert,omitempty"`
	LastHeartbeat string  `json:"last_heartbeat,omitempty"`
	Timeout       float64 `json:"timeout_seconds,omitempty"`
}

// SafeModeEvent records safe mode transitions and denied attempts.
type SafeModeEvent struct {
	Action       string   `json:"action"`
	Reason       string   `json:"reason,omitempty"`
	TriggeredBy  string   `json:"triggered_by,omitempty"`
	AuthorizedBy string   `json:"authorized_by,omitempty"`
	Restrictions []string `json:"restrictions,omitempty"`
}

// QuarantineEvent records quarantine and release operations.
// The raw input is never duplicated into the log; InputHash is the
// correlation key back to the quarantine store.
type QuarantineEvent struct {
	Action       string `json:"action"`
	QuarantineID string `json:"quarantine_id"`
	Reason       string `json:"reason,omitempty"`
	InputHash    string `json:"input_hash,omitempty"`
	AuthorizedBy string `json:"authorized_by,omitempty"`
}

// AlertSent records a dispatched alert.
type AlertSent struct {
	AlertID    string   `json:"alert_id"`
	Message    string   `json:"message"`
	Severity   string   `json:"severity"`
	AlertType  string   `json:"type"`
	Recipients []string `json:"recipients,omitempty"`
}

// InputValidation records input gate outcomes.
type InputValidation struct {
	Action   string `json:"action,omitempty"`
	Error    string `json:"error,omitempty"`
	DataHash string `json:"data_hash,omitempty"`
}
