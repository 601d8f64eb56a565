package guardian

import (
	"fmt"
	"sync"
	"time"

	"github.com/hannesmitterer/sentinel/internal/audit"
	"github.com/hannesmitterer/sentinel/internal/kernel"
)

// Decision types that must pass dual validation before they mutate
// state.
const (
	DecisionSafeMode   = "safe_mode_activation"
	DecisionKillSwitch = "kill_switch_activation"
)

const maxValidationHistory = 200

// Decision carries the request being validated.
type Decision struct {
	ThreatLevel string `json:"threat_level"`
	ThreatCount int    `json:"threat_count"`
}

// ValidationRecord is one validation attempt, pass or fail.
type ValidationRecord struct {
	Timestamp       string   `json:"timestamp"`
	DecisionType    string   `json:"decision_type"`
	Decision        Decision `json:"decision"`
	PrimaryResult   bool     `json:"primary_result"`
	SecondaryResult bool     `json:"secondary_result"`
	Passed          bool     `json:"final_result"`
}

// DualValidator gates disruptive responses behind two independent
// predicates. Both must approve; the redundancy exists so a single
// faulty detector can never unilaterally force a disruptive response.
// The sole bypass is the watchdog, which calls the response manager
// directly on liveness failure.
type DualValidator struct {
	mu      sync.Mutex
	state   *kernel.State
	log     *audit.Log
	history []ValidationRecord

	// corroborate is the secondary's independent evidence source; for
	// safe mode it reports whether recent anomaly history shows
	// genuinely elevated severity rather than just the current scan's
	// opinion.
	corroborate func() bool
}

// NewDualValidator builds a validator over the given state.
// corroborate may be nil, in which case the secondary check for safe
// mode falls back to the kernel's own alert level.
func NewDualValidator(state *kernel.State, log *audit.Log, corroborate func() bool) *DualValidator {
	return &DualValidator{state: state, log: log, corroborate: corroborate}
}

// Validate runs both predicates against current system state and logs
// both outcomes. The decision proceeds only when both approve. A
// panicking predicate counts as a failed validation, never a crash.
func (v *DualValidator) Validate(d Decision, decisionType string) (passed bool) {
	defer func() {
		if r := recover(); r != nil {
			passed = false
			v.log.Append(audit.TypeDualValidation, map[string]any{
				"error":         fmt.Sprintf("validation system error: %v", r),
				"decision_type": decisionType,
			}, audit.LevelHigh)
		}
	}()

	primary := v.primary(d, decisionType)
	secondary := v.secondary(decisionType)
	passed = primary && secondary

	v.mu.Lock()
	v.history = append(v.history, ValidationRecord{
		Timestamp:       time.Now().UTC().Format(time.RFC3339Nano),
		DecisionType:    decisionType,
		Decision:        d,
		PrimaryResult:   primary,
		SecondaryResult: secondary,
		Passed:          passed,
	})
	if len(v.history) > maxValidationHistory {
		v.history = v.history[len(v.history)-maxValidationHistory:]
	}
	v.mu.Unlock()

	v.log.Append(audit.TypeDualValidation, audit.DualValidation{
		DecisionType:    decisionType,
		PrimaryResult:   primary,
		SecondaryResult: secondary,
		Passed:          passed,
	}, audit.LevelHigh)

	return passed
}

// primary is the decision-type-specific check.
func (v *DualValidator) primary(d Decision, decisionType string) bool {
	switch decisionType {
	case DecisionKillSwitch:
		snap := v.state.Read()
		return snap.Trust < 0.3 && snap.Harmony < 0.3
	case DecisionSafeMode:
		return d.ThreatLevel == "severe" || d.ThreatLevel == "critical"
	}
	return true
}

// secondary is the independent corroborating check.
func (v *DualValidator) secondary(decisionType string) bool {
	switch decisionType {
	case DecisionKillSwitch:
		level := v.state.Read().AlertLevel
		return level == kernel.AlertCritical || level == kernel.AlertEmergency
	case DecisionSafeMode:
		if v.corroborate != nil {
			return v.corroborate()
		}
		level := v.state.Read().AlertLevel
		return level != kernel.AlertNormal
	}
	return true
}

// HistoryLen returns the number of retained validation records.
func (v *DualValidator) HistoryLen() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.history)
}

// History returns a copy of the retained validation records.
func (v *DualValidator) History() []ValidationRecord {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]ValidationRecord, len(v.history))
	copy(out, v.history)
	return out
}
