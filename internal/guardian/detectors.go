package guardian

import (
	"fmt"
	"time"

	"github.com/hannesmitterer/sentinel/internal/audit"
	"github.com/hannesmitterer/sentinel/internal/kernel"
)

// Threat severities.
const (
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Threat is one detector finding from a single scan pass.
type Threat struct {
	Type     string         `json:"type"`
	Severity string         `json:"severity"`
	Details  map[string]any `json:"details"`
}

// Emotion/context pairs considered self-contradictory.
var contradictoryPairs = map[[2]string]bool{
	{"Anger", "Calm"}:    true,
	{"Fear", "Peaceful"}: true,
	{"Love", "Crisis"}:   true,
}

// A detector inspects one snapshot and reports at most one threat.
// Detectors are independent: a panicking detector is logged and
// skipped, never aborting the scan.
type detector struct {
	name string
	fn   func(g *Guardian, snap kernel.Snapshot) *Threat
}

var detectors = []detector{
	{"trust_deviation", detectTrustDeviation},
	{"harmony_deviation", detectHarmonyDeviation},
	{"emotional_contradiction", detectContradiction},
	{"behavioral_pattern", detectPattern},
	{"integrity_consistency", detectIntegrity},
}

func (g *Guardian) runDetector(d detector, snap kernel.Snapshot) (t *Threat) {
	defer func() {
		if r := recover(); r != nil {
			t = nil
			g.log.Append(audit.TypeGuardian, map[string]any{
				"error":    fmt.Sprintf("detector failure: %v", r),
				"detector": d.name,
			}, audit.LevelHigh)
		}
	}()
	return d.fn(g, snap)
}

func detectTrustDeviation(g *Guardian, snap kernel.Snapshot) *Threat {
	deviation := abs(snap.Trust - g.opts.Baseline.Trust)
	if deviation <= g.threshold() {
		return nil
	}
	severity := SeverityMedium
	if deviation > 0.7 {
		severity = SeverityHigh
	}
	return &Threat{
		Type:     "trust_anomaly",
		Severity: severity,
		Details: map[string]any{
			"current_trust":  snap.Trust,
			"baseline_trust": g.opts.Baseline.Trust,
			"deviation":      deviation,
		},
	}
}

func detectHarmonyDeviation(g *Guardian, snap kernel.Snapshot) *Threat {
	deviation := abs(snap.Harmony - g.opts.Baseline.Harmony)
	if deviation <= g.threshold() {
		return nil
	}
	severity := SeverityMedium
	if deviation > 0.7 {
		severity = SeverityHigh
	}
	return &Threat{
		Type:     "harmony_anomaly",
		Severity: severity,
		Details: map[string]any{
			"current_harmony":  snap.Harmony,
			"baseline_harmony": g.opts.Baseline.Harmony,
			"deviation":        deviation,
		},
	}
}

func detectContradiction(_ *Guardian, snap kernel.Snapshot) *Threat {
	if !contradictoryPairs[[2]string{string(snap.Emotion), string(snap.Context)}] {
		return nil
	}
	return &Threat{
		Type:     "emotional_anomaly",
		Severity: SeverityMedium,
		Details: map[string]any{
			"emotion":        string(snap.Emotion),
			"context":        string(snap.Context),
			"anomaly_reason": "contradictory_emotion_context_pair",
		},
	}
}

// detectPattern amplifies, it never replaces the underlying signals: a
// sustained burst of anomalies is itself anomalous.
func detectPattern(g *Guardian, _ kernel.Snapshot) *Threat {
	recent := g.anomaliesSince(time.Now().Add(-patternWindow))
	if recent < patternThreshold {
		return nil
	}
	return &Threat{
		Type:     "pattern_anomaly",
		Severity: SeverityHigh,
		Details: map[string]any{
			"pattern":                "rapid_anomaly_frequency",
			"recent_anomalies_count": recent,
			"timeframe":              patternWindow.String(),
		},
	}
}

// detectIntegrity flags impossible state combinations. Trust and
// harmony both collapsed with safe mode still off cannot happen under
// honest operation, so it is treated as critical regardless of any
// other signal, as is a corrupted snapshot.
func detectIntegrity(_ *Guardian, snap kernel.Snapshot) *Threat {
	if snap.Corrupted {
		return &Threat{
			Type:     "integrity_anomaly",
			Severity: SeverityCritical,
			Details:  map[string]any{"issue": "state_hash_mismatch"},
		}
	}
	if snap.Trust < 0.3 && snap.Harmony < 0.3 && !snap.SafeMode {
		return &Threat{
			Type:     "integrity_anomaly",
			Severity: SeverityCritical,
			Details: map[string]any{
				"issue":     "safe_mode_should_be_active",
				"trust":     snap.Trust,
				"harmony":   snap.Harmony,
				"safe_mode": snap.SafeMode,
			},
		}
	}
	return nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
