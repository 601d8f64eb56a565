package guardian

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/hannesmitterer/sentinel/internal/audit"
	"github.com/hannesmitterer/sentinel/internal/kernel"
)

// Substrings that mark an input as an injection attempt. Matched
// case-insensitively against the serialized input.
var maliciousPatterns = []string{
	"<script>",
	"javascript:",
	"eval(",
	"exec(",
}

const (
	inputRateWindow = time.Minute
	inputRateLimit  = 100
)

// ValidateInput gates an external input before it may touch kernel
// state. Structure, enum membership, injection patterns, emotional
// contradictions and input rate are checked in that order; any failure
// quarantines the input and rejects it. Raw input volume is tracked on
// its own window, separate from the anomaly history, so a burst of
// inputs and a burst of anomalies stay distinguishable signals.
func (g *Guardian) ValidateInput(input map[string]any) bool {
	g.recordInput()

	if reason, ok := g.checkStructure(input); !ok {
		return g.rejectInput(input, reason)
	}
	if g.matchesMaliciousPattern(input) {
		return g.rejectInput(input, "suspicious input patterns detected")
	}
	if g.contradictoryInput(input) {
		return g.rejectInput(input, "contradictory emotion/context combination")
	}
	if g.inputRateExceeded() {
		return g.rejectInput(input, "input rate threshold exceeded")
	}

	payload, _ := json.Marshal(input)
	sum := sha256.Sum256(payload)
	g.log.Append(audit.TypeInputValidation, audit.InputValidation{
		Action:   "validation_passed",
		DataHash: hex.EncodeToString(sum[:]),
	}, audit.LevelNormal)
	return true
}

func (g *Guardian) rejectInput(input map[string]any, reason string) bool {
	if _, err := g.responder.Quarantine(input, reason); err != nil {
		g.log.Append(audit.TypeInputValidation, audit.InputValidation{
			Error: "quarantine failed: " + err.Error(),
		}, audit.LevelCritical)
	}
	g.log.Append(audit.TypeInputValidation, audit.InputValidation{
		Action: "validation_failed",
		Error:  reason,
	}, audit.LevelHigh)
	return false
}

// checkStructure validates shape and field types without consulting
// any broader context.
func (g *Guardian) checkStructure(input map[string]any) (string, bool) {
	if len(input) == 0 {
		return "empty input", false
	}
	for key, val := range input {
		switch key {
		case "trust", "harmony":
			f, ok := val.(float64)
			if !ok || f < 0.0 || f > 1.0 {
				return "invalid " + key + " value", false
			}
		case "emotion":
			s, ok := val.(string)
			if !ok || !kernel.ValidEmotion(kernel.Emotion(s)) {
				return "unknown emotion value", false
			}
		case "context":
			s, ok := val.(string)
			if !ok || !kernel.ValidContext(kernel.Context(s)) {
				return "unknown context value", false
			}
		case "alert_level":
			s, ok := val.(string)
			if !ok || !kernel.ValidAlertLevel(kernel.AlertLevel(s)) {
				return "unknown alert level value", false
			}
		case "safe_mode":
			if _, ok := val.(bool); !ok {
				return "safe_mode must be boolean", false
			}
		}
	}
	return "", true
}

func (g *Guardian) matchesMaliciousPattern(input map[string]any) bool {
	// json.Marshal escapes angle brackets to unicode sequences,
	// which would hide a "<script>" payload from the substring match.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(input); err != nil {
		return true
	}
	serialized := strings.ToLower(buf.String())
	for _, pattern := range maliciousPatterns {
		if strings.Contains(serialized, pattern) {
			return true
		}
	}
	return false
}

func (g *Guardian) contradictoryInput(input map[string]any) bool {
	emotion, _ := input["emotion"].(string)
	context, _ := input["context"].(string)
	return contradictoryPairs[[2]string{emotion, context}]
}

func (g *Guardian) recordInput() {
	now := time.Now()
	cutoff := now.Add(-inputRateWindow)

	g.mu.Lock()
	defer g.mu.Unlock()
	kept := g.inputTimes[:0]
	for _, t := range g.inputTimes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	g.inputTimes = append(kept, now)
}

func (g *Guardian) inputRateExceeded() bool {
	cutoff := time.Now().Add(-inputRateWindow)
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, t := range g.inputTimes {
		if t.After(cutoff) {
			n++
		}
	}
	return n > inputRateLimit
}
