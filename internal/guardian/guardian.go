// Package guardian runs the continuous protection loop: it polls the
// kernel state for anomalies, classifies the threat level of each scan
// pass, gates disruptive responses behind dual validation and hands
// the decision to the response manager. A separate watchdog loop
// guards kernel liveness independently of the scan loop.
package guardian

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hannesmitterer/sentinel/internal/audit"
	"github.com/hannesmitterer/sentinel/internal/kernel"
	"github.com/hannesmitterer/sentinel/internal/response"
)

const (
	defaultScanInterval     = time.Second
	defaultAnomalyThreshold = 0.5
	defaultHistoryLimit     = 1000

	patternWindow    = 5 * time.Minute
	patternThreshold = 3
)

// Baseline is the expected steady state anomalies are measured
// against.
type Baseline struct {
	Trust   float64 `json:"trust"`
	Harmony float64 `json:"harmony"`
}

// Options tune the guardian. Zero values select the defaults.
type Options struct {
	ScanInterval     time.Duration
	AnomalyThreshold float64
	Baseline         Baseline
	HistoryLimit     int
	WatchdogInterval time.Duration
	WatchdogTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.ScanInterval <= 0 {
		o.ScanInterval = defaultScanInterval
	}
	if o.AnomalyThreshold <= 0 {
		o.AnomalyThreshold = defaultAnomalyThreshold
	}
	if o.Baseline == (Baseline{}) {
		o.Baseline = Baseline{Trust: 1.0, Harmony: 1.0}
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = defaultHistoryLimit
	}
	return o
}

type anomalyRecord struct {
	Time   time.Time
	Pass   uint64
	Threat Threat
}

// Guardian is the monitoring core.
type Guardian struct {
	state     *kernel.State
	log       *audit.Log
	responder *response.Manager
	opts      Options

	mu               sync.Mutex
	anomalies        []anomalyRecord
	inputTimes       []time.Time
	anomalyThreshold float64
	active           bool
	passSeq          uint64
	inflightPass     uint64

	Validator *DualValidator
	Watchdog  *Watchdog
}

// New wires a guardian over the given state and response manager.
func New(state *kernel.State, log *audit.Log, responder *response.Manager, opts Options) *Guardian {
	opts = opts.withDefaults()
	g := &Guardian{
		state:            state,
		log:              log,
		responder:        responder,
		opts:             opts,
		anomalyThreshold: opts.AnomalyThreshold,
	}
	g.Validator = NewDualValidator(state, log, g.recentSevereAnomaly)
	g.Watchdog = NewWatchdog(state, log, responder, opts.WatchdogInterval, opts.WatchdogTimeout)

	log.Append(audit.TypeGuardian, map[string]any{
		"action":   "initialized",
		"baseline": opts.Baseline,
	}, audit.LevelNormal)
	return g
}

// Run executes the scan loop until ctx ends. The watchdog runs as its
// own loop; callers start it separately so a stuck scan cannot stall
// the liveness check.
func (g *Guardian) Run(ctx context.Context) {
	g.mu.Lock()
	g.active = true
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.active = false
		g.mu.Unlock()
		g.log.Append(audit.TypeGuardian, map[string]any{"action": "monitoring_stopped"}, audit.LevelNormal)
	}()

	g.log.Append(audit.TypeGuardian, map[string]any{"action": "monitoring_started"}, audit.LevelNormal)
	g.responder.SendAlert("guardian monitoring activated", response.SeverityInfo, "system")

	ticker := time.NewTicker(g.opts.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Scan()
		}
	}
}

// ScanResult summarizes one scan pass.
type ScanResult struct {
	ThreatLevel string   `json:"threat_level"`
	Threats     []Threat `json:"threats,omitempty"`
	Actions     []string `json:"actions_taken,omitempty"`
}

// Scan runs every detector against a fresh snapshot, records the
// findings and dispatches a response when the aggregate threat level
// warrants one. A failing detector degrades the pass to fewer signals,
// it never aborts it.
func (g *Guardian) Scan() ScanResult {
	snap := g.state.Read()

	var threats []Threat
	for _, d := range detectors {
		if t := g.runDetector(d, snap); t != nil {
			threats = append(threats, *t)
		}
	}
	if len(threats) == 0 {
		return ScanResult{ThreatLevel: "normal"}
	}

	// The pass id keeps this scan's own findings out of the dual
	// validator's corroboration while the response is still pending:
	// a threat must not vouch for itself.
	now := time.Now()
	g.mu.Lock()
	g.passSeq++
	pass := g.passSeq
	g.inflightPass = pass
	for _, t := range threats {
		g.anomalies = append(g.anomalies, anomalyRecord{Time: now, Pass: pass, Threat: t})
	}
	if len(g.anomalies) > g.opts.HistoryLimit {
		g.anomalies = g.anomalies[len(g.anomalies)-g.opts.HistoryLimit:]
	}
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.inflightPass = 0
		g.mu.Unlock()
	}()

	for _, t := range threats {
		g.log.Append(audit.TypeAnomaly, audit.Anomaly{
			ThreatType: t.Type,
			Severity:   t.Severity,
			Details:    t.Details,
		}, anomalyLevel(t.Severity))
	}

	level := classify(threats)
	if level == "normal" {
		return ScanResult{ThreatLevel: level, Threats: threats}
	}
	return g.respond(level, threats)
}

func anomalyLevel(severity string) audit.Level {
	switch severity {
	case SeverityCritical:
		return audit.LevelCritical
	case SeverityHigh:
		return audit.LevelHigh
	}
	return audit.LevelNormal
}

// classify aggregates one pass's threats into a response level.
func classify(threats []Threat) string {
	var critical, high, medium int
	for _, t := range threats {
		switch t.Severity {
		case SeverityCritical:
			critical++
		case SeverityHigh:
			high++
		case SeverityMedium:
			medium++
		}
	}
	switch {
	case critical > 0:
		return "critical"
	case high >= 2 || (high >= 1 && medium >= 2):
		return "severe"
	case high >= 1 || medium >= 3:
		return "moderate"
	}
	return "normal"
}

// respond dispatches the response for a classified threat level.
// critical and severe both require dual validation before safe mode;
// moderate never mutates state.
func (g *Guardian) respond(level string, threats []Threat) ScanResult {
	var actions []string
	decision := Decision{ThreatLevel: level, ThreatCount: len(threats)}

	switch level {
	case "critical":
		if g.Validator.Validate(decision, DecisionSafeMode) {
			if g.responder.ActivateSafeMode(threatSummary(level, threats), "guardian") {
				actions = append(actions, "safe_mode_activated")
			}
			g.responder.SendAlert(
				"CRITICAL: guardian detected "+threatSummary(level, threats),
				response.SeverityEmergency, "security")
			actions = append(actions, "emergency_alert_sent")

			if hasThreat(threats, "integrity_anomaly") &&
				g.Validator.Validate(decision, DecisionKillSwitch) {
				g.responder.EmergencyShutdown(threatSummary(level, threats), "guardian")
				actions = append(actions, "emergency_shutdown")
			}
		}
	case "severe":
		if g.Validator.Validate(decision, DecisionSafeMode) {
			if g.responder.ActivateSafeMode(threatSummary(level, threats), "guardian") {
				actions = append(actions, "safe_mode_activated")
			}
			g.responder.SendAlert(
				"SEVERE: guardian activated safe mode: "+threatSummary(level, threats),
				response.SeverityCritical, "security")
			actions = append(actions, "critical_alert_sent")
		}
	case "moderate":
		g.responder.SendAlert(
			"MODERATE: guardian detected "+threatSummary(level, threats),
			response.SeverityWarning, "security")
		actions = append(actions, "warning_alert_sent")
	}

	types := make([]string, len(threats))
	for i, t := range threats {
		types[i] = t.Type
	}
	g.log.Append(audit.TypeThreatResponse, audit.ThreatResponse{
		ThreatLevel:  level,
		ThreatCount:  len(threats),
		ActionsTaken: actions,
		Threats:      types,
	}, audit.LevelHigh)

	return ScanResult{ThreatLevel: level, Threats: threats, Actions: actions}
}

func hasThreat(threats []Threat, threatType string) bool {
	for _, t := range threats {
		if t.Type == threatType {
			return true
		}
	}
	return false
}

func threatSummary(level string, threats []Threat) string {
	return fmt.Sprintf("%s threats detected: %d issues", level, len(threats))
}

// anomaliesSince counts recorded anomalies newer than cutoff.
func (g *Guardian) anomaliesSince(cutoff time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, a := range g.anomalies {
		if a.Time.After(cutoff) {
			n++
		}
	}
	return n
}

// recentSevereAnomaly is the dual validator's corroboration source:
// it reports whether the recent anomaly history holds genuinely
// elevated severity, not just the current scan's own opinion.
func (g *Guardian) recentSevereAnomaly() bool {
	cutoff := time.Now().Add(-patternWindow)
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, a := range g.anomalies {
		if g.inflightPass != 0 && a.Pass == g.inflightPass {
			continue
		}
		if !a.Time.After(cutoff) {
			continue
		}
		if a.Threat.Severity == SeverityHigh || a.Threat.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// threshold returns the current anomaly threshold.
func (g *Guardian) threshold() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.anomalyThreshold
}

// SetAnomalyThreshold replaces the deviation threshold. Used by config
// hot reload; takes effect on the next scan pass.
func (g *Guardian) SetAnomalyThreshold(v float64) {
	if v <= 0 {
		return
	}
	g.mu.Lock()
	g.anomalyThreshold = v
	g.mu.Unlock()
	g.log.Append(audit.TypeGuardian, map[string]any{
		"action":            "threshold_updated",
		"anomaly_threshold": v,
	}, audit.LevelNormal)
}

// Status is the guardian's self-report.
type Status struct {
	MonitoringActive  bool     `json:"monitoring_active"`
	Baseline          Baseline `json:"baseline"`
	AnomalyThreshold  float64  `json:"anomaly_threshold"`
	RecentAnomalies   int      `json:"recent_anomalies"`
	WatchdogActive    bool     `json:"watchdog_active"`
	ValidationHistory int      `json:"validation_history"`
}

// Status reports monitoring state, the trailing-hour anomaly count and
// subsystem health.
func (g *Guardian) Status() Status {
	recent := g.anomaliesSince(time.Now().Add(-time.Hour))
	g.mu.Lock()
	active := g.active
	threshold := g.anomalyThreshold
	g.mu.Unlock()
	return Status{
		MonitoringActive:  active,
		Baseline:          g.opts.Baseline,
		AnomalyThreshold:  threshold,
		RecentAnomalies:   recent,
		WatchdogActive:    g.Watchdog.Running(),
		ValidationHistory: g.Validator.HistoryLen(),
	}
}
