package guardian

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/hannesmitterer/sentinel/internal/audit"
	"github.com/hannesmitterer/sentinel/internal/kernel"
	"github.com/hannesmitterer/sentinel/internal/quarantine"
	"github.com/hannesmitterer/sentinel/internal/response"
)

func newTestGuardian(t *testing.T, opts Options) (*Guardian, *kernel.State, *audit.Log) {
	t.Helper()
	log, err := audit.Open(filepath.Join(t.TempDir(), "audit.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { log.Close() })

	store, err := quarantine.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	state := kernel.New(log)
	responder := response.New(state, log, store, nil, response.ConsoleNotifier{W: io.Discard})
	return New(state, log, responder, opts), state, log
}

func mustUpdate(t *testing.T, state *kernel.State, u kernel.Update) {
	t.Helper()
	if !state.Update(u, "test") {
		t.Fatal("state update rejected")
	}
}

func ptr[T any](v T) *T { return &v }

func TestScanNormalState(t *testing.T) {
	g, _, _ := newTestGuardian(t, Options{})

	res := g.Scan()
	if res.ThreatLevel != "normal" {
		t.Errorf("expected normal, got %s", res.ThreatLevel)
	}
	if len(res.Threats) != 0 {
		t.Errorf("unexpected threats: %v", res.Threats)
	}
}

func TestTrustDeviationSeverity(t *testing.T) {
	cases := []struct {
		trust    float64
		severity string
	}{
		{0.4, SeverityMedium}, // deviation 0.6
		{0.2, SeverityHigh},   // deviation 0.8
	}
	for _, tc := range cases {
		g, state, _ := newTestGuardian(t, Options{})
		mustUpdate(t, state, kernel.Update{Trust: ptr(tc.trust)})

		res := g.Scan()
		found := false
		for _, th := range res.Threats {
			if th.Type == "trust_anomaly" {
				found = true
				if th.Severity != tc.severity {
					t.Errorf("trust=%v: expected %s, got %s", tc.trust, tc.severity, th.Severity)
				}
			}
		}
		if !found {
			t.Errorf("trust=%v: trust_anomaly not detected", tc.trust)
		}
	}
}

func TestContradictionDetected(t *testing.T) {
	g, state, _ := newTestGuardian(t, Options{})
	mustUpdate(t, state, kernel.Update{
		Emotion: ptr(kernel.EmotionAnger),
		Context: ptr(kernel.ContextCalm),
	})

	res := g.Scan()
	found := false
	for _, th := range res.Threats {
		if th.Type == "emotional_anomaly" && th.Severity == SeverityMedium {
			found = true
		}
	}
	if !found {
		t.Errorf("emotional_anomaly not detected: %v", res.Threats)
	}
	// One medium signal alone stays log-only.
	if res.ThreatLevel != "normal" {
		t.Errorf("expected normal level for lone medium, got %s", res.ThreatLevel)
	}
}

func TestClassify(t *testing.T) {
	mk := func(severities ...string) []Threat {
		out := make([]Threat, len(severities))
		for i, s := range severities {
			out[i] = Threat{Type: "t", Severity: s}
		}
		return out
	}
	cases := []struct {
		threats []Threat
		want    string
	}{
		{mk(SeverityCritical), "critical"},
		{mk(SeverityCritical, SeverityMedium), "critical"},
		{mk(SeverityHigh, SeverityHigh), "severe"},
		{mk(SeverityHigh, SeverityMedium, SeverityMedium), "severe"},
		{mk(SeverityHigh), "moderate"},
		{mk(SeverityHigh, SeverityMedium), "moderate"},
		{mk(SeverityMedium, SeverityMedium, SeverityMedium), "moderate"},
		{mk(SeverityMedium, SeverityMedium), "normal"},
		{mk(SeverityMedium), "normal"},
	}
	for _, tc := range cases {
		if got := classify(tc.threats); got != tc.want {
			t.Errorf("classify(%v) = %s, want %s", tc.threats, got, tc.want)
		}
	}
}

func TestIntegrityConsistencyCritical(t *testing.T) {
	g, state, _ := newTestGuardian(t, Options{})
	mustUpdate(t, state, kernel.Update{Trust: ptr(0.2), Harmony: ptr(0.2)})

	res := g.Scan()
	if res.ThreatLevel != "critical" {
		t.Fatalf("expected critical, got %s", res.ThreatLevel)
	}
	found := false
	for _, th := range res.Threats {
		if th.Type == "integrity_anomaly" && th.Severity == SeverityCritical {
			found = true
		}
	}
	if !found {
		t.Errorf("integrity_anomaly not among threats: %v", res.Threats)
	}
}

func TestDualValidationGate(t *testing.T) {
	g, state, log := newTestGuardian(t, Options{})

	// Primary approves a severe threat level; the secondary has no
	// corroborating anomaly history, so the decision must not pass.
	before := state.Read()
	passed := g.Validator.Validate(Decision{ThreatLevel: "severe", ThreatCount: 2}, DecisionSafeMode)
	if passed {
		t.Fatal("validation passed without corroboration")
	}
	after := state.Read()
	if after.SafeMode != before.SafeMode || after.AlertLevel != before.AlertLevel {
		t.Error("state mutated by a failed validation")
	}

	recs := g.Validator.History()
	if len(recs) != 1 {
		t.Fatalf("expected 1 validation record, got %d", len(recs))
	}
	if !recs[0].PrimaryResult || recs[0].SecondaryResult || recs[0].Passed {
		t.Errorf("expected primary=true secondary=false passed=false, got %+v", recs[0])
	}

	// Both outcomes must also be in the audit chain.
	var ev audit.DualValidation
	found := false
	for entry := range log.Recent(time.Minute, audit.TypeDualValidation) {
		if err := entry.DecodeData(&ev); err != nil {
			t.Fatal(err)
		}
		found = true
	}
	if !found {
		t.Fatal("dual_validation entry missing from audit chain")
	}
	if !ev.PrimaryResult || ev.SecondaryResult || ev.Passed {
		t.Errorf("logged outcomes wrong: %+v", ev)
	}
}

func TestScanFindingsDoNotCorroborateThemselves(t *testing.T) {
	g, state, _ := newTestGuardian(t, Options{})
	mustUpdate(t, state, kernel.Update{Trust: ptr(0.2), Harmony: ptr(0.2)})

	// First critical pass: the only severe history is the pass's own
	// findings, which must not count as corroboration.
	res := g.Scan()
	if res.ThreatLevel != "critical" {
		t.Fatalf("expected critical, got %s", res.ThreatLevel)
	}
	if state.Read().SafeMode {
		t.Fatal("safe mode activated on a scan corroborated only by itself")
	}

	// Second pass: the first pass's anomalies are now prior history,
	// so the decision dual-validates and the response fires.
	g.Scan()
	if !state.Read().SafeMode {
		t.Fatal("safe mode not activated once prior history corroborates")
	}
}

func TestWatchdogBypassesDualValidation(t *testing.T) {
	g, state, _ := newTestGuardian(t, Options{})

	// Heartbeat is fresh relative to real time but stale relative to
	// the injected clock. Trust and harmony are nominal, so every dual
	// validation predicate would refuse; liveness failure must not
	// care.
	g.Watchdog.Check(time.Now().Add(defaultWatchdogTimeout + 10*time.Second))

	if !state.Read().SafeMode {
		t.Fatal("watchdog did not activate safe mode")
	}
	if g.Validator.HistoryLen() != 0 {
		t.Error("watchdog consulted dual validation")
	}
}

func TestWatchdogLatchResets(t *testing.T) {
	g, state, _ := newTestGuardian(t, Options{})

	g.Watchdog.Check(time.Now().Add(defaultWatchdogTimeout + 10*time.Second))
	if !g.Watchdog.Fired() {
		t.Fatal("latch not held after timeout")
	}

	// Activation itself advanced the heartbeat, so a check against
	// real time sees a live kernel and releases the latch.
	g.Watchdog.Check(time.Now())
	if g.Watchdog.Fired() {
		t.Error("latch held after heartbeat recovered")
	}
	if !state.Read().SafeMode {
		t.Error("safe mode must stay on until explicitly lifted")
	}
}

func TestScanRespondsToCriticalEndToEnd(t *testing.T) {
	g, state, log := newTestGuardian(t, Options{})

	// Sustained contradictory state: every scan yields an emotional
	// anomaly and, once three accumulate in the window, a pattern
	// anomaly on top.
	mustUpdate(t, state, kernel.Update{
		Emotion: ptr(kernel.EmotionAnger),
		Context: ptr(kernel.ContextCalm),
	})
	for i := 0; i < 5; i++ {
		g.Scan()
	}

	var emotional, pattern int
	for entry := range log.Recent(time.Minute, audit.TypeAnomaly) {
		var ev audit.Anomaly
		if err := entry.DecodeData(&ev); err != nil {
			t.Fatal(err)
		}
		switch ev.ThreatType {
		case "emotional_anomaly":
			emotional++
		case "pattern_anomaly":
			pattern++
		}
	}
	if emotional < 5 {
		t.Errorf("expected an emotional_anomaly per scan, got %d", emotional)
	}
	if pattern < 1 {
		t.Error("pattern_anomaly never fired")
	}

	// Now collapse trust and harmony: the integrity detector escalates
	// to critical, dual validation corroborates against the recorded
	// history, and the response activates safe mode.
	mustUpdate(t, state, kernel.Update{Trust: ptr(0.2), Harmony: ptr(0.2)})
	res := g.Scan()
	if res.ThreatLevel != "critical" {
		t.Fatalf("expected critical response, got %s", res.ThreatLevel)
	}
	if !state.Read().SafeMode {
		t.Fatal("critical response did not activate safe mode")
	}

	var emergency bool
	for entry := range log.Recent(time.Minute, audit.TypeAlert) {
		var ev audit.AlertSent
		if err := entry.DecodeData(&ev); err != nil {
			t.Fatal(err)
		}
		if ev.Severity == response.SeverityEmergency {
			emergency = true
		}
	}
	if !emergency {
		t.Error("no emergency alert in the audit chain")
	}

	// Integrity collapse plus elevated alert level dual-validates the
	// kill switch, so the scan escalates to an emergency shutdown.
	var shutdown bool
	for range log.Recent(time.Minute, audit.TypeShutdown) {
		shutdown = true
	}
	if !shutdown {
		t.Error("integrity collapse did not escalate to emergency shutdown")
	}

	// The whole episode must leave the chain verifiable.
	result := audit.VerifyChain(log.Path())
	if result.Status != audit.StatusVerified {
		t.Errorf("chain not verified after scenario: %+v", result.Issues)
	}
}

func TestValidateInputAcceptsClean(t *testing.T) {
	g, _, _ := newTestGuardian(t, Options{})

	if !g.ValidateInput(map[string]any{"emotion": "Joy", "context": "Peaceful", "trust": 0.9}) {
		t.Error("clean input rejected")
	}
}

func TestValidateInputRejections(t *testing.T) {
	cases := []struct {
		name  string
		input map[string]any
	}{
		{"empty", map[string]any{}},
		{"script injection", map[string]any{"emotion": "Calm", "note": "<script>alert(1)</script>"}},
		{"script injection uppercase", map[string]any{"emotion": "Calm", "note": "<SCRIPT>alert(1)</SCRIPT>"}},
		{"javascript url", map[string]any{"context": "Calm", "link": "JAVASCRIPT:void(0)"}},
		{"eval call", map[string]any{"emotion": "Calm", "expr": "eval(x)"}},
		{"unknown emotion", map[string]any{"emotion": "Rage"}},
		{"non-string emotion", map[string]any{"emotion": 7.0}},
		{"trust out of range", map[string]any{"trust": 1.5}},
		{"safe_mode non-bool", map[string]any{"safe_mode": "yes"}},
		{"contradiction", map[string]any{"emotion": "Love", "context": "Crisis"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, _, _ := newTestGuardian(t, Options{})
			if g.ValidateInput(tc.input) {
				t.Error("input accepted")
			}
		})
	}
}

func TestValidateInputQuarantines(t *testing.T) {
	g, _, log := newTestGuardian(t, Options{})

	g.ValidateInput(map[string]any{"emotion": "Calm", "note": "<script>x</script>"})

	var quarantined bool
	for entry := range log.Recent(time.Minute, audit.TypeQuarantine) {
		var ev audit.QuarantineEvent
		if err := entry.DecodeData(&ev); err != nil {
			t.Fatal(err)
		}
		if ev.Action == "quarantined" && ev.QuarantineID != "" {
			quarantined = true
		}
	}
	if !quarantined {
		t.Error("rejected input was not quarantined")
	}
}

func TestValidateInputRateLimit(t *testing.T) {
	g, _, _ := newTestGuardian(t, Options{})

	input := map[string]any{"emotion": "Calm"}
	for i := 0; i < inputRateLimit; i++ {
		if !g.ValidateInput(input) {
			t.Fatalf("input %d rejected below the rate threshold", i)
		}
	}
	if g.ValidateInput(input) {
		t.Error("input accepted above the rate threshold")
	}
}

func TestSetAnomalyThreshold(t *testing.T) {
	g, state, _ := newTestGuardian(t, Options{})
	mustUpdate(t, state, kernel.Update{Trust: ptr(0.4)})

	res := g.Scan()
	if len(res.Threats) == 0 {
		t.Fatal("deviation 0.6 not detected at default threshold")
	}

	g.SetAnomalyThreshold(0.9)
	res = g.Scan()
	for _, th := range res.Threats {
		if th.Type == "trust_anomaly" {
			t.Error("trust_anomaly still detected after raising the threshold")
		}
	}
}

func TestStatusReport(t *testing.T) {
	g, state, _ := newTestGuardian(t, Options{})
	mustUpdate(t, state, kernel.Update{Trust: ptr(0.2)})
	g.Scan()

	st := g.Status()
	if st.MonitoringActive {
		t.Error("monitoring reported active without Run")
	}
	if st.RecentAnomalies == 0 {
		t.Error("recorded anomaly missing from status")
	}
	if st.AnomalyThreshold != defaultAnomalyThreshold {
		t.Errorf("threshold %v, want %v", st.AnomalyThreshold, defaultAnomalyThreshold)
	}
	if st.Baseline.Trust != 1.0 || st.Baseline.Harmony != 1.0 {
		t.Errorf("unexpected baseline: %+v", st.Baseline)
	}
}
