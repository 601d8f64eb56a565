package guardian

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/hannesmitterer/sentinel/internal/audit"
	"github.com/hannesmitterer/sentinel/internal/kernel"
	"github.com/hannesmitterer/sentinel/internal/response"
)

const (
	defaultWatchdogInterval = 5 * time.Second
	defaultWatchdogTimeout  = 30 * time.Second
)

// Watchdog independently verifies that the kernel heartbeat keeps
// advancing. It runs on its own interval so a stuck scan loop cannot
// mask a dead heartbeat. A timeout is a fatal liveness failure and
// triggers safe mode WITHOUT dual validation: a dead state producer
// cannot be expected to vote on its own death.
type Watchdog struct {
	state     *kernel.State
	log       *audit.Log
	responder *response.Manager
	interval  time.Duration
	timeout   time.Duration

	running atomic.Bool
	fired   atomic.Bool
}

// NewWatchdog builds a watchdog. Zero interval/timeout select the
// defaults (5s check, 30s timeout).
func NewWatchdog(state *kernel.State, log *audit.Log, responder *response.Manager, interval, timeout time.Duration) *Watchdog {
	if interval <= 0 {
		interval = defaultWatchdogInterval
	}
	if timeout <= 0 {
		timeout = defaultWatchdogTimeout
	}
	return &Watchdog{
		state:     state,
		log:       log,
		responder: responder,
		interval:  interval,
		timeout:   timeout,
	}
}

// Run checks the heartbeat on the watchdog interval until ctx ends.
func (w *Watchdog) Run(ctx context.Context) {
	w.running.Store(true)
	defer w.running.Store(false)

	w.log.Append(audit.TypeWatchdog, audit.WatchdogEvent{
		Action:  "started",
		Timeout: w.timeout.Seconds(),
	}, audit.LevelNormal)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Append(audit.TypeWatchdog, audit.WatchdogEvent{Action: "stopped"}, audit.LevelNormal)
			return
		case now := <-ticker.C:
			w.Check(now)
		}
	}
}

// Check evaluates the heartbeat against now. The response fires once
// per outage: the latch holds until the heartbeat advances again, so a
// persistently dead kernel does not re-alert every tick.
func (w *Watchdog) Check(now time.Time) {
	hb := w.state.Heartbeat()
	stale := hb.IsZero() || now.Sub(hb) > w.timeout

	if !stale {
		w.fired.Store(false)
		return
	}
	if !w.fired.CompareAndSwap(false, true) {
		return
	}

	w.log.Append(audit.TypeWatchdog, audit.WatchdogEvent{
		Alert:         "heartbeat_timeout",
		LastHeartbeat: hb.UTC().Format(time.RFC3339Nano),
		Timeout:       w.timeout.Seconds(),
	}, audit.LevelCritical)

	w.responder.ActivateSafeMode("watchdog timeout: kernel heartbeat lost", "watchdog")
	w.responder.SendAlert("WATCHDOG ALERT: kernel heartbeat timeout detected",
		response.SeverityEmergency, "security")
}

// Running reports whether the watchdog loop is active.
func (w *Watchdog) Running() bool { return w.running.Load() }

// Fired reports whether the latch is currently held.
func (w *Watchdog) Fired() bool { return w.fired.Load() }
