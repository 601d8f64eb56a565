package response

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hannesmitterer/sentinel/internal/alert"
	"github.com/hannesmitterer/sentinel/internal/audit"
)

// Alert severities, lowest to highest.
const (
	SeverityInfo      = "info"
	SeverityWarning   = "warning"
	SeverityCritical  = "critical"
	SeverityEmergency = "emergency"
)

const maxAlertHistory = 500

// Alert is one dispatched alert.
type Alert struct {
	ID         string   `json:"alert_id"`
	Timestamp  string   `json:"timestamp"`
	Message    string   `json:"message"`
	Severity   string   `json:"severity"`
	Type       string   `json:"type"`
	Recipients []string `json:"recipients,omitempty"`
}

// Notifier delivers an alert to a sink. The alert manager does not
// prescribe a transport; webhooks, consoles and tests all plug in
// through this.
type Notifier interface {
	Notify(a Alert)
}

// ConsoleNotifier writes alerts to a writer, stderr by default.
type ConsoleNotifier struct {
	W io.Writer
}

func (c ConsoleNotifier) Notify(a Alert) {
	w := c.W
	if w == nil {
		w = os.Stderr
	}
	fmt.Fprintf(w, "[%s] ALERT %s (%s): %s\n", a.Timestamp, a.ID, a.Severity, a.Message)
}

// AlertManager assigns ids, keeps a bounded in-memory history, logs
// every alert and fans it out to the configured notifiers and the
// webhook dispatcher.
type AlertManager struct {
	mu         sync.Mutex
	log        *audit.Log
	dispatcher *alert.Dispatcher
	notifiers  []Notifier
	history    []Alert
}

// NewAlertManager builds an alert manager. dispatcher may be nil when
// no webhooks are configured; notifiers defaults to a console sink.
func NewAlertManager(log *audit.Log, dispatcher *alert.Dispatcher, notifiers ...Notifier) *AlertManager {
	if len(notifiers) == 0 {
		notifiers = []Notifier{ConsoleNotifier{}}
	}
	return &AlertManager{log: log, dispatcher: dispatcher, notifiers: notifiers}
}

// Send dispatches an alert and returns its id. The audit entry is
// written before any notification side effect runs.
func (m *AlertManager) Send(message, severity, alertType string, recipients ...string) string {
	a := Alert{
		ID:         "a-" + uuid.NewString(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Message:    message,
		Severity:   severity,
		Type:       alertType,
		Recipients: recipients,
	}

	m.mu.Lock()
	m.history = append(m.history, a)
	if len(m.history) > maxAlertHistory {
		m.history = m.history[len(m.history)-maxAlertHistory:]
	}
	m.mu.Unlock()

	level := audit.LevelNormal
	if severity == SeverityCritical || severity == SeverityEmergency {
		level = audit.LevelCritical
	}
	m.log.Append(audit.TypeAlert, audit.AlertSent{
		AlertID:    a.ID,
		Message:    a.Message,
		Severity:   a.Severity,
		AlertType:  a.Type,
		Recipients: a.Recipients,
	}, level)

	for _, n := range m.notifiers {
		n.Notify(a)
	}
	if m.dispatcher != nil {
		m.dispatcher.Dispatch(alert.Event{
			Timestamp:  a.Timestamp,
			AlertID:    a.ID,
			Message:    a.Message,
			Severity:   a.Severity,
			Type:       a.Type,
			Source:     "sentinel",
			Recipients: a.Recipients,
		})
	}
	return a.ID
}

// Recent returns up to n most recent alerts, newest last.
func (m *AlertManager) Recent(n int) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.history) {
		n = len(m.history)
	}
	out := make([]Alert, n)
	copy(out, m.history[len(m.history)-n:])
	return out
}

// Count returns the number of alerts in the retained history.
func (m *AlertManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.history)
}
