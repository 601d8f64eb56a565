// Package alert delivers alert events to external webhook sinks.
// The transport is deliberately dumb: which alerts exist and why is
// the response layer's business; this package only fans them out.
package alert

import "sync"

// Dispatcher fans out alert events to matching webhook configurations.
type Dispatcher struct {
	mu      sync.RWMutex
	configs []WebhookConfig
}

// NewDispatcher creates a Dispatcher from webhook configurations.
// An empty config list is valid — Dispatch becomes a no-op — so hot
// reload can install or clear sinks at runtime.
func NewDispatcher(configs []WebhookConfig) *Dispatcher {
	return &Dispatcher{configs: configs}
}

// SetConfigs replaces the webhook set (config hot-reload).
func (d *Dispatcher) SetConfigs(configs []WebhookConfig) {
	d.mu.Lock()
	d.configs = configs
	d.mu.Unlock()
}

// Dispatch sends the event to all webhooks whose Severities list
// matches the event severity or type. Fires goroutines — never blocks
// the caller's decision path.
func (d *Dispatcher) Dispatch(event Event) {
	d.mu.RLock()
	configs := d.configs
	d.mu.RUnlock()

	for _, cfg := range configs {
		if matches(cfg.Severities, event) {
			go Send(cfg, event)
		}
	}
}

func matches(severities []string, event Event) bool {
	if len(severities) == 0 {
		return true
	}
	for _, s := range severities {
		if s == event.Severity || s == event.Type {
			return true
		}
	}
	return false
}
