package alert

// WebhookConfig defines one webhook alert destination.
type WebhookConfig struct {
	URL        string            `yaml:"url"        json:"url"`
	Format     string            `yaml:"format"     json:"format"`     // "generic", "slack", "pagerduty"
	Severities []string          `yaml:"severities" json:"severities"` // ["warning", "critical", "emergency"]
	Headers    map[string]string `yaml:"headers"    json:"headers"`
}

// Event is the payload delivered to webhook endpoints for one alert.
type Event struct {
	Timestamp  string   `json:"timestamp"`
	AlertID    string   `json:"alert_id"`
	Message    string   `json:"message"`
	Severity   string   `json:"severity"` // info, warning, critical, emergency
	Type       string   `json:"type"`     // e.g. "security", "general"
	Source     string   `json:"source"`   // "guardian", "watchdog", "operator", ...
	Recipients []string `json:"recipients,omitempty"`
}
