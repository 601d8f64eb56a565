package alert

import (
	"encoding/json"
	"fmt"
)

// FormatPayload builds the webhook body for the given format.
func FormatPayload(format string, event Event) ([]byte, error) {
	switch format {
	case "slack":
		return formatSlack(event)
	case "pagerduty":
		return formatPagerDuty(event)
	default:
		return formatGeneric(event)
	}
}

func formatGeneric(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func formatSlack(event Event) ([]byte, error) {
	payload := map[string]any{
		"blocks": []any{
			map[string]any{
				"type": "header",
				"text": map[string]any{
					"type": "plain_text",
					"text": fmt.Sprintf("sentinel: %s alert", event.Severity),
				},
			},
			map[string]any{
				"type": "section",
				"fields": []any{
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Message:* %s", event.Message)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Type:* %s", event.Type)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Source:* %s", event.Source)},
					map[string]any{"type": "mrkdwn", "text": fmt.Sprintf("*Alert ID:* %s", event.AlertID)},
				},
			},
		},
	}
	return json.Marshal(payload)
}

func formatPagerDuty(event Event) ([]byte, error) {
	severity := "info"
	switch event.Severity {
	case "emergency", "critical":
		severity = "critical"
	case "warning":
		severity = "warning"
	}

	payload := map[string]any{
		"event_action": "trigger",
		"payload": map[string]any{
			"summary":  fmt.Sprintf("sentinel %s: %s", event.Severity, event.Message),
			"severity": severity,
			"source":   "sentinel",
			"custom_details": map[string]any{
				"alert_id": event.AlertID,
				"type":     event.Type,
				"origin":   event.Source,
			},
		},
	}
	return json.Marshal(payload)
}
