package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	requestTimeout = 5 * time.Second
	maxAttempts    = 3
)

var httpClient = &http.Client{Timeout: requestTimeout}

// Send posts an alert event to a webhook endpoint. Server errors (5xx)
// and transport failures are retried with linear backoff; a 4xx means
// the payload or endpoint is wrong and retrying cannot help.
func Send(cfg WebhookConfig, event Event) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		retryable, err := post(cfg, body)
		if err == nil {
			return nil
		}
		if !retryable {
			return err
		}
		lastErr = err
		if attempt < maxAttempts {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}
	return fmt.Errorf("webhook failed after %d attempts: %w", maxAttempts, lastErr)
}

// post performs one delivery attempt. The bool reports whether the
// failure is worth retrying.
func post(cfg WebhookConfig, body []byte) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return true, err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return false, fmt.Errorf("webhook rejected: HTTP %d", resp.StatusCode)
	default:
		return true, fmt.Errorf("webhook server error: HTTP %d", resp.StatusCode)
	}
}
