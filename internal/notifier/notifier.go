// Package notifier delivers action outcome events to external channels.
// Delivery is decoupled from the action path through a bounded, non-blocking
// dispatcher so a slow or failing channel can never delay or fail an action.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Event is the record handed to notification channels.
type Event struct {
	Event     string            `json:"event"` // "action_result"
	Platform  string            `json:"platform"`
	Action    string            `json:"action"`
	Success   bool              `json:"success"`
	Target    string            `json:"target"`
	Error     string            `json:"error,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Notifier delivers one event. The returned bool reports whether the event
// was delivered on any channel; callers only log it, never act on it.
type Notifier interface {
	Send(ctx context.Context, event Event) (bool, error)
}

// Webhook posts events as JSON to a configured URL.
type Webhook struct {
	url    string
	client *http.Client
}

// NewWebhook creates a webhook notifier.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	return &Webhook{
		url: url,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send posts the event. Any 2xx response counts as delivered.
func (w *Webhook) Send(ctx context.Context, event Event) (bool, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return false, fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return true, nil
}
