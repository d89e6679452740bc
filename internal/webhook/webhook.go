// Package webhook delivers best-effort completion notifications. Callers log
// delivery failures but never let them affect job state.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const deliveryTimeout = 5 * time.Second

// Notifier posts job lifecycle events to a configured endpoint. An empty URL
// disables delivery entirely.
type Notifier struct {
	url    string
	secret string
	client *http.Client
}

func NewNotifier(url, secret string) *Notifier {
	return &Notifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: deliveryTimeout},
	}
}

type event struct {
	JobID     string    `json:"job_id"`
	UserID    int64     `json:"user_id"`
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

// JobFinalized notifies the endpoint that a job has been published. A nil
// error when no URL is configured: absence of a webhook is a no-op.
func (n *Notifier) JobFinalized(ctx context.Context, jobID string, userID int64) error {
	if n.url == "" {
		return nil
	}

	body, err := json.Marshal(event{
		JobID:     jobID,
		UserID:    userID,
		Event:     "finalized",
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		req.Header.Set("X-Webhook-Secret", n.secret)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
