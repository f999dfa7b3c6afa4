package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pulsewatch/pulsewatch/pkg/types"
)

// Webhook posts the emergency to a Slack, Teams or generic HTTP endpoint.
type Webhook struct {
	name   string
	kind   string // slack | teams | http
	url    string
	client *http.Client
}

// NewWebhook returns a webhook transport. kind must be slack, teams or http.
func NewWebhook(kind, url string) (*Webhook, error) {
	switch kind {
	case "slack", "teams", "http":
	default:
		return nil, fmt.Errorf("notify: unknown webhook type %q", kind)
	}
	if url == "" {
		return nil, fmt.Errorf("notify: %s webhook url is empty", kind)
	}
	return &Webhook{
		name:   "webhook:" + kind,
		kind:   kind,
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Named overrides the transport name. Webhooks of the same type need
// distinct names to keep their delivery flags apart.
func (w *Webhook) Named(name string) *Webhook {
	w.name = name
	return w
}

// Name implements Transport; by default webhooks are keyed by type, e.g.
// "webhook:slack".
func (w *Webhook) Name() string { return w.name }

// SendEmergency implements Transport.
func (w *Webhook) SendEmergency(ctx context.Context, s types.Sample) error {
	var payload any
	switch w.kind {
	case "slack":
		payload = map[string]string{
			"text": fmt.Sprintf("*[CRITICAL]* %s", emergencyText(s, true)),
		}
	case "teams":
		payload = map[string]any{
			"@type":      "MessageCard",
			"@context":   "http://schema.org/extensions",
			"themeColor": "FF4F6A",
			"summary":    emergencySubject,
			"title":      emergencySubject,
			"text":       emergencyText(s, true),
		}
	default:
		payload = map[string]any{"event": "emergency", "sample": s}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return w.post(ctx, body)
}

func (w *Webhook) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}
