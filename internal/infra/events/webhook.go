package events

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookPoster kirim event sebagai JSON POST ke satu webhook URL
// (Slack incoming webhook atau endpoint internal).
type WebhookPoster struct {
	URL    string
	Client *http.Client
}

func NewWebhookPoster(url string) *WebhookPoster {
	return &WebhookPoster{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookPoster) Post(ctx context.Context, name string, payload any) error {
	if w.URL == "" {
		return nil
	}

	body, err := json.Marshal(map[string]any{
		"event":   name,
		"payload": payload,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
