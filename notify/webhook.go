package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"macrolog"
)

type doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Webhook posts plain-text messages to an incoming-webhook URL.
type Webhook struct {
	webhookURL string
	httpClient doer
}

func NewWebhook(webhookURL string, httpClient doer) *Webhook {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Webhook{
		webhookURL: webhookURL,
		httpClient: httpClient,
	}
}

func NewWebhookFromConfig(cfg macrolog.NotifyConfig) *Webhook {
	return NewWebhook(cfg.WebhookURL, nil)
}

func (w *Webhook) PostMessage(ctx context.Context, channel string, message string) error {
	payload, err := json.Marshal(map[string]any{
		"channel": channel,
		"text":    message,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return &macrolog.NetworkError{Op: "webhook post", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to post message: %s", resp.Status)
	}
	return nil
}
