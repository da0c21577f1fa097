package notification

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	headerEvent    = "X-GlassWallet-Event"
	headerDelivery = "X-GlassWallet-Delivery"
	userAgent      = "GlassWallet-Webhooks/1.0"
)

// WebhookClient posts JSON payloads to user endpoints.
type WebhookClient struct {
	client *http.Client
}

func NewWebhookClient(client *http.Client) *WebhookClient {
	if client == nil {
		client = &http.Client{}
	}
	return &WebhookClient{client: client}
}

// Post delivers one payload. Any status outside 2xx is an error.
func (w *WebhookClient) Post(ctx context.Context, url string, body []byte, timeout time.Duration, event, deliveryID string) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(headerEvent, event)
	req.Header.Set(headerDelivery, deliveryID)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return nil
}
