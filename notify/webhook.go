package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// WebhookDispatcher posts messages to a chat gateway that owns delivery to the platform.
type WebhookDispatcher struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

// NewWebhookDispatcher creates a webhook dispatcher. token may be empty.
func NewWebhookDispatcher(url, token string, logger *slog.Logger) *WebhookDispatcher {
	return &WebhookDispatcher{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

type webhookMessage struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// Notify makes one delivery attempt. Failed deliveries are not retried here.
func (w *WebhookDispatcher) Notify(ctx context.Context, userID, text string) error {
	payload, err := json.Marshal(webhookMessage{UserID: userID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	start := time.Now()
	resp, err := w.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		w.logger.Warn("Webhook request failed",
			"user_id", userID,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			w.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		w.logger.Warn("Webhook returned non-2xx status",
			"status_code", resp.StatusCode,
			"user_id", userID,
			"body", string(body))
		return fmt.Errorf("webhook: HTTP %d", resp.StatusCode)
	}

	w.logger.Info("Notification delivered",
		"user_id", userID,
		"duration_ms", duration.Milliseconds())
	return nil
}
