package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"jobtrail/internal/config"
	"jobtrail/internal/domain"
)

const defaultWebhookTimeout = 5 * time.Second

// WebhookSink delivers reminders as JSON POSTs to a configured endpoint.
type WebhookSink struct {
	url    string
	secret string
	client *http.Client
}

func NewWebhookSink(cfg config.WebhookConfig) *WebhookSink {
	timeout := defaultWebhookTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &WebhookSink{
		url:    cfg.URL,
		secret: cfg.Secret,
		client: &http.Client{Timeout: timeout},
	}
}

type webhookBody struct {
	UserID   string          `json:"user_id"`
	Reminder domain.Reminder `json:"reminder"`
	SentAt   string          `json:"sent_at"`
}

func (s *WebhookSink) Send(ctx context.Context, userID string, r domain.Reminder) error {
	if strings.TrimSpace(s.url) == "" {
		return fmt.Errorf("webhook sink misconfigured: url required")
	}
	data, err := json.Marshal(webhookBody{
		UserID:   userID,
		Reminder: r,
		SentAt:   time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-JobTrail-Event", domain.EventReminderSent)
	if strings.TrimSpace(s.secret) != "" {
		req.Header.Set("X-JobTrail-Secret", s.secret)
	}
	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
