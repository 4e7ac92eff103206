package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ashureev/wealth-widget/internal/domain"
)

// Webhook posts each lead as JSON to a CRM endpoint.
type Webhook struct {
	client *resty.Client
	url    string
	token  string
}

// NewWebhook creates a webhook sink. token is sent as a bearer token when set.
func NewWebhook(url, token string, timeout time.Duration) *Webhook {
	client := resty.New().SetTimeout(timeout)
	return &Webhook{client: client, url: url, token: token}
}

// Name implements Sink.
func (w *Webhook) Name() string { return "webhook" }

// Submit implements Sink.
func (w *Webhook) Submit(ctx context.Context, rec domain.SubmissionRecord) error {
	req := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Idempotency-Key", rec.ID).
		SetBody(rec)
	if w.token != "" {
		req.SetHeader("Authorization", "Bearer "+w.token)
	}

	resp, err := req.Post(w.url)
	if err != nil {
		return fmt.Errorf("post lead webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("lead webhook returned %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
