package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pesio-ai/be-payroll-review/internal/config"
	"github.com/pesio-ai/be-payroll-review/internal/payroll"
	"github.com/pesio-ai/be-payroll-review/internal/review"
	"github.com/pesio-ai/be-payroll-review/internal/rules"
)

// WebhookClient posts review summaries to the external automation engine.
// Either endpoint may be unconfigured, in which case posting to it is a
// no-op.
type WebhookClient struct {
	diffURL      string
	judgementURL string
	http         *http.Client
}

// DiffPayload is posted after delta computation.
type DiffPayload struct {
	ReviewSessionID string                 `json:"review_session_id"`
	OrganizationID  string                 `json:"organization_id"`
	DeltaCount      int                    `json:"delta_count"`
	Deltas          []payroll.Delta        `json:"deltas"`
	Failures        []review.EmployeeError `json:"failures,omitempty"`
}

// JudgementPayload is posted for sessions that need approval. Only
// material judgements are included.
type JudgementPayload struct {
	ReviewSessionID string            `json:"review_session_id"`
	OrganizationID  string            `json:"organization_id"`
	Status          review.Status     `json:"status"`
	Verdict         review.Verdict    `json:"verdict"`
	Judgements      []rules.Judgement `json:"judgements"`
}

// NewWebhookClient builds a client from the webhook configuration.
func NewWebhookClient(cfg config.WebhooksConfig) *WebhookClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookClient{
		diffURL:      strings.TrimSpace(cfg.DiffURL),
		judgementURL: strings.TrimSpace(cfg.JudgementURL),
		http:         &http.Client{Timeout: timeout},
	}
}

// PostDiff sends the session's deltas to the diff webhook.
func (c *WebhookClient) PostDiff(ctx context.Context, s *review.Session) error {
	if c == nil || c.diffURL == "" {
		return nil
	}
	return c.post(ctx, c.diffURL, DiffPayload{
		ReviewSessionID: s.ID,
		OrganizationID:  s.OrganizationID,
		DeltaCount:      len(s.Deltas),
		Deltas:          s.Deltas,
		Failures:        s.Failures,
	})
}

// PostJudgement sends the verdict and material judgements to the judgement
// webhook.
func (c *WebhookClient) PostJudgement(ctx context.Context, s *review.Session) error {
	if c == nil || c.judgementURL == "" {
		return nil
	}
	return c.post(ctx, c.judgementURL, JudgementPayload{
		ReviewSessionID: s.ID,
		OrganizationID:  s.OrganizationID,
		Status:          s.Status(),
		Verdict:         s.Verdict(),
		Judgements:      s.Material(),
	})
}

func (c *WebhookClient) post(ctx context.Context, url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
