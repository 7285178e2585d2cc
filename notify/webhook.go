package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// WebhookSink POSTs each event as JSON to a fixed URL.
type WebhookSink struct {
	url     string
	client  *http.Client
	headers map[string]string
}

// WebhookOption configures a WebhookSink.
type WebhookOption func(*WebhookSink)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) WebhookOption {
	return func(s *WebhookSink) { s.client = c }
}

// WithHeader adds a static request header, e.g. an auth token.
func WithHeader(key, value string) WebhookOption {
	return func(s *WebhookSink) { s.headers[key] = value }
}

// NewWebhookSink returns a sink posting to url.
func NewWebhookSink(url string, opts ...WebhookOption) *WebhookSink {
	s := &WebhookSink{
		url:     url,
		client:  &http.Client{Timeout: 10 * time.Second},
		headers: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send posts e. Every request carries a fresh X-Zipcheck-Delivery id so
// receivers can deduplicate redeliveries.
func (s *WebhookSink) Send(ctx context.Context, e *Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("zipcheck/notify: encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("zipcheck/notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Zipcheck-Event", string(e.Type))
	req.Header.Set("X-Zipcheck-Delivery", uuid.NewString())
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("zipcheck/notify: webhook: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("zipcheck/notify: webhook returned %d", resp.StatusCode)
	}
	return nil
}
