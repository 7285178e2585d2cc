package client

import (
	"log/slog"
	"net/http"

	"github.com/pola2025/zipcheck-sub000/backoff"
)

// Option configures a Client.
type Option func(*Client)

// WithToken sets a bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithRetry sets how often idempotent calls are retried and the delay
// strategy between attempts. Zero maxRetries disables retrying.
func WithRetry(maxRetries int, strategy backoff.Strategy) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		if strategy != nil {
			c.backoff = strategy
		}
	}
}

// WithSleeper replaces the retry sleep, mainly for tests.
func WithSleeper(s backoff.Sleeper) Option {
	return func(c *Client) { c.sleep = s }
}
