// Package provider defines the text-generation provider contract consumed
// by the guarded-call executor.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Role tags a message block.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged block of a prompt.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is a single completion request.
type Request struct {
	Model           string
	Messages        []Message
	MaxOutputTokens int
	Temperature     float64
	// Stop lists sequences at which the provider ends generation.
	Stop []string
}

// Response is a successful completion with its reported usage.
type Response struct {
	Text             string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider generates text. Implementations must honor ctx cancellation
// and deadlines, and report HTTP-like failures as *StatusError.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Func adapts a function to Provider.
type Func func(ctx context.Context, req Request) (*Response, error)

// Complete calls f.
func (f Func) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// StatusError is a provider failure carrying an HTTP status code.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider: status %d", e.Status)
	}
	return fmt.Sprintf("provider: status %d: %s", e.Status, e.Body)
}

// StatusCode returns the status carried by err, or 0 if none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// IsRetryable reports whether err is a transient provider failure: HTTP
// 429 or any 5xx. Timeouts and cancellations are never retryable.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	code := StatusCode(err)
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// RateLimited wraps p so that every Complete waits on limiter first. A
// wait that cannot finish before ctx's deadline fails at once with
// context.DeadlineExceeded, so callers see it as a timeout.
func RateLimited(p Provider, limiter *rate.Limiter) Provider {
	return Func(func(ctx context.Context, req Request) (*Response, error) {
		if err := wait(ctx, limiter); err != nil {
			return nil, err
		}
		return p.Complete(ctx, req)
	})
}

func wait(ctx context.Context, limiter *rate.Limiter) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("provider: rate limit: %w", err)
	}
	r := limiter.Reserve()
	if !r.OK() {
		return errors.New("provider: rate limit: limiter allows no requests")
	}
	delay := r.Delay()
	if delay == 0 {
		return nil
	}
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < delay {
		r.Cancel()
		return fmt.Errorf("provider: rate limit: wait of %s exceeds deadline: %w", delay, context.DeadlineExceeded)
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return fmt.Errorf("provider: rate limit: %w", ctx.Err())
	}
}
