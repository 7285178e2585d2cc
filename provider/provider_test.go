package provider_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/pola2025/zipcheck-sub000/provider"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", &provider.StatusError{Status: 429}, true},
		{"500", &provider.StatusError{Status: 500}, true},
		{"503 wrapped", fmt.Errorf("call: %w", &provider.StatusError{Status: 503}), true},
		{"400", &provider.StatusError{Status: 400}, false},
		{"401", &provider.StatusError{Status: 401}, false},
		{"deadline", context.DeadlineExceeded, false},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := provider.IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStatusCode(t *testing.T) {
	if got := provider.StatusCode(fmt.Errorf("x: %w", &provider.StatusError{Status: 502})); got != 502 {
		t.Errorf("StatusCode = %d, want 502", got)
	}
	if got := provider.StatusCode(errors.New("x")); got != 0 {
		t.Errorf("StatusCode = %d, want 0", got)
	}
}

func TestRateLimited(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		cancel  bool
		want    error
	}{
		{name: "wait past deadline", timeout: 10 * time.Millisecond, want: context.DeadlineExceeded},
		{name: "caller canceled", timeout: time.Minute, cancel: true, want: context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			p := provider.RateLimited(provider.Func(func(_ context.Context, _ provider.Request) (*provider.Response, error) {
				calls++
				return &provider.Response{Text: "ok"}, nil
			}), rate.NewLimiter(rate.Every(time.Hour), 1))

			if _, err := p.Complete(context.Background(), provider.Request{}); err != nil {
				t.Fatalf("first call: %v", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), tt.timeout)
			defer cancel()
			if tt.cancel {
				cancel()
			}
			_, err := p.Complete(ctx, provider.Request{})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if provider.IsRetryable(err) {
				t.Error("limiter wait errors must not be retried")
			}
			if calls != 1 {
				t.Fatalf("calls = %d, want 1", calls)
			}
		})
	}
}
