package openai_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pola2025/zipcheck-sub000/provider"
	"github.com/pola2025/zipcheck-sub000/provider/openai"
)

func TestComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body["model"] != "gpt-4o-mini" || body["max_tokens"] != float64(3000) {
			t.Errorf("body = %v", body)
		}
		if _, ok := body["stop"]; ok {
			t.Error("an empty stop list must be omitted from the request")
		}
		_, _ = w.Write([]byte(`{
			"model": "gpt-4o-mini-2024",
			"choices": [{"message": {"content": "{\"overall_score\": 70}\nEND"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150}
		}`))
	}))
	defer srv.Close()

	c := openai.New("sk-test", openai.WithBaseURL(srv.URL+"/"))
	resp, err := c.Complete(context.Background(), provider.Request{
		Model:           "gpt-4o-mini",
		Messages:        []provider.Message{{Role: provider.RoleUser, Content: "hi"}},
		MaxOutputTokens: 3000,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "{\"overall_score\": 70}\nEND" {
		t.Errorf("Text = %q", resp.Text)
	}
	if resp.PromptTokens != 120 || resp.CompletionTokens != 30 || resp.TotalTokens != 150 {
		t.Errorf("usage = %+v", resp)
	}
	if resp.Model != "gpt-4o-mini-2024" {
		t.Errorf("Model = %q", resp.Model)
	}
}

func TestCompleteStatusError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, true},
		{"bad gateway", http.StatusBadGateway, true},
		{"bad request", http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer srv.Close()

			_, err := openai.New("", openai.WithBaseURL(srv.URL)).Complete(context.Background(), provider.Request{Model: "m"})
			if provider.StatusCode(err) != tt.status {
				t.Fatalf("status = %d, want %d (%v)", provider.StatusCode(err), tt.status, err)
			}
			if provider.IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", provider.IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestCompleteDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := openai.New("", openai.WithBaseURL(srv.URL)).Complete(ctx, provider.Request{Model: "m"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if provider.IsRetryable(err) {
		t.Error("deadline must not be retryable")
	}
}
