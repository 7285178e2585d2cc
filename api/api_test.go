package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pola2025/zipcheck-sub000/api"
	"github.com/pola2025/zipcheck-sub000/guard"
	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/orchestrator"
	"github.com/pola2025/zipcheck-sub000/provider"
	"github.com/pola2025/zipcheck-sub000/store/memory"
)

const goodAnswer = `{"overall_score": 64, "price_level": "high", "summary": "Labor is above market.",
"items": [{"name": "Tiles", "verdict": "ok"}, {"name": "Labor", "verdict": "overpriced"}]}
END`

const quoteBody = `{"requester_id": "biz-1", "subject_id": "quote-9", "title": "Bathroom",
"items": [{"name": "Tiles", "category": "finish", "amount": 600000}, {"name": "Labor", "amount": 900000}],
"total_amount": 1500000}`

type harness struct {
	srv   *httptest.Server
	calls *atomic.Int32
}

func newHarness(t *testing.T, respond func(n int) (*provider.Response, error)) *harness {
	t.Helper()
	calls := &atomic.Int32{}
	p := provider.Func(func(context.Context, provider.Request) (*provider.Response, error) {
		return respond(int(calls.Add(1)))
	})
	orch, err := orchestrator.New(memory.New(), p,
		orchestrator.WithGuardOptions(guard.WithSleeper(func(context.Context, time.Duration) error { return nil })),
	)
	if err != nil {
		t.Fatalf("orchestrator.New: %v", err)
	}
	srv := httptest.NewServer(api.New(orch).Handler())
	t.Cleanup(srv.Close)
	return &harness{srv: srv, calls: calls}
}

func ok(int) (*provider.Response, error) {
	return &provider.Response{Text: goodAnswer, PromptTokens: 500, CompletionTokens: 300}, nil
}

func (h *harness) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, h.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	out := map[string]any{}
	if buf.Len() > 0 {
		_ = json.Unmarshal(buf.Bytes(), &out)
	}
	return resp, out
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, ok)
	resp, body := h.do(t, http.MethodGet, "/healthz", "")
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("status = %d body = %v", resp.StatusCode, body)
	}
	if resp.Header.Get(api.RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestSubmitAndFetch(t *testing.T) {
	h := newHarness(t, ok)

	resp, body := h.do(t, http.MethodPost, "/v1/analyses", quoteBody)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status = %d body = %v", resp.StatusCode, body)
	}
	meta, _ := body["meta"].(map[string]any)
	jobID, _ := meta["job_id"].(string)
	if jobID == "" {
		t.Fatalf("no job id in %v", body)
	}
	result, _ := body["result"].(map[string]any)
	if result["price_level"] != "high" {
		t.Errorf("price_level = %v", result["price_level"])
	}

	resp, body = h.do(t, http.MethodGet, "/v1/jobs/"+jobID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	j, _ := body["job"].(map[string]any)
	if j["status"] != "succeeded" {
		t.Errorf("job status = %v", j["status"])
	}

	// Same key again is served from cache.
	resp, body = h.do(t, http.MethodPost, "/v1/analyses", quoteBody)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resubmit status = %d", resp.StatusCode)
	}
	meta, _ = body["meta"].(map[string]any)
	if meta["cache_hit"] != true {
		t.Errorf("cache_hit = %v", meta["cache_hit"])
	}
	if h.calls.Load() != 1 {
		t.Errorf("provider calls = %d, want 1", h.calls.Load())
	}

	resp, _ = h.do(t, http.MethodGet, "/v1/jobs?status=succeeded", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("list status = %d", resp.StatusCode)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		respond  func(int) (*provider.Response, error)
		method   string
		path     string
		body     string
		status   int
		wantCode string
	}{
		{"malformed json", ok, http.MethodPost, "/v1/analyses", `{`, http.StatusBadRequest, "bad_request"},
		{"unknown field", ok, http.MethodPost, "/v1/analyses", `{"bogus": 1}`, http.StatusBadRequest, "bad_request"},
		{"invalid request", ok, http.MethodPost, "/v1/analyses", `{"requester_id": "x"}`, http.StatusUnprocessableEntity, "validation_failed"},
		{
			"unknown model", ok, http.MethodPost, "/v1/analyses",
			strings.TrimSuffix(quoteBody, "}") + `, "options": {"model": "nope"}}`,
			http.StatusUnprocessableEntity, "model_unknown",
		},
		{
			"budget exceeded", ok, http.MethodPost, "/v1/analyses",
			strings.TrimSuffix(quoteBody, "}") + `, "options": {"token_budget": 100}}`,
			http.StatusPaymentRequired, "budget_exceeded",
		},
		{
			"provider error",
			func(int) (*provider.Response, error) { return nil, &provider.StatusError{Status: 401, Body: "bad key"} },
			http.MethodPost, "/v1/analyses", quoteBody, http.StatusBadGateway, "provider_error",
		},
		{
			"model output invalid",
			func(int) (*provider.Response, error) {
				return &provider.Response{Text: "no json here\nEND", PromptTokens: 10, CompletionTokens: 5}, nil
			},
			http.MethodPost, "/v1/analyses", quoteBody, http.StatusBadGateway, "invalid_model_output",
		},
		{"bad job id", ok, http.MethodGet, "/v1/jobs/nope", "", http.StatusBadRequest, "bad_request"},
		{"missing job", ok, http.MethodGet, "/v1/jobs/" + id.NewJobID().String(), "", http.StatusNotFound, "not_found"},
		{"cancel missing job", ok, http.MethodPost, "/v1/jobs/" + id.NewJobID().String() + "/cancel", "", http.StatusNotFound, "not_found"},
		{"bad status filter", ok, http.MethodGet, "/v1/jobs?status=done", "", http.StatusBadRequest, "bad_request"},
		{"missing draft", ok, http.MethodPost, "/v1/drafts/nope/submit", "", http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.respond)
			resp, body := h.do(t, tt.method, tt.path, tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d (body %v)", resp.StatusCode, tt.status, body)
			}
			if body["code"] != tt.wantCode {
				t.Errorf("code = %v, want %s", body["code"], tt.wantCode)
			}
			if body["request_id"] == "" || body["request_id"] == nil {
				t.Error("missing request_id in error body")
			}
		})
	}
}

func TestConcurrentSubmissionConflict(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	h := newHarness(t, func(int) (*provider.Response, error) {
		close(started)
		<-release
		return ok(0)
	})

	done := make(chan int, 1)
	go func() {
		resp, err := http.Post(h.srv.URL+"/v1/analyses", "application/json", strings.NewReader(quoteBody))
		if err != nil {
			done <- 0
			return
		}
		resp.Body.Close()
		done <- resp.StatusCode
	}()
	<-started

	resp, body := h.do(t, http.MethodPost, "/v1/analyses", quoteBody)
	close(release)

	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
	if body["code"] != "concurrent_submission" || body["job_id"] == "" {
		t.Errorf("body = %v", body)
	}
	if status := <-done; status != http.StatusOK {
		t.Errorf("first submission status = %d", status)
	}
}

func TestDraftFlow(t *testing.T) {
	h := newHarness(t, ok)

	resp, body := h.do(t, http.MethodPost, "/v1/drafts",
		`{"requester_id": "biz-1", "subject_id": "quote-9", "items": [{"name": "Tiles", "amount": 600000}]}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d body = %v", resp.StatusCode, body)
	}
	draftID, _ := body["id"].(string)
	if draftID == "" {
		t.Fatalf("no draft id in %v", body)
	}

	resp, body = h.do(t, http.MethodPost, "/v1/drafts/"+draftID+"/items",
		`{"items": [{"name": "Labor", "amount": 900000}]}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add items status = %d body = %v", resp.StatusCode, body)
	}
	if items, _ := body["items"].([]any); len(items) != 2 {
		t.Errorf("items = %v, want 2", body["items"])
	}

	resp, body = h.do(t, http.MethodPost, "/v1/drafts/"+draftID+"/submit", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit status = %d body = %v", resp.StatusCode, body)
	}

	// The draft is consumed by a successful submit.
	resp, _ = h.do(t, http.MethodGet, "/v1/drafts/"+draftID, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("draft after submit: status = %d, want 404", resp.StatusCode)
	}
}

func TestDraftValidation(t *testing.T) {
	h := newHarness(t, ok)
	resp, body := h.do(t, http.MethodPost, "/v1/drafts", `{"requester_id": "biz-1"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422 (body %v)", resp.StatusCode, body)
	}

	resp, body = h.do(t, http.MethodPost, "/v1/drafts", `{"requester_id": "biz-1", "subject_id": "q"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	draftID, _ := body["id"].(string)
	resp, _ = h.do(t, http.MethodPost, "/v1/drafts/"+draftID+"/items", `{"items": []}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty items: status = %d, want 400", resp.StatusCode)
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	h := newHarness(t, ok)
	_, body := h.do(t, http.MethodPost, "/v1/analyses", quoteBody)
	meta, _ := body["meta"].(map[string]any)
	jobID, _ := meta["job_id"].(string)

	for range 2 {
		resp, _ := h.do(t, http.MethodPost, "/v1/jobs/"+jobID+"/cancel", "")
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("cancel status = %d, want 204", resp.StatusCode)
		}
	}
}

