// Package client is a Go client for a remote zipcheck server's HTTP API.
//
// Usage:
//
//	c := client.New("https://zipcheck.example.com",
//	    client.WithToken("zk_..."),
//	)
//
//	sub, err := c.Submit(ctx, req, nil)
//	var apiErr *client.Error
//	if errors.As(err, &apiErr) && apiErr.Code == "concurrent_submission" {
//	    report, _ := c.GetJob(ctx, apiErr.JobID)
//	}
//
// Idempotent calls (reads and cancel) are retried with exponential
// backoff on transport errors and 502/503/504 replies. Submit is never
// retried by the client; the server's idempotency key makes a manual
// resubmission safe.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/analysis"
	"github.com/pola2025/zipcheck-sub000/api"
	"github.com/pola2025/zipcheck-sub000/backoff"
	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/orchestrator"
)

// Client talks to one zipcheck server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger

	// Retry of idempotent calls.
	maxRetries int
	backoff    backoff.Strategy
	sleep      backoff.Sleeper
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: 5 * time.Minute},
		logger:     slog.Default(),
		maxRetries: 3,
		backoff:    backoff.NewExponential(250*time.Millisecond, 5*time.Second),
		sleep:      backoff.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Error is a non-2xx reply from the server.
type Error struct {
	Status    int
	Code      string
	Message   string
	Problems  []string
	JobID     id.JobID
	RequestID string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("zipcheck/client: %d %s: %s", e.Status, e.Code, e.Message)
	if e.RequestID != "" {
		msg += " (request " + e.RequestID + ")"
	}
	return msg
}

// Is maps server error codes onto the root sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case zipcheck.ErrJobNotFound:
		return e.Code == "not_found"
	case zipcheck.ErrDuplicateIdemKey:
		return e.Code == "concurrent_submission"
	case zipcheck.ErrJobCanceled:
		return e.Code == "canceled"
	case zipcheck.ErrModelUnknown:
		return e.Code == "model_unknown"
	}
	return false
}

// Submit analyzes req on the server. opts may be nil.
func (c *Client) Submit(ctx context.Context, req *analysis.Request, opts *api.SubmitOptions) (*orchestrator.Submission, error) {
	body := api.SubmitRequest{Request: *req, Options: opts}
	var sub orchestrator.Submission
	if err := c.do(ctx, http.MethodPost, "/v1/analyses", body, &sub, false); err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetJob returns a job with its usage and result.
func (c *Client) GetJob(ctx context.Context, jobID id.JobID) (*orchestrator.Report, error) {
	var r orchestrator.Report
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+jobID.String(), nil, &r, true); err != nil {
		return nil, err
	}
	return &r, nil
}

// Cancel requests cancellation. Canceling a finished job is a no-op.
func (c *Client) Cancel(ctx context.Context, jobID id.JobID) error {
	return c.do(ctx, http.MethodPost, "/v1/jobs/"+jobID.String()+"/cancel", nil, nil, true)
}

// CreateDraft opens a draft quote.
func (c *Client) CreateDraft(ctx context.Context, req api.CreateDraftRequest) (*api.Draft, error) {
	var d api.Draft
	if err := c.do(ctx, http.MethodPost, "/v1/drafts", req, &d, false); err != nil {
		return nil, err
	}
	return &d, nil
}

// AddDraftItems appends items to a draft.
func (c *Client) AddDraftItems(ctx context.Context, draftID string, items []analysis.Item) (*api.Draft, error) {
	var d api.Draft
	if err := c.do(ctx, http.MethodPost, "/v1/drafts/"+draftID+"/items", api.AddItemsRequest{Items: items}, &d, false); err != nil {
		return nil, err
	}
	return &d, nil
}

// SubmitDraft submits a draft for analysis.
func (c *Client) SubmitDraft(ctx context.Context, draftID string, req api.SubmitDraftRequest) (*orchestrator.Submission, error) {
	var sub orchestrator.Submission
	if err := c.do(ctx, http.MethodPost, "/v1/drafts/"+draftID+"/submit", req, &sub, false); err != nil {
		return nil, err
	}
	return &sub, nil
}

// Health checks server and store connectivity.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil, true)
}

// do sends one request, retrying transient failures when retry is set.
func (c *Client) do(ctx context.Context, method, path string, in, out any, retry bool) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("zipcheck/client: marshal request: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		err := c.once(ctx, method, path, payload, out)
		if err == nil || !retry || attempt >= c.maxRetries || !transient(err) || ctx.Err() != nil {
			return err
		}

		delay := c.backoff.Delay(attempt + 1)
		c.logger.Warn("zipcheck client retrying",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
		if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
			return err
		}
	}
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("zipcheck/client: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("zipcheck/client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("zipcheck/client: decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	e := &Error{Status: resp.StatusCode, RequestID: resp.Header.Get(api.RequestIDHeader)}
	var body api.ErrorResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err := json.Unmarshal(raw, &body); err != nil {
		e.Code = "http_error"
		e.Message = strings.TrimSpace(string(raw))
		if e.Message == "" {
			e.Message = http.StatusText(resp.StatusCode)
		}
		return e
	}
	e.Code = body.Code
	e.Message = body.Error
	e.Problems = body.Problems
	if body.RequestID != "" {
		e.RequestID = body.RequestID
	}
	if body.JobID != "" {
		if jobID, err := id.ParseJobID(body.JobID); err == nil {
			e.JobID = jobID
		}
	}
	return e
}

// transient reports whether err is worth retrying.
func transient(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		switch e.Status {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	// Transport failures; context errors are filtered by the caller.
	return true
}
