package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/analysis"
	"github.com/pola2025/zipcheck-sub000/guard"
	"github.com/pola2025/zipcheck-sub000/orchestrator"
	"github.com/pola2025/zipcheck-sub000/session"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error     string   `json:"error"`
	Code      string   `json:"code"`
	Problems  []string `json:"problems,omitempty"`
	JobID     string   `json:"job_id,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// errBadRequest marks malformed input that never reached the orchestrator.
type errBadRequest struct{ msg string }

func (e *errBadRequest) Error() string { return e.msg }

func badRequest(msg string) error { return &errBadRequest{msg: msg} }

// statusFor maps an error to its HTTP status and a stable code.
func statusFor(err error) (int, ErrorResponse) {
	resp := ErrorResponse{Error: err.Error()}

	var (
		br  *errBadRequest
		ve  *analysis.ValidationError
		cse *orchestrator.ConcurrentSubmissionError
		be  *guard.BudgetExceededError
		te  *guard.TimeoutError
		pe  *guard.ProviderError
		mse *guard.MaxStepsError
	)
	switch {
	case errors.As(err, &br):
		resp.Code = "bad_request"
		return http.StatusBadRequest, resp
	case errors.As(err, &ve):
		resp.Code = "validation_failed"
		resp.Problems = ve.Problems
		if ve.Subject == "result" {
			// The model answered but not in the agreed shape.
			resp.Code = "invalid_model_output"
			return http.StatusBadGateway, resp
		}
		return http.StatusUnprocessableEntity, resp
	case errors.As(err, &cse):
		resp.Code = "concurrent_submission"
		resp.JobID = cse.JobID.String()
		return http.StatusConflict, resp
	case errors.Is(err, zipcheck.ErrModelUnknown):
		resp.Code = "model_unknown"
		return http.StatusUnprocessableEntity, resp
	case errors.As(err, &be):
		resp.Code = "budget_exceeded"
		return http.StatusPaymentRequired, resp
	case errors.As(err, &te), errors.Is(err, context.DeadlineExceeded):
		resp.Code = "timeout"
		return http.StatusGatewayTimeout, resp
	case errors.As(err, &pe):
		resp.Code = "provider_error"
		return http.StatusBadGateway, resp
	case errors.As(err, &mse):
		resp.Code = "max_steps"
		return http.StatusInternalServerError, resp
	case errors.Is(err, zipcheck.ErrJobCanceled):
		resp.Code = "canceled"
		return http.StatusConflict, resp
	case errors.Is(err, zipcheck.ErrJobNotFound), errors.Is(err, session.ErrNotFound):
		resp.Code = "not_found"
		return http.StatusNotFound, resp
	default:
		resp.Code = "internal"
		return http.StatusInternalServerError, resp
	}
}

func (a *API) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := statusFor(err)
	resp.RequestID = requestIDFrom(r.Context())
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			"path", r.URL.Path,
			"status", status,
			"request_id", resp.RequestID,
			"error", err,
		)
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid JSON body: " + err.Error())
	}
	return nil
}
