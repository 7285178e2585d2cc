package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pola2025/zipcheck-sub000/analysis"
	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/job"
	"github.com/pola2025/zipcheck-sub000/orchestrator"
)

// SubmitOptions are the per-submission overrides accepted over HTTP.
type SubmitOptions struct {
	Model       string  `json:"model,omitempty"`
	TokenBudget int     `json:"token_budget,omitempty"`
	USDBudget   float64 `json:"usd_budget,omitempty"`
}

// Options converts the overrides into orchestrator submit options.
func (o *SubmitOptions) Options() []orchestrator.SubmitOption {
	if o == nil {
		return nil
	}
	var opts []orchestrator.SubmitOption
	if o.Model != "" {
		opts = append(opts, job.WithModel(o.Model))
	}
	if o.TokenBudget > 0 {
		opts = append(opts, job.WithTokenBudget(o.TokenBudget))
	}
	if o.USDBudget > 0 {
		opts = append(opts, job.WithUSDBudget(o.USDBudget))
	}
	return opts
}

// SubmitRequest is the body of POST /v1/analyses.
type SubmitRequest struct {
	analysis.Request
	Options *SubmitOptions `json:"options,omitempty"`
}

func (a *API) submitAnalysis(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.writeErr(w, r, err)
		return
	}

	sub, err := a.orch.Submit(r.Context(), &req.Request, req.Options.Options()...)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (a *API) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := job.ListOpts{
		Limit:       25,
		RequesterID: strings.TrimSpace(q.Get("requester_id")),
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st := job.State(raw)
		switch st {
		case job.StateQueued, job.StateRunning, job.StateSucceeded,
			job.StateFailed, job.StateTimeout, job.StateCanceled:
			opts.Status = st
		default:
			a.writeErr(w, r, badRequest("invalid status: "+raw))
			return
		}
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			a.writeErr(w, r, badRequest("invalid limit: "+raw))
			return
		}
		opts.Limit = min(n, 100)
	}
	if raw := strings.TrimSpace(q.Get("offset")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			a.writeErr(w, r, badRequest("invalid offset: "+raw))
			return
		}
		opts.Offset = n
	}

	jobs, err := a.orch.List(r.Context(), opts)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "id"))
	if err != nil {
		a.writeErr(w, r, badRequest("invalid job ID: "+err.Error()))
		return
	}
	report, err := a.orch.Get(r.Context(), jobID)
	if err != nil {
		a.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := id.ParseJobID(chi.URLParam(r, "id"))
	if err != nil {
		a.writeErr(w, r, badRequest("invalid job ID: "+err.Error()))
		return
	}
	if err := a.orch.Cancel(r.Context(), jobID); err != nil {
		a.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
