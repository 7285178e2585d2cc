// Package api exposes the orchestrator over HTTP.
//
//	POST /v1/analyses               submit a quote for analysis
//	GET  /v1/jobs                   list jobs
//	GET  /v1/jobs/{id}              job with usage and result
//	POST /v1/jobs/{id}/cancel       request cancellation
//	POST /v1/drafts                 open a draft quote
//	POST /v1/drafts/{id}/items      append items to a draft
//	POST /v1/drafts/{id}/submit     submit a draft for analysis
//	GET  /healthz                   store connectivity
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pola2025/zipcheck-sub000/orchestrator"
	"github.com/pola2025/zipcheck-sub000/session"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// API wires the HTTP handlers together.
type API struct {
	orch   *orchestrator.Orchestrator
	drafts *session.Store[*Draft]
	logger *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithDrafts sets the draft session store. The caller owns sweeping it.
func WithDrafts(s *session.Store[*Draft]) Option {
	return func(a *API) { a.drafts = s }
}

// New creates an API for orch.
func New(orch *orchestrator.Orchestrator, opts ...Option) *API {
	a := &API{orch: orch, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	if a.drafts == nil {
		a.drafts = session.New[*Draft](session.DefaultTTL)
	}
	return a
}

// Drafts returns the draft session store.
func (a *API) Drafts() *session.Store[*Draft] { return a.drafts }

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(a.logRequests)

	r.Get("/healthz", a.health)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/analyses", a.submitAnalysis)

		r.Get("/jobs", a.listJobs)
		r.Get("/jobs/{id}", a.getJob)
		r.Post("/jobs/{id}/cancel", a.cancelJob)

		r.Post("/drafts", a.createDraft)
		r.Get("/drafts/{id}", a.getDraft)
		r.Post("/drafts/{id}/items", a.addDraftItems)
		r.Post("/drafts/{id}/submit", a.submitDraft)
	})

	return r
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if err := a.orch.Store().Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		a.logger.Info("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("request_id", requestIDFrom(r.Context())),
		)
	})
}
