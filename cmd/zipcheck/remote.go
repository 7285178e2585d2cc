package main

import (
	"context"
	"os"

	"github.com/pola2025/zipcheck-sub000/analysis"
	"github.com/pola2025/zipcheck-sub000/api"
	"github.com/pola2025/zipcheck-sub000/client"
	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/orchestrator"
)

// jobs is what submit, get and cancel need, served either by a local
// orchestrator or by a remote server.
type jobs interface {
	Submit(ctx context.Context, req *analysis.Request, opts *api.SubmitOptions) (*orchestrator.Submission, error)
	GetJob(ctx context.Context, jobID id.JobID) (*orchestrator.Report, error)
	Cancel(ctx context.Context, jobID id.JobID) error
}

type localJobs struct{ orch *orchestrator.Orchestrator }

func (l localJobs) Submit(ctx context.Context, req *analysis.Request, opts *api.SubmitOptions) (*orchestrator.Submission, error) {
	return l.orch.Submit(ctx, req, opts.Options()...)
}

func (l localJobs) GetJob(ctx context.Context, jobID id.JobID) (*orchestrator.Report, error) {
	return l.orch.Get(ctx, jobID)
}

func (l localJobs) Cancel(ctx context.Context, jobID id.JobID) error {
	return l.orch.Cancel(ctx, jobID)
}

// withJobs runs fn against --server when set, otherwise against a local
// application built from config.
func withJobs(ctx context.Context, c *cli, fn func(j jobs) error) error {
	if c.server != "" {
		return fn(client.New(c.server,
			client.WithToken(c.token),
			client.WithLogger(newLogger(c.cfg.Log, os.Stderr)),
		))
	}
	return withApp(ctx, c, func(a *app) error {
		if err := a.store.Migrate(ctx); err != nil {
			return err
		}
		return fn(localJobs{orch: a.orch})
	})
}
