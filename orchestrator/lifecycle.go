package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/analysis"
	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/job"
	"github.com/pola2025/zipcheck-sub000/output"
	"github.com/pola2025/zipcheck-sub000/usage"
)

// Cancel requests cooperative cancellation of a job. A queued or running
// job moves to canceled at once; canceling a terminal job is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, jobID id.JobID) error {
	changed, err := o.store.RequestAbort(ctx, jobID)
	if err != nil {
		return fmt.Errorf("zipcheck/orchestrator: cancel job %s: %w", jobID, err)
	}
	if !changed {
		return nil
	}

	o.logger.Info("job canceled", "job_id", jobID.String())
	if j, getErr := o.store.GetJob(ctx, jobID); getErr == nil {
		o.extensions.EmitJobCanceled(ctx, j)
	}
	return nil
}

// Report is everything recorded about one job.
type Report struct {
	Job     *job.Job         `json:"job"`
	Usage   []*usage.Record  `json:"usage"`
	Outputs []*output.Record `json:"outputs"`
	// Result is the decoded done output of a succeeded job.
	Result *analysis.Result `json:"result,omitempty"`
}

// Get returns the job with its usage and outputs.
func (o *Orchestrator) Get(ctx context.Context, jobID id.JobID) (*Report, error) {
	j, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	records, err := o.store.ListUsage(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("zipcheck/orchestrator: list usage: %w", err)
	}
	outs, err := o.store.ListOutputs(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("zipcheck/orchestrator: list outputs: %w", err)
	}

	r := &Report{Job: j, Usage: records, Outputs: outs}
	for _, out := range outs {
		if !out.Done {
			continue
		}
		var res analysis.Result
		if err := json.Unmarshal(out.Content, &res); err == nil {
			r.Result = &res
		}
	}
	return r, nil
}

// List returns jobs newest first.
func (o *Orchestrator) List(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	return o.store.ListJobs(ctx, opts)
}

// ReapStale finalizes jobs stuck queued or running for longer than
// Config.StaleJobThreshold as timed out. It returns how many it reaped.
func (o *Orchestrator) ReapStale(ctx context.Context) (int, error) {
	threshold := o.config.StaleJobThreshold
	if threshold <= 0 {
		return 0, nil
	}
	stale, err := o.store.ListStaleJobs(ctx, threshold)
	if err != nil {
		return 0, fmt.Errorf("zipcheck/orchestrator: list stale jobs: %w", err)
	}

	var reaped int
	for _, j := range stale {
		now := time.Now().UTC()
		j.Status = job.StateTimeout
		j.CompletedAt = &now
		j.UpdatedAt = now
		j.TerminationReason = fmt.Sprintf("stale: no progress for %s", threshold)

		if err := o.store.FinalizeJob(ctx, j, nil); err != nil {
			if errors.Is(err, zipcheck.ErrInvalidState) {
				continue
			}
			return reaped, fmt.Errorf("zipcheck/orchestrator: reap job %s: %w", j.ID, err)
		}
		reaped++
		o.logger.Warn("reaped stale job", "job_id", j.ID.String(), "threshold", threshold)
		o.extensions.EmitJobFailed(ctx, j, job.TagTimeout, errors.New(j.TerminationReason))
	}
	return reaped, nil
}
