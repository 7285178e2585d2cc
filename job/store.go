package job

import (
	"context"
	"time"

	"github.com/pola2025/zipcheck-sub000/id"
)

// ListOpts controls pagination and filtering for job list queries.
type ListOpts struct {
	// Limit is the maximum number of jobs to return. Zero means no limit.
	Limit int
	// Offset is the number of jobs to skip.
	Offset int
	// Status filters by job status. Empty means all statuses.
	Status State
	// RequesterID filters by requester. Empty means all requesters.
	RequesterID string
}

// CountOpts controls filtering for job count queries.
type CountOpts struct {
	// Status filters by job status. Empty means all statuses.
	Status State
	// RequesterID filters by requester. Empty means all requesters.
	RequesterID string
}

// Store defines the persistence contract for jobs.
type Store interface {
	// CreateJob persists a new queued job. It returns
	// zipcheck.ErrDuplicateIdemKey when another job holding the same
	// idempotency key (queued, running or succeeded) already exists, and
	// zipcheck.ErrJobAlreadyExists on an ID collision. The check and the
	// insert are atomic.
	CreateJob(ctx context.Context, j *Job) error

	// GetJob retrieves a job by ID.
	GetJob(ctx context.Context, jobID id.JobID) (*Job, error)

	// LatestJobByIdemKey returns the most recently created job with the
	// given idempotency key, in any state.
	LatestJobByIdemKey(ctx context.Context, key string) (*Job, error)

	// TransitionJob persists j only if the stored job is currently in one
	// of the from states. It returns zipcheck.ErrInvalidState otherwise.
	// An empty from means ActiveStates.
	TransitionJob(ctx context.Context, j *Job, from ...State) error

	// RequestAbort sets abort_requested and moves a queued or running job
	// to canceled. It reports whether the job changed; a terminal job is
	// left untouched and reported as unchanged.
	RequestAbort(ctx context.Context, jobID id.JobID) (bool, error)

	// IsAbortRequested reports whether cancellation was requested.
	IsAbortRequested(ctx context.Context, jobID id.JobID) (bool, error)

	// ListJobs returns jobs ordered by creation time, newest first.
	ListJobs(ctx context.Context, opts ListOpts) ([]*Job, error)

	// CountJobs returns the number of jobs matching the given options.
	CountJobs(ctx context.Context, opts CountOpts) (int64, error)

	// ListStaleJobs returns queued or running jobs that started (or were
	// created, if never started) longer ago than threshold.
	ListStaleJobs(ctx context.Context, threshold time.Duration) ([]*Job, error)
}
