package ext

import (
	"context"
	"time"

	"github.com/pola2025/zipcheck-sub000/analysis"
	"github.com/pola2025/zipcheck-sub000/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// Warning describes why a finished job tripped a usage threshold.
type Warning struct {
	TokensUsed  int     `json:"tokens_used"`
	TokenBudget int     `json:"token_budget"`
	CostUSD     float64 `json:"cost_usd"`
	USDBudget   float64 `json:"usd_budget"`
	// Reasons lists the thresholds crossed, e.g. "tokens 85% of budget".
	Reasons []string `json:"reasons"`
}

// ──────────────────────────────────────────────────
// Job lifecycle hooks
// ──────────────────────────────────────────────────

// JobQueued is called after a job is created in the queued state.
type JobQueued interface {
	OnJobQueued(ctx context.Context, j *job.Job) error
}

// JobStarted is called when a job moves to running.
type JobStarted interface {
	OnJobStarted(ctx context.Context, j *job.Job) error
}

// JobSucceeded is called after a job is persisted as succeeded.
type JobSucceeded interface {
	OnJobSucceeded(ctx context.Context, j *job.Job, res *analysis.Result, elapsed time.Duration) error
}

// JobFailed is called after a job is persisted as failed or timeout.
type JobFailed interface {
	OnJobFailed(ctx context.Context, j *job.Job, tag job.FailureTag, err error) error
}

// JobCanceled is called when a cancellation request is accepted.
type JobCanceled interface {
	OnJobCanceled(ctx context.Context, j *job.Job) error
}

// UsageWarning is called when a finished job crossed a token or cost
// warning threshold.
type UsageWarning interface {
	OnUsageWarning(ctx context.Context, j *job.Job, w Warning) error
}

// CacheHit is called when a submission is answered from an earlier
// succeeded job.
type CacheHit interface {
	OnCacheHit(ctx context.Context, j *job.Job) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// TaskFired is called after a scheduled task runs. err is the task's
// result.
type TaskFired interface {
	OnTaskFired(ctx context.Context, task string, elapsed time.Duration, err error) error
}

// Shutdown is called during graceful shutdown.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
