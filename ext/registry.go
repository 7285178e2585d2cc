package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/pola2025/zipcheck-sub000/analysis"
	"github.com/pola2025/zipcheck-sub000/job"
)

// entry pairs a hook implementation with the extension name captured at
// registration time.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	jobQueued    []entry[JobQueued]
	jobStarted   []entry[JobStarted]
	jobSucceeded []entry[JobSucceeded]
	jobFailed    []entry[JobFailed]
	jobCanceled  []entry[JobCanceled]
	usageWarning []entry[UsageWarning]
	cacheHit     []entry[CacheHit]
	taskFired    []entry[TaskFired]
	shutdown     []entry[Shutdown]
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobQueued); ok {
		r.jobQueued = append(r.jobQueued, entry[JobQueued]{name, h})
	}
	if h, ok := e.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, entry[JobStarted]{name, h})
	}
	if h, ok := e.(JobSucceeded); ok {
		r.jobSucceeded = append(r.jobSucceeded, entry[JobSucceeded]{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, entry[JobFailed]{name, h})
	}
	if h, ok := e.(JobCanceled); ok {
		r.jobCanceled = append(r.jobCanceled, entry[JobCanceled]{name, h})
	}
	if h, ok := e.(UsageWarning); ok {
		r.usageWarning = append(r.usageWarning, entry[UsageWarning]{name, h})
	}
	if h, ok := e.(CacheHit); ok {
		r.cacheHit = append(r.cacheHit, entry[CacheHit]{name, h})
	}
	if h, ok := e.(TaskFired); ok {
		r.taskFired = append(r.taskFired, entry[TaskFired]{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, entry[Shutdown]{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Job event emitters
// ──────────────────────────────────────────────────

// EmitJobQueued notifies all extensions that implement JobQueued.
func (r *Registry) EmitJobQueued(ctx context.Context, j *job.Job) {
	for _, e := range r.jobQueued {
		if err := e.hook.OnJobQueued(ctx, j); err != nil {
			r.logHookError("OnJobQueued", e.name, err)
		}
	}
}

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, j *job.Job) {
	for _, e := range r.jobStarted {
		if err := e.hook.OnJobStarted(ctx, j); err != nil {
			r.logHookError("OnJobStarted", e.name, err)
		}
	}
}

// EmitJobSucceeded notifies all extensions that implement JobSucceeded.
func (r *Registry) EmitJobSucceeded(ctx context.Context, j *job.Job, res *analysis.Result, elapsed time.Duration) {
	for _, e := range r.jobSucceeded {
		if err := e.hook.OnJobSucceeded(ctx, j, res, elapsed); err != nil {
			r.logHookError("OnJobSucceeded", e.name, err)
		}
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, j *job.Job, tag job.FailureTag, jobErr error) {
	for _, e := range r.jobFailed {
		if err := e.hook.OnJobFailed(ctx, j, tag, jobErr); err != nil {
			r.logHookError("OnJobFailed", e.name, err)
		}
	}
}

// EmitJobCanceled notifies all extensions that implement JobCanceled.
func (r *Registry) EmitJobCanceled(ctx context.Context, j *job.Job) {
	for _, e := range r.jobCanceled {
		if err := e.hook.OnJobCanceled(ctx, j); err != nil {
			r.logHookError("OnJobCanceled", e.name, err)
		}
	}
}

// EmitUsageWarning notifies all extensions that implement UsageWarning.
func (r *Registry) EmitUsageWarning(ctx context.Context, j *job.Job, w Warning) {
	for _, e := range r.usageWarning {
		if err := e.hook.OnUsageWarning(ctx, j, w); err != nil {
			r.logHookError("OnUsageWarning", e.name, err)
		}
	}
}

// EmitCacheHit notifies all extensions that implement CacheHit.
func (r *Registry) EmitCacheHit(ctx context.Context, j *job.Job) {
	for _, e := range r.cacheHit {
		if err := e.hook.OnCacheHit(ctx, j); err != nil {
			r.logHookError("OnCacheHit", e.name, err)
		}
	}
}

// ──────────────────────────────────────────────────
// Other event emitters
// ──────────────────────────────────────────────────

// EmitTaskFired notifies all extensions that implement TaskFired.
func (r *Registry) EmitTaskFired(ctx context.Context, task string, elapsed time.Duration, taskErr error) {
	for _, e := range r.taskFired {
		if err := e.hook.OnTaskFired(ctx, task, elapsed, taskErr); err != nil {
			r.logHookError("OnTaskFired", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
