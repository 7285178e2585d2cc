package notify

import (
	"context"
	"time"

	"github.com/pola2025/zipcheck-sub000/analysis"
	"github.com/pola2025/zipcheck-sub000/ext"
	"github.com/pola2025/zipcheck-sub000/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*Extension)(nil)
	_ ext.JobSucceeded = (*Extension)(nil)
	_ ext.JobFailed    = (*Extension)(nil)
	_ ext.JobCanceled  = (*Extension)(nil)
	_ ext.UsageWarning = (*Extension)(nil)
)

// Extension maps lifecycle hooks to notification events.
type Extension struct {
	sink    Sink
	enabled map[Type]bool // nil = all enabled
}

// Option configures an Extension.
type Option func(*Extension)

// WithEvents restricts the extension to the listed event types.
func WithEvents(types ...Type) Option {
	return func(x *Extension) {
		x.enabled = make(map[Type]bool, len(types))
		for _, t := range types {
			x.enabled[t] = true
		}
	}
}

// New creates an Extension sending through sink.
func New(sink Sink, opts ...Option) *Extension {
	x := &Extension{sink: sink}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Name implements ext.Extension.
func (x *Extension) Name() string { return "notify" }

// OnJobSucceeded implements ext.JobSucceeded.
func (x *Extension) OnJobSucceeded(ctx context.Context, j *job.Job, res *analysis.Result, elapsed time.Duration) error {
	p := CompletionPayload{
		jobPayload: newJobPayload(j),
		StopReason: j.StopReason,
		ElapsedMs:  elapsed.Milliseconds(),
	}
	if res != nil {
		p.OverallScore = res.OverallScore
		p.PriceLevel = string(res.PriceLevel)
	}
	return x.send(ctx, NewEvent(TypeCompletion, j.ID, p))
}

// OnJobFailed implements ext.JobFailed.
func (x *Extension) OnJobFailed(ctx context.Context, j *job.Job, tag job.FailureTag, jobErr error) error {
	p := ErrorPayload{jobPayload: newJobPayload(j)}
	if jobErr != nil {
		p.Error = jobErr.Error()
	}
	e := NewEvent(TypeError, j.ID, p)
	e.Tag = tag
	return x.send(ctx, e)
}

// OnJobCanceled implements ext.JobCanceled.
func (x *Extension) OnJobCanceled(ctx context.Context, j *job.Job) error {
	return x.send(ctx, NewEvent(TypeCanceled, j.ID, CanceledPayload{jobPayload: newJobPayload(j)}))
}

// OnUsageWarning implements ext.UsageWarning.
func (x *Extension) OnUsageWarning(ctx context.Context, j *job.Job, w ext.Warning) error {
	return x.send(ctx, NewEvent(TypeThreshold, j.ID, ThresholdPayload{
		jobPayload:  newJobPayload(j),
		TokenBudget: w.TokenBudget,
		USDBudget:   w.USDBudget,
		Reasons:     w.Reasons,
	}))
}

func (x *Extension) send(ctx context.Context, e *Event) error {
	if x.enabled != nil && !x.enabled[e.Type] {
		return nil
	}
	return x.sink.Send(ctx, e)
}
