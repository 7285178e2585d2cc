package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/analysis"
	"github.com/pola2025/zipcheck-sub000/contextdata"
	"github.com/pola2025/zipcheck-sub000/ext"
	"github.com/pola2025/zipcheck-sub000/guard"
	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/job"
	mw "github.com/pola2025/zipcheck-sub000/middleware"
	"github.com/pola2025/zipcheck-sub000/output"
	"github.com/pola2025/zipcheck-sub000/preflight"
	"github.com/pola2025/zipcheck-sub000/usage"
)

// SubmitOption overrides an engine default for one submission.
type SubmitOption = job.Option

// Meta describes how a Submission was produced.
type Meta struct {
	JobID            id.JobID      `json:"job_id"`
	Model            string        `json:"model"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TokensUsed       int           `json:"tokens_used"`
	CostUSD          float64       `json:"cost_usd"`
	Duration         time.Duration `json:"duration"`
	StopReason       string        `json:"stop_reason,omitempty"`
	CacheHit         bool          `json:"cache_hit"`
}

// Submission is the validated result of a quote analysis.
type Submission struct {
	Result *analysis.Result `json:"result"`
	Meta   Meta             `json:"meta"`
}

// Submit analyzes req. A request whose idempotency key already has a
// succeeded job is answered from the stored output without calling the
// provider; one whose key is held by a queued or running job is rejected
// with *ConcurrentSubmissionError.
func (o *Orchestrator) Submit(ctx context.Context, req *analysis.Request, opts ...SubmitOption) (*Submission, error) {
	if req == nil {
		return nil, &analysis.ValidationError{Subject: "request", Problems: []string{"request is required"}}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	jo := o.resolveOptions(opts)
	if !o.calc.Known(jo.Model) {
		return nil, fmt.Errorf("%w: %s", zipcheck.ErrModelUnknown, jo.Model)
	}

	key := job.GenerateIdemKey(req.IdemFields())
	if sub, err := o.lookup(ctx, key); sub != nil || err != nil {
		return sub, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("zipcheck/orchestrator: encode request: %w", err)
	}

	j := &job.Job{
		Entity:          zipcheck.NewEntity(),
		ID:              id.NewJobID(),
		IdemKey:         key,
		RequesterID:     req.RequesterID,
		SubjectID:       req.SubjectID,
		Status:          job.StateQueued,
		TokenBudget:     jo.TokenBudget,
		USDBudget:       jo.USDBudget,
		MaxOutputTokens: jo.MaxOutputTokens,
		Model:           jo.Model,
		Request:         payload,
	}
	if err := o.store.CreateJob(ctx, j); err != nil {
		if !errors.Is(err, zipcheck.ErrDuplicateIdemKey) {
			return nil, fmt.Errorf("zipcheck/orchestrator: create job: %w", err)
		}
		// Lost the race to a concurrent submission with the same key.
		if sub, lookupErr := o.lookup(ctx, key); sub != nil || lookupErr != nil {
			return sub, lookupErr
		}
		return nil, fmt.Errorf("zipcheck/orchestrator: create job: %w", err)
	}
	o.extensions.EmitJobQueued(ctx, j)

	now := time.Now().UTC()
	j.Status = job.StateRunning
	j.StartedAt = &now
	j.UpdatedAt = now
	if err := o.store.TransitionJob(ctx, j, job.StateQueued); err != nil {
		if errors.Is(err, zipcheck.ErrInvalidState) {
			return nil, fmt.Errorf("zipcheck/orchestrator: job %s: %w", j.ID, zipcheck.ErrJobCanceled)
		}
		return nil, fmt.Errorf("zipcheck/orchestrator: start job: %w", err)
	}
	o.extensions.EmitJobStarted(ctx, j)

	// A running job is bounded by its own timeouts and the abort flag; a
	// caller that goes away must not cut off a call already paid for.
	return o.run(context.WithoutCancel(ctx), j, req, jo)
}

// resolveOptions layers per-submission options over the engine config.
func (o *Orchestrator) resolveOptions(opts []SubmitOption) job.Options {
	jo := job.Options{}
	for _, opt := range opts {
		opt(&jo)
	}
	if jo.Model == "" {
		jo.Model = o.config.Model
	}
	if jo.TokenBudget <= 0 {
		jo.TokenBudget = o.config.TokenBudget
	}
	if jo.USDBudget <= 0 {
		jo.USDBudget = o.config.USDBudget
	}
	if jo.MaxOutputTokens <= 0 {
		jo.MaxOutputTokens = o.config.MaxOutputTokens
	}
	if jo.MaxRetries == 0 {
		jo.MaxRetries = o.config.MaxRetries
		if jo.MaxRetries == 0 {
			jo.MaxRetries = -1
		}
	}
	if jo.MaxSteps <= 0 {
		jo.MaxSteps = o.config.MaxSteps
	}
	if jo.AttemptTimeout <= 0 {
		jo.AttemptTimeout = o.config.AttemptTimeout
	}
	return jo
}

// lookup consults the latest job holding key. It returns a cached
// Submission for a succeeded job, *ConcurrentSubmissionError for an
// active one, and (nil, nil) when a new job may be created.
func (o *Orchestrator) lookup(ctx context.Context, key string) (*Submission, error) {
	prev, err := o.store.LatestJobByIdemKey(ctx, key)
	if errors.Is(err, zipcheck.ErrJobNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("zipcheck/orchestrator: idempotency lookup: %w", err)
	}

	switch prev.Status {
	case job.StateSucceeded:
		return o.cached(ctx, prev)
	case job.StateQueued, job.StateRunning:
		return nil, &ConcurrentSubmissionError{JobID: prev.ID, Status: prev.Status, IdemKey: key}
	default:
		return nil, nil
	}
}

func (o *Orchestrator) cached(ctx context.Context, j *job.Job) (*Submission, error) {
	out, err := o.store.GetDoneOutput(ctx, j.ID)
	if err != nil {
		return nil, fmt.Errorf("zipcheck/orchestrator: cached output for job %s: %w", j.ID, err)
	}
	var res analysis.Result
	if err := json.Unmarshal(out.Content, &res); err != nil {
		return nil, fmt.Errorf("zipcheck/orchestrator: decode cached output for job %s: %w", j.ID, err)
	}

	o.logger.Info("idempotent cache hit", "job_id", j.ID.String(), "subject_id", j.SubjectID)
	o.extensions.EmitCacheHit(ctx, j)

	return &Submission{
		Result: &res,
		Meta: Meta{
			JobID:      j.ID,
			Model:      j.Model,
			TokensUsed: j.TokensUsed,
			CostUSD:    j.CostUSD,
			Duration:   j.Duration(),
			StopReason: j.StopReason,
			CacheHit:   true,
		},
	}, nil
}

// run executes a running job through the middleware chain and finalizes it.
func (o *Orchestrator) run(ctx context.Context, j *job.Job, req *analysis.Request, jo job.Options) (*Submission, error) {
	var (
		gres   *guard.Result
		parsed *analysis.Result
	)

	handler := func(ctx context.Context) error {
		summary := contextdata.Gather(ctx, o.contextData, req, o.logger)
		msgs, err := analysis.BuildMessages(req, summary, o.config.TerminationMarker)
		if err != nil {
			return err
		}

		est := preflight.EstimateMessages(msgs)
		timeout := jo.AttemptTimeout
		if timeout <= 0 {
			timeout = est.Timeout
		}
		o.logger.Debug("preflight",
			"job_id", j.ID.String(),
			"input_tokens", est.InputTokens,
			"recommended_output_tokens", est.OutputTokens,
			"attempt_timeout", timeout,
		)

		var callErr error
		gres, callErr = o.exec.Call(ctx, guard.Params{
			Messages:        msgs,
			Model:           jo.Model,
			Temperature:     o.config.Temperature,
			TokenBudget:     jo.TokenBudget,
			USDBudget:       jo.USDBudget,
			MaxOutputTokens: jo.MaxOutputTokens,
			Marker:          o.config.TerminationMarker,
			Stop:            o.config.StopSequences,
			MaxRetries:      jo.MaxRetries,
			AttemptTimeout:  timeout,
			MaxSteps:        jo.MaxSteps,
			Abort: guard.AbortFunc(func(ctx context.Context) (bool, error) {
				return o.store.IsAbortRequested(ctx, j.ID)
			}),
		})
		if callErr != nil {
			return callErr
		}
		if gres.StopReason == guard.StopAbort {
			return zipcheck.ErrJobCanceled
		}

		parsed, err = analysis.ParseResult(gres.Text)
		return err
	}

	runErr := o.mw(ctx, j, handler)

	if gres != nil {
		o.recordUsage(ctx, j, gres)
	}

	if errors.Is(runErr, zipcheck.ErrJobCanceled) {
		return nil, o.canceled(ctx, j)
	}
	if runErr != nil {
		return nil, o.fail(ctx, j, runErr, partialOutput(j, gres, runErr))
	}

	return o.succeed(ctx, j, gres, parsed)
}

func (o *Orchestrator) recordUsage(ctx context.Context, j *job.Job, res *guard.Result) {
	j.TokensUsed = res.TotalTokens
	j.CostUSD = res.Cost.Total
	j.StopReason = string(res.StopReason)

	if len(res.Steps) == 0 {
		return
	}
	records := make([]*usage.Record, 0, len(res.Steps))
	for _, st := range res.Steps {
		records = append(records, &usage.Record{
			Entity:           zipcheck.NewEntity(),
			ID:               id.NewUsageID(),
			JobID:            j.ID,
			Step:             st.Index,
			Model:            st.Model,
			PromptTokens:     st.PromptTokens,
			CompletionTokens: st.CompletionTokens,
			TotalTokens:      st.TotalTokens,
			InputCostUSD:     st.Cost.Input,
			OutputCostUSD:    st.Cost.Output,
			CostUSD:          st.Cost.Total,
			Attempts:         st.Attempts,
			Duration:         st.Duration,
		})
	}
	if err := o.store.AppendUsage(ctx, records); err != nil {
		o.logger.Error("failed to record usage",
			"job_id", j.ID.String(),
			"error", err,
		)
	}
}

func (o *Orchestrator) succeed(ctx context.Context, j *job.Job, res *guard.Result, parsed *analysis.Result) (*Submission, error) {
	content, err := json.Marshal(parsed)
	if err != nil {
		return nil, o.fail(ctx, j, fmt.Errorf("zipcheck/orchestrator: encode result: %w", err), nil)
	}

	now := time.Now().UTC()
	j.Status = job.StateSucceeded
	j.CompletedAt = &now
	j.UpdatedAt = now

	out := output.New(j.ID, len(res.Steps), content, true)
	if err := o.store.FinalizeJob(ctx, j, out); err != nil {
		return nil, o.finalizeConflict(ctx, j, err)
	}

	if w, ok := o.warning(j); ok {
		o.extensions.EmitUsageWarning(ctx, j, w)
	}
	o.extensions.EmitJobSucceeded(ctx, j, parsed, j.Duration())

	return &Submission{
		Result: parsed,
		Meta: Meta{
			JobID:            j.ID,
			Model:            res.Model,
			PromptTokens:     res.PromptTokens,
			CompletionTokens: res.CompletionTokens,
			TokensUsed:       res.TotalTokens,
			CostUSD:          res.Cost.Total,
			Duration:         j.Duration(),
			StopReason:       string(res.StopReason),
		},
	}, nil
}

// partialOutput keeps the text a budget-failed job already paid for. It
// is stored with Done unset, so it never serves as a cached result.
func partialOutput(j *job.Job, res *guard.Result, cause error) *output.Record {
	var be *guard.BudgetExceededError
	if res == nil || len(res.Steps) == 0 || !errors.As(cause, &be) {
		return nil
	}
	var text strings.Builder
	for _, st := range res.Steps {
		text.WriteString(st.Text)
	}
	content, err := json.Marshal(struct {
		StopReason guard.StopReason `json:"stop_reason"`
		Text       string           `json:"text"`
	}{res.StopReason, text.String()})
	if err != nil {
		return nil
	}
	return output.New(j.ID, len(res.Steps), content, false)
}

func (o *Orchestrator) fail(ctx context.Context, j *job.Job, cause error, partial *output.Record) error {
	tag, state := classify(cause)

	now := time.Now().UTC()
	j.Status = state
	j.CompletedAt = &now
	j.UpdatedAt = now
	j.TerminationReason = cause.Error()
	var pe *mw.PanicError
	if errors.As(cause, &pe) {
		j.TerminationReason += "\n" + pe.Stack
	}

	if err := o.store.FinalizeJob(ctx, j, partial); err != nil {
		return o.finalizeConflict(ctx, j, err)
	}
	o.extensions.EmitJobFailed(ctx, j, tag, cause)

	return fmt.Errorf("zipcheck/orchestrator: job %s %s: %w", j.ID, state, cause)
}

// canceled reports a job whose abort was observed mid-call. The store
// already moved it to canceled when the abort was requested.
func (o *Orchestrator) canceled(ctx context.Context, j *job.Job) error {
	o.logger.Info("job canceled during execution", "job_id", j.ID.String())
	if stored, err := o.store.GetJob(ctx, j.ID); err == nil && !stored.Status.IsTerminal() {
		// Abort signal without a terminal state; settle it here.
		now := time.Now().UTC()
		j.Status = job.StateCanceled
		j.AbortRequested = true
		j.CompletedAt = &now
		j.UpdatedAt = now
		if ferr := o.store.FinalizeJob(ctx, j, nil); ferr != nil {
			o.logger.Warn("failed to finalize canceled job", "job_id", j.ID.String(), "error", ferr)
		}
	}
	return fmt.Errorf("zipcheck/orchestrator: job %s: %w", j.ID, zipcheck.ErrJobCanceled)
}

// finalizeConflict explains a FinalizeJob that found the job already
// terminal. A cancel wins over a late result; anything else (the stale
// reaper, for one) is reported as-is.
func (o *Orchestrator) finalizeConflict(ctx context.Context, j *job.Job, err error) error {
	if !errors.Is(err, zipcheck.ErrInvalidState) {
		return fmt.Errorf("zipcheck/orchestrator: finalize job %s: %w", j.ID, err)
	}
	stored, getErr := o.store.GetJob(ctx, j.ID)
	if getErr == nil && stored.Status == job.StateCanceled {
		o.logger.Info("discarding result of canceled job", "job_id", j.ID.String())
		return fmt.Errorf("zipcheck/orchestrator: job %s: %w", j.ID, zipcheck.ErrJobCanceled)
	}
	status := job.State("unknown")
	if getErr == nil {
		status = stored.Status
	}
	return fmt.Errorf("zipcheck/orchestrator: job %s already %s: %w", j.ID, status, err)
}

func (o *Orchestrator) warning(j *job.Job) (ext.Warning, bool) {
	w := ext.Warning{
		TokensUsed:  j.TokensUsed,
		TokenBudget: j.TokenBudget,
		CostUSD:     j.CostUSD,
		USDBudget:   j.USDBudget,
	}
	if o.config.WarnTokenRatio > 0 && j.TokenBudget > 0 &&
		float64(j.TokensUsed) > o.config.WarnTokenRatio*float64(j.TokenBudget) {
		w.Reasons = append(w.Reasons, fmt.Sprintf("tokens %d exceed %.0f%% of budget %d",
			j.TokensUsed, o.config.WarnTokenRatio*100, j.TokenBudget))
	}
	if o.config.WarnCostUSD > 0 && j.CostUSD > o.config.WarnCostUSD {
		w.Reasons = append(w.Reasons, fmt.Sprintf("cost $%.4f exceeds $%.2f", j.CostUSD, o.config.WarnCostUSD))
	}
	return w, len(w.Reasons) > 0
}

// classify maps a job error to its failure tag and terminal state.
func classify(err error) (job.FailureTag, job.State) {
	var (
		te *guard.TimeoutError
		be *guard.BudgetExceededError
		ve *analysis.ValidationError
		pe *guard.ProviderError
	)
	switch {
	case errors.As(err, &te), errors.Is(err, context.DeadlineExceeded):
		return job.TagTimeout, job.StateTimeout
	case errors.As(err, &be):
		return job.TagBudgetExceeded, job.StateFailed
	case errors.As(err, &ve):
		return job.TagParseError, job.StateFailed
	case errors.As(err, &pe):
		return job.TagProviderError, job.StateFailed
	default:
		return job.TagUnknown, job.StateFailed
	}
}
