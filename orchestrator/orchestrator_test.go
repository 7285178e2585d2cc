package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/analysis"
	"github.com/pola2025/zipcheck-sub000/ext"
	"github.com/pola2025/zipcheck-sub000/guard"
	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/job"
	"github.com/pola2025/zipcheck-sub000/preflight"
	"github.com/pola2025/zipcheck-sub000/provider"
	"github.com/pola2025/zipcheck-sub000/store/memory"
)

const goodAnswer = `{"overall_score": 70, "price_level": "fair", "summary": "Broadly in line with the market.",
"items": [{"name": "Tiles", "verdict": "ok"}, {"name": "Labor", "verdict": "caution"}]}
END`

func quote() *analysis.Request {
	return &analysis.Request{
		RequesterID: "biz-1",
		SubjectID:   "quote-9",
		Title:       "Bathroom remodel",
		Items: []analysis.Item{
			{Name: "Tiles", Category: "finish", Quantity: 20, Unit: "m2", UnitPrice: 30000, Amount: 600000},
			{Name: "Labor", Category: "labor", Amount: 900000},
		},
		TotalAmount: 1500000,
	}
}

func answer(prompt, completion int) *provider.Response {
	return &provider.Response{Text: goodAnswer, PromptTokens: prompt, CompletionTokens: completion}
}

// countingProvider wraps fn and counts calls.
type countingProvider struct {
	calls atomic.Int32
	fn    func(ctx context.Context, n int) (*provider.Response, error)
}

func (p *countingProvider) Complete(ctx context.Context, _ provider.Request) (*provider.Response, error) {
	n := int(p.calls.Add(1))
	return p.fn(ctx, n)
}

func noSleep(context.Context, time.Duration) error { return nil }

func newTestOrchestrator(t *testing.T, p provider.Provider, opts ...Option) (*Orchestrator, *memory.Store) {
	t.Helper()
	st := memory.New()
	opts = append([]Option{WithGuardOptions(guard.WithSleeper(noSleep))}, opts...)
	o, err := New(st, p, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o, st
}

// recorder captures failure and warning hooks.
type recorder struct {
	mu       sync.Mutex
	tags     []job.FailureTag
	warnings []ext.Warning
	hits     int
	canceled int
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnJobFailed(_ context.Context, _ *job.Job, tag job.FailureTag, _ error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags = append(r.tags, tag)
	return nil
}

func (r *recorder) OnUsageWarning(_ context.Context, _ *job.Job, w ext.Warning) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warnings = append(r.warnings, w)
	return nil
}

func (r *recorder) OnCacheHit(_ context.Context, _ *job.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits++
	return nil
}

func (r *recorder) OnJobCanceled(_ context.Context, _ *job.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.canceled++
	return nil
}

func TestNewRequiresStoreAndProvider(t *testing.T) {
	p := &countingProvider{}
	if _, err := New(nil, p); !errors.Is(err, zipcheck.ErrNoStore) {
		t.Errorf("nil store: err = %v, want ErrNoStore", err)
	}
	if _, err := New(memory.New(), nil); !errors.Is(err, zipcheck.ErrNoProvider) {
		t.Errorf("nil provider: err = %v, want ErrNoProvider", err)
	}
}

func TestSubmitSucceeds(t *testing.T) {
	p := &countingProvider{fn: func(context.Context, int) (*provider.Response, error) {
		return answer(800, 400), nil
	}}
	o, st := newTestOrchestrator(t, p)
	ctx := context.Background()

	sub, err := o.Submit(ctx, quote())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sub.Meta.CacheHit {
		t.Error("first submission reported a cache hit")
	}
	if sub.Result.PriceLevel != analysis.PriceFair {
		t.Errorf("price level = %q, want fair", sub.Result.PriceLevel)
	}
	if sub.Meta.TokensUsed != 1200 {
		t.Errorf("tokens = %d, want 1200", sub.Meta.TokensUsed)
	}
	if sub.Meta.StopReason != string(guard.StopEnd) {
		t.Errorf("stop reason = %q, want %q", sub.Meta.StopReason, guard.StopEnd)
	}

	j, err := st.GetJob(ctx, sub.Meta.JobID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if j.Status != job.StateSucceeded {
		t.Errorf("status = %q, want succeeded", j.Status)
	}
	if j.StartedAt == nil || j.CompletedAt == nil {
		t.Error("timestamps not set")
	}
	if _, err := st.GetDoneOutput(ctx, j.ID); err != nil {
		t.Errorf("GetDoneOutput: %v", err)
	}
}

func TestBudgetExceededFailsJob(t *testing.T) {
	p := &countingProvider{fn: func(context.Context, int) (*provider.Response, error) {
		return answer(600, 500), nil
	}}
	rec := &recorder{}
	o, st := newTestOrchestrator(t, p, WithExtension(rec))
	ctx := context.Background()

	_, err := o.Submit(ctx, quote(), job.WithTokenBudget(1000))
	var be *guard.BudgetExceededError
	if !errors.As(err, &be) {
		t.Fatalf("err = %v, want BudgetExceededError", err)
	}

	jobs, _ := st.ListJobs(ctx, job.ListOpts{})
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d, want 1", len(jobs))
	}
	j := jobs[0]
	if j.Status != job.StateFailed {
		t.Errorf("status = %q, want failed", j.Status)
	}
	if !strings.Contains(j.TerminationReason, "1100 > 1000") {
		t.Errorf("termination reason %q does not mention 1100 > 1000", j.TerminationReason)
	}
	if j.StopReason != string(guard.StopTokenBudget) {
		t.Errorf("stop reason = %q", j.StopReason)
	}

	records, _ := st.ListUsage(ctx, j.ID)
	if len(records) != 1 || records[0].TotalTokens != 1100 {
		t.Errorf("usage = %+v, want one record of 1100 tokens", records)
	}
	if len(rec.tags) != 1 || rec.tags[0] != job.TagBudgetExceeded {
		t.Errorf("failure tags = %v, want [budget-exceeded]", rec.tags)
	}

	outs, _ := st.ListOutputs(ctx, j.ID)
	if len(outs) != 1 || outs[0].Done || !strings.Contains(string(outs[0].Content), "overall_score") {
		t.Errorf("outputs = %+v, want one partial output with the paid-for text", outs)
	}
	if _, err := st.GetDoneOutput(ctx, j.ID); !errors.Is(err, zipcheck.ErrOutputNotFound) {
		t.Errorf("GetDoneOutput err = %v, want ErrOutputNotFound", err)
	}
}

func TestConcurrentSubmissionRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := &countingProvider{fn: func(context.Context, int) (*provider.Response, error) {
		close(started)
		<-release
		return answer(100, 100), nil
	}}
	o, st := newTestOrchestrator(t, p)
	ctx := context.Background()

	type outcome struct {
		sub *Submission
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		sub, err := o.Submit(ctx, quote())
		first <- outcome{sub, err}
	}()
	<-started

	_, err := o.Submit(ctx, quote())
	var cse *ConcurrentSubmissionError
	if !errors.As(err, &cse) {
		t.Fatalf("err = %v, want ConcurrentSubmissionError", err)
	}
	if !errors.Is(err, zipcheck.ErrDuplicateIdemKey) {
		t.Error("ConcurrentSubmissionError does not unwrap to ErrDuplicateIdemKey")
	}
	if cse.Status != job.StateRunning {
		t.Errorf("status = %q, want running", cse.Status)
	}

	close(release)
	res := <-first
	if res.err != nil {
		t.Fatalf("first Submit: %v", res.err)
	}
	if cse.JobID != res.sub.Meta.JobID {
		t.Errorf("rejection names %s, want %s", cse.JobID, res.sub.Meta.JobID)
	}

	n, _ := st.CountJobs(ctx, job.CountOpts{})
	if n != 1 {
		t.Errorf("jobs = %d, want 1", n)
	}
	if got := p.calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
}

func TestIdempotentCacheHit(t *testing.T) {
	p := &countingProvider{fn: func(context.Context, int) (*provider.Response, error) {
		return answer(300, 200), nil
	}}
	rec := &recorder{}
	o, _ := newTestOrchestrator(t, p, WithExtension(rec))
	ctx := context.Background()

	first, err := o.Submit(ctx, quote())
	if err != nil {
		t.Fatalf("first Submit: %v", err)
	}

	// Item order and notes do not change the key.
	again := quote()
	again.Items[0], again.Items[1] = again.Items[1], again.Items[0]
	again.Notes = "please hurry"

	second, err := o.Submit(ctx, again)
	if err != nil {
		t.Fatalf("second Submit: %v", err)
	}
	if !second.Meta.CacheHit {
		t.Error("second submission was not a cache hit")
	}
	if second.Meta.JobID != first.Meta.JobID {
		t.Errorf("job id = %s, want %s", second.Meta.JobID, first.Meta.JobID)
	}
	if second.Result.Summary != first.Result.Summary {
		t.Errorf("summary = %q, want %q", second.Result.Summary, first.Result.Summary)
	}
	if got := p.calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}
	if rec.hits != 1 {
		t.Errorf("cache hit hooks = %d, want 1", rec.hits)
	}
}

func TestAttemptTimeoutNotRetried(t *testing.T) {
	p := &countingProvider{fn: func(ctx context.Context, _ int) (*provider.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	rec := &recorder{}
	o, st := newTestOrchestrator(t, p, WithExtension(rec))
	ctx := context.Background()

	_, err := o.Submit(ctx, quote(), job.WithAttemptTimeout(20*time.Millisecond))
	var te *guard.TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TimeoutError", err)
	}
	if got := p.calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}

	jobs, _ := st.ListJobs(ctx, job.ListOpts{})
	if jobs[0].Status != job.StateTimeout {
		t.Errorf("status = %q, want timeout", jobs[0].Status)
	}
	if len(rec.tags) != 1 || rec.tags[0] != job.TagTimeout {
		t.Errorf("failure tags = %v, want [timeout]", rec.tags)
	}
}

func TestCallerCancelDoesNotCutOffAttempt(t *testing.T) {
	started := make(chan struct{})
	callerGone := make(chan struct{})
	var attemptErr error
	p := &countingProvider{fn: func(ctx context.Context, _ int) (*provider.Response, error) {
		close(started)
		<-callerGone
		attemptErr = ctx.Err()
		return answer(300, 200), nil
	}}
	o, st := newTestOrchestrator(t, p)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(ctx, quote())
		done <- err
	}()

	<-started
	cancel()
	close(callerGone)

	if err := <-done; err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if attemptErr != nil {
		t.Errorf("attempt context ended with the caller: %v", attemptErr)
	}

	bg := context.Background()
	jobs, _ := st.ListJobs(bg, job.ListOpts{})
	if len(jobs) != 1 || jobs[0].Status != job.StateSucceeded {
		t.Fatalf("jobs = %+v, want one succeeded job", jobs)
	}
	if records, _ := st.ListUsage(bg, jobs[0].ID); len(records) != 1 || records[0].TotalTokens != 500 {
		t.Errorf("usage = %+v, want one record of 500 tokens", records)
	}
	if _, err := st.GetDoneOutput(bg, jobs[0].ID); err != nil {
		t.Errorf("GetDoneOutput: %v", err)
	}
}

func TestAttemptTimeoutFromPreflight(t *testing.T) {
	var (
		want      time.Duration
		remaining time.Duration
	)
	p := provider.Func(func(ctx context.Context, req provider.Request) (*provider.Response, error) {
		want = preflight.EstimateMessages(req.Messages).Timeout
		if deadline, ok := ctx.Deadline(); ok {
			remaining = time.Until(deadline)
		}
		return answer(300, 200), nil
	})
	o, _ := newTestOrchestrator(t, p)

	if _, err := o.Submit(context.Background(), quote()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if remaining > want || remaining < want-5*time.Second {
		t.Errorf("attempt deadline in %s, want about %s", remaining, want)
	}
}

func TestTransientErrorsRetried(t *testing.T) {
	p := &countingProvider{fn: func(_ context.Context, n int) (*provider.Response, error) {
		if n <= 2 {
			return nil, &provider.StatusError{Status: 503, Body: "overloaded"}
		}
		return answer(700, 300), nil
	}}
	o, st := newTestOrchestrator(t, p)
	ctx := context.Background()

	sub, err := o.Submit(ctx, quote())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := p.calls.Load(); got != 3 {
		t.Errorf("provider calls = %d, want 3", got)
	}

	records, _ := st.ListUsage(ctx, sub.Meta.JobID)
	if len(records) != 1 {
		t.Fatalf("usage records = %d, want 1", len(records))
	}
	if records[0].TotalTokens != 1000 {
		t.Errorf("tokens = %d, want 1000 from the successful attempt only", records[0].TotalTokens)
	}
	if records[0].Attempts != 3 {
		t.Errorf("attempts = %d, want 3", records[0].Attempts)
	}
}

func TestCancelDiscardsLateResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	p := &countingProvider{fn: func(context.Context, int) (*provider.Response, error) {
		close(started)
		<-release
		return answer(100, 100), nil
	}}
	rec := &recorder{}
	o, st := newTestOrchestrator(t, p, WithExtension(rec))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := o.Submit(ctx, quote())
		done <- err
	}()
	<-started

	jobs, _ := st.ListJobs(ctx, job.ListOpts{})
	jobID := jobs[0].ID
	if err := o.Cancel(ctx, jobID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	close(release)

	if err := <-done; !errors.Is(err, zipcheck.ErrJobCanceled) {
		t.Fatalf("Submit err = %v, want ErrJobCanceled", err)
	}

	j, _ := st.GetJob(ctx, jobID)
	if j.Status != job.StateCanceled {
		t.Errorf("status = %q, want canceled", j.Status)
	}
	outs, _ := st.ListOutputs(ctx, jobID)
	if len(outs) != 0 {
		t.Errorf("outputs = %d, want none", len(outs))
	}
	if rec.canceled != 1 {
		t.Errorf("canceled hooks = %d, want 1", rec.canceled)
	}

	// Canceling a terminal job is a no-op.
	if err := o.Cancel(ctx, jobID); err != nil {
		t.Errorf("second Cancel: %v", err)
	}
	if rec.canceled != 1 {
		t.Errorf("canceled hooks = %d after no-op cancel, want 1", rec.canceled)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	o, _ := newTestOrchestrator(t, &countingProvider{})
	err := o.Cancel(context.Background(), id.NewJobID())
	if !errors.Is(err, zipcheck.ErrJobNotFound) {
		t.Errorf("err = %v, want ErrJobNotFound", err)
	}
}

func TestFailedJobReleasesKey(t *testing.T) {
	p := &countingProvider{fn: func(_ context.Context, n int) (*provider.Response, error) {
		if n == 1 {
			return &provider.Response{Text: "I cannot help with that.\nEND", PromptTokens: 50, CompletionTokens: 10}, nil
		}
		return answer(100, 100), nil
	}}
	rec := &recorder{}
	o, _ := newTestOrchestrator(t, p, WithExtension(rec))
	ctx := context.Background()

	_, err := o.Submit(ctx, quote())
	var ve *analysis.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if len(rec.tags) != 1 || rec.tags[0] != job.TagParseError {
		t.Errorf("failure tags = %v, want [parse-error]", rec.tags)
	}

	sub, err := o.Submit(ctx, quote())
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if sub.Meta.CacheHit {
		t.Error("resubmission after failure was served from cache")
	}
}

func TestSubmitRejectsBeforeCreatingJob(t *testing.T) {
	tests := []struct {
		name string
		req  func() *analysis.Request
		opts []job.Option
		want func(error) bool
	}{
		{
			name: "nil request",
			req:  func() *analysis.Request { return nil },
			want: func(err error) bool { var ve *analysis.ValidationError; return errors.As(err, &ve) },
		},
		{
			name: "invalid request",
			req: func() *analysis.Request {
				r := quote()
				r.Items = nil
				return r
			},
			want: func(err error) bool { var ve *analysis.ValidationError; return errors.As(err, &ve) },
		},
		{
			name: "unknown model",
			req:  quote,
			opts: []job.Option{job.WithModel("no-such-model")},
			want: func(err error) bool { return errors.Is(err, zipcheck.ErrModelUnknown) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &countingProvider{}
			o, st := newTestOrchestrator(t, p)
			_, err := o.Submit(context.Background(), tt.req(), tt.opts...)
			if !tt.want(err) {
				t.Fatalf("unexpected err %v", err)
			}
			n, _ := st.CountJobs(context.Background(), job.CountOpts{})
			if n != 0 {
				t.Errorf("jobs = %d, want 0", n)
			}
			if p.calls.Load() != 0 {
				t.Error("provider was called")
			}
		})
	}
}

func TestUsageWarning(t *testing.T) {
	p := &countingProvider{fn: func(context.Context, int) (*provider.Response, error) {
		return answer(700, 200), nil
	}}
	rec := &recorder{}
	o, _ := newTestOrchestrator(t, p, WithExtension(rec))

	if _, err := o.Submit(context.Background(), quote(), job.WithTokenBudget(1000)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(rec.warnings) != 1 {
		t.Fatalf("warnings = %d, want 1", len(rec.warnings))
	}
	w := rec.warnings[0]
	if w.TokensUsed != 900 || w.TokenBudget != 1000 {
		t.Errorf("warning = %+v", w)
	}
}

func TestGetReport(t *testing.T) {
	p := &countingProvider{fn: func(context.Context, int) (*provider.Response, error) {
		return answer(100, 100), nil
	}}
	o, _ := newTestOrchestrator(t, p)
	ctx := context.Background()

	sub, err := o.Submit(ctx, quote())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	r, err := o.Get(ctx, sub.Meta.JobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(r.Usage) != 1 || len(r.Outputs) != 1 {
		t.Errorf("usage = %d outputs = %d, want 1 and 1", len(r.Usage), len(r.Outputs))
	}
	if r.Result == nil || r.Result.OverallScore != 70 {
		t.Errorf("result = %+v", r.Result)
	}

	if _, err := o.Get(ctx, id.NewJobID()); !errors.Is(err, zipcheck.ErrJobNotFound) {
		t.Errorf("missing job: err = %v, want ErrJobNotFound", err)
	}
}

func TestReapStale(t *testing.T) {
	cfg := zipcheck.DefaultConfig()
	cfg.StaleJobThreshold = time.Minute
	rec := &recorder{}
	o, st := newTestOrchestrator(t, &countingProvider{}, WithConfig(cfg), WithExtension(rec))
	ctx := context.Background()

	old := time.Now().UTC().Add(-time.Hour)
	stale := &job.Job{Entity: zipcheck.NewEntity(), ID: id.NewJobID(), Status: job.StateRunning, StartedAt: &old, Model: "gpt-4o-mini"}
	fresh := &job.Job{Entity: zipcheck.NewEntity(), ID: id.NewJobID(), Status: job.StateQueued, Model: "gpt-4o-mini"}
	for _, j := range []*job.Job{stale, fresh} {
		if err := st.CreateJob(ctx, j); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	n, err := o.ReapStale(ctx)
	if err != nil {
		t.Fatalf("ReapStale: %v", err)
	}
	if n != 1 {
		t.Errorf("reaped = %d, want 1", n)
	}
	got, _ := st.GetJob(ctx, stale.ID)
	if got.Status != job.StateTimeout {
		t.Errorf("stale status = %q, want timeout", got.Status)
	}
	got, _ = st.GetJob(ctx, fresh.ID)
	if got.Status != job.StateQueued {
		t.Errorf("fresh status = %q, want queued", got.Status)
	}
	if len(rec.tags) != 1 || rec.tags[0] != job.TagTimeout {
		t.Errorf("failure tags = %v, want [timeout]", rec.tags)
	}
}
