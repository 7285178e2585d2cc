// Package guard runs one guarded call against a text-generation provider:
// a bounded step loop with per-attempt timeouts, retry with backoff for
// transient failures only, hard token and cost budgets checked after
// every attempt, duplicate-output detection, and termination-marker
// handling.
package guard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pola2025/zipcheck-sub000/backoff"
	"github.com/pola2025/zipcheck-sub000/preflight"
	"github.com/pola2025/zipcheck-sub000/pricing"
	"github.com/pola2025/zipcheck-sub000/provider"
)

// StopReason explains why a call stopped.
type StopReason string

const (
	StopEnd         StopReason = "end"
	StopDuplicate   StopReason = "duplicate"
	StopSingle      StopReason = "single"
	StopMaxSteps    StopReason = "max_steps"
	StopTokenBudget StopReason = "token_budget"
	StopUSDBudget   StopReason = "usd_budget"
	StopTimeout     StopReason = "timeout"
	StopAbort       StopReason = "abort"
)

// Defaults applied to zero-valued Params fields.
const (
	DefaultTokenBudget     = 50_000
	DefaultUSDBudget       = 2.00
	DefaultMaxOutputTokens = 3000
	DefaultMaxRetries      = 2
	DefaultAttemptTimeout  = 90 * time.Second
	DefaultMaxSteps        = 6
)

// hashPrefix bounds how much of a response feeds the duplicate digest.
const hashPrefix = 4096

// Aborter reports whether the caller asked to stop.
type Aborter interface {
	Aborted(ctx context.Context) (bool, error)
}

// AbortFunc adapts a function to Aborter.
type AbortFunc func(ctx context.Context) (bool, error)

// Aborted calls f.
func (f AbortFunc) Aborted(ctx context.Context) (bool, error) { return f(ctx) }

// ContinueFunc builds the messages for the next step from the steps so
// far. Returning nil ends the call with StopSingle.
type ContinueFunc func(steps []Step) []provider.Message

// Params configures one call.
type Params struct {
	Messages    []provider.Message
	Model       string
	Temperature float64

	// TokenBudget caps prompt+completion tokens across all attempts.
	TokenBudget int
	// USDBudget caps the cost across all attempts.
	USDBudget float64
	// MaxOutputTokens is the per-attempt output cap, clamped to 2000–4000.
	MaxOutputTokens int
	// Marker is the suffix that signals the model is done. Empty disables
	// marker detection.
	Marker string
	// Stop is passed to the provider as stop sequences. Sequences that
	// occur within Marker are dropped so the marker still comes back.
	Stop []string
	// MaxRetries bounds retries of transient failures per step. Zero
	// means DefaultMaxRetries; negative means none.
	MaxRetries int
	// AttemptTimeout bounds each provider attempt, capped at 180s.
	AttemptTimeout time.Duration
	// MaxSteps is the step ceiling.
	MaxSteps int

	Abort    Aborter
	Continue ContinueFunc
}

func (p Params) withDefaults() Params {
	if p.TokenBudget <= 0 {
		p.TokenBudget = DefaultTokenBudget
	}
	if p.USDBudget <= 0 {
		p.USDBudget = DefaultUSDBudget
	}
	if p.MaxOutputTokens == 0 {
		p.MaxOutputTokens = DefaultMaxOutputTokens
	}
	p.MaxOutputTokens = preflight.ClampOutputTokens(p.MaxOutputTokens)
	switch {
	case p.MaxRetries == 0:
		p.MaxRetries = DefaultMaxRetries
	case p.MaxRetries < 0:
		p.MaxRetries = 0
	}
	if p.AttemptTimeout <= 0 {
		p.AttemptTimeout = DefaultAttemptTimeout
	}
	p.AttemptTimeout = min(p.AttemptTimeout, preflight.MaxTimeout)
	if p.MaxSteps <= 0 {
		p.MaxSteps = DefaultMaxSteps
	}
	p.Stop = stopSequences(p.Stop, p.Marker)
	return p
}

func stopSequences(stop []string, marker string) []string {
	var out []string
	for _, s := range stop {
		if s == "" || (marker != "" && strings.Contains(marker, s)) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Step is the outcome of one successful step.
type Step struct {
	Index            int
	Attempts         int
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             pricing.Breakdown
	Duration         time.Duration
	Text             string
	Hash             string
}

// Result is the outcome of a call. On error it still carries the usage of
// every completed step.
type Result struct {
	Text             string
	StopReason       StopReason
	Model            string
	Steps            []Step
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             pricing.Breakdown
}

// Executor runs guarded calls.
type Executor struct {
	provider provider.Provider
	calc     *pricing.Calculator
	backoff  backoff.Strategy
	sleep    backoff.Sleeper
	logger   *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(s backoff.Strategy) Option {
	return func(e *Executor) { e.backoff = s }
}

// WithSleeper replaces the retry sleep, mainly for tests.
func WithSleeper(s backoff.Sleeper) Option {
	return func(e *Executor) { e.sleep = s }
}

// NewExecutor returns an Executor calling p and pricing usage with calc.
func NewExecutor(p provider.Provider, calc *pricing.Calculator, opts ...Option) *Executor {
	if calc == nil {
		calc = pricing.NewCalculator(nil)
	}
	e := &Executor{
		provider: p,
		calc:     calc,
		backoff:  backoff.DefaultStrategy(),
		sleep:    backoff.Sleep,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// errAborted is returned by attempt when the abort signal fired before a
// retry.
var errAborted = errors.New("zipcheck/guard: aborted")

// Call runs the step loop. The returned Result is never nil once
// parameters are valid, even alongside an error.
func (e *Executor) Call(ctx context.Context, p Params) (*Result, error) {
	if !e.calc.Known(p.Model) {
		_, err := e.calc.Cost(p.Model, 0, 0)
		return nil, err
	}
	p = p.withDefaults()

	res := &Result{Model: p.Model}
	msgs := p.Messages
	var prevHash string

	for step := 1; step <= p.MaxSteps; step++ {
		if e.aborted(ctx, p.Abort) {
			res.StopReason = StopAbort
			return res, nil
		}

		st, err := e.runStep(ctx, p, msgs, step)
		if errors.Is(err, errAborted) {
			res.StopReason = StopAbort
			return res, nil
		}
		if err != nil {
			var te *TimeoutError
			if errors.As(err, &te) {
				res.StopReason = StopTimeout
			}
			return res, err
		}

		res.Steps = append(res.Steps, st)
		res.PromptTokens += st.PromptTokens
		res.CompletionTokens += st.CompletionTokens
		res.TotalTokens += st.TotalTokens
		res.Cost = res.Cost.Add(st.Cost)

		if res.TotalTokens > p.TokenBudget {
			res.StopReason = StopTokenBudget
			return res, &BudgetExceededError{Kind: BudgetTokens, Used: float64(res.TotalTokens), Limit: float64(p.TokenBudget)}
		}
		if res.Cost.Total > p.USDBudget {
			res.StopReason = StopUSDBudget
			return res, &BudgetExceededError{Kind: BudgetUSD, Used: res.Cost.Total, Limit: p.USDBudget}
		}

		if step > 1 && st.Hash == prevHash {
			res.StopReason = StopDuplicate
			return res, nil
		}
		prevHash = st.Hash

		text, done := stripMarker(st.Text, p.Marker)
		res.Text += text
		if done {
			res.StopReason = StopEnd
			return res, nil
		}

		if p.Continue == nil {
			res.StopReason = StopSingle
			return res, nil
		}
		msgs = p.Continue(res.Steps)
		if msgs == nil {
			res.StopReason = StopSingle
			return res, nil
		}
	}

	res.StopReason = StopMaxSteps
	return res, &MaxStepsError{Steps: p.MaxSteps}
}

// runStep performs the attempt loop of one step.
func (e *Executor) runStep(ctx context.Context, p Params, msgs []provider.Message, step int) (Step, error) {
	req := provider.Request{
		Model:           p.Model,
		Messages:        msgs,
		MaxOutputTokens: p.MaxOutputTokens,
		Temperature:     p.Temperature,
		Stop:            p.Stop,
	}

	start := time.Now()
	for attempt := 0; ; attempt++ {
		actx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
		resp, err := e.provider.Complete(actx, req)
		timedOut := errors.Is(actx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			return e.toStep(p, step, attempt+1, time.Since(start), resp)
		}

		if timedOut || errors.Is(err, context.DeadlineExceeded) {
			e.logger.Warn("provider attempt timed out",
				"step", step, "attempt", attempt+1, "timeout", p.AttemptTimeout)
			return Step{}, &TimeoutError{Timeout: p.AttemptTimeout, Step: step, Attempt: attempt + 1}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Step{}, fmt.Errorf("zipcheck/guard: %w", ctxErr)
		}

		if !provider.IsRetryable(err) {
			return Step{}, &ProviderError{Status: provider.StatusCode(err), Attempts: attempt + 1, Err: err}
		}
		if attempt >= p.MaxRetries {
			return Step{}, &ProviderError{Status: provider.StatusCode(err), Attempts: attempt + 1, Transient: true, Err: err}
		}

		if e.aborted(ctx, p.Abort) {
			return Step{}, errAborted
		}

		delay := e.backoff.Delay(attempt + 1)
		e.logger.Info("retrying transient provider error",
			"step", step, "attempt", attempt+1, "status", provider.StatusCode(err), "delay", delay)
		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			return Step{}, fmt.Errorf("zipcheck/guard: backoff: %w", sleepErr)
		}
	}
}

func (e *Executor) toStep(p Params, step, attempts int, d time.Duration, resp *provider.Response) (Step, error) {
	total := resp.TotalTokens
	if total == 0 {
		total = resp.PromptTokens + resp.CompletionTokens
	}
	cost, err := e.calc.Cost(p.Model, resp.PromptTokens, resp.CompletionTokens)
	if err != nil {
		return Step{}, err
	}
	model := resp.Model
	if model == "" {
		model = p.Model
	}
	return Step{
		Index:            step,
		Attempts:         attempts,
		Model:            model,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
		TotalTokens:      total,
		Cost:             cost,
		Duration:         d,
		Text:             resp.Text,
		Hash:             Digest(resp.Text),
	}, nil
}

func (e *Executor) aborted(ctx context.Context, a Aborter) bool {
	if a == nil {
		return false
	}
	ok, err := a.Aborted(ctx)
	if err != nil {
		e.logger.Warn("abort check failed", "error", err)
		return false
	}
	return ok
}

// Digest is the stable hash of the first 4096 bytes of text.
func Digest(text string) string {
	if len(text) > hashPrefix {
		text = text[:hashPrefix]
	}
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// stripMarker removes a trailing marker (ignoring trailing whitespace).
func stripMarker(text, marker string) (string, bool) {
	if marker == "" {
		return text, false
	}
	trimmed := strings.TrimRight(text, " \t\r\n")
	m := strings.TrimRight(marker, " \t\r\n")
	if m == "" || !strings.HasSuffix(trimmed, m) {
		return text, false
	}
	return strings.TrimRight(strings.TrimSuffix(trimmed, m), " \t\r\n"), true
}
