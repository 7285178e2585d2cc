package job

import "time"

// Options carries per-submission overrides of the engine defaults. Zero
// values mean "use the default".
type Options struct {
	// Model is the provider model for this job.
	Model string

	// TokenBudget caps tokens spent across all attempts.
	TokenBudget int

	// USDBudget caps the cost of the job.
	USDBudget float64

	// MaxOutputTokens is the per-attempt output cap (clamped to 2000–4000).
	MaxOutputTokens int

	// MaxRetries is the number of retries for transient provider errors.
	// Negative means no retries.
	MaxRetries int

	// MaxSteps is the guarded-call step ceiling.
	MaxSteps int

	// AttemptTimeout overrides the preflight timeout recommendation.
	AttemptTimeout time.Duration
}

// Option is a functional option for configuring a submission.
type Option func(*Options)

// WithModel sets the provider model.
func WithModel(m string) Option {
	return func(o *Options) {
		o.Model = m
	}
}

// WithTokenBudget sets the token ceiling.
func WithTokenBudget(n int) Option {
	return func(o *Options) {
		o.TokenBudget = n
	}
}

// WithUSDBudget sets the cost ceiling in US dollars.
func WithUSDBudget(usd float64) Option {
	return func(o *Options) {
		o.USDBudget = usd
	}
}

// WithMaxOutputTokens sets the per-attempt output cap.
func WithMaxOutputTokens(n int) Option {
	return func(o *Options) {
		o.MaxOutputTokens = n
	}
}

// WithMaxRetries sets the transient-error retry count.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		o.MaxRetries = n
	}
}

// WithMaxSteps sets the step ceiling.
func WithMaxSteps(n int) Option {
	return func(o *Options) {
		o.MaxSteps = n
	}
}

// WithAttemptTimeout sets a fixed per-attempt timeout.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.AttemptTimeout = d
	}
}
