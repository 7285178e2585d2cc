package zipcheck

import "time"

// Config holds the engine-wide defaults applied to every submission.
// Individual submissions may override the budget fields.
type Config struct {
	// Model is the provider model used when a submission names none.
	Model string

	// TokenBudget caps the total tokens spent across every attempt of a
	// single guarded call.
	TokenBudget int

	// USDBudget caps the total cost of a single guarded call.
	USDBudget float64

	// MaxOutputTokens is the per-attempt output cap. Values outside
	// 2000–4000 are clamped.
	MaxOutputTokens int

	// MaxRetries is the number of extra attempts allowed for transient
	// provider errors (429/5xx).
	MaxRetries int

	// AttemptTimeout bounds one provider attempt. Zero means use the
	// preflight recommendation.
	AttemptTimeout time.Duration

	// MaxSteps is the hard ceiling on guarded-call steps.
	MaxSteps int

	// TerminationMarker is the suffix the model appends when it is done.
	TerminationMarker string

	// StopSequences are sent to the provider as stop sequences. Any that
	// occur within TerminationMarker are ignored.
	StopSequences []string

	// Temperature is passed through to the provider.
	Temperature float64

	// WarnTokenRatio emits a usage warning when tokens used exceed this
	// fraction of the token budget.
	WarnTokenRatio float64

	// WarnCostUSD emits a usage warning when the cost of a job exceeds
	// this absolute amount.
	WarnCostUSD float64

	// JobTimeout bounds a whole job across every step and retry. Zero
	// disables it; attempts are still bounded by AttemptTimeout.
	JobTimeout time.Duration

	// StaleJobThreshold is how long a job may stay queued or running
	// before the reaper finalizes it as timed out.
	StaleJobThreshold time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Model:             "gpt-4o-mini",
		TokenBudget:       50_000,
		USDBudget:         2.00,
		MaxOutputTokens:   3000,
		MaxRetries:        2,
		MaxSteps:          6,
		TerminationMarker: "\nEND",
		Temperature:       0.2,
		WarnTokenRatio:    0.8,
		WarnCostUSD:       1.00,
		StaleJobThreshold: 15 * time.Minute,
	}
}
