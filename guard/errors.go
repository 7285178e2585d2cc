package guard

import (
	"context"
	"fmt"
	"time"
)

// BudgetKind names the ceiling a call crossed.
type BudgetKind string

const (
	BudgetTokens BudgetKind = "token"
	BudgetUSD    BudgetKind = "usd"
)

// BudgetExceededError reports a token or cost ceiling crossed after an
// attempt completed. It is fatal for the call.
type BudgetExceededError struct {
	Kind  BudgetKind
	Used  float64
	Limit float64
}

func (e *BudgetExceededError) Error() string {
	if e.Kind == BudgetUSD {
		return fmt.Sprintf("zipcheck/guard: usd budget exceeded: $%.4f > $%.4f", e.Used, e.Limit)
	}
	return fmt.Sprintf("zipcheck/guard: token budget exceeded: %.0f > %.0f", e.Used, e.Limit)
}

// TimeoutError reports a provider attempt that hit its deadline. Timeouts
// are never retried: the provider may already have done the work.
type TimeoutError struct {
	Timeout time.Duration
	Step    int
	Attempt int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("zipcheck/guard: attempt timed out after %s (step %d, attempt %d)", e.Timeout, e.Step, e.Attempt)
}

// Unwrap lets errors.Is match context.DeadlineExceeded.
func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// ProviderError is a fatal provider failure. Transient is true when the
// failure was retryable (429/5xx) and retries ran out.
type ProviderError struct {
	Status    int
	Attempts  int
	Transient bool
	Err       error
}

func (e *ProviderError) Error() string {
	kind := "provider error"
	if e.Transient {
		kind = "transient provider error, retries exhausted"
	}
	return fmt.Sprintf("zipcheck/guard: %s after %d attempt(s): %v", kind, e.Attempts, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// MaxStepsError reports a call that used every step without reaching a
// terminal condition.
type MaxStepsError struct {
	Steps int
}

func (e *MaxStepsError) Error() string {
	return fmt.Sprintf("zipcheck/guard: max steps (%d) exhausted without termination: possible infinite loop", e.Steps)
}
