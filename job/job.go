package job

import (
	"time"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/id"
)

// State represents the lifecycle state of a job.
type State string

const (
	// StateQueued means the job was accepted and has not started yet.
	StateQueued State = "queued"
	// StateRunning means the guarded call for the job is in progress.
	StateRunning State = "running"
	// StateSucceeded means a validated output was persisted.
	StateSucceeded State = "succeeded"
	// StateFailed means the job failed and will never be retried.
	StateFailed State = "failed"
	// StateTimeout means a provider attempt timed out.
	StateTimeout State = "timeout"
	// StateCanceled means the job was explicitly canceled.
	StateCanceled State = "canceled"
)

// IsTerminal reports whether no further transition is possible from s.
func (s State) IsTerminal() bool {
	switch s {
	case StateSucceeded, StateFailed, StateTimeout, StateCanceled:
		return true
	default:
		return false
	}
}

// HoldsIdemKey reports whether a job in state s owns its idempotency key.
// Queued and running jobs block new submissions; succeeded jobs are
// returned as cache hits.
func (s State) HoldsIdemKey() bool {
	switch s {
	case StateQueued, StateRunning, StateSucceeded:
		return true
	default:
		return false
	}
}

// ActiveStates are the states a job may leave.
var ActiveStates = []State{StateQueued, StateRunning}

// FailureTag classifies why a job failed, for notifications and metrics.
type FailureTag string

const (
	TagTimeout        FailureTag = "timeout"
	TagBudgetExceeded FailureTag = "budget-exceeded"
	TagParseError     FailureTag = "parse-error"
	TagProviderError  FailureTag = "provider-error"
	TagUnknown        FailureTag = "unknown"
)

// Job is one orchestration request and its lifecycle.
type Job struct {
	zipcheck.Entity

	ID                id.JobID   `json:"id"`
	IdemKey           string     `json:"idem_key"`
	RequesterID       string     `json:"requester_id"`
	SubjectID         string     `json:"subject_id"`
	Status            State      `json:"status"`
	TokenBudget       int        `json:"token_budget"`
	USDBudget         float64    `json:"usd_budget"`
	MaxOutputTokens   int        `json:"max_output_tokens"`
	Model             string     `json:"model"`
	TokensUsed        int        `json:"tokens_used"`
	CostUSD           float64    `json:"cost_usd"`
	StopReason        string     `json:"stop_reason,omitempty"`
	TerminationReason string     `json:"termination_reason,omitempty"`
	AbortRequested    bool       `json:"abort_requested"`
	Request           []byte     `json:"request,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// Duration returns how long the job ran, or zero if it never started or
// has not completed.
func (j *Job) Duration() time.Duration {
	if j.StartedAt == nil || j.CompletedAt == nil {
		return 0
	}
	return j.CompletedAt.Sub(*j.StartedAt)
}
