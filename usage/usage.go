// Package usage records the token and cost accounting of guarded calls.
// One Record is written per step of a job; a job's totals are the sum of
// its records.
package usage

import (
	"context"
	"time"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/id"
)

// Record is the usage of one guarded-call step, summed over its attempts.
type Record struct {
	zipcheck.Entity

	ID               id.UsageID    `json:"id"`
	JobID            id.JobID      `json:"job_id"`
	Step             int           `json:"step"`
	Model            string        `json:"model"`
	PromptTokens     int           `json:"prompt_tokens"`
	CompletionTokens int           `json:"completion_tokens"`
	TotalTokens      int           `json:"total_tokens"`
	InputCostUSD     float64       `json:"input_cost_usd"`
	OutputCostUSD    float64       `json:"output_cost_usd"`
	CostUSD          float64       `json:"cost_usd"`
	Attempts         int           `json:"attempts"`
	Duration         time.Duration `json:"duration"`
}

// Store defines the persistence contract for usage records.
type Store interface {
	// AppendUsage persists records in one batch.
	AppendUsage(ctx context.Context, records []*Record) error

	// ListUsage returns the records of a job ordered by step.
	ListUsage(ctx context.Context, jobID id.JobID) ([]*Record, error)
}

// Totals sums tokens and cost across records.
func Totals(records []*Record) (tokens int, costUSD float64) {
	for _, r := range records {
		tokens += r.TotalTokens
		costUSD += r.CostUSD
	}
	return tokens, costUSD
}
