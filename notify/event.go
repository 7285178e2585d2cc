package notify

import (
	"time"

	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/job"
)

// Type classifies a notification.
type Type string

const (
	TypeCompletion Type = "completion"
	TypeThreshold  Type = "threshold"
	TypeError      Type = "error"
	TypeCanceled   Type = "canceled"
)

// Event is one notification.
type Event struct {
	ID    id.EventID     `json:"id"`
	Type  Type           `json:"type"`
	Tag   job.FailureTag `json:"tag,omitempty"`
	JobID id.JobID       `json:"job_id"`
	Data  any            `json:"data"`
	At    time.Time      `json:"at"`
}

// NewEvent stamps a new event.
func NewEvent(t Type, jobID id.JobID, data any) *Event {
	return &Event{
		ID:    id.NewEventID(),
		Type:  t,
		JobID: jobID,
		Data:  data,
		At:    time.Now().UTC(),
	}
}

// ── Default payload types ───────────────────────────

type jobPayload struct {
	JobID       string    `json:"job_id"`
	RequesterID string    `json:"requester_id"`
	SubjectID   string    `json:"subject_id"`
	Status      job.State `json:"status"`
	Model       string    `json:"model"`
	TokensUsed  int       `json:"tokens_used"`
	CostUSD     float64   `json:"cost_usd"`
}

func newJobPayload(j *job.Job) jobPayload {
	return jobPayload{
		JobID:       j.ID.String(),
		RequesterID: j.RequesterID,
		SubjectID:   j.SubjectID,
		Status:      j.Status,
		Model:       j.Model,
		TokensUsed:  j.TokensUsed,
		CostUSD:     j.CostUSD,
	}
}

// CompletionPayload summarizes a succeeded job.
type CompletionPayload struct {
	jobPayload
	OverallScore int    `json:"overall_score"`
	PriceLevel   string `json:"price_level"`
	StopReason   string `json:"stop_reason"`
	ElapsedMs    int64  `json:"elapsed_ms"`
}

// ThresholdPayload describes a usage warning.
type ThresholdPayload struct {
	jobPayload
	TokenBudget int      `json:"token_budget"`
	USDBudget   float64  `json:"usd_budget"`
	Reasons     []string `json:"reasons"`
}

// ErrorPayload describes a failed job.
type ErrorPayload struct {
	jobPayload
	Error string `json:"error"`
}

// CanceledPayload describes a canceled job.
type CanceledPayload struct {
	jobPayload
}
