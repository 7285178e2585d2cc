package orchestrator

import (
	"fmt"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/job"
)

// ConcurrentSubmissionError rejects a submission whose idempotency key is
// held by a job that is still queued or running. No budget was spent.
type ConcurrentSubmissionError struct {
	JobID   id.JobID
	Status  job.State
	IdemKey string
}

func (e *ConcurrentSubmissionError) Error() string {
	return fmt.Sprintf("zipcheck/orchestrator: concurrent submission: job %s is already %s", e.JobID, e.Status)
}

// Unwrap lets errors.Is match zipcheck.ErrDuplicateIdemKey.
func (e *ConcurrentSubmissionError) Unwrap() error { return zipcheck.ErrDuplicateIdemKey }
