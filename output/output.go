// Package output stores the model outputs produced by jobs. A job has at
// most one output with Done set, written atomically with the job's
// transition to succeeded.
package output

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/id"
)

// Record is one persisted output of a job.
type Record struct {
	zipcheck.Entity

	ID          id.OutputID     `json:"id"`
	JobID       id.JobID        `json:"job_id"`
	Step        int             `json:"step"`
	Content     json.RawMessage `json:"content"`
	ContentHash string          `json:"content_hash"`
	Done        bool            `json:"done"`
}

// New builds a Record for content and stamps its hash.
func New(jobID id.JobID, step int, content json.RawMessage, done bool) *Record {
	return &Record{
		Entity:      zipcheck.NewEntity(),
		ID:          id.NewOutputID(),
		JobID:       jobID,
		Step:        step,
		Content:     content,
		ContentHash: Hash(content),
		Done:        done,
	}
}

// Hash returns the hex SHA-256 of content.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Store defines the persistence contract for outputs. Outputs are
// inserted together with the job's final transition (see FinalizeJob on
// the composite store); this interface only reads them back.
type Store interface {
	// GetDoneOutput returns the final output of a job, or
	// zipcheck.ErrOutputNotFound.
	GetDoneOutput(ctx context.Context, jobID id.JobID) (*Record, error)

	// ListOutputs returns every output of a job ordered by step.
	ListOutputs(ctx context.Context, jobID id.JobID) ([]*Record, error)
}
