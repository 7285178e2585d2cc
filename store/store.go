package store

import (
	"context"

	"github.com/pola2025/zipcheck-sub000/job"
	"github.com/pola2025/zipcheck-sub000/output"
	"github.com/pola2025/zipcheck-sub000/usage"
)

// Store is the aggregate persistence interface.
// Each subsystem store is a composable interface and a single backend
// (memory, sqlite, postgres, redis) implements all of them.
type Store interface {
	job.Store
	usage.Store
	output.Store

	// FinalizeJob moves a queued or running job to the terminal state
	// carried by j and, when out is non-nil, inserts out in the same
	// transaction. It returns zipcheck.ErrInvalidState if the stored job
	// is already terminal (for example canceled while the call ran), in
	// which case nothing is written.
	FinalizeJob(ctx context.Context, j *job.Job, out *output.Record) error

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
