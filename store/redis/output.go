package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	goredis "github.com/redis/go-redis/v9"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/job"
	"github.com/pola2025/zipcheck-sub000/output"
)

// FinalizeJob moves an active job to its terminal state and appends out in
// the same Lua script.
func (s *Store) FinalizeJob(ctx context.Context, j *job.Job, out *output.Record) error {
	if !j.Status.IsTerminal() {
		return zipcheck.ErrInvalidState
	}

	var (
		blob []byte
		done bool
	)
	if out != nil {
		var err error
		if blob, err = encodeOutput(out); err != nil {
			return fmt.Errorf("zipcheck/redis: finalize job: %w", err)
		}
		done = out.Done
	}
	return s.transition(ctx, j, nil, blob, done)
}

// GetDoneOutput returns the final output of a job.
func (s *Store) GetDoneOutput(ctx context.Context, jobID id.JobID) (*output.Record, error) {
	b, err := s.client.Get(ctx, doneOutputKey(jobID.String())).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, zipcheck.ErrOutputNotFound
		}
		return nil, fmt.Errorf("zipcheck/redis: get done output: %w", err)
	}
	o, err := decodeOutput(b)
	if err != nil {
		return nil, fmt.Errorf("zipcheck/redis: get done output: %w", err)
	}
	return o, nil
}

// ListOutputs returns every output of a job ordered by step.
func (s *Store) ListOutputs(ctx context.Context, jobID id.JobID) ([]*output.Record, error) {
	blobs, err := s.client.LRange(ctx, outputsKey(jobID.String()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zipcheck/redis: list outputs: %w", err)
	}

	outs := make([]*output.Record, 0, len(blobs))
	for _, b := range blobs {
		o, decErr := decodeOutput([]byte(b))
		if decErr != nil {
			return nil, fmt.Errorf("zipcheck/redis: list outputs: %w", decErr)
		}
		outs = append(outs, o)
	}
	sort.SliceStable(outs, func(i, k int) bool { return outs[i].Step < outs[k].Step })
	return outs, nil
}
