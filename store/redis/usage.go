package redis

import (
	"context"
	"fmt"
	"sort"

	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/usage"
)

// AppendUsage pushes records onto their jobs' usage Lists in one
// transaction.
func (s *Store) AppendUsage(ctx context.Context, records []*usage.Record) error {
	if len(records) == 0 {
		return nil
	}

	pipe := s.client.TxPipeline()
	for _, r := range records {
		blob, err := encodeUsage(r)
		if err != nil {
			return fmt.Errorf("zipcheck/redis: append usage: %w", err)
		}
		pipe.RPush(ctx, usageKey(r.JobID.String()), blob)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("zipcheck/redis: append usage: %w", err)
	}
	return nil
}

// ListUsage returns the usage records of a job ordered by step.
func (s *Store) ListUsage(ctx context.Context, jobID id.JobID) ([]*usage.Record, error) {
	blobs, err := s.client.LRange(ctx, usageKey(jobID.String()), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zipcheck/redis: list usage: %w", err)
	}

	records := make([]*usage.Record, 0, len(blobs))
	for _, b := range blobs {
		r, decErr := decodeUsage([]byte(b))
		if decErr != nil {
			return nil, fmt.Errorf("zipcheck/redis: list usage: %w", decErr)
		}
		records = append(records, r)
	}
	sort.SliceStable(records, func(i, k int) bool { return records[i].Step < records[k].Step })
	return records, nil
}
