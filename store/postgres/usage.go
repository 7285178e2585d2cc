package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/usage"
)

// AppendUsage persists usage records in one batch.
func (s *Store) AppendUsage(ctx context.Context, records []*usage.Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO zipcheck_usage (
				id, job_id, step, model, prompt_tokens, completion_tokens, total_tokens,
				input_cost_usd, output_cost_usd, cost_usd, attempts, duration_ns, created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			r.ID.String(), r.JobID.String(), r.Step, r.Model,
			r.PromptTokens, r.CompletionTokens, r.TotalTokens,
			r.InputCostUSD, r.OutputCostUSD, r.CostUSD,
			r.Attempts, r.Duration.Nanoseconds(), r.CreatedAt,
		)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("zipcheck/postgres: append usage: %w", err)
	}
	return nil
}

// ListUsage returns the usage records of a job ordered by step.
func (s *Store) ListUsage(ctx context.Context, jobID id.JobID) ([]*usage.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, job_id, step, model, prompt_tokens, completion_tokens, total_tokens,
			input_cost_usd, output_cost_usd, cost_usd, attempts, duration_ns, created_at
		FROM zipcheck_usage
		WHERE job_id = $1
		ORDER BY step ASC, created_at ASC`, jobID.String())
	if err != nil {
		return nil, fmt.Errorf("zipcheck/postgres: list usage: %w", err)
	}
	defer rows.Close()

	var records []*usage.Record
	for rows.Next() {
		var (
			r          usage.Record
			idStr      string
			jobIDStr   string
			durationNs int64
		)
		err = rows.Scan(
			&idStr, &jobIDStr, &r.Step, &r.Model,
			&r.PromptTokens, &r.CompletionTokens, &r.TotalTokens,
			&r.InputCostUSD, &r.OutputCostUSD, &r.CostUSD,
			&r.Attempts, &durationNs, &r.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("zipcheck/postgres: scan usage row: %w", err)
		}
		if r.ID, err = id.ParseUsageID(idStr); err != nil {
			return nil, fmt.Errorf("zipcheck/postgres: parse usage id %q: %w", idStr, err)
		}
		if r.JobID, err = id.ParseJobID(jobIDStr); err != nil {
			return nil, fmt.Errorf("zipcheck/postgres: parse job id %q: %w", jobIDStr, err)
		}
		r.Duration = time.Duration(durationNs)
		r.UpdatedAt = r.CreatedAt
		records = append(records, &r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("zipcheck/postgres: iterate usage rows: %w", err)
	}
	return records, nil
}
