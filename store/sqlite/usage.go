package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/usage"
)

// AppendUsage persists usage records in one transaction.
func (s *Store) AppendUsage(ctx context.Context, records []*usage.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("zipcheck/sqlite: begin append usage: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	for _, r := range records {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO zipcheck_usage (
				id, job_id, step, model, prompt_tokens, completion_tokens, total_tokens,
				input_cost_usd, output_cost_usd, cost_usd, attempts, duration_ns, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID.String(), r.JobID.String(), r.Step, r.Model,
			r.PromptTokens, r.CompletionTokens, r.TotalTokens,
			r.InputCostUSD, r.OutputCostUSD, r.CostUSD,
			r.Attempts, r.Duration.Nanoseconds(), nanos(r.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("zipcheck/sqlite: append usage: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("zipcheck/sqlite: commit usage: %w", err)
	}
	return nil
}

// ListUsage returns the usage records of a job ordered by step.
func (s *Store) ListUsage(ctx context.Context, jobID id.JobID) ([]*usage.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, step, model, prompt_tokens, completion_tokens, total_tokens,
			input_cost_usd, output_cost_usd, cost_usd, attempts, duration_ns, created_at
		FROM zipcheck_usage
		WHERE job_id = ?
		ORDER BY step ASC, created_at ASC`, jobID.String())
	if err != nil {
		return nil, fmt.Errorf("zipcheck/sqlite: list usage: %w", err)
	}
	defer rows.Close()

	var records []*usage.Record
	for rows.Next() {
		var (
			r          usage.Record
			idStr      string
			jobIDStr   string
			durationNs int64
			createdAt  int64
		)
		err = rows.Scan(
			&idStr, &jobIDStr, &r.Step, &r.Model,
			&r.PromptTokens, &r.CompletionTokens, &r.TotalTokens,
			&r.InputCostUSD, &r.OutputCostUSD, &r.CostUSD,
			&r.Attempts, &durationNs, &createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("zipcheck/sqlite: scan usage row: %w", err)
		}
		if r.ID, err = id.ParseUsageID(idStr); err != nil {
			return nil, fmt.Errorf("zipcheck/sqlite: parse usage id %q: %w", idStr, err)
		}
		if r.JobID, err = id.ParseJobID(jobIDStr); err != nil {
			return nil, fmt.Errorf("zipcheck/sqlite: parse job id %q: %w", jobIDStr, err)
		}
		r.Duration = time.Duration(durationNs)
		r.CreatedAt = fromNanos(createdAt)
		r.UpdatedAt = r.CreatedAt
		records = append(records, &r)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("zipcheck/sqlite: iterate usage rows: %w", err)
	}
	return records, nil
}
