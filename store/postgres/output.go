package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/job"
	"github.com/pola2025/zipcheck-sub000/output"
)

// FinalizeJob moves an active job to its terminal state and inserts out in
// the same transaction.
func (s *Store) FinalizeJob(ctx context.Context, j *job.Job, out *output.Record) error {
	if !j.Status.IsTerminal() {
		return zipcheck.ErrInvalidState
	}

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, transitionSQL, transitionArgs(j, nil)...)
		if err != nil {
			return fmt.Errorf("zipcheck/postgres: finalize job: %w", err)
		}
		if err = checkAffected(ctx, tx, tag, j.ID.String()); err != nil {
			return err
		}

		if out == nil {
			return nil
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO zipcheck_outputs (id, job_id, step, content, content_hash, done, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			out.ID.String(), out.JobID.String(), out.Step, []byte(out.Content),
			out.ContentHash, out.Done, out.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("zipcheck/postgres: insert output: %w", err)
		}
		return nil
	})
}

const outputColumns = `id, job_id, step, content, content_hash, done, created_at`

// GetDoneOutput returns the final output of a job.
func (s *Store) GetDoneOutput(ctx context.Context, jobID id.JobID) (*output.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+outputColumns+`
		FROM zipcheck_outputs
		WHERE job_id = $1 AND done`, jobID.String())

	o, err := scanOutput(row)
	if err != nil {
		if isNoRows(err) {
			return nil, zipcheck.ErrOutputNotFound
		}
		return nil, fmt.Errorf("zipcheck/postgres: get done output: %w", err)
	}
	return o, nil
}

// ListOutputs returns every output of a job ordered by step.
func (s *Store) ListOutputs(ctx context.Context, jobID id.JobID) ([]*output.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+outputColumns+`
		FROM zipcheck_outputs
		WHERE job_id = $1
		ORDER BY step ASC`, jobID.String())
	if err != nil {
		return nil, fmt.Errorf("zipcheck/postgres: list outputs: %w", err)
	}
	defer rows.Close()

	var outs []*output.Record
	for rows.Next() {
		o, scanErr := scanOutput(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("zipcheck/postgres: scan output row: %w", scanErr)
		}
		outs = append(outs, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("zipcheck/postgres: iterate output rows: %w", err)
	}
	return outs, nil
}

func scanOutput(row pgx.Row) (*output.Record, error) {
	var (
		o        output.Record
		idStr    string
		jobIDStr string
		content  []byte
	)
	if err := row.Scan(&idStr, &jobIDStr, &o.Step, &content, &o.ContentHash, &o.Done, &o.CreatedAt); err != nil {
		return nil, err
	}

	var err error
	if o.ID, err = id.ParseOutputID(idStr); err != nil {
		return nil, fmt.Errorf("parse output id %q: %w", idStr, err)
	}
	if o.JobID, err = id.ParseJobID(jobIDStr); err != nil {
		return nil, fmt.Errorf("parse job id %q: %w", jobIDStr, err)
	}
	o.Content = content
	o.UpdatedAt = o.CreatedAt
	return &o, nil
}
