package sqlite

import (
	"context"
	"fmt"

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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("zipcheck/sqlite: begin finalize: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	marks, stateArgs := statesArgs(nil)
	args := append(jobUpdateArgs(j), j.ID.String())
	args = append(args, stateArgs...)

	res, err := tx.ExecContext(ctx, `
		UPDATE zipcheck_jobs SET `+jobUpdateSet+`
		WHERE id = ? AND status IN (`+marks+`)`, args...)
	if err != nil {
		return fmt.Errorf("zipcheck/sqlite: finalize job: %w", err)
	}
	if err = s.checkAffected(ctx, tx, res, j.ID.String()); err != nil {
		return err
	}

	if out != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO zipcheck_outputs (id, job_id, step, content, content_hash, done, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			out.ID.String(), out.JobID.String(), out.Step, []byte(out.Content),
			out.ContentHash, boolInt(out.Done), nanos(out.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("zipcheck/sqlite: insert output: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("zipcheck/sqlite: commit finalize: %w", err)
	}
	return nil
}

const outputColumns = `id, job_id, step, content, content_hash, done, created_at`

// GetDoneOutput returns the final output of a job.
func (s *Store) GetDoneOutput(ctx context.Context, jobID id.JobID) (*output.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+outputColumns+`
		FROM zipcheck_outputs
		WHERE job_id = ? AND done = 1`, jobID.String())

	o, err := scanOutput(row)
	if err != nil {
		if isNoRows(err) {
			return nil, zipcheck.ErrOutputNotFound
		}
		return nil, fmt.Errorf("zipcheck/sqlite: get done output: %w", err)
	}
	return o, nil
}

// ListOutputs returns every output of a job ordered by step.
func (s *Store) ListOutputs(ctx context.Context, jobID id.JobID) ([]*output.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+outputColumns+`
		FROM zipcheck_outputs
		WHERE job_id = ?
		ORDER BY step ASC`, jobID.String())
	if err != nil {
		return nil, fmt.Errorf("zipcheck/sqlite: list outputs: %w", err)
	}
	defer rows.Close()

	var outs []*output.Record
	for rows.Next() {
		o, scanErr := scanOutput(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("zipcheck/sqlite: scan output row: %w", scanErr)
		}
		outs = append(outs, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("zipcheck/sqlite: iterate output rows: %w", err)
	}
	return outs, nil
}

func scanOutput(row scanner) (*output.Record, error) {
	var (
		o         output.Record
		idStr     string
		jobIDStr  string
		content   []byte
		done      int
		createdAt int64
	)
	if err := row.Scan(&idStr, &jobIDStr, &o.Step, &content, &o.ContentHash, &done, &createdAt); err != nil {
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
	o.Done = done == 1
	o.CreatedAt = fromNanos(createdAt)
	o.UpdatedAt = o.CreatedAt
	return &o, nil
}

