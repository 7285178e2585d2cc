package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/job"
)

const jobColumns = `
	id, idem_key, requester_id, subject_id, status,
	token_budget, usd_budget, max_output_tokens, model,
	tokens_used, cost_usd, stop_reason, termination_reason, abort_requested,
	request, started_at, completed_at, created_at, updated_at`

// CreateJob persists a new job. The partial unique index on idem_key makes
// the duplicate check and the insert a single atomic statement.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO zipcheck_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID.String(), j.IdemKey, j.RequesterID, j.SubjectID, string(j.Status),
		j.TokenBudget, j.USDBudget, j.MaxOutputTokens, j.Model,
		j.TokensUsed, j.CostUSD, j.StopReason, j.TerminationReason, boolInt(j.AbortRequested),
		j.Request, nullNanos(j.StartedAt), nullNanos(j.CompletedAt),
		nanos(j.CreatedAt), nanos(j.UpdatedAt),
	)
	if err != nil {
		if isIdemConflict(err) {
			return zipcheck.ErrDuplicateIdemKey
		}
		if isDuplicateKey(err) {
			return zipcheck.ErrJobAlreadyExists
		}
		return fmt.Errorf("zipcheck/sqlite: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return getJob(ctx, s.db, jobID.String())
}

// LatestJobByIdemKey returns the most recently created job with key.
func (s *Store) LatestJobByIdemKey(ctx context.Context, key string) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM zipcheck_jobs
		WHERE idem_key = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1`, key)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, zipcheck.ErrJobNotFound
		}
		return nil, fmt.Errorf("zipcheck/sqlite: latest job by idem key: %w", err)
	}
	return j, nil
}

// TransitionJob persists j if the stored job is in one of the from states.
func (s *Store) TransitionJob(ctx context.Context, j *job.Job, from ...job.State) error {
	marks, stateArgs := statesArgs(from)
	args := append(jobUpdateArgs(j), j.ID.String())
	args = append(args, stateArgs...)

	res, err := s.db.ExecContext(ctx, `
		UPDATE zipcheck_jobs SET `+jobUpdateSet+`
		WHERE id = ? AND status IN (`+marks+`)`, args...)
	if err != nil {
		if isIdemConflict(err) {
			return zipcheck.ErrDuplicateIdemKey
		}
		return fmt.Errorf("zipcheck/sqlite: transition job: %w", err)
	}
	return s.checkAffected(ctx, s.db, res, j.ID.String())
}

// RequestAbort flags a queued or running job and moves it to canceled.
func (s *Store) RequestAbort(ctx context.Context, jobID id.JobID) (bool, error) {
	now := nanos(time.Now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE zipcheck_jobs SET
			abort_requested = 1, status = 'canceled',
			termination_reason = 'canceled',
			completed_at = ?, updated_at = ?
		WHERE id = ? AND status IN ('queued', 'running')`,
		now, now, jobID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("zipcheck/sqlite: request abort: %w", err)
	}
	err = s.checkAffected(ctx, s.db, res, jobID.String())
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, zipcheck.ErrInvalidState):
		return false, nil
	default:
		return false, err
	}
}

// IsAbortRequested reports whether cancellation was requested for a job.
func (s *Store) IsAbortRequested(ctx context.Context, jobID id.JobID) (bool, error) {
	var flag int
	err := s.db.QueryRowContext(ctx,
		`SELECT abort_requested FROM zipcheck_jobs WHERE id = ?`, jobID.String(),
	).Scan(&flag)
	if err != nil {
		if isNoRows(err) {
			return false, zipcheck.ErrJobNotFound
		}
		return false, fmt.Errorf("zipcheck/sqlite: is abort requested: %w", err)
	}
	return flag == 1, nil
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM zipcheck_jobs WHERE 1=1`
	var args []any

	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	if opts.RequesterID != "" {
		query += " AND requester_id = ?"
		args = append(args, opts.RequesterID)
	}

	query += " ORDER BY created_at DESC, rowid DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		query += " LIMIT -1"
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("zipcheck/sqlite: list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching opts.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM zipcheck_jobs WHERE 1=1`
	var args []any

	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	if opts.RequesterID != "" {
		query += " AND requester_id = ?"
		args = append(args, opts.RequesterID)
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("zipcheck/sqlite: count jobs: %w", err)
	}
	return count, nil
}

// ListStaleJobs returns active jobs older than threshold.
func (s *Store) ListStaleJobs(ctx context.Context, threshold time.Duration) ([]*job.Job, error) {
	cutoff := nanos(time.Now().Add(-threshold))
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM zipcheck_jobs
		WHERE status IN ('queued', 'running')
		  AND COALESCE(started_at, created_at) < ?
		ORDER BY created_at ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("zipcheck/sqlite: list stale jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ── helpers ──

const jobUpdateSet = `
	status = ?, tokens_used = ?, cost_usd = ?,
	stop_reason = ?, termination_reason = ?, abort_requested = ?,
	started_at = ?, completed_at = ?, updated_at = ?`

func jobUpdateArgs(j *job.Job) []any {
	return []any{
		string(j.Status), j.TokensUsed, j.CostUSD,
		j.StopReason, j.TerminationReason, boolInt(j.AbortRequested),
		nullNanos(j.StartedAt), nullNanos(j.CompletedAt), nanos(time.Now()),
	}
}

// checkAffected turns a zero-row CAS update into ErrJobNotFound or
// ErrInvalidState.
func (s *Store) checkAffected(ctx context.Context, q queryer, res sql.Result, jobID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("zipcheck/sqlite: rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	err = q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM zipcheck_jobs WHERE id = ?)`, jobID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("zipcheck/sqlite: check job exists: %w", err)
	}
	if !exists {
		return zipcheck.ErrJobNotFound
	}
	return zipcheck.ErrInvalidState
}

func getJob(ctx context.Context, q queryer, jobID string) (*job.Job, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM zipcheck_jobs WHERE id = ?`, jobID)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, zipcheck.ErrJobNotFound
		}
		return nil, fmt.Errorf("zipcheck/sqlite: get job: %w", err)
	}
	return j, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*job.Job, error) {
	var (
		j           job.Job
		idStr       string
		status      string
		abort       int
		startedAt   sql.NullInt64
		completedAt sql.NullInt64
		createdAt   int64
		updatedAt   int64
	)
	err := row.Scan(
		&idStr, &j.IdemKey, &j.RequesterID, &j.SubjectID, &status,
		&j.TokenBudget, &j.USDBudget, &j.MaxOutputTokens, &j.Model,
		&j.TokensUsed, &j.CostUSD, &j.StopReason, &j.TerminationReason, &abort,
		&j.Request, &startedAt, &completedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("zipcheck/sqlite: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID
	j.Status = job.State(status)
	j.AbortRequested = abort == 1
	j.StartedAt = fromNullNanos(startedAt)
	j.CompletedAt = fromNullNanos(completedAt)
	j.CreatedAt = fromNanos(createdAt)
	j.UpdatedAt = fromNanos(updatedAt)
	return &j, nil
}

func collectJobs(rows *sql.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("zipcheck/sqlite: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("zipcheck/sqlite: iterate job rows: %w", err)
	}
	return jobs, nil
}
