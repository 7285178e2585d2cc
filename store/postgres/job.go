package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/job"
)

const jobColumns = `
	id, idem_key, requester_id, subject_id, status,
	token_budget, usd_budget, max_output_tokens, model,
	tokens_used, cost_usd, stop_reason, termination_reason, abort_requested,
	request, started_at, completed_at, created_at, updated_at`

// CreateJob persists a new job.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO zipcheck_jobs (`+jobColumns+`)
		VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19
		)`,
		j.ID.String(), j.IdemKey, j.RequesterID, j.SubjectID, string(j.Status),
		j.TokenBudget, j.USDBudget, j.MaxOutputTokens, j.Model,
		j.TokensUsed, j.CostUSD, j.StopReason, j.TerminationReason, j.AbortRequested,
		j.Request, j.StartedAt, j.CompletedAt, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isIdemConflict(err) {
			return zipcheck.ErrDuplicateIdemKey
		}
		if isDuplicateKey(err) {
			return zipcheck.ErrJobAlreadyExists
		}
		return fmt.Errorf("zipcheck/postgres: create job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM zipcheck_jobs WHERE id = $1`, jobID.String())

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, zipcheck.ErrJobNotFound
		}
		return nil, fmt.Errorf("zipcheck/postgres: get job: %w", err)
	}
	return j, nil
}

// LatestJobByIdemKey returns the most recently created job with key.
func (s *Store) LatestJobByIdemKey(ctx context.Context, key string) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM zipcheck_jobs
		WHERE idem_key = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, key)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, zipcheck.ErrJobNotFound
		}
		return nil, fmt.Errorf("zipcheck/postgres: latest job by idem key: %w", err)
	}
	return j, nil
}

// TransitionJob persists j if the stored job is in one of the from states.
func (s *Store) TransitionJob(ctx context.Context, j *job.Job, from ...job.State) error {
	tag, err := s.pool.Exec(ctx, transitionSQL, transitionArgs(j, from)...)
	if err != nil {
		if isIdemConflict(err) {
			return zipcheck.ErrDuplicateIdemKey
		}
		return fmt.Errorf("zipcheck/postgres: transition job: %w", err)
	}
	return checkAffected(ctx, s.pool, tag, j.ID.String())
}

// RequestAbort flags a queued or running job and moves it to canceled.
func (s *Store) RequestAbort(ctx context.Context, jobID id.JobID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE zipcheck_jobs SET
			abort_requested = TRUE, status = 'canceled',
			termination_reason = 'canceled',
			completed_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status IN ('queued', 'running')`,
		jobID.String(),
	)
	if err != nil {
		return false, fmt.Errorf("zipcheck/postgres: request abort: %w", err)
	}

	err = checkAffected(ctx, s.pool, tag, jobID.String())
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
	var flag bool
	err := s.pool.QueryRow(ctx,
		`SELECT abort_requested FROM zipcheck_jobs WHERE id = $1`, jobID.String(),
	).Scan(&flag)
	if err != nil {
		if isNoRows(err) {
			return false, zipcheck.ErrJobNotFound
		}
		return false, fmt.Errorf("zipcheck/postgres: is abort requested: %w", err)
	}
	return flag, nil
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM zipcheck_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}
	if opts.RequesterID != "" {
		query += fmt.Sprintf(" AND requester_id = $%d", argIdx)
		args = append(args, opts.RequesterID)
		argIdx++
	}

	query += " ORDER BY created_at DESC, id DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("zipcheck/postgres: list jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	query := `SELECT COUNT(*) FROM zipcheck_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if opts.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(opts.Status))
		argIdx++
	}
	if opts.RequesterID != "" {
		query += fmt.Sprintf(" AND requester_id = $%d", argIdx)
		args = append(args, opts.RequesterID)
	}

	var count int64
	err := s.pool.QueryRow(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("zipcheck/postgres: count jobs: %w", err)
	}
	return count, nil
}

// ListStaleJobs returns queued or running jobs older than threshold.
func (s *Store) ListStaleJobs(ctx context.Context, threshold time.Duration) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM zipcheck_jobs
		WHERE status IN ('queued', 'running')
		  AND COALESCE(started_at, created_at) < $1
		ORDER BY created_at ASC`,
		time.Now().UTC().Add(-threshold),
	)
	if err != nil {
		return nil, fmt.Errorf("zipcheck/postgres: list stale jobs: %w", err)
	}
	defer rows.Close()

	return collectJobs(rows)
}

// ── helpers ──

const transitionSQL = `
	UPDATE zipcheck_jobs SET
		status = $2, tokens_used = $3, cost_usd = $4,
		stop_reason = $5, termination_reason = $6, abort_requested = $7,
		started_at = $8, completed_at = $9, updated_at = NOW()
	WHERE id = $1 AND status = ANY($10)`

func transitionArgs(j *job.Job, from []job.State) []interface{} {
	return []interface{}{
		j.ID.String(), string(j.Status), j.TokensUsed, j.CostUSD,
		j.StopReason, j.TerminationReason, j.AbortRequested,
		j.StartedAt, j.CompletedAt, stateStrings(from),
	}
}

// rowQuerier is satisfied by *pgxpool.Pool and pgx.Tx.
type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// checkAffected turns a zero-row CAS update into ErrJobNotFound or
// ErrInvalidState.
func checkAffected(ctx context.Context, q rowQuerier, tag pgconn.CommandTag, jobID string) error {
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM zipcheck_jobs WHERE id = $1)`, jobID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("zipcheck/postgres: check job exists: %w", err)
	}
	if !exists {
		return zipcheck.ErrJobNotFound
	}
	return zipcheck.ErrInvalidState
}

// scanJob scans a single job row.
func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j      job.Job
		idStr  string
		status string
	)
	err := row.Scan(
		&idStr, &j.IdemKey, &j.RequesterID, &j.SubjectID, &status,
		&j.TokenBudget, &j.USDBudget, &j.MaxOutputTokens, &j.Model,
		&j.TokensUsed, &j.CostUSD, &j.StopReason, &j.TerminationReason, &j.AbortRequested,
		&j.Request, &j.StartedAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsedID, parseErr := id.ParseJobID(idStr)
	if parseErr != nil {
		return nil, fmt.Errorf("zipcheck/postgres: parse job id %q: %w", idStr, parseErr)
	}
	j.ID = parsedID
	j.Status = job.State(status)

	return &j, nil
}

// collectJobs collects all jobs from query rows.
func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("zipcheck/postgres: scan job row: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("zipcheck/postgres: iterate job rows: %w", err)
	}
	return jobs, nil
}
