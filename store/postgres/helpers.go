package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pola2025/zipcheck-sub000/job"
)

const idemIndex = "zipcheck_jobs_idem_active"

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isDuplicateKey checks if a PostgreSQL error is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// isIdemConflict reports a unique violation on the active idempotency index.
func isIdemConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == idemIndex
	}
	return false
}

func stateStrings(from []job.State) []string {
	if len(from) == 0 {
		from = job.ActiveStates
	}
	out := make([]string, len(from))
	for i, st := range from {
		out[i] = string(st)
	}
	return out
}
