package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/pola2025/zipcheck-sub000/job"
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// isIdemConflict reports a violation of the active idempotency index.
func isIdemConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), "zipcheck_jobs.idem_key")
}

// isDuplicateKey reports any UNIQUE or PRIMARY KEY violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY")
}

func nanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func nullNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().UnixNano(), Valid: true}
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func fromNullNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromNanos(n.Int64)
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// statesArgs renders "?, ?" placeholders and args for an IN clause. An
// empty list means the active states.
func statesArgs(from []job.State) (string, []any) {
	if len(from) == 0 {
		from = job.ActiveStates
	}
	marks := make([]string, len(from))
	args := make([]any, len(from))
	for i, st := range from {
		marks[i] = "?"
		args[i] = string(st)
	}
	return strings.Join(marks, ", "), args
}
