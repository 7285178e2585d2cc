package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/pola2025/zipcheck-sub000/job"
)

// PanicError is a recovered panic. Stack is the goroutine stack at the
// point of the panic.
type PanicError struct {
	JobID string
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in job %s: %v", e.JobID, e.Value)
}

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to *PanicError and logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("job handler panicked",
					slog.String("job_id", j.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = &PanicError{JobID: j.ID.String(), Value: r, Stack: stack}
			}
		}()
		return next(ctx)
	}
}
