package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/pola2025/zipcheck-sub000/job"
)

// Timeout returns middleware that bounds a whole job, across all steps and
// retries, with d. A zero d disables it. When the deadline passes the
// context is canceled and the in-flight attempt fails with
// context.DeadlineExceeded.
func Timeout(logger *slog.Logger, d time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if d > 0 {
			logger.Debug("job timeout set",
				slog.String("job_id", j.ID.String()),
				slog.Duration("timeout", d),
			)
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
		return next(ctx)
	}
}
