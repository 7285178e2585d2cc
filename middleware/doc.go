// Package middleware provides composable middleware around job execution.
//
// A [Middleware] wraps the handler that runs one job's guarded call.
// Middleware are composed into a chain using [Chain] and applied right to
// left: the first middleware in the slice is the outermost wrapper.
//
//	// logging → recover → handler
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// # Built-in Middleware
//
//   - [Logging]: logs job id, subject, model, duration and outcome
//   - [Recover]: converts panics into a [*PanicError] carrying the stack
//   - [Timeout]: bounds the whole job with a deadline
//   - [Tracing]: wraps execution in an OpenTelemetry span
//   - [Metrics]: records per-job duration and outcome counters
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, j *job.Job, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
