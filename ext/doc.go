// Package ext defines the extension system for zipcheck.
//
// Extensions are notified of job lifecycle events and can react to them:
// recording metrics, sending notifications, writing audit logs.
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about.
//
// # Implementing an Extension
//
//	type MyExtension struct{}
//
//	func (e *MyExtension) Name() string { return "my-extension" }
//
//	// Opt in to specific hooks by implementing their interfaces.
//	func (e *MyExtension) OnJobSucceeded(ctx context.Context, j *job.Job, res *analysis.Result, elapsed time.Duration) error {
//	    log.Printf("job %s scored %d in %s", j.ID, res.OverallScore, elapsed)
//	    return nil
//	}
//
// # Job Lifecycle Hooks
//
//   - [JobQueued]: a new job was created
//   - [JobStarted]: the guarded call is about to run
//   - [JobSucceeded]: the job finished with a validated result
//   - [JobFailed]: the job reached failed or timeout, with a tag
//   - [JobCanceled]: cancellation was accepted
//   - [UsageWarning]: a finished job crossed a warning threshold
//   - [CacheHit]: a submission was answered from a succeeded job
//
// # Other Hooks
//
//   - [TaskFired]: a scheduled maintenance task ran
//   - [Shutdown]: the process is shutting down gracefully
//
// The [Registry] fans out each event to all registered extensions that
// implement the corresponding hook interface. Hook errors are logged and
// never reach the caller.
package ext
