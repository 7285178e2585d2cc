// Package orchestrator is the entry point for quote analyses. It resolves
// idempotency, drives a job through its lifecycle, runs the guarded call
// through the middleware chain, persists usage and output, and emits
// lifecycle hooks.
//
// A submission flows through:
//
//	validate → idempotency lookup ─┬─ succeeded: cache hit, zero provider calls
//	                               ├─ queued/running: *ConcurrentSubmissionError
//	                               └─ none/failed: create queued → running
//	    → gather context → build prompt → preflight → guarded call
//	    → persist usage → validate result → finalize (succeeded | failed | timeout)
//
// Cancel is cooperative: the job moves to canceled at once, the guarded
// call notices at its next step boundary or retry, and any result that
// arrives afterwards is discarded.
package orchestrator
