// Package observability provides an OpenTelemetry metrics extension for
// zipcheck. The MetricsExtension implements lifecycle hooks to record
// system-wide counters for queued, started, succeeded, failed, canceled
// and cache-hit jobs, usage warnings, scheduled task runs, and the tokens
// and dollars spent.
//
// For per-execution tracing and metrics, see the middleware package:
// middleware.Tracing() and middleware.Metrics().
package observability
