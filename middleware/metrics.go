package middleware

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/guard"
	"github.com/pola2025/zipcheck-sub000/job"
)

// meterName is the instrumentation scope name for zipcheck metrics.
const meterName = "github.com/pola2025/zipcheck-sub000"

// Metrics records per-job duration and outcome with the global
// MeterProvider.
//
// Instruments:
//   - zipcheck.job.duration (Float64Histogram, seconds)
//   - zipcheck.job.executions (Int64Counter)
//
// Both carry the model and an outcome of ok, timeout, budget_exceeded,
// canceled or error.
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter is Metrics with an explicit meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// The OTel API hands back noop instruments alongside any error.
	duration, _ := meter.Float64Histogram(
		"zipcheck.job.duration",
		metric.WithDescription("Duration of job execution in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"zipcheck.job.executions",
		metric.WithDescription("Total number of job executions"),
		metric.WithUnit("{execution}"),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		start := time.Now()
		err := next(ctx)

		attrs := metric.WithAttributes(
			attribute.String("model", j.Model),
			attribute.String("outcome", Outcome(err)),
		)
		duration.Record(ctx, time.Since(start).Seconds(), attrs)
		executions.Add(ctx, 1, attrs)

		return err
	}
}

// Outcome labels a job execution error for metrics.
func Outcome(err error) string {
	var (
		te *guard.TimeoutError
		be *guard.BudgetExceededError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, zipcheck.ErrJobCanceled):
		return "canceled"
	case errors.As(err, &te), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &be):
		return "budget_exceeded"
	default:
		return "error"
	}
}
