package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/pola2025/zipcheck-sub000/job"
)

// tracerName is the instrumentation scope name for zipcheck tracing.
const tracerName = "github.com/pola2025/zipcheck-sub000"

// Tracing wraps each job in a span from the global TracerProvider, which
// is a noop until one is installed.
//
// The span carries the job id, requester, subject, model and both budgets.
// A failing job records the error and sets codes.Error.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer is Tracing with an explicit tracer.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		ctx, span := tracer.Start(ctx, "zipcheck.job.execute",
			trace.WithAttributes(
				attribute.String("zipcheck.job.id", j.ID.String()),
				attribute.String("zipcheck.job.requester_id", j.RequesterID),
				attribute.String("zipcheck.job.subject_id", j.SubjectID),
				attribute.String("zipcheck.job.model", j.Model),
				attribute.Int("zipcheck.job.token_budget", j.TokenBudget),
				attribute.Float64("zipcheck.job.usd_budget", j.USDBudget),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
