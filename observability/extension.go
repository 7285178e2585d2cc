package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/pola2025/zipcheck-sub000/analysis"
	"github.com/pola2025/zipcheck-sub000/ext"
	"github.com/pola2025/zipcheck-sub000/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension    = (*MetricsExtension)(nil)
	_ ext.JobQueued    = (*MetricsExtension)(nil)
	_ ext.JobStarted   = (*MetricsExtension)(nil)
	_ ext.JobSucceeded = (*MetricsExtension)(nil)
	_ ext.JobFailed    = (*MetricsExtension)(nil)
	_ ext.JobCanceled  = (*MetricsExtension)(nil)
	_ ext.UsageWarning = (*MetricsExtension)(nil)
	_ ext.CacheHit     = (*MetricsExtension)(nil)
	_ ext.TaskFired    = (*MetricsExtension)(nil)
)

const meterName = "github.com/pola2025/zipcheck-sub000/observability"

// MetricsExtension records lifecycle counters through an OTel meter.
type MetricsExtension struct {
	JobQueued    metric.Int64Counter
	JobStarted   metric.Int64Counter
	JobSucceeded metric.Int64Counter
	JobFailed    metric.Int64Counter
	JobCanceled  metric.Int64Counter
	CacheHit     metric.Int64Counter
	UsageWarning metric.Int64Counter
	TaskFired    metric.Int64Counter
	Tokens       metric.Int64Counter
	CostUSD      metric.Float64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the provided
// meter. On instrument errors the OTel API hands back noop instruments.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc)) //nolint:errcheck // noop fallback guaranteed by OTel API contract
		return c
	}
	cost, _ := meter.Float64Counter("zipcheck.cost", //nolint:errcheck // noop fallback guaranteed by OTel API contract
		metric.WithDescription("US dollars spent on provider calls"),
		metric.WithUnit("USD"),
	)
	return &MetricsExtension{
		JobQueued:    counter("zipcheck.job.queued", "Jobs created"),
		JobStarted:   counter("zipcheck.job.started", "Jobs moved to running"),
		JobSucceeded: counter("zipcheck.job.succeeded", "Jobs finished with a validated result"),
		JobFailed:    counter("zipcheck.job.failed", "Jobs finished as failed or timeout"),
		JobCanceled:  counter("zipcheck.job.canceled", "Accepted cancellations"),
		CacheHit:     counter("zipcheck.job.cache_hit", "Submissions answered from a succeeded job"),
		UsageWarning: counter("zipcheck.job.usage_warning", "Jobs that crossed a usage warning threshold"),
		TaskFired:    counter("zipcheck.task.fired", "Scheduled task runs"),
		Tokens:       counter("zipcheck.tokens", "Tokens spent on provider calls"),
		CostUSD:      cost,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobQueued implements ext.JobQueued.
func (m *MetricsExtension) OnJobQueued(ctx context.Context, j *job.Job) error {
	m.JobQueued.Add(ctx, 1, modelAttr(j))
	return nil
}

// OnJobStarted implements ext.JobStarted.
func (m *MetricsExtension) OnJobStarted(ctx context.Context, j *job.Job) error {
	m.JobStarted.Add(ctx, 1, modelAttr(j))
	return nil
}

// OnJobSucceeded implements ext.JobSucceeded.
func (m *MetricsExtension) OnJobSucceeded(ctx context.Context, j *job.Job, _ *analysis.Result, _ time.Duration) error {
	m.JobSucceeded.Add(ctx, 1, modelAttr(j))
	m.recordSpend(ctx, j)
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, j *job.Job, tag job.FailureTag, _ error) error {
	m.JobFailed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", j.Model),
		attribute.String("tag", string(tag)),
	))
	m.recordSpend(ctx, j)
	return nil
}

// OnJobCanceled implements ext.JobCanceled.
func (m *MetricsExtension) OnJobCanceled(ctx context.Context, j *job.Job) error {
	m.JobCanceled.Add(ctx, 1, modelAttr(j))
	return nil
}

// OnUsageWarning implements ext.UsageWarning.
func (m *MetricsExtension) OnUsageWarning(ctx context.Context, j *job.Job, _ ext.Warning) error {
	m.UsageWarning.Add(ctx, 1, modelAttr(j))
	return nil
}

// OnCacheHit implements ext.CacheHit.
func (m *MetricsExtension) OnCacheHit(ctx context.Context, j *job.Job) error {
	m.CacheHit.Add(ctx, 1, modelAttr(j))
	return nil
}

// ── Scheduler hooks ─────────────────────────────────

// OnTaskFired implements ext.TaskFired.
func (m *MetricsExtension) OnTaskFired(ctx context.Context, task string, _ time.Duration, err error) error {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.TaskFired.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task", task),
		attribute.String("status", status),
	))
	return nil
}

func (m *MetricsExtension) recordSpend(ctx context.Context, j *job.Job) {
	attrs := modelAttr(j)
	if j.TokensUsed > 0 {
		m.Tokens.Add(ctx, int64(j.TokensUsed), attrs)
	}
	if j.CostUSD > 0 {
		m.CostUSD.Add(ctx, j.CostUSD, attrs)
	}
}

func modelAttr(j *job.Job) metric.AddOption {
	return metric.WithAttributes(attribute.String("model", j.Model))
}
