package observability_test

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/pola2025/zipcheck-sub000/analysis"
	"github.com/pola2025/zipcheck-sub000/ext"
	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/job"
	"github.com/pola2025/zipcheck-sub000/observability"
)

func newTestExtension() (*observability.MetricsExtension, *sdkmetric.ManualReader) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	return observability.NewMetricsExtensionWithMeter(mp.Meter("test")), reader
}

func newTestJob() *job.Job {
	return &job.Job{
		ID:         id.NewJobID(),
		SubjectID:  "quote-1",
		Model:      "gpt-4o-mini",
		TokensUsed: 1500,
		CostUSD:    0.25,
	}
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func intSum(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func floatSum(rm metricdata.ResourceMetrics, name string) float64 {
	var total float64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[float64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestMetricsExtension_Name(t *testing.T) {
	e, _ := newTestExtension()
	if e.Name() != "observability-metrics" {
		t.Errorf("expected name %q, got %q", "observability-metrics", e.Name())
	}
}

func TestMetricsExtension_Counters(t *testing.T) {
	e, reader := newTestExtension()
	ctx := context.Background()
	j := newTestJob()

	tests := []struct {
		name   string
		fire   func() error
		metric string
	}{
		{"queued", func() error { return e.OnJobQueued(ctx, j) }, "zipcheck.job.queued"},
		{"started", func() error { return e.OnJobStarted(ctx, j) }, "zipcheck.job.started"},
		{"succeeded", func() error { return e.OnJobSucceeded(ctx, j, &analysis.Result{}, time.Second) }, "zipcheck.job.succeeded"},
		{"failed", func() error { return e.OnJobFailed(ctx, j, job.TagProviderError, errors.New("503")) }, "zipcheck.job.failed"},
		{"canceled", func() error { return e.OnJobCanceled(ctx, j) }, "zipcheck.job.canceled"},
		{"warning", func() error { return e.OnUsageWarning(ctx, j, ext.Warning{}) }, "zipcheck.job.usage_warning"},
		{"cache hit", func() error { return e.OnCacheHit(ctx, j) }, "zipcheck.job.cache_hit"},
		{"task", func() error { return e.OnTaskFired(ctx, "session-sweep", time.Millisecond, nil) }, "zipcheck.task.fired"},
	}
	for _, tt := range tests {
		if err := tt.fire(); err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
	}

	rm := collect(t, reader)
	for _, tt := range tests {
		if got := intSum(rm, tt.metric); got != 1 {
			t.Errorf("%s: %s = %d, want 1", tt.name, tt.metric, got)
		}
	}

	// Succeeded and failed each record spend.
	if got := intSum(rm, "zipcheck.tokens"); got != 3000 {
		t.Errorf("zipcheck.tokens = %d, want 3000", got)
	}
	if got := floatSum(rm, "zipcheck.cost"); got != 0.5 {
		t.Errorf("zipcheck.cost = %v, want 0.5", got)
	}
}

func TestMetricsExtension_ViaRegistry(t *testing.T) {
	e, reader := newTestExtension()
	reg := ext.NewRegistry(nil)
	reg.Register(e)

	ctx := context.Background()
	reg.EmitJobQueued(ctx, newTestJob())
	reg.EmitJobQueued(ctx, newTestJob())

	if got := intSum(collect(t, reader), "zipcheck.job.queued"); got != 2 {
		t.Errorf("zipcheck.job.queued = %d, want 2", got)
	}
}

func TestMetricsExtension_DefaultNoopSafe(t *testing.T) {
	e := observability.NewMetricsExtension()
	if err := e.OnJobQueued(context.Background(), newTestJob()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
