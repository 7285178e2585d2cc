package middleware_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/guard"
	mw "github.com/pola2025/zipcheck-sub000/middleware"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("run: %w", zipcheck.ErrJobCanceled), "canceled"},
		{&guard.TimeoutError{}, "timeout"},
		{context.DeadlineExceeded, "timeout"},
		{&guard.BudgetExceededError{Kind: guard.BudgetUSD, Used: 1.2, Limit: 1}, "budget_exceeded"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		if got := mw.Outcome(tt.err); got != tt.want {
			t.Errorf("Outcome(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestMetricsRecordsOutcome(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m := mw.MetricsWithMeter(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	j := newTestJob()

	results := []error{nil, nil, errors.New("boom")}
	for _, res := range results {
		_ = m(context.Background(), j, func(context.Context) error { return res })
	}

	data := collect(t, reader)

	hist, ok := data["zipcheck.job.duration"].(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("duration: unexpected data %T", data["zipcheck.job.duration"])
	}
	var observed uint64
	for _, dp := range hist.DataPoints {
		observed += dp.Count
	}
	if observed != 3 {
		t.Errorf("duration observations = %d, want 3", observed)
	}

	sum, ok := data["zipcheck.job.executions"].(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("executions: unexpected data %T", data["zipcheck.job.executions"])
	}
	byOutcome := map[string]int64{}
	for _, dp := range sum.DataPoints {
		model, _ := dp.Attributes.Value("model")
		if model.AsString() != "gpt-4o-mini" {
			t.Errorf("model attribute = %q", model.AsString())
		}
		outcome, _ := dp.Attributes.Value("outcome")
		byOutcome[outcome.AsString()] += dp.Value
	}
	if byOutcome["ok"] != 2 || byOutcome["error"] != 1 {
		t.Errorf("executions by outcome = %v", byOutcome)
	}
}

func TestMetricsWithoutProvider(t *testing.T) {
	called := false
	err := mw.Metrics()(context.Background(), newTestJob(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("err = %v, called = %v", err, called)
	}
}
