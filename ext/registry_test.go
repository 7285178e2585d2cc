package ext_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/pola2025/zipcheck-sub000/analysis"
	"github.com/pola2025/zipcheck-sub000/ext"
	"github.com/pola2025/zipcheck-sub000/job"
)

// ──────────────────────────────────────────────────
// Test extensions
// ──────────────────────────────────────────────────

// allHooksExt implements every lifecycle hook for testing.
type allHooksExt struct {
	calls []string
}

func (e *allHooksExt) Name() string { return "all-hooks" }

func (e *allHooksExt) OnJobQueued(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobQueued")
	return nil
}

func (e *allHooksExt) OnJobStarted(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobStarted")
	return nil
}

func (e *allHooksExt) OnJobSucceeded(_ context.Context, _ *job.Job, _ *analysis.Result, _ time.Duration) error {
	e.calls = append(e.calls, "OnJobSucceeded")
	return nil
}

func (e *allHooksExt) OnJobFailed(_ context.Context, _ *job.Job, tag job.FailureTag, _ error) error {
	e.calls = append(e.calls, "OnJobFailed:"+string(tag))
	return nil
}

func (e *allHooksExt) OnJobCanceled(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobCanceled")
	return nil
}

func (e *allHooksExt) OnUsageWarning(_ context.Context, _ *job.Job, _ ext.Warning) error {
	e.calls = append(e.calls, "OnUsageWarning")
	return nil
}

func (e *allHooksExt) OnCacheHit(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnCacheHit")
	return nil
}

func (e *allHooksExt) OnTaskFired(_ context.Context, _ string, _ time.Duration, _ error) error {
	e.calls = append(e.calls, "OnTaskFired")
	return nil
}

func (e *allHooksExt) OnShutdown(_ context.Context) error {
	e.calls = append(e.calls, "OnShutdown")
	return nil
}

// queueOnlyExt only implements the queued and succeeded hooks.
type queueOnlyExt struct {
	calls []string
}

func (e *queueOnlyExt) Name() string { return "queue-only" }

func (e *queueOnlyExt) OnJobQueued(_ context.Context, _ *job.Job) error {
	e.calls = append(e.calls, "OnJobQueued")
	return nil
}

func (e *queueOnlyExt) OnJobSucceeded(_ context.Context, _ *job.Job, _ *analysis.Result, _ time.Duration) error {
	e.calls = append(e.calls, "OnJobSucceeded")
	return nil
}

// failingExt returns errors from hooks.
type failingExt struct{}

func (e *failingExt) Name() string { return "failing" }

func (e *failingExt) OnJobQueued(_ context.Context, _ *job.Job) error {
	return errors.New("boom")
}

func (e *failingExt) OnShutdown(_ context.Context) error {
	return errors.New("shutdown boom")
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestRegistry_RegisterDiscoversInterfaces(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	r.Register(&allHooksExt{})

	if got := len(r.Extensions()); got != 1 {
		t.Fatalf("expected 1 extension, got %d", got)
	}
	if got := r.Extensions()[0].Name(); got != "all-hooks" {
		t.Fatalf("expected name 'all-hooks', got %q", got)
	}
}

func TestRegistry_EmitFiresOnlyImplementors(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	qo := &queueOnlyExt{}
	r.Register(all)
	r.Register(qo)

	ctx := context.Background()
	j := &job.Job{SubjectID: "quote-1"}

	r.EmitJobQueued(ctx, j)
	if len(all.calls) != 1 || all.calls[0] != "OnJobQueued" {
		t.Fatalf("all: expected [OnJobQueued], got %v", all.calls)
	}
	if len(qo.calls) != 1 || qo.calls[0] != "OnJobQueued" {
		t.Fatalf("qo: expected [OnJobQueued], got %v", qo.calls)
	}

	// Only all implements OnJobStarted.
	r.EmitJobStarted(ctx, j)
	if len(all.calls) != 2 || all.calls[1] != "OnJobStarted" {
		t.Fatalf("all: expected OnJobStarted as 2nd, got %v", all.calls)
	}
	if len(qo.calls) != 1 {
		t.Fatalf("qo: should still have 1 call, got %v", qo.calls)
	}
}

func TestRegistry_AllJobHooksFire(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	j := &job.Job{SubjectID: "quote-1"}

	r.EmitJobQueued(ctx, j)
	r.EmitJobStarted(ctx, j)
	r.EmitJobSucceeded(ctx, j, &analysis.Result{OverallScore: 80}, time.Second)
	r.EmitJobFailed(ctx, j, job.TagBudgetExceeded, errors.New("1100 > 1000"))
	r.EmitJobCanceled(ctx, j)
	r.EmitUsageWarning(ctx, j, ext.Warning{TokensUsed: 900, TokenBudget: 1000})
	r.EmitCacheHit(ctx, j)

	expected := []string{
		"OnJobQueued", "OnJobStarted", "OnJobSucceeded",
		"OnJobFailed:budget-exceeded", "OnJobCanceled", "OnUsageWarning", "OnCacheHit",
	}
	if len(all.calls) != len(expected) {
		t.Fatalf("expected %d calls, got %d: %v", len(expected), len(all.calls), all.calls)
	}
	for i, want := range expected {
		if all.calls[i] != want {
			t.Errorf("call[%d] = %q, want %q", i, all.calls[i], want)
		}
	}
}

func TestRegistry_TaskAndShutdownHooksFire(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}
	r.Register(all)

	ctx := context.Background()
	r.EmitTaskFired(ctx, "session-sweep", time.Millisecond, nil)
	r.EmitShutdown(ctx)

	if len(all.calls) != 2 {
		t.Fatalf("expected 2 calls, got %d: %v", len(all.calls), all.calls)
	}
	if all.calls[0] != "OnTaskFired" {
		t.Errorf("call[0] = %q, want OnTaskFired", all.calls[0])
	}
	if all.calls[1] != "OnShutdown" {
		t.Errorf("call[1] = %q, want OnShutdown", all.calls[1])
	}
}

func TestRegistry_HookErrorsLoggedNotPropagated(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	all := &allHooksExt{}

	// Register failing first, then all-hooks. Both should be called.
	r.Register(&failingExt{})
	r.Register(all)

	r.EmitJobQueued(context.Background(), &job.Job{})

	if len(all.calls) != 1 || all.calls[0] != "OnJobQueued" {
		t.Fatalf("all: expected [OnJobQueued] despite failing ext, got %v", all.calls)
	}
}

func TestRegistry_EmptyRegistryNoOp(_ *testing.T) {
	r := ext.NewRegistry(nil)
	ctx := context.Background()

	// None of these should panic or error.
	r.EmitJobQueued(ctx, &job.Job{})
	r.EmitJobStarted(ctx, &job.Job{})
	r.EmitJobSucceeded(ctx, &job.Job{}, &analysis.Result{}, time.Second)
	r.EmitJobFailed(ctx, &job.Job{}, job.TagUnknown, errors.New("x"))
	r.EmitJobCanceled(ctx, &job.Job{})
	r.EmitUsageWarning(ctx, &job.Job{}, ext.Warning{})
	r.EmitCacheHit(ctx, &job.Job{})
	r.EmitTaskFired(ctx, "t", 0, nil)
	r.EmitShutdown(ctx)
}

func TestRegistry_MultipleExtensionsOrderPreserved(t *testing.T) {
	r := ext.NewRegistry(slog.Default())
	ext1 := &allHooksExt{}
	ext2 := &allHooksExt{}
	r.Register(ext1)
	r.Register(ext2)

	r.EmitJobQueued(context.Background(), &job.Job{})

	if len(ext1.calls) != 1 {
		t.Errorf("ext1: expected 1 call, got %d", len(ext1.calls))
	}
	if len(ext2.calls) != 1 {
		t.Errorf("ext2: expected 1 call, got %d", len(ext2.calls))
	}
}
