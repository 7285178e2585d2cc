// Package storetest is a conformance suite run by every store.Store
// backend.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/job"
	"github.com/pola2025/zipcheck-sub000/output"
	"github.com/pola2025/zipcheck-sub000/store"
	"github.com/pola2025/zipcheck-sub000/usage"
)

// Factory returns a fresh, migrated, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// NewJob returns a queued job with the given idempotency key.
func NewJob(key string) *job.Job {
	return &job.Job{
		Entity:          zipcheck.NewEntity(),
		ID:              id.NewJobID(),
		IdemKey:         key,
		RequesterID:     "biz_1",
		SubjectID:       "quote_1",
		Status:          job.StateQueued,
		TokenBudget:     50_000,
		USDBudget:       2,
		MaxOutputTokens: 3000,
		Model:           "gpt-4o-mini",
		Request:         []byte(`{"title":"kitchen"}`),
	}
}

// Run executes the conformance suite against the backend built by f.
func Run(t *testing.T, f Factory) {
	t.Helper()

	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"CreateAndGet", testCreateAndGet},
		{"GetMissing", testGetMissing},
		{"DuplicateID", testDuplicateID},
		{"IdemKeyActive", testIdemKeyActive},
		{"IdemKeyReleasedAfterFailure", testIdemKeyReleasedAfterFailure},
		{"IdemKeyHeldBySuccess", testIdemKeyHeldBySuccess},
		{"ConcurrentCreate", testConcurrentCreate},
		{"TransitionCAS", testTransitionCAS},
		{"RequestAbort", testRequestAbort},
		{"FinalizeWithOutput", testFinalizeWithOutput},
		{"FinalizeAfterCancel", testFinalizeAfterCancel},
		{"Usage", testUsage},
		{"ListAndCount", testListAndCount},
		{"StaleJobs", testStaleJobs},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := f(t)
			tt.fn(t, s)
		})
	}
}

func mustCreate(t *testing.T, s store.Store, j *job.Job) {
	t.Helper()
	if err := s.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
}

func mustFinalize(t *testing.T, s store.Store, j *job.Job, state job.State, out *output.Record) {
	t.Helper()
	now := time.Now().UTC()
	j.Status = state
	j.CompletedAt = &now
	if err := s.FinalizeJob(context.Background(), j, out); err != nil {
		t.Fatalf("FinalizeJob(%s): %v", state, err)
	}
}

func testCreateAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob("key-get")
	mustCreate(t, s, j)

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.ID.String() != j.ID.String() {
		t.Errorf("ID = %s, want %s", got.ID, j.ID)
	}
	if got.Status != job.StateQueued {
		t.Errorf("Status = %s, want queued", got.Status)
	}
	if got.IdemKey != "key-get" || got.RequesterID != "biz_1" || got.Model != "gpt-4o-mini" {
		t.Errorf("fields not round-tripped: %+v", got)
	}
	if got.TokenBudget != 50_000 || got.USDBudget != 2 || got.MaxOutputTokens != 3000 {
		t.Errorf("budgets not round-tripped: %+v", got)
	}
	if string(got.Request) != `{"title":"kitchen"}` {
		t.Errorf("Request = %s", got.Request)
	}
	if got.StartedAt != nil || got.CompletedAt != nil {
		t.Error("expected nil StartedAt and CompletedAt")
	}
	if got.CreatedAt.Sub(j.CreatedAt).Abs() > time.Millisecond {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, j.CreatedAt)
	}
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.GetJob(context.Background(), id.NewJobID())
	if !errors.Is(err, zipcheck.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
	_, err = s.LatestJobByIdemKey(context.Background(), "nope")
	if !errors.Is(err, zipcheck.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound for idem key, got %v", err)
	}
}

func testDuplicateID(t *testing.T, s store.Store) {
	j := NewJob("key-a")
	mustCreate(t, s, j)

	dup := NewJob("key-b")
	dup.ID = j.ID
	err := s.CreateJob(context.Background(), dup)
	if !errors.Is(err, zipcheck.ErrJobAlreadyExists) {
		t.Fatalf("expected ErrJobAlreadyExists, got %v", err)
	}
}

func testIdemKeyActive(t *testing.T, s store.Store) {
	ctx := context.Background()
	first := NewJob("key-active")
	mustCreate(t, s, first)

	err := s.CreateJob(ctx, NewJob("key-active"))
	if !errors.Is(err, zipcheck.ErrDuplicateIdemKey) {
		t.Fatalf("queued: expected ErrDuplicateIdemKey, got %v", err)
	}

	now := time.Now().UTC()
	first.Status = job.StateRunning
	first.StartedAt = &now
	if err = s.TransitionJob(ctx, first, job.StateQueued); err != nil {
		t.Fatalf("TransitionJob: %v", err)
	}
	err = s.CreateJob(ctx, NewJob("key-active"))
	if !errors.Is(err, zipcheck.ErrDuplicateIdemKey) {
		t.Fatalf("running: expected ErrDuplicateIdemKey, got %v", err)
	}
}

func testIdemKeyReleasedAfterFailure(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, state := range []job.State{job.StateFailed, job.StateTimeout, job.StateCanceled} {
		key := "key-release-" + string(state)
		first := NewJob(key)
		mustCreate(t, s, first)
		mustFinalize(t, s, first, state, nil)

		second := NewJob(key)
		if err := s.CreateJob(ctx, second); err != nil {
			t.Fatalf("%s: resubmission rejected: %v", state, err)
		}

		latest, err := s.LatestJobByIdemKey(ctx, key)
		if err != nil {
			t.Fatalf("LatestJobByIdemKey: %v", err)
		}
		if latest.ID.String() != second.ID.String() {
			t.Errorf("%s: latest = %s, want %s", state, latest.ID, second.ID)
		}
	}
}

func testIdemKeyHeldBySuccess(t *testing.T, s store.Store) {
	first := NewJob("key-done")
	mustCreate(t, s, first)
	mustFinalize(t, s, first, job.StateSucceeded, output.New(first.ID, 1, json.RawMessage(`{}`), true))

	err := s.CreateJob(context.Background(), NewJob("key-done"))
	if !errors.Is(err, zipcheck.ErrDuplicateIdemKey) {
		t.Fatalf("expected ErrDuplicateIdemKey, got %v", err)
	}
}

func testConcurrentCreate(t *testing.T, s store.Store) {
	const n = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
		dups    int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.CreateJob(context.Background(), NewJob("key-race"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, zipcheck.ErrDuplicateIdemKey):
				dups++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if created != 1 || dups != n-1 {
		t.Fatalf("created=%d dups=%d, want 1 and %d", created, dups, n-1)
	}
}

func testTransitionCAS(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob("key-cas")
	mustCreate(t, s, j)

	now := time.Now().UTC()
	j.Status = job.StateRunning
	j.StartedAt = &now
	if err := s.TransitionJob(ctx, j, job.StateQueued); err != nil {
		t.Fatalf("queued→running: %v", err)
	}

	err := s.TransitionJob(ctx, j, job.StateQueued)
	if !errors.Is(err, zipcheck.ErrInvalidState) {
		t.Fatalf("second queued→running: expected ErrInvalidState, got %v", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != job.StateRunning || got.StartedAt == nil {
		t.Errorf("got status %s started %v", got.Status, got.StartedAt)
	}

	missing := NewJob("key-missing")
	if err := s.TransitionJob(ctx, missing, job.StateQueued); !errors.Is(err, zipcheck.ErrJobNotFound) {
		t.Errorf("missing job: expected ErrJobNotFound, got %v", err)
	}
}

func testRequestAbort(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob("key-abort")
	mustCreate(t, s, j)

	changed, err := s.RequestAbort(ctx, j.ID)
	if err != nil || !changed {
		t.Fatalf("RequestAbort = %v, %v; want true, nil", changed, err)
	}
	aborted, err := s.IsAbortRequested(ctx, j.ID)
	if err != nil || !aborted {
		t.Fatalf("IsAbortRequested = %v, %v", aborted, err)
	}
	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != job.StateCanceled || got.CompletedAt == nil {
		t.Errorf("status %s completed %v, want canceled with timestamp", got.Status, got.CompletedAt)
	}

	changed, err = s.RequestAbort(ctx, j.ID)
	if err != nil || changed {
		t.Fatalf("second RequestAbort = %v, %v; want false, nil", changed, err)
	}

	done := NewJob("key-abort-done")
	mustCreate(t, s, done)
	mustFinalize(t, s, done, job.StateSucceeded, nil)
	changed, err = s.RequestAbort(ctx, done.ID)
	if err != nil || changed {
		t.Fatalf("abort succeeded job = %v, %v; want false, nil", changed, err)
	}
	got, _ = s.GetJob(ctx, done.ID) //nolint:errcheck // checked above
	if got.Status != job.StateSucceeded || got.AbortRequested {
		t.Errorf("terminal job mutated: %+v", got)
	}

	if _, err = s.RequestAbort(ctx, id.NewJobID()); !errors.Is(err, zipcheck.ErrJobNotFound) {
		t.Errorf("missing job: expected ErrJobNotFound, got %v", err)
	}
}

func testFinalizeWithOutput(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob("key-final")
	mustCreate(t, s, j)

	_, err := s.GetDoneOutput(ctx, j.ID)
	if !errors.Is(err, zipcheck.ErrOutputNotFound) {
		t.Fatalf("expected ErrOutputNotFound before finalize, got %v", err)
	}

	content := json.RawMessage(`{"overall_score":82}`)
	j.TokensUsed = 1234
	j.CostUSD = 0.0042
	j.StopReason = "end"
	mustFinalize(t, s, j, job.StateSucceeded, output.New(j.ID, 2, content, true))

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != job.StateSucceeded || got.TokensUsed != 1234 || got.StopReason != "end" {
		t.Errorf("job not finalized: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("expected CompletedAt")
	}

	out, err := s.GetDoneOutput(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetDoneOutput: %v", err)
	}
	var decoded map[string]int
	if err = json.Unmarshal(out.Content, &decoded); err != nil || decoded["overall_score"] != 82 {
		t.Errorf("content = %s (%v)", out.Content, err)
	}
	if out.ContentHash != output.Hash(content) || out.Step != 2 || !out.Done {
		t.Errorf("output fields = %+v", out)
	}

	outs, err := s.ListOutputs(ctx, j.ID)
	if err != nil || len(outs) != 1 {
		t.Fatalf("ListOutputs = %d, %v", len(outs), err)
	}

	err = s.FinalizeJob(ctx, j, nil)
	if !errors.Is(err, zipcheck.ErrInvalidState) {
		t.Fatalf("refinalize: expected ErrInvalidState, got %v", err)
	}
}

func testFinalizeAfterCancel(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob("key-race-cancel")
	mustCreate(t, s, j)

	if _, err := s.RequestAbort(ctx, j.ID); err != nil {
		t.Fatalf("RequestAbort: %v", err)
	}

	now := time.Now().UTC()
	j.Status = job.StateSucceeded
	j.CompletedAt = &now
	err := s.FinalizeJob(ctx, j, output.New(j.ID, 1, json.RawMessage(`{}`), true))
	if !errors.Is(err, zipcheck.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}

	got, err := s.GetJob(ctx, j.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != job.StateCanceled {
		t.Errorf("status = %s, want canceled", got.Status)
	}
	if _, err = s.GetDoneOutput(ctx, j.ID); !errors.Is(err, zipcheck.ErrOutputNotFound) {
		t.Errorf("output persisted for canceled job: %v", err)
	}
}

func testUsage(t *testing.T, s store.Store) {
	ctx := context.Background()
	j := NewJob("key-usage")
	mustCreate(t, s, j)

	records := []*usage.Record{
		{Entity: zipcheck.NewEntity(), ID: id.NewUsageID(), JobID: j.ID, Step: 2, Model: "gpt-4o-mini", PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150, CostUSD: 0.25, Attempts: 1, Duration: 2 * time.Second},
		{Entity: zipcheck.NewEntity(), ID: id.NewUsageID(), JobID: j.ID, Step: 1, Model: "gpt-4o-mini", PromptTokens: 1000, CompletionTokens: 200, TotalTokens: 1200, CostUSD: 0.5, Attempts: 2, Duration: time.Second},
	}
	if err := s.AppendUsage(ctx, records); err != nil {
		t.Fatalf("AppendUsage: %v", err)
	}

	got, err := s.ListUsage(ctx, j.ID)
	if err != nil {
		t.Fatalf("ListUsage: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Step != 1 || got[1].Step != 2 {
		t.Errorf("not ordered by step: %d, %d", got[0].Step, got[1].Step)
	}
	if got[0].Attempts != 2 || got[0].Duration != time.Second || got[0].PromptTokens != 1000 {
		t.Errorf("record fields = %+v", got[0])
	}
	tokens, cost := usage.Totals(got)
	if tokens != 1350 || cost != 0.75 {
		t.Errorf("totals = %d, %v", tokens, cost)
	}

	other, err := s.ListUsage(ctx, id.NewJobID())
	if err != nil || len(other) != 0 {
		t.Errorf("ListUsage(other) = %d, %v", len(other), err)
	}
}

func testListAndCount(t *testing.T, s store.Store) {
	ctx := context.Background()
	var ids []string
	for i, key := range []string{"l1", "l2", "l3"} {
		j := NewJob(key)
		if i == 2 {
			j.RequesterID = "biz_2"
		}
		j.CreatedAt = j.CreatedAt.Add(time.Duration(i) * time.Second)
		mustCreate(t, s, j)
		ids = append(ids, j.ID.String())
	}

	all, err := s.ListJobs(ctx, job.ListOpts{})
	if err != nil || len(all) != 3 {
		t.Fatalf("ListJobs = %d, %v", len(all), err)
	}
	if all[0].ID.String() != ids[2] {
		t.Errorf("expected newest first, got %s", all[0].ID)
	}

	page, err := s.ListJobs(ctx, job.ListOpts{Limit: 1, Offset: 1})
	if err != nil || len(page) != 1 || page[0].ID.String() != ids[1] {
		t.Errorf("paged ListJobs = %v, %v", page, err)
	}

	byReq, err := s.ListJobs(ctx, job.ListOpts{RequesterID: "biz_2"})
	if err != nil || len(byReq) != 1 {
		t.Errorf("ListJobs by requester = %d, %v", len(byReq), err)
	}

	count, err := s.CountJobs(ctx, job.CountOpts{Status: job.StateQueued})
	if err != nil || count != 3 {
		t.Errorf("CountJobs(queued) = %d, %v", count, err)
	}
	count, err = s.CountJobs(ctx, job.CountOpts{Status: job.StateSucceeded})
	if err != nil || count != 0 {
		t.Errorf("CountJobs(succeeded) = %d, %v", count, err)
	}
}

func testStaleJobs(t *testing.T, s store.Store) {
	ctx := context.Background()

	old := NewJob("key-old")
	old.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	mustCreate(t, s, old)
	started := time.Now().UTC().Add(-time.Hour)
	old.Status = job.StateRunning
	old.StartedAt = &started
	if err := s.TransitionJob(ctx, old, job.StateQueued); err != nil {
		t.Fatalf("TransitionJob: %v", err)
	}

	fresh := NewJob("key-fresh")
	mustCreate(t, s, fresh)

	doneOld := NewJob("key-done-old")
	doneOld.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	mustCreate(t, s, doneOld)
	mustFinalize(t, s, doneOld, job.StateFailed, nil)

	stale, err := s.ListStaleJobs(ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("ListStaleJobs: %v", err)
	}
	if len(stale) != 1 || stale[0].ID.String() != old.ID.String() {
		t.Fatalf("stale = %v, want only %s", stale, old.ID)
	}
}
