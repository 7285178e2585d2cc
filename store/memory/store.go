// Package memory provides a fully in-memory implementation of store.Store.
// It is safe for concurrent access and intended for unit testing and
// development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/job"
	"github.com/pola2025/zipcheck-sub000/output"
	"github.com/pola2025/zipcheck-sub000/usage"
)

// Ensure Store implements every subsystem store at compile time.
// We can't import store here (import cycle in tests), so we verify each.
var (
	_ job.Store    = (*Store)(nil)
	_ usage.Store  = (*Store)(nil)
	_ output.Store = (*Store)(nil)
)

type jobEntry struct {
	seq uint64
	job *job.Job
}

// Store is an in-memory store.Store.
type Store struct {
	mu sync.RWMutex

	seq     uint64
	jobs    map[string]*jobEntry
	usage   map[string][]*usage.Record
	outputs map[string][]*output.Record
}

// New returns a new empty Store.
func New() *Store {
	return &Store{
		jobs:    make(map[string]*jobEntry),
		usage:   make(map[string][]*usage.Record),
		outputs: make(map[string][]*output.Record),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle: Migrate / Ping / Close
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Job Store
// ──────────────────────────────────────────────────

// CreateJob persists a new job.
func (m *Store) CreateJob(_ context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.jobs[key]; exists {
		return zipcheck.ErrJobAlreadyExists
	}
	if j.IdemKey != "" && j.Status.HoldsIdemKey() {
		for _, e := range m.jobs {
			if e.job.IdemKey == j.IdemKey && e.job.Status.HoldsIdemKey() {
				return zipcheck.ErrDuplicateIdemKey
			}
		}
	}

	m.seq++
	m.jobs[key] = &jobEntry{seq: m.seq, job: cloneJob(j)}
	return nil
}

// GetJob retrieves a job by ID.
func (m *Store) GetJob(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.jobs[jobID.String()]
	if !ok {
		return nil, zipcheck.ErrJobNotFound
	}
	return cloneJob(e.job), nil
}

// LatestJobByIdemKey returns the most recently created job with key.
func (m *Store) LatestJobByIdemKey(_ context.Context, key string) (*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *jobEntry
	for _, e := range m.jobs {
		if e.job.IdemKey != key {
			continue
		}
		if latest == nil || e.seq > latest.seq {
			latest = e
		}
	}
	if latest == nil {
		return nil, zipcheck.ErrJobNotFound
	}
	return cloneJob(latest.job), nil
}

// TransitionJob persists j if the stored job is in one of the from states.
func (m *Store) TransitionJob(_ context.Context, j *job.Job, from ...job.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[j.ID.String()]
	if !ok {
		return zipcheck.ErrJobNotFound
	}
	if !stateIn(e.job.Status, from) {
		return zipcheck.ErrInvalidState
	}

	cp := cloneJob(j)
	cp.UpdatedAt = time.Now().UTC()
	e.job = cp
	return nil
}

// RequestAbort flags a queued or running job and moves it to canceled.
func (m *Store) RequestAbort(_ context.Context, jobID id.JobID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[jobID.String()]
	if !ok {
		return false, zipcheck.ErrJobNotFound
	}
	if e.job.Status.IsTerminal() {
		return false, nil
	}

	now := time.Now().UTC()
	e.job.AbortRequested = true
	e.job.Status = job.StateCanceled
	e.job.TerminationReason = "canceled"
	e.job.CompletedAt = &now
	e.job.UpdatedAt = now
	return true, nil
}

// IsAbortRequested reports whether cancellation was requested for a job.
func (m *Store) IsAbortRequested(_ context.Context, jobID id.JobID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.jobs[jobID.String()]
	if !ok {
		return false, zipcheck.ErrJobNotFound
	}
	return e.job.AbortRequested, nil
}

// ListJobs returns jobs newest first.
func (m *Store) ListJobs(_ context.Context, opts job.ListOpts) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*jobEntry, 0, len(m.jobs))
	for _, e := range m.jobs {
		if opts.Status != "" && e.job.Status != opts.Status {
			continue
		}
		if opts.RequesterID != "" && e.job.RequesterID != opts.RequesterID {
			continue
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, k int) bool { return entries[i].seq > entries[k].seq })

	entries = applyPagination(entries, opts.Offset, opts.Limit)
	result := make([]*job.Job, 0, len(entries))
	for _, e := range entries {
		result = append(result, cloneJob(e.job))
	}
	return result, nil
}

// CountJobs returns the number of jobs matching opts.
func (m *Store) CountJobs(_ context.Context, opts job.CountOpts) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, e := range m.jobs {
		if opts.Status != "" && e.job.Status != opts.Status {
			continue
		}
		if opts.RequesterID != "" && e.job.RequesterID != opts.RequesterID {
			continue
		}
		count++
	}
	return count, nil
}

// ListStaleJobs returns active jobs older than threshold.
func (m *Store) ListStaleJobs(_ context.Context, threshold time.Duration) ([]*job.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-threshold)
	var stale []*job.Job
	for _, e := range m.jobs {
		if e.job.Status.IsTerminal() {
			continue
		}
		since := e.job.CreatedAt
		if e.job.StartedAt != nil {
			since = *e.job.StartedAt
		}
		if since.Before(cutoff) {
			stale = append(stale, cloneJob(e.job))
		}
	}
	return stale, nil
}

// FinalizeJob atomically stores the terminal job and its output.
func (m *Store) FinalizeJob(_ context.Context, j *job.Job, out *output.Record) error {
	if !j.Status.IsTerminal() {
		return zipcheck.ErrInvalidState
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[j.ID.String()]
	if !ok {
		return zipcheck.ErrJobNotFound
	}
	if e.job.Status.IsTerminal() {
		return zipcheck.ErrInvalidState
	}

	cp := cloneJob(j)
	cp.UpdatedAt = time.Now().UTC()
	e.job = cp

	if out != nil {
		key := j.ID.String()
		o := *out
		m.outputs[key] = append(m.outputs[key], &o)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Usage Store
// ──────────────────────────────────────────────────

// AppendUsage persists usage records.
func (m *Store) AppendUsage(_ context.Context, records []*usage.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		cp := *r
		key := r.JobID.String()
		m.usage[key] = append(m.usage[key], &cp)
	}
	return nil
}

// ListUsage returns the usage records of a job ordered by step.
func (m *Store) ListUsage(_ context.Context, jobID id.JobID) ([]*usage.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.usage[jobID.String()]
	result := make([]*usage.Record, 0, len(src))
	for _, r := range src {
		cp := *r
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, k int) bool { return result[i].Step < result[k].Step })
	return result, nil
}

// ──────────────────────────────────────────────────
// Output Store
// ──────────────────────────────────────────────────

// GetDoneOutput returns the final output of a job.
func (m *Store) GetDoneOutput(_ context.Context, jobID id.JobID) (*output.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, o := range m.outputs[jobID.String()] {
		if o.Done {
			cp := *o
			return &cp, nil
		}
	}
	return nil, zipcheck.ErrOutputNotFound
}

// ListOutputs returns every output of a job ordered by step.
func (m *Store) ListOutputs(_ context.Context, jobID id.JobID) ([]*output.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.outputs[jobID.String()]
	result := make([]*output.Record, 0, len(src))
	for _, o := range src {
		cp := *o
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, k int) bool { return result[i].Step < result[k].Step })
	return result, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func cloneJob(j *job.Job) *job.Job {
	cp := *j
	if j.Request != nil {
		cp.Request = append([]byte(nil), j.Request...)
	}
	if j.StartedAt != nil {
		t := *j.StartedAt
		cp.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

func stateIn(s job.State, from []job.State) bool {
	if len(from) == 0 {
		return !s.IsTerminal()
	}
	for _, f := range from {
		if s == f {
			return true
		}
	}
	return false
}

func applyPagination[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
