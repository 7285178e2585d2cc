package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	zipcheck "github.com/pola2025/zipcheck-sub000"
	"github.com/pola2025/zipcheck-sub000/id"
	"github.com/pola2025/zipcheck-sub000/job"
)

// CreateJob stores the job as a Hash and claims its idempotency key.
func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	jID := j.ID.String()
	claim := "0"
	if j.IdemKey != "" && j.Status.HoldsIdemKey() {
		claim = "1"
	}

	args := []interface{}{jID, claim, float64(j.CreatedAt.UnixMicro())}
	args = append(args, flatten(jobToMap(j))...)

	res, err := createScript.Run(ctx, s.client,
		[]string{jobKey(jID), idemKey(j.IdemKey), idemHistoryKey(j.IdemKey), jobIDsKey},
		args...,
	).Text()
	if err != nil {
		return fmt.Errorf("zipcheck/redis: create job: %w", err)
	}

	switch res {
	case "ok":
		return nil
	case "exists":
		return zipcheck.ErrJobAlreadyExists
	case "duplicate":
		return zipcheck.ErrDuplicateIdemKey
	default:
		return fmt.Errorf("zipcheck/redis: create job: unexpected reply %q", res)
	}
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	return s.getJobByKey(ctx, jobKey(jobID.String()))
}

// LatestJobByIdemKey returns the most recently created job with key.
func (s *Store) LatestJobByIdemKey(ctx context.Context, key string) (*job.Job, error) {
	jID, err := s.client.LIndex(ctx, idemHistoryKey(key), -1).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, zipcheck.ErrJobNotFound
		}
		return nil, fmt.Errorf("zipcheck/redis: latest job by idem key: %w", err)
	}
	return s.getJobByKey(ctx, jobKey(jID))
}

// TransitionJob persists j if the stored job is in one of the from states.
func (s *Store) TransitionJob(ctx context.Context, j *job.Job, from ...job.State) error {
	return s.transition(ctx, j, from, nil, false)
}

// RequestAbort flags a queued or running job and moves it to canceled.
func (s *Store) RequestAbort(ctx context.Context, jobID id.JobID) (bool, error) {
	jID := jobID.String()
	key, err := s.client.HGet(ctx, jobKey(jID), "idem_key").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, zipcheck.ErrJobNotFound
		}
		return false, fmt.Errorf("zipcheck/redis: request abort: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := abortScript.Run(ctx, s.client,
		[]string{jobKey(jID), idemKey(key)}, jID, now,
	).Text()
	if err != nil {
		return false, fmt.Errorf("zipcheck/redis: request abort: %w", err)
	}

	switch res {
	case "ok":
		return true, nil
	case "terminal":
		return false, nil
	case "missing":
		return false, zipcheck.ErrJobNotFound
	default:
		return false, fmt.Errorf("zipcheck/redis: request abort: unexpected reply %q", res)
	}
}

// IsAbortRequested reports whether cancellation was requested for a job.
func (s *Store) IsAbortRequested(ctx context.Context, jobID id.JobID) (bool, error) {
	v, err := s.client.HGet(ctx, jobKey(jobID.String()), "abort_requested").Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return false, zipcheck.ErrJobNotFound
		}
		return false, fmt.Errorf("zipcheck/redis: is abort requested: %w", err)
	}
	return v == "1", nil
}

// ListJobs returns jobs newest first.
func (s *Store) ListJobs(ctx context.Context, opts job.ListOpts) ([]*job.Job, error) {
	all, err := s.allJobs(ctx)
	if err != nil {
		return nil, err
	}

	jobs := make([]*job.Job, 0, len(all))
	for _, j := range all {
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.RequesterID != "" && j.RequesterID != opts.RequesterID {
			continue
		}
		jobs = append(jobs, j)
	}

	if opts.Offset > 0 {
		if opts.Offset >= len(jobs) {
			return nil, nil
		}
		jobs = jobs[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(jobs) {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// CountJobs returns the number of jobs matching the given options.
func (s *Store) CountJobs(ctx context.Context, opts job.CountOpts) (int64, error) {
	if opts.Status == "" && opts.RequesterID == "" {
		n, err := s.client.ZCard(ctx, jobIDsKey).Result()
		if err != nil {
			return 0, fmt.Errorf("zipcheck/redis: count jobs: %w", err)
		}
		return n, nil
	}

	all, err := s.allJobs(ctx)
	if err != nil {
		return 0, err
	}
	var count int64
	for _, j := range all {
		if opts.Status != "" && j.Status != opts.Status {
			continue
		}
		if opts.RequesterID != "" && j.RequesterID != opts.RequesterID {
			continue
		}
		count++
	}
	return count, nil
}

// ListStaleJobs returns queued or running jobs older than threshold.
func (s *Store) ListStaleJobs(ctx context.Context, threshold time.Duration) ([]*job.Job, error) {
	cutoff := time.Now().UTC().Add(-threshold)

	all, err := s.allJobs(ctx)
	if err != nil {
		return nil, err
	}

	var stale []*job.Job
	for _, j := range all {
		if j.Status.IsTerminal() {
			continue
		}
		since := j.CreatedAt
		if j.StartedAt != nil {
			since = *j.StartedAt
		}
		if since.Before(cutoff) {
			stale = append(stale, j)
		}
	}
	sort.Slice(stale, func(a, b int) bool { return stale[a].CreatedAt.Before(stale[b].CreatedAt) })
	return stale, nil
}

// ── helpers ──

// transition runs the CAS script, optionally appending an output blob.
func (s *Store) transition(ctx context.Context, j *job.Job, from []job.State, outBlob []byte, outDone bool) error {
	if len(from) == 0 {
		from = job.ActiveStates
	}
	allowed := make([]string, len(from))
	for i, st := range from {
		allowed[i] = string(st)
	}

	release := "0"
	if !j.Status.HoldsIdemKey() {
		release = "1"
	}
	done := "0"
	if outDone {
		done = "1"
	}

	jID := j.ID.String()
	fields := transitionFields(j)
	args := []interface{}{"," + strings.Join(allowed, ",") + ",", jID, release, string(outBlob), done}
	args = append(args, flatten(fields)...)

	res, err := transitionScript.Run(ctx, s.client,
		[]string{jobKey(jID), idemKey(j.IdemKey), outputsKey(jID), doneOutputKey(jID)},
		args...,
	).Text()
	if err != nil {
		return fmt.Errorf("zipcheck/redis: transition job: %w", err)
	}

	switch res {
	case "ok":
		return nil
	case "missing":
		return zipcheck.ErrJobNotFound
	case "state":
		return zipcheck.ErrInvalidState
	default:
		return fmt.Errorf("zipcheck/redis: transition job: unexpected reply %q", res)
	}
}

func (s *Store) allJobs(ctx context.Context) ([]*job.Job, error) {
	ids, err := s.client.ZRevRange(ctx, jobIDsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zipcheck/redis: list job ids: %w", err)
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := s.getJobByKey(ctx, jobKey(jID))
		if getErr != nil {
			continue // skip missing
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (s *Store) getJobByKey(ctx context.Context, key string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("zipcheck/redis: get job: %w", err)
	}
	if len(vals) == 0 {
		return nil, zipcheck.ErrJobNotFound
	}
	return mapToJob(vals)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func jobToMap(j *job.Job) map[string]string {
	m := transitionFields(j)
	m["id"] = j.ID.String()
	m["idem_key"] = j.IdemKey
	m["requester_id"] = j.RequesterID
	m["subject_id"] = j.SubjectID
	m["token_budget"] = strconv.Itoa(j.TokenBudget)
	m["usd_budget"] = strconv.FormatFloat(j.USDBudget, 'g', -1, 64)
	m["max_output_tokens"] = strconv.Itoa(j.MaxOutputTokens)
	m["model"] = j.Model
	m["request"] = string(j.Request)
	m["created_at"] = j.CreatedAt.UTC().Format(time.RFC3339Nano)
	m["updated_at"] = j.UpdatedAt.UTC().Format(time.RFC3339Nano)
	return m
}

// transitionFields are the mutable job fields.
func transitionFields(j *job.Job) map[string]string {
	return map[string]string{
		"status":             string(j.Status),
		"tokens_used":        strconv.Itoa(j.TokensUsed),
		"cost_usd":           strconv.FormatFloat(j.CostUSD, 'g', -1, 64),
		"stop_reason":        j.StopReason,
		"termination_reason": j.TerminationReason,
		"abort_requested":    boolFlag(j.AbortRequested),
		"started_at":         formatTime(j.StartedAt),
		"completed_at":       formatTime(j.CompletedAt),
		"updated_at":         time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// flatten turns a field map into HSET arguments in a stable order.
func flatten(m map[string]string) []interface{} {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]interface{}, 0, 2*len(m))
	for _, k := range keys {
		out = append(out, k, m[k])
	}
	return out
}

func parseTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil
	}
	return &t
}

func mapToJob(m map[string]string) (*job.Job, error) {
	jID, err := id.ParseJobID(m["id"])
	if err != nil {
		return nil, fmt.Errorf("zipcheck/redis: parse job id: %w", err)
	}

	tokenBudget, _ := strconv.Atoi(m["token_budget"])           //nolint:errcheck // best-effort parse from trusted Redis data
	maxOutput, _ := strconv.Atoi(m["max_output_tokens"])        //nolint:errcheck // best-effort parse from trusted Redis data
	tokensUsed, _ := strconv.Atoi(m["tokens_used"])             //nolint:errcheck // best-effort parse from trusted Redis data
	usdBudget, _ := strconv.ParseFloat(m["usd_budget"], 64)     //nolint:errcheck // best-effort parse from trusted Redis data
	costUSD, _ := strconv.ParseFloat(m["cost_usd"], 64)         //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"]) //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		Entity: zipcheck.Entity{
			CreatedAt: createdAt,
			UpdatedAt: updatedAt,
		},
		ID:                jID,
		IdemKey:           m["idem_key"],
		RequesterID:       m["requester_id"],
		SubjectID:         m["subject_id"],
		Status:            job.State(m["status"]),
		TokenBudget:       tokenBudget,
		USDBudget:         usdBudget,
		MaxOutputTokens:   maxOutput,
		Model:             m["model"],
		TokensUsed:        tokensUsed,
		CostUSD:           costUSD,
		StopReason:        m["stop_reason"],
		TerminationReason: m["termination_reason"],
		AbortRequested:    m["abort_requested"] == "1",
		StartedAt:         parseTime(m["started_at"]),
		CompletedAt:       parseTime(m["completed_at"]),
	}
	if v := m["request"]; v != "" {
		j.Request = []byte(v)
	}
	return j, nil
}
