package redis

// Redis key naming conventions for zipcheck data.
// All keys are prefixed with "zipcheck:" to avoid collisions.

const keyPrefix = "zipcheck:"

// ── Job keys ──

// jobKey returns the key for a job entity: zipcheck:job:{id}
func jobKey(id string) string { return keyPrefix + "job:" + id }

// jobIDsKey is the Sorted Set of all job IDs scored by creation time.
const jobIDsKey = keyPrefix + "job_ids"

// ── Idempotency keys ──

// idemKey holds the ID of the queued, running or succeeded job that owns
// an idempotency key: zipcheck:idem:{key}
func idemKey(key string) string { return keyPrefix + "idem:" + key }

// idemHistoryKey is the List of every job ever created with a key, oldest
// first: zipcheck:idem_hist:{key}
func idemHistoryKey(key string) string { return keyPrefix + "idem_hist:" + key }

// ── Usage and output keys ──

// usageKey returns the List of msgpack usage records for a job.
func usageKey(jobID string) string { return keyPrefix + "usage:" + jobID }

// outputsKey returns the List of msgpack output records for a job.
func outputsKey(jobID string) string { return keyPrefix + "outputs:" + jobID }

// doneOutputKey holds the msgpack final output of a job.
func doneOutputKey(jobID string) string { return keyPrefix + "output_done:" + jobID }
