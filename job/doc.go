// Package job defines the job entity, its state machine, the idempotency
// key, and the store interface.
//
// # Job Entity
//
// A [Job] is one durable analysis request. It embeds [zipcheck.Entity] for
// timestamps, carries its resolved budgets, and progresses through a
// state machine:
//
//	queued → running → succeeded
//	queued → running → failed
//	queued → running → timeout
//	queued → canceled
//	running → canceled
//
// Succeeded, failed, timeout and canceled are terminal: once CompletedAt
// is set no field changes again. Stores enforce this with compare-and-set
// transitions ([Store.TransitionJob], and FinalizeJob on the composite
// store).
//
// # Idempotency
//
// [GenerateIdemKey] digests only the fields that make two requests the
// same business question (requester, subject, item count, total amount).
// Stores keep the key unique among queued, running and succeeded jobs, so
// a failed or canceled key may be submitted again while an active or
// succeeded one may not.
package job
