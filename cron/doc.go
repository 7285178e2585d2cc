// Package cron runs the periodic maintenance tasks of a zipcheck server:
// reaping jobs stuck queued or running past the stale threshold, and
// sweeping idle draft sessions.
//
// # Task
//
// A [Task] pairs a name with a schedule and a Run function. Schedules use
// the standard 5-field cron syntax ("*/5 * * * *") or descriptors such as
// "@every 1m" and "@hourly".
//
// # Scheduler
//
// The [Scheduler] evaluates due tasks on every tick, runs each due task
// once, computes its next run time, and emits the TaskFired extension
// hook. A task that is still running when it comes due again is skipped
// for that tick rather than run twice.
package cron
