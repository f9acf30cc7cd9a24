// Package engine implements the duewatch background notification engine.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Every trigger is an event on one FIFO queue, processed to completion by a
// single goroutine. Timer callbacks, cron jobs and HTTP handlers only
// enqueue. This gives:
//   - One writer to the store at a time
//   - Overlapping force-checks run back to back, never interleaved
//   - Simple reasoning about the cycle state machine
//
// Triggers:
//   - Periodic: a cron job per registered sync tag (EventSync)
//   - Delayed: a timer armed from a persisted scheduled record (EventTimer)
//   - Manual: the force-check command (EventMessage)
//
// Evaluation Cycle:
// idle → loading-data → evaluating → notifying → idle. Loading failures abort
// the cycle; the next periodic trigger is the retry. Display failures are
// isolated per item. Repeated cycles are deduplicated by notification tag in
// the displayer, not by locking here.
//
// Scheduled Notifications:
// The persisted record is the authority. A timer never waits longer than the
// max delay; a timer that fires before the recorded target time re-arms. A
// timer that finds no record treats the notification as cancelled.
//
// Lifecycle:
// An instance acts on triggers only while it holds the lease stored in the
// "lifecycle" collection. Other instances are waiting until the lease goes
// stale or they receive activate-now.
package engine
