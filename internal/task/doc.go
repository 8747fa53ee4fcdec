// Package task runs computations off the interactive path, one at a time.
// A running task emits three independent signals on the runner's event
// stream: fractional progress from the job, severity-tagged log lines, and
// periodic elapsed-time ticks. Cancellation is cooperative — a one-way flag
// the job observes between batches — and a terminal state (completed,
// cancelled or failed) is always announced.
package task
