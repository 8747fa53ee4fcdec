// Package scoring computes per-asset replacement priority scores.
//
// score.go provides the pure Score function: a weighted composite of
// per-criterion compliance values (0–10 scale) driven by the weight-flagged
// engine parameters of a configuration snapshot, with the two edge-case
// policies of the domain — assets with an unresolvable diameter are excluded
// from the output, assets with an unknown material default to full
// compliance.
//
// engine.go provides the batch Engine that applies scope and filters, checks
// cancellation once per batch, and reports progress at a bounded cadence.
// job.go adapts an approved request into a task.Job with all-or-nothing
// result persistence.
package scoring
