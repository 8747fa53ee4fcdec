// Package assign recomputes per-arc breakage rate indexes from the recorded
// leak history. Each leak within the configured horizon contributes a weight
// that decays with its age — linearly or exponentially — and the per-arc sum
// is persisted as the arc's breakage rate. Runs as a background job through
// the task runner.
package assign

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/giswater/assetmanage/internal/task"
	"github.com/giswater/assetmanage/pkg/types"
)

// Method selects the age-decay shape applied to leak weights.
type Method string

const (
	// MethodLinear ramps a leak's weight from 1 (today) to 0 (Years old).
	MethodLinear Method = "linear"

	// MethodExponential halves a leak's weight every Years/2 years.
	MethodExponential Method = "exponential"
)

// batchSize is the number of leaks processed between cancellation checks.
const batchSize = 500

// LeakSource supplies the recorded breakages.
type LeakSource interface {
	Leaks(ctx context.Context, since time.Time) ([]types.Leak, error)
}

// RateSink persists the recomputed per-arc rates atomically.
type RateSink interface {
	SaveBreakageRates(ctx context.Context, rates map[string]float64) error
}

// Job is one leak assignation run.
type Job struct {
	// Method is the decay shape: linear | exponential.
	Method Method

	// BufferM is the maximum leak-to-arc match distance in meters; leaks
	// matched farther away are ignored.
	BufferM float64

	// Years is the history horizon; older leaks contribute nothing.
	Years int

	Leaks LeakSource
	Sink  RateSink

	now func() time.Time
}

// NewJob returns an assignation job over the given sources.
func NewJob(method Method, bufferM float64, years int, leaks LeakSource, sink RateSink) *Job {
	return &Job{Method: method, BufferM: bufferM, Years: years, Leaks: leaks, Sink: sink, now: time.Now}
}

// Validate checks the job parameters before submission.
func (j *Job) Validate() error {
	switch j.Method {
	case MethodLinear, MethodExponential:
	default:
		return fmt.Errorf("assign: unknown method %q", j.Method)
	}
	if j.BufferM < 0 {
		return fmt.Errorf("assign: buffer must not be negative")
	}
	if j.Years <= 0 {
		return fmt.Errorf("assign: years must be positive")
	}
	return nil
}

// Name implements task.Job.
func (j *Job) Name() string { return "Leak assignation" }

// Run implements task.Job. Like the priority computation, persistence is
// all-or-nothing: a cancelled run writes no rates.
func (j *Job) Run(ctx context.Context, p *task.Progress) error {
	p.Log("info", fmt.Sprintf("Assigning leaks (%s, buffer %gm, %d years)...", j.Method, j.BufferM, j.Years))

	now := j.now()
	since := now.AddDate(-j.Years, 0, 0)
	leaks, err := j.Leaks.Leaks(ctx, since)
	if err != nil {
		return err
	}

	total := len(leaks)
	rates := make(map[string]float64)
	matched := 0

	for start := 0; start < total; start += batchSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + batchSize
		if end > total {
			end = total
		}
		for _, l := range leaks[start:end] {
			if l.DistanceM > j.BufferM {
				continue
			}
			w := j.weight(now.Sub(l.Date))
			if w <= 0 {
				continue
			}
			rates[l.ArcID] += w
			matched++
		}
		if total > 0 {
			p.Report(float64(end) / float64(total))
		}
	}
	p.Report(1)

	if err := j.Sink.SaveBreakageRates(ctx, rates); err != nil {
		return err
	}

	p.Log("info", fmt.Sprintf("Assignation done: %d of %d leaks matched onto %d arcs.", matched, total, len(rates)))
	return nil
}

// weight maps a leak's age onto its contribution under the job's method.
func (j *Job) weight(age time.Duration) float64 {
	years := age.Hours() / (24 * 365.25)
	if years < 0 {
		years = 0
	}
	horizon := float64(j.Years)

	switch j.Method {
	case MethodExponential:
		if years > horizon {
			return 0
		}
		halfLife := horizon / 2
		return math.Exp(-math.Ln2 * years / halfLife)
	default: // MethodLinear
		w := 1 - years/horizon
		if w < 0 {
			return 0
		}
		return w
	}
}
