package scoring

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/giswater/assetmanage/internal/task"
	"github.com/giswater/assetmanage/pkg/types"
)

// ResultSink persists a completed run. Implemented by the store's result
// catalog.
type ResultSink interface {
	CreateResult(ctx context.Context, res *types.Result) error
}

// PriorityJob is one approved priority computation, ready for the task
// runner. It consumes its request exactly once.
//
// Persistence is all-or-nothing at the job boundary: score records accumulate
// in memory and are written in a single transaction only when every asset in
// scope has been processed. A cancelled or failed run persists nothing, so
// the result catalog never holds a half-written named result.
type PriorityJob struct {
	Req     *types.ComputationRequest
	Engine  *Engine
	Results ResultSink

	now func() time.Time
}

// NewPriorityJob returns a job for the given approved request.
func NewPriorityJob(req *types.ComputationRequest, engine *Engine, results ResultSink) *PriorityJob {
	return &PriorityJob{Req: req, Engine: engine, Results: results, now: time.Now}
}

// Name implements task.Job.
func (j *PriorityJob) Name() string { return "Priority calculation" }

// Run implements task.Job.
func (j *PriorityJob) Run(ctx context.Context, p *task.Progress) error {
	p.Log("info", fmt.Sprintf("Calculating priorities (%s)...", j.Req.Scope))

	records, err := j.Engine.Run(ctx, j.Req, func(done, total int) {
		if total == 0 {
			p.Report(1)
			return
		}
		p.Report(float64(done) / float64(total))
	})
	if err != nil {
		return err
	}

	res := &types.Result{
		ID:          uuid.NewString(),
		Name:        j.Req.ResultName,
		Description: j.Req.Description,
		CreatedBy:   j.Req.CreatedBy,
		CreatedAt:   j.now(),
		Scope:       j.Req.Scope,
		Records:     records,
	}
	if err := j.Results.CreateResult(ctx, res); err != nil {
		return err
	}

	p.Log("info", fmt.Sprintf("Result %q saved: %d assets scored.", res.Name, len(records)))
	return nil
}
