package engine

import (
	"context"

	"github.com/sabercore/saber/pkg/schedule"
)

// reembedJob retries failed chunk embeddings on a schedule.
type reembedJob struct {
	e *Engine
}

func (j reembedJob) Name() string { return "reembed-pending" }

func (j reembedJob) Run(ctx context.Context) error {
	_, err := j.e.ReembedPending(ctx)
	return err
}

// ReembedJob returns a schedulable job that re-embeds vectorless chunks.
// Frontends register it with a Scheduler under cfg.SweepSchedule.
func (e *Engine) ReembedJob() schedule.Job { return reembedJob{e} }
