// Package schedule runs named background jobs on cron expressions. A job
// still running when its next tick arrives is skipped, never overlapped.
package schedule

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job is a named unit of background work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Scheduler drives jobs from a cron table. Specs accept standard five-field
// expressions, an optional leading seconds field, and @every descriptors.
type Scheduler struct {
	cron    *cron.Cron
	log     *zap.Logger
	entries map[string]cron.EntryID
	ctx     context.Context
}

func New(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}

	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)

	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser)),
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
}

// AddJob schedules job on the given cron spec.
func (s *Scheduler) AddJob(job Job, spec string) error {
	entryID, err := s.cron.AddFunc(spec, s.wrap(job, spec))
	if err != nil {
		return fmt.Errorf("schedule: add %s: %w", job.Name(), err)
	}

	s.entries[job.Name()] = entryID
	s.log.Info("job scheduled", zap.String("job", job.Name()), zap.String("spec", spec))

	return nil
}

// Start begins firing jobs. ctx is passed to every job run.
func (s *Scheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx = ctx
	s.cron.Start()
}

// Stop halts the schedule and waits for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) wrap(job Job, spec string) func() {
	var running atomic.Bool

	return func() {
		logger := s.log.With(zap.String("job", job.Name()), zap.String("spec", spec))

		if !running.CompareAndSwap(false, true) {
			logger.Info("job skipped: still running")
			return
		}
		defer running.Store(false)

		ctx := s.ctx
		if ctx == nil {
			ctx = context.Background()
		}

		start := time.Now()
		logger.Info("job started")

		if err := job.Run(ctx); err != nil {
			logger.Error("job failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
			return
		}

		logger.Info("job finished", zap.Duration("duration", time.Since(start)))
	}
}
