// Package scheduler runs the periodic jobs that move streams through their
// lifecycle and keep viewer counts and analytics fresh.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one periodic task. Runs never overlap: when a tick fires while the
// previous run is still going, the tick is skipped and logged.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error

	mu sync.Mutex
}

// Scheduler drives a set of jobs on their own tickers.
type Scheduler struct {
	jobs   []*Job
	logger *zap.Logger
}

// New creates a scheduler.
func New(logger *zap.Logger, jobs ...*Job) *Scheduler {
	return &Scheduler{jobs: jobs, logger: logger}
}

// Run starts every job and blocks until ctx is cancelled and all in-flight
// runs have returned.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range s.jobs {
		wg.Add(1)
		go func(j *Job) {
			defer wg.Done()
			s.runJob(ctx, j)
		}(job)
	}
	wg.Wait()
}

func (s *Scheduler) runJob(ctx context.Context, j *Job) {
	s.logger.Info("job started", zap.String("job", j.Name), zap.Duration("interval", j.Interval))
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()

	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("job stopped", zap.String("job", j.Name))
			return
		case <-ticker.C:
			if !j.mu.TryLock() {
				s.logger.Warn("job still running, skipping tick", zap.String("job", j.Name))
				continue
			}
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				defer j.mu.Unlock()
				start := time.Now()
				if err := j.Run(ctx); err != nil {
					s.logger.Error("job run failed",
						zap.String("job", j.Name),
						zap.Duration("took", time.Since(start)),
						zap.Error(err))
				}
			}()
		}
	}
}
