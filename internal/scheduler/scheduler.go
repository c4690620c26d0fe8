package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pulsegrid/infradash/internal/logging"
	"github.com/pulsegrid/infradash/internal/metrics"
)

// Job is one named periodic unit of background work. After a failed
// execution the next run is scheduled after RetryDelay instead of
// Interval.
type Job struct {
	Name       string
	Interval   time.Duration
	RetryDelay time.Duration
	Run        func(ctx context.Context) error
}

// Scheduler supervises a fixed set of independent job loops. One job
// failing, or even panicking, never affects the others; each loop only
// exits when the scheduler's context is cancelled.
type Scheduler struct {
	jobs   []Job
	log    *logging.LogStore
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler creates a scheduler with no jobs registered
func NewScheduler(logStore *logging.LogStore) *Scheduler {
	return &Scheduler{log: logStore}
}

// Register adds a job. Must be called before Start.
func (s *Scheduler) Register(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start launches one goroutine per registered job
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.loop(ctx, job)
		}(job)
	}
	s.log.LogAndStore("info", "Scheduler started with %d jobs", len(s.jobs))
}

// Stop cancels all job loops and waits for in-flight executions to
// finish before returning.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.log.LogAndStore("info", "Scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	delay := job.Interval
	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := s.runJob(ctx, job); err != nil {
				s.log.LogAndStore("error", "Job %s failed: %v", job.Name, err)
				metrics.JobRunsTotal.WithLabelValues(job.Name, "failure").Inc()
				delay = job.RetryDelay
			} else {
				metrics.JobRunsTotal.WithLabelValues(job.Name, "success").Inc()
				delay = job.Interval
			}
			timer.Reset(delay)
		}
	}
}

// runJob executes one job run, converting a panic into an error so the
// loop keeps running.
func (s *Scheduler) runJob(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Run(ctx)
}
