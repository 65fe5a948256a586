package reaper

import (
	"context"
	"log"
	"sync"
	"time"
)

// Job is a named unit of periodic work. Errors are logged and isolated;
// they never stop the scheduler.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Scheduler runs its jobs sequentially on a fixed interval, on its own
// goroutine, independent of request handling. At most one pass executes
// at a time: the next tick is armed only after the previous pass
// finished, so a slow reap simply delays the next tick's start.
type Scheduler struct {
	interval time.Duration
	jobs     []Job

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewScheduler creates a scheduler with the given tick interval.
func NewScheduler(interval time.Duration, jobs ...Job) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{interval: interval, jobs: jobs}
}

// Start launches the periodic loop. The first pass runs immediately.
// Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	go func() {
		defer close(s.done)
		log.Printf("scheduler started (interval=%s, jobs=%d)", s.interval, len(s.jobs))

		s.runOnce(runCtx)

		timer := time.NewTimer(s.interval)
		defer timer.Stop()
		for {
			select {
			case <-runCtx.Done():
				log.Println("scheduler shutting down")
				return
			case <-timer.C:
				s.runOnce(runCtx)
				timer.Reset(s.interval)
			}
		}
	}()
}

// runOnce executes every job in order. A failing job is logged and the
// remaining jobs still run.
func (s *Scheduler) runOnce(ctx context.Context) {
	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return
		}
		if err := job.Run(ctx); err != nil {
			log.Printf("scheduler job %q failed: %v", job.Name, err)
		}
	}
}

// Stop prevents new ticks from starting and waits for any in-flight pass
// to finish. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
}
