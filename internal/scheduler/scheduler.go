// Package scheduler runs named jobs on fixed tickers with overlap
// protection: a tick that fires while the previous run of the same job
// is still going is skipped, not queued.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// Job is one recurring unit of work. Name plus Instrument identify the
// job for overlap tracking, logging, and metrics.
type Job struct {
	Name       string
	Instrument string
	Every      time.Duration
	Run        func(ctx context.Context) error
}

func (j Job) key() string {
	if j.Instrument == "" {
		return j.Name
	}
	return j.Name + ":" + j.Instrument
}

// Scheduler owns the job goroutines. All jobs stop when the context
// passed to Add is cancelled; Wait blocks until every run in flight has
// returned.
type Scheduler struct {
	mu          sync.Mutex
	running     map[string]bool
	lastSuccess map[string]time.Time
	wg          sync.WaitGroup

	// Optional hooks, wired to metrics by the daemon.
	OnSkip func(job Job)
	OnDone func(job Job, d time.Duration, err error)
}

func New() *Scheduler {
	return &Scheduler{
		running:     make(map[string]bool),
		lastSuccess: make(map[string]time.Time),
	}
}

// Add starts the job's ticker goroutine. The first run happens after
// one full period; callers wanting an immediate run invoke RunNow
// first.
func (s *Scheduler) Add(ctx context.Context, job Job) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(job.Every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx, job)
			}
		}
	}()
}

// RunNow executes the job synchronously, subject to the same overlap
// rule as ticker runs.
func (s *Scheduler) RunNow(ctx context.Context, job Job) {
	s.runOnce(ctx, job)
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	key := job.key()

	s.mu.Lock()
	if s.running[key] {
		s.mu.Unlock()
		log.Printf("[scheduler] %s: previous run still active, skipping tick", key)
		if s.OnSkip != nil {
			s.OnSkip(job)
		}
		return
	}
	s.running[key] = true
	s.mu.Unlock()

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)

	s.mu.Lock()
	s.running[key] = false
	if err == nil {
		s.lastSuccess[key] = time.Now()
	}
	s.mu.Unlock()

	if err != nil && ctx.Err() == nil {
		log.Printf("[scheduler] %s: run failed after %s: %v", key, elapsed.Round(time.Millisecond), err)
	}
	if s.OnDone != nil {
		s.OnDone(job, elapsed, err)
	}
}

// LastSuccess reports when the job last completed without error.
func (s *Scheduler) LastSuccess(name, instrument string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastSuccess[Job{Name: name, Instrument: instrument}.key()]
	return t, ok
}

// Wait blocks until all job goroutines have exited. Call after
// cancelling the context passed to Add.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
