package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/splax/adsync/internal/domain"
	"github.com/splax/adsync/internal/status"
)

// Job is one unit of scheduled work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type funcJob struct {
	name string
	fn   func(context.Context) error
}

// NewJob adapts a function to Job.
func NewJob(name string, fn func(context.Context) error) Job {
	return funcJob{name: name, fn: fn}
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

// RunObserver receives the outcome and duration of each run.
type RunObserver interface {
	ObserveRun(job, outcome string, duration time.Duration)
}

type entry struct {
	job      Job
	interval time.Duration
}

// Scheduler triggers jobs on fixed intervals. Runs of the same job never overlap.
type Scheduler struct {
	store    status.Store
	observer RunObserver
	logger   *slog.Logger
	now      func() time.Time
	entries  []entry
}

// New constructs a scheduler. A nil store keeps records in memory.
func New(store status.Store, observer RunObserver, logger *slog.Logger) *Scheduler {
	if store == nil {
		store = status.NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{store: store, observer: observer, logger: logger, now: time.Now}
}

// Add registers a job with its interval.
func (s *Scheduler) Add(job Job, interval time.Duration) error {
	if job == nil {
		return errors.New("nil job")
	}
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", job.Name())
	}
	for _, e := range s.entries {
		if e.job.Name() == job.Name() {
			return fmt.Errorf("job %s already registered", job.Name())
		}
	}
	s.entries = append(s.entries, entry{job: job, interval: interval})
	return nil
}

// Jobs returns the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.job.Name()
	}
	return names
}

// Run starts every job immediately and then on its interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, e := range s.entries {
		wg.Add(1)
		go func(e entry) {
			defer wg.Done()
			s.loop(ctx, e)
		}(e)
	}
	wg.Wait()
}

// RunOnce executes the named job a single time and returns its error.
func (s *Scheduler) RunOnce(ctx context.Context, name string) error {
	for _, e := range s.entries {
		if e.job.Name() == name {
			return s.execute(ctx, e.job)
		}
	}
	return fmt.Errorf("unknown job %q", name)
}

func (s *Scheduler) loop(ctx context.Context, e entry) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	s.logger.Info("job scheduled", "job", e.job.Name(), "interval", e.interval)
	_ = s.execute(ctx, e.job)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("job stopped", "job", e.job.Name())
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				s.logger.Info("job stopped", "job", e.job.Name())
				return
			}
			_ = s.execute(ctx, e.job)
		}
	}
}

func (s *Scheduler) execute(ctx context.Context, job Job) error {
	started := s.now()
	err := job.Run(ctx)
	finished := s.now()

	record := domain.RunRecord{
		ID:         uuid.NewString(),
		Job:        job.Name(),
		Outcome:    domain.RunSuccess,
		StartedAt:  started.UTC(),
		FinishedAt: finished.UTC(),
	}
	if err != nil {
		record.Outcome = domain.RunFailure
		record.Detail = err.Error()
		s.logger.Error("job failed", "job", job.Name(), "run_id", record.ID, "error", err)
	} else {
		s.logger.Info("job completed", "job", job.Name(), "run_id", record.ID, "duration", finished.Sub(started))
	}

	if serr := s.store.Save(ctx, record); serr != nil {
		s.logger.Warn("failed to save run record", "job", job.Name(), "error", serr)
	}
	if s.observer != nil {
		s.observer.ObserveRun(job.Name(), record.Outcome, finished.Sub(started))
	}
	return err
}
