package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Scheduler runs a Job on a cron schedule. Overlapping triggers are skipped
// while a run is still in flight.
type Scheduler struct {
	cron *cron.Cron
	job  *Job
	ctx  context.Context
	log  *slog.Logger

	mu      sync.Mutex
	running bool
}

// New creates a Scheduler whose runs use ctx.
func New(ctx context.Context, job *Job, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		job:  job,
		ctx:  ctx,
		log:  log.With(slog.String("component", "scheduler")),
	}
}

// Register adds the pipeline under spec (six fields, seconds first).
func (s *Scheduler) Register(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.trigger); err != nil {
		return fmt.Errorf("register analysis task %q: %w", spec, err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started", slog.Int("entries", len(s.cron.Entries())))
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// RunNow executes the pipeline immediately (RUN_ON_START / manual trigger).
func (s *Scheduler) RunNow() (*Result, error) {
	if !s.acquire() {
		return nil, fmt.Errorf("scheduler: run already in progress")
	}
	defer s.release()
	return s.job.Run(s.ctx)
}

func (s *Scheduler) trigger() {
	if !s.acquire() {
		s.log.Warn("previous run still in progress, skipping trigger")
		return
	}
	defer s.release()
	// Errors are logged and counted by the job.
	s.job.Run(s.ctx)
}

func (s *Scheduler) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

func (s *Scheduler) release() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}
