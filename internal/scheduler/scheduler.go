// Package scheduler runs named maintenance jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	cron "github.com/netresearch/go-cron"

	"github.com/dohr-michael/mask/internal/sessions"
)

// Job is a unit of scheduled work.
type Job func(ctx context.Context) error

// Scheduler triggers jobs on their cron schedule until stopped.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	jobs map[string]Job
}

// New creates a stopped scheduler.
func New() *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(cron.WithParser(parser)),
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(map[string]Job),
	}
}

// Add registers job under name on spec. Names are unique.
func (s *Scheduler) Add(name, spec string, job Job) error {
	expr, err := ParseCron(spec)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.jobs[name]; dup {
		return fmt.Errorf("job %q already scheduled", name)
	}
	s.jobs[name] = job
	s.cron.Schedule(expr.schedule, cron.FuncJob(func() { s.run(name, job) }))
	slog.Debug("job scheduled", "job", name, "spec", spec, "next", expr.Next(time.Now()))
	return nil
}

// RunNow runs the named job synchronously.
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %q not found", name)
	}
	return s.run(name, job)
}

// Jobs returns the scheduled job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start begins triggering jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	slog.Info("scheduler started", "jobs", len(s.Jobs()))
}

// Stop waits for running jobs and cancels their context.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.cancel()
}

func (s *Scheduler) run(name string, job Job) error {
	start := time.Now()
	err := job(s.ctx)
	if err != nil {
		slog.Error("scheduled job failed", "job", name, "error", err)
		return err
	}
	slog.Debug("scheduled job done", "job", name, "duration", time.Since(start))
	return nil
}

// CleanupSessions returns a job removing expired sessions from store.
func CleanupSessions(store sessions.Store) Job {
	return func(ctx context.Context) error {
		n, err := store.CleanupExpired(ctx)
		if err != nil {
			return fmt.Errorf("cleanup sessions: %w", err)
		}
		if n > 0 {
			slog.Info("expired sessions removed", "count", n)
		}
		return nil
	}
}
