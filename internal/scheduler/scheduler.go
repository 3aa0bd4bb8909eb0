// Package scheduler runs stored cron jobs that launch workflow graphs on a
// schedule.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/skeinflow/skein/internal/store"
)

// GraphRunner is the interface the scheduler uses to launch runs. Satisfied
// by the engine lifecycle (avoids an import cycle).
type GraphRunner interface {
	StartGraph(ctx context.Context, graphID string, input map[string]any) (string, error)
}

// Scheduler polls the store for due scheduled jobs and launches their
// graphs.
type Scheduler struct {
	store  store.Store
	runner GraphRunner
	parser cron.Parser
	logger *slog.Logger
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// NewScheduler creates a Scheduler.
func NewScheduler(s store.Store, runner GraphRunner, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    s,
		runner:   runner,
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Start launches the background scheduling loop with a 60s ticker.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Info("scheduler started")
	return nil
}

// Stop halts the loop and waits for the current tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick checks all enabled jobs and launches those that are due.
func (s *Scheduler) Tick(ctx context.Context) {
	enabled := true
	jobs, err := s.store.ListScheduledJobs(ctx, store.ScheduledJobFilter{Enabled: &enabled})
	if err != nil {
		s.logger.Error("failed to list scheduled jobs", slog.String("error", err.Error()))
		return
	}

	now := time.Now().UTC()
	for _, job := range jobs {
		if job.NextRunAt == nil || !job.NextRunAt.After(now) {
			if !s.tryAcquire(job.ID) {
				continue
			}
			if err := s.runJob(ctx, job, now); err != nil {
				s.logger.Error("failed to run scheduled job",
					slog.String("job_id", job.ID),
					slog.String("error", err.Error()),
				)
			}
			s.release(job.ID)
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, job *store.ScheduledJob, now time.Time) error {
	s.logger.Info("launching scheduled graph run",
		slog.String("job_id", job.ID),
		slog.String("graph_id", job.GraphID),
	)

	var input map[string]any
	if len(job.Input) > 0 {
		if err := json.Unmarshal(job.Input, &input); err != nil {
			return s.updateJobStatus(ctx, job, now, "error")
		}
	}

	_, err := s.runner.StartGraph(ctx, job.GraphID, input)
	status := "started"
	if err != nil {
		status = "error"
		s.logger.Error("scheduled graph launch failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}

	return s.updateJobStatus(ctx, job, now, status)
}

func (s *Scheduler) updateJobStatus(ctx context.Context, job *store.ScheduledJob, now time.Time, status string) error {
	update := store.ScheduledJobUpdate{
		LastRunAt:     &now,
		LastRunStatus: status,
	}
	if next, err := s.CalculateNextRun(job.CronExpression, now); err == nil {
		update.NextRunAt = &next
	}
	return s.store.UpdateScheduledJob(ctx, job.ID, update)
}

// CalculateNextRun returns the next fire time of a cron expression after the
// given instant.
func (s *Scheduler) CalculateNextRun(expression string, after time.Time) (time.Time, error) {
	sched, err := s.parser.Parse(expression)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", expression, err)
	}
	return sched.Next(after), nil
}

func (s *Scheduler) tryAcquire(jobID string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, running := s.inflight[jobID]; running {
		return false
	}
	s.inflight[jobID] = struct{}{}
	return true
}

func (s *Scheduler) release(jobID string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, jobID)
}
