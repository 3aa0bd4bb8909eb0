package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/skeinflow/skein/internal/store"
	"github.com/skeinflow/skein/pkg/schema"
)

// DefaultPollInterval is how often the queue scans for answered pause points
// when no interval is configured.
const DefaultPollInterval = 2 * time.Second

// Queue is the poll-driven resumable job queue. A pause point becomes a job
// the moment a user response is attached to it; the queue finds those rows in
// the store and re-enters the runner at the persisted cursor. Because the
// jobs live in the store, a process restart loses nothing.
type Queue struct {
	store     store.Store
	lifecycle *Lifecycle
	interval  time.Duration
	logger    *slog.Logger
}

// NewQueue creates a queue over the store's answered pause points.
func NewQueue(s store.Store, lifecycle *Lifecycle, interval time.Duration, logger *slog.Logger) *Queue {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		store:     s,
		lifecycle: lifecycle,
		interval:  interval,
		logger:    logger,
	}
}

// ProcessOne dequeues at most one answered pause point and resumes its run.
// Returns true when a job was claimed. A run already claimed by another
// caller is skipped, never resumed twice.
func (q *Queue) ProcessOne(ctx context.Context) (bool, error) {
	runs, err := q.store.PendingResumes(ctx, 1)
	if err != nil {
		return false, err
	}
	if len(runs) == 0 {
		return false, nil
	}

	run := runs[0]
	if err := q.lifecycle.resume(ctx, run.ID); err != nil {
		var serr *schema.SkeinError
		if errors.As(err, &serr) && (serr.Code == schema.ErrCodeConflict || serr.Code == schema.ErrCodeNotPending) {
			// Another worker got there first.
			return false, nil
		}
		return false, err
	}

	q.logger.InfoContext(ctx, "resumed paused run", slog.String("run_id", run.ID))
	return true, nil
}

// Drain processes answered pause points until none remain.
func (q *Queue) Drain(ctx context.Context) error {
	for {
		claimed, err := q.ProcessOne(ctx)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}
	}
}

// Start runs the poll loop until the context is cancelled. Pending jobs left
// over from a previous process are picked up on the first tick.
func (q *Queue) Start(ctx context.Context) {
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()

	q.logger.Info("resume queue started", slog.Duration("interval", q.interval))
	for {
		select {
		case <-ctx.Done():
			q.logger.Info("resume queue stopped")
			return
		case <-ticker.C:
			if err := q.Drain(ctx); err != nil {
				q.logger.Error("resume queue drain failed", slog.String("error", err.Error()))
			}
		}
	}
}
