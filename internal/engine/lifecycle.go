package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skeinflow/skein/internal/logging"
	"github.com/skeinflow/skein/internal/store"
	"github.com/skeinflow/skein/pkg/schema"
)

// DefinitionValidator rejects malformed graphs before a run record exists.
type DefinitionValidator interface {
	ValidateDefinition(def *schema.GraphDefinition) error
}

// Lifecycle owns run status for callers: starting runs, accepting user
// responses, cancelling, and retrying. Writers to the same run id are
// serialized through a per-id lock so a paused run can never be resumed
// twice.
type Lifecycle struct {
	store     store.Store
	runner    *Runner
	fsm       *RunFSM
	pool      *WorkerPool
	validator DefinitionValidator
	logger    *slog.Logger

	locks keyedMutex

	mu     sync.Mutex
	active map[string]bool
}

// NewLifecycle assembles a Lifecycle. The pool bounds how many runs execute
// concurrently.
func NewLifecycle(s store.Store, runner *Runner, fsm *RunFSM, pool *WorkerPool, logger *slog.Logger) *Lifecycle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lifecycle{
		store:  s,
		runner: runner,
		fsm:    fsm,
		pool:   pool,
		logger: logger,
		active: make(map[string]bool),
	}
}

// SetValidator installs a graph validator applied on every start.
func (l *Lifecycle) SetValidator(v DefinitionValidator) {
	l.validator = v
}

// StartGraph launches a run of a stored graph. The definition is snapshotted
// into the run record, so concurrent graph edits do not affect it.
func (l *Lifecycle) StartGraph(ctx context.Context, graphID string, input map[string]any) (string, error) {
	graph, err := l.store.GetGraph(ctx, graphID)
	if err != nil {
		return "", err
	}
	return l.StartDefinition(ctx, graphID, graph.Definition, input)
}

// StartDefinition launches a run of an inline graph definition.
func (l *Lifecycle) StartDefinition(ctx context.Context, graphID string, def schema.GraphDefinition, input map[string]any) (string, error) {
	if l.validator != nil {
		if err := l.validator.ValidateDefinition(&def); err != nil {
			return "", err
		}
	}

	run := &store.Run{
		ID:         uuid.NewString(),
		GraphID:    graphID,
		Definition: def,
		Status:     schema.RunStatusPending,
		Input:      input,
	}
	if err := l.store.CreateRun(ctx, run); err != nil {
		return "", err
	}

	if err := l.launch(run.ID, func(ctx context.Context) error {
		return l.runner.Run(ctx, run.ID)
	}); err != nil {
		return "", err
	}
	return run.ID, nil
}

// Respond attaches a user's answer to a paused run. Legal only while the run
// is waiting_for_user with an unanswered pause point; the queue picks the
// answered cursor up and resumes execution.
func (l *Lifecycle) Respond(ctx context.Context, runID string, response any) error {
	unlock := l.locks.lock(runID)
	defer unlock()

	run, err := l.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != schema.RunStatusWaitingForUser || run.Cursor == nil || run.Cursor.UserResponse != nil {
		return schema.NewErrorf(schema.ErrCodeNotPending,
			"run %s is not waiting for a response (status %s)", runID, run.Status)
	}

	cursor := *run.Cursor
	cursor.UserResponse = response
	if err := l.store.UpdateRun(ctx, runID, store.RunUpdate{Cursor: &cursor}); err != nil {
		return err
	}

	payload, _ := marshalPayload(map[string]any{"response": response})
	if err := l.store.AppendEvent(ctx, &store.Event{
		RunID:   runID,
		NodeID:  cursor.NextNodeID,
		Type:    schema.EventUserResponse,
		Payload: payload,
	}); err != nil {
		l.logger.WarnContext(ctx, "append user response event failed",
			slog.String("run_id", runID), slog.String("error", err.Error()))
	}
	return nil
}

// Cancel requests a cooperative stop. Pending and paused runs terminate
// immediately; a running run stops before its next node turn.
func (l *Lifecycle) Cancel(ctx context.Context, runID string) error {
	unlock := l.locks.lock(runID)
	defer unlock()

	run, err := l.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return schema.NewErrorf(schema.ErrCodeConflict,
			"run %s is already %s", runID, run.Status)
	}

	if err := l.fsm.Transition(ctx, runID, run.Status, schema.RunStatusCancelled); err != nil {
		return err
	}

	cancelled := schema.RunStatusCancelled
	now := time.Now().UTC()
	payload, _ := marshalPayload(map[string]any{"message": schema.CancelledMessage})
	return l.store.UpdateRun(ctx, runID, store.RunUpdate{
		Status:      &cancelled,
		Output:      payload,
		FinishedAt:  &now,
		ClearCursor: true,
	})
}

// Get returns the run record.
func (l *Lifecycle) Get(ctx context.Context, runID string) (*store.Run, error) {
	return l.store.GetRun(ctx, runID)
}

// Rerun creates a new run of the same snapshot, referencing the original.
// Terminal runs are never mutated; retrying is always a fresh run.
func (l *Lifecycle) Rerun(ctx context.Context, runID string) (string, error) {
	prev, err := l.store.GetRun(ctx, runID)
	if err != nil {
		return "", err
	}
	if !prev.Status.Terminal() {
		return "", schema.NewErrorf(schema.ErrCodeConflict,
			"run %s is still %s, only terminal runs can be retried", runID, prev.Status)
	}

	run := &store.Run{
		ID:         uuid.NewString(),
		GraphID:    prev.GraphID,
		Definition: prev.Definition,
		Status:     schema.RunStatusPending,
		Input:      prev.Input,
		RetryOf:    prev.ID,
	}
	if err := l.store.CreateRun(ctx, run); err != nil {
		return "", err
	}

	if err := l.launch(run.ID, func(ctx context.Context) error {
		return l.runner.Run(ctx, run.ID)
	}); err != nil {
		return "", err
	}
	return run.ID, nil
}

// resume drives a paused run forward after a response arrived. Called by the
// queue worker; the active-set claim guarantees at most one execution per
// run id.
func (l *Lifecycle) resume(ctx context.Context, runID string) error {
	unlock := l.locks.lock(runID)
	run, err := l.store.GetRun(ctx, runID)
	if err != nil {
		unlock()
		return err
	}
	if run.Status != schema.RunStatusWaitingForUser || run.Cursor == nil || run.Cursor.UserResponse == nil {
		unlock()
		return schema.NewErrorf(schema.ErrCodeNotPending, "run %s has no answered pause point", runID)
	}
	unlock()

	return l.launch(runID, func(ctx context.Context) error {
		return l.runner.Resume(ctx, runID)
	})
}

// launch claims the run id and submits the execution to the pool. A second
// launch for the same id is rejected while the first is in flight.
func (l *Lifecycle) launch(runID string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.active[runID] {
		l.mu.Unlock()
		return schema.NewErrorf(schema.ErrCodeConflict, "run %s is already executing", runID)
	}
	l.active[runID] = true
	l.mu.Unlock()

	err := l.pool.Submit(context.Background(), func(ctx context.Context) error {
		defer func() {
			l.mu.Lock()
			delete(l.active, runID)
			l.mu.Unlock()
		}()
		ctx = logging.WithRunID(ctx, runID)
		if err := fn(ctx); err != nil {
			l.logger.Error("run execution ended with error",
				slog.String("run_id", runID), slog.String("error", err.Error()))
			return err
		}
		return nil
	})
	if err != nil {
		l.mu.Lock()
		delete(l.active, runID)
		l.mu.Unlock()
		return err
	}
	return nil
}

// Wait blocks until all in-flight executions finish. Used on shutdown and in
// tests.
func (l *Lifecycle) Wait() {
	l.pool.Wait()
}

// keyedMutex serializes callers per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func marshalPayload(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
