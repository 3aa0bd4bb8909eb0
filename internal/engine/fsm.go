package engine

import (
	"context"
	"sync"

	"github.com/skeinflow/skein/internal/store"
	"github.com/skeinflow/skein/pkg/schema"
)

// ValidRunTransitions is the run lifecycle transition table. Terminal
// statuses have no entries: a new run is required to retry one.
var ValidRunTransitions = map[schema.RunStatus][]schema.RunStatus{
	schema.RunStatusPending: {
		schema.RunStatusRunning,
		schema.RunStatusCancelled,
		schema.RunStatusFailed,
	},
	schema.RunStatusRunning: {
		schema.RunStatusCompleted,
		schema.RunStatusFailed,
		schema.RunStatusWaitingForUser,
		schema.RunStatusCancelled,
	},
	schema.RunStatusWaitingForUser: {
		schema.RunStatusRunning,
		schema.RunStatusCancelled,
		schema.RunStatusFailed,
	},
}

// TransitionHook is called after a successful state transition.
type TransitionHook func(runID string, from, to schema.RunStatus)

// RunFSM validates and records run status transitions. Every accepted
// transition emits a lifecycle event through the appender.
type RunFSM struct {
	mu       sync.Mutex
	appender store.EventAppender
	after    []TransitionHook
}

// NewRunFSM creates a RunFSM that emits events via the given appender.
func NewRunFSM(appender store.EventAppender) *RunFSM {
	return &RunFSM{appender: appender}
}

// OnAfter registers a hook called after every accepted transition.
func (f *RunFSM) OnAfter(hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.after = append(f.after, hook)
}

// Transition validates a run status change and emits the matching event.
// The caller persists the new status to the store.
func (f *RunFSM) Transition(ctx context.Context, runID string, from, to schema.RunStatus) error {
	if !isValidRunTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid run transition: %s -> %s", from, to).
			WithDetails(map[string]any{"run_id": runID, "from": string(from), "to": string(to)})
	}

	if eventType := runEventType(from, to); eventType != "" {
		event := &store.Event{
			RunID: runID,
			Type:  eventType,
		}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "emit run event: %s", err.Error()).WithCause(err)
		}
	}

	f.mu.Lock()
	hooks := f.after
	f.mu.Unlock()
	for _, hook := range hooks {
		hook(runID, from, to)
	}

	return nil
}

func isValidRunTransition(from, to schema.RunStatus) bool {
	for _, a := range ValidRunTransitions[from] {
		if a == to {
			return true
		}
	}
	return false
}

func runEventType(from, to schema.RunStatus) string {
	switch to {
	case schema.RunStatusRunning:
		if from == schema.RunStatusWaitingForUser {
			return schema.EventRunResumed
		}
		return schema.EventRunStarted
	case schema.RunStatusCompleted:
		return schema.EventRunCompleted
	case schema.RunStatusFailed:
		return schema.EventRunFailed
	case schema.RunStatusCancelled:
		return schema.EventRunCancelled
	case schema.RunStatusWaitingForUser:
		return schema.EventRunPaused
	default:
		return ""
	}
}
