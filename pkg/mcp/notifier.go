package mcp

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/skeinflow/skein/internal/streaming"
	"github.com/skeinflow/skein/pkg/schema"
)

// RunNotifier pushes run lifecycle notifications to the MCP session that
// owns the run. Best-effort: a disconnected planner loses nothing, the run
// state lives in the store.
type RunNotifier struct {
	mcpServer *server.MCPServer
	sessions  *SessionRegistry
	logger    *slog.Logger
}

// NewRunNotifier creates a notifier that pushes via MCP SSE.
func NewRunNotifier(mcpServer *server.MCPServer, sessions *SessionRegistry, logger *slog.Logger) *RunNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunNotifier{mcpServer: mcpServer, sessions: sessions, logger: logger}
}

// notifiedEvents are the run transitions a planner needs to hear about.
var notifiedEvents = map[string]bool{
	schema.EventRunPaused:    true,
	schema.EventRunCompleted: true,
	schema.EventRunFailed:    true,
	schema.EventRunCancelled: true,
}

// Watch subscribes to the event hub and forwards run transitions until ctx
// is cancelled.
func (n *RunNotifier) Watch(ctx context.Context, hub streaming.EventHub) error {
	ch, cancel, err := hub.Subscribe(ctx, streaming.EventFilter{})
	if err != nil {
		return err
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			if !notifiedEvents[event.EventType] {
				continue
			}
			n.notify(ctx, event)
		}
	}
}

func (n *RunNotifier) notify(ctx context.Context, event streaming.StreamEvent) {
	sessionID, ok := n.sessions.SessionFor(event.RunID)
	if !ok {
		return
	}
	err := n.mcpServer.SendNotificationToSpecificClient(sessionID, "notifications/message", map[string]any{
		"run_id":     event.RunID,
		"event_type": event.EventType,
		"payload":    event.Payload,
	})
	if errors.Is(err, server.ErrSessionNotFound) {
		// Session expired between lookup and send.
		n.sessions.Remove(sessionID)
		return
	}
	if err != nil {
		n.logger.Warn("run notification failed", "run_id", event.RunID, "error", err)
	}
	if event.EventType != schema.EventRunPaused {
		n.sessions.Forget(event.RunID)
	}
}
