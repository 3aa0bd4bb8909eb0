package streaming

import (
	"context"
	"encoding/json"

	"github.com/skeinflow/skein/internal/store"
)

// PublishingAppender decorates an event appender so every persisted run
// event is also broadcast to hub subscribers. Persistence failures
// propagate; publish failures do not, since the store copy is the source of
// truth.
type PublishingAppender struct {
	next store.EventAppender
	hub  EventHub
}

// NewPublishingAppender wraps next with hub broadcasting.
func NewPublishingAppender(next store.EventAppender, hub EventHub) *PublishingAppender {
	return &PublishingAppender{next: next, hub: hub}
}

func (a *PublishingAppender) AppendEvent(ctx context.Context, event *store.Event) error {
	if err := a.next.AppendEvent(ctx, event); err != nil {
		return err
	}

	var payload any
	if len(event.Payload) > 0 {
		_ = json.Unmarshal(event.Payload, &payload)
	}
	_ = a.hub.Publish(ctx, StreamEvent{
		RunID:     event.RunID,
		NodeID:    event.NodeID,
		EventType: event.Type,
		Payload:   payload,
	})
	return nil
}
