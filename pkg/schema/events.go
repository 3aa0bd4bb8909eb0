package schema

// Event type constants for the append-only run event log.
const (
	EventRunStarted   = "run_started"
	EventRunCompleted = "run_completed"
	EventRunFailed    = "run_failed"
	EventRunCancelled = "run_cancelled"
	EventRunPaused    = "run_paused"
	EventRunResumed   = "run_resumed"

	EventNodeStarted   = "node_started"
	EventNodeCompleted = "node_completed"
	EventNodeFailed    = "node_failed"

	EventToolInvoked  = "tool_invoked"
	EventUserResponse = "user_response"
)
