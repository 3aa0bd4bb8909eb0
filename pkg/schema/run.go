package schema

// RunStatus represents the lifecycle state of a run.
type RunStatus string

const (
	RunStatusPending        RunStatus = "pending"
	RunStatusRunning        RunStatus = "running"
	RunStatusWaitingForUser RunStatus = "waiting_for_user"
	RunStatusCompleted      RunStatus = "completed"
	RunStatusFailed         RunStatus = "failed"
	RunStatusCancelled      RunStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
// A new run is required to retry a terminal one.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// TrailStep is one entry in a run's ordered execution trail.
// Steps are immutable once appended; only the graph runner appends them.
type TrailStep struct {
	Order        int    `json:"order"`
	Round        int    `json:"round"`
	NodeID       string `json:"node_id"`
	AgentID      string `json:"agent_id,omitempty"`
	AgentName    string `json:"agent_name,omitempty"`
	Input        any    `json:"input,omitempty"`
	Output       any    `json:"output,omitempty"`
	SentToNodeID string `json:"sent_to_node_id,omitempty"`
	Error        string `json:"error,omitempty"`
	// ToolCalls records the calls made during this turn so the reference
	// history survives a pause and resume.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall pairs a tool name with the result it produced, in invocation
// order. The reference resolver scans these right to left.
type ToolCall struct {
	Name   string `json:"name"`
	Result any    `json:"result"`
}

// ResumeCursor is the persisted continuation of a paused run: enough to
// re-enter the graph at exactly the node that asked for input, without
// re-running trail-recorded steps.
type ResumeCursor struct {
	NextNodeID string `json:"next_node_id"`
	Round      int    `json:"round"`
	// Prompt is the pause payload (question, options) so callers can ask a
	// human without re-deriving it from the trail.
	Prompt any `json:"prompt,omitempty"`
	// UserResponse is attached by Respond and consumed as the resumed
	// node's input.
	UserResponse any `json:"user_response,omitempty"`
}

// FailurePayload is stored as a failed run's output.
type FailurePayload struct {
	Error string `json:"error"`
	Stack string `json:"stack,omitempty"`
}

// CancelledMessage is the sentinel output of a cancelled run, distinct from
// failure so callers do not treat a user-initiated stop as a bug.
const CancelledMessage = "run cancelled"
