package outcome

// PauseSignal carries the payload of a tool result that asked for human
// input. The lifecycle persists it so callers can prompt a user without
// re-deriving the question from the trail.
type PauseSignal struct {
	Tool     string   `json:"tool"`
	Question string   `json:"question,omitempty"`
	Options  []string `json:"options,omitempty"`
	Payload  any      `json:"payload,omitempty"`
}

// DetectPause checks whether a tool result is a pause-for-input signal.
// Two shapes are recognized:
//
//   - an ask_user/request_user_help result with waitingForUser:true or a
//     present options array
//   - a format_response result with formatted:true and non-empty needsInput
//
// Pause signals are control flow, not errors; unrecognized shapes return nil.
func DetectPause(toolName string, result any) *PauseSignal {
	m, ok := result.(map[string]any)
	if !ok {
		return nil
	}

	switch toolName {
	case "ask_user", "request_user_help":
		waiting, _ := m["waitingForUser"].(bool)
		opts, hasOpts := m["options"].([]any)
		if !waiting && !hasOpts {
			return nil
		}
		sig := &PauseSignal{Tool: toolName, Payload: m}
		if q, ok := m["question"].(string); ok {
			sig.Question = q
		}
		for _, o := range opts {
			if s, ok := o.(string); ok {
				sig.Options = append(sig.Options, s)
			}
		}
		return sig

	case "format_response":
		formatted, _ := m["formatted"].(bool)
		needs, _ := m["needsInput"].(string)
		if !formatted || needs == "" {
			return nil
		}
		return &PauseSignal{Tool: toolName, Question: needs, Payload: m}
	}

	return nil
}
