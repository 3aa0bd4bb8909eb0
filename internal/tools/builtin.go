package tools

import (
	"context"

	"github.com/skeinflow/skein/pkg/schema"
)

// AskUserTool produces a pause-for-input signal. Its result shape is what the
// lifecycle recognizes when deciding to suspend a run.
type AskUserTool struct{}

func (t *AskUserTool) Name() string { return "ask_user" }

func (t *AskUserTool) Schema() ToolSchema {
	return ToolSchema{Description: "Ask the user a question and wait for their answer. Optionally provide answer options."}
}

func (t *AskUserTool) Execute(ctx context.Context, call Call) (any, error) {
	question, _ := call.Args["question"].(string)
	if question == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "ask_user requires a question")
	}

	result := map[string]any{
		"question":       question,
		"waitingForUser": true,
	}
	if opts, ok := call.Args["options"].([]any); ok && len(opts) > 0 {
		result["options"] = opts
	}
	return result, nil
}

// RequestUserHelpTool signals that the agent is stuck and needs a human to
// intervene. Pauses the run like ask_user does.
type RequestUserHelpTool struct{}

func (t *RequestUserHelpTool) Name() string { return "request_user_help" }

func (t *RequestUserHelpTool) Schema() ToolSchema {
	return ToolSchema{Description: "Request human help when the agent cannot proceed on its own."}
}

func (t *RequestUserHelpTool) Execute(ctx context.Context, call Call) (any, error) {
	reason, _ := call.Args["reason"].(string)
	if reason == "" {
		reason, _ = call.Args["question"].(string)
	}
	if reason == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "request_user_help requires a reason")
	}

	result := map[string]any{
		"question":       reason,
		"waitingForUser": true,
	}
	if details, ok := call.Args["details"]; ok {
		result["details"] = details
	}
	return result, nil
}

// FormatResponseTool shapes a final answer for presentation. When the caller
// sets needsInput the formatted response doubles as a question, which pauses
// the run.
type FormatResponseTool struct{}

func (t *FormatResponseTool) Name() string { return "format_response" }

func (t *FormatResponseTool) Schema() ToolSchema {
	return ToolSchema{Description: "Format a response for the user. Set needsInput to pause for an answer."}
}

func (t *FormatResponseTool) Execute(ctx context.Context, call Call) (any, error) {
	response := call.Args["response"]
	if response == nil {
		response = call.Args["text"]
	}

	result := map[string]any{
		"response":  response,
		"formatted": true,
	}
	if needs, ok := call.Args["needsInput"].(string); ok && needs != "" {
		result["needsInput"] = needs
	}
	return result, nil
}
