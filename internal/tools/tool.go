// Package tools defines the executable tool surface of the engine: the Tool
// contract, a thread-safe registry, and the dispatcher that resolves
// cross-call references and classifies dispatch failures into structured
// results.
package tools

import (
	"context"
	"encoding/json"
)

// Tool is an executable unit of work invoked by an agent during a node turn.
type Tool interface {
	Name() string
	Schema() ToolSchema
	Execute(ctx context.Context, call Call) (any, error)
}

// ToolSchema describes the input contract of a tool.
type ToolSchema struct {
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
	Description string          `json:"description,omitempty"`
}

// Call is the data provided to a tool at execution time. Args have already
// been through reference resolution when the dispatcher hands them over.
type Call struct {
	RunID  string         `json:"run_id"`
	NodeID string         `json:"node_id,omitempty"`
	Args   map[string]any `json:"args"`
}

// ToolInfo is a summary of a registered tool for listing.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Func adapts a plain function into a Tool.
type Func struct {
	ToolName    string
	Description string
	Fn          func(ctx context.Context, call Call) (any, error)
}

func (f *Func) Name() string { return f.ToolName }

func (f *Func) Schema() ToolSchema {
	return ToolSchema{Description: f.Description}
}

func (f *Func) Execute(ctx context.Context, call Call) (any, error) {
	return f.Fn(ctx, call)
}
