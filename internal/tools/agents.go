package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/skeinflow/skein/internal/store"
	"github.com/skeinflow/skein/pkg/schema"
)

// GraphStarter launches a new run for a stored graph. The engine lifecycle
// satisfies this; the indirection keeps tools free of an engine dependency.
type GraphStarter interface {
	StartGraph(ctx context.Context, graphID string, input map[string]any) (string, error)
}

// CreateAgentTool persists a new agent definition.
type CreateAgentTool struct {
	store store.Store
}

func NewCreateAgentTool(s store.Store) *CreateAgentTool { return &CreateAgentTool{store: s} }

func (t *CreateAgentTool) Name() string { return "create_agent" }

func (t *CreateAgentTool) Schema() ToolSchema {
	return ToolSchema{Description: "Create an agent. Args: name (string), instructions (string), model (string), tools ([]string)."}
}

func (t *CreateAgentTool) Execute(ctx context.Context, call Call) (any, error) {
	name, _ := call.Args["name"].(string)
	if name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "create_agent requires a name")
	}

	agent := &store.Agent{
		ID:   uuid.NewString(),
		Name: name,
	}
	agent.Instructions, _ = call.Args["instructions"].(string)
	agent.Model, _ = call.Args["model"].(string)
	agent.Tools = stringSlice(call.Args["tools"])

	if err := t.store.CreateAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}
	return map[string]any{"agent": map[string]any{"id": agent.ID, "name": agent.Name}}, nil
}

// UpdateAgentTool modifies an existing agent definition.
type UpdateAgentTool struct {
	store store.Store
}

func NewUpdateAgentTool(s store.Store) *UpdateAgentTool { return &UpdateAgentTool{store: s} }

func (t *UpdateAgentTool) Name() string { return "update_agent" }

func (t *UpdateAgentTool) Schema() ToolSchema {
	return ToolSchema{Description: "Update an agent by id. Args: id (string) plus any of name, instructions, model, tools."}
}

func (t *UpdateAgentTool) Execute(ctx context.Context, call Call) (any, error) {
	id, _ := call.Args["id"].(string)
	if id == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "update_agent requires an id")
	}

	agent, err := t.store.GetAgent(ctx, id)
	if err != nil {
		return nil, err
	}
	if name, ok := call.Args["name"].(string); ok && name != "" {
		agent.Name = name
	}
	if instructions, ok := call.Args["instructions"].(string); ok {
		agent.Instructions = instructions
	}
	if model, ok := call.Args["model"].(string); ok {
		agent.Model = model
	}
	if _, ok := call.Args["tools"]; ok {
		agent.Tools = stringSlice(call.Args["tools"])
	}

	if err := t.store.UpdateAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("update agent: %w", err)
	}
	return map[string]any{"agent": map[string]any{"id": agent.ID, "name": agent.Name}}, nil
}

// CreateWorkflowTool persists a new workflow graph.
type CreateWorkflowTool struct {
	store store.Store
}

func NewCreateWorkflowTool(s store.Store) *CreateWorkflowTool { return &CreateWorkflowTool{store: s} }

func (t *CreateWorkflowTool) Name() string { return "create_workflow" }

func (t *CreateWorkflowTool) Schema() ToolSchema {
	return ToolSchema{Description: "Create a workflow graph. Args: name (string), definition (object with nodes and edges)."}
}

func (t *CreateWorkflowTool) Execute(ctx context.Context, call Call) (any, error) {
	name, _ := call.Args["name"].(string)
	if name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "create_workflow requires a name")
	}
	def, err := decodeDefinition(call.Args["definition"])
	if err != nil {
		return nil, err
	}

	graph := &store.Graph{
		ID:         uuid.NewString(),
		Name:       name,
		Definition: *def,
	}
	if err := t.store.CreateGraph(ctx, graph); err != nil {
		return nil, fmt.Errorf("create workflow: %w", err)
	}
	return map[string]any{"workflow": map[string]any{"id": graph.ID, "name": graph.Name}}, nil
}

// UpdateWorkflowTool modifies an existing workflow graph.
type UpdateWorkflowTool struct {
	store store.Store
}

func NewUpdateWorkflowTool(s store.Store) *UpdateWorkflowTool { return &UpdateWorkflowTool{store: s} }

func (t *UpdateWorkflowTool) Name() string { return "update_workflow" }

func (t *UpdateWorkflowTool) Schema() ToolSchema {
	return ToolSchema{Description: "Update a workflow graph by id. Args: id (string) plus any of name, definition."}
}

func (t *UpdateWorkflowTool) Execute(ctx context.Context, call Call) (any, error) {
	id, _ := call.Args["id"].(string)
	if id == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "update_workflow requires an id")
	}

	graph, err := t.store.GetGraph(ctx, id)
	if err != nil {
		return nil, err
	}
	if name, ok := call.Args["name"].(string); ok && name != "" {
		graph.Name = name
	}
	if raw, ok := call.Args["definition"]; ok {
		def, err := decodeDefinition(raw)
		if err != nil {
			return nil, err
		}
		graph.Definition = *def
	}

	if err := t.store.UpdateGraph(ctx, graph); err != nil {
		return nil, fmt.Errorf("update workflow: %w", err)
	}
	return map[string]any{"workflow": map[string]any{"id": graph.ID, "name": graph.Name}}, nil
}

// ExecuteWorkflowTool launches a run of a stored workflow graph.
type ExecuteWorkflowTool struct {
	starter GraphStarter
}

func NewExecuteWorkflowTool(starter GraphStarter) *ExecuteWorkflowTool {
	return &ExecuteWorkflowTool{starter: starter}
}

func (t *ExecuteWorkflowTool) Name() string { return "execute_workflow" }

func (t *ExecuteWorkflowTool) Schema() ToolSchema {
	return ToolSchema{Description: "Start a run of a workflow graph. Args: workflow_id (string), input (object)."}
}

func (t *ExecuteWorkflowTool) Execute(ctx context.Context, call Call) (any, error) {
	graphID, _ := call.Args["workflow_id"].(string)
	if graphID == "" {
		graphID, _ = call.Args["id"].(string)
	}
	if graphID == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "execute_workflow requires a workflow_id")
	}
	input, _ := call.Args["input"].(map[string]any)

	runID, err := t.starter.StartGraph(ctx, graphID, input)
	if err != nil {
		return nil, err
	}
	return map[string]any{"run": map[string]any{"id": runID, "status": string(schema.RunStatusPending)}}, nil
}

func decodeDefinition(raw any) (*schema.GraphDefinition, error) {
	if raw == nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "workflow definition is required")
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid workflow definition: %s", err.Error())
	}
	def := &schema.GraphDefinition{}
	if err := json.Unmarshal(b, def); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation, "invalid workflow definition: %s", err.Error())
	}
	return def, nil
}

func stringSlice(raw any) []string {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
