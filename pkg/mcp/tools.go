package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/skeinflow/skein/internal/store"
	"github.com/skeinflow/skein/pkg/schema"
)

// handleExecute starts a run from a stored graph or an inline definition.
func (s *SkeinServer) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	graphID := req.GetString("graph_id", "")
	definition := mcp.ParseStringMap(req, "definition", nil)
	input := mcp.ParseStringMap(req, "input", nil)

	var (
		runID string
		err   error
	)
	switch {
	case graphID != "":
		runID, err = s.lifecycle.StartGraph(ctx, graphID, input)
	case definition != nil:
		def, defErr := decodeDefinition(definition)
		if defErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid definition: %v", defErr)), nil
		}
		runID, err = s.lifecycle.StartDefinition(ctx, "", def, input)
	default:
		return mcp.NewToolResultError("graph_id or definition is required"), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("execute failed: %v", err)), nil
	}

	// Remember which session started this run so pause and completion
	// notifications can find their way back.
	s.captureSession(ctx, runID)

	return marshalResult(map[string]any{
		"run_id": runID,
		"status": string(schema.RunStatusPending),
	})
}

// handleRespond records the user's answer on a waiting run. The resumable
// queue picks the run up from there.
func (s *SkeinServer) handleRespond(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}
	response, err := req.RequireString("response")
	if err != nil {
		return mcp.NewToolResultError("response is required"), nil
	}

	s.captureSession(ctx, runID)

	if respErr := s.lifecycle.Respond(ctx, runID, response); respErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("respond failed: %v", respErr)), nil
	}

	return marshalResult(map[string]any{
		"ok":     true,
		"run_id": runID,
	})
}

// handleStatus returns the current state of a run.
func (s *SkeinServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}

	run, getErr := s.lifecycle.Get(ctx, runID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("status query failed: %v", getErr)), nil
	}

	return marshalResult(runStatusView(run))
}

// handleCancel stops a run that has not reached a terminal status.
func (s *SkeinServer) handleCancel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run_id")
	if err != nil {
		return mcp.NewToolResultError("run_id is required"), nil
	}

	if cancelErr := s.lifecycle.Cancel(ctx, runID); cancelErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cancel failed: %v", cancelErr)), nil
	}

	return marshalResult(map[string]any{
		"ok":     true,
		"run_id": runID,
		"status": string(schema.RunStatusCancelled),
	})
}

// handleTools lists the tools the dispatcher can hand to graph nodes.
func (s *SkeinServer) handleTools(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(map[string]any{
		"tools": s.registry.List(),
	})
}

// runStatusView trims a stored run down to what a planner needs.
func runStatusView(run *store.Run) map[string]any {
	view := map[string]any{
		"run_id":     run.ID,
		"status":     string(run.Status),
		"trail":      run.Trail,
		"created_at": run.CreatedAt,
	}
	if run.GraphID != "" {
		view["graph_id"] = run.GraphID
	}
	if len(run.Output) > 0 {
		view["output"] = json.RawMessage(run.Output)
	}
	if run.Cursor != nil && run.Status == schema.RunStatusWaitingForUser {
		view["pending_prompt"] = run.Cursor.Prompt
	}
	if run.FinishedAt != nil {
		view["finished_at"] = run.FinishedAt
	}
	return view
}

// decodeDefinition round-trips a loosely typed map into a graph definition.
func decodeDefinition(raw map[string]any) (schema.GraphDefinition, error) {
	var def schema.GraphDefinition
	data, err := json.Marshal(raw)
	if err != nil {
		return def, err
	}
	if err := json.Unmarshal(data, &def); err != nil {
		return def, err
	}
	return def, nil
}

func (s *SkeinServer) captureSession(ctx context.Context, runID string) {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		s.sessions.Register(runID, session.SessionID())
	}
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
