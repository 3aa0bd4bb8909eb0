package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinflow/skein/internal/engine"
	"github.com/skeinflow/skein/internal/expressions"
	"github.com/skeinflow/skein/internal/store"
	"github.com/skeinflow/skein/internal/tools"
	"github.com/skeinflow/skein/pkg/schema"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestSkeinServer(t *testing.T, turner engine.TurnTaker) (*SkeinServer, store.Store) {
	t.Helper()

	s := store.NewMemoryStore()
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(&tools.AskUserTool{}))

	cel, err := expressions.NewCELEngine()
	require.NoError(t, err)

	fsm := engine.NewRunFSM(s)
	dispatcher := tools.NewDispatcher(registry, testLogger())
	runner := engine.NewRunner(s, dispatcher, turner, cel, fsm, testLogger())
	pool := engine.NewWorkerPool(2)
	t.Cleanup(pool.Shutdown)
	lifecycle := engine.NewLifecycle(s, runner, fsm, pool, testLogger())

	return NewSkeinServer(SkeinServerDeps{
		Lifecycle: lifecycle,
		Store:     s,
		Registry:  registry,
		Logger:    testLogger(),
	}), s
}

func fixedOutputTurner(output map[string]any) engine.TurnTaker {
	return engine.TurnTakerFunc(func(ctx context.Context, req engine.TurnRequest) (*engine.TurnPlan, error) {
		return &engine.TurnPlan{Output: output}, nil
	})
}

func askUserTurner() engine.TurnTaker {
	return engine.TurnTakerFunc(func(ctx context.Context, req engine.TurnRequest) (*engine.TurnPlan, error) {
		return &engine.TurnPlan{Directives: []engine.TurnDirective{{
			Tool: "ask_user",
			Args: map[string]any{"question": "Which region?"},
		}}}, nil
	})
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func singleNodeDefinition() map[string]any {
	return map[string]any{
		"nodes": []any{
			map[string]any{"id": "A", "type": "agent", "name": "solo"},
		},
	}
}

func waitForTerminal(t *testing.T, s store.Store, runID string) *store.Run {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		run, err := s.GetRun(context.Background(), runID)
		require.NoError(t, err)
		if run.Status.Terminal() || run.Status == schema.RunStatusWaitingForUser {
			return run
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("run %s never settled", runID)
	return nil
}

func TestExecuteToolInlineDefinition(t *testing.T) {
	s, st := newTestSkeinServer(t, fixedOutputTurner(map[string]any{"done": true}))

	req := buildRequest("skein.execute", map[string]any{
		"definition": singleNodeDefinition(),
		"input":      map[string]any{"goal": "ship"},
	})
	result, err := s.handleExecute(context.Background(), req)
	require.NoError(t, err)
	require.False(t, result.IsError)

	body := resultJSON(t, result)
	runID, _ := body["run_id"].(string)
	require.NotEmpty(t, runID)

	run := waitForTerminal(t, st, runID)
	assert.Equal(t, schema.RunStatusCompleted, run.Status)
}

func TestExecuteToolStoredGraph(t *testing.T) {
	s, st := newTestSkeinServer(t, fixedOutputTurner(map[string]any{"ok": 1}))

	def := schema.GraphDefinition{Nodes: []schema.Node{{ID: "A", Type: schema.NodeTypeAgent}}}
	require.NoError(t, st.CreateGraph(context.Background(), &store.Graph{ID: "g1", Name: "wf", Definition: def}))

	result, err := s.handleExecute(context.Background(), buildRequest("skein.execute", map[string]any{
		"graph_id": "g1",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	body := resultJSON(t, result)
	run := waitForTerminal(t, st, body["run_id"].(string))
	assert.Equal(t, "g1", run.GraphID)
}

func TestExecuteToolRequiresGraphOrDefinition(t *testing.T) {
	s, _ := newTestSkeinServer(t, fixedOutputTurner(nil))

	result, err := s.handleExecute(context.Background(), buildRequest("skein.execute", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestStatusToolReportsPendingPrompt(t *testing.T) {
	s, st := newTestSkeinServer(t, askUserTurner())

	result, err := s.handleExecute(context.Background(), buildRequest("skein.execute", map[string]any{
		"definition": singleNodeDefinition(),
	}))
	require.NoError(t, err)
	runID := resultJSON(t, result)["run_id"].(string)

	run := waitForTerminal(t, st, runID)
	require.Equal(t, schema.RunStatusWaitingForUser, run.Status)

	statusResult, err := s.handleStatus(context.Background(), buildRequest("skein.status", map[string]any{
		"run_id": runID,
	}))
	require.NoError(t, err)
	require.False(t, statusResult.IsError)

	body := resultJSON(t, statusResult)
	assert.Equal(t, string(schema.RunStatusWaitingForUser), body["status"])
	prompt, ok := body["pending_prompt"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Which region?", prompt["question"])
}

func TestStatusToolUnknownRun(t *testing.T) {
	s, _ := newTestSkeinServer(t, fixedOutputTurner(nil))

	result, err := s.handleStatus(context.Background(), buildRequest("skein.status", map[string]any{
		"run_id": "missing",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestRespondToolRecordsAnswerOnce(t *testing.T) {
	s, st := newTestSkeinServer(t, askUserTurner())

	result, err := s.handleExecute(context.Background(), buildRequest("skein.execute", map[string]any{
		"definition": singleNodeDefinition(),
	}))
	require.NoError(t, err)
	runID := resultJSON(t, result)["run_id"].(string)
	waitForTerminal(t, st, runID)

	first, err := s.handleRespond(context.Background(), buildRequest("skein.respond", map[string]any{
		"run_id":   runID,
		"response": "us-east-1",
	}))
	require.NoError(t, err)
	assert.False(t, first.IsError)

	second, err := s.handleRespond(context.Background(), buildRequest("skein.respond", map[string]any{
		"run_id":   runID,
		"response": "us-west-2",
	}))
	require.NoError(t, err)
	assert.True(t, second.IsError)
}

func TestCancelTool(t *testing.T) {
	s, st := newTestSkeinServer(t, askUserTurner())

	result, err := s.handleExecute(context.Background(), buildRequest("skein.execute", map[string]any{
		"definition": singleNodeDefinition(),
	}))
	require.NoError(t, err)
	runID := resultJSON(t, result)["run_id"].(string)
	waitForTerminal(t, st, runID)

	cancelResult, err := s.handleCancel(context.Background(), buildRequest("skein.cancel", map[string]any{
		"run_id": runID,
	}))
	require.NoError(t, err)
	require.False(t, cancelResult.IsError)

	run, err := st.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusCancelled, run.Status)

	// A terminal run cannot be cancelled again.
	again, err := s.handleCancel(context.Background(), buildRequest("skein.cancel", map[string]any{
		"run_id": runID,
	}))
	require.NoError(t, err)
	assert.True(t, again.IsError)
}

func TestToolsToolListsRegistry(t *testing.T) {
	s, _ := newTestSkeinServer(t, fixedOutputTurner(nil))

	result, err := s.handleTools(context.Background(), buildRequest("skein.tools", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	body := resultJSON(t, result)
	infos, ok := body["tools"].([]any)
	require.True(t, ok)
	require.Len(t, infos, 1)
	first := infos[0].(map[string]any)
	assert.Equal(t, "ask_user", first["name"])
}
