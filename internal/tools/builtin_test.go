package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinflow/skein/internal/expressions"
	"github.com/skeinflow/skein/internal/llm"
	"github.com/skeinflow/skein/internal/outcome"
	"github.com/skeinflow/skein/internal/store"
)

func TestAskUserProducesPauseSignal(t *testing.T) {
	tool := &AskUserTool{}

	result, err := tool.Execute(context.Background(), Call{Args: map[string]any{
		"question": "Deploy to prod?",
		"options":  []any{"yes", "no"},
	}})
	require.NoError(t, err)

	sig := outcome.DetectPause(tool.Name(), result)
	require.NotNil(t, sig)
	assert.Equal(t, "Deploy to prod?", sig.Question)
	assert.Equal(t, []string{"yes", "no"}, sig.Options)
}

func TestAskUserRequiresQuestion(t *testing.T) {
	tool := &AskUserTool{}

	_, err := tool.Execute(context.Background(), Call{Args: map[string]any{}})
	require.Error(t, err)
}

func TestRequestUserHelpProducesPauseSignal(t *testing.T) {
	tool := &RequestUserHelpTool{}

	result, err := tool.Execute(context.Background(), Call{Args: map[string]any{
		"reason": "credentials expired",
	}})
	require.NoError(t, err)

	sig := outcome.DetectPause(tool.Name(), result)
	require.NotNil(t, sig)
	assert.Equal(t, "credentials expired", sig.Question)
}

func TestFormatResponseWithoutNeedsInputDoesNotPause(t *testing.T) {
	tool := &FormatResponseTool{}

	result, err := tool.Execute(context.Background(), Call{Args: map[string]any{
		"response": "All done.",
	}})
	require.NoError(t, err)
	assert.Nil(t, outcome.DetectPause(tool.Name(), result))
}

func TestFormatResponseWithNeedsInputPauses(t *testing.T) {
	tool := &FormatResponseTool{}

	result, err := tool.Execute(context.Background(), Call{Args: map[string]any{
		"response":   "Here is the draft.",
		"needsInput": "Approve the draft?",
	}})
	require.NoError(t, err)

	sig := outcome.DetectPause(tool.Name(), result)
	require.NotNil(t, sig)
	assert.Equal(t, "Approve the draft?", sig.Question)
}

func TestCreateAndUpdateAgentTools(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()

	create := NewCreateAgentTool(s)
	result, err := create.Execute(ctx, Call{Args: map[string]any{
		"name":         "researcher",
		"instructions": "find sources",
		"tools":        []any{"transform", "call_llm"},
	}})
	require.NoError(t, err)

	agentInfo := result.(map[string]any)["agent"].(map[string]any)
	id := agentInfo["id"].(string)
	require.NotEmpty(t, id)

	update := NewUpdateAgentTool(s)
	_, err = update.Execute(ctx, Call{Args: map[string]any{
		"id":    id,
		"model": "gpt-4o",
	}})
	require.NoError(t, err)

	agent, err := s.GetAgent(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "researcher", agent.Name)
	assert.Equal(t, "gpt-4o", agent.Model)
	assert.Equal(t, []string{"transform", "call_llm"}, agent.Tools)
}

func TestCreateWorkflowToolValidatesDefinition(t *testing.T) {
	s := store.NewMemoryStore()
	create := NewCreateWorkflowTool(s)

	_, err := create.Execute(context.Background(), Call{Args: map[string]any{"name": "wf"}})
	require.Error(t, err)

	result, err := create.Execute(context.Background(), Call{Args: map[string]any{
		"name": "wf",
		"definition": map[string]any{
			"nodes": []any{map[string]any{"id": "n1", "type": "agent", "agent_id": "a1"}},
		},
	}})
	require.NoError(t, err)
	wfInfo := result.(map[string]any)["workflow"].(map[string]any)
	assert.NotEmpty(t, wfInfo["id"])
}

type stubStarter struct {
	graphID string
	input   map[string]any
}

func (s *stubStarter) StartGraph(ctx context.Context, graphID string, input map[string]any) (string, error) {
	s.graphID = graphID
	s.input = input
	return "run-1", nil
}

func TestExecuteWorkflowTool(t *testing.T) {
	starter := &stubStarter{}
	tool := NewExecuteWorkflowTool(starter)

	result, err := tool.Execute(context.Background(), Call{Args: map[string]any{
		"workflow_id": "wf-1",
		"input":       map[string]any{"env": "prod"},
	}})
	require.NoError(t, err)
	assert.Equal(t, "wf-1", starter.graphID)
	assert.Equal(t, "prod", starter.input["env"])

	runInfo := result.(map[string]any)["run"].(map[string]any)
	assert.Equal(t, "run-1", runInfo["id"])
}

func TestCallLLMTool(t *testing.T) {
	client := llm.ClientFunc(func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		return &llm.Response{Text: "echo: " + req.Prompt, Model: req.Model}, nil
	})
	tool := NewCallLLMTool(client)

	result, err := tool.Execute(context.Background(), Call{Args: map[string]any{
		"prompt": "hello",
		"model":  "gpt-4o",
	}})
	require.NoError(t, err)
	out := result.(map[string]any)
	assert.Equal(t, "echo: hello", out["text"])
	assert.Equal(t, "gpt-4o", out["model"])
}

func TestTransformAndEvaluateTools(t *testing.T) {
	ctx := context.Background()

	transform := NewTransformTool(expressions.NewGoJQEngine())
	result, err := transform.Execute(ctx, Call{Args: map[string]any{
		"expression": ".items | length",
		"data":       map[string]any{"items": []any{1, 2}},
	}})
	require.NoError(t, err)
	assert.Equal(t, 2, result.(map[string]any)["result"])

	evaluate := NewEvaluateTool(expressions.NewExprEngine())
	result, err = evaluate.Execute(ctx, Call{Args: map[string]any{
		"expression": "a + b",
		"variables":  map[string]any{"a": 2, "b": 3},
	}})
	require.NoError(t, err)
	assert.Equal(t, 5, result.(map[string]any)["result"])
}
