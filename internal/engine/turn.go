package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/skeinflow/skein/internal/llm"
	"github.com/skeinflow/skein/internal/store"
	"github.com/skeinflow/skein/pkg/schema"
)

// TurnRequest is everything an agent needs to take one turn: the node being
// visited, its resolved input, and the run it belongs to.
type TurnRequest struct {
	Run   *store.Run
	Node  *schema.Node
	Agent *store.Agent
	Input any
	Round int
}

// TurnDirective is a single tool invocation requested by an agent's turn.
type TurnDirective struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// TurnPlan is the outcome of asking an agent what to do: zero or more tool
// invocations plus an optional direct output for when no tools are needed.
type TurnPlan struct {
	Directives []TurnDirective `json:"tool_calls,omitempty"`
	Output     any             `json:"output,omitempty"`
}

// TurnTaker decides what an agent does on its turn. The production
// implementation delegates to the injected language model; tests substitute
// scripted turns.
type TurnTaker interface {
	PlanTurn(ctx context.Context, req TurnRequest) (*TurnPlan, error)
}

// TurnTakerFunc adapts a function to the TurnTaker interface.
type TurnTakerFunc func(ctx context.Context, req TurnRequest) (*TurnPlan, error)

func (f TurnTakerFunc) PlanTurn(ctx context.Context, req TurnRequest) (*TurnPlan, error) {
	return f(ctx, req)
}

// LLMTurner plans agent turns by calling the language model with the agent's
// instructions and the turn input. The model answers with a JSON plan
// ({"tool_calls": [...], "output": ...}); plain text answers become the turn
// output directly.
type LLMTurner struct {
	client llm.Client
}

// NewLLMTurner creates a TurnTaker over the injected model client.
func NewLLMTurner(client llm.Client) *LLMTurner {
	return &LLMTurner{client: client}
}

func (t *LLMTurner) PlanTurn(ctx context.Context, req TurnRequest) (*TurnPlan, error) {
	inputJSON, err := json.Marshal(req.Input)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"turn input is not serializable: %s", err.Error()).WithNode(req.Node.ID)
	}

	llmReq := llm.Request{
		Prompt: fmt.Sprintf("Input for this turn:\n%s", inputJSON),
		Metadata: map[string]any{
			"run_id":  req.Run.ID,
			"node_id": req.Node.ID,
			"round":   req.Round,
		},
	}
	if req.Agent != nil {
		llmReq.System = req.Agent.Instructions
		llmReq.Model = req.Agent.Model
	}

	resp, err := t.client.Call(ctx, llmReq)
	if err != nil {
		return nil, err
	}

	return parseTurnPlan(resp.Text), nil
}

// parseTurnPlan decodes a model answer. Anything that is not a JSON plan is
// treated as a direct text output.
func parseTurnPlan(text string) *TurnPlan {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") {
		plan := &TurnPlan{}
		if err := json.Unmarshal([]byte(trimmed), plan); err == nil {
			if len(plan.Directives) > 0 || plan.Output != nil {
				return plan
			}
		}
	}
	return &TurnPlan{Output: text}
}
