package tools

import (
	"context"

	"github.com/skeinflow/skein/internal/llm"
	"github.com/skeinflow/skein/pkg/schema"
)

// CallLLMTool sends a prompt to the configured language model.
type CallLLMTool struct {
	client llm.Client
}

func NewCallLLMTool(client llm.Client) *CallLLMTool { return &CallLLMTool{client: client} }

func (t *CallLLMTool) Name() string { return "call_llm" }

func (t *CallLLMTool) Schema() ToolSchema {
	return ToolSchema{Description: "Call the language model. Args: prompt (string), system (string), model (string)."}
}

func (t *CallLLMTool) Execute(ctx context.Context, call Call) (any, error) {
	prompt, _ := call.Args["prompt"].(string)
	if prompt == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "call_llm requires a prompt")
	}

	req := llm.Request{Prompt: prompt}
	req.System, _ = call.Args["system"].(string)
	req.Model, _ = call.Args["model"].(string)

	resp, err := t.client.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"text":  resp.Text,
		"model": resp.Model,
	}, nil
}

// TrainModelTool kicks off a fine-tune job through the model provider. The
// provider does the heavy lifting; this tool validates arguments and relays
// the job handle.
type TrainModelTool struct {
	client llm.Client
}

func NewTrainModelTool(client llm.Client) *TrainModelTool { return &TrainModelTool{client: client} }

func (t *TrainModelTool) Name() string { return "train_model" }

func (t *TrainModelTool) Schema() ToolSchema {
	return ToolSchema{Description: "Start a model fine-tune. Args: base_model (string), dataset (string)."}
}

func (t *TrainModelTool) Execute(ctx context.Context, call Call) (any, error) {
	baseModel, _ := call.Args["base_model"].(string)
	dataset, _ := call.Args["dataset"].(string)
	if baseModel == "" || dataset == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "train_model requires base_model and dataset")
	}

	resp, err := t.client.Call(ctx, llm.Request{
		Prompt: dataset,
		Model:  baseModel,
		Metadata: map[string]any{
			"operation": "fine_tune",
		},
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"job":   resp.Text,
		"model": resp.Model,
	}, nil
}
