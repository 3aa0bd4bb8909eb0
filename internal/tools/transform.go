package tools

import (
	"context"

	"github.com/skeinflow/skein/internal/expressions"
	"github.com/skeinflow/skein/pkg/schema"
)

// TransformTool reshapes JSON data with a jq expression.
type TransformTool struct {
	engine *expressions.GoJQEngine
}

// NewTransformTool creates a transform tool over a shared GoJQ engine.
func NewTransformTool(engine *expressions.GoJQEngine) *TransformTool {
	return &TransformTool{engine: engine}
}

func (t *TransformTool) Name() string { return "transform" }

func (t *TransformTool) Schema() ToolSchema {
	return ToolSchema{Description: "Transform JSON data with a jq expression. Args: expression (string), data (object)."}
}

func (t *TransformTool) Execute(ctx context.Context, call Call) (any, error) {
	expression, _ := call.Args["expression"].(string)
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "transform requires an expression")
	}
	data, _ := call.Args["data"].(map[string]any)

	result, err := t.engine.Evaluate(ctx, expression, data)
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": result}, nil
}

// EvaluateTool runs an expr-lang expression against provided variables.
type EvaluateTool struct {
	engine *expressions.ExprEngine
}

// NewEvaluateTool creates an evaluate tool over a shared Expr engine.
func NewEvaluateTool(engine *expressions.ExprEngine) *EvaluateTool {
	return &EvaluateTool{engine: engine}
}

func (t *EvaluateTool) Name() string { return "evaluate" }

func (t *EvaluateTool) Schema() ToolSchema {
	return ToolSchema{Description: "Evaluate an expression against variables. Args: expression (string), variables (object)."}
}

func (t *EvaluateTool) Execute(ctx context.Context, call Call) (any, error) {
	expression, _ := call.Args["expression"].(string)
	if expression == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "evaluate requires an expression")
	}
	vars, _ := call.Args["variables"].(map[string]any)

	result, err := t.engine.Evaluate(ctx, expression, vars)
	if err != nil {
		return nil, err
	}
	return map[string]any{"result": result}, nil
}
