package expressions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinflow/skein/pkg/schema"
)

func TestCELEngineConditions(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name string
		expr string
		data map[string]any
		want any
	}{
		{
			name: "output field comparison",
			expr: `output.status == "approved"`,
			data: map[string]any{"output": map[string]any{"status": "approved"}},
			want: true,
		},
		{
			name: "missing scope defaults to empty map",
			expr: `"status" in output`,
			data: nil,
			want: false,
		},
		{
			name: "run round check",
			expr: `run.round < 3`,
			data: map[string]any{"run": map[string]any{"round": 1}},
			want: true,
		},
		{
			name: "input value",
			expr: `input.env == "prod" && output.ok == true`,
			data: map[string]any{
				"input":  map[string]any{"env": "prod"},
				"output": map[string]any{"ok": true},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(ctx, tt.expr, tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCELEngineCompileError(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), `output.status ==`, nil)
	require.Error(t, err)
	var serr *schema.SkeinError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeValidation, serr.Code)
}

func TestCELEngineEmptyExpression(t *testing.T) {
	e, err := NewCELEngine()
	require.NoError(t, err)

	_, err = e.Evaluate(context.Background(), "", nil)
	require.Error(t, err)
}

func TestExprEngineEvaluate(t *testing.T) {
	e := NewExprEngine()
	ctx := context.Background()

	got, err := e.Evaluate(ctx, `filter(items, .price > 10) | map(.name)`, map[string]any{
		"items": []any{
			map[string]any{"name": "a", "price": 5},
			map[string]any{"name": "b", "price": 20},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"b"}, got)
}

func TestExprEngineUndefinedVariable(t *testing.T) {
	e := NewExprEngine()

	got, err := e.Evaluate(context.Background(), `missing ?? "fallback"`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", got)
}

func TestGoJQEngineSingleOutput(t *testing.T) {
	e := NewGoJQEngine()

	got, err := e.Evaluate(context.Background(), `.items | length`, map[string]any{
		"items": []any{1, 2, 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestGoJQEngineMultipleOutputs(t *testing.T) {
	e := NewGoJQEngine()

	got, err := e.Evaluate(context.Background(), `.items[]`, map[string]any{
		"items": []any{"x", "y"},
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"x", "y"}, got)
}

func TestGoJQEngineParseError(t *testing.T) {
	e := NewGoJQEngine()

	_, err := e.Evaluate(context.Background(), `.[unclosed`, nil)
	require.Error(t, err)
	var serr *schema.SkeinError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeValidation, serr.Code)
}

func TestTruthy(t *testing.T) {
	assert.False(t, Truthy(nil))
	assert.False(t, Truthy(false))
	assert.False(t, Truthy(""))
	assert.False(t, Truthy(0))
	assert.False(t, Truthy(float64(0)))
	assert.True(t, Truthy(true))
	assert.True(t, Truthy("yes"))
	assert.True(t, Truthy(1))
	assert.True(t, Truthy(map[string]any{}))
}
