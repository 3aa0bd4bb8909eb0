package tools

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinflow/skein/internal/outcome"
	"github.com/skeinflow/skein/pkg/schema"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestDispatcherUnknownTool(t *testing.T) {
	d := NewDispatcher(NewRegistry(), discardLogger())

	got := d.Dispatch(context.Background(), "nope", Call{}, nil)
	assert.Equal(t, "nope", got.Name)
	assert.True(t, outcome.IsFailure(got.Result))
}

func TestDispatcherToolError(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Func{
		ToolName: "boom",
		Fn: func(ctx context.Context, call Call) (any, error) {
			return nil, errors.New("it broke")
		},
	}))
	d := NewDispatcher(r, discardLogger())

	got := d.Dispatch(context.Background(), "boom", Call{}, nil)
	result, ok := got.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "it broke", result["error"])
	assert.True(t, outcome.IsFailure(got.Result))
}

func TestDispatcherToolPanicRecovered(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&Func{
		ToolName: "explode",
		Fn: func(ctx context.Context, call Call) (any, error) {
			panic("kaboom")
		},
	}))
	d := NewDispatcher(r, discardLogger())

	got := d.Dispatch(context.Background(), "explode", Call{}, nil)
	result, ok := got.Result.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, result["error"], "kaboom")
}

func TestDispatcherResolvesReferences(t *testing.T) {
	var seen map[string]any
	r := NewRegistry()
	require.NoError(t, r.Register(&Func{
		ToolName: "echo",
		Fn: func(ctx context.Context, call Call) (any, error) {
			seen = call.Args
			return map[string]any{"ok": true}, nil
		},
	}))
	d := NewDispatcher(r, discardLogger())

	prior := []schema.ToolCall{
		{Name: "create_workflow", Result: map[string]any{"workflow": map[string]any{"id": "wf-42"}}},
	}
	got := d.Dispatch(context.Background(), "echo", Call{
		Args: map[string]any{"workflow": "{{create_workflow.workflow.id}}"},
	}, prior)

	assert.False(t, outcome.IsFailure(got.Result))
	assert.Equal(t, "wf-42", seen["workflow"])
}

func TestRegistryDuplicateAndLookup(t *testing.T) {
	r := NewRegistry()
	tool := &Func{ToolName: "t", Fn: func(ctx context.Context, call Call) (any, error) { return nil, nil }}

	require.NoError(t, r.Register(tool))
	err := r.Register(tool)
	require.Error(t, err)
	var serr *schema.SkeinError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeConflict, serr.Code)

	assert.True(t, r.Has("t"))
	assert.False(t, r.Has("u"))

	_, err = r.Get("u")
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeNotFound, serr.Code)
}

func TestRegistryListSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, r.Register(&Func{ToolName: name, Fn: func(ctx context.Context, call Call) (any, error) { return nil, nil }}))
	}

	infos := r.List()
	require.Len(t, infos, 3)
	assert.Equal(t, "alpha", infos[0].Name)
	assert.Equal(t, "zeta", infos[2].Name)
}
