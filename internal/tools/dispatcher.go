package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skeinflow/skein/internal/refs"
	"github.com/skeinflow/skein/pkg/schema"
)

// Dispatcher executes tool calls requested during a node turn. Before each
// execution it resolves cross-call placeholders in the arguments against the
// run's prior tool results. Failures never propagate as Go errors: an unknown
// tool, a tool error, or a tool panic all come back as a structured result
// with an "error" key, so the run's outcome classification stays uniform.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher over the given registry.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Dispatch resolves references in args, executes the named tool, and returns
// the completed call record. The prior slice is the run's tool call history
// in chronological order; resolution scans it most recent first.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, call Call, prior []schema.ToolCall) schema.ToolCall {
	call.Args = refs.Resolve(call.Args, prior)

	tool, err := d.registry.Get(name)
	if err != nil {
		d.logger.WarnContext(ctx, "unknown tool requested",
			slog.String("tool", name))
		return schema.ToolCall{
			Name:   name,
			Result: map[string]any{"error": fmt.Sprintf("unknown tool: %s", name)},
		}
	}

	result := d.execute(ctx, tool, call)
	return schema.ToolCall{Name: name, Result: result}
}

// execute runs the tool with panic recovery. A panicking tool fails its call,
// not the process.
func (d *Dispatcher) execute(ctx context.Context, tool Tool, call Call) (result any) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.ErrorContext(ctx, "tool panicked",
				slog.String("tool", tool.Name()),
				slog.Any("panic", r))
			result = map[string]any{"error": fmt.Sprintf("tool %s panicked: %v", tool.Name(), r)}
		}
	}()

	out, err := tool.Execute(ctx, call)
	if err != nil {
		d.logger.WarnContext(ctx, "tool returned error",
			slog.String("tool", tool.Name()),
			slog.String("error", err.Error()))
		return map[string]any{"error": err.Error()}
	}
	return out
}
