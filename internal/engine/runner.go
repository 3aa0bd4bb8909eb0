package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/skeinflow/skein/internal/expressions"
	"github.com/skeinflow/skein/internal/logging"
	"github.com/skeinflow/skein/internal/outcome"
	"github.com/skeinflow/skein/internal/store"
	"github.com/skeinflow/skein/internal/tools"
	"github.com/skeinflow/skein/pkg/schema"
)

// Runner walks a run's graph round by round. Node turns within a run execute
// strictly sequentially so the trail keeps a total order; different runs may
// be driven by concurrent Runner calls independently.
type Runner struct {
	store      store.Store
	dispatcher *tools.Dispatcher
	turner     TurnTaker
	conditions expressions.Engine
	fsm        *RunFSM
	logger     *slog.Logger
}

// NewRunner assembles a Runner. conditions may be nil, in which case every
// edge condition is treated as an error surfaced on the step.
func NewRunner(s store.Store, dispatcher *tools.Dispatcher, turner TurnTaker, conditions expressions.Engine, fsm *RunFSM, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		store:      s,
		dispatcher: dispatcher,
		turner:     turner,
		conditions: conditions,
		fsm:        fsm,
		logger:     logger,
	}
}

// frontierEntry is one node scheduled for the current round with the input
// handed to it by its predecessor.
type frontierEntry struct {
	nodeID string
	input  any
}

// Run executes a pending run from its entry nodes.
func (r *Runner) Run(ctx context.Context, runID string) error {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}

	if err := r.transition(ctx, run, schema.RunStatusRunning); err != nil {
		return err
	}
	now := time.Now().UTC()
	running := schema.RunStatusRunning
	if err := r.store.UpdateRun(ctx, run.ID, store.RunUpdate{Status: &running, StartedAt: &now}); err != nil {
		return err
	}
	run.Status = running

	entries := run.Definition.EntryNodes()
	if len(entries) == 0 {
		return r.fail(ctx, run, schema.NewError(schema.ErrCodeConfig, "graph has no entry nodes"))
	}
	frontier := make([]frontierEntry, 0, len(entries))
	for _, id := range entries {
		frontier = append(frontier, frontierEntry{nodeID: id, input: run.Input})
	}

	return r.loop(ctx, run, frontier, 1)
}

// Resume re-enters a paused run at its persisted cursor. The user's response
// becomes the resumed node's input; trail-recorded steps are never re-run.
func (r *Runner) Resume(ctx context.Context, runID string) error {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != schema.RunStatusWaitingForUser || run.Cursor == nil {
		return schema.NewErrorf(schema.ErrCodeNotPending, "run %s has no pause point to resume", runID)
	}
	cursor := run.Cursor

	if err := r.transition(ctx, run, schema.RunStatusRunning); err != nil {
		return err
	}
	running := schema.RunStatusRunning
	if err := r.store.UpdateRun(ctx, run.ID, store.RunUpdate{Status: &running, ClearCursor: true}); err != nil {
		return err
	}
	run.Status = running
	run.Cursor = nil

	input := map[string]any{"userResponse": cursor.UserResponse}
	if cursor.Prompt != nil {
		input["prompt"] = cursor.Prompt
	}

	frontier := []frontierEntry{{nodeID: cursor.NextNodeID, input: input}}
	return r.loop(ctx, run, frontier, cursor.Round)
}

// loop is the round-by-round traversal shared by Run and Resume. It mutates
// run in place (trail, status) and persists after every step.
func (r *Runner) loop(ctx context.Context, run *store.Run, frontier []frontierEntry, round int) error {
	maxRounds := run.Definition.MaxRounds
	if maxRounds <= 0 {
		maxRounds = schema.DefaultMaxRounds
	}

	var lastOutput any
	history := callHistory(run.Trail)

	for ; round <= maxRounds && len(frontier) > 0; round++ {
		var next []frontierEntry

		for _, entry := range frontier {
			cancelled, err := r.isCancelled(ctx, run.ID)
			if err != nil {
				return r.fail(ctx, run, err)
			}
			if cancelled {
				r.logger.InfoContext(ctx, "run cancelled, stopping traversal",
					slog.String("run_id", run.ID), slog.String("node_id", entry.nodeID))
				return nil
			}

			node := run.Definition.NodeByID(entry.nodeID)
			if node == nil {
				return r.fail(ctx, run, schema.NewErrorf(schema.ErrCodeConfig,
					"edge targets unknown node %q", entry.nodeID))
			}

			turnCtx := logging.WithNodeID(ctx, node.ID)
			step, paused, err := r.turn(turnCtx, run, node, entry.input, round, &history)
			if err != nil {
				return r.fail(ctx, run, err)
			}

			if paused != nil {
				// The cursor re-enters this node on resume; routing a
				// pause payload through edge conditions is meaningless.
				if err := r.appendStep(ctx, run, step); err != nil {
					return err
				}
				return r.pause(ctx, run, node.ID, round, paused)
			}

			successors, routeErr := r.route(ctx, run, node, step.Output, entry.input, round, history)
			if routeErr != nil {
				step.Error = routeErr.Error()
				if err := r.appendStep(ctx, run, step); err != nil {
					return err
				}
				return r.fail(ctx, run, routeErr)
			}

			if len(successors) > 0 {
				ids := make([]string, len(successors))
				for i, s := range successors {
					ids[i] = s
				}
				step.SentToNodeID = strings.Join(ids, ",")
			}

			if err := r.appendStep(ctx, run, step); err != nil {
				return err
			}
			if step.Error != "" {
				return r.fail(ctx, run, schema.NewError(schema.ErrCodeToolFailed, step.Error).WithNode(node.ID))
			}

			lastOutput = step.Output
			for _, succ := range successors {
				next = append(next, frontierEntry{nodeID: succ, input: step.Output})
			}
		}

		frontier = next
	}

	return r.complete(ctx, run, lastOutput)
}

// turn executes one node visit: plan it, dispatch its tool calls, classify
// the results, and build the trail step. A pause signal short-circuits the
// remaining directives.
func (r *Runner) turn(ctx context.Context, run *store.Run, node *schema.Node, input any, round int, history *[]schema.ToolCall) (*schema.TrailStep, *outcome.PauseSignal, error) {
	step := &schema.TrailStep{
		Order:  len(run.Trail),
		Round:  round,
		NodeID: node.ID,
		Input:  input,
	}

	plan, agent, err := r.plan(ctx, run, node, input, round)
	if err != nil {
		return nil, nil, err
	}
	if agent != nil {
		step.AgentID = agent.ID
		step.AgentName = agent.Name
	}

	var output any = plan.Output
	for _, directive := range plan.Directives {
		call := r.dispatcher.Dispatch(ctx, directive.Tool, tools.Call{
			RunID:  run.ID,
			NodeID: node.ID,
			Args:   directive.Args,
		}, *history)

		step.ToolCalls = append(step.ToolCalls, call)
		*history = append(*history, call)
		r.appendToolEvent(ctx, run.ID, node.ID, call)

		if sig := outcome.DetectPause(call.Name, call.Result); sig != nil {
			step.Output = call.Result
			return step, sig, nil
		}
		if outcome.IsFailure(call.Result) {
			step.Output = call.Result
			step.Error = fmt.Sprintf("tool %s failed: %s", call.Name, failureMessage(call.Result))
			return step, nil, nil
		}
		output = call.Result
	}

	step.Output = output
	return step, nil, nil
}

// plan asks the turn taker what the node does. tool_call nodes skip the model
// and read the tool invocation straight from their params.
func (r *Runner) plan(ctx context.Context, run *store.Run, node *schema.Node, input any, round int) (*TurnPlan, *store.Agent, error) {
	if node.Type == schema.NodeTypeToolCall {
		toolName, _ := node.Params["tool"].(string)
		if toolName == "" {
			return nil, nil, schema.NewErrorf(schema.ErrCodeConfig,
				"tool_call node %q has no tool param", node.ID).WithNode(node.ID)
		}
		args, _ := node.Params["args"].(map[string]any)
		return &TurnPlan{Directives: []TurnDirective{{Tool: toolName, Args: args}}}, nil, nil
	}

	var agent *store.Agent
	if node.AgentID != "" {
		a, err := r.store.GetAgent(ctx, node.AgentID)
		if err == nil {
			agent = a
		}
	}

	plan, err := r.turner.PlanTurn(ctx, TurnRequest{
		Run:   run,
		Node:  node,
		Agent: agent,
		Input: input,
		Round: round,
	})
	if err != nil {
		return nil, nil, err
	}
	return plan, agent, nil
}

// route evaluates outgoing edges. An edge with a condition only fires when
// the condition is truthy against the node's output.
func (r *Runner) route(ctx context.Context, run *store.Run, node *schema.Node, output, input any, round int, history []schema.ToolCall) ([]string, error) {
	edges := run.Definition.Successors(node.ID)
	var targets []string

	for _, edge := range edges {
		if run.Definition.NodeByID(edge.Target) == nil {
			return nil, schema.NewErrorf(schema.ErrCodeConfig,
				"edge %s references unknown node %q", edge.ID, edge.Target)
		}
		if edge.Condition != "" {
			if r.conditions == nil {
				return nil, schema.NewErrorf(schema.ErrCodeConfig,
					"edge %s has a condition but no condition engine is configured", edge.ID)
			}
			scope := map[string]any{
				"output": asMap(output),
				"input":  asMap(input),
				"calls":  callsByName(history),
				"run":    map[string]any{"id": run.ID, "graph_id": run.GraphID, "round": round},
			}
			verdict, err := r.conditions.Evaluate(ctx, edge.Condition, scope)
			if err != nil {
				return nil, err
			}
			if !expressions.Truthy(verdict) {
				continue
			}
		}
		targets = append(targets, edge.Target)
	}
	return targets, nil
}

// appendStep persists the run with the new trail step attached.
func (r *Runner) appendStep(ctx context.Context, run *store.Run, step *schema.TrailStep) error {
	run.Trail = append(run.Trail, *step)
	if err := r.store.UpdateRun(ctx, run.ID, store.RunUpdate{Trail: run.Trail}); err != nil {
		return err
	}

	event := &store.Event{RunID: run.ID, NodeID: step.NodeID, Type: schema.EventNodeCompleted}
	if step.Error != "" {
		event.Type = schema.EventNodeFailed
	}
	if err := r.store.AppendEvent(ctx, event); err != nil {
		r.logger.WarnContext(ctx, "append node event failed",
			slog.String("run_id", run.ID), slog.String("error", err.Error()))
	}
	return nil
}

func (r *Runner) appendToolEvent(ctx context.Context, runID, nodeID string, call schema.ToolCall) {
	payload, err := marshalPayload(map[string]any{"tool": call.Name})
	if err != nil {
		return
	}
	event := &store.Event{RunID: runID, NodeID: nodeID, Type: schema.EventToolInvoked, Payload: payload}
	if err := r.store.AppendEvent(ctx, event); err != nil {
		r.logger.WarnContext(ctx, "append tool event failed",
			slog.String("run_id", runID), slog.String("error", err.Error()))
	}
}

// pause persists the pause point and parks the run in waiting_for_user.
func (r *Runner) pause(ctx context.Context, run *store.Run, nodeID string, round int, sig *outcome.PauseSignal) error {
	settled, err := r.refresh(ctx, run)
	if err != nil {
		return err
	}
	if settled {
		return nil
	}
	if err := r.transition(ctx, run, schema.RunStatusWaitingForUser); err != nil {
		return err
	}

	waiting := schema.RunStatusWaitingForUser
	cursor := &schema.ResumeCursor{
		NextNodeID: nodeID,
		Round:      round,
		Prompt:     sig,
	}
	if err := r.store.UpdateRun(ctx, run.ID, store.RunUpdate{Status: &waiting, Cursor: cursor}); err != nil {
		return err
	}
	run.Status = waiting
	run.Cursor = cursor

	r.logger.InfoContext(ctx, "run paused for user input",
		slog.String("run_id", run.ID),
		slog.String("node_id", nodeID),
		slog.String("question", sig.Question))
	return nil
}

// complete finishes a run successfully, storing the final node output.
func (r *Runner) complete(ctx context.Context, run *store.Run, output any) error {
	settled, err := r.refresh(ctx, run)
	if err != nil {
		return err
	}
	if settled {
		return nil
	}
	if err := r.transition(ctx, run, schema.RunStatusCompleted); err != nil {
		return err
	}

	completed := schema.RunStatusCompleted
	now := time.Now().UTC()
	update := store.RunUpdate{Status: &completed, FinishedAt: &now}
	if output != nil {
		payload, err := marshalPayload(output)
		if err == nil {
			update.Output = payload
		}
	}
	if err := r.store.UpdateRun(ctx, run.ID, update); err != nil {
		return err
	}
	run.Status = completed

	r.logger.InfoContext(ctx, "run completed",
		slog.String("run_id", run.ID), slog.Int("steps", len(run.Trail)))
	return nil
}

// fail marks the run failed, storing the error message and stack for
// diagnostics. The original error is returned for the caller's logs.
func (r *Runner) fail(ctx context.Context, run *store.Run, cause error) error {
	settled, err := r.refresh(ctx, run)
	if err != nil {
		return err
	}
	if settled {
		return nil
	}
	if terr := r.transition(ctx, run, schema.RunStatusFailed); terr != nil {
		return terr
	}

	failed := schema.RunStatusFailed
	now := time.Now().UTC()
	payload, _ := marshalPayload(schema.FailurePayload{
		Error: cause.Error(),
		Stack: string(debug.Stack()),
	})
	if err := r.store.UpdateRun(ctx, run.ID, store.RunUpdate{
		Status:     &failed,
		Output:     payload,
		FinishedAt: &now,
	}); err != nil {
		return err
	}
	run.Status = failed

	r.logger.ErrorContext(ctx, "run failed",
		slog.String("run_id", run.ID), slog.String("error", cause.Error()))
	return cause
}

func (r *Runner) transition(ctx context.Context, run *store.Run, to schema.RunStatus) error {
	return r.fsm.Transition(ctx, run.ID, run.Status, to)
}

// refresh syncs the in-memory run with the persisted status and reports
// whether the run already reached a terminal state. A cancel that lands
// mid-turn must not be overwritten by the turn's own outcome.
func (r *Runner) refresh(ctx context.Context, run *store.Run) (bool, error) {
	current, err := r.store.GetRun(ctx, run.ID)
	if err != nil {
		return false, err
	}
	run.Status = current.Status
	if !current.Status.Terminal() {
		return false, nil
	}
	r.logger.InfoContext(ctx, "run already settled, leaving status untouched",
		slog.String("run_id", run.ID), slog.String("status", string(current.Status)))
	return true, nil
}

// isCancelled re-reads the run status. Cancellation is cooperative: the
// lifecycle flips the status and the runner observes it before the next turn.
func (r *Runner) isCancelled(ctx context.Context, runID string) (bool, error) {
	current, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return false, err
	}
	return current.Status == schema.RunStatusCancelled, nil
}

// callHistory rebuilds the run's tool call history from its trail, so
// reference resolution keeps working across a pause and resume.
// callsByName exposes the call history to edge conditions as a map keyed by
// tool name. Later calls overwrite earlier ones, so a condition sees the
// most recent result for each tool.
func callsByName(history []schema.ToolCall) map[string]any {
	calls := make(map[string]any, len(history))
	for _, call := range history {
		calls[call.Name] = call.Result
	}
	return calls
}

func callHistory(trail []schema.TrailStep) []schema.ToolCall {
	var calls []schema.ToolCall
	for _, step := range trail {
		calls = append(calls, step.ToolCalls...)
	}
	return calls
}

func failureMessage(result any) string {
	if m, ok := result.(map[string]any); ok {
		if msg, ok := m["error"].(string); ok && msg != "" {
			return msg
		}
	}
	return "classified as failure"
}

func asMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	if v == nil {
		return map[string]any{}
	}
	return map[string]any{"value": v}
}
