package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/skeinflow/skein/internal/store"
	"github.com/skeinflow/skein/pkg/schema"
)

// runView is the wire shape of a run, trimming store internals.
type runView struct {
	ID         string               `json:"id"`
	GraphID    string               `json:"graph_id,omitempty"`
	Status     schema.RunStatus     `json:"status"`
	Input      any                  `json:"input,omitempty"`
	Output     json.RawMessage      `json:"output,omitempty"`
	Trail      []schema.TrailStep   `json:"trail"`
	Cursor     *schema.ResumeCursor `json:"cursor,omitempty"`
	RetryOf    string               `json:"retry_of_run_id,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	StartedAt  *time.Time           `json:"started_at,omitempty"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
}

func toRunView(run *store.Run) runView {
	return runView{
		ID:         run.ID,
		GraphID:    run.GraphID,
		Status:     run.Status,
		Input:      run.Input,
		Output:     run.Output,
		Trail:      run.Trail,
		Cursor:     run.Cursor,
		RetryOf:    run.RetryOf,
		CreatedAt:  run.CreatedAt,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
}

// handleStartRun starts a run from a stored graph or an inline definition.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body struct {
		GraphID    string                  `json:"graph_id"`
		Definition *schema.GraphDefinition `json:"definition"`
		Input      map[string]any          `json:"input"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	var (
		runID string
		err   error
	)
	switch {
	case body.GraphID != "":
		runID, err = s.deps.Lifecycle.StartGraph(ctx, body.GraphID, body.Input)
	case body.Definition != nil:
		runID, err = s.deps.Lifecycle.StartDefinition(ctx, "", *body.Definition, body.Input)
	default:
		writeError(w, http.StatusBadRequest, "graph_id or definition is required")
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"id":     runID,
		"status": string(schema.RunStatusPending),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{
		GraphID: r.URL.Query().Get("graph_id"),
		Limit:   queryInt(r, "limit", 50),
		Offset:  queryInt(r, "offset", 0),
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := schema.RunStatus(raw)
		filter.Status = &status
	}

	runs, err := s.deps.Store.ListRuns(r.Context(), filter)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		views = append(views, toRunView(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": views})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.deps.Lifecycle.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunView(run))
}

// handleRespond delivers a user response to a run waiting for one.
func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")

	var body struct {
		Response any `json:"response"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Response == nil {
		writeError(w, http.StatusBadRequest, "response is required")
		return
	}

	if err := s.deps.Lifecycle.Respond(r.Context(), runID, body.Response); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": runID, "status": "accepted"})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	if err := s.deps.Lifecycle.Cancel(r.Context(), runID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"id":     runID,
		"status": string(schema.RunStatusCancelled),
	})
}

// handleRerun starts a fresh run with the same definition and input.
func (s *Server) handleRerun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	newID, err := s.deps.Lifecycle.Rerun(r.Context(), runID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":              newID,
		"retry_of_run_id": runID,
	})
}

func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("id")
	since := int64(queryInt(r, "since", 0))

	if _, err := s.deps.Store.GetRun(r.Context(), runID); err != nil {
		writeEngineError(w, err)
		return
	}
	events, err := s.deps.Store.GetEvents(r.Context(), runID, since)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleCreateGraph(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name       string                 `json:"name"`
		Definition schema.GraphDefinition `json:"definition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	now := time.Now().UTC()
	graph := &store.Graph{
		ID:         uuid.NewString(),
		Name:       body.Name,
		Definition: body.Definition,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.deps.Store.CreateGraph(r.Context(), graph); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": graph.ID})
}

func (s *Server) handleListGraphs(w http.ResponseWriter, r *http.Request) {
	graphs, err := s.deps.Store.ListGraphs(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"graphs": graphs})
}

func (s *Server) handleGetGraph(w http.ResponseWriter, r *http.Request) {
	graph, err := s.deps.Store.GetGraph(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, graph)
}

func (s *Server) handleUpdateGraph(w http.ResponseWriter, r *http.Request) {
	graphID := r.PathValue("id")

	existing, err := s.deps.Store.GetGraph(r.Context(), graphID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var body struct {
		Name       string                  `json:"name"`
		Definition *schema.GraphDefinition `json:"definition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Name != "" {
		existing.Name = body.Name
	}
	if body.Definition != nil {
		existing.Definition = *body.Definition
	}
	existing.UpdatedAt = time.Now().UTC()

	if err := s.deps.Store.UpdateGraph(r.Context(), existing); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": graphID})
}

func (s *Server) handleDeleteGraph(w http.ResponseWriter, r *http.Request) {
	graphID := r.PathValue("id")
	if err := s.deps.Store.DeleteGraph(r.Context(), graphID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": graphID})
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name         string   `json:"name"`
		Instructions string   `json:"instructions"`
		Model        string   `json:"model"`
		Tools        []string `json:"tools"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	now := time.Now().UTC()
	agent := &store.Agent{
		ID:           uuid.NewString(),
		Name:         body.Name,
		Instructions: body.Instructions,
		Model:        body.Model,
		Tools:        body.Tools,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.deps.Store.CreateAgent(r.Context(), agent); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": agent.ID})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.deps.Store.ListAgents(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.deps.Store.GetAgent(r.Context(), r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")

	existing, err := s.deps.Store.GetAgent(r.Context(), agentID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	var body struct {
		Name         *string  `json:"name"`
		Instructions *string  `json:"instructions"`
		Model        *string  `json:"model"`
		Tools        []string `json:"tools"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.Name != nil {
		existing.Name = *body.Name
	}
	if body.Instructions != nil {
		existing.Instructions = *body.Instructions
	}
	if body.Model != nil {
		existing.Model = *body.Model
	}
	if body.Tools != nil {
		existing.Tools = body.Tools
	}
	existing.UpdatedAt = time.Now().UTC()

	if err := s.deps.Store.UpdateAgent(r.Context(), existing); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": agentID})
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("id")
	if err := s.deps.Store.DeleteAgent(r.Context(), agentID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": agentID})
}

// jobCronParser matches the scheduler's five-field cron format.
var jobCronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var body struct {
		GraphID        string          `json:"graph_id"`
		CronExpression string          `json:"cron_expression"`
		Input          json.RawMessage `json:"input"`
		Enabled        *bool           `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if body.GraphID == "" || body.CronExpression == "" {
		writeError(w, http.StatusBadRequest, "graph_id and cron_expression are required")
		return
	}
	sched, err := jobCronParser.Parse(body.CronExpression)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid cron expression: %v", err))
		return
	}
	if _, err := s.deps.Store.GetGraph(r.Context(), body.GraphID); err != nil {
		writeEngineError(w, err)
		return
	}

	now := time.Now().UTC()
	next := sched.Next(now)
	enabled := true
	if body.Enabled != nil {
		enabled = *body.Enabled
	}
	job := &store.ScheduledJob{
		ID:             uuid.NewString(),
		GraphID:        body.GraphID,
		CronExpression: body.CronExpression,
		Input:          body.Input,
		Enabled:        enabled,
		NextRunAt:      &next,
		CreatedAt:      now,
	}
	if err := s.deps.Store.CreateScheduledJob(r.Context(), job); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": job.ID})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter := store.ScheduledJobFilter{
		GraphID: r.URL.Query().Get("graph_id"),
		Limit:   queryInt(r, "limit", 0),
	}
	jobs, err := s.deps.Store.ListScheduledJobs(r.Context(), filter)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	var body struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	update := store.ScheduledJobUpdate{Enabled: body.Enabled}
	if err := s.deps.Store.UpdateScheduledJob(r.Context(), jobID, update); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": jobID})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	if err := s.deps.Store.DeleteScheduledJob(r.Context(), jobID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": jobID})
}
