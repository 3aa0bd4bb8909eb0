package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeinflow/skein/pkg/schema"
)

func testDefinition() schema.GraphDefinition {
	return schema.GraphDefinition{
		Nodes: []schema.Node{
			{ID: "n1", Type: schema.NodeTypeAgent, Name: "planner", AgentID: "a1"},
		},
		MaxRounds: 3,
	}
}

func newTestRun(id string, status schema.RunStatus) *Run {
	return &Run{
		ID:         id,
		GraphID:    "g1",
		Definition: testDefinition(),
		Status:     status,
		Input:      map[string]any{"goal": "test"},
	}
}

func TestMemoryStoreRunLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateRun(ctx, newTestRun("r1", schema.RunStatusPending)))

	got, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "g1", got.GraphID)
	assert.Equal(t, schema.RunStatusPending, got.Status)
	assert.False(t, got.CreatedAt.IsZero())

	running := schema.RunStatusRunning
	now := time.Now().UTC()
	require.NoError(t, s.UpdateRun(ctx, "r1", RunUpdate{Status: &running, StartedAt: &now}))

	got, err = s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusRunning, got.Status)
	require.NotNil(t, got.StartedAt)
}

func TestMemoryStoreGetRunNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.GetRun(context.Background(), "nope")
	require.Error(t, err)
	var serr *schema.SkeinError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeNotFound, serr.Code)
}

func TestMemoryStoreUpdateRunNotFound(t *testing.T) {
	s := NewMemoryStore()
	running := schema.RunStatusRunning

	err := s.UpdateRun(context.Background(), "nope", RunUpdate{Status: &running})
	require.Error(t, err)
	var serr *schema.SkeinError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, schema.ErrCodeNotFound, serr.Code)
}

func TestMemoryStoreCopyOnRead(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateRun(ctx, newTestRun("r1", schema.RunStatusPending)))

	got, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	got.Status = schema.RunStatusFailed
	got.Trail = append(got.Trail, schema.TrailStep{NodeID: "mutated"})

	again, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusPending, again.Status)
	assert.Empty(t, again.Trail)
}

func TestMemoryStoreCursorClearWins(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	run := newTestRun("r1", schema.RunStatusWaitingForUser)
	run.Cursor = &schema.ResumeCursor{NextNodeID: "n1", Round: 1}
	require.NoError(t, s.CreateRun(ctx, run))

	require.NoError(t, s.UpdateRun(ctx, "r1", RunUpdate{
		Cursor:      &schema.ResumeCursor{NextNodeID: "n2"},
		ClearCursor: true,
	}))

	got, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Nil(t, got.Cursor)
}

func TestMemoryStoreListRunsFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.CreateRun(ctx, newTestRun("r1", schema.RunStatusCompleted)))
	require.NoError(t, s.CreateRun(ctx, newTestRun("r2", schema.RunStatusRunning)))
	r3 := newTestRun("r3", schema.RunStatusRunning)
	r3.GraphID = "g2"
	require.NoError(t, s.CreateRun(ctx, r3))

	running := schema.RunStatusRunning
	runs, err := s.ListRuns(ctx, RunFilter{Status: &running})
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = s.ListRuns(ctx, RunFilter{Status: &running, GraphID: "g2"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r3", runs[0].ID)

	runs, err = s.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestMemoryStorePendingResumes(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// Waiting with a user response: eligible.
	ready := newTestRun("ready", schema.RunStatusWaitingForUser)
	ready.Cursor = &schema.ResumeCursor{NextNodeID: "n1", Round: 1, UserResponse: "yes"}
	require.NoError(t, s.CreateRun(ctx, ready))

	// Waiting but no response yet: not eligible.
	waiting := newTestRun("waiting", schema.RunStatusWaitingForUser)
	waiting.Cursor = &schema.ResumeCursor{NextNodeID: "n1", Round: 1}
	require.NoError(t, s.CreateRun(ctx, waiting))

	// Response present but already running: not eligible.
	active := newTestRun("active", schema.RunStatusRunning)
	active.Cursor = &schema.ResumeCursor{NextNodeID: "n1", Round: 1, UserResponse: "yes"}
	require.NoError(t, s.CreateRun(ctx, active))

	runs, err := s.PendingResumes(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "ready", runs[0].ID)
}

func TestMemoryStorePendingResumesOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, id := range []string{"old", "mid", "new"} {
		run := newTestRun(id, schema.RunStatusWaitingForUser)
		run.Cursor = &schema.ResumeCursor{NextNodeID: "n1", Round: 1, UserResponse: "ok"}
		require.NoError(t, s.CreateRun(ctx, run))
		time.Sleep(2 * time.Millisecond)
	}

	runs, err := s.PendingResumes(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "old", runs[0].ID)
	assert.Equal(t, "mid", runs[1].ID)
}

func TestMemoryStoreEventSequences(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendEvent(ctx, &Event{RunID: "r1", Type: schema.EventNodeStarted}))
	}
	require.NoError(t, s.AppendEvent(ctx, &Event{RunID: "r2", Type: schema.EventRunStarted}))

	events, err := s.GetEvents(ctx, "r1", 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, int64(1), events[0].Sequence)
	assert.Equal(t, int64(3), events[2].Sequence)

	// Sequences are per run.
	events, err = s.GetEvents(ctx, "r2", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].Sequence)

	// Since filter skips already seen events.
	events, err = s.GetEvents(ctx, "r1", 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(3), events[0].Sequence)
}

func TestMemoryStoreGraphCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	g := &Graph{ID: "g1", Name: "deploy", Definition: testDefinition()}
	require.NoError(t, s.CreateGraph(ctx, g))

	got, err := s.GetGraph(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "deploy", got.Name)
	require.Len(t, got.Definition.Nodes, 1)

	got.Name = "deploy-v2"
	require.NoError(t, s.UpdateGraph(ctx, got))

	got, err = s.GetGraph(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "deploy-v2", got.Name)

	graphs, err := s.ListGraphs(ctx)
	require.NoError(t, err)
	assert.Len(t, graphs, 1)

	require.NoError(t, s.DeleteGraph(ctx, "g1"))
	_, err = s.GetGraph(ctx, "g1")
	require.Error(t, err)
}

func TestMemoryStoreAgentCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a := &Agent{ID: "a1", Name: "researcher", Instructions: "find things", Tools: []string{"transform"}}
	require.NoError(t, s.CreateAgent(ctx, a))

	got, err := s.GetAgent(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "researcher", got.Name)
	assert.Equal(t, []string{"transform"}, got.Tools)

	got.Model = "gpt-4o"
	require.NoError(t, s.UpdateAgent(ctx, got))

	got, err = s.GetAgent(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", got.Model)

	require.NoError(t, s.DeleteAgent(ctx, "a1"))
	agents, err := s.ListAgents(ctx)
	require.NoError(t, err)
	assert.Empty(t, agents)
}

func TestMemoryStoreScheduledJobs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	job := &ScheduledJob{
		ID:             "j1",
		GraphID:        "g1",
		CronExpression: "0 * * * *",
		Input:          json.RawMessage(`{"env":"prod"}`),
		Enabled:        true,
	}
	require.NoError(t, s.CreateScheduledJob(ctx, job))

	disabled := false
	require.NoError(t, s.UpdateScheduledJob(ctx, "j1", ScheduledJobUpdate{Enabled: &disabled, LastRunStatus: "completed"}))

	got, err := s.GetScheduledJob(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, got.Enabled)
	assert.Equal(t, "completed", got.LastRunStatus)

	enabled := true
	jobs, err := s.ListScheduledJobs(ctx, ScheduledJobFilter{Enabled: &enabled})
	require.NoError(t, err)
	assert.Empty(t, jobs)

	require.NoError(t, s.DeleteScheduledJob(ctx, "j1"))
	_, err = s.GetScheduledJob(ctx, "j1")
	require.Error(t, err)
}

func TestMemoryStoreCreateRunDefaultsTimestamps(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	run := newTestRun("r1", schema.RunStatusPending)
	require.True(t, run.CreatedAt.IsZero())
	require.NoError(t, s.CreateRun(ctx, run))

	got, err := s.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.False(t, got.CreatedAt.IsZero())
	assert.False(t, got.UpdatedAt.IsZero())

	// A caller-supplied timestamp is kept as given.
	stamped := newTestRun("r2", schema.RunStatusPending)
	stamped.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.CreateRun(ctx, stamped))

	got, err = s.GetRun(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, stamped.CreatedAt, got.CreatedAt)
}
