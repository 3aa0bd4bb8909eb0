package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/skeinflow/skein/pkg/schema"
)

// MemoryStore is an in-memory Store used by tests and zero-config runs.
// It honors the same copy-on-read discipline a durable store implies:
// callers never share slices or cursors with the stored record.
type MemoryStore struct {
	mu     sync.RWMutex
	runs   map[string]*Run
	graphs map[string]*Graph
	agents map[string]*Agent
	jobs   map[string]*ScheduledJob
	events map[string][]*Event
	nextID int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:   make(map[string]*Run),
		graphs: make(map[string]*Graph),
		agents: make(map[string]*Agent),
		jobs:   make(map[string]*ScheduledJob),
		events: make(map[string][]*Event),
	}
}

// --- Runs ---

func (s *MemoryStore) CreateRun(_ context.Context, run *Run) error {
	if run.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "run id is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "run %q already exists", run.ID)
	}
	stored := copyRun(run)
	stored.CreatedAt = timeOrNow(stored.CreatedAt)
	stored.UpdatedAt = timeOrNow(stored.UpdatedAt)
	s.runs[run.ID] = stored
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "run not found: %s", id)
	}
	return copyRun(run), nil
}

func (s *MemoryStore) UpdateRun(_ context.Context, id string, update RunUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "run not found: %s", id)
	}
	applyRunUpdate(run, update)
	run.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) ListRuns(_ context.Context, filter RunFilter) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Run
	for _, run := range s.runs {
		if filter.Status != nil && run.Status != *filter.Status {
			continue
		}
		if filter.GraphID != "" && run.GraphID != filter.GraphID {
			continue
		}
		if filter.Since != nil && run.CreatedAt.Before(*filter.Since) {
			continue
		}
		out = append(out, copyRun(run))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	out = clampWindow(out, filter.Offset, filter.Limit)
	return out, nil
}

func (s *MemoryStore) PendingResumes(_ context.Context, limit int) ([]*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Run
	for _, run := range s.runs {
		if run.Status != schema.RunStatusWaitingForUser {
			continue
		}
		if run.Cursor == nil || run.Cursor.UserResponse == nil {
			continue
		}
		out = append(out, copyRun(run))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// --- Events ---

func (s *MemoryStore) AppendEvent(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e := *event
	e.ID = s.nextID
	e.Sequence = int64(len(s.events[event.RunID]) + 1)
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	s.events[event.RunID] = append(s.events[event.RunID], &e)
	event.Sequence = e.Sequence
	return nil
}

func (s *MemoryStore) GetEvents(_ context.Context, runID string, since int64) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Event
	for _, e := range s.events[runID] {
		if e.Sequence > since {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- Graphs ---

func (s *MemoryStore) CreateGraph(_ context.Context, g *Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.graphs[g.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "graph %q already exists", g.ID)
	}
	cp := *g
	s.graphs[g.ID] = &cp
	return nil
}

func (s *MemoryStore) GetGraph(_ context.Context, id string) (*Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.graphs[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "graph not found: %s", id)
	}
	cp := *g
	return &cp, nil
}

func (s *MemoryStore) UpdateGraph(_ context.Context, g *Graph) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.graphs[g.ID]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "graph not found: %s", g.ID)
	}
	cp := *g
	cp.UpdatedAt = time.Now().UTC()
	s.graphs[g.ID] = &cp
	return nil
}

func (s *MemoryStore) ListGraphs(_ context.Context) ([]*Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Graph, 0, len(s.graphs))
	for _, g := range s.graphs {
		cp := *g
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteGraph(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.graphs[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "graph not found: %s", id)
	}
	delete(s.graphs, id)
	return nil
}

// --- Agents ---

func (s *MemoryStore) CreateAgent(_ context.Context, a *Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.agents[a.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "agent %q already exists", a.ID)
	}
	cp := *a
	s.agents[a.ID] = &cp
	return nil
}

func (s *MemoryStore) GetAgent(_ context.Context, id string) (*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "agent not found: %s", id)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) UpdateAgent(_ context.Context, a *Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[a.ID]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "agent not found: %s", a.ID)
	}
	cp := *a
	cp.UpdatedAt = time.Now().UTC()
	s.agents[a.ID] = &cp
	return nil
}

func (s *MemoryStore) ListAgents(_ context.Context) ([]*Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Agent, 0, len(s.agents))
	for _, a := range s.agents {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) DeleteAgent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "agent not found: %s", id)
	}
	delete(s.agents, id)
	return nil
}

// --- Scheduled jobs ---

func (s *MemoryStore) CreateScheduledJob(_ context.Context, job *ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "job %q already exists", job.ID)
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *MemoryStore) GetScheduledJob(_ context.Context, id string) (*ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "job not found: %s", id)
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) UpdateScheduledJob(_ context.Context, id string, update ScheduledJobUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "job not found: %s", id)
	}
	if update.Enabled != nil {
		job.Enabled = *update.Enabled
	}
	if update.LastRunAt != nil {
		job.LastRunAt = update.LastRunAt
	}
	if update.NextRunAt != nil {
		job.NextRunAt = update.NextRunAt
	}
	if update.LastRunStatus != "" {
		job.LastRunStatus = update.LastRunStatus
	}
	return nil
}

func (s *MemoryStore) ListScheduledJobs(_ context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ScheduledJob
	for _, job := range s.jobs {
		if filter.Enabled != nil && job.Enabled != *filter.Enabled {
			continue
		}
		if filter.GraphID != "" && job.GraphID != filter.GraphID {
			continue
		}
		cp := *job
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteScheduledJob(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "job not found: %s", id)
	}
	delete(s.jobs, id)
	return nil
}

// --- Maintenance ---

func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Close() error                  { return nil }

// --- Helpers ---

func copyRun(run *Run) *Run {
	cp := *run
	if run.Trail != nil {
		cp.Trail = make([]schema.TrailStep, len(run.Trail))
		copy(cp.Trail, run.Trail)
	}
	if run.Cursor != nil {
		c := *run.Cursor
		cp.Cursor = &c
	}
	return &cp
}

func applyRunUpdate(run *Run, update RunUpdate) {
	if update.Status != nil {
		run.Status = *update.Status
	}
	if update.Output != nil {
		run.Output = update.Output
	}
	if update.Trail != nil {
		run.Trail = make([]schema.TrailStep, len(update.Trail))
		copy(run.Trail, update.Trail)
	}
	switch {
	case update.ClearCursor:
		run.Cursor = nil
	case update.Cursor != nil:
		c := *update.Cursor
		run.Cursor = &c
	}
	if update.StartedAt != nil {
		run.StartedAt = update.StartedAt
	}
	if update.FinishedAt != nil {
		run.FinishedAt = update.FinishedAt
	}
}

func clampWindow(runs []*Run, offset, limit int) []*Run {
	if offset > 0 {
		if offset >= len(runs) {
			return nil
		}
		runs = runs[offset:]
	}
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs
}
