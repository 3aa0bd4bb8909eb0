package store

import "context"

// Store defines the persistence layer contract. All implementations must be
// safe for concurrent use. The engine takes it by injection so multiple
// instances or restarts do not silently diverge on an in-process map.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRun(ctx context.Context, id string, update RunUpdate) error
	ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error)

	// PendingResumes returns runs that are waiting_for_user and already
	// carry a user response on their cursor, oldest first. The resumable
	// queue polls this predicate, so pending resumptions survive a restart.
	PendingResumes(ctx context.Context, limit int) ([]*Run, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, runID string, since int64) ([]*Event, error)

	// Graphs
	CreateGraph(ctx context.Context, g *Graph) error
	GetGraph(ctx context.Context, id string) (*Graph, error)
	UpdateGraph(ctx context.Context, g *Graph) error
	ListGraphs(ctx context.Context) ([]*Graph, error)
	DeleteGraph(ctx context.Context, id string) error

	// Agents
	CreateAgent(ctx context.Context, a *Agent) error
	GetAgent(ctx context.Context, id string) (*Agent, error)
	UpdateAgent(ctx context.Context, a *Agent) error
	ListAgents(ctx context.Context) ([]*Agent, error)
	DeleteAgent(ctx context.Context, id string) error

	// Scheduled jobs
	CreateScheduledJob(ctx context.Context, job *ScheduledJob) error
	GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error)
	UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error
	ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error)
	DeleteScheduledJob(ctx context.Context, id string) error

	// Maintenance
	Migrate(ctx context.Context) error
	Close() error
}

// EventAppender is the subset of Store the run FSM needs to emit events.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *Event) error
}
