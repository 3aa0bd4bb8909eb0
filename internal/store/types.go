package store

import (
	"encoding/json"
	"time"

	"github.com/skeinflow/skein/pkg/schema"
)

// Run is the persisted record of one workflow graph execution. Runs are
// never deleted automatically; they are retained for audit and improvement
// tooling.
type Run struct {
	ID         string                 `json:"id"`
	GraphID    string                 `json:"graph_id"`
	Definition schema.GraphDefinition `json:"definition"` // snapshot taken at start
	Status     schema.RunStatus       `json:"status"`
	Input      any                    `json:"input,omitempty"`
	Output     json.RawMessage        `json:"output,omitempty"`
	Trail      []schema.TrailStep     `json:"trail"`
	Cursor     *schema.ResumeCursor   `json:"cursor,omitempty"`
	RetryOf    string                 `json:"retry_of_run_id,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	StartedAt  *time.Time             `json:"started_at,omitempty"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Graph is a stored workflow graph definition, editable by planner tools.
type Graph struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Definition schema.GraphDefinition `json:"definition"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Agent is a stored agent definition referenced by graph nodes.
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Instructions string    `json:"instructions,omitempty"`
	Model        string    `json:"model,omitempty"`
	Tools        []string  `json:"tools,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Event is an immutable entry in the per-run event log.
type Event struct {
	ID        int64           `json:"id"`
	RunID     string          `json:"run_id"`
	NodeID    string          `json:"node_id,omitempty"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// ScheduledJob is a cron-triggered workflow execution.
type ScheduledJob struct {
	ID             string          `json:"id"`
	GraphID        string          `json:"graph_id"`
	CronExpression string          `json:"cron_expression"`
	Input          json.RawMessage `json:"input,omitempty"`
	Enabled        bool            `json:"enabled"`
	LastRunAt      *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt      *time.Time      `json:"next_run_at,omitempty"`
	LastRunStatus  string          `json:"last_run_status,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// RunUpdate specifies mutable fields of a run. Nil fields are untouched.
type RunUpdate struct {
	Status     *schema.RunStatus    `json:"status,omitempty"`
	Output     json.RawMessage      `json:"output,omitempty"`
	Trail      []schema.TrailStep   `json:"trail,omitempty"`
	Cursor     *schema.ResumeCursor `json:"cursor,omitempty"`
	// ClearCursor removes the resume cursor; it wins over Cursor.
	ClearCursor bool       `json:"-"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  *schema.RunStatus `json:"status,omitempty"`
	GraphID string            `json:"graph_id,omitempty"`
	Since   *time.Time        `json:"since,omitempty"`
	Limit   int               `json:"limit,omitempty"`
	Offset  int               `json:"offset,omitempty"`
}

// ScheduledJobUpdate specifies mutable fields of a scheduled job.
type ScheduledJobUpdate struct {
	Enabled       *bool      `json:"enabled,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	NextRunAt     *time.Time `json:"next_run_at,omitempty"`
	LastRunStatus string     `json:"last_run_status,omitempty"`
}

// ScheduledJobFilter specifies criteria for listing scheduled jobs.
type ScheduledJobFilter struct {
	Enabled *bool  `json:"enabled,omitempty"`
	GraphID string `json:"graph_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}
