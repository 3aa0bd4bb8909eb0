package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/skeinflow/skein/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite
// fork). A single connection plus WAL keeps per-run writes serialized.
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a
// Store. The path should be a file URI, e.g. "file:/path/to/skein.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs. Some PRAGMAs return rows so QueryRow is used.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// --- Runs ---

func (s *LibSQLStore) CreateRun(ctx context.Context, run *Run) error {
	def, err := json.Marshal(run.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	trail, err := marshalTrail(run.Trail)
	if err != nil {
		return fmt.Errorf("marshal trail: %w", err)
	}
	input, err := nullableAny(run.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	cursor, err := nullableCursor(run.Cursor)
	if err != nil {
		return fmt.Errorf("marshal cursor: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, graph_id, definition, status, input, output, trail, cursor, retry_of_run_id, created_at, started_at, finished_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.GraphID, string(def), string(run.Status),
		input, nullRaw(run.Output), trail, cursor, nullStr(run.RetryOf),
		timeOrNow(run.CreatedAt), nullTime(run.StartedAt), nullTime(run.FinishedAt), timeOrNow(run.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, graph_id, definition, status, input, output, trail, cursor, retry_of_run_id, created_at, started_at, finished_at, updated_at
		 FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "run not found: %s", id)
	}
	return run, err
}

func (s *LibSQLStore) UpdateRun(ctx context.Context, id string, update RunUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.Output != nil {
		sets = append(sets, "output = ?")
		args = append(args, string(update.Output))
	}
	if update.Trail != nil {
		trail, err := marshalTrail(update.Trail)
		if err != nil {
			return fmt.Errorf("marshal trail: %w", err)
		}
		sets = append(sets, "trail = ?")
		args = append(args, trail)
	}
	switch {
	case update.ClearCursor:
		sets = append(sets, "cursor = NULL")
	case update.Cursor != nil:
		cursor, err := nullableCursor(update.Cursor)
		if err != nil {
			return fmt.Errorf("marshal cursor: %w", err)
		}
		sets = append(sets, "cursor = ?")
		args = append(args, cursor)
	}
	if update.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, *update.StartedAt)
	}
	if update.FinishedAt != nil {
		sets = append(sets, "finished_at = ?")
		args = append(args, *update.FinishedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC())
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE runs SET %s WHERE id = ?`, strings.Join(sets, ", ")), args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "run", id)
}

func (s *LibSQLStore) ListRuns(ctx context.Context, filter RunFilter) ([]*Run, error) {
	query := `SELECT id, graph_id, definition, status, input, output, trail, cursor, retry_of_run_id, created_at, started_at, finished_at, updated_at FROM runs`
	var conds []string
	var args []any
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.GraphID != "" {
		conds = append(conds, "graph_id = ?")
		args = append(args, filter.GraphID)
	}
	if filter.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *filter.Since)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) PendingResumes(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT id, graph_id, definition, status, input, output, trail, cursor, retry_of_run_id, created_at, started_at, finished_at, updated_at
		 FROM runs
		 WHERE status = ? AND cursor IS NOT NULL AND json_extract(cursor, '$.user_response') IS NOT NULL
		 ORDER BY updated_at ASC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.QueryContext(ctx, query, string(schema.RunStatusWaitingForUser))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// --- Events ---

func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE run_id = ?`, event.RunID,
	).Scan(&seq)
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	event.Sequence = seq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO events (run_id, node_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		event.RunID, nullStr(event.NodeID), event.Type, nullRaw(event.Payload), event.Timestamp, seq,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return tx.Commit()
}

func (s *LibSQLStore) GetEvents(ctx context.Context, runID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, node_id, event_type, payload, timestamp, sequence
		 FROM events WHERE run_id = ? AND sequence > ? ORDER BY sequence ASC`, runID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e := &Event{}
		var nodeID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.RunID, &nodeID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.NodeID = nodeID.String
		e.Payload = rawOrNil(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Graphs ---

func (s *LibSQLStore) CreateGraph(ctx context.Context, g *Graph) error {
	def, err := json.Marshal(g.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO graphs (id, name, definition, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		g.ID, g.Name, string(def), timeOrNow(g.CreatedAt), timeOrNow(g.UpdatedAt))
	return err
}

func (s *LibSQLStore) GetGraph(ctx context.Context, id string) (*Graph, error) {
	g := &Graph{}
	var defJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, definition, created_at, updated_at FROM graphs WHERE id = ?`, id,
	).Scan(&g.ID, &g.Name, &defJSON, &g.CreatedAt, &g.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "graph not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(defJSON), &g.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return g, nil
}

func (s *LibSQLStore) UpdateGraph(ctx context.Context, g *Graph) error {
	def, err := json.Marshal(g.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE graphs SET name = ?, definition = ?, updated_at = ? WHERE id = ?`,
		g.Name, string(def), time.Now().UTC(), g.ID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "graph", g.ID)
}

func (s *LibSQLStore) ListGraphs(ctx context.Context) ([]*Graph, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, definition, created_at, updated_at FROM graphs ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Graph
	for rows.Next() {
		g := &Graph{}
		var defJSON string
		if err := rows.Scan(&g.ID, &g.Name, &defJSON, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(defJSON), &g.Definition); err != nil {
			return nil, fmt.Errorf("unmarshal definition: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteGraph(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM graphs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "graph", id)
}

// --- Agents ---

func (s *LibSQLStore) CreateAgent(ctx context.Context, a *Agent) error {
	tools, err := marshalTools(a.Tools)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, instructions, model, tools, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Name, nullStr(a.Instructions), nullStr(a.Model), tools,
		timeOrNow(a.CreatedAt), timeOrNow(a.UpdatedAt))
	return err
}

func (s *LibSQLStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	a := &Agent{}
	var instructions, model, tools sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, instructions, model, tools, created_at, updated_at FROM agents WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &instructions, &model, &tools, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "agent not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	a.Instructions = instructions.String
	a.Model = model.String
	if tools.Valid && tools.String != "" {
		_ = json.Unmarshal([]byte(tools.String), &a.Tools)
	}
	return a, nil
}

func (s *LibSQLStore) UpdateAgent(ctx context.Context, a *Agent) error {
	tools, err := marshalTools(a.Tools)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET name = ?, instructions = ?, model = ?, tools = ?, updated_at = ? WHERE id = ?`,
		a.Name, nullStr(a.Instructions), nullStr(a.Model), tools, time.Now().UTC(), a.ID)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "agent", a.ID)
}

func (s *LibSQLStore) ListAgents(ctx context.Context) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, instructions, model, tools, created_at, updated_at FROM agents ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Agent
	for rows.Next() {
		a := &Agent{}
		var instructions, model, tools sql.NullString
		if err := rows.Scan(&a.ID, &a.Name, &instructions, &model, &tools, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.Instructions = instructions.String
		a.Model = model.String
		if tools.Valid && tools.String != "" {
			_ = json.Unmarshal([]byte(tools.String), &a.Tools)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteAgent(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "agent", id)
}

// --- Scheduled jobs ---

func (s *LibSQLStore) CreateScheduledJob(ctx context.Context, job *ScheduledJob) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (id, graph_id, cron_expression, input, enabled, last_run_at, next_run_at, last_run_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.GraphID, job.CronExpression, nullRaw(job.Input), boolToInt(job.Enabled),
		nullTime(job.LastRunAt), nullTime(job.NextRunAt), nullStr(job.LastRunStatus), timeOrNow(job.CreatedAt))
	return err
}

func (s *LibSQLStore) GetScheduledJob(ctx context.Context, id string) (*ScheduledJob, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, graph_id, cron_expression, input, enabled, last_run_at, next_run_at, last_run_status, created_at
		 FROM scheduled_jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "job not found: %s", id)
	}
	return job, err
}

func (s *LibSQLStore) UpdateScheduledJob(ctx context.Context, id string, update ScheduledJobUpdate) error {
	var sets []string
	var args []any
	if update.Enabled != nil {
		sets = append(sets, "enabled = ?")
		args = append(args, boolToInt(*update.Enabled))
	}
	if update.LastRunAt != nil {
		sets = append(sets, "last_run_at = ?")
		args = append(args, *update.LastRunAt)
	}
	if update.NextRunAt != nil {
		sets = append(sets, "next_run_at = ?")
		args = append(args, *update.NextRunAt)
	}
	if update.LastRunStatus != "" {
		sets = append(sets, "last_run_status = ?")
		args = append(args, update.LastRunStatus)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`UPDATE scheduled_jobs SET %s WHERE id = ?`, strings.Join(sets, ", ")), args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "job", id)
}

func (s *LibSQLStore) ListScheduledJobs(ctx context.Context, filter ScheduledJobFilter) ([]*ScheduledJob, error) {
	query := `SELECT id, graph_id, cron_expression, input, enabled, last_run_at, next_run_at, last_run_status, created_at FROM scheduled_jobs`
	var conds []string
	var args []any
	if filter.Enabled != nil {
		conds = append(conds, "enabled = ?")
		args = append(args, boolToInt(*filter.Enabled))
	}
	if filter.GraphID != "" {
		conds = append(conds, "graph_id = ?")
		args = append(args, filter.GraphID)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteScheduledJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "job", id)
}

// --- Scan helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var (
		defJSON, trailJSON             string
		input, output, cursor, retryOf sql.NullString
		status                         string
		startedAt, finishedAt          sql.NullTime
	)
	err := row.Scan(&run.ID, &run.GraphID, &defJSON, &status, &input, &output, &trailJSON,
		&cursor, &retryOf, &run.CreatedAt, &startedAt, &finishedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}
	run.Status = schema.RunStatus(status)
	run.RetryOf = retryOf.String
	if err := json.Unmarshal([]byte(defJSON), &run.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	if err := json.Unmarshal([]byte(trailJSON), &run.Trail); err != nil {
		return nil, fmt.Errorf("unmarshal trail: %w", err)
	}
	if input.Valid && input.String != "" {
		_ = json.Unmarshal([]byte(input.String), &run.Input)
	}
	run.Output = rawOrNil(output)
	if cursor.Valid && cursor.String != "" {
		c := &schema.ResumeCursor{}
		if err := json.Unmarshal([]byte(cursor.String), c); err != nil {
			return nil, fmt.Errorf("unmarshal cursor: %w", err)
		}
		run.Cursor = c
	}
	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	return run, nil
}

func scanJob(row rowScanner) (*ScheduledJob, error) {
	job := &ScheduledJob{}
	var (
		input, lastStatus    sql.NullString
		enabled              int
		lastRunAt, nextRunAt sql.NullTime
	)
	err := row.Scan(&job.ID, &job.GraphID, &job.CronExpression, &input, &enabled,
		&lastRunAt, &nextRunAt, &lastStatus, &job.CreatedAt)
	if err != nil {
		return nil, err
	}
	job.Enabled = enabled != 0
	job.Input = rawOrNil(input)
	job.LastRunStatus = lastStatus.String
	if lastRunAt.Valid {
		job.LastRunAt = &lastRunAt.Time
	}
	if nextRunAt.Valid {
		job.NextRunAt = &nextRunAt.Time
	}
	return job, nil
}

// --- Null helpers ---

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func rawOrNil(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func nullableAny(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func nullableCursor(c *schema.ResumeCursor) (any, error) {
	if c == nil {
		return nil, nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func marshalTrail(trail []schema.TrailStep) (string, error) {
	if trail == nil {
		trail = []schema.TrailStep{}
	}
	b, err := json.Marshal(trail)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func marshalTools(tools []string) (any, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(tools)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return schema.NewErrorf(schema.ErrCodeNotFound, "%s not found: %s", kind, id)
	}
	return nil
}
