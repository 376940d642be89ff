// Package sqlite implements cadre.MetricsSink using pure-Go SQLite.
// Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	cadre "github.com/cadrehq/cadre"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// SinkOption configures a SQLite Sink.
type SinkOption func(*Sink)

// WithLogger sets a structured logger for the sink. When set, the sink
// emits debug logs for every write. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) SinkOption {
	return func(s *Sink) { s.logger = l }
}

// Sink implements cadre.MetricsSink backed by a local SQLite file.
// Step status maps and per-agent metrics are stored as JSON text.
type Sink struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ cadre.MetricsSink = (*Sink)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Sink using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...SinkOption) *Sink {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Sink{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: sink opened", "path", dbPath)
	return s
}

// Init creates all required tables.
func (s *Sink) Init(ctx context.Context) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS agent_activity (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id TEXT NOT NULL,
			agent_type TEXT NOT NULL,
			task_id TEXT NOT NULL,
			task_type TEXT NOT NULL,
			status TEXT NOT NULL,
			error_kind TEXT,
			duration_ms REAL NOT NULL,
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL,
			user_id TEXT,
			session_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_instances (
			instance_id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			step_count INTEGER NOT NULL,
			step_statuses TEXT,
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL,
			user_id TEXT,
			session_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS orchestrator_metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			at INTEGER NOT NULL,
			live_agents INTEGER NOT NULL,
			active_workflows INTEGER NOT NULL,
			completed_workflows INTEGER NOT NULL,
			failed_workflows INTEGER NOT NULL,
			cancelled_workflows INTEGER NOT NULL,
			messages_published INTEGER NOT NULL,
			messages_dropped INTEGER NOT NULL,
			agents TEXT
		)`,
	}
	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx,
		`CREATE INDEX IF NOT EXISTS idx_agent_activity_task ON agent_activity(task_id)`); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Sink) Close() error { return s.db.Close() }

func (s *Sink) WriteAgentActivity(ctx context.Context, rec cadre.AgentActivityRecord) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO agent_activity
		(agent_id, agent_type, task_id, task_type, status, error_kind, duration_ms, started_at, ended_at, user_id, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.AgentID, string(rec.AgentType), rec.TaskID, rec.TaskType,
		string(rec.Status), string(rec.ErrorKind), rec.DurationMs,
		rec.StartedAt.UnixMilli(), rec.EndedAt.UnixMilli(),
		rec.UserID, rec.SessionID)
	if err != nil {
		return fmt.Errorf("insert agent activity: %w", err)
	}
	s.logger.Debug("sqlite: agent activity written", "task", rec.TaskID, "status", rec.Status)
	return nil
}

func (s *Sink) WriteWorkflowInstance(ctx context.Context, rec cadre.WorkflowInstanceRecord) error {
	statuses, err := json.Marshal(rec.StepStatuses)
	if err != nil {
		return fmt.Errorf("marshal step statuses: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO workflow_instances
		(instance_id, workflow_id, status, error, step_count, step_statuses, started_at, ended_at, user_id, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.InstanceID, rec.WorkflowID, string(rec.Status), rec.Error,
		rec.StepCount, string(statuses),
		rec.StartedAt.UnixMilli(), rec.EndedAt.UnixMilli(),
		rec.UserID, rec.SessionID)
	if err != nil {
		return fmt.Errorf("insert workflow instance: %w", err)
	}
	s.logger.Debug("sqlite: workflow instance written", "instance", rec.InstanceID, "status", rec.Status)
	return nil
}

func (s *Sink) WriteOrchestratorMetrics(ctx context.Context, snap cadre.OrchestratorSnapshot) error {
	agents, err := json.Marshal(snap.Agents)
	if err != nil {
		return fmt.Errorf("marshal agent metrics: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO orchestrator_metrics
		(at, live_agents, active_workflows, completed_workflows, failed_workflows, cancelled_workflows, messages_published, messages_dropped, agents)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.At.UnixMilli(), snap.LiveAgents, snap.ActiveWorkflows,
		snap.CompletedWorkflows, snap.FailedWorkflows, snap.CancelledWorkflows,
		snap.MessagesPublished, snap.MessagesDropped, string(agents))
	if err != nil {
		return fmt.Errorf("insert orchestrator metrics: %w", err)
	}
	return nil
}

// RecentActivity returns the most recent agent activity records, newest first.
func (s *Sink) RecentActivity(ctx context.Context, limit int) ([]cadre.AgentActivityRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT
		agent_id, agent_type, task_id, task_type, status, error_kind, duration_ms, started_at, ended_at, user_id, session_id
		FROM agent_activity ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query agent activity: %w", err)
	}
	defer rows.Close()

	var out []cadre.AgentActivityRecord
	for rows.Next() {
		var rec cadre.AgentActivityRecord
		var agentType, status, errorKind string
		var startedAt, endedAt int64
		if err := rows.Scan(&rec.AgentID, &agentType, &rec.TaskID, &rec.TaskType,
			&status, &errorKind, &rec.DurationMs, &startedAt, &endedAt,
			&rec.UserID, &rec.SessionID); err != nil {
			return nil, fmt.Errorf("scan agent activity: %w", err)
		}
		rec.AgentType = cadre.AgentType(agentType)
		rec.Status = cadre.ResultStatus(status)
		rec.ErrorKind = cadre.ErrorKind(errorKind)
		rec.StartedAt = time.UnixMilli(startedAt)
		rec.EndedAt = time.UnixMilli(endedAt)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Instance returns one stored workflow instance record by id.
func (s *Sink) Instance(ctx context.Context, instanceID string) (cadre.WorkflowInstanceRecord, error) {
	var rec cadre.WorkflowInstanceRecord
	var status, statuses string
	var startedAt, endedAt int64
	err := s.db.QueryRowContext(ctx, `SELECT
		instance_id, workflow_id, status, error, step_count, step_statuses, started_at, ended_at, user_id, session_id
		FROM workflow_instances WHERE instance_id = ?`, instanceID).
		Scan(&rec.InstanceID, &rec.WorkflowID, &status, &rec.Error,
			&rec.StepCount, &statuses, &startedAt, &endedAt,
			&rec.UserID, &rec.SessionID)
	if err != nil {
		return cadre.WorkflowInstanceRecord{}, fmt.Errorf("query workflow instance: %w", err)
	}
	rec.Status = cadre.WorkflowStatus(status)
	rec.StartedAt = time.UnixMilli(startedAt)
	rec.EndedAt = time.UnixMilli(endedAt)
	if statuses != "" {
		if err := json.Unmarshal([]byte(statuses), &rec.StepStatuses); err != nil {
			return cadre.WorkflowInstanceRecord{}, fmt.Errorf("unmarshal step statuses: %w", err)
		}
	}
	return rec, nil
}
