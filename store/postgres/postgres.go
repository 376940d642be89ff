// Package postgres implements cadre.MetricsSink using PostgreSQL.
//
// The Sink accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	cadre "github.com/cadrehq/cadre"
)

// Sink implements cadre.MetricsSink backed by PostgreSQL. Step status maps
// and per-agent metrics are stored as JSONB.
type Sink struct {
	pool *pgxpool.Pool
}

var _ cadre.MetricsSink = (*Sink)(nil)

// New creates a Sink using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Sink {
	return &Sink{pool: pool}
}

// Init creates all required tables and indexes.
// Safe to call multiple times (all statements are idempotent).
func (s *Sink) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agent_activity (
			id BIGSERIAL PRIMARY KEY,
			agent_id TEXT NOT NULL,
			agent_type TEXT NOT NULL,
			task_id TEXT NOT NULL,
			task_type TEXT NOT NULL,
			status TEXT NOT NULL,
			error_kind TEXT NOT NULL DEFAULT '',
			duration_ms DOUBLE PRECISION NOT NULL,
			started_at BIGINT NOT NULL,
			ended_at BIGINT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_instances (
			instance_id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			step_count INTEGER NOT NULL,
			step_statuses JSONB,
			started_at BIGINT NOT NULL,
			ended_at BIGINT NOT NULL,
			user_id TEXT NOT NULL DEFAULT '',
			session_id TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS orchestrator_metrics (
			id BIGSERIAL PRIMARY KEY,
			at BIGINT NOT NULL,
			live_agents INTEGER NOT NULL,
			active_workflows INTEGER NOT NULL,
			completed_workflows BIGINT NOT NULL,
			failed_workflows BIGINT NOT NULL,
			cancelled_workflows BIGINT NOT NULL,
			messages_published BIGINT NOT NULL,
			messages_dropped BIGINT NOT NULL,
			agents JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_activity_task ON agent_activity(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_instances_workflow ON workflow_instances(workflow_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init: %w", err)
		}
	}
	return nil
}

func (s *Sink) WriteAgentActivity(ctx context.Context, rec cadre.AgentActivityRecord) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO agent_activity
		(agent_id, agent_type, task_id, task_type, status, error_kind, duration_ms, started_at, ended_at, user_id, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.AgentID, string(rec.AgentType), rec.TaskID, rec.TaskType,
		string(rec.Status), string(rec.ErrorKind), rec.DurationMs,
		rec.StartedAt.UnixMilli(), rec.EndedAt.UnixMilli(),
		rec.UserID, rec.SessionID)
	if err != nil {
		return fmt.Errorf("insert agent activity: %w", err)
	}
	return nil
}

func (s *Sink) WriteWorkflowInstance(ctx context.Context, rec cadre.WorkflowInstanceRecord) error {
	statuses, err := json.Marshal(rec.StepStatuses)
	if err != nil {
		return fmt.Errorf("marshal step statuses: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO workflow_instances
		(instance_id, workflow_id, status, error, step_count, step_statuses, started_at, ended_at, user_id, session_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (instance_id) DO UPDATE SET
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			step_statuses = EXCLUDED.step_statuses,
			ended_at = EXCLUDED.ended_at`,
		rec.InstanceID, rec.WorkflowID, string(rec.Status), rec.Error,
		rec.StepCount, statuses,
		rec.StartedAt.UnixMilli(), rec.EndedAt.UnixMilli(),
		rec.UserID, rec.SessionID)
	if err != nil {
		return fmt.Errorf("insert workflow instance: %w", err)
	}
	return nil
}

func (s *Sink) WriteOrchestratorMetrics(ctx context.Context, snap cadre.OrchestratorSnapshot) error {
	agents, err := json.Marshal(snap.Agents)
	if err != nil {
		return fmt.Errorf("marshal agent metrics: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO orchestrator_metrics
		(at, live_agents, active_workflows, completed_workflows, failed_workflows, cancelled_workflows, messages_published, messages_dropped, agents)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		snap.At.UnixMilli(), snap.LiveAgents, snap.ActiveWorkflows,
		snap.CompletedWorkflows, snap.FailedWorkflows, snap.CancelledWorkflows,
		snap.MessagesPublished, snap.MessagesDropped, agents)
	if err != nil {
		return fmt.Errorf("insert orchestrator metrics: %w", err)
	}
	return nil
}

// InstancesSince returns workflow instance records that ended at or after
// the given time, newest first.
func (s *Sink) InstancesSince(ctx context.Context, since time.Time) ([]cadre.WorkflowInstanceRecord, error) {
	rows, err := s.pool.Query(ctx, `SELECT
		instance_id, workflow_id, status, error, step_count, step_statuses, started_at, ended_at, user_id, session_id
		FROM workflow_instances WHERE ended_at >= $1 ORDER BY ended_at DESC`,
		since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query workflow instances: %w", err)
	}
	defer rows.Close()

	var out []cadre.WorkflowInstanceRecord
	for rows.Next() {
		var rec cadre.WorkflowInstanceRecord
		var status string
		var statuses []byte
		var startedAt, endedAt int64
		if err := rows.Scan(&rec.InstanceID, &rec.WorkflowID, &status, &rec.Error,
			&rec.StepCount, &statuses, &startedAt, &endedAt,
			&rec.UserID, &rec.SessionID); err != nil {
			return nil, fmt.Errorf("scan workflow instance: %w", err)
		}
		rec.Status = cadre.WorkflowStatus(status)
		rec.StartedAt = time.UnixMilli(startedAt)
		rec.EndedAt = time.UnixMilli(endedAt)
		if len(statuses) > 0 {
			if err := json.Unmarshal(statuses, &rec.StepStatuses); err != nil {
				return nil, fmt.Errorf("unmarshal step statuses: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
