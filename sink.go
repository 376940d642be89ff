package cadre

import (
	"context"
	"sync"
	"time"
)

// AgentActivityRecord is one completed task from one agent's point of view,
// written to the metrics sink as tasks finish.
type AgentActivityRecord struct {
	AgentID    string
	AgentType  AgentType
	TaskID     string
	TaskType   string
	Status     ResultStatus
	ErrorKind  ErrorKind
	DurationMs float64
	StartedAt  time.Time
	EndedAt    time.Time
	UserID     string
	SessionID  string
}

// WorkflowInstanceRecord is a terminal workflow instance snapshot.
type WorkflowInstanceRecord struct {
	InstanceID string
	WorkflowID string
	Status     WorkflowStatus
	Error      string
	StepCount  int
	// StepStatuses maps step id to its result status.
	StepStatuses map[string]ResultStatus
	StartedAt    time.Time
	EndedAt      time.Time
	UserID       string
	SessionID    string
}

// OrchestratorSnapshot is the periodic state snapshot pushed by the metrics
// pump on every tick.
type OrchestratorSnapshot struct {
	At time.Time
	// LiveAgents is the current registry size.
	LiveAgents int
	// ActiveWorkflows counts non-terminal instances.
	ActiveWorkflows int
	// CompletedWorkflows, FailedWorkflows, CancelledWorkflows count
	// terminal instances since startup.
	CompletedWorkflows int64
	FailedWorkflows    int64
	CancelledWorkflows int64
	// MessagesPublished and MessagesDropped count bus traffic since startup.
	MessagesPublished int64
	MessagesDropped   int64
	// Agents holds per-agent metrics for every live agent.
	Agents []AgentMetrics
}

// MetricsSink persists agent activity, workflow instances, and orchestrator
// snapshots. Implementations must accept concurrent writers and must not
// block the caller beyond a bounded time; slow backends should buffer or
// drop. The orchestration core treats the sink as append-only.
type MetricsSink interface {
	WriteAgentActivity(ctx context.Context, rec AgentActivityRecord) error
	WriteWorkflowInstance(ctx context.Context, rec WorkflowInstanceRecord) error
	WriteOrchestratorMetrics(ctx context.Context, snap OrchestratorSnapshot) error
}

// MemorySink is an in-memory MetricsSink for tests and development.
// Safe for concurrent use.
type MemorySink struct {
	mu         sync.Mutex
	activities []AgentActivityRecord
	instances  []WorkflowInstanceRecord
	snapshots  []OrchestratorSnapshot
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

var _ MetricsSink = (*MemorySink)(nil)

func (m *MemorySink) WriteAgentActivity(_ context.Context, rec AgentActivityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities = append(m.activities, rec)
	return nil
}

func (m *MemorySink) WriteWorkflowInstance(_ context.Context, rec WorkflowInstanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances = append(m.instances, rec)
	return nil
}

func (m *MemorySink) WriteOrchestratorMetrics(_ context.Context, snap OrchestratorSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snap)
	return nil
}

// Activities returns a copy of all agent activity records written so far.
func (m *MemorySink) Activities() []AgentActivityRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AgentActivityRecord, len(m.activities))
	copy(out, m.activities)
	return out
}

// Instances returns a copy of all workflow instance records written so far.
func (m *MemorySink) Instances() []WorkflowInstanceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WorkflowInstanceRecord, len(m.instances))
	copy(out, m.instances)
	return out
}

// Snapshots returns a copy of all orchestrator snapshots written so far.
func (m *MemorySink) Snapshots() []OrchestratorSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OrchestratorSnapshot, len(m.snapshots))
	copy(out, m.snapshots)
	return out
}
