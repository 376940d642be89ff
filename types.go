package cadre

import (
	"encoding/json"
	"time"
)

// Payload is the neutral structured value passed between agents, tasks, and
// messages. Inputs, outputs, and message bodies are all Payloads; agents
// decode into strongly typed views at the boundary of their task handlers
// using the typed accessors.
type Payload map[string]any

// String returns the string value for key, or "" if absent or not a string.
func (p Payload) String(key string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return ""
}

// Int returns the integer value for key. JSON-decoded numbers arrive as
// float64, so both int and float64 are accepted. Returns 0 if absent.
func (p Payload) Int(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Float returns the float value for key, or 0 if absent.
func (p Payload) Float(key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// Bool returns the boolean value for key, or false if absent.
func (p Payload) Bool(key string) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return false
}

// Strings returns the string-slice value for key. Both []string and []any
// (the shape produced by encoding/json) are accepted.
func (p Payload) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Map returns the nested Payload for key, or nil if absent.
func (p Payload) Map(key string) Payload {
	switch v := p[key].(type) {
	case Payload:
		return v
	case map[string]any:
		return Payload(v)
	}
	return nil
}

// Clone returns a shallow copy of the payload. Nil stays nil.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// JSON renders the payload as compact JSON, for logging and persistence.
func (p Payload) JSON() string {
	b, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// AgentContext carries the caller identity for a workflow instance. It is
// immutable per instance and passed by value into every agent and task.
type AgentContext struct {
	// UserID identifies the user who submitted the workflow.
	UserID string
	// SessionID identifies the client session.
	SessionID string
	// ProjectID optionally scopes the workflow to a project.
	ProjectID string
	// Overrides carries free-form per-instance settings (model name,
	// platform toggles, limits). Read-only once the workflow starts.
	Overrides Payload
}

// Priority orders tasks for future scheduling decisions. The orchestrator
// currently records it on tasks and metrics but schedules by dependency order.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// AgentTask is a single unit of work dispatched to an agent. Created by the
// orchestrator from a workflow step and consumed exactly once.
type AgentTask struct {
	// ID is unique per task.
	ID string
	// Type tags the work (e.g. "candidate_search"); agents match on it.
	Type string
	// Priority is low, medium, or high.
	Priority Priority
	// Input is the opaque task payload.
	Input Payload
	// Timeout overrides the orchestrator's default per-task deadline.
	// Zero means use the default.
	Timeout time.Duration
	// MaxAttempts overrides the orchestrator's retry budget for transient
	// failures. Zero means use the default; negative disables retries.
	MaxAttempts int
	// Context is the caller identity the task runs under.
	Context AgentContext
}

// ResultStatus is the terminal outcome of a task.
type ResultStatus string

const (
	ResultSuccess   ResultStatus = "success"
	ResultFailure   ResultStatus = "failure"
	ResultCancelled ResultStatus = "cancelled"
)

// AgentResult is produced exactly once per task.
type AgentResult struct {
	// TaskID links the result to its task.
	TaskID string
	// AgentID is the agent that executed the task.
	AgentID string
	// Status is success, failure, or cancelled.
	Status ResultStatus
	// Output is the opaque result payload, nil unless Status is success.
	Output Payload
	// Error is a human-readable message, set iff Status is failure.
	Error string
	// ErrorKind classifies the failure (Timeout, UpstreamFailure, ...).
	// Empty on success.
	ErrorKind ErrorKind
	// StartedAt and EndedAt bound the task's execution window.
	StartedAt time.Time
	EndedAt   time.Time
}

// Duration returns the task's wall-clock execution time.
func (r AgentResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// AgentCapability is a named, schema-described operation an agent claims to
// perform. Static per agent type; used for introspection.
type AgentCapability struct {
	// Name identifies the capability (e.g. "candidate_search").
	Name string
	// Description is a human-readable summary.
	Description string
	// InputSchema is a JSON Schema fragment describing the expected input.
	InputSchema json.RawMessage
}

// AgentType names a concrete agent implementation.
type AgentType string

const (
	AgentSourcing   AgentType = "sourcing"
	AgentEnrichment AgentType = "enrichment"
	AgentPlanning   AgentType = "planning"
)

// AgentStatus is the lifecycle state of a live agent.
type AgentStatus string

const (
	StatusIdle    AgentStatus = "idle"
	StatusWorking AgentStatus = "working"
	StatusPaused  AgentStatus = "paused"
	StatusStopped AgentStatus = "stopped"
)

// AgentMetrics tracks per-agent counters. Counters are monotonic; at
// quiescence SuccessfulTasks + FailedTasks + CancelledTasks == TotalTasks.
type AgentMetrics struct {
	AgentID         string
	TotalTasks      int64
	SuccessfulTasks int64
	FailedTasks     int64
	CancelledTasks  int64
	// AvgResponseMs is a running average over completed tasks:
	// avg = (avg*(n-1) + t) / n with n the post-increment TotalTasks.
	AvgResponseMs float64
	LastActive    time.Time
	Capabilities  []string
}

// MessageType classifies a bus message.
type MessageType string

const (
	MessageRequest  MessageType = "request"
	MessageResponse MessageType = "response"
	MessageStatus   MessageType = "status"
	MessageError    MessageType = "error"
)

// OrchestratorID is the reserved address for the orchestrator itself.
const OrchestratorID = "orchestrator"

// Broadcast is the reserved address that delivers a message to every live agent.
const Broadcast = "*"

// AgentMessage is a typed envelope exchanged between agents and the
// orchestrator via the message bus. Immutable once published.
// From never equals To except for broadcasts (To == Broadcast).
type AgentMessage struct {
	// ID is unique per message.
	ID string
	// From is the sender agent id, or OrchestratorID.
	From string
	// To is the recipient agent id, OrchestratorID, or Broadcast.
	To string
	// Type is request, response, status, or error.
	Type MessageType
	// Action tags the message intent (e.g. "enrichment_progress").
	Action string
	// Payload is the opaque message body.
	Payload Payload
	// Timestamp is the publish time.
	Timestamp time.Time
	// CorrelationID links a response to its originating request. Optional.
	CorrelationID string
	// Forwarded marks a copy republished by a routing rule. Forwarded
	// messages are never routed again, so a rule fires at most once per
	// original publish.
	Forwarded bool
}

// NewMessage builds an AgentMessage with a fresh id and timestamp.
func NewMessage(from, to string, mt MessageType, action string, payload Payload) AgentMessage {
	return AgentMessage{
		ID:        NewID(),
		From:      from,
		To:        to,
		Type:      mt,
		Action:    action,
		Payload:   payload,
		Timestamp: time.Now(),
	}
}
