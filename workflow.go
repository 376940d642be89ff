package cadre

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// WorkflowStep is one node of a workflow DAG: it binds an agent type, a task
// template, and dependency edges.
type WorkflowStep struct {
	// ID is unique within the workflow.
	ID string
	// Name is a human-readable label.
	Name string
	// AgentType selects which agent factory executes the step.
	AgentType AgentType
	// Task is the task template; the orchestrator stamps id, context, and
	// defaults onto a copy at dispatch time.
	Task TaskTemplate
	// Dependencies lists step ids that must succeed before this step runs.
	Dependencies []string
	// Parallel marks the step as eligible to run concurrently with
	// siblings whose dependencies are equally satisfied.
	Parallel bool
	// OnFailure lists handler step ids enqueued instead of cascading
	// failure when this step fails.
	OnFailure []string
}

// TaskTemplate is the task portion of a step, without the per-dispatch
// fields the orchestrator fills in.
type TaskTemplate struct {
	Type        string
	Priority    Priority
	Input       Payload
	Timeout     time.Duration
	MaxAttempts int
}

// WorkflowDefinition is a DAG of steps. Definitions are in-memory structures
// supplied by the caller; the registry stores them as reusable templates.
type WorkflowDefinition struct {
	ID      string
	Name    string
	Version string
	Steps   []WorkflowStep
}

// WorkflowStatus is the lifecycle state of a workflow instance.
// Transitions are terminal-only forward: pending → running → one of
// completed, failed, cancelled.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowPaused    WorkflowStatus = "paused"
	WorkflowCompleted WorkflowStatus = "completed"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// terminal reports whether the status admits no further transitions.
func (s WorkflowStatus) terminal() bool {
	return s == WorkflowCompleted || s == WorkflowFailed || s == WorkflowCancelled
}

// WorkflowInstance is one execution of a definition. Owned by the
// orchestrator; readers take snapshots via its accessors.
type WorkflowInstance struct {
	// ID is unique per execution.
	ID string
	// WorkflowID is the definition id.
	WorkflowID string
	// Context is the caller identity the instance runs under.
	Context AgentContext

	mu        sync.Mutex
	status    WorkflowStatus
	results   map[string]AgentResult
	current   string
	startedAt time.Time
	endedAt   time.Time
	errMsg    string
}

func newWorkflowInstance(def WorkflowDefinition, actx AgentContext) *WorkflowInstance {
	return &WorkflowInstance{
		ID:         NewID(),
		WorkflowID: def.ID,
		Context:    actx,
		status:     WorkflowPending,
		results:    make(map[string]AgentResult, len(def.Steps)),
	}
}

// Status returns the instance's current lifecycle state.
func (w *WorkflowInstance) Status() WorkflowStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Result returns the stored result for a step id.
func (w *WorkflowInstance) Result(stepID string) (AgentResult, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.results[stepID]
	return r, ok
}

// Results returns a copy of all step results keyed by step id.
func (w *WorkflowInstance) Results() map[string]AgentResult {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]AgentResult, len(w.results))
	for k, v := range w.results {
		out[k] = v
	}
	return out
}

// CurrentStep returns the id of the step most recently dispatched.
func (w *WorkflowInstance) CurrentStep() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Err returns the instance error message, set iff the instance failed.
func (w *WorkflowInstance) Err() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.errMsg
}

// Window returns the instance's start and end times.
func (w *WorkflowInstance) Window() (started, ended time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.startedAt, w.endedAt
}

func (w *WorkflowInstance) setResult(stepID string, r AgentResult) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.results[stepID] = r
}

func (w *WorkflowInstance) setCurrent(stepID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.current = stepID
}

// transition moves the instance forward. Terminal states are sticky: once
// reached, further transitions are ignored.
func (w *WorkflowInstance) transition(status WorkflowStatus, errMsg string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.status.terminal() {
		return false
	}
	w.status = status
	switch status {
	case WorkflowRunning:
		if w.startedAt.IsZero() {
			w.startedAt = time.Now()
		}
	case WorkflowCompleted, WorkflowFailed, WorkflowCancelled:
		w.endedAt = time.Now()
		w.errMsg = errMsg
	}
	return true
}

// record builds the sink record for a terminal instance.
func (w *WorkflowInstance) record(stepCount int) WorkflowInstanceRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	statuses := make(map[string]ResultStatus, len(w.results))
	for id, r := range w.results {
		statuses[id] = r.Status
	}
	return WorkflowInstanceRecord{
		InstanceID:   w.ID,
		WorkflowID:   w.WorkflowID,
		Status:       w.status,
		Error:        w.errMsg,
		StepCount:    stepCount,
		StepStatuses: statuses,
		StartedAt:    w.startedAt,
		EndedAt:      w.endedAt,
		UserID:       w.Context.UserID,
		SessionID:    w.Context.SessionID,
	}
}

// ValidationResult is the outcome of validating a workflow definition.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// ValidateWorkflow checks a definition: non-empty id, name, and steps;
// unique step ids; every dependency and failure handler defined in the same
// workflow; acyclic dependency graph (Kahn's algorithm); and, when
// knownTypes is non-nil, every step's agent type registered.
func ValidateWorkflow(def WorkflowDefinition, knownTypes map[AgentType]bool) ValidationResult {
	var errs []string

	if def.ID == "" {
		errs = append(errs, "workflow id is empty")
	}
	if def.Name == "" {
		errs = append(errs, "workflow name is empty")
	}
	if len(def.Steps) == 0 {
		errs = append(errs, "workflow has no steps")
		return ValidationResult{Valid: false, Errors: errs}
	}

	steps := make(map[string]bool, len(def.Steps))
	for _, s := range def.Steps {
		if s.ID == "" {
			errs = append(errs, "step with empty id")
			continue
		}
		if steps[s.ID] {
			errs = append(errs, fmt.Sprintf("duplicate step id %q", s.ID))
		}
		steps[s.ID] = true
	}

	for _, s := range def.Steps {
		for _, dep := range s.Dependencies {
			if !steps[dep] {
				errs = append(errs, fmt.Sprintf("step %q depends on unknown step %q", s.ID, dep))
			}
		}
		for _, h := range s.OnFailure {
			if !steps[h] {
				errs = append(errs, fmt.Sprintf("step %q names unknown failure handler %q", s.ID, h))
			}
		}
		if knownTypes != nil && !knownTypes[s.AgentType] {
			errs = append(errs, fmt.Sprintf("step %q uses unregistered agent type %q", s.ID, s.AgentType))
		}
	}

	if cycle := detectCycle(def); cycle != "" {
		errs = append(errs, cycle)
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// detectCycle runs Kahn's algorithm over the dependency graph and returns a
// description of the cycle members when topological sorting cannot consume
// every step, or "" when the graph is acyclic.
func detectCycle(def WorkflowDefinition) string {
	inDegree := make(map[string]int, len(def.Steps))
	dependents := make(map[string][]string)
	for _, s := range def.Steps {
		inDegree[s.ID] = len(s.Dependencies)
		for _, dep := range s.Dependencies {
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	var queue []string
	for _, s := range def.Steps {
		if inDegree[s.ID] == 0 {
			queue = append(queue, s.ID)
		}
	}

	visited := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range dependents[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited == len(def.Steps) {
		return ""
	}

	// Every step with a remaining in-degree participates in (or depends
	// on) a cycle; name them in definition order for a stable message.
	var members []string
	for _, s := range def.Steps {
		if inDegree[s.ID] > 0 {
			members = append(members, s.ID)
		}
	}
	return fmt.Sprintf("dependency cycle involving steps: %s", strings.Join(members, ", "))
}

// WorkflowRegistry stores reusable workflow definitions by id.
// Safe for concurrent use.
type WorkflowRegistry struct {
	mu   sync.RWMutex
	defs map[string]WorkflowDefinition
}

// NewWorkflowRegistry creates an empty registry.
func NewWorkflowRegistry() *WorkflowRegistry {
	return &WorkflowRegistry{defs: make(map[string]WorkflowDefinition)}
}

// Register stores a definition, replacing any previous one with the same id.
// The definition is validated first; invalid definitions are rejected.
func (r *WorkflowRegistry) Register(def WorkflowDefinition) error {
	if v := ValidateWorkflow(def, nil); !v.Valid {
		return Errorf(KindValidation, "workflow %q rejected: %v", def.ID, v.Errors)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.ID] = def
	return nil
}

// Get returns the definition for id.
func (r *WorkflowRegistry) Get(id string) (WorkflowDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[id]
	return def, ok
}

// List returns all registered definitions.
func (r *WorkflowRegistry) List() []WorkflowDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]WorkflowDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	return out
}

// Remove deletes a definition. Idempotent.
func (r *WorkflowRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.defs, id)
}
