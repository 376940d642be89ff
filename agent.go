package cadre

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Agent is a worker instance with a declared capability set, a single
// in-flight task, and explicit lifecycle states. Agents are created and
// exclusively owned by the Orchestrator; they communicate with the rest of
// the system only through their event and outbox channels.
type Agent interface {
	// ID returns the unique agent id (type prefix + nonce).
	ID() string
	// Type returns the agent type.
	Type() AgentType
	// Status returns the current lifecycle state.
	Status() AgentStatus
	// Capabilities returns the agent's static capability declarations.
	Capabilities() []AgentCapability
	// Metrics returns a snapshot of the agent's counters.
	Metrics() AgentMetrics
	// CanHandle reports whether the agent accepts the task's type. Pure.
	CanHandle(task AgentTask) bool
	// ProcessTask executes the task and returns its result. Never panics
	// and never returns an error: every failure is captured in the result.
	// A second concurrent call fails with kind Busy.
	ProcessTask(ctx context.Context, task AgentTask) AgentResult
	// HandleMessage dispatches an inbound message to the agent's hooks.
	// Messages addressed to a different agent are dropped silently.
	HandleMessage(msg AgentMessage)
	// SendMessage emits an outbound message with a fresh id onto the
	// agent's outbox. Returns the message as published.
	SendMessage(to string, mt MessageType, action string, payload Payload) AgentMessage
	// Pause and Resume toggle the paused state. Shutdown is terminal.
	Pause()
	Resume()
	Shutdown()
	// Events is the agent's lifecycle event stream, closed on Shutdown.
	Events() <-chan AgentEvent
	// Outbox is the agent's outbound message stream, closed on Shutdown.
	Outbox() <-chan AgentMessage
}

// AgentEventType identifies a lifecycle event.
type AgentEventType string

const (
	EventTaskStart     AgentEventType = "task:start"
	EventTaskComplete  AgentEventType = "task:complete"
	EventTaskError     AgentEventType = "task:error"
	EventAgentPaused   AgentEventType = "agent:paused"
	EventAgentResumed  AgentEventType = "agent:resumed"
	EventAgentShutdown AgentEventType = "agent:shutdown"
)

// AgentEvent is one lifecycle event. For a given task, task:start precedes
// exactly one of task:complete or task:error; no event repeats.
type AgentEvent struct {
	Type    AgentEventType
	AgentID string
	TaskID  string
	// Result is set on task:complete and task:error.
	Result *AgentResult
	At     time.Time
}

// TaskRunner is the task-type-specific handler supplied by a concrete agent.
// Errors and panics are captured by the base agent as failure results and
// never propagate to the orchestrator call stack.
type TaskRunner func(ctx context.Context, task AgentTask) (Payload, error)

// MessageHooks receive inbound messages dispatched by type. Nil hooks are
// skipped; a request with no OnRequest hook gets an error response.
type MessageHooks struct {
	OnRequest  func(msg AgentMessage)
	OnResponse func(msg AgentMessage)
	OnStatus   func(msg AgentMessage)
	OnError    func(msg AgentMessage)
}

// agentConfig holds options shared by all agents.
type agentConfig struct {
	logger *slog.Logger
	hooks  MessageHooks
	buffer int
}

// AgentOption configures an agent.
type AgentOption func(*agentConfig)

// WithAgentLogger sets the structured logger. Default: no output.
func WithAgentLogger(l *slog.Logger) AgentOption {
	return func(c *agentConfig) { c.logger = l }
}

// WithMessageHooks sets the inbound message hooks.
func WithMessageHooks(h MessageHooks) AgentOption {
	return func(c *agentConfig) { c.hooks = h }
}

// nopLogger discards all output. Used when no logger option is set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// BaseAgent implements the shared agent machinery: lifecycle, single-flight
// task dispatch, metrics, and message in/out. Concrete agents construct one
// with their capability set, task types, and TaskRunner.
type BaseAgent struct {
	id        string
	typ       AgentType
	caps      []AgentCapability
	taskTypes map[string]bool
	runner    TaskRunner
	hooks     MessageHooks
	logger    *slog.Logger

	mu       sync.Mutex
	inflight bool
	paused   bool
	stopped  bool
	current  *AgentTask
	metrics  AgentMetrics

	events   chan AgentEvent
	outbox   chan AgentMessage
	shutdown sync.Once
}

var _ Agent = (*BaseAgent)(nil)

// NewBaseAgent creates a BaseAgent of the given type. taskTypes is the set
// of AgentTask.Type values CanHandle accepts; runner executes them.
func NewBaseAgent(typ AgentType, caps []AgentCapability, taskTypes []string, runner TaskRunner, opts ...AgentOption) *BaseAgent {
	cfg := agentConfig{buffer: 64}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = nopLogger
	}

	types := make(map[string]bool, len(taskTypes))
	for _, t := range taskTypes {
		types[t] = true
	}
	capNames := make([]string, len(caps))
	for i, c := range caps {
		capNames[i] = c.Name
	}

	a := &BaseAgent{
		id:        NewAgentID(typ),
		typ:       typ,
		caps:      caps,
		taskTypes: types,
		runner:    runner,
		hooks:     cfg.hooks,
		logger:    cfg.logger,
		events:    make(chan AgentEvent, cfg.buffer),
		outbox:    make(chan AgentMessage, cfg.buffer),
	}
	a.metrics = AgentMetrics{AgentID: a.id, Capabilities: capNames}
	return a
}

func (a *BaseAgent) ID() string                      { return a.id }
func (a *BaseAgent) Type() AgentType                 { return a.typ }
func (a *BaseAgent) Capabilities() []AgentCapability { return a.caps }
func (a *BaseAgent) Events() <-chan AgentEvent       { return a.events }
func (a *BaseAgent) Outbox() <-chan AgentMessage     { return a.outbox }

// Status derives the lifecycle state. Stopped dominates, then working,
// then paused.
func (a *BaseAgent) Status() AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.stopped:
		return StatusStopped
	case a.inflight:
		return StatusWorking
	case a.paused:
		return StatusPaused
	default:
		return StatusIdle
	}
}

// Metrics returns a snapshot of the agent's counters.
func (a *BaseAgent) Metrics() AgentMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	m := a.metrics
	m.Capabilities = append([]string(nil), a.metrics.Capabilities...)
	return m
}

// CurrentTask returns the in-flight task, or nil when idle.
func (a *BaseAgent) CurrentTask() *AgentTask {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// CanHandle reports whether the task's type is in the agent's declared set.
func (a *BaseAgent) CanHandle(task AgentTask) bool {
	return a.taskTypes[task.Type]
}

// ProcessTask drives the agent from idle to working and back. Rejections
// (wrong type, busy, paused, stopped) return a failure result immediately
// without touching metrics or emitting lifecycle events; accepted tasks
// always produce task:start followed by task:complete or task:error.
func (a *BaseAgent) ProcessTask(ctx context.Context, task AgentTask) AgentResult {
	now := time.Now()
	if !a.CanHandle(task) {
		return a.reject(task, now, KindNotSupported,
			"agent "+a.id+" cannot handle task type "+task.Type)
	}

	a.mu.Lock()
	if a.stopped || a.paused || a.inflight {
		status := "working"
		if a.stopped {
			status = "stopped"
		} else if a.paused {
			status = "paused"
		}
		a.mu.Unlock()
		return a.reject(task, now, KindBusy, "agent "+a.id+" is "+status)
	}
	a.inflight = true
	a.current = &task
	a.mu.Unlock()

	a.emit(AgentEvent{Type: EventTaskStart, AgentID: a.id, TaskID: task.ID, At: now})

	runCtx := ctx
	var cancel context.CancelFunc
	if task.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	output, err := a.runSafely(runCtx, task)
	ended := time.Now()

	result := AgentResult{
		TaskID:    task.ID,
		AgentID:   a.id,
		StartedAt: now,
		EndedAt:   ended,
	}
	switch {
	case err == nil:
		result.Status = ResultSuccess
		result.Output = output
	case runCtx.Err() != nil && ctx.Err() == context.Canceled:
		result.Status = ResultCancelled
		result.ErrorKind = KindCancelled
	case runCtx.Err() == context.DeadlineExceeded:
		result.Status = ResultFailure
		result.ErrorKind = KindTimeout
		result.Error = "task " + task.ID + " exceeded its deadline"
	default:
		result.Status = ResultFailure
		result.ErrorKind = KindOf(err)
		result.Error = err.Error()
	}

	a.mu.Lock()
	a.inflight = false
	a.current = nil
	a.updateMetricsLocked(result)
	a.mu.Unlock()

	eventType := EventTaskComplete
	if result.Status == ResultFailure {
		eventType = EventTaskError
	}
	a.emit(AgentEvent{Type: eventType, AgentID: a.id, TaskID: task.ID, Result: &result, At: ended})

	a.logger.Debug("task processed",
		"agent", a.id,
		"task", task.ID,
		"type", task.Type,
		"status", result.Status,
		"duration_ms", float64(result.Duration())/float64(time.Millisecond))
	return result
}

// reject builds an immediate failure result for a task the agent never ran.
func (a *BaseAgent) reject(task AgentTask, at time.Time, kind ErrorKind, msg string) AgentResult {
	a.logger.Debug("task rejected", "agent", a.id, "task", task.ID, "kind", kind)
	return AgentResult{
		TaskID:    task.ID,
		AgentID:   a.id,
		Status:    ResultFailure,
		Error:     msg,
		ErrorKind: kind,
		StartedAt: at,
		EndedAt:   at,
	}
}

// runSafely invokes the runner, converting panics into Internal errors.
func (a *BaseAgent) runSafely(ctx context.Context, task AgentTask) (output Payload, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("task handler panicked", "agent", a.id, "task", task.ID, "panic", r)
			err = Errorf(KindInternal, "task handler panicked: %v", r)
		}
	}()
	return a.runner(ctx, task)
}

// updateMetricsLocked applies a finished result to the counters.
// Caller holds a.mu.
func (a *BaseAgent) updateMetricsLocked(result AgentResult) {
	a.metrics.TotalTasks++
	switch result.Status {
	case ResultSuccess:
		a.metrics.SuccessfulTasks++
	case ResultCancelled:
		a.metrics.CancelledTasks++
	default:
		a.metrics.FailedTasks++
	}
	n := float64(a.metrics.TotalTasks)
	ms := float64(result.Duration()) / float64(time.Millisecond)
	a.metrics.AvgResponseMs = (a.metrics.AvgResponseMs*(n-1) + ms) / n
	a.metrics.LastActive = result.EndedAt
}

// HandleMessage dispatches an inbound message by type. A message whose To
// is neither this agent nor the broadcast address is dropped silently.
func (a *BaseAgent) HandleMessage(msg AgentMessage) {
	if msg.To != a.id && msg.To != Broadcast {
		a.logger.Debug("dropping misaddressed message", "agent", a.id, "to", msg.To)
		return
	}
	switch msg.Type {
	case MessageRequest:
		if a.hooks.OnRequest != nil {
			a.hooks.OnRequest(msg)
			return
		}
		a.sendErrorResponse(msg, "no handler for action "+msg.Action)
	case MessageResponse:
		if a.hooks.OnResponse != nil {
			a.hooks.OnResponse(msg)
		}
	case MessageStatus:
		if a.hooks.OnStatus != nil {
			a.hooks.OnStatus(msg)
		}
	case MessageError:
		if a.hooks.OnError != nil {
			a.hooks.OnError(msg)
		}
	}
}

// sendErrorResponse replies to a request the agent cannot serve.
func (a *BaseAgent) sendErrorResponse(req AgentMessage, reason string) {
	msg := NewMessage(a.id, req.From, MessageError, req.Action, Payload{"error": reason})
	msg.CorrelationID = req.ID
	a.post(msg)
}

// SendMessage emits an outbound message with a fresh id.
func (a *BaseAgent) SendMessage(to string, mt MessageType, action string, payload Payload) AgentMessage {
	msg := NewMessage(a.id, to, mt, action, payload)
	a.post(msg)
	return msg
}

// Reply emits a response correlated to a request.
func (a *BaseAgent) Reply(req AgentMessage, action string, payload Payload) AgentMessage {
	msg := NewMessage(a.id, req.From, MessageResponse, action, payload)
	msg.CorrelationID = req.ID
	a.post(msg)
	return msg
}

// post enqueues onto the outbox without ever blocking the agent: when the
// consumer falls behind the message is dropped and logged. The send happens
// under a.mu so it can never race the channel close in Shutdown.
func (a *BaseAgent) post(msg AgentMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	select {
	case a.outbox <- msg:
	default:
		a.logger.Warn("outbox full, dropping message", "agent", a.id, "action", msg.Action)
	}
}

// emit enqueues a lifecycle event without blocking, under a.mu for the same
// reason as post.
func (a *BaseAgent) emit(ev AgentEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped && ev.Type != EventAgentShutdown {
		return
	}
	select {
	case a.events <- ev:
	default:
		a.logger.Warn("event channel full, dropping event", "agent", a.id, "event", ev.Type)
	}
}

// Pause marks the agent paused. New tasks are rejected with kind Busy until
// Resume. No effect after Shutdown.
func (a *BaseAgent) Pause() {
	a.mu.Lock()
	if a.stopped || a.paused {
		a.mu.Unlock()
		return
	}
	a.paused = true
	a.mu.Unlock()
	a.emit(AgentEvent{Type: EventAgentPaused, AgentID: a.id, At: time.Now()})
}

// Resume clears the paused state. No effect after Shutdown.
func (a *BaseAgent) Resume() {
	a.mu.Lock()
	if a.stopped || !a.paused {
		a.mu.Unlock()
		return
	}
	a.paused = false
	a.mu.Unlock()
	a.emit(AgentEvent{Type: EventAgentResumed, AgentID: a.id, At: time.Now()})
}

// Shutdown is terminal: the agent stops accepting tasks and messages, emits
// agent:shutdown, and closes its event and outbox channels. Idempotent.
func (a *BaseAgent) Shutdown() {
	a.shutdown.Do(func() {
		a.mu.Lock()
		a.stopped = true
		select {
		case a.events <- AgentEvent{Type: EventAgentShutdown, AgentID: a.id, At: time.Now()}:
		default:
		}
		close(a.events)
		close(a.outbox)
		a.mu.Unlock()
	})
}
