package cadre

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RetryConfig controls step-level retries inside workflows. Only failures
// with kind Timeout or UpstreamFailure are retried; everything else is
// treated as deterministic and fails immediately.
type RetryConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

// MonitoringConfig controls the periodic metrics pump.
type MonitoringConfig struct {
	Enabled         bool
	MetricsInterval time.Duration
}

// BusConfig controls the embedded message bus.
type BusConfig struct {
	MaxLogSize int
}

// Config is the orchestrator configuration. Zero fields take defaults from
// DefaultConfig.
type Config struct {
	// MaxConcurrentAgents caps the live agent registry. Admission is
	// fail-fast: creation beyond the cap returns CapacityExceeded.
	MaxConcurrentAgents int
	// DefaultTimeout applies to tasks whose template leaves Timeout zero.
	DefaultTimeout time.Duration
	Retry          RetryConfig
	Monitoring     MonitoringConfig
	Bus            BusConfig
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentAgents: 10,
		DefaultTimeout:      2 * time.Minute,
		Retry:               RetryConfig{MaxAttempts: 3, Backoff: time.Second},
		Monitoring:          MonitoringConfig{Enabled: true, MetricsInterval: 30 * time.Second},
		Bus:                 BusConfig{MaxLogSize: DefaultMaxLogSize},
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxConcurrentAgents <= 0 {
		c.MaxConcurrentAgents = def.MaxConcurrentAgents
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = def.DefaultTimeout
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if c.Retry.Backoff <= 0 {
		c.Retry.Backoff = def.Retry.Backoff
	}
	if c.Monitoring.MetricsInterval <= 0 {
		c.Monitoring.MetricsInterval = def.Monitoring.MetricsInterval
	}
	if c.Bus.MaxLogSize <= 0 {
		c.Bus.MaxLogSize = def.Bus.MaxLogSize
	}
	return c
}

// AgentFactory builds a fresh agent instance for its registered type.
type AgentFactory func() (Agent, error)

// workflowRun is the orchestrator's bookkeeping for one executing instance.
type workflowRun struct {
	instance *WorkflowInstance
	def      WorkflowDefinition
	cancel   context.CancelFunc

	mu     sync.Mutex
	resume chan struct{} // non-nil while paused; closed on resume
}

// pause gates the run. Idempotent.
func (r *workflowRun) pause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resume == nil {
		r.resume = make(chan struct{})
	}
}

func (r *workflowRun) unpause() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.resume != nil {
		close(r.resume)
		r.resume = nil
	}
}

// gate blocks while the run is paused. Returns ctx.Err() on cancellation.
func (r *workflowRun) gate(ctx context.Context) error {
	for {
		r.mu.Lock()
		ch := r.resume
		r.mu.Unlock()
		if ch == nil {
			return ctx.Err()
		}
		r.instance.transition(WorkflowPaused, "")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
			r.instance.transition(WorkflowRunning, "")
		}
	}
}

// Orchestrator owns the agent registry, the message bus, and workflow
// execution. All agents are created through it and torn down by it.
type Orchestrator struct {
	cfg      Config
	bus      *MessageBus
	registry *WorkflowRegistry
	sink     MetricsSink
	logger   *slog.Logger

	mu        sync.Mutex
	running   bool
	factories map[AgentType]AgentFactory
	agents    map[string]Agent
	runs      map[string]*workflowRun

	completedWorkflows int64
	failedWorkflows    int64
	cancelledWorkflows int64
	droppedMessages    int64

	rootCtx    context.Context
	rootCancel context.CancelFunc
	pumps      sync.WaitGroup
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithConfig sets the configuration. Zero fields take defaults.
func WithConfig(cfg Config) OrchestratorOption {
	return func(o *Orchestrator) { o.cfg = cfg }
}

// WithLogger sets the structured logger. Default: no output.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetricsSink sets the sink for activity records, instance records, and
// periodic snapshots. Default: an in-memory sink.
func WithMetricsSink(s MetricsSink) OrchestratorOption {
	return func(o *Orchestrator) { o.sink = s }
}

// NewOrchestrator creates an orchestrator. Call Initialize before use.
func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		cfg:       DefaultConfig(),
		factories: make(map[AgentType]AgentFactory),
		agents:    make(map[string]Agent),
		runs:      make(map[string]*workflowRun),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.cfg = o.cfg.withDefaults()
	if o.logger == nil {
		o.logger = nopLogger
	}
	if o.sink == nil {
		o.sink = NewMemorySink()
	}
	o.bus = NewMessageBus(
		WithMaxLogSize(o.cfg.Bus.MaxLogSize),
		WithBusLogger(o.logger),
	)
	return o
}

// Bus exposes the embedded message bus for subscriptions and log queries.
func (o *Orchestrator) Bus() *MessageBus { return o.bus }

// Registry exposes the workflow definition registry.
func (o *Orchestrator) Registry() *WorkflowRegistry {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.registry == nil {
		o.registry = NewWorkflowRegistry()
	}
	return o.registry
}

// RegisterAgentType installs the factory for an agent type, replacing any
// previous registration.
func (o *Orchestrator) RegisterAgentType(t AgentType, f AgentFactory) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.factories[t] = f
}

// Initialize wires message delivery and starts the metrics pump. Idempotent
// while running. The orchestrator stays up until Shutdown.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = true
	o.rootCtx, o.rootCancel = context.WithCancel(context.WithoutCancel(ctx))
	o.mu.Unlock()

	o.bus.Subscribe("message", o.deliver)
	o.bus.SetRouteHandler(o.forward)

	if o.cfg.Monitoring.Enabled {
		o.pumps.Add(1)
		go o.metricsPump()
	}

	o.logger.Info("orchestrator initialized",
		"max_agents", o.cfg.MaxConcurrentAgents,
		"monitoring", o.cfg.Monitoring.Enabled)
	return nil
}

// deliver routes a published message to its addressee. Runs on the
// publisher's goroutine under the bus lock. Unroutable messages are dropped
// and counted.
func (o *Orchestrator) deliver(msg AgentMessage) {
	switch msg.To {
	case OrchestratorID:
		o.logger.Debug("message for orchestrator",
			"from", msg.From, "action", msg.Action, "type", msg.Type)
	case Broadcast:
		o.mu.Lock()
		targets := make([]Agent, 0, len(o.agents))
		for _, a := range o.agents {
			if a.ID() != msg.From {
				targets = append(targets, a)
			}
		}
		o.mu.Unlock()
		for _, a := range targets {
			a.HandleMessage(msg)
		}
	default:
		o.mu.Lock()
		a, ok := o.agents[msg.To]
		if !ok {
			o.droppedMessages++
		}
		o.mu.Unlock()
		if ok {
			a.HandleMessage(msg)
			return
		}
		o.logger.Debug("dropping unroutable message", "to", msg.To, "action", msg.Action)
	}
}

// forward republishes a routed message to the rule's target. A rule with an
// empty To keeps the original recipient. The copy is marked Forwarded so
// routing applies at most once per original publish. The republish happens
// on a new goroutine because forward runs under the bus lock.
func (o *Orchestrator) forward(msg AgentMessage, rule RouteRule) {
	fwd := msg
	fwd.ID = NewID()
	fwd.CorrelationID = msg.ID
	fwd.Forwarded = true
	if rule.To != "" {
		fwd.To = rule.To
	}
	go o.bus.Publish(fwd)
}

// CreateAgent admits and registers a fresh agent of the given type.
// Admission is fail-fast: at capacity it returns CapacityExceeded without
// queueing, and an unregistered type returns UnknownAgentType.
func (o *Orchestrator) CreateAgent(t AgentType) (Agent, error) {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil, NewError(KindInternal, "orchestrator is not running")
	}
	if len(o.agents) >= o.cfg.MaxConcurrentAgents {
		n := len(o.agents)
		o.mu.Unlock()
		return nil, Errorf(KindCapacityExceeded,
			"agent capacity reached (%d/%d)", n, o.cfg.MaxConcurrentAgents)
	}
	factory, ok := o.factories[t]
	if !ok {
		o.mu.Unlock()
		return nil, Errorf(KindUnknownAgentType, "no factory for agent type %q", t)
	}
	o.mu.Unlock()

	agent, err := factory()
	if err != nil {
		return nil, WrapError(KindInternal, "agent factory failed", err)
	}

	o.mu.Lock()
	// Re-check: another creator may have filled the last slot while the
	// factory ran.
	if len(o.agents) >= o.cfg.MaxConcurrentAgents {
		n := len(o.agents)
		o.mu.Unlock()
		agent.Shutdown()
		return nil, Errorf(KindCapacityExceeded,
			"agent capacity reached (%d/%d)", n, o.cfg.MaxConcurrentAgents)
	}
	o.agents[agent.ID()] = agent
	o.mu.Unlock()

	o.pumps.Add(2)
	go o.eventPump(agent)
	go o.outboxPump(agent)

	o.logger.Info("agent created", "agent", agent.ID(), "type", t)
	return agent, nil
}

// eventPump mirrors an agent's lifecycle events onto the bus as status
// messages until the agent shuts down.
func (o *Orchestrator) eventPump(a Agent) {
	defer o.pumps.Done()
	for ev := range a.Events() {
		payload := Payload{"agent_id": ev.AgentID}
		if ev.TaskID != "" {
			payload["task_id"] = ev.TaskID
		}
		if ev.Result != nil {
			payload["status"] = string(ev.Result.Status)
			if ev.Result.Error != "" {
				payload["error"] = ev.Result.Error
			}
		}
		mt := MessageStatus
		if ev.Type == EventTaskError {
			mt = MessageError
		}
		o.bus.Publish(NewMessage(ev.AgentID, OrchestratorID, mt, string(ev.Type), payload))
	}
}

// outboxPump drains an agent's outbox onto the bus until the agent shuts down.
func (o *Orchestrator) outboxPump(a Agent) {
	defer o.pumps.Done()
	for msg := range a.Outbox() {
		o.bus.Publish(msg)
	}
}

// RemoveAgent shuts an agent down and releases its registry slot. Idempotent.
func (o *Orchestrator) RemoveAgent(id string) {
	o.mu.Lock()
	agent, ok := o.agents[id]
	delete(o.agents, id)
	o.mu.Unlock()
	if !ok {
		return
	}
	agent.Shutdown()
	o.logger.Info("agent removed", "agent", id)
}

// SendMessage publishes a message on the bus under the orchestrator's name.
func (o *Orchestrator) SendMessage(to string, mt MessageType, action string, payload Payload) AgentMessage {
	msg := NewMessage(OrchestratorID, to, mt, action, payload)
	o.bus.Publish(msg)
	return msg
}

// GetAgent returns a live agent by id.
func (o *Orchestrator) GetAgent(id string) (Agent, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	a, ok := o.agents[id]
	return a, ok
}

// GetAgentMetrics returns the metrics snapshot for a live agent.
func (o *Orchestrator) GetAgentMetrics(id string) (AgentMetrics, bool) {
	a, ok := o.GetAgent(id)
	if !ok {
		return AgentMetrics{}, false
	}
	return a.Metrics(), true
}

// ListAgents returns the ids of all live agents.
func (o *Orchestrator) ListAgents() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.agents))
	for id := range o.agents {
		out = append(out, id)
	}
	return out
}

// GetWorkflow returns a tracked workflow instance by id. Instances stay
// queryable after completion until Shutdown.
func (o *Orchestrator) GetWorkflow(instanceID string) (*WorkflowInstance, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.runs[instanceID]
	if !ok {
		return nil, false
	}
	return run.instance, true
}

// ActiveWorkflows returns instances not yet in a terminal state.
func (o *Orchestrator) ActiveWorkflows() []*WorkflowInstance {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*WorkflowInstance
	for _, run := range o.runs {
		if !run.instance.Status().terminal() {
			out = append(out, run.instance)
		}
	}
	return out
}

// ExecuteWorkflow validates def and runs it to a terminal state, blocking
// until done. The returned error is non-nil only for validation failures or
// when the orchestrator is not running; step failures are reported through
// the instance itself.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, def WorkflowDefinition, actx AgentContext) (*WorkflowInstance, error) {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil, NewError(KindInternal, "orchestrator is not running")
	}
	known := make(map[AgentType]bool, len(o.factories))
	for t := range o.factories {
		known[t] = true
	}
	o.mu.Unlock()

	if v := ValidateWorkflow(def, known); !v.Valid {
		return nil, Errorf(KindValidation, "workflow %q invalid: %v", def.ID, v.Errors)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	run := &workflowRun{
		instance: newWorkflowInstance(def, actx),
		def:      def,
		cancel:   cancel,
	}

	o.mu.Lock()
	o.runs[run.instance.ID] = run
	o.mu.Unlock()

	o.logger.Info("workflow started",
		"workflow", def.ID, "instance", run.instance.ID, "steps", len(def.Steps))
	o.execute(runCtx, run)

	status := run.instance.Status()
	o.mu.Lock()
	switch status {
	case WorkflowCompleted:
		o.completedWorkflows++
	case WorkflowFailed:
		o.failedWorkflows++
	case WorkflowCancelled:
		o.cancelledWorkflows++
	}
	o.mu.Unlock()

	if err := o.sink.WriteWorkflowInstance(context.WithoutCancel(ctx), run.instance.record(len(def.Steps))); err != nil {
		o.logger.Warn("workflow instance record not persisted",
			"instance", run.instance.ID, "error", err)
	}
	o.logger.Info("workflow finished",
		"workflow", def.ID, "instance", run.instance.ID, "status", status)
	return run.instance, nil
}

// stepExec pairs a step with its final result during execution.
type stepExec struct {
	step   WorkflowStep
	result AgentResult
}

// execute drives the instance through its DAG in waves. Within a wave,
// steps marked Parallel run concurrently; the rest run sequentially in
// definition order after the parallel group completes.
func (o *Orchestrator) execute(ctx context.Context, run *workflowRun) {
	inst := run.instance
	def := run.def
	inst.transition(WorkflowRunning, "")

	done := make(map[string]bool, len(def.Steps))
	satisfied := make(map[string]bool, len(def.Steps)) // success feeds dependents
	waived := make(map[string]bool)                    // failure handlers run regardless of deps
	unhandledFailure := false

	finish := func() {
		switch {
		case ctx.Err() != nil:
			inst.transition(WorkflowCancelled, "")
		case unhandledFailure:
			inst.transition(WorkflowFailed, inst.firstFailure())
		default:
			inst.transition(WorkflowCompleted, "")
		}
	}

	for len(done) < len(def.Steps) {
		if err := run.gate(ctx); err != nil {
			o.markRemaining(run, done, ResultCancelled, KindCancelled, "workflow cancelled")
			finish()
			return
		}

		var parallel, sequential []WorkflowStep
		for _, s := range def.Steps {
			if done[s.ID] || !ready(s, satisfied, waived) {
				continue
			}
			if s.Parallel {
				parallel = append(parallel, s)
			} else {
				sequential = append(sequential, s)
			}
		}

		if len(parallel) == 0 && len(sequential) == 0 {
			// Every remaining step is blocked behind a failed or
			// skipped dependency.
			o.markRemaining(run, done, ResultFailure, KindDependencyUnsatisfied,
				"dependency did not complete successfully")
			unhandledFailure = true
			finish()
			return
		}

		var execs []stepExec

		if len(parallel) > 0 {
			results := make([]stepExec, len(parallel))
			var wg sync.WaitGroup
			for i, s := range parallel {
				wg.Add(1)
				go func(i int, s WorkflowStep) {
					defer wg.Done()
					results[i] = stepExec{step: s, result: o.runStep(ctx, run, s)}
				}(i, s)
			}
			wg.Wait()
			execs = append(execs, results...)
		}

		for _, s := range sequential {
			if ctx.Err() != nil {
				break
			}
			execs = append(execs, stepExec{step: s, result: o.runStep(ctx, run, s)})
		}

		cancelled := false
		for _, e := range execs {
			done[e.step.ID] = true
			inst.setResult(e.step.ID, e.result)
			switch e.result.Status {
			case ResultSuccess:
				satisfied[e.step.ID] = true
			case ResultCancelled:
				cancelled = true
			default:
				if len(e.step.OnFailure) > 0 {
					for _, h := range e.step.OnFailure {
						if !done[h] {
							waived[h] = true
						}
					}
					o.logger.Warn("step failed, running failure handlers",
						"instance", inst.ID, "step", e.step.ID, "handlers", e.step.OnFailure)
				} else {
					unhandledFailure = true
					o.logger.Warn("step failed",
						"instance", inst.ID, "step", e.step.ID,
						"kind", e.result.ErrorKind, "error", e.result.Error)
				}
			}
		}

		if cancelled || ctx.Err() != nil {
			o.markRemaining(run, done, ResultCancelled, KindCancelled, "workflow cancelled")
			finish()
			return
		}
	}
	finish()
}

// ready reports whether every dependency of s has completed successfully,
// or the step was enqueued as a failure handler.
func ready(s WorkflowStep, satisfied, waived map[string]bool) bool {
	if waived[s.ID] {
		return true
	}
	for _, dep := range s.Dependencies {
		if !satisfied[dep] {
			return false
		}
	}
	return true
}

// markRemaining records a terminal result for every step not yet done.
func (o *Orchestrator) markRemaining(run *workflowRun, done map[string]bool, status ResultStatus, kind ErrorKind, msg string) {
	now := time.Now()
	for _, s := range run.def.Steps {
		if done[s.ID] {
			continue
		}
		done[s.ID] = true
		r := AgentResult{
			TaskID:    s.ID,
			Status:    status,
			ErrorKind: kind,
			StartedAt: now,
			EndedAt:   now,
		}
		if status == ResultFailure {
			r.Error = msg
		}
		run.instance.setResult(s.ID, r)
	}
}

// firstFailure returns the error message of the first failed step in the
// instance's results, for the instance-level error.
func (w *WorkflowInstance) firstFailure() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, r := range w.results {
		if r.Status == ResultFailure && r.Error != "" {
			return r.Error
		}
	}
	return "workflow step failed"
}

// runStep acquires an agent, runs the step's task with retries, records the
// activity, and releases the agent.
func (o *Orchestrator) runStep(ctx context.Context, run *workflowRun, step WorkflowStep) AgentResult {
	inst := run.instance
	inst.setCurrent(step.ID)

	task := AgentTask{
		ID:          NewID(),
		Type:        step.Task.Type,
		Priority:    step.Task.Priority,
		Input:       step.Task.Input.Clone(),
		Timeout:     step.Task.Timeout,
		MaxAttempts: step.Task.MaxAttempts,
		Context:     inst.Context,
	}
	if task.Timeout <= 0 {
		task.Timeout = o.cfg.DefaultTimeout
	}
	maxAttempts := task.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = o.cfg.Retry.MaxAttempts
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	agent, err := o.acquireAgent(ctx, step.AgentType)
	if err != nil {
		now := time.Now()
		r := AgentResult{
			TaskID:    task.ID,
			Status:    ResultFailure,
			ErrorKind: KindOf(err),
			Error:     err.Error(),
			StartedAt: now,
			EndedAt:   now,
		}
		if ctx.Err() != nil {
			r.Status = ResultCancelled
			r.ErrorKind = KindCancelled
			r.Error = ""
		}
		return r
	}
	defer o.RemoveAgent(agent.ID())

	var result AgentResult
	for attempt := 1; ; attempt++ {
		result = agent.ProcessTask(ctx, task)
		if result.Status != ResultFailure || !retryable(result.ErrorKind) || attempt >= maxAttempts {
			break
		}
		o.logger.Warn("retrying step",
			"instance", inst.ID, "step", step.ID,
			"attempt", attempt, "max_attempts", maxAttempts, "kind", result.ErrorKind)
		if !sleepCtx(ctx, o.cfg.Retry.Backoff*time.Duration(attempt)) {
			break
		}
	}

	rec := AgentActivityRecord{
		AgentID:    agent.ID(),
		AgentType:  step.AgentType,
		TaskID:     task.ID,
		TaskType:   task.Type,
		Status:     result.Status,
		ErrorKind:  result.ErrorKind,
		DurationMs: float64(result.Duration()) / float64(time.Millisecond),
		StartedAt:  result.StartedAt,
		EndedAt:    result.EndedAt,
		UserID:     inst.Context.UserID,
		SessionID:  inst.Context.SessionID,
	}
	if err := o.sink.WriteAgentActivity(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Warn("agent activity not persisted", "task", task.ID, "error", err)
	}
	return result
}

// retryable reports whether a failure kind is worth another attempt.
func retryable(kind ErrorKind) bool {
	return kind == KindTimeout || kind == KindUpstreamFailure
}

// acquireAgent creates an agent for the step, retrying with backoff while
// the registry is at capacity. Other creation errors return immediately.
func (o *Orchestrator) acquireAgent(ctx context.Context, t AgentType) (Agent, error) {
	var last error
	for attempt := 1; attempt <= o.cfg.Retry.MaxAttempts; attempt++ {
		agent, err := o.CreateAgent(t)
		if err == nil {
			return agent, nil
		}
		if !IsKind(err, KindCapacityExceeded) {
			return nil, err
		}
		last = err
		if attempt < o.cfg.Retry.MaxAttempts {
			if !sleepCtx(ctx, o.cfg.Retry.Backoff*time.Duration(attempt)) {
				return nil, ctx.Err()
			}
		}
	}
	return nil, last
}

// sleepCtx sleeps for d or until ctx is done. Returns false on cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// PauseWorkflow pauses an executing instance between steps. In-flight steps
// run to completion.
func (o *Orchestrator) PauseWorkflow(instanceID string) bool {
	o.mu.Lock()
	run, ok := o.runs[instanceID]
	o.mu.Unlock()
	if !ok || run.instance.Status().terminal() {
		return false
	}
	run.pause()
	o.logger.Info("workflow paused", "instance", instanceID)
	return true
}

// ResumeWorkflow resumes a paused instance.
func (o *Orchestrator) ResumeWorkflow(instanceID string) bool {
	o.mu.Lock()
	run, ok := o.runs[instanceID]
	o.mu.Unlock()
	if !ok {
		return false
	}
	run.unpause()
	o.logger.Info("workflow resumed", "instance", instanceID)
	return true
}

// CancelWorkflow cancels an executing instance. The in-flight steps see
// context cancellation; steps not yet dispatched are marked cancelled.
func (o *Orchestrator) CancelWorkflow(instanceID string) bool {
	o.mu.Lock()
	run, ok := o.runs[instanceID]
	o.mu.Unlock()
	if !ok || run.instance.Status().terminal() {
		return false
	}
	run.unpause()
	run.cancel()
	o.logger.Info("workflow cancelled", "instance", instanceID)
	return true
}

// metricsPump writes an orchestrator snapshot to the sink every interval
// until shutdown.
func (o *Orchestrator) metricsPump() {
	defer o.pumps.Done()
	ticker := time.NewTicker(o.cfg.Monitoring.MetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-o.rootCtx.Done():
			return
		case <-ticker.C:
			snap := o.Snapshot()
			if err := o.sink.WriteOrchestratorMetrics(o.rootCtx, snap); err != nil {
				o.logger.Warn("orchestrator snapshot not persisted", "error", err)
			}
		}
	}
}

// Snapshot builds a point-in-time view of the orchestrator's state.
func (o *Orchestrator) Snapshot() OrchestratorSnapshot {
	o.mu.Lock()
	snap := OrchestratorSnapshot{
		At:                 time.Now(),
		LiveAgents:         len(o.agents),
		CompletedWorkflows: o.completedWorkflows,
		FailedWorkflows:    o.failedWorkflows,
		CancelledWorkflows: o.cancelledWorkflows,
		MessagesDropped:    o.droppedMessages,
	}
	agents := make([]Agent, 0, len(o.agents))
	for _, a := range o.agents {
		agents = append(agents, a)
	}
	for _, run := range o.runs {
		if !run.instance.Status().terminal() {
			snap.ActiveWorkflows++
		}
	}
	o.mu.Unlock()

	snap.MessagesPublished = o.bus.Published()
	for _, a := range agents {
		snap.Agents = append(snap.Agents, a.Metrics())
	}
	return snap
}

// Shutdown cancels all workflows, announces shutdown on the bus, tears down
// every agent, and clears the bus. The orchestrator cannot be restarted.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = false
	runs := make([]*workflowRun, 0, len(o.runs))
	for _, r := range o.runs {
		runs = append(runs, r)
	}
	o.mu.Unlock()

	for _, r := range runs {
		r.unpause()
		r.cancel()
	}

	o.SendMessage(Broadcast, MessageStatus, "orchestrator:shutdown", Payload{"at": time.Now().Unix()})

	o.mu.Lock()
	agents := make([]Agent, 0, len(o.agents))
	for _, a := range o.agents {
		agents = append(agents, a)
	}
	o.agents = make(map[string]Agent)
	o.runs = make(map[string]*workflowRun)
	o.mu.Unlock()

	for _, a := range agents {
		a.Shutdown()
	}
	o.rootCancel()

	pumpsDone := make(chan struct{})
	go func() {
		o.pumps.Wait()
		close(pumpsDone)
	}()
	select {
	case <-pumpsDone:
	case <-ctx.Done():
		return ctx.Err()
	}

	o.bus.Clear()
	o.logger.Info("orchestrator shut down")
	return nil
}
