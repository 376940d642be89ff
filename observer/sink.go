package observer

import (
	"context"
	"sync"

	cadre "github.com/cadrehq/cadre"

	"go.opentelemetry.io/otel/metric"
)

// ObservedSink wraps a cadre.MetricsSink, mirroring every record onto OTEL
// instruments before delegating to the inner sink.
type ObservedSink struct {
	inner cadre.MetricsSink
	inst  *Instruments

	mu          sync.Mutex
	lastDropped int64
}

// WrapSink returns an instrumented sink. inner may be a database-backed sink
// or cadre.NewMemorySink().
func WrapSink(inner cadre.MetricsSink, inst *Instruments) *ObservedSink {
	return &ObservedSink{inner: inner, inst: inst}
}

var _ cadre.MetricsSink = (*ObservedSink)(nil)

func (o *ObservedSink) WriteAgentActivity(ctx context.Context, rec cadre.AgentActivityRecord) error {
	attrs := metric.WithAttributes(
		AttrAgentType.String(string(rec.AgentType)),
		AttrTaskType.String(rec.TaskType),
		AttrTaskStatus.String(string(rec.Status)),
		AttrErrorKind.String(string(rec.ErrorKind)),
	)
	o.inst.TaskExecutions.Add(ctx, 1, attrs)
	o.inst.TaskDuration.Record(ctx, rec.DurationMs, attrs)
	return o.inner.WriteAgentActivity(ctx, rec)
}

func (o *ObservedSink) WriteWorkflowInstance(ctx context.Context, rec cadre.WorkflowInstanceRecord) error {
	attrs := metric.WithAttributes(
		AttrWorkflowID.String(rec.WorkflowID),
		AttrWorkflowStatus.String(string(rec.Status)),
	)
	o.inst.WorkflowExecutions.Add(ctx, 1, attrs)
	if !rec.EndedAt.IsZero() && !rec.StartedAt.IsZero() {
		o.inst.WorkflowDuration.Record(ctx,
			float64(rec.EndedAt.Sub(rec.StartedAt).Milliseconds()), attrs)
	}
	return o.inner.WriteWorkflowInstance(ctx, rec)
}

func (o *ObservedSink) WriteOrchestratorMetrics(ctx context.Context, snap cadre.OrchestratorSnapshot) error {
	o.inst.LiveAgents.Record(ctx, int64(snap.LiveAgents))

	// Snapshots carry cumulative counts; the counter wants deltas.
	o.mu.Lock()
	delta := snap.MessagesDropped - o.lastDropped
	o.lastDropped = snap.MessagesDropped
	o.mu.Unlock()
	if delta > 0 {
		o.inst.MessagesDropped.Add(ctx, delta)
	}
	return o.inner.WriteOrchestratorMetrics(ctx, snap)
}
