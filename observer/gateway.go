package observer

import (
	"context"
	"time"

	cadre "github.com/cadrehq/cadre"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedGateway wraps a cadre.ModelGateway with OTEL instrumentation.
type ObservedGateway struct {
	inner cadre.ModelGateway
	inst  *Instruments
	model string
}

// WrapGateway returns an instrumented gateway that emits traces, metrics,
// and logs for every call. Wrap the raw gateway before adding retry so each
// attempt is recorded individually.
func WrapGateway(inner cadre.ModelGateway, model string, inst *Instruments) *ObservedGateway {
	return &ObservedGateway{inner: inner, inst: inst, model: model}
}

func (o *ObservedGateway) Call(ctx context.Context, prompt string, payload cadre.Payload, actx cadre.AgentContext) (cadre.Payload, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "gateway.call", trace.WithAttributes(
		AttrGatewayPrompt.String(truncate(prompt, 120)),
		AttrUserID.String(actx.UserID),
		AttrSessionID.String(actx.SessionID),
		attribute.String("gateway.model", o.model),
	))
	defer span.End()
	start := time.Now()

	out, err := o.inner.Call(ctx, prompt, payload, actx)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	attrs := metric.WithAttributes(
		attribute.String("gateway.model", o.model),
		attribute.String("status", status),
	)
	o.inst.GatewayRequests.Add(ctx, 1, attrs)
	o.inst.GatewayDuration.Record(ctx, durationMs, attrs)

	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("gateway call completed"))
	rec.AddAttributes(
		otellog.String("gateway.model", o.model),
		otellog.Float64("gateway.duration_ms", durationMs),
		otellog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)

	return out, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
