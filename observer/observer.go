// Package observer provides OTEL-based observability for cadre orchestration.
//
// It wraps ModelGateway and MetricsSink with instrumented versions that emit
// traces and metrics via OpenTelemetry. Users export to any OTEL-compatible
// backend by setting standard OTEL env vars.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/cadrehq/cadre/observer"

// Instruments holds all OTEL instruments used by the observer wrappers.
type Instruments struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger otellog.Logger

	// Counters
	TaskExecutions     metric.Int64Counter
	WorkflowExecutions metric.Int64Counter
	GatewayRequests    metric.Int64Counter
	MessagesDropped    metric.Int64Counter

	// Histograms
	TaskDuration     metric.Float64Histogram
	WorkflowDuration metric.Float64Histogram
	GatewayDuration  metric.Float64Histogram

	// Gauges
	LiveAgents metric.Int64Gauge
}

// Init sets up OTEL trace, metric, and log providers with OTLP HTTP exporters.
// Configuration comes from standard OTEL env vars (OTEL_EXPORTER_OTLP_ENDPOINT, etc.).
// Returns a shutdown function that must be called on application exit.
func Init(ctx context.Context) (*Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName("cadre")),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	// Trace provider
	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	// Metric provider
	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	// Log provider
	logExp, err := otlploghttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(lp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		_ = lp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			tp.Shutdown(ctx),
			mp.Shutdown(ctx),
			lp.Shutdown(ctx),
		)
	}

	return inst, shutdown, nil
}

func newInstruments() (*Instruments, error) {
	tracer := otel.Tracer(scopeName)
	meter := otel.Meter(scopeName)
	logger := global.GetLoggerProvider().Logger(scopeName)

	taskExecutions, err := meter.Int64Counter("agent.task.executions",
		metric.WithDescription("Agent task execution count"),
		metric.WithUnit("{task}"))
	if err != nil {
		return nil, err
	}

	workflowExecutions, err := meter.Int64Counter("workflow.executions",
		metric.WithDescription("Workflow instance count"),
		metric.WithUnit("{workflow}"))
	if err != nil {
		return nil, err
	}

	gatewayRequests, err := meter.Int64Counter("gateway.requests",
		metric.WithDescription("Model gateway request count"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	messagesDropped, err := meter.Int64Counter("bus.messages.dropped",
		metric.WithDescription("Unroutable messages dropped by the orchestrator"),
		metric.WithUnit("{message}"))
	if err != nil {
		return nil, err
	}

	taskDuration, err := meter.Float64Histogram("agent.task.duration",
		metric.WithDescription("Agent task duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	workflowDuration, err := meter.Float64Histogram("workflow.duration",
		metric.WithDescription("Workflow instance duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	gatewayDuration, err := meter.Float64Histogram("gateway.duration",
		metric.WithDescription("Model gateway call duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	liveAgents, err := meter.Int64Gauge("orchestrator.agents.live",
		metric.WithDescription("Live agents in the registry"),
		metric.WithUnit("{agent}"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Tracer:             tracer,
		Meter:              meter,
		Logger:             logger,
		TaskExecutions:     taskExecutions,
		WorkflowExecutions: workflowExecutions,
		GatewayRequests:    gatewayRequests,
		MessagesDropped:    messagesDropped,
		TaskDuration:       taskDuration,
		WorkflowDuration:   workflowDuration,
		GatewayDuration:    gatewayDuration,
		LiveAgents:         liveAgents,
	}, nil
}
