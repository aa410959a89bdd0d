package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName = "workflowcore.controller"
	meterName  = "workflowcore.controller"
)

// Telemetry records spans and metrics for executions and their steps.
// One Telemetry is shared across executions served by a process.
type Telemetry struct {
	tracer trace.Tracer
	meter  metric.Meter

	executionCounter  metric.Int64Counter
	executionDuration metric.Float64Histogram
	activeExecutions  metric.Int64UpDownCounter
	stepCounter       metric.Int64Counter
	stepDuration      metric.Float64Histogram
	failureCounter    metric.Int64Counter

	mu    sync.Mutex
	spans map[string]trace.Span
}

// NewTelemetry wires up the meter instruments. It returns an error if the
// global OTel SDK rejects an instrument definition.
func NewTelemetry() (*Telemetry, error) {
	t := &Telemetry{
		tracer: otel.Tracer(tracerName),
		meter:  otel.Meter(meterName),
		spans:  make(map[string]trace.Span),
	}

	var err error
	if t.executionCounter, err = t.meter.Int64Counter(
		"workflowcore_executions_total",
		metric.WithDescription("Total number of workflow executions started"),
		metric.WithUnit("{execution}"),
	); err != nil {
		return nil, fmt.Errorf("controller telemetry: execution counter: %w", err)
	}
	if t.executionDuration, err = t.meter.Float64Histogram(
		"workflowcore_execution_duration_seconds",
		metric.WithDescription("Duration of workflow executions"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("controller telemetry: execution duration histogram: %w", err)
	}
	if t.activeExecutions, err = t.meter.Int64UpDownCounter(
		"workflowcore_executions_active",
		metric.WithDescription("Executions currently streaming"),
		metric.WithUnit("{execution}"),
	); err != nil {
		return nil, fmt.Errorf("controller telemetry: active executions counter: %w", err)
	}
	if t.stepCounter, err = t.meter.Int64Counter(
		"workflowcore_steps_total",
		metric.WithDescription("Total number of steps observed across executions"),
		metric.WithUnit("{step}"),
	); err != nil {
		return nil, fmt.Errorf("controller telemetry: step counter: %w", err)
	}
	if t.stepDuration, err = t.meter.Float64Histogram(
		"workflowcore_step_duration_seconds",
		metric.WithDescription("Duration of individual steps"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("controller telemetry: step duration histogram: %w", err)
	}
	if t.failureCounter, err = t.meter.Int64Counter(
		"workflowcore_failures_total",
		metric.WithDescription("Total execution and step failures"),
		metric.WithUnit("{failure}"),
	); err != nil {
		return nil, fmt.Errorf("controller telemetry: failure counter: %w", err)
	}

	return t, nil
}

// StartExecution opens a span for an execution and returns the context
// carrying it.
func (t *Telemetry) StartExecution(ctx context.Context, executionID, workflowName string) context.Context {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("workflow.execute.%s", workflowName),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("workflow.execution_id", executionID),
			attribute.String("workflow.name", workflowName),
		),
	)

	t.mu.Lock()
	t.spans[executionID] = span
	t.mu.Unlock()

	t.executionCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("workflow.name", workflowName)))
	t.activeExecutions.Add(ctx, 1, metric.WithAttributes(attribute.String("workflow.name", workflowName)))
	return ctx
}

// EndExecution closes the span opened by StartExecution and records
// duration/failure metrics.
func (t *Telemetry) EndExecution(ctx context.Context, executionID, workflowName, status string, duration time.Duration, err error) {
	t.mu.Lock()
	span, ok := t.spans[executionID]
	delete(t.spans, executionID)
	t.mu.Unlock()
	if !ok || span == nil {
		return
	}

	span.SetAttributes(
		attribute.String("workflow.status", status),
		attribute.Float64("workflow.duration_seconds", duration.Seconds()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.failureCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("workflow.name", workflowName),
			attribute.String("failure.scope", "execution"),
		))
	} else {
		span.SetStatus(codes.Ok, "execution finished")
	}
	span.End()

	t.executionDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("workflow.name", workflowName),
		attribute.String("workflow.status", status),
	))
	t.activeExecutions.Add(ctx, -1, metric.WithAttributes(attribute.String("workflow.name", workflowName)))
}

// StartStep opens a span for a single step.
func (t *Telemetry) StartStep(ctx context.Context, executionID, stepName, executorType string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("workflow.step.%s", stepName),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("workflow.execution_id", executionID),
			attribute.String("workflow.step_name", stepName),
			attribute.String("workflow.executor_type", executorType),
		),
	)
	t.stepCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("workflow.executor_type", executorType)))
	return ctx, span
}

// EndStep closes a step span and records duration/failure metrics.
func (t *Telemetry) EndStep(ctx context.Context, span trace.Span, executorType, status string, duration time.Duration, err error) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.String("workflow.step_status", status),
		attribute.Float64("workflow.step_duration_seconds", duration.Seconds()),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "step finished")
	}
	span.End()

	t.stepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("workflow.executor_type", executorType),
		attribute.String("workflow.step_status", status),
	))
	if err != nil || status == "failure" {
		t.failureCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("workflow.executor_type", executorType),
			attribute.String("failure.scope", "step"),
		))
	}
}
