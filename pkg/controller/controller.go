// Package controller orchestrates compile -> submit -> parse -> deliver,
// exposing a single consumer-facing event sequence per execution.
package controller

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/cloudshipai/workflowcore/pkg/eventstream"
	"github.com/cloudshipai/workflowcore/pkg/transport"
	"github.com/cloudshipai/workflowcore/pkg/workflow"
)

// Options configures a single execution.
type Options struct {
	Params              map[string]string
	WallClockTimeout    time.Duration
	EventChannelCapacity int
	LineBufferMax       int
}

// Controller serves executions against a transport client, wrapping each
// with telemetry and lifecycle bookkeeping.
type Controller struct {
	client    *transport.Client
	telemetry *Telemetry
}

// New constructs a Controller. telemetry may be nil to disable span/metric
// recording (useful for tests that don't configure an OTel SDK).
func New(client *transport.Client, telemetry *Telemetry) *Controller {
	return &Controller{client: client, telemetry: telemetry}
}

// Result holds Outputs, the final {var -> value} map accumulated from step
// outputs, available once the returned channel closes.
type Result struct {
	Outputs map[string]string
}

// Execute compiles wf and submits it to the platform. Compile (validation)
// and submission (connect-time transport) errors are returned directly,
// before any event is delivered, per the error propagation policy: once the
// first event is delivered, all further failures become events in the
// sequence instead. On success, Execute returns a lazy, finite,
// non-restartable sequence of normalized events that always ends with a
// workflow.end event, real or synthetic. Read Result.Outputs after the
// channel closes to retrieve accumulated step outputs.
func (c *Controller) Execute(ctx context.Context, wf *workflow.Workflow, opts Options) (<-chan eventstream.Event, *Result, error) {
	executionID := uuid.NewString()
	cancel := func() {}
	if opts.WallClockTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, opts.WallClockTimeout)
	}
	if c.telemetry != nil {
		ctx = c.telemetry.StartExecution(ctx, executionID, wf.Name)
	}

	compiled, err := workflow.Compile(wf)
	if err != nil {
		if c.telemetry != nil {
			c.telemetry.EndExecution(ctx, executionID, wf.Name, eventstream.StatusFailure, 0, err)
		}
		return nil, nil, err
	}

	stream, err := c.client.Submit(ctx, compiled.Form, opts.Params)
	if err != nil {
		if c.telemetry != nil {
			c.telemetry.EndExecution(ctx, executionID, wf.Name, eventstream.StatusFailure, 0, err)
		}
		return nil, nil, err
	}

	result := &Result{Outputs: map[string]string{}}
	out := make(chan eventstream.Event, channelCapacity(opts))
	start := time.Now()

	go c.stream(ctx, wf, opts, stream, executionID, start, cancel, out, result)
	return out, result, nil
}

func channelCapacity(opts Options) int {
	if opts.EventChannelCapacity > 0 {
		return opts.EventChannelCapacity
	}
	return eventstream.DefaultChannelCapacity
}

func (c *Controller) stream(
	ctx context.Context,
	wf *workflow.Workflow,
	opts Options,
	stream io.ReadCloser,
	executionID string,
	start time.Time,
	cancel context.CancelFunc,
	out chan<- eventstream.Event,
	result *Result,
) {
	defer close(out)
	defer stream.Close()
	defer cancel()

	status := eventstream.StatusSuccess
	var runErr error
	defer func() {
		if c.telemetry != nil {
			c.telemetry.EndExecution(ctx, executionID, wf.Name, status, time.Since(start), runErr)
		}
	}()

	parser := eventstream.NewParser(eventstream.Options{
		ChannelCapacity: opts.EventChannelCapacity,
		LineBufferMax:   opts.LineBufferMax,
	})
	events := parser.Run(ctx, stream)

	outputOf := map[string]string{}
	for _, s := range wf.Steps {
		if s.Output != "" {
			outputOf[s.Name] = s.Output
		}
	}

	stepSpans := map[string]trace.Span{}
	stepStarted := map[string]time.Time{}

	for e := range events {
		if ctx.Err() != nil {
			// Events arriving after cancellation (e.g. the parser's own
			// stream.broken terminal) are replaced by the synthetic end.
			c.finalizeCancelled(ctx, out)
			status = statusFromContext(ctx)
			return
		}
		c.accumulateOutput(e, outputOf, result)
		c.traceStep(ctx, executionID, e, stepSpans, stepStarted)
		select {
		case out <- e:
		case <-ctx.Done():
			c.finalizeCancelled(ctx, out)
			status = statusFromContext(ctx)
			return
		}
		if e.Kind == eventstream.KindWorkflowEnd {
			if s, ok := e.Payload["status"].(string); ok {
				status = s
				if s == eventstream.StatusFailure {
					runErr = errFromPayload(e.Payload)
				}
			}
			if outputs, ok := e.Payload["outputs"].(map[string]any); ok {
				for k, v := range outputs {
					if s, ok := v.(string); ok {
						result.Outputs[k] = s
					}
				}
			}
		}
	}

	if ctx.Err() != nil && status == eventstream.StatusSuccess {
		c.finalizeCancelled(ctx, out)
		status = statusFromContext(ctx)
	}
}

// traceStep opens a step span on step.start and closes it on step.end,
// mirroring StartExecution/EndExecution's span-per-execution pattern one
// level down.
func (c *Controller) traceStep(ctx context.Context, executionID string, e eventstream.Event, spans map[string]trace.Span, started map[string]time.Time) {
	if c.telemetry == nil {
		return
	}
	name, _ := e.Payload["name"].(string)
	if name == "" {
		return
	}
	switch e.Kind {
	case eventstream.KindStepStart:
		executorType := stepExecutorType(e.Payload)
		_, span := c.telemetry.StartStep(ctx, executionID, name, executorType)
		spans[name] = span
		started[name] = time.Now()
	case eventstream.KindStepEnd:
		span, ok := spans[name]
		if !ok {
			return
		}
		status, _ := e.Payload["status"].(string)
		if status == "" {
			status = eventstream.StatusSuccess
		}
		var stepErr error
		if status == eventstream.StatusFailure {
			stepErr = errFromPayload(e.Payload)
		}
		c.telemetry.EndStep(ctx, span, stepExecutorType(e.Payload), status, time.Since(started[name]), stepErr)
		delete(spans, name)
		delete(started, name)
	}
}

func stepExecutorType(payload map[string]any) string {
	if t, ok := payload["type"].(string); ok && t != "" {
		return t
	}
	if t, ok := payload["executor_type"].(string); ok && t != "" {
		return t
	}
	return "unknown"
}

func (c *Controller) accumulateOutput(e eventstream.Event, outputOf map[string]string, result *Result) {
	if e.Kind != eventstream.KindStepEnd {
		return
	}
	name, _ := e.Payload["name"].(string)
	output, ok := e.Payload["output"].(string)
	if !ok || output == "" {
		return
	}
	if varName, declared := outputOf[name]; declared {
		result.Outputs[varName] = output
	}
}

func (c *Controller) finalizeCancelled(ctx context.Context, out chan<- eventstream.Event) {
	kind := "cancelled"
	status := eventstream.StatusCancelled
	if ctx.Err() == context.DeadlineExceeded {
		kind = eventstream.ErrorKindTimeout
		status = eventstream.StatusFailure
	}
	out <- eventstream.Event{Kind: eventstream.KindWorkflowEnd, Payload: map[string]any{
		"status": status,
		"kind":   kind,
	}}
}

func statusFromContext(ctx context.Context) string {
	if ctx.Err() == context.DeadlineExceeded {
		return eventstream.StatusFailure
	}
	return eventstream.StatusCancelled
}

func errFromPayload(payload map[string]any) error {
	if detail, ok := payload["detail"].(string); ok && detail != "" {
		return &executionFailedError{detail: detail}
	}
	return nil
}

type executionFailedError struct{ detail string }

func (e *executionFailedError) Error() string { return "execution failed: " + e.detail }
