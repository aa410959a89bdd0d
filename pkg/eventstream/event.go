// Package eventstream decodes the platform's streamed execution output into
// a normalized sequence of events. The platform emits several framings on
// the wire (standard SSE, compact per-line JSON, prefixed inline JSON, raw
// text) and this package converges them onto one shape.
package eventstream

// Kind is the normalized event tag. Every event the parser emits carries
// exactly one of these.
type Kind string

const (
	KindWorkflowStart  Kind = "workflow.start"
	KindWorkflowEnd    Kind = "workflow.end"
	KindStepStart      Kind = "step.start"
	KindStepProgress   Kind = "step.progress"
	KindStepLog        Kind = "step.log"
	KindStepEnd        Kind = "step.end"
	KindHeartbeat      Kind = "heartbeat"
	KindError          Kind = "error"
	KindStreamBroken   Kind = "stream.broken"
)

// Event is the normalized record produced for every parsed unit of input.
type Event struct {
	Kind      Kind
	Payload   map[string]any
	RawOffset int64
}

// WorkflowEndStatus values populate Payload["status"] on a workflow.end event.
const (
	StatusSuccess   = "success"
	StatusFailure   = "failure"
	StatusCancelled = "cancelled"
)

// Error kinds populate Payload["kind"] on error / workflow.end(failure) events.
const (
	ErrorKindDecoding    = "decoding"
	ErrorKindLineTooLong = "line_too_long"
	ErrorKindTimeout     = "timeout"
	ErrorKindStreamBroken = "stream_broken"
)
