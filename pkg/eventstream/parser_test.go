package eventstream_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudshipai/workflowcore/pkg/eventstream"
)

func collect(t *testing.T, r string) []eventstream.Event {
	t.Helper()
	p := eventstream.NewParser(eventstream.Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch := p.Run(ctx, strings.NewReader(r))
	var events []eventstream.Event
	for e := range ch {
		events = append(events, e)
	}
	return events
}

func kinds(events []eventstream.Event) []eventstream.Kind {
	out := make([]eventstream.Kind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func TestParser_StandardSSEFraming(t *testing.T) {
	input := "event: workflow_started\ndata: {\"name\":\"deploy\"}\n\n" +
		"event: step_started\ndata: {\"name\":\"build\"}\n\n" +
		"event: workflow_complete\ndata: {\"status\":\"success\",\"outputs\":{}}\n\n"

	events := collect(t, input)
	require.Len(t, events, 3)
	assert.Equal(t, eventstream.KindWorkflowStart, events[0].Kind)
	assert.Equal(t, eventstream.KindStepStart, events[1].Kind)
	assert.Equal(t, "build", events[1].Payload["name"])
	assert.Equal(t, eventstream.KindWorkflowEnd, events[2].Kind)
	assert.Equal(t, "success", events[2].Payload["status"])
}

func TestParser_CompactPerLineJSON(t *testing.T) {
	input := `{"type":"text","data":"hello"}` + "\n" + `{"type":"chunk","data":"world"}` + "\n"

	events := collect(t, input)
	require.Len(t, events, 4) // two step.log + stream.broken + synthetic terminal workflow.end
	assert.Equal(t, eventstream.KindStepLog, events[0].Kind)
	assert.Equal(t, "hello", events[0].Payload["data"])
	assert.Equal(t, eventstream.KindStepLog, events[1].Kind)
}

func TestParser_HeartbeatDoesNotResetAttribution(t *testing.T) {
	input := "event: step_started\ndata: {\"name\":\"build\"}\n\n" +
		": keepalive\n" +
		"plain log line\n"

	events := collect(t, input)
	require.GreaterOrEqual(t, len(events), 3)
	assert.Equal(t, eventstream.KindStepStart, events[0].Kind)
	assert.Equal(t, eventstream.KindHeartbeat, events[1].Kind)
	assert.Equal(t, eventstream.KindStepLog, events[2].Kind)
	assert.Equal(t, "build", events[2].Payload["step"])
}

func TestParser_MixedFramingInSingleStream(t *testing.T) {
	input := "event: workflow_started\ndata: {}\n\n" +
		`{"type":"text","data":"compact json line"}` + "\n" +
		"data: {\"type\":\"raw_chunk\",\"data\":\"prefixed inline\"}\n\n" +
		"plain stdout line\n"

	events := collect(t, input)
	gotKinds := kinds(events)
	assert.Contains(t, gotKinds, eventstream.KindWorkflowStart)
	assert.Contains(t, gotKinds, eventstream.KindStepLog)
}

func TestParser_UnterminatedStreamEmitsStreamBroken(t *testing.T) {
	input := "event: workflow_started\ndata: {}\n\n" +
		"event: step_started\ndata: {\"name\":\"build\"}\n\n"

	events := collect(t, input)
	last := events[len(events)-1]
	assert.Equal(t, eventstream.KindWorkflowEnd, last.Kind)
	assert.Equal(t, eventstream.StatusFailure, last.Payload["status"])
	assert.Equal(t, eventstream.ErrorKindStreamBroken, last.Payload["kind"])

	secondToLast := events[len(events)-2]
	assert.Equal(t, eventstream.KindStreamBroken, secondToLast.Kind)
}

func TestParser_CleanTerminationHasNoSyntheticEnd(t *testing.T) {
	input := "event: workflow_started\ndata: {}\n\n" +
		"event: workflow_complete\ndata: {\"status\":\"success\",\"outputs\":{}}\n\n"

	events := collect(t, input)
	count := 0
	for _, e := range events {
		if e.Kind == eventstream.KindWorkflowEnd {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestParser_LineTooLongAborts(t *testing.T) {
	p := eventstream.NewParser(eventstream.Options{LineBufferMax: 16})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	huge := strings.Repeat("x", 1024) + "\n"
	ch := p.Run(ctx, strings.NewReader(huge))

	var events []eventstream.Event
	for e := range ch {
		events = append(events, e)
	}
	require.NotEmpty(t, events)
	assert.Equal(t, eventstream.KindError, events[0].Kind)
	assert.Equal(t, eventstream.ErrorKindLineTooLong, events[0].Payload["kind"])
}

func TestParser_InvalidUTF8EmitsDecodingError(t *testing.T) {
	input := "valid prefix \xff\xfe invalid\n"
	events := collect(t, input)
	require.NotEmpty(t, events)
	assert.Equal(t, eventstream.KindError, events[0].Kind)
	assert.Equal(t, eventstream.ErrorKindDecoding, events[0].Payload["kind"])
}
