package controller_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudshipai/workflowcore/internal/platformsim"
	"github.com/cloudshipai/workflowcore/pkg/controller"
	"github.com/cloudshipai/workflowcore/pkg/eventstream"
	"github.com/cloudshipai/workflowcore/pkg/executor"
	"github.com/cloudshipai/workflowcore/pkg/transport"
	"github.com/cloudshipai/workflowcore/pkg/workflow"
)

func buildSimpleWorkflow(t *testing.T) *workflow.Workflow {
	t.Helper()
	wf, err := workflow.NewBuilder("demo").
		Step("build").Executor(&executor.Shell{Command: "make build"}).Output("artifact").
		Build()
	require.NoError(t, err)
	return wf
}

func TestController_ExecuteCapturesOutputsAndEndsCleanly(t *testing.T) {
	sim := platformsim.New([]platformsim.Script{
		{
			Events: []platformsim.NamedEvent{
				{Name: "workflow_started", Data: `{}`},
				{Name: "step_started", Data: `{"name":"build"}`},
				{Name: "step_complete", Data: `{"name":"build","status":"success","output":"built-ok"}`},
				{Name: "workflow_complete", Data: `{"status":"success","outputs":{}}`},
			},
		},
	})
	defer sim.Close()

	client := transport.New(transport.Config{Endpoint: sim.URL(), Credential: "tok"}, nil)
	ctrl := controller.New(client, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, result, err := ctrl.Execute(ctx, buildSimpleWorkflow(t), controller.Options{})
	require.NoError(t, err)

	var last eventstream.Event
	for e := range events {
		last = e
	}
	assert.Equal(t, eventstream.KindWorkflowEnd, last.Kind)
	assert.Equal(t, eventstream.StatusSuccess, last.Payload["status"])
	assert.Equal(t, "built-ok", result.Outputs["artifact"])
}

func TestController_BrokenStreamEndsWithFailure(t *testing.T) {
	sim := platformsim.New([]platformsim.Script{
		{
			Events: []platformsim.NamedEvent{
				{Name: "workflow_started", Data: `{}`},
				{Name: "step_started", Data: `{"name":"build"}`},
			},
			Truncate: true,
		},
	})
	defer sim.Close()

	client := transport.New(transport.Config{Endpoint: sim.URL(), Credential: "tok"}, nil)
	ctrl := controller.New(client, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, _, err := ctrl.Execute(ctx, buildSimpleWorkflow(t), controller.Options{})
	require.NoError(t, err)

	var all []eventstream.Event
	for e := range events {
		all = append(all, e)
	}
	last := all[len(all)-1]
	assert.Equal(t, eventstream.KindWorkflowEnd, last.Kind)
	assert.Equal(t, eventstream.StatusFailure, last.Payload["status"])
}

func TestController_ValidationErrorReturnedSynchronously(t *testing.T) {
	client := transport.New(transport.Config{Endpoint: "http://unused.invalid"}, nil)
	ctrl := controller.New(client, nil)

	broken, err := workflow.NewBuilder("broken").
		Step("a").Executor(&executor.Shell{Command: "echo ${missing}"}).
		Build()
	require.NoError(t, err)

	events, result, err := ctrl.Execute(context.Background(), broken, controller.Options{})
	require.Error(t, err)
	assert.Nil(t, events)
	assert.Nil(t, result)
}

func TestController_CancellationDuringLogBurstEndsWithCancelled(t *testing.T) {
	lines := make([]string, 50)
	for i := range lines {
		lines[i] = "streaming log line"
	}
	sim := platformsim.New([]platformsim.Script{
		{
			Events:    []platformsim.NamedEvent{{Name: "workflow_started", Data: `{}`}},
			RawLines:  lines,
			LineDelay: 50 * time.Millisecond,
		},
	})
	defer sim.Close()

	client := transport.New(transport.Config{Endpoint: sim.URL(), Credential: "tok"}, nil)
	ctrl := controller.New(client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	events, _, err := ctrl.Execute(ctx, buildSimpleWorkflow(t), controller.Options{})
	require.NoError(t, err)

	time.AfterFunc(150*time.Millisecond, cancel)

	var last eventstream.Event
	for e := range events {
		last = e
	}
	assert.Equal(t, eventstream.KindWorkflowEnd, last.Kind)
	assert.Equal(t, eventstream.StatusCancelled, last.Payload["status"])
}
