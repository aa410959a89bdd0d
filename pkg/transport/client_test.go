package transport_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudshipai/workflowcore/internal/platformsim"
	"github.com/cloudshipai/workflowcore/pkg/transport"
	"github.com/cloudshipai/workflowcore/pkg/workflow"
)

func TestClient_SubmitReturnsEventStream(t *testing.T) {
	sim := platformsim.New([]platformsim.Script{
		{
			Events: []platformsim.NamedEvent{
				{Name: "workflow_started", Data: `{}`},
				{Name: "workflow_complete", Data: `{"status":"success","outputs":{}}`},
			},
		},
	})
	defer sim.Close()

	client := transport.New(transport.Config{Endpoint: sim.URL(), Credential: "test-token"}, nil)

	form := workflow.CanonicalWorkflow{Name: "demo", Type: "graph", Params: map[string]string{}, Env: map[string]string{}}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := client.Submit(ctx, form, nil)
	require.NoError(t, err)
	defer stream.Close()

	body, err := io.ReadAll(stream)
	require.NoError(t, err)
	assert.Contains(t, string(body), "workflow_started")
	assert.Contains(t, string(body), "workflow_complete")
}

func TestClient_SubmitSurfacesAuthErrorWithoutRetry(t *testing.T) {
	sim := platformsim.New([]platformsim.Script{{StatusCode: 401}})
	defer sim.Close()

	client := transport.New(transport.Config{Endpoint: sim.URL(), Credential: "bad-token", MaxConnectRetries: 2}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := client.Submit(ctx, workflow.CanonicalWorkflow{Name: "demo", Type: "graph"}, nil)
	require.Error(t, err)
	var authErr *transport.AuthError
	assert.ErrorAs(t, err, &authErr)
}
