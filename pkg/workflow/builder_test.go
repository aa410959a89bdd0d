package workflow_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudshipai/workflowcore/pkg/executor"
	"github.com/cloudshipai/workflowcore/pkg/workflow"
)

func TestBuilder_RejectsInvalidName(t *testing.T) {
	b := workflow.NewBuilder("1-invalid")
	_, err := b.Build()
	require.Error(t, err)
	var invalid *workflow.InvalidGraphError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "INVALID_NAME", invalid.Issue.Code)
}

func TestBuilder_RejectsDuplicateStepEagerly(t *testing.T) {
	b := workflow.NewBuilder("dup").
		Step("a").Executor(&executor.Shell{Command: "echo a"}).
		Step("a")
	assert.Error(t, b.Err())
	_, err := b.Build()
	require.Error(t, err)
}

func TestBuilder_RejectsSecondExecutorOnSameStep(t *testing.T) {
	b := workflow.NewBuilder("conflict").
		Step("a").
		Executor(&executor.Shell{Command: "echo a"}).
		Executor(&executor.Shell{Command: "echo b"})

	_, err := b.Build()
	require.Error(t, err)
	var conflict *workflow.ConflictError
	require.True(t, errors.As(err, &conflict))
}

func TestBuilder_RejectsDependsOnUnknownStep(t *testing.T) {
	b := workflow.NewBuilder("bad_dep").
		Step("a").Executor(&executor.Shell{Command: "echo a"}).DependsOn("ghost")

	_, err := b.Build()
	require.Error(t, err)
	var invalid *workflow.InvalidGraphError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "UNKNOWN_DEPENDENCY", invalid.Issue.Code)
}

func TestBuilder_RejectsRetryWithZeroAttempts(t *testing.T) {
	b := workflow.NewBuilder("retry").
		Step("a").Executor(&executor.Shell{Command: "echo a"}).
		Retry(workflow.RetryPolicy{MaxAttempts: 0, ExponentialBase: 2.0})

	_, err := b.Build()
	require.Error(t, err)
}

func TestBuilder_RejectsNegativeTimeout(t *testing.T) {
	b := workflow.NewBuilder("timeout").
		Step("a").Executor(&executor.Shell{Command: "echo a"}).
		Timeout(-time.Second)

	_, err := b.Build()
	require.Error(t, err)
}

func TestBuilder_ChainModeLinksSequentialSteps(t *testing.T) {
	wf, err := workflow.NewBuilder("chain").
		Mode(workflow.ModeChain).
		Step("first").Executor(&executor.Shell{Command: "echo 1"}).
		Step("second").Executor(&executor.Shell{Command: "echo 2"}).
		Step("third").Executor(&executor.Shell{Command: "echo 3"}).
		Build()
	require.NoError(t, err)

	second, ok := wf.StepByName("second")
	require.True(t, ok)
	assert.Equal(t, []string{"first"}, second.DependsOn)

	third, ok := wf.StepByName("third")
	require.True(t, ok)
	assert.Equal(t, []string{"second"}, third.DependsOn)
}

func TestBuilder_ExplicitDependsOnOverridesChainMode(t *testing.T) {
	wf, err := workflow.NewBuilder("chain_override").
		Mode(workflow.ModeChain).
		Step("first").Executor(&executor.Shell{Command: "echo 1"}).
		Step("second").Executor(&executor.Shell{Command: "echo 2"}).DependsOn().
		Build()
	require.NoError(t, err)

	second, ok := wf.StepByName("second")
	require.True(t, ok)
	assert.Empty(t, second.DependsOn)
}

func TestBuilder_ContinueOnFailureMarksStep(t *testing.T) {
	wf, err := workflow.NewBuilder("resilient").
		Step("a").Executor(&executor.Shell{Command: "false"}).ContinueOnFailure(true).
		Build()
	require.NoError(t, err)

	a, ok := wf.StepByName("a")
	require.True(t, ok)
	assert.True(t, a.ContinueOnFailure)
	assert.True(t, a.MarkSuccessOnContinue)
}
