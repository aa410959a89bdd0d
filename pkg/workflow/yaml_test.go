package workflow_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudshipai/workflowcore/pkg/executor"
	"github.com/cloudshipai/workflowcore/pkg/workflow"
)

func TestLoadYAML_BuildsShellWorkflow(t *testing.T) {
	doc := []byte(`
name: deploy
mode: chain
params:
  - name: env
    default: staging
steps:
  - name: build
    shell: "make build"
    output: artifact
  - name: deploy
    shell: "make deploy ${env} ${artifact}"
`)

	wf, err := workflow.LoadYAML(doc)
	require.NoError(t, err)
	assert.Equal(t, "deploy", wf.Name)
	assert.Equal(t, workflow.ModeChain, wf.Mode)
	require.Len(t, wf.Steps, 2)
	assert.Equal(t, []string{"build"}, wf.Steps[1].DependsOn)

	compiled, err := workflow.Compile(wf)
	require.NoError(t, err)
	assert.NotEmpty(t, compiled.Hash)
}

func TestLoadYAML_BuildsContainerWorkflow(t *testing.T) {
	doc := []byte(`
name: test
steps:
  - name: build
    container:
      image: python:3.11-slim
      command: ["python", "-m", "pytest"]
`)

	wf, err := workflow.LoadYAML(doc)
	require.NoError(t, err)
	require.Len(t, wf.Steps, 1)
	ctr, ok := wf.Steps[0].Executor.(*executor.Container)
	require.True(t, ok)
	assert.Equal(t, "python:3.11-slim", ctr.Image)
}

func TestLoadYAML_RejectsStepWithoutExecutor(t *testing.T) {
	doc := []byte(`
name: bad
steps:
  - name: nothing
`)
	_, err := workflow.LoadYAML(doc)
	require.Error(t, err)
}

func TestLoadYAML_RetryDefaultsExponentialBase(t *testing.T) {
	doc := []byte(`
name: retrying
steps:
  - name: flaky
    shell: "exit 1"
    retry:
      max_attempts: 3
`)
	wf, err := workflow.LoadYAML(doc)
	require.NoError(t, err)
	require.NotNil(t, wf.Steps[0].Retry)
	assert.Equal(t, 1.0, wf.Steps[0].Retry.ExponentialBase)
}
