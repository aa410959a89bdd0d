package dryrun_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudshipai/workflowcore/pkg/dryrun"
	"github.com/cloudshipai/workflowcore/pkg/executor"
)

func TestRunner_RunDisabledReturnsError(t *testing.T) {
	runner := dryrun.New(dryrun.DefaultConfig())

	_, err := runner.Run(context.Background(), "build", &executor.Container{Image: "python:3.11-slim"}, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enabled")
}

func TestRunner_RunRejectsDisallowedImage(t *testing.T) {
	cfg := dryrun.DefaultConfig()
	cfg.Enabled = true
	runner := dryrun.New(cfg)

	result, err := runner.Run(context.Background(), "build", &executor.Container{Image: "sketchy:latest", Command: []string{"true"}}, 0)
	require.NoError(t, err)
	assert.False(t, result.OK)
	assert.Equal(t, -1, result.ExitCode)
	assert.Contains(t, result.Error, "not in the allowed list")
}

func TestRunner_RunRejectsNilContainer(t *testing.T) {
	cfg := dryrun.DefaultConfig()
	cfg.Enabled = true
	runner := dryrun.New(cfg)

	_, err := runner.Run(context.Background(), "build", nil, 0)
	require.Error(t, err)
}

func TestRunner_RunDefaultsTimeoutWhenUnset(t *testing.T) {
	cfg := dryrun.DefaultConfig()
	cfg.Enabled = true
	cfg.DefaultTimeout = 5 * time.Millisecond
	runner := dryrun.New(cfg)

	// Allowed image but no command/script reaches the execute path, whose
	// dagger connect is bounded by the 5ms default timeout; the run ends as a
	// failed result rather than hanging.
	result, err := runner.Run(context.Background(), "build", &executor.Container{Image: "python:3.11-slim"}, 0)
	require.NoError(t, err)
	assert.False(t, result.OK)
}
