package executor_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudshipai/workflowcore/pkg/executor"
)

func TestShell_ConfigAndSubstitutableFields(t *testing.T) {
	s := &executor.Shell{Command: "echo ${name}"}
	assert.Equal(t, executor.TypeShell, s.Type())

	fields := s.SubstitutableFields()
	field, ok := fields["command"]
	assert.True(t, ok)
	assert.Equal(t, "echo ${name}", *field)
}

func TestContainer_ConfigSerializesMountsAndSidecars(t *testing.T) {
	c := &executor.Container{
		Image:   "python:3.11-slim",
		Command: []string{"python", "main.py"},
		Mounts:  []executor.FileMount{{Destination: "/work/data.json", Content: "{}"}},
		Sidecars: []executor.Sidecar{
			{Name: "redis", Image: "redis:7", ExposedPorts: []int{6379}},
		},
	}
	assert.Equal(t, executor.TypeContainer, c.Type())

	encoded, err := json.Marshal(c.Config())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, "python:3.11-slim", decoded["image"])

	files, ok := decoded["files"].([]any)
	require.True(t, ok)
	require.Len(t, files, 1)
	assert.Equal(t, "/work/data.json", files[0].(map[string]any)["destination"])

	services, ok := decoded["services"].([]any)
	require.True(t, ok)
	require.Len(t, services, 1)
	assert.Equal(t, "redis", services[0].(map[string]any)["name"])
}

func TestParallelFanout_ConfigUsesVariableReferenceWhenSet(t *testing.T) {
	p := &executor.ParallelFanout{
		ItemSource:   executor.ItemSource{Variable: "files"},
		ItemTemplate: "process ${ITEM}",
		Concurrency:  4,
	}
	assert.Equal(t, executor.TypeParallel, p.Type())

	fields := p.SubstitutableFields()
	assert.Equal(t, "process ${ITEM}", *fields["item_command"])
}

func TestHTTP_SubstitutableFieldsCoversURLAndBody(t *testing.T) {
	h := &executor.HTTP{URL: "https://${host}/api", Body: "payload=${value}"}
	fields := h.SubstitutableFields()
	assert.Equal(t, "https://${host}/api", *fields["url"])
	assert.Equal(t, "payload=${value}", *fields["body"])
}

func TestSubWorkflow_SubstitutableFieldsCoversParams(t *testing.T) {
	s := &executor.SubWorkflow{Ref: "child", Params: map[string]string{"env": "${env}"}}
	fields := s.SubstitutableFields()
	assert.Equal(t, "${env}", *fields["params.env"])
}
