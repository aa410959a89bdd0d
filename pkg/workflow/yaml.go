package workflow

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cloudshipai/workflowcore/pkg/executor"
)

// document is the on-disk YAML shape a workflow definition file is parsed
// into before being replayed through Builder. It is intentionally a subset
// of the full executor surface: shell and container steps cover the common
// authoring path; other executor variants are assembled programmatically.
type document struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Mode        string            `yaml:"mode,omitempty"`
	Runner      string            `yaml:"runner,omitempty"`
	Params      []docParam        `yaml:"params,omitempty"`
	Env         map[string]string `yaml:"env,omitempty"`
	Steps       []docStep         `yaml:"steps"`
}

type docParam struct {
	Name    string `yaml:"name"`
	Default string `yaml:"default,omitempty"`
}

type docStep struct {
	Name              string         `yaml:"name"`
	DependsOn         []string       `yaml:"depends_on,omitempty"`
	Shell             string         `yaml:"shell,omitempty"`
	Container         *docContainer  `yaml:"container,omitempty"`
	Output            string         `yaml:"output,omitempty"`
	OutputMode        string         `yaml:"output_mode,omitempty"`
	Retry             *docRetry      `yaml:"retry,omitempty"`
	Timeout           string         `yaml:"timeout,omitempty"`
	Preconditions     []docPrecond   `yaml:"preconditions,omitempty"`
	ContinueOnFailure bool           `yaml:"continue_on_failure,omitempty"`
	MarkSuccess       bool           `yaml:"mark_success,omitempty"`
}

type docContainer struct {
	Image   string            `yaml:"image"`
	Command []string          `yaml:"command,omitempty"`
	Script  string            `yaml:"script,omitempty"`
}

type docRetry struct {
	MaxAttempts     int     `yaml:"max_attempts"`
	BaseInterval    string  `yaml:"base_interval,omitempty"`
	ExponentialBase float64 `yaml:"exponential_base,omitempty"`
}

type docPrecond struct {
	Condition string `yaml:"condition"`
	Expected  string `yaml:"expected"`
}

// LoadYAML parses a workflow definition document and replays it through
// Builder, so a file-authored workflow is subject to the same structural
// validation as one assembled programmatically.
func LoadYAML(data []byte) (*Workflow, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("workflow: parse yaml: %w", err)
	}

	b := NewBuilder(doc.Name).Description(doc.Description).Runner(doc.Runner)
	if doc.Mode == string(ModeChain) {
		b = b.Mode(ModeChain)
	} else {
		b = b.Mode(ModeGraph)
	}
	for _, p := range doc.Params {
		b = b.Param(p.Name, p.Default)
	}
	for k, v := range doc.Env {
		b = b.Env(k, v)
	}

	for _, s := range doc.Steps {
		b = b.Step(s.Name)

		switch {
		case s.Shell != "":
			b = b.Executor(&executor.Shell{Command: s.Shell})
		case s.Container != nil:
			b = b.Executor(&executor.Container{
				Image:   s.Container.Image,
				Command: s.Container.Command,
				Script:  s.Container.Script,
			})
		default:
			return nil, fmt.Errorf("workflow: step %q declares no executor", s.Name)
		}

		if len(s.DependsOn) > 0 {
			b = b.DependsOn(s.DependsOn...)
		}
		if s.Output != "" {
			b = b.Output(s.Output)
		}
		if s.OutputMode == string(OutputStructuredJSON) {
			b = b.OutputMode(OutputStructuredJSON)
		}
		if s.Retry != nil {
			interval, err := parseDurationOrZero(s.Retry.BaseInterval)
			if err != nil {
				return nil, fmt.Errorf("workflow: step %q retry.base_interval: %w", s.Name, err)
			}
			exponentialBase := s.Retry.ExponentialBase
			if exponentialBase == 0 {
				exponentialBase = 1.0
			}
			b = b.Retry(RetryPolicy{
				MaxAttempts:     s.Retry.MaxAttempts,
				BaseInterval:    interval,
				ExponentialBase: exponentialBase,
			})
		}
		if s.Timeout != "" {
			d, err := time.ParseDuration(s.Timeout)
			if err != nil {
				return nil, fmt.Errorf("workflow: step %q timeout: %w", s.Name, err)
			}
			b = b.Timeout(d)
		}
		for _, p := range s.Preconditions {
			b = b.Precondition(p.Condition, p.Expected)
		}
		if s.ContinueOnFailure {
			b = b.ContinueOnFailure(s.MarkSuccess)
		}
	}

	return b.Build()
}

func parseDurationOrZero(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
