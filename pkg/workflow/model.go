// Package workflow defines the canonical in-memory representation of a
// workflow graph, the fluent builder that assembles one, and the compiler
// that turns it into the byte-stable wire form submitted to the execution
// platform.
package workflow

import (
	"regexp"
	"time"

	"github.com/cloudshipai/workflowcore/pkg/executor"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsIdentifier reports whether s matches the identifier grammar
// [A-Za-z_][A-Za-z0-9_]*, used for workflow/step/param/output names.
func IsIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// Mode selects how a workflow's steps are wired when dependencies aren't
// given explicitly.
type Mode string

const (
	// ModeChain auto-links each step to the previous one.
	ModeChain Mode = "chain"
	// ModeGraph requires explicit dependencies.
	ModeGraph Mode = "graph"
)

// OutputCaptureMode controls how a step's declared output variable is
// populated from the step's execution result.
type OutputCaptureMode string

const (
	// OutputStdout captures stdout verbatim. This is the default when a
	// step declares an output variable but no explicit capture mode.
	OutputStdout OutputCaptureMode = "stdout"
	// OutputStructuredJSON parses stdout as JSON and captures the decoded
	// value.
	OutputStructuredJSON OutputCaptureMode = "structured-json"
)

// Precondition gates a step's execution on an expression matching (or
// failing to match) an expected value. An Expected value prefixed with
// "re:" is a regular expression literal; anything else is an exact match.
type Precondition struct {
	Condition string `json:"condition"`
	Expected  string `json:"expected"`
}

// RetryPolicy controls how many times, and with what backoff, a step is
// retried after failure.
type RetryPolicy struct {
	MaxAttempts      int     `json:"max_attempts"`
	BaseInterval     time.Duration `json:"base_interval"`
	ExponentialBase  float64 `json:"exponential_base"`
	RetryableExitCodes []int `json:"retryable_exit_codes,omitempty"`
}

// Step is a single node in a workflow graph: exactly one executor
// configuration plus the scheduling metadata around it.
type Step struct {
	Name         string
	Executor     executor.Executor
	DependsOn    []string
	Output       string
	OutputMode   OutputCaptureMode
	Retry        *RetryPolicy
	Timeout      time.Duration
	Preconditions []Precondition
	ContinueOnFailure bool
	MarkSuccessOnContinue bool
}

// Workflow is a named DAG of steps plus the parameters and environment
// available for substitution into them.
type Workflow struct {
	Name        string
	Description string
	Mode        Mode
	Runner      string
	Params      []Param
	Env         map[string]string
	Steps       []Step
}

// Param is a declared workflow parameter with an ordered position (the
// builder preserves declaration order in Workflow.Params; the canonical form
// holds params as a map, so their keys are encoded alphabetically, not in
// declaration order).
type Param struct {
	Name    string
	Default string
}

// StepByName returns the step with the given name and whether it exists.
func (w *Workflow) StepByName(name string) (Step, bool) {
	for _, s := range w.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

// ParamNames returns the declared parameter names in declaration order.
func (w *Workflow) ParamNames() []string {
	names := make([]string, len(w.Params))
	for i, p := range w.Params {
		names[i] = p.Name
	}
	return names
}
