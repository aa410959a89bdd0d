package workflow

import (
	"fmt"
	"time"

	"github.com/cloudshipai/workflowcore/pkg/executor"
)

// Builder fluently assembles a Workflow, rejecting structural errors (dup
// names, unknown dependencies, double executors) as soon as they're made.
// Reference resolution (${NAME} substitution) is deferred to Compile.
type Builder struct {
	wf      *Workflow
	names   map[string]int // step name -> index in wf.Steps
	current int            // index of the step currently being configured, -1 if none
	err     error
}

// NewBuilder starts a workflow named name. Name must match the identifier
// grammar.
func NewBuilder(name string) *Builder {
	b := &Builder{
		wf: &Workflow{
			Name: name,
			Mode: ModeGraph,
			Env:  map[string]string{},
		},
		names:   map[string]int{},
		current: -1,
	}
	if !IsIdentifier(name) {
		b.fail(newInvalidGraphError("INVALID_NAME", "/name", fmt.Sprintf("workflow name %q is not identifier-safe", name), "Use [A-Za-z_][A-Za-z0-9_]*."))
	}
	return b
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// Err returns the first structural error encountered so far, if any.
func (b *Builder) Err() error { return b.err }

// Description sets the workflow's human-readable description.
func (b *Builder) Description(d string) *Builder {
	b.wf.Description = d
	return b
}

// Mode sets the workflow's execution mode.
func (b *Builder) Mode(m Mode) *Builder {
	b.wf.Mode = m
	return b
}

// Runner sets the opaque runner selector passed through to the platform.
func (b *Builder) Runner(r string) *Builder {
	b.wf.Runner = r
	return b
}

// Param declares a parameter with a default value.
func (b *Builder) Param(name, defaultValue string) *Builder {
	if b.err != nil {
		return b
	}
	if !IsIdentifier(name) {
		return b.fail(newInvalidGraphError("INVALID_PARAM_NAME", "/params/"+name, fmt.Sprintf("parameter name %q is not identifier-safe", name), "Use [A-Za-z_][A-Za-z0-9_]*."))
	}
	b.wf.Params = append(b.wf.Params, Param{Name: name, Default: defaultValue})
	return b
}

// Env declares an environment variable available for substitution.
func (b *Builder) Env(key, value string) *Builder {
	if b.err != nil {
		return b
	}
	b.wf.Env[key] = value
	return b
}

// Step appends a new step named name and makes it the current step for
// subsequent Executor/DependsOn/Output/... calls. In ModeChain, the new step
// auto-depends on the previously appended step unless DependsOn is called
// explicitly afterward.
func (b *Builder) Step(name string) *Builder {
	if b.err != nil {
		return b
	}
	if !IsIdentifier(name) {
		return b.fail(newInvalidGraphError("INVALID_STEP_NAME", "/steps/"+name, fmt.Sprintf("step name %q is not identifier-safe", name), "Use [A-Za-z_][A-Za-z0-9_]*."))
	}
	if _, exists := b.names[name]; exists {
		return b.fail(newInvalidGraphError("DUPLICATE_STEP", "/steps/"+name, fmt.Sprintf("step %q already declared", name), "Step names must be unique within a workflow."))
	}

	step := Step{Name: name, OutputMode: OutputStdout}
	if b.wf.Mode == ModeChain && len(b.wf.Steps) > 0 {
		step.DependsOn = []string{b.wf.Steps[len(b.wf.Steps)-1].Name}
	}

	b.names[name] = len(b.wf.Steps)
	b.wf.Steps = append(b.wf.Steps, step)
	b.current = len(b.wf.Steps) - 1
	return b
}

func (b *Builder) mustHaveCurrent(op string) *Step {
	if b.err != nil {
		return nil
	}
	if b.current < 0 {
		b.fail(newInvalidGraphError("NO_CURRENT_STEP", "/steps", fmt.Sprintf("%s called with no current step", op), "Call Step(name) before configuring it."))
		return nil
	}
	return &b.wf.Steps[b.current]
}

// Executor attaches the executor configuration to the current step. Calling
// it twice on the same step is a ConflictError.
func (b *Builder) Executor(e executor.Executor) *Builder {
	step := b.mustHaveCurrent("Executor")
	if step == nil {
		return b
	}
	if step.Executor != nil {
		return b.fail(newConflictError("/steps/"+step.Name+"/executor", fmt.Sprintf("step %q already has an executor configured", step.Name), "Each step may declare exactly one executor."))
	}
	step.Executor = e
	return b
}

// DependsOn replaces the current step's dependencies with explicit names.
// Every name must refer to a step already appended to the builder.
func (b *Builder) DependsOn(names ...string) *Builder {
	step := b.mustHaveCurrent("DependsOn")
	if step == nil {
		return b
	}
	for _, n := range names {
		if _, ok := b.names[n]; !ok {
			return b.fail(newInvalidGraphError("UNKNOWN_DEPENDENCY", "/steps/"+step.Name+"/depends", fmt.Sprintf("step %q depends on undeclared step %q", step.Name, n), "Declare the dependency's step before this one, or fix the name."))
		}
	}
	step.DependsOn = append([]string{}, names...)
	return b
}

// Output declares the variable name downstream steps may reference via
// ${NAME} once this step has run.
func (b *Builder) Output(name string) *Builder {
	step := b.mustHaveCurrent("Output")
	if step == nil {
		return b
	}
	if !IsIdentifier(name) {
		return b.fail(newInvalidGraphError("INVALID_OUTPUT_NAME", "/steps/"+step.Name+"/output", fmt.Sprintf("output name %q is not identifier-safe", name), "Use [A-Za-z_][A-Za-z0-9_]*."))
	}
	step.Output = name
	return b
}

// OutputMode sets how the declared output variable is captured.
func (b *Builder) OutputMode(mode OutputCaptureMode) *Builder {
	step := b.mustHaveCurrent("OutputMode")
	if step == nil {
		return b
	}
	step.OutputMode = mode
	return b
}

// Retry attaches a retry policy to the current step.
func (b *Builder) Retry(policy RetryPolicy) *Builder {
	step := b.mustHaveCurrent("Retry")
	if step == nil {
		return b
	}
	if policy.MaxAttempts < 1 {
		return b.fail(newInvalidGraphError("INVALID_RETRY", "/steps/"+step.Name+"/retry", "retry max_attempts must be >= 1", ""))
	}
	if policy.ExponentialBase < 1.0 {
		return b.fail(newInvalidGraphError("INVALID_RETRY", "/steps/"+step.Name+"/retry", "retry exponential_base must be >= 1.0", ""))
	}
	p := policy
	step.Retry = &p
	return b
}

// Timeout attaches a non-negative timeout to the current step.
func (b *Builder) Timeout(d time.Duration) *Builder {
	step := b.mustHaveCurrent("Timeout")
	if step == nil {
		return b
	}
	if d < 0 {
		return b.fail(newInvalidGraphError("INVALID_TIMEOUT", "/steps/"+step.Name+"/timeout", "timeout must be >= 0", ""))
	}
	step.Timeout = d
	return b
}

// Precondition appends a gating condition to the current step.
func (b *Builder) Precondition(condition, expected string) *Builder {
	step := b.mustHaveCurrent("Precondition")
	if step == nil {
		return b
	}
	step.Preconditions = append(step.Preconditions, Precondition{Condition: condition, Expected: expected})
	return b
}

// ContinueOnFailure marks the current step as non-fatal: downstream steps
// still run if it fails. markSuccess additionally reports the step as
// succeeded in emitted events.
func (b *Builder) ContinueOnFailure(markSuccess bool) *Builder {
	step := b.mustHaveCurrent("ContinueOnFailure")
	if step == nil {
		return b
	}
	step.ContinueOnFailure = true
	step.MarkSuccessOnContinue = markSuccess
	return b
}

// Build returns the assembled Workflow, or the first structural error
// encountered during assembly.
func (b *Builder) Build() (*Workflow, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.wf, nil
}
