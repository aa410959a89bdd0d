package workflow

// CanonicalWorkflow is the wire form of a compiled Workflow, matching the
// platform's submission schema. json.Marshal emits its fields in the order
// declared here; MarshalCanonical in compiler.go re-encodes it with
// alphabetically sorted object keys for the content hash. Arrays keep
// insertion order in both.
type CanonicalWorkflow struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Runner      string            `json:"runner,omitempty"`
	Type        string            `json:"type"`
	Params      map[string]string `json:"params"`
	Env         map[string]string `json:"env"`
	Steps       []CanonicalStep   `json:"steps"`
}

// CanonicalStep is a single compiled step in the wire form.
type CanonicalStep struct {
	Name          string                  `json:"name"`
	Depends       []string                `json:"depends"`
	Output        string                  `json:"output,omitempty"`
	OutputMode    string                  `json:"output_mode,omitempty"`
	Retry         *CanonicalRetry         `json:"retry,omitempty"`
	Timeout       string                  `json:"timeout,omitempty"`
	Preconditions []CanonicalPrecondition `json:"preconditions,omitempty"`
	ContinueOn    *CanonicalContinueOn    `json:"continue_on,omitempty"`
	Executor      CanonicalExecutor       `json:"executor"`
}

// CanonicalRetry is the wire form of a RetryPolicy.
type CanonicalRetry struct {
	Limit           int     `json:"limit"`
	IntervalSec     float64 `json:"interval_sec"`
	ExponentialBase float64 `json:"exponential_base"`
	ExitCodes       []int   `json:"exit_codes,omitempty"`
}

// CanonicalPrecondition is the wire form of a Precondition.
type CanonicalPrecondition struct {
	Condition string `json:"condition"`
	Expected  string `json:"expected"`
}

// CanonicalContinueOn is the wire form of a step's continue-on-failure policy.
type CanonicalContinueOn struct {
	Failure     bool `json:"failure"`
	MarkSuccess bool `json:"mark_success"`
}

// CanonicalExecutor is the tagged-variant wire form: a "type" discriminator
// plus a variant-specific "config" object.
type CanonicalExecutor struct {
	Type   string `json:"type"`
	Config any    `json:"config"`
}
