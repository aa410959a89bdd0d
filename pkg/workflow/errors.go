package workflow

import "fmt"

// ValidationIssue is a structured validation error or warning, shaped so
// tooling (or an upstream AI producer) can point at the exact offending
// field instead of parsing a free-form message.
type ValidationIssue struct {
	Code    string `json:"code"`
	Path    string `json:"path"`
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

func (i ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s (%s)", i.Path, i.Message, i.Code)
}

// InvalidGraphError reports a structural problem with the step graph: an
// unknown dependency, or a cycle.
type InvalidGraphError struct {
	Issue ValidationIssue
}

func (e *InvalidGraphError) Error() string { return e.Issue.String() }

func newInvalidGraphError(code, path, message, hint string) *InvalidGraphError {
	return &InvalidGraphError{Issue: ValidationIssue{Code: code, Path: path, Message: message, Hint: hint}}
}

// ConflictError reports a second executor declared on a step that already
// has one.
type ConflictError struct {
	Issue ValidationIssue
}

func (e *ConflictError) Error() string { return e.Issue.String() }

func newConflictError(path, message, hint string) *ConflictError {
	return &ConflictError{Issue: ValidationIssue{Code: "CONFLICT", Path: path, Message: message, Hint: hint}}
}

// UnresolvedReferenceError reports a ${NAME} token that resolves to no
// declared parameter, environment variable, or step output.
type UnresolvedReferenceError struct {
	Name  string
	Issue ValidationIssue
}

func (e *UnresolvedReferenceError) Error() string { return e.Issue.String() }

func newUnresolvedReferenceError(name, path string) *UnresolvedReferenceError {
	return &UnresolvedReferenceError{
		Name: name,
		Issue: ValidationIssue{
			Code:    "UNRESOLVED_REFERENCE",
			Path:    path,
			Message: fmt.Sprintf("reference ${%s} does not resolve to a parameter, env var, or step output", name),
			Hint:    "Declare the parameter/env var on the workflow, or ensure the referenced step declares an output.",
		},
	}
}

// NonCausalReferenceError reports a ${NAME} token referencing a step output
// from a step that is not an ancestor of the referencing step.
type NonCausalReferenceError struct {
	Name  string
	Issue ValidationIssue
}

func (e *NonCausalReferenceError) Error() string { return e.Issue.String() }

func newNonCausalReferenceError(name, fromStep, path string) *NonCausalReferenceError {
	return &NonCausalReferenceError{
		Name: name,
		Issue: ValidationIssue{
			Code:    "NON_CAUSAL_REFERENCE",
			Path:    path,
			Message: fmt.Sprintf("step %q references output %q from a step that is not its ancestor", fromStep, name),
			Hint:    "Add an explicit dependency so the referenced step always runs first.",
		},
	}
}

// CycleError reports a dependency cycle, carrying the smallest offending
// cycle found by the topological check.
type CycleError struct {
	Cycle []string
	Issue ValidationIssue
}

func (e *CycleError) Error() string { return e.Issue.String() }

// Unwrap exposes the cycle as an InvalidGraphError carrying the same issue,
// so errors.As matches a cycle as either type.
func (e *CycleError) Unwrap() error { return &InvalidGraphError{Issue: e.Issue} }

func newCycleError(cycle []string) *CycleError {
	path := ""
	for i, name := range cycle {
		if i > 0 {
			path += " -> "
		}
		path += name
	}
	return &CycleError{
		Cycle: cycle,
		Issue: ValidationIssue{
			Code:    "CYCLE",
			Path:    "/steps",
			Message: fmt.Sprintf("dependency cycle: %s", path),
			Hint:    "Break the cycle by removing or redirecting one of the listed dependencies.",
		},
	}
}
