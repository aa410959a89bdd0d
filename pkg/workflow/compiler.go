package workflow

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/cloudshipai/workflowcore/pkg/executor"
)

var referencePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:[^}]*)?\}`)

// Compiled is the result of a successful Compile: the canonical wire form
// plus a content hash over its stable serialization, suitable for
// caller-side caching.
type Compiled struct {
	Form CanonicalWorkflow
	Hash string
}

// Compile validates a Workflow against every invariant in the data model
// (unique names, resolvable dependencies, resolvable references, acyclicity)
// and serializes it to its canonical wire form. Compile is deterministic:
// the same Workflow value always produces byte-identical JSON via
// MarshalCanonical.
func Compile(w *Workflow) (*Compiled, error) {
	if !IsIdentifier(w.Name) {
		return nil, newInvalidGraphError("INVALID_NAME", "/name", fmt.Sprintf("workflow name %q is not identifier-safe", w.Name), "")
	}

	index, err := indexSteps(w)
	if err != nil {
		return nil, err
	}

	if err := checkDependenciesExist(w, index); err != nil {
		return nil, err
	}

	order, err := topologicalOrder(w, index)
	if err != nil {
		return nil, err
	}

	ancestors := ancestorSets(w, index, order)

	resolvable := map[string]bool{}
	for _, p := range w.Params {
		resolvable[p.Name] = true
	}
	for k := range w.Env {
		resolvable[k] = true
	}

	if err := checkReferences(w, ancestors, resolvable); err != nil {
		return nil, err
	}

	form := toCanonical(w)
	hash, err := ContentHash(form)
	if err != nil {
		return nil, err
	}

	return &Compiled{Form: form, Hash: hash}, nil
}

func indexSteps(w *Workflow) (map[string]int, error) {
	index := map[string]int{}
	for i, s := range w.Steps {
		if !IsIdentifier(s.Name) {
			return nil, newInvalidGraphError("INVALID_STEP_NAME", fmt.Sprintf("/steps/%d", i), fmt.Sprintf("step name %q is not identifier-safe", s.Name), "")
		}
		if _, exists := index[s.Name]; exists {
			return nil, newInvalidGraphError("DUPLICATE_STEP", fmt.Sprintf("/steps/%d", i), fmt.Sprintf("step name %q declared more than once", s.Name), "")
		}
		if s.Executor == nil {
			return nil, newInvalidGraphError("MISSING_EXECUTOR", "/steps/"+s.Name, fmt.Sprintf("step %q has no executor configured", s.Name), "")
		}
		if s.Output != "" && !IsIdentifier(s.Output) {
			return nil, newInvalidGraphError("INVALID_OUTPUT_NAME", "/steps/"+s.Name+"/output", fmt.Sprintf("output name %q is not identifier-safe", s.Output), "")
		}
		index[s.Name] = i
	}
	return index, nil
}

func checkDependenciesExist(w *Workflow, index map[string]int) error {
	for _, s := range w.Steps {
		for _, dep := range s.DependsOn {
			if _, ok := index[dep]; !ok {
				return newInvalidGraphError("UNKNOWN_DEPENDENCY", "/steps/"+s.Name+"/depends", fmt.Sprintf("step %q depends on unknown step %q", s.Name, dep), "")
			}
		}
	}
	if w.Mode == ModeChain {
		for i, s := range w.Steps {
			if i == 0 {
				continue
			}
			if len(s.DependsOn) == 0 {
				return newInvalidGraphError("CHAIN_MISSING_DEPENDENCY", "/steps/"+s.Name, fmt.Sprintf("chain mode requires step %q to depend on the previous step", s.Name), "")
			}
		}
	}
	return nil
}

// topologicalOrder runs Kahn's algorithm and, on failure, reports the
// smallest cycle found among the steps it could not order.
func topologicalOrder(w *Workflow, index map[string]int) ([]string, error) {
	n := len(w.Steps)
	indegree := make([]int, n)
	// adjacency[i] holds indices of steps that depend on step i.
	adjacency := make([][]int, n)
	for _, s := range w.Steps {
		si := index[s.Name]
		for _, dep := range s.DependsOn {
			di := index[dep]
			adjacency[di] = append(adjacency[di], si)
			indegree[si]++
		}
	}

	queue := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if indegree[i] == 0 {
			queue = append(queue, i)
		}
	}

	order := make([]string, 0, n)
	visited := make([]bool, n)
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		visited[i] = true
		order = append(order, w.Steps[i].Name)
		for _, j := range adjacency[i] {
			indegree[j]--
			if indegree[j] == 0 {
				queue = append(queue, j)
			}
		}
	}

	if len(order) == n {
		return order, nil
	}

	cycle := findSmallestCycle(w, index, visited)
	return nil, newCycleError(cycle)
}

// findSmallestCycle performs a shortest-path search from every unvisited
// (still-cyclic) node back to itself along dependency edges.
func findSmallestCycle(w *Workflow, index map[string]int, visited []bool) []string {
	depsOf := func(name string) []string {
		i := index[name]
		return w.Steps[i].DependsOn
	}

	var best []string
	for _, s := range w.Steps {
		if visited[index[s.Name]] {
			continue
		}
		if cycle := bfsCycleFrom(s.Name, depsOf, visited, index); cycle != nil {
			if best == nil || len(cycle) < len(best) {
				best = cycle
			}
		}
	}
	if best == nil {
		// Shouldn't happen if Kahn's algorithm reported a failure, but fall
		// back to naming every unordered step.
		for _, s := range w.Steps {
			if !visited[index[s.Name]] {
				best = append(best, s.Name)
			}
		}
	}
	return best
}

func bfsCycleFrom(start string, depsOf func(string) []string, visited []bool, index map[string]int) []string {
	type path struct {
		node string
		prev *path
	}
	seen := map[string]bool{start: true}
	queue := []*path{{node: start}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dep := range depsOf(cur.node) {
			if visited[index[dep]] {
				continue
			}
			if dep == start {
				// Found the cycle; unwind.
				chain := []string{start}
				for p := cur; p != nil; p = p.prev {
					chain = append(chain, p.node)
				}
				return reverseStrings(chain)
			}
			if seen[dep] {
				continue
			}
			seen[dep] = true
			queue = append(queue, &path{node: dep, prev: cur})
		}
	}
	return nil
}

func reverseStrings(s []string) []string {
	out := make([]string, len(s))
	for i, v := range s {
		out[len(s)-1-i] = v
	}
	return out
}

// ancestorSets computes, for each step, the set of step names that are its
// transitive dependencies (ancestors in the DAG).
func ancestorSets(w *Workflow, index map[string]int, order []string) map[string]map[string]bool {
	ancestors := map[string]map[string]bool{}
	for _, name := range order {
		i := index[name]
		set := map[string]bool{}
		for _, dep := range w.Steps[i].DependsOn {
			set[dep] = true
			for a := range ancestors[dep] {
				set[a] = true
			}
		}
		ancestors[name] = set
	}
	return ancestors
}

func checkReferences(w *Workflow, ancestors map[string]map[string]bool, resolvable map[string]bool) error {
	// Map of step name -> declared output name, for ancestor-output checks.
	outputOf := map[string]string{}
	for _, s := range w.Steps {
		if s.Output != "" {
			outputOf[s.Name] = s.Output
		}
	}
	// Invert: output variable name -> producing step name. Spec assumes
	// unique output names; if two steps share one, either ancestor relation
	// satisfies the reference.
	producers := map[string][]string{}
	for step, out := range outputOf {
		producers[out] = append(producers[out], step)
	}

	for _, s := range w.Steps {
		fields := map[string]*string{}
		if sf, ok := s.Executor.(executor.StringFields); ok {
			fields = sf.SubstitutableFields()
		}
		itemField := ""
		if s.Executor.Type() == executor.TypeParallel {
			itemField = "item_command"
		}
		for fieldName, value := range fields {
			for _, m := range referencePattern.FindAllStringSubmatch(*value, -1) {
				name := m[1]
				if fieldName == itemField && name == "ITEM" {
					continue
				}
				if resolvable[name] {
					continue
				}
				producingSteps, isOutput := producers[name]
				if !isOutput {
					return newUnresolvedReferenceError(name, "/steps/"+s.Name+"/"+fieldName)
				}
				causal := false
				for _, p := range producingSteps {
					if ancestors[s.Name][p] {
						causal = true
						break
					}
				}
				if !causal {
					return newNonCausalReferenceError(name, s.Name, "/steps/"+s.Name+"/"+fieldName)
				}
			}
		}
	}
	return nil
}

func toCanonical(w *Workflow) CanonicalWorkflow {
	params := map[string]string{}
	for _, p := range w.Params {
		params[p.Name] = p.Default
	}
	env := map[string]string{}
	for k, v := range w.Env {
		env[k] = v
	}

	steps := make([]CanonicalStep, len(w.Steps))
	for i, s := range w.Steps {
		cs := CanonicalStep{
			Name:       s.Name,
			Depends:    append([]string{}, s.DependsOn...),
			Output:     s.Output,
			OutputMode: string(s.OutputMode),
			Executor: CanonicalExecutor{
				Type:   string(s.Executor.Type()),
				Config: s.Executor.Config(),
			},
		}
		if cs.Depends == nil {
			cs.Depends = []string{}
		}
		if s.Timeout > 0 {
			cs.Timeout = s.Timeout.String()
		}
		if s.Retry != nil {
			cs.Retry = &CanonicalRetry{
				Limit:           s.Retry.MaxAttempts,
				IntervalSec:     s.Retry.BaseInterval.Seconds(),
				ExponentialBase: s.Retry.ExponentialBase,
				ExitCodes:       s.Retry.RetryableExitCodes,
			}
		}
		for _, p := range s.Preconditions {
			cs.Preconditions = append(cs.Preconditions, CanonicalPrecondition{Condition: p.Condition, Expected: p.Expected})
		}
		if s.ContinueOnFailure {
			cs.ContinueOn = &CanonicalContinueOn{Failure: true, MarkSuccess: s.MarkSuccessOnContinue}
		}
		steps[i] = cs
	}

	return CanonicalWorkflow{
		Name:        w.Name,
		Description: w.Description,
		Runner:      w.Runner,
		Type:        string(w.Mode),
		Params:      params,
		Env:         env,
		Steps:       steps,
	}
}

// MarshalCanonical serializes a CanonicalWorkflow with alphabetically sorted
// object keys and insertion-order arrays, via a marshal/unmarshal round trip
// through Go's map-keyed JSON encoder (which already sorts map keys).
func MarshalCanonical(form CanonicalWorkflow) ([]byte, error) {
	raw, err := json.Marshal(form)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}

// ContentHash returns a hex-encoded SHA-256 digest of a canonical form's
// stable serialization, suitable for caller-side caching.
func ContentHash(form CanonicalWorkflow) (string, error) {
	stable, err := MarshalCanonical(form)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(stable)
	return hex.EncodeToString(sum[:]), nil
}
