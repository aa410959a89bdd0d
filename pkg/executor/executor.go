// Package executor defines the typed configurations for each step executor
// variant the platform understands. Every variant serializes to the same
// wire shape: a "type" discriminator plus a "config" object (see
// workflow.CanonicalExecutor).
package executor

// Type is the wire discriminator for an executor variant.
type Type string

const (
	TypeShell       Type = "shell"
	TypeContainer   Type = "container"
	TypeSubWorkflow Type = "sub-workflow"
	TypeParallel    Type = "parallel-fanout"
	TypeHTTP        Type = "http"
	TypeInlineAgent Type = "inline-agent"
)

// Executor is implemented by every step executor variant. Config returns the
// variant-specific payload that is serialized under the wire "config" key.
type Executor interface {
	Type() Type
	Config() any
}

// StringFields is implemented by executors that expose which of their
// config fields are eligible for ${NAME} substitution. The compiler walks
// these to check that every reference resolves; it does not rewrite them,
// so the ${NAME} templates reach the canonical form unchanged. Fields not
// listed here are not checked.
type StringFields interface {
	SubstitutableFields() map[string]*string
}

// Shell runs a command string in a generic shell environment.
type Shell struct {
	Command string
}

func (s *Shell) Type() Type { return TypeShell }
func (s *Shell) Config() any {
	return struct {
		Command string `json:"command"`
	}{Command: s.Command}
}
func (s *Shell) SubstitutableFields() map[string]*string {
	return map[string]*string{"command": &s.Command}
}

// FileMount embeds file content into the container filesystem at Destination.
// The platform is responsible for materializing it.
type FileMount struct {
	Destination string
	Content     string
}

// Sidecar is a companion service started alongside a container step.
type Sidecar struct {
	Name         string
	Image        string
	ExposedPorts []int
	Env          map[string]string
}

// Arg is a typed argument declaration for a container executor.
type Arg struct {
	Name     string
	Type     string
	Required bool
	Default  string
}

// Container runs a named image, optionally overriding its entrypoint or
// running embedded script content, with optional file mounts and sidecar
// services.
type Container struct {
	Image      string
	Command    []string
	Script     string
	Args       []Arg
	Mounts     []FileMount
	Sidecars   []Sidecar
}

func (c *Container) Type() Type { return TypeContainer }
func (c *Container) Config() any {
	type mount struct {
		Destination string `json:"destination"`
		Content     string `json:"content"`
	}
	type sidecar struct {
		Name         string            `json:"name"`
		Image        string            `json:"image"`
		ExposedPorts []int             `json:"exposed_ports"`
		Env          map[string]string `json:"env,omitempty"`
	}
	mounts := make([]mount, len(c.Mounts))
	for i, m := range c.Mounts {
		mounts[i] = mount{Destination: m.Destination, Content: m.Content}
	}
	sidecars := make([]sidecar, len(c.Sidecars))
	for i, s := range c.Sidecars {
		sidecars[i] = sidecar{Name: s.Name, Image: s.Image, ExposedPorts: s.ExposedPorts, Env: s.Env}
	}
	return struct {
		Image    string    `json:"image"`
		Command  []string  `json:"command,omitempty"`
		Script   string    `json:"script,omitempty"`
		Args     []Arg     `json:"args,omitempty"`
		Mounts   []mount   `json:"files,omitempty"`
		Sidecars []sidecar `json:"services,omitempty"`
	}{Image: c.Image, Command: c.Command, Script: c.Script, Args: c.Args, Mounts: mounts, Sidecars: sidecars}
}
func (c *Container) SubstitutableFields() map[string]*string {
	return map[string]*string{"script": &c.Script}
}

// SubWorkflow delegates to another workflow definition, by name or path,
// passing a parameter map.
type SubWorkflow struct {
	Ref    string
	Params map[string]string
}

func (s *SubWorkflow) Type() Type { return TypeSubWorkflow }
func (s *SubWorkflow) Config() any {
	return struct {
		Ref    string            `json:"ref"`
		Params map[string]string `json:"params,omitempty"`
	}{Ref: s.Ref, Params: s.Params}
}
func (s *SubWorkflow) SubstitutableFields() map[string]*string {
	fields := map[string]*string{}
	for k := range s.Params {
		v := s.Params[k]
		fields["params."+k] = &v
	}
	return fields
}

// ItemSource is either a literal list of items or a ${VAR} reference
// resolving to one at compile time.
type ItemSource struct {
	Literal  []string
	Variable string
}

// ParallelFanout runs ItemTemplate once per item in ItemSource, substituting
// ${ITEM} per iteration, bounded by Concurrency (0 means unbounded).
type ParallelFanout struct {
	ItemSource   ItemSource
	ItemTemplate string
	Concurrency  int
}

func (p *ParallelFanout) Type() Type { return TypeParallel }
func (p *ParallelFanout) Config() any {
	var items any
	if p.ItemSource.Variable != "" {
		items = "${" + p.ItemSource.Variable + "}"
	} else {
		items = p.ItemSource.Literal
	}
	return struct {
		Items       any    `json:"items"`
		ItemCommand string `json:"item_command"`
		Concurrency int    `json:"concurrency"`
	}{Items: items, ItemCommand: p.ItemTemplate, Concurrency: p.Concurrency}
}
func (p *ParallelFanout) SubstitutableFields() map[string]*string {
	return map[string]*string{"item_command": &p.ItemTemplate}
}

// HTTP issues a single HTTP request as a step.
type HTTP struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    string
}

func (h *HTTP) Type() Type { return TypeHTTP }
func (h *HTTP) Config() any {
	return struct {
		URL     string            `json:"url"`
		Method  string            `json:"method"`
		Headers map[string]string `json:"headers,omitempty"`
		Body    string            `json:"body,omitempty"`
	}{URL: h.URL, Method: h.Method, Headers: h.Headers, Body: h.Body}
}
func (h *HTTP) SubstitutableFields() map[string]*string {
	return map[string]*string{"url": &h.URL, "body": &h.Body}
}

// InlineAgent declares an LLM-driven step. It is opaque to this module:
// the platform interprets Prompt/Model/Tools/Runner and runs them, and this
// type only needs to serialize faithfully.
type InlineAgent struct {
	Prompt string
	Model  string
	Tools  []Container
	Runner string
}

func (a *InlineAgent) Type() Type { return TypeInlineAgent }
func (a *InlineAgent) Config() any {
	tools := make([]any, len(a.Tools))
	for i := range a.Tools {
		tools[i] = a.Tools[i].Config()
	}
	return struct {
		Prompt string `json:"prompt"`
		Model  string `json:"model"`
		Tools  []any  `json:"tools,omitempty"`
		Runner string `json:"runner,omitempty"`
	}{Prompt: a.Prompt, Model: a.Model, Tools: tools, Runner: a.Runner}
}
func (a *InlineAgent) SubstitutableFields() map[string]*string {
	return map[string]*string{"prompt": &a.Prompt}
}
