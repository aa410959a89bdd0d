// Package dryrun runs a single container step against the local Docker/OCI
// runtime via dagger.io/dagger, outside the submit/stream path entirely. It
// exists so a workflow author can exercise a container step's image,
// command, and file mounts before ever reaching the platform. Nothing here
// participates in compilation, submission, or event parsing.
package dryrun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger.io/dagger"

	"github.com/cloudshipai/workflowcore/pkg/executor"
)

// Config bounds what a dry run is allowed to do. The zero Config disables
// the runner entirely, matching the teacher's "sandbox disabled by default"
// posture.
type Config struct {
	Enabled        bool
	AllowedImages  []string
	DefaultTimeout time.Duration
	MaxOutputBytes int
}

// DefaultConfig mirrors the teacher's sandbox defaults, narrowed to the
// handful of images a workflow step is likely to declare.
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		AllowedImages:  []string{"python:3.11-slim", "node:20-slim", "ubuntu:22.04", "alpine:3.19"},
		DefaultTimeout: 2 * time.Minute,
		MaxOutputBytes: 200_000,
	}
}

// Result mirrors the shape the controller would have produced from a real
// step.end event, so callers can treat a dry run and a platform-executed
// step identically.
type Result struct {
	StepName   string
	OK         bool
	ExitCode   int
	DurationMs int64
	Stdout     string
	Stderr     string
	Error      string
}

// Runner executes a single container step locally.
type Runner struct {
	config Config
}

// New constructs a Runner. A Runner with Config.Enabled false always returns
// an error from Run — callers must opt in explicitly.
func New(cfg Config) *Runner {
	return &Runner{config: cfg}
}

// Run executes step's container locally and blocks until it completes, the
// step's own declared timeout elapses, or ctx is cancelled. step must name a
// step whose Executor is *executor.Container; any other executor type is a
// caller error. Run never mutates workflow state and never contacts the
// platform.
func (r *Runner) Run(ctx context.Context, stepName string, c *executor.Container, timeout time.Duration) (*Result, error) {
	if !r.config.Enabled {
		return nil, fmt.Errorf("dryrun: runner is not enabled")
	}
	if c == nil {
		return nil, fmt.Errorf("dryrun: container executor is nil")
	}
	if !r.imageAllowed(c.Image) {
		return &Result{
			StepName: stepName,
			OK:       false,
			ExitCode: -1,
			Error:    fmt.Sprintf("image %q is not in the allowed list", c.Image),
		}, nil
	}

	if timeout <= 0 {
		timeout = r.config.DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := r.execute(runCtx, stepName, c)
	if err != nil {
		return &Result{
			StepName:   stepName,
			OK:         false,
			ExitCode:   -1,
			Error:      err.Error(),
			DurationMs: time.Since(start).Milliseconds(),
		}, nil
	}
	result.DurationMs = time.Since(start).Milliseconds()
	return result, nil
}

func (r *Runner) imageAllowed(image string) bool {
	for _, allowed := range r.config.AllowedImages {
		if allowed == image {
			return true
		}
	}
	return false
}

func (r *Runner) execute(ctx context.Context, stepName string, c *executor.Container) (*Result, error) {
	client, err := dagger.Connect(ctx, dagger.WithLogOutput(nil))
	if err != nil {
		return nil, fmt.Errorf("dagger connect failed: %w", err)
	}
	defer client.Close()

	ctr := client.Container().From(c.Image).WithWorkdir("/work")

	for _, m := range c.Mounts {
		dest := strings.TrimPrefix(m.Destination, "/")
		ctr = ctr.WithNewFile("/work/"+dest, m.Content)
	}

	if c.Script != "" {
		ctr = ctr.WithNewFile("/work/entrypoint.sh", c.Script)
		ctr = ctr.WithExec([]string{"sh", "/work/entrypoint.sh"})
	} else if len(c.Command) > 0 {
		ctr = ctr.WithExec(c.Command)
	} else {
		return nil, fmt.Errorf("container step %q declares neither script nor command", stepName)
	}

	stdout, stdoutErr := ctr.Stdout(ctx)
	stderr, _ := ctr.Stderr(ctx)

	exitCode := 0
	if stdoutErr != nil {
		exitCode = 1
		if stderr == "" {
			stderr = stdoutErr.Error()
		}
	}

	return &Result{
		StepName: stepName,
		OK:       exitCode == 0,
		ExitCode: exitCode,
		Stdout:   r.truncate(stdout),
		Stderr:   r.truncate(stderr),
	}, nil
}

func (r *Runner) truncate(s string) string {
	max := r.config.MaxOutputBytes
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "\n... [truncated]"
}
