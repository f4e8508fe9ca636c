// Package adapter implements the ordered-fallback external-process executor
// from spec §4.3. Each configured adapter wraps a command template that is
// rendered with a prompt and executed as a child process with a per-role
// timeout.
//
// Grounded on haricheung-agentic-shell's internal/tools/shell.go (context
// timeout + os/exec, stdout/stderr capture) and internal/tools/applescript.go
// (prompt delivered via stdin, *exec.ExitError unwrapped into a typed error)
// — generalized from two hardcoded tools into an arbitrary ordered list of
// configured command templates.
package adapter

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Sandbox names the optional process-isolation wrapper a Config may request.
type Sandbox string

const (
	SandboxNone            Sandbox = ""
	SandboxHost            Sandbox = "host"
	SandboxDocker          Sandbox = "docker"
	SandboxAppleContainer  Sandbox = "apple-container"
)

// Config describes one adapter: a command template, its argument template,
// environment, working directory, and how the prompt is delivered.
type Config struct {
	ID      string
	Command string
	Args    []string // each arg may contain the literal placeholder "{{prompt}}"
	Env     []string
	WorkDir string
	Sandbox Sandbox
	// Stdin, when true, delivers the prompt on the child's stdin instead of
	// substituting it into Args.
	Stdin bool
}

// Result is the successful outcome of executing one adapter. FailedAttempts
// records any earlier candidates in this call's fallback order that failed
// before AdapterID succeeded (adapter id -> error), so a caller that only
// sees the overall success can still attribute per-adapter failures (spec
// §8 scenario 2: a circuit can trip on an adapter that a later fallback
// masked from the task's outcome).
type Result struct {
	Output         string
	AdapterID      string
	FailedAttempts map[string]string
}

// AllAdaptersFailed is returned when every candidate adapter failed.
type AllAdaptersFailed struct {
	Errors map[string]string
}

func (e *AllAdaptersFailed) Error() string {
	return fmt.Sprintf("all adapters failed (%d attempted)", len(e.Errors))
}

const promptPlaceholder = "{{prompt}}"

// Executor runs a prompt against an ordered list of adapters, returning the
// first non-empty output.
type Executor struct {
	adapters map[string]Config
	order    []string // registration order
	timeout  time.Duration
	runner   func(ctx context.Context, cfg Config, prompt string) (string, error)
}

// New creates an Executor over the given adapter configs (registration order
// preserved) with a per-attempt timeout.
func New(configs []Config, timeout time.Duration) *Executor {
	e := &Executor{
		adapters: make(map[string]Config, len(configs)),
		timeout:  timeout,
	}
	for _, c := range configs {
		e.adapters[c.ID] = c
		e.order = append(e.order, c.ID)
	}
	e.runner = e.runOS
	return e
}

// CircuitChecker reports whether an adapter's circuit is currently closed
// (usable). Supplied by the Supervisor; a nil checker treats every adapter
// as available.
type CircuitChecker func(adapterID string) bool

// Execute implements the selection rule from spec §4.3: preferredAdapter
// first (if its circuit is closed), then registration order, skipping open
// circuits. Returns the first successful (output, adapterID), or
// AllAdaptersFailed with the per-adapter error list.
func (e *Executor) Execute(ctx context.Context, prompt, preferredAdapter string, closed CircuitChecker) (Result, error) {
	order := e.candidateOrder(preferredAdapter, closed)
	errs := make(map[string]string, len(order))

	for _, id := range order {
		cfg := e.adapters[id]
		attemptCtx, cancel := context.WithTimeout(ctx, e.timeoutOrDefault())
		out, err := e.runner(attemptCtx, cfg, prompt)
		cancel()

		out = strings.TrimSpace(out)
		if err != nil {
			errs[id] = err.Error()
			continue
		}
		if out == "" {
			errs[id] = "empty output after trimming"
			continue
		}
		return Result{Output: out, AdapterID: id, FailedAttempts: errs}, nil
	}
	return Result{}, &AllAdaptersFailed{Errors: errs}
}

func (e *Executor) timeoutOrDefault() time.Duration {
	if e.timeout <= 0 {
		return 300 * time.Second
	}
	return e.timeout
}

// candidateOrder resolves the adapter attempt order per spec §4.3 step 1.
func (e *Executor) candidateOrder(preferred string, closed CircuitChecker) []string {
	usable := func(id string) bool {
		if closed == nil {
			return true
		}
		return closed(id)
	}

	var order []string
	seen := make(map[string]bool)
	if preferred != "" {
		if _, ok := e.adapters[preferred]; ok && usable(preferred) {
			order = append(order, preferred)
			seen[preferred] = true
		}
	}
	for _, id := range e.order {
		if seen[id] || !usable(id) {
			continue
		}
		order = append(order, id)
		seen[id] = true
	}
	return order
}

// AlternativeOf returns the next adapter after current in registration
// order, wrapping around (round-robin), for the worker self-retry rule
// (spec §4.4/§4.6). Returns "" if there is no other adapter configured.
func (e *Executor) AlternativeOf(current string) string {
	if len(e.order) < 2 {
		return ""
	}
	for i, id := range e.order {
		if id == current {
			return e.order[(i+1)%len(e.order)]
		}
	}
	return e.order[0]
}

// runOS executes cfg as a real child process. Substitutes the prompt
// placeholder into the args template, or writes it to stdin when
// cfg.Stdin is set.
func (e *Executor) runOS(ctx context.Context, cfg Config, prompt string) (string, error) {
	args := make([]string, len(cfg.Args))
	for i, a := range cfg.Args {
		args[i] = strings.ReplaceAll(a, promptPlaceholder, prompt)
	}

	cmd := exec.CommandContext(ctx, cfg.Command, args...)
	if cfg.WorkDir != "" {
		cmd.Dir = cfg.WorkDir
	}
	if len(cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), cfg.Env...)
	}
	if cfg.Stdin {
		cmd.Stdin = strings.NewReader(prompt)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("adapter %s: timed out: %w", cfg.ID, ctx.Err())
		}
		if ee, ok := err.(*exec.ExitError); ok {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = ee.Error()
			}
			return "", fmt.Errorf("adapter %s: exit %d: %s", cfg.ID, ee.ExitCode(), msg)
		}
		return "", fmt.Errorf("adapter %s: %w", cfg.ID, err)
	}
	return stdout.String(), nil
}
