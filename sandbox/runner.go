package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
)

// Runner invokes one resolved executable. It never searches PATH and never
// infers a build configuration; see [Resolver] for locating the program.
//
// Run blocks until the program exits. The Runner imposes no timeout; a hung
// program hangs the caller unless ctx is cancelled.
type Runner struct {
	path string
	env  []string
}

// RunnerOption configures [NewRunner].
type RunnerOption func(*Runner)

// WithEnv adds variables to the inherited environment of every invocation.
func WithEnv(env map[string]string) RunnerOption {
	return func(r *Runner) {
		r.env = append(r.env, envMapToSliceSorted(env)...)
	}
}

// NewRunner returns a Runner for the executable at path. A relative path is
// made absolute against the current working directory.
func NewRunner(path string, opts ...RunnerOption) *Runner {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	r := &Runner{path: path}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Path returns the absolute path of the executable.
func (r *Runner) Path() string {
	return r.path
}

// Run starts the executable with args and dir as working directory, waits for
// it to exit and returns the captured output.
//
// Stdin is the null device. A program that cannot be started (missing file,
// permission denied, not an executable) yields a [LaunchError]. A non-zero
// exit status or death by signal is not an error; it is recorded in the
// returned [Capture].
func (r *Runner) Run(ctx context.Context, dir string, args ...string) (*Capture, error) {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, r.path, args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}

	err := cmd.Run()
	if err != nil {
		exitErr := &exec.ExitError{}
		if !errors.As(err, &exitErr) {
			return nil, &LaunchError{Path: r.path, Err: err}
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("sandbox: running %s: %w", r.path, ctxErr)
		}
	}

	return newCapture(stdout.Bytes(), stderr.Bytes(), cmd.ProcessState), nil
}

// envMapToSliceSorted converts a map env to a sorted KEY=VALUE slice.
//
// Sorting improves determinism in tests and makes debug output stable.
func envMapToSliceSorted(env map[string]string) []string {
	if len(env) == 0 {
		return []string{}
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}

	return out
}
