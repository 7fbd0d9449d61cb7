package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"sort"

	"github.com/calvinalkan/cli-sandbox/sandbox"
)

// Case is one invocation of the program under test, loaded from a JSON/JSONC
// case file.
type Case struct {
	Files          map[string]string `json:"files,omitempty"`
	Archive        string            `json:"archive,omitempty"` // txtar, relative to the case file
	Symlinks       []SymlinkSpec     `json:"symlinks,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	ScrubEnvPrefix string            `json:"scrub_env_prefix,omitempty"`
	Args           []string          `json:"args,omitempty"`
	Expect         Expectations      `json:"expect"`

	// Resolved (not serialized)
	Path string `json:"-"`
}

// SymlinkSpec creates Dst pointing at Src, both sandbox-relative.
type SymlinkSpec struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// Expectations lists everything checked after the program exits.
type Expectations struct {
	ExitCode    *int              `json:"exit_code,omitempty"`
	Stdout      *StreamExpect     `json:"stdout,omitempty"`
	Stderr      *StreamExpect     `json:"stderr,omitempty"`
	Files       map[string]string `json:"files,omitempty"`
	Executables []string          `json:"executables,omitempty"`
}

// StreamExpect describes one output stream. Text and Pattern may be combined;
// File is relative to the case file.
type StreamExpect struct {
	Text    *string `json:"text,omitempty"`
	Pattern string  `json:"pattern,omitempty"`
	File    string  `json:"file,omitempty"`
	Empty   *bool   `json:"empty,omitempty"`
	Warns   *bool   `json:"warns,omitempty"`
}

// LoadCase reads and validates a case file.
func LoadCase(path string) (*Case, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("case %s: %w", path, err)
	}

	var c Case

	err = decodeJSONC(abs, &c)
	if err != nil {
		return nil, fmt.Errorf("case %w", err)
	}

	c.Path = abs

	// Compile patterns up front so a broken pattern never costs a program run.
	for _, se := range []*StreamExpect{c.Expect.Stdout, c.Expect.Stderr} {
		if se == nil || se.Pattern == "" {
			continue
		}

		_, err = sandbox.CompilePattern(se.Pattern)
		if err != nil {
			return nil, fmt.Errorf("case %s: %w", abs, err)
		}
	}

	return &c, nil
}

// caseRelative resolves p against the directory of the case file.
func (c *Case) caseRelative(p string) string {
	if filepath.IsAbs(p) {
		return p
	}

	return filepath.Join(filepath.Dir(c.Path), p)
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	Case       *Case
	Dir        string
	Capture    *sandbox.Capture
	Failures   []error
	Scrubbed   []string
	SetupError error
}

// Passed reports whether the case ran and every expectation held.
func (r *CaseResult) Passed() bool {
	return r.SetupError == nil && len(r.Failures) == 0
}

// caseRunner executes cases against one program.
type caseRunner struct {
	workDir     string
	homeDir     string
	exe         string
	env         map[string]string
	scrubPrefix string
	keep        bool
	newSandbox  func() (*sandbox.Sandbox, error)
}

// Run prepares a sandbox for c, runs the program and checks expectations.
// Setup problems (fixtures, links, launch) are reported as SetupError;
// expectation mismatches are collected in Failures.
func (cr *caseRunner) Run(ctx context.Context, c *Case) *CaseResult {
	res := &CaseResult{Case: c}

	sb, err := cr.newSandbox()
	if err != nil {
		res.SetupError = err

		return res
	}

	res.Dir = sb.Dir()

	defer func() {
		if cr.keep {
			sb.Leak()

			return
		}

		_ = sb.Close()
	}()

	err = cr.prepare(sb, c)
	if err != nil {
		res.SetupError = err

		return res
	}

	prefix := c.ScrubEnvPrefix
	if prefix == "" {
		prefix = cr.scrubPrefix
	}

	env := maps.Clone(cr.env)
	if env == nil {
		env = make(map[string]string, len(c.Env))
	}

	maps.Copy(env, c.Env)

	runner := sandbox.NewRunner(cr.exe, sandbox.WithEnv(env))

	if prefix != "" {
		scope, scrubErr := sb.ScrubEnv(prefix)
		if scrubErr != nil {
			res.SetupError = scrubErr

			return res
		}

		res.Scrubbed = scope.Removed()

		defer func() { _ = scope.Restore() }()
	}

	res.Capture, err = sb.Run(ctx, runner, c.Args...)
	if err != nil {
		res.SetupError = err

		return res
	}

	res.Failures = checkExpectations(sb, c, res.Capture)

	return res
}

func (cr *caseRunner) prepare(sb *sandbox.Sandbox, c *Case) error {
	if c.Archive != "" {
		err := sb.WriteArchiveFile(c.caseRelative(c.Archive))
		if err != nil {
			return err
		}
	}

	names := make([]string, 0, len(c.Files))
	for name := range c.Files {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		err := sb.WriteFile(name, c.Files[name])
		if err != nil {
			return err
		}
	}

	for _, link := range c.Symlinks {
		err := sb.Symlink(link.Src, link.Dst)
		if err != nil {
			return err
		}
	}

	return nil
}

func checkExpectations(sb *sandbox.Sandbox, c *Case, out *sandbox.Capture) []error {
	var failures []error

	exp := c.Expect

	if exp.ExitCode != nil && out.ExitCode() != *exp.ExitCode {
		failures = append(failures, fmt.Errorf("exit code: expected %d, got %d", *exp.ExitCode, out.ExitCode()))
	}

	failures = append(failures, checkStream(c, out, sandbox.Stdout, exp.Stdout)...)
	failures = append(failures, checkStream(c, out, sandbox.Stderr, exp.Stderr)...)

	names := make([]string, 0, len(exp.Files))
	for name := range exp.Files {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		err := sb.AssertFileContents(name, exp.Files[name])
		if err != nil {
			failures = append(failures, err)
		}
	}

	for _, name := range exp.Executables {
		if !sb.IsExecutableFormat(name) {
			failures = append(failures, fmt.Errorf("file %s: %w", name, ErrNotExecutable))
		}
	}

	return failures
}

// ErrNotExecutable is reported when a file lacks a known executable header.
var ErrNotExecutable = errors.New("not a recognized executable format")

func checkStream(c *Case, out *sandbox.Capture, s sandbox.Stream, se *StreamExpect) []error {
	if se == nil {
		return nil
	}

	var failures []error

	add := func(err error) {
		if err != nil {
			failures = append(failures, err)
		}
	}

	if se.Empty != nil && out.IsEmpty(s) != *se.Empty {
		if *se.Empty {
			add(fmt.Errorf("%s: expected no output, got %d bytes", s, len(streamBytes(out, s))))
		} else {
			add(fmt.Errorf("%s: expected output, got none", s))
		}
	}

	if se.Warns != nil && out.Warns(s) != *se.Warns {
		add(fmt.Errorf("%s: expected warns=%t (marker %q)", s, *se.Warns, sandbox.WarningMarker))
	}

	if se.Text != nil {
		add(out.WithText(s, *se.Text))
	}

	if se.Pattern != "" {
		add(out.WithPattern(s, se.Pattern))
	}

	if se.File != "" {
		add(out.WithFile(s, c.caseRelative(se.File)))
	}

	return failures
}

func streamBytes(out *sandbox.Capture, s sandbox.Stream) []byte {
	if s == sandbox.Stderr {
		return out.Stderr()
	}

	return out.Stdout()
}
