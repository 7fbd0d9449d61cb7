package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// ============================================================================
// Fake program under test - the test binary re-executes itself
// ============================================================================

// fakeSubjectEnv turns the test binary into the program under test, so the
// run command has something real to launch without a separate build.
const fakeSubjectEnv = "CLI_SANDBOX_FAKE_SUBJECT"

func TestMain(m *testing.M) {
	if os.Getenv(fakeSubjectEnv) == "1" {
		os.Exit(fakeSubject(os.Args[1:]))
	}

	os.Exit(m.Run())
}

// fakeSubject is a tiny CLI with one behavior per sub-command.
func fakeSubject(args []string) int {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, "usage: subject <command>")

		return 2
	}

	switch args[0] {
	case "build":
		src, err := os.ReadFile("main.py")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v", err)

			return 1
		}

		if strings.TrimSpace(string(src)) != "def main(): pass" {
			fmt.Fprint(os.Stderr, "error: unsupported program")

			return 1
		}

		err = os.WriteFile("main.rs", []byte("fn main() {}\n"), 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v", err)

			return 1
		}

		fmt.Fprint(os.Stdout, "File transpiled correctly!")

		return 0
	case "link":
		// Copies the ELF header of the test binary into bin/tool.
		exe, _ := os.Executable()

		data, err := os.ReadFile(exe)
		if err != nil || len(data) < 64 {
			fmt.Fprintf(os.Stderr, "error: %v", err)

			return 1
		}

		_ = os.MkdirAll("bin", 0o750)

		err = os.WriteFile(filepath.Join("bin", "tool"), data[:64], 0o755)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v", err)

			return 1
		}

		return 0
	case "echo":
		fmt.Fprintln(os.Stdout, strings.Join(args[1:], " "))

		return 0
	case "cat":
		data, err := os.ReadFile(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v", err)

			return 1
		}

		_, _ = os.Stdout.Write(data)

		return 0
	case "warn":
		fmt.Fprintln(os.Stderr, "warnings: 1 unused variable")

		return 0
	case "getenv":
		fmt.Fprint(os.Stdout, os.Getenv(args[1]))

		return 0
	case "exit":
		code, _ := strconv.Atoi(args[1])

		return code
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q", args[0])

		return 2
	}
}

// ============================================================================
// CLI tester
// ============================================================================

// CLI provides a clean interface for running CLI commands in tests.
// It manages a temp directory and environment variables.
type CLI struct {
	t   *testing.T
	Dir string
	Env map[string]string
}

// NewCLITester creates a new test CLI with a temp directory.
// HOME and XDG_CONFIG_HOME point into Dir so the user's global config is
// never loaded.
func NewCLITester(t *testing.T) *CLI {
	t.Helper()

	dir := t.TempDir()

	return &CLI{
		t:   t,
		Dir: dir,
		Env: map[string]string{
			"HOME":            dir,
			"XDG_CONFIG_HOME": filepath.Join(dir, ".config"),
			"PATH":            os.Getenv("PATH"),
		},
	}
}

// UseFakeSubject writes a project config that makes the test binary the
// program under test.
func (c *CLI) UseFakeSubject() {
	c.t.Helper()

	exe, err := os.Executable()
	if err != nil {
		c.t.Fatalf("os.Executable: %v", err)
	}

	c.WriteJSON(".cli-sandbox.json", map[string]any{
		"executable": exe,
		"env":        map[string]string{fakeSubjectEnv: "1"},
	})
}

// Run executes the CLI with the given args and returns stdout, stderr, and exit code.
// Args should not include "cli-sandbox" or "--cwd" - those are added automatically.
func (c *CLI) Run(args ...string) (string, string, int) {
	var outBuf, errBuf bytes.Buffer

	fullArgs := append([]string{"cli-sandbox", "--cwd", c.Dir}, args...)
	code := Run(nil, &outBuf, &errBuf, fullArgs, c.Env, nil)

	return outBuf.String(), errBuf.String(), code
}

// RunWithSignal executes the CLI with a signal channel for cancellation testing.
// Returns a channel that receives the exit code when the command completes.
func (c *CLI) RunWithSignal(sigCh chan os.Signal, args ...string) <-chan int {
	done := make(chan int, 1)

	go func() {
		fullArgs := append([]string{"cli-sandbox", "--cwd", c.Dir}, args...)

		done <- Run(nil, io.Discard, io.Discard, fullArgs, c.Env, sigCh)
	}()

	return done
}

// MustRun executes the CLI and fails the test if the command returns non-zero.
// Returns trimmed stdout on success.
func (c *CLI) MustRun(args ...string) string {
	c.t.Helper()

	stdout, stderr, code := c.Run(args...)
	if code != 0 {
		c.t.Fatalf("command %v failed with exit code %d\nstdout: %s\nstderr: %s", args, code, stdout, stderr)
	}

	return strings.TrimSpace(stdout)
}

// MustFail executes the CLI and fails the test if the command succeeds.
// Returns stdout and stderr.
func (c *CLI) MustFail(args ...string) (string, string) {
	c.t.Helper()

	stdout, stderr, code := c.Run(args...)
	if code == 0 {
		c.t.Fatalf("command %v should have failed but succeeded\nstdout: %s", args, stdout)
	}

	return stdout, stderr
}

// WriteFile writes content to a file in the test directory.
func (c *CLI) WriteFile(relPath, content string) {
	c.t.Helper()

	path := filepath.Join(c.Dir, relPath)
	dir := filepath.Dir(path)

	err := os.MkdirAll(dir, 0o750)
	if err != nil {
		c.t.Fatalf("failed to create dir %s: %v", dir, err)
	}

	err = os.WriteFile(path, []byte(content), 0o644)
	if err != nil {
		c.t.Fatalf("failed to write file %s: %v", relPath, err)
	}
}

// WriteJSON marshals v into a file in the test directory.
func (c *CLI) WriteJSON(relPath string, v any) {
	c.t.Helper()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		c.t.Fatalf("failed to marshal %s: %v", relPath, err)
	}

	c.WriteFile(relPath, string(data))
}

// stripANSI removes ANSI escape codes from a string.
// Used to normalize output for comparison regardless of TTY state.
func stripANSI(s string) string {
	result := s
	for {
		start := strings.Index(result, "\033[")
		if start == -1 {
			break
		}

		end := strings.Index(result[start:], "m")
		if end == -1 {
			break
		}

		result = result[:start] + result[start+end+1:]
	}

	return result
}

// AssertContains fails the test if content doesn't contain substr.
// Strips ANSI codes from content before comparison to handle TTY/non-TTY differences.
func AssertContains(t *testing.T, content, substr string) {
	t.Helper()

	cleaned := stripANSI(content)
	if !strings.Contains(cleaned, substr) {
		t.Errorf("content should contain %q\ncontent:\n%s", substr, content)
	}
}

// AssertNotContains fails the test if content contains substr.
// Strips ANSI codes from content before comparison to handle TTY/non-TTY differences.
func AssertNotContains(t *testing.T, content, substr string) {
	t.Helper()

	cleaned := stripANSI(content)
	if strings.Contains(cleaned, substr) {
		t.Errorf("content should NOT contain %q\ncontent:\n%s", substr, content)
	}
}

func Test_NewCLITester_Seeds_Isolated_Config_Home(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)

	if c.Env["HOME"] != c.Dir {
		t.Errorf("HOME = %q, want %q", c.Env["HOME"], c.Dir)
	}

	if !strings.HasPrefix(c.Env["XDG_CONFIG_HOME"], c.Dir) {
		t.Errorf("XDG_CONFIG_HOME = %q, want inside %q", c.Env["XDG_CONFIG_HOME"], c.Dir)
	}
}

func Test_FakeSubject_Reports_Unknown_Command(t *testing.T) {
	t.Parallel()

	if code := fakeSubject([]string{"nope"}); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
}
