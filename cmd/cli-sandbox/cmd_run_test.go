package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const transpileCase = `{
	// The canonical transpile scenario.
	"files": {"main.py": "def main(): pass"},
	"args": ["build"],
	"expect": {
		"exit_code": 0,
		"stdout": {"text": "File transpiled correctly!"},
		"stderr": {"empty": true},
		"files": {"main.rs": "fn main() {}\n"},
	},
}`

func Test_RunCmd_Passes_When_Transpile_Case_Holds(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	c.UseFakeSubject()
	c.WriteFile("transpile.jsonc", transpileCase)

	stdout := c.MustRun("run", "transpile.jsonc")

	AssertContains(t, stdout, "PASS")
	AssertContains(t, stdout, "transpile.jsonc")
	AssertContains(t, stdout, "1 passed")
}

func Test_RunCmd_Fails_With_Diff_When_Output_Differs(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	c.UseFakeSubject()
	c.WriteJSON("echo.json", map[string]any{
		"args": []string{"echo", "hello"},
		"expect": map[string]any{
			"stdout": map[string]any{"text": "goodbye\n"},
		},
	})

	stdout, _ := c.MustFail("run", "echo.json")

	AssertContains(t, stdout, "FAIL")
	AssertContains(t, stdout, "stdout: contents differ")
	AssertContains(t, stdout, "diff (-expected +actual)")
	AssertContains(t, stdout, "1 failed")
}

func Test_RunCmd_Reports_Every_Failed_Expectation(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	c.UseFakeSubject()
	c.WriteJSON("exit.json", map[string]any{
		"args": []string{"exit", "3"},
		"expect": map[string]any{
			"exit_code": 0,
			"stdout":    map[string]any{"empty": false},
			"files":     map[string]string{"out.txt": "x"},
		},
	})

	stdout, _ := c.MustFail("run", "exit.json")

	AssertContains(t, stdout, "exit code: expected 0, got 3")
	AssertContains(t, stdout, "stdout: expected output, got none")
	AssertContains(t, stdout, "file out.txt: expected file to exist")
}

func Test_RunCmd_Matches_Pattern_And_Warnings(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	c.UseFakeSubject()
	c.WriteJSON("warn.json", map[string]any{
		"args": []string{"warn"},
		"expect": map[string]any{
			"stdout": map[string]any{"empty": true, "warns": false},
			"stderr": map[string]any{"pattern": `\d+ unused`, "warns": true},
		},
	})

	stdout := c.MustRun("run", "warn.json")

	AssertContains(t, stdout, "PASS")
}

func Test_RunCmd_Rejects_Invalid_Pattern_Before_Running(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	c.UseFakeSubject()
	c.WriteJSON("bad.json", map[string]any{
		"files": map[string]string{"marker": "x"},
		"args":  []string{"echo", "hi"},
		"expect": map[string]any{
			"stdout": map[string]any{"pattern": "("},
		},
	})

	stdout, stderr := c.MustFail("run", "bad.json")

	AssertContains(t, stderr, "bad.json")
	AssertContains(t, stderr, "pattern")
	AssertNotContains(t, stdout, "PASS")
	AssertContains(t, stdout, "0 passed, 1 failed")
}

func Test_RunCmd_Rejects_Unknown_Case_Fields(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	c.UseFakeSubject()
	c.WriteFile("typo.jsonc", `{"argz": ["echo"]}`)

	_, stderr := c.MustFail("run", "typo.jsonc")

	AssertContains(t, stderr, "argz")
}

func Test_RunCmd_Writes_Archive_And_Compares_Reference_File(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	c.UseFakeSubject()
	c.WriteFile("cases/fixtures.txtar", `-- docs/readme.txt --
hello from the archive
`)
	c.WriteFile("cases/expected.txt", "hello from the archive\n")
	c.WriteJSON("cases/archive.json", map[string]any{
		"archive": "fixtures.txtar",
		"args":    []string{"cat", "docs/readme.txt"},
		"expect": map[string]any{
			"stdout": map[string]any{"file": "expected.txt"},
			"files":  map[string]string{"docs/readme.txt": "hello from the archive\n"},
		},
	})

	stdout := c.MustRun("run", filepath.Join("cases", "archive.json"))

	AssertContains(t, stdout, "PASS")
}

func Test_RunCmd_Creates_Symlinks(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	c.UseFakeSubject()
	c.WriteJSON("link.json", map[string]any{
		"files":    map[string]string{"real.txt": "linked"},
		"symlinks": []map[string]string{{"src": "real.txt", "dst": "alias.txt"}},
		"args":     []string{"cat", "alias.txt"},
		"expect": map[string]any{
			"stdout": map[string]any{"text": "linked"},
		},
	})

	stdout := c.MustRun("run", "link.json")

	AssertContains(t, stdout, "PASS")
}

func Test_RunCmd_Checks_Executable_Format(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	c.UseFakeSubject()
	c.WriteJSON("exe.json", map[string]any{
		"files": map[string]string{"notes.txt": "plain"},
		"args":  []string{"link"},
		"expect": map[string]any{
			"exit_code":   0,
			"executables": []string{"bin/tool", "notes.txt"},
		},
	})

	stdout, _ := c.MustFail("run", "exe.json")

	AssertContains(t, stdout, "file notes.txt: not a recognized executable format")
	AssertNotContains(t, stdout, "file bin/tool:")
}

func Test_RunCmd_Passes_Case_Env_To_Program(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	c.UseFakeSubject()
	c.WriteJSON("env.json", map[string]any{
		"env":  map[string]string{"GREETING": "hi there"},
		"args": []string{"getenv", "GREETING"},
		"expect": map[string]any{
			"stdout": map[string]any{"text": "hi there"},
		},
	})

	c.MustRun("run", "env.json")
}

// Scrubbing changes the process environment and working directory, so this
// test must not run in parallel.
func Test_RunCmd_Scrubs_Environment_Prefix(t *testing.T) {
	t.Setenv("CLI_SANDBOX_TEST_SECRET", "leak")

	c := NewCLITester(t)
	c.UseFakeSubject()
	c.WriteJSON("scrub.json", map[string]any{
		"scrub_env_prefix": "CLI_SANDBOX_TEST_",
		"args":             []string{"getenv", "CLI_SANDBOX_TEST_SECRET"},
		"expect": map[string]any{
			"stdout": map[string]any{"empty": true},
		},
	})

	stdout := c.MustRun("run", "scrub.json")

	AssertContains(t, stdout, "scrubbed: CLI_SANDBOX_TEST_SECRET")

	if got := os.Getenv("CLI_SANDBOX_TEST_SECRET"); got != "leak" {
		t.Errorf("variable not restored after run, got %q", got)
	}
}

func Test_RunCmd_Quiet_Omits_Passing_Cases(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	c.UseFakeSubject()
	c.WriteFile("transpile.jsonc", transpileCase)

	stdout := c.MustRun("run", "--quiet", "transpile.jsonc")

	AssertNotContains(t, stdout, "PASS")
	AssertContains(t, stdout, "1 passed")
}

func Test_RunCmd_Keep_Leaves_Sandbox_On_Disk(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	c.UseFakeSubject()
	c.WriteFile("transpile.jsonc", transpileCase)

	stdout := stripANSI(c.MustRun("run", "--keep", "transpile.jsonc"))

	_, dir, ok := strings.Cut(stdout, "sandbox kept at ")
	if !ok {
		t.Fatalf("no kept path in output:\n%s", stdout)
	}

	dir, _, _ = strings.Cut(dir, "\n")

	t.Cleanup(func() { _ = os.RemoveAll(dir) })

	data, err := os.ReadFile(filepath.Join(dir, "main.rs"))
	if err != nil {
		t.Fatalf("kept sandbox missing output: %v", err)
	}

	if string(data) != "fn main() {}\n" {
		t.Errorf("main.rs = %q", data)
	}
}

func Test_RunCmd_Reports_Launch_Error_When_Executable_Missing(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	c.WriteFile("transpile.jsonc", transpileCase)

	stdout, _ := c.MustFail("run", "--executable", filepath.Join(c.Dir, "missing"), "transpile.jsonc")

	AssertContains(t, stdout, "ERROR")
	AssertContains(t, stdout, "missing")
}

func Test_RunCmd_Fails_When_Program_Cannot_Be_Resolved(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	c.WriteFile("transpile.jsonc", transpileCase)

	_, stderr := c.MustFail("run", "transpile.jsonc")

	AssertContains(t, stderr, "CLI_SANDBOX_TARGET_DIR")
}

func Test_RunCmd_Resolves_Program_From_Build_Output(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	c.WriteFile("transpile.jsonc", transpileCase)
	c.Env["CLI_SANDBOX_TARGET_DIR"] = filepath.Join(c.Dir, "target")
	c.Env["CLI_SANDBOX_BIN"] = "subject"

	// Nothing is built, so the run fails to launch target/release/subject.
	stdout, _ := c.MustFail("run", "--profile", "release", "transpile.jsonc")

	AssertContains(t, stdout, filepath.Join("target", "release", "subject"))
}

func Test_RunCmd_Requires_Case_Files(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	c.UseFakeSubject()

	_, stderr := c.MustFail("run")

	AssertContains(t, stderr, "at least one case file")
}

func Test_RunCmd_Expands_Case_Globs(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	c.UseFakeSubject()
	c.WriteFile("cases/one.jsonc", transpileCase)
	c.WriteFile("cases/two.jsonc", transpileCase)

	stdout := c.MustRun("run", "cases/*.jsonc")

	AssertContains(t, stdout, "one.jsonc")
	AssertContains(t, stdout, "two.jsonc")
	AssertContains(t, stdout, "2 passed")
}

func Test_RunCmd_Fails_When_Glob_Matches_Nothing(t *testing.T) {
	t.Parallel()

	c := NewCLITester(t)
	c.UseFakeSubject()

	_, stderr := c.MustFail("run", "cases/*.jsonc")

	AssertContains(t, stderr, "no case files match")
}
