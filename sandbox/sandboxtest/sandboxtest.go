// Package sandboxtest adapts the sandbox package to Go tests.
//
// Every helper takes a [testing.TB], calls t.Helper and turns sandbox errors
// into test failures: setup steps (creating, writing, linking, launching)
// fail the test immediately with t.Fatalf, assertions report with t.Errorf so
// one test can surface several mismatches.
package sandboxtest

import (
	"errors"
	"os"
	"testing"

	"github.com/calvinalkan/cli-sandbox/sandbox"
)

// New creates a sandbox that is removed when the test ends. If the test
// failed and CLI_SANDBOX_KEEP is set, the directory is kept and its path
// logged.
func New(t testing.TB, opts ...sandbox.Option) *sandbox.Sandbox {
	t.Helper()

	sb, err := sandbox.New(opts...)
	if err != nil {
		t.Fatalf("failed to create sandbox: %v", err)
	}

	t.Cleanup(func() {
		if t.Failed() && os.Getenv("CLI_SANDBOX_KEEP") != "" {
			t.Logf("keeping sandbox %s", sb.Leak())

			return
		}

		_ = sb.Close()
	})

	return sb
}

// Runner resolves the subject program for profile from CLI_SANDBOX_TARGET_DIR
// and CLI_SANDBOX_BIN. Skips the test if either is unset.
func Runner(t testing.TB, profile sandbox.Profile, opts ...sandbox.RunnerOption) *sandbox.Runner {
	t.Helper()

	resolver := sandbox.ResolverFromEnv(os.Getenv)
	if resolver.TargetDir == "" || resolver.Binary == "" {
		t.Skipf("%s and %s must be set to locate the program under test", sandbox.EnvTargetDir, sandbox.EnvBinary)
	}

	path, err := resolver.Resolve(profile)
	if err != nil {
		t.Fatalf("failed to resolve program under test: %v", err)
	}

	return sandbox.NewRunner(path, opts...)
}

// MustWriteFile writes a fixture file or fails the test.
func MustWriteFile(t testing.TB, sb *sandbox.Sandbox, rel, contents string) {
	t.Helper()

	err := sb.WriteFile(rel, contents)
	if err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
}

// MustWriteExecutable writes an executable fixture or fails the test.
func MustWriteExecutable(t testing.TB, sb *sandbox.Sandbox, rel, contents string) {
	t.Helper()

	err := sb.WriteExecutable(rel, contents)
	if err != nil {
		t.Fatalf("failed to write executable %s: %v", rel, err)
	}
}

// MustReadFile reads a sandbox file or fails the test.
func MustReadFile(t testing.TB, sb *sandbox.Sandbox, rel string) string {
	t.Helper()

	data, err := sb.ReadFile(rel)
	if err != nil {
		t.Fatalf("failed to read %s: %v", rel, err)
	}

	return string(data)
}

// MustSymlink creates dst -> src or aborts the test; a platform that refuses
// to create links cannot run the test at all.
func MustSymlink(t testing.TB, sb *sandbox.Sandbox, src, dst string) {
	t.Helper()

	err := sb.Symlink(src, dst)
	if err != nil {
		t.Fatalf("failed to create symlink %s -> %s: %v", dst, src, err)
	}
}

// ScrubEnv removes environment variables starting with prefix for the rest
// of the test. The test must not run in parallel with other tests.
func ScrubEnv(t testing.TB, sb *sandbox.Sandbox, prefix string) *sandbox.EnvScope {
	t.Helper()

	scope, err := sb.ScrubEnv(prefix)
	if err != nil {
		t.Fatalf("failed to scrub %s* from environment: %v", prefix, err)
	}

	t.Cleanup(func() {
		restoreErr := scope.Restore()
		if restoreErr != nil {
			t.Errorf("failed to restore environment: %v", restoreErr)
		}
	})

	return scope
}

// Run invokes r in the sandbox and fails the test if the program could not be
// started. A non-zero exit status is returned in the Capture, not reported.
func Run(t testing.TB, sb *sandbox.Sandbox, r *sandbox.Runner, args ...string) *sandbox.Capture {
	t.Helper()

	out, err := sb.Run(t.Context(), r, args...)
	if err != nil {
		t.Fatalf("failed to run %s %v: %v", r.Path(), args, err)
	}

	return out
}

// AssertFileContents reports a mismatch between rel and expected.
func AssertFileContents(t testing.TB, sb *sandbox.Sandbox, rel, expected string) {
	t.Helper()

	report(t, sb.AssertFileContents(rel, expected))
}

// AssertText reports a mismatch between stream and expected.
func AssertText(t testing.TB, out *sandbox.Capture, s sandbox.Stream, expected string) {
	t.Helper()

	report(t, out.WithText(s, expected))
}

// AssertPattern reports when pattern matches nowhere in stream.
func AssertPattern(t testing.TB, out *sandbox.Capture, s sandbox.Stream, pattern string) {
	t.Helper()

	report(t, out.WithPattern(s, pattern))
}

// AssertFile reports a mismatch between stream and the reference file.
func AssertFile(t testing.TB, out *sandbox.Capture, s sandbox.Stream, refPath string) {
	t.Helper()

	report(t, out.WithFile(s, refPath))
}

// AssertEmpty reports when stream has output.
func AssertEmpty(t testing.TB, out *sandbox.Capture, s sandbox.Stream) {
	t.Helper()

	if !out.IsEmpty(s) {
		t.Errorf("expected empty %s, got:\n%q", s, bytesOf(out, s))
	}
}

// AssertExitCode reports an unexpected exit status.
func AssertExitCode(t testing.TB, out *sandbox.Capture, want int) {
	t.Helper()

	if got := out.ExitCode(); got != want {
		t.Errorf("expected exit code %d, got %d\nstderr: %s", want, got, out.Stderr())
	}
}

// report routes an assertion error: mismatches are recoverable test
// failures; broken patterns, garbage output and I/O errors stop the test.
func report(t testing.TB, err error) {
	t.Helper()

	if err == nil {
		return
	}

	var failure *sandbox.AssertionFailure
	if errors.As(err, &failure) {
		t.Error(err)

		return
	}

	t.Fatal(err)
}

func bytesOf(out *sandbox.Capture, s sandbox.Stream) []byte {
	if s == sandbox.Stderr {
		return out.Stderr()
	}

	return out.Stdout()
}
