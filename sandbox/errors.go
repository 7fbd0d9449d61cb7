package sandbox

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/go-cmp/cmp"
)

// ErrPathEscape is returned (wrapped in an [IoError]) when a caller-supplied
// path is absolute or leaves the sandbox root through "..".
var ErrPathEscape = errors.New("path escapes sandbox root")

// IoError reports a filesystem failure while creating, writing or reading
// sandbox files (or a reference file on the caller's filesystem).
type IoError struct {
	Op   string
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("sandbox: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }

// LaunchError reports that the subject executable could not be started at
// all. A non-zero exit status is never a LaunchError.
type LaunchError struct {
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("sandbox: launching %s: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// PatternError reports a malformed match pattern.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("sandbox: pattern %q isn't valid: %v", e.Pattern, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// EncodingError reports bytes that are not valid UTF-8 where text was
// required. Wrong output is an [AssertionFailure]; garbage output is an
// EncodingError.
type EncodingError struct {
	// Subject names what was decoded, e.g. "stdout" or "file main.rs".
	Subject string
	// Offset is the byte offset of the first invalid sequence.
	Offset int
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("sandbox: %s isn't valid UTF-8 (first invalid byte at offset %d)", e.Subject, e.Offset)
}

// FailureKind classifies an [AssertionFailure].
type FailureKind string

const (
	// FailureContent means the actual text differs from the expected literal.
	FailureContent FailureKind = "content"
	// FailurePattern means the pattern matched nowhere in the actual text.
	FailurePattern FailureKind = "pattern"
	// FailureMissing means the file under test does not exist.
	FailureMissing FailureKind = "missing"
)

// AssertionFailure is the user-visible failure of an expectation. Expected
// holds the literal or the pattern text, Actual the observed text.
type AssertionFailure struct {
	Kind     FailureKind
	Subject  string
	Expected string
	Actual   string
}

func (e *AssertionFailure) Error() string {
	var b strings.Builder

	switch e.Kind {
	case FailureMissing:
		fmt.Fprintf(&b, "%s: expected file to exist with contents:\n%s", e.Subject, e.Expected)

		return b.String()
	case FailurePattern:
		fmt.Fprintf(&b, "%s: no match for pattern %q\n", e.Subject, e.Expected)
	default:
		fmt.Fprintf(&b, "%s: contents differ\n", e.Subject)
	}

	fmt.Fprintf(&b, "expected:\n%s\nactual:\n%s", e.Expected, e.Actual)

	if e.Kind == FailureContent {
		fmt.Fprintf(&b, "\ndiff (-expected +actual):\n%s", cmp.Diff(splitLines(e.Expected), splitLines(e.Actual)))
	}

	return b.String()
}

// splitLines keeps line terminators so trailing-newline differences stay
// visible in the diff.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}

	return strings.SplitAfter(s, "\n")
}

// internalErrorf reports an internal invariant violation.
//
// These errors indicate a bug in this package (or a broken caller contract),
// not a test outcome.
func internalErrorf(op, format string, args ...any) error {
	detail := fmt.Sprintf(format, args...)

	if op == "" {
		return fmt.Errorf("sandbox: internal error: %s", detail)
	}

	return fmt.Errorf("sandbox: internal error: %s: %s", op, detail)
}
