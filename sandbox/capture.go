package sandbox

import (
	"bytes"
	"fmt"
	"os"
	"syscall"
)

// Stream selects one of the captured output streams.
type Stream int

const (
	// Stdout is the program's standard output.
	Stdout Stream = iota + 1
	// Stderr is the program's standard error.
	Stderr
)

func (s Stream) String() string {
	switch s {
	case Stdout:
		return "stdout"
	case Stderr:
		return "stderr"
	default:
		return fmt.Sprintf("Stream(%d)", int(s))
	}
}

// WarningMarker is the text [Capture.Warns] looks for.
const WarningMarker = "warnings:"

// Capture is the recorded result of one program invocation. It is immutable:
// accessors return copies.
//
// Literal ([Capture.WithText], [Capture.WithFile]) and pattern
// ([Capture.WithPattern]) assertions are both available on every Capture, so
// one test can mix exact and fuzzy checks.
type Capture struct {
	stdout   []byte
	stderr   []byte
	exitCode int
	signaled bool
}

func newCapture(stdout, stderr []byte, state *os.ProcessState) *Capture {
	c := &Capture{
		stdout:   bytes.Clone(stdout),
		stderr:   bytes.Clone(stderr),
		exitCode: -1,
	}

	if state == nil {
		return c
	}

	c.exitCode = state.ExitCode()

	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		c.signaled = true
		c.exitCode = -1
	}

	return c
}

// NewCapture builds a Capture from already collected output. It is meant for
// callers that run programs themselves and only want the matchers.
func NewCapture(stdout, stderr []byte, exitCode int) *Capture {
	return &Capture{stdout: bytes.Clone(stdout), stderr: bytes.Clone(stderr), exitCode: exitCode}
}

// Stdout returns a copy of the captured standard output.
func (c *Capture) Stdout() []byte { return bytes.Clone(c.stdout) }

// Stderr returns a copy of the captured standard error.
func (c *Capture) Stderr() []byte { return bytes.Clone(c.stderr) }

// ExitCode returns the exit status, or -1 if the program was killed by a
// signal.
func (c *Capture) ExitCode() int { return c.exitCode }

// Signaled reports whether the program was terminated by a signal.
func (c *Capture) Signaled() bool { return c.signaled }

// Success reports whether the program exited with status 0.
func (c *Capture) Success() bool { return !c.signaled && c.exitCode == 0 }

func (c *Capture) bytes(s Stream) []byte {
	switch s {
	case Stdout:
		return c.stdout
	case Stderr:
		return c.stderr
	default:
		panic(fmt.Sprintf("sandbox: unknown stream %d", int(s)))
	}
}

// Text decodes stream as UTF-8.
func (c *Capture) Text(s Stream) (string, error) {
	return decodeText(s.String(), c.bytes(s))
}

// WithText checks that stream equals expected exactly. Output that is not
// valid UTF-8 is reported as an [EncodingError], a mismatch as an
// [AssertionFailure].
func (c *Capture) WithText(s Stream, expected string) error {
	return MatchText(s.String(), c.bytes(s), expected)
}

// WithPattern checks that pattern matches somewhere in stream; it does not
// need to match the whole output. A malformed pattern is a [PatternError].
func (c *Capture) WithPattern(s Stream, pattern string) error {
	return MatchPattern(s.String(), c.bytes(s), pattern)
}

// WithFile checks stream against the contents of refPath, a file on the
// caller's filesystem (not inside any sandbox).
func (c *Capture) WithFile(s Stream, refPath string) error {
	expected, err := os.ReadFile(refPath)
	if err != nil {
		return &IoError{Op: "read", Path: refPath, Err: err}
	}

	return c.WithText(s, string(expected))
}

// IsEmpty reports whether stream has no bytes. It does not decode, so it is
// safe on binary output.
func (c *Capture) IsEmpty(s Stream) bool {
	return len(c.bytes(s)) == 0
}

// ContainsMarker reports whether marker occurs in stream.
func (c *Capture) ContainsMarker(s Stream, marker string) bool {
	return bytes.Contains(c.bytes(s), []byte(marker))
}

// Warns reports whether stream contains [WarningMarker].
func (c *Capture) Warns(s Stream) bool {
	return c.ContainsMarker(s, WarningMarker)
}
