// Package sandbox provides disposable working directories for testing
// command-line programs.
//
// A [Sandbox] owns one freshly created temporary directory. Tests write
// fixture files into it, run the program under test with the directory as its
// working directory (see [Runner]), and then assert on the resulting
// [Capture] and on the files the program produced.
//
// Example:
//
//	sb, err := sandbox.New()
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sb.Close()
//
//	_ = sb.WriteFile("main.py", "def main(): pass")
//
//	out, err := sb.Run(ctx, runner, "build")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	if err := out.WithText(sandbox.Stdout, "File transpiled correctly!"); err != nil {
//		log.Fatal(err)
//	}
//
// # Paths
//
// Every path passed to a Sandbox method is relative to [Sandbox.Dir]. Absolute
// paths and paths that leave the root through ".." are rejected with an
// [IoError] wrapping [ErrPathEscape].
//
// # Concurrency
//
// Independent sandboxes share no state and may be used from different
// goroutines. A single Sandbox is not safe for concurrent use with
// [Sandbox.Close]. [Sandbox.ScrubEnv] mutates process-wide state; see
// [EnvScope].
package sandbox

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"golang.org/x/tools/txtar"
)

// Sandbox is an isolated, disposable directory used as the working directory
// for one test's fixtures and program invocations.
//
// A Sandbox must not be copied after first use.
type Sandbox struct {
	noCopy noCopy

	dir    string
	logger *log.Logger

	closeOnce sync.Once
}

// Option configures [New].
type Option func(*options)

type options struct {
	tempRoot string
	logger   *log.Logger
}

// WithTempRoot creates the sandbox directory under root instead of the
// default temporary directory.
func WithTempRoot(root string) Option {
	return func(o *options) { o.tempRoot = root }
}

// WithLogger sets the logger used for debug output and teardown warnings.
func WithLogger(logger *log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// DefaultLogger returns the logger used when [WithLogger] is not given: it
// writes to stderr and only reports warnings and errors.
func DefaultLogger() *log.Logger {
	return log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "cli-sandbox",
		Level:  log.WarnLevel,
	})
}

// New creates a Sandbox backed by a fresh, uniquely named temporary directory.
// The directory exists and is empty when New returns.
func New(opts ...Option) (*Sandbox, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if o.logger == nil {
		o.logger = DefaultLogger()
	}

	dir, err := os.MkdirTemp(o.tempRoot, "cli-sandbox-*")
	if err != nil {
		return nil, &IoError{Op: "create", Path: o.tempRoot, Err: err}
	}

	// Resolve symlinked temp roots (e.g. /tmp -> /private/tmp on macOS) so
	// that Dir matches what the subject program sees as its cwd.
	resolved, err := filepath.EvalSymlinks(dir)
	if err != nil {
		_ = os.RemoveAll(dir)

		return nil, &IoError{Op: "create", Path: dir, Err: err}
	}

	abs, err := filepath.Abs(resolved)
	if err != nil {
		_ = os.RemoveAll(dir)

		return nil, &IoError{Op: "create", Path: resolved, Err: err}
	}

	o.logger.Debug("sandbox created", "dir", abs)

	return &Sandbox{dir: abs, logger: o.logger}, nil
}

// Dir returns the absolute path of the sandbox directory.
func (s *Sandbox) Dir() string {
	return s.dir
}

// Path resolves rel to an absolute path inside the sandbox.
func (s *Sandbox) Path(rel string) (string, error) {
	if s == nil || s.dir == "" {
		return "", internalErrorf("Path", "uninitialized sandbox (use New)")
	}

	if !filepath.IsLocal(rel) {
		return "", &IoError{Op: "resolve", Path: rel, Err: ErrPathEscape}
	}

	return filepath.Join(s.dir, rel), nil
}

// WriteFile creates or truncates rel and writes contents to it, creating
// parent directories as needed.
func (s *Sandbox) WriteFile(rel, contents string) error {
	return s.writeFile(rel, []byte(contents), 0o644)
}

// WriteExecutable is like [Sandbox.WriteFile] but marks the file executable.
// The file is synced before it is closed so that it can be executed
// immediately without "text file busy" errors.
func (s *Sandbox) WriteExecutable(rel, contents string) error {
	path, err := s.mkParent(rel)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return &IoError{Op: "write", Path: rel, Err: err}
	}

	_, err = f.WriteString(contents)
	if err == nil {
		err = f.Sync()
	}

	closeErr := f.Close()

	err = errors.Join(err, closeErr)
	if err != nil {
		return &IoError{Op: "write", Path: rel, Err: err}
	}

	// WriteFile-style O_TRUNC keeps the old mode of an existing file.
	err = os.Chmod(path, 0o755)
	if err != nil {
		return &IoError{Op: "chmod", Path: rel, Err: err}
	}

	return nil
}

func (s *Sandbox) writeFile(rel string, data []byte, perm fs.FileMode) error {
	path, err := s.mkParent(rel)
	if err != nil {
		return err
	}

	err = os.WriteFile(path, data, perm)
	if err != nil {
		return &IoError{Op: "write", Path: rel, Err: err}
	}

	return nil
}

func (s *Sandbox) mkParent(rel string) (string, error) {
	path, err := s.Path(rel)
	if err != nil {
		return "", err
	}

	err = os.MkdirAll(filepath.Dir(path), 0o750)
	if err != nil {
		return "", &IoError{Op: "mkdir", Path: filepath.Dir(rel), Err: err}
	}

	return path, nil
}

// WriteArchive writes every member of a as a file in the sandbox. Member
// names are sandbox-relative paths.
func (s *Sandbox) WriteArchive(a *txtar.Archive) error {
	for _, f := range a.Files {
		err := s.writeFile(f.Name, f.Data, 0o644)
		if err != nil {
			return err
		}
	}

	return nil
}

// WriteArchiveFile parses the txtar archive at path (on the caller's
// filesystem) and writes its members into the sandbox.
func (s *Sandbox) WriteArchiveFile(path string) error {
	a, err := txtar.ParseFile(path)
	if err != nil {
		return &IoError{Op: "read", Path: path, Err: err}
	}

	return s.WriteArchive(a)
}

// ReadFile returns the raw contents of rel.
func (s *Sandbox) ReadFile(rel string) ([]byte, error) {
	path, err := s.Path(rel)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IoError{Op: "read", Path: rel, Err: err}
	}

	return data, nil
}

// FileExists reports whether rel exists (following symlinks).
func (s *Sandbox) FileExists(rel string) bool {
	path, err := s.Path(rel)
	if err != nil {
		return false
	}

	_, err = os.Stat(path)

	return err == nil
}

// AssertFileContents checks that rel exists, is valid UTF-8 and equals
// expected byte for byte.
//
// A missing file is an [AssertionFailure] of kind [FailureMissing]; invalid
// UTF-8 is an [EncodingError]; other read failures are returned as [IoError].
func (s *Sandbox) AssertFileContents(rel, expected string) error {
	subject := "file " + rel

	data, err := s.ReadFile(rel)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &AssertionFailure{Kind: FailureMissing, Subject: subject, Expected: expected}
		}

		return err
	}

	return MatchText(subject, data, expected)
}

// IsExecutableFormat reports whether rel starts with a known executable magic
// number (see [Formats]). It never fails.
func (s *Sandbox) IsExecutableFormat(rel string) bool {
	path, err := s.Path(rel)
	if err != nil {
		return false
	}

	return IsExecutableFile(path)
}

// Symlink creates a symbolic link at dst pointing to src. Both are
// sandbox-relative; the link stores the absolute path of src.
//
// Link creation failure (for example, missing privileges on Windows) is a
// setup error for the test, not an outcome to assert on.
func (s *Sandbox) Symlink(src, dst string) error {
	srcPath, err := s.Path(src)
	if err != nil {
		return err
	}

	dstPath, err := s.mkParent(dst)
	if err != nil {
		return err
	}

	err = symlink(srcPath, dstPath)
	if err != nil {
		return &IoError{Op: "symlink", Path: dst, Err: err}
	}

	return nil
}

// ScrubEnv removes every process environment variable whose name starts with
// prefix, evaluated with the sandbox directory as cwd. See [ScrubEnv].
func (s *Sandbox) ScrubEnv(prefix string) (*EnvScope, error) {
	return ScrubEnv(s.dir, prefix)
}

// Run invokes r with args in the sandbox directory.
func (s *Sandbox) Run(ctx context.Context, r *Runner, args ...string) (*Capture, error) {
	if r == nil {
		return nil, internalErrorf("Run", "nil runner")
	}

	s.logger.Debug("running", "exe", r.Path(), "args", args, "dir", s.dir)

	return r.Run(ctx, s.dir, args...)
}

// Close removes the sandbox directory and everything in it. Removal failures
// are logged and otherwise ignored; the OS temp cleaner reclaims leftovers.
// Close is idempotent and always returns nil.
func (s *Sandbox) Close() error {
	s.closeOnce.Do(func() {
		err := os.RemoveAll(s.dir)
		if err != nil {
			s.logger.Warn("failed to remove sandbox", "dir", s.dir, "error", err)

			return
		}

		s.logger.Debug("sandbox removed", "dir", s.dir)
	})

	return nil
}

// Leak returns the directory and disarms Close, leaving the sandbox on disk
// for inspection after a failure.
func (s *Sandbox) Leak() string {
	s.closeOnce.Do(func() {
		s.logger.Info("keeping sandbox", "dir", s.dir)
	})

	return s.dir
}

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
