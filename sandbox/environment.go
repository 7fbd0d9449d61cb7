package sandbox

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// envMu serializes environment scopes. The process environment and working
// directory are global, so at most one scope may be held at a time.
var envMu sync.Mutex

// EnvScope records the variables removed by [ScrubEnv] and puts them back on
// [EnvScope.Restore].
//
// Holding a scope is a single-writer precondition on the whole process: no
// other sandbox may run programs, touch files by relative path or call
// ScrubEnv until Restore returns. Acquire a scope before creating other
// sandboxes, or serialize their use with it.
type EnvScope struct {
	removed map[string]string
	once    sync.Once
}

// ScrubEnv removes every process environment variable whose name starts with
// prefix and returns a scope that restores them.
//
// The working directory is switched to dir while the environment is read so
// that directory-conditional definitions are evaluated as the subject program
// would see them; the original working directory is restored before ScrubEnv
// returns. ScrubEnv blocks while another scope is held.
func ScrubEnv(dir, prefix string) (*EnvScope, error) {
	if prefix == "" {
		return nil, errors.New("sandbox: scrub env: empty prefix would remove the whole environment")
	}

	envMu.Lock()

	scope, err := scrubLocked(dir, prefix)
	if err != nil {
		envMu.Unlock()

		return nil, err
	}

	return scope, nil
}

func scrubLocked(dir, prefix string) (scope *EnvScope, err error) {
	originalWd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("sandbox: scrub env: get working directory: %w", err)
	}

	err = os.Chdir(dir)
	if err != nil {
		return nil, fmt.Errorf("sandbox: scrub env: enter %s: %w", dir, err)
	}

	defer func() {
		chdirErr := os.Chdir(originalWd)
		if chdirErr != nil {
			err = errors.Join(err, fmt.Errorf("sandbox: scrub env: restore working directory %s: %w", originalWd, chdirErr))
		}
	}()

	scope = &EnvScope{removed: make(map[string]string)}

	var errs []error

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" || !strings.HasPrefix(key, prefix) {
			continue
		}

		unsetErr := os.Unsetenv(key)
		if unsetErr != nil {
			errs = append(errs, fmt.Errorf("unset %s: %w", key, unsetErr))

			continue
		}

		scope.removed[key] = value
	}

	if len(errs) > 0 {
		restoreErr := scope.restoreVars()

		return nil, fmt.Errorf("sandbox: scrub env: %w", errors.Join(append(errs, restoreErr)...))
	}

	return scope, nil
}

// Removed returns the sorted names of the variables this scope removed.
func (e *EnvScope) Removed() []string {
	names := make([]string, 0, len(e.removed))
	for k := range e.removed {
		names = append(names, k)
	}

	sort.Strings(names)

	return names
}

// Restore sets the removed variables back to their original values and
// releases the process-wide scope lock. It is safe to call more than once;
// only the first call has an effect.
func (e *EnvScope) Restore() error {
	var err error

	e.once.Do(func() {
		defer envMu.Unlock()

		err = e.restoreVars()
	})

	return err
}

func (e *EnvScope) restoreVars() error {
	var errs []error

	for _, k := range e.Removed() {
		setErr := os.Setenv(k, e.removed[k])
		if setErr != nil {
			errs = append(errs, fmt.Errorf("sandbox: restore env %s: %w", k, setErr))
		}
	}

	return errors.Join(errs...)
}
