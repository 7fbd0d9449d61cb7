package sandbox

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// Environment variables read by [ResolverFromEnv].
const (
	EnvTargetDir = "CLI_SANDBOX_TARGET_DIR"
	EnvBinary    = "CLI_SANDBOX_BIN"
)

// Profile selects which build of the subject program is run. Exactly one
// profile is chosen by the caller; there is no implicit default.
type Profile int

const (
	// ProfileDebug selects the unoptimized build under <target>/debug.
	ProfileDebug Profile = iota + 1
	// ProfileRelease selects the optimized build under <target>/release.
	ProfileRelease
)

func (p Profile) String() string {
	switch p {
	case ProfileDebug:
		return "debug"
	case ProfileRelease:
		return "release"
	default:
		return fmt.Sprintf("Profile(%d)", int(p))
	}
}

// ParseProfile parses "debug" or "release" (case-insensitive). "dev" is
// accepted as an alias for debug.
func ParseProfile(s string) (Profile, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug", "dev":
		return ProfileDebug, nil
	case "release":
		return ProfileRelease, nil
	default:
		return 0, fmt.Errorf("unknown build profile %q (want debug or release)", s)
	}
}

// Resolver locates the compiled subject program inside a build output
// directory laid out as <TargetDir>/<profile>/<Binary>.
type Resolver struct {
	TargetDir string
	Binary    string
}

// ResolverFromEnv builds a Resolver from CLI_SANDBOX_TARGET_DIR and
// CLI_SANDBOX_BIN. getenv is usually os.Getenv.
func ResolverFromEnv(getenv func(string) string) Resolver {
	return Resolver{
		TargetDir: getenv(EnvTargetDir),
		Binary:    getenv(EnvBinary),
	}
}

// Resolve returns the absolute path of the subject program for profile.
func (r Resolver) Resolve(profile Profile) (string, error) {
	var errs []error

	if strings.TrimSpace(r.TargetDir) == "" {
		errs = append(errs, fmt.Errorf("build output directory is empty (set %s)", EnvTargetDir))
	}

	if strings.TrimSpace(r.Binary) == "" {
		errs = append(errs, fmt.Errorf("binary name is empty (set %s)", EnvBinary))
	}

	if profile != ProfileDebug && profile != ProfileRelease {
		errs = append(errs, fmt.Errorf("invalid build profile %s", profile))
	}

	if len(errs) > 0 {
		return "", fmt.Errorf("sandbox: resolving executable: %w", errors.Join(errs...))
	}

	name := r.Binary
	if runtime.GOOS == "windows" && filepath.Ext(name) != ".exe" {
		name += ".exe"
	}

	path, err := filepath.Abs(filepath.Join(r.TargetDir, profile.String(), name))
	if err != nil {
		return "", fmt.Errorf("sandbox: resolving executable: %w", err)
	}

	return path, nil
}
