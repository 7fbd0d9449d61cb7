package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ErrEmptyPath is returned when an empty path is provided.
var ErrEmptyPath = errors.New("empty path")

// ErrNoCaseFiles is returned when a case glob matches nothing.
var ErrNoCaseFiles = errors.New("no case files match")

// ResolvePath converts a user-supplied path to an absolute path.
//
// Resolution rules:
//   - ~ at start expands to homeDir
//   - Absolute paths resolve as-is
//   - Relative paths resolve against workDir
//   - Resulting paths are always cleaned (no .., .)
//   - Environment variables ($HOME, $USER, etc.) are NOT expanded (treated as literal)
func ResolvePath(path, homeDir, workDir string) (string, error) {
	if path == "" {
		return "", ErrEmptyPath
	}

	var resolved string

	switch {
	case path == "~":
		resolved = homeDir
	case strings.HasPrefix(path, "~/"):
		resolved = filepath.Join(homeDir, path[2:])
	case filepath.IsAbs(path):
		resolved = path
	default:
		resolved = filepath.Join(workDir, path)
	}

	return filepath.Clean(resolved), nil
}

// ExpandCaseGlob expands a case file argument. Arguments without glob
// metacharacters (*, ?, []) are returned as-is; existence is checked when the
// case is loaded. A glob matching nothing is an error so a typo cannot turn
// into an empty, passing run.
func ExpandCaseGlob(pattern string) ([]string, error) {
	if !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}

	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("%w %q", ErrNoCaseFiles, pattern)
	}

	sort.Strings(matches)

	return matches, nil
}
