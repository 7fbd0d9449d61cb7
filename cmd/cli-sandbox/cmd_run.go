package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/cli-sandbox/sandbox"
)

// RunCmd creates the run command, which executes case files.
func RunCmd(cfg *Config, logger *log.Logger) *Command {
	flags := flag.NewFlagSet("run", flag.ContinueOnError)
	flags.BoolP("help", "h", false, "Show help")
	flags.String("profile", "", "Build `profile` of the program under test (debug, release)")
	flags.String("executable", "", "Run this `file` instead of resolving from the build output")
	flags.BoolP("quiet", "q", false, "Only report failing cases")
	flags.Bool("keep", false, "Keep each sandbox on disk and print its path")

	return &Command{
		Flags: flags,
		Usage: "run [flags] <case>...",
		Short: "Run case files against the program under test",
		Long: `Run each case file in a fresh sandbox directory.

A case writes fixture files, creates symlinks, optionally scrubs environment
variables, runs the program once with the given arguments and checks the exit
code, both output streams and the files left behind.

The program is taken from --executable, the "executable" config key, or
<target_dir>/<profile>/<binary> (CLI_SANDBOX_TARGET_DIR, CLI_SANDBOX_BIN).
Exits 0 if every case passes, 1 otherwise.`,
		Aliases: []string{"r"},
		Exec: func(ctx context.Context, _ io.Reader, stdout, stderr io.Writer, args []string) error {
			if len(args) == 0 {
				return errors.New("run: at least one case file is required")
			}

			profileFlag, _ := flags.GetString("profile")
			exeFlag, _ := flags.GetString("executable")
			quiet, _ := flags.GetBool("quiet")
			keep, _ := flags.GetBool("keep")

			exe, profile, err := cfg.ResolveExecutable(profileFlag, exeFlag)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}

			logger.Debug("resolved program under test", "path", exe, "profile", profile)

			cr := &caseRunner{
				workDir:     cfg.EffectiveCwd,
				homeDir:     cfg.HomeDir,
				exe:         exe,
				env:         cfg.Env,
				scrubPrefix: cfg.ScrubEnvPrefix,
				keep:        keep,
				newSandbox: func() (*sandbox.Sandbox, error) {
					return sandbox.New(sandbox.WithLogger(logger))
				},
			}

			return runCases(ctx, cr, NewReporter(stdout, IsTerminal()), stderr, args, quiet)
		},
	}
}

func runCases(ctx context.Context, cr *caseRunner, rep *Reporter, stderr io.Writer, args []string, quiet bool) error {
	var paths []string

	for _, arg := range args {
		resolved, err := ResolvePath(arg, cr.homeDir, cr.workDir)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}

		matches, err := ExpandCaseGlob(resolved)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}

		paths = append(paths, matches...)
	}

	passed := 0

	for _, path := range paths {
		err := ctx.Err()
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}

		c, err := LoadCase(path)
		if err != nil {
			fprintError(stderr, err)

			continue
		}

		res := cr.Run(ctx, c)
		if res.Passed() {
			passed++
		}

		if !quiet || !res.Passed() {
			rep.Result(res, cr.keep)
		}
	}

	rep.Summary(passed, len(paths))

	if passed != len(paths) {
		return ErrSilentExit
	}

	return nil
}
