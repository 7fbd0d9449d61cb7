package main

import (
	"context"
	"errors"
	"io"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/cli-sandbox/sandbox"
)

// ClassifyCmd creates the classify command, which reports the executable
// format of files by their magic number.
func ClassifyCmd(cfg *Config) *Command {
	flags := flag.NewFlagSet("classify", flag.ContinueOnError)
	flags.BoolP("help", "h", false, "Show help")

	return &Command{
		Flags:   flags,
		Usage:   "classify <path>...",
		Short:   "Report the executable format of files",
		Long:    "Print the executable format (elf, pe-mz, macho-64, ...) of each file, judged by its leading bytes.\nExits 1 if any file is not a recognized executable.",
		Aliases: []string{},
		Exec: func(_ context.Context, _ io.Reader, stdout, _ io.Writer, args []string) error {
			if len(args) == 0 {
				return errors.New("classify: at least one path is required")
			}

			allExecutable := true

			for _, path := range args {
				full := path
				if !filepath.IsAbs(full) {
					full = filepath.Join(cfg.EffectiveCwd, full)
				}

				format, ok := sandbox.ClassifyFile(full)
				if !ok {
					allExecutable = false

					fprintf(stdout, "%s: not executable\n", path)

					continue
				}

				fprintf(stdout, "%s: %s\n", path, format.Name)
			}

			if !allExecutable {
				return ErrSilentExit
			}

			return nil
		},
	}
}
