package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"
)

// ErrSilentExit signals a non-zero exit whose reason was already printed.
var ErrSilentExit = errors.New("silent exit")

// Command is one sub-command of the CLI.
type Command struct {
	Flags   *flag.FlagSet
	Usage   string // e.g. "run [flags] <case>..."
	Short   string // one-line description for the command list
	Long    string // full description for --help
	Aliases []string
	Exec    func(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error
}

// Name returns the first word of Usage.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")

	return name
}

// HelpLine returns the entry shown in the global command list.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-22s %s", c.Usage, c.Short)
}

// PrintHelp writes the command's usage, description and flags.
func (c *Command) PrintHelp(output io.Writer) {
	fprintln(output, "Usage: cli-sandbox", c.Usage)
	fprintln(output)
	fprintln(output, c.Long)
	fprintln(output)
	fprintln(output, "Flags:")
	fprint(output, c.Flags.FlagUsages())
}

// Run parses args and executes the command. Returns the exit code.
func (c *Command) Run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) int {
	c.Flags.SetOutput(&strings.Builder{})
	c.Flags.Usage = func() {}

	err := c.Flags.Parse(args)
	if err != nil {
		fprintError(stderr, err)
		fprintln(stderr)
		c.PrintHelp(stderr)

		return 1
	}

	if help, _ := c.Flags.GetBool("help"); help {
		c.PrintHelp(stdout)

		return 0
	}

	err = c.Exec(ctx, stdin, stdout, stderr, c.Flags.Args())
	if err != nil {
		if !errors.Is(err, ErrSilentExit) {
			fprintError(stderr, err)
		}

		return 1
	}

	return 0
}
