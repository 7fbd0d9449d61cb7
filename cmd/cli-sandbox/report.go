package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"
)

// newLogger returns the logger handed to every sandbox. Warnings (failed
// teardown) are always shown; debug adds creation, runs and cleanup.
func newLogger(output io.Writer, debug bool) *log.Logger {
	level := log.WarnLevel
	if debug {
		level = log.DebugLevel
	}

	return log.NewWithOptions(output, log.Options{
		Prefix: "cli-sandbox",
		Level:  level,
	})
}

// Reporter writes the human-readable result of a run.
// If output is nil, all methods are no-ops.
type Reporter struct {
	output io.Writer
	color  bool
}

// NewReporter creates a reporter writing to output.
func NewReporter(output io.Writer, color bool) *Reporter {
	return &Reporter{output: output, color: color}
}

// Section outputs a section header.
func (r *Reporter) Section(name string) {
	if r.output == nil {
		return
	}

	_, _ = fmt.Fprintf(r.output, "\n=== %s ===\n", name)
}

// Logf outputs a formatted line.
func (r *Reporter) Logf(format string, args ...any) {
	if r.output == nil {
		return
	}

	_, _ = fmt.Fprintf(r.output, format+"\n", args...)
}

// Bulletf outputs an indented bullet point item. Continuation lines are
// indented to line up under the first.
func (r *Reporter) Bulletf(format string, args ...any) {
	if r.output == nil {
		return
	}

	msg := fmt.Sprintf(format, args...)
	msg = strings.ReplaceAll(strings.TrimRight(msg, "\n"), "\n", "\n    ")

	_, _ = fmt.Fprintf(r.output, "  • %s\n", msg)
}

// Result outputs the verdict line and the details of one case.
func (r *Reporter) Result(res *CaseResult, keep bool) {
	if r.output == nil {
		return
	}

	name := res.Case.Path

	switch {
	case res.Passed():
		r.Logf("%s %s", r.paint(colorGreen, "PASS"), name)
	case res.SetupError != nil:
		r.Logf("%s %s", r.paint(colorRed, "ERROR"), name)
		r.Bulletf("%v", res.SetupError)
	default:
		r.Logf("%s %s", r.paint(colorRed, "FAIL"), name)

		for _, failure := range res.Failures {
			r.Bulletf("%v", failure)
		}
	}

	if len(res.Scrubbed) > 0 {
		r.Bulletf("scrubbed: %s", strings.Join(res.Scrubbed, ", "))
	}

	if keep && res.Dir != "" {
		r.Bulletf("sandbox kept at %s", res.Dir)
	}
}

// Summary outputs the final pass/fail counts.
func (r *Reporter) Summary(passed, total int) {
	if r.output == nil {
		return
	}

	failed := total - passed
	if failed == 0 {
		r.Logf("\n%d passed", passed)

		return
	}

	r.Logf("\n%d passed, %s", passed, r.paint(colorRed, fmt.Sprintf("%d failed", failed)))
}

func (r *Reporter) paint(color, s string) string {
	if !r.color {
		return s
	}

	return color + s + colorReset
}
