package main

import (
	"fmt"
	"io"
	"os"

	"github.com/kalambet/doccheck/internal/pipeline"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
)

// Progress and diagnostics go to stderr; only reports are written to stdout.
var (
	stderr io.Writer = os.Stderr
	stdout io.Writer = os.Stdout
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func notice(color, mark, format string, args []any) {
	fmt.Fprintln(stderr, colorize(color, mark+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { notice(colorGreen, "✓", format, args) }
func printError(format string, args ...any)   { notice(colorRed, "✗", format, args) }
func printWarning(format string, args ...any) { notice(colorYellow, "⚠", format, args) }

// printStatus writes an indented "label: value" line.
func printStatus(label string, format string, args ...any) {
	fmt.Fprintf(stderr, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

// printResult writes one check outcome: the report under a heading naming
// its source, or the failure message.
func printResult(source string, res pipeline.CheckResult) {
	if !res.Success {
		printError("%s: %s", source, res.ErrorMessage)
		return
	}
	heading := "# " + source
	if res.JobID != "" {
		heading += " (" + res.JobID + ")"
	}
	fmt.Fprintf(stdout, "%s\n%s\n\n", colorize(colorBold, heading), res.ReportText)
}
