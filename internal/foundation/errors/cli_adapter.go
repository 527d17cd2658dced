package errors

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// hiddenContext keys are logged but never printed to the terminal.
var hiddenContext = map[string]bool{"response": true}

// CLIErrorAdapter turns errors into exit codes and terminal output.
type CLIErrorAdapter struct {
	verbose bool
	logger  *slog.Logger
}

// NewCLIErrorAdapter creates an adapter. Verbose output adds the category
// and the full cause chain. A nil logger discards.
func NewCLIErrorAdapter(verbose bool, logger *slog.Logger) *CLIErrorAdapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CLIErrorAdapter{verbose: verbose, logger: logger}
}

// ExitCodeFor returns 0 for nil, the category's code for classified
// errors and 1 otherwise.
func (a *CLIErrorAdapter) ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if classified, ok := AsClassified(err); ok {
		return classified.category.ExitCode()
	}
	return 1
}

// FormatError renders err for the terminal: the message, then the context
// keys in sorted order, then the hint.
func (a *CLIErrorAdapter) FormatError(err error) string {
	if err == nil {
		return ""
	}
	classified, ok := AsClassified(err)
	if !ok {
		return "Error: " + err.Error()
	}

	var b strings.Builder
	b.WriteString("Error: ")
	if a.verbose {
		// The outer wrapping carries the page or writer that failed.
		b.WriteString(err.Error())
		fmt.Fprintf(&b, "\n  category: %s", classified.category)
	} else {
		b.WriteString(classified.Error())
	}
	for _, k := range classified.context.Keys() {
		if hiddenContext[k] {
			continue
		}
		fmt.Fprintf(&b, "\n  %s: %v", k, classified.context[k])
	}
	if classified.hint != "" {
		b.WriteString("\nHint: ")
		b.WriteString(classified.hint)
	}
	return b.String()
}

// Report prints err to w, logs fatal errors (every error when verbose) and
// returns the exit code.
func (a *CLIErrorAdapter) Report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	if a.verbose || GetSeverity(err) == SeverityFatal || !IsClassified(err) {
		a.log(err)
	}
	_, _ = fmt.Fprintln(w, a.FormatError(err))
	return a.ExitCodeFor(err)
}

func (a *CLIErrorAdapter) log(err error) {
	classified, ok := AsClassified(err)
	if !ok {
		a.logger.Error("Unclassified error", slog.String("error", err.Error()))
		return
	}

	level := slog.LevelError
	if classified.severity == SeverityWarning {
		level = slog.LevelWarn
	}
	attrs := []slog.Attr{slog.String("category", string(classified.category))}
	if classified.cause != nil {
		attrs = append(attrs, slog.String("cause", classified.cause.Error()))
	}
	for _, k := range classified.context.Keys() {
		attrs = append(attrs, slog.Any(k, classified.context[k]))
	}
	a.logger.LogAttrs(context.Background(), level, classified.message, attrs...)
}
