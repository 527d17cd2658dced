package errors

import (
	"maps"
	"slices"
)

// ErrorCategory classifies a failure for exit codes and log routing.
type ErrorCategory string

const (
	// CategoryConfig covers missing or invalid settings, including "no writer selected".
	CategoryConfig     ErrorCategory = "config"
	CategoryValidation ErrorCategory = "validation"

	// CategoryContent covers malformed pages: front matter, title heading, image references.
	CategoryContent  ErrorCategory = "content"
	CategoryNotFound ErrorCategory = "not_found"

	// CategorySubprocess covers external renderers (PlantUML, wkhtmltopdf, Chrome).
	CategorySubprocess ErrorCategory = "subprocess"
	CategoryRemote     ErrorCategory = "remote"
	CategoryAuth       ErrorCategory = "auth"

	CategoryFileSystem ErrorCategory = "filesystem"
	CategoryTemplate   ErrorCategory = "template"
	CategoryInternal   ErrorCategory = "internal"
)

// exitCodes is the process exit status per category. Unknown categories
// and unclassified errors exit with 1.
var exitCodes = map[ErrorCategory]int{
	CategoryValidation: 2,
	CategoryContent:    3,
	CategoryNotFound:   4,
	CategoryAuth:       5,
	CategorySubprocess: 6,
	CategoryConfig:     7,
	CategoryRemote:     8,
	CategoryInternal:   10,
	CategoryFileSystem: 11,
	CategoryTemplate:   11,
}

// ExitCode returns the process exit status for c.
func (c ErrorCategory) ExitCode() int {
	if code, ok := exitCodes[c]; ok {
		return code
	}
	return 1
}

// ErrorSeverity tells the CLI whether a failure is worth a log record on
// top of the printed message.
type ErrorSeverity string

const (
	SeverityFatal   ErrorSeverity = "fatal"   // stops the run
	SeverityError   ErrorSeverity = "error"   // fails the current operation
	SeverityWarning ErrorSeverity = "warning" // the run continued in a degraded way
)

// ErrorContext holds structured details such as the variable, path or
// page id involved.
type ErrorContext map[string]any

// Get retrieves a context value.
func (c ErrorContext) Get(key string) (any, bool) {
	value, ok := c[key]
	return value, ok
}

// GetString retrieves a string context value.
func (c ErrorContext) GetString(key string) (string, bool) {
	value, ok := c[key].(string)
	return value, ok
}

// Keys returns the context keys in sorted order.
func (c ErrorContext) Keys() []string {
	return slices.Sorted(maps.Keys(c))
}

// with returns a copy of c holding key.
func (c ErrorContext) with(key string, value any) ErrorContext {
	out := make(ErrorContext, len(c)+1)
	maps.Copy(out, c)
	out[key] = value
	return out
}
