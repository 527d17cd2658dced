// Package errors classifies docbook failures.
//
// Components return a *ClassifiedError built with the constructors
// (ConfigError, ContentError, NotFoundError, ...) or WrapError. The
// category decides the process exit code; the context carries the
// variable, path or page involved and is printed by the CLI:
//
//	err := errors.NotFoundError("could not retrieve file").
//		WithContext("file", relativePath).
//		WithContext("directory", workingDirectory).
//		WithCause(originalErr).
//		Build()
//
// Callers may wrap classified errors with fmt.Errorf("...: %w", err);
// GetCategory and AsClassified look through the chain.
package errors
