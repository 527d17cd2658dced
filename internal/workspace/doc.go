// Package workspace manages the per-run scratch directory that holds
// short-lived files: diagram sources and PNGs, PDF input HTML.
//
// Each run gets one ephemeral directory (e.g. docbook-20251214-122336-123456)
// that is removed completely by Cleanup. Individual files are created through
// WriteFile, which hands back a release function so callers can defer removal
// on every exit path.
package workspace
