// Package loader discovers Markdown sources under a content root and turns
// each one into a page.
package loader

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/logfields"
	"git.home.luguber.info/inful/docbook/internal/page"
)

// MarkdownExtension is the only file extension picked up by the loader.
const MarkdownExtension = ".md"

// SlugSeparator replaces path separators when deriving a slug.
const SlugSeparator = "_"

// Loader walks a content root and produces one page per Markdown file.
type Loader struct {
	logger *slog.Logger
}

// New creates a loader. A nil logger discards output.
func New(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{logger: logger}
}

// Load returns the pages found under root in directory walk order.
// Hidden directories are walked like any other.
func (l *Loader) Load(ctx context.Context, root string) ([]page.Page, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to resolve content path").
			Fatal().
			WithContext("path", root).
			Build()
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "content path does not exist").
			Fatal().
			WithContext("path", absRoot).
			Build()
	}
	if !info.IsDir() {
		return nil, errors.FileSystemError("content path is not a directory").
			WithContext("path", absRoot).
			Build()
	}

	l.logger.Debug("Analysing path for markdown files", logfields.Path(absRoot))

	var pages []page.Page
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != MarkdownExtension {
			return nil
		}

		content, err := os.ReadFile(path) // #nosec G304 -- path comes from walking the configured content root
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		slug, err := Slug(absRoot, path)
		if err != nil {
			return err
		}

		l.logger.Debug("Found markdown file", logfields.File(path), logfields.Slug(slug))
		pages = append(pages, page.New(path, slug, string(content)))
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.WrapError(err, errors.CategoryFileSystem, "failed to load pages").
			Fatal().
			WithContext("path", absRoot).
			Build()
	}

	l.logger.Info("Loaded pages", logfields.Path(absRoot), logfields.Count(len(pages)))
	return pages, nil
}

// Slug derives the flat page identifier for a file below root: the relative
// path without the Markdown extension, separators replaced by SlugSeparator.
func Slug(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("relative path of %s: %w", path, err)
	}
	rel = strings.TrimSuffix(filepath.ToSlash(rel), MarkdownExtension)
	return strings.ReplaceAll(rel, "/", SlugSeparator), nil
}
