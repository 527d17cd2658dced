package writer

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/logfields"
	"git.home.luguber.info/inful/docbook/internal/page"
	"git.home.luguber.info/inful/docbook/internal/templates"
)

// HTMLWriter renders every page into one HTML file.
type HTMLWriter struct {
	renderer   Renderer
	template   string
	outputFile string
	logger     *slog.Logger
}

var _ OutputWriter = (*HTMLWriter)(nil)

// NewHTMLWriter creates a writer rendering the online template to outputFile.
func NewHTMLWriter(renderer Renderer, outputFile string, logger *slog.Logger) *HTMLWriter {
	return &HTMLWriter{
		renderer:   renderer,
		template:   templates.OnlineTemplate,
		outputFile: outputFile,
		logger:     orDiscard(logger).With(logfields.Writer("html")),
	}
}

// Name implements OutputWriter.
func (*HTMLWriter) Name() string { return "html" }

// Write implements OutputWriter. The destination is replaced in one rename,
// so a failed run leaves the previous file in place.
func (w *HTMLWriter) Write(ctx context.Context, pages []page.Page) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.logger.Info("Writing HTML output", logfields.Path(w.outputFile))

	out, err := w.renderer.Render(w.template, map[string]any{"Pages": pages})
	if err != nil {
		return err
	}
	if err := writeFileAtomic(w.outputFile, []byte(out)); err != nil {
		return err
	}

	w.logger.Debug("HTML rendering completed", logfields.Count(len(pages)))
	return nil
}

// writeFileAtomic writes data to a temporary sibling of path and renames it
// into place, creating parent directories first.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fsError(err, "cannot create output directory", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fsError(err, "cannot create temporary output file", dir)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fsError(err, "cannot write output file", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return fsError(err, "cannot write output file", tmpName)
	}
	// #nosec G302 -- the generated book is a published artifact.
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fsError(err, "cannot set output file mode", tmpName)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fsError(err, "cannot move output file into place", path)
	}
	return nil
}

func fsError(err error, msg, path string) error {
	return ferrors.WrapError(err, ferrors.CategoryFileSystem, msg).
		Fatal().
		WithContext("path", path).
		Build()
}
