package writer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/logfields"
	"git.home.luguber.info/inful/docbook/internal/metrics"
	"git.home.luguber.info/inful/docbook/internal/page"
	"git.home.luguber.info/inful/docbook/internal/pdf"
	"git.home.luguber.info/inful/docbook/internal/templates"
)

// PDFWriterConfig configures the PDF writer.
type PDFWriterConfig struct {
	Templates Renderer
	PDF       pdf.Renderer
	OutputDir string
	Scratch   Scratch
	Logger    *slog.Logger
	Recorder  metrics.Recorder
}

// PDFWriter renders one PDF per page whose front matter enables it.
type PDFWriter struct {
	templates Renderer
	template  string
	pdf       pdf.Renderer
	outputDir string
	scratch   Scratch
	logger    *slog.Logger
	recorder  metrics.Recorder
}

var _ OutputWriter = (*PDFWriter)(nil)

// NewPDFWriter creates the PDF writer.
func NewPDFWriter(cfg PDFWriterConfig) *PDFWriter {
	return &PDFWriter{
		templates: cfg.Templates,
		template:  templates.PDFTemplate,
		pdf:       cfg.PDF,
		outputDir: cfg.OutputDir,
		scratch:   cfg.Scratch,
		logger:    orDiscard(cfg.Logger).With(logfields.Writer("pdf")),
		recorder:  metrics.OrNoop(cfg.Recorder),
	}
}

// Name implements OutputWriter.
func (*PDFWriter) Name() string { return "pdf" }

// Write implements OutputWriter.
func (w *PDFWriter) Write(ctx context.Context, pages []page.Page) error {
	if err := os.MkdirAll(w.outputDir, 0o750); err != nil {
		return fsError(err, "cannot create PDF output directory", w.outputDir)
	}

	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !p.ShouldGeneratePDF() {
			w.logger.Debug("PDF not enabled for page", logfields.Slug(p.Slug()))
			continue
		}
		if err := w.writePage(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (w *PDFWriter) writePage(ctx context.Context, p page.Page) error {
	pdfPath := filepath.Join(w.outputDir, p.Slug()+".pdf")
	logger := w.logger.With(logfields.Slug(p.Slug()), logfields.Path(pdfPath))
	logger.Info("Rendering PDF")

	body, err := w.templates.Render(w.template, map[string]any{"Page": p})
	if err != nil {
		return err
	}

	// A stale file from an earlier run must not count as success.
	if err := os.Remove(pdfPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fsError(err, "cannot remove previous PDF", pdfPath)
	}

	htmlPath, release, err := w.scratch.WriteFile(p.Slug()+".html", []byte(body))
	if err != nil {
		return err
	}
	defer release()

	start := time.Now()
	res, err := w.pdf.Render(ctx, htmlPath, pdfPath)
	w.recorder.ObserveSubprocessDuration(w.pdf.Name(), time.Since(start), res.ExitCode)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategorySubprocess, fmt.Sprintf("failed to run %s for %s", w.pdf.Name(), p.Slug())).
			Fatal().
			WithContext("slug", p.Slug()).
			Build()
	}

	output := strings.TrimSpace(res.Output)
	if output != "" {
		logger.Debug("PDF renderer output", slog.String("output", output))
	}
	if !res.Success() {
		logger.Warn("PDF renderer exited non-zero, the PDF may still be complete; check the debug output",
			slog.Int("exit_code", res.ExitCode))
	}

	if _, err := os.Stat(pdfPath); err != nil {
		return ferrors.SubprocessError(fmt.Sprintf("failed to generate PDF for %s. Output was: %s", p.Slug(), output)).
			WithCause(err).
			WithContext("slug", p.Slug()).
			WithContext("exit_code", res.ExitCode).
			Build()
	}

	logger.Debug("PDF render complete")
	return nil
}
