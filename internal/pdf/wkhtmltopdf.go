package pdf

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/docbook/internal/command"
)

// DefaultWkhtmltopdf is the binary looked up on PATH when none is configured.
const DefaultWkhtmltopdf = "wkhtmltopdf"

// Wkhtmltopdf renders PDFs with the wkhtmltopdf binary. Local file access is
// enabled and load errors are ignored so unreachable remote assets do not
// abort the conversion.
type Wkhtmltopdf struct {
	binary string
	runner command.Runner
	logger *slog.Logger
}

var _ Renderer = (*Wkhtmltopdf)(nil)

// NewWkhtmltopdf creates the backend. A nil runner runs the binary directly
// without a timeout.
func NewWkhtmltopdf(binary string, runner command.Runner, logger *slog.Logger) *Wkhtmltopdf {
	if binary == "" {
		binary = DefaultWkhtmltopdf
	}
	logger = orDiscard(logger)
	if runner == nil {
		runner = command.NewExecRunner(0, logger)
	}
	return &Wkhtmltopdf{binary: binary, runner: runner, logger: logger}
}

// Name implements Renderer.
func (*Wkhtmltopdf) Name() string { return BackendWkhtmltopdf }

// Render implements Renderer.
func (w *Wkhtmltopdf) Render(ctx context.Context, htmlPath, pdfPath string) (command.Result, error) {
	return w.runner.Run(ctx, w.binary, Args(htmlPath, pdfPath)...)
}

// Args returns the wkhtmltopdf arguments for converting in to out.
func Args(in, out string) []string {
	return []string{
		"--enable-local-file-access",
		"--load-error-handling", "ignore",
		"--load-media-error-handling", "ignore",
		in,
		out,
	}
}
