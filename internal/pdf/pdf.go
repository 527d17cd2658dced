package pdf

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/docbook/internal/command"
	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
)

// Backend names accepted by New.
const (
	BackendWkhtmltopdf = "wkhtmltopdf"
	BackendChrome      = "chrome"
)

// Renderer converts the HTML file at htmlPath into a PDF at pdfPath.
// A returned error means the conversion could not be attempted at all;
// a non-zero Result.ExitCode is reported but not fatal by itself.
type Renderer interface {
	Name() string
	Render(ctx context.Context, htmlPath, pdfPath string) (command.Result, error)
}

// Options configures the backend built by New.
type Options struct {
	Backend     string
	Wkhtmltopdf string
	ChromeBin   string
	Timeout     time.Duration
	Runner      command.Runner
	Logger      *slog.Logger
}

// New returns the renderer for opts.Backend. An empty backend selects wkhtmltopdf.
func New(opts Options) (Renderer, error) {
	switch opts.Backend {
	case "", BackendWkhtmltopdf:
		return NewWkhtmltopdf(opts.Wkhtmltopdf, opts.Runner, opts.Logger), nil
	case BackendChrome:
		return NewChrome(opts.ChromeBin, opts.Timeout, opts.Logger), nil
	default:
		return nil, ferrors.ConfigError(fmt.Sprintf("unknown PDF renderer %q", opts.Backend)).
			WithContext("allowed", []string{BackendWkhtmltopdf, BackendChrome}).
			Build()
	}
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
