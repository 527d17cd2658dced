package writer

import (
	"context"
	"log/slog"
	"net/http"

	"git.home.luguber.info/inful/docbook/internal/confluence"
	"git.home.luguber.info/inful/docbook/internal/credentials"
	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/metrics"
	"git.home.luguber.info/inful/docbook/internal/pdf"
	"git.home.luguber.info/inful/docbook/internal/retry"
)

// Modes selects the writers to build.
type Modes struct {
	HTML       bool
	PDF        bool
	Confluence bool
}

// Any reports whether at least one mode is selected.
func (m Modes) Any() bool { return m.HTML || m.PDF || m.Confluence }

// ConfluenceConfig holds the wiki sync settings.
type ConfluenceConfig struct {
	URL           string
	AuthToken     string
	SkipHashCheck bool
	Policy        confluence.FailurePolicy
	// Retry applies to reads only; the zero value disables retries.
	Retry         retry.Policy
	HTTPClient    *http.Client
}

// FactoryConfig holds everything the writers may need.
type FactoryConfig struct {
	Templates   Renderer
	HTMLFile    string
	PDFDir      string
	PDF         pdf.Renderer
	Scratch     Scratch
	Confluence  ConfluenceConfig
	Credentials credentials.Provider
	// Interactive reports whether credentials may be prompted for.
	Interactive func() bool
	Logger      *slog.Logger
	Recorder    metrics.Recorder
}

// Factory builds output writers for the selected modes.
type Factory struct {
	cfg    FactoryConfig
	logger *slog.Logger
}

// NewFactory creates a factory. Nil Credentials and Interactive default to
// the terminal prompt and a stdin terminal check.
func NewFactory(cfg FactoryConfig) *Factory {
	if cfg.Credentials == nil {
		cfg.Credentials = credentials.NewTerminal()
	}
	if cfg.Interactive == nil {
		cfg.Interactive = credentials.IsInteractive
	}
	return &Factory{cfg: cfg, logger: orDiscard(cfg.Logger)}
}

// Build returns the writers in the fixed order html, pdf, confluence.
// Confluence without a token prompts when interactive and is skipped with
// a warning otherwise.
func (f *Factory) Build(ctx context.Context, modes Modes) ([]OutputWriter, error) {
	if !modes.Any() {
		return nil, ferrors.ConfigError("no writers specified").Build()
	}

	var writers []OutputWriter

	if modes.HTML {
		if f.cfg.HTMLFile == "" {
			return nil, requiredSetting("DOCBOOK_TOOL_OUTPUT_HTML_FILE", "html")
		}
		writers = append(writers, NewHTMLWriter(f.cfg.Templates, f.cfg.HTMLFile, f.cfg.Logger))
	}

	if modes.PDF {
		if f.cfg.PDFDir == "" {
			return nil, requiredSetting("DOCBOOK_TOOL_OUTPUT_PDF_PATH", "pdf")
		}
		if f.cfg.Scratch == nil {
			return nil, ferrors.InternalError("PDF writer needs a scratch workspace").Build()
		}
		renderer := f.cfg.PDF
		if renderer == nil {
			renderer = pdf.NewWkhtmltopdf("", nil, f.cfg.Logger)
		}
		writers = append(writers, NewPDFWriter(PDFWriterConfig{
			Templates: f.cfg.Templates,
			PDF:       renderer,
			OutputDir: f.cfg.PDFDir,
			Scratch:   f.cfg.Scratch,
			Logger:    f.cfg.Logger,
			Recorder:  f.cfg.Recorder,
		}))
	}

	if modes.Confluence {
		w, err := f.confluenceWriter(ctx)
		if err != nil {
			return nil, err
		}
		if w != nil {
			writers = append(writers, w)
		}
	}

	if len(writers) == 0 {
		return nil, ferrors.ConfigError("no writers specified").Build()
	}
	return writers, nil
}

func (f *Factory) confluenceWriter(ctx context.Context) (OutputWriter, error) {
	cc := f.cfg.Confluence
	if cc.URL == "" {
		return nil, requiredSetting("DOCBOOK_TOOL_CONFLUENCE_URL", "confluence")
	}

	token := cc.AuthToken
	if token == "" && f.cfg.Interactive() {
		var err error
		if token, err = f.cfg.Credentials.AuthHeader(ctx); err != nil {
			return nil, err
		}
	}
	if token == "" {
		f.logger.Warn("Skipping Confluence mirror step, DOCBOOK_TOOL_CONFLUENCE_AUTH_TOKEN was not set and could not be set interactively")
		return nil, nil
	}

	client := confluence.NewClient(cc.HTTPClient, cc.URL, token, f.cfg.Logger).WithRetry(cc.Retry)
	return confluence.NewWriter(confluence.WriterConfig{
		API:           client,
		SkipHashCheck: cc.SkipHashCheck,
		Policy:        cc.Policy,
		Logger:        f.cfg.Logger,
		Recorder:      f.cfg.Recorder,
	}), nil
}

func requiredSetting(name, mode string) error {
	return ferrors.ConfigError(name + " must be set for " + mode + " output").
		WithContext("setting", name).
		Build()
}

var _ OutputWriter = (*confluence.Writer)(nil)
