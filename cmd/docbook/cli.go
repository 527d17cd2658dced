package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/docbook/internal/config"
	"git.home.luguber.info/inful/docbook/internal/docbook"
	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/logfields"
	"git.home.luguber.info/inful/docbook/internal/version"
	"git.home.luguber.info/inful/docbook/internal/writer"
)

// Globals is bound into every command's Run method.
type Globals struct {
	Context context.Context
	Stdout  io.Writer
	Stderr  io.Writer
	CLI     *CLI
	// Logger is set once a command has configured logging.
	Logger *slog.Logger
}

// CLI is the root command line.
type CLI struct {
	Config    string `short:"c" help:"YAML configuration file. DOCBOOK_TOOL_* variables override its values." type:"path"`
	Verbose   bool   `short:"v" help:"Enable debug logging."`
	LogFormat string `name:"log-format" help:"Log output format (text|json). Defaults to DOCBOOK_TOOL_LOG_FORMAT or text."`

	Build   BuildCmd   `cmd:"" default:"withargs" help:"Build the selected outputs (default command)."`
	Version VersionCmd `cmd:"" help:"Print version information."`
}

// BuildCmd implements 'build', also reached without a sub-command.
type BuildCmd struct {
	HTML        bool `name:"html" help:"Write the single-file HTML book to DOCBOOK_TOOL_OUTPUT_HTML_FILE."`
	PDF         bool `name:"pdf" help:"Write a PDF for every page with 'pdf: true' to DOCBOOK_TOOL_OUTPUT_PDF_PATH."`
	Confluence  bool `name:"confluence" help:"Sync pages with a 'confluencePageId' to DOCBOOK_TOOL_CONFLUENCE_URL."`
	Watch       bool `name:"watch" help:"Keep running and rebuild the HTML book when content changes."`
	Concurrency int  `name:"concurrency" help:"Pages formatted in parallel; 0 keeps the configured value."`
}

// Modes returns the selected writers.
func (b *BuildCmd) Modes() writer.Modes {
	return writer.Modes{HTML: b.HTML, PDF: b.PDF, Confluence: b.Confluence}
}

// Run executes the build.
func (b *BuildCmd) Run(g *Globals) error {
	modes := b.Modes()
	if !modes.Any() {
		return ferrors.ConfigError("no writers specified").
			WithHint("pass at least one of --html, --pdf, --confluence").
			Build()
	}
	if b.Watch && !b.HTML {
		return ferrors.ValidationError("--watch requires --html").Build()
	}
	if b.Concurrency < 0 {
		return ferrors.ValidationError(fmt.Sprintf("--concurrency must not be negative, got %d", b.Concurrency)).Build()
	}

	cfg, err := config.Load(g.CLI.Config)
	if err != nil {
		return err
	}
	if b.Concurrency > 0 {
		cfg.Concurrency = b.Concurrency
	}

	logger, err := newLogger(g.Stderr, cfg.Logging, g.CLI.Verbose, g.CLI.LogFormat)
	if err != nil {
		return err
	}
	logger = logger.With(logfields.RunID(uuid.NewString()))
	g.Logger = logger

	for _, f := range cfg.EnvFiles {
		logger.Debug("Loaded environment file", logfields.File(f))
	}
	logger.Info("Starting docbook",
		slog.Bool("html", b.HTML),
		slog.Bool("pdf", b.PDF),
		slog.Bool("confluence", b.Confluence),
		slog.Bool("watch", b.Watch),
		logfields.Path(cfg.ContentPath))

	rc := docbook.RunConfig{Config: cfg, Modes: modes, Logger: logger}
	if b.Watch {
		return docbook.Watch(g.Context, rc)
	}
	_, err = docbook.Run(g.Context, rc)
	return err
}

// VersionCmd implements 'version'.
type VersionCmd struct{}

// Run prints the version banner.
func (VersionCmd) Run(g *Globals) error {
	_, err := fmt.Fprintln(g.Stdout, version.String())
	return err
}

// newLogger builds the root logger. The flags win over the configuration.
func newLogger(w io.Writer, logging config.Logging, verbose bool, formatFlag string) (*slog.Logger, error) {
	level := logging.Level.SlogLevel()
	if verbose {
		level = slog.LevelDebug
	}

	format := logging.Format
	if formatFlag != "" {
		parsed, err := config.ParseLogFormat(formatFlag)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryValidation, "invalid --log-format").Build()
		}
		format = parsed
	}

	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
