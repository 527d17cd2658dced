// Package docbook runs the complete pipeline: load the Markdown tree,
// format every page, sort, and hand the result to the selected writers.
package docbook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/docbook/internal/command"
	"git.home.luguber.info/inful/docbook/internal/config"
	"git.home.luguber.info/inful/docbook/internal/credentials"
	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/formatter"
	"git.home.luguber.info/inful/docbook/internal/loader"
	"git.home.luguber.info/inful/docbook/internal/logfields"
	"git.home.luguber.info/inful/docbook/internal/metrics"
	"git.home.luguber.info/inful/docbook/internal/page"
	"git.home.luguber.info/inful/docbook/internal/pdf"
	"git.home.luguber.info/inful/docbook/internal/retrieve"
	"git.home.luguber.info/inful/docbook/internal/templates"
	"git.home.luguber.info/inful/docbook/internal/workspace"
	"git.home.luguber.info/inful/docbook/internal/writer"
)

// Stage names used for metrics and log context.
const (
	StageValidate  = "validate"
	StageWorkspace = "workspace"
	StageLoad      = "load"
	StageFormat    = "format"
	StageSort      = "sort"
	StageWriters   = "writers"
	StageWrite     = "write"
)

// RunConfig holds the inputs of a single run. Only Config and Modes are
// required; the remaining fields replace the default collaborators.
type RunConfig struct {
	Config *config.Config
	Modes  writer.Modes

	Logger *slog.Logger
	// Recorder receives run metrics. When nil and Config.MetricsFile is
	// set, a Prometheus registry is created and written to that file.
	Recorder metrics.Recorder

	Runner      command.Runner
	Retriever   retrieve.Retriever
	PDF         pdf.Renderer
	Credentials credentials.Provider
	Interactive func() bool
	HTTPClient  *http.Client
}

// Result summarizes a successful run.
type Result struct {
	Pages    int
	Writers  []string
	Duration time.Duration
}

// Run executes one complete build. Writers run sequentially in the fixed
// order html, pdf, confluence and the first failure stops the run.
func Run(ctx context.Context, rc RunConfig) (*Result, error) {
	if rc.Config == nil {
		return nil, ferrors.ConfigError("config required").Build()
	}
	logger := rc.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	recorder := rc.Recorder
	var prom *metrics.PrometheusRecorder
	if recorder == nil && rc.Config.MetricsFile != "" {
		prom = metrics.NewPrometheusRecorder(prometheus.NewRegistry())
		recorder = prom
	}
	recorder = metrics.OrNoop(recorder)

	r := &run{rc: rc, cfg: rc.Config, logger: logger, recorder: recorder}

	start := time.Now()
	res, err := r.execute(ctx)
	recorder.ObserveRunDuration(time.Since(start))
	recorder.IncRunOutcome(metrics.ResultFor(err, isCanceled(ctx, err)))

	if prom != nil {
		if werr := prom.WriteTextfile(rc.Config.MetricsFile); werr != nil {
			logger.Warn("Failed to write metrics file", logfields.Path(rc.Config.MetricsFile), logfields.Error(werr))
		}
	}

	if err != nil {
		return nil, err
	}
	res.Duration = time.Since(start)
	logger.Info("Run complete",
		logfields.Count(res.Pages),
		slog.Any("writers", res.Writers),
		logfields.DurationMS(float64(res.Duration.Microseconds())/1000))
	return res, nil
}

type run struct {
	rc       RunConfig
	cfg      *config.Config
	logger   *slog.Logger
	recorder metrics.Recorder
}

func (r *run) execute(ctx context.Context) (*Result, error) {
	if err := r.stage(ctx, StageValidate, func() error {
		return r.cfg.Validate(r.rc.Modes)
	}); err != nil {
		return nil, err
	}

	ws := workspace.NewManager(r.cfg.WorkspaceDir, r.logger)
	if err := r.stage(ctx, StageWorkspace, func() error {
		if err := ws.Create(); err != nil {
			return ferrors.FileSystemError("failed to create workspace").WithCause(err).Build()
		}
		return nil
	}); err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Cleanup(); err != nil {
			r.logger.Warn("Failed to clean up workspace", logfields.Error(err))
		}
	}()

	runner := r.rc.Runner
	if runner == nil {
		runner = command.NewExecRunner(r.cfg.SubprocessTimeout, r.logger)
	}

	var pages []page.Page
	if err := r.stage(ctx, StageLoad, func() error {
		var err error
		pages, err = loader.New(r.logger).Load(ctx, r.cfg.ContentPath)
		return err
	}); err != nil {
		return nil, err
	}
	r.recorder.SetPages(len(pages))

	chain := formatter.Default(formatter.Options{
		ContentPath:  r.cfg.ContentPath,
		FeaturesPath: r.cfg.FeaturesPath,
		CodeTypes:    r.cfg.CodeTypes,
		Java:         r.cfg.PlantUML.Java,
		PlantUMLJar:  r.cfg.PlantUML.Jar,
		Retriever:    r.rc.Retriever,
		Runner:       runner,
		Scratch:      ws,
		Logger:       r.logger,
		Recorder:     r.recorder,
	})
	if err := r.stage(ctx, StageFormat, func() error {
		var err error
		pages, err = formatter.FormatAll(ctx, chain, pages, r.cfg.Concurrency)
		if err != nil {
			return err
		}
		return checkTitles(pages, r.rc.Modes)
	}); err != nil {
		return nil, err
	}

	if err := r.stage(ctx, StageSort, func() error {
		pages = page.Sort(pages)
		return nil
	}); err != nil {
		return nil, err
	}

	renderer, closeRenderer, err := r.pdfRenderer(runner)
	if err != nil {
		return nil, err
	}
	defer closeRenderer()

	var writers []writer.OutputWriter
	if err := r.stage(ctx, StageWriters, func() error {
		var err error
		writers, err = writer.NewFactory(r.factoryConfig(renderer, ws)).Build(ctx, r.rc.Modes)
		return err
	}); err != nil {
		return nil, err
	}

	if err := r.stage(ctx, StageWrite, func() error {
		return writer.WriteAll(ctx, pages, writers, r.logger, r.recorder)
	}); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(writers))
	for _, w := range writers {
		names = append(names, w.Name())
	}
	return &Result{Pages: len(pages), Writers: names}, nil
}

// stage times fn and records its outcome. A canceled context short-circuits
// before fn runs.
func (r *run) stage(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		r.recorder.IncStageResult(name, metrics.ResultCanceled)
		return err
	}
	start := time.Now()
	err := fn()
	r.recorder.ObserveStageDuration(name, time.Since(start))
	r.recorder.IncStageResult(name, metrics.ResultFor(err, isCanceled(ctx, err)))
	if err != nil {
		r.logger.Error("Stage failed", logfields.Stage(name), logfields.Error(err))
	}
	return err
}

// pdfRenderer returns the configured PDF backend, or nil when PDF output is
// not requested. The returned func releases backend resources.
func (r *run) pdfRenderer(runner command.Runner) (pdf.Renderer, func(), error) {
	noop := func() {}
	if !r.rc.Modes.PDF {
		return nil, noop, nil
	}
	if r.rc.PDF != nil {
		return r.rc.PDF, noop, nil
	}
	renderer, err := pdf.New(pdf.Options{
		Backend:     r.cfg.PDF.Renderer,
		Wkhtmltopdf: r.cfg.PDF.Wkhtmltopdf,
		ChromeBin:   r.cfg.PDF.ChromeBin,
		Timeout:     r.cfg.SubprocessTimeout,
		Runner:      runner,
		Logger:      r.logger,
	})
	if err != nil {
		return nil, noop, err
	}
	closer, ok := renderer.(io.Closer)
	if !ok {
		return renderer, noop, nil
	}
	return renderer, func() {
		if err := closer.Close(); err != nil {
			r.logger.Warn("Failed to close PDF renderer", logfields.Error(err))
		}
	}, nil
}

func (r *run) factoryConfig(renderer pdf.Renderer, scratch writer.Scratch) writer.FactoryConfig {
	httpClient := r.rc.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: r.cfg.HTTPTimeout}
	}
	return writer.FactoryConfig{
		Templates: templates.NewRenderer(r.cfg.TemplatePath, r.logger),
		HTMLFile:  r.cfg.Output.HTMLFile,
		PDFDir:    r.cfg.Output.PDFPath,
		PDF:       renderer,
		Scratch:   scratch,
		Confluence: writer.ConfluenceConfig{
			URL:           r.cfg.Confluence.URL,
			AuthToken:     r.cfg.Confluence.AuthToken,
			SkipHashCheck: r.cfg.Confluence.SkipContentHashChecks,
			Policy:        r.cfg.Confluence.FailurePolicy,
			Retry:         r.cfg.Confluence.Retry.Policy(),
			HTTPClient:    httpClient,
		},
		Credentials: r.rc.Credentials,
		Interactive: r.rc.Interactive,
		Logger:      r.logger,
		Recorder:    r.recorder,
	}
}

func isCanceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// checkTitles fails before any output is touched when a page that a
// selected writer titles has no leading heading. The Confluence writer keeps
// the remote title and never reads it.
func checkTitles(pages []page.Page, modes writer.Modes) error {
	if !modes.HTML && !modes.PDF {
		return nil
	}
	for _, p := range pages {
		if !modes.HTML && !p.ShouldGeneratePDF() {
			continue
		}
		if _, err := p.Title(); err != nil {
			return err
		}
	}
	return nil
}
