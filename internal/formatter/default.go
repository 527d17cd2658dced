package formatter

import (
	"log/slog"

	"git.home.luguber.info/inful/docbook/internal/command"
	"git.home.luguber.info/inful/docbook/internal/metrics"
	"git.home.luguber.info/inful/docbook/internal/retrieve"
)

// Options configures the default formatter chain.
type Options struct {
	// ContentPath resolves {{src-...}} placeholders.
	ContentPath string
	// FeaturesPath resolves {{feature:...}} placeholders; ContentPath when empty.
	FeaturesPath string
	CodeTypes    []string
	Java         string
	PlantUMLJar  string

	Retriever retrieve.Retriever
	Runner    command.Runner
	Scratch   Scratch
	Logger    *slog.Logger
	Recorder  metrics.Recorder
}

// Default assembles the formatter chain in its fixed order. Later steps
// depend on earlier ones: images may turn into diagram fences, and
// everything inlined before the last step is still Markdown.
func Default(opts Options) *Chain {
	retriever := opts.Retriever
	if retriever == nil {
		retriever = retrieve.NewLocal()
	}
	featuresPath := opts.FeaturesPath
	if featuresPath == "" {
		featuresPath = opts.ContentPath
	}

	return NewChain(ChainConfig{Logger: opts.Logger, Recorder: opts.Recorder},
		NewFrontMatterExtractor(opts.Logger),
		NewImageInliner(retriever, opts.Logger),
		NewCodeInliner(opts.ContentPath, opts.CodeTypes, retriever, opts.Logger),
		NewFeatureInliner(featuresPath, retriever, opts.Logger),
		NewDiagramRenderer(DiagramRendererConfig{
			Java:        opts.Java,
			PlantUMLJar: opts.PlantUMLJar,
			Runner:      opts.Runner,
			Scratch:     opts.Scratch,
			Logger:      opts.Logger,
			Recorder:    opts.Recorder,
		}),
		NewMarkdownRenderer(opts.Logger),
	)
}
