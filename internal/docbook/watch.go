package docbook

import (
	"context"
	"log/slog"
	"os"

	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/logfields"
	"git.home.luguber.info/inful/docbook/internal/watch"
	"git.home.luguber.info/inful/docbook/internal/writer"
)

// Watch runs a full build with rc.Modes, then rebuilds the static HTML
// output whenever the content, features or template directories change.
// Remote and PDF writers only run in the initial build. A failing initial
// build is logged and watching starts anyway, unless the configuration
// itself is invalid.
func Watch(ctx context.Context, rc RunConfig) error {
	if !rc.Modes.HTML {
		return ferrors.ConfigError("watch mode requires html output").Build()
	}
	if rc.Config == nil {
		return ferrors.ConfigError("config required").Build()
	}
	if rc.Logger == nil {
		rc.Logger = slog.New(slog.DiscardHandler)
	}
	logger := rc.Logger

	if _, err := Run(ctx, rc); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if ferrors.HasCategory(err, ferrors.CategoryConfig) {
			return err
		}
		logger.Warn("Initial build failed; watching for changes", logfields.Error(err))
	}

	rebuild := rc
	rebuild.Modes = writer.Modes{HTML: true}

	roots := []string{rc.Config.ContentPath, rc.Config.FeaturesPath}
	if info, err := os.Stat(rc.Config.TemplatePath); err == nil && info.IsDir() {
		roots = append(roots, rc.Config.TemplatePath)
	}

	w, err := watch.New(watch.Config{
		Roots:  roots,
		Ignore: []string{rc.Config.Output.HTMLFile},
		Build: func(ctx context.Context) error {
			_, err := Run(ctx, rebuild)
			return err
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
