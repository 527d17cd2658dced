// Package writer turns the formatted, sorted page collection into outputs:
// a single static HTML file, one PDF per opted-in page and, through the
// confluence package, a Confluence mirror.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/docbook/internal/logfields"
	"git.home.luguber.info/inful/docbook/internal/metrics"
	"git.home.luguber.info/inful/docbook/internal/page"
)

// OutputWriter consumes the final page collection.
type OutputWriter interface {
	Name() string
	Write(ctx context.Context, pages []page.Page) error
}

// Renderer renders a named template with the given variables.
type Renderer interface {
	Render(name string, vars map[string]any) (string, error)
}

// Scratch creates temporary files for a single run.
type Scratch interface {
	WriteFile(name string, data []byte) (path string, release func(), err error)
}

// WriteAll runs the writers one after another. The first failing writer
// stops the run.
func WriteAll(ctx context.Context, pages []page.Page, writers []OutputWriter, logger *slog.Logger, recorder metrics.Recorder) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	recorder = metrics.OrNoop(recorder)

	for _, w := range writers {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := time.Now()
		err := w.Write(ctx, pages)
		elapsed := time.Since(start)
		recorder.IncWriterResult(w.Name(), metrics.ResultFor(err, errors.Is(err, context.Canceled)))

		if err != nil {
			logger.Error("Writer failed", logfields.Writer(w.Name()), logfields.Error(err))
			return fmt.Errorf("writer %s: %w", w.Name(), err)
		}
		logger.Info("Writer finished",
			logfields.Writer(w.Name()),
			logfields.Count(len(pages)),
			logfields.DurationMS(float64(elapsed.Milliseconds())))
	}
	return nil
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
