// Package formatter holds the content rewrite steps applied to every page
// between loading and writing, and the chain that runs them in order.
package formatter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/docbook/internal/logfields"
	"git.home.luguber.info/inful/docbook/internal/metrics"
	"git.home.luguber.info/inful/docbook/internal/page"
)

// Formatter rewrites one page. It returns a new page and never changes the
// path or slug of its input.
type Formatter interface {
	Format(ctx context.Context, p page.Page) (page.Page, error)
	Name() string
}

// Func adapts a function to the Formatter interface.
type Func func(ctx context.Context, p page.Page) (page.Page, error)

// Format calls f.
func (f Func) Format(ctx context.Context, p page.Page) (page.Page, error) { return f(ctx, p) }

// Name reports a generic name; wrap with Named to give it a real one.
func (f Func) Name() string { return "func" }

type named struct {
	Formatter
	name string
}

func (n named) Name() string { return n.name }

// Named gives a formatter a name for logs and metrics.
func Named(name string, f Formatter) Formatter {
	return named{Formatter: f, name: name}
}

// ChainConfig carries the ambient dependencies of a Chain.
type ChainConfig struct {
	Logger   *slog.Logger
	Recorder metrics.Recorder
}

// Chain applies formatters in order. The first failure stops the chain.
type Chain struct {
	formatters []Formatter
	logger     *slog.Logger
	recorder   metrics.Recorder
}

var _ Formatter = (*Chain)(nil)

// NewChain builds a chain from formatters in the order given.
func NewChain(cfg ChainConfig, formatters ...Formatter) *Chain {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Chain{
		formatters: formatters,
		logger:     logger,
		recorder:   metrics.OrNoop(cfg.Recorder),
	}
}

// Name implements Formatter.
func (c *Chain) Name() string { return "chain" }

// Formatters returns the names of the chained formatters in order.
func (c *Chain) Formatters() []string {
	names := make([]string, len(c.formatters))
	for i, f := range c.formatters {
		names[i] = f.Name()
	}
	return names
}

// Format runs every formatter against p.
func (c *Chain) Format(ctx context.Context, p page.Page) (page.Page, error) {
	for _, f := range c.formatters {
		if err := ctx.Err(); err != nil {
			return page.Page{}, err
		}

		start := time.Now()
		next, err := f.Format(ctx, p)
		c.recorder.ObserveFormatterDuration(f.Name(), time.Since(start), err == nil)
		if err != nil {
			c.logger.Debug("Formatter failed",
				logfields.Formatter(f.Name()),
				logfields.Slug(p.Slug()),
				logfields.Error(err))
			return page.Page{}, fmt.Errorf("formatting page %s with %s: %w", p.Slug(), f.Name(), err)
		}
		p = next
	}
	return p, nil
}
