package formatter

import (
	"context"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/docbook/internal/page"
)

// FormatAll applies f to every page and returns the results in input order.
//
// Up to concurrency pages are formatted at once; values below one mean one.
// The first error cancels the remaining work and is returned.
func FormatAll(ctx context.Context, f Formatter, pages []page.Page, concurrency int) ([]page.Page, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	out := make([]page.Page, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, p := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			formatted, err := f.Format(gctx, p)
			if err != nil {
				return err
			}
			out[i] = formatted
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
