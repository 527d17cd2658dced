package formatter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/frontmatter"
	"git.home.luguber.info/inful/docbook/internal/logfields"
	"git.home.luguber.info/inful/docbook/internal/page"
)

// FrontMatterExtractor moves a leading YAML block into the page front matter.
type FrontMatterExtractor struct {
	logger *slog.Logger
}

// NewFrontMatterExtractor creates the front matter formatter.
func NewFrontMatterExtractor(logger *slog.Logger) *FrontMatterExtractor {
	return &FrontMatterExtractor{logger: orDiscard(logger)}
}

// Name implements Formatter.
func (*FrontMatterExtractor) Name() string { return "frontmatter" }

// Format replaces front matter and content when the page starts with a
// well-formed block. Pages without one, or with an unterminated one, are
// returned unchanged.
func (f *FrontMatterExtractor) Format(_ context.Context, p page.Page) (page.Page, error) {
	if !strings.Contains(p.Content(), "---") {
		f.logger.Debug("Page has no front matter", logfields.Slug(p.Slug()))
		return p, nil
	}

	fields, body, had, err := frontmatter.Extract(p.Content())
	switch {
	case errors.Is(err, frontmatter.ErrMissingClosingDelimiter), err == nil && !had:
		f.logger.Debug("Front matter does not appear correctly formatted, ignoring it", logfields.Slug(p.Slug()))
		return p, nil
	case err != nil:
		return page.Page{}, ferrors.WrapError(err, ferrors.CategoryContent,
			fmt.Sprintf("front matter of page %s is not a valid mapping", p.Slug())).
			Fatal().
			WithContext("slug", p.Slug()).
			WithContext("path", p.Path()).
			Build()
	}

	f.logger.Debug("Extracted front matter", logfields.Slug(p.Slug()), logfields.Count(len(fields)))
	return p.WithFrontMatter(fields).WithContent(body), nil
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return logger
}
