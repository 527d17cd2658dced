package formatter

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"regexp"
	"strings"

	"git.home.luguber.info/inful/docbook/internal/logfields"
	"git.home.luguber.info/inful/docbook/internal/page"
	"git.home.luguber.info/inful/docbook/internal/retrieve"
)

// DefaultCodeTypes are the source types accepted in {{src-<type>:<path>}} placeholders.
var DefaultCodeTypes = []string{"json"}

var featurePattern = regexp.MustCompile(`\{\{feature:([a-zA-Z0-9/.-]+)\}\}`)

// CodeInliner replaces {{src-<type>:<path>}} placeholders with the escaped
// contents of the file, resolved against the content root. Placeholders with
// a type outside the allow-list are left as they are.
type CodeInliner struct {
	root      string
	pattern   *regexp.Regexp
	retriever retrieve.Retriever
	logger    *slog.Logger
}

// NewCodeInliner creates the code formatter. Empty types means DefaultCodeTypes.
func NewCodeInliner(root string, types []string, retriever retrieve.Retriever, logger *slog.Logger) *CodeInliner {
	if len(types) == 0 {
		types = DefaultCodeTypes
	}
	quoted := make([]string, len(types))
	for i, t := range types {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return &CodeInliner{
		root:      root,
		pattern:   regexp.MustCompile(`\{\{src-(` + strings.Join(quoted, "|") + `):([a-zA-Z0-9/.-]+)\}\}`),
		retriever: retriever,
		logger:    orDiscard(logger),
	}
}

// Name implements Formatter.
func (*CodeInliner) Name() string { return "code" }

// Format implements Formatter.
func (f *CodeInliner) Format(ctx context.Context, p page.Page) (page.Page, error) {
	content, err := replaceAllSubmatch(f.pattern, p.Content(), func(m []string) (string, error) {
		lang, ref := m[1], m[2]
		f.logger.Debug("Inlining source code file", logfields.Slug(p.Slug()), logfields.File(ref), slog.String("type", lang))

		data, err := f.retriever.Retrieve(ctx, ref, f.root)
		if err != nil {
			return "", err
		}
		return codeBlock(lang, string(data)), nil
	})
	if err != nil {
		return page.Page{}, err
	}
	return p.WithContent(content), nil
}

// FeatureInliner replaces {{feature:<path>}} placeholders with the escaped
// contents of a Gherkin feature file below the features root.
type FeatureInliner struct {
	root      string
	retriever retrieve.Retriever
	logger    *slog.Logger
}

// NewFeatureInliner creates the feature file formatter.
func NewFeatureInliner(root string, retriever retrieve.Retriever, logger *slog.Logger) *FeatureInliner {
	return &FeatureInliner{root: root, retriever: retriever, logger: orDiscard(logger)}
}

// Name implements Formatter.
func (*FeatureInliner) Name() string { return "features" }

// Format implements Formatter.
func (f *FeatureInliner) Format(ctx context.Context, p page.Page) (page.Page, error) {
	content, err := replaceAllSubmatch(featurePattern, p.Content(), func(m []string) (string, error) {
		f.logger.Debug("Inlining feature file", logfields.Slug(p.Slug()), logfields.File(m[1]))

		data, err := f.retriever.Retrieve(ctx, m[1], f.root)
		if err != nil {
			return "", err
		}
		return codeBlock("gherkin", string(data)), nil
	})
	if err != nil {
		return page.Page{}, err
	}
	return p.WithContent(content), nil
}

func codeBlock(lang, source string) string {
	return fmt.Sprintf(`<pre><code class="lang-%s">%s</code></pre>`, html.EscapeString(lang), html.EscapeString(source))
}
