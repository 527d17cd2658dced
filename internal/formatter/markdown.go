package formatter

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/renderer/html"
	"github.com/yuin/goldmark/util"

	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/logfields"
	"git.home.luguber.info/inful/docbook/internal/page"
)

// CodeClassPrefix prefixes the language of fenced code blocks in the class attribute.
const CodeClassPrefix = "lang-"

// MarkdownRenderer converts page content from Markdown to an HTML fragment.
type MarkdownRenderer struct {
	md     goldmark.Markdown
	logger *slog.Logger
}

// NewMarkdownRenderer creates the Markdown formatter with GFM tables,
// footnotes and definition lists. Raw HTML passes through untouched so
// inlined <pre><code> blocks survive. Headings get no generated ids, which
// keeps the first line of a page a bare <h1>.
func NewMarkdownRenderer(logger *slog.Logger) *MarkdownRenderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Footnote,
			extension.DefinitionList,
		),
		goldmark.WithParserOptions(
			parser.WithAttribute(),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
			renderer.WithNodeRenderers(util.Prioritized(&fencedCodeRenderer{}, 100)),
		),
	)
	return &MarkdownRenderer{md: md, logger: orDiscard(logger)}
}

// Name implements Formatter.
func (*MarkdownRenderer) Name() string { return "markdown" }

// Format implements Formatter.
func (f *MarkdownRenderer) Format(ctx context.Context, p page.Page) (page.Page, error) {
	if err := ctx.Err(); err != nil {
		return page.Page{}, err
	}

	f.logger.Debug("Converting Markdown to HTML", logfields.Slug(p.Slug()))

	var buf bytes.Buffer
	if err := f.md.Convert([]byte(p.Content()), &buf); err != nil {
		return page.Page{}, ferrors.WrapError(err, ferrors.CategoryContent, "failed to render markdown").
			Fatal().
			WithContext("slug", p.Slug()).
			Build()
	}
	return p.WithContent(buf.String()), nil
}

// fencedCodeRenderer renders fenced code as <pre><code class="lang-x">.
type fencedCodeRenderer struct{}

func (r *fencedCodeRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCodeBlock)
}

func (r *fencedCodeRenderer) renderFencedCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		_, _ = w.WriteString("</code></pre>\n")
		return ast.WalkContinue, nil
	}

	n := node.(*ast.FencedCodeBlock)
	_, _ = w.WriteString("<pre><code")
	if lang := n.Language(source); len(lang) > 0 {
		_, _ = w.WriteString(` class="` + CodeClassPrefix)
		_, _ = w.Write(util.EscapeHTML(lang))
		_ = w.WriteByte('"')
	}
	_ = w.WriteByte('>')

	lines := n.Lines()
	for i := range lines.Len() {
		line := lines.At(i)
		_, _ = w.Write(util.EscapeHTML(line.Value(source)))
	}
	return ast.WalkContinue, nil
}
