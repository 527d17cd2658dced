package page

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"git.home.luguber.info/inful/docbook/internal/foundation/errors"
)

// Title returns the `title` front matter string when present. Otherwise the
// first line of the rendered content must be a single <h1> element and its
// text is returned.
func (p Page) Title() (string, error) {
	if t, ok := p.frontMatter[KeyTitle].(string); ok {
		return t, nil
	}

	firstLine, _, _ := strings.Cut(p.content, "\n")
	if title, ok := headingText(strings.TrimSpace(firstLine)); ok {
		return title, nil
	}

	return "", errors.ContentError(fmt.Sprintf("first line of page %s is not a single <h1> element", p.slug)).
		WithContext("slug", p.slug).
		WithContext("path", p.path).
		Build()
}

// headingText parses line as an HTML fragment and returns the text of its
// only element when that element is an <h1>.
func headingText(line string) (string, bool) {
	if !strings.HasPrefix(line, "<h1") || !strings.HasSuffix(line, "</h1>") {
		return "", false
	}

	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(line), body)
	if err != nil || len(nodes) != 1 {
		return "", false
	}
	h1 := nodes[0]
	if h1.Type != html.ElementNode || h1.DataAtom != atom.H1 {
		return "", false
	}

	var b strings.Builder
	collectText(h1, &b)
	return strings.TrimSpace(b.String()), true
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}
