// Package page defines the documentation page value passed through the
// formatter chain and consumed by the output writers.
//
// A Page is a value type. Every With* method returns a new Page and never
// touches the receiver, so earlier pipeline stages can never observe changes
// made by later ones.
package page

import (
	"html/template"
	"maps"
)

// DefaultOrder is the sort priority of pages without an `order` field.
const DefaultOrder = 100

// Front matter keys understood by the accessors.
const (
	KeyTitle            = "title"
	KeyPDF              = "pdf"
	KeyConfluencePageID = "confluencePageId"
	KeyOrder            = "order"
)

// Page is one source document plus the metadata parsed from its front matter.
type Page struct {
	path        string
	slug        string
	content     string
	frontMatter map[string]any
}

// New creates a page with empty front matter.
func New(path, slug, content string) Page {
	return Page{
		path:        path,
		slug:        slug,
		content:     content,
		frontMatter: map[string]any{},
	}
}

// Path is the absolute location of the source file.
func (p Page) Path() string { return p.path }

// Slug is the flat identifier used for output filenames and anchors.
func (p Page) Slug() string { return p.slug }

// Content is raw Markdown before rendering and an HTML fragment after.
func (p Page) Content() string { return p.content }

// HTML exposes the content to html/template without escaping.
func (p Page) HTML() template.HTML {
	// #nosec G203 -- content is produced by the local Markdown renderer
	return template.HTML(p.content)
}

// FrontMatter returns a copy of the parsed front matter.
func (p Page) FrontMatter() map[string]any {
	return deepCopyMap(p.frontMatter)
}

// WithContent returns a copy of the page with its content replaced.
func (p Page) WithContent(content string) Page {
	p.content = content
	return p
}

// WithFrontMatter returns a copy of the page with its front matter replaced.
func (p Page) WithFrontMatter(fm map[string]any) Page {
	p.frontMatter = deepCopyMap(fm)
	return p
}

// ShouldGeneratePDF reports the boolean `pdf` flag, false when absent.
func (p Page) ShouldGeneratePDF() bool {
	v, ok := p.frontMatter[KeyPDF].(bool)
	return ok && v
}

// ConfluencePageID returns the remote document id for wiki sync.
// Pages without one are not synced.
func (p Page) ConfluencePageID() (int, bool) {
	return intField(p.frontMatter, KeyConfluencePageID)
}

// Order returns the sort priority, DefaultOrder when absent or not an integer.
func (p Page) Order() int {
	if v, ok := intField(p.frontMatter, KeyOrder); ok {
		return v
	}
	return DefaultOrder
}

func intField(fm map[string]any, key string) (int, bool) {
	switch v := fm[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case uint64:
		return int(v), true
	default:
		return 0, false
	}
}

func deepCopyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return deepCopyMap(vv)
	case map[any]any:
		m := make(map[any]any, len(vv))
		maps.Copy(m, vv)
		for k, item := range m {
			m[k] = deepCopyValue(item)
		}
		return m
	case []any:
		s := make([]any, len(vv))
		for i, item := range vv {
			s[i] = deepCopyValue(item)
		}
		return s
	default:
		return v
	}
}
