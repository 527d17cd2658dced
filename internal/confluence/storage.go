package confluence

import (
	"bytes"
	"crypto/md5" // #nosec G501 -- attachment names and the docbook-hash property are md5 hex by format
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
)

// Header is prepended to every synced page body.
const Header = `<p><strong style="color: #ff0000;">NOTE: This documentation is auto generated, do not edit this directly in Confluence, as your changes will be overwritten!</strong></p>`

const codeClassPrefix = "lang-"

var dataURIPattern = regexp.MustCompile(`^data:([^;]+);base64,([a-zA-Z0-9=+/]+)$`)

var attachmentExtensions = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/gif":  "gif",
}

var codeLanguages = map[string]string{
	"json":       "javascript",
	"js":         "javascript",
	"javascript": "javascript",
	"shell":      "bash",
	"sh":         "bash",
	"bash":       "bash",
	"php":        "php",
	"java":       "java",
	"sql":        "sql",
	"xml":        "xml",
	"html":       "xml",
	"yaml":       "yaml",
	"yml":        "yaml",
	"css":        "css",
	"diff":       "diff",
	"python":     "py",
	"py":         "py",
	"ruby":       "ruby",
}

// Attachment is an image extracted from a page body.
type Attachment struct {
	Filename string
	Data     []byte
}

// Document is a page body converted to storage format.
type Document struct {
	Body        string
	Hash        string
	Attachments []Attachment
}

// LinkResolver maps page source paths to Confluence page ids.
type LinkResolver struct {
	BaseURL string
	PageIDs map[string]int
}

// Resolve returns the Confluence URL for href as seen from the page at
// pagePath, or false when href does not point at a known page.
func (r LinkResolver) Resolve(pagePath, href string) (string, bool) {
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	u, err := url.Parse(href)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}
	target := filepath.Clean(filepath.Join(filepath.Dir(pagePath), filepath.FromSlash(u.Path)))
	id, ok := r.PageIDs[target]
	if !ok {
		return "", false
	}
	return r.BaseURL + "/pages/viewpage.action?pageId=" + strconv.Itoa(id), true
}

// ConvertStorage turns rendered page HTML into a storage-format document.
// Images are extracted first so link and code rewriting see the attachment
// placeholders.
func ConvertStorage(content, pagePath string, links LinkResolver) (Document, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(Header+content), body)
	if err != nil {
		return Document{}, ferrors.WrapError(err, ferrors.CategoryContent, "failed to parse page HTML").
			Fatal().
			WithContext("path", pagePath).
			Build()
	}
	for _, n := range nodes {
		body.AppendChild(n)
	}

	attachments, err := extractImages(body)
	if err != nil {
		return Document{}, err
	}
	rewriteLinks(body, pagePath, links)
	rewriteCode(body)

	var buf bytes.Buffer
	for c := body.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return Document{}, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to render storage body").Build()
		}
	}

	storage := buf.String()
	return Document{Body: storage, Hash: Hash(storage), Attachments: attachments}, nil
}

// Hash returns the md5 hex digest stored in the docbook-hash property.
func Hash(body string) string {
	sum := md5.Sum([]byte(body)) // #nosec G401 -- change detection, not security
	return hex.EncodeToString(sum[:])
}

func extractImages(root *html.Node) ([]Attachment, error) {
	var attachments []Attachment
	var replace [][2]*html.Node
	seen := map[string]bool{}
	for n := range root.Descendants() {
		if n.Type != html.ElementNode || n.DataAtom != atom.Img {
			continue
		}
		m := dataURIPattern.FindStringSubmatch(attr(n, "src"))
		if m == nil {
			continue
		}
		ext, ok := attachmentExtensions[m[1]]
		if !ok {
			return nil, ferrors.InternalError(fmt.Sprintf("unhandled embedded image type %s", m[1])).
				WithContext("mime", m[1]).
				Build()
		}
		data, err := base64.StdEncoding.DecodeString(m[2])
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryContent, "invalid base64 image data").Fatal().Build()
		}

		sum := md5.Sum(data) // #nosec G401 -- content-addressed file name
		filename := hex.EncodeToString(sum[:]) + "." + ext
		if !seen[filename] {
			seen[filename] = true
			attachments = append(attachments, Attachment{Filename: filename, Data: data})
		}
		replace = append(replace, [2]*html.Node{n, attachmentImage(filename)})
	}
	for _, r := range replace {
		r[0].Parent.InsertBefore(r[1], r[0])
		r[0].Parent.RemoveChild(r[0])
	}
	return attachments, nil
}

func attachmentImage(filename string) *html.Node {
	img := &html.Node{Type: html.ElementNode, Data: "ac:image"}
	img.AppendChild(&html.Node{
		Type: html.ElementNode,
		Data: "ri:attachment",
		Attr: []html.Attribute{{Key: "ri:filename", Val: filename}},
	})
	return img
}

func rewriteLinks(root *html.Node, pagePath string, links LinkResolver) {
	for n := range root.Descendants() {
		if n.Type != html.ElementNode || n.DataAtom != atom.A {
			continue
		}
		for i, a := range n.Attr {
			if a.Namespace != "" || a.Key != "href" {
				continue
			}
			if target, ok := links.Resolve(pagePath, a.Val); ok {
				n.Attr[i].Val = target
			}
		}
	}
}

func rewriteCode(root *html.Node) {
	var blocks []*html.Node
	for n := range root.Descendants() {
		if n.Type == html.ElementNode && n.DataAtom == atom.Pre && codeChild(n) != nil {
			blocks = append(blocks, n)
		}
	}
	for _, pre := range blocks {
		code := codeChild(pre)
		macro := &html.Node{Type: html.RawNode, Data: CodeMacro(codeLanguage(code), textContent(code))}
		pre.Parent.InsertBefore(macro, pre)
		pre.Parent.RemoveChild(pre)
	}
}

// CodeMacro renders the storage-format code macro for raw source text.
func CodeMacro(language, source string) string {
	return `<ac:structured-macro ac:name="code">` +
		`<ac:parameter ac:name="language">` + language + `</ac:parameter>` +
		`<ac:plain-text-body><![CDATA[` + strings.ReplaceAll(source, "]]>", "]]]]><![CDATA[>") + `]]></ac:plain-text-body>` +
		`</ac:structured-macro>`
}

// MacroLanguage maps a fenced code language to a code macro language.
func MacroLanguage(lang string) string {
	if l, ok := codeLanguages[strings.ToLower(lang)]; ok {
		return l
	}
	return "none"
}

func codeChild(pre *html.Node) *html.Node {
	var code *html.Node
	for c := pre.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.ElementNode && c.DataAtom == atom.Code && code == nil:
			code = c
		case c.Type == html.TextNode && strings.TrimSpace(c.Data) == "":
		default:
			return nil
		}
	}
	return code
}

func codeLanguage(code *html.Node) string {
	for _, class := range strings.Fields(attr(code, "class")) {
		if lang, ok := strings.CutPrefix(class, codeClassPrefix); ok {
			return MacroLanguage(lang)
		}
	}
	return "none"
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	for d := range n.Descendants() {
		if d.Type == html.TextNode {
			sb.WriteString(d.Data)
		}
	}
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}
