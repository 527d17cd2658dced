package formatter

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"

	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/logfields"
	"git.home.luguber.info/inful/docbook/internal/page"
	"git.home.luguber.info/inful/docbook/internal/retrieve"
)

// imagePattern matches Markdown images with non-empty alt text.
var imagePattern = regexp.MustCompile(`!\[([^\]]+)\]\(([^)]*?)\)`)

// PlantUMLStartMarker opens every PlantUML source.
const PlantUMLStartMarker = "@startuml"

// inlineMIMETypes are the sniffed types embedded as data URIs.
var inlineMIMETypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
}

// ImageInliner embeds local images referenced from a page as base64 data URIs.
// PlantUML sources referenced as images become ```puml fences for the
// diagram renderer.
type ImageInliner struct {
	retriever retrieve.Retriever
	logger    *slog.Logger
}

// NewImageInliner creates the image formatter.
func NewImageInliner(retriever retrieve.Retriever, logger *slog.Logger) *ImageInliner {
	return &ImageInliner{retriever: retriever, logger: orDiscard(logger)}
}

// Name implements Formatter.
func (*ImageInliner) Name() string { return "images" }

// Format resolves every image reference relative to the page's directory.
// Data URIs and absolute URLs are left alone.
func (f *ImageInliner) Format(ctx context.Context, p page.Page) (page.Page, error) {
	dir := filepath.Dir(p.Path())

	content, err := replaceAllSubmatch(imagePattern, p.Content(), func(m []string) (string, error) {
		alt, ref := m[1], strings.TrimSpace(m[2])
		if isExternalReference(ref) {
			f.logger.Debug("Leaving external image reference", logfields.Slug(p.Slug()), logfields.URL(truncate(ref, 40)))
			return m[0], nil
		}

		f.logger.Debug("Inlining image", logfields.Slug(p.Slug()), logfields.File(ref))
		data, err := f.retriever.Retrieve(ctx, ref, dir)
		if err != nil {
			return "", err
		}

		if mime := SniffImage(data); mime != "" {
			return fmt.Sprintf("![%s](data:%s;base64,%s)", alt, mime, base64.StdEncoding.EncodeToString(data)), nil
		}
		if bytes.HasPrefix(data, []byte(PlantUMLStartMarker)) {
			return "```puml\n" + strings.TrimSpace(string(data)) + "\n```", nil
		}

		return "", ferrors.ContentError(fmt.Sprintf("unable to determine mime type of %s in page %s", filepath.Join(dir, ref), p.Slug())).
			WithContext("slug", p.Slug()).
			WithContext("file", ref).
			Build()
	})
	if err != nil {
		return page.Page{}, err
	}
	return p.WithContent(content), nil
}

// SniffImage returns the MIME type of a raster image, or "" when data is not
// one of the supported formats.
func SniffImage(data []byte) string {
	mime := http.DetectContentType(data)
	if inlineMIMETypes[mime] {
		return mime
	}
	return ""
}

func isExternalReference(ref string) bool {
	return strings.HasPrefix(ref, "data:") || strings.Contains(ref, "://")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
