package templates

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/logfields"
)

// Template names used by the writers.
const (
	OnlineTemplate = "online.html"
	PDFTemplate    = "pdf.html"
)

//go:embed defaults/*.html
var embeddedDefaults embed.FS

// Renderer renders named html/template files from a template directory,
// falling back to the embedded defaults for names the directory lacks.
// Templates are re-read on every call so watch mode picks up edits.
type Renderer struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// NewRenderer creates a renderer for the given template directory. An empty
// dir means only the embedded defaults are used.
func NewRenderer(dir string, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Renderer{dir: dir, logger: logger, now: time.Now}
}

// Render executes the template called name with vars. Referencing a variable
// that vars does not hold is an error.
func (r *Renderer) Render(name string, vars map[string]any) (string, error) {
	fsys, source, err := r.lookup(name)
	if err != nil {
		return "", err
	}
	r.logger.Debug("Rendering template", slog.String("template", name), slog.String("source", source))

	tpl, err := template.New(name).
		Funcs(r.funcs()).
		Option("missingkey=error").
		ParseFS(fsys, "*.html")
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryTemplate, "failed to parse templates").
			Fatal().
			WithContext("template", name).
			WithContext("source", source).
			Build()
	}

	var buf bytes.Buffer
	if err := tpl.ExecuteTemplate(&buf, name, vars); err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryTemplate, "failed to render template "+name).
			Fatal().
			WithContext("template", name).
			WithContext("source", source).
			Build()
	}
	return buf.String(), nil
}

func (r *Renderer) lookup(name string) (fs.FS, string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, "", ferrors.ValidationError("invalid template name").WithContext("template", name).Build()
	}

	if r.dir != "" {
		_, err := os.Stat(filepath.Join(r.dir, name))
		switch {
		case err == nil:
			return os.DirFS(r.dir), r.dir, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, "", ferrors.WrapError(err, ferrors.CategoryFileSystem, "cannot read template directory").
				Fatal().
				WithContext("template", name).
				WithContext("directory", r.dir).
				Build()
		}
		r.logger.Debug("Template not found in template directory, using embedded default",
			slog.String("template", name), logfields.Path(r.dir))
	}

	sub, err := fs.Sub(embeddedDefaults, "defaults")
	if err != nil {
		return nil, "", ferrors.WrapError(err, ferrors.CategoryInternal, "embedded templates unavailable").Build()
	}
	if _, err := fs.Stat(sub, name); err != nil {
		return nil, "", ferrors.TemplateError("template "+name+" not found").
			WithContext("template", name).
			WithContext("directory", r.dir).
			Build()
	}
	return sub, "embedded", nil
}

func (r *Renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"now": r.now,
		"anchor": func(slug string) string {
			return "page-" + slug
		},
	}
}
