package writer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docbook/internal/command"
	"git.home.luguber.info/inful/docbook/internal/page"
	"git.home.luguber.info/inful/docbook/internal/workspace"
)

// stubTemplates renders "<name>:" followed by the slugs it was given.
type stubTemplates struct {
	err error
}

func (s stubTemplates) Render(name string, vars map[string]any) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	var slugs []string
	if pages, ok := vars["Pages"].([]page.Page); ok {
		for _, p := range pages {
			slugs = append(slugs, p.Slug())
		}
	}
	if p, ok := vars["Page"].(page.Page); ok {
		slugs = append(slugs, p.Slug())
	}
	return name + ":" + strings.Join(slugs, ","), nil
}

// fakePDF optionally writes a PDF and reports the configured exit code.
type fakePDF struct {
	exitCode int
	output   string
	produce  bool
	err      error

	htmlPaths []string
	htmlBody  []string
}

func (f *fakePDF) Name() string { return "fake-pdf" }

func (f *fakePDF) Render(_ context.Context, htmlPath, pdfPath string) (command.Result, error) {
	f.htmlPaths = append(f.htmlPaths, htmlPath)
	data, err := os.ReadFile(htmlPath)
	if err != nil {
		return command.Result{}, fmt.Errorf("html input missing: %w", err)
	}
	f.htmlBody = append(f.htmlBody, string(data))

	if f.err != nil {
		return command.Result{}, f.err
	}
	if f.produce {
		if err := os.WriteFile(pdfPath, []byte("%PDF-1.4"), 0o600); err != nil {
			return command.Result{}, err
		}
	}
	return command.Result{ExitCode: f.exitCode, Output: f.output}, nil
}

func newScratch(t *testing.T) *workspace.Manager {
	t.Helper()
	ws := workspace.NewManager(t.TempDir(), nil)
	require.NoError(t, ws.Create())
	t.Cleanup(func() { _ = ws.Cleanup() })
	return ws
}

func pdfPage(slug string) page.Page {
	return page.New("/book/"+slug+".md", slug, "<h1>"+slug+"</h1>\n").
		WithFrontMatter(map[string]any{page.KeyPDF: true})
}

func requireNotExist(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	require.True(t, errors.Is(err, os.ErrNotExist), "expected %s to be removed, got %v", path, err)
}
