package formatter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docbook/internal/page"
	"git.home.luguber.info/inful/docbook/internal/workspace"
)

var (
	pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDRI am a PNG honestly guv")
	jpgBytes = []byte("\xff\xd8\xff\xe0You will find that I am a JPG, make no mistakes")
)

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func newScratch(t *testing.T) *workspace.Manager {
	t.Helper()
	ws := workspace.NewManager(t.TempDir(), nil)
	require.NoError(t, ws.Create())
	t.Cleanup(func() { _ = ws.Cleanup() })
	return ws
}

func mustFormat(t *testing.T, f Formatter, p page.Page) page.Page {
	t.Helper()
	out, err := f.Format(context.Background(), p)
	require.NoError(t, err)
	return out
}
