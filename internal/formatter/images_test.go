package formatter

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/page"
	"git.home.luguber.info/inful/docbook/internal/retrieve"
)

func TestImageInliner(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "guide", "smile.png"), pngBytes)
	writeFile(t, filepath.Join(root, "guide", "img", "photo.jpg"), jpgBytes)
	writeFile(t, filepath.Join(root, "shared", "flow.puml"), []byte("@startuml\nAlice -> Bob\n@enduml\n\n"))
	writeFile(t, filepath.Join(root, "guide", "notes.txt"), []byte("plain text"))

	f := NewImageInliner(retrieve.NewLocal(), nil)
	pagePath := filepath.Join(root, "guide", "intro.md")
	pngURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)

	t.Run("bare and dot-relative paths give identical output", func(t *testing.T) {
		bare := mustFormat(t, f, page.New(pagePath, "guide_intro", "![Smile](smile.png)"))
		dotted := mustFormat(t, f, page.New(pagePath, "guide_intro", "![Smile](./smile.png)"))

		assert.Equal(t, "![Smile]("+pngURI+")", bare.Content())
		assert.Equal(t, bare.Content(), dotted.Content())
	})

	t.Run("nested and parent segments", func(t *testing.T) {
		out := mustFormat(t, f, page.New(pagePath, "guide_intro", "a ![Photo](img/photo.jpg) b ![Again](../guide/smile.png)"))
		assert.Equal(t,
			"a ![Photo](data:image/jpeg;base64,"+base64.StdEncoding.EncodeToString(jpgBytes)+") b ![Again]("+pngURI+")",
			out.Content())
	})

	t.Run("plantuml source becomes a puml fence", func(t *testing.T) {
		out := mustFormat(t, f, page.New(pagePath, "guide_intro", "![Flow](../shared/flow.puml)"))
		assert.Equal(t, "```puml\n@startuml\nAlice -> Bob\n@enduml\n```", out.Content())
	})

	t.Run("empty alt text and external references are left alone", func(t *testing.T) {
		content := "![](smile.png) ![Remote](https://example.com/x.png) ![Inline](data:image/gif;base64,R0lGOD)"
		out := mustFormat(t, f, page.New(pagePath, "guide_intro", content))
		assert.Equal(t, content, out.Content())
	})

	t.Run("unknown type is a content error", func(t *testing.T) {
		_, err := f.Format(context.Background(), page.New(pagePath, "guide_intro", "![Notes](notes.txt)"))
		require.Error(t, err)
		assert.True(t, ferrors.HasCategory(err, ferrors.CategoryContent))
		assert.Contains(t, err.Error(), "unable to determine mime type of")
		assert.Contains(t, err.Error(), "guide_intro")
	})

	t.Run("missing file is a not found error", func(t *testing.T) {
		_, err := f.Format(context.Background(), page.New(pagePath, "guide_intro", "![Gone](gone.png)"))
		require.Error(t, err)
		assert.True(t, ferrors.HasCategory(err, ferrors.CategoryNotFound))
	})
}

func TestSniffImage(t *testing.T) {
	assert.Equal(t, "image/png", SniffImage(pngBytes))
	assert.Equal(t, "image/jpeg", SniffImage(jpgBytes))
	assert.Equal(t, "image/gif", SniffImage([]byte("GIF89a....")))
	assert.Empty(t, SniffImage([]byte("<svg xmlns=\"http://www.w3.org/2000/svg\"></svg>")))
	assert.Empty(t, SniffImage([]byte("@startuml")))
}
