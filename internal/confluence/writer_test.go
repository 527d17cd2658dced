package confluence

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/metrics"
	"git.home.luguber.info/inful/docbook/internal/page"
)

type syncCounter struct {
	metrics.NoopRecorder
	results []metrics.SyncResult
}

func (s *syncCounter) IncSyncPage(r metrics.SyncResult) { s.results = append(s.results, r) }

func confluencePage(path, slug, content string, id int) page.Page {
	return page.New(path, slug, content).WithFrontMatter(map[string]any{page.KeyConfluencePageID: id})
}

func imagePage(id int) page.Page {
	content := "<h1>Images</h1>\n" +
		`<p><img src="` + jpgDataURI + `" alt="a JPG"><img src="` + pngDataURI + `" alt="a PNG"></p>`
	return confluencePage("/book/images.md", "images", content, id)
}

func TestWriter_SyncThenIdempotent(t *testing.T) {
	fake := newFakeConfluence(t)
	fake.addPage(123)
	w := NewWriter(WriterConfig{API: fake.client()})

	require.NoError(t, w.Write(context.Background(), []page.Page{imagePage(123)}))

	assert.Equal(t, []string{
		"GET /rest/api/content/123/property/docbook-hash",
		"GET /rest/api/content/123",
		"GET /rest/api/content/123/child/attachment",
		"POST /rest/api/content/123/child/attachment",
		"POST /rest/api/content/123/child/attachment",
		"PUT /rest/api/content/123",
		"POST /rest/api/content/123/property/docbook-hash",
	}, fake.calls())

	remote := fake.page(123)
	assert.Equal(t, 2, remote.version)
	assert.Equal(t, []string{jpgFilename, pngFilename}, remote.attachments)
	assert.Equal(t, "I am a PNG honestly guv", string(remote.uploads[pngFilename]))
	assert.Contains(t, remote.body, Header)
	assert.Contains(t, remote.body, `<ri:attachment ri:filename="`+pngFilename+`">`)
	assert.Equal(t, Hash(remote.body), remote.hash)
	assert.Equal(t, 1, remote.hashVersion)

	fake.reset()
	require.NoError(t, w.Write(context.Background(), []page.Page{imagePage(123)}))
	assert.Equal(t, []string{"GET /rest/api/content/123/property/docbook-hash"}, fake.calls())
	assert.Zero(t, fake.writes())
}

func TestWriter_ChangedContentUpdatesHashWithPUT(t *testing.T) {
	fake := newFakeConfluence(t)
	fake.addPage(5, func(p *fakePage) {
		p.hasHash = true
		p.hash = "different hash to force update"
		p.hashVersion = 3
		p.version = 9
	})

	w := NewWriter(WriterConfig{API: fake.client()})
	require.NoError(t, w.Write(context.Background(), []page.Page{confluencePage("/book/a.md", "a", "<h1>A</h1>\n", 5)}))

	calls := fake.calls()
	assert.Equal(t, "PUT /rest/api/content/5/property/docbook-hash", calls[len(calls)-1])
	remote := fake.page(5)
	assert.Equal(t, 10, remote.version)
	assert.Equal(t, 4, remote.hashVersion)
}

func TestWriter_ExistingAttachmentsAreNotUploaded(t *testing.T) {
	fake := newFakeConfluence(t)
	fake.addPage(123, func(p *fakePage) { p.attachments = []string{"attachment", jpgFilename} })

	w := NewWriter(WriterConfig{API: fake.client()})
	require.NoError(t, w.Write(context.Background(), []page.Page{imagePage(123)}))

	uploads := 0
	for _, c := range fake.calls() {
		if c == "POST /rest/api/content/123/child/attachment" {
			uploads++
		}
	}
	assert.Equal(t, 1, uploads)
	remote := fake.page(123)
	assert.Equal(t, []string{"attachment", jpgFilename, pngFilename}, remote.attachments)
	assert.NotContains(t, remote.uploads, jpgFilename)
}

func TestWriter_SkipHashCheck(t *testing.T) {
	fake := newFakeConfluence(t)
	fake.addPage(123)

	w := NewWriter(WriterConfig{API: fake.client(), SkipHashCheck: true})
	for range 2 {
		require.NoError(t, w.Write(context.Background(), []page.Page{imagePage(123)}))
	}

	for _, c := range fake.calls() {
		assert.NotContains(t, c, "/property/")
	}
	assert.Equal(t, 3, fake.page(123).version, "both runs update the body")
}

func TestWriter_PagesWithoutIDAreSkipped(t *testing.T) {
	fake := newFakeConfluence(t)
	w := NewWriter(WriterConfig{API: fake.client()})

	require.NoError(t, w.Write(context.Background(), []page.Page{page.New("/book/a.md", "a", "<h1>A</h1>")}))
	assert.Empty(t, fake.calls())
}

func TestWriter_RewritesLinksToLaterPages(t *testing.T) {
	fake := newFakeConfluence(t)
	fake.addPage(1)
	fake.addPage(2)

	pages := []page.Page{
		confluencePage("/book/a.md", "a", `<h1>A</h1>`+"\n"+`<p><a href="b.md">next</a></p>`, 1),
		confluencePage("/book/b.md", "b", "<h1>B</h1>\n", 2),
	}
	require.NoError(t, NewWriter(WriterConfig{API: fake.client()}).Write(context.Background(), pages))

	assert.Contains(t, fake.page(1).body, `href="`+fake.server.URL+`/pages/viewpage.action?pageId=2"`)
}

func TestWriter_PropertyErrorFailsPage(t *testing.T) {
	fake := newFakeConfluence(t)
	fake.addPage(1)
	fake.setPropertyStatus(http.StatusInternalServerError)

	err := NewWriter(WriterConfig{API: fake.client()}).Write(context.Background(), []page.Page{
		confluencePage("/book/a.md", "a", "<h1>A</h1>\n", 1),
	})
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryRemote, ferrors.GetCategory(err))
	assert.Equal(t, []string{"GET /rest/api/content/1/property/docbook-hash"}, fake.calls())
}

func TestWriter_FailurePolicies(t *testing.T) {
	setup := func(t *testing.T) (*fakeConfluence, []page.Page) {
		fake := newFakeConfluence(t)
		fake.addPage(1, func(p *fakePage) { p.failPut = true })
		fake.addPage(2)
		return fake, []page.Page{
			confluencePage("/book/first.md", "first", "<h1>First</h1>\n", 1),
			confluencePage("/book/second.md", "second", "<h1>Second</h1>\n", 2),
		}
	}

	t.Run("abort", func(t *testing.T) {
		fake, pages := setup(t)
		err := NewWriter(WriterConfig{API: fake.client()}).Write(context.Background(), pages)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "first")
		assert.Equal(t, 1, fake.page(2).version, "second page untouched")
	})

	t.Run("continue", func(t *testing.T) {
		fake, pages := setup(t)
		rec := &syncCounter{}

		err := NewWriter(WriterConfig{API: fake.client(), Policy: PolicyContinue, Recorder: rec}).Write(context.Background(), pages)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "syncing page first to Confluence page 1")
		assert.NotContains(t, err.Error(), "syncing page second")
		assert.Equal(t, 2, fake.page(2).version, "second page synced")

		assert.Equal(t, []metrics.SyncResult{metrics.SyncFailed, metrics.SyncUpdated}, rec.results)
	})
}

func TestWriter_CanceledContext(t *testing.T) {
	fake := newFakeConfluence(t)
	fake.addPage(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewWriter(WriterConfig{API: fake.client(), Policy: PolicyContinue}).Write(ctx, []page.Page{
		confluencePage("/book/a.md", "a", "<h1>A</h1>\n", 1),
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.calls())
}

func TestParseFailurePolicy(t *testing.T) {
	for in, want := range map[string]FailurePolicy{"": PolicyAbort, "abort": PolicyAbort, " Continue ": PolicyContinue} {
		got, err := ParseFailurePolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseFailurePolicy("retry")
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryConfig, ferrors.GetCategory(err))
}
