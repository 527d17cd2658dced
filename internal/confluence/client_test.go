package confluence

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/retry"
)

func TestClient_Headers(t *testing.T) {
	fake := newFakeConfluence(t)
	fake.addPage(7)
	c := fake.client()

	require.NoError(t, c.UploadAttachment(context.Background(), 7, pngFilename, []byte("png")))
	_, err := c.GetPage(context.Background(), 7)
	require.NoError(t, err)

	requests := fake.recorded()
	require.Len(t, requests, 2)
	upload := requests[0]
	assert.Equal(t, "Basic dXNlcjpwYXNz", upload.Header.Get("Authorization"))
	assert.Equal(t, "nocheck", upload.Header.Get("X-Atlassian-Token"))
	assert.True(t, strings.HasPrefix(upload.Header.Get("Content-Type"), "multipart/form-data"))
	assert.Equal(t, "png", string(fake.page(7).uploads[pngFilename]))

	get := requests[1]
	assert.Equal(t, "Basic dXNlcjpwYXNz", get.Header.Get("Authorization"))
	assert.Empty(t, get.Header.Get("X-Atlassian-Token"))
}

func TestClient_GetPageAcceptsStringVersion(t *testing.T) {
	fake := newFakeConfluence(t)
	fake.addPage(7, func(p *fakePage) { p.version = 41 })

	p, err := fake.client().GetPage(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, Page{ID: "7", Type: "page", Title: "Page 7", Space: Space{Key: "DOC"}, Version: Version{Number: 41}}, p)
}

func TestClient_GetHashPropertyNotFound(t *testing.T) {
	fake := newFakeConfluence(t)
	fake.addPage(7)

	prop, found, err := fake.client().GetHashProperty(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, prop.Value)
	assert.Equal(t, "expand=content,version", fake.recorded()[0].Query)
}

func TestClient_ListAttachmentsFollowsPages(t *testing.T) {
	var mu sync.Mutex
	var starts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := r.URL.Query().Get("start")
		mu.Lock()
		starts = append(starts, start)
		mu.Unlock()
		if start == "0" {
			writeJSON(w, map[string]any{
				"results": []map[string]any{{"title": "a.png"}, {"title": "b.png"}},
				"_links":  map[string]any{"next": "/rest/api/content/1/child/attachment?start=2"},
			})
			return
		}
		writeJSON(w, map[string]any{"results": []map[string]any{{"title": "c.png"}}, "_links": map[string]any{}})
	}))
	t.Cleanup(srv.Close)

	titles, err := NewClient(srv.Client(), srv.URL, "x", nil).ListAttachments(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.png", "c.png"}, titles)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"0", "2"}, starts)
}

func TestClient_ListAttachmentsStopsOnRepeatedPage(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, map[string]any{
			"results": []map[string]any{{"title": "a.png"}},
			"_links":  map[string]any{"next": "/rest/api/content/1/child/attachment?start=1"},
		})
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.Client(), srv.URL, "x", nil).ListAttachments(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryRemote, ferrors.GetCategory(err))
	assert.Contains(t, err.Error(), "same page twice")
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_ListAttachmentsPageCap(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, map[string]any{
			"results": []map[string]any{{"title": r.URL.Query().Get("start") + ".png"}},
			"_links":  map[string]any{"next": "more"},
		})
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.Client(), srv.URL, "x", nil).ListAttachments(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many attachment pages")
	assert.Equal(t, int32(maxAttachmentPages), calls.Load())
}

func TestClient_ErrorCategories(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		category ferrors.ErrorCategory
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, category: ferrors.CategoryAuth},
		{name: "forbidden", status: http.StatusForbidden, category: ferrors.CategoryAuth},
		{name: "not found", status: http.StatusNotFound, category: ferrors.CategoryNotFound},
		{name: "server error", status: http.StatusInternalServerError, category: ferrors.CategoryRemote},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			t.Cleanup(srv.Close)

			_, err := NewClient(srv.Client(), srv.URL, "x", nil).GetPage(context.Background(), 1)
			require.Error(t, err)
			assert.Equal(t, tt.category, ferrors.GetCategory(err))
		})
	}
}

func TestClient_WriteErrorKeepsResponseBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("{\"message\":\"version\nconflict\"}"))
	}))
	t.Cleanup(srv.Close)

	err := NewClient(srv.Client(), srv.URL, "x", nil).UpdatePage(context.Background(), 1, PageUpdate{})
	require.Error(t, err)

	ce, ok := ferrors.AsClassified(err)
	require.True(t, ok)
	body, _ := ce.Context().GetString("response")
	assert.Equal(t, "{\"message\":\"version\nconflict\"}", body)
	method, _ := ce.Context().GetString("method")
	assert.Equal(t, http.MethodPut, method)
	code, _ := ce.Context().Get("code")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestVersion_UnmarshalJSON(t *testing.T) {
	for _, in := range []string{`{"number": 3}`, `{"number": "3"}`} {
		var v Version
		require.NoError(t, v.UnmarshalJSON([]byte(in)))
		assert.Equal(t, 3, v.Number)
	}

	var v Version
	require.Error(t, v.UnmarshalJSON([]byte(`{"number": "three"}`)))
}

func fastRetry(n int) retry.Policy {
	return retry.NewPolicy(retry.ModeFixed, time.Millisecond, time.Millisecond, n)
}

func TestClient_RetriesTransientGet(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]any{"id": "1", "type": "page", "title": "T", "version": map[string]any{"number": 2}})
	}))
	t.Cleanup(srv.Close)

	p, err := NewClient(srv.Client(), srv.URL, "x", nil).WithRetry(fastRetry(2)).GetPage(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Version.Number)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_RetryGivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient(srv.Client(), srv.URL, "x", nil).WithRetry(fastRetry(1)).GetPage(context.Background(), 1)
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryRemote, ferrors.GetCategory(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_WritesAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	err := NewClient(srv.Client(), srv.URL, "x", nil).WithRetry(fastRetry(3)).UpdatePage(context.Background(), 1, PageUpdate{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}
