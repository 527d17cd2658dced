package confluence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const (
	jpgDataURI  = "data:image/jpg;base64,WW91IHdpbGwgZmluZCB0aGF0IEkgYW0gYSBKUEcsIG1ha2Ugbm8gbWlzdGFrZXM="
	pngDataURI  = "data:image/png;base64,SSBhbSBhIFBORyBob25lc3RseSBndXY="
	jpgFilename = "9b808ef712db49f2a0cc5e6e0dd7758e.jpg"
	pngFilename = "b3b5b79f3d9b7144e6046bb148bccad5.png"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   []byte
}

type fakePage struct {
	version     int
	title       string
	body        string
	hash        string
	hashVersion int
	hasHash     bool
	attachments []string
	uploads     map[string][]byte
	failPut     bool
}

// fakeConfluence is an in-memory Confluence content API that records every request.
type fakeConfluence struct {
	mu             sync.Mutex
	pages          map[int]*fakePage
	requests       []recordedRequest
	propertyStatus int
	server         *httptest.Server
}

func newFakeConfluence(t *testing.T) *fakeConfluence {
	t.Helper()
	f := &fakeConfluence{pages: make(map[int]*fakePage)}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeConfluence) client() *Client {
	return NewClient(f.server.Client(), f.server.URL, "Basic dXNlcjpwYXNz", nil)
}

// addPage registers a page at version 1; configure adjusts it under the lock.
func (f *fakeConfluence) addPage(id int, configure ...func(p *fakePage)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &fakePage{version: 1, title: fmt.Sprintf("Page %d", id), uploads: make(map[string][]byte)}
	for _, c := range configure {
		c(p)
	}
	f.pages[id] = p
}

func (f *fakeConfluence) setPropertyStatus(code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.propertyStatus = code
}

// page returns a copy of the remote state of a page.
func (f *fakeConfluence) page(id int) fakePage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.pages[id]
}

func (f *fakeConfluence) recorded() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.requests)
}

// calls returns "METHOD path" for every request so far.
func (f *fakeConfluence) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.requests))
	for _, r := range f.requests {
		out = append(out, r.Method+" "+r.Path)
	}
	return out
}

func (f *fakeConfluence) writes() int {
	n := 0
	for _, c := range f.calls() {
		if strings.HasPrefix(c, http.MethodPut) || strings.HasPrefix(c, http.MethodPost) {
			n++
		}
	}
	return n
}

func (f *fakeConfluence) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = nil
}

func (f *fakeConfluence) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   body,
	})

	rest, ok := strings.CutPrefix(r.URL.Path, "/rest/api/content/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	parts := strings.Split(rest, "/")
	id, err := strconv.Atoi(parts[0])
	p := f.pages[id]
	if err != nil || p == nil {
		http.NotFound(w, r)
		return
	}

	switch {
	case len(parts) == 1 && r.Method == http.MethodGet:
		writeJSON(w, map[string]any{
			"id":      strconv.Itoa(id),
			"type":    "page",
			"title":   p.title,
			"space":   map[string]any{"key": "DOC"},
			"version": map[string]any{"number": strconv.Itoa(p.version)},
		})
	case len(parts) == 1 && r.Method == http.MethodPut:
		if p.failPut {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = io.WriteString(w, `{"message":"boom"}`)
			return
		}
		var upd PageUpdate
		if err := json.Unmarshal(body, &upd); err != nil || upd.Version.Number != p.version+1 {
			w.WriteHeader(http.StatusConflict)
			return
		}
		p.version = upd.Version.Number
		p.body = upd.Body.Storage.Value
		writeJSON(w, map[string]any{})
	case len(parts) == 3 && parts[1] == "property":
		f.handleProperty(w, r, p, body)
	case len(parts) == 3 && parts[1] == "child" && parts[2] == "attachment":
		f.handleAttachment(w, r, p, body)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeConfluence) handleProperty(w http.ResponseWriter, r *http.Request, p *fakePage, body []byte) {
	switch r.Method {
	case http.MethodGet:
		if f.propertyStatus != 0 {
			w.WriteHeader(f.propertyStatus)
			return
		}
		if !p.hasHash {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, map[string]any{
			"key":     HashPropertyKey,
			"value":   p.hash,
			"version": map[string]any{"number": p.hashVersion},
		})
	case http.MethodPost, http.MethodPut:
		var prop HashProperty
		if err := json.Unmarshal(body, &prop); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		p.hash = prop.Value
		p.hashVersion = prop.Version.Number
		p.hasHash = true
		writeJSON(w, map[string]any{})
	}
}

func (f *fakeConfluence) handleAttachment(w http.ResponseWriter, r *http.Request, p *fakePage, body []byte) {
	switch r.Method {
	case http.MethodGet:
		results := make([]map[string]any, 0, len(p.attachments))
		for _, a := range p.attachments {
			results = append(results, map[string]any{"title": a})
		}
		writeJSON(w, map[string]any{"results": results, "_links": map[string]any{}})
	case http.MethodPost:
		_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		part, err := multipart.NewReader(bytes.NewReader(body), params["boundary"]).NextPart()
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(part)
		p.attachments = append(p.attachments, part.FileName())
		p.uploads[part.FileName()] = data
		writeJSON(w, map[string]any{"results": []any{}})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
