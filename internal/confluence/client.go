package confluence

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/logfields"
	"git.home.luguber.info/inful/docbook/internal/retry"
	"git.home.luguber.info/inful/docbook/internal/version"
)

// HashPropertyKey is the content property holding the hash of the last synced body.
const HashPropertyKey = "docbook-hash"

const (
	contentAPIPath      = "/rest/api/content"
	attachmentPageLimit = 100
	maxAttachmentPages  = 1000
	maxErrorBody        = 512
)

// Version is a Confluence version counter. The API has returned it both as
// a number and as a string.
type Version struct {
	Number int `json:"number"`
}

// UnmarshalJSON accepts {"number": 3} and {"number": "3"}.
func (v *Version) UnmarshalJSON(data []byte) error {
	var raw struct {
		Number json.RawMessage `json:"number"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw.Number) == 0 || string(raw.Number) == "null" {
		v.Number = 0
		return nil
	}
	s := strings.Trim(string(raw.Number), `"`)
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid version number %s: %w", raw.Number, err)
	}
	v.Number = n
	return nil
}

// Space identifies a Confluence space.
type Space struct {
	Key string `json:"key"`
}

// Page is the metadata of a Confluence page that must be echoed on update.
type Page struct {
	ID      string  `json:"id"`
	Type    string  `json:"type"`
	Title   string  `json:"title"`
	Space   Space   `json:"space"`
	Version Version `json:"version"`
}

// HashProperty is the docbook-hash content property.
type HashProperty struct {
	Key     string  `json:"key"`
	Value   string  `json:"value"`
	Version Version `json:"version"`
}

// Storage is a page body in storage representation.
type Storage struct {
	Value          string `json:"value"`
	Representation string `json:"representation"`
}

// Body wraps the storage representation.
type Body struct {
	Storage Storage `json:"storage"`
}

// PageUpdate is the PUT payload for a page body update.
type PageUpdate struct {
	ID      string  `json:"id"`
	Type    string  `json:"type"`
	Title   string  `json:"title"`
	Space   Space   `json:"space"`
	Body    Body    `json:"body"`
	Version Version `json:"version"`
}

type attachmentList struct {
	Results []struct {
		Title string `json:"title"`
	} `json:"results"`
	Links struct {
		Next string `json:"next"`
	} `json:"_links"`
}

// Client talks to the Confluence content REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authHeader string
	retry      retry.Policy
	logger     *slog.Logger
}

// NewClient creates a client for the Confluence instance at baseURL.
// authHeader is sent verbatim as the Authorization header.
func NewClient(httpClient *http.Client, baseURL, authHeader string, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		authHeader: authHeader,
		logger:     logger,
	}
}

// WithRetry enables retries for GET requests that fail with a transport
// error or a 429/502/503/504 response. Writes are never retried. A new
// client does not retry.
func (c *Client) WithRetry(p retry.Policy) *Client {
	c.retry = p
	return c
}

// BaseURL returns the instance URL without trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// GetHashProperty fetches the docbook-hash property. found is false when
// the page has no such property yet.
func (c *Client) GetHashProperty(ctx context.Context, pageID int) (prop HashProperty, found bool, err error) {
	req, err := c.newRequest(ctx, http.MethodGet, fmt.Sprintf("%d/property/%s?expand=content,version", pageID, HashPropertyKey), nil)
	if err != nil {
		return HashProperty{}, false, err
	}
	if err := c.do(req, &prop); err != nil {
		if ferrors.HasCategory(err, ferrors.CategoryNotFound) {
			return HashProperty{}, false, nil
		}
		return HashProperty{}, false, err
	}
	return prop, true, nil
}

// GetPage fetches the page metadata needed for an update.
func (c *Client) GetPage(ctx context.Context, pageID int) (Page, error) {
	req, err := c.newRequest(ctx, http.MethodGet, strconv.Itoa(pageID), nil)
	if err != nil {
		return Page{}, err
	}
	var p Page
	if err := c.do(req, &p); err != nil {
		return Page{}, err
	}
	return p, nil
}

// ListAttachments returns the titles (file names) of all attachments of a page.
// Paging stops with an error when a page repeats the previous one or after
// maxAttachmentPages pages.
func (c *Client) ListAttachments(ctx context.Context, pageID int) ([]string, error) {
	var titles, previous []string
	for start, n := 0, 0; ; n++ {
		if n == maxAttachmentPages {
			return nil, attachmentPagingError(pageID, start, "too many attachment pages")
		}
		endpoint := fmt.Sprintf("%d/child/attachment?limit=%d&start=%d", pageID, attachmentPageLimit, start)
		req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		var list attachmentList
		if err := c.do(req, &list); err != nil {
			return nil, err
		}
		current := make([]string, 0, len(list.Results))
		for _, r := range list.Results {
			current = append(current, r.Title)
		}
		if n > 0 && slices.Equal(current, previous) {
			return nil, attachmentPagingError(pageID, start, "attachment listing returned the same page twice")
		}
		titles = append(titles, current...)
		if list.Links.Next == "" || len(current) == 0 {
			return titles, nil
		}
		previous = current
		start += len(current)
	}
}

func attachmentPagingError(pageID, start int, msg string) error {
	return ferrors.RemoteError(msg).
		WithContext("page_id", pageID).
		WithContext("start", start).
		Build()
}

// UploadAttachment adds a new attachment to a page.
func (c *Client) UploadAttachment(ctx context.Context, pageID int, filename string, data []byte) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to build attachment upload").Build()
	}
	if _, err := part.Write(data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to build attachment upload").Build()
	}
	if err := mw.Close(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to build attachment upload").Build()
	}

	req, err := c.newRequest(ctx, http.MethodPost, fmt.Sprintf("%d/child/attachment", pageID), nil)
	if err != nil {
		return err
	}
	req.Body = io.NopCloser(&buf)
	req.ContentLength = int64(buf.Len())
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Atlassian-Token", "nocheck")
	return c.do(req, nil)
}

// UpdatePage replaces the page body.
func (c *Client) UpdatePage(ctx context.Context, pageID int, update PageUpdate) error {
	req, err := c.newRequest(ctx, http.MethodPut, strconv.Itoa(pageID), update)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// SetHashProperty writes the docbook-hash property. method is POST for a
// page without the property and PUT otherwise.
func (c *Client) SetHashProperty(ctx context.Context, pageID int, method, hash string, number int) error {
	body := HashProperty{Key: HashPropertyKey, Value: hash, Version: Version{Number: number}}
	req, err := c.newRequest(ctx, method, fmt.Sprintf("%d/property/%s", pageID, HashPropertyKey), body)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	target := c.baseURL + contentAPIPath + "/" + strings.TrimPrefix(endpoint, "/")
	if _, err := url.Parse(target); err != nil {
		return nil, ferrors.ConfigError("invalid Confluence URL").
			WithCause(err).
			WithContext("url", c.baseURL).
			Build()
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryInternal, "failed to marshal request body").Build()
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, ferrors.RemoteError("failed to create request").
			WithCause(err).
			WithContext("method", method).
			WithContext("url", target).
			Build()
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("User-Agent", version.UserAgent())
	return req, nil
}

func (c *Client) do(req *http.Request, result any) error {
	for retries := 0; ; retries++ {
		resp, err := c.send(req)
		if err == nil && !(retryableStatus(resp.StatusCode) && c.canRetry(req, retries)) {
			return c.handle(req, resp, result)
		}
		if err != nil && (req.Context().Err() != nil || !c.canRetry(req, retries)) {
			return err
		}

		attrs := []any{
			logfields.Method(req.Method),
			logfields.URL(req.URL.String()),
			slog.Int("retry", retries+1),
			slog.Duration("delay", c.retry.Delay(retries+1)),
		}
		if err != nil {
			attrs = append(attrs, logfields.Error(err))
		} else {
			attrs = append(attrs, logfields.Status(resp.StatusCode))
			_ = resp.Body.Close()
		}
		c.logger.Warn("Retrying Confluence request", attrs...)

		if err := c.retry.Wait(req.Context(), retries+1); err != nil {
			return err
		}
	}
}

func (c *Client) canRetry(req *http.Request, retries int) bool {
	return req.Method == http.MethodGet && c.retry.Allows(retries)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	c.logger.Debug("Confluence request", logfields.Method(req.Method), logfields.URL(req.URL.String()))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, ferrors.RemoteError("failed to execute Confluence request").
			WithCause(err).
			WithContext("method", req.Method).
			WithContext("url", req.URL.String()).
			Build()
	}
	return resp, nil
}

func (c *Client) handle(req *http.Request, resp *http.Response, result any) error {
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return c.statusError(req, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ferrors.RemoteError("failed to read Confluence response").
			WithCause(err).
			WithContext("method", req.Method).
			WithContext("url", req.URL.String()).
			Build()
	}
	if result == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		c.logger.Error("Failed to decode Confluence response",
			logfields.Method(req.Method),
			logfields.URL(req.URL.String()),
			slog.String("response", string(data)))
		return ferrors.RemoteError("failed to decode Confluence response").
			WithCause(err).
			WithContext("method", req.Method).
			WithContext("url", req.URL.String()).
			Build()
	}
	return nil
}

func (c *Client) statusError(req *http.Request, resp *http.Response) error {
	write := req.Method == http.MethodPut || req.Method == http.MethodPost

	var body string
	if write {
		data, _ := io.ReadAll(resp.Body)
		body = string(data)
		c.logger.Error("Confluence rejected write request",
			logfields.Method(req.Method),
			logfields.URL(req.URL.String()),
			logfields.Status(resp.StatusCode),
			slog.String("response", body))
	} else {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		body = strings.ReplaceAll(string(data), "\n", " ")
	}

	category := ferrors.CategoryRemote
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		category = ferrors.CategoryAuth
	case http.StatusNotFound:
		category = ferrors.CategoryNotFound
	}

	return ferrors.NewError(category, fmt.Sprintf("Confluence API error: %s %s returned %s", req.Method, req.URL.Path, resp.Status)).
		WithContext("status", resp.Status).
		WithContext("code", resp.StatusCode).
		WithContext("method", req.Method).
		WithContext("url", req.URL.String()).
		WithContext("response", body).
		Build()
}
