package confluence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/foundation/normalization"
	"git.home.luguber.info/inful/docbook/internal/logfields"
	"git.home.luguber.info/inful/docbook/internal/metrics"
	"git.home.luguber.info/inful/docbook/internal/page"
)

// FailurePolicy decides what happens after a page fails to sync.
type FailurePolicy string

const (
	// PolicyAbort stops at the first failing page.
	PolicyAbort FailurePolicy = "abort"
	// PolicyContinue syncs the remaining pages and reports all failures at the end.
	PolicyContinue FailurePolicy = "continue"
)

var policyNormalizer = normalization.NewNormalizer(map[string]FailurePolicy{
	"abort":    PolicyAbort,
	"continue": PolicyContinue,
}, PolicyAbort)

// ParseFailurePolicy validates a policy name. Empty means PolicyAbort.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	policy, err := policyNormalizer.Parse(s)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryConfig, "unknown Confluence failure policy").
			WithContext("allowed", policyNormalizer.ValidKeys()).
			Fatal().
			Build()
	}
	return policy, nil
}

// API is the subset of the Confluence REST API the writer needs.
type API interface {
	BaseURL() string
	GetHashProperty(ctx context.Context, pageID int) (HashProperty, bool, error)
	GetPage(ctx context.Context, pageID int) (Page, error)
	ListAttachments(ctx context.Context, pageID int) ([]string, error)
	UploadAttachment(ctx context.Context, pageID int, filename string, data []byte) error
	UpdatePage(ctx context.Context, pageID int, update PageUpdate) error
	SetHashProperty(ctx context.Context, pageID int, method, hash string, version int) error
}

var _ API = (*Client)(nil)

// WriterConfig configures the sync writer.
type WriterConfig struct {
	API           API
	SkipHashCheck bool
	Policy        FailurePolicy
	Logger        *slog.Logger
	Recorder      metrics.Recorder
}

// Writer mirrors pages that carry a confluencePageId into Confluence.
type Writer struct {
	api      API
	skipHash bool
	policy   FailurePolicy
	logger   *slog.Logger
	recorder metrics.Recorder
}

// NewWriter creates the sync writer.
func NewWriter(cfg WriterConfig) *Writer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	policy := cfg.Policy
	if policy == "" {
		policy = PolicyAbort
	}
	return &Writer{
		api:      cfg.API,
		skipHash: cfg.SkipHashCheck,
		policy:   policy,
		logger:   logger.With(logfields.Writer("confluence")),
		recorder: metrics.OrNoop(cfg.Recorder),
	}
}

// Name identifies the writer in logs and metrics.
func (*Writer) Name() string { return "confluence" }

// Write syncs every page with a Confluence page id, in the given order.
// The path to page id map is built for all pages before any page is
// converted, so links can point at pages later in the book.
func (w *Writer) Write(ctx context.Context, pages []page.Page) error {
	links := LinkResolver{BaseURL: w.api.BaseURL(), PageIDs: make(map[string]int)}
	for _, p := range pages {
		if id, ok := p.ConfluencePageID(); ok {
			links.PageIDs[p.Path()] = id
		}
	}

	var failed []error
	for _, p := range pages {
		id, ok := p.ConfluencePageID()
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := w.syncPage(ctx, p, id, links)
		w.recorder.IncSyncPage(result)
		if err == nil {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		err = fmt.Errorf("syncing page %s to Confluence page %d: %w", p.Slug(), id, err)
		if w.policy == PolicyAbort {
			return err
		}
		w.logger.Error("Confluence sync failed, continuing with next page",
			logfields.Slug(p.Slug()), logfields.PageID(id), logfields.Error(err))
		failed = append(failed, err)
	}

	if len(failed) > 0 {
		return ferrors.RemoteError(fmt.Sprintf("%d page(s) failed to sync to Confluence", len(failed))).
			WithCause(errors.Join(failed...)).
			Build()
	}
	return nil
}

func (w *Writer) syncPage(ctx context.Context, p page.Page, id int, links LinkResolver) (metrics.SyncResult, error) {
	logger := w.logger.With(logfields.Slug(p.Slug()), logfields.PageID(id))
	logger.Info("Updating Confluence page")

	doc, err := ConvertStorage(p.Content(), p.Path(), links)
	if err != nil {
		return metrics.SyncFailed, err
	}

	hashMethod := http.MethodPost
	propertyVersion := 0
	if !w.skipHash {
		prop, found, err := w.api.GetHashProperty(ctx, id)
		if err != nil {
			return metrics.SyncFailed, err
		}
		if found {
			hashMethod = http.MethodPut
			propertyVersion = prop.Version.Number
		}
		if prop.Value == doc.Hash {
			logger.Info("Skipping page, already up to date")
			return metrics.SyncUnchanged, nil
		}
	}

	current, err := w.api.GetPage(ctx, id)
	if err != nil {
		return metrics.SyncFailed, err
	}

	existing, err := w.api.ListAttachments(ctx, id)
	if err != nil {
		return metrics.SyncFailed, err
	}
	for _, a := range doc.Attachments {
		if slices.Contains(existing, a.Filename) {
			w.recorder.IncAttachment(metrics.AttachmentExisting)
			continue
		}
		logger.Debug("Uploading attachment", logfields.File(a.Filename))
		if err := w.api.UploadAttachment(ctx, id, a.Filename, a.Data); err != nil {
			return metrics.SyncFailed, err
		}
		w.recorder.IncAttachment(metrics.AttachmentUploaded)
	}

	update := PageUpdate{
		ID:      current.ID,
		Type:    current.Type,
		Title:   current.Title,
		Space:   Space{Key: current.Space.Key},
		Body:    Body{Storage: Storage{Value: doc.Body, Representation: "storage"}},
		Version: Version{Number: current.Version.Number + 1},
	}
	if err := w.api.UpdatePage(ctx, id, update); err != nil {
		return metrics.SyncFailed, err
	}

	if !w.skipHash {
		if err := w.api.SetHashProperty(ctx, id, hashMethod, doc.Hash, propertyVersion+1); err != nil {
			return metrics.SyncFailed, err
		}
	}

	logger.Debug("Confluence page updated", slog.Int("version", update.Version.Number))
	return metrics.SyncUpdated, nil
}
