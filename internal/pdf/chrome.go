package pdf

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"git.home.luguber.info/inful/docbook/internal/command"
	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/logfields"
)

// A4 in inches with 15mm margins.
const (
	paperWidthInches  = 8.27
	paperHeightInches = 11.69
	marginInches      = 0.59
)

// DefaultChromeTimeout bounds page loading when the context has no deadline.
const DefaultChromeTimeout = 60 * time.Second

// Chrome renders PDFs with headless Chrome. The browser is launched on first
// use and kept until Close. Rod downloads Chromium when no binary is found.
type Chrome struct {
	bin     string
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	browser *rod.Browser
}

var _ Renderer = (*Chrome)(nil)

// NewChrome creates the backend. bin may name a pre-installed browser.
func NewChrome(bin string, timeout time.Duration, logger *slog.Logger) *Chrome {
	if timeout <= 0 {
		timeout = DefaultChromeTimeout
	}
	return &Chrome{bin: bin, timeout: timeout, logger: orDiscard(logger)}
}

// Name implements Renderer.
func (*Chrome) Name() string { return BackendChrome }

// Render implements Renderer. Chrome has no exit code; the result is always
// zero when err is nil.
func (c *Chrome) Render(ctx context.Context, htmlPath, pdfPath string) (command.Result, error) {
	if err := ctx.Err(); err != nil {
		return command.Result{}, err
	}

	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return command.Result{}, ferrors.WrapError(err, ferrors.CategoryFileSystem, "cannot resolve HTML path").
			WithContext("path", htmlPath).
			Build()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ensureBrowser(); err != nil {
		return command.Result{}, err
	}

	start := time.Now()
	page, err := c.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: fileURL(abs)})
	if err != nil {
		return command.Result{}, chromeError(err, "failed to open page", htmlPath)
	}
	defer func() { _ = page.Close() }()

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			return command.Result{}, context.DeadlineExceeded
		}
	}
	if err := page.Timeout(timeout).WaitLoad(); err != nil {
		return command.Result{}, chromeError(err, "failed to load page", htmlPath)
	}

	reader, err := page.PDF(printOptions())
	if err != nil {
		return command.Result{}, chromeError(err, "failed to print PDF", htmlPath)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return command.Result{}, chromeError(err, "failed to read PDF stream", htmlPath)
	}

	// #nosec G306 -- generated PDFs are published artifacts.
	if err := os.WriteFile(pdfPath, data, 0o644); err != nil {
		return command.Result{}, ferrors.WrapError(err, ferrors.CategoryFileSystem, "cannot write PDF").
			WithContext("path", pdfPath).
			Build()
	}

	c.logger.Debug("Chrome rendered PDF",
		logfields.Path(pdfPath),
		logfields.DurationMS(float64(time.Since(start).Milliseconds())))
	return command.Result{}, nil
}

// Close shuts the browser down if it was started.
func (c *Chrome) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.browser == nil {
		return nil
	}
	err := c.browser.Close()
	c.browser = nil
	return err
}

func (c *Chrome) ensureBrowser() error {
	if c.browser != nil {
		return nil
	}

	l := launcher.New()
	if c.bin != "" {
		l = l.Bin(c.bin).NoSandbox(true)
	}
	if os.Getenv("CI") == "true" {
		l = l.NoSandbox(true)
	}

	u, err := l.Launch()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategorySubprocess, "failed to launch Chrome").Fatal().Build()
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return ferrors.WrapError(err, ferrors.CategorySubprocess, "failed to connect to Chrome").Fatal().Build()
	}
	c.browser = browser
	return nil
}

func printOptions() *proto.PagePrintToPDF {
	return &proto.PagePrintToPDF{
		PaperWidth:      floatPtr(paperWidthInches),
		PaperHeight:     floatPtr(paperHeightInches),
		MarginTop:       floatPtr(marginInches),
		MarginBottom:    floatPtr(marginInches),
		MarginLeft:      floatPtr(marginInches),
		MarginRight:     floatPtr(marginInches),
		PrintBackground: true,
	}
}

func chromeError(err error, msg, path string) error {
	return ferrors.WrapError(err, ferrors.CategorySubprocess, fmt.Sprintf("%s %s", msg, path)).
		Fatal().
		WithContext("path", path).
		Build()
}

// fileURL returns the escaped file:// URL of an absolute path.
func fileURL(abs string) string {
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

func floatPtr(v float64) *float64 {
	return &v
}
