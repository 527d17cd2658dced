// Package watch rebuilds output whenever files under the watched roots change.
package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/logfields"
)

// DefaultDebounce is the quiet period after the last change before a rebuild starts.
const DefaultDebounce = 300 * time.Millisecond

// BuildFunc performs one rebuild.
type BuildFunc func(ctx context.Context) error

// Config configures a Watcher.
type Config struct {
	// Roots are watched recursively. Empty entries are skipped.
	Roots []string
	// Ignore lists files whose changes never trigger a rebuild, typically
	// the outputs the build itself writes. Their .<name>.tmp-* siblings
	// are ignored too.
	Ignore   []string
	Debounce time.Duration
	Build    BuildFunc
	Logger   *slog.Logger
}

// Watcher runs Build after changes settle. Builds never overlap; changes
// that arrive during a build cause exactly one more build.
type Watcher struct {
	roots    []string
	ignore   map[string]struct{}
	debounce time.Duration
	build    BuildFunc
	logger   *slog.Logger
}

// New validates cfg and returns a Watcher.
func New(cfg Config) (*Watcher, error) {
	if cfg.Build == nil {
		return nil, ferrors.InternalError("watch needs a build function").Build()
	}

	var roots []string
	for _, r := range cfg.Roots {
		if r == "" {
			continue
		}
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, ferrors.FileSystemError("resolving watch root").WithCause(err).WithContext("path", r).Build()
		}
		roots = append(roots, abs)
	}
	if len(roots) == 0 {
		return nil, ferrors.ConfigError("nothing to watch").Build()
	}

	ignore := make(map[string]struct{}, len(cfg.Ignore))
	for _, p := range cfg.Ignore {
		if abs, err := filepath.Abs(p); err == nil {
			ignore[abs] = struct{}{}
		}
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Watcher{
		roots:    roots,
		ignore:   ignore,
		debounce: debounce,
		build:    cfg.Build,
		logger:   logger,
	}, nil
}

// Run watches until ctx is canceled. Build failures are logged and the
// loop keeps going; only watcher setup errors are returned.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return ferrors.InternalError("creating file watcher").WithCause(err).Build()
	}
	defer func() { _ = fsw.Close() }()

	for _, root := range w.roots {
		info, err := os.Stat(root)
		if err != nil {
			return ferrors.NotFoundError("watch root not found").WithCause(err).WithContext("path", root).Build()
		}
		if !info.IsDir() {
			return ferrors.ValidationError("watch root is not a directory").WithContext("path", root).Build()
		}
		w.addDirsRecursive(fsw, root)
	}

	rebuild := make(chan struct{}, 1)
	deb := newDebouncer(w.debounce, func() {
		select {
		case rebuild <- struct{}{}:
		default:
		}
	})
	defer deb.stop()

	loopCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.rebuildLoop(loopCtx, rebuild)
	}()
	defer wg.Wait()
	defer cancel()

	w.logger.Info("Watching for changes", slog.Any("roots", w.roots))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if w.handleEvent(fsw, ev) {
				deb.trigger()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("File watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) rebuildLoop(ctx context.Context, rebuild <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-rebuild:
			w.logger.Info("Change detected; rebuilding")
			start := time.Now()
			err := w.build(ctx)
			switch {
			case err == nil:
				w.logger.Info("Rebuild complete",
					logfields.DurationMS(float64(time.Since(start).Microseconds())/1000))
			case errors.Is(err, context.Canceled):
				return
			default:
				w.logger.Warn("Rebuild failed", logfields.Error(err))
			}
		}
	}
}

// handleEvent reports whether ev should trigger a rebuild. New directories
// are added to the watch set.
func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, ev fsnotify.Event) bool {
	if shouldIgnore(ev.Name) {
		return false
	}
	if abs, err := filepath.Abs(ev.Name); err == nil && w.ignored(abs) {
		return false
	}
	if ev.Op.Has(fsnotify.Chmod) && !ev.Op.Has(fsnotify.Write) {
		return false
	}
	if ev.Op.Has(fsnotify.Create) {
		if fi, err := os.Stat(ev.Name); err == nil && fi.IsDir() {
			w.addDirsRecursive(fsw, ev.Name)
		}
	}
	w.logger.Debug("File change detected", logfields.Path(ev.Name), slog.String("op", ev.Op.String()))
	return true
}

// ignored matches an Ignore entry or one of its write-then-rename
// temporaries named .<base>.tmp-*.
func (w *Watcher) ignored(abs string) bool {
	if _, ok := w.ignore[abs]; ok {
		return true
	}
	base := filepath.Base(abs)
	if !strings.HasPrefix(base, ".") {
		return false
	}
	dir := filepath.Dir(abs)
	for path := range w.ignore {
		if filepath.Dir(path) == dir && strings.HasPrefix(base, "."+filepath.Base(path)+".tmp-") {
			return true
		}
	}
	return false
}

func (w *Watcher) addDirsRecursive(fsw *fsnotify.Watcher, root string) {
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if err := fsw.Add(path); err != nil {
				w.logger.Warn("Failed to watch directory", logfields.Path(path), logfields.Error(err))
			}
		}
		return nil
	})
}

// shouldIgnore reports editor swap and lock files.
func shouldIgnore(path string) bool {
	base := filepath.Base(path)
	switch {
	case strings.HasSuffix(base, "~"),
		strings.HasSuffix(base, ".swp"),
		strings.HasSuffix(base, ".swx"),
		strings.HasPrefix(base, ".#"),
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#"),
		base == ".DS_Store",
		base == "Thumbs.db",
		base == "4913":
		return true
	}
	return false
}

// debouncer runs fn once no trigger has arrived for d.
type debouncer struct {
	mu    sync.Mutex
	d     time.Duration
	fn    func()
	timer *time.Timer
}

func newDebouncer(d time.Duration, fn func()) *debouncer {
	return &debouncer{d: d, fn: fn}
}

func (b *debouncer) trigger() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(b.d, b.fn)
}

func (b *debouncer) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
	}
}
