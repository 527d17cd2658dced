package formatter

import (
	"context"
	"crypto/md5" // #nosec G501 -- MD5 names temp files by content, not used for security
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"git.home.luguber.info/inful/docbook/internal/command"
	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/logfields"
	"git.home.luguber.info/inful/docbook/internal/metrics"
	"git.home.luguber.info/inful/docbook/internal/page"
)

var (
	pumlFencePattern = regexp.MustCompile("(?s)```puml(.*?)```")

	// "@startuml name" lines lose the name; indentation is kept.
	namedStartPattern = regexp.MustCompile(`(?m)^([ \t]*@startuml)[ \t]+\S[^\n]*$`)
)

// Scratch is where the diagram renderer keeps its temporary files.
type Scratch interface {
	WriteFile(name string, data []byte) (path string, release func(), err error)
	Releaser(path string) func()
}

// DiagramRendererConfig configures the PlantUML renderer.
type DiagramRendererConfig struct {
	Java        string // defaults to "java"
	PlantUMLJar string
	Runner      command.Runner
	Scratch     Scratch
	Logger      *slog.Logger
	Recorder    metrics.Recorder
}

// DiagramRenderer renders ```puml fences to PNG with PlantUML and embeds the
// result as a base64 image.
type DiagramRenderer struct {
	java     string
	jar      string
	runner   command.Runner
	scratch  Scratch
	logger   *slog.Logger
	recorder metrics.Recorder
	locks    keyedMutex
}

// NewDiagramRenderer creates the diagram formatter.
func NewDiagramRenderer(cfg DiagramRendererConfig) *DiagramRenderer {
	java := cfg.Java
	if java == "" {
		java = "java"
	}
	runner := cfg.Runner
	if runner == nil {
		runner = command.NewExecRunner(0, cfg.Logger)
	}
	return &DiagramRenderer{
		java:     java,
		jar:      cfg.PlantUMLJar,
		runner:   runner,
		scratch:  cfg.Scratch,
		logger:   orDiscard(cfg.Logger),
		recorder: metrics.OrNoop(cfg.Recorder),
	}
}

// Name implements Formatter.
func (*DiagramRenderer) Name() string { return "diagrams" }

// Format implements Formatter.
func (f *DiagramRenderer) Format(ctx context.Context, p page.Page) (page.Page, error) {
	content, err := replaceAllSubmatch(pumlFencePattern, p.Content(), func(m []string) (string, error) {
		f.logger.Debug("Found PlantUML diagram to render", logfields.Slug(p.Slug()))

		source, err := NormalizeDiagram(m[1])
		if err != nil {
			return "", ferrors.WrapError(err, ferrors.CategoryContent,
				fmt.Sprintf("ensure the PUML in %s starts with @startuml and ends with @enduml", p.Slug())).
				Fatal().
				WithContext("slug", p.Slug()).
				Build()
		}

		png, err := f.render(ctx, p, source)
		if err != nil {
			return "", err
		}
		return "![Diagram](data:image/png;base64," + base64.StdEncoding.EncodeToString(png) + ")", nil
	})
	if err != nil {
		return page.Page{}, err
	}
	return p.WithContent(content), nil
}

func (f *DiagramRenderer) render(ctx context.Context, p page.Page, source string) ([]byte, error) {
	hash := DiagramHash(source)

	// Identical diagrams share file names; one render at a time per hash.
	unlock := f.locks.lock(hash)
	defer unlock()

	if f.scratch == nil {
		return nil, ferrors.InternalError("diagram renderer has no scratch directory").Build()
	}
	pumlPath, release, err := f.scratch.WriteFile(hash+".puml", []byte(source))
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to write diagram source").Fatal().Build()
	}
	defer release()
	pngPath := strings.TrimSuffix(pumlPath, ".puml") + ".png"
	defer f.scratch.Releaser(pngPath)()

	f.logger.Debug("Rendering PlantUML diagram", logfields.Slug(p.Slug()), logfields.File(pumlPath), slog.String("jar", f.jar))

	start := time.Now()
	res, err := f.runner.Run(ctx, f.java, "-jar", f.jar, pumlPath)
	f.recorder.ObserveSubprocessDuration("plantuml", time.Since(start), res.ExitCode)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategorySubprocess,
			fmt.Sprintf("failed to run PlantUML for %s", p.Slug())).
			Fatal().
			WithContext("slug", p.Slug()).
			Build()
	}
	if !res.Success() {
		return nil, ferrors.SubprocessError(fmt.Sprintf("failed to render PUML in %s - starts \"%s\". Output was: %s",
			p.Slug(), truncate(source, 15), strings.TrimSpace(res.Output))).
			WithContext("slug", p.Slug()).
			WithContext("exit_code", res.ExitCode).
			Build()
	}

	png, err := os.ReadFile(pngPath) // #nosec G304 -- path is inside the run workspace
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategorySubprocess,
			fmt.Sprintf("PlantUML did not produce an image for %s", p.Slug())).
			Fatal().
			WithContext("slug", p.Slug()).
			Build()
	}

	f.logger.Debug("PlantUML diagram render complete", logfields.Slug(p.Slug()))
	return png, nil
}

// NormalizeDiagram strips names from "@startuml name" lines, trims the
// source and checks it opens with the start marker.
func NormalizeDiagram(source string) (string, error) {
	normalized := strings.TrimSpace(namedStartPattern.ReplaceAllString(source, "$1"))
	if !strings.HasPrefix(normalized, PlantUMLStartMarker) {
		return "", fmt.Errorf("diagram source does not start with %s", PlantUMLStartMarker)
	}
	return normalized + "\n", nil
}

// DiagramHash is the hex MD5 of a normalized diagram source. It names the
// temporary source and image files.
func DiagramHash(source string) string {
	sum := md5.Sum([]byte(source)) // #nosec G401 -- content addressing only
	return hex.EncodeToString(sum[:])
}

// keyedMutex serializes work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*sync.Mutex{}
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
