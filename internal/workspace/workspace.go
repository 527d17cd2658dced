package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/docbook/internal/logfields"
)

// ErrNotCreated is returned by operations that need the workspace directory before Create ran.
var ErrNotCreated = errors.New("workspace not created")

// Manager handles the ephemeral workspace directory of a single run.
type Manager struct {
	baseDir string
	dir     string
	logger  *slog.Logger
}

// NewManager creates a new workspace manager rooted at baseDir (os.TempDir when empty).
func NewManager(baseDir string, logger *slog.Logger) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		baseDir: baseDir,
		logger:  logger,
	}
}

// Create creates a timestamped workspace directory. Calling it again is a no-op.
func (m *Manager) Create() error {
	if m.dir != "" {
		return nil
	}

	if err := os.MkdirAll(m.baseDir, 0o750); err != nil {
		return fmt.Errorf("failed to create workspace base directory: %w", err)
	}

	// MkdirTemp appends a random suffix so parallel runs never share a directory.
	pattern := fmt.Sprintf("docbook-%s-", time.Now().Format("20060102-150405"))
	dir, err := os.MkdirTemp(m.baseDir, pattern)
	if err != nil {
		return fmt.Errorf("failed to create workspace directory: %w", err)
	}

	m.dir = dir
	m.logger.Debug("Created workspace", logfields.Path(dir))
	return nil
}

// Path returns the path to the workspace directory, empty before Create.
func (m *Manager) Path() string {
	return m.dir
}

// Cleanup removes the workspace directory and everything left in it.
func (m *Manager) Cleanup() error {
	if m.dir == "" {
		return nil
	}

	if err := os.RemoveAll(m.dir); err != nil {
		return fmt.Errorf("failed to cleanup workspace: %w", err)
	}

	m.logger.Debug("Cleaned up workspace", logfields.Path(m.dir))
	m.dir = ""
	return nil
}

// WriteFile writes data to name inside the workspace and returns its path
// together with a release function that removes the file. The release
// function is safe to call more than once and never fails loudly: a leaked
// temp file is logged, not returned.
func (m *Manager) WriteFile(name string, data []byte) (string, func(), error) {
	if m.dir == "" {
		return "", func() {}, ErrNotCreated
	}
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", func() {}, fmt.Errorf("invalid workspace file name %q", name)
	}

	path := filepath.Join(m.dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", func() {}, fmt.Errorf("failed to write workspace file: %w", err)
	}

	return path, m.Releaser(path), nil
}

// Releaser returns a function that removes path when called. Missing files are ignored.
func (m *Manager) Releaser(path string) func() {
	return func() {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("Failed to remove temporary file", logfields.Path(path), logfields.Error(err))
		}
	}
}
