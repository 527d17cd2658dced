// Package retrieve reads files referenced from page content, such as images,
// source snippets and feature files.
package retrieve

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/docbook/internal/foundation/errors"
)

// Retriever fetches the bytes of relativePath resolved against workingDirectory.
type Retriever interface {
	Retrieve(ctx context.Context, relativePath, workingDirectory string) ([]byte, error)
}

// Func adapts a function to the Retriever interface.
type Func func(ctx context.Context, relativePath, workingDirectory string) ([]byte, error)

// Retrieve calls f.
func (f Func) Retrieve(ctx context.Context, relativePath, workingDirectory string) ([]byte, error) {
	return f(ctx, relativePath, workingDirectory)
}

// Local reads files from the local filesystem.
type Local struct{}

// NewLocal returns a filesystem-backed Retriever.
func NewLocal() Local { return Local{} }

// Retrieve reads relativePath below workingDirectory. `./` prefixes and `..`
// segments are resolved lexically, so `smile.png` and `./smile.png` name the
// same file.
func (Local) Retrieve(ctx context.Context, relativePath, workingDirectory string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir, err := filepath.Abs(workingDirectory)
	if err != nil {
		return nil, notFound(relativePath, workingDirectory, err)
	}

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(relativePath))) // #nosec G304 -- references come from local content files
	if err != nil {
		return nil, notFound(relativePath, workingDirectory, err)
	}
	return data, nil
}

func notFound(relativePath, workingDirectory string, cause error) error {
	return errors.WrapError(cause, errors.CategoryNotFound,
		fmt.Sprintf("could not retrieve file %q in directory %q", relativePath, workingDirectory)).
		Fatal().
		WithContext("file", relativePath).
		WithContext("directory", workingDirectory).
		Build()
}
