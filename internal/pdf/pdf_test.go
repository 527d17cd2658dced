package pdf

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docbook/internal/command"
	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
)

type recordingRunner struct {
	name string
	args []string
}

func (r *recordingRunner) Run(_ context.Context, name string, args ...string) (command.Result, error) {
	r.name = name
	r.args = args
	return command.Result{ExitCode: 1, Output: "Exit with code 1 due to network error: ContentNotFoundError"}, nil
}

func TestWkhtmltopdf_Args(t *testing.T) {
	runner := &recordingRunner{}
	w := NewWkhtmltopdf("", runner, nil)

	res, err := w.Render(context.Background(), "/tmp/ws/intro.html", "/out/intro.pdf")
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode, "exit code is reported, not turned into an error")

	assert.Equal(t, "wkhtmltopdf", runner.name)
	assert.Equal(t, []string{
		"--enable-local-file-access",
		"--load-error-handling", "ignore",
		"--load-media-error-handling", "ignore",
		"/tmp/ws/intro.html",
		"/out/intro.pdf",
	}, runner.args)
}

func TestWkhtmltopdf_CustomBinary(t *testing.T) {
	runner := &recordingRunner{}
	_, err := NewWkhtmltopdf("/usr/local/bin/wkhtmltopdf", runner, nil).Render(context.Background(), "a.html", "a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/wkhtmltopdf", runner.name)
}

func TestNew(t *testing.T) {
	r, err := New(Options{})
	require.NoError(t, err)
	assert.Equal(t, BackendWkhtmltopdf, r.Name())

	r, err = New(Options{Backend: BackendChrome})
	require.NoError(t, err)
	assert.Equal(t, BackendChrome, r.Name())

	_, err = New(Options{Backend: "prince"})
	require.Error(t, err)
	assert.Equal(t, ferrors.CategoryConfig, ferrors.GetCategory(err))
}

func TestChrome_CanceledContextDoesNotLaunch(t *testing.T) {
	c := NewChrome("", 0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Render(ctx, "a.html", "a.pdf")
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, c.browser)
	require.NoError(t, c.Close())
}

func TestPrintOptions(t *testing.T) {
	opts := printOptions()
	require.NotNil(t, opts.PaperWidth)
	assert.InDelta(t, paperWidthInches, *opts.PaperWidth, 0.001)
	assert.InDelta(t, paperHeightInches, *opts.PaperHeight, 0.001)
	assert.True(t, opts.PrintBackground)
}

func TestFileURL(t *testing.T) {
	assert.Equal(t, "file:///tmp/ws/intro.html", fileURL("/tmp/ws/intro.html"))
	assert.Equal(t, "file:///tmp/ws/100%25%20done%20%232%3F.html", fileURL("/tmp/ws/100% done #2?.html"))
}
