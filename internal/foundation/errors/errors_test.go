package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifiedError(t *testing.T) {
	t.Run("builder fields", func(t *testing.T) {
		err := NewError(CategoryConfig, "invalid configuration").
			WithSeverity(SeverityFatal).
			WithContext("variable", "DOCBOOK_TOOL_OUTPUT_HTML_FILE").
			WithHint("export the variable").
			Build()

		assert.Equal(t, CategoryConfig, err.Category())
		assert.Equal(t, SeverityFatal, err.Severity())
		assert.Equal(t, "invalid configuration", err.Message())
		assert.Equal(t, "export the variable", err.Hint())
		assert.Equal(t, "invalid configuration", err.Error())

		variable, ok := err.Context().GetString("variable")
		require.True(t, ok)
		assert.Equal(t, "DOCBOOK_TOOL_OUTPUT_HTML_FILE", variable)
	})

	t.Run("detection", func(t *testing.T) {
		err := ContentError("bad page").Build()

		assert.True(t, IsClassified(err))
		assert.True(t, HasCategory(err, CategoryContent))
		assert.False(t, HasCategory(err, CategoryConfig))
		assert.True(t, err.IsFatal())
	})

	t.Run("through wrapping", func(t *testing.T) {
		inner := NotFoundError("missing image").WithContext("file", "smile.png").Build()
		wrapped := fmt.Errorf("formatting page intro: %w", inner)

		assert.True(t, IsClassified(wrapped))
		assert.Equal(t, CategoryNotFound, GetCategory(wrapped))
		assert.Equal(t, SeverityFatal, GetSeverity(wrapped))
	})

	t.Run("unclassified defaults", func(t *testing.T) {
		err := errors.New("plain")
		assert.False(t, IsClassified(err))
		assert.Equal(t, CategoryInternal, GetCategory(err))
		assert.Equal(t, SeverityError, GetSeverity(err))
		assert.False(t, HasCategory(nil, CategoryInternal))
	})
}

func TestWrapError(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapError(cause, CategoryRemote, "request failed").
		Warning().
		WithContext("url", "https://wiki.example.com").
		WithContext("code", 502).
		Build()

	assert.Equal(t, SeverityWarning, err.Severity())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "request failed: connection refused", err.Error())

	code, ok := err.Context().Get("code")
	require.True(t, ok)
	assert.Equal(t, 502, code)
	assert.Equal(t, []string{"code", "url"}, err.Context().Keys())
}

func TestWithContextDoesNotMutate(t *testing.T) {
	base := RemoteError("boom").WithContext("a", 1).Build()
	derived := base.WithContext("b", 2)

	_, ok := base.Context().Get("b")
	assert.False(t, ok)
	_, ok = derived.Context().Get("b")
	assert.True(t, ok)
}

func TestBuilderReuse(t *testing.T) {
	b := ConfigError("no writers specified")
	first := b.Build()
	second := b.WithContext("mode", "pdf").Build()

	assert.Empty(t, first.Context().Keys())
	assert.Equal(t, []string{"mode"}, second.Context().Keys())
}

func TestClassifiedError_Is(t *testing.T) {
	a := ConfigError("no writers specified").Build()
	b := ConfigError("no writers specified").WithContext("x", 1).Build()
	c := ContentError("no writers specified").Build()

	assert.ErrorIs(t, a, b)
	assert.NotErrorIs(t, a, c)
}

func TestCategoryExitCode(t *testing.T) {
	assert.Equal(t, 7, CategoryConfig.ExitCode())
	assert.Equal(t, 11, CategoryTemplate.ExitCode())
	assert.Equal(t, 1, ErrorCategory("unknown").ExitCode())
}
