package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"git.home.luguber.info/inful/docbook/internal/confluence"
	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/retry"
)

// EnvPrefix is shared by every environment variable docbook reads.
const EnvPrefix = "DOCBOOK_TOOL_"

// Environment variable names.
const (
	EnvContentPath            = EnvPrefix + "CONTENT_PATH"
	EnvTemplatePath           = EnvPrefix + "TEMPLATE_PATH"
	EnvFeaturesPath           = EnvPrefix + "FEATURES_PATH"
	EnvCodeTypes              = EnvPrefix + "CODE_TYPES"
	EnvOutputHTMLFile         = EnvPrefix + "OUTPUT_HTML_FILE"
	EnvOutputPDFPath          = EnvPrefix + "OUTPUT_PDF_PATH"
	EnvConfluenceURL          = EnvPrefix + "CONFLUENCE_URL"
	EnvConfluenceAuthToken    = EnvPrefix + "CONFLUENCE_AUTH_TOKEN"
	EnvConfluenceSkipHash     = EnvPrefix + "CONFLUENCE_SKIP_CONTENT_HASH_CHECKS"
	EnvConfluencePolicy       = EnvPrefix + "CONFLUENCE_FAILURE_POLICY"
	EnvConfluenceRetryBackoff = EnvPrefix + "CONFLUENCE_RETRY_BACKOFF"
	EnvConfluenceMaxRetries   = EnvPrefix + "CONFLUENCE_MAX_RETRIES"
	EnvPDFRenderer            = EnvPrefix + "PDF_RENDERER"
	EnvWkhtmltopdf            = EnvPrefix + "WKHTMLTOPDF"
	EnvChromeBin              = EnvPrefix + "CHROME_BIN"
	EnvPlantUMLJar            = EnvPrefix + "PLANTUML_JAR"
	EnvJava                   = EnvPrefix + "JAVA"
	EnvSubprocessTimeout      = EnvPrefix + "SUBPROCESS_TIMEOUT"
	EnvHTTPTimeout            = EnvPrefix + "HTTP_TIMEOUT"
	EnvConcurrency            = EnvPrefix + "CONCURRENCY"
	EnvWorkspaceDir           = EnvPrefix + "WORKSPACE_DIR"
	EnvMetricsFile            = EnvPrefix + "METRICS_FILE"
	EnvLogLevel               = EnvPrefix + "LOG_LEVEL"
	EnvLogFormat              = EnvPrefix + "LOG_FORMAT"
)

// envFiles are tried in this order. godotenv never overrides a variable
// that is already set, so the first file to define a key wins.
var envFiles = []string{".env.local", ".env"}

func loadEnvFiles() ([]string, error) {
	var loaded []string
	for _, name := range envFiles {
		if _, err := os.Stat(name); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "checking env file").
				WithContext("path", name).
				Fatal().
				Build()
		}
		if err := godotenv.Load(name); err != nil {
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "loading env file").
				WithContext("path", name).
				Fatal().
				Build()
		}
		loaded = append(loaded, name)
	}
	return loaded, nil
}

// applyEnv overrides c with every non-empty DOCBOOK_TOOL_* variable.
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(name)
		if !ok || v == "" {
			return "", false
		}
		return v, true
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{EnvContentPath, &c.ContentPath},
		{EnvTemplatePath, &c.TemplatePath},
		{EnvFeaturesPath, &c.FeaturesPath},
		{EnvOutputHTMLFile, &c.Output.HTMLFile},
		{EnvOutputPDFPath, &c.Output.PDFPath},
		{EnvConfluenceURL, &c.Confluence.URL},
		{EnvConfluenceAuthToken, &c.Confluence.AuthToken},
		{EnvPDFRenderer, &c.PDF.Renderer},
		{EnvWkhtmltopdf, &c.PDF.Wkhtmltopdf},
		{EnvChromeBin, &c.PDF.ChromeBin},
		{EnvPlantUMLJar, &c.PlantUML.Jar},
		{EnvJava, &c.PlantUML.Java},
		{EnvWorkspaceDir, &c.WorkspaceDir},
		{EnvMetricsFile, &c.MetricsFile},
	}
	for _, s := range strs {
		if v, ok := get(s.name); ok {
			*s.dst = v
		}
	}

	if v, ok := get(EnvCodeTypes); ok {
		c.CodeTypes = splitList(v)
	}
	if v, ok := get(EnvConfluencePolicy); ok {
		c.Confluence.FailurePolicy = confluence.FailurePolicy(v)
	}
	if v, ok := get(EnvConfluenceRetryBackoff); ok {
		c.Confluence.Retry.Backoff = retry.Mode(v)
	}
	if v, ok := get(EnvLogLevel); ok {
		c.Logging.Level = LogLevel(v)
	}
	if v, ok := get(EnvLogFormat); ok {
		c.Logging.Format = LogFormat(v)
	}

	if v, ok := get(EnvConfluenceSkipHash); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return invalidSetting(EnvConfluenceSkipHash, err)
		}
		c.Confluence.SkipContentHashChecks = b
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{EnvSubprocessTimeout, &c.SubprocessTimeout},
		{EnvHTTPTimeout, &c.HTTPTimeout},
	}
	for _, d := range durations {
		v, ok := get(d.name)
		if !ok {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return invalidSetting(d.name, err)
		}
		*d.dst = parsed
	}

	if v, ok := get(EnvConfluenceMaxRetries); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return invalidSetting(EnvConfluenceMaxRetries, err)
		}
		c.Confluence.Retry.MaxRetries = n
	}

	if v, ok := get(EnvConcurrency); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return invalidSetting(EnvConcurrency, err)
		}
		if n < 1 {
			return invalidSetting(EnvConcurrency, fmt.Errorf("must be at least 1, got %d", n))
		}
		c.Concurrency = n
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
