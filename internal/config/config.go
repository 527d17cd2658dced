// Package config loads docbook settings from an optional YAML file, .env
// files and DOCBOOK_TOOL_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/docbook/internal/confluence"
	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
	"git.home.luguber.info/inful/docbook/internal/foundation/normalization"
	"git.home.luguber.info/inful/docbook/internal/pdf"
	"git.home.luguber.info/inful/docbook/internal/retry"
	"git.home.luguber.info/inful/docbook/internal/writer"
)

// Defaults applied before any file or environment value.
const (
	DefaultContentPath       = "/app/docs/book"
	DefaultTemplatePath      = "/app/templates"
	DefaultPlantUMLJar       = "/app/bin/plantuml.jar"
	DefaultJava              = "java"
	DefaultWkhtmltopdf       = "wkhtmltopdf"
	DefaultSubprocessTimeout = 2 * time.Minute
	DefaultHTTPTimeout       = 30 * time.Second
)

// Config is the complete docbook configuration.
type Config struct {
	ContentPath  string   `yaml:"content_path"`
	TemplatePath string   `yaml:"template_path"`
	FeaturesPath string   `yaml:"features_path"`
	CodeTypes    []string `yaml:"code_types"`

	Output     Output     `yaml:"output"`
	Confluence Confluence `yaml:"confluence"`
	PDF        PDF        `yaml:"pdf"`
	PlantUML   PlantUML   `yaml:"plantuml"`
	Logging    Logging    `yaml:"logging"`

	SubprocessTimeout time.Duration `yaml:"subprocess_timeout"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`
	Concurrency       int           `yaml:"concurrency"`
	WorkspaceDir      string        `yaml:"workspace_dir"`
	MetricsFile       string        `yaml:"metrics_file"`

	// EnvFiles lists the .env files that were loaded.
	EnvFiles []string `yaml:"-"`
}

// Output holds the writer destinations.
type Output struct {
	HTMLFile string `yaml:"html_file"`
	PDFPath  string `yaml:"pdf_path"`
}

// Confluence holds the wiki sync settings.
type Confluence struct {
	URL                   string                   `yaml:"url"`
	AuthToken             string                   `yaml:"auth_token"`
	SkipContentHashChecks bool                     `yaml:"skip_content_hash_checks"`
	FailurePolicy         confluence.FailurePolicy `yaml:"failure_policy"`
	Retry                 Retry                    `yaml:"retry"`
}

// Retry configures the backoff for transient Confluence read failures.
type Retry struct {
	Backoff    retry.Mode    `yaml:"backoff"`
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	MaxRetries int           `yaml:"max_retries"`
}

// Policy converts the settings into a retry policy.
func (r Retry) Policy() retry.Policy {
	return retry.NewPolicy(r.Backoff, r.Initial, r.Max, r.MaxRetries)
}

// PDF selects and configures the HTML-to-PDF backend.
type PDF struct {
	Renderer    string `yaml:"renderer"`
	Wkhtmltopdf string `yaml:"wkhtmltopdf"`
	ChromeBin   string `yaml:"chrome_bin"`
}

// PlantUML locates the diagram renderer.
type PlantUML struct {
	Jar  string `yaml:"jar"`
	Java string `yaml:"java"`
}

// Logging configures the root logger.
type Logging struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

var rendererNormalizer = normalization.NewNormalizer(map[string]string{
	pdf.BackendWkhtmltopdf: pdf.BackendWkhtmltopdf,
	pdf.BackendChrome:      pdf.BackendChrome,
}, pdf.BackendWkhtmltopdf)

// Default returns a configuration holding only default values.
func Default() *Config {
	return &Config{
		ContentPath:  DefaultContentPath,
		TemplatePath: DefaultTemplatePath,
		Confluence: Confluence{
			FailurePolicy: confluence.PolicyAbort,
			Retry:         defaultRetry(),
		},
		PDF: PDF{
			Renderer:    pdf.BackendWkhtmltopdf,
			Wkhtmltopdf: DefaultWkhtmltopdf,
		},
		PlantUML: PlantUML{
			Jar:  DefaultPlantUMLJar,
			Java: DefaultJava,
		},
		Logging: Logging{
			Level:  LogLevelInfo,
			Format: LogFormatText,
		},
		SubprocessTimeout: DefaultSubprocessTimeout,
		HTTPTimeout:       DefaultHTTPTimeout,
		Concurrency:       runtime.NumCPU(),
	}
}

// defaultRetry keeps the backoff shape of retry.DefaultPolicy but leaves
// retries off until an operator sets max_retries.
func defaultRetry() Retry {
	p := retry.DefaultPolicy()
	return Retry{Backoff: p.Mode, Initial: p.Initial, Max: p.Max}
}

// Load builds the configuration. The .env files in the working directory
// are loaded first so the YAML file at path (optional) can reference their
// values through ${VAR}; DOCBOOK_TOOL_* variables override the file.
func Load(path string) (*Config, error) {
	envFiles, err := loadEnvFiles()
	if err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.EnvFiles = envFiles

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	// #nosec G304 -- the config path is chosen by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ferrors.ConfigError(fmt.Sprintf("config file %s not found", path)).
				WithCause(err).
				WithContext("path", path).
				Build()
		}
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "reading config file").
			WithContext("path", path).
			Fatal().
			Build()
	}

	expanded := os.ExpandEnv(string(data))

	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "parsing config file").
			WithContext("path", path).
			Fatal().
			Build()
	}
	return nil
}

func (c *Config) normalize() error {
	policy, err := confluence.ParseFailurePolicy(string(c.Confluence.FailurePolicy))
	if err != nil {
		return err
	}
	c.Confluence.FailurePolicy = policy

	backoff, err := retry.ParseMode(string(c.Confluence.Retry.Backoff))
	if err != nil {
		return invalidSetting(EnvConfluenceRetryBackoff, err)
	}
	c.Confluence.Retry.Backoff = backoff
	if c.Confluence.Retry.MaxRetries < 0 {
		return invalidSetting(EnvConfluenceMaxRetries, fmt.Errorf("must not be negative, got %d", c.Confluence.Retry.MaxRetries))
	}

	renderer, err := rendererNormalizer.Parse(c.PDF.Renderer)
	if err != nil {
		return invalidSetting(EnvPDFRenderer, err)
	}
	c.PDF.Renderer = renderer

	level, err := ParseLogLevel(string(c.Logging.Level))
	if err != nil {
		return invalidSetting(EnvLogLevel, err)
	}
	c.Logging.Level = level

	format, err := ParseLogFormat(string(c.Logging.Format))
	if err != nil {
		return invalidSetting(EnvLogFormat, err)
	}
	c.Logging.Format = format

	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.SubprocessTimeout < 0 {
		return invalidSetting(EnvSubprocessTimeout, fmt.Errorf("negative duration %s", c.SubprocessTimeout))
	}
	if c.HTTPTimeout < 0 {
		return invalidSetting(EnvHTTPTimeout, fmt.Errorf("negative duration %s", c.HTTPTimeout))
	}
	return nil
}

// Validate checks that every setting the selected modes need is present.
func (c *Config) Validate(modes writer.Modes) error {
	if !modes.Any() {
		return ferrors.ConfigError("no writers specified").Build()
	}
	if modes.HTML && c.Output.HTMLFile == "" {
		return missingSetting(EnvOutputHTMLFile)
	}
	if modes.PDF && c.Output.PDFPath == "" {
		return missingSetting(EnvOutputPDFPath)
	}
	if modes.Confluence && c.Confluence.URL == "" {
		return missingSetting(EnvConfluenceURL)
	}
	return nil
}

func missingSetting(name string) error {
	return ferrors.ConfigError(fmt.Sprintf("environment variable %s must be defined, but was not", name)).
		WithContext("variable", name).
		Build()
}

func invalidSetting(name string, cause error) error {
	return ferrors.WrapError(cause, ferrors.CategoryConfig, "invalid "+name).
		WithContext("variable", name).
		Fatal().
		Build()
}
