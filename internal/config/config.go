// Package config loads smokerun settings from SMOKERUN_* environment
// variables, applies CLI flag overrides and validates the result.
//
// S3 mirroring is optional: it turns on when SMOKERUN_S3_BUCKET is set, and
// then the credentials become required. An empty endpoint means AWS S3.
package config

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/kuitang/smokerun/internal/browser"
	"github.com/kuitang/smokerun/internal/obs"
	"github.com/kuitang/smokerun/internal/s3client"
	"github.com/kuitang/smokerun/internal/scenario"
	"github.com/kuitang/smokerun/internal/urlutil"
)

// Config holds all runner configuration.
type Config struct {
	// Target and output
	BaseURL   string        `env:"SMOKERUN_BASE_URL"`
	OutputDir string        `env:"SMOKERUN_OUTPUT_DIR" envDefault:"verification"`
	Timeout   time.Duration `env:"SMOKERUN_TIMEOUT"    envDefault:"5s"`
	Policy    string        `env:"SMOKERUN_POLICY"`

	// Browser
	Browser                string        `env:"SMOKERUN_BROWSER"         envDefault:"chromium"`
	Headless               bool          `env:"SMOKERUN_HEADLESS"        envDefault:"true"`
	SlowMo                 time.Duration `env:"SMOKERUN_SLOW_MO"`
	ViewportWidth          int           `env:"SMOKERUN_VIEWPORT_WIDTH"  envDefault:"1280"`
	ViewportHeight         int           `env:"SMOKERUN_VIEWPORT_HEIGHT" envDefault:"720"`
	PlaywrightPreinstalled bool          `env:"PLAYWRIGHT_PREINSTALLED"`

	LogFormat string `env:"SMOKERUN_LOG_FORMAT" envDefault:"json"`

	// S3 artifact mirror
	S3Endpoint        string `env:"SMOKERUN_S3_ENDPOINT"`
	S3Region          string `env:"SMOKERUN_S3_REGION"     envDefault:"auto"`
	S3AccessKeyID     string `env:"SMOKERUN_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"SMOKERUN_S3_SECRET_ACCESS_KEY"`
	S3Bucket          string `env:"SMOKERUN_S3_BUCKET"`
	S3Prefix          string `env:"SMOKERUN_S3_PREFIX"`
	S3UsePathStyle    bool   `env:"SMOKERUN_S3_USE_PATH_STYLE"`
}

// Overrides carries CLI flag values. Zero values leave the environment alone.
type Overrides struct {
	BaseURL   string
	OutputDir string
	Timeout   time.Duration
	Policy    string
	Browser   string
	Headed    bool
	LogFormat string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Load reads the environment, applies overrides and validates.
func Load(o Overrides) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.Apply(o)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Apply copies non-zero overrides onto c.
func (c *Config) Apply(o Overrides) {
	if o.BaseURL != "" {
		c.BaseURL = o.BaseURL
	}
	if o.OutputDir != "" {
		c.OutputDir = o.OutputDir
	}
	if o.Timeout > 0 {
		c.Timeout = o.Timeout
	}
	if o.Policy != "" {
		c.Policy = o.Policy
	}
	if o.Browser != "" {
		c.Browser = o.Browser
	}
	if o.Headed {
		c.Headless = false
	}
	if o.LogFormat != "" {
		c.LogFormat = o.LogFormat
	}
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	c.Policy = strings.ToLower(strings.TrimSpace(c.Policy))
	c.Browser = strings.ToLower(strings.TrimSpace(c.Browser))
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []string

	if c.BaseURL != "" {
		if err := urlutil.CheckBaseURL(c.BaseURL); err != nil {
			errs = append(errs, "SMOKERUN_BASE_URL: "+err.Error())
		}
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, "SMOKERUN_OUTPUT_DIR must not be empty")
	}
	if c.Timeout <= 0 {
		errs = append(errs, "SMOKERUN_TIMEOUT must be positive")
	}
	if c.Policy != "" {
		if _, err := scenario.ParsePolicy(c.Policy); err != nil {
			errs = append(errs, "SMOKERUN_POLICY: "+err.Error())
		}
	}
	switch c.Browser {
	case browser.Chromium, browser.Firefox, browser.WebKit:
	default:
		errs = append(errs, fmt.Sprintf("SMOKERUN_BROWSER must be one of chromium, firefox, webkit (got %q)", c.Browser))
	}
	if c.SlowMo < 0 {
		errs = append(errs, "SMOKERUN_SLOW_MO must not be negative")
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		errs = append(errs, "SMOKERUN_VIEWPORT_WIDTH and SMOKERUN_VIEWPORT_HEIGHT must be positive")
	}
	switch strings.ToLower(c.LogFormat) {
	case string(obs.FormatJSON), string(obs.FormatText):
	default:
		errs = append(errs, fmt.Sprintf("SMOKERUN_LOG_FORMAT must be json or text (got %q)", c.LogFormat))
	}

	if c.S3Enabled() {
		if c.S3AccessKeyID == "" {
			errs = append(errs, "SMOKERUN_S3_ACCESS_KEY_ID is required when SMOKERUN_S3_BUCKET is set")
		}
		if c.S3SecretAccessKey == "" {
			errs = append(errs, "SMOKERUN_S3_SECRET_ACCESS_KEY is required when SMOKERUN_S3_BUCKET is set")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// S3Enabled reports whether screenshots are mirrored to S3.
func (c *Config) S3Enabled() bool {
	return strings.TrimSpace(c.S3Bucket) != ""
}

// Defaults returns the scenario defaults implied by the config. A configured
// base URL or policy overrides what each scenario declares.
func (c *Config) Defaults() scenario.Defaults {
	d := scenario.Defaults{
		BaseURL:      scenario.DefaultBaseURL,
		Timeout:      c.Timeout,
		Policy:       scenario.PolicyContinue,
		ForceBaseURL: c.BaseURL,
	}
	if p, err := scenario.ParsePolicy(c.Policy); err == nil && c.Policy != "" {
		d.ForcePolicy = p
	}
	return d
}

// BrowserOptions returns launcher options.
func (c *Config) BrowserOptions() browser.Options {
	return browser.Options{
		Browser:  c.Browser,
		Headless: c.Headless,
		SlowMo:   c.SlowMo,
		Width:    c.ViewportWidth,
		Height:   c.ViewportHeight,
		Install:  !c.PlaywrightPreinstalled,
	}
}

// S3Config returns the artifact mirror client configuration.
func (c *Config) S3Config() s3client.Config {
	return s3client.Config{
		Endpoint:        c.S3Endpoint,
		Region:          c.S3Region,
		AccessKeyID:     c.S3AccessKeyID,
		SecretAccessKey: c.S3SecretAccessKey,
		BucketName:      c.S3Bucket,
		Prefix:          c.S3Prefix,
		UsePathStyle:    c.S3UsePathStyle,
	}
}

// PrintSummary writes a human-readable summary of the configuration to w.
func (c *Config) PrintSummary(w io.Writer) {
	fmt.Fprintln(w, "smokerun starting...")
	target := c.BaseURL
	if target == "" {
		target = "per scenario (default " + scenario.DefaultBaseURL + ")"
	}
	fmt.Fprintf(w, "  Target:  %s\n", target)
	fmt.Fprintf(w, "  Browser: %s (headless=%t)\n", c.Browser, c.Headless)
	fmt.Fprintf(w, "  Output:  %s\n", c.OutputDir)
	if c.S3Enabled() {
		fmt.Fprintf(w, "  Mirror:  s3://%s/%s\n", c.S3Bucket, strings.Trim(c.S3Prefix, "/"))
	}
	fmt.Fprintln(w, "")
}

// IsValidationError reports whether err came from Validate.
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
