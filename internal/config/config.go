// Package config holds the typed settings of a sync run.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/openmined/docsync/internal/utils"
)

type Backend string

const (
	BackendHTTP   Backend = "http"
	BackendS3     Backend = "s3"
	BackendMemory Backend = "memory"
)

const (
	DefaultConcurrency      = 8
	MaxConcurrency          = 64
	MaxAttemptsLimit        = 20
	DefaultMaxAttempts      = 3
	DefaultBaseDelay        = time.Second
	DefaultBreakerThreshold = 3
	DefaultLogLevel         = "info"
)

type Config struct {
	BaseDir string  `mapstructure:"base_dir" yaml:"base_dir"`
	Store   string  `mapstructure:"store" yaml:"store"`
	Backend Backend `mapstructure:"backend" yaml:"backend"`

	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key,omitempty"`

	S3Prefix    string `mapstructure:"s3_prefix" yaml:"s3_prefix,omitempty"`
	S3Region    string `mapstructure:"s3_region" yaml:"s3_region,omitempty"`
	S3Endpoint  string `mapstructure:"s3_endpoint" yaml:"s3_endpoint,omitempty"`
	S3AccessKey string `mapstructure:"s3_access_key" yaml:"s3_access_key,omitempty"`
	S3SecretKey string `mapstructure:"s3_secret_key" yaml:"s3_secret_key,omitempty"`

	Include []string `mapstructure:"include" yaml:"include,omitempty"`
	Exclude []string `mapstructure:"exclude" yaml:"exclude,omitempty"`
	Delete  bool     `mapstructure:"delete" yaml:"delete"`

	Concurrency      int           `mapstructure:"concurrency" yaml:"concurrency"`
	MaxAttempts      int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	BaseDelay        time.Duration `mapstructure:"base_delay" yaml:"base_delay"`
	BreakerThreshold int           `mapstructure:"breaker_threshold" yaml:"breaker_threshold"`

	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// per invocation, never persisted
	DryRun      bool   `mapstructure:"dry_run" yaml:"-"`
	AutoConfirm bool   `mapstructure:"yes" yaml:"-"`
	Path        string `mapstructure:"-" yaml:"-"`
}

// Default returns a config with every optional key set.
func Default() *Config {
	return &Config{
		BaseDir:          ".",
		Backend:          BackendHTTP,
		Concurrency:      DefaultConcurrency,
		MaxAttempts:      DefaultMaxAttempts,
		BaseDelay:        DefaultBaseDelay,
		BreakerThreshold: DefaultBreakerThreshold,
		LogLevel:         DefaultLogLevel,
	}
}

// Error is a configuration problem detected before any work starts.
type Error struct {
	Key    string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config %s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

func invalid(key, reason string, err error) *Error {
	return &Error{Key: key, Reason: reason, Err: err}
}

// IsConfigError reports whether err was caused by bad configuration.
func IsConfigError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// Validate checks every key and normalizes BaseDir to an absolute path.
func (c *Config) Validate() error {
	if c.BaseDir == "" {
		c.BaseDir = "."
	}
	baseDir, err := utils.ResolvePath(c.BaseDir)
	if err != nil {
		return invalid("base_dir", "cannot resolve", err)
	}
	if !utils.DirExists(baseDir) {
		return invalid("base_dir", fmt.Sprintf("%q is not a directory", baseDir), nil)
	}
	c.BaseDir = baseDir

	c.Store = strings.TrimSpace(c.Store)
	if c.Store == "" {
		return invalid("store", "store identity is required", nil)
	}

	if c.Backend == "" {
		c.Backend = BackendHTTP
	}
	switch c.Backend {
	case BackendHTTP:
		if err := validateURL(c.Endpoint); err != nil {
			return invalid("endpoint", "http backend needs a valid endpoint", err)
		}
	case BackendS3:
		if c.S3Endpoint != "" {
			if err := validateURL(c.S3Endpoint); err != nil {
				return invalid("s3_endpoint", "invalid url", err)
			}
		}
		if (c.S3AccessKey == "") != (c.S3SecretKey == "") {
			return invalid("s3_access_key", "access key and secret key must be set together", nil)
		}
	case BackendMemory:
	default:
		return invalid("backend", fmt.Sprintf("unknown backend %q", c.Backend), nil)
	}

	for _, p := range c.Include {
		if !doublestar.ValidatePattern(p) {
			return invalid("include", fmt.Sprintf("bad pattern %q", p), nil)
		}
	}
	for _, p := range c.Exclude {
		if !doublestar.ValidatePattern(p) {
			return invalid("exclude", fmt.Sprintf("bad pattern %q", p), nil)
		}
	}

	if c.Concurrency < 1 || c.Concurrency > MaxConcurrency {
		return invalid("concurrency", fmt.Sprintf("must be between 1 and %d, got %d", MaxConcurrency, c.Concurrency), nil)
	}
	if c.MaxAttempts < 1 || c.MaxAttempts > MaxAttemptsLimit {
		return invalid("max_attempts", fmt.Sprintf("must be between 1 and %d, got %d", MaxAttemptsLimit, c.MaxAttempts), nil)
	}
	if c.BaseDelay <= 0 {
		return invalid("base_delay", "must be positive", nil)
	}
	if c.BreakerThreshold < 1 {
		return invalid("breaker_threshold", fmt.Sprintf("must be at least 1, got %d", c.BreakerThreshold), nil)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", "unknown level", err)
	}
	return nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// ParseLevel maps a level name to a slog level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

// Save writes the persistent keys as yaml.
func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}
