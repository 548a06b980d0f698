// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (TUTORLLM_* prefix, runtime override)
//  2. Config file (~/.tutorllm/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - Server: base URL and timeouts for the tutoring backend
//   - History: refresh throttling for the chat-history sidebar
//   - Tracing: OTLP trace export for backend calls (see internal/observability)
//   - Log: level and format for structured logging
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidServerURL indicates the backend base URL is malformed.
	ErrInvalidServerURL = errors.New("invalid server URL")

	// ErrInvalidTimeout indicates a timeout value is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidRefreshRate indicates the history refresh rate is out of range.
	ErrInvalidRefreshRate = errors.New("invalid history refresh rate")

	// ErrInvalidTracingEndpoint indicates the OTLP endpoint is malformed.
	ErrInvalidTracingEndpoint = errors.New("invalid tracing endpoint")
)

// Defaults for the backend connection.
const (
	// DefaultServerURL matches the backend's local development port.
	DefaultServerURL = "http://localhost:8000"

	// DefaultTimeout bounds non-streaming requests (history, create, load, files).
	DefaultTimeout = 30 * time.Second

	// DefaultStreamTimeout bounds a single answer stream end to end.
	DefaultStreamTimeout = 5 * time.Minute

	// DefaultUploadTimeout bounds a document upload including server-side ingestion.
	DefaultUploadTimeout = 2 * time.Minute

	// DefaultHistoryRefreshPerSec throttles sidebar refreshes so bursts of
	// mutating actions coalesce instead of hammering GET /chats.
	DefaultHistoryRefreshPerSec = 1.0
)

// ConfigDirName is the per-user state directory under $HOME.
const ConfigDirName = ".tutorllm"

// Config stores application configuration.
type Config struct {
	// Backend connection
	ServerURL     string        `mapstructure:"server_url" json:"server_url"`
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout"`
	StreamTimeout time.Duration `mapstructure:"stream_timeout" json:"stream_timeout"`
	UploadTimeout time.Duration `mapstructure:"upload_timeout" json:"upload_timeout"`

	// History sidebar refresh throttle (allowed refreshes per second)
	HistoryRefreshPerSec float64 `mapstructure:"history_refresh_per_sec" json:"history_refresh_per_sec"`

	// Tracing configuration
	TracingEnabled  bool   `mapstructure:"tracing_enabled" json:"tracing_enabled"`
	TracingEndpoint string `mapstructure:"tracing_endpoint" json:"tracing_endpoint"`

	// Logging configuration
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Dir returns the per-user configuration directory (~/.tutorllm),
// creating it if necessary.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting user home directory: %w", err)
	}
	dir := filepath.Join(home, ConfigDirName)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}
	return dir, nil
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	v.AddConfigPath(".") // Also support current directory

	setDefaults(v)

	// TUTORLLM_SERVER_URL etc. override file values
	v.SetEnvPrefix("TUTORLLM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server_url", DefaultServerURL)
	v.SetDefault("timeout", DefaultTimeout)
	v.SetDefault("stream_timeout", DefaultStreamTimeout)
	v.SetDefault("upload_timeout", DefaultUploadTimeout)
	v.SetDefault("history_refresh_per_sec", DefaultHistoryRefreshPerSec)

	v.SetDefault("tracing_enabled", false)
	v.SetDefault("tracing_endpoint", "localhost:4318")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// Validate performs range and format checks on the configuration.
// Returns a sentinel error (wrapped) on the first violation found.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	u, err := url.Parse(c.ServerURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidServerURL, c.ServerURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidServerURL, u.Scheme)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidTimeout, c.Timeout)
	}
	if c.StreamTimeout <= 0 {
		return fmt.Errorf("%w: stream_timeout must be positive, got %v", ErrInvalidTimeout, c.StreamTimeout)
	}
	if c.UploadTimeout <= 0 {
		return fmt.Errorf("%w: upload_timeout must be positive, got %v", ErrInvalidTimeout, c.UploadTimeout)
	}

	if c.HistoryRefreshPerSec <= 0 || c.HistoryRefreshPerSec > 100 {
		return fmt.Errorf("%w: must be in (0, 100], got %v", ErrInvalidRefreshRate, c.HistoryRefreshPerSec)
	}

	if c.TracingEnabled && strings.TrimSpace(c.TracingEndpoint) == "" {
		return fmt.Errorf("%w: endpoint required when tracing is enabled", ErrInvalidTracingEndpoint)
	}

	return nil
}
