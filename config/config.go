// Package config loads environment variables and provides a typed Config used across the recorder.
// Every knob has a default so the binary runs with nothing but a key file and a channel id.
// The API credential itself is read separately via LoadCredential.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Defaults matching the historical polling budget (~10 minutes).
const (
	DefaultKeyFile        = "api.key"
	DefaultMaxAttempts    = 20
	DefaultPollInterval   = 30 * time.Second
	DefaultDataDir        = "rec"
	DefaultOutputTemplate = "%(title)s.%(ext)s"
	DefaultDownloader     = "yt-dlp"
	DefaultFormat         = "best"
	DefaultOutputPoll     = time.Second
	DefaultKillGrace      = 10 * time.Second
)

type Config struct {
	// Credential
	KeyFile        string
	CredentialKind CredentialKind

	// YouTube search API
	APIEndpoint string

	// Polling
	MaxAttempts  int
	PollInterval time.Duration

	// Recording
	DataDir        string
	OutputTemplate string
	DownloaderPath string
	Format         string
	ExtraArgs      []string
	OutputPoll     time.Duration
	KillGrace      time.Duration

	// Optional sidecars
	HTTPAddr string
	DBDsn    string
}

// Load reads environment variables and applies defaults. None of the variables are required.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.KeyFile = os.Getenv("YT_API_KEY_FILE")
	if cfg.KeyFile == "" {
		cfg.KeyFile = DefaultKeyFile
	}
	kind, err := ParseCredentialKind(os.Getenv("YT_CREDENTIAL_KIND"))
	if err != nil {
		return nil, err
	}
	cfg.CredentialKind = kind
	cfg.APIEndpoint = os.Getenv("YT_API_ENDPOINT")

	cfg.MaxAttempts = DefaultMaxAttempts
	if s := os.Getenv("POLL_MAX_ATTEMPTS"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_MAX_ATTEMPTS: %w", err)
		}
		cfg.MaxAttempts = n
	}
	cfg.PollInterval = DefaultPollInterval
	if s := os.Getenv("POLL_INTERVAL"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("invalid POLL_INTERVAL (duration): %w", err)
		}
		cfg.PollInterval = d
	}

	cfg.DataDir = os.Getenv("DATA_DIR")
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	cfg.OutputTemplate = os.Getenv("OUTPUT_TEMPLATE")
	if cfg.OutputTemplate == "" {
		cfg.OutputTemplate = DefaultOutputTemplate
	}
	cfg.DownloaderPath = os.Getenv("YTDLP_PATH")
	if cfg.DownloaderPath == "" {
		cfg.DownloaderPath = DefaultDownloader
	}
	cfg.Format = os.Getenv("YTDLP_FORMAT")
	if cfg.Format == "" {
		cfg.Format = DefaultFormat
	}
	cfg.ExtraArgs = strings.Fields(os.Getenv("YTDLP_ARGS"))

	cfg.OutputPoll = DefaultOutputPoll
	if s := os.Getenv("DOWNLOAD_POLL_TIMEOUT"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			cfg.OutputPoll = d
		}
	}
	cfg.KillGrace = DefaultKillGrace
	if s := os.Getenv("DOWNLOAD_KILL_GRACE"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			cfg.KillGrace = d
		}
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	cfg.DBDsn = os.Getenv("DB_DSN")

	return cfg, nil
}

// OutputPath joins the data dir and the downloader's output template.
func (c *Config) OutputPath() string {
	if c.DataDir == "" {
		return c.OutputTemplate
	}
	return filepath.Join(c.DataDir, c.OutputTemplate)
}

// Validate checks the bounds that flags or env may have broken.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be >= 1, got %d", c.MaxAttempts))
	}
	if c.PollInterval < 0 {
		errs = append(errs, fmt.Errorf("poll interval must not be negative, got %s", c.PollInterval))
	}
	if c.OutputTemplate == "" {
		errs = append(errs, errors.New("output template empty"))
	}
	if c.DownloaderPath == "" {
		errs = append(errs, errors.New("downloader path empty"))
	}
	return errors.Join(errs...)
}
