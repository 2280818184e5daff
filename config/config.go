// Package config assembles runtime configuration from defaults, a .env
// file, ~/.newsapp/config.yaml and environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/pevans/newsapp/decoder"
	"github.com/pevans/newsapp/fetcher"
)

// DefaultRequestURL is the content API query: Ohio State football coverage
// since 2016, newest first, with the fields each item needs.
const DefaultRequestURL = "http://content.guardianapis.com/search?q=ohio%20AND%20state%20AND%20football&format=json&from-date=2016-01-01&show-fields=trailText,headline,thumbnail,byline,shortUrl&order-by=newest&api-key=test"

// Config is the complete runtime configuration.
type Config struct {
	Request RequestConfig `yaml:"request" json:"request"`
	Fetch   FetchConfig   `yaml:"fetch" json:"fetch"`
	Decode  DecodeConfig  `yaml:"decode" json:"decode"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	API     APIConfig     `yaml:"api" json:"api"`
}

// RequestConfig describes what to load.
type RequestConfig struct {
	URL    string `yaml:"url" json:"url"`
	Format string `yaml:"format" json:"format"` // "json" or "feed"
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
}

// FetchConfig holds HTTP settings. Durations use time.ParseDuration syntax.
type FetchConfig struct {
	ConnectTimeout string `yaml:"connect_timeout" json:"connect_timeout"`
	ReadTimeout    string `yaml:"read_timeout" json:"read_timeout"`
	UserAgent      string `yaml:"user_agent" json:"user_agent"`
}

// DecodeConfig holds decoder settings.
type DecodeConfig struct {
	Strict               bool `yaml:"strict" json:"strict"`
	ThumbnailConcurrency int  `yaml:"thumbnail_concurrency" json:"thumbnail_concurrency"`
}

// StorageConfig locates the snapshot directory and the diagnostics database.
type StorageConfig struct {
	FeedDir        string `yaml:"feed_dir" json:"feed_dir"`
	DiagnosticsDSN string `yaml:"diagnostics_dsn" json:"diagnostics_dsn"`
}

// APIConfig configures the HTTP server binary.
type APIConfig struct {
	Addr            string `yaml:"addr" json:"addr"`
	RefreshInterval string `yaml:"refresh_interval" json:"refresh_interval"`
}

// Default returns the built-in configuration. Storage lives under
// ~/.newsapp, or ./.newsapp when the home directory is unknown.
func Default() *Config {
	base := ".newsapp"
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".newsapp")
	}

	return &Config{
		Request: RequestConfig{
			URL:    DefaultRequestURL,
			Format: decoder.FormatJSON,
		},
		Fetch: FetchConfig{
			ConnectTimeout: fetcher.ConnectTimeout.String(),
			ReadTimeout:    fetcher.ReadTimeout.String(),
			UserAgent:      fetcher.DefaultUserAgent,
		},
		Decode: DecodeConfig{
			ThumbnailConcurrency: decoder.DefaultConcurrency,
		},
		Storage: StorageConfig{
			FeedDir:        filepath.Join(base, "feed"),
			DiagnosticsDSN: filepath.Join(base, "diagnostics.db"),
		},
		API: APIConfig{
			Addr:            "localhost:8080",
			RefreshInterval: "15m",
		},
	}
}

// Load builds the effective configuration. A missing .env or config file is
// not an error; an unparsable one, or an invalid result, is.
func Load() (*Config, error) {
	// .env is optional (local development)
	_ = godotenv.Load()

	cfg, err := LoadConfigFile()
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = Default()
	}

	cfg.applyEnv()

	if cfg.Request.APIKey != "" {
		withKey, err := WithAPIKey(cfg.Request.URL, cfg.Request.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to apply api key: %w", err)
		}
		cfg.Request.URL = withKey
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv overlays NEWSAPP_* environment variables.
func (c *Config) applyEnv() {
	c.Request.URL = getEnv("NEWSAPP_REQUEST_URL", c.Request.URL)
	c.Request.Format = getEnv("NEWSAPP_FORMAT", c.Request.Format)
	c.Request.APIKey = getEnv("NEWSAPP_API_KEY", c.Request.APIKey)
	c.Storage.FeedDir = getEnv("NEWSAPP_FEED_DIR", c.Storage.FeedDir)
	c.Storage.DiagnosticsDSN = getEnv("NEWSAPP_DIAGNOSTICS_DSN", c.Storage.DiagnosticsDSN)
	c.API.Addr = getEnv("NEWSAPP_API_ADDR", c.API.Addr)
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if c.Request.URL == "" {
		return errors.New("invalid request.url: must not be empty")
	}
	if c.Request.Format != decoder.FormatJSON && c.Request.Format != decoder.FormatFeed {
		return fmt.Errorf("invalid request.format %q: must be %q or %q", c.Request.Format, decoder.FormatJSON, decoder.FormatFeed)
	}

	durations := []struct {
		name  string
		value string
	}{
		{"fetch.connect_timeout", c.Fetch.ConnectTimeout},
		{"fetch.read_timeout", c.Fetch.ReadTimeout},
		{"api.refresh_interval", c.API.RefreshInterval},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return fmt.Errorf("invalid %s: must be a valid duration (e.g., 15s, 10m)", d.name)
		}
		if parsed <= 0 {
			return fmt.Errorf("invalid %s: must be positive", d.name)
		}
	}

	if c.Decode.ThumbnailConcurrency <= 0 {
		return errors.New("invalid decode.thumbnail_concurrency: must be positive")
	}

	return nil
}

// FetchOptions converts the fetch settings. Call Validate first.
func (c *Config) FetchOptions() *fetcher.Options {
	connect, _ := time.ParseDuration(c.Fetch.ConnectTimeout)
	read, _ := time.ParseDuration(c.Fetch.ReadTimeout)
	return &fetcher.Options{
		ConnectTimeout: connect,
		ReadTimeout:    read,
		UserAgent:      c.Fetch.UserAgent,
	}
}

// DecodeOptions converts the decode settings.
func (c *Config) DecodeOptions() *decoder.Options {
	return &decoder.Options{
		Format:      c.Request.Format,
		Strict:      c.Decode.Strict,
		Concurrency: c.Decode.ThumbnailConcurrency,
	}
}

// RefreshInterval returns the parsed API refresh interval. Call Validate
// first.
func (c *Config) RefreshInterval() time.Duration {
	d, _ := time.ParseDuration(c.API.RefreshInterval)
	return d
}

// WithAPIKey returns rawURL with its api-key query parameter set to key.
func WithAPIKey(rawURL, key string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	q := u.Query()
	q.Set("api-key", key)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Redacted returns a copy with the API key removed from both the key setting
// and the request URL.
func (c *Config) Redacted() *Config {
	out := *c
	out.Request.APIKey = ""

	if u, err := url.Parse(out.Request.URL); err == nil && u.Query().Has("api-key") {
		if redacted, err := WithAPIKey(out.Request.URL, "REDACTED"); err == nil {
			out.Request.URL = redacted
		}
	}

	return &out
}

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
