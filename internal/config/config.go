package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
//
// The file carries the LLM API key, so it is always created and re-written
// with 0600 permissions.
type Config struct {
	// Listen is the HTTP listen address for the Web API.
	Listen string `yaml:"listen" json:"listen"`

	// APIKey is the bearer credential for the chat-completion endpoint.
	// Analysis fails fast when it is empty.
	APIKey string `yaml:"api_key" json:"api_key"`

	// BaseURL is the chat-completion API base URL. Mostly useful for
	// OpenAI-compatible endpoints and for tests.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Model is the chat model identifier used for extraction.
	Model string `yaml:"model" json:"model"`

	// Timezone is the IANA timezone assumed for date strings that carry a
	// time of day but no offset (e.g. "2024-01-20 15:30").
	Timezone string `yaml:"timezone" json:"timezone"`

	// CalendarHost is the host (plus base path) of the calendar service the
	// generated links point at.
	CalendarHost string `yaml:"calendar_host" json:"calendar_host"`

	// AnalyzePerMinute caps analyze requests per minute on the HTTP API.
	// Every analyze call spends LLM quota, so the default is conservative.
	AnalyzePerMinute int `yaml:"analyze_per_minute" json:"analyze_per_minute"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:           "127.0.0.1:8080",
		APIKey:           "",
		BaseURL:          "https://api.openai.com/v1",
		Model:            "gpt-4o-mini",
		Timezone:         "Asia/Tokyo",
		CalendarHost:     "calendar.google.com/calendar",
		AnalyzePerMinute: 6,
		BasicAuth:        nil,
	}
}

// Normalize fills in missing/zero values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Tokyo"
	}
	if c.CalendarHost == "" {
		c.CalendarHost = "calendar.google.com/calendar"
	}
	if c.AnalyzePerMinute <= 0 {
		c.AnalyzePerMinute = 6
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600 (the file holds the API key).
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".post2cal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}

// Location resolves the configured timezone, falling back to a fixed
// UTC+09:00 offset when the IANA database is unavailable on the host.
func (c *Config) Location() *time.Location {
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}
	return time.FixedZone("UTC+9", 9*60*60)
}
