package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// MatchText checks markers against the whole raw event text.
	MatchText = "text"
	// MatchSummary checks markers against the SUMMARY property only.
	MatchSummary = "summary"
)

const (
	defaultListen        = ":8080"
	defaultAllowedSource = "https://plan.agh.edu.pl"
	defaultTimeout       = 15
	defaultMaxBodyBytes  = 16 << 20
	defaultLogLevel      = "info"
)

// defaultMarkers select lecture ("Wykład") and blocked-slot ("Blokada") events.
var defaultMarkers = []string{"Wykład", "Blokada"}

// FilterConfig selects which events are removed.
type FilterConfig struct {
	// Markers are literal, case-sensitive substrings. An event containing
	// any of them is dropped.
	Markers []string `yaml:"markers" json:"markers"`
	// Match is "text" (default) or "summary".
	Match string `yaml:"match" json:"match"`
}

// FetchConfig bounds upstream requests.
type FetchConfig struct {
	TimeoutSeconds int   `yaml:"timeout_seconds" json:"timeout_seconds"`
	MaxBodyBytes   int64 `yaml:"max_body_bytes" json:"max_body_bytes"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	// File, if set, receives a copy of every log line.
	File string `yaml:"file,omitempty" json:"file,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Origin is the public base URL of this service. It is substituted for
	// <<ORIGIN>> in the UI page.
	Origin string `yaml:"origin" json:"origin"`

	// AllowedSource is the only origin (scheme, host and path prefix) that
	// calendars may be fetched from.
	AllowedSource string `yaml:"allowed_source" json:"allowed_source"`

	// UIPath optionally points at an HTML file replacing the built-in page.
	UIPath string `yaml:"ui_path,omitempty" json:"ui_path,omitempty"`

	Filter FilterConfig `yaml:"filter" json:"filter"`
	Fetch  FetchConfig  `yaml:"fetch" json:"fetch"`
	Log    LogConfig    `yaml:"log" json:"log"`
}

// DefaultConfig returns an in-memory default configuration. Origin is left
// empty and must be supplied by the file or the ORIGIN variable.
func DefaultConfig() *Config {
	return &Config{
		Listen:        defaultListen,
		AllowedSource: defaultAllowedSource,
		Filter: FilterConfig{
			Markers: append([]string(nil), defaultMarkers...),
			Match:   MatchText,
		},
		Fetch: FetchConfig{
			TimeoutSeconds: defaultTimeout,
			MaxBodyBytes:   defaultMaxBodyBytes,
		},
		Log: LogConfig{
			Level: defaultLogLevel,
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.AllowedSource == "" {
		c.AllowedSource = defaultAllowedSource
	}
	c.Origin = strings.TrimRight(c.Origin, "/")

	switch c.Filter.Match {
	case MatchText, MatchSummary:
		// ok
	default:
		c.Filter.Match = MatchText
	}
	// nil means "not configured"; an explicit empty list keeps every event.
	if c.Filter.Markers == nil {
		c.Filter.Markers = append([]string(nil), defaultMarkers...)
	}

	if c.Fetch.TimeoutSeconds <= 0 {
		c.Fetch.TimeoutSeconds = defaultTimeout
	}
	if c.Fetch.MaxBodyBytes <= 0 {
		c.Fetch.MaxBodyBytes = defaultMaxBodyBytes
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
}

// Validate reports settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Origin == "" {
		return errors.New("origin is required (set it in the config file or via ORIGIN)")
	}
	u, err := url.Parse(c.AllowedSource)
	if err != nil {
		return fmt.Errorf("allowed_source: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("allowed_source %q must be an absolute URL", c.AllowedSource)
	}
	return nil
}

// ApplyEnv overrides fields from environment variables. lookup is usually
// os.LookupEnv.
//
//   - PORT           -> Listen ":" + PORT
//   - ORIGIN         -> Origin
//   - ALLOWED_SOURCE -> AllowedSource
//   - FILTER_MARKERS -> Filter.Markers (comma separated)
//   - FILTER_MATCH   -> Filter.Match
//   - UI_PATH        -> UIPath
//   - LOG_LEVEL      -> Log.Level
//   - LOG_FILE       -> Log.File
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("PORT %q is not a valid port", v)
		}
		c.Listen = ":" + v
	}
	if v, ok := lookup("ORIGIN"); ok && v != "" {
		c.Origin = v
	}
	if v, ok := lookup("ALLOWED_SOURCE"); ok && v != "" {
		c.AllowedSource = v
	}
	if v, ok := lookup("FILTER_MARKERS"); ok {
		markers := []string{}
		for _, m := range strings.Split(v, ",") {
			if m = strings.TrimSpace(m); m != "" {
				markers = append(markers, m)
			}
		}
		c.Filter.Markers = markers
	}
	if v, ok := lookup("FILTER_MATCH"); ok && v != "" {
		c.Filter.Match = v
	}
	if v, ok := lookup("UI_PATH"); ok && v != "" {
		c.UIPath = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := lookup("LOG_FILE"); ok && v != "" {
		c.Log.File = v
	}
	c.Normalize()
	return nil
}

// LoadDotEnv loads variables from a .env file into the process environment
// without overriding variables that are already set. A missing file is not
// an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from the given YAML path, then applies
// environment overrides.
//
// Behavior:
//   - If path is empty, defaults plus environment are used.
//   - If the file does not exist, a default config is written there with
//     0600 perms.
//   - If the file exists, it is unmarshalled and normalized.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
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
		return nil, fmt.Errorf("parse %s: %w", path, err)
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
//   - Ensures final file permissions are 0600.
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

	tmp, err := os.CreateTemp(dir, ".calfilter-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
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
	return os.Rename(tmpName, path)
}
