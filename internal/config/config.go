// Package config handles configuration loading and defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Source represents where a configuration value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceFile    Source = "file"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

// Default values.
const (
	DefaultAPIBaseURL    = "http://localhost:5000/api"
	DefaultTheme         = "nord"
	DefaultLogLevel      = "info"
	DefaultWatchInterval = time.Second
)

// Environment variables read by Load.
const (
	EnvConfigFile = "TASKDECK_CONFIG"
	EnvAPIURL     = "TASKDECK_API_URL"
	EnvDataDir    = "TASKDECK_DATA_DIR"
	EnvTheme      = "TASKDECK_THEME"
	EnvLogLevel   = "TASKDECK_LOG_LEVEL"
	EnvRedisURL   = "TASKDECK_REDIS_URL"
	EnvNotify     = "TASKDECK_NOTIFICATIONS"
)

// Duration is a time.Duration that decodes from TOML strings such as "5s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config holds the full configuration for taskdeck.
type Config struct {
	// Remote API root; "/api" is appended when missing
	APIBaseURL string `toml:"api_base_url"`

	// Local state
	DataDir string `toml:"data_dir"`

	// UI
	Theme         string `toml:"theme"`
	Notifications bool   `toml:"notifications"`

	// Logging configuration
	LogLevel string `toml:"log_level"`
	LogFile  string `toml:"log_file"`

	// Zero leaves the HTTP client default in place
	RequestTimeout Duration `toml:"request_timeout"`

	// How often other processes' session writes are picked up
	WatchInterval Duration `toml:"watch_interval"`

	// Optional redis relay for session change notices
	RedisURL     string `toml:"redis_url"`
	RedisChannel string `toml:"redis_channel"`

	// Path of the file that was loaded, if any
	File string `toml:"-"`

	// Sources records where each key's value came from
	Sources map[string]Source `toml:"-"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		APIBaseURL:    DefaultAPIBaseURL,
		DataDir:       defaultDataDir(),
		Theme:         DefaultTheme,
		Notifications: true,
		LogLevel:      DefaultLogLevel,
		WatchInterval: Duration{DefaultWatchInterval},
		RedisChannel:  "taskdeck:session",
		Sources:       make(map[string]Source),
	}
	for _, k := range keys() {
		cfg.Sources[k] = SourceDefault
	}
	return cfg
}

// Load builds the configuration from defaults, the config file and the environment,
// in increasing order of precedence. An empty path means the default location.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv(EnvConfigFile)
	}
	explicit := path != ""
	if path == "" {
		path = DefaultFile()
	}

	if err := cfg.loadFile(path, explicit); err != nil {
		return nil, err
	}
	cfg.loadEnv()

	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultFile returns the default config file location.
func DefaultFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(".taskdeck", "config.toml")
	}
	return filepath.Join(dir, "taskdeck", "config.toml")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskdeck"
	}
	return filepath.Join(home, ".local", "share", "taskdeck")
}

func keys() []string {
	return []string{
		"api_base_url", "data_dir", "theme", "notifications", "log_level", "log_file",
		"request_timeout", "watch_interval", "redis_url", "redis_channel",
	}
}

// loadFile merges a TOML file over the current values. A missing file is only
// an error when it was asked for explicitly.
func (c *Config) loadFile(path string, explicit bool) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("config file %s: %w", path, err)
	}

	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	for _, k := range md.Keys() {
		c.Sources[k.String()] = SourceFile
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config file %s: unknown key %q", path, undecoded[0].String())
	}
	c.File = path
	return nil
}

func (c *Config) loadEnv() {
	set := func(env, key string, apply func(string)) {
		if v, ok := os.LookupEnv(env); ok && v != "" {
			apply(v)
			c.Sources[key] = SourceEnv
		}
	}

	set(EnvAPIURL, "api_base_url", func(v string) { c.APIBaseURL = v })
	set(EnvDataDir, "data_dir", func(v string) { c.DataDir = v })
	set(EnvTheme, "theme", func(v string) { c.Theme = v })
	set(EnvLogLevel, "log_level", func(v string) { c.LogLevel = v })
	set(EnvRedisURL, "redis_url", func(v string) { c.RedisURL = v })
	set(EnvNotify, "notifications", func(v string) {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Notifications = b
		}
	})
}

// SetFlag applies a command-line override and records its source.
func (c *Config) SetFlag(key, value string) error {
	switch key {
	case "api_base_url":
		c.APIBaseURL = value
	case "data_dir":
		c.DataDir = value
	case "theme":
		c.Theme = value
	case "log_level":
		c.LogLevel = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	c.Sources[key] = SourceFlag
	return c.finalize()
}

func (c *Config) finalize() error {
	c.DataDir = expandPath(c.DataDir)
	c.LogFile = expandPath(c.LogFile)
	c.Theme = strings.ToLower(strings.TrimSpace(c.Theme))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))

	u, err := url.Parse(c.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api_base_url %q is not an absolute URL", c.APIBaseURL)
	}
	if c.RequestTimeout.Duration < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	if c.WatchInterval.Duration <= 0 {
		c.WatchInterval = Duration{DefaultWatchInterval}
	}
	return nil
}

// DBPath returns the sqlite file holding client storage and the task cache.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "taskdeck.db")
}

// LockPath returns the file used to serialize session writers across processes.
func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "session.lock")
}

// LogPath returns the log file, defaulting to the data directory.
func (c *Config) LogPath() string {
	if c.LogFile != "" {
		return c.LogFile
	}
	return filepath.Join(c.DataDir, "taskdeck.log")
}

func expandPath(p string) string {
	if p == "" {
		return p
	}
	p = os.ExpandEnv(p)
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
