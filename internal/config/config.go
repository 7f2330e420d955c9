// Package config loads storydeck settings.
//
// Precedence, lowest first: built-in defaults, the YAML config file,
// STORYDECK_* environment variables (a .env file in the working directory
// is loaded first), then command-line flags bound with BindFlags.
//
//	feed:
//	  dwell: 5s
//	  swipe_threshold: 50
//	  fetch_timeout: 10s
//	  prefetch: false
//	viewer: me
//	database:
//	  path: storydeck.db
//	  like_daily_limit: 0
//	remote:
//	  base_url: https://feed.example.com
//	  timeout: 10s
//	  retries: 2
//
// Environment keys replace dots with underscores: STORYDECK_FEED_DWELL,
// STORYDECK_REMOTE_TOKEN.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/storydeck/internal/gesture"
	"github.com/roach88/storydeck/internal/playback"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STORYDECK"

// Config is the full settings tree.
type Config struct {
	Viewer   string         `mapstructure:"viewer"`
	Feed     FeedConfig     `mapstructure:"feed"`
	Database DatabaseConfig `mapstructure:"database"`
	Remote   RemoteConfig   `mapstructure:"remote"`
}

// FeedConfig tunes the engine.
type FeedConfig struct {
	Dwell          time.Duration `mapstructure:"dwell"`
	SwipeThreshold float64       `mapstructure:"swipe_threshold"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	Prefetch       bool          `mapstructure:"prefetch"`
}

// DatabaseConfig locates the local SQLite backend.
type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	LikeDailyLimit int    `mapstructure:"like_daily_limit"`
}

// RemoteConfig points at an HTTP feed server. An empty BaseURL means the
// local database is the backend.
type RemoteConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

// UseRemote reports whether the HTTP backend is configured.
func (c *Config) UseRemote() bool {
	return c.Remote.BaseURL != ""
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Feed.Dwell <= 0 {
		errs = append(errs, fmt.Errorf("feed.dwell must be positive, got %s", c.Feed.Dwell))
	}
	if c.Feed.SwipeThreshold <= 0 {
		errs = append(errs, fmt.Errorf("feed.swipe_threshold must be positive, got %g", c.Feed.SwipeThreshold))
	}
	if c.Feed.FetchTimeout < 0 {
		errs = append(errs, fmt.Errorf("feed.fetch_timeout must not be negative, got %s", c.Feed.FetchTimeout))
	}
	if c.Database.LikeDailyLimit < 0 {
		errs = append(errs, fmt.Errorf("database.like_daily_limit must not be negative, got %d", c.Database.LikeDailyLimit))
	}
	if c.Remote.Retries < 0 {
		errs = append(errs, fmt.Errorf("remote.retries must not be negative, got %d", c.Remote.Retries))
	}
	if !c.UseRemote() && c.Database.Path == "" {
		errs = append(errs, errors.New("either database.path or remote.base_url is required"))
	}
	return errors.Join(errs...)
}

// Flag names understood by BindFlags. Commands register only the ones they
// use.
var flagKeys = map[string]string{
	"db":              "database.path",
	"viewer":          "viewer",
	"dwell":           "feed.dwell",
	"swipe-threshold": "feed.swipe_threshold",
	"fetch-timeout":   "feed.fetch_timeout",
	"prefetch":        "feed.prefetch",
	"like-limit":      "database.like_daily_limit",
	"remote":          "remote.base_url",
}

// Loader reads configuration. The zero value is not usable; call NewLoader.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a loader with defaults applied.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("viewer", "")
	v.SetDefault("feed.dwell", playback.DefaultDwell)
	v.SetDefault("feed.swipe_threshold", gesture.DefaultThreshold)
	v.SetDefault("feed.fetch_timeout", 10*time.Second)
	v.SetDefault("feed.prefetch", false)
	v.SetDefault("database.path", "storydeck.db")
	v.SetDefault("database.like_daily_limit", 0)
	v.SetDefault("remote.base_url", "")
	v.SetDefault("remote.token", "")
	v.SetDefault("remote.timeout", 10*time.Second)
	v.SetDefault("remote.retries", 2)

	return &Loader{v: v}
}

// BindFlags lets any flag in fs named in flagKeys override its key. Flags
// the user did not set keep the lower layers.
func (l *Loader) BindFlags(fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := l.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads path (if non-empty) and returns the validated config. A missing
// .env file is not an error, but a malformed one is, and so is a missing
// config file named explicitly.
func (l *Loader) Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path != "" {
		l.v.SetConfigFile(path)
		l.v.SetConfigType("yaml")
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Load is NewLoader().Load(path).
func Load(path string) (*Config, error) {
	return NewLoader().Load(path)
}
