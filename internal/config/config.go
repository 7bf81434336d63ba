// Package config loads contentsync settings from an optional TOML file and
// CONTENTSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. CONTENTSYNC_HTTP_PORT.
const EnvPrefix = "CONTENTSYNC"

// Config holds application configuration.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Listing    ListingConfig    `mapstructure:"listing"`
	Homescreen HomescreenConfig `mapstructure:"homescreen"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
}

// DatabaseConfig holds sqlite settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// HTTPConfig holds the variant server settings. They also shape the
// variant URLs handed to consumers.
type HTTPConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
}

// ListingConfig tunes cursor traversal.
type ListingConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	PageSize    int `mapstructure:"page_size"`
}

// HomescreenConfig holds action grid settings.
type HomescreenConfig struct {
	GridWidth int `mapstructure:"grid_width"`
}

// FetchConfig holds settings for icon, poster and plugin downloads.
type FetchConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// Addr returns host:port.
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads configuration. path names an explicit config file; when empty,
// CONTENTSYNC_CONFIG or ~/.config/contentsync/config.toml is used if present.
func Load(path string) (Config, error) {
	v := viper.New()

	home, _ := os.UserHomeDir()
	v.SetDefault("database.path", filepath.Join(home, ".local", "share", "contentsync", "content.db"))
	v.SetDefault("http.host", "127.0.0.1")
	v.SetDefault("http.port", 8081)
	v.SetDefault("http.namespace", "cmgr")
	v.SetDefault("listing.concurrency", 8)
	v.SetDefault("listing.page_size", 20)
	v.SetDefault("homescreen.grid_width", 4)
	v.SetDefault("fetch.timeout", "30s")

	v.SetConfigType("toml")

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	explicit := path != ""
	if explicit {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(filepath.Join(home, ".config", "contentsync"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.HTTP.Namespace == "" || strings.Contains(c.HTTP.Namespace, "/") {
		errs = append(errs, fmt.Errorf("http.namespace %q must be a single path segment", c.HTTP.Namespace))
	}
	if c.Listing.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("listing.concurrency must be positive, got %d", c.Listing.Concurrency))
	}
	if c.Listing.PageSize < 1 {
		errs = append(errs, fmt.Errorf("listing.page_size must be positive, got %d", c.Listing.PageSize))
	}
	if c.Homescreen.GridWidth < 1 {
		errs = append(errs, fmt.Errorf("homescreen.grid_width must be positive, got %d", c.Homescreen.GridWidth))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout must be positive, got %s", c.Fetch.Timeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
