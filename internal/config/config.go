// Package config loads procontext's configuration.
//
// Settings are layered: built-in defaults -> YAML file (./procontext.yaml,
// then ~/.config/procontext/procontext.yaml) -> environment variables (env
// wins). Built on github.com/spf13/viper, the pack's own config library of
// choice (see stacklok/toolhive-registry-server/internal/config, which
// layers a YAML file under viper.SetConfigFile with viper.AutomaticEnv()
// and an env prefix/replacer the same way procontext needs).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config is the full, validated procontext configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Registry RegistryConfig `mapstructure:"registry"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls which MCP transport is bound and, for the HTTP
// transport, where it listens.
type ServerConfig struct {
	Transport string `mapstructure:"transport"` // "stdio" or "http"
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
}

// RegistryConfig points at the known-libraries manifest and its version
// metadata.
type RegistryConfig struct {
	URL         string `mapstructure:"url"`
	MetadataURL string `mapstructure:"metadata_url"`
}

// CacheConfig controls the SQLite-backed documentation cache.
type CacheConfig struct {
	TTLHours             int    `mapstructure:"ttl_hours"`
	DBPath               string `mapstructure:"db_path"`
	CleanupIntervalHours int    `mapstructure:"cleanup_interval_hours"`
}

// FetcherConfig controls allowlist-expansion depth and the SSRF domain
// check. The private-IP check has no config knob: it is always on.
type FetcherConfig struct {
	AllowlistDepth  int  `mapstructure:"allowlist_depth"`
	SSRFDomainCheck bool `mapstructure:"ssrf_domain_check"`
}

// LoggingConfig controls internal/logger's level and output format.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envPrefix carries a trailing underscore deliberately: Viper joins it with
// the key using its own "_" separator, so "PROCONTEXT_" + "_" + "SERVER..."
// yields the double-underscore prefix "PROCONTEXT__SERVER..." the spec
// requires, and SetEnvKeyReplacer below turns the dot-nested key into the
// matching "__"-delimited form.
const envPrefix = "PROCONTEXT_"

const (
	defaultRegistryURL         = "https://raw.githubusercontent.com/pro-context/registry/main/known-libraries.json"
	defaultRegistryMetadataURL = "https://raw.githubusercontent.com/pro-context/registry/main/VERSION"
)

// Load builds a Config from defaults, an optional YAML file, and the
// environment, in that order of increasing precedence. Unknown top-level or
// nested keys, and wrong-typed values, fail Load rather than being silently
// ignored or coerced.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := findConfigFile(); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "__"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.ErrorUnused = true
	}); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("registry.url", defaultRegistryURL)
	v.SetDefault("registry.metadata_url", defaultRegistryMetadataURL)
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("cache.db_path", defaultDBPath())
	v.SetDefault("cache.cleanup_interval_hours", 6)
	v.SetDefault("fetcher.allowlist_depth", 1)
	v.SetDefault("fetcher.ssrf_domain_check", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// defaultDBPath places the cache under the platform user-data directory,
// falling back to a relative path if the home directory can't be resolved.
func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "cache.db"
	}
	dataDir := filepath.Join(home, ".local", "share")
	switch runtime.GOOS {
	case "darwin":
		dataDir = filepath.Join(home, "Library", "Application Support")
	case "windows":
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			dataDir = local
		}
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			dataDir = xdg
		}
	}
	return filepath.Join(dataDir, "procontext", "cache.db")
}

// findConfigFile searches ./procontext.yaml then
// ~/.config/procontext/procontext.yaml, returning "" if neither exists (the
// file is optional).
func findConfigFile() string {
	if _, err := os.Stat("procontext.yaml"); err == nil {
		return "procontext.yaml"
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidate := filepath.Join(home, ".config", "procontext", "procontext.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

func validate(cfg *Config) error {
	switch cfg.Server.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("server.transport must be %q or %q, got %q", "stdio", "http", cfg.Server.Transport)
	}
	if cfg.Server.Transport == "http" && cfg.Server.Port <= 0 {
		return fmt.Errorf("server.port must be positive for the http transport, got %d", cfg.Server.Port)
	}
	if strings.TrimSpace(cfg.Registry.URL) == "" {
		return fmt.Errorf("registry.url must not be empty")
	}
	if cfg.Cache.TTLHours <= 0 {
		return fmt.Errorf("cache.ttl_hours must be positive, got %d", cfg.Cache.TTLHours)
	}
	if strings.TrimSpace(cfg.Cache.DBPath) == "" {
		return fmt.Errorf("cache.db_path must not be empty")
	}
	if cfg.Cache.CleanupIntervalHours <= 0 {
		return fmt.Errorf("cache.cleanup_interval_hours must be positive, got %d", cfg.Cache.CleanupIntervalHours)
	}
	if cfg.Fetcher.AllowlistDepth < 0 {
		return fmt.Errorf("fetcher.allowlist_depth must be >= 0, got %d", cfg.Fetcher.AllowlistDepth)
	}
	return nil
}
