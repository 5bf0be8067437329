package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override (PORTAL_AUTH_CLIENT_ID).
const EnvPrefix = "PORTAL"

// DefaultConfigFile is read when no --config flag is given and the file exists.
const DefaultConfigFile = "portal.yaml"

// ErrMissingDatabaseURL is returned when database.url resolves to an empty string.
var ErrMissingDatabaseURL = errors.New("database.url is required")

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Portal   PortalConfig   `mapstructure:"portal"`

	// Enable debug logging
	Debug bool `mapstructure:"debug"`

	// Auth is parsed separately from the raw tree; see ParseAuth.
	Auth *AuthConfig `mapstructure:"-"`

	// Settings is the merged raw tree the config was built from.
	Settings map[string]any `mapstructure:"-"`

	// File is the config file that was read, empty when running from env only.
	File string `mapstructure:"-"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	URL         string   `mapstructure:"url"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// DatabaseConfig holds the DSN for the local user and session store.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

// PortalConfig describes the catalog served to authorized users.
type PortalConfig struct {
	Title        string        `mapstructure:"title"`
	RequiredRole string        `mapstructure:"required_role"`
	HostSuffix   string        `mapstructure:"host_suffix"`
	Apps         []AppConfig   `mapstructure:"apps"`
	Grants       []GrantConfig `mapstructure:"grants"`
}

// AppConfig is one catalog entry.
type AppConfig struct {
	Name         string            `mapstructure:"name"`
	URL          string            `mapstructure:"url"`
	RequiredRole string            `mapstructure:"required_role"`
	Labels       map[string]string `mapstructure:"labels"`
}

// GrantConfig opens every app whose labels satisfy Filter to holders of Role.
// An empty Filter matches all apps.
type GrantConfig struct {
	Role   string `mapstructure:"role"`
	Filter string `mapstructure:"filter"`
}

// envBoundKeys are registered as defaults so env overrides reach AllSettings
// even when the file does not mention them.
var envBoundKeys = []string{
	"auth.client_id",
	"auth.client_secret",
	"auth.server_metadata_url",
	"auth.redirect_uri",
	"auth.cookie_secret",
	"auth.empty_allowlist",
	"oidc.client_id",
	"oidc.client_secret",
	"oidc.discovery_url",
	"oidc.redirect_uri",
	"oidc.cookie_secret",
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.addr", "localhost:8080")
	v.SetDefault("server.url", "http://localhost:8080")
	v.SetDefault("database.url", "file:portal.db?cache=shared")
	v.SetDefault("debug", false)
	v.SetDefault("auth.require_verified_email", true)
	v.SetDefault("auth.allowed_emails", []string{})
	v.SetDefault("auth.allowed_domains", []string{})
	v.SetDefault("auth.local.enabled", true)
	v.SetDefault("auth.local.allow_default_admin", false)
	v.SetDefault("portal.title", "Portal de Aplicativos")
	v.SetDefault("portal.host_suffix", "")
	for _, key := range envBoundKeys {
		v.SetDefault(key, "")
	}
	return v
}

// Load reads configuration from path (or portal.yaml when present) and
// PORTAL_ prefixed environment variables.
func Load(path string) (*Config, error) {
	v := newViper()

	var raw []byte
	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		raw = data
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	return build(v, path, raw)
}

func build(v *viper.Viper, path string, raw []byte) (*Config, error) {
	cfg := &Config{File: path}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Server.CORSOrigins = normalizeList(v.Get("server.cors_origins"), strings.TrimSpace)

	if cfg.Database.URL == "" {
		return nil, ErrMissingDatabaseURL
	}

	var order []string
	if len(raw) > 0 {
		keys, err := mappingKeyOrder(raw, "auth")
		if err != nil {
			return nil, fmt.Errorf("read auth key order: %w", err)
		}
		order = keys
	}

	cfg.Settings = v.AllSettings()
	cfg.Auth = ParseAuth(cfg.Settings, order)
	return cfg, nil
}

// Store holds the active configuration snapshot.
// Readers never block; Swap publishes a fully built replacement.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// Snapshot pairs a configuration with a monotonically increasing version.
type Snapshot struct {
	Version uint64
	*Config
}

// NewStore creates a store seeded with cfg at version 1.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(&Snapshot{Version: 1, Config: cfg})
	return s
}

// Get returns the current snapshot.
func (s *Store) Get() *Snapshot {
	return s.current.Load()
}

// Swap publishes cfg as the next version and returns it.
func (s *Store) Swap(cfg *Config) *Snapshot {
	for {
		prev := s.current.Load()
		next := &Snapshot{Version: prev.Version + 1, Config: cfg}
		if s.current.CompareAndSwap(prev, next) {
			return next
		}
	}
}

// Reload re-reads the file the current snapshot came from and swaps it in.
func (s *Store) Reload() (*Snapshot, error) {
	cfg, err := Load(s.Get().File)
	if err != nil {
		return nil, err
	}
	return s.Swap(cfg), nil
}
