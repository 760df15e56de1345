// Package config loads and hot-reloads the bridge's runtime configuration,
// per spec §6's recognized-keys table.
package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"
)

// Config holds every recognized configuration key.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	APIKey string `mapstructure:"apiKey"`
	Region string `mapstructure:"region"`

	DatabasePath string `mapstructure:"databasePath"`
	AdminAPIKey  string `mapstructure:"adminApiKey"`

	KiroVersion   string `mapstructure:"kiroVersion"`
	SystemVersion string `mapstructure:"systemVersion"`
	NodeVersion   string `mapstructure:"nodeVersion"`

	CountTokensAPIURL   string `mapstructure:"countTokensApiUrl"`
	CountTokensAPIKey   string `mapstructure:"countTokensApiKey"`
	CountTokensAuthType string `mapstructure:"countTokensAuthType"`

	ProxyURL      string `mapstructure:"proxyUrl"`
	ProxyUsername string `mapstructure:"proxyUsername"`
	ProxyPassword string `mapstructure:"proxyPassword"`
}

// AdminEnabled reports whether the admin HTTP surface should be mounted.
func (c *Config) AdminEnabled() bool {
	return strings.TrimSpace(c.AdminAPIKey) != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8317)
	v.SetDefault("region", "us-east-1")
	v.SetDefault("databasePath", "./kiro-bridge.db")
	v.SetDefault("kiroVersion", "0.3.39")
	v.SetDefault("systemVersion", "1.0.0")
	v.SetDefault("nodeVersion", "20.0.0")
	v.SetDefault("countTokensAuthType", "x-api-key")
}

// Load reads configuration from path (YAML), applying defaults for any
// unset key, and overlaying environment variables prefixed KIRO_BRIDGE_.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)
	v.SetEnvPrefix("KIRO_BRIDGE")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("config: apiKey is required")
	}
	return &cfg, nil
}

// Store holds the live configuration, letting the watcher atomically swap
// it in place without requiring every reader to re-read the file.
type Store struct {
	mu  sync.RWMutex
	cur *Config
}

// NewStore wraps an initial configuration for concurrent access.
func NewStore(initial *Config) *Store {
	return &Store{cur: initial}
}

// Get returns the current configuration snapshot.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Set replaces the current configuration snapshot. Keys that handlers read
// through Get on each request (apiKey, the adminApiKey value, region, the
// identity headers, count-tokens delegation) apply to the next request.
// host, port, databasePath and the proxy settings are read once at
// startup, and whether the admin routes are mounted is decided once when
// the router is built; changing any of those takes a process restart.
func (s *Store) Set(cfg *Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = cfg
}
