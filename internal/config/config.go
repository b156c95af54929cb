package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server ServerConfig `yaml:"server"`
	Cache  CacheConfig  `yaml:"cache"`
	Rules  RulesConfig  `yaml:"rules"`
	Admin  AdminConfig  `yaml:"admin"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port  int         `yaml:"port"`
	HTTPS HTTPSConfig `yaml:"https"`
}

// HTTPSConfig configures TLS interception for proxied HTTPS traffic
type HTTPSConfig struct {
	CACertFile string `yaml:"ca_cert_file"`
	CAKeyFile  string `yaml:"ca_key_file"`
}

// CacheConfig contains cache-related configuration
type CacheConfig struct {
	Backend string `yaml:"backend"` // "memory", "disk" or "bolt"
	TTL     string `yaml:"ttl"`
	MaxSize int    `yaml:"max_size"` // memory backend only
	Folder  string `yaml:"folder"`   // disk and bolt backends
}

// RulesConfig contains caching rules configuration
type RulesConfig struct {
	Mode  string      `yaml:"mode"` // "whitelist" or "blacklist"
	Rules []CacheRule `yaml:"rules"`
}

// CacheRule defines a caching rule
type CacheRule struct {
	BaseURI     string   `yaml:"base_uri"`
	Methods     []string `yaml:"methods"`
	StatusCodes []string `yaml:"status_codes"` // e.g. "200", "2xx"
}

// AdminConfig contains admin endpoint configuration
type AdminConfig struct {
	RateLimit float64 `yaml:"rate_limit"` // requests per second per client
	Burst     int     `yaml:"burst"`
	TokenTTL  string  `yaml:"token_ttl"`
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	// Set defaults
	if config.Server.Port == 0 {
		config.Server.Port = 8080
	}
	if config.Cache.Backend == "" {
		config.Cache.Backend = "memory"
	}
	if config.Cache.TTL == "" {
		config.Cache.TTL = "5m"
	}
	if config.Cache.MaxSize == 0 {
		config.Cache.MaxSize = 100
	}
	if config.Rules.Mode == "" {
		config.Rules.Mode = "blacklist"
	}
	if config.Admin.RateLimit == 0 {
		config.Admin.RateLimit = 5
	}
	if config.Admin.Burst == 0 {
		config.Admin.Burst = 10
	}
	if config.Admin.TokenTTL == "" {
		config.Admin.TokenTTL = "1h"
	}

	return &config, nil
}

// GetCacheTTL parses and returns the cache TTL duration
func (c *Config) GetCacheTTL() (time.Duration, error) {
	return time.ParseDuration(c.Cache.TTL)
}

// GetTokenTTL parses and returns the admin token TTL duration
func (c *Config) GetTokenTTL() (time.Duration, error) {
	return time.ParseDuration(c.Admin.TokenTTL)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}

	switch c.Cache.Backend {
	case "memory":
	case "disk", "bolt":
		if c.Cache.Folder == "" {
			return fmt.Errorf("cache folder is required for the %s backend", c.Cache.Backend)
		}
	default:
		return fmt.Errorf("cache backend must be 'memory', 'disk' or 'bolt', got: %s", c.Cache.Backend)
	}

	if _, err := c.GetCacheTTL(); err != nil {
		return fmt.Errorf("invalid cache TTL format: %w", err)
	}

	if c.Cache.MaxSize < 0 {
		return fmt.Errorf("invalid cache max_size: %d", c.Cache.MaxSize)
	}

	if c.Rules.Mode != "whitelist" && c.Rules.Mode != "blacklist" {
		return fmt.Errorf("rules mode must be 'whitelist' or 'blacklist', got: %s", c.Rules.Mode)
	}

	for _, rule := range c.Rules.Rules {
		for _, pattern := range rule.StatusCodes {
			if !validStatusPattern(pattern) {
				return fmt.Errorf("invalid status code pattern: %s", pattern)
			}
		}
	}

	if _, err := c.GetTokenTTL(); err != nil {
		return fmt.Errorf("invalid admin token TTL format: %w", err)
	}
	if c.Admin.RateLimit < 0 {
		return fmt.Errorf("invalid admin rate limit: %f", c.Admin.RateLimit)
	}

	return nil
}

// MatchesStatusCode checks a status code against a pattern, either an
// exact code ("200") or a class ("4xx").
func MatchesStatusCode(status int, pattern string) bool {
	if len(pattern) == 3 && pattern[1:] == "xx" {
		class := int(pattern[0] - '0')
		return status/100 == class
	}

	code, err := strconv.Atoi(pattern)
	if err != nil {
		return false
	}
	return status == code
}

func validStatusPattern(pattern string) bool {
	if len(pattern) == 3 && pattern[1:] == "xx" {
		return pattern[0] >= '1' && pattern[0] <= '5'
	}
	code, err := strconv.Atoi(pattern)
	return err == nil && code >= 100 && code < 600
}
