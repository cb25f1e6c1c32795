// ABOUTME: Configuration loading and parsing for parley-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete parley-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Model     ModelConfig     `yaml:"model"`
	Search    SearchConfig    `yaml:"search"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Chat      ChatConfig      `yaml:"chat"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// ModelConfig holds the upstream model provider configuration
type ModelConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	MaxAttempts int     `yaml:"max_attempts"`

	ConnectTimeout time.Duration `yaml:"-"`
	ReadTimeout    time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	ConnectTimeoutRaw string `yaml:"connect_timeout"`
	ReadTimeoutRaw    string `yaml:"read_timeout"`
}

// SearchConfig holds web search configuration
type SearchConfig struct {
	Enabled        bool     `yaml:"enabled"`
	TrustedSources []string `yaml:"trusted_sources"`

	CacheTTL      time.Duration `yaml:"-"`
	SourceTimeout time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	CacheTTLRaw      string `yaml:"cache_ttl"`
	SourceTimeoutRaw string `yaml:"source_timeout"`
}

// RateLimitConfig holds admission control configuration
type RateLimitConfig struct {
	Requests int `yaml:"requests"`

	Window time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	WindowRaw string `yaml:"window"`
}

// ChatConfig holds conversation pipeline configuration
type ChatConfig struct {
	// HistoryLimit is the number of prior messages supplied to the model
	HistoryLimit int `yaml:"history_limit"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when fields are absent from the config file.
const (
	DefaultMaxTokens      = 1024
	DefaultTemperature    = 0.7
	DefaultTopP           = 0.9
	DefaultMaxAttempts    = 3
	DefaultConnectTimeout = 5 * time.Second
	DefaultReadTimeout    = 30 * time.Second
	DefaultCacheTTL       = time.Hour
	DefaultSourceTimeout  = 10 * time.Second
	DefaultRateRequests   = 100
	DefaultRateWindow     = 60 * time.Second
	DefaultHistoryLimit   = 10
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if c.Model.Endpoint == "" {
		return fmt.Errorf("model.endpoint is required")
	}
	if c.Model.Model == "" {
		return fmt.Errorf("model.model is required")
	}
	if c.Model.MaxAttempts < 1 {
		return fmt.Errorf("model.max_attempts must be at least 1")
	}

	if c.RateLimit.Requests < 1 {
		return fmt.Errorf("ratelimit.requests must be at least 1")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("ratelimit.window must be positive")
	}

	if c.Chat.HistoryLimit < 1 {
		return fmt.Errorf("chat.history_limit must be at least 1")
	}

	return nil
}

// applyDefaults fills in zero-valued optional fields
func (c *Config) applyDefaults() {
	if c.Model.MaxTokens == 0 {
		c.Model.MaxTokens = DefaultMaxTokens
	}
	if c.Model.Temperature == 0 {
		c.Model.Temperature = DefaultTemperature
	}
	if c.Model.TopP == 0 {
		c.Model.TopP = DefaultTopP
	}
	if c.Model.MaxAttempts == 0 {
		c.Model.MaxAttempts = DefaultMaxAttempts
	}
	if c.Model.ConnectTimeout == 0 {
		c.Model.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Model.ReadTimeout == 0 {
		c.Model.ReadTimeout = DefaultReadTimeout
	}
	if c.Search.CacheTTL == 0 {
		c.Search.CacheTTL = DefaultCacheTTL
	}
	if c.Search.SourceTimeout == 0 {
		c.Search.SourceTimeout = DefaultSourceTimeout
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = DefaultRateRequests
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = DefaultRateWindow
	}
	if c.Chat.HistoryLimit == 0 {
		c.Chat.HistoryLimit = DefaultHistoryLimit
	}
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		raw  string
		dst  *time.Duration
		name string
	}{
		{cfg.Model.ConnectTimeoutRaw, &cfg.Model.ConnectTimeout, "model.connect_timeout"},
		{cfg.Model.ReadTimeoutRaw, &cfg.Model.ReadTimeout, "model.read_timeout"},
		{cfg.Search.CacheTTLRaw, &cfg.Search.CacheTTL, "search.cache_ttl"},
		{cfg.Search.SourceTimeoutRaw, &cfg.Search.SourceTimeout, "search.source_timeout"},
		{cfg.RateLimit.WindowRaw, &cfg.RateLimit.Window, "ratelimit.window"},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
