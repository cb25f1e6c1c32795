// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, duration parsing, and defaults

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "test-secret"

model:
  endpoint: "https://bedrock.example.com/invoke"
  model: "anthropic.claude-v2"
  max_tokens: 2048
  temperature: 0.5
  top_p: 0.8
  max_attempts: 5
  connect_timeout: "3s"
  read_timeout: "45s"

search:
  enabled: true
  cache_ttl: "30m"
  source_timeout: "5s"
  trusted_sources:
    - "DuckDuckGo"

ratelimit:
  requests: 50
  window: "30s"

chat:
  history_limit: 20

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Auth.JWTSecret != "test-secret" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "test-secret")
	}

	if cfg.Model.Endpoint != "https://bedrock.example.com/invoke" {
		t.Errorf("Model.Endpoint = %q", cfg.Model.Endpoint)
	}
	if cfg.Model.MaxTokens != 2048 {
		t.Errorf("Model.MaxTokens = %d, want 2048", cfg.Model.MaxTokens)
	}
	if cfg.Model.MaxAttempts != 5 {
		t.Errorf("Model.MaxAttempts = %d, want 5", cfg.Model.MaxAttempts)
	}
	if cfg.Model.ConnectTimeout != 3*time.Second {
		t.Errorf("Model.ConnectTimeout = %v, want 3s", cfg.Model.ConnectTimeout)
	}
	if cfg.Model.ReadTimeout != 45*time.Second {
		t.Errorf("Model.ReadTimeout = %v, want 45s", cfg.Model.ReadTimeout)
	}

	if !cfg.Search.Enabled {
		t.Error("Search.Enabled = false, want true")
	}
	if cfg.Search.CacheTTL != 30*time.Minute {
		t.Errorf("Search.CacheTTL = %v, want 30m", cfg.Search.CacheTTL)
	}
	if len(cfg.Search.TrustedSources) != 1 || cfg.Search.TrustedSources[0] != "DuckDuckGo" {
		t.Errorf("Search.TrustedSources = %v", cfg.Search.TrustedSources)
	}

	if cfg.RateLimit.Requests != 50 {
		t.Errorf("RateLimit.Requests = %d, want 50", cfg.RateLimit.Requests)
	}
	if cfg.RateLimit.Window != 30*time.Second {
		t.Errorf("RateLimit.Window = %v, want 30s", cfg.RateLimit.Window)
	}

	if cfg.Chat.HistoryLimit != 20 {
		t.Errorf("Chat.HistoryLimit = %d, want 20", cfg.Chat.HistoryLimit)
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "localhost:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "test-secret"

model:
  endpoint: "https://bedrock.example.com/invoke"
  model: "anthropic.claude-v2"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Model.MaxTokens != DefaultMaxTokens {
		t.Errorf("Model.MaxTokens = %d, want default %d", cfg.Model.MaxTokens, DefaultMaxTokens)
	}
	if cfg.Model.MaxAttempts != DefaultMaxAttempts {
		t.Errorf("Model.MaxAttempts = %d, want default %d", cfg.Model.MaxAttempts, DefaultMaxAttempts)
	}
	if cfg.Model.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("Model.ConnectTimeout = %v, want default %v", cfg.Model.ConnectTimeout, DefaultConnectTimeout)
	}
	if cfg.Search.CacheTTL != DefaultCacheTTL {
		t.Errorf("Search.CacheTTL = %v, want default %v", cfg.Search.CacheTTL, DefaultCacheTTL)
	}
	if cfg.RateLimit.Requests != DefaultRateRequests {
		t.Errorf("RateLimit.Requests = %d, want default %d", cfg.RateLimit.Requests, DefaultRateRequests)
	}
	if cfg.RateLimit.Window != DefaultRateWindow {
		t.Errorf("RateLimit.Window = %v, want default %v", cfg.RateLimit.Window, DefaultRateWindow)
	}
	if cfg.Chat.HistoryLimit != DefaultHistoryLimit {
		t.Errorf("Chat.HistoryLimit = %d, want default %d", cfg.Chat.HistoryLimit, DefaultHistoryLimit)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("PARLEY_TEST_SECRET", "expanded-secret")

	configPath := writeConfig(t, `
server:
  http_addr: "localhost:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "${PARLEY_TEST_SECRET}"

model:
  endpoint: "https://bedrock.example.com/invoke"
  model: "anthropic.claude-v2"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != "expanded-secret" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "expanded-secret")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "localhost:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "test-secret"

model:
  endpoint: "https://bedrock.example.com/invoke"
  model: "anthropic.claude-v2"
  read_timeout: "not-a-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "model.read_timeout") {
		t.Errorf("error %q does not mention the offending field", err.Error())
	}
}

func TestLoad_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name: "missing http_addr",
			content: `
database:
  path: "./test.db"
auth:
  jwt_secret: "s"
model:
  endpoint: "https://example.com"
  model: "m"
`,
			want: "server.http_addr",
		},
		{
			name: "missing database path",
			content: `
server:
  http_addr: "localhost:8080"
auth:
  jwt_secret: "s"
model:
  endpoint: "https://example.com"
  model: "m"
`,
			want: "database.path",
		},
		{
			name: "missing model endpoint",
			content: `
server:
  http_addr: "localhost:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "s"
model:
  model: "m"
`,
			want: "model.endpoint",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeConfig(t, tt.content)
			_, err := Load(configPath)
			if err == nil {
				t.Fatal("Load() expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.want)
			}
		})
	}
}
