// Package config handles configuration loading for parley-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from PARLEY_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/parley/gateway.yaml
//  3. ~/.config/parley/gateway.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${PARLEY_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	model:
//	  connect_timeout: "5s"
//	  read_timeout: "30s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  http_addr: "0.0.0.0:8080"
//
// Database:
//
//	database:
//	  path: "/var/lib/parley/gateway.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${PARLEY_JWT_SECRET}"  # Required
//
// Model provider:
//
//	model:
//	  endpoint: "https://bedrock.example.com/invoke"
//	  model: "anthropic.claude-v2"
//	  max_tokens: 1024
//	  temperature: 0.7
//	  top_p: 0.9
//	  max_attempts: 3
//	  connect_timeout: "5s"
//	  read_timeout: "30s"
//
// Web search:
//
//	search:
//	  enabled: true
//	  cache_ttl: "1h"
//	  source_timeout: "10s"
//	  trusted_sources:
//	    - "DuckDuckGo"
//
// Rate limiting:
//
//	ratelimit:
//	  requests: 100
//	  window: "60s"
//
// Chat pipeline:
//
//	chat:
//	  history_limit: 10
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - Required fields (server address, database path, JWT secret, model endpoint and id)
//   - Duration format validity
//   - Positive rate limit and history values
//
// # Usage
//
// Load configuration:
//
//	cfg, err := config.Load(path)
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
