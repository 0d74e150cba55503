package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if err := config.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if config.HTTP.Port != 3001 {
		t.Errorf("Expected default port 3001, got %d", config.HTTP.Port)
	}
	if config.Router.DeliveryMode != DeliveryBroadcast {
		t.Errorf("Expected broadcast delivery by default, got %s", config.Router.DeliveryMode)
	}
	if len(config.CORS.AllowedOrigins) != 1 || config.CORS.AllowedOrigins[0] != "*" {
		t.Errorf("Expected wildcard origin by default, got %v", config.CORS.AllowedOrigins)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"invalid port", func(c *Config) { c.HTTP.Port = -1 }},
		{"port too large", func(c *Config) { c.HTTP.Port = 70000 }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"empty host", func(c *Config) { c.HTTP.Host = "" }},
		{"read timeout below ping", func(c *Config) { c.WebSocket.ReadTimeout = c.WebSocket.PingInterval }},
		{"zero buffer", func(c *Config) { c.WebSocket.BufferSize = 0 }},
		{"unknown delivery mode", func(c *Config) { c.Router.DeliveryMode = "multicast" }},
		{"negative rate limit", func(c *Config) { c.Router.RateLimitPerMinute = -1 }},
		{"zero conversation timeout", func(c *Config) { c.Conversation.Timeout = 0 }},
		{"no origins", func(c *Config) { c.CORS.AllowedOrigins = nil }},
		{"missing websocket section", func(c *Config) { c.WebSocket = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("COUNSELRELAY_HTTP_PORT", "9090")
	t.Setenv("COUNSELRELAY_DATABASE_PATH", "/tmp/test.db")
	t.Setenv("COUNSELRELAY_ROUTER_DELIVERY_MODE", "Participants")
	t.Setenv("COUNSELRELAY_ROUTER_RATE_LIMIT_PER_MINUTE", "0")
	t.Setenv("COUNSELRELAY_CONVERSATION_TIMEOUT", "3s")
	t.Setenv("COUNSELRELAY_CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	config := LoadFromEnv()

	if config.HTTP.Port != 9090 {
		t.Errorf("Expected HTTP port 9090, got %d", config.HTTP.Port)
	}
	if config.Database.Path != "/tmp/test.db" {
		t.Errorf("Expected database path /tmp/test.db, got %s", config.Database.Path)
	}
	if config.Router.DeliveryMode != DeliveryParticipants {
		t.Errorf("Expected participants delivery, got %s", config.Router.DeliveryMode)
	}
	if config.Router.RateLimitPerMinute != 0 {
		t.Errorf("Expected rate limit disabled, got %d", config.Router.RateLimitPerMinute)
	}
	if config.Conversation.Timeout != 3*time.Second {
		t.Errorf("Expected 3s conversation timeout, got %v", config.Conversation.Timeout)
	}
	if len(config.CORS.AllowedOrigins) != 2 || config.CORS.AllowedOrigins[1] != "http://b.test" {
		t.Errorf("Unexpected origins: %v", config.CORS.AllowedOrigins)
	}
}

func TestConfig_LoadFromEnvPlatformFallbacks(t *testing.T) {
	t.Setenv("PORT", "10000")
	t.Setenv("CLIENT_URL", "https://counsel.example.edu")

	config := LoadFromEnv()
	if config.HTTP.Port != 10000 {
		t.Errorf("Expected PORT fallback 10000, got %d", config.HTTP.Port)
	}
	if config.CORS.AllowedOrigins[0] != "https://counsel.example.edu" {
		t.Errorf("Expected CLIENT_URL origin, got %v", config.CORS.AllowedOrigins)
	}

	// Prefixed variable wins over the fallback
	t.Setenv("COUNSELRELAY_HTTP_PORT", "8088")
	if config := LoadFromEnv(); config.HTTP.Port != 8088 {
		t.Errorf("Expected prefixed port 8088, got %d", config.HTTP.Port)
	}
}

func TestConfig_LoadFromEnvEdgeCases(t *testing.T) {
	t.Setenv("COUNSELRELAY_HTTP_PORT", "invalid")
	t.Setenv("COUNSELRELAY_HTTP_READ_TIMEOUT", "invalid")

	config := LoadFromEnv()
	defaults := DefaultConfig()
	if config.HTTP.Port != defaults.HTTP.Port {
		t.Errorf("Invalid port should fall back to default, got %d", config.HTTP.Port)
	}
	if config.HTTP.ReadTimeout != defaults.HTTP.ReadTimeout {
		t.Errorf("Invalid timeout should fall back to default, got %v", config.HTTP.ReadTimeout)
	}
}

func TestConfig_LoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `{
		"database": {"path": "/tmp/testfile.db", "timeout": "15s"},
		"http": {"port": 8081, "read_timeout": "10s"},
		"websocket": {"ping_interval": "20s", "read_timeout": "45s"},
		"router": {"delivery_mode": "participants"},
		"conversation": {"timeout": "2s"},
		"cors": {"allowed_origins": ["http://localhost:3000"]}
	}`)

	config, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if config.Database.Path != "/tmp/testfile.db" || config.Database.Timeout != 15*time.Second {
		t.Errorf("Unexpected database config: %+v", config.Database)
	}
	if config.HTTP.Port != 8081 || config.HTTP.ReadTimeout != 10*time.Second {
		t.Errorf("Unexpected HTTP config: %+v", config.HTTP)
	}
	// Fields absent from the file keep their defaults
	if config.HTTP.WriteTimeout != 30*time.Second {
		t.Errorf("Expected default write timeout, got %v", config.HTTP.WriteTimeout)
	}
	if config.Router.DeliveryMode != DeliveryParticipants {
		t.Errorf("Expected participants delivery, got %s", config.Router.DeliveryMode)
	}
	if config.Router.RateLimitPerMinute != 100 {
		t.Errorf("Omitted rate limit should keep default 100, got %d", config.Router.RateLimitPerMinute)
	}
	if config.Conversation.Timeout != 2*time.Second {
		t.Errorf("Expected 2s conversation timeout, got %v", config.Conversation.Timeout)
	}
}

func TestConfig_LoadFromFileErrors(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}

	if _, err := LoadFromFile(writeConfigFile(t, `{invalid json`)); err == nil {
		t.Error("Expected error for invalid JSON")
	}

	if _, err := LoadFromFile(writeConfigFile(t, `{"router": {"delivery_mode": "multicast"}}`)); err == nil {
		t.Error("Expected validation error for unknown delivery mode")
	}
}

func TestConfig_LoadConfigWithPrecedence(t *testing.T) {
	t.Setenv("COUNSELRELAY_HTTP_PORT", "9999")
	t.Setenv("COUNSELRELAY_DATABASE_PATH", "/tmp/env.db")

	// Environment only
	config := LoadConfigWithPrecedence("")
	if config.HTTP.Port != 9999 {
		t.Errorf("Expected env port 9999, got %d", config.HTTP.Port)
	}

	// File overrides environment for the fields it sets
	path := writeConfigFile(t, `{"http": {"port": 7777}}`)
	config = LoadConfigWithPrecedence(path)
	if config.HTTP.Port != 7777 {
		t.Errorf("Expected file port 7777, got %d", config.HTTP.Port)
	}
	if config.Database.Path != "/tmp/env.db" {
		t.Errorf("Expected env database path to survive, got %s", config.Database.Path)
	}

	// Unreadable file falls back to environment
	config = LoadConfigWithPrecedence(filepath.Join(t.TempDir(), "missing.json"))
	if config.HTTP.Port != 9999 {
		t.Errorf("Expected env port after bad file, got %d", config.HTTP.Port)
	}
}
