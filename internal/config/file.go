package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	Database     *DatabaseConfigFile     `json:"database"`
	HTTP         *HTTPConfigFile         `json:"http"`
	WebSocket    *WebSocketConfigFile    `json:"websocket"`
	Router       *RouterConfigFile       `json:"router"`
	Conversation *ConversationConfigFile `json:"conversation"`
	CORS         *CORSConfig             `json:"cors"`
}

type DatabaseConfigFile struct {
	Path           string `json:"path"`
	Timeout        string `json:"timeout"`
	MigrationsPath string `json:"migrations_path"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval   string `json:"ping_interval"`
	ReadTimeout    string `json:"read_timeout"`
	WriteTimeout   string `json:"write_timeout"`
	BufferSize     int    `json:"buffer_size"`
	MaxMessageSize int64  `json:"max_message_size"`
}

type RouterConfigFile struct {
	DeliveryMode       string `json:"delivery_mode"`
	RateLimitPerMinute *int   `json:"rate_limit_per_minute"`
}

type ConversationConfigFile struct {
	Timeout string `json:"timeout"`
}

// LoadFromFile reads a JSON config file over the defaults
func LoadFromFile(filepath string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, filepath); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

// applyFile overlays the fields present in a JSON config file
func applyFile(config *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	if db := file.Database; db != nil {
		if db.Path != "" {
			config.Database.Path = db.Path
		}
		setDuration(&config.Database.Timeout, db.Timeout)
		if db.MigrationsPath != "" {
			config.Database.MigrationsPath = db.MigrationsPath
		}
	}

	if h := file.HTTP; h != nil {
		if h.Port > 0 {
			config.HTTP.Port = h.Port
		}
		if h.Host != "" {
			config.HTTP.Host = h.Host
		}
		setDuration(&config.HTTP.ReadTimeout, h.ReadTimeout)
		setDuration(&config.HTTP.WriteTimeout, h.WriteTimeout)
	}

	if ws := file.WebSocket; ws != nil {
		if ws.BufferSize > 0 {
			config.WebSocket.BufferSize = ws.BufferSize
		}
		if ws.MaxMessageSize > 0 {
			config.WebSocket.MaxMessageSize = ws.MaxMessageSize
		}
		setDuration(&config.WebSocket.PingInterval, ws.PingInterval)
		setDuration(&config.WebSocket.ReadTimeout, ws.ReadTimeout)
		setDuration(&config.WebSocket.WriteTimeout, ws.WriteTimeout)
	}

	if r := file.Router; r != nil {
		if r.DeliveryMode != "" {
			config.Router.DeliveryMode = r.DeliveryMode
		}
		// zero disables the limit, so presence rather than value is checked
		if r.RateLimitPerMinute != nil {
			config.Router.RateLimitPerMinute = *r.RateLimitPerMinute
		}
	}

	if c := file.Conversation; c != nil {
		setDuration(&config.Conversation.Timeout, c.Timeout)
	}

	if c := file.CORS; c != nil && len(c.AllowedOrigins) > 0 {
		config.CORS.AllowedOrigins = c.AllowedOrigins
	}

	return nil
}

func setDuration(dst *time.Duration, value string) {
	if value == "" {
		return
	}
	if d, err := time.ParseDuration(value); err == nil {
		*dst = d
	}
}

// LoadConfigWithPrecedence layers defaults, then environment, then the file if given.
// An unreadable or invalid file is ignored and environment/defaults still apply.
func LoadConfigWithPrecedence(filepath string) *Config {
	config := LoadFromEnv()

	if filepath != "" {
		candidate := LoadFromEnv()
		if err := applyFile(candidate, filepath); err == nil && candidate.Validate() == nil {
			config = candidate
		}
	}

	return config
}
