package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Delivery modes for chat events
const (
	DeliveryBroadcast    = "broadcast"
	DeliveryParticipants = "participants"
)

const envPrefix = "COUNSELRELAY_"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
type Config struct {
	Database     *DatabaseConfig     `json:"database"`
	HTTP         *HTTPConfig         `json:"http"`
	WebSocket    *WebSocketConfig    `json:"websocket"`
	Router       *RouterConfig       `json:"router"`
	Conversation *ConversationConfig `json:"conversation"`
	CORS         *CORSConfig         `json:"cors"`
}

// DatabaseConfig configures the SQLite relationship store
type DatabaseConfig struct {
	Path           string        `json:"path"`
	Timeout        time.Duration `json:"timeout"`
	MigrationsPath string        `json:"migrations_path"`
}

// HTTPConfig configures the HTTP listener
type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

// WebSocketConfig configures each client connection
type WebSocketConfig struct {
	PingInterval   time.Duration `json:"ping_interval"`
	ReadTimeout    time.Duration `json:"read_timeout"`
	WriteTimeout   time.Duration `json:"write_timeout"`
	BufferSize     int           `json:"buffer_size"`
	MaxMessageSize int64         `json:"max_message_size"`
}

// RouterConfig configures chat routing
type RouterConfig struct {
	DeliveryMode       string `json:"delivery_mode"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
}

// ConversationConfig configures first-contact bookkeeping
type ConversationConfig struct {
	Timeout time.Duration `json:"timeout"`
}

// CORSConfig lists origins allowed to call the API and open sockets
type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
}

// DefaultConfig returns the stock deployment: port 3001, any origin,
// broadcast delivery
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:    "./counselrelay.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         3001,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval:   30 * time.Second,
			ReadTimeout:    60 * time.Second,
			WriteTimeout:   10 * time.Second,
			BufferSize:     100,
			MaxMessageSize: 128 * 1024,
		},
		Router: &RouterConfig{
			DeliveryMode:       DeliveryBroadcast,
			RateLimitPerMinute: 100,
		},
		Conversation: &ConversationConfig{
			Timeout: 10 * time.Second,
		},
		CORS: &CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}

// Validate rejects configurations that would fail at runtime
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.MaxMessageSize <= 0 {
		return fmt.Errorf("WebSocket max message size must be positive")
	}

	if c.Router == nil {
		return fmt.Errorf("router configuration is required")
	}
	if c.Router.DeliveryMode != DeliveryBroadcast && c.Router.DeliveryMode != DeliveryParticipants {
		return fmt.Errorf("router delivery mode must be %q or %q", DeliveryBroadcast, DeliveryParticipants)
	}
	if c.Router.RateLimitPerMinute < 0 {
		return fmt.Errorf("router rate limit cannot be negative")
	}

	if c.Conversation == nil {
		return fmt.Errorf("conversation configuration is required")
	}
	if c.Conversation.Timeout <= 0 {
		return fmt.Errorf("conversation timeout must be positive")
	}

	if c.CORS == nil || len(c.CORS.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed CORS origin is required")
	}

	return nil
}

// LoadFromEnv overlays environment variables on the defaults
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

// applyEnv reads COUNSELRELAY_* variables; PORT and CLIENT_URL are honored as
// fallbacks for platform deployments
func applyEnv(config *Config) {
	if port, ok := lookupInt("PORT"); ok {
		config.HTTP.Port = port
	}
	if port, ok := lookupInt(envPrefix + "HTTP_PORT"); ok {
		config.HTTP.Port = port
	}
	if host := os.Getenv(envPrefix + "HTTP_HOST"); host != "" {
		config.HTTP.Host = host
	}
	if d, ok := lookupDuration(envPrefix + "HTTP_READ_TIMEOUT"); ok {
		config.HTTP.ReadTimeout = d
	}
	if d, ok := lookupDuration(envPrefix + "HTTP_WRITE_TIMEOUT"); ok {
		config.HTTP.WriteTimeout = d
	}

	if dbPath := os.Getenv(envPrefix + "DATABASE_PATH"); dbPath != "" {
		config.Database.Path = dbPath
	}
	if d, ok := lookupDuration(envPrefix + "DATABASE_TIMEOUT"); ok {
		config.Database.Timeout = d
	}
	if dir := os.Getenv(envPrefix + "DATABASE_MIGRATIONS_PATH"); dir != "" {
		config.Database.MigrationsPath = dir
	}

	if d, ok := lookupDuration(envPrefix + "WEBSOCKET_PING_INTERVAL"); ok {
		config.WebSocket.PingInterval = d
	}
	if d, ok := lookupDuration(envPrefix + "WEBSOCKET_READ_TIMEOUT"); ok {
		config.WebSocket.ReadTimeout = d
	}
	if d, ok := lookupDuration(envPrefix + "WEBSOCKET_WRITE_TIMEOUT"); ok {
		config.WebSocket.WriteTimeout = d
	}
	if size, ok := lookupInt(envPrefix + "WEBSOCKET_BUFFER_SIZE"); ok {
		config.WebSocket.BufferSize = size
	}
	if size, ok := lookupInt(envPrefix + "WEBSOCKET_MAX_MESSAGE_SIZE"); ok {
		config.WebSocket.MaxMessageSize = int64(size)
	}

	if mode := os.Getenv(envPrefix + "ROUTER_DELIVERY_MODE"); mode != "" {
		config.Router.DeliveryMode = strings.ToLower(mode)
	}
	if limit, ok := lookupInt(envPrefix + "ROUTER_RATE_LIMIT_PER_MINUTE"); ok {
		config.Router.RateLimitPerMinute = limit
	}

	if d, ok := lookupDuration(envPrefix + "CONVERSATION_TIMEOUT"); ok {
		config.Conversation.Timeout = d
	}

	if origin := os.Getenv("CLIENT_URL"); origin != "" {
		config.CORS.AllowedOrigins = []string{origin}
	}
	if origins := os.Getenv(envPrefix + "CORS_ALLOWED_ORIGINS"); origins != "" {
		config.CORS.AllowedOrigins = splitList(origins)
	}
}

func lookupInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func lookupDuration(key string) (time.Duration, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
