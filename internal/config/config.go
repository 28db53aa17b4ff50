// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is used when API_URL is unset.
const DefaultBaseURL = "http://localhost:3000"

// Config holds all application configuration.
type Config struct {
	BaseURL        string
	AgentID        string
	RequestTimeout time.Duration // 0 = no timeout, streams may run indefinitely
	LogLevel       slog.Level
	Stream         StreamConfig
	Server         ServerConfig
}

// StreamConfig controls the event stream decoder.
type StreamConfig struct {
	StrictEOF bool
	ReadSize  int
}

// ServerConfig controls the development agent server.
type ServerConfig struct {
	Port       string
	DBPath     string
	AgentsFile string
	ChunkDelay time.Duration
	RateLimit  RateLimitConfig
}

// RateLimitConfig controls per-client request throttling.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		BaseURL:        strings.TrimRight(getEnv("API_URL", DefaultBaseURL), "/"),
		AgentID:        getEnv("AGENT_ID", ""),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 0),
		LogLevel:       getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		Stream: StreamConfig{
			StrictEOF: getEnvBool("STREAM_STRICT_EOF", false),
			ReadSize:  getEnvInt("STREAM_READ_SIZE", 4096),
		},
		Server: ServerConfig{
			Port:       getEnv("PORT", "3000"),
			DBPath:     getEnv("DB_PATH", "./data/agents.db"),
			AgentsFile: getEnv("AGENTS_FILE", ""),
			ChunkDelay: getEnvDuration("CHUNK_DELAY", 40*time.Millisecond),
			RateLimit: RateLimitConfig{
				RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 30),
				WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			},
		},
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("API_URL is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("API_URL must use http or https, got %q", u.Scheme)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be >= 0")
	}
	if c.Stream.ReadSize <= 0 {
		return fmt.Errorf("STREAM_READ_SIZE must be > 0")
	}
	if c.Server.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.Server.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Server.ChunkDelay < 0 {
		return fmt.Errorf("CHUNK_DELAY must be >= 0")
	}
	if c.Server.RateLimit.RequestsPerWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be > 0")
	}
	if c.Server.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be > 0")
	}
	return nil
}

// IsDevelopment returns true if the API root points at the local machine.
func (c *Config) IsDevelopment() bool {
	return strings.Contains(c.BaseURL, "localhost") ||
		strings.Contains(c.BaseURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
