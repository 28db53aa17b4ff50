package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Unparseable values fall back to defaults.
	for _, key := range []string{"REQUEST_TIMEOUT", "STREAM_STRICT_EOF", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}
	t.Setenv("API_URL", DefaultBaseURL)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, DefaultBaseURL)
	}
	if cfg.Stream.StrictEOF {
		t.Error("StrictEOF should default to false")
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if !cfg.IsDevelopment() {
		t.Error("localhost base URL should be development")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("API_URL", "https://agents.example.com/")
	t.Setenv("AGENT_ID", "agent-1")
	t.Setenv("REQUEST_TIMEOUT", "15s")
	t.Setenv("STREAM_STRICT_EOF", "yes")
	t.Setenv("STREAM_READ_SIZE", "128")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CHUNK_DELAY", "0s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.BaseURL != "https://agents.example.com" {
		t.Errorf("BaseURL = %q, trailing slash should be trimmed", cfg.BaseURL)
	}
	if cfg.AgentID != "agent-1" {
		t.Errorf("AgentID = %q", cfg.AgentID)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout)
	}
	if !cfg.Stream.StrictEOF || cfg.Stream.ReadSize != 128 {
		t.Errorf("Stream = %+v", cfg.Stream)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("LogLevel = %v, want debug", cfg.LogLevel)
	}
	if cfg.Server.ChunkDelay != 0 {
		t.Errorf("ChunkDelay = %v, want 0", cfg.Server.ChunkDelay)
	}
	if cfg.IsDevelopment() {
		t.Error("remote base URL should not be development")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	base := func() *Config {
		return &Config{
			BaseURL: DefaultBaseURL,
			Stream:  StreamConfig{ReadSize: 1},
			Server: ServerConfig{
				Port:      "3000",
				DBPath:    "agents.db",
				RateLimit: RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad scheme", func(c *Config) { c.BaseURL = "ftp://host" }},
		{"negative timeout", func(c *Config) { c.RequestTimeout = -time.Second }},
		{"zero read size", func(c *Config) { c.Stream.ReadSize = 0 }},
		{"empty port", func(c *Config) { c.Server.Port = "" }},
		{"empty db path", func(c *Config) { c.Server.DBPath = "" }},
		{"zero rate limit", func(c *Config) { c.Server.RateLimit.RequestsPerWindow = 0 }},
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
