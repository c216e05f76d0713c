package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all steward configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	LLM      LLMConfig      `toml:"llm"`
	Memory   MemoryConfig   `toml:"memory"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type LLMConfig struct {
	Provider       string `toml:"provider"` // "mock", "ollama", "anthropic"
	Model          string `toml:"model"`
	OllamaURL      string `toml:"ollama_url"`
	AnthropicKey   string `toml:"anthropic_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Default models per provider, used when llm.model is unset.
const (
	DefaultOllamaModel    = "llama3.2"
	DefaultAnthropicModel = "claude-haiku-4-5-20251001"
)

// Timeout returns the per-request LLM timeout, defaulting to two minutes.
// Extraction prompts over long conversation chunks can run that long on
// local models.
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type MemoryConfig struct {
	HotTTLDays int `toml:"hot_ttl_days"`
}

// Default returns a Config with sensible defaults. The LLM defaults to the
// mock provider: extraction produces nothing rather than calling out
// somewhere unconfigured.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 38600,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		LLM: LLMConfig{
			Provider:       "mock",
			TimeoutSeconds: 120,
		},
		Memory: MemoryConfig{
			HotTTLDays: 7,
		},
	}
}

// FromEnv returns the defaults with environment overrides applied:
// STEWARD_DB, STEWARD_BIND, STEWARD_PORT, OLLAMA_URL, ANTHROPIC_API_KEY,
// STEWARD_LLM_MODEL, STEWARD_LLM_TIMEOUT.
func FromEnv() Config {
	cfg := Default()
	if v := os.Getenv("STEWARD_DB"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("STEWARD_BIND"); v != "" {
		cfg.Server.Bind = v
	}
	if v := os.Getenv("STEWARD_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("OLLAMA_URL"); v != "" {
		cfg.LLM.Provider = "ollama"
		cfg.LLM.OllamaURL = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.LLM.Provider = "anthropic"
		cfg.LLM.AnthropicKey = v
	}
	if v := os.Getenv("STEWARD_LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("STEWARD_LLM_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.LLM.TimeoutSeconds = secs
		}
	}
	return cfg
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
