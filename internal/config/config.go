// Package config provides configuration for the chat relay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the chat relay configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Upstream model backend (OpenAI-style chat-completions endpoint)
	UpstreamBaseURL string
	UpstreamAPIKey  string
	UpstreamTimeout time.Duration

	// Proxy endpoint the completion client talks to. Defaults to this
	// process's own server so all upstream calls carry the server-side key.
	ProxyBaseURL string

	// Models
	DefaultModel  string
	FallbackModel string
	Models        []string

	SystemPrompt string
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := getEnvInt("HTTP_PORT", 8045)
	cfg := &Config{
		HTTPPort:        port,
		DatabaseURL:     getEnv("DATABASE_URL", "file:nanochat.db?cache=shared&mode=rwc"),
		UpstreamBaseURL: getEnv("UPSTREAM_BASE_URL", "http://localhost:8000/v1"),
		UpstreamAPIKey:  getEnv("UPSTREAM_API_KEY", ""),
		UpstreamTimeout: time.Duration(getEnvInt("UPSTREAM_TIMEOUT_MS", 300000)) * time.Millisecond,
		ProxyBaseURL:    getEnv("PROXY_BASE_URL", fmt.Sprintf("http://127.0.0.1:%d/v1", port)),
		DefaultModel:    getEnv("DEFAULT_MODEL", "claude-opus-4-5-thinking"),
		FallbackModel:   getEnv("FALLBACK_MODEL", "gemini-3-pro-high"),
		Models: getEnvList("MODELS", []string{
			"gemini-2.5-flash",
			"gemini-3-pro-high",
			"gemini-3-flash",
			"claude-sonnet-4-5",
			"claude-sonnet-4-5-thinking",
			"claude-opus-4-5-thinking",
		}),
		SystemPrompt: getEnv("SYSTEM_PROMPT", ""),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
