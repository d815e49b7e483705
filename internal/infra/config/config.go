// Package config provides process configuration loaded from env vars.
// All fields have safe defaults so the binary runs locally without any env setup.
// Provider credentials, prompts and model names are not here: they live in the
// ai_config table (see infra/settings) and are read on every round.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds runtime configuration for littleapp.
type Config struct {
	// HTTP
	Host string // LITTLEAPP_HOST — default: "0.0.0.0"
	Port int    // LITTLEAPP_PORT — default: 8080

	// Storage
	DBPath       string // LITTLEAPP_DB_PATH — default: "./data/littleapp.db"
	SettingsFile string // LITTLEAPP_SETTINGS_FILE — optional YAML seed for ai_config

	// Logging
	LogLevel  string // LITTLEAPP_LOG_LEVEL — default: "info"
	LogFormat string // LITTLEAPP_LOG_FORMAT — default: "json"

	// Admin surface; empty disables /api/v1/admin.
	AdminKeyHash string // LITTLEAPP_ADMIN_KEY_HASH — bcrypt hash of the admin key

	// Chat
	MaxToolRounds         int           // LITTLEAPP_MAX_TOOL_ROUNDS — default: 5
	MaxConversationRounds int           // LITTLEAPP_MAX_CONVERSATION_ROUNDS — default: 10
	CleanupMode           string        // LITTLEAPP_CLEANUP_MODE — default: "always"
	ProviderTimeout       time.Duration // LITTLEAPP_PROVIDER_TIMEOUT — default: 180s
	StreamTimeout         time.Duration // LITTLEAPP_STREAM_TIMEOUT — default: 300s
	HeartbeatInterval     time.Duration // LITTLEAPP_HEARTBEAT_INTERVAL — default: 30s
	SettingsCacheTTL      time.Duration // LITTLEAPP_SETTINGS_CACHE_TTL — default: 5s
}

const (
	envKeyHost                  = "LITTLEAPP_HOST"
	envKeyPort                  = "LITTLEAPP_PORT"
	envKeyDBPath                = "LITTLEAPP_DB_PATH"
	envKeySettingsFile          = "LITTLEAPP_SETTINGS_FILE"
	envKeyLogLevel              = "LITTLEAPP_LOG_LEVEL"
	envKeyLogFormat             = "LITTLEAPP_LOG_FORMAT"
	envKeyAdminKeyHash          = "LITTLEAPP_ADMIN_KEY_HASH"
	envKeyMaxToolRounds         = "LITTLEAPP_MAX_TOOL_ROUNDS"
	envKeyMaxConversationRounds = "LITTLEAPP_MAX_CONVERSATION_ROUNDS"
	envKeyCleanupMode           = "LITTLEAPP_CLEANUP_MODE"
	envKeyProviderTimeout       = "LITTLEAPP_PROVIDER_TIMEOUT"
	envKeyStreamTimeout         = "LITTLEAPP_STREAM_TIMEOUT"
	envKeyHeartbeatInterval     = "LITTLEAPP_HEARTBEAT_INTERVAL"
	envKeySettingsCacheTTL      = "LITTLEAPP_SETTINGS_CACHE_TTL"
)

// Load reads configuration from environment variables, applying defaults for missing values.
func Load() Config {
	return Config{
		Host:                  envOr(envKeyHost, "0.0.0.0"),
		Port:                  envInt(envKeyPort, 8080),
		DBPath:                envOr(envKeyDBPath, "./data/littleapp.db"),
		SettingsFile:          envOr(envKeySettingsFile, ""),
		LogLevel:              envOr(envKeyLogLevel, "info"),
		LogFormat:             envOr(envKeyLogFormat, "json"),
		AdminKeyHash:          envOr(envKeyAdminKeyHash, ""),
		MaxToolRounds:         envInt(envKeyMaxToolRounds, 5),
		MaxConversationRounds: envInt(envKeyMaxConversationRounds, 10),
		CleanupMode:           strings.ToLower(envOr(envKeyCleanupMode, "always")),
		ProviderTimeout:       envDuration(envKeyProviderTimeout, 180*time.Second),
		StreamTimeout:         envDuration(envKeyStreamTimeout, 300*time.Second),
		HeartbeatInterval:     envDuration(envKeyHeartbeatInterval, 30*time.Second),
		SettingsCacheTTL:      envDuration(envKeySettingsCacheTTL, 5*time.Second),
	}
}

// envOr returns the value of the environment variable key, or fallback if not set.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// envInt parses key as a positive integer; anything else yields fallback.
func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(envOr(key, ""))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// envDuration accepts Go durations ("45s", "2m") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	raw := envOr(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
