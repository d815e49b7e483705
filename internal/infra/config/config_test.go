// No t.Parallel(): env vars are process-global.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var allKeys = []string{
	envKeyHost, envKeyPort, envKeyDBPath, envKeySettingsFile, envKeyLogLevel,
	envKeyLogFormat, envKeyAdminKeyHash, envKeyMaxToolRounds, envKeyMaxConversationRounds,
	envKeyCleanupMode, envKeyProviderTimeout, envKeyStreamTimeout,
	envKeyHeartbeatInterval, envKeySettingsCacheTTL,
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()

	if cfg.Host != "0.0.0.0" || cfg.Port != 8080 {
		t.Errorf("expected 0.0.0.0:8080, got %s:%d", cfg.Host, cfg.Port)
	}
	if cfg.DBPath != "./data/littleapp.db" {
		t.Errorf("unexpected DBPath %q", cfg.DBPath)
	}
	if cfg.MaxToolRounds != 5 {
		t.Errorf("expected MaxToolRounds 5, got %d", cfg.MaxToolRounds)
	}
	if cfg.MaxConversationRounds != 10 {
		t.Errorf("expected MaxConversationRounds 10, got %d", cfg.MaxConversationRounds)
	}
	if cfg.CleanupMode != "always" {
		t.Errorf("expected CleanupMode 'always', got %q", cfg.CleanupMode)
	}
	if cfg.ProviderTimeout != 180*time.Second {
		t.Errorf("expected ProviderTimeout 180s, got %v", cfg.ProviderTimeout)
	}
	if cfg.StreamTimeout != 300*time.Second {
		t.Errorf("expected StreamTimeout 300s, got %v", cfg.StreamTimeout)
	}
	if cfg.HeartbeatInterval != 30*time.Second {
		t.Errorf("expected HeartbeatInterval 30s, got %v", cfg.HeartbeatInterval)
	}
	if cfg.AdminKeyHash != "" {
		t.Errorf("expected empty AdminKeyHash, got %q", cfg.AdminKeyHash)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(envKeyPort, "9090")
	t.Setenv(envKeyMaxToolRounds, "3")
	t.Setenv(envKeyCleanupMode, "DIRECT")
	t.Setenv(envKeyStreamTimeout, "2m")
	t.Setenv(envKeyHeartbeatInterval, "15")

	cfg := Load()

	if cfg.Port != 9090 {
		t.Errorf("expected Port 9090, got %d", cfg.Port)
	}
	if cfg.MaxToolRounds != 3 {
		t.Errorf("expected MaxToolRounds 3, got %d", cfg.MaxToolRounds)
	}
	if cfg.CleanupMode != "direct" {
		t.Errorf("expected CleanupMode 'direct', got %q", cfg.CleanupMode)
	}
	if cfg.StreamTimeout != 2*time.Minute {
		t.Errorf("expected StreamTimeout 2m, got %v", cfg.StreamTimeout)
	}
	if cfg.HeartbeatInterval != 15*time.Second {
		t.Errorf("expected HeartbeatInterval 15s, got %v", cfg.HeartbeatInterval)
	}
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv(envKeyPort, "not-a-port")
	t.Setenv(envKeyMaxConversationRounds, "-4")
	t.Setenv(envKeyProviderTimeout, "soon")

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("expected fallback Port 8080, got %d", cfg.Port)
	}
	if cfg.MaxConversationRounds != 10 {
		t.Errorf("expected fallback MaxConversationRounds 10, got %d", cfg.MaxConversationRounds)
	}
	if cfg.ProviderTimeout != 180*time.Second {
		t.Errorf("expected fallback ProviderTimeout, got %v", cfg.ProviderTimeout)
	}
}

func TestEnvOr_Present(t *testing.T) {
	t.Setenv("TEST_ENVOR_KEY", "custom-value")
	if got := envOr("TEST_ENVOR_KEY", "fallback"); got != "custom-value" {
		t.Errorf("expected 'custom-value', got %q", got)
	}
}

func TestEnvOr_Absent(t *testing.T) {
	t.Setenv("TEST_ENVOR_MISSING", "")
	if got := envOr("TEST_ENVOR_MISSING", "fallback"); got != "fallback" {
		t.Errorf("expected 'fallback', got %q", got)
	}
}

func TestLoadSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := "settings:\n  system_prompt: \"You are terse.\"\n  temperature: \"0.3\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	seed, err := LoadSeed(path)
	if err != nil {
		t.Fatalf("LoadSeed error = %v", err)
	}
	if seed.Settings["system_prompt"] != "You are terse." {
		t.Errorf("unexpected system_prompt %q", seed.Settings["system_prompt"])
	}
	if seed.Settings["temperature"] != "0.3" {
		t.Errorf("unexpected temperature %q", seed.Settings["temperature"])
	}
}

func TestLoadSeed_EmptyPath(t *testing.T) {
	seed, err := LoadSeed("")
	if err != nil {
		t.Fatalf("LoadSeed(\"\") error = %v", err)
	}
	if len(seed.Settings) != 0 {
		t.Errorf("expected no settings, got %v", seed.Settings)
	}
}

func TestLoadSeed_MissingFile(t *testing.T) {
	if _, err := LoadSeed(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadSeed_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("settings: [unterminated"), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	if _, err := LoadSeed(path); err == nil {
		t.Fatal("expected parse error")
	}
}
