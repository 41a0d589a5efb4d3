package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.API.Host != "127.0.0.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "127.0.0.1")
	}
	if cfg.API.Port != 8420 {
		t.Errorf("API.Port = %d, want %d", cfg.API.Port, 8420)
	}
	if cfg.Storage.Driver != "sqlite" {
		t.Errorf("Storage.Driver = %q, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Limits.RatePerMinute != 60 {
		t.Errorf("Limits.RatePerMinute = %d, want 60", cfg.Limits.RatePerMinute)
	}
	if cfg.Cooldown() != 5*time.Minute {
		t.Errorf("Cooldown() = %v, want 5m", cfg.Cooldown())
	}
	if cfg.ChainTimeout() != 10*time.Second {
		t.Errorf("ChainTimeout() = %v, want 10s", cfg.ChainTimeout())
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[api]
host = "0.0.0.0"
port = 9000

[storage]
driver = "memory"

[chain]
rpc_url = "https://api.devnet.solana.com"

[limits]
rate_per_minute = 10
cooldown_seconds = 30
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Host != "0.0.0.0" || cfg.API.Port != 9000 {
		t.Errorf("api = %s:%d", cfg.API.Host, cfg.API.Port)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("Storage.Driver = %q", cfg.Storage.Driver)
	}
	if cfg.Chain.RPCURL != "https://api.devnet.solana.com" {
		t.Errorf("Chain.RPCURL = %q", cfg.Chain.RPCURL)
	}
	if cfg.Limits.RatePerMinute != 10 || cfg.Limits.CooldownSeconds != 30 {
		t.Errorf("limits = %+v", cfg.Limits)
	}
	// Untouched sections keep their defaults.
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want default info", cfg.Log.Level)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != DefaultConfig().API.Port {
		t.Errorf("Port = %d, want default", cfg.API.Port)
	}
}

func TestLoadConfigMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	os.WriteFile(path, []byte("this is { not toml"), 0o600)
	if _, err := LoadConfig(path); err == nil {
		t.Error("malformed TOML should fail")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BAZAAR_PORT", "7001")
	t.Setenv("BAZAAR_STORAGE_DRIVER", "memory")
	t.Setenv("BAZAAR_RATE_LIMIT", "5")
	t.Setenv("BAZAAR_METRICS", "false")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.API.Port != 7001 {
		t.Errorf("Port = %d, want 7001", cfg.API.Port)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("Storage.Driver = %q, want memory", cfg.Storage.Driver)
	}
	if cfg.Limits.RatePerMinute != 5 {
		t.Errorf("RatePerMinute = %d, want 5", cfg.Limits.RatePerMinute)
	}
	if cfg.API.EnableMetrics {
		t.Error("EnableMetrics should be overridden to false")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.API.Port = 0 }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "redis" }},
		{"zero rate", func(c *Config) { c.Limits.RatePerMinute = 0 }},
		{"negative cooldown", func(c *Config) { c.Limits.CooldownSeconds = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if err := cfg.validate(); err == nil {
				t.Error("validate should fail")
			}
		})
	}
}
