// Package daemon boots the marketplace server: configuration loading,
// service wiring, and graceful shutdown.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the daemon configuration, loaded from (in order of precedence)
// BAZAAR_* environment variables, the TOML config file, then defaults.
// A .env file in the working directory is folded into the environment first.
type Config struct {
	API     APIConfig     `toml:"api"`
	Storage StorageConfig `toml:"storage"`
	Chain   ChainConfig   `toml:"chain"`
	Limits  LimitsConfig  `toml:"limits"`
	Log     LogConfig     `toml:"log"`
}

// APIConfig controls the HTTP listener.
type APIConfig struct {
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	EnableMetrics bool   `toml:"enable_metrics"`
	EnableFeed    bool   `toml:"enable_feed"`
}

// StorageConfig selects and parameterizes the store backend.
type StorageConfig struct {
	// Driver is "sqlite" or "memory".
	Driver  string `toml:"driver"`
	DataDir string `toml:"data_dir"`
}

// ChainConfig points at the blockchain RPC oracle.
type ChainConfig struct {
	RPCURL         string `toml:"rpc_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// LimitsConfig tunes abuse controls.
type LimitsConfig struct {
	RatePerMinute   int `toml:"rate_per_minute"`
	CooldownSeconds int `toml:"cooldown_seconds"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	// Level is "debug", "info", "warn", or "error".
	Level string `toml:"level"`
	// Format is "text" or "json".
	Format string `toml:"format"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{
			Host:          "127.0.0.1",
			Port:          8420,
			EnableMetrics: true,
			EnableFeed:    true,
		},
		Storage: StorageConfig{
			Driver:  "sqlite",
			DataDir: defaultDataDir(),
		},
		Chain: ChainConfig{
			RPCURL:         "https://api.mainnet-beta.solana.com",
			TimeoutSeconds: 10,
		},
		Limits: LimitsConfig{
			RatePerMinute:   60,
			CooldownSeconds: 300,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultConfigPath returns the conventional config file location.
func DefaultConfigPath() string {
	return filepath.Join(defaultDataDir(), "config.toml")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bazaar"
	}
	return filepath.Join(home, ".bazaar")
}

// LoadConfig resolves the effective configuration. A missing config file is
// not an error; malformed TOML is.
func LoadConfig(path string) (Config, error) {
	// Local .env files are a developer convenience; absence is normal.
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path == "" {
		path = DefaultConfigPath()
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays BAZAAR_* environment variables onto the config.
func applyEnv(cfg *Config) {
	setString(&cfg.API.Host, "BAZAAR_HOST")
	setInt(&cfg.API.Port, "BAZAAR_PORT")
	setBool(&cfg.API.EnableMetrics, "BAZAAR_METRICS")
	setBool(&cfg.API.EnableFeed, "BAZAAR_FEED")
	setString(&cfg.Storage.Driver, "BAZAAR_STORAGE_DRIVER")
	setString(&cfg.Storage.DataDir, "BAZAAR_DATA_DIR")
	setString(&cfg.Chain.RPCURL, "BAZAAR_RPC_URL")
	setInt(&cfg.Chain.TimeoutSeconds, "BAZAAR_RPC_TIMEOUT")
	setInt(&cfg.Limits.RatePerMinute, "BAZAAR_RATE_LIMIT")
	setInt(&cfg.Limits.CooldownSeconds, "BAZAAR_COOLDOWN")
	setString(&cfg.Log.Level, "BAZAAR_LOG_LEVEL")
	setString(&cfg.Log.Format, "BAZAAR_LOG_FORMAT")
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) {
	if v := os.Getenv(env); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, env string) {
	if v := os.Getenv(env); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func (c Config) validate() error {
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("invalid api.port %d", c.API.Port)
	}
	if c.Storage.Driver != "sqlite" && c.Storage.Driver != "memory" {
		return fmt.Errorf("unknown storage.driver %q (want sqlite or memory)", c.Storage.Driver)
	}
	if c.Limits.RatePerMinute < 1 {
		return fmt.Errorf("limits.rate_per_minute must be positive")
	}
	if c.Limits.CooldownSeconds < 0 {
		return fmt.Errorf("limits.cooldown_seconds cannot be negative")
	}
	return nil
}

// Cooldown returns the content-creation cooldown as a duration.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Limits.CooldownSeconds) * time.Second
}

// ChainTimeout returns the RPC oracle timeout as a duration.
func (c Config) ChainTimeout() time.Duration {
	return time.Duration(c.Chain.TimeoutSeconds) * time.Second
}

// Addr returns the host:port the API listens on.
func (c Config) Addr() string {
	return c.API.Host + ":" + strconv.Itoa(c.API.Port)
}
