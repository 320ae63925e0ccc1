// Package config handles loading, parsing, and validating the YAML
// configuration file of the loader, with environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/Guliveer/steam-gameloader-go/internal/constants"
)

// DefaultConfigPath is the default location of the configuration file.
const DefaultConfigPath = "config.yaml"

// DefaultAddr is the default listen address of the local UI.
const DefaultAddr = "127.0.0.1:5000"

// Load reads the configuration from path. A missing file yields the defaults.
// Environment variables are applied on top and the result is validated.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = DefaultAddr
	}

	if cfg.Steam.PathCacheTTL == 0 {
		cfg.Steam.PathCacheTTL = constants.SteamPathCacheTTL
	}
	if cfg.Steam.ShutdownTimeout == 0 {
		cfg.Steam.ShutdownTimeout = constants.DefaultSteamShutdownTimeout
	}

	if cfg.Paths.DataDir == "" {
		cfg.Paths.DataDir = "data"
	}
	if cfg.Paths.CacheDir == "" {
		cfg.Paths.CacheDir = filepath.Join(cfg.Paths.DataDir, "cache")
	}
	home, _ := os.UserHomeDir()
	if cfg.Paths.BackupDir == "" {
		cfg.Paths.BackupDir = filepath.Join(home, "SteamGameLoader_Backups")
	}
	if cfg.Paths.RemovalBackupDir == "" {
		cfg.Paths.RemovalBackupDir = filepath.Join(home, "SteamGameLoader_Removal_Backups")
	}
	if cfg.Paths.FixesCatalog == "" {
		cfg.Paths.FixesCatalog = constants.FixesCatalogFile
	}
	if cfg.Paths.HistoryDB == "" {
		cfg.Paths.HistoryDB = filepath.Join(cfg.Paths.DataDir, "history.db")
	}

	if cfg.Download.Budget == 0 {
		cfg.Download.Budget = constants.DefaultDownloadBudget
	}
	if len(cfg.Download.Mirrors) == 0 {
		for _, m := range constants.DefaultMirrors {
			cfg.Download.Mirrors = append(cfg.Download.Mirrors, MirrorConfig{Name: m.Name, URL: m.URL})
		}
	}
	if len(cfg.Download.Repositories) == 0 {
		cfg.Download.Repositories = append([]string(nil), constants.DefaultRepositories...)
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = CacheBackendFile
	}
	if cfg.Cache.DownloadTTL == 0 {
		cfg.Cache.DownloadTTL = constants.DownloadCacheTTL
	}
	if cfg.Cache.SearchTTL == 0 {
		cfg.Cache.SearchTTL = constants.SearchCacheTTL
	}
	if cfg.Cache.APICheckTTL == 0 {
		cfg.Cache.APICheckTTL = constants.APICheckCacheTTL
	}
	if cfg.Cache.NamesTTL == 0 {
		cfg.Cache.NamesTTL = constants.NamesCacheTTL
	}

	if cfg.Notifications.Webhook != nil && cfg.Notifications.Webhook.Method == "" {
		cfg.Notifications.Webhook.Method = "POST"
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "INFO"
	}
}

// envOverrides lists the environment variables that overlay the file configuration.
type envOverrides struct {
	Addr           string        `env:"GAMELOADER_ADDR"`
	SteamPath      string        `env:"STEAM_PATH"`
	DataDir        string        `env:"GAMELOADER_DATA_DIR"`
	CacheBackend   string        `env:"GAMELOADER_CACHE_BACKEND"`
	RedisURL       string        `env:"REDIS_URL"`
	DiscordWebhook string        `env:"DISCORD_WEBHOOK"`
	WebhookURL     string        `env:"WEBHOOK_URL"`
	LogLevel       string        `env:"LOG_LEVEL"`
	NoTray         bool          `env:"GAMELOADER_NO_TRAY"`
	Budget         time.Duration `env:"GAMELOADER_DOWNLOAD_BUDGET"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// applyEnvOverrides overlays environment variables onto cfg.
func applyEnvOverrides(cfg *Config) error {
	var ov envOverrides
	if err := ParseEnv(&ov); err != nil {
		return err
	}

	if ov.Addr != "" {
		cfg.Server.Addr = ov.Addr
	}
	if ov.SteamPath != "" {
		cfg.Steam.Path = ov.SteamPath
	}
	if ov.DataDir != "" {
		cfg.Paths.DataDir = ov.DataDir
	}
	if ov.CacheBackend != "" {
		cfg.Cache.Backend = strings.ToLower(ov.CacheBackend)
	}
	if ov.RedisURL != "" {
		cfg.Cache.RedisURL = ov.RedisURL
	}
	if ov.DiscordWebhook != "" {
		if cfg.Notifications.Discord == nil {
			cfg.Notifications.Discord = &DiscordConfig{Enabled: true}
		}
		cfg.Notifications.Discord.WebhookURL = ov.DiscordWebhook
	}
	if ov.WebhookURL != "" {
		if cfg.Notifications.Webhook == nil {
			cfg.Notifications.Webhook = &WebhookConfig{Enabled: true}
		}
		cfg.Notifications.Webhook.Endpoint = ov.WebhookURL
	}
	if ov.LogLevel != "" {
		cfg.Log.Level = ov.LogLevel
	}
	if ov.NoTray {
		disabled := false
		cfg.Tray.Enabled = &disabled
	}
	if ov.Budget > 0 {
		cfg.Download.Budget = ov.Budget
	}
	return nil
}

// Validate checks the configuration for common errors.
func Validate(cfg *Config) error {
	switch cfg.Cache.Backend {
	case CacheBackendFile, CacheBackendMemory:
	case CacheBackendRedis:
		if cfg.Cache.RedisURL == "" {
			return fmt.Errorf("cache backend redis requires redis_url (or env var REDIS_URL)")
		}
	default:
		return fmt.Errorf("unknown cache backend %q (want file, memory or redis)", cfg.Cache.Backend)
	}

	if cfg.Download.Budget < 10*time.Second {
		return fmt.Errorf("download budget %s is too short (minimum 10s)", cfg.Download.Budget)
	}

	for i, m := range cfg.Download.Mirrors {
		if m.Name == "" {
			return fmt.Errorf("mirror at index %d has empty name", i)
		}
		if !strings.Contains(m.URL, constants.AppIDPlaceholder) {
			return fmt.Errorf("mirror %s: url must contain %s", m.Name, constants.AppIDPlaceholder)
		}
	}

	if cfg.Notifications.Discord != nil && cfg.Notifications.Discord.Enabled {
		if cfg.Notifications.Discord.WebhookURL == "" {
			return fmt.Errorf("discord enabled but webhook_url not set (use env var DISCORD_WEBHOOK)")
		}
	}

	if cfg.Notifications.Webhook != nil && cfg.Notifications.Webhook.Enabled {
		if cfg.Notifications.Webhook.Endpoint == "" {
			return fmt.Errorf("webhook enabled but endpoint not set (use env var WEBHOOK_URL)")
		}
	}

	return nil
}
